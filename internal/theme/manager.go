package theme

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/thypress/thypress/internal/config"
	"github.com/thypress/thypress/internal/logging"
)

// State describes the theme lifecycle.
type State int

const (
	// StateReady means the current theme passed validation (or a failed
	// reload kept the prior good theme in place).
	StateReady State = iota
	// StateReloading is the transient state while a rebuild runs.
	StateReloading
	// StateBroken means a failing theme was installed anyway because
	// forceTheme is set; every render logs the validation errors.
	StateBroken
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateReloading:
		return "reloading"
	case StateBroken:
		return "broken"
	default:
		return "unknown"
	}
}

// ErrNoTheme is returned when no theme has ever loaded successfully.
var ErrNoTheme = errors.New("no theme loaded")

// Manager owns the active theme and its reload lifecycle. Readers get a
// stable *Theme snapshot; reloads swap it atomically under the lock.
type Manager struct {
	cfg      *config.Config
	resolver *Resolver
	log      logging.Logger

	mu      sync.RWMutex
	current *Theme
	state   State
}

// NewManager creates a theme manager around a resolver.
func NewManager(cfg *config.Config, resolver *Resolver, log logging.Logger) *Manager {
	return &Manager{cfg: cfg, resolver: resolver, log: log.WithComponent("theme"), state: StateReady}
}

// Load performs the initial theme build. A validation failure at startup
// is fatal unless forceTheme is set.
func (m *Manager) Load(ctx context.Context) error {
	theme, err := m.resolver.Build(ctx)
	if err != nil {
		return err
	}
	if !theme.Validation.OK() && !m.cfg.Site.ForceTheme {
		return fmt.Errorf("theme %s failed validation: %v", theme.ActiveID, theme.Validation.Errors)
	}

	m.mu.Lock()
	m.current = theme
	if theme.Validation.OK() {
		m.state = StateReady
	} else {
		m.state = StateBroken
	}
	m.mu.Unlock()

	if theme.Validation.OK() {
		m.log.Success(ctx, "theme loaded", "theme", theme.ActiveID,
			"templates", len(theme.Templates), "partials", len(theme.Partials))
	} else {
		m.log.Warn(ctx, nil, "theme loaded with validation errors (forceTheme)",
			"theme", theme.ActiveID, "errors", len(theme.Validation.Errors))
	}
	for _, w := range theme.Validation.Warnings {
		m.log.Warn(ctx, nil, "theme warning", "theme", theme.ActiveID, "detail", w)
	}
	return nil
}

// Reload rebuilds the theme in response to a template change. When the
// rebuild fails validation the prior good theme stays installed, unless
// forceTheme installs the failing one and marks the manager broken.
func (m *Manager) Reload(ctx context.Context) error {
	m.mu.Lock()
	prior := m.current
	priorState := m.state
	m.state = StateReloading
	m.mu.Unlock()

	theme, err := m.resolver.Build(ctx)
	if err != nil {
		m.mu.Lock()
		m.state = priorState
		m.mu.Unlock()
		m.log.Error(ctx, err, "theme reload failed, keeping prior theme")
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if theme.Validation.OK() {
		m.current = theme
		m.state = StateReady
		m.log.Success(ctx, "theme reloaded", "theme", theme.ActiveID)
		return nil
	}

	if m.cfg.Site.ForceTheme {
		m.current = theme
		m.state = StateBroken
		m.log.Warn(ctx, nil, "theme reloaded with validation errors (forceTheme)",
			"theme", theme.ActiveID, "errors", len(theme.Validation.Errors))
		return nil
	}

	m.current = prior
	m.state = StateReady
	m.log.Error(ctx, nil, "theme validation failed, keeping prior theme",
		"theme", theme.ActiveID, "errors", len(theme.Validation.Errors))
	return fmt.Errorf("theme %s failed validation: %v", theme.ActiveID, theme.Validation.Errors)
}

// Current returns the active theme snapshot. When the manager is broken
// the validation errors ride along on the theme for per-render logging.
func (m *Manager) Current() (*Theme, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return nil, ErrNoTheme
	}
	return m.current, nil
}

// State reports the lifecycle state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}
