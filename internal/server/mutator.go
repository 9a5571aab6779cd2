package server

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/thypress/thypress/internal/config"
	"github.com/thypress/thypress/internal/content"
	"github.com/thypress/thypress/internal/logging"
	"github.com/thypress/thypress/internal/redirect"
	"github.com/thypress/thypress/internal/watcher"
)

// Mutator is the single writer for shared state. Every watcher event
// batch lands here; request handlers never mutate the store, theme, or
// caches themselves.
type Mutator struct {
	cfg     *config.Config
	log     logging.Logger
	service *Service

	events chan []watcher.ChangeEvent
}

// NewMutator wires the serialized mutation path.
func NewMutator(cfg *config.Config, log logging.Logger, service *Service) *Mutator {
	return &Mutator{
		cfg:     cfg,
		log:     log.WithComponent("mutator"),
		service: service,
		events:  make(chan []watcher.ChangeEvent, 16),
	}
}

// Handler returns the watcher callback feeding this mutator.
func (m *Mutator) Handler() watcher.ChangeHandler {
	return func(events []watcher.ChangeEvent) error {
		select {
		case m.events <- events:
		default:
			// A saturated queue means a rebuild storm; safest is a full
			// pass on the next batch, so dropping this one is fine.
			m.log.Warn(context.Background(), nil, "mutation queue full, dropping batch", "events", len(events))
		}
		return nil
	}
}

// Run consumes event batches until ctx is cancelled.
func (m *Mutator) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case batch := <-m.events:
			m.apply(ctx, batch)
		}
	}
}

// apply classifies one debounced batch and performs the targeted
// reloads, then fires a single broadcast if anything changed.
func (m *Mutator) apply(ctx context.Context, batch []watcher.ChangeEvent) {
	var (
		configChanged    bool
		redirectsChanged bool
		themeChanged     bool
		contentEvents    []watcher.ChangeEvent
	)

	configPath := filepath.Clean(m.cfg.ConfigPath())
	redirectsPath := filepath.Clean(m.cfg.RedirectsPath())
	templatesRoot := filepath.Clean(m.cfg.TemplatesRoot()) + string(os.PathSeparator)
	contentRoot := filepath.Clean(m.cfg.ContentRoot()) + string(os.PathSeparator)

	for _, event := range batch {
		p := filepath.Clean(event.Path)
		switch {
		case p == configPath:
			configChanged = true
		case p == redirectsPath:
			redirectsChanged = true
		case strings.HasPrefix(p, templatesRoot):
			themeChanged = true
		case strings.HasPrefix(p, contentRoot):
			contentEvents = append(contentEvents, event)
		}
	}

	changed := false
	if configChanged {
		changed = m.reloadConfig(ctx) || changed
	}
	if redirectsChanged {
		changed = m.reloadRedirects(ctx) || changed
	}
	if themeChanged {
		changed = m.reloadTheme(ctx) || changed
	}
	if len(contentEvents) > 0 {
		changed = m.applyContent(ctx, contentEvents) || changed
	}

	if changed {
		m.service.hub.Broadcast(ReloadEvent{Type: "reload"})
	}
}

// reloadConfig re-reads config.json and invalidates everything derived
// from it.
func (m *Mutator) reloadConfig(ctx context.Context) bool {
	site, err := config.LoadSite(m.cfg.ConfigPath())
	if err != nil {
		m.log.Error(ctx, err, "config reload failed, keeping prior config")
		return false
	}
	// The mutator goroutine owns cfg.Site for ingestion and theme
	// reloads; request handlers read the swapped snapshot instead.
	m.cfg.Site = *site
	m.service.SetSite(site)
	m.service.engine.ClearAll()
	if err := m.service.themes.Reload(ctx); err != nil {
		m.log.Warn(ctx, err, "theme rebuild after config change failed")
	}
	m.log.Success(ctx, "configuration reloaded")
	return true
}

// reloadRedirects swaps in a fresh redirect table.
func (m *Mutator) reloadRedirects(ctx context.Context) bool {
	table, problems, err := redirect.Load(m.cfg.RedirectsPath())
	if err != nil {
		m.log.Error(ctx, err, "redirects reload failed, keeping prior table")
		return false
	}
	for _, problem := range problems {
		m.log.Warn(ctx, nil, "redirect rule problem", "detail", problem)
	}
	m.service.SetRedirects(table)
	m.log.Success(ctx, "redirects reloaded", "rules", table.Len())
	return true
}

// reloadTheme rebuilds the theme; rendered pages are stale afterwards.
func (m *Mutator) reloadTheme(ctx context.Context) bool {
	if err := m.service.themes.Reload(ctx); err != nil {
		return false
	}
	m.service.engine.ClearRendered()
	m.service.engine.ClearStatic()
	return true
}

// applyContent performs incremental ingestion for changed files and
// eviction for deleted ones, then refreshes navigation and meta state.
func (m *Mutator) applyContent(ctx context.Context, events []watcher.ChangeEvent) bool {
	store := m.service.store
	changed := false

	for _, event := range events {
		if content.Ignored(m.cfg.ContentRoot(), event.Path) {
			continue
		}
		switch event.Type {
		case watcher.EventTypeDeleted, watcher.EventTypeRenamed:
			if slug, ok := store.SlugForPath(event.Path); ok {
				store.Delete(slug)
				m.service.engine.Delete(slug)
				m.log.Info(ctx, "entry removed", "slug", slug)
				changed = true
			}
			// A rename also delivers a create for the new path, handled
			// in its own event.
			if event.Type == watcher.EventTypeDeleted {
				continue
			}
			fallthrough
		case watcher.EventTypeCreated, watcher.EventTypeModified:
			if _, err := os.Stat(event.Path); err != nil {
				continue
			}
			entry, err := m.service.pipeline.ProcessFile(event.Path)
			if err != nil {
				var broken *content.BrokenImageError
				if errors.As(err, &broken) {
					m.log.Error(ctx, err, "broken image reference", "path", event.Path)
					continue
				}
				m.log.Warn(ctx, err, "skipping file", "path", event.Path)
				continue
			}
			if entry == nil {
				// Draft: evict any previously published form.
				if slug, ok := store.SlugForPath(event.Path); ok {
					store.Delete(slug)
					m.service.engine.Delete(slug)
					changed = true
				}
				continue
			}
			if err := store.Put(entry); err != nil {
				m.log.Error(ctx, err, "rejecting entry", "path", event.Path)
				continue
			}
			m.service.engine.Delete(entry.Slug)
			m.log.Info(ctx, "entry updated", "slug", entry.Slug)
			changed = true
		}
	}

	if !changed {
		return false
	}

	// Entry lists, taxonomy pages, and meta documents are all derived
	// from the store; drop them wholesale.
	m.service.engine.DeleteByPrefix(listKeyPrefix)
	m.service.engine.ClearArtifacts()

	if store.NavigationStale() {
		nav := content.BuildNavigation(m.cfg.ContentRoot(), store)
		store.SetNavigation(nav, store.SlugHash())
	}
	m.service.optimizer.Schedule(content.ImageRefsUnion(store))
	return true
}
