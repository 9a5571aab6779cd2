package theme

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thypress/thypress/internal/config"
	"github.com/thypress/thypress/internal/render"
)

func newManager(cfg *config.Config) *Manager {
	log := testLogger()
	return NewManager(cfg, NewResolver(cfg, render.NewHTMLEngine(), log), log)
}

func TestManagerLoad(t *testing.T) {
	cfg := themeConfig(t, "custom")
	writeThemeFile(t, cfg, "index.html", `<main id="v1"></main>`)

	m := newManager(cfg)
	require.NoError(t, m.Load(context.Background()))
	assert.Equal(t, StateReady, m.State())

	theme, err := m.Current()
	require.NoError(t, err)
	assert.Contains(t, renderStem(t, theme, "index", nil), `id="v1"`)
}

func TestManagerLoadFailsOnInvalidTheme(t *testing.T) {
	cfg := themeConfig(t, "custom")
	cfg.Site.StrictThemeIsolation = true
	writeThemeFile(t, cfg, "entry.html", `<article></article>`)

	m := newManager(cfg)
	err := m.Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed validation")

	_, err = m.Current()
	assert.ErrorIs(t, err, ErrNoTheme)
}

func TestManagerForceThemeInstallsBroken(t *testing.T) {
	cfg := themeConfig(t, "custom")
	cfg.Site.StrictThemeIsolation = true
	cfg.Site.ForceTheme = true
	writeThemeFile(t, cfg, "entry.html", `<article></article>`)

	m := newManager(cfg)
	require.NoError(t, m.Load(context.Background()))
	assert.Equal(t, StateBroken, m.State())

	theme, err := m.Current()
	require.NoError(t, err)
	assert.False(t, theme.Validation.OK())
}

func TestManagerReloadSwapsTheme(t *testing.T) {
	cfg := themeConfig(t, "custom")
	writeThemeFile(t, cfg, "index.html", `<main id="v1"></main>`)

	m := newManager(cfg)
	require.NoError(t, m.Load(context.Background()))

	writeThemeFile(t, cfg, "index.html", `<main id="v2"></main>`)
	require.NoError(t, m.Reload(context.Background()))
	assert.Equal(t, StateReady, m.State())

	theme, err := m.Current()
	require.NoError(t, err)
	assert.Contains(t, renderStem(t, theme, "index", nil), `id="v2"`)
}

func TestManagerReloadKeepsPriorOnValidationFailure(t *testing.T) {
	cfg := themeConfig(t, "custom")
	cfg.Site.StrictThemeIsolation = true
	writeThemeFile(t, cfg, "index.html", `<main id="v1"></main>`)

	m := newManager(cfg)
	require.NoError(t, m.Load(context.Background()))

	// Remove index so the rebuild fails validation.
	require.NoError(t, os.Remove(filepath.Join(cfg.TemplatesRoot(), "custom", "index.html")))
	writeThemeFile(t, cfg, "entry.html", `<article></article>`)

	err := m.Reload(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateReady, m.State())

	theme, cerr := m.Current()
	require.NoError(t, cerr)
	assert.True(t, theme.Validation.OK())
	assert.Contains(t, renderStem(t, theme, "index", nil), `id="v1"`)
}

func TestManagerReloadForceThemeInstallsBroken(t *testing.T) {
	cfg := themeConfig(t, "custom")
	cfg.Site.StrictThemeIsolation = true
	cfg.Site.ForceTheme = true
	writeThemeFile(t, cfg, "index.html", `<main id="v1"></main>`)

	m := newManager(cfg)
	require.NoError(t, m.Load(context.Background()))
	assert.Equal(t, StateReady, m.State())

	require.NoError(t, os.Remove(filepath.Join(cfg.TemplatesRoot(), "custom", "index.html")))
	writeThemeFile(t, cfg, "entry.html", `<article></article>`)

	require.NoError(t, m.Reload(context.Background()))
	assert.Equal(t, StateBroken, m.State())
}
