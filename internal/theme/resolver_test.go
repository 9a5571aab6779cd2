package theme

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thypress/thypress/internal/config"
	"github.com/thypress/thypress/internal/logging"
	"github.com/thypress/thypress/internal/render"
)

func testLogger() logging.Logger {
	return logging.NewLogger(&logging.LoggerConfig{
		Level:  logging.LevelError,
		Format: "json",
		Output: io.Discard,
	})
}

func themeConfig(t *testing.T, id string) *config.Config {
	t.Helper()
	site := config.DefaultSite()
	site.Theme = id
	return &config.Config{
		Root: t.TempDir(),
		Mode: config.ModeDynamic,
		Site: site,
	}
}

func writeThemeFile(t *testing.T, cfg *config.Config, rel, body string) {
	t.Helper()
	path := filepath.Join(cfg.TemplatesRoot(), cfg.Site.Theme, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func buildTheme(t *testing.T, cfg *config.Config) *Theme {
	t.Helper()
	resolver := NewResolver(cfg, render.NewHTMLEngine(), testLogger())
	theme, err := resolver.Build(context.Background())
	require.NoError(t, err)
	return theme
}

func renderStem(t *testing.T, theme *Theme, stem string, data map[string]interface{}) string {
	t.Helper()
	tmpl, ok := theme.Lookup(stem)
	require.True(t, ok, "template %s not found", stem)
	out, err := tmpl.Render(data)
	require.NoError(t, err)
	return out
}

func TestBuildEmbeddedDefault(t *testing.T) {
	theme := buildTheme(t, themeConfig(t, DefaultThemeID))

	for _, stem := range []string{"index", "entry", "page", "404"} {
		_, ok := theme.Templates[stem]
		assert.True(t, ok, "missing template %s", stem)
	}
	for _, stem := range []string{"header", "footer"} {
		_, ok := theme.Partials[stem]
		assert.True(t, ok, "missing partial %s", stem)
	}

	asset, ok := theme.Assets["assets/style.css"]
	require.True(t, ok)
	assert.Contains(t, asset.MIME, "text/css")
	assert.False(t, asset.IsTemplated())

	assert.Equal(t, "Default", theme.Metadata.Name)
	assert.True(t, theme.Validation.OK())
}

func TestDiskLayerOverridesEmbedded(t *testing.T) {
	cfg := themeConfig(t, "custom")
	writeThemeFile(t, cfg, "index.html", `<main id="custom-index">{{ .config.title }}</main>`)

	theme := buildTheme(t, cfg)
	assert.Equal(t, "custom", theme.ActiveID)
	assert.True(t, theme.Validation.OK(), "errors: %v", theme.Validation.Errors)

	out := renderStem(t, theme, "index", map[string]interface{}{
		"config": map[string]interface{}{"title": "My Site"},
	})
	assert.Contains(t, out, `id="custom-index"`)
	assert.Contains(t, out, "My Site")

	// The fallback layer still provides everything the disk theme omits.
	_, ok := theme.Templates["404"]
	assert.True(t, ok)
	_, ok = theme.Assets["assets/style.css"]
	assert.True(t, ok)
}

func TestDiskPartialOverridesFallbackPages(t *testing.T) {
	cfg := themeConfig(t, "custom")
	writeThemeFile(t, cfg, "partials/header.html", `<header id="custom-header"></header>`)
	writeThemeFile(t, cfg, "entry.html", `{{ template "header" . }}<article>{{ safeHTML .content }}</article>`)

	theme := buildTheme(t, cfg)
	require.True(t, theme.Validation.OK(), "errors: %v", theme.Validation.Errors)

	// The fallback index template compiles against the disk header.
	out := renderStem(t, theme, "index", map[string]interface{}{
		"config": map[string]interface{}{"title": "T"},
	})
	assert.Contains(t, out, `id="custom-header"`)

	out = renderStem(t, theme, "entry", map[string]interface{}{
		"config":  map[string]interface{}{"title": "T"},
		"content": "<p>body</p>",
	})
	assert.Contains(t, out, `id="custom-header"`)
	assert.Contains(t, out, "<p>body</p>")
}

func TestUnderscorePrefixMarksPartial(t *testing.T) {
	cfg := themeConfig(t, "custom")
	writeThemeFile(t, cfg, "_sidebar.html", `<aside>links</aside>`)
	writeThemeFile(t, cfg, "index.html", `{{ template "sidebar" . }}`)

	theme := buildTheme(t, cfg)
	require.True(t, theme.Validation.OK(), "errors: %v", theme.Validation.Errors)

	_, ok := theme.Partials["sidebar"]
	assert.True(t, ok)
	_, ok = theme.Templates["sidebar"]
	assert.False(t, ok, "partials must not register as page templates")

	out := renderStem(t, theme, "index", nil)
	assert.Contains(t, out, "<aside>links</aside>")
}

func TestFrontMatterPartialFlag(t *testing.T) {
	cfg := themeConfig(t, "custom")
	writeThemeFile(t, cfg, "card.html", "---\npartial: true\n---\n<div class=\"card\"></div>")
	writeThemeFile(t, cfg, "index.html", `{{ template "card" . }}`)

	theme := buildTheme(t, cfg)
	require.True(t, theme.Validation.OK(), "errors: %v", theme.Validation.Errors)

	_, ok := theme.Partials["card"]
	assert.True(t, ok)
	out := renderStem(t, theme, "index", nil)
	assert.Contains(t, out, `class="card"`)
}

func TestSingleFileDiskTheme(t *testing.T) {
	cfg := themeConfig(t, "solo")
	writeThemeFile(t, cfg, "index.html", `<main id="solo">{{ .title }}</main>`)
	writeThemeFile(t, cfg, "404.html", `not found`)

	theme := buildTheme(t, cfg)

	data := map[string]interface{}{"title": "Hello"}
	index := renderStem(t, theme, "index", data)
	assert.Equal(t, index, renderStem(t, theme, "entry", data))
	assert.Equal(t, index, renderStem(t, theme, "page", data))
}

func TestSingleFileDeclaredAliasesHandles(t *testing.T) {
	cfg := themeConfig(t, "solo")
	writeThemeFile(t, cfg, "theme.json", `{"name":"Solo","version":"1.0.0","singleFile":true,"handles":["docs"]}`)
	writeThemeFile(t, cfg, "index.html", `<main id="solo"></main>`)
	writeThemeFile(t, cfg, "entry.html", `<article id="ignored"></article>`)

	theme := buildTheme(t, cfg)
	assert.Equal(t, "Solo", theme.Metadata.Name)

	// A declared single-file theme routes every page type through index,
	// even when the layer ships other page templates.
	for _, stem := range []string{"entry", "page", "docs"} {
		out := renderStem(t, theme, stem, nil)
		assert.Contains(t, out, `id="solo"`, "stem %s", stem)
	}
}

func TestEntryTemplateDisablesSingleFileInference(t *testing.T) {
	cfg := themeConfig(t, "custom")
	writeThemeFile(t, cfg, "index.html", `<main id="list"></main>`)
	writeThemeFile(t, cfg, "entry.html", `<article id="entry"></article>`)

	theme := buildTheme(t, cfg)
	assert.Contains(t, renderStem(t, theme, "entry", nil), `id="entry"`)
	assert.Contains(t, renderStem(t, theme, "index", nil), `id="list"`)
}

func TestStrictIsolationSkipsFallback(t *testing.T) {
	cfg := themeConfig(t, "custom")
	cfg.Site.StrictThemeIsolation = true
	writeThemeFile(t, cfg, "index.html", `<main></main>`)

	theme := buildTheme(t, cfg)
	assert.True(t, theme.Validation.OK(), "errors: %v", theme.Validation.Errors)
	_, ok := theme.Templates["404"]
	assert.False(t, ok, "fallback templates must not leak under strict isolation")
	_, ok = theme.Partials["header"]
	assert.False(t, ok)
}

func TestValidationMissingIndex(t *testing.T) {
	cfg := themeConfig(t, "custom")
	cfg.Site.StrictThemeIsolation = true
	writeThemeFile(t, cfg, "entry.html", `<article></article>`)

	theme := buildTheme(t, cfg)
	require.False(t, theme.Validation.OK())
	assert.Contains(t, theme.Validation.Errors[0], "missing required template index.html")
}

func TestValidationUnknownPartial(t *testing.T) {
	cfg := themeConfig(t, "custom")
	cfg.Site.StrictThemeIsolation = true
	writeThemeFile(t, cfg, "index.html", `{{ template "missing" . }}`)

	theme := buildTheme(t, cfg)
	require.False(t, theme.Validation.OK())
	assert.Contains(t, theme.Validation.Errors[0], `unknown partial "missing"`)
}

func TestValidationRequires(t *testing.T) {
	t.Run("satisfied", func(t *testing.T) {
		cfg := themeConfig(t, "custom")
		writeThemeFile(t, cfg, "theme.json", `{"name":"C","version":"1.0.0","requires":["toc@1.0.0","search"]}`)
		writeThemeFile(t, cfg, "index.html", `<main></main>`)
		theme := buildTheme(t, cfg)
		assert.True(t, theme.Validation.OK(), "errors: %v", theme.Validation.Errors)
	})

	t.Run("version too new", func(t *testing.T) {
		cfg := themeConfig(t, "custom")
		writeThemeFile(t, cfg, "theme.json", `{"name":"C","version":"1.0.0","requires":["toc@99.0.0"]}`)
		writeThemeFile(t, cfg, "index.html", `<main></main>`)
		theme := buildTheme(t, cfg)
		require.False(t, theme.Validation.OK())
		assert.Contains(t, theme.Validation.Errors[0], "toc@99.0.0")
	})

	t.Run("unknown feature", func(t *testing.T) {
		cfg := themeConfig(t, "custom")
		writeThemeFile(t, cfg, "theme.json", `{"name":"C","version":"1.0.0","requires":["holograms"]}`)
		writeThemeFile(t, cfg, "index.html", `<main></main>`)
		theme := buildTheme(t, cfg)
		require.False(t, theme.Validation.OK())
		assert.Contains(t, theme.Validation.Errors[0], `unknown feature "holograms"`)
	})
}

func TestTemplatedAsset(t *testing.T) {
	cfg := themeConfig(t, "custom")
	writeThemeFile(t, cfg, "index.html", `<main></main>`)
	writeThemeFile(t, cfg, "assets/theme.css", `:root { --title: "{{ .config.title }}"; }`)
	writeThemeFile(t, cfg, "assets/plain.css", `body { margin: 0; }`)

	theme := buildTheme(t, cfg)

	templated, ok := theme.Assets["assets/theme.css"]
	require.True(t, ok)
	assert.True(t, templated.IsTemplated())

	plain, ok := theme.Assets["assets/plain.css"]
	require.True(t, ok)
	assert.False(t, plain.IsTemplated())
	assert.Equal(t, []byte(`body { margin: 0; }`), plain.Bytes)
}

func TestFingerprintAssets(t *testing.T) {
	cfg := themeConfig(t, "custom")
	cfg.Site.FingerprintAssets = true
	writeThemeFile(t, cfg, "index.html", `<main></main>`)
	writeThemeFile(t, cfg, "assets/site.css", `body { margin: 0; }`)

	theme := buildTheme(t, cfg)

	served, ok := theme.AssetURLs["/assets/site.css"]
	require.True(t, ok)
	assert.NotEqual(t, "/assets/site.css", served)
	assert.Regexp(t, `^/assets/site\.[0-9a-f]{8}\.css$`, served)

	// Both names resolve to the same bytes.
	_, ok = theme.Assets["assets/site.css"]
	assert.True(t, ok)
	_, ok = theme.Assets[strings.TrimPrefix(served, "/")]
	assert.True(t, ok)
}

func TestAssetURLsIdentityWithoutFingerprinting(t *testing.T) {
	cfg := themeConfig(t, "custom")
	writeThemeFile(t, cfg, "index.html", `<main></main>`)
	writeThemeFile(t, cfg, "assets/site.css", `body { margin: 0; }`)

	theme := buildTheme(t, cfg)
	assert.Equal(t, "/assets/site.css", theme.AssetURLs["/assets/site.css"])
}

func TestHiddenFilesSkipped(t *testing.T) {
	cfg := themeConfig(t, "custom")
	writeThemeFile(t, cfg, "index.html", `<main></main>`)
	writeThemeFile(t, cfg, ".git/config.html", `nope`)
	writeThemeFile(t, cfg, ".hidden.html", `nope`)

	theme := buildTheme(t, cfg)
	_, ok := theme.Templates["config"]
	assert.False(t, ok)
	_, ok = theme.Templates[".hidden"]
	assert.False(t, ok)
}

func TestSyntaxErrorSkippedUnlessStrict(t *testing.T) {
	cfg := themeConfig(t, "custom")
	writeThemeFile(t, cfg, "index.html", `{{ if .x }}unterminated`)

	theme := buildTheme(t, cfg)
	assert.NotEmpty(t, theme.Validation.Warnings)
	// The broken disk file shadows the fallback index, so the skip leaves
	// the theme without one and validation reports it.
	_, ok := theme.Templates["index"]
	assert.False(t, ok)
	assert.Contains(t, theme.Validation.Errors[0], "missing required template index.html")

	cfg.Site.StrictTemplateValidation = true
	resolver := NewResolver(cfg, render.NewHTMLEngine(), testLogger())
	_, err := resolver.Build(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "index.html")
}
