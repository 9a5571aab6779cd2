package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMode(t *testing.T) {
	cases := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"dynamic", ModeDynamic, false},
		{"static", ModeStatic, false},
		{"static_preview", ModeStaticPreview, false},
		{"", ModeDynamic, false},
		{"turbo", "", true},
	}
	for _, tc := range cases {
		got, err := ParseMode(tc.in)
		if tc.wantErr {
			assert.Error(t, err, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "config.json"), []byte(body), 0o644))
	return root
}

func TestLoadSiteDefaults(t *testing.T) {
	site, err := LoadSite(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, err)
	assert.Equal(t, "THYPRESS Site", site.Title)
	assert.Equal(t, "content", site.ContentDir)
	assert.Equal(t, "default", site.Theme)
	assert.Equal(t, 200, site.ReadingSpeed)
	assert.True(t, site.EscapeTextFiles)
}

func TestLoadSiteRecognizedKeys(t *testing.T) {
	root := writeConfig(t, `{
		"title": "My Blog",
		"url": "https://blog.example.com",
		"theme": "minimal",
		"readingSpeed": 250,
		"cacheMaxSize": 1048576,
		"forceTheme": true,
		"skipDirs": ["drafts", "private"],
		"index": "landing",
		"accentColor": "#ff00ff"
	}`)

	site, err := LoadSite(filepath.Join(root, "config.json"))
	require.NoError(t, err)
	assert.Equal(t, "My Blog", site.Title)
	assert.Equal(t, "minimal", site.Theme)
	assert.Equal(t, 250, site.ReadingSpeed)
	assert.Equal(t, int64(1048576), site.CacheMaxSize)
	assert.True(t, site.ForceTheme)
	assert.Equal(t, []string{"drafts", "private"}, site.SkipDirs)
	assert.Equal(t, "landing", site.Index)

	// Unrecognized keys pass through to templates.
	assert.Equal(t, "#ff00ff", site.Extra["accentColor"])
	assert.Equal(t, "#ff00ff", site.TemplateMap()["accentColor"])
}

func TestLoadSiteIgnoresEmptyOverrides(t *testing.T) {
	root := writeConfig(t, `{"contentDir": "", "theme": "", "readingSpeed": 0}`)
	site, err := LoadSite(filepath.Join(root, "config.json"))
	require.NoError(t, err)
	assert.Equal(t, "content", site.ContentDir)
	assert.Equal(t, "default", site.Theme)
	assert.Equal(t, 200, site.ReadingSpeed)
}

func TestLoadSiteMalformed(t *testing.T) {
	root := writeConfig(t, `{"title": `)
	_, err := LoadSite(filepath.Join(root, "config.json"))
	assert.Error(t, err)
}

func TestLoadDefaultsAndPortEnv(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, ModeDynamic, cfg.Mode)
	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, 8080, cfg.Port)

	t.Setenv("PORT", "3000")
	cfg, err = Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Port)

	t.Setenv("PORT", "not-a-number")
	_, err = Load(t.TempDir())
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	good := func() *Config {
		return &Config{Root: "/tmp/site", Mode: ModeDynamic, Host: "localhost", Port: 8080, Site: DefaultSite()}
	}

	require.NoError(t, Validate(good()))

	cfg := good()
	cfg.Port = 70000
	assert.Error(t, Validate(cfg))

	cfg = good()
	cfg.Host = "localhost;rm -rf"
	assert.Error(t, Validate(cfg))

	cfg = good()
	cfg.Site.ContentDir = "../outside"
	assert.Error(t, Validate(cfg))

	cfg = good()
	cfg.Site.Theme = "/etc"
	assert.Error(t, Validate(cfg))

	cfg = good()
	cfg.Site.SkipDirs = []string{"a/b"}
	assert.Error(t, Validate(cfg))

	cfg = good()
	cfg.Site.ReadingSpeed = 0
	assert.Error(t, Validate(cfg))
}

func TestIndexSlug(t *testing.T) {
	cfg := &Config{Site: DefaultSite()}
	assert.Equal(t, "index", cfg.IndexSlug())
	cfg.Site.Index = "landing"
	assert.Equal(t, "landing", cfg.IndexSlug())
}

func TestProjectPaths(t *testing.T) {
	cfg := &Config{Root: filepath.FromSlash("/srv/site"), Site: DefaultSite()}
	assert.Equal(t, filepath.FromSlash("/srv/site/content"), cfg.ContentRoot())
	assert.Equal(t, filepath.FromSlash("/srv/site/templates"), cfg.TemplatesRoot())
	assert.Equal(t, filepath.FromSlash("/srv/site/.cache/images"), cfg.ImagesDir())
	assert.Equal(t, filepath.FromSlash("/srv/site/build"), cfg.BuildDir())
	assert.Equal(t, filepath.FromSlash("/srv/site/redirects.json"), cfg.RedirectsPath())
}
