// Package config provides configuration management for THYPRESS using the
// project-level config.json together with Viper for environment variable and
// command-line flag overrides.
//
// config.json is a flat key/value object. Recognized options are decoded
// into typed fields; unknown keys are preserved untouched in Extra and
// forwarded to the template context, so themes can define their own options
// without runtime support.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/viper"
)

// Mode is the process-wide serving mode, fixed before ingestion.
type Mode string

const (
	// ModeDynamic enables watchers, live reload and just-in-time rendering.
	ModeDynamic Mode = "dynamic"
	// ModeStatic is the batch export mode.
	ModeStatic Mode = "static"
	// ModeStaticPreview serves a completed static build without watchers.
	ModeStaticPreview Mode = "static_preview"
)

// ParseMode parses a mode selector string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeDynamic, ModeStatic, ModeStaticPreview:
		return Mode(s), nil
	case "":
		return ModeDynamic, nil
	default:
		return "", fmt.Errorf("unknown mode %q (want dynamic, static or static_preview)", s)
	}
}

// Config is the full runtime configuration of the service.
type Config struct {
	// Root is the project root directory holding config.json, content/ and
	// templates/.
	Root string
	Mode Mode
	Host string
	Port int

	Site Site
}

// Site holds the options read from config.json.
type Site struct {
	Title       string
	Description string
	URL         string
	Author      string

	ContentDir string
	SkipDirs   []string

	Theme                    string
	StrictThemeIsolation     bool
	ForceTheme               bool
	StrictTemplateValidation bool

	StrictImages    bool
	StrictPreRender bool
	EscapeTextFiles bool

	ReadingSpeed      int
	FingerprintAssets bool
	CacheMaxSize      int64

	DisablePreRender   bool
	PreCompressContent bool
	DisableLiveReload  bool

	// Index names the slug of an entry served at /.
	Index string

	AllowExternalRedirects bool
	AllowedRedirectDomains []string

	// Extra holds every config.json key not recognized above, passed through
	// to templates untouched.
	Extra map[string]interface{}
}

// DefaultSite returns the site defaults applied before config.json is read.
func DefaultSite() Site {
	return Site{
		Title:           "THYPRESS Site",
		ContentDir:      "content",
		Theme:           "default",
		ReadingSpeed:    200,
		CacheMaxSize:    50 * 1024 * 1024,
		EscapeTextFiles: true,
		Extra:           make(map[string]interface{}),
	}
}

// Load builds the runtime configuration for root. Precedence, highest to
// lowest: command-line flags (bound into viper by cmd), THYPRESS_* and PORT
// environment variables, config.json, defaults.
func Load(root string) (*Config, error) {
	site, err := LoadSite(filepath.Join(root, "config.json"))
	if err != nil {
		return nil, err
	}

	mode, err := ParseMode(viper.GetString("mode"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Root: root,
		Mode: mode,
		Host: viper.GetString("server.host"),
		Port: viper.GetInt("server.port"),
		Site: *site,
	}
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}

	if raw := os.Getenv("PORT"); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT %q: %w", raw, err)
		}
		cfg.Port = port
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadSite reads and decodes a config.json. A missing file yields the
// defaults; a malformed file is an error.
func LoadSite(path string) (*Site, error) {
	site := DefaultSite()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &site, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	for key, value := range raw {
		if !site.apply(key, value) {
			site.Extra[key] = value
		}
	}
	return &site, nil
}

// apply sets the typed field for a recognized key and reports whether the
// key was recognized.
func (s *Site) apply(key string, value interface{}) bool {
	switch key {
	case "title":
		s.Title = asString(value)
	case "description":
		s.Description = asString(value)
	case "url":
		s.URL = asString(value)
	case "author":
		s.Author = asString(value)
	case "contentDir":
		if v := asString(value); v != "" {
			s.ContentDir = v
		}
	case "skipDirs":
		s.SkipDirs = asStringSlice(value)
	case "theme":
		if v := asString(value); v != "" {
			s.Theme = v
		}
	case "strictThemeIsolation":
		s.StrictThemeIsolation = asBool(value)
	case "forceTheme":
		s.ForceTheme = asBool(value)
	case "strictTemplateValidation":
		s.StrictTemplateValidation = asBool(value)
	case "strictImages":
		s.StrictImages = asBool(value)
	case "strictPreRender":
		s.StrictPreRender = asBool(value)
	case "escapeTextFiles":
		s.EscapeTextFiles = asBool(value)
	case "readingSpeed":
		if v := asInt(value); v > 0 {
			s.ReadingSpeed = v
		}
	case "fingerprintAssets":
		s.FingerprintAssets = asBool(value)
	case "cacheMaxSize":
		if v := asInt(value); v > 0 {
			s.CacheMaxSize = int64(v)
		}
	case "disablePreRender":
		s.DisablePreRender = asBool(value)
	case "preCompressContent":
		s.PreCompressContent = asBool(value)
	case "disableLiveReload":
		s.DisableLiveReload = asBool(value)
	case "index":
		s.Index = asString(value)
	case "allowExternalRedirects":
		s.AllowExternalRedirects = asBool(value)
	case "allowedRedirectDomains":
		s.AllowedRedirectDomains = asStringSlice(value)
	default:
		return false
	}
	return true
}

// TemplateMap flattens the site config into the map handed to templates:
// recognized options under their config.json names plus every passthrough
// key.
func (s *Site) TemplateMap() map[string]interface{} {
	m := map[string]interface{}{
		"title":       s.Title,
		"description": s.Description,
		"url":         s.URL,
		"author":      s.Author,
		"theme":       s.Theme,
	}
	for k, v := range s.Extra {
		m[k] = v
	}
	return m
}

// IndexSlug returns the slug of the entry served at the site root,
// defaulting to "index".
func (c *Config) IndexSlug() string {
	return c.Site.IndexSlug()
}

// IndexSlug returns the slug of the entry served at the site root,
// defaulting to "index".
func (s *Site) IndexSlug() string {
	if s.Index != "" {
		return s.Index
	}
	return "index"
}

// ContentRoot returns the absolute content directory for cfg.
func (c *Config) ContentRoot() string {
	return filepath.Join(c.Root, c.Site.ContentDir)
}

// TemplatesRoot returns the absolute disk-theme directory for cfg.
func (c *Config) TemplatesRoot() string {
	return filepath.Join(c.Root, "templates")
}

// CacheDir returns the derivative artifact directory (.cache).
func (c *Config) CacheDir() string {
	return filepath.Join(c.Root, ".cache")
}

// ImagesDir returns the optimized image variant directory.
func (c *Config) ImagesDir() string {
	return filepath.Join(c.CacheDir(), "images")
}

// BuildDir returns the static export target directory.
func (c *Config) BuildDir() string {
	return filepath.Join(c.Root, "build")
}

// RedirectsPath returns the path of the optional redirects file.
func (c *Config) RedirectsPath() string {
	return filepath.Join(c.Root, "redirects.json")
}

// ConfigPath returns the path of the watched config file.
func (c *Config) ConfigPath() string {
	return filepath.Join(c.Root, "config.json")
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func asBool(v interface{}) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		b, _ := strconv.ParseBool(t)
		return b
	default:
		return false
	}
}

func asInt(v interface{}) int {
	switch t := v.(type) {
	case float64:
		return int(t)
	case int:
		return t
	case string:
		n, _ := strconv.Atoi(t)
		return n
	default:
		return 0
	}
}

func asStringSlice(v interface{}) []string {
	switch t := v.(type) {
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return t
	case string:
		if t == "" {
			return nil
		}
		return []string{t}
	default:
		return nil
	}
}
