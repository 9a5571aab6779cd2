package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Validate validates configuration values for security and correctness.
func Validate(cfg *Config) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("port %d is not in valid range 1-65535", cfg.Port)
	}

	if cfg.Host != "" {
		dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'", "\\"}
		for _, char := range dangerousChars {
			if strings.Contains(cfg.Host, char) {
				return fmt.Errorf("host contains dangerous character: %s", char)
			}
		}
	}

	if err := validateRelPath(cfg.Site.ContentDir); err != nil {
		return fmt.Errorf("contentDir: %w", err)
	}
	for _, dir := range cfg.Site.SkipDirs {
		if strings.ContainsAny(dir, "/\\") {
			return fmt.Errorf("skipDirs entries must be bare directory names, got %q", dir)
		}
	}

	if cfg.Site.Theme != "" {
		if err := validateRelPath(cfg.Site.Theme); err != nil {
			return fmt.Errorf("theme: %w", err)
		}
	}

	if cfg.Site.CacheMaxSize < 0 {
		return fmt.Errorf("cacheMaxSize must be non-negative, got %d", cfg.Site.CacheMaxSize)
	}
	if cfg.Site.ReadingSpeed < 1 {
		return fmt.Errorf("readingSpeed must be at least 1, got %d", cfg.Site.ReadingSpeed)
	}
	return nil
}

// validateRelPath rejects absolute paths and traversal so config values can
// never escape the project root.
func validateRelPath(path string) error {
	if path == "" {
		return fmt.Errorf("empty path")
	}
	cleanPath := filepath.Clean(path)
	if strings.Contains(cleanPath, "..") {
		return fmt.Errorf("path contains traversal: %s", path)
	}
	if filepath.IsAbs(cleanPath) {
		return fmt.Errorf("path must be relative: %s", path)
	}
	return nil
}
