package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/thypress/thypress/internal/config"
)

func TestCacheControl(t *testing.T) {
	assert.Equal(t, "no-cache, no-store, must-revalidate",
		CacheControl(config.ModeDynamic, "text/html"))
	assert.Equal(t, "no-cache, no-store, must-revalidate",
		CacheControl(config.ModeDynamic, "image/png"))

	assert.Equal(t, "public, max-age=31536000, immutable",
		CacheControl(config.ModeStatic, "image/png"))
	assert.Equal(t, "public, max-age=31536000, immutable",
		CacheControl(config.ModeStatic, "text/css; charset=utf-8"))
	assert.Equal(t, "public, max-age=31536000, immutable",
		CacheControl(config.ModeStatic, "font/woff2"))
	assert.Equal(t, "public, max-age=3600",
		CacheControl(config.ModeStatic, "text/html; charset=utf-8"))
	assert.Equal(t, "public, max-age=300",
		CacheControl(config.ModeStaticPreview, "application/json"))
}
