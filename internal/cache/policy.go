package cache

import (
	"strings"

	"github.com/thypress/thypress/internal/config"
)

// CacheControl returns the Cache-Control header value for a response.
// Dynamic mode disables client caching entirely so live edits show up on
// refresh; static modes grade max-age by asset type.
func CacheControl(mode config.Mode, mimeType string) string {
	if mode == config.ModeDynamic {
		return "no-cache, no-store, must-revalidate"
	}
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = mimeType[:i]
	}
	mimeType = strings.TrimSpace(mimeType)

	switch {
	case strings.HasPrefix(mimeType, "image/"),
		strings.HasPrefix(mimeType, "font/"),
		mimeType == "text/css",
		mimeType == "application/javascript",
		mimeType == "text/javascript",
		mimeType == "application/font-woff":
		return "public, max-age=31536000, immutable"
	case mimeType == "text/html":
		return "public, max-age=3600"
	default:
		return "public, max-age=300"
	}
}
