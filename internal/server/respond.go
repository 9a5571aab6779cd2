package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/thypress/thypress/internal/cache"
	"github.com/thypress/thypress/internal/config"
)

// response is a fully materialized body handed to the shared writer.
type response struct {
	body []byte
	etag string
	mime string
	// slug enables the precompressed lookup in static modes; empty
	// skips that layer.
	slug string
	// status overrides the 200 default. Non-200 responses skip the
	// conditional-request check.
	status int
	// fromCache marks a server-cache hit for the counters.
	fromCache bool
}

// etagMatches implements the If-None-Match comparison against a strong
// validator, including the wildcard and comma-separated lists.
func etagMatches(header, etag string) bool {
	if header == "" {
		return false
	}
	if header == "*" {
		return true
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		candidate = strings.TrimPrefix(candidate, "W/")
		if candidate == etag {
			return true
		}
	}
	return false
}

// write emits a response with conditional-request and content-negotiation
// handling. Every response carries Content-Type, ETag, Cache-Control, and
// Vary: Accept-Encoding; compressed bodies add Content-Encoding.
func (s *Service) write(w http.ResponseWriter, r *http.Request, resp response) {
	header := w.Header()
	header.Set("Content-Type", resp.mime)
	header.Set("ETag", resp.etag)
	header.Set("Cache-Control", cache.CacheControl(s.cfg.Mode, resp.mime))
	header.Set("Vary", "Accept-Encoding")

	if resp.fromCache {
		s.metrics.ServerCacheHit()
	} else {
		s.metrics.ServerRenderHit()
	}

	status := resp.status
	if status == 0 {
		status = http.StatusOK
	}

	if status == http.StatusOK && etagMatches(r.Header.Get("If-None-Match"), resp.etag) {
		s.metrics.HTTPCacheHit()
		w.WriteHeader(http.StatusNotModified)
		return
	}

	body := resp.body
	enc := cache.EncodingIdentity
	if cache.Compressible(resp.mime) {
		wanted := cache.NegotiateEncoding(r.Header.Get("Accept-Encoding"))
		if wanted != cache.EncodingIdentity {
			// Precompressed bodies serve only in static modes; dynamic
			// mode compresses on demand through the hot cache.
			if s.cfg.Mode != config.ModeDynamic && resp.slug != "" {
				if pre, ok := s.engine.GetPrecompressed(resp.slug, wanted); ok && pre.ETag == resp.etag {
					body, enc = pre.Body, wanted
				}
			}
			if enc == cache.EncodingIdentity {
				compressed, got, err := s.engine.CompressBody(resp.body, resp.etag, wanted)
				if err == nil {
					body, enc = compressed, got
				}
			}
		}
	}
	if enc != cache.EncodingIdentity {
		header.Set("Content-Encoding", string(enc))
	}
	header.Set("Content-Length", strconv.Itoa(len(body)))

	w.WriteHeader(status)
	if r.Method != http.MethodHead {
		w.Write(body)
	}
}
