// Package cache implements the layered response cache: rendered pages,
// precompressed bodies, budgeted static files, generated artifacts, and a
// bounded hot cache for on-the-fly compression results.
package cache

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
)

// Encoding identifies a response content coding.
type Encoding string

const (
	EncodingIdentity Encoding = "identity"
	EncodingGzip     Encoding = "gzip"
	EncodingBrotli   Encoding = "br"
)

// minCompressSize is the threshold below which compression is skipped;
// tiny bodies gain nothing and often grow.
const minCompressSize = 256

// ETagFor computes the strong validator for a response body.
func ETagFor(body []byte) string {
	sum := md5.Sum(body)
	return `"` + hex.EncodeToString(sum[:]) + `"`
}

// NegotiateEncoding picks the response coding from an Accept-Encoding
// header. Brotli wins over gzip, gzip over identity; an empty or
// unrecognized header falls back to identity.
func NegotiateEncoding(acceptEncoding string) Encoding {
	hasBr, hasGzip := false, false
	for _, part := range strings.Split(acceptEncoding, ",") {
		token := strings.TrimSpace(part)
		if i := strings.IndexByte(token, ';'); i >= 0 {
			token = strings.TrimSpace(token[:i])
		}
		switch token {
		case "br":
			hasBr = true
		case "gzip", "x-gzip":
			hasGzip = true
		}
	}
	if hasBr {
		return EncodingBrotli
	}
	if hasGzip {
		return EncodingGzip
	}
	return EncodingIdentity
}

// Compress encodes body with the given coding. Identity and bodies under
// the size threshold return the input unchanged with ok=false.
func Compress(body []byte, enc Encoding) ([]byte, bool, error) {
	if enc == EncodingIdentity || len(body) < minCompressSize {
		return body, false, nil
	}

	var buf bytes.Buffer
	switch enc {
	case EncodingGzip:
		w, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
		if err != nil {
			return nil, false, err
		}
		if _, err := w.Write(body); err != nil {
			return nil, false, err
		}
		if err := w.Close(); err != nil {
			return nil, false, err
		}
	case EncodingBrotli:
		w := brotli.NewWriterLevel(&buf, brotli.BestCompression)
		if _, err := w.Write(body); err != nil {
			return nil, false, err
		}
		if err := w.Close(); err != nil {
			return nil, false, err
		}
	default:
		return nil, false, fmt.Errorf("unknown encoding %q", enc)
	}

	// A coding that grows the body is not worth the Vary complexity.
	if buf.Len() >= len(body) {
		return body, false, nil
	}
	return buf.Bytes(), true, nil
}

// Compressible reports whether a MIME type benefits from compression.
func Compressible(mimeType string) bool {
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = mimeType[:i]
	}
	mimeType = strings.TrimSpace(mimeType)
	if strings.HasPrefix(mimeType, "text/") {
		return true
	}
	switch mimeType {
	case "application/json", "application/javascript", "application/xml",
		"application/rss+xml", "application/atom+xml", "image/svg+xml",
		"application/manifest+json", "application/xhtml+xml":
		return true
	}
	return false
}
