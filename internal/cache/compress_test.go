package cache

import (
	"bytes"
	"compress/gzip"
	"io"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNegotiateEncoding(t *testing.T) {
	tests := []struct {
		header   string
		expected Encoding
	}{
		{"br, gzip", EncodingBrotli},
		{"gzip, br", EncodingBrotli},
		{"gzip", EncodingGzip},
		{"gzip;q=0.8, deflate", EncodingGzip},
		{"x-gzip", EncodingGzip},
		{"deflate", EncodingIdentity},
		{"", EncodingIdentity},
		{"br;q=1.0, gzip;q=0.5", EncodingBrotli},
		{"identity", EncodingIdentity},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, NegotiateEncoding(tt.header), "header %q", tt.header)
	}
}

func TestCompressGzipRoundTrip(t *testing.T) {
	body := bytes.Repeat([]byte("some compressible text "), 50)
	compressed, ok, err := Compress(body, EncodingGzip)
	require.NoError(t, err)
	require.True(t, ok)
	require.Less(t, len(compressed), len(body))

	r, err := gzip.NewReader(bytes.NewReader(compressed))
	require.NoError(t, err)
	decoded, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, body, decoded)
}

func TestCompressBrotliRoundTrip(t *testing.T) {
	body := bytes.Repeat([]byte("some compressible text "), 50)
	compressed, ok, err := Compress(body, EncodingBrotli)
	require.NoError(t, err)
	require.True(t, ok)
	require.Less(t, len(compressed), len(body))

	decoded, err := io.ReadAll(brotli.NewReader(bytes.NewReader(compressed)))
	require.NoError(t, err)
	assert.Equal(t, body, decoded)
}

func TestCompressSkipsSmallBodies(t *testing.T) {
	body := []byte("short")
	got, ok, err := Compress(body, EncodingGzip)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, body, got)
}

func TestCompressIdentity(t *testing.T) {
	body := bytes.Repeat([]byte("x"), 1000)
	got, ok, err := Compress(body, EncodingIdentity)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, body, got)
}

func TestCompressible(t *testing.T) {
	assert.True(t, Compressible("text/html; charset=utf-8"))
	assert.True(t, Compressible("application/json"))
	assert.True(t, Compressible("image/svg+xml"))
	assert.True(t, Compressible("application/rss+xml"))
	assert.False(t, Compressible("image/png"))
	assert.False(t, Compressible("font/woff2"))
	assert.False(t, Compressible("application/octet-stream"))
}
