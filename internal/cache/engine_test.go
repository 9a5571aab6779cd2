package cache

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestETagFor(t *testing.T) {
	body := []byte("<h1>Hello</h1>")
	sum := md5.Sum(body)
	assert.Equal(t, `"`+hex.EncodeToString(sum[:])+`"`, ETagFor(body))
}

func TestEngineRenderedRoundTrip(t *testing.T) {
	e := NewEngine(0)
	page := e.SetRendered("hello", []byte("<h1>Hello</h1>"))
	assert.Equal(t, ETagFor([]byte("<h1>Hello</h1>")), page.ETag)

	got, ok := e.GetRendered("hello")
	require.True(t, ok)
	assert.Equal(t, page, got)
}

func TestEngineDeleteDropsPrecompressed(t *testing.T) {
	e := NewEngine(0)
	page := e.SetRendered("hello", []byte("body"))
	e.SetPrecompressed("hello", EncodingGzip, []byte("gz"), page.ETag)
	e.SetPrecompressed("hello", EncodingBrotli, []byte("br"), page.ETag)

	e.Delete("hello")

	_, ok := e.GetRendered("hello")
	assert.False(t, ok)
	_, ok = e.GetPrecompressed("hello", EncodingGzip)
	assert.False(t, ok)
	_, ok = e.GetPrecompressed("hello", EncodingBrotli)
	assert.False(t, ok)
}

func TestEngineStaticBudgetOverflow(t *testing.T) {
	e := NewEngine(1024)
	e.SetStatic("/a.css", make([]byte, 600), "text/css")

	snapshot := e.Snapshot()
	require.Equal(t, 1, snapshot.StaticEntries)

	// The second insert would exceed the budget: the layer clears first,
	// leaving only the new entry.
	e.SetStatic("/b.css", make([]byte, 600), "text/css")

	snapshot = e.Snapshot()
	assert.Equal(t, 1, snapshot.StaticEntries)
	assert.Equal(t, int64(600), snapshot.StaticBytes)

	_, ok := e.GetStatic("/a.css")
	assert.False(t, ok)
	_, ok = e.GetStatic("/b.css")
	assert.True(t, ok)
}

func TestEngineStaticOverflowClearsHot(t *testing.T) {
	e := NewEngine(1024)
	e.hot.Set("gzip:etag", []byte("compressed"))
	e.SetStatic("/a.bin", make([]byte, 600), "application/octet-stream")
	e.SetStatic("/b.bin", make([]byte, 600), "application/octet-stream")

	assert.Equal(t, 0, e.hot.Len(), "budget overflow clears the hot layer too")
}

func TestEngineStaticOversizedUncached(t *testing.T) {
	e := NewEngine(100)
	f := e.SetStatic("/big.bin", make([]byte, 200), "application/octet-stream")
	assert.NotEmpty(t, f.ETag, "still served with a validator")
	_, ok := e.GetStatic("/big.bin")
	assert.False(t, ok)
}

func TestEngineClearAll(t *testing.T) {
	e := NewEngine(0)
	e.SetRendered("a", []byte("x"))
	e.SetPrecompressed("a", EncodingGzip, []byte("gz"), `"etag"`)
	e.SetStatic("/s", []byte("y"), "text/css")
	e.SetArtifact("rss.xml", []byte("z"), "application/rss+xml")
	e.hot.Set("gzip:e", []byte("c"))

	dropped := e.ClearAll()
	assert.Equal(t, 5, dropped)

	snapshot := e.Snapshot()
	assert.Zero(t, snapshot.RenderedEntries)
	assert.Zero(t, snapshot.PrecompressedEntries)
	assert.Zero(t, snapshot.StaticEntries)
	assert.Zero(t, snapshot.StaticBytes)
	assert.Zero(t, snapshot.ArtifactEntries)
	assert.Zero(t, snapshot.HotEntries)
}

func TestEngineDeleteByPrefix(t *testing.T) {
	e := NewEngine(0)
	e.SetRendered("!/", []byte("home"))
	e.SetRendered("!/page/2/", []byte("page2"))
	e.SetRendered("hello", []byte("entry"))

	removed := e.DeleteByPrefix("!")
	assert.Equal(t, 2, removed)

	_, ok := e.GetRendered("hello")
	assert.True(t, ok, "entries outside the prefix survive")
}

func TestEngineCompressBodyMemoizes(t *testing.T) {
	e := NewEngine(0)
	body := bytes.Repeat([]byte("compress me please "), 100)
	etag := ETagFor(body)

	first, enc, err := e.CompressBody(body, etag, EncodingGzip)
	require.NoError(t, err)
	require.Equal(t, EncodingGzip, enc)
	require.Less(t, len(first), len(body))

	second, enc, err := e.CompressBody(body, etag, EncodingGzip)
	require.NoError(t, err)
	assert.Equal(t, EncodingGzip, enc)
	assert.Equal(t, first, second, "second call serves the memoized bytes")

	hits, _, _ := e.hot.Stats()
	assert.Equal(t, int64(1), hits)
}

func TestEngineCompressBodyTinyStaysIdentity(t *testing.T) {
	e := NewEngine(0)
	body := []byte("tiny")
	got, enc, err := e.CompressBody(body, ETagFor(body), EncodingBrotli)
	require.NoError(t, err)
	assert.Equal(t, EncodingIdentity, enc)
	assert.Equal(t, body, got)
}

func TestEnginePrecompressAll(t *testing.T) {
	e := NewEngine(0)
	body := bytes.Repeat([]byte("precompress this body "), 50)
	page := e.SetRendered("post", body)

	require.NoError(t, e.PrecompressAll(context.Background()))

	gz, ok := e.GetPrecompressed("post", EncodingGzip)
	require.True(t, ok)
	assert.Equal(t, page.ETag, gz.ETag, "precompressed variants share the identity ETag")
	assert.Less(t, len(gz.Body), len(body))

	br, ok := e.GetPrecompressed("post", EncodingBrotli)
	require.True(t, ok)
	assert.Less(t, len(br.Body), len(body))
}
