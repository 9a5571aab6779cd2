package cache

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHotCacheBound(t *testing.T) {
	hc := NewHotCache()
	for i := 0; i <= MaxHotEntries; i++ {
		hc.Set(fmt.Sprintf("gzip:%d", i), []byte("x"))
	}

	assert.Equal(t, MaxHotEntries, hc.Len())

	// The very first insert fell off; the most recent MaxHotEntries stayed.
	_, ok := hc.Get("gzip:0")
	assert.False(t, ok, "oldest key evicted")
	_, ok = hc.Get("gzip:1")
	assert.True(t, ok)
	_, ok = hc.Get(fmt.Sprintf("gzip:%d", MaxHotEntries))
	assert.True(t, ok)
}

func TestHotCacheLookupDoesNotRefresh(t *testing.T) {
	hc := NewHotCache()
	for i := 0; i < MaxHotEntries; i++ {
		hc.Set(fmt.Sprintf("br:%d", i), []byte("x"))
	}

	// Touching the oldest entry must not save it from eviction.
	_, ok := hc.Get("br:0")
	require.True(t, ok)
	hc.Set("br:new", []byte("y"))

	_, ok = hc.Get("br:0")
	assert.False(t, ok, "lookup does not refresh recency")
}

func TestHotCacheUpdateMovesToFront(t *testing.T) {
	hc := NewHotCache()
	for i := 0; i < MaxHotEntries; i++ {
		hc.Set(fmt.Sprintf("gzip:%d", i), []byte("x"))
	}

	// Re-inserting the oldest key refreshes it.
	hc.Set("gzip:0", []byte("updated"))
	hc.Set("gzip:overflow", []byte("z"))

	value, ok := hc.Get("gzip:0")
	require.True(t, ok)
	assert.Equal(t, []byte("updated"), value)
	_, ok = hc.Get("gzip:1")
	assert.False(t, ok, "second-oldest entry evicted instead")
}

func TestHotCacheClearKeepsStats(t *testing.T) {
	hc := NewHotCache()
	hc.Set("gzip:a", []byte("x"))
	hc.Get("gzip:a")
	hc.Get("gzip:missing")

	hc.Clear()
	assert.Equal(t, 0, hc.Len())
	hits, misses, _ := hc.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
}

func TestHotCacheBoundProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)

	properties.Property("size never exceeds the bound", prop.ForAll(
		func(keys []string) bool {
			hc := NewHotCache()
			for _, key := range keys {
				hc.Set(key, []byte("v"))
				if hc.Len() > MaxHotEntries {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.AlphaString()),
	))

	properties.Property("set then get round-trips", prop.ForAll(
		func(key string, value []byte) bool {
			hc := NewHotCache()
			hc.Set(key, value)
			got, ok := hc.Get(key)
			return ok && string(got) == string(value)
		},
		gen.AlphaString(),
		gen.SliceOf(gen.UInt8()),
	))

	properties.TestingRun(t)
}
