package cache

import (
	"sync"
	"sync/atomic"
)

// MaxHotEntries bounds the hot compression cache.
const MaxHotEntries = 2000

// hotEntry is one cached compression result in the doubly-linked
// recency list.
type hotEntry struct {
	key   string
	value []byte
	prev  *hotEntry
	next  *hotEntry
}

// HotCache holds on-the-fly compression results keyed "<encoding>:<etag>".
// Eviction is approximate LRU: inserts go to the front and the back entry
// falls off at capacity, but lookups do not refresh position. Content
// changes rotate the ETag, so a stale position only costs a recompression.
type HotCache struct {
	entries map[string]*hotEntry
	mutex   sync.Mutex
	head    *hotEntry
	tail    *hotEntry

	hits      int64
	misses    int64
	evictions int64
}

// NewHotCache creates an empty hot cache.
func NewHotCache() *HotCache {
	hc := &HotCache{entries: make(map[string]*hotEntry)}
	hc.head = &hotEntry{}
	hc.tail = &hotEntry{}
	hc.head.next = hc.tail
	hc.tail.prev = hc.head
	return hc
}

// Key builds the cache key for an encoding and body validator.
func (hc *HotCache) Key(enc Encoding, etag string) string {
	return string(enc) + ":" + etag
}

// Get retrieves a cached compression result without refreshing its
// recency position.
func (hc *HotCache) Get(key string) ([]byte, bool) {
	hc.mutex.Lock()
	defer hc.mutex.Unlock()

	entry, ok := hc.entries[key]
	if !ok {
		atomic.AddInt64(&hc.misses, 1)
		return nil, false
	}
	atomic.AddInt64(&hc.hits, 1)
	return entry.value, true
}

// Set stores a compression result, evicting from the back at capacity.
func (hc *HotCache) Set(key string, value []byte) {
	hc.mutex.Lock()
	defer hc.mutex.Unlock()

	if entry, ok := hc.entries[key]; ok {
		entry.value = value
		hc.moveToFront(entry)
		return
	}

	for len(hc.entries) >= MaxHotEntries && hc.tail.prev != hc.head {
		oldest := hc.tail.prev
		hc.removeFromList(oldest)
		delete(hc.entries, oldest.key)
		atomic.AddInt64(&hc.evictions, 1)
	}

	entry := &hotEntry{key: key, value: value}
	hc.entries[key] = entry
	hc.addToFront(entry)
}

// Clear drops every entry. Statistics survive so the reporter sees
// lifetime counters.
func (hc *HotCache) Clear() {
	hc.mutex.Lock()
	defer hc.mutex.Unlock()
	hc.entries = make(map[string]*hotEntry)
	hc.head.next = hc.tail
	hc.tail.prev = hc.head
}

// Len returns the entry count.
func (hc *HotCache) Len() int {
	hc.mutex.Lock()
	defer hc.mutex.Unlock()
	return len(hc.entries)
}

// Stats returns lifetime hit, miss, and eviction counters.
func (hc *HotCache) Stats() (hits, misses, evictions int64) {
	return atomic.LoadInt64(&hc.hits), atomic.LoadInt64(&hc.misses), atomic.LoadInt64(&hc.evictions)
}

func (hc *HotCache) addToFront(entry *hotEntry) {
	entry.prev = hc.head
	entry.next = hc.head.next
	hc.head.next.prev = entry
	hc.head.next = entry
}

func (hc *HotCache) removeFromList(entry *hotEntry) {
	entry.prev.next = entry.next
	entry.next.prev = entry.prev
}

func (hc *HotCache) moveToFront(entry *hotEntry) {
	hc.removeFromList(entry)
	hc.addToFront(entry)
}
