package content

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
)

// Store is the in-memory entry map. It is read-only to request handlers;
// replacement happens on the serialized mutator path, so readers take a
// shared lock and writers take exclusion.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*Entry // keyed by slug
	byPath  map[string]string // source path -> slug
	urls    map[string]string // url -> slug, duplicate URLs are fatal
	nav     []*NavigationNode
	navHash string
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		entries: make(map[string]*Entry),
		byPath:  make(map[string]string),
		urls:    make(map[string]string),
	}
}

// Put inserts or replaces the entry under its slug. A URL already owned by
// a different slug is a fatal validation error.
func (s *Store) Put(entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if owner, taken := s.urls[entry.URL]; taken && owner != entry.Slug {
		return fmt.Errorf("duplicate URL %s: owned by %q, also produced by %q", entry.URL, owner, entry.Slug)
	}

	if prev, exists := s.entries[entry.Slug]; exists {
		delete(s.urls, prev.URL)
		delete(s.byPath, prev.Path)
	}
	s.entries[entry.Slug] = entry
	s.byPath[entry.Path] = entry.Slug
	s.urls[entry.URL] = entry.Slug
	return nil
}

// Get returns the entry for slug.
func (s *Store) Get(slug string) (*Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[slug]
	return e, ok
}

// SlugForPath returns the slug previously ingested from a source path.
func (s *Store) SlugForPath(path string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	slug, ok := s.byPath[path]
	return slug, ok
}

// Delete removes exactly one entry by slug.
func (s *Store) Delete(slug string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[slug]
	if !ok {
		return false
	}
	delete(s.entries, slug)
	delete(s.byPath, entry.Path)
	delete(s.urls, entry.URL)
	return true
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Sorted returns all entries ordered by createdAt descending; ties keep
// slug order for stability.
func (s *Store) Sorted() []*Entry {
	s.mu.RLock()
	out := make([]*Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Slug < out[j].Slug
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Neighbors returns the chronological previous and next entries around
// slug. Previous is the older entry, next the newer one.
func (s *Store) Neighbors(slug string) (prev, next *Entry) {
	sorted := s.Sorted() // newest first
	for i, e := range sorted {
		if e.Slug != slug {
			continue
		}
		if i+1 < len(sorted) {
			prev = sorted[i+1]
		}
		if i > 0 {
			next = sorted[i-1]
		}
		return prev, next
	}
	return nil, nil
}

// Related returns up to limit entries sharing tags with entry, most shared
// tags first, ties broken by recency.
func (s *Store) Related(entry *Entry, limit int) []*Entry {
	tagSet := make(map[string]bool, len(entry.Tags))
	for _, t := range entry.Tags {
		tagSet[t] = true
	}

	type scored struct {
		entry *Entry
		score int
	}
	var candidates []scored
	for _, e := range s.Sorted() {
		if e.Slug == entry.Slug {
			continue
		}
		score := 0
		for _, t := range e.Tags {
			if tagSet[t] {
				score++
			}
		}
		if score > 0 {
			candidates = append(candidates, scored{e, score})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	out := make([]*Entry, 0, limit)
	for _, c := range candidates {
		if len(out) == limit {
			break
		}
		out = append(out, c.entry)
	}
	return out
}

// ByTag returns entries carrying the tag, newest first.
func (s *Store) ByTag(tag string) []*Entry {
	return s.filter(func(e *Entry) bool { return contains(e.Tags, tag) })
}

// ByCategory returns entries in the category, newest first.
func (s *Store) ByCategory(category string) []*Entry {
	return s.filter(func(e *Entry) bool { return contains(e.Categories, category) })
}

// BySeries returns entries in the series, newest first.
func (s *Store) BySeries(series string) []*Entry {
	return s.filter(func(e *Entry) bool { return e.Series == series })
}

func (s *Store) filter(keep func(*Entry) bool) []*Entry {
	var out []*Entry
	for _, e := range s.Sorted() {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// SlugHash hashes the sorted slug set. Navigation is rebuilt iff it
// changes.
func (s *Store) SlugHash() string {
	s.mu.RLock()
	slugs := make([]string, 0, len(s.entries))
	for slug := range s.entries {
		slugs = append(slugs, slug)
	}
	s.mu.RUnlock()

	sort.Strings(slugs)
	h := sha256.New()
	for _, slug := range slugs {
		h.Write([]byte(slug))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Navigation returns the current navigation tree.
func (s *Store) Navigation() []*NavigationNode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nav
}

// SetNavigation installs a freshly built navigation tree and records the
// slug hash it was built from.
func (s *Store) SetNavigation(nav []*NavigationNode, hash string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nav = nav
	s.navHash = hash
}

// NavigationStale reports whether the slug set changed since the
// navigation tree was last built.
func (s *Store) NavigationStale() bool {
	hash := s.SlugHash()
	s.mu.RLock()
	defer s.mu.RUnlock()
	return hash != s.navHash
}
