package cache

import (
	"strings"
	"sync"
	"sync/atomic"
)

// Page is a cached rendered response body with its validator.
type Page struct {
	Body []byte
	ETag string
}

// Compressed is a precompressed body sharing the identity body's ETag.
type Compressed struct {
	Body []byte
	ETag string
}

// StaticFile is a cached on-disk asset.
type StaticFile struct {
	Body []byte
	MIME string
	ETag string
}

// Artifact is a generated site document such as a feed or sitemap.
type Artifact struct {
	Body []byte
	MIME string
	ETag string
}

// Stats is a snapshot of the engine's counters.
type Stats struct {
	RenderedEntries      int
	PrecompressedEntries int
	StaticEntries        int
	StaticBytes          int64
	ArtifactEntries      int
	HotEntries           int
	Hits                 int64
	Misses               int64
	HotHits              int64
	HotMisses            int64
	HotEvictions         int64
}

// Engine owns the five cache layers. Rendered pages and precompressed
// bodies are keyed by slug, static files by request path, artifacts by
// name. The static layer carries a byte budget; an insert that would
// exceed it clears the static and hot layers before storing.
type Engine struct {
	mutex sync.RWMutex

	rendered      map[string]Page
	precompressed map[string]Compressed // "<slug>:<encoding>"
	static        map[string]StaticFile
	staticBytes   int64
	staticBudget  int64
	artifacts     map[string]Artifact
	hot           *HotCache

	hits   int64
	misses int64
}

// NewEngine creates an engine with the given static-layer byte budget.
// A budget of zero or below disables the bound.
func NewEngine(staticBudget int64) *Engine {
	return &Engine{
		rendered:      make(map[string]Page),
		precompressed: make(map[string]Compressed),
		static:        make(map[string]StaticFile),
		staticBudget:  staticBudget,
		artifacts:     make(map[string]Artifact),
		hot:           NewHotCache(),
	}
}

// GetRendered looks up a rendered page by slug.
func (e *Engine) GetRendered(slug string) (Page, bool) {
	e.mutex.RLock()
	page, ok := e.rendered[slug]
	e.mutex.RUnlock()
	e.count(ok)
	return page, ok
}

// SetRendered stores a rendered body, computing its ETag.
func (e *Engine) SetRendered(slug string, body []byte) Page {
	page := Page{Body: body, ETag: ETagFor(body)}
	e.mutex.Lock()
	e.rendered[slug] = page
	e.mutex.Unlock()
	return page
}

// GetPrecompressed looks up a precompressed body for a slug and coding.
func (e *Engine) GetPrecompressed(slug string, enc Encoding) (Compressed, bool) {
	e.mutex.RLock()
	c, ok := e.precompressed[slug+":"+string(enc)]
	e.mutex.RUnlock()
	e.count(ok)
	return c, ok
}

// SetPrecompressed stores a precompressed body under the identity ETag.
func (e *Engine) SetPrecompressed(slug string, enc Encoding, body []byte, etag string) {
	e.mutex.Lock()
	e.precompressed[slug+":"+string(enc)] = Compressed{Body: body, ETag: etag}
	e.mutex.Unlock()
}

// GetStatic looks up a static file by request path.
func (e *Engine) GetStatic(path string) (StaticFile, bool) {
	e.mutex.RLock()
	f, ok := e.static[path]
	e.mutex.RUnlock()
	e.count(ok)
	return f, ok
}

// SetStatic stores a static file. Exceeding the byte budget clears the
// static and hot layers first; a file larger than the whole budget is
// returned uncached.
func (e *Engine) SetStatic(path string, body []byte, mimeType string) StaticFile {
	f := StaticFile{Body: body, MIME: mimeType, ETag: ETagFor(body)}
	size := int64(len(body))

	e.mutex.Lock()
	if e.staticBudget > 0 && size > e.staticBudget {
		e.mutex.Unlock()
		return f
	}
	if prior, ok := e.static[path]; ok {
		e.staticBytes -= int64(len(prior.Body))
	}
	if e.staticBudget > 0 && e.staticBytes+size > e.staticBudget {
		e.static = make(map[string]StaticFile)
		e.staticBytes = 0
		e.hot.Clear()
	}
	e.static[path] = f
	e.staticBytes += size
	e.mutex.Unlock()
	return f
}

// GetArtifact looks up a generated document by name.
func (e *Engine) GetArtifact(name string) (Artifact, bool) {
	e.mutex.RLock()
	a, ok := e.artifacts[name]
	e.mutex.RUnlock()
	e.count(ok)
	return a, ok
}

// SetArtifact stores a generated document, computing its ETag.
func (e *Engine) SetArtifact(name string, body []byte, mimeType string) Artifact {
	a := Artifact{Body: body, MIME: mimeType, ETag: ETagFor(body)}
	e.mutex.Lock()
	e.artifacts[name] = a
	e.mutex.Unlock()
	return a
}

// CompressBody returns body in the requested coding, consulting the hot
// cache keyed by encoding and ETag. Results that the coding cannot shrink
// come back as identity.
func (e *Engine) CompressBody(body []byte, etag string, enc Encoding) ([]byte, Encoding, error) {
	if enc == EncodingIdentity {
		return body, EncodingIdentity, nil
	}
	key := e.hot.Key(enc, etag)
	if cached, ok := e.hot.Get(key); ok {
		return cached, enc, nil
	}
	compressed, ok, err := Compress(body, enc)
	if err != nil {
		return nil, EncodingIdentity, err
	}
	if !ok {
		return body, EncodingIdentity, nil
	}
	e.hot.Set(key, compressed)
	return compressed, enc, nil
}

// Delete removes one slug's rendered and precompressed entries.
func (e *Engine) Delete(slug string) {
	e.mutex.Lock()
	delete(e.rendered, slug)
	for _, enc := range []Encoding{EncodingGzip, EncodingBrotli, EncodingIdentity} {
		delete(e.precompressed, slug+":"+string(enc))
	}
	e.mutex.Unlock()
}

// DeleteByPrefix removes rendered and precompressed entries whose key
// starts with prefix, returning the count removed.
func (e *Engine) DeleteByPrefix(prefix string) int {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	removed := 0
	for key := range e.rendered {
		if strings.HasPrefix(key, prefix) {
			delete(e.rendered, key)
			removed++
		}
	}
	for key := range e.precompressed {
		if strings.HasPrefix(key, prefix) {
			delete(e.precompressed, key)
			removed++
		}
	}
	return removed
}

// ClearRendered drops the rendered and precompressed layers.
func (e *Engine) ClearRendered() {
	e.mutex.Lock()
	e.rendered = make(map[string]Page)
	e.precompressed = make(map[string]Compressed)
	e.mutex.Unlock()
}

// ClearStatic drops the static layer and, because hot entries may belong
// to evicted static bodies, the hot layer with it.
func (e *Engine) ClearStatic() {
	e.mutex.Lock()
	e.static = make(map[string]StaticFile)
	e.staticBytes = 0
	e.hot.Clear()
	e.mutex.Unlock()
}

// ClearArtifacts drops the artifact layer.
func (e *Engine) ClearArtifacts() {
	e.mutex.Lock()
	e.artifacts = make(map[string]Artifact)
	e.mutex.Unlock()
}

// ClearAll empties every layer and returns the total entry count dropped.
func (e *Engine) ClearAll() int {
	dropped := e.hot.Len()
	e.mutex.Lock()
	dropped += len(e.rendered) + len(e.precompressed) + len(e.static) + len(e.artifacts)
	e.rendered = make(map[string]Page)
	e.precompressed = make(map[string]Compressed)
	e.static = make(map[string]StaticFile)
	e.staticBytes = 0
	e.artifacts = make(map[string]Artifact)
	e.hot.Clear()
	e.mutex.Unlock()
	return dropped
}

// Snapshot reports current entry counts and lifetime counters.
func (e *Engine) Snapshot() Stats {
	e.mutex.RLock()
	stats := Stats{
		RenderedEntries:      len(e.rendered),
		PrecompressedEntries: len(e.precompressed),
		StaticEntries:        len(e.static),
		StaticBytes:          e.staticBytes,
		ArtifactEntries:      len(e.artifacts),
	}
	e.mutex.RUnlock()
	stats.HotEntries = e.hot.Len()
	stats.Hits = atomic.LoadInt64(&e.hits)
	stats.Misses = atomic.LoadInt64(&e.misses)
	stats.HotHits, stats.HotMisses, stats.HotEvictions = e.hot.Stats()
	return stats
}

func (e *Engine) count(hit bool) {
	if hit {
		atomic.AddInt64(&e.hits, 1)
	} else {
		atomic.AddInt64(&e.misses, 1)
	}
}
