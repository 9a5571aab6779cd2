// Package server routes requests across the content store, theme, cache
// layers, and redirect table, and drives the live-reload stream.
package server

import (
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/thypress/thypress/internal/cache"
	"github.com/thypress/thypress/internal/config"
	"github.com/thypress/thypress/internal/content"
	"github.com/thypress/thypress/internal/logging"
	"github.com/thypress/thypress/internal/meta"
	"github.com/thypress/thypress/internal/redirect"
	"github.com/thypress/thypress/internal/render"
	"github.com/thypress/thypress/internal/theme"
)

// ReloadPath is the live-reload endpoint, active in dynamic mode.
const ReloadPath = "/__thypress/reload"

// adminPrefix reserves the administrative API namespace; handlers are
// pluggable and opaque to the router.
const adminPrefix = "/__thypress/api/"

// listKeyPrefix namespaces rendered-list cache keys away from entry
// slugs so targeted invalidation can drop all lists at once.
const listKeyPrefix = "!"

// notFoundFallback serves when the theme lacks a 404 template.
const notFoundFallback = `<!DOCTYPE html>
<html><head><title>404</title></head>
<body><h1>404</h1><p>Page not found.</p></body></html>`

// Service is the HTTP surface. Request handlers read shared state
// through snapshots; all mutation is funneled through the Mutator.
type Service struct {
	cfg       *config.Config
	log       logging.Logger
	store     *content.Store
	themes    *theme.Manager
	engine    *cache.Engine
	pipeline  *content.Pipeline
	optimizer *content.Optimizer
	hub       *ReloadHub
	metrics   *Metrics

	// Admin is an optional handler mounted under the administrative
	// prefix.
	Admin http.Handler

	mu        sync.RWMutex
	redirects *redirect.Table
	site      *config.Site
}

// NewService assembles the request router.
func NewService(
	cfg *config.Config,
	log logging.Logger,
	store *content.Store,
	themes *theme.Manager,
	engine *cache.Engine,
	pipeline *content.Pipeline,
	optimizer *content.Optimizer,
	hub *ReloadHub,
	redirects *redirect.Table,
) *Service {
	site := cfg.Site
	return &Service{
		cfg:       cfg,
		log:       log.WithComponent("server"),
		store:     store,
		themes:    themes,
		engine:    engine,
		pipeline:  pipeline,
		optimizer: optimizer,
		hub:       hub,
		metrics:   NewMetrics(),
		redirects: redirects,
		site:      &site,
	}
}

// Metrics exposes the counters for the reporter goroutine.
func (s *Service) Metrics() *Metrics { return s.metrics }

// SetRedirects swaps the redirect table after a redirects-file reload.
func (s *Service) SetRedirects(table *redirect.Table) {
	s.mu.Lock()
	s.redirects = table
	s.mu.Unlock()
}

func (s *Service) redirectTable() *redirect.Table {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.redirects
}

// SetSite swaps the site configuration after a config-file reload.
// Request handlers read through siteConfig so they never observe a
// half-written struct.
func (s *Service) SetSite(site *config.Site) {
	s.mu.Lock()
	s.site = site
	s.mu.Unlock()
}

func (s *Service) siteConfig() *config.Site {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.site
}

// ServeHTTP evaluates the routing table in order; first match wins.
func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	s.metrics.Request()
	defer func() { s.metrics.Observe(time.Since(start)) }()

	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not supported", http.StatusBadRequest)
		return
	}

	reqPath := path.Clean(r.URL.Path)
	if reqPath != "/" && strings.HasSuffix(r.URL.Path, "/") {
		reqPath += "/"
	}
	if strings.Contains(reqPath, "..") {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	// 1. Live-reload stream.
	if s.liveReload() && reqPath == ReloadPath {
		s.hub.ServeHTTP(w, r)
		return
	}

	// 2. Administrative namespace.
	if strings.HasPrefix(reqPath, adminPrefix) {
		if s.Admin != nil {
			s.Admin.ServeHTTP(w, r)
			return
		}
		s.serveNotFound(w, r)
		return
	}

	activeTheme, err := s.themes.Current()
	if err != nil {
		http.Error(w, "no theme loaded", http.StatusInternalServerError)
		return
	}

	// 3. Theme-root asset passthrough.
	if s.serveThemeAsset(w, r, activeTheme, strings.TrimPrefix(reqPath, "/")) {
		return
	}

	// 4. Redirects.
	if match, ok := s.redirectTable().Lookup(reqPath); ok {
		if allowed, reason := redirect.AllowExternal(s.siteConfig(), match.Location); !allowed {
			s.log.Warn(r.Context(), nil, "blocked redirect", "path", reqPath, "reason", reason)
			s.serveNotFound(w, r)
			return
		}
		http.Redirect(w, r, match.Location, match.StatusCode)
		return
	}

	// 5. Optimized image variants.
	if strings.HasPrefix(reqPath, content.VariantURLBase) {
		s.serveFile(w, r, reqPath, filepath.Join(s.optimizer.Dir(), path.Base(reqPath)))
		return
	}

	// 6. Theme /assets/ prefix.
	if strings.HasPrefix(reqPath, "/assets/") {
		if s.serveThemeAsset(w, r, activeTheme, strings.TrimPrefix(reqPath, "/")) {
			return
		}
	}

	// 7. Meta documents.
	switch reqPath {
	case "/" + meta.NameSearch, "/" + meta.NameRSS, "/" + meta.NameSitemap,
		"/" + meta.NameRobots, "/" + meta.NameLLMs:
		s.serveArtifact(w, r, strings.TrimPrefix(reqPath, "/"))
		return
	}

	// 8. Taxonomies.
	for prefix, pageType := range map[string]render.PageType{
		"/tag/":      render.PageTag,
		"/category/": render.PageCategory,
		"/series/":   render.PageSeries,
	} {
		if term, ok := taxonomyTerm(reqPath, prefix); ok {
			s.serveTaxonomy(w, r, activeTheme, pageType, term, reqPath)
			return
		}
	}

	// 9. Pagination.
	if page, ok := paginationPage(reqPath); ok {
		if page == 1 {
			http.Redirect(w, r, "/", http.StatusMovedPermanently)
			return
		}
		s.serveIndex(w, r, activeTheme, page, reqPath)
		return
	}

	// 10. Home.
	if reqPath == "/" {
		if entry, ok := s.store.Get(s.siteConfig().IndexSlug()); ok {
			s.serveEntry(w, r, activeTheme, entry)
			return
		}
		s.serveIndex(w, r, activeTheme, 1, reqPath)
		return
	}

	// 11. Entry by slug.
	slug := strings.Trim(reqPath, "/")
	if entry, ok := s.store.Get(slug); ok {
		if entry.URL != reqPath {
			http.Redirect(w, r, entry.URL, http.StatusMovedPermanently)
			return
		}
		s.serveEntry(w, r, activeTheme, entry)
		return
	}

	// 12. Content-root static passthrough.
	if s.serveContentFile(w, r, reqPath) {
		return
	}

	// 13. Not found.
	s.serveNotFound(w, r)
}

// liveReload reports whether the reload stream and script injection are
// active for this process.
func (s *Service) liveReload() bool {
	return s.cfg.Mode == config.ModeDynamic && !s.siteConfig().DisableLiveReload
}

// contextBuilder snapshots the template context inputs against the
// active theme.
func (s *Service) contextBuilder(activeTheme *theme.Theme) *render.ContextBuilder {
	return &render.ContextBuilder{
		Site:      s.siteConfig().TemplateMap(),
		ThemeMeta: activeTheme.Metadata,
		Store:     s.store,
		AssetURLs: activeTheme.AssetURLs,
	}
}

// renderHTML runs a template, applies live-reload injection in dynamic
// mode, and caches the result under key.
func (s *Service) renderHTML(r *http.Request, key string, tmpl render.Template, ctx map[string]interface{}) (cache.Page, error) {
	if s.themes.State() == theme.StateBroken {
		s.log.Warn(r.Context(), nil, "rendering with a theme that failed validation")
	}
	out, err := tmpl.Render(ctx)
	if err != nil {
		return cache.Page{}, err
	}
	body := []byte(out)
	if s.liveReload() {
		body = injectReload(body)
	}
	return s.engine.SetRendered(key, body), nil
}

func (s *Service) serveEntry(w http.ResponseWriter, r *http.Request, activeTheme *theme.Theme, entry *content.Entry) {
	if page, ok := s.engine.GetRendered(entry.Slug); ok {
		s.write(w, r, response{body: page.Body, etag: page.ETag, mime: "text/html; charset=utf-8", slug: entry.Slug, fromCache: true})
		return
	}

	// Complete HTML documents bypass the theme.
	if entry.HasFullDocument() {
		body := []byte(entry.RenderedFull)
		if s.liveReload() {
			body = injectReload(body)
		}
		page := s.engine.SetRendered(entry.Slug, body)
		s.write(w, r, response{body: page.Body, etag: page.ETag, mime: "text/html; charset=utf-8", slug: entry.Slug})
		return
	}

	tmpl, name := activeTheme.SelectForEntry(entry)
	if tmpl == nil {
		s.serveError(w, r, fmt.Errorf("no template for entry %s", entry.Slug))
		return
	}
	ctx := s.contextBuilder(activeTheme).Entry(entry)
	page, err := s.renderHTML(r, entry.Slug, tmpl, ctx)
	if err != nil {
		s.serveError(w, r, fmt.Errorf("template %s: %w", name, err))
		return
	}
	s.write(w, r, response{body: page.Body, etag: page.ETag, mime: "text/html; charset=utf-8", slug: entry.Slug})
}

func (s *Service) serveIndex(w http.ResponseWriter, r *http.Request, activeTheme *theme.Theme, page int, reqPath string) {
	entries := s.store.Sorted()
	if page > render.TotalPages(len(entries)) {
		s.serveNotFound(w, r)
		return
	}

	key := listKeyPrefix + reqPath
	if cached, ok := s.engine.GetRendered(key); ok {
		s.write(w, r, response{body: cached.Body, etag: cached.ETag, mime: "text/html; charset=utf-8", slug: key, fromCache: true})
		return
	}

	tmpl, name := activeTheme.SelectForList("index")
	if tmpl == nil {
		s.serveError(w, r, fmt.Errorf("no index template"))
		return
	}
	ctx := s.contextBuilder(activeTheme).Index(entries, page)
	rendered, err := s.renderHTML(r, key, tmpl, ctx)
	if err != nil {
		s.serveError(w, r, fmt.Errorf("template %s: %w", name, err))
		return
	}
	s.write(w, r, response{body: rendered.Body, etag: rendered.ETag, mime: "text/html; charset=utf-8", slug: key})
}

func (s *Service) serveTaxonomy(w http.ResponseWriter, r *http.Request, activeTheme *theme.Theme, pageType render.PageType, term, reqPath string) {
	entries, display := s.taxonomyEntries(pageType, term)
	if len(entries) == 0 {
		s.serveNotFound(w, r)
		return
	}

	key := listKeyPrefix + reqPath
	if cached, ok := s.engine.GetRendered(key); ok {
		s.write(w, r, response{body: cached.Body, etag: cached.ETag, mime: "text/html; charset=utf-8", slug: key, fromCache: true})
		return
	}

	tmpl, name := activeTheme.SelectForList(string(pageType), "index")
	if tmpl == nil {
		s.serveError(w, r, fmt.Errorf("no template for %s listing", pageType))
		return
	}
	ctx := s.contextBuilder(activeTheme).Taxonomy(pageType, display, entries)
	rendered, err := s.renderHTML(r, key, tmpl, ctx)
	if err != nil {
		s.serveError(w, r, fmt.Errorf("template %s: %w", name, err))
		return
	}
	s.write(w, r, response{body: rendered.Body, etag: rendered.ETag, mime: "text/html; charset=utf-8", slug: key})
}

// taxonomyEntries matches a URL term against raw and slugified values.
func (s *Service) taxonomyEntries(pageType render.PageType, term string) ([]*content.Entry, string) {
	match := func(value string) bool {
		return value == term || content.Slugify(value) == term
	}
	display := term
	var out []*content.Entry
	for _, e := range s.store.Sorted() {
		var values []string
		switch pageType {
		case render.PageTag:
			values = e.Tags
		case render.PageCategory:
			values = e.Categories
		case render.PageSeries:
			if e.Series != "" {
				values = []string{e.Series}
			}
		}
		for _, v := range values {
			if match(v) {
				display = v
				out = append(out, e)
				break
			}
		}
	}
	return out, display
}

func (s *Service) serveArtifact(w http.ResponseWriter, r *http.Request, name string) {
	if artifact, ok := s.engine.GetArtifact(name); ok {
		s.write(w, r, response{body: artifact.Body, etag: artifact.ETag, mime: artifact.MIME, fromCache: true})
		return
	}

	gen := meta.NewGenerator(s.siteConfig(), s.store)
	var body []byte
	var err error
	switch name {
	case meta.NameSearch:
		body, err = gen.SearchIndex()
	case meta.NameRSS:
		body, err = gen.RSS()
	case meta.NameSitemap:
		body, err = gen.Sitemap()
	case meta.NameRobots:
		body = gen.Robots()
	case meta.NameLLMs:
		body = gen.LLMs()
	}
	if err != nil {
		s.serveError(w, r, err)
		return
	}
	artifact := s.engine.SetArtifact(name, body, meta.MIMEFor(name))
	s.write(w, r, response{body: artifact.Body, etag: artifact.ETag, mime: artifact.MIME})
}

// serveThemeAsset serves a non-HTML file from the composed theme,
// rendering templated assets against the site config.
func (s *Service) serveThemeAsset(w http.ResponseWriter, r *http.Request, activeTheme *theme.Theme, key string) bool {
	asset, ok := activeTheme.Assets[key]
	if !ok {
		return false
	}
	if asset.IsTemplated() {
		out, err := asset.Template.Render(map[string]interface{}{
			"config": s.siteConfig().TemplateMap(),
			"theme":  activeTheme.Metadata,
		})
		if err != nil {
			s.serveError(w, r, err)
			return true
		}
		body := []byte(out)
		s.write(w, r, response{body: body, etag: cache.ETagFor(body), mime: asset.MIME})
		return true
	}
	s.write(w, r, response{body: asset.Bytes, etag: cache.ETagFor(asset.Bytes), mime: asset.MIME, fromCache: true})
	return true
}

// serveFile serves a disk file through the static cache layer.
func (s *Service) serveFile(w http.ResponseWriter, r *http.Request, key, diskPath string) {
	if cached, ok := s.engine.GetStatic(key); ok {
		s.write(w, r, response{body: cached.Body, etag: cached.ETag, mime: cached.MIME, fromCache: true})
		return
	}
	data, err := os.ReadFile(diskPath)
	if err != nil {
		s.serveNotFound(w, r)
		return
	}
	mimeType := mime.TypeByExtension(filepath.Ext(diskPath))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	cached := s.engine.SetStatic(key, data, mimeType)
	s.write(w, r, response{body: cached.Body, etag: cached.ETag, mime: cached.MIME})
}

// serveContentFile handles static passthrough from the content root,
// refusing paths that escape it.
func (s *Service) serveContentFile(w http.ResponseWriter, r *http.Request, reqPath string) bool {
	unescaped, err := url.PathUnescape(reqPath)
	if err != nil {
		return false
	}
	rel := filepath.FromSlash(strings.TrimPrefix(path.Clean(unescaped), "/"))
	diskPath := filepath.Join(s.cfg.ContentRoot(), rel)
	if !strings.HasPrefix(diskPath, filepath.Clean(s.cfg.ContentRoot())+string(os.PathSeparator)) {
		return false
	}
	info, err := os.Stat(diskPath)
	if err != nil || info.IsDir() {
		return false
	}
	s.serveFile(w, r, reqPath, diskPath)
	return true
}

func (s *Service) serveNotFound(w http.ResponseWriter, r *http.Request) {
	body := []byte(notFoundFallback)
	if activeTheme, err := s.themes.Current(); err == nil {
		if tmpl, ok := activeTheme.Lookup("404"); ok {
			if out, rerr := tmpl.Render(s.contextBuilder(activeTheme).NotFound()); rerr == nil {
				body = []byte(out)
			}
		}
	}
	if s.liveReload() {
		body = injectReload(body)
	}
	s.write(w, r, response{
		body:   body,
		etag:   cache.ETagFor(body),
		mime:   "text/html; charset=utf-8",
		status: http.StatusNotFound,
	})
}

// serveError maps a render failure to a short 500. The body is never
// cached.
func (s *Service) serveError(w http.ResponseWriter, r *http.Request, err error) {
	s.log.Error(r.Context(), err, "request failed", "path", r.URL.Path)
	http.Error(w, "internal server error", http.StatusInternalServerError)
}

// taxonomyTerm extracts the single term segment after a taxonomy prefix.
func taxonomyTerm(reqPath, prefix string) (string, bool) {
	if !strings.HasPrefix(reqPath, prefix) {
		return "", false
	}
	rest := strings.Trim(strings.TrimPrefix(reqPath, prefix), "/")
	if rest == "" || strings.Contains(rest, "/") {
		return "", false
	}
	term, err := url.PathUnescape(rest)
	if err != nil {
		return "", false
	}
	return term, true
}

// paginationPage parses /page/<n>/ paths.
func paginationPage(reqPath string) (int, bool) {
	rest, ok := strings.CutPrefix(reqPath, "/page/")
	if !ok {
		return 0, false
	}
	rest = strings.Trim(rest, "/")
	n, err := strconv.Atoi(rest)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}
