// Package build exports a fully rendered site into the build directory,
// including compressed siblings and optimized image variants.
package build

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/thypress/thypress/internal/cache"
	"github.com/thypress/thypress/internal/config"
	"github.com/thypress/thypress/internal/content"
	"github.com/thypress/thypress/internal/logging"
	"github.com/thypress/thypress/internal/meta"
	"github.com/thypress/thypress/internal/render"
	"github.com/thypress/thypress/internal/theme"
)

// Exporter writes one complete static snapshot of the site.
type Exporter struct {
	cfg       *config.Config
	log       logging.Logger
	store     *content.Store
	themes    *theme.Manager
	optimizer *content.Optimizer
	metaGen   *meta.Generator

	written int
}

// NewExporter creates a static exporter over prepared runtime state: the
// store must be ingested and the theme loaded.
func NewExporter(cfg *config.Config, log logging.Logger, store *content.Store, themes *theme.Manager, optimizer *content.Optimizer) *Exporter {
	return &Exporter{
		cfg:       cfg,
		log:       log.WithComponent("build"),
		store:     store,
		themes:    themes,
		optimizer: optimizer,
		metaGen:   meta.NewGenerator(&cfg.Site, store),
	}
}

// Run renders everything into the build directory. The directory is
// replaced wholesale so stale pages never linger.
func (e *Exporter) Run(ctx context.Context) error {
	activeTheme, err := e.themes.Current()
	if err != nil {
		return err
	}
	builder := &render.ContextBuilder{
		Site:      e.cfg.Site.TemplateMap(),
		ThemeMeta: activeTheme.Metadata,
		Store:     e.store,
		AssetURLs: activeTheme.AssetURLs,
	}

	dir := e.cfg.BuildDir()
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("clearing build dir: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	if err := e.exportEntries(ctx, activeTheme, builder); err != nil {
		return err
	}
	if err := e.exportLists(ctx, activeTheme, builder); err != nil {
		return err
	}
	if err := e.exportTaxonomies(ctx, activeTheme, builder); err != nil {
		return err
	}
	if err := e.exportMeta(ctx); err != nil {
		return err
	}
	if err := e.exportAssets(ctx, activeTheme, builder); err != nil {
		return err
	}
	if err := e.exportContentFiles(ctx); err != nil {
		return err
	}
	if err := e.exportImages(ctx); err != nil {
		return err
	}

	e.log.Success(ctx, "site exported", "dir", dir, "files", e.written)
	return nil
}

func (e *Exporter) exportEntries(ctx context.Context, activeTheme *theme.Theme, builder *render.ContextBuilder) error {
	for _, entry := range e.store.Sorted() {
		if err := ctx.Err(); err != nil {
			return err
		}
		var body []byte
		if entry.HasFullDocument() {
			body = []byte(entry.RenderedFull)
		} else {
			tmpl, name := activeTheme.SelectForEntry(entry)
			if tmpl == nil {
				if e.cfg.Site.StrictPreRender {
					return fmt.Errorf("no template for entry %s", entry.Slug)
				}
				e.log.Warn(ctx, nil, "no template, skipping entry", "slug", entry.Slug)
				continue
			}
			out, err := tmpl.Render(builder.Entry(entry))
			if err != nil {
				if e.cfg.Site.StrictPreRender {
					return fmt.Errorf("entry %s: template %s: %w", entry.Slug, name, err)
				}
				e.log.Warn(ctx, err, "render failed, skipping entry", "slug", entry.Slug)
				continue
			}
			body = []byte(out)
		}
		url := entry.URL
		if entry.Slug == e.cfg.IndexSlug() {
			// The configured index entry becomes the exported home page.
			url = "/"
		}
		if err := e.writePage(url, body); err != nil {
			return err
		}
	}
	return nil
}

func (e *Exporter) exportLists(ctx context.Context, activeTheme *theme.Theme, builder *render.ContextBuilder) error {
	// A custom index entry replaces the chronological home page.
	if _, ok := e.store.Get(e.cfg.IndexSlug()); ok {
		return nil
	}
	tmpl, name := activeTheme.SelectForList("index")
	if tmpl == nil {
		return fmt.Errorf("missing index template")
	}
	entries := e.store.Sorted()
	total := render.TotalPages(len(entries))
	for page := 1; page <= total; page++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		out, err := tmpl.Render(builder.Index(entries, page))
		if err != nil {
			return fmt.Errorf("index page %d: template %s: %w", page, name, err)
		}
		url := "/"
		if page > 1 {
			url = fmt.Sprintf("/page/%d/", page)
		}
		if err := e.writePage(url, []byte(out)); err != nil {
			return err
		}
	}
	return nil
}

func (e *Exporter) exportTaxonomies(ctx context.Context, activeTheme *theme.Theme, builder *render.ContextBuilder) error {
	kinds := []struct {
		pageType render.PageType
		prefix   string
		terms    func() map[string][]*content.Entry
	}{
		{render.PageTag, "/tag/", func() map[string][]*content.Entry { return e.groupBy(func(en *content.Entry) []string { return en.Tags }) }},
		{render.PageCategory, "/category/", func() map[string][]*content.Entry {
			return e.groupBy(func(en *content.Entry) []string { return en.Categories })
		}},
		{render.PageSeries, "/series/", func() map[string][]*content.Entry {
			return e.groupBy(func(en *content.Entry) []string {
				if en.Series == "" {
					return nil
				}
				return []string{en.Series}
			})
		}},
	}

	for _, kind := range kinds {
		tmpl, name := activeTheme.SelectForList(string(kind.pageType), "index")
		if tmpl == nil {
			continue
		}
		for term, entries := range kind.terms() {
			if err := ctx.Err(); err != nil {
				return err
			}
			out, err := tmpl.Render(builder.Taxonomy(kind.pageType, term, entries))
			if err != nil {
				return fmt.Errorf("%s %s: template %s: %w", kind.pageType, term, name, err)
			}
			url := kind.prefix + content.Slugify(term) + "/"
			if err := e.writePage(url, []byte(out)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Exporter) groupBy(values func(*content.Entry) []string) map[string][]*content.Entry {
	grouped := make(map[string][]*content.Entry)
	for _, entry := range e.store.Sorted() {
		for _, v := range values(entry) {
			grouped[v] = append(grouped[v], entry)
		}
	}
	return grouped
}

func (e *Exporter) exportMeta(ctx context.Context) error {
	docs := []struct {
		name string
		gen  func() ([]byte, error)
	}{
		{meta.NameSearch, e.metaGen.SearchIndex},
		{meta.NameRSS, e.metaGen.RSS},
		{meta.NameSitemap, e.metaGen.Sitemap},
		{meta.NameRobots, func() ([]byte, error) { return e.metaGen.Robots(), nil }},
		{meta.NameLLMs, func() ([]byte, error) { return e.metaGen.LLMs(), nil }},
	}
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return err
		}
		body, err := doc.gen()
		if err != nil {
			return fmt.Errorf("%s: %w", doc.name, err)
		}
		if err := e.writeFile(doc.name, body, true); err != nil {
			return err
		}
	}
	return nil
}

func (e *Exporter) exportAssets(ctx context.Context, activeTheme *theme.Theme, builder *render.ContextBuilder) error {
	for relPath, asset := range activeTheme.Assets {
		if err := ctx.Err(); err != nil {
			return err
		}
		body := asset.Bytes
		if asset.IsTemplated() {
			out, err := asset.Template.Render(map[string]interface{}{
				"config": builder.Site,
				"theme":  activeTheme.Metadata,
			})
			if err != nil {
				return fmt.Errorf("asset %s: %w", relPath, err)
			}
			body = []byte(out)
		}
		if err := e.writeFile(relPath, body, cache.Compressible(asset.MIME)); err != nil {
			return err
		}
	}
	return nil
}

// exportContentFiles copies non-content static files from the content
// root verbatim.
func (e *Exporter) exportContentFiles(ctx context.Context) error {
	root := e.cfg.ContentRoot()
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if d.IsDir() {
			if p != root && content.Ignored(root, p) {
				return fs.SkipDir
			}
			return nil
		}
		if content.Ignored(root, p) {
			return nil
		}
		switch strings.ToLower(filepath.Ext(p)) {
		case ".md", ".txt", ".html":
			return nil
		}
		rel, rerr := filepath.Rel(root, p)
		if rerr != nil {
			return nil
		}
		data, rerr := os.ReadFile(p)
		if rerr != nil {
			return nil
		}
		return e.writeFile(filepath.ToSlash(rel), data, false)
	})
}

// exportImages finishes any pending optimization pass and copies the
// variant files under /images/.
func (e *Exporter) exportImages(ctx context.Context) error {
	e.optimizer.Flush(ctx)
	items, err := os.ReadDir(e.optimizer.Dir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, item := range items {
		if item.IsDir() {
			continue
		}
		data, rerr := os.ReadFile(filepath.Join(e.optimizer.Dir(), item.Name()))
		if rerr != nil {
			continue
		}
		if err := e.writeFile(path.Join("images", item.Name()), data, false); err != nil {
			return err
		}
	}
	return nil
}

// writePage stores an HTML body at <url>/index.html with compressed
// siblings.
func (e *Exporter) writePage(url string, body []byte) error {
	rel := strings.Trim(url, "/")
	return e.writeFile(path.Join(rel, "index.html"), body, true)
}

// writeFile writes one output file, adding .gz and .br siblings when the
// body is compressible and the coding shrinks it.
func (e *Exporter) writeFile(rel string, body []byte, compress bool) error {
	target := filepath.Join(e.cfg.BuildDir(), filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(target, body, 0o644); err != nil {
		return err
	}
	e.written++

	if !compress || !e.cfg.Site.PreCompressContent {
		return nil
	}
	for enc, suffix := range map[cache.Encoding]string{cache.EncodingGzip: ".gz", cache.EncodingBrotli: ".br"} {
		compressed, ok, err := cache.Compress(body, enc)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := os.WriteFile(target+suffix, compressed, 0o644); err != nil {
			return err
		}
		e.written++
	}
	return nil
}
