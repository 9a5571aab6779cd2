package content

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/extension"
	goldmarkhtml "github.com/yuin/goldmark/renderer/html"

	"github.com/thypress/thypress/internal/config"
	"github.com/thypress/thypress/internal/logging"
)

// Pipeline turns source files into entries. ProcessFile is a pure function
// of the file contents plus the dimensions cache; all policy knobs come
// from the site config captured at construction.
type Pipeline struct {
	cfg  *config.Config
	log  logging.Logger
	dims *DimensionCache
	md   goldmark.Markdown
}

// NewPipeline creates a content pipeline for cfg.
func NewPipeline(cfg *config.Config, log logging.Logger) *Pipeline {
	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			highlighting.NewHighlighting(
				highlighting.WithStyle("github"),
				highlighting.WithFormatOptions(chromahtml.WithClasses(true)),
			),
		),
		goldmark.WithRendererOptions(goldmarkhtml.WithUnsafe()),
	)

	return &Pipeline{
		cfg:  cfg,
		log:  log.WithComponent("content"),
		dims: NewDimensionCache(),
		md:   md,
	}
}

// Dimensions exposes the intrinsic-width cache for pre-scanning.
func (p *Pipeline) Dimensions() *DimensionCache {
	return p.dims
}

// Prescan populates the dimensions cache from all markdown files under the
// content root. Best-effort: entries rendered before their images are
// probed fall back to the standard size set.
func (p *Pipeline) Prescan() {
	p.dims.Prescan(p.cfg.ContentRoot())
}

// BrokenImageError is returned by ProcessFile when strictImages is set and
// an entry references an image that does not exist.
type BrokenImageError struct {
	Entry string
	Srcs  []string
}

func (e *BrokenImageError) Error() string {
	return fmt.Sprintf("%s: broken image reference(s): %s", e.Entry, strings.Join(e.Srcs, ", "))
}

// Ignored reports whether path falls under the ignore rules relative to
// root: dot-prefixed segments everywhere, drafts directories inside
// content.
func Ignored(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." {
		return false
	}
	for _, segment := range strings.Split(filepath.ToSlash(rel), "/") {
		if strings.HasPrefix(segment, ".") || segment == "drafts" {
			return true
		}
	}
	return false
}

// ProcessFile ingests a single content file into an Entry. It returns
// (nil, nil) for drafts and unsupported extensions. Broken image
// references produce warnings unless strictImages is set, in which case a
// BrokenImageError is returned.
func (p *Pipeline) ProcessFile(path string) (*Entry, error) {
	entryType, ok := typeForExt(filepath.Ext(path))
	if !ok {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	fm, body, err := ParseFrontMatter(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if fm.Draft {
		return nil, nil
	}

	contentRoot := p.cfg.ContentRoot()
	rel, err := filepath.Rel(contentRoot, path)
	if err != nil {
		return nil, fmt.Errorf("%s is outside the content root: %w", path, err)
	}
	rel = filepath.ToSlash(rel)

	entry := &Entry{
		Type:        entryType,
		Path:        path,
		FrontMatter: fm.Raw,
		Series:      fm.Series,
		Description: fm.Description,
		Tags:        fm.Tags,
		Categories:  fm.Categories,
	}

	entry.Slug = SlugifyPath(strings.TrimSuffix(rel, filepath.Ext(rel)))
	entry.URL = "/" + entry.Slug + "/"
	if fm.Permalink != "" {
		entry.URL = normalizeURL(fm.Permalink)
	}
	if i := strings.IndexByte(rel, '/'); i > 0 {
		entry.Section = rel[:i]
	}

	var firstH1 string
	switch entryType {
	case TypeMarkdown:
		var buf bytes.Buffer
		if err := p.md.Convert(body, &buf); err != nil {
			return nil, fmt.Errorf("converting %s: %w", path, err)
		}
		res, err := rewriteFragment(buf.String(), contentRoot, path, p.dims)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if err := p.reportBroken(entry, res.Broken); err != nil {
			return nil, err
		}
		entry.Rendered = res.HTML
		entry.TOC = res.TOC
		entry.ImageRefs = res.ImageRefs
		entry.WordCount = res.WordCount
		firstH1 = res.FirstH1

	case TypePlaintext:
		text := string(body)
		if p.cfg.Site.EscapeTextFiles {
			text = html.EscapeString(text)
		}
		entry.Rendered = "<pre>" + text + "</pre>"
		entry.WordCount = len(strings.Fields(string(body)))

	case TypeHTML:
		if IsFullDocument(body) {
			entry.Rendered = string(body)
			entry.RenderedFull = string(body)
			entry.WordCount = len(strings.Fields(stripTags(string(body))))
		} else {
			res, err := rewriteFragment(string(body), contentRoot, path, p.dims)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", path, err)
			}
			if err := p.reportBroken(entry, res.Broken); err != nil {
				return nil, err
			}
			entry.Rendered = res.HTML
			entry.TOC = res.TOC
			entry.ImageRefs = res.ImageRefs
			entry.WordCount = res.WordCount
			firstH1 = res.FirstH1
		}
	}

	info, statErr := os.Stat(path)
	entry.Title = extractTitle(fm, firstH1, entryType, filepath.Base(rel))
	entry.CreatedAt, entry.UpdatedAt = extractDates(fm, filepath.Base(rel), info, statErr)

	entry.ReadingTime = int(math.Ceil(float64(entry.WordCount) / float64(p.cfg.Site.ReadingSpeed)))
	if entry.ReadingTime < 1 && entry.WordCount > 0 {
		entry.ReadingTime = 1
	}

	return entry, nil
}

func (p *Pipeline) reportBroken(entry *Entry, broken []string) error {
	if len(broken) == 0 {
		return nil
	}
	if p.cfg.Site.StrictImages {
		return &BrokenImageError{Entry: entry.Slug, Srcs: broken}
	}
	for _, src := range broken {
		p.log.Warn(context.Background(), nil, "broken image reference", "entry", entry.Slug, "src", src)
	}
	return nil
}

func typeForExt(ext string) (EntryType, bool) {
	switch strings.ToLower(ext) {
	case ".md":
		return TypeMarkdown, true
	case ".txt":
		return TypePlaintext, true
	case ".html":
		return TypeHTML, true
	default:
		return "", false
	}
}

// datePrefixPattern matches the YYYY-MM-DD- filename convention.
var datePrefixPattern = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})-`)

// extractTitle resolves the entry title: explicit front matter, then the
// first H1 (markdown only), then the cleaned filename, then the raw
// filename.
func extractTitle(fm *FrontMatter, firstH1 string, entryType EntryType, filename string) string {
	if fm.Title != "" {
		return fm.Title
	}
	if entryType == TypeMarkdown && firstH1 != "" {
		return firstH1
	}
	stem := strings.TrimSuffix(filename, filepath.Ext(filename))
	cleaned := datePrefixPattern.ReplaceAllString(stem, "")
	cleaned = strings.NewReplacer("-", " ", "_", " ").Replace(cleaned)
	cleaned = strings.Join(strings.Fields(cleaned), " ")
	if cleaned != "" {
		return cleaned
	}
	return filename
}

// extractDates resolves createdAt and updatedAt: explicit front matter,
// then the filename date prefix, then the file modification time.
func extractDates(fm *FrontMatter, filename string, info os.FileInfo, statErr error) (time.Time, time.Time) {
	var mtime time.Time
	if statErr == nil {
		mtime = info.ModTime()
	} else {
		mtime = time.Now()
	}

	created := mtime
	if v := fm.CreatedAt; v != "" {
		if t, err := ParseDate(v); err == nil {
			created = t
		}
	} else if v := fm.Date; v != "" {
		if t, err := ParseDate(v); err == nil {
			created = t
		}
	} else if m := datePrefixPattern.FindStringSubmatch(filename); m != nil {
		if t, err := time.Parse("2006-01-02", m[1]); err == nil {
			created = t
		}
	}

	updated := mtime
	if v := fm.UpdatedAt; v != "" {
		if t, err := ParseDate(v); err == nil {
			updated = t
		}
	}
	return created, updated
}

func normalizeURL(permalink string) string {
	u := "/" + strings.Trim(permalink, "/")
	if u != "/" {
		u += "/"
	}
	return u
}

var tagPattern = regexp.MustCompile(`<[^>]*>`)

func stripTags(s string) string {
	return tagPattern.ReplaceAllString(s, " ")
}
