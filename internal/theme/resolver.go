package theme

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/thypress/thypress/internal/config"
	"github.com/thypress/thypress/internal/content"
	"github.com/thypress/thypress/internal/logging"
	"github.com/thypress/thypress/internal/render"
)

// Resolver composes the three theme layers. Layer 1 is the embedded
// fallback bundle (skipped under strictThemeIsolation), layer 2 the
// embedded bundle named by config.theme, layer 3 the on-disk directory
// templates/<config.theme>. Later layers win file-by-file.
type Resolver struct {
	cfg    *config.Config
	engine render.Engine
	log    logging.Logger
}

// NewResolver creates a theme resolver.
func NewResolver(cfg *config.Config, engine render.Engine, log logging.Logger) *Resolver {
	return &Resolver{cfg: cfg, engine: engine, log: log.WithComponent("theme")}
}

// layerFile is one classified theme file after layer composition.
type layerFile struct {
	relPath string
	data    []byte
	layer   int
}

// Build composes and compiles the active theme. Template syntax errors
// abort the build when strictTemplateValidation is set and skip the file
// otherwise. Disk-theme validation results land on the returned theme; the
// caller decides whether a failing theme is installed (forceTheme).
func (r *Resolver) Build(ctx context.Context) (*Theme, error) {
	activeID := r.cfg.Site.Theme

	// Compose the file set with latest-layer-wins semantics before any
	// compilation, so page templates from early layers see partial
	// overrides from later ones.
	files := make(map[string]layerFile)
	diskLoaded := false

	if !r.cfg.Site.StrictThemeIsolation {
		if fsys, ok := EmbeddedTheme(DefaultThemeID); ok {
			if err := collectLayer(fsys, 1, files); err != nil {
				return nil, fmt.Errorf("embedded fallback theme: %w", err)
			}
		}
	}
	if activeID != DefaultThemeID {
		if fsys, ok := EmbeddedTheme(activeID); ok {
			if err := collectLayer(fsys, 2, files); err != nil {
				return nil, fmt.Errorf("embedded theme %s: %w", activeID, err)
			}
		}
	}
	diskDir := filepath.Join(r.cfg.TemplatesRoot(), activeID)
	if info, err := os.Stat(diskDir); err == nil && info.IsDir() {
		if err := collectLayer(os.DirFS(diskDir), 3, files); err != nil {
			return nil, fmt.Errorf("disk theme %s: %w", activeID, err)
		}
		diskLoaded = true
	}

	theme := &Theme{
		Templates:      make(map[string]render.Template),
		Partials:       make(map[string]render.Template),
		Assets:         make(map[string]Asset),
		ActiveID:       activeID,
		sources:        make(map[string]string),
		partialSources: make(map[string]string),
	}

	// Partials register on the engine before any page template compiles;
	// the engine's partial set is cleared first to prevent carry-over
	// between reloads.
	r.engine.ClearPartials()

	type pageFile struct {
		stem  string
		src   string
		layer int
	}
	var pages []pageFile
	diskPageCount := 0
	diskHasEntry := false

	for relPath, file := range files {
		base := path.Base(relPath)
		ext := path.Ext(base)

		if relPath == "theme.json" {
			if err := json.Unmarshal(file.data, &theme.Metadata); err != nil {
				theme.Validation.Warnings = append(theme.Validation.Warnings,
					fmt.Sprintf("theme.json: %v", err))
			}
			continue
		}

		if ext == ".html" {
			fm, body, err := content.ParseFrontMatter(file.data)
			if err != nil {
				if e := r.templateProblem(ctx, theme, relPath, err); e != nil {
					return nil, e
				}
				continue
			}
			stem := strings.TrimSuffix(base, ext)
			isPartial := fm.Partial ||
				strings.HasPrefix(relPath, "partials/") ||
				strings.HasPrefix(base, "_")
			if isPartial {
				stem = strings.TrimPrefix(stem, "_")
				if err := r.engine.CompilePartial(stem, string(body)); err != nil {
					if e := r.templateProblem(ctx, theme, relPath, err); e != nil {
						return nil, e
					}
					continue
				}
				theme.partialSources[stem] = string(body)
				continue
			}
			pages = append(pages, pageFile{stem: stem, src: string(body), layer: file.layer})
			if file.layer == 3 && stem != "404" {
				diskPageCount++
				if stem == "entry" {
					diskHasEntry = true
				}
			}
			continue
		}

		// Non-HTML files become assets: text files containing template
		// markers compile as templated assets, everything else stores raw
		// bytes with MIME inferred from the extension.
		if isTextAsset(file.data) && (strings.Contains(string(file.data), "{{") || strings.Contains(string(file.data), "{%")) {
			tmpl, err := r.engine.Compile(relPath, string(file.data))
			if err != nil {
				if e := r.templateProblem(ctx, theme, relPath, err); e != nil {
					return nil, e
				}
				continue
			}
			theme.Assets[relPath] = Asset{MIME: mimeFor(ext), Template: tmpl}
			continue
		}
		theme.Assets[relPath] = Asset{Bytes: file.data, MIME: mimeFor(ext)}
	}

	for _, page := range pages {
		tmpl, err := r.engine.Compile(page.stem, page.src)
		if err != nil {
			if e := r.templateProblem(ctx, theme, page.stem+".html", err); e != nil {
				return nil, e
			}
			continue
		}
		theme.Templates[page.stem] = tmpl
		theme.sources[page.stem] = page.src
	}
	for stem, src := range theme.partialSources {
		tmpl, err := r.engine.Compile(stem, src)
		if err == nil {
			theme.Partials[stem] = tmpl
		}
	}

	applySingleFile(theme, diskLoaded, diskPageCount, diskHasEntry)

	theme.AssetURLs = make(map[string]string, len(theme.Assets))
	for rel := range theme.Assets {
		theme.AssetURLs["/"+rel] = "/" + rel
	}
	if r.cfg.Site.FingerprintAssets {
		fingerprintAssets(theme)
	}

	if diskLoaded {
		validate(theme)
	}
	return theme, nil
}

// fingerprintAssets gives every raw asset a content-addressed alias and
// rewrites its served URL. The canonical name keeps working so links in
// user content never break; templated assets stay un-fingerprinted since
// their bytes are not fixed until render time.
func fingerprintAssets(theme *Theme) {
	raw := make([]string, 0, len(theme.Assets))
	for rel, asset := range theme.Assets {
		if !asset.IsTemplated() {
			raw = append(raw, rel)
		}
	}
	for _, rel := range raw {
		asset := theme.Assets[rel]
		sum := md5.Sum(asset.Bytes)
		ext := path.Ext(rel)
		renamed := strings.TrimSuffix(rel, ext) + "." + hex.EncodeToString(sum[:])[:8] + ext
		theme.Assets[renamed] = asset
		theme.AssetURLs["/"+rel] = "/" + renamed
	}
}

// templateProblem applies the strictTemplateValidation policy to a
// template syntax error: abort when strict, otherwise record and skip.
func (r *Resolver) templateProblem(ctx context.Context, theme *Theme, relPath string, err error) error {
	if r.cfg.Site.StrictTemplateValidation {
		return fmt.Errorf("template %s: %w", relPath, err)
	}
	theme.Validation.Warnings = append(theme.Validation.Warnings, fmt.Sprintf("%s: %v", relPath, err))
	r.log.Warn(ctx, err, "skipping template", "path", relPath)
	return nil
}

// collectLayer walks one layer's file tree into the composition map.
func collectLayer(fsys fs.FS, layer int, files map[string]layerFile) error {
	return fs.WalkDir(fsys, ".", func(relPath string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if hasHiddenSegment(relPath) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		data, err := fs.ReadFile(fsys, relPath)
		if err != nil {
			return err
		}
		files[path.Clean(relPath)] = layerFile{relPath: relPath, data: data, layer: layer}
		return nil
	})
}

func hasHiddenSegment(relPath string) bool {
	for _, segment := range strings.Split(relPath, "/") {
		if strings.HasPrefix(segment, ".") && segment != "." {
			return true
		}
	}
	return false
}

// applySingleFile aliases entry and page (plus declared handles) to
// index for single-file themes. Aliasing overrides templates inherited
// from earlier layers; a single-file theme owns every page type.
func applySingleFile(theme *Theme, diskLoaded bool, diskPageCount int, diskHasEntry bool) {
	index, hasIndex := theme.Templates["index"]
	if !hasIndex {
		return
	}
	single := theme.Metadata.SingleFile ||
		(diskLoaded && diskPageCount == 1 && !diskHasEntry)
	if !single {
		return
	}

	theme.Templates["entry"] = index
	theme.Templates["page"] = index
	for _, handled := range theme.Metadata.Handles {
		theme.Templates[handled] = index
	}
}

// isTextAsset reports whether data looks like text rather than a binary
// asset such as an image or font.
func isTextAsset(data []byte) bool {
	n := len(data)
	if n > 512 {
		n = 512
	}
	for _, b := range data[:n] {
		if b == 0 {
			return false
		}
	}
	return true
}

func mimeFor(ext string) string {
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	switch ext {
	case ".woff2":
		return "font/woff2"
	case ".woff":
		return "font/woff"
	case ".webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}
