// Package theme composes the three template layers (embedded fallback,
// embedded active, disk active) into one coherent lookup surface of page
// templates, partials and assets.
package theme

import (
	"github.com/thypress/thypress/internal/content"
	"github.com/thypress/thypress/internal/render"
)

// Metadata is the declarative manifest of a theme (theme.json).
type Metadata struct {
	Name       string   `json:"name"`
	Version    string   `json:"version"`
	Author     string   `json:"author,omitempty"`
	SingleFile bool     `json:"singleFile,omitempty"`
	Handles    []string `json:"handles,omitempty"`
	Requires   []string `json:"requires,omitempty"`
}

// Validation is the outcome of validating a disk theme. Warnings never
// fail a load; errors reject it unless forceTheme is set.
type Validation struct {
	Errors   []string
	Warnings []string
}

// OK reports whether the theme passed validation.
func (v *Validation) OK() bool {
	return len(v.Errors) == 0
}

// Theme is a fully composed template set.
type Theme struct {
	Templates  map[string]render.Template
	Partials   map[string]render.Template
	Assets     map[string]Asset
	Metadata   Metadata
	Validation Validation
	ActiveID   string

	// AssetURLs maps each asset's canonical URL to its served URL. The
	// two differ only when fingerprinting renames the asset.
	AssetURLs map[string]string

	// sources keeps template sources by stem for partial-reference
	// validation.
	sources map[string]string
	// partialSources keeps partial sources by stem.
	partialSources map[string]string
}

// Asset is a theme file served under /assets/: either static bytes with an
// inferred MIME type, or a compiled template rendered at serve time with
// site context.
type Asset struct {
	Bytes    []byte
	MIME     string
	Template render.Template
}

// IsTemplated reports whether the asset renders at serve time.
func (a Asset) IsTemplated() bool {
	return a.Template != nil
}

// Lookup returns the page template with the given stem.
func (t *Theme) Lookup(name string) (render.Template, bool) {
	tmpl, ok := t.Templates[name]
	return tmpl, ok
}

// SelectForEntry picks the template for an entry: explicit front matter
// template, then the template named by the entry's section, then the
// index special case for the root entry, then entry, page, index.
func (t *Theme) SelectForEntry(e *content.Entry) (render.Template, string) {
	var candidates []string
	if name, ok := e.FrontMatter["template"].(string); ok && name != "" {
		candidates = append(candidates, name)
	}
	if name, ok := e.FrontMatter["layout"].(string); ok && name != "" {
		candidates = append(candidates, name)
	}
	if e.Section != "" {
		candidates = append(candidates, e.Section)
	}
	if e.Slug == "" || e.Slug == "index" {
		candidates = append(candidates, "index")
	}
	candidates = append(candidates, "entry", "page", "index")

	for _, name := range candidates {
		if tmpl, ok := t.Templates[name]; ok {
			return tmpl, name
		}
	}
	return nil, ""
}

// SelectForList picks the template for a list view, falling back through
// the given candidates then index.
func (t *Theme) SelectForList(candidates ...string) (render.Template, string) {
	candidates = append(candidates, "index")
	for _, name := range candidates {
		if tmpl, ok := t.Templates[name]; ok {
			return tmpl, name
		}
	}
	return nil, ""
}
