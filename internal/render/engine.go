// Package render turns entries and list views into HTML. Templates are
// opaque compiled callables behind the Engine interface so the template
// language is swappable; the default engine wraps html/template.
package render

import (
	"fmt"
	"html/template"
	"strings"
	"sync"
	"time"
)

// Template is a compiled template ready to render with a context map.
type Template interface {
	Render(data map[string]interface{}) (string, error)
}

// Engine compiles template and partial sources. Partials registered on the
// engine are visible to every subsequently compiled template; the theme
// resolver clears them before each rebuild to prevent carry-over between
// reloads.
type Engine interface {
	ClearPartials()
	CompilePartial(name, src string) error
	Compile(name, src string) (Template, error)
}

// HTMLEngine is the default Engine backed by html/template.
type HTMLEngine struct {
	mu       sync.RWMutex
	partials map[string]string
}

// NewHTMLEngine creates an empty html/template engine.
func NewHTMLEngine() *HTMLEngine {
	return &HTMLEngine{partials: make(map[string]string)}
}

// ClearPartials drops every registered partial.
func (e *HTMLEngine) ClearPartials() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.partials = make(map[string]string)
}

// CompilePartial registers a partial under name. The source is validated
// immediately; registration is resolved at Compile time so later layers
// can override earlier ones.
func (e *HTMLEngine) CompilePartial(name, src string) error {
	if _, err := template.New(name).Funcs(templateFuncs).Parse(src); err != nil {
		return fmt.Errorf("partial %s: %w", name, err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.partials[name] = src
	return nil
}

// Compile compiles a page template with every registered partial attached.
// Each partial is reachable under its stem and the conventional aliases
// (_stem, partials/stem, partials/_stem).
func (e *HTMLEngine) Compile(name, src string) (Template, error) {
	e.mu.RLock()
	partials := make(map[string]string, len(e.partials))
	for k, v := range e.partials {
		partials[k] = v
	}
	e.mu.RUnlock()

	root := template.New(name).Funcs(templateFuncs)
	for pname, psrc := range partials {
		for _, alias := range partialAliases(pname) {
			if _, err := root.New(alias).Parse(psrc); err != nil {
				return nil, fmt.Errorf("partial %s: %w", pname, err)
			}
		}
	}
	if _, err := root.Parse(src); err != nil {
		return nil, fmt.Errorf("template %s: %w", name, err)
	}
	return &htmlTemplate{name: name, tmpl: root}, nil
}

// partialAliases lists the names a partial resolves under.
func partialAliases(stem string) []string {
	return []string{stem, "_" + stem, "partials/" + stem, "partials/_" + stem}
}

type htmlTemplate struct {
	name string
	tmpl *template.Template
}

// Render implements Template.
func (t *htmlTemplate) Render(data map[string]interface{}) (string, error) {
	var b strings.Builder
	if err := t.tmpl.ExecuteTemplate(&b, t.name, data); err != nil {
		return "", fmt.Errorf("rendering %s: %w", t.name, err)
	}
	return b.String(), nil
}

// templateFuncs are the helpers available to every theme template.
var templateFuncs = template.FuncMap{
	"safeHTML": func(s string) template.HTML { return template.HTML(s) },
	"safeAttr": func(s string) template.HTMLAttr { return template.HTMLAttr(s) },
	"lower":    strings.ToLower,
	"upper":    strings.ToUpper,
	"trim":     strings.TrimSpace,
	"date": func(layout string, t time.Time) string {
		return t.Format(layout)
	},
	"isoDate": func(t time.Time) string {
		return t.Format(time.RFC3339)
	},
	"dict": func(pairs ...interface{}) map[string]interface{} {
		m := make(map[string]interface{}, len(pairs)/2)
		for i := 0; i+1 < len(pairs); i += 2 {
			if key, ok := pairs[i].(string); ok {
				m[key] = pairs[i+1]
			}
		}
		return m
	},
}
