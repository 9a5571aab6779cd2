package server

import (
	"context"
	"fmt"

	"github.com/thypress/thypress/internal/render"
)

// PreRender fills the rendered layer for every entry and list page. The
// static modes run this before serving or exporting so the
// precompression sweep has complete input. Failures skip the page unless
// strictPreRender is set.
func (s *Service) PreRender(ctx context.Context) error {
	activeTheme, err := s.themes.Current()
	if err != nil {
		return err
	}
	builder := s.contextBuilder(activeTheme)

	fail := func(what string, err error) error {
		if s.cfg.Site.StrictPreRender {
			return fmt.Errorf("pre-render %s: %w", what, err)
		}
		s.log.Warn(ctx, err, "pre-render failed, skipping", "page", what)
		return nil
	}

	for _, entry := range s.store.Sorted() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if entry.HasFullDocument() {
			s.engine.SetRendered(entry.Slug, []byte(entry.RenderedFull))
			continue
		}
		tmpl, name := activeTheme.SelectForEntry(entry)
		if tmpl == nil {
			if err := fail(entry.Slug, fmt.Errorf("no template")); err != nil {
				return err
			}
			continue
		}
		out, rerr := tmpl.Render(builder.Entry(entry))
		if rerr != nil {
			if err := fail(entry.Slug, fmt.Errorf("template %s: %w", name, rerr)); err != nil {
				return err
			}
			continue
		}
		s.engine.SetRendered(entry.Slug, []byte(out))
	}

	entries := s.store.Sorted()
	if tmpl, name := activeTheme.SelectForList("index"); tmpl != nil {
		total := render.TotalPages(len(entries))
		for page := 1; page <= total; page++ {
			out, rerr := tmpl.Render(builder.Index(entries, page))
			if rerr != nil {
				if err := fail(fmt.Sprintf("page %d", page), fmt.Errorf("template %s: %w", name, rerr)); err != nil {
					return err
				}
				continue
			}
			key := listKeyPrefix + "/"
			if page > 1 {
				key = fmt.Sprintf("%s/page/%d/", listKeyPrefix, page)
			}
			s.engine.SetRendered(key, []byte(out))
		}
	}

	return s.engine.PrecompressAll(ctx)
}
