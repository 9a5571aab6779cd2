package cache

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// PrecompressAll fills the precompressed layer from every rendered page,
// producing gzip and brotli variants concurrently. Static serving modes
// call this after a full render so request-time compression never runs.
func (e *Engine) PrecompressAll(ctx context.Context) error {
	e.mutex.RLock()
	pages := make(map[string]Page, len(e.rendered))
	for slug, page := range e.rendered {
		pages[slug] = page
	}
	e.mutex.RUnlock()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())

	for slug, page := range pages {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			for _, enc := range []Encoding{EncodingGzip, EncodingBrotli} {
				body, ok, err := Compress(page.Body, enc)
				if err != nil {
					return err
				}
				if ok {
					e.SetPrecompressed(slug, enc, body, page.ETag)
				}
			}
			return nil
		})
	}
	return g.Wait()
}
