package content

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/thypress/thypress/internal/logging"
)

// OptimizeDebounce is the trailing debounce applied to image-optimization
// work after ingest waves.
const OptimizeDebounce = 500 * time.Millisecond

// Resizer produces one optimized variant of a source image. The concrete
// codec is an external collaborator; the pipeline only owns reconciliation.
type Resizer interface {
	Resize(ctx context.Context, sourcePath, destPath string, width int, format string) error
}

// CopyResizer is the fallback Resizer used when no native codec is wired
// in: it copies the source bytes so variant URLs resolve, leaving actual
// scaling to a real codec.
type CopyResizer struct{}

// Resize implements Resizer by copying source bytes to destPath.
func (CopyResizer) Resize(_ context.Context, sourcePath, destPath string, _ int, _ string) error {
	src, err := os.Open(sourcePath)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(destPath)
	if err != nil {
		return err
	}
	defer dst.Close()

	_, err = io.Copy(dst, src)
	return err
}

// Optimizer reconciles the variant files under the disk cache directory
// against the current set of image references. Work is debounced by
// OptimizeDebounce and serialized: at most one pass runs at a time, and
// events arriving during a pass schedule exactly one follow-up pass.
type Optimizer struct {
	dir     string
	resizer Resizer
	log     logging.Logger

	mu      sync.Mutex
	timer   *time.Timer
	latest  []ImageRef
	running bool
	rerun   bool
}

// NewOptimizer creates an optimizer writing variants into dir.
func NewOptimizer(dir string, resizer Resizer, log logging.Logger) *Optimizer {
	if resizer == nil {
		resizer = CopyResizer{}
	}
	return &Optimizer{
		dir:     dir,
		resizer: resizer,
		log:     log.WithComponent("images"),
	}
}

// Dir returns the variant directory.
func (o *Optimizer) Dir() string {
	return o.dir
}

// Schedule records the current reference union and (re)starts the debounce
// timer.
func (o *Optimizer) Schedule(refs []ImageRef) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.latest = refs
	if o.timer != nil {
		o.timer.Stop()
	}
	o.timer = time.AfterFunc(OptimizeDebounce, o.fire)
}

// Flush runs any pending reconciliation immediately. Used by the static
// exporter, which cannot wait out the debounce window.
func (o *Optimizer) Flush(ctx context.Context) {
	o.mu.Lock()
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
	refs := o.latest
	o.mu.Unlock()
	if refs != nil {
		o.reconcile(ctx, refs)
	}
}

func (o *Optimizer) fire() {
	o.mu.Lock()
	if o.running {
		o.rerun = true
		o.mu.Unlock()
		return
	}
	o.running = true
	refs := o.latest
	o.mu.Unlock()

	go func() {
		ctx := context.Background()
		for {
			o.reconcile(ctx, refs)

			o.mu.Lock()
			if !o.rerun {
				o.running = false
				o.mu.Unlock()
				return
			}
			o.rerun = false
			refs = o.latest
			o.mu.Unlock()
		}
	}()
}

// reconcile materializes every missing (basename, size, hash, format)
// variant and deletes unreferenced files older than this pass.
func (o *Optimizer) reconcile(ctx context.Context, refs []ImageRef) {
	start := time.Now()
	if err := os.MkdirAll(o.dir, 0o755); err != nil {
		o.log.Error(ctx, err, "creating image cache directory", "dir", o.dir)
		return
	}

	wanted := make(map[string]bool)
	produced := 0
	for _, ref := range refs {
		for _, size := range ref.Sizes {
			for _, format := range []string{"webp", "jpg"} {
				name := ref.VariantFile(size, format)
				wanted[name] = true

				dest := filepath.Join(o.dir, name)
				if _, err := os.Stat(dest); err == nil {
					continue
				}
				if err := o.resizer.Resize(ctx, ref.SourcePath, dest, size, format); err != nil {
					o.log.Warn(ctx, err, "producing image variant", "variant", name)
					continue
				}
				produced++
			}
		}
	}

	removed := 0
	items, err := os.ReadDir(o.dir)
	if err != nil {
		return
	}
	for _, item := range items {
		if item.IsDir() || wanted[item.Name()] {
			continue
		}
		info, err := item.Info()
		if err != nil || !info.ModTime().Before(start) {
			continue
		}
		if err := os.Remove(filepath.Join(o.dir, item.Name())); err == nil {
			removed++
		}
	}

	if produced > 0 || removed > 0 {
		o.log.Info(ctx, "image reconciliation complete",
			"produced", produced, "removed", removed, "elapsed", time.Since(start).Round(time.Millisecond))
	}
}
