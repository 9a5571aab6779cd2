package content

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	// Register the decoders used for intrinsic-width probing.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

// VariantURLBase is the URL prefix under which optimized image variants are
// served, rooted at the disk cache directory.
const VariantURLBase = "/images/"

// StandardSizes are the responsive widths generated for every image, capped
// by the image's intrinsic width.
var StandardSizes = []int{400, 800, 1200}

// ImageRef is a reference from an entry body to a source image, together
// with the variant set the optimizer must materialize.
type ImageRef struct {
	// SourcePath is the absolute path of the referenced image.
	SourcePath string `json:"sourcePath"`
	// OutputKey is the extensionless basename variants are named after.
	OutputKey string `json:"outputKey"`
	// Hash is the first 8 hex characters of the MD5 of SourcePath,
	// disambiguating same-named images in different directories.
	Hash string `json:"hash"`
	// Sizes is the subset of StandardSizes below the intrinsic width, plus
	// the intrinsic width itself. When the width is unknown the standard
	// sizes are used optimistically.
	Sizes []int `json:"sizes"`
}

// NewImageRef builds the reference for sourcePath given its intrinsic
// width, or width 0 when unknown.
func NewImageRef(sourcePath string, width int) ImageRef {
	sum := md5.Sum([]byte(sourcePath))
	base := filepath.Base(sourcePath)
	key := strings.TrimSuffix(base, filepath.Ext(base))

	var sizes []int
	if width <= 0 {
		sizes = append(sizes, StandardSizes...)
	} else {
		for _, s := range StandardSizes {
			if s < width {
				sizes = append(sizes, s)
			}
		}
		sizes = append(sizes, width)
	}

	return ImageRef{
		SourcePath: sourcePath,
		OutputKey:  key,
		Hash:       hex.EncodeToString(sum[:])[:8],
		Sizes:      sizes,
	}
}

// VariantFile returns the on-disk file name of one variant.
func (r ImageRef) VariantFile(size int, format string) string {
	return fmt.Sprintf("%s-%d-%s.%s", r.OutputKey, size, r.Hash, format)
}

// VariantURL returns the served URL of one variant.
func (r ImageRef) VariantURL(size int, format string) string {
	return VariantURLBase + r.VariantFile(size, format)
}

// DimensionCache holds intrinsic image widths keyed by source path. It is
// populated by a best-effort pre-scan over all markdown files so widths are
// usually known before the first render; misses fall back to the standard
// size set.
type DimensionCache struct {
	mu     sync.RWMutex
	widths map[string]int
}

// NewDimensionCache creates an empty dimensions cache.
func NewDimensionCache() *DimensionCache {
	return &DimensionCache{widths: make(map[string]int)}
}

// Width returns the cached intrinsic width for path.
func (c *DimensionCache) Width(path string) (int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	w, ok := c.widths[path]
	return w, ok
}

// Probe decodes the image header at path and caches its width. The cached
// value is returned on subsequent calls without touching the disk.
func (c *DimensionCache) Probe(path string) (int, error) {
	if w, ok := c.Width(path); ok {
		return w, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, fmt.Errorf("decoding %s: %w", path, err)
	}

	c.mu.Lock()
	c.widths[path] = cfg.Width
	c.mu.Unlock()
	return cfg.Width, nil
}

var (
	mdImagePattern   = regexp.MustCompile(`!\[[^\]]*\]\(\s*([^)\s]+)`)
	htmlImagePattern = regexp.MustCompile(`(?i)<img[^>]+src\s*=\s*["']([^"']+)["']`)
)

// Prescan walks every markdown file under contentRoot, extracts image
// references and probes their dimensions. Unreadable images are skipped;
// the pre-scan is best-effort by contract.
func (c *DimensionCache) Prescan(contentRoot string) {
	_ = filepath.Walk(contentRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			if Ignored(contentRoot, path) {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) != ".md" || Ignored(contentRoot, path) {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		for _, src := range extractImageSources(string(data)) {
			resolved, ok := ResolveImagePath(contentRoot, path, src)
			if !ok {
				continue
			}
			_, _ = c.Probe(resolved)
		}
		return nil
	})
}

func extractImageSources(body string) []string {
	var out []string
	for _, m := range mdImagePattern.FindAllStringSubmatch(body, -1) {
		out = append(out, m[1])
	}
	for _, m := range htmlImagePattern.FindAllStringSubmatch(body, -1) {
		out = append(out, m[1])
	}
	return out
}

// ResolveImagePath resolves an image src against the entry file's
// directory. Absolute srcs are rooted at the content root. Remote and data
// URLs report ok=false.
func ResolveImagePath(contentRoot, entryPath, src string) (string, bool) {
	if src == "" || strings.Contains(src, "://") || strings.HasPrefix(src, "data:") || strings.HasPrefix(src, "//") {
		return "", false
	}
	if strings.HasPrefix(src, "/") {
		return filepath.Join(contentRoot, filepath.FromSlash(src)), true
	}
	return filepath.Join(filepath.Dir(entryPath), filepath.FromSlash(src)), true
}

// SortedSizes returns a copy of sizes in ascending order.
func SortedSizes(sizes []int) []int {
	out := append([]int(nil), sizes...)
	sort.Ints(out)
	return out
}
