package theme

import (
	"embed"
	"io/fs"
)

// DefaultThemeID identifies the embedded fallback theme (layer 1).
const DefaultThemeID = "default"

//go:embed embedded/default
var embeddedFS embed.FS

// embeddedRegistry maps embedded theme ids to their bundles. Bundles other
// than the default become layer 2 when named by config.theme.
var embeddedRegistry = map[string]fs.FS{
	DefaultThemeID: mustSub(embeddedFS, "embedded/default"),
}

func mustSub(fsys fs.FS, dir string) fs.FS {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		panic(err)
	}
	return sub
}

// EmbeddedTheme returns the embedded bundle with the given id.
func EmbeddedTheme(id string) (fs.FS, bool) {
	fsys, ok := embeddedRegistry[id]
	return fsys, ok
}
