package content

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// foldTransformer decomposes to NFKD and strips combining marks, so
// accented characters slugify to their base letters.
var foldTransformer = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Slugify converts one path segment into a URL-safe slug. The conversion is
// unicode-aware: combining marks are folded away, letters and digits of any
// script are kept lowercased, and every other run of characters collapses
// into a single hyphen.
func Slugify(segment string) string {
	folded, _, err := transform.String(foldTransformer, segment)
	if err != nil {
		folded = segment
	}

	var b strings.Builder
	b.Grow(len(folded))
	pendingHyphen := false
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		pendingHyphen = true
	}
	return b.String()
}

// SlugifyPath slugifies a content-root-relative path (extension already
// stripped) segment by segment.
func SlugifyPath(relPath string) string {
	segments := strings.Split(strings.Trim(relPath, "/"), "/")
	out := make([]string, 0, len(segments))
	for _, segment := range segments {
		if s := Slugify(segment); s != "" {
			out = append(out, s)
		}
	}
	return strings.Join(out, "/")
}

// AnchorID derives a heading anchor id: lowercase, spaces to hyphens,
// non-word characters stripped.
func AnchorID(text string) string {
	lower := strings.ToLower(strings.TrimSpace(text))
	var b strings.Builder
	b.Grow(len(lower))
	for _, r := range lower {
		switch {
		case r == ' ' || r == '\t':
			b.WriteByte('-')
		case r == '-' || r == '_':
			b.WriteRune(r)
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		}
	}
	return b.String()
}
