package theme

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/thypress/thypress/internal/version"
)

var partialRefPattern = regexp.MustCompile(`{{\s*template\s+"([^"]+)"`)

// validate checks a composed theme whose active layer came from disk.
// Embedded bundles ship pre-validated and skip this entirely.
func validate(theme *Theme) {
	v := &theme.Validation

	if _, ok := theme.Templates["index"]; !ok {
		v.Errors = append(v.Errors, "missing required template index.html")
	}

	for stem, src := range theme.sources {
		for _, ref := range partialRefs(src) {
			if !theme.resolvesPartial(ref) {
				v.Errors = append(v.Errors,
					fmt.Sprintf("%s.html references unknown partial %q", stem, ref))
			}
		}
	}
	for stem, src := range theme.partialSources {
		for _, ref := range partialRefs(src) {
			if !theme.resolvesPartial(ref) {
				v.Errors = append(v.Errors,
					fmt.Sprintf("partial %s references unknown partial %q", stem, ref))
			}
		}
	}

	for _, req := range theme.Metadata.Requires {
		if msg := checkRequirement(req); msg != "" {
			v.Errors = append(v.Errors, msg)
		}
	}
}

// partialRefs extracts the names referenced by {{template "x"}} actions.
func partialRefs(src string) []string {
	var refs []string
	for _, m := range partialRefPattern.FindAllStringSubmatch(src, -1) {
		refs = append(refs, m[1])
	}
	return refs
}

// resolvesPartial reports whether a template reference resolves under any
// of the accepted aliases: name, _name, partials/name, partials/_name.
func (t *Theme) resolvesPartial(ref string) bool {
	stem := strings.TrimPrefix(ref, "partials/")
	stem = strings.TrimPrefix(stem, "_")
	if _, ok := t.partialSources[stem]; ok {
		return true
	}
	// Page templates may also invoke one another by stem.
	_, ok := t.sources[stem]
	return ok
}

// checkRequirement resolves one requires[] entry, either "feature" or
// "feature@version". Unknown features and features newer than the runtime
// fail; a malformed version string fails too.
func checkRequirement(req string) string {
	name := req
	var minimum string
	if at := strings.IndexByte(req, '@'); at >= 0 {
		name, minimum = req[:at], req[at+1:]
	}
	available, ok := version.Features[name]
	if !ok {
		return fmt.Sprintf("theme requires unknown feature %q", name)
	}
	if minimum == "" {
		return ""
	}
	want, err := semver.NewVersion(minimum)
	if err != nil {
		return fmt.Sprintf("theme requirement %q: invalid version: %v", req, err)
	}
	have, err := semver.NewVersion(available)
	if err != nil {
		return fmt.Sprintf("feature %q: invalid runtime version: %v", name, err)
	}
	if want.GreaterThan(have) {
		return fmt.Sprintf("theme requires %s@%s but runtime provides %s", name, minimum, available)
	}
	return ""
}
