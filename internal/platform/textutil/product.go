package textutil

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeProductID canonicalises a product name or identifier into the
// hyphenated lowercase form used as the storage key: NFKC folding, trimmed,
// lowercased, with runs of whitespace, hyphens, and underscores collapsed to a
// single hyphen.
func NormalizeProductID(value string) string {
	folded := norm.NFKC.String(strings.TrimSpace(value))
	folded = strings.ToLower(folded)

	var b strings.Builder
	b.Grow(len(folded))
	pendingSep := false
	for _, r := range folded {
		switch {
		case r == ' ' || r == '\t' || r == '\n' || r == '-' || r == '_':
			pendingSep = b.Len() > 0
		default:
			if pendingSep {
				b.WriteRune('-')
				pendingSep = false
			}
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ProductIDVariants returns the identifier forms under which the same product
// may appear in historical order snapshots: the hyphenated canonical form and
// its space-separated counterpart. Callers checking a snapshot must try both.
func ProductIDVariants(value string) []string {
	canonical := NormalizeProductID(value)
	if canonical == "" {
		return nil
	}
	spaced := strings.ReplaceAll(canonical, "-", " ")
	if spaced == canonical {
		return []string{canonical}
	}
	return []string{canonical, spaced}
}
