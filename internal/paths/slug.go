package paths

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Slugify lowercases a path segment, strips diacritics, and collapses
// whitespace and underscores into hyphens, producing URL-friendly names.
func Slugify(segment string) string {
	folded := cases.Fold().String(segment)
	decomposed := norm.NFD.String(folded)

	var b strings.Builder
	b.Grow(len(decomposed))
	lastHyphen := false
	for _, r := range decomposed {
		switch {
		case unicode.Is(unicode.Mn, r):
			// combining mark from decomposition
		case r == ' ' || r == '_' || r == '-':
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '.':
			b.WriteRune(r)
			lastHyphen = false
		}
	}
	return strings.Trim(b.String(), "-")
}

// SlugTransform applies Slugify to every path element while preserving the
// directory structure and the final extension.
func SlugTransform(rel string) string {
	parts := strings.Split(rel, "/")
	for i, part := range parts {
		if i == len(parts)-1 {
			ext := pathExt(part)
			stem := strings.TrimSuffix(part, ext)
			parts[i] = Slugify(stem) + ext
			continue
		}
		parts[i] = Slugify(part)
	}
	return strings.Join(parts, "/")
}
