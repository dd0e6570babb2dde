package tiler

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

// NormalizeText performs Unicode normalization, folds full-width forms and trims whitespace.
func NormalizeText(text string) string {
	normed := norm.NFKC.String(text)
	normed = width.Fold.String(normed)
	normed = strings.TrimSpace(normed)
	// Drop control characters; they never appear in codes or tile names.
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, normed)
}

// NormalizeLabel canonicalizes a raw label code: normalized, upper-cased, no inner spaces.
func NormalizeLabel(raw string) string {
	return strings.ToUpper(strings.Join(strings.Fields(NormalizeText(raw)), ""))
}
