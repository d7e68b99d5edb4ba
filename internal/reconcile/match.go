package reconcile

import (
	"strings"

	"golang.org/x/text/width"
)

// workMatches compares work titles: case-insensitive equality, or substring
// containment in either direction. Titles frequently differ only by edition
// suffixes, which containment absorbs.
func workMatches(a, b string) bool {
	a = foldValue(a)
	b = foldValue(b)
	if a == "" || b == "" {
		return false
	}
	if a == b {
		return true
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

// characterMatches compares character names. Beyond equality and bidirectional
// containment, names are split on whitespace and compared token-pairwise so
// "姓 名" and "名" spellings still line up.
func characterMatches(a, b string) bool {
	a = foldValue(a)
	b = foldValue(b)
	if a == "" || b == "" {
		return false
	}
	if a == b || strings.Contains(a, b) || strings.Contains(b, a) {
		return true
	}
	for _, tokenA := range strings.Fields(a) {
		for _, tokenB := range strings.Fields(b) {
			if tokenA == tokenB || strings.Contains(tokenA, tokenB) || strings.Contains(tokenB, tokenA) {
				return true
			}
		}
	}
	return false
}

// anyCharacterMatches reports whether the expected name lines up with any
// suggested name.
func anyCharacterMatches(expected string, suggested []string) bool {
	for _, name := range suggested {
		if characterMatches(expected, name) {
			return true
		}
	}
	return false
}

// foldValue canonicalizes a name for comparison: width-folded so full-width
// ASCII and half-width katakana spellings collide, lowercased, whitespace
// collapsed.
func foldValue(value string) string {
	value = width.Fold.String(value)
	return strings.ToLower(strings.Join(strings.Fields(value), " "))
}
