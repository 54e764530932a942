// Package normalize provides helper functions for consistent string normalization
// across the application. Movie titles from the ranking page and from the
// statistics provider are compared only through these helpers.
package normalize

import (
	"strings"
	"unicode"
)

// Title reduces a movie title to its comparison key: every rune that is not a
// letter or digit (in any script, Hangul included) is dropped and the rest is
// lower-cased. Title(Title(s)) == Title(s).
func Title(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

// SameTitle reports whether two titles normalize to the same non-empty key.
func SameTitle(a, b string) bool {
	na := Title(a)
	return na != "" && na == Title(b)
}

// KeysOverlap reports whether one normalized key contains the other.
// Empty keys never overlap with anything.
func KeysOverlap(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

// TitleContains is the fuzzy fallback: true when either normalized title
// contains the other.
func TitleContains(a, b string) bool {
	return KeysOverlap(Title(a), Title(b))
}

// Code normalizes a movie code by trimming whitespace.
func Code(s string) string {
	return strings.TrimSpace(s)
}

// QueryParam normalizes a query parameter by trimming whitespace.
func QueryParam(s string) string {
	return strings.TrimSpace(s)
}

// Spaces collapses every run of whitespace to a single space and trims the ends.
func Spaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
