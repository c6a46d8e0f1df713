// Package script holds the pure text logic for generated audio lines:
// sanitation, constraint validation, deterministic fallback construction, and
// tag handling. Nothing in this package performs I/O.
package script

import "strings"

var spokenReplacer = strings.NewReplacer("\r", " ", "\n", " ", "\t", " ")

// SanitizeSpoken collapses whitespace so a line is safe to hand to the speech
// provider: newlines and tabs become spaces, runs of spaces collapse to one.
func SanitizeSpoken(text string) string {
	s := spokenReplacer.Replace(text)
	return strings.Join(strings.Fields(s), " ")
}

// Article returns "an" for vowel-initial names and "a" otherwise.
func Article(name string) string {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "a"
	}
	switch trimmed[0] {
	case 'a', 'e', 'i', 'o', 'u', 'A', 'E', 'I', 'O', 'U':
		return "an"
	}
	return "a"
}

// FirstSentence returns the text up to (excluding) the first sentence
// terminator, or the whole string when none is present.
func FirstSentence(text string) string {
	if idx := strings.IndexAny(text, ".!?"); idx >= 0 {
		return strings.TrimSpace(text[:idx])
	}
	return strings.TrimSpace(text)
}

// AfterFirstSentence returns the text after the first sentence terminator,
// or "" when none is present.
func AfterFirstSentence(text string) string {
	if idx := strings.IndexAny(text, ".!?"); idx >= 0 {
		return strings.TrimSpace(text[idx+1:])
	}
	return ""
}
