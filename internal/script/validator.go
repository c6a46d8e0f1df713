package script

import (
	"strings"

	"menagerie/internal/catalog"
)

// BannedPhrases are hype words and templated openers that must never appear
// in a generated line. Matched case-insensitively as substrings.
var BannedPhrases = []string{
	"did you know",
	"guess what",
	"wow",
	"amazing",
	"incredible",
	"happy",
	"listen to this",
	"here's something interesting",
	"something interesting about",
	"fun fact",
	"something special about",
	"meet the",
	"special",
	"what's really interesting",
	"pretty neat",
	"right?",
	"can you say",
}

// StripLeadingTag removes at most one leading [tag] marker.
func StripLeadingTag(line string) string {
	trimmed := strings.TrimSpace(line)
	if strings.HasPrefix(trimmed, "[") {
		if close := strings.Index(trimmed, "]"); close >= 0 {
			return strings.TrimSpace(trimmed[close+1:])
		}
	}
	return trimmed
}

// LeadingTag returns the leading [tag] marker including brackets, or "".
func LeadingTag(line string) string {
	trimmed := strings.TrimSpace(line)
	if strings.HasPrefix(trimmed, "[") {
		if close := strings.Index(trimmed, "]"); close >= 0 {
			return trimmed[:close+1]
		}
	}
	return ""
}

// ContainsBanned reports the first banned phrase found in the line, if any.
func ContainsBanned(line string) (string, bool) {
	lowered := strings.ToLower(line)
	for _, phrase := range BannedPhrases {
		if strings.Contains(lowered, phrase) {
			return phrase, true
		}
	}
	return "", false
}

// HasMarkup reports whether the line contains angle-bracket markup of any
// kind (SSML, XML); none is permitted in spoken lines.
func HasMarkup(line string) bool {
	return strings.ContainsAny(line, "<>")
}

// IsValid decides whether a generated line satisfies the structural and
// lexical rules for a spoken fact line:
//
//  1. After removing at most one leading [tag], the line starts with
//     "I'm a" or "I'm an" followed by the entity's display name.
//  2. At least 3 words follow the first sentence terminator, so an opener
//     with no fact attached is rejected.
//  3. No banned phrase appears anywhere (case-insensitive).
//  4. No angle-bracket markup.
func IsValid(line, entityName string) bool {
	if _, banned := ContainsBanned(line); banned {
		return false
	}
	if HasMarkup(line) {
		return false
	}

	base := strings.ToLower(StripLeadingTag(line))
	if !strings.HasPrefix(base, "i'm a ") && !strings.HasPrefix(base, "i'm an ") {
		return false
	}

	// The entity name must appear in the opening region. Compare normalized
	// forms so dataset punctuation quirks do not cause false negatives.
	window := max(60, len(entityName)+20)
	if window > len(base) {
		window = len(base)
	}
	if catalog.NormalizeName(entityName) == "" ||
		!strings.Contains(catalog.NormalizeName(base[:window]), catalog.NormalizeName(entityName)) {
		return false
	}

	after := AfterFirstSentence(base)
	return len(strings.Fields(after)) >= 3
}

// ValidateBatch checks a batch response: the returned set of entity names
// must exactly equal the submitted set, and every non-empty line must satisfy
// the single-line rules for its entity. Empty lines are accepted only when
// allowEmpty is set (invention disallowed and the entity had no facts).
// requireTag additionally demands a leading mood tag on every non-empty line.
func ValidateBatch(lines map[string]string, expected []string, requireTag, allowEmpty bool) bool {
	expectedSet := make(map[string]struct{}, len(expected))
	for _, name := range expected {
		if key := catalog.NormalizeName(name); key != "" {
			expectedSet[key] = struct{}{}
		}
	}
	if len(lines) != len(expectedSet) {
		return false
	}
	for name, line := range lines {
		key := catalog.NormalizeName(name)
		if _, ok := expectedSet[key]; !ok {
			return false
		}
		line = SanitizeSpoken(line)
		if line == "" {
			if !allowEmpty {
				return false
			}
			continue
		}
		if requireTag && LeadingTag(line) == "" {
			return false
		}
		if !IsValid(line, name) {
			return false
		}
	}
	return true
}
