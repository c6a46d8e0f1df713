package script

import (
	"strings"

	"menagerie/internal/catalog"
)

// Fallback builds a clean spoken line with no model call: the standard opener
// followed by the first sentence of the best available fact. Returns just the
// opener when the entity has no usable facts.
func Fallback(entityName string, facts catalog.Facts) string {
	rawFact := SanitizeSpoken(facts.Best())
	rawFact = scrubBanned(rawFact)
	rawFact = dropIntroSentence(rawFact, entityName)

	opener := "I'm " + Article(entityName) + " " + strings.TrimSpace(entityName) + "."

	factChunk := FirstSentence(rawFact)
	if factChunk == "" {
		return opener
	}
	if !strings.HasSuffix(factChunk, ".") {
		factChunk += "."
	}
	return SanitizeSpoken(opener + " " + factChunk)
}

// scrubBanned removes banned phrases from curated fact text. Curated facts
// occasionally carry the same cheesy openers the validator rejects.
func scrubBanned(text string) string {
	lowered := strings.ToLower(text)
	for _, phrase := range BannedPhrases {
		for {
			idx := strings.Index(lowered, phrase)
			if idx < 0 {
				break
			}
			text = text[:idx] + text[idx+len(phrase):]
			text = SanitizeSpoken(text)
			lowered = strings.ToLower(text)
		}
	}
	return text
}

// dropIntroSentence strips a leading "I'm a/an <name>" sentence from curated
// fact text; the fallback always prepends its own opener, and a duplicated
// intro reads badly aloud.
func dropIntroSentence(text, entityName string) string {
	stripped := StripLeadingTag(text)
	lowered := strings.ToLower(stripped)
	if !strings.HasPrefix(lowered, "i'm a ") && !strings.HasPrefix(lowered, "i'm an ") {
		return stripped
	}
	window := len(entityName) + 10
	if window < 40 {
		window = 40
	}
	if window > len(lowered) {
		window = len(lowered)
	}
	nameKey := catalog.NormalizeName(entityName)
	if nameKey == "" || !strings.Contains(catalog.NormalizeName(lowered[:window]), nameKey) {
		return stripped
	}
	return SanitizeSpoken(AfterFirstSentence(stripped))
}
