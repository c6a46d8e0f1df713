package script

import "strings"

// SimpleTags is the tag whitelist for deterministically decorated simple
// lines. Pause tags are excluded on purpose: these lines play the instant a
// button is pressed, so leading silence is unacceptable.
var SimpleTags = []string{"[curious]", "[excited]", "[thoughtful]"}

// BatchTags is the wider whitelist offered to the model in batch mode.
var BatchTags = []string{"[curious]", "[excited]", "[playful]", "[whispers]", "[giggles]", "[surprised]"}

// TagFor picks a mood tag for an identifier using a stable content hash, so
// repeated runs decorate the same entity with the same tag.
func TagFor(identifier string) string {
	if identifier == "" {
		return SimpleTags[0]
	}
	sum := 0
	for _, r := range identifier {
		sum += int(r)
	}
	return SimpleTags[sum%len(SimpleTags)]
}

// EnsureTag prepends the deterministic tag for identifier when the line does
// not already start with one.
func EnsureTag(line, identifier string) string {
	if strings.HasPrefix(strings.TrimSpace(line), "[") {
		return line
	}
	return SanitizeSpoken(TagFor(identifier) + " " + line)
}
