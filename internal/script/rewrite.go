package script

import (
	"regexp"
	"strings"
)

// RewriteRepeatedName replaces a second sentence that opens by repeating the
// entity name with "I", so lines like "I'm a Trumpet Fish. Trumpet fish swim
// vertically." become "I'm a Trumpet Fish. I swim vertically." The leading
// tag, when present, is preserved.
func RewriteRepeatedName(line, entityName string) string {
	s := SanitizeSpoken(line)
	name := strings.TrimSpace(entityName)
	if s == "" || name == "" {
		return s
	}

	tag := LeadingTag(s)
	rest := StripLeadingTag(s)

	idx := strings.Index(rest, ".")
	if idx < 0 {
		return s
	}
	first := strings.TrimSpace(rest[:idx])
	second := strings.TrimSpace(rest[idx+1:])
	if second == "" {
		return s
	}

	pattern, err := regexp.Compile(`(?i)^(?:the\s+)?` + regexp.QuoteMeta(name) + `\b`)
	if err != nil {
		return s
	}
	rewritten := SanitizeSpoken(pattern.ReplaceAllString(second, "I"))
	if rewritten == "" {
		return s
	}

	rebuilt := first + ". " + rewritten
	if tag != "" {
		rebuilt = tag + " " + rebuilt
	}
	return SanitizeSpoken(rebuilt)
}
