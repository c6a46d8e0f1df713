package textgen

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DecodeJSON unmarshals a model response into target. Models sometimes wrap
// the payload in a markdown code fence despite the JSON response format, so
// fences are stripped before decoding.
func DecodeJSON(content string, target any) error {
	cleaned := stripCodeFence(content)
	if cleaned == "" {
		return fmt.Errorf("textgen decode: empty response")
	}
	if err := json.Unmarshal([]byte(cleaned), target); err != nil {
		return fmt.Errorf("textgen decode: %w", err)
	}
	return nil
}

func stripCodeFence(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if newline := strings.Index(trimmed, "\n"); newline >= 0 {
		head := strings.TrimSpace(trimmed[:newline])
		if head == "json" || head == "" {
			trimmed = trimmed[newline+1:]
		}
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
