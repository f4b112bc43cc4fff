package provider

import (
	"encoding/json"
	"strings"
)

// decodeLoose best-effort parses LLM output. Text that looks like JSON
// (leading '{' or '[') and parses cleanly is returned as the decoded value;
// anything else comes back as the raw string. Malformed "JSON-looking" text
// is not an error — the parsing burden shifts to the caller.
func decodeLoose(text string) any {
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		var v any
		if err := json.Unmarshal([]byte(trimmed), &v); err == nil {
			return v
		}
	}
	return text
}
