package orchestrator

import "strings"

const maxParamTextLen = 200

// secretKeys are parameter names whose values never reach the call history.
var secretKeys = []string{"apikey", "api_key", "token", "password", "secret", "authorization", "credential"}

// sanitizeParams copies params for the call record: secret-named keys are
// redacted and long strings truncated. The copy is shallow beyond the
// observable transformations; records are observational only and never feed
// back into behavior.
func sanitizeParams(params map[string]any) map[string]any {
	if len(params) == 0 {
		return nil
	}
	out := make(map[string]any, len(params))
	for k, v := range params {
		if isSecretKey(k) {
			out[k] = "[redacted]"
			continue
		}
		switch val := v.(type) {
		case string:
			if len(val) > maxParamTextLen {
				out[k] = val[:maxParamTextLen] + "…"
			} else {
				out[k] = val
			}
		case map[string]any:
			out[k] = sanitizeParams(val)
		default:
			out[k] = v
		}
	}
	return out
}

func isSecretKey(k string) bool {
	lower := strings.ToLower(k)
	for _, s := range secretKeys {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}
