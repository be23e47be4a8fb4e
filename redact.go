package llmrelay

import (
	"log/slog"
	"net/http"
	"strings"
)

// RedactKey masks a secret for logs, keeping only the last 4 characters.
// A "Bearer " prefix is preserved.
func RedactKey(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	if len(trimmed) > 7 && strings.EqualFold(trimmed[:7], "bearer ") {
		return "Bearer " + mask(trimmed[7:])
	}
	return mask(trimmed)
}

func mask(value string) string {
	if len(value) <= 4 {
		return "****"
	}
	return "****" + value[len(value)-4:]
}

var secretHeaders = []string{"Authorization", "X-Api-Key", "X-Goog-Api-Key"}

// RedactHeaders returns a slog attribute listing h with secret headers masked.
func RedactHeaders(h http.Header) slog.Attr {
	attrs := make([]any, 0, len(h))
	for name, values := range h {
		v := strings.Join(values, ",")
		for _, s := range secretHeaders {
			if strings.EqualFold(name, s) {
				v = RedactKey(v)
				break
			}
		}
		attrs = append(attrs, slog.String(name, v))
	}
	return slog.Group("headers", attrs...)
}
