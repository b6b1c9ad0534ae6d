package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/edvin/panel/internal/activity"
)

// maxAuditBody bounds how much of a request body is copied into the log.
const maxAuditBody = 8 << 10

// Audit logs every mutating API request with the acting user, the resource
// it addressed and a redacted copy of its body.
func Audit(logger zerolog.Logger) func(http.Handler) http.Handler {
	logger = logger.With().Str("component", "audit").Logger()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost && r.Method != http.MethodPut && r.Method != http.MethodDelete {
				next.ServeHTTP(w, r)
				return
			}

			var bodyBytes []byte
			if r.Body != nil {
				bodyBytes, _ = io.ReadAll(r.Body)
				r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			}

			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)

			resourceType, resourceID := extractResource(r.URL.Path)
			ev := logger.Info().
				Str("actor", activity.ActorFrom(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("resource_type", resourceType).
				Int("status", sw.status)
			if resourceID != "" {
				ev = ev.Str("resource_id", resourceID)
			}
			if len(bodyBytes) > 0 && len(bodyBytes) <= maxAuditBody && json.Valid(bodyBytes) {
				ev = ev.RawJSON("body", sanitizeBody(bodyBytes))
			}
			ev.Msg("audit")
		})
	}
}

// extractResource returns the resource collection and id a path addresses.
// Trailing action segments such as /start or /renew are not ids.
//
//	/api/v1/services              -> services
//	/api/v1/services/nginx        -> services, nginx
//	/api/v1/services/nginx/start  -> services, nginx
//	/api/v1/docker/containers/abc -> containers, abc
func extractResource(path string) (string, string) {
	var parts []string
	for _, p := range strings.Split(strings.TrimPrefix(path, "/api/v1/"), "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) > 0 && parts[0] == "docker" {
		parts = parts[1:]
	}
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	default:
		return parts[0], parts[1]
	}
}

// sensitiveFields are redacted from audit entries.
var sensitiveFields = map[string]bool{
	"key_pem": true, "cert_pem": true, "password": true,
	"env": true, "secret": true, "token": true,
}

func sanitizeBody(body []byte) json.RawMessage {
	var data map[string]any
	if err := json.Unmarshal(body, &data); err != nil {
		return body
	}
	for k := range data {
		if sensitiveFields[k] {
			data[k] = "[REDACTED]"
		}
	}
	sanitized, _ := json.Marshal(data)
	return sanitized
}
