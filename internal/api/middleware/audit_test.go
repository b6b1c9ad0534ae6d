package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractResource(t *testing.T) {
	cases := []struct {
		path, typ, id string
	}{
		{"/api/v1/services", "services", ""},
		{"/api/v1/services/nginx", "services", "nginx"},
		{"/api/v1/services/php/install", "services", "php"},
		{"/api/v1/docker/containers/abc/stop", "containers", "abc"},
		{"/api/v1/ssl/self-signed", "ssl", "self-signed"},
		{"/api/v1/", "", ""},
	}
	for _, tc := range cases {
		typ, id := extractResource(tc.path)
		assert.Equal(t, tc.typ, typ, tc.path)
		assert.Equal(t, tc.id, id, tc.path)
	}
}

func TestSanitizeBody(t *testing.T) {
	body := []byte(`{"domain":"example.com","key_pem":"---BEGIN---","env":{"MYSQL_ROOT_PASSWORD":"x"}}`)
	sanitized := sanitizeBody(body)

	var result map[string]any
	require.NoError(t, json.Unmarshal(sanitized, &result))
	assert.Equal(t, "example.com", result["domain"])
	assert.Equal(t, "[REDACTED]", result["key_pem"])
	assert.Equal(t, "[REDACTED]", result["env"])
}

func TestAudit_LogsMutationsOnly(t *testing.T) {
	var buf bytes.Buffer
	var seen string
	handler := Audit(zerolog.New(&buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var b bytes.Buffer
		b.ReadFrom(r.Body)
		seen = b.String()
		w.WriteHeader(http.StatusCreated)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/v1/cron", nil))
	assert.Empty(t, buf.String())

	body := `{"name":"backup","command":"true"}`
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/api/v1/cron", strings.NewReader(body)))
	assert.Equal(t, body, seen, "handler still reads the body")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "audit", entry["message"])
	assert.Equal(t, "cron", entry["resource_type"])
	assert.Equal(t, "system", entry["actor"])
	assert.EqualValues(t, http.StatusCreated, entry["status"])
	assert.Equal(t, "backup", entry["body"].(map[string]any)["name"])
}
