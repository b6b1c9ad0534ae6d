package request

import (
	"bytes"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/panel/internal/core"
)

func TestRequireID_Valid(t *testing.T) {
	result, err := RequireID("550e8400-e29b-41d4-a716-446655440000")
	require.NoError(t, err)
	assert.Equal(t, "550e8400-e29b-41d4-a716-446655440000", result)
}

func TestRequireID_Empty(t *testing.T) {
	_, err := RequireID("")
	require.Error(t, err)
	assert.Equal(t, core.InvalidInput, core.KindOf(err))
	assert.Contains(t, err.Error(), "missing required ID")
}

func post(t *testing.T, body string) *http.Request {
	t.Helper()
	r, err := http.NewRequest(http.MethodPost, "/", bytes.NewBufferString(body))
	require.NoError(t, err)
	return r
}

func TestDecode_Valid(t *testing.T) {
	var payload CreateFirewallRule
	err := Decode(post(t, `{"port":22,"protocol":"tcp","action":"allow"}`), &payload)
	require.NoError(t, err)
	assert.Equal(t, 22, payload.Port)
	assert.Nil(t, payload.Enabled)
}

func TestDecode_InvalidJSON(t *testing.T) {
	var payload CreateFirewallRule
	err := Decode(post(t, `{not valid json}`), &payload)
	require.Error(t, err)
	assert.Equal(t, core.InvalidInput, core.KindOf(err))
	assert.Contains(t, err.Error(), "invalid JSON")
}

func TestDecode_ValidationFails(t *testing.T) {
	cases := map[string]struct {
		body string
		v    any
	}{
		"missing action":  {`{"port":22}`, &CreateFirewallRule{}},
		"bad protocol":    {`{"port":22,"action":"allow","protocol":"icmp"}`, &CreateFirewallRule{}},
		"port range":      {`{"port":70000,"action":"allow"}`, &CreateFirewallRule{}},
		"evaluate ip":     {`{"port":22,"protocol":"tcp","source":"nope"}`, &EvaluateFirewall{}},
		"cron type":       {`{"name":"x","schedule":"* * * * *","command":"true","type":"php"}`, &CronJob{}},
		"email":           {`{"domain":"example.com","email":"not-an-email"}`, &IssueCertificate{}},
		"empty config":    {`{"values":{}}`, &UpdateConfig{}},
		"default version": {`{}`, &SetDefaultVersion{}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			err := Decode(post(t, tc.body), tc.v)
			require.Error(t, err)
			assert.Equal(t, core.InvalidInput, core.KindOf(err))
			assert.Contains(t, err.Error(), "validation error")
		})
	}
}

func TestDecodeOptional_EmptyBody(t *testing.T) {
	var payload ServiceVersion
	require.NoError(t, DecodeOptional(post(t, ""), &payload))
	assert.Empty(t, payload.Version)

	require.NoError(t, DecodeOptional(post(t, `{"version":"8.2"}`), &payload))
	assert.Equal(t, "8.2", payload.Version)

	err := DecodeOptional(post(t, `{"version":`), &payload)
	assert.Equal(t, core.InvalidInput, core.KindOf(err))
}
