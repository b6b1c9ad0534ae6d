package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/panel/internal/core"
)

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	payload := map[string]string{"hello": "world"}

	WriteJSON(w, http.StatusOK, payload)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body map[string]string
	err := json.Unmarshal(w.Body.Bytes(), &body)
	require.NoError(t, err)
	assert.Equal(t, "world", body["hello"])
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()

	WriteError(w, http.StatusBadRequest, "something went wrong")

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var body map[string]string
	err := json.Unmarshal(w.Body.Bytes(), &body)
	require.NoError(t, err)
	assert.Equal(t, "something went wrong", body["error"])
	_, hasKind := body["kind"]
	assert.False(t, hasKind)
}

func TestWriteServiceError(t *testing.T) {
	w := httptest.NewRecorder()
	err := fmt.Errorf("deploy: %w", core.Errorf(core.InsufficientResources, "need 512 MiB"))

	WriteServiceError(w, err)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, core.InsufficientResources, body.Kind)
	assert.Equal(t, "deploy: need 512 MiB", body.Error)
}

func TestWriteServiceError_PlainError(t *testing.T) {
	w := httptest.NewRecorder()

	WriteServiceError(w, errors.New("boom"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, core.InternalError, body.Kind)
}

func TestStatusFor(t *testing.T) {
	cases := map[core.Kind]int{
		core.NotFound:              http.StatusNotFound,
		core.InvalidInput:          http.StatusBadRequest,
		core.NotInstalled:          http.StatusConflict,
		core.AlreadyExists:         http.StatusConflict,
		core.Conflict:              http.StatusConflict,
		core.Busy:                  http.StatusConflict,
		core.InUse:                 http.StatusConflict,
		core.ContainerRunning:      http.StatusConflict,
		core.InvalidSchedule:       http.StatusUnprocessableEntity,
		core.InsufficientResources: http.StatusUnprocessableEntity,
		core.ValidationFailed:      http.StatusUnprocessableEntity,
		core.TooEarly:              http.StatusUnprocessableEntity,
		core.RateLimited:           http.StatusTooManyRequests,
		core.Timeout:               http.StatusGatewayTimeout,
		core.Unavailable:           http.StatusServiceUnavailable,
		core.CryptoError:           http.StatusInternalServerError,
		core.InternalError:         http.StatusInternalServerError,
	}
	for kind, status := range cases {
		assert.Equal(t, status, StatusFor(kind), string(kind))
	}
}
