package response

import (
	"encoding/json"
	"net/http"

	"github.com/edvin/panel/internal/core"
)

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string    `json:"error"`
	Kind  core.Kind `json:"kind,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, ErrorResponse{Error: message})
}

// WriteServiceError writes err with the status its kind maps to. Errors
// without a kind are reported as internal errors.
func WriteServiceError(w http.ResponseWriter, err error) {
	kind := core.KindOf(err)
	WriteJSON(w, StatusFor(kind), ErrorResponse{Error: err.Error(), Kind: kind})
}

// StatusFor maps an error kind to an HTTP status code.
func StatusFor(kind core.Kind) int {
	switch kind {
	case core.NotFound:
		return http.StatusNotFound
	case core.InvalidInput:
		return http.StatusBadRequest
	case core.NotInstalled, core.AlreadyExists, core.Conflict, core.Busy,
		core.InUse, core.ContainerRunning:
		return http.StatusConflict
	case core.InvalidSchedule, core.InsufficientResources, core.ValidationFailed, core.TooEarly:
		return http.StatusUnprocessableEntity
	case core.RateLimited:
		return http.StatusTooManyRequests
	case core.Timeout:
		return http.StatusGatewayTimeout
	case core.Unavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
