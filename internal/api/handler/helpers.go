package handler

import (
	"net/http"
	"slices"

	"github.com/edvin/panel/internal/api/response"
	"github.com/edvin/panel/internal/model"
)

// writeOperation answers an accepted long-running request. The body is the
// operation; Location points at its poll endpoint.
func writeOperation(w http.ResponseWriter, op model.Operation) {
	w.Header().Set("Location", "/api/v1/operations/"+op.ID)
	response.WriteJSON(w, http.StatusAccepted, op)
}

func sorted(s []string) []string {
	slices.Sort(s)
	return s
}
