package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/edvin/panel/internal/api/response"
	"github.com/edvin/panel/internal/installer"
	"github.com/edvin/panel/internal/ops"
)

// Operation exposes the status of accepted long-running work.
type Operation struct {
	tracker *ops.Tracker
	inst    *installer.Installer
}

func NewOperation(tracker *ops.Tracker, inst *installer.Installer) *Operation {
	return &Operation{tracker: tracker, inst: inst}
}

// List godoc
//
//	@Summary		List operations
//	@Tags			Operations
//	@Security		ApiKeyAuth
//	@Param			kind query string false "Filter by operation kind"
//	@Success		200 {array} model.Operation
//	@Router			/operations [get]
func (h *Operation) List(w http.ResponseWriter, r *http.Request) {
	response.WriteJSON(w, http.StatusOK, h.tracker.List(r.URL.Query().Get("kind")))
}

// Get godoc
//
//	@Summary		Get an operation
//	@Tags			Operations
//	@Security		ApiKeyAuth
//	@Param			id path string true "Operation ID"
//	@Success		200 {object} model.Operation
//	@Failure		404 {object} response.ErrorResponse
//	@Router			/operations/{id} [get]
func (h *Operation) Get(w http.ResponseWriter, r *http.Request) {
	op, err := h.tracker.Get(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, op)
}

// Abort godoc
//
//	@Summary		Abort an operation
//	@Description	Cancels an install or uninstall. Other operation kinds run to completion.
//	@Tags			Operations
//	@Security		ApiKeyAuth
//	@Param			id path string true "Operation ID"
//	@Success		200 {object} model.Operation
//	@Failure		400 {object} response.ErrorResponse
//	@Failure		404 {object} response.ErrorResponse
//	@Failure		409 {object} response.ErrorResponse
//	@Router			/operations/{id}/abort [post]
func (h *Operation) Abort(w http.ResponseWriter, r *http.Request) {
	op, err := h.inst.Abort(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, op)
}
