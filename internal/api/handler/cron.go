package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/edvin/panel/internal/api/request"
	"github.com/edvin/panel/internal/api/response"
	"github.com/edvin/panel/internal/cron"
)

type Cron struct {
	engine *cron.Engine
}

func NewCron(e *cron.Engine) *Cron {
	return &Cron{engine: e}
}

func toSpec(req request.CronJob) cron.Spec {
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	return cron.Spec{
		Name:     req.Name,
		Schedule: req.Schedule,
		Command:  req.Command,
		Type:     req.Type,
		Enabled:  enabled,
	}
}

// List godoc
//
//	@Summary		List cron jobs
//	@Tags			Cron
//	@Security		ApiKeyAuth
//	@Success		200 {array} model.CronJob
//	@Failure		500 {object} response.ErrorResponse
//	@Router			/cron [get]
func (h *Cron) List(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.engine.List(r.Context())
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, jobs)
}

// Create godoc
//
//	@Summary		Create a cron job
//	@Tags			Cron
//	@Security		ApiKeyAuth
//	@Param			body body request.CronJob true "Job definition"
//	@Success		201 {object} model.CronJob
//	@Failure		400 {object} response.ErrorResponse
//	@Failure		409 {object} response.ErrorResponse
//	@Failure		422 {object} response.ErrorResponse
//	@Router			/cron [post]
func (h *Cron) Create(w http.ResponseWriter, r *http.Request) {
	var req request.CronJob
	if err := request.Decode(r, &req); err != nil {
		response.WriteServiceError(w, err)
		return
	}
	job, err := h.engine.Create(r.Context(), toSpec(req))
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, job)
}

// Get godoc
//
//	@Summary		Get a cron job
//	@Tags			Cron
//	@Security		ApiKeyAuth
//	@Param			id path string true "Job ID"
//	@Success		200 {object} model.CronJob
//	@Failure		404 {object} response.ErrorResponse
//	@Router			/cron/{id} [get]
func (h *Cron) Get(w http.ResponseWriter, r *http.Request) {
	job, err := h.engine.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, job)
}

// Update godoc
//
//	@Summary		Update a cron job
//	@Description	Replaces the job definition. Run history and last-run state are kept.
//	@Tags			Cron
//	@Security		ApiKeyAuth
//	@Param			id path string true "Job ID"
//	@Param			body body request.CronJob true "Job definition"
//	@Success		200 {object} model.CronJob
//	@Failure		400 {object} response.ErrorResponse
//	@Failure		404 {object} response.ErrorResponse
//	@Failure		422 {object} response.ErrorResponse
//	@Router			/cron/{id} [put]
func (h *Cron) Update(w http.ResponseWriter, r *http.Request) {
	var req request.CronJob
	if err := request.Decode(r, &req); err != nil {
		response.WriteServiceError(w, err)
		return
	}
	job, err := h.engine.Update(r.Context(), chi.URLParam(r, "id"), toSpec(req))
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, job)
}

// Toggle godoc
//
//	@Summary		Enable or disable a cron job
//	@Description	Enables or disables scheduling, named by the last path segment.
//	@Tags			Cron
//	@Security		ApiKeyAuth
//	@Param			id path string true "Job ID"
//	@Success		200 {object} model.CronJob
//	@Failure		404 {object} response.ErrorResponse
//	@Router			/cron/{id}/enable [post]
//	@Router			/cron/{id}/disable [post]
func (h *Cron) Toggle(w http.ResponseWriter, r *http.Request) {
	enabled := strings.HasSuffix(r.URL.Path, "/enable")
	job, err := h.engine.SetEnabled(r.Context(), chi.URLParam(r, "id"), enabled)
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, job)
}

// Delete godoc
//
//	@Summary		Delete a cron job
//	@Tags			Cron
//	@Security		ApiKeyAuth
//	@Param			id path string true "Job ID"
//	@Success		204
//	@Failure		404 {object} response.ErrorResponse
//	@Router			/cron/{id} [delete]
func (h *Cron) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		response.WriteServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Run godoc
//
//	@Summary		Run a cron job now
//	@Description	Executes the job now and replies with the finished run. A failing command is a successful request; the run carries the exit code.
//	@Tags			Cron
//	@Security		ApiKeyAuth
//	@Param			id path string true "Job ID"
//	@Success		200 {object} model.CronRun
//	@Failure		404 {object} response.ErrorResponse
//	@Failure		409 {object} response.ErrorResponse
//	@Router			/cron/{id}/run [post]
func (h *Cron) Run(w http.ResponseWriter, r *http.Request) {
	// The run is bounded by the engine's own timeout, which exceeds the
	// server write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	run, err := h.engine.Run(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, run)
}

// History godoc
//
//	@Summary		List runs of a cron job
//	@Tags			Cron
//	@Security		ApiKeyAuth
//	@Param			id path string true "Job ID"
//	@Success		200 {array} model.CronRun
//	@Failure		404 {object} response.ErrorResponse
//	@Router			/cron/{id}/history [get]
func (h *Cron) History(w http.ResponseWriter, r *http.Request) {
	runs, err := h.engine.History(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, runs)
}
