package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/edvin/panel/internal/activity"
	"github.com/edvin/panel/internal/api/request"
	"github.com/edvin/panel/internal/api/response"
	"github.com/edvin/panel/internal/core"
	"github.com/edvin/panel/internal/installer"
	"github.com/edvin/panel/internal/model"
	"github.com/edvin/panel/internal/registry"
	"github.com/edvin/panel/internal/supervisor"
)

// Service serves the managed-service catalog: listing, install and
// lifecycle actions, configuration and logs.
type Service struct {
	reg  *registry.Registry
	sup  *supervisor.Supervisor
	inst *installer.Installer
	feed activity.Recorder
}

func NewService(reg *registry.Registry, sup *supervisor.Supervisor, inst *installer.Installer, feed activity.Recorder) *Service {
	return &Service{reg: reg, sup: sup, inst: inst, feed: feed}
}

// List godoc
//
//	@Summary		List managed services
//	@Tags			Services
//	@Security		ApiKeyAuth
//	@Param			type query string false "Filter by service type"
//	@Success		200 {array} model.ManagedService
//	@Failure		400 {object} response.ErrorResponse
//	@Router			/services [get]
func (h *Service) List(w http.ResponseWriter, r *http.Request) {
	typ := model.ServiceType(r.URL.Query().Get("type"))
	if typ != "" && !model.ValidServiceType(typ) {
		response.WriteServiceError(w, core.Errorf(core.InvalidInput, "unknown service type %q", typ))
		return
	}
	response.WriteJSON(w, http.StatusOK, h.reg.List(typ))
}

// Get godoc
//
//	@Summary		Get a managed service
//	@Tags			Services
//	@Security		ApiKeyAuth
//	@Param			id path string true "Service ID"
//	@Success		200 {object} model.ManagedService
//	@Failure		404 {object} response.ErrorResponse
//	@Router			/services/{id} [get]
func (h *Service) Get(w http.ResponseWriter, r *http.Request) {
	svc, err := h.sup.Status(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, svc)
}

// Install godoc
//
//	@Summary		Install a service version
//	@Description	Accepts the install and returns the operation to poll.
//	@Tags			Services
//	@Security		ApiKeyAuth
//	@Param			id path string true "Service ID"
//	@Param			body body request.ServiceVersion false "Version to install"
//	@Success		202 {object} model.Operation
//	@Failure		400 {object} response.ErrorResponse
//	@Failure		404 {object} response.ErrorResponse
//	@Failure		409 {object} response.ErrorResponse
//	@Failure		422 {object} response.ErrorResponse
//	@Router			/services/{id}/install [post]
func (h *Service) Install(w http.ResponseWriter, r *http.Request) {
	var req request.ServiceVersion
	if err := request.DecodeOptional(r, &req); err != nil {
		response.WriteServiceError(w, err)
		return
	}
	op, err := h.inst.Install(r.Context(), chi.URLParam(r, "id"), req.Version)
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	writeOperation(w, op)
}

// Uninstall godoc
//
//	@Summary		Uninstall a service version
//	@Tags			Services
//	@Security		ApiKeyAuth
//	@Param			id path string true "Service ID"
//	@Param			body body request.ServiceVersion false "Version to remove"
//	@Success		202 {object} model.Operation
//	@Failure		400 {object} response.ErrorResponse
//	@Failure		404 {object} response.ErrorResponse
//	@Failure		409 {object} response.ErrorResponse
//	@Router			/services/{id}/uninstall [post]
func (h *Service) Uninstall(w http.ResponseWriter, r *http.Request) {
	var req request.ServiceVersion
	if err := request.DecodeOptional(r, &req); err != nil {
		response.WriteServiceError(w, err)
		return
	}
	op, err := h.inst.Uninstall(r.Context(), chi.URLParam(r, "id"), req.Version)
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	writeOperation(w, op)
}

// Action godoc
//
//	@Summary		Start, stop or restart a service
//	@Description	Runs start, stop or restart, named by the last path segment.
//	@Tags			Services
//	@Security		ApiKeyAuth
//	@Param			id path string true "Service ID"
//	@Param			version query string false "Version, defaults to the default version"
//	@Success		200 {object} model.ManagedService
//	@Failure		400 {object} response.ErrorResponse
//	@Failure		404 {object} response.ErrorResponse
//	@Failure		409 {object} response.ErrorResponse
//	@Failure		500 {object} response.ErrorResponse
//	@Router			/services/{id}/start [post]
//	@Router			/services/{id}/stop [post]
//	@Router			/services/{id}/restart [post]
func (h *Service) Action(w http.ResponseWriter, r *http.Request) {
	var req request.ServiceVersion
	if err := request.DecodeOptional(r, &req); err != nil {
		response.WriteServiceError(w, err)
		return
	}
	if req.Version == "" {
		req.Version = r.URL.Query().Get("version")
	}

	id := chi.URLParam(r, "id")
	var (
		svc model.ManagedService
		err error
	)
	switch action := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]; action {
	case "start":
		svc, err = h.sup.Start(r.Context(), id, req.Version)
	case "stop":
		svc, err = h.sup.Stop(r.Context(), id, req.Version)
	case "restart":
		svc, err = h.sup.Restart(r.Context(), id, req.Version)
	default:
		err = core.Errorf(core.InvalidInput, "unknown action %q", action)
	}
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, svc)
}

// SetDefault godoc
//
//	@Summary		Set the default version
//	@Tags			Services
//	@Security		ApiKeyAuth
//	@Param			id path string true "Service ID"
//	@Param			body body request.SetDefaultVersion true "Version"
//	@Success		200 {object} model.ManagedService
//	@Failure		400 {object} response.ErrorResponse
//	@Failure		404 {object} response.ErrorResponse
//	@Failure		409 {object} response.ErrorResponse
//	@Router			/services/{id}/default [put]
func (h *Service) SetDefault(w http.ResponseWriter, r *http.Request) {
	var req request.SetDefaultVersion
	if err := request.Decode(r, &req); err != nil {
		response.WriteServiceError(w, err)
		return
	}
	svc, err := h.inst.SetDefault(r.Context(), chi.URLParam(r, "id"), req.Version)
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, svc)
}

// GetConfig godoc
//
//	@Summary		Get configuration options
//	@Tags			Services
//	@Security		ApiKeyAuth
//	@Param			id path string true "Service ID"
//	@Success		200 {array} model.OptionView
//	@Failure		404 {object} response.ErrorResponse
//	@Failure		503 {object} response.ErrorResponse
//	@Router			/services/{id}/config [get]
func (h *Service) GetConfig(w http.ResponseWriter, r *http.Request) {
	opts, err := h.reg.ConfigOptions(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, opts)
}

// UpdateConfig godoc
//
//	@Summary		Update configuration values
//	@Description	Validates every value before any is applied. The reply is the service, whose pending_restart tells the console to offer a restart.
//	@Tags			Services
//	@Security		ApiKeyAuth
//	@Param			id path string true "Service ID"
//	@Param			body body request.UpdateConfig true "Values keyed by option"
//	@Success		200 {object} model.ManagedService
//	@Failure		400 {object} response.ErrorResponse
//	@Failure		404 {object} response.ErrorResponse
//	@Failure		409 {object} response.ErrorResponse
//	@Failure		422 {object} response.ErrorResponse
//	@Failure		500 {object} response.ErrorResponse
//	@Router			/services/{id}/config [put]
func (h *Service) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	var req request.UpdateConfig
	if err := request.Decode(r, &req); err != nil {
		response.WriteServiceError(w, err)
		return
	}
	id := chi.URLParam(r, "id")
	svc, err := h.reg.SetConfig(id, req.Values)
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}

	keys := make([]string, 0, len(req.Values))
	for k := range req.Values {
		keys = append(keys, k)
	}
	h.feed.Record(r.Context(), model.Activity{
		Type:     model.ActivityConfig,
		Title:    "Updated " + svc.Name + " configuration",
		Status:   model.OutcomeSuccess,
		Metadata: map[string]string{"service": id, "keys": strings.Join(sorted(keys), ",")},
	})
	response.WriteJSON(w, http.StatusOK, svc)
}

// Logs godoc
//
//	@Summary		Get service logs
//	@Tags			Services
//	@Security		ApiKeyAuth
//	@Param			id path string true "Service ID"
//	@Param			version query string false "Version"
//	@Param			lines query int false "Number of lines"
//	@Success		200 {object} map[string]string
//	@Failure		400 {object} response.ErrorResponse
//	@Failure		404 {object} response.ErrorResponse
//	@Failure		409 {object} response.ErrorResponse
//	@Router			/services/{id}/logs [get]
func (h *Service) Logs(w http.ResponseWriter, r *http.Request) {
	lines, err := request.Int(r, "lines", 0)
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	out, err := h.sup.Logs(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("version"), lines)
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]string{"logs": out})
}

// Extensions godoc
//
//	@Summary		List extensions of a version
//	@Tags			Services
//	@Security		ApiKeyAuth
//	@Param			id path string true "Service ID"
//	@Param			version path string true "Version"
//	@Success		200 {array} model.Extension
//	@Failure		400 {object} response.ErrorResponse
//	@Failure		404 {object} response.ErrorResponse
//	@Failure		409 {object} response.ErrorResponse
//	@Router			/services/{id}/versions/{version}/extensions [get]
func (h *Service) Extensions(w http.ResponseWriter, r *http.Request) {
	list, err := h.inst.Extensions(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "version"))
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, list)
}

// InstallExtension godoc
//
//	@Summary		Install an extension package
//	@Description	Accepts the package install and returns the operation.
//	@Tags			Services
//	@Security		ApiKeyAuth
//	@Param			id path string true "Service ID"
//	@Param			version path string true "Version"
//	@Param			body body request.InstallExtension true "Extension"
//	@Success		202 {object} model.Operation
//	@Failure		400 {object} response.ErrorResponse
//	@Failure		404 {object} response.ErrorResponse
//	@Failure		409 {object} response.ErrorResponse
//	@Router			/services/{id}/versions/{version}/extensions [post]
func (h *Service) InstallExtension(w http.ResponseWriter, r *http.Request) {
	var req request.InstallExtension
	if err := request.Decode(r, &req); err != nil {
		response.WriteServiceError(w, err)
		return
	}
	op, err := h.inst.InstallExtension(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "version"), req.Name)
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	writeOperation(w, op)
}

// ToggleExtension godoc
//
//	@Summary		Enable or disable an extension
//	@Tags			Services
//	@Security		ApiKeyAuth
//	@Param			id path string true "Service ID"
//	@Param			version path string true "Version"
//	@Param			ext path string true "Extension name"
//	@Param			body body request.ToggleExtension true "Desired state"
//	@Success		200 {object} model.Extension
//	@Failure		400 {object} response.ErrorResponse
//	@Failure		404 {object} response.ErrorResponse
//	@Failure		409 {object} response.ErrorResponse
//	@Failure		500 {object} response.ErrorResponse
//	@Router			/services/{id}/versions/{version}/extensions/{ext} [put]
func (h *Service) ToggleExtension(w http.ResponseWriter, r *http.Request) {
	var req request.ToggleExtension
	if err := request.Decode(r, &req); err != nil {
		response.WriteServiceError(w, err)
		return
	}
	ext, err := h.inst.SetExtension(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "version"),
		chi.URLParam(r, "ext"), *req.Enabled)
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, ext)
}
