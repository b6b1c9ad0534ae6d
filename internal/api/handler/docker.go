package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/edvin/panel/internal/api/request"
	"github.com/edvin/panel/internal/api/response"
	"github.com/edvin/panel/internal/core"
	"github.com/edvin/panel/internal/engine"
	"github.com/edvin/panel/internal/model"
)

// Docker serves live container, image and volume state. Nothing here is
// cached; every list asks the engine.
type Docker struct {
	engine *engine.Engine
}

func NewDocker(e *engine.Engine) *Docker {
	return &Docker{engine: e}
}

// ListContainers godoc
//
//	@Summary		List containers
//	@Tags			Docker
//	@Security		ApiKeyAuth
//	@Success		200 {array} model.Container
//	@Failure		503 {object} response.ErrorResponse
//	@Router			/docker/containers [get]
func (h *Docker) ListContainers(w http.ResponseWriter, r *http.Request) {
	list, err := h.engine.ListContainers(r.Context())
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, list)
}

// ListImages godoc
//
//	@Summary		List images
//	@Tags			Docker
//	@Security		ApiKeyAuth
//	@Success		200 {array} model.Image
//	@Failure		503 {object} response.ErrorResponse
//	@Router			/docker/images [get]
func (h *Docker) ListImages(w http.ResponseWriter, r *http.Request) {
	list, err := h.engine.ListImages(r.Context())
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, list)
}

// ListVolumes godoc
//
//	@Summary		List volumes
//	@Tags			Docker
//	@Security		ApiKeyAuth
//	@Success		200 {array} model.Volume
//	@Failure		503 {object} response.ErrorResponse
//	@Router			/docker/volumes [get]
func (h *Docker) ListVolumes(w http.ResponseWriter, r *http.Request) {
	list, err := h.engine.ListVolumes(r.Context())
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, list)
}

// Inspect godoc
//
//	@Summary		Inspect a container
//	@Tags			Docker
//	@Security		ApiKeyAuth
//	@Param			id path string true "Container ID or name"
//	@Success		200 {object} model.Container
//	@Failure		404 {object} response.ErrorResponse
//	@Failure		503 {object} response.ErrorResponse
//	@Router			/docker/containers/{id} [get]
func (h *Docker) Inspect(w http.ResponseWriter, r *http.Request) {
	c, err := h.engine.Inspect(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, c)
}

// Action godoc
//
//	@Summary		Start, stop or restart a container
//	@Description	Starts, stops or restarts a container and replies with the state observed afterwards.
//	@Tags			Docker
//	@Security		ApiKeyAuth
//	@Param			id path string true "Container ID or name"
//	@Success		200 {object} model.Container
//	@Failure		400 {object} response.ErrorResponse
//	@Failure		404 {object} response.ErrorResponse
//	@Failure		503 {object} response.ErrorResponse
//	@Router			/docker/containers/{id}/start [post]
//	@Router			/docker/containers/{id}/stop [post]
//	@Router			/docker/containers/{id}/restart [post]
func (h *Docker) Action(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var (
		c   model.Container
		err error
	)
	switch action := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]; action {
	case "start":
		c, err = h.engine.Start(r.Context(), id)
	case "stop":
		c, err = h.engine.Stop(r.Context(), id)
	case "restart":
		c, err = h.engine.Restart(r.Context(), id)
	default:
		err = core.Errorf(core.InvalidInput, "unknown action %q", action)
	}
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, c)
}

// RemoveContainer godoc
//
//	@Summary		Remove a container
//	@Tags			Docker
//	@Security		ApiKeyAuth
//	@Param			id path string true "Container ID or name"
//	@Param			force query bool false "Remove a running container"
//	@Success		204
//	@Failure		400 {object} response.ErrorResponse
//	@Failure		404 {object} response.ErrorResponse
//	@Failure		409 {object} response.ErrorResponse
//	@Failure		503 {object} response.ErrorResponse
//	@Router			/docker/containers/{id} [delete]
func (h *Docker) RemoveContainer(w http.ResponseWriter, r *http.Request) {
	force, err := request.Bool(r, "force")
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	if err := h.engine.Remove(r.Context(), chi.URLParam(r, "id"), force); err != nil {
		response.WriteServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Logs godoc
//
//	@Summary		Get container logs
//	@Tags			Docker
//	@Security		ApiKeyAuth
//	@Param			id path string true "Container ID or name"
//	@Param			lines query int false "Number of lines"
//	@Success		200 {object} map[string]string
//	@Failure		400 {object} response.ErrorResponse
//	@Failure		404 {object} response.ErrorResponse
//	@Failure		503 {object} response.ErrorResponse
//	@Router			/docker/containers/{id}/logs [get]
func (h *Docker) Logs(w http.ResponseWriter, r *http.Request) {
	lines, err := request.Int(r, "lines", engine.DefaultLogTail)
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	out, err := h.engine.Logs(r.Context(), chi.URLParam(r, "id"), lines)
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]string{"logs": out})
}

// RemoveImage godoc
//
//	@Summary		Remove an image
//	@Tags			Docker
//	@Security		ApiKeyAuth
//	@Param			id path string true "Image ID"
//	@Param			force query bool false "Remove an image in use"
//	@Success		204
//	@Failure		400 {object} response.ErrorResponse
//	@Failure		404 {object} response.ErrorResponse
//	@Failure		409 {object} response.ErrorResponse
//	@Failure		503 {object} response.ErrorResponse
//	@Router			/docker/images/{id} [delete]
func (h *Docker) RemoveImage(w http.ResponseWriter, r *http.Request) {
	force, err := request.Bool(r, "force")
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	if err := h.engine.RemoveImage(r.Context(), chi.URLParam(r, "id"), force); err != nil {
		response.WriteServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateVolume godoc
//
//	@Summary		Create a volume
//	@Tags			Docker
//	@Security		ApiKeyAuth
//	@Param			body body request.CreateVolume true "Volume"
//	@Success		201 {object} model.Volume
//	@Failure		400 {object} response.ErrorResponse
//	@Failure		409 {object} response.ErrorResponse
//	@Failure		503 {object} response.ErrorResponse
//	@Router			/docker/volumes [post]
func (h *Docker) CreateVolume(w http.ResponseWriter, r *http.Request) {
	var req request.CreateVolume
	if err := request.Decode(r, &req); err != nil {
		response.WriteServiceError(w, err)
		return
	}
	v, err := h.engine.CreateVolume(r.Context(), req.Name)
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, v)
}

// RemoveVolume godoc
//
//	@Summary		Remove a volume
//	@Tags			Docker
//	@Security		ApiKeyAuth
//	@Param			name path string true "Volume name"
//	@Param			force query bool false "Remove a volume in use"
//	@Success		204
//	@Failure		400 {object} response.ErrorResponse
//	@Failure		404 {object} response.ErrorResponse
//	@Failure		409 {object} response.ErrorResponse
//	@Failure		503 {object} response.ErrorResponse
//	@Router			/docker/volumes/{name} [delete]
func (h *Docker) RemoveVolume(w http.ResponseWriter, r *http.Request) {
	force, err := request.Bool(r, "force")
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	if err := h.engine.RemoveVolume(r.Context(), chi.URLParam(r, "name"), force); err != nil {
		response.WriteServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Stats godoc
//
//	@Summary		Get container resource usage
//	@Tags			Docker
//	@Security		ApiKeyAuth
//	@Param			id path string true "Container ID or name"
//	@Success		200 {object} model.ContainerStats
//	@Failure		404 {object} response.ErrorResponse
//	@Failure		409 {object} response.ErrorResponse
//	@Failure		503 {object} response.ErrorResponse
//	@Router			/docker/containers/{id}/stats [get]
func (h *Docker) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.engine.Stats(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, st)
}

// ListNetworks godoc
//
//	@Summary		List networks
//	@Tags			Docker
//	@Security		ApiKeyAuth
//	@Success		200 {array} model.Network
//	@Failure		503 {object} response.ErrorResponse
//	@Router			/docker/networks [get]
func (h *Docker) ListNetworks(w http.ResponseWriter, r *http.Request) {
	list, err := h.engine.ListNetworks(r.Context())
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, list)
}

// CreateNetwork godoc
//
//	@Summary		Create a network
//	@Tags			Docker
//	@Security		ApiKeyAuth
//	@Param			body body request.CreateNetwork true "Network"
//	@Success		201 {object} model.Network
//	@Failure		400 {object} response.ErrorResponse
//	@Failure		409 {object} response.ErrorResponse
//	@Failure		422 {object} response.ErrorResponse
//	@Failure		503 {object} response.ErrorResponse
//	@Router			/docker/networks [post]
func (h *Docker) CreateNetwork(w http.ResponseWriter, r *http.Request) {
	var req request.CreateNetwork
	if err := request.Decode(r, &req); err != nil {
		response.WriteServiceError(w, err)
		return
	}
	n, err := h.engine.CreateNetwork(r.Context(), req.Name, req.Driver, req.Internal)
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, n)
}

// RemoveNetwork godoc
//
//	@Summary		Remove a network
//	@Tags			Docker
//	@Security		ApiKeyAuth
//	@Param			id path string true "Network ID or name"
//	@Success		204
//	@Failure		404 {object} response.ErrorResponse
//	@Failure		409 {object} response.ErrorResponse
//	@Failure		503 {object} response.ErrorResponse
//	@Router			/docker/networks/{id} [delete]
func (h *Docker) RemoveNetwork(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.RemoveNetwork(r.Context(), chi.URLParam(r, "id")); err != nil {
		response.WriteServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// NetworkMembership godoc
//
//	@Summary		Connect or disconnect a container
//	@Description	Connects or disconnects a container, named by the last path segment, and replies with the container afterwards.
//	@Tags			Docker
//	@Security		ApiKeyAuth
//	@Param			id path string true "Network ID or name"
//	@Param			body body request.NetworkContainer true "Container"
//	@Success		200 {object} model.Container
//	@Failure		400 {object} response.ErrorResponse
//	@Failure		404 {object} response.ErrorResponse
//	@Failure		409 {object} response.ErrorResponse
//	@Failure		503 {object} response.ErrorResponse
//	@Router			/docker/networks/{id}/connect [post]
//	@Router			/docker/networks/{id}/disconnect [post]
func (h *Docker) NetworkMembership(w http.ResponseWriter, r *http.Request) {
	var req request.NetworkContainer
	if err := request.Decode(r, &req); err != nil {
		response.WriteServiceError(w, err)
		return
	}
	network := chi.URLParam(r, "id")
	var (
		c   model.Container
		err error
	)
	switch action := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]; action {
	case "connect":
		c, err = h.engine.ConnectNetwork(r.Context(), network, req.Container)
	case "disconnect":
		c, err = h.engine.DisconnectNetwork(r.Context(), network, req.Container, req.Force)
	default:
		err = core.Errorf(core.InvalidInput, "unknown action %q", action)
	}
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, c)
}
