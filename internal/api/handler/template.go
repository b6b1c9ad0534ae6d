package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/edvin/panel/internal/api/request"
	"github.com/edvin/panel/internal/api/response"
	"github.com/edvin/panel/internal/deploy"
)

// Template serves the app store.
type Template struct {
	deployer *deploy.Deployer
}

func NewTemplate(d *deploy.Deployer) *Template {
	return &Template{deployer: d}
}

// List godoc
//
//	@Summary		List app templates
//	@Tags			Templates
//	@Security		ApiKeyAuth
//	@Param			category query string false "Category"
//	@Param			search query string false "Search term"
//	@Success		200 {array} model.AppTemplate
//	@Router			/templates [get]
func (h *Template) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	response.WriteJSON(w, http.StatusOK, h.deployer.Templates().List(q.Get("category"), q.Get("search")))
}

// Categories godoc
//
//	@Summary		List template categories
//	@Tags			Templates
//	@Security		ApiKeyAuth
//	@Success		200 {array} model.TemplateCategory
//	@Router			/templates/categories [get]
func (h *Template) Categories(w http.ResponseWriter, r *http.Request) {
	response.WriteJSON(w, http.StatusOK, h.deployer.Templates().Categories())
}

// Get godoc
//
//	@Summary		Get an app template
//	@Tags			Templates
//	@Security		ApiKeyAuth
//	@Param			id path string true "Template ID"
//	@Success		200 {object} model.AppTemplate
//	@Failure		404 {object} response.ErrorResponse
//	@Router			/templates/{id} [get]
func (h *Template) Get(w http.ResponseWriter, r *http.Request) {
	t, err := h.deployer.Templates().Get(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, t)
}

// Deploy godoc
//
//	@Summary		Deploy an app template
//	@Description	Validates the request up front and returns the operation that pulls, creates and starts the container.
//	@Tags			Templates
//	@Security		ApiKeyAuth
//	@Param			id path string true "Template ID"
//	@Param			body body request.DeployTemplate false "Name and environment"
//	@Success		202 {object} model.Operation
//	@Failure		400 {object} response.ErrorResponse
//	@Failure		404 {object} response.ErrorResponse
//	@Failure		409 {object} response.ErrorResponse
//	@Failure		422 {object} response.ErrorResponse
//	@Router			/templates/{id}/deploy [post]
func (h *Template) Deploy(w http.ResponseWriter, r *http.Request) {
	var req request.DeployTemplate
	if err := request.DecodeOptional(r, &req); err != nil {
		response.WriteServiceError(w, err)
		return
	}
	op, err := h.deployer.Deploy(r.Context(), deploy.Request{
		TemplateID: chi.URLParam(r, "id"),
		Name:       req.Name,
		Env:        req.Env,
	})
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	writeOperation(w, op)
}
