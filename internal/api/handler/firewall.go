package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/edvin/panel/internal/api/request"
	"github.com/edvin/panel/internal/api/response"
	"github.com/edvin/panel/internal/firewall"
)

type Firewall struct {
	mgr *firewall.Manager
}

func NewFirewall(mgr *firewall.Manager) *Firewall {
	return &Firewall{mgr: mgr}
}

// List godoc
//
//	@Summary		List firewall rules
//	@Description	Returns the rules in evaluation order.
//	@Tags			Firewall
//	@Security		ApiKeyAuth
//	@Success		200 {array} model.FirewallRule
//	@Failure		500 {object} response.ErrorResponse
//	@Router			/firewall [get]
func (h *Firewall) List(w http.ResponseWriter, r *http.Request) {
	rules, err := h.mgr.List(r.Context())
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, rules)
}

// Create godoc
//
//	@Summary		Create a firewall rule
//	@Tags			Firewall
//	@Security		ApiKeyAuth
//	@Param			body body request.CreateFirewallRule true "Rule"
//	@Success		201 {object} model.FirewallRule
//	@Failure		400 {object} response.ErrorResponse
//	@Failure		422 {object} response.ErrorResponse
//	@Router			/firewall [post]
func (h *Firewall) Create(w http.ResponseWriter, r *http.Request) {
	var req request.CreateFirewallRule
	if err := request.Decode(r, &req); err != nil {
		response.WriteServiceError(w, err)
		return
	}
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	rule, err := h.mgr.Create(r.Context(), firewall.RuleSpec{
		Port:        req.Port,
		Protocol:    req.Protocol,
		Source:      req.Source,
		Action:      req.Action,
		Description: req.Description,
		Enabled:     enabled,
		Position:    req.Position,
	})
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, rule)
}

// Delete godoc
//
//	@Summary		Delete a firewall rule
//	@Tags			Firewall
//	@Security		ApiKeyAuth
//	@Param			id path string true "Rule ID"
//	@Success		204
//	@Failure		404 {object} response.ErrorResponse
//	@Router			/firewall/{id} [delete]
func (h *Firewall) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.mgr.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		response.WriteServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Evaluate godoc
//
//	@Summary		Evaluate a packet against the rules
//	@Description	Reports which rule, if any, decides an inbound packet.
//	@Tags			Firewall
//	@Security		ApiKeyAuth
//	@Param			body body request.EvaluateFirewall true "Packet"
//	@Success		200 {object} firewall.Decision
//	@Failure		400 {object} response.ErrorResponse
//	@Failure		422 {object} response.ErrorResponse
//	@Router			/firewall/evaluate [post]
func (h *Firewall) Evaluate(w http.ResponseWriter, r *http.Request) {
	var req request.EvaluateFirewall
	if err := request.Decode(r, &req); err != nil {
		response.WriteServiceError(w, err)
		return
	}
	d, err := h.mgr.Evaluate(r.Context(), req.Port, req.Protocol, req.Source)
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, d)
}

// Apply godoc
//
//	@Summary		Apply rules to the host firewall
//	@Description	Pushes the rule list to the host firewall.
//	@Tags			Firewall
//	@Security		ApiKeyAuth
//	@Success		204
//	@Failure		500 {object} response.ErrorResponse
//	@Failure		503 {object} response.ErrorResponse
//	@Router			/firewall/apply [post]
func (h *Firewall) Apply(w http.ResponseWriter, r *http.Request) {
	if err := h.mgr.Apply(r.Context()); err != nil {
		response.WriteServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
