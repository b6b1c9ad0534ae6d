package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/edvin/panel/internal/api/request"
	"github.com/edvin/panel/internal/api/response"
	"github.com/edvin/panel/internal/certs"
)

type Certificate struct {
	mgr *certs.Manager
}

func NewCertificate(mgr *certs.Manager) *Certificate {
	return &Certificate{mgr: mgr}
}

// List godoc
//
//	@Summary		List certificates
//	@Description	Returns every certificate with status and days left derived from its expiry at the time of the request.
//	@Tags			SSL
//	@Security		ApiKeyAuth
//	@Success		200 {array} model.Certificate
//	@Failure		500 {object} response.ErrorResponse
//	@Router			/ssl [get]
func (h *Certificate) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.mgr.List(r.Context())
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, list)
}

// CheckExpiry godoc
//
//	@Summary		Report certificate expiry
//	@Description	Groups the stored certificates by expiry status.
//	@Tags			SSL
//	@Security		ApiKeyAuth
//	@Success		200 {object} model.ExpiryReport
//	@Failure		500 {object} response.ErrorResponse
//	@Router			/ssl/expiry [get]
func (h *Certificate) CheckExpiry(w http.ResponseWriter, r *http.Request) {
	report, err := h.mgr.CheckExpiry(r.Context())
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, report)
}

// Get godoc
//
//	@Summary		Get a certificate
//	@Tags			SSL
//	@Security		ApiKeyAuth
//	@Param			id path string true "Certificate ID"
//	@Success		200 {object} model.Certificate
//	@Failure		404 {object} response.ErrorResponse
//	@Router			/ssl/{id} [get]
func (h *Certificate) Get(w http.ResponseWriter, r *http.Request) {
	c, err := h.mgr.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, c)
}

// Issue godoc
//
//	@Summary		Issue a Let's Encrypt certificate
//	@Description	Requests a Let's Encrypt certificate. The ACME exchange runs as an operation.
//	@Tags			SSL
//	@Security		ApiKeyAuth
//	@Param			body body request.IssueCertificate true "Domain and contact"
//	@Success		202 {object} model.Operation
//	@Failure		400 {object} response.ErrorResponse
//	@Failure		409 {object} response.ErrorResponse
//	@Failure		422 {object} response.ErrorResponse
//	@Router			/ssl [post]
func (h *Certificate) Issue(w http.ResponseWriter, r *http.Request) {
	var req request.IssueCertificate
	if err := request.Decode(r, &req); err != nil {
		response.WriteServiceError(w, err)
		return
	}
	autoRenew := true
	if req.AutoRenew != nil {
		autoRenew = *req.AutoRenew
	}
	op, err := h.mgr.IssueLetsEncrypt(r.Context(), req.Domain, req.Email, autoRenew)
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	writeOperation(w, op)
}

// SelfSigned godoc
//
//	@Summary		Create a self-signed certificate
//	@Tags			SSL
//	@Security		ApiKeyAuth
//	@Param			body body request.SelfSignedCertificate true "Domain"
//	@Success		201 {object} model.Certificate
//	@Failure		400 {object} response.ErrorResponse
//	@Failure		409 {object} response.ErrorResponse
//	@Failure		422 {object} response.ErrorResponse
//	@Router			/ssl/self-signed [post]
func (h *Certificate) SelfSigned(w http.ResponseWriter, r *http.Request) {
	var req request.SelfSignedCertificate
	if err := request.Decode(r, &req); err != nil {
		response.WriteServiceError(w, err)
		return
	}
	c, err := h.mgr.IssueSelfSigned(r.Context(), req.Domain)
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, c)
}

// Upload godoc
//
//	@Summary		Upload a custom certificate
//	@Tags			SSL
//	@Security		ApiKeyAuth
//	@Param			body body request.UploadCertificate true "PEM certificate and key"
//	@Success		201 {object} model.Certificate
//	@Failure		400 {object} response.ErrorResponse
//	@Failure		409 {object} response.ErrorResponse
//	@Failure		422 {object} response.ErrorResponse
//	@Router			/ssl/custom [post]
func (h *Certificate) Upload(w http.ResponseWriter, r *http.Request) {
	var req request.UploadCertificate
	if err := request.Decode(r, &req); err != nil {
		response.WriteServiceError(w, err)
		return
	}
	c, err := h.mgr.UploadCustom(r.Context(), req.Domain, req.CertPEM, req.KeyPEM)
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, c)
}

// Renew godoc
//
//	@Summary		Renew a certificate
//	@Tags			SSL
//	@Security		ApiKeyAuth
//	@Param			id path string true "Certificate ID"
//	@Param			force query bool false "Renew before the window"
//	@Success		200 {object} model.Certificate
//	@Failure		400 {object} response.ErrorResponse
//	@Failure		404 {object} response.ErrorResponse
//	@Failure		409 {object} response.ErrorResponse
//	@Failure		503 {object} response.ErrorResponse
//	@Router			/ssl/{id}/renew [post]
func (h *Certificate) Renew(w http.ResponseWriter, r *http.Request) {
	force, err := request.Bool(r, "force")
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	c, err := h.mgr.Renew(r.Context(), chi.URLParam(r, "id"), force)
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, c)
}

// Delete godoc
//
//	@Summary		Delete a certificate
//	@Description	Removes the certificate and its files. It is not revoked.
//	@Tags			SSL
//	@Security		ApiKeyAuth
//	@Param			id path string true "Certificate ID"
//	@Success		204
//	@Failure		404 {object} response.ErrorResponse
//	@Router			/ssl/{id} [delete]
func (h *Certificate) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.mgr.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		response.WriteServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
