package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/clubsync/clubsyncgo/internal/models"
	"github.com/clubsync/clubsyncgo/internal/pairing"
)

type issuePairingRequest struct {
	Role        string `json:"role"`
	DisplayName string `json:"displayName"`
}

type issuePairingResponse struct {
	Credential pairing.Credential `json:"credential"`
	Transfer   string             `json:"transfer"`
}

// issuePairing mints a single-use pairing credential for one expected
// joiner and returns it alongside its transfer string
func (r *Router) issuePairing(w http.ResponseWriter, req *http.Request) {
	var body issuePairingRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	role, err := models.ParseDeviceRole(body.Role)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	cred, err := r.deps.Issuer.Issue(role, body.DisplayName)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	transfer, err := pairing.EncodeTransfer(cred)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, issuePairingResponse{Credential: cred, Transfer: transfer})
}

// pairingQR issues a fresh credential and renders it as a QR PNG for the
// operator screen
func (r *Router) pairingQR(w http.ResponseWriter, req *http.Request) {
	role, err := models.ParseDeviceRole(req.URL.Query().Get("role"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	name := req.URL.Query().Get("name")

	size := 256
	if s := req.URL.Query().Get("size"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n >= 128 && n <= 1024 {
			size = n
		}
	}

	cred, err := r.deps.Issuer.Issue(role, name)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	png, err := pairing.RenderQR(cred, size)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

// redeemPairing is the joiner-facing pairing operation. Role and schema
// rejections leave the token alive so the joiner can retry before expiry.
func (r *Router) redeemPairing(w http.ResponseWriter, req *http.Request) {
	var body pairing.RedeemRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := r.deps.Issuer.Redeem(body)
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, resp)
	case errors.Is(err, pairing.ErrTokenInvalid), errors.Is(err, pairing.ErrTokenExpired):
		respondError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, pairing.ErrRoleMismatch):
		respondError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, pairing.ErrSchemaIncompatible):
		respondError(w, http.StatusUpgradeRequired, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}
