package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/clubsync/clubsyncgo/internal/middleware"
	"github.com/clubsync/clubsyncgo/internal/models"
	"github.com/clubsync/clubsyncgo/internal/syncer"
)

// pushSync applies an inbound envelope from an authenticated peer. A
// schema mismatch answers 426 so the older side knows to upgrade.
func (r *Router) pushSync(w http.ResponseWriter, req *http.Request) {
	claims, ok := middleware.PeerFromContext(req.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "no peer identity")
		return
	}

	var env syncer.Envelope
	if err := json.NewDecoder(req.Body).Decode(&env); err != nil {
		respondError(w, http.StatusBadRequest, "invalid envelope")
		return
	}
	if env.OriginDeviceID != claims.DeviceID {
		respondError(w, http.StatusForbidden, "envelope origin does not match credential")
		return
	}
	if !models.SchemaCompatible(env.SchemaVersion) {
		respondError(w, http.StatusUpgradeRequired, "schema version incompatible")
		return
	}

	stats, err := r.deps.Engine.ApplyInbound(req.Context(), &env)
	if err != nil {
		if errors.Is(err, syncer.ErrSchemaIncompatible) {
			respondError(w, http.StatusUpgradeRequired, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	status := "ok"
	if stats.Conflicts > 0 {
		status = "conflict"
	}
	r.deps.Trust.TouchSeen(claims.DeviceID, env.Timestamp)
	respondJSON(w, http.StatusOK, syncer.PushResult{
		Status:    status,
		Applied:   stats.Applied,
		Skipped:   stats.Skipped,
		Conflicts: stats.Conflicts,
	})
}

// pullSync answers with everything changed since the requested mark,
// projected for the requester's role taken from its credential
func (r *Router) pullSync(w http.ResponseWriter, req *http.Request) {
	claims, ok := middleware.PeerFromContext(req.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "no peer identity")
		return
	}

	var body syncer.PullRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	env, err := r.deps.Engine.CollectOutbound(req.Context(), body.Since, claims.Role)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, env)
}
