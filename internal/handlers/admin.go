package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/clubsync/clubsyncgo/internal/models"
	"github.com/clubsync/clubsyncgo/internal/syncer"
	"github.com/gorilla/mux"
)

type peersResponse struct {
	Trusted []models.TrustedPeer `json:"trusted"`
	Sighted interface{}          `json:"sighted"`
}

// listPeers returns the trust table alongside the live discovery view
func (r *Router) listPeers(w http.ResponseWriter, req *http.Request) {
	respondJSON(w, http.StatusOK, peersResponse{
		Trusted: r.deps.Trust.Snapshot(),
		Sighted: r.deps.Registry.Snapshot(),
	})
}

// revokePeer withdraws trust from a device. Revocation is sticky; only a
// fresh pairing ceremony re-admits the device.
func (r *Router) revokePeer(w http.ResponseWriter, req *http.Request) {
	deviceID := mux.Vars(req)["id"]
	if err := r.deps.Trust.Revoke(deviceID); err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	r.deps.Hub.Publish("trust", "peer-revoked", map[string]string{"deviceId": deviceID})
	respondJSON(w, http.StatusOK, map[string]string{"status": "revoked", "deviceId": deviceID})
}

// listConflicts returns the pending conflict ledger
func (r *Router) listConflicts(w http.ResponseWriter, req *http.Request) {
	pending, err := r.deps.Ledger.Pending(req.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, pending)
}

type resolveConflictRequest struct {
	Choice     string `json:"choice"`
	ResolvedBy string `json:"resolvedBy"`
}

// resolveConflict applies an operator decision to one ledger entry
func (r *Router) resolveConflict(w http.ResponseWriter, req *http.Request) {
	var body resolveConflictRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	choice, err := models.ParseResolutionChoice(body.Choice)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	conflict, err := r.deps.Ledger.Resolve(req.Context(), mux.Vars(req)["id"], choice, body.ResolvedBy)
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, conflict)
	case errors.Is(err, syncer.ErrConflictNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, syncer.ErrConflictResolved):
		respondError(w, http.StatusConflict, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

// runSync triggers an immediate exchange cycle
func (r *Router) runSync(w http.ResponseWriter, req *http.Request) {
	r.deps.Driver.TriggerNow()
	respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"status":    "triggered",
		"requested": time.Now(),
	})
}

// createBackup writes a snapshot of the full dataset
func (r *Router) createBackup(w http.ResponseWriter, req *http.Request) {
	if r.deps.Backup == nil {
		respondError(w, http.StatusServiceUnavailable, "backups unavailable without a database")
		return
	}
	path, err := r.deps.Backup.CreateSnapshot(req.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"path": path})
}

// listBackups returns the snapshot files on disk
func (r *Router) listBackups(w http.ResponseWriter, req *http.Request) {
	if r.deps.Backup == nil {
		respondError(w, http.StatusServiceUnavailable, "backups unavailable without a database")
		return
	}
	paths, err := r.deps.Backup.ListSnapshots()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"snapshots": paths})
}

type restoreBackupRequest struct {
	Path string `json:"path"`
}

// restoreBackup loads a snapshot file back into the store
func (r *Router) restoreBackup(w http.ResponseWriter, req *http.Request) {
	if r.deps.Backup == nil {
		respondError(w, http.StatusServiceUnavailable, "backups unavailable without a database")
		return
	}
	var body restoreBackupRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.Path == "" {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := r.deps.Backup.RestoreSnapshot(req.Context(), body.Path); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "restored", "path": body.Path})
}
