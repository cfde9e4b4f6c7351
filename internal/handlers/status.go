package handlers

import (
	"log"
	"net/http"
	"time"

	"github.com/clubsync/clubsyncgo/internal/models"
	"github.com/clubsync/clubsyncgo/internal/syncer"
)

// statusResponse extends the wire status with local driver detail
type statusResponse struct {
	syncer.StatusInfo
	DriverState syncer.DriverState `json:"driverState"`
	LastCycle   *time.Time         `json:"lastCycle,omitempty"`
}

// getStatus answers the unauthenticated liveness probe peers use before
// attempting an exchange. It always answers 200; a failing store only
// degrades the pending counter.
func (r *Router) getStatus(w http.ResponseWriter, req *http.Request) {
	var pending int64
	if n, err := r.deps.Store.PendingChangeCount(req.Context()); err != nil {
		log.Printf("Handlers: pending count unavailable: %v", err)
	} else {
		pending = n
	}

	resp := statusResponse{
		StatusInfo: syncer.StatusInfo{
			DeviceID:       r.deps.Identity.ID,
			DisplayName:    r.deps.Identity.DisplayName,
			Role:           r.deps.Identity.Role,
			SchemaVersion:  models.SchemaVersion,
			NetworkID:      r.deps.Identity.NetworkID,
			PendingChanges: pending,
			Time:           time.Now(),
		},
		DriverState: r.deps.Driver.State(),
	}
	if last := r.deps.Driver.LastCycle(); !last.IsZero() {
		resp.LastCycle = &last
	}
	respondJSON(w, http.StatusOK, resp)
}
