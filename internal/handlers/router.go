// Package handlers exposes the HTTP surface: the sync protocol spoken
// between peers, the pairing ceremony, and the administrative operations
// an operator console uses.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/clubsync/clubsyncgo/internal/backup"
	"github.com/clubsync/clubsyncgo/internal/discovery"
	"github.com/clubsync/clubsyncgo/internal/identity"
	"github.com/clubsync/clubsyncgo/internal/middleware"
	"github.com/clubsync/clubsyncgo/internal/pairing"
	"github.com/clubsync/clubsyncgo/internal/store"
	"github.com/clubsync/clubsyncgo/internal/syncer"
	"github.com/clubsync/clubsyncgo/internal/trust"
	"github.com/clubsync/clubsyncgo/internal/websocket"
	"github.com/gorilla/mux"
)

// Deps bundles everything the HTTP surface needs
type Deps struct {
	Identity *identity.Identity
	Store    store.Store
	Trust    *trust.Store
	Registry *discovery.Registry
	Issuer   *pairing.Issuer
	Engine   *syncer.Engine
	Ledger   *syncer.Ledger
	Driver   *syncer.Driver
	Hub      *websocket.Hub
	Backup   *backup.Manager

	// OperatorPINHash gates administrative routes; empty leaves them open
	OperatorPINHash string
}

// Router wraps the mux router and the sync core
type Router struct {
	*mux.Router
	deps Deps
}

// NewRouter creates a new HTTP router with all routes
func NewRouter(deps Deps) *Router {
	r := &Router{
		Router: mux.NewRouter(),
		deps:   deps,
	}

	// Unauthenticated surface
	r.HandleFunc("/health", r.healthCheck).Methods("GET")
	r.HandleFunc("/status", r.getStatus).Methods("GET")
	r.HandleFunc("/pair", r.redeemPairing).Methods("POST")

	// Peer sync protocol (bearer credential + trust)
	peerAuth := middleware.PeerAuth(deps.Identity, deps.Trust)
	sync := r.PathPrefix("/sync").Subrouter()
	sync.Use(peerAuth)
	sync.HandleFunc("/push", r.pushSync).Methods("POST")
	sync.HandleFunc("/pull", r.pullSync).Methods("POST")

	// Administrative surface (operator PIN)
	pin := middleware.OperatorPIN(deps.OperatorPINHash)
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/peers", r.listPeers).Methods("GET")
	api.HandleFunc("/conflicts", r.listConflicts).Methods("GET")

	admin := r.PathPrefix("/api").Subrouter()
	admin.Use(pin)
	admin.HandleFunc("/pair/issue", r.issuePairing).Methods("POST")
	admin.HandleFunc("/pair/qr", r.pairingQR).Methods("GET")
	admin.HandleFunc("/peers/{id}/revoke", r.revokePeer).Methods("POST")
	admin.HandleFunc("/conflicts/{id}/resolve", r.resolveConflict).Methods("POST")
	admin.HandleFunc("/sync/run", r.runSync).Methods("POST")
	admin.HandleFunc("/backup", r.createBackup).Methods("POST")
	admin.HandleFunc("/backup", r.listBackups).Methods("GET")
	admin.HandleFunc("/backup/restore", r.restoreBackup).Methods("POST")

	// Telemetry feed
	r.HandleFunc("/ws", func(w http.ResponseWriter, req *http.Request) {
		websocket.ServeWs(deps.Hub, w, req)
	})

	return r
}

// healthCheck returns the health status of the service
func (r *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
