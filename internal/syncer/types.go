// Package syncer implements the peer exchange: the merge engine that
// applies inbound envelopes under per-kind policies, the conflict ledger,
// the HTTP client that pushes and pulls against trusted peers, and the
// driver that schedules exchanges.
package syncer

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/clubsync/clubsyncgo/internal/models"
)

// Exchange outcome sentinels. The client maps transport and HTTP status
// failures onto these so the driver can classify without string matching.
var (
	ErrUnauthorized       = errors.New("syncer: peer rejected credential")
	ErrSchemaIncompatible = errors.New("syncer: peer schema incompatible")
	ErrPeerUnreachable    = errors.New("syncer: peer unreachable")
)

// Envelope is the wire unit of one push or pull response: every changed
// record since the requested mark, grouped per entity kind. Batches apply
// in the fixed AllEntityKinds order so parents land before dependents.
type Envelope struct {
	SchemaVersion  int                                     `json:"schemaVersion"`
	OriginDeviceID string                                  `json:"originDeviceId"`
	OriginRole     models.DeviceRole                       `json:"originRole"`
	Timestamp      time.Time                               `json:"timestamp"`
	Batches        map[models.EntityKind][]json.RawMessage `json:"batches"`
}

// RecordCount totals the records across all batches
func (e *Envelope) RecordCount() int {
	n := 0
	for _, batch := range e.Batches {
		n += len(batch)
	}
	return n
}

// ApplyStats summarizes one inbound envelope application
type ApplyStats struct {
	Applied   int `json:"applied"`
	Skipped   int `json:"skipped"`
	Conflicts int `json:"conflicts"`
}

// PushResult is the peer's answer to a push
type PushResult struct {
	Status    string `json:"status"` // "ok" or "conflict"
	Applied   int    `json:"applied"`
	Skipped   int    `json:"skipped"`
	Conflicts int    `json:"conflicts"`
}

// PullRequest asks a peer for everything changed since a mark. The
// requester's identity and role come from its credential, not the body.
type PullRequest struct {
	Since time.Time `json:"since"`
}

// StatusInfo is the answer of the unauthenticated status probe
type StatusInfo struct {
	DeviceID       string            `json:"deviceId"`
	DisplayName    string            `json:"displayName"`
	Role           models.DeviceRole `json:"role"`
	SchemaVersion  int               `json:"schemaVersion"`
	NetworkID      string            `json:"networkId"`
	PendingChanges int64             `json:"pendingChanges"`
	Time           time.Time         `json:"time"`
}

// ExchangeResult is the outcome of one push-then-pull round against a
// peer. A failed push never blocks the pull; both errors are reported.
type ExchangeResult struct {
	PeerDeviceID string
	Pushed       int
	Pulled       ApplyStats
	PushErr      error
	PullErr      error
}

// Failed reports whether either direction of the exchange failed
func (r ExchangeResult) Failed() bool {
	return r.PushErr != nil || r.PullErr != nil
}

// EventSink receives sync telemetry events
type EventSink interface {
	Publish(source, event string, payload interface{})
}
