// Package store defines the local persistent store collaborator consumed
// by the synchronization engine. The engine only ever talks through this
// interface: get-by-natural-key, upsert, changed-since scans and the
// conflict ledger rows. A gorm-backed implementation serves production,
// a memory implementation serves tests and throwaway displays.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/clubsync/clubsyncgo/internal/models"
)

// ErrNotFound is returned when a lookup matches no row
var ErrNotFound = errors.New("store: not found")

// Store is the local persistent store contract
type Store interface {
	// Members (master data)
	Member(ctx context.Context, id string) (*models.Member, error)
	SaveMember(ctx context.Context, m *models.Member) error
	MembersChangedSince(ctx context.Context, since time.Time) ([]models.Member, error)

	// Check-ins (append-only, natural key member+day)
	CheckInByMemberDay(ctx context.Context, memberID, day string) (*models.CheckIn, error)
	SaveCheckIn(ctx context.Context, c *models.CheckIn) error
	CheckInsChangedSince(ctx context.Context, since time.Time) ([]models.CheckIn, error)

	// Practice sessions (append-only, natural key fingerprint)
	PracticeSessionByFingerprint(ctx context.Context, fp string) (*models.PracticeSession, error)
	SavePracticeSession(ctx context.Context, p *models.PracticeSession) error
	PracticeSessionsChangedSince(ctx context.Context, since time.Time) ([]models.PracticeSession, error)

	// Scan events (append-only, keyed by event ID)
	ScanEvent(ctx context.Context, id string) (*models.ScanEvent, error)
	SaveScanEvent(ctx context.Context, s *models.ScanEvent) error
	ScanEventsChangedSince(ctx context.Context, since time.Time) ([]models.ScanEvent, error)

	// Registrations (workflow)
	Registration(ctx context.Context, id string) (*models.Registration, error)
	SaveRegistration(ctx context.Context, r *models.Registration) error
	RegistrationsChangedSince(ctx context.Context, since time.Time) ([]models.Registration, error)

	// Equipment items (master data)
	EquipmentItem(ctx context.Context, id string) (*models.EquipmentItem, error)
	SaveEquipmentItem(ctx context.Context, e *models.EquipmentItem) error
	EquipmentItemsChangedSince(ctx context.Context, since time.Time) ([]models.EquipmentItem, error)

	// Equipment checkouts (exclusive resource)
	EquipmentCheckout(ctx context.Context, id string) (*models.EquipmentCheckout, error)
	OpenCheckoutForItem(ctx context.Context, itemID string) (*models.EquipmentCheckout, error)
	SaveEquipmentCheckout(ctx context.Context, e *models.EquipmentCheckout) error
	EquipmentCheckoutsChangedSince(ctx context.Context, since time.Time) ([]models.EquipmentCheckout, error)

	// Device records (LWW)
	DeviceRecord(ctx context.Context, id string) (*models.DeviceRecord, error)
	SaveDeviceRecord(ctx context.Context, d *models.DeviceRecord) error
	DeviceRecordsChangedSince(ctx context.Context, since time.Time) ([]models.DeviceRecord, error)

	// Conflict ledger
	Conflict(ctx context.Context, id string) (*models.SyncConflict, error)
	PendingConflictFor(ctx context.Context, kind models.ConflictKind, entityKind models.EntityKind, entityID string) (*models.SyncConflict, error)
	SaveConflict(ctx context.Context, c *models.SyncConflict) error
	PendingConflicts(ctx context.Context) ([]models.SyncConflict, error)
	PurgeResolvedConflictsBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Per-peer exchange bookkeeping
	PeerSyncState(ctx context.Context, peerDeviceID string) (*models.PeerSyncState, error)
	SavePeerSyncState(ctx context.Context, s *models.PeerSyncState) error

	// PendingChangeCount counts rows never exchanged or modified after the
	// last exchange. Used by the status probe.
	PendingChangeCount(ctx context.Context) (int64, error)
}
