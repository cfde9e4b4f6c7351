package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/clubsync/clubsyncgo/internal/identity"
	"github.com/clubsync/clubsyncgo/internal/models"
	"github.com/clubsync/clubsyncgo/internal/store"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ConflictRetention is how long resolved ledger entries are kept before
// the periodic purge removes them
const ConflictRetention = 30 * 24 * time.Hour

var (
	// ErrConflictNotFound is returned when resolving an unknown ledger entry
	ErrConflictNotFound = errors.New("syncer: conflict not found")
	// ErrConflictResolved is returned when resolving an already-decided entry
	ErrConflictResolved = errors.New("syncer: conflict already resolved")
)

// Ledger owns the conflict table: recording unresolvable record pairs,
// applying operator decisions and purging old resolved entries.
type Ledger struct {
	store  store.Store
	self   *identity.Identity
	events EventSink
	now    func() time.Time
}

// NewLedger creates a conflict ledger for this device
func NewLedger(st store.Store, self *identity.Identity, events EventSink) *Ledger {
	return &Ledger{store: st, self: self, events: events, now: time.Now}
}

// Record files a conflict unless an identical pending one already exists.
// Returns the ledger entry and whether it is freshly recorded.
func (l *Ledger) Record(ctx context.Context, kind models.ConflictKind, entityKind models.EntityKind, entityID string, local, remote interface{}, localVer, remoteVer int64, originDevice string) (*models.SyncConflict, bool, error) {
	existing, err := l.store.PendingConflictFor(ctx, kind, entityKind, entityID)
	if err != nil && err != store.ErrNotFound {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	localSnap, err := json.Marshal(local)
	if err != nil {
		return nil, false, fmt.Errorf("syncer: snapshot local %s %s: %w", entityKind, entityID, err)
	}
	remoteSnap, err := json.Marshal(remote)
	if err != nil {
		return nil, false, fmt.Errorf("syncer: snapshot remote %s %s: %w", entityKind, entityID, err)
	}

	c := &models.SyncConflict{
		ID:             uuid.NewString(),
		Kind:           kind,
		EntityKind:     entityKind,
		EntityID:       entityID,
		LocalSnapshot:  datatypes.JSON(localSnap),
		RemoteSnapshot: datatypes.JSON(remoteSnap),
		LocalVersion:   localVer,
		RemoteVersion:  remoteVer,
		OriginDeviceID: originDevice,
		DetectedAt:     l.now(),
		Resolution:     models.ResolvePendingManual,
	}
	if err := l.store.SaveConflict(ctx, c); err != nil {
		return nil, false, err
	}

	log.Printf("Sync: conflict %s on %s %s recorded for review", kind, entityKind, entityID)
	if l.events != nil {
		l.events.Publish("sync", "conflict-detected", c)
	}
	return c, true, nil
}

// Pending lists all conflicts awaiting an operator decision
func (l *Ledger) Pending(ctx context.Context) ([]models.SyncConflict, error) {
	return l.store.PendingConflicts(ctx)
}

// Resolve applies an operator decision to a pending conflict. keep-local
// bumps the local record so it out-propagates, accept-remote installs the
// remote snapshot as a fresh local edit, keep-both additionally preserves
// the remote copy under a new identity.
func (l *Ledger) Resolve(ctx context.Context, conflictID string, choice models.ResolutionChoice, resolvedBy string) (*models.SyncConflict, error) {
	c, err := l.store.Conflict(ctx, conflictID)
	if err == store.ErrNotFound {
		return nil, ErrConflictNotFound
	}
	if err != nil {
		return nil, err
	}
	if !c.Pending() {
		return nil, fmt.Errorf("%w: %s decided as %s", ErrConflictResolved, c.ID, c.Resolution)
	}

	switch choice {
	case models.ResolveKeepLocal:
		if err := l.bumpLocal(ctx, c); err != nil {
			return nil, err
		}
	case models.ResolveAcceptRemote:
		if c.Kind == models.ConflictDoubleClaim {
			// The item takes one open claim only: returning the local
			// claim makes room for the accepted remote one
			if err := l.closeLocalClaim(ctx, c); err != nil {
				return nil, err
			}
		}
		if err := l.installSnapshot(ctx, c.EntityKind, c.RemoteSnapshot, ""); err != nil {
			return nil, err
		}
	case models.ResolveKeepBoth:
		if err := l.bumpLocal(ctx, c); err != nil {
			return nil, err
		}
		if err := l.installSnapshot(ctx, c.EntityKind, c.RemoteSnapshot, uuid.NewString()); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("syncer: unknown resolution choice %q", choice)
	}

	now := l.now()
	c.Resolution = choice
	c.ResolvedAt = &now
	c.ResolvedBy = resolvedBy
	if err := l.store.SaveConflict(ctx, c); err != nil {
		return nil, err
	}

	log.Printf("Sync: conflict %s resolved as %s by %s", c.ID, choice, resolvedBy)
	if l.events != nil {
		l.events.Publish("sync", "conflict-resolved", c)
	}
	return c, nil
}

// PurgeResolved removes resolved entries older than the retention window
func (l *Ledger) PurgeResolved(ctx context.Context) (int64, error) {
	n, err := l.store.PurgeResolvedConflictsBefore(ctx, l.now().Add(-ConflictRetention))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.Printf("Sync: purged %d resolved conflict(s) past retention", n)
	}
	return n, nil
}

// bumpLocal re-stamps the local record as a fresh edit of this device so
// the kept copy wins on every peer
func (l *Ledger) bumpLocal(ctx context.Context, c *models.SyncConflict) error {
	now := l.now()
	switch c.EntityKind {
	case models.KindMember:
		m, err := l.store.Member(ctx, c.EntityID)
		if err != nil {
			return err
		}
		m.Touch(l.self.ID, l.self.Role, now)
		return l.store.SaveMember(ctx, m)
	case models.KindEquipmentItem:
		i, err := l.store.EquipmentItem(ctx, c.EntityID)
		if err != nil {
			return err
		}
		i.Touch(l.self.ID, l.self.Role, now)
		return l.store.SaveEquipmentItem(ctx, i)
	case models.KindEquipmentCheckout:
		// Double-claim: the kept claim is the local open one, whose ID is
		// in the local snapshot, not the conflict's entity ID
		var local models.EquipmentCheckout
		if err := json.Unmarshal(c.LocalSnapshot, &local); err != nil {
			return err
		}
		co, err := l.store.EquipmentCheckout(ctx, local.ID)
		if err != nil {
			return err
		}
		co.Touch(l.self.ID, l.self.Role, now)
		return l.store.SaveEquipmentCheckout(ctx, co)
	}
	return fmt.Errorf("syncer: cannot bump local %s record", c.EntityKind)
}

// closeLocalClaim returns the local open checkout recorded in a
// double-claim conflict
func (l *Ledger) closeLocalClaim(ctx context.Context, c *models.SyncConflict) error {
	var local models.EquipmentCheckout
	if err := json.Unmarshal(c.LocalSnapshot, &local); err != nil {
		return err
	}
	co, err := l.store.EquipmentCheckout(ctx, local.ID)
	if err == store.ErrNotFound {
		return nil
	}
	if err != nil {
		return err
	}
	if co.Open() {
		now := l.now()
		co.ReturnedAt = &now
		co.Touch(l.self.ID, l.self.Role, now)
		return l.store.SaveEquipmentCheckout(ctx, co)
	}
	return nil
}

// installSnapshot writes a ledgered snapshot into the store as a fresh
// local edit. A non-empty newID rewrites the record identity first.
func (l *Ledger) installSnapshot(ctx context.Context, kind models.EntityKind, snap datatypes.JSON, newID string) error {
	now := l.now()
	switch kind {
	case models.KindMember:
		var m models.Member
		if err := json.Unmarshal(snap, &m); err != nil {
			return err
		}
		if newID != "" {
			m.ID = newID
		}
		m.Touch(l.self.ID, l.self.Role, now)
		return l.store.SaveMember(ctx, &m)
	case models.KindEquipmentItem:
		var i models.EquipmentItem
		if err := json.Unmarshal(snap, &i); err != nil {
			return err
		}
		if newID != "" {
			i.ID = newID
		}
		i.Touch(l.self.ID, l.self.Role, now)
		return l.store.SaveEquipmentItem(ctx, &i)
	case models.KindEquipmentCheckout:
		var co models.EquipmentCheckout
		if err := json.Unmarshal(snap, &co); err != nil {
			return err
		}
		if newID != "" {
			co.ID = newID
		}
		co.Touch(l.self.ID, l.self.Role, now)
		return l.store.SaveEquipmentCheckout(ctx, &co)
	}
	return fmt.Errorf("syncer: cannot install %s snapshot", kind)
}
