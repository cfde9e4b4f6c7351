package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/clubsync/clubsyncgo/internal/identity"
	"github.com/clubsync/clubsyncgo/internal/models"
	"github.com/clubsync/clubsyncgo/internal/store"
)

type outcome int

const (
	outApplied outcome = iota
	outSkipped
	outConflict
)

// Engine applies inbound envelopes record by record under the per-kind
// merge policy and collects outbound envelopes from the local store.
// Applying the same envelope twice is a no-op by construction.
type Engine struct {
	store  store.Store
	ledger *Ledger
	self   *identity.Identity
	now    func() time.Time
}

// NewEngine creates a merge engine for this device
func NewEngine(st store.Store, ledger *Ledger, self *identity.Identity) *Engine {
	return &Engine{store: st, ledger: ledger, self: self, now: time.Now}
}

// ApplyInbound merges an envelope into the local store. Batches apply in
// the fixed entity-kind order, records in batch order. A cancelled context
// stops cleanly between records; everything already applied stays applied
// and the next exchange re-sends the remainder.
func (e *Engine) ApplyInbound(ctx context.Context, env *Envelope) (ApplyStats, error) {
	var stats ApplyStats
	if !models.SchemaCompatible(env.SchemaVersion) {
		return stats, fmt.Errorf("%w: envelope v%d, local v%d", ErrSchemaIncompatible, env.SchemaVersion, models.SchemaVersion)
	}

	for _, kind := range models.AllEntityKinds {
		for _, raw := range env.Batches[kind] {
			if err := ctx.Err(); err != nil {
				return stats, err
			}
			out, err := e.applyRecord(ctx, kind, raw, env)
			if err != nil {
				return stats, err
			}
			switch out {
			case outApplied:
				stats.Applied++
			case outSkipped:
				stats.Skipped++
			case outConflict:
				stats.Conflicts++
			}
		}
	}
	return stats, nil
}

func (e *Engine) applyRecord(ctx context.Context, kind models.EntityKind, raw json.RawMessage, env *Envelope) (outcome, error) {
	switch kind {
	case models.KindMember:
		return e.applyMember(ctx, raw)
	case models.KindCheckIn:
		return e.applyCheckIn(ctx, raw)
	case models.KindPracticeSession:
		return e.applyPracticeSession(ctx, raw)
	case models.KindScanEvent:
		return e.applyScanEvent(ctx, raw)
	case models.KindRegistration:
		return e.applyRegistration(ctx, raw)
	case models.KindEquipmentItem:
		return e.applyEquipmentItem(ctx, raw)
	case models.KindEquipmentCheckout:
		return e.applyEquipmentCheckout(ctx, raw, env)
	case models.KindDeviceRecord:
		return e.applyDeviceRecord(ctx, raw)
	}
	log.Printf("Sync: dropping record of unknown kind %q", kind)
	return outSkipped, nil
}

type verdict int

const (
	acceptRemote verdict = iota
	keepLocal
	needsReview
)

// decideAuthoritative implements authoritative-writer-wins: a higher
// origin-role rank always wins, the same writer is ordered by version,
// and concurrent equal-rank equal-version edits by different writers
// need operator review.
func decideAuthoritative(local, remote models.SyncMeta) verdict {
	lr, rr := local.OriginRole.Rank(), remote.OriginRole.Rank()
	if rr > lr {
		return acceptRemote
	}
	if rr < lr {
		return keepLocal
	}
	if remote.DeviceID == local.DeviceID {
		if remote.SyncVersion > local.SyncVersion {
			return acceptRemote
		}
		return keepLocal
	}
	if remote.SyncVersion > local.SyncVersion {
		return acceptRemote
	}
	if remote.SyncVersion < local.SyncVersion {
		return keepLocal
	}
	return needsReview
}

func (e *Engine) applyMember(ctx context.Context, raw json.RawMessage) (outcome, error) {
	var in models.Member
	if err := json.Unmarshal(raw, &in); err != nil {
		log.Printf("Sync: dropping malformed member record: %v", err)
		return outSkipped, nil
	}
	local, err := e.store.Member(ctx, in.ID)
	if err == store.ErrNotFound {
		in.MarkSynced(e.now())
		return outApplied, e.store.SaveMember(ctx, &in)
	}
	if err != nil {
		return outSkipped, err
	}
	switch decideAuthoritative(local.SyncMeta, in.SyncMeta) {
	case acceptRemote:
		in.MarkSynced(e.now())
		return outApplied, e.store.SaveMember(ctx, &in)
	case keepLocal:
		return outSkipped, nil
	}
	return e.recordConflict(ctx, models.ConflictMasterDataMismatch, local, &in, local.SyncVersion, in.SyncVersion, in.DeviceID)
}

func (e *Engine) applyCheckIn(ctx context.Context, raw json.RawMessage) (outcome, error) {
	var in models.CheckIn
	if err := json.Unmarshal(raw, &in); err != nil {
		log.Printf("Sync: dropping malformed check-in record: %v", err)
		return outSkipped, nil
	}
	_, err := e.store.CheckInByMemberDay(ctx, in.MemberID, in.Day)
	if err == nil {
		return outSkipped, nil // already checked in that day
	}
	if err != store.ErrNotFound {
		return outSkipped, err
	}
	in.MarkSynced(e.now())
	return outApplied, e.store.SaveCheckIn(ctx, &in)
}

func (e *Engine) applyPracticeSession(ctx context.Context, raw json.RawMessage) (outcome, error) {
	var in models.PracticeSession
	if err := json.Unmarshal(raw, &in); err != nil {
		log.Printf("Sync: dropping malformed practice-session record: %v", err)
		return outSkipped, nil
	}
	if in.Fingerprint == "" {
		in.Fingerprint = in.ComputeFingerprint()
	}
	_, err := e.store.PracticeSessionByFingerprint(ctx, in.Fingerprint)
	if err == nil {
		return outSkipped, nil
	}
	if err != store.ErrNotFound {
		return outSkipped, err
	}
	in.MarkSynced(e.now())
	return outApplied, e.store.SavePracticeSession(ctx, &in)
}

func (e *Engine) applyScanEvent(ctx context.Context, raw json.RawMessage) (outcome, error) {
	var in models.ScanEvent
	if err := json.Unmarshal(raw, &in); err != nil {
		log.Printf("Sync: dropping malformed scan-event record: %v", err)
		return outSkipped, nil
	}
	_, err := e.store.ScanEvent(ctx, in.ID)
	if err == nil {
		return outSkipped, nil
	}
	if err != store.ErrNotFound {
		return outSkipped, err
	}
	in.MarkSynced(e.now())
	return outApplied, e.store.SaveScanEvent(ctx, &in)
}

// applyRegistration enforces the workflow policy: a local terminal
// decision is final, contradicting inbound stages are dropped with a
// warning and never ledgered.
func (e *Engine) applyRegistration(ctx context.Context, raw json.RawMessage) (outcome, error) {
	var in models.Registration
	if err := json.Unmarshal(raw, &in); err != nil {
		log.Printf("Sync: dropping malformed registration record: %v", err)
		return outSkipped, nil
	}
	local, err := e.store.Registration(ctx, in.ID)
	if err == store.ErrNotFound {
		in.MarkSynced(e.now())
		return outApplied, e.store.SaveRegistration(ctx, &in)
	}
	if err != nil {
		return outSkipped, err
	}

	if local.Stage.Terminal() {
		if in.Stage != local.Stage {
			log.Printf("Sync: WARNING dropping registration %s stage %s from %s, local decision %s is final",
				in.ID, in.Stage, in.DeviceID, local.Stage)
			return outSkipped, nil
		}
		if in.SyncVersion <= local.SyncVersion {
			return outSkipped, nil
		}
		in.MarkSynced(e.now())
		return outApplied, e.store.SaveRegistration(ctx, &in)
	}

	// Local still pending: any terminal decision wins, otherwise the
	// newer pending edit wins. Equal-version concurrent pendings keep
	// the local copy; the next decision supersedes both anyway.
	if in.Stage.Terminal() || decideAuthoritative(local.SyncMeta, in.SyncMeta) == acceptRemote {
		in.MarkSynced(e.now())
		return outApplied, e.store.SaveRegistration(ctx, &in)
	}
	return outSkipped, nil
}

func (e *Engine) applyEquipmentItem(ctx context.Context, raw json.RawMessage) (outcome, error) {
	var in models.EquipmentItem
	if err := json.Unmarshal(raw, &in); err != nil {
		log.Printf("Sync: dropping malformed equipment-item record: %v", err)
		return outSkipped, nil
	}
	local, err := e.store.EquipmentItem(ctx, in.ID)
	if err == store.ErrNotFound {
		in.MarkSynced(e.now())
		return outApplied, e.store.SaveEquipmentItem(ctx, &in)
	}
	if err != nil {
		return outSkipped, err
	}
	switch decideAuthoritative(local.SyncMeta, in.SyncMeta) {
	case acceptRemote:
		in.MarkSynced(e.now())
		return outApplied, e.store.SaveEquipmentItem(ctx, &in)
	case keepLocal:
		return outSkipped, nil
	}
	return e.recordConflict(ctx, models.ConflictMasterDataMismatch, local, &in, local.SyncVersion, in.SyncVersion, in.DeviceID)
}

// applyEquipmentCheckout guards the exclusive claim: an inbound open
// checkout colliding with a different local open checkout on the same
// item by another member is never merged silently.
func (e *Engine) applyEquipmentCheckout(ctx context.Context, raw json.RawMessage, env *Envelope) (outcome, error) {
	var in models.EquipmentCheckout
	if err := json.Unmarshal(raw, &in); err != nil {
		log.Printf("Sync: dropping malformed equipment-checkout record: %v", err)
		return outSkipped, nil
	}

	local, err := e.store.EquipmentCheckout(ctx, in.ID)
	if err == nil {
		// Same claim on both sides, usually the return event
		switch decideAuthoritative(local.SyncMeta, in.SyncMeta) {
		case acceptRemote:
			in.MarkSynced(e.now())
			return outApplied, e.store.SaveEquipmentCheckout(ctx, &in)
		case keepLocal:
			return outSkipped, nil
		}
		return e.recordConflict(ctx, models.ConflictVersionMismatch, local, &in, local.SyncVersion, in.SyncVersion, in.DeviceID)
	}
	if err != store.ErrNotFound {
		return outSkipped, err
	}

	if in.Open() {
		open, err := e.store.OpenCheckoutForItem(ctx, in.ItemID)
		if err != nil && err != store.ErrNotFound {
			return outSkipped, err
		}
		if open != nil && open.ID != in.ID {
			if open.MemberID == in.MemberID {
				return outSkipped, nil // same holder recorded twice
			}
			return e.recordConflict(ctx, models.ConflictDoubleClaim, open, &in, open.SyncVersion, in.SyncVersion, env.OriginDeviceID)
		}
	}
	in.MarkSynced(e.now())
	return outApplied, e.store.SaveEquipmentCheckout(ctx, &in)
}

// applyDeviceRecord is pure last-writer-wins and never raises conflicts
func (e *Engine) applyDeviceRecord(ctx context.Context, raw json.RawMessage) (outcome, error) {
	var in models.DeviceRecord
	if err := json.Unmarshal(raw, &in); err != nil {
		log.Printf("Sync: dropping malformed device record: %v", err)
		return outSkipped, nil
	}
	local, err := e.store.DeviceRecord(ctx, in.ID)
	if err == store.ErrNotFound {
		in.MarkSynced(e.now())
		return outApplied, e.store.SaveDeviceRecord(ctx, &in)
	}
	if err != nil {
		return outSkipped, err
	}
	if in.ModifiedAt.After(local.ModifiedAt) {
		in.MarkSynced(e.now())
		return outApplied, e.store.SaveDeviceRecord(ctx, &in)
	}
	return outSkipped, nil
}

// CollectOutbound assembles the envelope of everything changed since the
// given mark, projected for the requesting role. Display consumers never
// receive guardian or contact details of registrations.
func (e *Engine) CollectOutbound(ctx context.Context, since time.Time, forRole models.DeviceRole) (*Envelope, error) {
	env := &Envelope{
		SchemaVersion:  models.SchemaVersion,
		OriginDeviceID: e.self.ID,
		OriginRole:     e.self.Role,
		Timestamp:      e.now(),
		Batches:        make(map[models.EntityKind][]json.RawMessage),
	}

	add := func(kind models.EntityKind, v interface{}) error {
		raw, err := json.Marshal(v)
		if err != nil {
			return err
		}
		env.Batches[kind] = append(env.Batches[kind], raw)
		return nil
	}

	members, err := e.store.MembersChangedSince(ctx, since)
	if err != nil {
		return nil, err
	}
	for _, m := range members {
		if err := add(models.KindMember, m); err != nil {
			return nil, err
		}
	}

	checkIns, err := e.store.CheckInsChangedSince(ctx, since)
	if err != nil {
		return nil, err
	}
	for _, c := range checkIns {
		if err := add(models.KindCheckIn, c); err != nil {
			return nil, err
		}
	}

	sessions, err := e.store.PracticeSessionsChangedSince(ctx, since)
	if err != nil {
		return nil, err
	}
	for _, p := range sessions {
		if err := add(models.KindPracticeSession, p); err != nil {
			return nil, err
		}
	}

	scans, err := e.store.ScanEventsChangedSince(ctx, since)
	if err != nil {
		return nil, err
	}
	for _, s := range scans {
		if err := add(models.KindScanEvent, s); err != nil {
			return nil, err
		}
	}

	regs, err := e.store.RegistrationsChangedSince(ctx, since)
	if err != nil {
		return nil, err
	}
	for _, r := range regs {
		if forRole == models.RoleDisplay {
			r = r.Redacted()
		}
		if err := add(models.KindRegistration, r); err != nil {
			return nil, err
		}
	}

	items, err := e.store.EquipmentItemsChangedSince(ctx, since)
	if err != nil {
		return nil, err
	}
	for _, i := range items {
		if err := add(models.KindEquipmentItem, i); err != nil {
			return nil, err
		}
	}

	checkouts, err := e.store.EquipmentCheckoutsChangedSince(ctx, since)
	if err != nil {
		return nil, err
	}
	for _, c := range checkouts {
		if err := add(models.KindEquipmentCheckout, c); err != nil {
			return nil, err
		}
	}

	devices, err := e.store.DeviceRecordsChangedSince(ctx, since)
	if err != nil {
		return nil, err
	}
	for _, d := range devices {
		if err := add(models.KindDeviceRecord, d); err != nil {
			return nil, err
		}
	}

	return env, nil
}

// MarkExchanged stamps every record of a successfully pushed envelope as
// synced so the pending-change count settles. Best effort per record; a
// missed stamp only means the record rides along on the next push.
func (e *Engine) MarkExchanged(ctx context.Context, env *Envelope) {
	now := e.now()
	for kind, batch := range env.Batches {
		for _, raw := range batch {
			if err := e.markRecord(ctx, kind, raw, now); err != nil {
				log.Printf("Sync: could not mark %s record synced: %v", kind, err)
			}
		}
	}
}

func (e *Engine) markRecord(ctx context.Context, kind models.EntityKind, raw json.RawMessage, now time.Time) error {
	switch kind {
	case models.KindMember:
		var v models.Member
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		m, err := e.store.Member(ctx, v.ID)
		if err != nil {
			return err
		}
		m.MarkSynced(now)
		return e.store.SaveMember(ctx, m)
	case models.KindCheckIn:
		var v models.CheckIn
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		c, err := e.store.CheckInByMemberDay(ctx, v.MemberID, v.Day)
		if err != nil {
			return err
		}
		c.MarkSynced(now)
		return e.store.SaveCheckIn(ctx, c)
	case models.KindPracticeSession:
		var v models.PracticeSession
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		p, err := e.store.PracticeSessionByFingerprint(ctx, v.Fingerprint)
		if err != nil {
			return err
		}
		p.MarkSynced(now)
		return e.store.SavePracticeSession(ctx, p)
	case models.KindScanEvent:
		var v models.ScanEvent
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		s, err := e.store.ScanEvent(ctx, v.ID)
		if err != nil {
			return err
		}
		s.MarkSynced(now)
		return e.store.SaveScanEvent(ctx, s)
	case models.KindRegistration:
		var v models.Registration
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		r, err := e.store.Registration(ctx, v.ID)
		if err != nil {
			return err
		}
		r.MarkSynced(now)
		return e.store.SaveRegistration(ctx, r)
	case models.KindEquipmentItem:
		var v models.EquipmentItem
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		i, err := e.store.EquipmentItem(ctx, v.ID)
		if err != nil {
			return err
		}
		i.MarkSynced(now)
		return e.store.SaveEquipmentItem(ctx, i)
	case models.KindEquipmentCheckout:
		var v models.EquipmentCheckout
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		c, err := e.store.EquipmentCheckout(ctx, v.ID)
		if err != nil {
			return err
		}
		c.MarkSynced(now)
		return e.store.SaveEquipmentCheckout(ctx, c)
	case models.KindDeviceRecord:
		var v models.DeviceRecord
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		d, err := e.store.DeviceRecord(ctx, v.ID)
		if err != nil {
			return err
		}
		d.MarkSynced(now)
		return e.store.SaveDeviceRecord(ctx, d)
	}
	return nil
}

// recordConflict hands an unresolvable record pair to the ledger. The
// ledger row is filed under the remote record's own identity, so a
// double claim surfaces the contested incoming claim.
func (e *Engine) recordConflict(ctx context.Context, kind models.ConflictKind, local, remote models.SyncableEntity, localVer, remoteVer int64, originDevice string) (outcome, error) {
	_, fresh, err := e.ledger.Record(ctx, kind, remote.GetEntityKind(), remote.GetEntityID(), local, remote, localVer, remoteVer, originDevice)
	if err != nil {
		return outSkipped, err
	}
	if !fresh {
		return outSkipped, nil // already awaiting review
	}
	return outConflict, nil
}
