package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/clubsync/clubsyncgo/internal/models"
)

// MemoryStore is an in-memory Store used by tests and by read-only
// displays that keep no durable state. All methods copy on read and
// write so callers never share mutable rows.
type MemoryStore struct {
	mu sync.RWMutex

	members    map[string]models.Member
	checkIns   map[string]models.CheckIn
	sessions   map[string]models.PracticeSession
	scans      map[string]models.ScanEvent
	regs       map[string]models.Registration
	items      map[string]models.EquipmentItem
	checkouts  map[string]models.EquipmentCheckout
	devices    map[string]models.DeviceRecord
	conflicts  map[string]models.SyncConflict
	peerStates map[string]models.PeerSyncState
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		members:    make(map[string]models.Member),
		checkIns:   make(map[string]models.CheckIn),
		sessions:   make(map[string]models.PracticeSession),
		scans:      make(map[string]models.ScanEvent),
		regs:       make(map[string]models.Registration),
		items:      make(map[string]models.EquipmentItem),
		checkouts:  make(map[string]models.EquipmentCheckout),
		devices:    make(map[string]models.DeviceRecord),
		conflicts:  make(map[string]models.SyncConflict),
		peerStates: make(map[string]models.PeerSyncState),
	}
}

func memGet[T any](s *MemoryStore, m map[string]T, id string) (*T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := m[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &row, nil
}

func memChangedSince[T any](s *MemoryStore, m map[string]T, since time.Time, modifiedAt func(T) time.Time, id func(T) string) []T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []T
	for _, row := range m {
		if modifiedAt(row).After(since) {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		ti, tj := modifiedAt(out[i]), modifiedAt(out[j])
		if ti.Equal(tj) {
			return id(out[i]) < id(out[j])
		}
		return ti.Before(tj)
	})
	return out
}

// Member returns one member by ID
func (s *MemoryStore) Member(ctx context.Context, id string) (*models.Member, error) {
	return memGet(s, s.members, id)
}

// SaveMember upserts a member row
func (s *MemoryStore) SaveMember(ctx context.Context, m *models.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[m.ID] = *m
	return nil
}

// MembersChangedSince lists members modified after the mark
func (s *MemoryStore) MembersChangedSince(ctx context.Context, since time.Time) ([]models.Member, error) {
	return memChangedSince(s, s.members, since,
		func(m models.Member) time.Time { return m.ModifiedAt },
		func(m models.Member) string { return m.ID }), nil
}

// CheckInByMemberDay looks up a check-in by its natural key
func (s *MemoryStore) CheckInByMemberDay(ctx context.Context, memberID, day string) (*models.CheckIn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.checkIns {
		if c.MemberID == memberID && c.Day == day {
			row := c
			return &row, nil
		}
	}
	return nil, ErrNotFound
}

// SaveCheckIn upserts a check-in row
func (s *MemoryStore) SaveCheckIn(ctx context.Context, c *models.CheckIn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkIns[c.ID] = *c
	return nil
}

// CheckInsChangedSince lists check-ins modified after the mark
func (s *MemoryStore) CheckInsChangedSince(ctx context.Context, since time.Time) ([]models.CheckIn, error) {
	return memChangedSince(s, s.checkIns, since,
		func(c models.CheckIn) time.Time { return c.ModifiedAt },
		func(c models.CheckIn) string { return c.ID }), nil
}

// PracticeSessionByFingerprint looks up a session by natural key hash
func (s *MemoryStore) PracticeSessionByFingerprint(ctx context.Context, fp string) (*models.PracticeSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.sessions {
		if p.Fingerprint == fp {
			row := p
			return &row, nil
		}
	}
	return nil, ErrNotFound
}

// SavePracticeSession upserts a practice session row
func (s *MemoryStore) SavePracticeSession(ctx context.Context, p *models.PracticeSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[p.ID] = *p
	return nil
}

// PracticeSessionsChangedSince lists sessions modified after the mark
func (s *MemoryStore) PracticeSessionsChangedSince(ctx context.Context, since time.Time) ([]models.PracticeSession, error) {
	return memChangedSince(s, s.sessions, since,
		func(p models.PracticeSession) time.Time { return p.ModifiedAt },
		func(p models.PracticeSession) string { return p.ID }), nil
}

// ScanEvent returns one scan event by ID
func (s *MemoryStore) ScanEvent(ctx context.Context, id string) (*models.ScanEvent, error) {
	return memGet(s, s.scans, id)
}

// SaveScanEvent upserts a scan event row
func (s *MemoryStore) SaveScanEvent(ctx context.Context, ev *models.ScanEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scans[ev.ID] = *ev
	return nil
}

// ScanEventsChangedSince lists scan events modified after the mark
func (s *MemoryStore) ScanEventsChangedSince(ctx context.Context, since time.Time) ([]models.ScanEvent, error) {
	return memChangedSince(s, s.scans, since,
		func(e models.ScanEvent) time.Time { return e.ModifiedAt },
		func(e models.ScanEvent) string { return e.ID }), nil
}

// Registration returns one registration by ID
func (s *MemoryStore) Registration(ctx context.Context, id string) (*models.Registration, error) {
	return memGet(s, s.regs, id)
}

// SaveRegistration upserts a registration row
func (s *MemoryStore) SaveRegistration(ctx context.Context, r *models.Registration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.regs[r.ID] = *r
	return nil
}

// RegistrationsChangedSince lists registrations modified after the mark
func (s *MemoryStore) RegistrationsChangedSince(ctx context.Context, since time.Time) ([]models.Registration, error) {
	return memChangedSince(s, s.regs, since,
		func(r models.Registration) time.Time { return r.ModifiedAt },
		func(r models.Registration) string { return r.ID }), nil
}

// EquipmentItem returns one equipment item by ID
func (s *MemoryStore) EquipmentItem(ctx context.Context, id string) (*models.EquipmentItem, error) {
	return memGet(s, s.items, id)
}

// SaveEquipmentItem upserts an equipment item row
func (s *MemoryStore) SaveEquipmentItem(ctx context.Context, e *models.EquipmentItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[e.ID] = *e
	return nil
}

// EquipmentItemsChangedSince lists items modified after the mark
func (s *MemoryStore) EquipmentItemsChangedSince(ctx context.Context, since time.Time) ([]models.EquipmentItem, error) {
	return memChangedSince(s, s.items, since,
		func(e models.EquipmentItem) time.Time { return e.ModifiedAt },
		func(e models.EquipmentItem) string { return e.ID }), nil
}

// EquipmentCheckout returns one checkout by ID
func (s *MemoryStore) EquipmentCheckout(ctx context.Context, id string) (*models.EquipmentCheckout, error) {
	return memGet(s, s.checkouts, id)
}

// OpenCheckoutForItem returns the outstanding claim on an item, if any
func (s *MemoryStore) OpenCheckoutForItem(ctx context.Context, itemID string) (*models.EquipmentCheckout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.checkouts {
		if c.ItemID == itemID && c.ReturnedAt == nil {
			row := c
			return &row, nil
		}
	}
	return nil, ErrNotFound
}

// SaveEquipmentCheckout upserts a checkout row
func (s *MemoryStore) SaveEquipmentCheckout(ctx context.Context, e *models.EquipmentCheckout) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkouts[e.ID] = *e
	return nil
}

// EquipmentCheckoutsChangedSince lists checkouts modified after the mark
func (s *MemoryStore) EquipmentCheckoutsChangedSince(ctx context.Context, since time.Time) ([]models.EquipmentCheckout, error) {
	return memChangedSince(s, s.checkouts, since,
		func(e models.EquipmentCheckout) time.Time { return e.ModifiedAt },
		func(e models.EquipmentCheckout) string { return e.ID }), nil
}

// DeviceRecord returns one device record by ID
func (s *MemoryStore) DeviceRecord(ctx context.Context, id string) (*models.DeviceRecord, error) {
	return memGet(s, s.devices, id)
}

// SaveDeviceRecord upserts a device record row
func (s *MemoryStore) SaveDeviceRecord(ctx context.Context, d *models.DeviceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices[d.ID] = *d
	return nil
}

// DeviceRecordsChangedSince lists device records modified after the mark
func (s *MemoryStore) DeviceRecordsChangedSince(ctx context.Context, since time.Time) ([]models.DeviceRecord, error) {
	return memChangedSince(s, s.devices, since,
		func(d models.DeviceRecord) time.Time { return d.ModifiedAt },
		func(d models.DeviceRecord) string { return d.ID }), nil
}

// Conflict returns one ledger entry by ID
func (s *MemoryStore) Conflict(ctx context.Context, id string) (*models.SyncConflict, error) {
	return memGet(s, s.conflicts, id)
}

// PendingConflictFor finds an unresolved entry for the same entity and kind
func (s *MemoryStore) PendingConflictFor(ctx context.Context, kind models.ConflictKind, entityKind models.EntityKind, entityID string) (*models.SyncConflict, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.conflicts {
		if c.Kind == kind && c.EntityKind == entityKind && c.EntityID == entityID && c.Pending() {
			row := c
			return &row, nil
		}
	}
	return nil, ErrNotFound
}

// SaveConflict upserts a ledger entry
func (s *MemoryStore) SaveConflict(ctx context.Context, c *models.SyncConflict) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conflicts[c.ID] = *c
	return nil
}

// PendingConflicts lists unresolved ledger entries, oldest first
func (s *MemoryStore) PendingConflicts(ctx context.Context) ([]models.SyncConflict, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.SyncConflict
	for _, c := range s.conflicts {
		if c.Pending() {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DetectedAt.Before(out[j].DetectedAt) })
	return out, nil
}

// PurgeResolvedConflictsBefore deletes resolved entries past retention
func (s *MemoryStore) PurgeResolvedConflictsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var purged int64
	for id, c := range s.conflicts {
		if !c.Pending() && c.ResolvedAt != nil && c.ResolvedAt.Before(cutoff) {
			delete(s.conflicts, id)
			purged++
		}
	}
	return purged, nil
}

// PeerSyncState returns the bookkeeping row for a peer
func (s *MemoryStore) PeerSyncState(ctx context.Context, peerDeviceID string) (*models.PeerSyncState, error) {
	return memGet(s, s.peerStates, peerDeviceID)
}

// SavePeerSyncState upserts the bookkeeping row for a peer
func (s *MemoryStore) SavePeerSyncState(ctx context.Context, st *models.PeerSyncState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peerStates[st.PeerDeviceID] = *st
	return nil
}

// PendingChangeCount counts rows not yet exchanged with any peer
func (s *MemoryStore) PendingChangeCount(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	count := func(meta models.SyncMeta) {
		if meta.SyncedAt == nil || meta.ModifiedAt.After(*meta.SyncedAt) {
			n++
		}
	}
	for _, r := range s.members {
		count(r.SyncMeta)
	}
	for _, r := range s.checkIns {
		count(r.SyncMeta)
	}
	for _, r := range s.sessions {
		count(r.SyncMeta)
	}
	for _, r := range s.scans {
		count(r.SyncMeta)
	}
	for _, r := range s.regs {
		count(r.SyncMeta)
	}
	for _, r := range s.items {
		count(r.SyncMeta)
	}
	for _, r := range s.checkouts {
		count(r.SyncMeta)
	}
	for _, r := range s.devices {
		count(r.SyncMeta)
	}
	return n, nil
}
