package store

import (
	"context"
	"errors"
	"time"

	"github.com/clubsync/clubsyncgo/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore implements Store on top of the PostgreSQL database
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a gorm-backed store
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func translateErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func getByID[T any](ctx context.Context, db *gorm.DB, id string) (*T, error) {
	var row T
	if err := db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, translateErr(err)
	}
	return &row, nil
}

func upsert(ctx context.Context, db *gorm.DB, row interface{}) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(row).Error
}

func changedSince[T any](ctx context.Context, db *gorm.DB, since time.Time) ([]T, error) {
	var rows []T
	err := db.WithContext(ctx).
		Where("modified_at > ?", since).
		Order("modified_at ASC").
		Find(&rows).Error
	return rows, err
}

// Member returns one member by ID
func (s *GormStore) Member(ctx context.Context, id string) (*models.Member, error) {
	return getByID[models.Member](ctx, s.db, id)
}

// SaveMember upserts a member row
func (s *GormStore) SaveMember(ctx context.Context, m *models.Member) error {
	return upsert(ctx, s.db, m)
}

// MembersChangedSince lists members modified after the mark
func (s *GormStore) MembersChangedSince(ctx context.Context, since time.Time) ([]models.Member, error) {
	return changedSince[models.Member](ctx, s.db, since)
}

// CheckInByMemberDay looks up a check-in by its natural key
func (s *GormStore) CheckInByMemberDay(ctx context.Context, memberID, day string) (*models.CheckIn, error) {
	var row models.CheckIn
	err := s.db.WithContext(ctx).
		First(&row, "member_id = ? AND day = ?", memberID, day).Error
	if err != nil {
		return nil, translateErr(err)
	}
	return &row, nil
}

// SaveCheckIn upserts a check-in row
func (s *GormStore) SaveCheckIn(ctx context.Context, c *models.CheckIn) error {
	return upsert(ctx, s.db, c)
}

// CheckInsChangedSince lists check-ins modified after the mark
func (s *GormStore) CheckInsChangedSince(ctx context.Context, since time.Time) ([]models.CheckIn, error) {
	return changedSince[models.CheckIn](ctx, s.db, since)
}

// PracticeSessionByFingerprint looks up a session by its natural key hash
func (s *GormStore) PracticeSessionByFingerprint(ctx context.Context, fp string) (*models.PracticeSession, error) {
	var row models.PracticeSession
	err := s.db.WithContext(ctx).First(&row, "fingerprint = ?", fp).Error
	if err != nil {
		return nil, translateErr(err)
	}
	return &row, nil
}

// SavePracticeSession upserts a practice session row
func (s *GormStore) SavePracticeSession(ctx context.Context, p *models.PracticeSession) error {
	return upsert(ctx, s.db, p)
}

// PracticeSessionsChangedSince lists sessions modified after the mark
func (s *GormStore) PracticeSessionsChangedSince(ctx context.Context, since time.Time) ([]models.PracticeSession, error) {
	return changedSince[models.PracticeSession](ctx, s.db, since)
}

// ScanEvent returns one scan event by ID
func (s *GormStore) ScanEvent(ctx context.Context, id string) (*models.ScanEvent, error) {
	return getByID[models.ScanEvent](ctx, s.db, id)
}

// SaveScanEvent upserts a scan event row
func (s *GormStore) SaveScanEvent(ctx context.Context, ev *models.ScanEvent) error {
	return upsert(ctx, s.db, ev)
}

// ScanEventsChangedSince lists scan events modified after the mark
func (s *GormStore) ScanEventsChangedSince(ctx context.Context, since time.Time) ([]models.ScanEvent, error) {
	return changedSince[models.ScanEvent](ctx, s.db, since)
}

// Registration returns one registration by ID
func (s *GormStore) Registration(ctx context.Context, id string) (*models.Registration, error) {
	return getByID[models.Registration](ctx, s.db, id)
}

// SaveRegistration upserts a registration row
func (s *GormStore) SaveRegistration(ctx context.Context, r *models.Registration) error {
	return upsert(ctx, s.db, r)
}

// RegistrationsChangedSince lists registrations modified after the mark
func (s *GormStore) RegistrationsChangedSince(ctx context.Context, since time.Time) ([]models.Registration, error) {
	return changedSince[models.Registration](ctx, s.db, since)
}

// EquipmentItem returns one equipment item by ID
func (s *GormStore) EquipmentItem(ctx context.Context, id string) (*models.EquipmentItem, error) {
	return getByID[models.EquipmentItem](ctx, s.db, id)
}

// SaveEquipmentItem upserts an equipment item row
func (s *GormStore) SaveEquipmentItem(ctx context.Context, e *models.EquipmentItem) error {
	return upsert(ctx, s.db, e)
}

// EquipmentItemsChangedSince lists items modified after the mark
func (s *GormStore) EquipmentItemsChangedSince(ctx context.Context, since time.Time) ([]models.EquipmentItem, error) {
	return changedSince[models.EquipmentItem](ctx, s.db, since)
}

// EquipmentCheckout returns one checkout by ID
func (s *GormStore) EquipmentCheckout(ctx context.Context, id string) (*models.EquipmentCheckout, error) {
	return getByID[models.EquipmentCheckout](ctx, s.db, id)
}

// OpenCheckoutForItem returns the outstanding claim on an item, if any
func (s *GormStore) OpenCheckoutForItem(ctx context.Context, itemID string) (*models.EquipmentCheckout, error) {
	var row models.EquipmentCheckout
	err := s.db.WithContext(ctx).
		First(&row, "item_id = ? AND returned_at IS NULL", itemID).Error
	if err != nil {
		return nil, translateErr(err)
	}
	return &row, nil
}

// SaveEquipmentCheckout upserts a checkout row
func (s *GormStore) SaveEquipmentCheckout(ctx context.Context, e *models.EquipmentCheckout) error {
	return upsert(ctx, s.db, e)
}

// EquipmentCheckoutsChangedSince lists checkouts modified after the mark
func (s *GormStore) EquipmentCheckoutsChangedSince(ctx context.Context, since time.Time) ([]models.EquipmentCheckout, error) {
	return changedSince[models.EquipmentCheckout](ctx, s.db, since)
}

// DeviceRecord returns one device record by ID
func (s *GormStore) DeviceRecord(ctx context.Context, id string) (*models.DeviceRecord, error) {
	return getByID[models.DeviceRecord](ctx, s.db, id)
}

// SaveDeviceRecord upserts a device record row
func (s *GormStore) SaveDeviceRecord(ctx context.Context, d *models.DeviceRecord) error {
	return upsert(ctx, s.db, d)
}

// DeviceRecordsChangedSince lists device records modified after the mark
func (s *GormStore) DeviceRecordsChangedSince(ctx context.Context, since time.Time) ([]models.DeviceRecord, error) {
	return changedSince[models.DeviceRecord](ctx, s.db, since)
}

// Conflict returns one ledger entry by ID
func (s *GormStore) Conflict(ctx context.Context, id string) (*models.SyncConflict, error) {
	return getByID[models.SyncConflict](ctx, s.db, id)
}

// PendingConflictFor finds an unresolved ledger entry for the same entity
// and kind, the idempotency guard against duplicate conflict rows
func (s *GormStore) PendingConflictFor(ctx context.Context, kind models.ConflictKind, entityKind models.EntityKind, entityID string) (*models.SyncConflict, error) {
	var row models.SyncConflict
	err := s.db.WithContext(ctx).
		First(&row, "kind = ? AND entity_kind = ? AND entity_id = ? AND resolution = ?",
			kind, entityKind, entityID, models.ResolvePendingManual).Error
	if err != nil {
		return nil, translateErr(err)
	}
	return &row, nil
}

// SaveConflict upserts a ledger entry
func (s *GormStore) SaveConflict(ctx context.Context, c *models.SyncConflict) error {
	return upsert(ctx, s.db, c)
}

// PendingConflicts lists unresolved ledger entries, oldest first
func (s *GormStore) PendingConflicts(ctx context.Context) ([]models.SyncConflict, error) {
	var rows []models.SyncConflict
	err := s.db.WithContext(ctx).
		Where("resolution = ?", models.ResolvePendingManual).
		Order("detected_at ASC").
		Find(&rows).Error
	return rows, err
}

// PurgeResolvedConflictsBefore deletes resolved entries past retention
func (s *GormStore) PurgeResolvedConflictsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("resolution <> ? AND resolved_at IS NOT NULL AND resolved_at < ?",
			models.ResolvePendingManual, cutoff).
		Delete(&models.SyncConflict{})
	return res.RowsAffected, res.Error
}

// PeerSyncState returns the bookkeeping row for a peer
func (s *GormStore) PeerSyncState(ctx context.Context, peerDeviceID string) (*models.PeerSyncState, error) {
	var row models.PeerSyncState
	err := s.db.WithContext(ctx).First(&row, "peer_device_id = ?", peerDeviceID).Error
	if err != nil {
		return nil, translateErr(err)
	}
	return &row, nil
}

// SavePeerSyncState upserts the bookkeeping row for a peer
func (s *GormStore) SavePeerSyncState(ctx context.Context, st *models.PeerSyncState) error {
	return upsert(ctx, s.db, st)
}

// PendingChangeCount counts rows not yet exchanged with any peer
func (s *GormStore) PendingChangeCount(ctx context.Context) (int64, error) {
	var total int64
	tables := []interface{}{
		&models.Member{}, &models.CheckIn{}, &models.PracticeSession{},
		&models.ScanEvent{}, &models.Registration{}, &models.EquipmentItem{},
		&models.EquipmentCheckout{}, &models.DeviceRecord{},
	}
	for _, t := range tables {
		var n int64
		err := s.db.WithContext(ctx).Model(t).
			Where("synced_at IS NULL OR modified_at > synced_at").
			Count(&n).Error
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}
