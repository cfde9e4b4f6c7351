package models

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"gorm.io/datatypes"
)

// CheckIn records one member attendance on one calendar day. Append-only:
// the (member, day) natural key is the idempotency guard that makes
// replayed or re-ordered pushes safe.
type CheckIn struct {
	ID          string    `gorm:"type:varchar(64);primaryKey" json:"id"`
	MemberID    string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_checkin_member_day" json:"memberId"`
	Day         string    `gorm:"type:varchar(10);not null;uniqueIndex:idx_checkin_member_day" json:"day"` // YYYY-MM-DD
	CheckedInAt time.Time `gorm:"not null" json:"checkedInAt"`
	Source      string    `gorm:"type:varchar(64)" json:"source"`
	SyncMeta
}

// TableName specifies the table name for CheckIn
func (CheckIn) TableName() string {
	return "check_ins"
}

// GetEntityID implements SyncableEntity
func (c CheckIn) GetEntityID() string {
	return c.ID
}

// GetEntityKind implements SyncableEntity
func (c CheckIn) GetEntityKind() EntityKind {
	return KindCheckIn
}

// PracticeSession records one practice result set for a member.
// Append-only; duplicates are detected through Fingerprint.
type PracticeSession struct {
	ID          string         `gorm:"type:varchar(64);primaryKey" json:"id"`
	MemberID    string         `gorm:"type:varchar(64);not null;index" json:"memberId"`
	StartedAt   time.Time      `gorm:"not null" json:"startedAt"`
	Scores      datatypes.JSON `gorm:"type:jsonb" json:"scores"`
	Notes       string         `gorm:"type:text" json:"notes"`
	Fingerprint string         `gorm:"type:varchar(64);uniqueIndex" json:"fingerprint"`
	SyncMeta
}

// TableName specifies the table name for PracticeSession
func (PracticeSession) TableName() string {
	return "practice_sessions"
}

// GetEntityID implements SyncableEntity
func (p PracticeSession) GetEntityID() string {
	return p.ID
}

// GetEntityKind implements SyncableEntity
func (p PracticeSession) GetEntityKind() EntityKind {
	return KindPracticeSession
}

// ComputeFingerprint derives the natural key of a session from the member,
// start time and score payload. Timestamps of the sync bookkeeping are
// deliberately excluded so replicas agree on the hash.
func (p *PracticeSession) ComputeFingerprint() string {
	h := sha256.New()
	h.Write([]byte(p.MemberID))
	h.Write([]byte(p.StartedAt.UTC().Format(time.RFC3339)))
	h.Write(p.Scores)
	return hex.EncodeToString(h.Sum(nil))
}

// ScanEvent is a raw badge/QR scan observed by a kiosk. Append-only,
// keyed by its own event ID.
type ScanEvent struct {
	ID        string    `gorm:"type:varchar(64);primaryKey" json:"id"`
	MemberID  string    `gorm:"type:varchar(64);index" json:"memberId"`
	Code      string    `gorm:"type:varchar(255)" json:"code"`
	ScannedAt time.Time `gorm:"not null" json:"scannedAt"`
	SyncMeta
}

// TableName specifies the table name for ScanEvent
func (ScanEvent) TableName() string {
	return "scan_events"
}

// GetEntityID implements SyncableEntity
func (s ScanEvent) GetEntityID() string {
	return s.ID
}

// GetEntityKind implements SyncableEntity
func (s ScanEvent) GetEntityKind() EntityKind {
	return KindScanEvent
}
