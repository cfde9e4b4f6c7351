package models

import (
	"time"

	"gorm.io/datatypes"
)

// SyncConflict is one ledger entry for a change the merge policy could not
// resolve automatically. Snapshots of both sides are retained so the
// operator decision can be applied later. Resolved entries are purged
// after the retention window.
type SyncConflict struct {
	ID             string           `gorm:"type:varchar(64);primaryKey" json:"id"`
	Kind           ConflictKind     `gorm:"type:varchar(50);not null;index" json:"kind"`
	EntityKind     EntityKind       `gorm:"type:varchar(50);not null;index:idx_conflict_entity" json:"entityKind"`
	EntityID       string           `gorm:"type:varchar(64);not null;index:idx_conflict_entity" json:"entityId"`
	LocalSnapshot  datatypes.JSON   `gorm:"type:jsonb" json:"localSnapshot"`
	RemoteSnapshot datatypes.JSON   `gorm:"type:jsonb" json:"remoteSnapshot"`
	LocalVersion   int64            `json:"localVersion"`
	RemoteVersion  int64            `json:"remoteVersion"`
	OriginDeviceID string           `gorm:"type:varchar(64)" json:"originDeviceId"`
	DetectedAt     time.Time        `gorm:"not null;index" json:"detectedAt"`
	Resolution     ResolutionChoice `gorm:"type:varchar(32);default:'pending-manual';index" json:"resolution"`
	ResolvedAt     *time.Time       `json:"resolvedAt,omitempty"`
	ResolvedBy     string           `gorm:"type:varchar(64)" json:"resolvedBy,omitempty"`
}

// TableName specifies the table name for SyncConflict
func (SyncConflict) TableName() string {
	return "sync_conflicts"
}

// Pending reports whether the conflict still needs an operator decision
func (c SyncConflict) Pending() bool {
	return c.Resolution == ResolvePendingManual || c.Resolution == ""
}
