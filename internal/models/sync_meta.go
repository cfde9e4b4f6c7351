package models

import "time"

// SyncMeta carries the replication bookkeeping embedded in every
// synchronized entity. SyncVersion only ever increases for a given
// (entity, device) pair; it is the tie-breaker for newer-wins policies.
// Convention: Go PascalCase -> DB snake_case (GORM auto) -> JSON camelCase
type SyncMeta struct {
	DeviceID    string     `gorm:"type:varchar(64);not null;index" json:"deviceId"`
	OriginRole  DeviceRole `gorm:"type:varchar(32);not null" json:"originRole"`
	SyncVersion int64      `gorm:"not null;default:1" json:"syncVersion"`
	CreatedAt   time.Time  `json:"createdAt"`
	ModifiedAt  time.Time  `gorm:"index" json:"modifiedAt"`
	SyncedAt    *time.Time `json:"syncedAt,omitempty"`
}

// Touch stamps a local mutation: bumps the version and moves ModifiedAt
func (m *SyncMeta) Touch(deviceID string, role DeviceRole, now time.Time) {
	m.DeviceID = deviceID
	m.OriginRole = role
	m.SyncVersion++
	m.ModifiedAt = now
	m.SyncedAt = nil
}

// MarkSynced records that this row state has been exchanged with a peer
func (m *SyncMeta) MarkSynced(now time.Time) {
	t := now
	m.SyncedAt = &t
}
