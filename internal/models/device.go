package models

import "time"

// DeviceRecord is the replicated presence record of a device in the
// network. Pure last-writer-wins on LastSeenAt; never raises conflicts.
// Convention: Go PascalCase -> DB snake_case (GORM auto) -> JSON camelCase
type DeviceRecord struct {
	ID            string     `gorm:"type:varchar(64);primaryKey" json:"id"`
	DisplayName   string     `gorm:"type:varchar(255)" json:"displayName"`
	Role          DeviceRole `gorm:"type:varchar(32);not null" json:"role"`
	SchemaVersion int        `gorm:"default:1" json:"schemaVersion"`
	LastSeenAt    time.Time  `json:"lastSeenAt"`
	SyncMeta
}

// TableName specifies the table name for DeviceRecord
func (DeviceRecord) TableName() string {
	return "device_records"
}

// GetEntityID implements SyncableEntity
func (d DeviceRecord) GetEntityID() string {
	return d.ID
}

// GetEntityKind implements SyncableEntity
func (d DeviceRecord) GetEntityKind() EntityKind {
	return KindDeviceRecord
}
