package models

import "time"

// TrustedPeer is a device authorized by the pairing ceremony. Revocation
// flips Trusted to false but never deletes the row, so stale data signed
// by a revoked device stays recognizable and rejectable.
// Invariant: at most one row per DeviceID.
type TrustedPeer struct {
	DeviceID    string     `gorm:"type:varchar(64);primaryKey" json:"deviceId"`
	DisplayName string     `gorm:"type:varchar(255)" json:"displayName"`
	Role        DeviceRole `gorm:"type:varchar(32);not null" json:"role"`
	PairedAt    time.Time  `gorm:"not null" json:"pairedAt"`
	LastSeenAt  time.Time  `json:"lastSeenAt"`
	Trusted     bool       `gorm:"default:true" json:"trusted"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// TableName specifies the table name for TrustedPeer
func (TrustedPeer) TableName() string {
	return "trusted_peers"
}
