package models

import "time"

// PeerSyncState tracks the exchange bookkeeping against one trusted peer:
// the pull mark handed to the peer, the last outcome and running counters.
type PeerSyncState struct {
	PeerDeviceID  string     `gorm:"type:varchar(64);primaryKey" json:"peerDeviceId"`
	LastMark      time.Time  `json:"lastMark"`
	LastAttemptAt time.Time  `json:"lastAttemptAt"`
	LastPushAt    *time.Time `json:"lastPushAt"`
	LastPullAt    *time.Time `json:"lastPullAt"`
	LastStatus    string     `gorm:"type:varchar(50)" json:"lastStatus"`
	// PeerSchema is the schema version the peer advertised at the last
	// attempt, used to notice when a parked schema gap has moved
	PeerSchema    int        `gorm:"default:0" json:"peerSchema"`
	PushedCount   int64      `gorm:"default:0" json:"pushedCount"`
	PulledCount   int64      `gorm:"default:0" json:"pulledCount"`
	ConflictCount int64      `gorm:"default:0" json:"conflictCount"`
	LastError     string     `gorm:"type:text" json:"lastError,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// TableName specifies the table name for PeerSyncState
func (PeerSyncState) TableName() string {
	return "peer_sync_state"
}
