package models

// Member is the master-data record for a club member. Master data follows
// the authoritative-writer-wins merge policy: the origin role out-ranks or
// the version is newer, otherwise the inbound copy is dropped.
type Member struct {
	ID       string `gorm:"type:varchar(64);primaryKey" json:"id"`
	FullName string `gorm:"type:varchar(255);not null" json:"fullName"`
	Phone    string `gorm:"type:varchar(64)" json:"phone"`
	Email    string `gorm:"type:varchar(255)" json:"email"`
	Grade    string `gorm:"type:varchar(64)" json:"grade"`
	Active   bool   `gorm:"default:true" json:"active"`
	SyncMeta
}

// TableName specifies the table name for Member
func (Member) TableName() string {
	return "members"
}

// GetEntityID implements SyncableEntity
func (m Member) GetEntityID() string {
	return m.ID
}

// GetEntityKind implements SyncableEntity
func (m Member) GetEntityKind() EntityKind {
	return KindMember
}
