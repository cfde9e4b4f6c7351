package models

import "time"

// EquipmentItem is master data for a loanable piece of club equipment.
// Follows authoritative-writer-wins like Member.
type EquipmentItem struct {
	ID       string `gorm:"type:varchar(64);primaryKey" json:"id"`
	Label    string `gorm:"type:varchar(255);not null" json:"label"`
	Category string `gorm:"type:varchar(128)" json:"category"`
	Retired  bool   `gorm:"default:false" json:"retired"`
	SyncMeta
}

// TableName specifies the table name for EquipmentItem
func (EquipmentItem) TableName() string {
	return "equipment_items"
}

// GetEntityID implements SyncableEntity
func (e EquipmentItem) GetEntityID() string {
	return e.ID
}

// GetEntityKind implements SyncableEntity
func (e EquipmentItem) GetEntityKind() EntityKind {
	return KindEquipmentItem
}

// EquipmentCheckout is an exclusive claim on one physical item. Two open
// claims by different holders can never be merged silently; they raise a
// resource-double-claim conflict for the operator.
type EquipmentCheckout struct {
	ID           string     `gorm:"type:varchar(64);primaryKey" json:"id"`
	ItemID       string     `gorm:"type:varchar(64);not null;index" json:"itemId"`
	MemberID     string     `gorm:"type:varchar(64);not null" json:"memberId"`
	CheckedOutAt time.Time  `gorm:"not null" json:"checkedOutAt"`
	ReturnedAt   *time.Time `json:"returnedAt,omitempty"`
	SyncMeta
}

// TableName specifies the table name for EquipmentCheckout
func (EquipmentCheckout) TableName() string {
	return "equipment_checkouts"
}

// GetEntityID implements SyncableEntity
func (e EquipmentCheckout) GetEntityID() string {
	return e.ID
}

// GetEntityKind implements SyncableEntity
func (e EquipmentCheckout) GetEntityKind() EntityKind {
	return KindEquipmentCheckout
}

// Open reports whether the claim is still outstanding
func (e EquipmentCheckout) Open() bool {
	return e.ReturnedAt == nil
}
