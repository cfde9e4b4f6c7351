package models

// Registration is a pending membership application moving through the
// pending -> approved | rejected workflow. The local terminal decision is
// authoritative: an inbound stage that contradicts it is dropped with a
// warning rather than recorded as a conflict.
//
// Guardian and contact fields are projected away for read-only-display
// requesters on pull.
type Registration struct {
	ID            string            `gorm:"type:varchar(64);primaryKey" json:"id"`
	ApplicantName string            `gorm:"type:varchar(255);not null" json:"applicantName"`
	BirthYear     int               `json:"birthYear"`
	GuardianName  string            `gorm:"type:varchar(255)" json:"guardianName,omitempty"`
	ContactPhone  string            `gorm:"type:varchar(64)" json:"contactPhone,omitempty"`
	ContactEmail  string            `gorm:"type:varchar(255)" json:"contactEmail,omitempty"`
	Stage         RegistrationStage `gorm:"type:varchar(32);not null;default:'pending'" json:"stage"`
	DecidedBy     string            `gorm:"type:varchar(64)" json:"decidedBy,omitempty"`
	SyncMeta
}

// TableName specifies the table name for Registration
func (Registration) TableName() string {
	return "registrations"
}

// GetEntityID implements SyncableEntity
func (r Registration) GetEntityID() string {
	return r.ID
}

// GetEntityKind implements SyncableEntity
func (r Registration) GetEntityKind() EntityKind {
	return KindRegistration
}

// Redacted returns a copy with guardian/contact details stripped for
// display-role consumers
func (r Registration) Redacted() Registration {
	r.GuardianName = ""
	r.ContactPhone = ""
	r.ContactEmail = ""
	return r
}
