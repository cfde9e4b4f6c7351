package models

// SyncableEntity is implemented by every model that travels in a
// sync envelope
type SyncableEntity interface {
	GetEntityID() string
	GetEntityKind() EntityKind
}
