package models

import "fmt"

// SchemaVersion is the wire protocol version spoken by this build.
// Peers on a different version are surfaced by discovery but never
// auto-selected for pairing or sync.
const SchemaVersion = 1

// SchemaCompatible reports whether a peer schema version can be reconciled
// with ours. The protocol has no negotiation below an exact match yet.
func SchemaCompatible(v int) bool {
	return v == SchemaVersion
}

// DeviceRole defines the fixed function of a device in the network
type DeviceRole string

const (
	RoleMemberKiosk  DeviceRole = "member-kiosk"
	RoleAdminConsole DeviceRole = "admin-console"
	RoleMaster       DeviceRole = "master"
	RoleDisplay      DeviceRole = "read-only-display"
)

// ParseDeviceRole validates a role string at the deserialization boundary
func ParseDeviceRole(s string) (DeviceRole, error) {
	switch DeviceRole(s) {
	case RoleMemberKiosk, RoleAdminConsole, RoleMaster, RoleDisplay:
		return DeviceRole(s), nil
	}
	return "", fmt.Errorf("unknown device role %q", s)
}

// Rank returns the authority of a role for merge tie-breaking.
// A master origin always out-ranks every non-master origin.
func (r DeviceRole) Rank() int {
	switch r {
	case RoleMaster:
		return 100
	case RoleAdminConsole:
		return 80
	case RoleMemberKiosk:
		return 60
	case RoleDisplay:
		return 20
	}
	return 0
}

// EntityKind identifies one synchronized entity table
type EntityKind string

const (
	KindMember            EntityKind = "member"
	KindCheckIn           EntityKind = "check-in"
	KindPracticeSession   EntityKind = "practice-session"
	KindScanEvent         EntityKind = "scan-event"
	KindRegistration      EntityKind = "registration"
	KindEquipmentItem     EntityKind = "equipment-item"
	KindEquipmentCheckout EntityKind = "equipment-checkout"
	KindDeviceRecord      EntityKind = "device-record"
)

// AllEntityKinds is the fixed application order for envelope batches.
// Parents before dependents: members before check-ins, items before checkouts.
var AllEntityKinds = []EntityKind{
	KindMember,
	KindCheckIn,
	KindPracticeSession,
	KindScanEvent,
	KindRegistration,
	KindEquipmentItem,
	KindEquipmentCheckout,
	KindDeviceRecord,
}

// ParseEntityKind validates an entity kind string, rejecting unknown values
func ParseEntityKind(s string) (EntityKind, error) {
	for _, k := range AllEntityKinds {
		if EntityKind(s) == k {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown entity kind %q", s)
}

// ConflictKind classifies a sync conflict for the ledger
type ConflictKind string

const (
	ConflictMasterDataMismatch ConflictKind = "master-data-mismatch"
	ConflictDoubleClaim        ConflictKind = "resource-double-claim"
	ConflictVersionMismatch    ConflictKind = "generic-version-mismatch"
)

// ParseConflictKind validates a conflict kind string
func ParseConflictKind(s string) (ConflictKind, error) {
	switch ConflictKind(s) {
	case ConflictMasterDataMismatch, ConflictDoubleClaim, ConflictVersionMismatch:
		return ConflictKind(s), nil
	}
	return "", fmt.Errorf("unknown conflict kind %q", s)
}

// ResolutionChoice is an operator decision on a pending conflict
type ResolutionChoice string

const (
	ResolveKeepLocal     ResolutionChoice = "keep-local"
	ResolveAcceptRemote  ResolutionChoice = "accept-remote"
	ResolveKeepBoth      ResolutionChoice = "keep-both"
	ResolvePendingManual ResolutionChoice = "pending-manual"
)

// ParseResolutionChoice validates an operator resolution choice
func ParseResolutionChoice(s string) (ResolutionChoice, error) {
	switch ResolutionChoice(s) {
	case ResolveKeepLocal, ResolveAcceptRemote, ResolveKeepBoth:
		return ResolutionChoice(s), nil
	}
	return "", fmt.Errorf("unknown resolution choice %q", s)
}

// RegistrationStage is the lifecycle stage of a pending registration
type RegistrationStage string

const (
	StagePending  RegistrationStage = "pending"
	StageApproved RegistrationStage = "approved"
	StageRejected RegistrationStage = "rejected"
)

// ParseRegistrationStage validates a registration stage string
func ParseRegistrationStage(s string) (RegistrationStage, error) {
	switch RegistrationStage(s) {
	case StagePending, StageApproved, StageRejected:
		return RegistrationStage(s), nil
	}
	return "", fmt.Errorf("unknown registration stage %q", s)
}

// Terminal reports whether a stage is a final decision that a later
// inbound stage can never override
func (s RegistrationStage) Terminal() bool {
	return s == StageApproved || s == StageRejected
}
