package models

import "testing"

func TestRoleRanking(t *testing.T) {
	if RoleMaster.Rank() <= RoleAdminConsole.Rank() {
		t.Error("Master should out-rank admin console")
	}
	if RoleAdminConsole.Rank() <= RoleMemberKiosk.Rank() {
		t.Error("Admin console should out-rank member kiosk")
	}
	if RoleMemberKiosk.Rank() <= RoleDisplay.Rank() {
		t.Error("Member kiosk should out-rank read-only display")
	}
}

func TestParseDeviceRole(t *testing.T) {
	role, err := ParseDeviceRole("master")
	if err != nil {
		t.Fatalf("Failed to parse valid role: %v", err)
	}
	if role != RoleMaster {
		t.Errorf("Expected master, got %s", role)
	}

	if _, err := ParseDeviceRole("supervisor"); err == nil {
		t.Error("Unknown role should be rejected")
	}
	if _, err := ParseDeviceRole(""); err == nil {
		t.Error("Empty role should be rejected")
	}
}

func TestParseEntityKind(t *testing.T) {
	for _, kind := range AllEntityKinds {
		parsed, err := ParseEntityKind(string(kind))
		if err != nil {
			t.Errorf("Known kind %s rejected: %v", kind, err)
		}
		if parsed != kind {
			t.Errorf("Expected %s, got %s", kind, parsed)
		}
	}
	if _, err := ParseEntityKind("invoice"); err == nil {
		t.Error("Unknown entity kind should be rejected")
	}
}

func TestParseResolutionChoice(t *testing.T) {
	for _, valid := range []string{"keep-local", "accept-remote", "keep-both"} {
		if _, err := ParseResolutionChoice(valid); err != nil {
			t.Errorf("Valid choice %s rejected: %v", valid, err)
		}
	}
	// Operators cannot set a conflict back to pending
	if _, err := ParseResolutionChoice("pending-manual"); err == nil {
		t.Error("pending-manual should not be a valid operator choice")
	}
}

func TestRegistrationStageTerminal(t *testing.T) {
	if StagePending.Terminal() {
		t.Error("Pending should not be terminal")
	}
	if !StageApproved.Terminal() {
		t.Error("Approved should be terminal")
	}
	if !StageRejected.Terminal() {
		t.Error("Rejected should be terminal")
	}
}

func TestSchemaCompatible(t *testing.T) {
	if !SchemaCompatible(SchemaVersion) {
		t.Error("Own schema version should be compatible")
	}
	if SchemaCompatible(SchemaVersion + 1) {
		t.Error("Newer schema version should be incompatible")
	}
	if SchemaCompatible(0) {
		t.Error("Zero schema version should be incompatible")
	}
}

func TestSyncMetaTouch(t *testing.T) {
	m := Member{ID: "m1", FullName: "Mira Vogel"}
	m.SyncVersion = 1

	now := m.ModifiedAt
	m.Touch("dev-a", RoleAdminConsole, now.Add(1))

	if m.SyncVersion != 2 {
		t.Errorf("Expected version 2 after touch, got %d", m.SyncVersion)
	}
	if m.DeviceID != "dev-a" || m.OriginRole != RoleAdminConsole {
		t.Error("Touch should stamp the writing device and role")
	}
	if m.SyncedAt != nil {
		t.Error("Touch should clear the synced marker")
	}
}

func TestPracticeSessionFingerprint(t *testing.T) {
	p := PracticeSession{ID: "p1", MemberID: "m1"}
	fp1 := p.ComputeFingerprint()
	fp2 := p.ComputeFingerprint()
	if fp1 != fp2 {
		t.Error("Fingerprint should be deterministic")
	}
	if len(fp1) != 64 {
		t.Errorf("Expected 64-character SHA256 hash, got %d characters", len(fp1))
	}

	q := p
	q.MemberID = "m2"
	if q.ComputeFingerprint() == fp1 {
		t.Error("Different members should produce different fingerprints")
	}
}
