package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/clubsync/clubsyncgo/internal/identity"
	"github.com/clubsync/clubsyncgo/internal/models"
	"github.com/clubsync/clubsyncgo/internal/store"
)

func testLedger(t *testing.T) (*Ledger, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	self := &identity.Identity{ID: "local-1", Role: models.RoleAdminConsole, NetworkID: "net-1"}
	return NewLedger(st, self, nil), st
}

func seedConflict(t *testing.T, ledger *Ledger, st *store.MemoryStore) *models.SyncConflict {
	t.Helper()
	ctx := context.Background()
	now := time.Now()

	local := models.Member{ID: "m1", FullName: "Local Edit", Active: true}
	local.DeviceID, local.OriginRole, local.SyncVersion, local.ModifiedAt = "local-1", models.RoleAdminConsole, 2, now
	if err := st.SaveMember(ctx, &local); err != nil {
		t.Fatalf("Failed to seed member: %v", err)
	}

	remote := local
	remote.FullName = "Remote Edit"
	remote.DeviceID = "admin-2"

	c, fresh, err := ledger.Record(ctx, models.ConflictMasterDataMismatch, models.KindMember, "m1", &local, &remote, 2, 2, "admin-2")
	if err != nil {
		t.Fatalf("Failed to record conflict: %v", err)
	}
	if !fresh {
		t.Fatal("Conflict should be freshly recorded")
	}
	return c
}

func TestRecordDeduplicates(t *testing.T) {
	ledger, st := testLedger(t)
	ctx := context.Background()
	first := seedConflict(t, ledger, st)

	second, fresh, err := ledger.Record(ctx, models.ConflictMasterDataMismatch, models.KindMember, "m1", nil, nil, 2, 2, "admin-2")
	if err != nil {
		t.Fatalf("Failed to re-record conflict: %v", err)
	}
	if fresh {
		t.Error("Identical pending conflict should not be recorded twice")
	}
	if second.ID != first.ID {
		t.Error("Dedup should return the existing ledger entry")
	}
}

func TestResolveKeepLocal(t *testing.T) {
	ledger, st := testLedger(t)
	ctx := context.Background()
	c := seedConflict(t, ledger, st)

	resolved, err := ledger.Resolve(ctx, c.ID, models.ResolveKeepLocal, "operator")
	if err != nil {
		t.Fatalf("Failed to resolve conflict: %v", err)
	}
	if resolved.Resolution != models.ResolveKeepLocal || resolved.ResolvedAt == nil {
		t.Error("Resolution should be recorded on the ledger entry")
	}

	// The kept copy is re-stamped so it out-propagates the remote edit
	m, _ := st.Member(ctx, "m1")
	if m.FullName != "Local Edit" {
		t.Error("Local copy should be kept")
	}
	if m.SyncVersion <= 2 {
		t.Error("Kept copy should carry a bumped version")
	}
	if m.DeviceID != "local-1" {
		t.Error("Kept copy should be stamped by this device")
	}

	// A decided conflict cannot be decided again
	if _, err := ledger.Resolve(ctx, c.ID, models.ResolveAcceptRemote, "operator"); !errors.Is(err, ErrConflictResolved) {
		t.Errorf("Expected ErrConflictResolved, got %v", err)
	}
}

func TestResolveAcceptRemote(t *testing.T) {
	ledger, st := testLedger(t)
	ctx := context.Background()
	c := seedConflict(t, ledger, st)

	if _, err := ledger.Resolve(ctx, c.ID, models.ResolveAcceptRemote, "operator"); err != nil {
		t.Fatalf("Failed to resolve conflict: %v", err)
	}

	m, _ := st.Member(ctx, "m1")
	if m.FullName != "Remote Edit" {
		t.Error("Remote snapshot should be installed")
	}
	if m.DeviceID != "local-1" {
		t.Error("Installed snapshot should be re-stamped as a local edit")
	}
}

func TestResolveKeepBoth(t *testing.T) {
	ledger, st := testLedger(t)
	ctx := context.Background()
	c := seedConflict(t, ledger, st)

	if _, err := ledger.Resolve(ctx, c.ID, models.ResolveKeepBoth, "operator"); err != nil {
		t.Fatalf("Failed to resolve conflict: %v", err)
	}

	members, _ := st.MembersChangedSince(ctx, time.Time{})
	if len(members) != 2 {
		t.Fatalf("Expected both copies to survive, got %d", len(members))
	}
	names := map[string]bool{}
	for _, m := range members {
		names[m.FullName] = true
	}
	if !names["Local Edit"] || !names["Remote Edit"] {
		t.Error("Both edits should be present under distinct IDs")
	}
}

func TestResolveDoubleClaimAcceptRemoteClosesLocal(t *testing.T) {
	ledger, st := testLedger(t)
	ctx := context.Background()
	now := time.Now()

	local := models.EquipmentCheckout{ID: "co-1", ItemID: "bow-7", MemberID: "m1", CheckedOutAt: now}
	local.DeviceID, local.SyncVersion, local.ModifiedAt = "local-1", 1, now
	if err := st.SaveEquipmentCheckout(ctx, &local); err != nil {
		t.Fatalf("Failed to seed checkout: %v", err)
	}
	remote := models.EquipmentCheckout{ID: "co-2", ItemID: "bow-7", MemberID: "m2", CheckedOutAt: now}
	remote.DeviceID, remote.SyncVersion, remote.ModifiedAt = "kiosk-1", 1, now

	c, _, err := ledger.Record(ctx, models.ConflictDoubleClaim, models.KindEquipmentCheckout, "co-2", &local, &remote, 1, 1, "kiosk-1")
	if err != nil {
		t.Fatalf("Failed to record conflict: %v", err)
	}

	if _, err := ledger.Resolve(ctx, c.ID, models.ResolveAcceptRemote, "operator"); err != nil {
		t.Fatalf("Failed to resolve conflict: %v", err)
	}

	// The losing claim is returned, the accepted one is open
	kept, err := st.EquipmentCheckout(ctx, "co-2")
	if err != nil {
		t.Fatalf("Accepted claim should exist: %v", err)
	}
	if !kept.Open() {
		t.Error("Accepted claim should be open")
	}
	closed, _ := st.EquipmentCheckout(ctx, "co-1")
	if closed.Open() {
		t.Error("Displaced claim should be returned")
	}
	open, err := st.OpenCheckoutForItem(ctx, "bow-7")
	if err != nil {
		t.Fatalf("Item should have an open claim: %v", err)
	}
	if open.ID != "co-2" {
		t.Errorf("Expected co-2 to hold the item, got %s", open.ID)
	}
}

func TestResolveUnknownConflict(t *testing.T) {
	ledger, _ := testLedger(t)
	if _, err := ledger.Resolve(context.Background(), "missing", models.ResolveKeepLocal, "operator"); !errors.Is(err, ErrConflictNotFound) {
		t.Errorf("Expected ErrConflictNotFound, got %v", err)
	}
}

func TestPurgeResolvedHonorsRetention(t *testing.T) {
	ledger, st := testLedger(t)
	ctx := context.Background()
	c := seedConflict(t, ledger, st)

	if _, err := ledger.Resolve(ctx, c.ID, models.ResolveKeepLocal, "operator"); err != nil {
		t.Fatalf("Failed to resolve conflict: %v", err)
	}

	// Inside the retention window nothing is purged
	if n, err := ledger.PurgeResolved(ctx); err != nil || n != 0 {
		t.Errorf("Expected no purge inside retention, got n=%d err=%v", n, err)
	}

	// Move the clock past the retention window
	ledger.now = func() time.Time { return time.Now().Add(ConflictRetention + 24*time.Hour) }
	n, err := ledger.PurgeResolved(ctx)
	if err != nil {
		t.Fatalf("Failed to purge: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 purged entry, got %d", n)
	}
	if _, err := st.Conflict(ctx, c.ID); err != store.ErrNotFound {
		t.Error("Purged entry should be gone")
	}
}

func TestPurgeKeepsPending(t *testing.T) {
	ledger, st := testLedger(t)
	ctx := context.Background()
	c := seedConflict(t, ledger, st)

	ledger.now = func() time.Time { return time.Now().Add(ConflictRetention + 24*time.Hour) }
	if _, err := ledger.PurgeResolved(ctx); err != nil {
		t.Fatalf("Failed to purge: %v", err)
	}
	if _, err := st.Conflict(ctx, c.ID); err != nil {
		t.Error("Pending conflicts must survive the purge regardless of age")
	}
}

func TestSnapshotsSurviveRoundTrip(t *testing.T) {
	ledger, st := testLedger(t)
	c := seedConflict(t, ledger, st)

	var local, remote models.Member
	if err := json.Unmarshal(c.LocalSnapshot, &local); err != nil {
		t.Fatalf("Failed to decode local snapshot: %v", err)
	}
	if err := json.Unmarshal(c.RemoteSnapshot, &remote); err != nil {
		t.Fatalf("Failed to decode remote snapshot: %v", err)
	}
	if local.FullName != "Local Edit" || remote.FullName != "Remote Edit" {
		t.Error("Ledger should retain both sides verbatim")
	}
}
