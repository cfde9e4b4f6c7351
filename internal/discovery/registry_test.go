package discovery

import (
	"testing"
	"time"

	"github.com/clubsync/clubsyncgo/internal/models"
)

func testSighting(id string, seen time.Time) Sighting {
	return Sighting{
		DeviceID:      id,
		Role:          models.RoleMemberKiosk,
		DisplayName:   "Device " + id,
		Address:       "192.168.1.10",
		Port:          3260,
		SchemaVersion: models.SchemaVersion,
		NetworkID:     "net-1",
		LastSeen:      seen,
	}
}

func TestRegistryUpsertKeepsLatest(t *testing.T) {
	r := NewRegistry()
	now := time.Now()

	r.Upsert(testSighting("dev-1", now.Add(-time.Minute)))
	r.Upsert(testSighting("dev-1", now))

	if len(r.Snapshot()) != 1 {
		t.Errorf("Expected 1 sighting, got %d", len(r.Snapshot()))
	}
	s, ok := r.Get("dev-1")
	if !ok {
		t.Fatal("Sighting should exist")
	}
	if !s.LastSeen.Equal(now) {
		t.Error("Upsert should keep the newest sighting")
	}
}

func TestRegistryReachable(t *testing.T) {
	r := NewRegistry()
	now := time.Now()

	r.Upsert(testSighting("fresh", now.Add(-10*time.Second)))
	r.Upsert(testSighting("stale", now.Add(-5*time.Minute)))

	reachable := r.Reachable(time.Minute, now)
	if len(reachable) != 1 {
		t.Fatalf("Expected 1 reachable peer, got %d", len(reachable))
	}
	if reachable[0].DeviceID != "fresh" {
		t.Errorf("Expected fresh peer, got %s", reachable[0].DeviceID)
	}
}

func TestRegistrySweepStale(t *testing.T) {
	r := NewRegistry()
	now := time.Now()

	r.Upsert(testSighting("gone", now.Add(-2*time.Minute)))
	r.Upsert(testSighting("here", now))

	removed := r.sweepStale(time.Minute, now)
	if len(removed) != 1 {
		t.Fatalf("Expected 1 removal, got %d", len(removed))
	}
	if removed[0].DeviceID != "gone" || !removed[0].Removed {
		t.Error("Removal sighting should mark the vanished peer")
	}

	// Sweeping again must not emit the same removal twice
	if again := r.sweepStale(time.Minute, now); len(again) != 0 {
		t.Errorf("Expected no repeat removals, got %d", len(again))
	}
}

func TestSightingCompatible(t *testing.T) {
	s := testSighting("dev-1", time.Now())

	if !s.Compatible("net-1") {
		t.Error("Matching network should be compatible")
	}
	if s.Compatible("net-2") {
		t.Error("Foreign network should be incompatible")
	}

	s.SchemaVersion = models.SchemaVersion + 1
	if s.Compatible("net-1") {
		t.Error("Newer schema should be incompatible")
	}

	s.SchemaVersion = models.SchemaVersion
	s.Removed = true
	if s.Compatible("net-1") {
		t.Error("Removed sighting should be incompatible")
	}
}
