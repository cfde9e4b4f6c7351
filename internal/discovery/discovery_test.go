package discovery

import (
	"context"
	"testing"
	"time"

	"github.com/clubsync/clubsyncgo/internal/identity"
	"github.com/clubsync/clubsyncgo/internal/models"
	"github.com/libp2p/zeroconf/v2"
)

func TestSightingStreamClosesAfterCancel(t *testing.T) {
	id := &identity.Identity{ID: "local-1", DisplayName: "Office PC", Role: models.RoleAdminConsole, NetworkID: "net-1"}
	svc := NewService(id, NewRegistry(), nil)
	svc.sweepEvery = time.Millisecond

	// A long-silent peer guarantees the sweep has a removal in flight
	// while the stream shuts down
	svc.registry.Upsert(Sighting{
		DeviceID:      "p1",
		Role:          models.RoleMaster,
		DisplayName:   "Master Phone",
		Address:       "192.168.1.9",
		Port:          3260,
		SchemaVersion: models.SchemaVersion,
		NetworkID:     "net-1",
		LastSeen:      time.Now().Add(-time.Hour),
	})

	ctx, cancel := context.WithCancel(context.Background())
	entries := make(chan *zeroconf.ServiceEntry)
	out := make(chan Sighting)
	svc.startPumps(ctx, entries, out)

	// Let the sweep pick up the stale peer, then tear everything down
	time.Sleep(5 * time.Millisecond)
	cancel()
	close(entries)

	done := make(chan struct{})
	go func() {
		for range out {
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Sighting stream should close once both pumps exit")
	}
}
