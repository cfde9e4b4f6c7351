package syncer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/clubsync/clubsyncgo/internal/discovery"
	"github.com/clubsync/clubsyncgo/internal/identity"
	"github.com/clubsync/clubsyncgo/internal/models"
	"github.com/clubsync/clubsyncgo/internal/store"
	"github.com/clubsync/clubsyncgo/internal/trust"
)

func testDriver(t *testing.T, serverURL string) (*Driver, *store.MemoryStore, *trust.Store, *discovery.Registry) {
	t.Helper()
	st := store.NewMemoryStore()
	self := &identity.Identity{
		ID:            "local-1",
		DisplayName:   "Office PC",
		Role:          models.RoleAdminConsole,
		NetworkID:     "net-1",
		NetworkSecret: "test-secret",
	}
	tr := trust.NewStore(nil)
	registry := discovery.NewRegistry()
	ledger := NewLedger(st, self, nil)
	engine := NewEngine(st, ledger, self)
	d := NewDriver(engine, ledger, st, tr, registry, self, time.Minute, nil)
	d.clientFor = func(string) *Client { return NewClient(serverURL, "test-credential") }
	return d, st, tr, registry
}

func peerSighting(id string) discovery.Sighting {
	return discovery.Sighting{
		DeviceID:      id,
		Role:          models.RoleMaster,
		DisplayName:   "Peer " + id,
		Address:       "192.168.1.20",
		Port:          3260,
		SchemaVersion: models.SchemaVersion,
		NetworkID:     "net-1",
		LastSeen:      time.Now(),
	}
}

// peerServer answers the sync protocol like a healthy remote device
func peerServer(t *testing.T, pullEnvelope *Envelope, failPush bool) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/sync/push":
			if failPush {
				http.Error(w, "storage failure", http.StatusInternalServerError)
				return
			}
			var env Envelope
			if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
				http.Error(w, "bad envelope", http.StatusBadRequest)
				return
			}
			json.NewEncoder(w).Encode(PushResult{Status: "ok", Applied: env.RecordCount()})
		case "/sync/pull":
			json.NewEncoder(w).Encode(pullEnvelope)
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestSyncPeerExchanges(t *testing.T) {
	remote := stampedMember("m1", "Mira Vogel", "peer-1", models.RoleMaster, 1, time.Now())
	pull := envelopeFrom("peer-1", models.RoleMaster, map[models.EntityKind][]json.RawMessage{})
	pull.Batches[models.KindMember] = []json.RawMessage{mustRawDriver(t, remote)}

	server := peerServer(t, pull, false)
	defer server.Close()

	d, st, tr, _ := testDriver(t, server.URL)
	ctx := context.Background()

	// Something local to push
	local := stampedMember("m2", "Jonas Brandt", "local-1", models.RoleAdminConsole, 1, time.Now())
	if err := st.SaveMember(ctx, &local); err != nil {
		t.Fatalf("Failed to seed member: %v", err)
	}
	if err := tr.Upsert(models.TrustedPeer{DeviceID: "peer-1", Role: models.RoleMaster, Trusted: true}); err != nil {
		t.Fatalf("Failed to trust peer: %v", err)
	}

	result := d.SyncPeer(ctx, peerSighting("peer-1"))
	if result.Failed() {
		t.Fatalf("Exchange should succeed: push=%v pull=%v", result.PushErr, result.PullErr)
	}
	if result.Pushed != 1 {
		t.Errorf("Expected 1 pushed record, got %d", result.Pushed)
	}
	if result.Pulled.Applied != 1 {
		t.Errorf("Expected 1 pulled record, got %+v", result.Pulled)
	}

	// The pulled member landed locally
	if _, err := st.Member(ctx, "m1"); err != nil {
		t.Errorf("Pulled member should exist: %v", err)
	}

	// The exchange mark advanced and the outcome is booked
	state, err := st.PeerSyncState(ctx, "peer-1")
	if err != nil {
		t.Fatalf("Peer state should exist: %v", err)
	}
	if state.LastMark.IsZero() {
		t.Error("Successful exchange should advance the mark")
	}
	if state.LastStatus != "ok" {
		t.Errorf("Expected ok status, got %s", state.LastStatus)
	}

	// The pushed record no longer counts as pending
	pending, _ := st.PendingChangeCount(ctx)
	if pending != 0 {
		t.Errorf("Expected no pending changes after exchange, got %d", pending)
	}
}

func TestSyncPeerPushFailureStillPulls(t *testing.T) {
	remote := stampedMember("m1", "Mira Vogel", "peer-1", models.RoleMaster, 1, time.Now())
	pull := envelopeFrom("peer-1", models.RoleMaster, map[models.EntityKind][]json.RawMessage{})
	pull.Batches[models.KindMember] = []json.RawMessage{mustRawDriver(t, remote)}

	server := peerServer(t, pull, true)
	defer server.Close()

	d, st, tr, _ := testDriver(t, server.URL)
	ctx := context.Background()
	if err := tr.Upsert(models.TrustedPeer{DeviceID: "peer-1", Role: models.RoleMaster, Trusted: true}); err != nil {
		t.Fatalf("Failed to trust peer: %v", err)
	}

	result := d.SyncPeer(ctx, peerSighting("peer-1"))
	if result.PushErr == nil {
		t.Error("Push should fail")
	}
	if result.PullErr != nil {
		t.Errorf("Pull should still run: %v", result.PullErr)
	}
	if result.Pulled.Applied != 1 {
		t.Errorf("Expected the pull to land, got %+v", result.Pulled)
	}

	// The mark must not advance on a half-failed exchange
	state, err := st.PeerSyncState(ctx, "peer-1")
	if err != nil {
		t.Fatalf("Peer state should exist: %v", err)
	}
	if !state.LastMark.IsZero() {
		t.Error("Failed exchange should not advance the mark")
	}
	if state.LastStatus != "error" || state.LastError == "" {
		t.Errorf("Failure should be booked, got %q %q", state.LastStatus, state.LastError)
	}
}

func TestEligiblePeersIntersection(t *testing.T) {
	d, _, tr, registry := testDriver(t, "http://ignored")

	now := time.Now()
	trustedFresh := peerSighting("good")
	registry.Upsert(trustedFresh)

	untrusted := peerSighting("stranger")
	registry.Upsert(untrusted)

	stale := peerSighting("sleeper")
	stale.LastSeen = now.Add(-10 * time.Minute)
	registry.Upsert(stale)

	foreign := peerSighting("outsider")
	foreign.NetworkID = "net-2"
	registry.Upsert(foreign)

	for _, id := range []string{"good", "sleeper", "outsider"} {
		if err := tr.Upsert(models.TrustedPeer{DeviceID: id, Role: models.RoleMaster, Trusted: true}); err != nil {
			t.Fatalf("Failed to trust peer: %v", err)
		}
	}

	eligible := d.eligiblePeers(context.Background())
	if len(eligible) != 1 {
		t.Fatalf("Expected exactly 1 eligible peer, got %d", len(eligible))
	}
	if eligible[0].DeviceID != "good" {
		t.Errorf("Expected good, got %s", eligible[0].DeviceID)
	}
}

func TestSyncPeerSerialized(t *testing.T) {
	pull := envelopeFrom("peer-1", models.RoleMaster, map[models.EntityKind][]json.RawMessage{})

	var inFlight, overlapped int32
	mu := make(chan struct{}, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case mu <- struct{}{}:
			inFlight++
			time.Sleep(20 * time.Millisecond)
			<-mu
		default:
			overlapped++
		}
		switch r.URL.Path {
		case "/sync/push":
			json.NewEncoder(w).Encode(PushResult{Status: "ok"})
		case "/sync/pull":
			json.NewEncoder(w).Encode(pull)
		}
	}))
	defer server.Close()

	d, _, tr, _ := testDriver(t, server.URL)
	if err := tr.Upsert(models.TrustedPeer{DeviceID: "peer-1", Role: models.RoleMaster, Trusted: true}); err != nil {
		t.Fatalf("Failed to trust peer: %v", err)
	}

	done := make(chan struct{})
	go func() {
		d.SyncPeer(context.Background(), peerSighting("peer-1"))
		close(done)
	}()
	d.SyncPeer(context.Background(), peerSighting("peer-1"))
	<-done

	if overlapped != 0 {
		t.Errorf("Exchanges against one peer should never overlap, saw %d overlaps", overlapped)
	}
}

func TestSyncPeerUnauthorizedParksPeer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not trusted", http.StatusUnauthorized)
	}))
	defer server.Close()

	d, st, tr, registry := testDriver(t, server.URL)
	ctx := context.Background()
	if err := tr.Upsert(models.TrustedPeer{DeviceID: "peer-1", Role: models.RoleMaster, Trusted: true, PairedAt: time.Now().Add(-time.Hour)}); err != nil {
		t.Fatalf("Failed to trust peer: %v", err)
	}
	registry.Upsert(peerSighting("peer-1"))

	d.SyncPeer(ctx, peerSighting("peer-1"))

	state, err := st.PeerSyncState(ctx, "peer-1")
	if err != nil {
		t.Fatalf("Peer state should exist: %v", err)
	}
	if state.LastStatus != "needs-repair" {
		t.Errorf("Expected needs-repair, got %s", state.LastStatus)
	}

	// The peer is skipped until it is paired again
	if peers := d.eligiblePeers(ctx); len(peers) != 0 {
		t.Errorf("Rejected peer should be parked, got %d eligible", len(peers))
	}
	if err := tr.Upsert(models.TrustedPeer{DeviceID: "peer-1", Role: models.RoleMaster, Trusted: true, PairedAt: time.Now()}); err != nil {
		t.Fatalf("Failed to re-pair peer: %v", err)
	}
	if peers := d.eligiblePeers(ctx); len(peers) != 1 {
		t.Errorf("Re-paired peer should sync again, got %d eligible", len(peers))
	}
}

func TestSyncPeerSchemaRejectionParksPeer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upgrade required", http.StatusUpgradeRequired)
	}))
	defer server.Close()

	d, st, tr, registry := testDriver(t, server.URL)
	ctx := context.Background()
	if err := tr.Upsert(models.TrustedPeer{DeviceID: "peer-1", Role: models.RoleMaster, Trusted: true}); err != nil {
		t.Fatalf("Failed to trust peer: %v", err)
	}
	registry.Upsert(peerSighting("peer-1"))

	d.SyncPeer(ctx, peerSighting("peer-1"))

	state, err := st.PeerSyncState(ctx, "peer-1")
	if err != nil {
		t.Fatalf("Peer state should exist: %v", err)
	}
	if state.LastStatus != "needs-upgrade" {
		t.Errorf("Expected needs-upgrade, got %s", state.LastStatus)
	}
	if peers := d.eligiblePeers(ctx); len(peers) != 0 {
		t.Errorf("Mismatched peer should be parked, got %d eligible", len(peers))
	}

	// A moved schema advertisement lifts the park
	moved := peerSighting("peer-1")
	moved.SchemaVersion = models.SchemaVersion + 1
	if d.parked(ctx, moved) {
		t.Error("A changed schema advertisement should unpark the peer")
	}
}

func TestDriverPresentsStoredCredential(t *testing.T) {
	st := store.NewMemoryStore()
	self := &identity.Identity{
		ID:             "local-1",
		Role:           models.RoleMemberKiosk,
		NetworkID:      "net-1",
		NetworkSecret:  "test-secret",
		AuthCredential: "issued-at-pairing",
	}
	ledger := NewLedger(st, self, nil)
	engine := NewEngine(st, ledger, self)
	d := NewDriver(engine, ledger, st, trust.NewStore(nil), discovery.NewRegistry(), self, time.Minute, nil)

	c := d.clientFor("http://192.168.1.20:3260")
	if c.credential != "issued-at-pairing" {
		t.Errorf("Driver should present the credential issued at pairing, got %q", c.credential)
	}
}

func mustRawDriver(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("Failed to marshal fixture: %v", err)
	}
	return raw
}
