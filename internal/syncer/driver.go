package syncer

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/clubsync/clubsyncgo/internal/auth"
	"github.com/clubsync/clubsyncgo/internal/discovery"
	"github.com/clubsync/clubsyncgo/internal/identity"
	"github.com/clubsync/clubsyncgo/internal/models"
	"github.com/clubsync/clubsyncgo/internal/store"
	"github.com/clubsync/clubsyncgo/internal/trust"
)

// peerFreshness is how recent a discovery sighting must be for the
// driver to attempt an exchange against it
const peerFreshness = 90 * time.Second

// DriverState is the lifecycle state of the sync driver
type DriverState string

const (
	DriverStopped DriverState = "stopped"
	DriverIdle    DriverState = "idle"
	DriverSyncing DriverState = "syncing"
)

// Exchange outcomes booked per peer. The two terminal statuses park the
// peer: it is skipped on later cycles until the operator re-pairs it or
// its advertised schema moves.
const (
	statusOK           = "ok"
	statusError        = "error"
	statusNeedsRepair  = "needs-repair"
	statusNeedsUpgrade = "needs-upgrade"
)

// Driver runs the periodic exchange loop: every interval, and on demand,
// it syncs against every trusted, reachable, schema-compatible peer.
// Exchanges run concurrently across peers but strictly serialized per
// peer.
type Driver struct {
	engine   *Engine
	ledger   *Ledger
	store    store.Store
	trust    *trust.Store
	registry *discovery.Registry
	self     *identity.Identity
	events   EventSink
	interval time.Duration

	// clientFor builds the client for one peer endpoint; swapped in tests
	clientFor func(baseURL string) *Client

	mu        sync.Mutex
	peerLocks map[string]*sync.Mutex
	state     DriverState
	lastCycle time.Time
	trigger   chan struct{}
}

// NewDriver wires a sync driver for this device
func NewDriver(engine *Engine, ledger *Ledger, st store.Store, tr *trust.Store, registry *discovery.Registry, self *identity.Identity, interval time.Duration, events EventSink) *Driver {
	d := &Driver{
		engine:    engine,
		ledger:    ledger,
		store:     st,
		trust:     tr,
		registry:  registry,
		self:      self,
		events:    events,
		interval:  interval,
		peerLocks: make(map[string]*sync.Mutex),
		state:     DriverStopped,
		trigger:   make(chan struct{}, 1),
	}
	d.clientFor = func(baseURL string) *Client {
		// Present the credential issued at pairing; a network founder
		// never received one, so it mints its own from the shared secret
		credential := self.AuthCredential
		if credential == "" {
			minted, err := auth.MintCredential(self.ID, self.Role, self.NetworkID, self.NetworkSecret)
			if err != nil {
				log.Printf("Sync: could not mint own credential: %v", err)
			}
			credential = minted
		}
		return NewClient(baseURL, credential)
	}
	return d
}

// Run drives the exchange loop until the context is cancelled. An
// in-flight exchange notices cancellation between records and stops
// cleanly; everything applied so far stays applied.
func (d *Driver) Run(ctx context.Context) {
	d.setState(DriverIdle)
	log.Printf("Sync: driver running, interval %s", d.interval)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			d.setState(DriverStopped)
			log.Printf("Sync: driver stopped")
			return
		case <-ticker.C:
		case <-d.trigger:
		}
		d.runCycle(ctx)
	}
}

// TriggerNow requests an immediate cycle without waiting for the ticker.
// Non-blocking; a cycle already queued absorbs the request.
func (d *Driver) TriggerNow() {
	select {
	case d.trigger <- struct{}{}:
	default:
	}
}

// State reports the current driver lifecycle state
func (d *Driver) State() DriverState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// LastCycle reports when the last exchange cycle completed
func (d *Driver) LastCycle() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastCycle
}

func (d *Driver) setState(s DriverState) {
	d.mu.Lock()
	d.state = s
	d.mu.Unlock()
}

// runCycle exchanges with every eligible peer concurrently, then purges
// expired resolved conflicts
func (d *Driver) runCycle(ctx context.Context) {
	d.setState(DriverSyncing)
	defer func() {
		d.mu.Lock()
		d.state = DriverIdle
		d.lastCycle = time.Now()
		d.mu.Unlock()
	}()

	peers := d.eligiblePeers(ctx)
	if len(peers) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, peer := range peers {
		wg.Add(1)
		go func(p discovery.Sighting) {
			defer wg.Done()
			result := d.SyncPeer(ctx, p)
			if result.Failed() {
				log.Printf("Sync: exchange with %s failed (push: %v, pull: %v)", p.DeviceID, result.PushErr, result.PullErr)
			}
		}(peer)
	}
	wg.Wait()

	if _, err := d.ledger.PurgeResolved(ctx); err != nil {
		log.Printf("Sync: conflict purge failed: %v", err)
	}
}

// eligiblePeers intersects trusted, reachable and compatible, minus
// peers parked by a terminal rejection
func (d *Driver) eligiblePeers(ctx context.Context) []discovery.Sighting {
	var out []discovery.Sighting
	for _, s := range d.registry.Reachable(peerFreshness, time.Now()) {
		if !d.trust.IsTrusted(s.DeviceID) || !s.Compatible(d.self.NetworkID) {
			continue
		}
		if d.parked(ctx, s) {
			continue
		}
		out = append(out, s)
	}
	return out
}

// parked reports whether a peer's terminal rejection still stands.
// needs-repair lifts when the peer is paired again; needs-upgrade lifts
// when either side of the schema gap moves.
func (d *Driver) parked(ctx context.Context, s discovery.Sighting) bool {
	state, err := d.store.PeerSyncState(ctx, s.DeviceID)
	if err != nil {
		return false
	}
	switch state.LastStatus {
	case statusNeedsRepair:
		peer, ok := d.trust.Get(s.DeviceID)
		return !ok || !peer.PairedAt.After(state.LastAttemptAt)
	case statusNeedsUpgrade:
		return s.SchemaVersion == state.PeerSchema
	}
	return false
}

// SyncPeer runs one push-then-pull exchange against a peer. A push
// failure never blocks the pull. The pull mark only advances when both
// directions succeed, so nothing is ever skipped, only re-offered.
func (d *Driver) SyncPeer(ctx context.Context, peer discovery.Sighting) ExchangeResult {
	lock := d.lockFor(peer.DeviceID)
	lock.Lock()
	defer lock.Unlock()

	result := ExchangeResult{PeerDeviceID: peer.DeviceID}

	state, err := d.store.PeerSyncState(ctx, peer.DeviceID)
	if err == store.ErrNotFound {
		state = &models.PeerSyncState{PeerDeviceID: peer.DeviceID}
	} else if err != nil {
		result.PushErr = err
		return result
	}

	since := state.LastMark
	mark := time.Now()
	state.LastAttemptAt = mark
	state.PeerSchema = peer.SchemaVersion
	client := d.clientFor(peer.BaseURL())

	outbound, err := d.engine.CollectOutbound(ctx, since, peer.Role)
	if err != nil {
		result.PushErr = err
	} else {
		pushRes, pushErr := client.Push(ctx, outbound)
		if pushErr != nil {
			result.PushErr = pushErr
		} else {
			d.engine.MarkExchanged(ctx, outbound)
			result.Pushed = outbound.RecordCount()
			now := time.Now()
			state.LastPushAt = &now
			state.PushedCount += int64(result.Pushed)
			state.ConflictCount += int64(pushRes.Conflicts)
		}
	}

	inbound, pullErr := client.Pull(ctx, since)
	if pullErr != nil {
		result.PullErr = pullErr
	} else {
		stats, applyErr := d.engine.ApplyInbound(ctx, inbound)
		result.Pulled = stats
		if applyErr != nil {
			result.PullErr = applyErr
		} else {
			now := time.Now()
			state.LastPullAt = &now
			state.PulledCount += int64(stats.Applied)
			state.ConflictCount += int64(stats.Conflicts)
		}
	}

	if result.Failed() {
		state.LastStatus = statusError
		switch {
		case errors.Is(result.PushErr, ErrUnauthorized) || errors.Is(result.PullErr, ErrUnauthorized):
			state.LastStatus = statusNeedsRepair
		case errors.Is(result.PushErr, ErrSchemaIncompatible) || errors.Is(result.PullErr, ErrSchemaIncompatible):
			state.LastStatus = statusNeedsUpgrade
		}
		if result.PushErr != nil {
			state.LastError = result.PushErr.Error()
		} else {
			state.LastError = result.PullErr.Error()
		}
	} else {
		state.LastMark = mark
		state.LastStatus = statusOK
		state.LastError = ""
		log.Printf("Sync: exchanged with %s (pushed %d, pulled %d, conflicts %d)",
			peer.DeviceID, result.Pushed, result.Pulled.Applied, result.Pulled.Conflicts)
	}

	if err := d.store.SavePeerSyncState(ctx, state); err != nil {
		log.Printf("Sync: could not persist state for %s: %v", peer.DeviceID, err)
	}
	if d.events != nil {
		d.events.Publish("sync", "exchange-finished", result)
	}
	return result
}

// lockFor returns the serialization lock of one peer
func (d *Driver) lockFor(deviceID string) *sync.Mutex {
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.peerLocks[deviceID]
	if !ok {
		l = &sync.Mutex{}
		d.peerLocks[deviceID] = l
	}
	return l
}
