// Package discovery makes this device's sync endpoint visible on the
// local network and watches for peers, without any central directory.
// It advertises an mDNS service record whose TXT metadata carries the
// device identity, and folds browse results into a live registry plus a
// restartable sighting stream with explicit removal events.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/clubsync/clubsyncgo/internal/identity"
	"github.com/clubsync/clubsyncgo/internal/models"
	"github.com/libp2p/zeroconf/v2"
)

const (
	// ServiceName is the mDNS service type advertised by every device
	ServiceName = "_clubsync._tcp"
	mdnsDomain  = "local."

	// staleAfter is how long a peer may stay silent before a removal
	// sighting is emitted for it
	staleAfter = 45 * time.Second
)

// ErrNetworkUnavailable indicates no usable local-network interface
var ErrNetworkUnavailable = errors.New("discovery: no usable network interface")

// Sighting is one observation of a peer on the local network. Removed
// sightings signal that the peer stopped advertising.
type Sighting struct {
	DeviceID      string            `json:"deviceId"`
	Role          models.DeviceRole `json:"role"`
	DisplayName   string            `json:"displayName"`
	Address       string            `json:"address"`
	Port          int               `json:"port"`
	SchemaVersion int               `json:"schemaVersion"`
	NetworkID     string            `json:"networkId"`
	LastSeen      time.Time         `json:"lastSeen"`
	Removed       bool              `json:"removed,omitempty"`
}

// Compatible reports whether this peer can be auto-selected for pairing
// or sync. Incompatible peers are still surfaced so a UI can say why.
func (s Sighting) Compatible(networkID string) bool {
	return !s.Removed &&
		models.SchemaCompatible(s.SchemaVersion) &&
		(networkID == "" || s.NetworkID == "" || s.NetworkID == networkID)
}

// BaseURL returns the peer's sync endpoint URL
func (s Sighting) BaseURL() string {
	return fmt.Sprintf("http://%s:%d", s.Address, s.Port)
}

// EventSink receives discovery telemetry events
type EventSink interface {
	Publish(source, event string, payload interface{})
}

// Service owns the mDNS advertiser and browser. Construct once, Start
// and Close scope all OS-level resources together.
type Service struct {
	identity *identity.Identity
	registry *Registry
	events   EventSink

	// sweepEvery is how often stale peers are checked; shortened in tests
	sweepEvery time.Duration

	mu        sync.Mutex
	server    *zeroconf.Server
	cancel    context.CancelFunc
	sightings chan Sighting
	started   bool
}

// NewService creates a discovery service for this device
func NewService(id *identity.Identity, registry *Registry, events EventSink) *Service {
	return &Service{
		identity:   id,
		registry:   registry,
		events:     events,
		sweepEvery: staleAfter / 3,
	}
}

// Advertise publishes this device's service record. Calling it while
// already advertising stops the previous record and starts a fresh one.
func (s *Service) Advertise(port int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		s.server.Shutdown()
		s.server = nil
	}

	txt := []string{
		"id=" + s.identity.ID,
		"role=" + string(s.identity.Role),
		"name=" + s.identity.DisplayName,
		"schema=" + strconv.Itoa(models.SchemaVersion),
		"network=" + s.identity.NetworkID,
	}

	server, err := zeroconf.Register(s.identity.ID, ServiceName, mdnsDomain, port, txt, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetworkUnavailable, err)
	}
	s.server = server
	log.Printf("Discovery: advertising %s (%s) on port %d", s.identity.DisplayName, s.identity.Role, port)
	if s.events != nil {
		s.events.Publish("discovery", "advertising", map[string]interface{}{"port": port})
	}
	return nil
}

// Discover starts browsing and returns the live sighting stream. The
// stream stays open until Close; restart by calling Discover again after
// Close. Consumers de-duplicate by device ID via the registry.
func (s *Service) Discover(ctx context.Context) (<-chan Sighting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return s.sightings, nil
	}

	browseCtx, cancel := context.WithCancel(ctx)
	entries := make(chan *zeroconf.ServiceEntry, 16)
	out := make(chan Sighting, 16)

	if err := zeroconf.Browse(browseCtx, ServiceName, mdnsDomain, entries); err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %v", ErrNetworkUnavailable, err)
	}

	s.cancel = cancel
	s.sightings = out
	s.started = true

	s.startPumps(browseCtx, entries, out)

	log.Printf("Discovery: browsing for %s peers", ServiceName)
	return out, nil
}

// startPumps runs the consume and sweep goroutines. The sighting stream
// closes only after both have exited, so a removal raced against
// shutdown can never hit a closed channel.
func (s *Service) startPumps(ctx context.Context, entries <-chan *zeroconf.ServiceEntry, out chan Sighting) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.consume(ctx, entries, out)
	}()
	go func() {
		defer wg.Done()
		s.sweep(ctx, out)
	}()
	go func() {
		wg.Wait()
		close(out)
	}()
}

// consume converts mDNS entries into sightings
func (s *Service) consume(ctx context.Context, entries <-chan *zeroconf.ServiceEntry, out chan<- Sighting) {
	for {
		select {
		case <-ctx.Done():
			return
		case entry, ok := <-entries:
			if !ok {
				return
			}
			sighting, err := sightingFromEntry(entry)
			if err != nil {
				log.Printf("Discovery: ignoring malformed advertisement %q: %v", entry.Instance, err)
				continue
			}
			if sighting.DeviceID == s.identity.ID {
				continue // our own record reflected back
			}
			s.registry.Upsert(sighting)
			if s.events != nil {
				s.events.Publish("discovery", "peer-seen", sighting)
			}
			select {
			case out <- sighting:
			case <-ctx.Done():
				return
			}
		}
	}
}

// sweep emits removal sightings for peers that stopped refreshing
func (s *Service) sweep(ctx context.Context, out chan<- Sighting) {
	ticker := time.NewTicker(s.sweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			for _, removed := range s.registry.sweepStale(staleAfter, now) {
				log.Printf("Discovery: peer %s (%s) disappeared", removed.DisplayName, removed.DeviceID)
				if s.events != nil {
					s.events.Publish("discovery", "peer-lost", removed)
				}
				select {
				case out <- removed:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

// Close releases the mDNS server and browser. Safe to call regardless of
// whether Advertise or Discover ever succeeded, and safe to call twice.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		s.server.Shutdown()
		s.server = nil
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.started = false
	log.Printf("Discovery: stopped")
}

// sightingFromEntry parses TXT metadata into a sighting, rejecting
// records with unknown enum values
func sightingFromEntry(entry *zeroconf.ServiceEntry) (Sighting, error) {
	meta := make(map[string]string, len(entry.Text))
	for _, kv := range entry.Text {
		if k, v, ok := strings.Cut(kv, "="); ok {
			meta[k] = v
		}
	}

	if meta["id"] == "" {
		return Sighting{}, errors.New("missing device id")
	}
	role, err := models.ParseDeviceRole(meta["role"])
	if err != nil {
		return Sighting{}, err
	}
	schema, err := strconv.Atoi(meta["schema"])
	if err != nil {
		return Sighting{}, fmt.Errorf("bad schema version: %v", err)
	}

	address := ""
	if len(entry.AddrIPv4) > 0 {
		address = entry.AddrIPv4[0].String()
	} else if len(entry.AddrIPv6) > 0 {
		address = entry.AddrIPv6[0].String()
	}
	if address == "" {
		return Sighting{}, errors.New("no address in advertisement")
	}

	return Sighting{
		DeviceID:      meta["id"],
		Role:          role,
		DisplayName:   meta["name"],
		Address:       address,
		Port:          entry.Port,
		SchemaVersion: schema,
		NetworkID:     meta["network"],
		LastSeen:      time.Now(),
	}, nil
}
