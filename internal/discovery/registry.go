package discovery

import (
	"sync"
	"time"
)

// Registry holds the live table of sighted peers, newest sighting per
// device. Reads hand out copies, never live references.
type Registry struct {
	mu    sync.RWMutex
	peers map[string]Sighting
}

// NewRegistry creates an empty peer registry
func NewRegistry() *Registry {
	return &Registry{peers: make(map[string]Sighting)}
}

// Upsert records a sighting, keeping the most recent one per device
func (r *Registry) Upsert(s Sighting) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.peers[s.DeviceID] = s
}

// Get returns the latest sighting of one device
func (r *Registry) Get(deviceID string) (Sighting, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.peers[deviceID]
	return s, ok
}

// Snapshot returns a copy of all current sightings
func (r *Registry) Snapshot() []Sighting {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Sighting, 0, len(r.peers))
	for _, s := range r.peers {
		out = append(out, s)
	}
	return out
}

// Reachable returns sightings fresh enough to sync against
func (r *Registry) Reachable(maxAge time.Duration, now time.Time) []Sighting {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Sighting, 0, len(r.peers))
	for _, s := range r.peers {
		if !s.Removed && now.Sub(s.LastSeen) <= maxAge {
			out = append(out, s)
		}
	}
	return out
}

// sweepStale marks peers unseen for longer than maxAge as removed and
// returns the removal sightings to emit
func (r *Registry) sweepStale(maxAge time.Duration, now time.Time) []Sighting {
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed []Sighting
	for id, s := range r.peers {
		if !s.Removed && now.Sub(s.LastSeen) > maxAge {
			s.Removed = true
			r.peers[id] = s
			removed = append(removed, s)
		}
	}
	return removed
}
