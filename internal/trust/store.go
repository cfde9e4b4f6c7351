// Package trust owns the set of peers authorized to sync with this
// device. The store is the single writer of the trusted_peers table;
// every other component reads through snapshots.
package trust

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/clubsync/clubsyncgo/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store holds the trusted peer set. A nil db keeps the store purely in
// memory, which tests and throwaway displays use.
type Store struct {
	mu    sync.RWMutex
	peers map[string]models.TrustedPeer
	db    *gorm.DB
}

// NewStore creates a trust store backed by the given database handle
func NewStore(db *gorm.DB) *Store {
	return &Store{
		peers: make(map[string]models.TrustedPeer),
		db:    db,
	}
}

// Load reads the persisted peer set into memory. Call once at startup.
func (s *Store) Load() error {
	if s.db == nil {
		return nil
	}
	var rows []models.TrustedPeer
	if err := s.db.Find(&rows).Error; err != nil {
		return fmt.Errorf("trust: load peers: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range rows {
		s.peers[p.DeviceID] = p
	}
	log.Printf("Trust: loaded %d peer(s)", len(rows))
	return nil
}

// Upsert adds or refreshes a peer record. At most one record exists per
// device ID.
func (s *Store) Upsert(peer models.TrustedPeer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.peers[peer.DeviceID]; ok && peer.PairedAt.IsZero() {
		peer.PairedAt = existing.PairedAt
	}
	s.peers[peer.DeviceID] = peer

	if s.db != nil {
		if err := s.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&peer).Error; err != nil {
			return fmt.Errorf("trust: persist peer %s: %w", peer.DeviceID, err)
		}
	}
	return nil
}

// Revoke marks a peer untrusted. The record is kept so data originating
// from the device stays recognizable and rejectable. Revocation is sticky:
// only a fresh pairing ceremony can re-establish trust.
func (s *Store) Revoke(deviceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	peer, ok := s.peers[deviceID]
	if !ok {
		return fmt.Errorf("trust: unknown peer %s", deviceID)
	}
	peer.Trusted = false
	s.peers[deviceID] = peer

	if s.db != nil {
		if err := s.db.Model(&models.TrustedPeer{}).
			Where("device_id = ?", deviceID).
			Update("trusted", false).Error; err != nil {
			return fmt.Errorf("trust: persist revocation of %s: %w", deviceID, err)
		}
	}
	log.Printf("Trust: peer %s revoked", deviceID)
	return nil
}

// Get returns a copy of one peer record
func (s *Store) Get(deviceID string) (models.TrustedPeer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.peers[deviceID]
	return p, ok
}

// IsTrusted reports whether a device is currently authorized
func (s *Store) IsTrusted(deviceID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.peers[deviceID]
	return ok && p.Trusted
}

// Snapshot returns a copy of all peer records
func (s *Store) Snapshot() []models.TrustedPeer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.TrustedPeer, 0, len(s.peers))
	for _, p := range s.peers {
		out = append(out, p)
	}
	return out
}

// TrustedPeers returns a copy of only the currently trusted records
func (s *Store) TrustedPeers() []models.TrustedPeer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.TrustedPeer, 0, len(s.peers))
	for _, p := range s.peers {
		if p.Trusted {
			out = append(out, p)
		}
	}
	return out
}

// TouchSeen updates the last-seen timestamp of a known peer. Discovery
// sightings feed this; persistence is best effort.
func (s *Store) TouchSeen(deviceID string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.peers[deviceID]
	if !ok {
		return
	}
	p.LastSeenAt = at
	s.peers[deviceID] = p
	if s.db != nil {
		s.db.Model(&models.TrustedPeer{}).
			Where("device_id = ?", deviceID).
			Update("last_seen_at", at)
	}
}
