// Package backup dumps and restores the membership dataset as a single
// JSON snapshot file, the recovery path when a device is replaced before
// it could sync.
package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/clubsync/clubsyncgo/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Snapshot is the on-disk backup format
type Snapshot struct {
	CreatedAt          time.Time                  `json:"createdAt"`
	SchemaVersion      int                        `json:"schemaVersion"`
	DeviceID           string                     `json:"deviceId"`
	Members            []models.Member            `json:"members"`
	CheckIns           []models.CheckIn           `json:"checkIns"`
	PracticeSessions   []models.PracticeSession   `json:"practiceSessions"`
	ScanEvents         []models.ScanEvent         `json:"scanEvents"`
	Registrations      []models.Registration      `json:"registrations"`
	EquipmentItems     []models.EquipmentItem     `json:"equipmentItems"`
	EquipmentCheckouts []models.EquipmentCheckout `json:"equipmentCheckouts"`
	DeviceRecords      []models.DeviceRecord      `json:"deviceRecords"`
	TrustedPeers       []models.TrustedPeer       `json:"trustedPeers"`
}

// Manager creates and restores snapshots under one directory
type Manager struct {
	db       *gorm.DB
	dir      string
	deviceID string
}

// NewManager creates a backup manager writing into dir
func NewManager(db *gorm.DB, dir, deviceID string) *Manager {
	return &Manager{db: db, dir: dir, deviceID: deviceID}
}

// CreateSnapshot dumps every entity table into a timestamped JSON file
// and returns its path
func (m *Manager) CreateSnapshot(ctx context.Context) (string, error) {
	snap := Snapshot{
		CreatedAt:     time.Now(),
		SchemaVersion: models.SchemaVersion,
		DeviceID:      m.deviceID,
	}

	db := m.db.WithContext(ctx)
	steps := []struct {
		name string
		dest interface{}
	}{
		{"members", &snap.Members},
		{"check-ins", &snap.CheckIns},
		{"practice sessions", &snap.PracticeSessions},
		{"scan events", &snap.ScanEvents},
		{"registrations", &snap.Registrations},
		{"equipment items", &snap.EquipmentItems},
		{"equipment checkouts", &snap.EquipmentCheckouts},
		{"device records", &snap.DeviceRecords},
		{"trusted peers", &snap.TrustedPeers},
	}
	for _, step := range steps {
		if err := db.Find(step.dest).Error; err != nil {
			return "", fmt.Errorf("backup: dump %s: %w", step.name, err)
		}
	}

	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return "", fmt.Errorf("backup: create directory: %w", err)
	}
	path := filepath.Join(m.dir, fmt.Sprintf("backup_%s.json", snap.CreatedAt.Format("20060102_150405")))

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", fmt.Errorf("backup: encode snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("backup: write snapshot: %w", err)
	}

	log.Printf("Backup: snapshot written to %s", path)
	return path, nil
}

// RestoreSnapshot loads a snapshot file and upserts every record. Rows
// already present are overwritten; rows created since the snapshot stay.
func (m *Manager) RestoreSnapshot(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("backup: read snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("backup: decode snapshot: %w", err)
	}
	if !models.SchemaCompatible(snap.SchemaVersion) {
		return fmt.Errorf("backup: snapshot schema v%d incompatible with v%d", snap.SchemaVersion, models.SchemaVersion)
	}

	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		upsert := func(name string, rows interface{}, empty bool) error {
			if empty {
				return nil
			}
			if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(rows).Error; err != nil {
				return fmt.Errorf("backup: restore %s: %w", name, err)
			}
			return nil
		}
		if err := upsert("members", snap.Members, len(snap.Members) == 0); err != nil {
			return err
		}
		if err := upsert("check-ins", snap.CheckIns, len(snap.CheckIns) == 0); err != nil {
			return err
		}
		if err := upsert("practice sessions", snap.PracticeSessions, len(snap.PracticeSessions) == 0); err != nil {
			return err
		}
		if err := upsert("scan events", snap.ScanEvents, len(snap.ScanEvents) == 0); err != nil {
			return err
		}
		if err := upsert("registrations", snap.Registrations, len(snap.Registrations) == 0); err != nil {
			return err
		}
		if err := upsert("equipment items", snap.EquipmentItems, len(snap.EquipmentItems) == 0); err != nil {
			return err
		}
		if err := upsert("equipment checkouts", snap.EquipmentCheckouts, len(snap.EquipmentCheckouts) == 0); err != nil {
			return err
		}
		if err := upsert("device records", snap.DeviceRecords, len(snap.DeviceRecords) == 0); err != nil {
			return err
		}
		if err := upsert("trusted peers", snap.TrustedPeers, len(snap.TrustedPeers) == 0); err != nil {
			return err
		}
		log.Printf("Backup: snapshot %s restored", filepath.Base(path))
		return nil
	})
}

// ListSnapshots returns the snapshot files currently on disk, newest last
func (m *Manager) ListSnapshots() ([]string, error) {
	entries, err := filepath.Glob(filepath.Join(m.dir, "backup_*.json"))
	if err != nil {
		return nil, err
	}
	return entries, nil
}
