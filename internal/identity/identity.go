// Package identity persists the stable identity of this device: its UUID,
// display name, role, and the sync network it belongs to. The identity is
// created once per installation and survives restarts.
package identity

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/clubsync/clubsyncgo/internal/models"
	"github.com/google/uuid"
)

const identityFileName = "device_identity.json"

// Identity holds the persistent identity of this device
type Identity struct {
	ID          string            `json:"id"`
	DisplayName string            `json:"displayName"`
	Role        models.DeviceRole `json:"role"`
	// NetworkID is generated by the device that starts a network and
	// adopted by every device that joins it. Empty until either happens.
	NetworkID string `json:"networkId"`
	// NetworkSecret signs every AuthCredential exchanged inside the
	// network. Handed to joiners during pairing.
	NetworkSecret string `json:"networkSecret"`
	// AuthCredential is the durable credential issued at pairing time,
	// presented on every sync call. Empty on the network founder.
	AuthCredential string `json:"authCredential,omitempty"`

	dir string
}

// LoadOrGenerate ensures the device has a stable identity across restarts.
// Env vars take priority, then the identity file, then fresh generation.
// A master role with no network yet starts a new one.
func LoadOrGenerate(dir, displayName string, role models.DeviceRole) (*Identity, error) {
	// 1. Env override
	if envID := os.Getenv("DEVICE_ID"); envID != "" {
		id := &Identity{
			ID:            envID,
			DisplayName:   displayName,
			Role:          role,
			NetworkID:     os.Getenv("NETWORK_ID"),
			NetworkSecret: os.Getenv("NETWORK_SECRET"),
			dir:           dir,
		}
		return id, nil
	}

	// 2. Persisted file
	path := filepath.Join(dir, identityFileName)
	if data, err := os.ReadFile(path); err == nil {
		var id Identity
		if err := json.Unmarshal(data, &id); err == nil && id.ID != "" {
			id.dir = dir
			// Role and name may have been reconfigured since install
			if role != "" {
				id.Role = role
			}
			if displayName != "" {
				id.DisplayName = displayName
			}
			return &id, nil
		}
	}

	// 3. Generate new
	id := &Identity{
		ID:          uuid.New().String(),
		DisplayName: displayName,
		Role:        role,
		dir:         dir,
	}
	if role == models.RoleMaster {
		id.NetworkID = uuid.New().String()
		id.NetworkSecret = uuid.New().String() + uuid.New().String()
	}
	if err := id.save(); err != nil {
		return nil, err
	}
	return id, nil
}

// AdoptNetwork stores the network identity and the durable credential
// received at pairing time
func (i *Identity) AdoptNetwork(networkID, networkSecret, authCredential string) error {
	if networkID == "" || networkSecret == "" {
		return fmt.Errorf("identity: cannot adopt empty network")
	}
	i.NetworkID = networkID
	i.NetworkSecret = networkSecret
	i.AuthCredential = authCredential
	return i.save()
}

// InNetwork reports whether this device already belongs to a sync network
func (i *Identity) InNetwork() bool {
	return i.NetworkID != "" && i.NetworkSecret != ""
}

func (i *Identity) save() error {
	if i.dir == "" {
		return nil // env-backed identity, nothing to persist
	}
	if err := os.MkdirAll(i.dir, 0o755); err != nil {
		return fmt.Errorf("identity: create dir: %w", err)
	}
	data, err := json.MarshalIndent(i, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(i.dir, identityFileName)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("identity: write %s: %w", path, err)
	}
	return nil
}
