// Package pairing implements the trust ceremony that turns a discovered
// device into an authorized sync peer. The issuer mints a short-lived,
// single-use credential, hands it out of band (usually as a QR code), and
// redeems it exactly once in exchange for a durable AuthCredential plus
// the current trusted-peer list.
package pairing

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/clubsync/clubsyncgo/internal/auth"
	"github.com/clubsync/clubsyncgo/internal/identity"
	"github.com/clubsync/clubsyncgo/internal/models"
	"github.com/clubsync/clubsyncgo/internal/trust"
)

// CredentialTTL is the validity window of an issued pairing credential
const CredentialTTL = 5 * time.Minute

// Typed rejections surfaced to the issuer UI. Role and schema mismatches
// do not consume the token; the joiner may retry with a corrected request
// before expiry.
var (
	ErrTokenInvalid       = errors.New("pairing: token invalid")
	ErrTokenExpired       = errors.New("pairing: token expired")
	ErrRoleMismatch       = errors.New("pairing: role does not match issued credential")
	ErrSchemaIncompatible = errors.New("pairing: schema version incompatible")
)

// Credential is the short-lived QR ticket. It lives only in the issuer's
// process memory and is never persisted.
type Credential struct {
	Token        string            `json:"token"`
	NetworkID    string            `json:"networkId"`
	Endpoint     string            `json:"endpoint"`
	ExpectedRole models.DeviceRole `json:"expectedRole"`
	DisplayName  string            `json:"displayName"`
	IssuedAt     time.Time         `json:"issuedAt"`
	ExpiresAt    time.Time         `json:"expiresAt"`
}

// DeviceInfo identifies the joining device in a redemption request
type DeviceInfo struct {
	DeviceID    string            `json:"deviceId"`
	DisplayName string            `json:"displayName"`
	Role        models.DeviceRole `json:"role"`
}

// RedeemRequest is sent by the joiner to the issuer's pairing operation
type RedeemRequest struct {
	Token         string     `json:"token"`
	Device        DeviceInfo `json:"device"`
	SchemaVersion int        `json:"schemaVersion"`
}

// RedeemResponse hands the joiner everything it needs to participate:
// its durable credential, the network identity, and the current peer set
// so trust propagates in one round trip.
type RedeemResponse struct {
	AuthCredential string               `json:"authCredential"`
	NetworkID      string               `json:"networkId"`
	NetworkSecret  string               `json:"networkSecret"`
	TrustedPeers   []models.TrustedPeer `json:"trustedPeers"`
}

// EventSink receives pairing telemetry events
type EventSink interface {
	Publish(source, event string, payload interface{})
}

// Issuer owns the pending-credentials table. Expired entries are swept
// lazily on issue and count; a redemption inspects its own token directly
// so a late joiner learns the token expired rather than never existed.
type Issuer struct {
	mu      sync.Mutex
	pending map[string]Credential

	identity *identity.Identity
	trust    *trust.Store
	endpoint string
	events   EventSink
	now      func() time.Time
}

// NewIssuer creates a pairing issuer for this device
func NewIssuer(id *identity.Identity, tr *trust.Store, endpoint string, events EventSink) *Issuer {
	return &Issuer{
		pending:  make(map[string]Credential),
		identity: id,
		trust:    tr,
		endpoint: endpoint,
		events:   events,
		now:      time.Now,
	}
}

// Issue mints a fresh single-use credential for one expected joiner
func (i *Issuer) Issue(expectedRole models.DeviceRole, displayName string) (Credential, error) {
	if !i.identity.InNetwork() {
		return Credential{}, fmt.Errorf("pairing: device has no network to invite into")
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return Credential{}, fmt.Errorf("pairing: generate token: %w", err)
	}

	now := i.now()
	cred := Credential{
		Token:        base64.RawURLEncoding.EncodeToString(buf),
		NetworkID:    i.identity.NetworkID,
		Endpoint:     i.endpoint,
		ExpectedRole: expectedRole,
		DisplayName:  displayName,
		IssuedAt:     now,
		ExpiresAt:    now.Add(CredentialTTL),
	}

	i.mu.Lock()
	i.sweepLocked(now)
	i.pending[cred.Token] = cred
	i.mu.Unlock()

	log.Printf("Pairing: credential issued for %q (%s), valid until %s",
		displayName, expectedRole, cred.ExpiresAt.Format(time.RFC3339))
	if i.events != nil {
		i.events.Publish("pairing", "credential-issued", map[string]interface{}{
			"displayName": displayName, "expectedRole": expectedRole,
		})
	}
	return cred, nil
}

// Redeem validates a joiner request in order: token exists, not expired,
// role matches, schema compatible. Only expiry, structural invalidity or
// success consumes the token.
func (i *Issuer) Redeem(req RedeemRequest) (*RedeemResponse, error) {
	now := i.now()

	i.mu.Lock()
	cred, ok := i.pending[req.Token]
	if !ok {
		i.mu.Unlock()
		return nil, ErrTokenInvalid
	}
	if now.After(cred.ExpiresAt) {
		delete(i.pending, req.Token)
		i.mu.Unlock()
		return nil, ErrTokenExpired
	}
	if req.Device.Role != cred.ExpectedRole {
		i.mu.Unlock()
		return nil, fmt.Errorf("%w: expected %s, got %s", ErrRoleMismatch, cred.ExpectedRole, req.Device.Role)
	}
	if !models.SchemaCompatible(req.SchemaVersion) {
		i.mu.Unlock()
		return nil, fmt.Errorf("%w: peer speaks v%d, we speak v%d", ErrSchemaIncompatible, req.SchemaVersion, models.SchemaVersion)
	}
	if req.Device.DeviceID == "" {
		// Structurally broken request consumes the token
		delete(i.pending, req.Token)
		i.mu.Unlock()
		return nil, fmt.Errorf("%w: missing device id", ErrTokenInvalid)
	}
	delete(i.pending, req.Token)
	i.mu.Unlock()

	credential, err := auth.MintCredential(req.Device.DeviceID, req.Device.Role, i.identity.NetworkID, i.identity.NetworkSecret)
	if err != nil {
		return nil, fmt.Errorf("pairing: mint credential: %w", err)
	}

	displayName := req.Device.DisplayName
	if displayName == "" {
		displayName = cred.DisplayName
	}
	if err := i.trust.Upsert(models.TrustedPeer{
		DeviceID:    req.Device.DeviceID,
		DisplayName: displayName,
		Role:        req.Device.Role,
		PairedAt:    now,
		LastSeenAt:  now,
		Trusted:     true,
	}); err != nil {
		return nil, err
	}

	// Include the issuer itself so the joiner learns the whole network
	peers := i.trust.Snapshot()
	peers = append(peers, models.TrustedPeer{
		DeviceID:    i.identity.ID,
		DisplayName: i.identity.DisplayName,
		Role:        i.identity.Role,
		PairedAt:    now,
		LastSeenAt:  now,
		Trusted:     true,
	})

	log.Printf("Pairing: device %s (%s) joined as %s", displayName, req.Device.DeviceID, req.Device.Role)
	if i.events != nil {
		i.events.Publish("pairing", "peer-joined", map[string]interface{}{
			"deviceId": req.Device.DeviceID, "role": req.Device.Role,
		})
	}

	return &RedeemResponse{
		AuthCredential: credential,
		NetworkID:      i.identity.NetworkID,
		NetworkSecret:  i.identity.NetworkSecret,
		TrustedPeers:   peers,
	}, nil
}

// PendingCount reports how many unredeemed credentials are outstanding
func (i *Issuer) PendingCount() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.sweepLocked(i.now())
	return len(i.pending)
}

// sweepLocked discards expired credentials. Caller holds the mutex.
func (i *Issuer) sweepLocked(now time.Time) {
	for token, cred := range i.pending {
		if now.After(cred.ExpiresAt) {
			delete(i.pending, token)
			log.Printf("Pairing: credential for %q expired unredeemed", cred.DisplayName)
		}
	}
}
