package pairing

import (
	"errors"
	"testing"
	"time"

	"github.com/clubsync/clubsyncgo/internal/identity"
	"github.com/clubsync/clubsyncgo/internal/models"
	"github.com/clubsync/clubsyncgo/internal/trust"
)

func testIssuer(t *testing.T) (*Issuer, *trust.Store) {
	t.Helper()
	id := &identity.Identity{
		ID:            "master-1",
		DisplayName:   "Office PC",
		Role:          models.RoleMaster,
		NetworkID:     "net-1",
		NetworkSecret: "test-network-secret",
	}
	tr := trust.NewStore(nil)
	return NewIssuer(id, tr, "http://192.168.1.2:3260", nil), tr
}

func redeemRequest(token string, role models.DeviceRole) RedeemRequest {
	return RedeemRequest{
		Token: token,
		Device: DeviceInfo{
			DeviceID:    "kiosk-1",
			DisplayName: "Entrance Kiosk",
			Role:        role,
		},
		SchemaVersion: models.SchemaVersion,
	}
}

func TestIssueAndRedeem(t *testing.T) {
	issuer, tr := testIssuer(t)

	cred, err := issuer.Issue(models.RoleMemberKiosk, "Entrance Kiosk")
	if err != nil {
		t.Fatalf("Failed to issue credential: %v", err)
	}
	if cred.Token == "" || cred.NetworkID != "net-1" {
		t.Error("Credential should carry token and network")
	}
	if !cred.ExpiresAt.After(cred.IssuedAt) {
		t.Error("Credential should expire after issuance")
	}

	resp, err := issuer.Redeem(redeemRequest(cred.Token, models.RoleMemberKiosk))
	if err != nil {
		t.Fatalf("Failed to redeem credential: %v", err)
	}
	if resp.AuthCredential == "" {
		t.Error("Redemption should mint an auth credential")
	}
	if resp.NetworkSecret != "test-network-secret" {
		t.Error("Redemption should hand over the network secret")
	}

	// The new device is trusted on the issuer side
	if !tr.IsTrusted("kiosk-1") {
		t.Error("Redeemed device should be trusted")
	}

	// The joiner learns the whole network, issuer included
	foundIssuer := false
	for _, p := range resp.TrustedPeers {
		if p.DeviceID == "master-1" {
			foundIssuer = true
		}
	}
	if !foundIssuer {
		t.Error("Trusted peer list should include the issuer")
	}
}

func TestRedeemIsSingleUse(t *testing.T) {
	issuer, _ := testIssuer(t)

	cred, err := issuer.Issue(models.RoleMemberKiosk, "Entrance Kiosk")
	if err != nil {
		t.Fatalf("Failed to issue credential: %v", err)
	}
	if _, err := issuer.Redeem(redeemRequest(cred.Token, models.RoleMemberKiosk)); err != nil {
		t.Fatalf("First redemption should succeed: %v", err)
	}
	if _, err := issuer.Redeem(redeemRequest(cred.Token, models.RoleMemberKiosk)); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("Second redemption should fail with ErrTokenInvalid, got %v", err)
	}
}

func TestRedeemExpired(t *testing.T) {
	issuer, _ := testIssuer(t)

	cred, err := issuer.Issue(models.RoleMemberKiosk, "Entrance Kiosk")
	if err != nil {
		t.Fatalf("Failed to issue credential: %v", err)
	}

	issuer.now = func() time.Time { return time.Now().Add(CredentialTTL + time.Minute) }
	if _, err := issuer.Redeem(redeemRequest(cred.Token, models.RoleMemberKiosk)); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("Late redemption should report expiry, got %v", err)
	}

	// Expiry consumed the token; a second attempt no longer finds it
	if _, err := issuer.Redeem(redeemRequest(cred.Token, models.RoleMemberKiosk)); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("Consumed token should be invalid, got %v", err)
	}
}

func TestRedeemRoleMismatchAllowsRetry(t *testing.T) {
	issuer, _ := testIssuer(t)

	cred, err := issuer.Issue(models.RoleDisplay, "Hall Display")
	if err != nil {
		t.Fatalf("Failed to issue credential: %v", err)
	}

	// Wrong role is rejected without consuming the token
	if _, err := issuer.Redeem(redeemRequest(cred.Token, models.RoleAdminConsole)); !errors.Is(err, ErrRoleMismatch) {
		t.Fatalf("Expected role mismatch, got %v", err)
	}

	// A corrected retry with the same token succeeds
	if _, err := issuer.Redeem(redeemRequest(cred.Token, models.RoleDisplay)); err != nil {
		t.Errorf("Corrected retry should succeed: %v", err)
	}
}

func TestRedeemSchemaIncompatible(t *testing.T) {
	issuer, _ := testIssuer(t)

	cred, err := issuer.Issue(models.RoleMemberKiosk, "Entrance Kiosk")
	if err != nil {
		t.Fatalf("Failed to issue credential: %v", err)
	}

	req := redeemRequest(cred.Token, models.RoleMemberKiosk)
	req.SchemaVersion = models.SchemaVersion + 1
	if _, err := issuer.Redeem(req); !errors.Is(err, ErrSchemaIncompatible) {
		t.Fatalf("Expected schema rejection, got %v", err)
	}

	// Schema rejection keeps the token alive too
	req.SchemaVersion = models.SchemaVersion
	if _, err := issuer.Redeem(req); err != nil {
		t.Errorf("Retry after schema rejection should succeed: %v", err)
	}
}

func TestIssueWithoutNetwork(t *testing.T) {
	id := &identity.Identity{ID: "lonely", Role: models.RoleMemberKiosk}
	issuer := NewIssuer(id, trust.NewStore(nil), "http://127.0.0.1:3260", nil)

	if _, err := issuer.Issue(models.RoleDisplay, "Display"); err == nil {
		t.Error("Issuing without a network should fail")
	}
}

func TestTransferCodec(t *testing.T) {
	cred := Credential{
		Token:        "abc123",
		NetworkID:    "net-1",
		Endpoint:     "http://192.168.1.2:3260",
		ExpectedRole: models.RoleMemberKiosk,
		DisplayName:  "Entrance Kiosk",
		IssuedAt:     time.Now().Truncate(time.Second),
		ExpiresAt:    time.Now().Add(CredentialTTL).Truncate(time.Second),
	}

	transfer, err := EncodeTransfer(cred)
	if err != nil {
		t.Fatalf("Failed to encode transfer: %v", err)
	}

	decoded, err := DecodeTransfer(transfer)
	if err != nil {
		t.Fatalf("Failed to decode transfer: %v", err)
	}
	if decoded.Token != cred.Token || decoded.Endpoint != cred.Endpoint || decoded.ExpectedRole != cred.ExpectedRole {
		t.Error("Decoded credential should match the encoded one")
	}
}

func TestDecodeTransferRejectsGarbage(t *testing.T) {
	cases := []string{
		"",
		"not a code",
		"XYZ$1$abc",
		"CSP$9$abc",
		"CSP$1$!!!not-base64!!!",
	}
	for _, c := range cases {
		if _, err := DecodeTransfer(c); err == nil {
			t.Errorf("Expected rejection for %q", c)
		}
	}
}

func TestRenderQR(t *testing.T) {
	cred := Credential{Token: "abc123", Endpoint: "http://192.168.1.2:3260"}
	png, err := RenderQR(cred, 256)
	if err != nil {
		t.Fatalf("Failed to render QR: %v", err)
	}
	if len(png) == 0 {
		t.Error("QR PNG should not be empty")
	}
}
