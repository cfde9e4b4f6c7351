package auth

import (
	"testing"

	"github.com/clubsync/clubsyncgo/internal/models"
)

func TestCredentialRoundTrip(t *testing.T) {
	secret := "network-secret-12345"

	token, err := MintCredential("dev-1", models.RoleMemberKiosk, "net-1", secret)
	if err != nil {
		t.Fatalf("Failed to mint credential: %v", err)
	}
	if token == "" {
		t.Fatal("Credential should not be empty")
	}

	claims, err := ValidateCredential(token, secret, "net-1")
	if err != nil {
		t.Fatalf("Failed to validate credential: %v", err)
	}
	if claims.DeviceID != "dev-1" {
		t.Errorf("Expected device dev-1, got %s", claims.DeviceID)
	}
	if claims.Role != models.RoleMemberKiosk {
		t.Errorf("Expected role member-kiosk, got %s", claims.Role)
	}
}

func TestCredentialWrongSecret(t *testing.T) {
	token, err := MintCredential("dev-1", models.RoleMemberKiosk, "net-1", "secret-a")
	if err != nil {
		t.Fatalf("Failed to mint credential: %v", err)
	}
	if _, err := ValidateCredential(token, "secret-b", "net-1"); err == nil {
		t.Error("Credential signed with another secret should be rejected")
	}
}

func TestCredentialWrongNetwork(t *testing.T) {
	token, err := MintCredential("dev-1", models.RoleMaster, "net-1", "secret")
	if err != nil {
		t.Fatalf("Failed to mint credential: %v", err)
	}
	if _, err := ValidateCredential(token, "secret", "net-2"); err == nil {
		t.Error("Credential for another network should be rejected")
	}
}

func TestCredentialGarbage(t *testing.T) {
	if _, err := ValidateCredential("not-a-token", "secret", "net-1"); err == nil {
		t.Error("Garbage token should be rejected")
	}
}
