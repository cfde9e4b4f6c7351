package pairing

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

// Transfer string format: CSP$<version>$<base64url payload>.
// The payload is the JSON credential; how it travels (QR code, typed in,
// NFC) is up to the caller.
const (
	transferPrefix  = "CSP"
	transferVersion = "1"
)

// EncodeTransfer serializes a credential into a single transferable string
func EncodeTransfer(c Credential) (string, error) {
	payload, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return strings.Join([]string{
		transferPrefix,
		transferVersion,
		base64.RawURLEncoding.EncodeToString(payload),
	}, "$"), nil
}

// DecodeTransfer parses a transfer string back into a credential
func DecodeTransfer(s string) (Credential, error) {
	parts := strings.Split(strings.TrimSpace(s), "$")
	if len(parts) != 3 || parts[0] != transferPrefix {
		return Credential{}, fmt.Errorf("pairing: not a pairing code")
	}
	if parts[1] != transferVersion {
		return Credential{}, fmt.Errorf("pairing: unsupported code version %q", parts[1])
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return Credential{}, fmt.Errorf("pairing: malformed code payload: %w", err)
	}
	var c Credential
	if err := json.Unmarshal(payload, &c); err != nil {
		return Credential{}, fmt.Errorf("pairing: malformed code payload: %w", err)
	}
	if c.Token == "" {
		return Credential{}, fmt.Errorf("pairing: code carries no token")
	}
	return c, nil
}

// RenderQR encodes the transfer string as a scannable PNG
func RenderQR(c Credential, size int) ([]byte, error) {
	transfer, err := EncodeTransfer(c)
	if err != nil {
		return nil, err
	}
	return qrcode.Encode(transfer, qrcode.Medium, size)
}
