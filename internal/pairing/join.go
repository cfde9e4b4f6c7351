package pairing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/clubsync/clubsyncgo/internal/models"
)

// Join is the joiner side of the ceremony: decode a transfer string,
// redeem it against the issuer's endpoint and hand back the network
// admission. The caller persists the network identity and peer list.
func Join(ctx context.Context, transfer string, deviceID, displayName string, role models.DeviceRole) (*RedeemResponse, error) {
	cred, err := DecodeTransfer(transfer)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(RedeemRequest{
		Token: cred.Token,
		Device: DeviceInfo{
			DeviceID:    deviceID,
			DisplayName: displayName,
			Role:        role,
		},
		SchemaVersion: models.SchemaVersion,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cred.Endpoint+"/pair", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pairing: issuer unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		switch resp.StatusCode {
		case http.StatusUnauthorized:
			return nil, fmt.Errorf("%w: %s", ErrTokenInvalid, bytes.TrimSpace(msg))
		case http.StatusForbidden:
			return nil, fmt.Errorf("%w: %s", ErrRoleMismatch, bytes.TrimSpace(msg))
		case http.StatusUpgradeRequired:
			return nil, fmt.Errorf("%w: %s", ErrSchemaIncompatible, bytes.TrimSpace(msg))
		}
		return nil, fmt.Errorf("pairing: issuer rejected join: %s %s", resp.Status, bytes.TrimSpace(msg))
	}

	var out RedeemResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("pairing: malformed issuer response: %w", err)
	}
	return &out, nil
}
