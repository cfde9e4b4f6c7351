// Package auth mints and verifies the bearer credential a paired device
// presents on every sync call. The credential is an HS256 JWT over the
// shared network secret; validity additionally requires that the device
// is still trusted, which the middleware checks against the trust store.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/clubsync/clubsyncgo/internal/models"
	"github.com/golang-jwt/jwt/v5"
)

const tokenType = "peer-auth"

// Credentials are long-lived; revocation happens through the trust store,
// not through expiry.
const credentialLifetime = 5 * 365 * 24 * time.Hour

// PeerClaims is the verified content of an AuthCredential
type PeerClaims struct {
	DeviceID  string
	Role      models.DeviceRole
	NetworkID string
	IssuedAt  time.Time
}

// MintCredential creates an AuthCredential for a freshly paired device
func MintCredential(deviceID string, role models.DeviceRole, networkID, networkSecret string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"deviceId":  deviceID,
		"role":      string(role),
		"networkId": networkID,
		"type":      tokenType,
		"iat":       now.Unix(),
		"exp":       now.Add(credentialLifetime).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(networkSecret))
}

// ValidateCredential parses and verifies an AuthCredential against the
// verifier's network. It does NOT consult the trust store; callers must
// still check that the device is trusted.
func ValidateCredential(tokenString, networkSecret, networkID string) (*PeerClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(networkSecret), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid credential")
	}
	if claims["type"] != tokenType {
		return nil, errors.New("invalid credential type")
	}

	deviceID, _ := claims["deviceId"].(string)
	roleStr, _ := claims["role"].(string)
	tokenNetwork, _ := claims["networkId"].(string)
	if deviceID == "" {
		return nil, errors.New("credential missing device id")
	}
	role, err := models.ParseDeviceRole(roleStr)
	if err != nil {
		return nil, err
	}
	if tokenNetwork != networkID {
		return nil, fmt.Errorf("credential issued for network %q, not %q", tokenNetwork, networkID)
	}

	issuedAt := time.Time{}
	if iat, ok := claims["iat"].(float64); ok {
		issuedAt = time.Unix(int64(iat), 0)
	}

	return &PeerClaims{
		DeviceID:  deviceID,
		Role:      role,
		NetworkID: tokenNetwork,
		IssuedAt:  issuedAt,
	}, nil
}
