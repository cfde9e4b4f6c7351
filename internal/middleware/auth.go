// Package middleware guards the HTTP surface: bearer credential checks
// for peer sync operations and the operator PIN for administrative ones.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/clubsync/clubsyncgo/internal/auth"
	"github.com/clubsync/clubsyncgo/internal/identity"
	"github.com/clubsync/clubsyncgo/internal/trust"
)

type contextKey string

// PeerContextKey holds the authenticated peer claims in the request context
const PeerContextKey contextKey = "peer"

// PeerAuth verifies the bearer credential of a sync peer and checks that
// the device is still trusted. Revoked peers fail here even when their
// credential is cryptographically valid.
func PeerAuth(id *identity.Identity, tr *trust.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Authorization header required", http.StatusUnauthorized)
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				http.Error(w, "Invalid authorization header format", http.StatusUnauthorized)
				return
			}

			claims, err := auth.ValidateCredential(parts[1], id.NetworkSecret, id.NetworkID)
			if err != nil {
				http.Error(w, "Invalid credential", http.StatusUnauthorized)
				return
			}
			if !tr.IsTrusted(claims.DeviceID) {
				http.Error(w, "Device not trusted", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), PeerContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// PeerFromContext extracts the authenticated peer claims
func PeerFromContext(ctx context.Context) (*auth.PeerClaims, bool) {
	claims, ok := ctx.Value(PeerContextKey).(*auth.PeerClaims)
	return claims, ok
}
