package middleware

import (
	"log"
	"net/http"

	"golang.org/x/crypto/bcrypt"
)

// OperatorPINHeader carries the PIN on administrative requests
const OperatorPINHeader = "X-Operator-PIN"

// OperatorPIN gates administrative operations (revocation, conflict
// resolution, manual sync) behind the configured PIN. An empty hash
// leaves the gate open with a startup warning, matching a fresh install
// before an operator sets one.
func OperatorPIN(pinHash string) func(http.Handler) http.Handler {
	if pinHash == "" {
		log.Printf("Middleware: WARNING no operator PIN configured, admin operations are open")
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if pinHash != "" {
				pin := r.Header.Get(OperatorPINHeader)
				if pin == "" {
					http.Error(w, "Operator PIN required", http.StatusUnauthorized)
					return
				}
				if err := bcrypt.CompareHashAndPassword([]byte(pinHash), []byte(pin)); err != nil {
					http.Error(w, "Invalid operator PIN", http.StatusUnauthorized)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
