package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/pysugar/launcher-accounts/internal/db"
	"gorm.io/gorm"
)

// APIKeyAuth accepts requests carrying the local API key either as
// "Authorization: Bearer <key>" or in the X-API-Key header.
func APIKeyAuth(database *gorm.DB) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			expectedKey := db.GetAPIKey(database)
			if expectedKey != "" && validKey(r, expectedKey) {
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error": {"message": "Invalid API key", "type": "authentication_error"}}`))
		})
	}
}

func validKey(r *http.Request, expected string) bool {
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok && equal(token, expected) {
		return true
	}
	return equal(r.Header.Get("X-API-Key"), expected)
}

func equal(got, expected string) bool {
	return got != "" && subtle.ConstantTimeCompare([]byte(got), []byte(expected)) == 1
}
