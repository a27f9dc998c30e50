package middleware

import (
	"crypto/subtle"
	"net/http"
)

// AdminKeyHeader carries the operator key on admin requests.
const AdminKeyHeader = "X-Admin-Key"

// RequireAdminKey only lets requests through whose X-Admin-Key matches key.
// An empty key disables the protected routes entirely.
func RequireAdminKey(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if key == "" {
				writeJSONError(w, http.StatusForbidden, "admin_disabled", "Admin endpoints are disabled")
				return
			}
			got := r.Header.Get(AdminKeyHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid admin key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
