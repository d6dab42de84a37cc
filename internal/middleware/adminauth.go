package middleware

import (
	"crypto/subtle"
	"net/http"
)

// AdminKeyHeader carries the admin key.
const AdminKeyHeader = "X-Admin-Key"

// AdminAuth guards admin endpoints with a shared key. With an empty key
// every admin request is refused.
func AdminAuth(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if key == "" {
				http.Error(w, "admin api disabled", http.StatusForbidden)
				return
			}
			got := r.Header.Get(AdminKeyHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				http.Error(w, "invalid admin key", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
