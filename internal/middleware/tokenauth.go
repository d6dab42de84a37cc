// Package middleware provides HTTP middlewares for authentication and logging.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

type ctxKey string

const deviceKey ctxKey = "device"

// TokenVerifier resolves a bearer token to a device id.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

// TokenAuth is a middleware that requires a valid device token.
//
// The token is read from the "Authorization: Bearer" header. On success
// the device id is stored in the request context, so it can be used
// downstream as the authenticated device. Malformed and expired tokens
// get the same 401 response; the reason is only logged.
func TokenAuth(v TokenVerifier, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				http.Error(w, "authentication required", http.StatusUnauthorized)
				return
			}
			deviceID, err := v.Verify(r.Context(), raw)
			if err != nil {
				log.Info("token rejected", zap.String("path", r.URL.Path), zap.Error(err))
				http.Error(w, "authentication required", http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), deviceKey, deviceID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, tok, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	tok = strings.TrimSpace(tok)
	return tok, tok != ""
}

// GetDeviceIDFromContext extracts the authenticated device id from the
// request context. Returns an empty string if not found.
func GetDeviceIDFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(deviceKey).(string); ok {
		return s
	}
	return ""
}

// WithDeviceID returns a copy of ctx carrying deviceID.
func WithDeviceID(ctx context.Context, deviceID string) context.Context {
	return context.WithValue(ctx, deviceKey, deviceID)
}
