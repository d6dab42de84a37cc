// Package http provides the HTTP handlers and routing of the booth API.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/atinyakov/PartyBooth/internal/service"
)

// AuthService defines the authentication operations required by the
// HTTP handlers.
type AuthService interface {
	// Login checks device credentials and issues a token.
	Login(ctx context.Context, deviceID, password string) (service.LoginResult, error)
	// Verify resolves a token to its device id.
	Verify(ctx context.Context, token string) (string, error)
}

// AuthHandler handles HTTP requests for device login and token checks.
type AuthHandler struct {
	// AuthService performs the underlying authentication operations.
	AuthService AuthService
	Log         *zap.Logger
}

// LoginRequest represents the JSON payload for a device login.
type LoginRequest struct {
	DeviceID string `json:"deviceId"`
	Password string `json:"password"`
}

// LoginResponse is returned by a successful login.
type LoginResponse struct {
	Success    bool      `json:"success"`
	Token      string    `json:"token"`
	DeviceName string    `json:"deviceName"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// Login handles POST /api/auth/login.
// Unknown devices, wrong passwords and inactive devices all get the
// same 401 response.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	res, err := h.AuthService.Login(r.Context(), req.DeviceID, req.Password)
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "device id and password are required")
		return
	case errors.Is(err, service.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, genericAuthError)
		return
	case err != nil:
		h.Log.Error("login failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{
		Success:    true,
		Token:      res.Token,
		DeviceName: res.DeviceName,
		ExpiresAt:  res.ExpiresAt,
	})
}

// VerifyRequest represents the JSON payload for a token check.
type VerifyRequest struct {
	Token string `json:"token"`
}

// VerifyResponse is returned for a valid token.
type VerifyResponse struct {
	Success  bool   `json:"success"`
	DeviceID string `json:"deviceId"`
}

// Verify handles POST /api/auth/verify. Malformed and expired tokens
// get the same response.
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	deviceID, err := h.AuthService.Verify(r.Context(), req.Token)
	if err != nil {
		h.Log.Info("token verification failed", zap.Error(err))
		writeError(w, http.StatusUnauthorized, "invalid or expired token")
		return
	}
	writeJSON(w, http.StatusOK, VerifyResponse{Success: true, DeviceID: deviceID})
}
