package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/atinyakov/PartyBooth/internal/models"
	"github.com/atinyakov/PartyBooth/internal/service"
)

// DeviceAdmin defines the device management operations.
type DeviceAdmin interface {
	CreateDevice(ctx context.Context, deviceID, password, deviceName string) (string, error)
	SetActive(ctx context.Context, deviceID string, active bool) error
	ListDevices(ctx context.Context) ([]models.Device, error)
}

// AdminHandler handles the device administration endpoints. The
// password reveal cache is taken from the request context.
type AdminHandler struct {
	Devices DeviceAdmin
	Log     *zap.Logger
}

// CreateDeviceRequest represents the JSON payload for a new device.
type CreateDeviceRequest struct {
	DeviceID   string `json:"deviceId"`
	Password   string `json:"password"`
	DeviceName string `json:"deviceName"`
}

// CreateDevice handles POST /api/admin/devices.
func (h *AdminHandler) CreateDevice(w http.ResponseWriter, r *http.Request) {
	var req CreateDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	recordID, err := h.Devices.CreateDevice(r.Context(), req.DeviceID, req.Password, req.DeviceName)
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "device id, password and name are required")
		return
	case errors.Is(err, service.ErrDuplicateDevice):
		writeError(w, http.StatusConflict, "device already exists")
		return
	case err != nil:
		h.Log.Error("create device failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if cache := service.RevealCacheFrom(r.Context()); cache != nil {
		cache.Put(strings.TrimSpace(req.DeviceID), strings.TrimSpace(req.Password))
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "recordId": recordID})
}

// SetActiveRequest represents the JSON payload for toggling a device.
type SetActiveRequest struct {
	DeviceID string `json:"deviceId"`
	IsActive *bool  `json:"isActive"`
}

// SetActive handles POST /api/admin/devices/active.
func (h *AdminHandler) SetActive(w http.ResponseWriter, r *http.Request) {
	var req SetActiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.IsActive == nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	err := h.Devices.SetActive(r.Context(), req.DeviceID, *req.IsActive)
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "device id is required")
		return
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, "device not found")
		return
	case err != nil:
		h.Log.Error("set active failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// ListDevices handles GET /api/admin/devices.
func (h *AdminHandler) ListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := h.Devices.ListDevices(r.Context())
	if err != nil {
		h.Log.Error("list devices failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if devices == nil {
		devices = []models.Device{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "devices": devices})
}

// RevealPassword handles GET /api/admin/devices/{deviceID}/password.
// Each password can be read once, shortly after the device was created.
func (h *AdminHandler) RevealPassword(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")
	cache := service.RevealCacheFrom(r.Context())
	if cache == nil {
		writeError(w, http.StatusNotFound, "password not available")
		return
	}
	password, ok := cache.Take(deviceID)
	if !ok {
		writeError(w, http.StatusNotFound, "password not available")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "deviceId": deviceID, "password": password})
}
