package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/atinyakov/PartyBooth/internal/capture"
	"github.com/atinyakov/PartyBooth/internal/middleware"
	"github.com/atinyakov/PartyBooth/internal/models"
	"github.com/atinyakov/PartyBooth/internal/service"
)

// maxUploadBytes bounds a multipart upload of all photos.
const maxUploadBytes = 32 << 20

// PhotoService defines the photo session operations required by the
// HTTP handlers.
type PhotoService interface {
	CreateSession(ctx context.Context, deviceID, name string) (models.PhotoSession, error)
	GetSession(ctx context.Context, id string) (models.PhotoSession, error)
	StorePhotos(ctx context.Context, sessionID string, frames []capture.Frame) ([]models.TempPhoto, error)
	ListPhotos(ctx context.Context, sessionID string) ([]models.TempPhoto, error)
	SelectPhoto(ctx context.Context, sessionID, photoID string) (string, error)
	OpenDownload(ctx context.Context, photoID string) (service.Download, error)
	DownloadName(sessionName string) string
}

// SessionHandler handles photo session endpoints of an authenticated
// device.
type SessionHandler struct {
	Photos PhotoService
	Log    *zap.Logger
}

// CreateSessionRequest represents the optional JSON payload of a new
// session.
type CreateSessionRequest struct {
	SessionName string `json:"sessionName"`
}

// CreateSessionResponse is returned for a new session.
type CreateSessionResponse struct {
	Success     bool      `json:"success"`
	SessionID   string    `json:"sessionId"`
	SessionName string    `json:"sessionName"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// Create handles POST /api/sessions. The body may be empty.
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	deviceID := middleware.GetDeviceIDFromContext(r.Context())
	session, err := h.Photos.CreateSession(r.Context(), deviceID, req.SessionName)
	if err != nil {
		h.Log.Error("create session failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	writeJSON(w, http.StatusOK, CreateSessionResponse{
		Success:     true,
		SessionID:   session.ID,
		SessionName: session.Name,
		ExpiresAt:   session.ExpiresAt,
	})
}

// loadOwnedSession loads the session named in the URL and checks it
// belongs to the calling device. It writes the error response itself.
func loadOwnedSession(w http.ResponseWriter, r *http.Request, photos PhotoService, log *zap.Logger) (models.PhotoSession, bool) {
	id := chi.URLParam(r, "sessionID")
	session, err := photos.GetSession(r.Context(), id)
	if errors.Is(err, service.ErrNotFound) {
		writeError(w, http.StatusNotFound, "session not found")
		return models.PhotoSession{}, false
	}
	if err != nil {
		log.Error("load session failed", zap.String("session_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return models.PhotoSession{}, false
	}
	if session.DeviceID != middleware.GetDeviceIDFromContext(r.Context()) {
		writeError(w, http.StatusNotFound, "session not found")
		return models.PhotoSession{}, false
	}
	return session, true
}

// Upload handles POST /api/sessions/{sessionID}/photos with multipart
// fields photo1..photo3, for clients that capture in the browser.
func (h *SessionHandler) Upload(w http.ResponseWriter, r *http.Request) {
	session, ok := loadOwnedSession(w, r, h.Photos, h.Log)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	var frames []capture.Frame
	for i := 1; i <= capture.ShotCount; i++ {
		file, header, err := r.FormFile(fmt.Sprintf("photo%d", i))
		if errors.Is(err, http.ErrMissingFile) {
			continue
		}
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid photo")
			return
		}
		data, err := io.ReadAll(file)
		file.Close()
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid photo")
			return
		}
		if !capture.IsJPEG(data) {
			h.Log.Debug("rejected non-JPEG upload",
				zap.String("field", fmt.Sprintf("photo%d", i)),
				zap.String("declared_type", header.Header.Get("Content-Type")),
			)
			writeError(w, http.StatusBadRequest, fmt.Sprintf("photo%d is not a JPEG image", i))
			return
		}
		frames = append(frames, capture.Frame{Index: i, ContentType: capture.ContentTypeJPEG, Data: data})
	}
	if len(frames) == 0 {
		writeError(w, http.StatusBadRequest, "no photos uploaded")
		return
	}

	photos, err := h.Photos.StorePhotos(r.Context(), session.ID, frames)
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "invalid photos")
		return
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, "session not found")
		return
	case err != nil:
		h.Log.Error("store photos failed", zap.String("session_id", session.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to upload photos")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "photos": photos})
}

// List handles GET /api/sessions/{sessionID}/photos.
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	session, ok := loadOwnedSession(w, r, h.Photos, h.Log)
	if !ok {
		return
	}
	photos, err := h.Photos.ListPhotos(r.Context(), session.ID)
	if err != nil {
		h.Log.Error("list photos failed", zap.String("session_id", session.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if photos == nil {
		photos = []models.TempPhoto{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "session": session, "photos": photos})
}

// SelectRequest names the photo to share.
type SelectRequest struct {
	PhotoID string `json:"photoId"`
}

// Select handles POST /api/sessions/{sessionID}/select and returns the
// share URL the booth screen renders as a QR code.
func (h *SessionHandler) Select(w http.ResponseWriter, r *http.Request) {
	session, ok := loadOwnedSession(w, r, h.Photos, h.Log)
	if !ok {
		return
	}
	var req SelectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PhotoID == "" {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	url, err := h.Photos.SelectPhoto(r.Context(), session.ID, req.PhotoID)
	if errors.Is(err, service.ErrNotFound) {
		writeError(w, http.StatusNotFound, "photo not found")
		return
	}
	if err != nil {
		h.Log.Error("select photo failed", zap.String("session_id", session.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "shareUrl": url})
}
