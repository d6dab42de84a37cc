package http

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/atinyakov/PartyBooth/internal/service"
)

// DownloadHandler serves shared photos to guests.
type DownloadHandler struct {
	Photos PhotoService
	Log    *zap.Logger
}

// Download handles GET /api/download/{photoID}. The auto_download query
// parameter tells whether the client saves attachments by itself; it
// defaults to true.
func (h *DownloadHandler) Download(w http.ResponseWriter, r *http.Request) {
	caps := service.Capabilities{SupportsAutoDownload: true}
	if v := r.URL.Query().Get("auto_download"); v != "" {
		auto, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid auto_download")
			return
		}
		caps.SupportsAutoDownload = auto
	}

	photoID := chi.URLParam(r, "photoID")
	dl, err := h.Photos.OpenDownload(r.Context(), photoID)
	if errors.Is(err, service.ErrNotFound) {
		writeError(w, http.StatusNotFound, "photo not found")
		return
	}
	if err != nil {
		h.Log.Error("open download failed", zap.String("photo_id", photoID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to download photo")
		return
	}
	defer dl.Body.Close()

	disposition, cacheControl := service.Disposition(caps, h.Photos.DownloadName(dl.SessionName))
	w.Header().Set("Content-Type", dl.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(dl.Size, 10))
	w.Header().Set("Content-Disposition", disposition)
	w.Header().Set("Cache-Control", cacheControl)
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, dl.Body); err != nil {
		h.Log.Debug("download interrupted", zap.String("photo_id", photoID), zap.Error(err))
	}
}
