package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/atinyakov/PartyBooth/internal/capture"
)

// CaptureStarter starts a capture session. It returns false if one is
// already running.
type CaptureStarter interface {
	Start(ctx context.Context) (<-chan capture.Event, bool)
}

// CaptureHandler streams a capture session as newline-delimited JSON
// and stores the resulting frames in the photo session.
type CaptureHandler struct {
	Sequencer CaptureStarter
	Photos    PhotoService
	Log       *zap.Logger
}

// StoredFrame describes a frame in the terminal done event.
type StoredFrame struct {
	Index   int    `json:"index"`
	PhotoID string `json:"photoId"`
	Size    int64  `json:"size"`
	Digest  string `json:"digest"`
}

// CaptureEvent is one line of the capture stream.
type CaptureEvent struct {
	Phase  string        `json:"phase"`
	Count  int           `json:"count,omitempty"`
	Index  int           `json:"index,omitempty"`
	Frames []StoredFrame `json:"frames,omitempty"`
	Error  string        `json:"error,omitempty"`
}

// Capture handles POST /api/sessions/{sessionID}/capture.
func (h *CaptureHandler) Capture(w http.ResponseWriter, r *http.Request) {
	session, ok := loadOwnedSession(w, r, h.Photos, h.Log)
	if !ok {
		return
	}

	events, started := h.Sequencer.Start(r.Context())
	if !started {
		writeError(w, http.StatusConflict, "a capture is already running")
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)

	emit := func(ev CaptureEvent) {
		if err := enc.Encode(ev); err != nil {
			h.Log.Debug("capture stream write failed", zap.Error(err))
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}

	for ev := range events {
		switch ev.Phase {
		case capture.Done:
			photos, err := h.Photos.StorePhotos(r.Context(), session.ID, ev.Frames)
			if err != nil {
				h.Log.Error("store captured photos failed", zap.String("session_id", session.ID), zap.Error(err))
				emit(CaptureEvent{Phase: capture.Failed.String(), Error: "failed to save photos, please try again"})
				continue
			}
			stored := make([]StoredFrame, len(photos))
			for i, p := range photos {
				stored[i] = StoredFrame{Index: p.Order, PhotoID: p.ID, Size: p.Size, Digest: p.Digest}
			}
			emit(CaptureEvent{Phase: ev.Phase.String(), Frames: stored})
		case capture.Failed:
			emit(CaptureEvent{Phase: ev.Phase.String(), Error: captureErrorMessage(ev.Err)})
		default:
			emit(CaptureEvent{Phase: ev.Phase.String(), Count: ev.Count, Index: ev.Index})
		}
	}
}

func captureErrorMessage(err error) string {
	switch {
	case errors.Is(err, capture.ErrCameraUnavailable):
		return "camera unavailable: check that the camera is connected and not used by another application"
	case errors.Is(err, capture.ErrCaptureFailed):
		return "capture failed, please start again"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "capture cancelled"
	default:
		return "capture failed"
	}
}
