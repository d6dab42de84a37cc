package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"sync"
	"time"
)

// ErrNoSignal is returned by a Source that has nothing to show.
var ErrNoSignal = errors.New("camera source has no signal")

// Source is a live camera. Acquire makes it ready and may be called
// repeatedly; Frame returns the picture currently in view. Releasing
// the camera is the owner's job, not the sequencer's.
type Source interface {
	Acquire(ctx context.Context) error
	Frame(ctx context.Context) (image.Image, error)
}

// StaticSource always shows the same image. Used for demos and when no
// camera is attached.
type StaticSource struct {
	Image image.Image
}

// Acquire fails with ErrNoSignal when no image is set.
func (s *StaticSource) Acquire(context.Context) error {
	if s.Image == nil {
		return ErrNoSignal
	}
	return nil
}

// Frame returns the configured image.
func (s *StaticSource) Frame(context.Context) (image.Image, error) {
	if s.Image == nil {
		return nil, ErrNoSignal
	}
	return s.Image, nil
}

// HTTPSnapshotSource reads frames from a camera that serves its current
// picture on every GET of URL, as most IP cameras and webcam bridges do.
type HTTPSnapshotSource struct {
	URL    string
	Client *http.Client

	mu    sync.Mutex
	ready bool
}

// NewHTTPSnapshotSource returns a source for url with a bounded client.
func NewHTTPSnapshotSource(url string) *HTTPSnapshotSource {
	return &HTTPSnapshotSource{
		URL:    url,
		Client: &http.Client{Timeout: 5 * time.Second},
	}
}

// Acquire probes the snapshot URL once. Later calls are no-ops until
// Close.
func (s *HTTPSnapshotSource) Acquire(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return nil
	}
	if _, err := s.fetch(ctx); err != nil {
		return err
	}
	s.ready = true
	return nil
}

// Frame fetches and decodes the current snapshot.
func (s *HTTPSnapshotSource) Frame(ctx context.Context) (image.Image, error) {
	return s.fetch(ctx)
}

// Close releases the camera. The next session acquires it again.
func (s *HTTPSnapshotSource) Close() error {
	s.mu.Lock()
	s.ready = false
	s.mu.Unlock()
	s.Client.CloseIdleConnections()
	return nil
}

func (s *HTTPSnapshotSource) fetch(ctx context.Context) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build snapshot request: %w", err)
	}
	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch snapshot: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("fetch snapshot: camera returned %s", resp.Status)
	}
	img, _, err := image.Decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return img, nil
}
