package capture

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 8, 6))))
	return buf.Bytes()
}

func TestStaticSource(t *testing.T) {
	empty := &StaticSource{}
	assert.ErrorIs(t, empty.Acquire(context.Background()), ErrNoSignal)
	_, err := empty.Frame(context.Background())
	assert.ErrorIs(t, err, ErrNoSignal)

	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	src := &StaticSource{Image: img}
	require.NoError(t, src.Acquire(context.Background()))
	got, err := src.Frame(context.Background())
	require.NoError(t, err)
	assert.Same(t, img, got)
}

func TestHTTPSnapshotSource_AcquireOnce(t *testing.T) {
	body := pngBytes(t)
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	src := NewHTTPSnapshotSource(srv.URL)
	require.NoError(t, src.Acquire(context.Background()))
	require.NoError(t, src.Acquire(context.Background()))
	assert.Equal(t, int32(1), hits.Load(), "second Acquire should not probe again")

	img, err := src.Frame(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 8, img.Bounds().Dx())

	require.NoError(t, src.Close())
	require.NoError(t, src.Acquire(context.Background()))
	assert.Equal(t, int32(3), hits.Load())
}

func TestHTTPSnapshotSource_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/garbage" {
			_, _ = w.Write([]byte("not an image"))
			return
		}
		http.Error(w, "camera busy", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	err := NewHTTPSnapshotSource(srv.URL + "/busy").Acquire(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")

	_, err = NewHTTPSnapshotSource(srv.URL + "/garbage").Frame(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode snapshot")
}

func TestSequencer_WithHTTPSource(t *testing.T) {
	body := pngBytes(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	seq := NewSequencer(NewHTTPSnapshotSource(srv.URL), WithCountdown(0), WithPause(0))
	events, ok := seq.Start(context.Background())
	require.True(t, ok)

	got := collect(t, events)
	done := got[len(got)-1]
	require.Equal(t, Done, done.Phase)
	require.Len(t, done.Frames, ShotCount)

	decoded, format, err := image.Decode(bytes.NewReader(done.Frames[0].Data))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 8, decoded.Bounds().Dx())
}
