package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/atinyakov/PartyBooth/internal/blobstore"
	"github.com/atinyakov/PartyBooth/internal/capture"
	"github.com/atinyakov/PartyBooth/internal/clock"
	"github.com/atinyakov/PartyBooth/internal/db"
	"github.com/atinyakov/PartyBooth/internal/repository"
)

type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	failPut string
}

func newMemStore() *memStore { return &memStore{objects: make(map[string][]byte)} }

func (m *memStore) Put(_ context.Context, key, contentType string, data []byte) (blobstore.Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failPut != "" && strings.Contains(key, m.failPut) {
		return blobstore.Object{}, errors.New("bucket full")
	}
	m.objects[key] = bytes.Clone(data)
	return blobstore.Object{Key: key, Size: int64(len(data)), ContentType: contentType, Digest: blobstore.Digest(data)}, nil
}

func (m *memStore) Open(_ context.Context, key string) (io.ReadCloser, blobstore.Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, blobstore.Object{}, blobstore.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), blobstore.Object{Key: key, Size: int64(len(data))}, nil
}

func (m *memStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[key]; !ok {
		return blobstore.ErrNotFound
	}
	delete(m.objects, key)
	return nil
}

func (m *memStore) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

func newTestPhotos(t *testing.T) (*PhotoService, *memStore, *clock.Fake) {
	t.Helper()
	conn, err := db.InitSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	store := newMemStore()
	c := clock.NewFake(epoch)
	svc := NewPhotoService(repository.NewSessionRepository(conn), store, PhotoConfig{
		PublicURL: "https://booth.example/",
		TTL:       24 * time.Hour,
		Clock:     c,
		Log:       zap.NewNop(),
	})
	return svc, store, c
}

// jpegData returns bytes that start with a JPEG marker followed by
// label, enough for content sniffing.
func jpegData(label string) []byte {
	return append([]byte{0xFF, 0xD8, 0xFF, 0xE0}, label...)
}

func testFrames() []capture.Frame {
	return []capture.Frame{
		{Index: 3, ContentType: capture.ContentTypeJPEG, Data: jpegData("third")},
		{Index: 1, ContentType: capture.ContentTypeJPEG, Data: jpegData("first")},
		{Index: 2, ContentType: capture.ContentTypeJPEG, Data: jpegData("second")},
	}
}

func TestPhotoSession_Flow(t *testing.T) {
	svc, store, _ := newTestPhotos(t)
	ctx := context.Background()

	session, err := svc.CreateSession(ctx, "DEV1", "  ")
	require.NoError(t, err)
	assert.Equal(t, DefaultSessionName, session.Name)
	assert.True(t, session.ExpiresAt.Equal(epoch.Add(24*time.Hour)))

	photos, err := svc.StorePhotos(ctx, session.ID, testFrames())
	require.NoError(t, err)
	require.Len(t, photos, 3)
	for i, p := range photos {
		assert.Equal(t, i+1, p.Order)
		assert.True(t, strings.HasPrefix(p.ObjectKey, "sessions/"+session.ID+"/photo-"))
	}
	assert.Equal(t, 3, store.len())

	listed, err := svc.ListPhotos(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, listed, 3)
	assert.Equal(t, photos[1].ID, listed[1].ID)

	url, err := svc.SelectPhoto(ctx, session.ID, photos[1].ID)
	require.NoError(t, err)
	assert.Equal(t, "https://booth.example/api/download/"+photos[1].ID, url)

	dl, err := svc.OpenDownload(ctx, photos[1].ID)
	require.NoError(t, err)
	body, err := io.ReadAll(dl.Body)
	require.NoError(t, dl.Body.Close())
	require.NoError(t, err)
	assert.Equal(t, jpegData("second"), body)
	assert.Equal(t, capture.ContentTypeJPEG, dl.ContentType)
	assert.Equal(t, DefaultSessionName, dl.SessionName)

	got, err := svc.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.DownloadCount)
	assert.Equal(t, photos[1].ID, got.SelectedPhotoID)
}

func TestStorePhotos_Validation(t *testing.T) {
	svc, store, _ := newTestPhotos(t)
	ctx := context.Background()
	session, err := svc.CreateSession(ctx, "DEV1", "x")
	require.NoError(t, err)

	cases := map[string][]capture.Frame{
		"empty":     nil,
		"too many":  append(testFrames(), capture.Frame{Index: 1, Data: []byte("x")}),
		"duplicate": {{Index: 1, Data: []byte("a")}, {Index: 1, Data: []byte("b")}},
		"range":     {{Index: 4, Data: []byte("a")}},
		"no data":   {{Index: 1}},
		"png":       {{Index: 1, ContentType: "image/png", Data: []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")}},
		"text":      {{Index: 1, ContentType: capture.ContentTypeJPEG, Data: []byte("hello")}},
		"one bad":   {{Index: 1, Data: jpegData("ok")}, {Index: 2, Data: []byte("GIF89a")}},
	}
	for name, frames := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.StorePhotos(ctx, session.ID, frames)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
	assert.Equal(t, 0, store.len())
}

func TestStorePhotos_UnknownSession(t *testing.T) {
	svc, store, _ := newTestPhotos(t)

	_, err := svc.StorePhotos(context.Background(), "missing", testFrames())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, store.len())
}

func TestStorePhotos_PutFailureRemovesUploaded(t *testing.T) {
	svc, store, _ := newTestPhotos(t)
	ctx := context.Background()
	session, err := svc.CreateSession(ctx, "DEV1", "x")
	require.NoError(t, err)

	store.failPut = "photo-3-"
	_, err = svc.StorePhotos(ctx, session.ID, testFrames())
	require.Error(t, err)
	assert.Equal(t, 0, store.len(), "earlier uploads must be removed")

	photos, err := svc.ListPhotos(ctx, session.ID)
	require.NoError(t, err)
	assert.Empty(t, photos)
}

func TestSelectPhoto_OtherSession(t *testing.T) {
	svc, _, _ := newTestPhotos(t)
	ctx := context.Background()

	a, err := svc.CreateSession(ctx, "DEV1", "a")
	require.NoError(t, err)
	b, err := svc.CreateSession(ctx, "DEV1", "b")
	require.NoError(t, err)
	photos, err := svc.StorePhotos(ctx, a.ID, testFrames())
	require.NoError(t, err)

	_, err = svc.SelectPhoto(ctx, b.ID, photos[0].ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = svc.SelectPhoto(ctx, a.ID, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSessionExpiry(t *testing.T) {
	svc, _, c := newTestPhotos(t)
	ctx := context.Background()

	session, err := svc.CreateSession(ctx, "DEV1", "party")
	require.NoError(t, err)
	photos, err := svc.StorePhotos(ctx, session.ID, testFrames())
	require.NoError(t, err)

	c.Advance(25 * time.Hour)

	_, err = svc.GetSession(ctx, session.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = svc.OpenDownload(ctx, photos[0].ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOpenDownload_MissingObject(t *testing.T) {
	svc, store, _ := newTestPhotos(t)
	ctx := context.Background()

	session, err := svc.CreateSession(ctx, "DEV1", "party")
	require.NoError(t, err)
	photos, err := svc.StorePhotos(ctx, session.ID, testFrames())
	require.NoError(t, err)
	require.NoError(t, store.Delete(ctx, photos[0].ObjectKey))

	_, err = svc.OpenDownload(ctx, photos[0].ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDisposition(t *testing.T) {
	d, cc := Disposition(Capabilities{SupportsAutoDownload: true}, "party-photo-1.jpg")
	assert.Equal(t, `attachment; filename="party-photo-1.jpg"`, d)
	assert.Equal(t, "no-cache, no-store, must-revalidate", cc)

	d, cc = Disposition(Capabilities{}, "party-photo-1.jpg")
	assert.Equal(t, "inline", d)
	assert.Equal(t, "public, max-age=3600", cc)
}

func TestDownloadName(t *testing.T) {
	svc, _, _ := newTestPhotos(t)
	cases := map[string]string{
		"":                   "party-photo-1780344000000.jpg",
		"  ":                 "party-photo-1780344000000.jpg",
		"wedding":            "wedding-1780344000000.jpg",
		"Anna & Tom's party": "Anna---Tom-s-party-1780344000000.jpg",
		`"/../x"`:            "x-1780344000000.jpg",
		"!!!":                "party-photo-1780344000000.jpg",
	}
	for name, want := range cases {
		assert.Equal(t, want, svc.DownloadName(name), "session name %q", name)
	}
}

func TestOpenDownload_CarriesSessionName(t *testing.T) {
	svc, _, _ := newTestPhotos(t)
	ctx := context.Background()

	session, err := svc.CreateSession(ctx, "DEV1", "wedding")
	require.NoError(t, err)
	photos, err := svc.StorePhotos(ctx, session.ID, testFrames())
	require.NoError(t, err)

	dl, err := svc.OpenDownload(ctx, photos[0].ID)
	require.NoError(t, err)
	defer dl.Body.Close()
	assert.Equal(t, "wedding", dl.SessionName)
	assert.Equal(t, "wedding-1780344000000.jpg", svc.DownloadName(dl.SessionName))
}
