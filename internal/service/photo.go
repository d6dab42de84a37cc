package service

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/atinyakov/PartyBooth/internal/blobstore"
	"github.com/atinyakov/PartyBooth/internal/capture"
	"github.com/atinyakov/PartyBooth/internal/clock"
	"github.com/atinyakov/PartyBooth/internal/models"
	"github.com/atinyakov/PartyBooth/internal/repository"
)

// DefaultSessionName is used when a session is created without a name.
const DefaultSessionName = "party-photo"

// SessionRepository defines the persistence operations required by the
// photo service.
type SessionRepository interface {
	CreateSession(ctx context.Context, s models.PhotoSession) error
	GetSession(ctx context.Context, id string, now time.Time) (models.PhotoSession, error)
	AddPhotos(ctx context.Context, photos []models.TempPhoto) error
	ListPhotos(ctx context.Context, sessionID string) ([]models.TempPhoto, error)
	GetPhoto(ctx context.Context, photoID string) (models.TempPhoto, error)
	SelectPhoto(ctx context.Context, sessionID, photoID string) error
	IncrementDownloadCount(ctx context.Context, sessionID string) (int, error)
}

// Capabilities describes what the downloading client can do. It is
// supplied by the caller instead of being guessed from headers.
type Capabilities struct {
	// SupportsAutoDownload is true when the client saves an attachment
	// without user interaction.
	SupportsAutoDownload bool
}

// Download is an open photo ready to be streamed.
type Download struct {
	Body        io.ReadCloser
	ContentType string
	Size        int64
	Photo       models.TempPhoto
	// SessionName names the session the photo belongs to.
	SessionName string
}

// PhotoConfig configures a PhotoService.
type PhotoConfig struct {
	// PublicURL is the externally reachable base URL, without a
	// trailing slash.
	PublicURL string
	// TTL is the lifetime of a session and its photos.
	TTL   time.Duration
	Clock clock.Clock
	Log   *zap.Logger
}

// PhotoService manages photo sessions and their stored frames.
type PhotoService struct {
	repo      SessionRepository
	store     blobstore.Store
	publicURL string
	ttl       time.Duration
	clock     clock.Clock
	log       *zap.Logger
}

// NewPhotoService constructs a PhotoService.
func NewPhotoService(repo SessionRepository, store blobstore.Store, cfg PhotoConfig) *PhotoService {
	s := &PhotoService{
		repo:      repo,
		store:     store,
		publicURL: strings.TrimRight(cfg.PublicURL, "/"),
		ttl:       cfg.TTL,
		clock:     cfg.Clock,
		log:       cfg.Log,
	}
	if s.ttl <= 0 {
		s.ttl = 24 * time.Hour
	}
	if s.clock == nil {
		s.clock = clock.Real()
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	return s
}

// CreateSession opens a new session for deviceID.
func (s *PhotoService) CreateSession(ctx context.Context, deviceID, name string) (models.PhotoSession, error) {
	if deviceID == "" {
		return models.PhotoSession{}, ErrInvalidInput
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultSessionName
	}
	now := s.clock.Now().UTC()
	session := models.PhotoSession{
		ID:        uuid.NewString(),
		DeviceID:  deviceID,
		Name:      name,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.repo.CreateSession(ctx, session); err != nil {
		return models.PhotoSession{}, err
	}
	s.log.Info("session created", zap.String("session_id", session.ID), zap.String("device_id", deviceID))
	return session, nil
}

// GetSession returns a live session.
func (s *PhotoService) GetSession(ctx context.Context, id string) (models.PhotoSession, error) {
	session, err := s.repo.GetSession(ctx, id, s.clock.Now())
	if errors.Is(err, repository.ErrNotFound) {
		return models.PhotoSession{}, ErrNotFound
	}
	return session, err
}

// StorePhotos uploads frames and records them for the session in
// capture order. Frame indexes must be distinct and within 1..ShotCount.
func (s *PhotoService) StorePhotos(ctx context.Context, sessionID string, frames []capture.Frame) ([]models.TempPhoto, error) {
	if len(frames) == 0 || len(frames) > capture.ShotCount {
		return nil, fmt.Errorf("%w: %d frames", ErrInvalidInput, len(frames))
	}
	sorted := slices.Clone(frames)
	slices.SortFunc(sorted, func(a, b capture.Frame) int { return a.Index - b.Index })
	for i, f := range sorted {
		if f.Index < 1 || f.Index > capture.ShotCount || (i > 0 && sorted[i-1].Index == f.Index) {
			return nil, fmt.Errorf("%w: frame index %d", ErrInvalidInput, f.Index)
		}
		if len(f.Data) == 0 {
			return nil, fmt.Errorf("%w: frame %d is empty", ErrInvalidInput, f.Index)
		}
		if !capture.IsJPEG(f.Data) {
			return nil, fmt.Errorf("%w: frame %d is not a JPEG image", ErrInvalidInput, f.Index)
		}
	}

	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	photos := make([]models.TempPhoto, 0, len(sorted))
	for _, f := range sorted {
		digest := blobstore.Digest(f.Data)
		key := fmt.Sprintf("sessions/%s/photo-%d-%s.jpg", sessionID, f.Index, digest[:16])
		obj, err := s.store.Put(ctx, key, capture.ContentTypeJPEG, f.Data)
		if err != nil {
			s.removeObjects(ctx, photos)
			return nil, fmt.Errorf("store photo %d: %w", f.Index, err)
		}
		photos = append(photos, models.TempPhoto{
			ID:        uuid.NewString(),
			SessionID: sessionID,
			ObjectKey: obj.Key,
			Digest:    obj.Digest,
			Size:      obj.Size,
			Order:     f.Index,
			CreatedAt: now,
		})
	}

	if err := s.repo.AddPhotos(ctx, photos); err != nil {
		s.removeObjects(ctx, photos)
		return nil, err
	}
	s.log.Info("photos stored", zap.String("session_id", sessionID), zap.Int("count", len(photos)))
	return photos, nil
}

func (s *PhotoService) removeObjects(ctx context.Context, photos []models.TempPhoto) {
	for _, p := range photos {
		if err := s.store.Delete(ctx, p.ObjectKey); err != nil {
			s.log.Warn("failed to remove orphaned photo", zap.String("key", p.ObjectKey), zap.Error(err))
		}
	}
}

// ListPhotos returns the photos of a live session in capture order.
func (s *PhotoService) ListPhotos(ctx context.Context, sessionID string) ([]models.TempPhoto, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.repo.ListPhotos(ctx, sessionID)
}

// SelectPhoto marks the shared photo of a session and returns its
// download URL.
func (s *PhotoService) SelectPhoto(ctx context.Context, sessionID, photoID string) (string, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return "", err
	}
	photo, err := s.repo.GetPhoto(ctx, photoID)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && photo.SessionID != sessionID) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	if err := s.repo.SelectPhoto(ctx, sessionID, photoID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", err
	}
	return s.ShareURL(photoID), nil
}

// ShareURL returns the public download URL of a photo.
func (s *PhotoService) ShareURL(photoID string) string {
	return s.publicURL + "/api/download/" + photoID
}

// OpenDownload opens a photo of a live session for streaming and counts
// the download. The caller closes Body.
func (s *PhotoService) OpenDownload(ctx context.Context, photoID string) (Download, error) {
	photo, err := s.repo.GetPhoto(ctx, photoID)
	if errors.Is(err, repository.ErrNotFound) {
		return Download{}, ErrNotFound
	}
	if err != nil {
		return Download{}, err
	}
	session, err := s.GetSession(ctx, photo.SessionID)
	if err != nil {
		return Download{}, err
	}

	body, obj, err := s.store.Open(ctx, photo.ObjectKey)
	if errors.Is(err, blobstore.ErrNotFound) {
		return Download{}, ErrNotFound
	}
	if err != nil {
		return Download{}, err
	}

	if n, err := s.repo.IncrementDownloadCount(ctx, photo.SessionID); err != nil {
		s.log.Warn("failed to count download", zap.String("session_id", photo.SessionID), zap.Error(err))
	} else {
		s.log.Debug("photo downloaded", zap.String("photo_id", photoID), zap.Int("downloads", n))
	}

	return Download{
		Body:        body,
		ContentType: cmp.Or(obj.ContentType, capture.ContentTypeJPEG),
		Size:        obj.Size,
		Photo:       photo,
		SessionName: session.Name,
	}, nil
}

// DownloadName returns the attachment file name for a photo of the
// session called sessionName. Characters other than ASCII letters,
// digits, '-' and '_' become '-'.
func (s *PhotoService) DownloadName(sessionName string) string {
	name := strings.Trim(strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '-'
		}
	}, strings.TrimSpace(sessionName)), "-")
	return fmt.Sprintf("%s-%d.jpg", cmp.Or(name, DefaultSessionName), s.clock.Now().UnixMilli())
}

// Disposition returns the Content-Disposition and Cache-Control values
// for a download. Clients that auto-download get an attachment, the
// rest get the image inline to save it by hand.
func Disposition(caps Capabilities, filename string) (disposition, cacheControl string) {
	if caps.SupportsAutoDownload {
		return fmt.Sprintf("attachment; filename=%q", filename), "no-cache, no-store, must-revalidate"
	}
	return "inline", "public, max-age=3600"
}
