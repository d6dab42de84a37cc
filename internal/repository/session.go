package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/atinyakov/PartyBooth/internal/models"
)

// SessionRepository stores photo sessions and their temporary photos.
type SessionRepository struct {
	DB *sql.DB
}

// NewSessionRepository creates a SessionRepository over db.
func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{DB: db}
}

// CreateSession inserts a new session.
func (r *SessionRepository) CreateSession(ctx context.Context, s models.PhotoSession) error {
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO photo_sessions (id, device_id, session_name, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
	`, s.ID, s.DeviceID, s.Name, s.CreatedAt.UTC(), s.ExpiresAt.UTC())
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// GetSession loads a session that has not expired at now.
func (r *SessionRepository) GetSession(ctx context.Context, id string, now time.Time) (models.PhotoSession, error) {
	var (
		s        models.PhotoSession
		selected sql.NullString
	)
	err := r.DB.QueryRowContext(ctx, `
		SELECT id, device_id, session_name, created_at, expires_at, selected_photo_id, download_count
		FROM photo_sessions WHERE id = $1 AND expires_at > $2
	`, id, now.UTC()).Scan(&s.ID, &s.DeviceID, &s.Name, &s.CreatedAt, &s.ExpiresAt, &selected, &s.DownloadCount)
	if errors.Is(err, sql.ErrNoRows) {
		return models.PhotoSession{}, ErrNotFound
	}
	if err != nil {
		return models.PhotoSession{}, fmt.Errorf("get session: %w", err)
	}
	s.SelectedPhotoID = selected.String
	return s, nil
}

// AddPhotos inserts the photos of one capture in a single transaction.
func (r *SessionRepository) AddPhotos(ctx context.Context, photos []models.TempPhoto) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO temp_photos (id, session_id, object_key, digest, size, photo_order, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, p := range photos {
		if _, err := stmt.ExecContext(ctx, p.ID, p.SessionID, p.ObjectKey, p.Digest, p.Size, p.Order, p.CreatedAt.UTC()); err != nil {
			return fmt.Errorf("insert photo %d: %w", p.Order, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ListPhotos returns the photos of a session in capture order.
func (r *SessionRepository) ListPhotos(ctx context.Context, sessionID string) ([]models.TempPhoto, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT id, session_id, object_key, digest, size, photo_order, created_at
		FROM temp_photos WHERE session_id = $1 ORDER BY photo_order
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list photos: %w", err)
	}
	defer rows.Close()

	var photos []models.TempPhoto
	for rows.Next() {
		var p models.TempPhoto
		if err := rows.Scan(&p.ID, &p.SessionID, &p.ObjectKey, &p.Digest, &p.Size, &p.Order, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		photos = append(photos, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list photos: %w", err)
	}
	return photos, nil
}

// GetPhoto loads one photo by id.
func (r *SessionRepository) GetPhoto(ctx context.Context, photoID string) (models.TempPhoto, error) {
	var p models.TempPhoto
	err := r.DB.QueryRowContext(ctx, `
		SELECT id, session_id, object_key, digest, size, photo_order, created_at
		FROM temp_photos WHERE id = $1
	`, photoID).Scan(&p.ID, &p.SessionID, &p.ObjectKey, &p.Digest, &p.Size, &p.Order, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.TempPhoto{}, ErrNotFound
	}
	if err != nil {
		return models.TempPhoto{}, fmt.Errorf("get photo: %w", err)
	}
	return p, nil
}

// SelectPhoto marks photoID as the shared photo of the session.
func (r *SessionRepository) SelectPhoto(ctx context.Context, sessionID, photoID string) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE photo_sessions SET selected_photo_id = $1 WHERE id = $2`,
		photoID, sessionID,
	)
	if err != nil {
		return fmt.Errorf("select photo: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("select photo: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// IncrementDownloadCount bumps the download counter and returns the
// new value.
func (r *SessionRepository) IncrementDownloadCount(ctx context.Context, sessionID string) (int, error) {
	var count int
	err := r.DB.QueryRowContext(ctx, `
		UPDATE photo_sessions SET download_count = download_count + 1
		WHERE id = $1 RETURNING download_count
	`, sessionID).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("increment download count: %w", err)
	}
	return count, nil
}
