package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/atinyakov/PartyBooth/internal/clock"
)

// ObjectRemover deletes a stored photo by key.
type ObjectRemover func(ctx context.Context, key string) error

// StartExpiredSessionCleaner deletes expired photo sessions every
// interval as measured by c. Their photos go with them through the
// cascade, and the stored objects are removed afterwards. A
// non-positive interval is logged and the cleaner is not started.
func StartExpiredSessionCleaner(
	ctx context.Context,
	db *sql.DB,
	c clock.Clock,
	interval time.Duration,
	remove ObjectRemover,
	log *zap.Logger,
) {
	if interval <= 0 {
		log.Error("expired session cleaner not started", zap.Duration("interval", interval))
		return
	}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-c.After(interval):
				cleanOnce(ctx, db, now.UTC(), remove, log)
			}
		}
	}()
}

func cleanOnce(ctx context.Context, db *sql.DB, now time.Time, remove ObjectRemover, log *zap.Logger) {
	keys, removed, err := PurgeExpiredSessions(ctx, db, now)
	if err != nil {
		log.Error("failed to clean expired sessions", zap.Error(err))
		return
	}
	for _, key := range keys {
		if err := remove(ctx, key); err != nil {
			log.Warn("failed to remove photo object", zap.String("key", key), zap.Error(err))
		}
	}
	if removed > 0 {
		log.Info("cleaned expired sessions",
			zap.Int64("removed", removed),
			zap.Int("objects", len(keys)),
		)
	}
}

// PurgeExpiredSessions deletes sessions that expired before now and
// returns the object keys of their photos.
func PurgeExpiredSessions(ctx context.Context, db *sql.DB, now time.Time) ([]string, int64, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT p.object_key FROM temp_photos p
		JOIN photo_sessions s ON s.id = p.session_id
		WHERE s.expires_at < $1
	`, now)
	if err != nil {
		return nil, 0, fmt.Errorf("select expired photos: %w", err)
	}
	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			rows.Close()
			return nil, 0, fmt.Errorf("scan: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Close(); err != nil {
		return nil, 0, fmt.Errorf("close rows: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM photo_sessions WHERE expires_at < $1`, now)
	if err != nil {
		return nil, 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	removed, _ := res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return nil, 0, fmt.Errorf("commit: %w", err)
	}
	return keys, removed, nil
}
