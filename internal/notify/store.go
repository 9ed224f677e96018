package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore persists the idempotency send log and the saved search's
// last-notified marker.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore creates a Postgres-backed dispatch store.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// RecordSend reserves the idempotency key. ON CONFLICT DO NOTHING makes the
// reservation race-free: exactly one caller sees inserted=true.
func (s *PGStore) RecordSend(ctx context.Context, userID, listingID string, searchID int64, eventType string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO notification_log (user_id, listing_id, search_id, event_type, sent_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (user_id, listing_id, search_id, event_type) DO NOTHING`,
		userID, listingID, searchID, eventType)
	if err != nil {
		return false, fmt.Errorf("insert send log: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ReleaseSend frees a reservation so a later retry may redeliver.
func (s *PGStore) ReleaseSend(ctx context.Context, userID, listingID string, searchID int64, eventType string) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM notification_log
		WHERE user_id = $1 AND listing_id = $2 AND search_id = $3 AND event_type = $4`,
		userID, listingID, searchID, eventType)
	if err != nil {
		return fmt.Errorf("delete send log: %w", err)
	}
	return nil
}

// SetLastNotified records the most recent successful delivery.
func (s *PGStore) SetLastNotified(ctx context.Context, searchID int64, at time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE saved_searches SET last_notified_at = $2 WHERE id = $1`, searchID, at)
	if err != nil {
		return fmt.Errorf("update last_notified_at: %w", err)
	}
	return nil
}

// PurgeLog deletes send-log rows older than the cutoff.
func (s *PGStore) PurgeLog(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM notification_log WHERE sent_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("purge send log: %w", err)
	}
	return tag.RowsAffected(), nil
}
