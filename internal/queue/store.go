package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/homescout/alert-engine/internal/throttle"
)

// ErrNotFound is returned when a queue item id does not exist.
var ErrNotFound = errors.New("queue item not found")

// PGStore is the Postgres-backed retry queue.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore creates a Postgres-backed queue store.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// Enqueue inserts a deferred notification with its listing snapshot.
func (s *PGStore) Enqueue(ctx context.Context, item Item) error {
	snapshot, err := json.Marshal(item.Listing)
	if err != nil {
		return fmt.Errorf("marshal listing snapshot: %w", err)
	}
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	if item.MaxAttempts == 0 {
		item.MaxAttempts = DefaultMaxAttempts
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO notification_queue (
			id, user_id, search_id, listing_id, match_type, listing,
			reason, retry_after, attempts, max_attempts, status,
			created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,'queued',NOW(),NOW())`,
		item.ID, item.UserID, item.SearchID, item.ListingID, item.MatchType,
		snapshot, string(item.Reason), item.RetryAfter, item.Attempts,
		item.MaxAttempts,
	)
	if err != nil {
		return fmt.Errorf("enqueue notification: %w", err)
	}
	return nil
}

// ClaimReady claims up to limit ready items in one statement. FOR UPDATE
// SKIP LOCKED lets concurrent batch runs partition the ready set instead of
// serializing on it. Items whose search was deactivated are left for the
// expiry sweep.
func (s *PGStore) ClaimReady(ctx context.Context, limit int, now time.Time) ([]Claimed, error) {
	rows, err := s.pool.Query(ctx, `
		UPDATE notification_queue q
		SET status = 'processing', updated_at = NOW()
		FROM saved_searches ss
		WHERE ss.id = q.search_id AND q.id IN (
			SELECT nq.id
			FROM notification_queue nq
			JOIN saved_searches s ON s.id = nq.search_id AND s.is_active
			WHERE nq.status = 'queued'
			  AND nq.retry_after <= $2
			  AND nq.attempts < nq.max_attempts
			ORDER BY nq.retry_after
			LIMIT $1
			FOR UPDATE OF nq SKIP LOCKED
		)
		RETURNING q.id, q.user_id, q.search_id, q.listing_id, q.match_type,
			q.listing, q.reason, q.retry_after, q.attempts, q.max_attempts,
			q.status, q.last_error, q.created_at, q.updated_at,
			ss.name, ss.frequency, ss.created_at, ss.last_notified_at`,
		limit, now,
	)
	if err != nil {
		return nil, fmt.Errorf("claim queue items: %w", err)
	}
	defer rows.Close()

	var claimed []Claimed
	for rows.Next() {
		var c Claimed
		var snapshot []byte
		var reason string
		err := rows.Scan(&c.ID, &c.UserID, &c.SearchID, &c.ListingID,
			&c.MatchType, &snapshot, &reason, &c.RetryAfter, &c.Attempts,
			&c.MaxAttempts, &c.Status, &c.LastError, &c.CreatedAt,
			&c.UpdatedAt, &c.Search.Name, &c.Search.Frequency,
			&c.Search.CreatedAt, &c.Search.LastNotifiedAt)
		if err != nil {
			return nil, fmt.Errorf("scan claimed item: %w", err)
		}
		c.Reason = throttle.Reason(reason)
		if err := json.Unmarshal(snapshot, &c.Listing); err != nil {
			return nil, fmt.Errorf("decode listing snapshot %s: %w", c.ID, err)
		}
		c.Search.ID = c.SearchID
		c.Search.UserID = c.UserID
		c.Search.IsActive = true
		claimed = append(claimed, c)
	}
	return claimed, rows.Err()
}

// MarkSent records successful delivery of a claimed item.
func (s *PGStore) MarkSent(ctx context.Context, id uuid.UUID) error {
	return s.setTerminal(ctx, id, StatusSent, "")
}

// MarkFailed records permanent failure with an operator-readable reason.
func (s *PGStore) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	return s.setTerminal(ctx, id, StatusFailed, reason)
}

func (s *PGStore) setTerminal(ctx context.Context, id uuid.UUID, st Status, lastError string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE notification_queue
		SET status = $2, last_error = $3, updated_at = NOW()
		WHERE id = $1`,
		id, string(st), lastError,
	)
	if err != nil {
		return fmt.Errorf("mark queue item %s: %w", st, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Requeue returns a claimed item to the queue with its next retry time and
// incremented attempt count.
func (s *PGStore) Requeue(ctx context.Context, id uuid.UUID, retryAfter time.Time, attempts int, reason throttle.Reason) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE notification_queue
		SET status = 'queued', retry_after = $2, attempts = $3, reason = $4,
			updated_at = NOW()
		WHERE id = $1`,
		id, retryAfter, attempts, string(reason),
	)
	if err != nil {
		return fmt.Errorf("requeue item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Get returns one queue item by id.
func (s *PGStore) Get(ctx context.Context, id uuid.UUID) (Item, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, user_id, search_id, listing_id, match_type, listing,
			reason, retry_after, attempts, max_attempts, status, last_error,
			created_at, updated_at
		FROM notification_queue WHERE id = $1`, id)
	item, err := scanItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, ErrNotFound
	}
	if err != nil {
		return Item{}, fmt.Errorf("get queue item: %w", err)
	}
	return item, nil
}

// List returns items, newest first, optionally filtered by status.
func (s *PGStore) List(ctx context.Context, status Status, limit int) ([]Item, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, search_id, listing_id, match_type, listing,
			reason, retry_after, attempts, max_attempts, status, last_error,
			created_at, updated_at
		FROM notification_queue
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2`,
		string(status), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list queue items: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan queue item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Retry resets a terminal item for immediate reprocessing with a fresh
// attempt budget.
func (s *PGStore) Retry(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE notification_queue
		SET status = 'queued', retry_after = NOW(), attempts = 0,
			last_error = '', updated_at = NOW()
		WHERE id = $1 AND status IN ('failed', 'expired', 'queued')`,
		id,
	)
	if err != nil {
		return fmt.Errorf("retry queue item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Remove deletes a queue item.
func (s *PGStore) Remove(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM notification_queue WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("remove queue item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ExpireStale expires non-terminal items created before the cutoff. Stuck
// processing items from a crashed batch run are covered too.
func (s *PGStore) ExpireStale(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE notification_queue
		SET status = 'expired', updated_at = NOW()
		WHERE status IN ('queued', 'processing') AND created_at < $1`,
		before,
	)
	if err != nil {
		return 0, fmt.Errorf("expire stale queue items: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ExpireDeactivated expires pending items whose saved search was deleted or
// deactivated since the item was queued.
func (s *PGStore) ExpireDeactivated(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE notification_queue q
		SET status = 'expired', updated_at = NOW()
		WHERE q.status = 'queued' AND NOT EXISTS (
			SELECT 1 FROM saved_searches ss
			WHERE ss.id = q.search_id AND ss.is_active
		)`,
	)
	if err != nil {
		return 0, fmt.Errorf("expire deactivated queue items: %w", err)
	}
	return tag.RowsAffected(), nil
}

// PurgeTerminal deletes terminal items older than the cutoff.
func (s *PGStore) PurgeTerminal(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM notification_queue
		WHERE status IN ('sent', 'failed', 'expired') AND updated_at < $1`,
		before,
	)
	if err != nil {
		return 0, fmt.Errorf("purge queue items: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanItem(row pgx.Row) (Item, error) {
	var item Item
	var snapshot []byte
	var reason string
	err := row.Scan(&item.ID, &item.UserID, &item.SearchID, &item.ListingID,
		&item.MatchType, &snapshot, &reason, &item.RetryAfter, &item.Attempts,
		&item.MaxAttempts, &item.Status, &item.LastError, &item.CreatedAt,
		&item.UpdatedAt)
	if err != nil {
		return Item{}, err
	}
	item.Reason = throttle.Reason(reason)
	if err := json.Unmarshal(snapshot, &item.Listing); err != nil {
		return Item{}, fmt.Errorf("decode listing snapshot: %w", err)
	}
	return item, nil
}
