package throttle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore persists throttle state in Postgres. Counter updates are single
// upsert statements so concurrent deciders for the same key cannot lose
// increments.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore creates a Postgres-backed throttle store.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// Get returns the day's state for a key, zero-valued when no row exists.
func (s *PGStore) Get(ctx context.Context, userID string, searchID int64, day time.Time) (State, error) {
	st := State{UserID: userID, SearchID: searchID, Day: day}
	err := s.pool.QueryRow(ctx, "throttle_state_get", userID, searchID, day).
		Scan(&st.NotificationCount, &st.ThrottledCount, &st.LastNotificationAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return st, nil
	}
	if err != nil {
		return State{}, fmt.Errorf("get throttle state: %w", err)
	}
	return st, nil
}

// RecordAllowed increments the day's send counter and moves the rate
// marker in one atomic upsert. The update is cap-conditional, so two
// deciders racing at the cap boundary cannot both pass: the loser's upsert
// touches no row and reports false.
func (s *PGStore) RecordAllowed(ctx context.Context, userID string, searchID int64, day, at time.Time, cap int) (bool, error) {
	tag, err := s.pool.Exec(ctx, "throttle_record_allowed", userID, searchID, day, at, cap)
	if err != nil {
		return false, fmt.Errorf("record allowed: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// RecordThrottled increments the day's throttled counter.
func (s *PGStore) RecordThrottled(ctx context.Context, userID string, searchID int64, day time.Time) error {
	_, err := s.pool.Exec(ctx, "throttle_record_throttled", userID, searchID, day)
	if err != nil {
		return fmt.Errorf("record throttled: %w", err)
	}
	return nil
}

// Reset removes the day's row for a key. Operator surface.
func (s *PGStore) Reset(ctx context.Context, userID string, searchID int64, day time.Time) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM throttle_state
		WHERE user_id = $1 AND search_id = $2 AND day = $3`,
		userID, searchID, day)
	if err != nil {
		return fmt.Errorf("reset throttle state: %w", err)
	}
	return nil
}

// PurgeOld deletes state rows older than the cutoff day.
func (s *PGStore) PurgeOld(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM throttle_state WHERE day < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("purge throttle state: %w", err)
	}
	return tag.RowsAffected(), nil
}
