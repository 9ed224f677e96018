package prefs

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Source resolves preferences for a (user, search) pair.
type Source interface {
	Lookup(ctx context.Context, userID string, searchID int64) (Preferences, error)
}

// PGStore resolves preferences from Postgres with the fallback chain
// search-specific → most recent user-level → defaults.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore creates a Postgres-backed preference source.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// Lookup resolves effective preferences for one user and search.
func (s *PGStore) Lookup(ctx context.Context, userID string, searchID int64) (Preferences, error) {
	p, err := s.scanOne(s.pool.QueryRow(ctx, "prefs_for_search", userID, searchID))
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Preferences{}, fmt.Errorf("lookup search preferences: %w", err)
	}

	p, err = s.scanOne(s.pool.QueryRow(ctx, "prefs_for_user", userID))
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Preferences{}, fmt.Errorf("lookup user preferences: %w", err)
	}

	return Default(userID), nil
}

// Upsert writes a preference row. SearchID nil writes the user-level row.
func (s *PGStore) Upsert(ctx context.Context, p Preferences) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO notification_preferences (
			user_id, search_id, push_enabled, email_enabled, sms_enabled,
			quiet_start, quiet_end, throttling_enabled, max_daily_notifications,
			allowed_event_types, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,NOW())
		ON CONFLICT (user_id, COALESCE(search_id, 0)) DO UPDATE SET
			push_enabled = EXCLUDED.push_enabled,
			email_enabled = EXCLUDED.email_enabled,
			sms_enabled = EXCLUDED.sms_enabled,
			quiet_start = EXCLUDED.quiet_start,
			quiet_end = EXCLUDED.quiet_end,
			throttling_enabled = EXCLUDED.throttling_enabled,
			max_daily_notifications = EXCLUDED.max_daily_notifications,
			allowed_event_types = EXCLUDED.allowed_event_types,
			updated_at = NOW()`,
		p.UserID, p.SearchID, p.PushEnabled, p.EmailEnabled, p.SMSEnabled,
		p.QuietStart, p.QuietEnd, p.ThrottlingEnabled, p.MaxDailyNotifications,
		p.AllowedEventTypes,
	)
	if err != nil {
		return fmt.Errorf("upsert preferences: %w", err)
	}
	return nil
}

func (s *PGStore) scanOne(row pgx.Row) (Preferences, error) {
	var p Preferences
	err := row.Scan(&p.UserID, &p.SearchID, &p.PushEnabled, &p.EmailEnabled,
		&p.SMSEnabled, &p.QuietStart, &p.QuietEnd, &p.ThrottlingEnabled,
		&p.MaxDailyNotifications, &p.AllowedEventTypes, &p.UpdatedAt)
	if err != nil {
		return Preferences{}, err
	}
	return p, nil
}

// --------------------------------------------------------------------------
// Batch context
// --------------------------------------------------------------------------

// Batch caches resolved preferences for the duration of one event or one
// queue batch. It is passed by argument, never shared across batches, and
// is not safe for concurrent use.
type Batch struct {
	src   Source
	cache map[batchKey]Preferences
}

type batchKey struct {
	userID   string
	searchID int64
}

// NewBatch creates an empty per-batch preference cache.
func NewBatch(src Source) *Batch {
	return &Batch{src: src, cache: make(map[batchKey]Preferences)}
}

// Lookup resolves preferences, serving repeats from the batch cache.
func (b *Batch) Lookup(ctx context.Context, userID string, searchID int64) (Preferences, error) {
	key := batchKey{userID, searchID}
	if p, ok := b.cache[key]; ok {
		return p, nil
	}
	p, err := b.src.Lookup(ctx, userID, searchID)
	if err != nil {
		return Preferences{}, err
	}
	b.cache[key] = p
	return p, nil
}
