// Package db provides a pgxpool-based connection pool with prepared statement
// registration, embedded schema migrations, and health checking.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/homescout/alert-engine/internal/config"
	"github.com/homescout/alert-engine/internal/db/migrations"
)

// Pool wraps pgxpool.Pool with application-specific helpers.
type Pool struct {
	*pgxpool.Pool
}

// New creates and validates a new connection pool.
func New(ctx context.Context, cfg *config.Config) (*Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolCfg.MinConns = int32(cfg.DBPoolMinConns)
	poolCfg.MaxConns = int32(cfg.DBPoolMaxConns)
	poolCfg.MaxConnLifetime = cfg.DBPoolMaxLife
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	// Register prepared statements on every new connection.
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return registerPreparedStatements(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	// Verify connectivity
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

// RunMigrations applies all embedded SQL migrations. Must run before the
// pool serves traffic, since prepared statements reference the schema.
func RunMigrations(databaseURL string) error {
	sourceDriver, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", sourceDriver, databaseURL)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// HealthCheck runs a trivial query to verify the database is reachable.
func (p *Pool) HealthCheck(ctx context.Context) error {
	var n int
	return p.QueryRow(ctx, "health_check").Scan(&n)
}

// registerPreparedStatements registers all statements on the hot event path.
// Every inbound listing event touches these; prepared statements eliminate
// parse overhead per fan-out.
func registerPreparedStatements(ctx context.Context, conn *pgx.Conn) error {
	stmts := map[string]string{
		// Health
		"health_check": "SELECT 1",

		// Searches: full fan-out set, loaded once per event
		"active_instant_searches": `
			SELECT id, user_id, name, filters, polygons, frequency, is_active, created_at, last_notified_at
			FROM saved_searches
			WHERE is_active AND frequency = 'instant'`,

		// Preferences: search-specific override, then user-level fallback
		"prefs_for_search": `
			SELECT user_id, search_id, push_enabled, email_enabled, sms_enabled,
				quiet_start, quiet_end, throttling_enabled, max_daily_notifications,
				allowed_event_types, updated_at
			FROM notification_preferences
			WHERE user_id = $1 AND search_id = $2`,
		"prefs_for_user": `
			SELECT user_id, search_id, push_enabled, email_enabled, sms_enabled,
				quiet_start, quiet_end, throttling_enabled, max_daily_notifications,
				allowed_event_types, updated_at
			FROM notification_preferences
			WHERE user_id = $1 AND search_id IS NULL
			ORDER BY updated_at DESC
			LIMIT 1`,

		// Throttle counters: the upserts are the atomicity boundary for
		// concurrent deciders on the same key
		"throttle_state_get": `
			SELECT notification_count, throttled_count, last_notification_at
			FROM throttle_state
			WHERE user_id = $1 AND search_id = $2 AND day = $3`,
		"throttle_record_allowed": `
			INSERT INTO throttle_state (user_id, search_id, day, notification_count, throttled_count, last_notification_at)
			VALUES ($1, $2, $3, 1, 0, $4)
			ON CONFLICT (user_id, search_id, day) DO UPDATE SET
				notification_count = throttle_state.notification_count + 1,
				last_notification_at = EXCLUDED.last_notification_at
			WHERE $5 <= 0 OR throttle_state.notification_count < $5`,
		"throttle_record_throttled": `
			INSERT INTO throttle_state (user_id, search_id, day, notification_count, throttled_count)
			VALUES ($1, $2, $3, 0, 1)
			ON CONFLICT (user_id, search_id, day) DO UPDATE SET
				throttled_count = throttle_state.throttled_count + 1`,
	}

	for name, sql := range stmts {
		if _, err := conn.Prepare(ctx, name, sql); err != nil {
			return fmt.Errorf("prepare %q: %w", name, err)
		}
	}
	return nil
}
