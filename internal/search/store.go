package search

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Source exposes the saved searches the engine evaluates synchronously.
type Source interface {
	ActiveInstant(ctx context.Context) ([]Search, error)
}

// PGStore reads saved searches from Postgres.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore creates a Postgres-backed search store.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// ActiveInstant returns all searches eligible for synchronous evaluation.
func (s *PGStore) ActiveInstant(ctx context.Context) ([]Search, error) {
	rows, err := s.pool.Query(ctx, "active_instant_searches")
	if err != nil {
		return nil, fmt.Errorf("query active instant searches: %w", err)
	}
	defer rows.Close()

	var searches []Search
	for rows.Next() {
		sr, err := scanSearch(rows.Scan)
		if err != nil {
			return nil, err
		}
		searches = append(searches, sr)
	}
	return searches, rows.Err()
}

// Get returns one saved search by id.
func (s *PGStore) Get(ctx context.Context, id int64) (Search, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, user_id, name, filters, polygons, frequency, is_active, created_at, last_notified_at
		FROM saved_searches WHERE id = $1`, id)
	return scanSearch(row.Scan)
}

// Create inserts a saved search and returns its id. Used by seeding and tests.
func (s *PGStore) Create(ctx context.Context, sr Search) (int64, error) {
	filters, err := json.Marshal(sr.Filters)
	if err != nil {
		return 0, fmt.Errorf("encode filters: %w", err)
	}
	polygons, err := json.Marshal(sr.Polygons)
	if err != nil {
		return 0, fmt.Errorf("encode polygons: %w", err)
	}

	var id int64
	err = s.pool.QueryRow(ctx, `
		INSERT INTO saved_searches (user_id, name, filters, polygons, frequency, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		sr.UserID, sr.Name, filters, polygons, sr.Frequency, sr.IsActive, sr.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert saved search: %w", err)
	}
	return id, nil
}

// SetLastNotified records the most recent successful delivery for a search.
func (s *PGStore) SetLastNotified(ctx context.Context, id int64, at time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE saved_searches SET last_notified_at = $2 WHERE id = $1`, id, at)
	return err
}

func scanSearch(scan func(dest ...any) error) (Search, error) {
	var (
		sr       Search
		filters  []byte
		polygons []byte
	)
	if err := scan(&sr.ID, &sr.UserID, &sr.Name, &filters, &polygons,
		&sr.Frequency, &sr.IsActive, &sr.CreatedAt, &sr.LastNotifiedAt); err != nil {
		return Search{}, fmt.Errorf("scan saved search: %w", err)
	}
	if len(filters) > 0 {
		if err := json.Unmarshal(filters, &sr.Filters); err != nil {
			return Search{}, fmt.Errorf("decode filters for search %d: %w", sr.ID, err)
		}
	}
	if len(polygons) > 0 {
		if err := json.Unmarshal(polygons, &sr.Polygons); err != nil {
			return Search{}, fmt.Errorf("decode polygons for search %d: %w", sr.ID, err)
		}
	}
	return sr, nil
}
