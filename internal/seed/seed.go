// Package seed inserts demo saved searches and preferences for local
// development. Skips rows that already exist.
package seed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/homescout/alert-engine/internal/prefs"
	"github.com/homescout/alert-engine/internal/search"
)

func ptrInt64(v int64) *int64 { return &v }
func ptrBool(v bool) *bool    { return &v }

// Demo inserts a small set of representative searches and preferences.
func Demo(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) error {
	searches := search.NewPGStore(pool)
	preferences := prefs.NewPGStore(pool)

	// Backdate creation so freshly seeded listings still match.
	createdAt := time.Now().UTC().Add(-30 * 24 * time.Hour)

	demos := []search.Search{
		{
			UserID: "user-demo-1",
			Name:   "Downtown condos under 750k",
			Filters: search.Filters{
				PriceMax:      750_000,
				Cities:        []string{"Austin"},
				Neighborhoods: []string{"Downtown", "Rainey Street"},
				PropertyTypes: []string{"Condo"},
				BedsMin:       1,
			},
			Frequency: search.FrequencyInstant,
			IsActive:  true,
			CreatedAt: createdAt,
		},
		{
			UserID: "user-demo-2",
			Name:   "Family homes near good schools",
			Filters: search.Filters{
				PriceMin:        400_000,
				PriceMax:        900_000,
				PropertyTypes:   []string{"Single Family"},
				BedsMin:         3,
				BathsMin:        2,
				SqftMin:         1800,
				MinSchoolRating: 7,
			},
			Polygons: []search.Polygon{{
				{Lat: 30.30, Lng: -97.80},
				{Lat: 30.30, Lng: -97.70},
				{Lat: 30.38, Lng: -97.70},
				{Lat: 30.38, Lng: -97.80},
			}},
			Frequency: search.FrequencyInstant,
			IsActive:  true,
			CreatedAt: createdAt,
		},
		{
			UserID: "user-demo-3",
			Name:   "Pet-friendly rentals",
			Filters: search.Filters{
				PriceMax:           3_000,
				Cities:             []string{"Austin", "Round Rock"},
				PropertyTypes:      []string{"Apartment", "Lease"},
				PetsAllowed:        ptrBool(true),
				MaxLeaseTermMonths: 12,
			},
			Frequency: search.FrequencyInstant,
			IsActive:  true,
			CreatedAt: createdAt,
		},
	}

	for _, s := range demos {
		if existing, err := alreadySeeded(ctx, pool, s.UserID, s.Name); err != nil {
			return err
		} else if existing {
			continue
		}
		id, err := searches.Create(ctx, s)
		if err != nil {
			return fmt.Errorf("seed search %q: %w", s.Name, err)
		}
		logger.Info("Seeded search", "id", id, "user_id", s.UserID, "name", s.Name)

		if s.UserID == "user-demo-2" {
			// Search-level override: price drops only, long quiet window.
			p := prefs.Default(s.UserID)
			p.SearchID = ptrInt64(id)
			p.QuietStart = "21:00"
			p.QuietEnd = "08:00"
			p.AllowedEventTypes = []string{"new_listing", "price_drop"}
			if err := preferences.Upsert(ctx, p); err != nil {
				return fmt.Errorf("seed preferences for search %d: %w", id, err)
			}
		}
	}

	// User-level preference rows.
	for _, userID := range []string{"user-demo-1", "user-demo-3"} {
		if err := preferences.Upsert(ctx, prefs.Default(userID)); err != nil {
			return fmt.Errorf("seed preferences for %s: %w", userID, err)
		}
	}

	return nil
}

func alreadySeeded(ctx context.Context, pool *pgxpool.Pool, userID, name string) (bool, error) {
	var n int
	err := pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM saved_searches WHERE user_id = $1 AND name = $2`,
		userID, name).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check existing seed: %w", err)
	}
	return n > 0, nil
}
