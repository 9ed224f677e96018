package queue

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/homescout/alert-engine/internal/db"
	"github.com/homescout/alert-engine/internal/event"
	"github.com/homescout/alert-engine/internal/throttle"
)

func skipIfNoTestDB(t *testing.T) {
	t.Helper()
	if os.Getenv("TEST_DATABASE_URL") == "" {
		t.Skip("Skipping integration test: TEST_DATABASE_URL not set")
	}
}

func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	skipIfNoTestDB(t)

	connString := os.Getenv("TEST_DATABASE_URL")
	ctx := context.Background()

	if err := db.RunMigrations(connString); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		t.Fatalf("failed to connect to test database: %v", err)
	}

	clean := func() {
		pool.Exec(ctx, "DELETE FROM notification_queue")
		pool.Exec(ctx, "DELETE FROM notification_log")
		pool.Exec(ctx, "DELETE FROM throttle_state")
		pool.Exec(ctx, "DELETE FROM notification_preferences")
		pool.Exec(ctx, "DELETE FROM saved_searches")
	}
	clean()
	t.Cleanup(func() {
		clean()
		pool.Close()
	})
	return pool
}

func insertSearch(t *testing.T, pool *pgxpool.Pool, userID string, active bool) int64 {
	t.Helper()
	var id int64
	err := pool.QueryRow(context.Background(), `
		INSERT INTO saved_searches (user_id, name, frequency, is_active)
		VALUES ($1, 'integration search', 'instant', $2)
		RETURNING id`, userID, active).Scan(&id)
	if err != nil {
		t.Fatalf("insert saved search: %v", err)
	}
	return id
}

func TestPGStoreLifecycle(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	store := NewPGStore(pool)
	searchID := insertSearch(t, pool, "itest-user", true)

	item := Item{
		UserID:     "itest-user",
		SearchID:   searchID,
		ListingID:  "mls-itest-1",
		MatchType:  "price_drop",
		Listing:    event.Listing{ID: "mls-itest-1", City: "Austin", Price: 450_000},
		Reason:     throttle.ReasonQuietHours,
		RetryAfter: time.Now().Add(-time.Minute),
	}
	if err := store.Enqueue(ctx, item); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	claimed, err := store.ClaimReady(ctx, BatchSize, time.Now())
	if err != nil {
		t.Fatalf("ClaimReady() error = %v", err)
	}
	if len(claimed) != 1 {
		t.Fatalf("ClaimReady() = %d items, want 1", len(claimed))
	}
	c := claimed[0]
	if c.Status != StatusProcessing {
		t.Errorf("claimed status = %s, want processing", c.Status)
	}
	if c.Search.ID != searchID || c.Search.Name != "integration search" {
		t.Errorf("claimed search = %+v, want joined saved search", c.Search)
	}
	if c.Listing.Price != 450_000 {
		t.Errorf("listing snapshot price = %d, want 450000", c.Listing.Price)
	}

	// A second claim must find nothing while the item is processing.
	again, err := store.ClaimReady(ctx, BatchSize, time.Now())
	if err != nil {
		t.Fatalf("second ClaimReady() error = %v", err)
	}
	if len(again) != 0 {
		t.Errorf("second ClaimReady() = %d items, want 0", len(again))
	}

	// Requeue into the future keeps it out of the ready set.
	future := time.Now().Add(10 * time.Minute)
	if err := store.Requeue(ctx, c.ID, future, 1, throttle.ReasonRateLimited); err != nil {
		t.Fatalf("Requeue() error = %v", err)
	}
	got, err := store.Get(ctx, c.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != StatusQueued || got.Attempts != 1 || got.Reason != throttle.ReasonRateLimited {
		t.Errorf("after requeue = %+v, want queued attempt 1 rate_limited", got)
	}
	ready, err := store.ClaimReady(ctx, BatchSize, time.Now())
	if err != nil {
		t.Fatalf("ClaimReady() error = %v", err)
	}
	if len(ready) != 0 {
		t.Errorf("future-dated item claimed early")
	}

	// Terminal failure, operator retry, then remove.
	if err := store.MarkFailed(ctx, c.ID, "integration failure"); err != nil {
		t.Fatalf("MarkFailed() error = %v", err)
	}
	got, _ = store.Get(ctx, c.ID)
	if got.Status != StatusFailed || got.LastError != "integration failure" {
		t.Errorf("after failure = %+v, want failed with reason", got)
	}
	if err := store.Retry(ctx, c.ID); err != nil {
		t.Fatalf("Retry() error = %v", err)
	}
	got, _ = store.Get(ctx, c.ID)
	if got.Status != StatusQueued || got.Attempts != 0 || got.LastError != "" {
		t.Errorf("after retry = %+v, want fresh queued item", got)
	}
	if err := store.Remove(ctx, c.ID); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, err := store.Get(ctx, c.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after remove error = %v, want ErrNotFound", err)
	}
}

func TestPGStoreInactiveSearchExpiry(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	store := NewPGStore(pool)
	searchID := insertSearch(t, pool, "itest-user-2", false)

	item := Item{
		UserID:     "itest-user-2",
		SearchID:   searchID,
		ListingID:  "mls-itest-2",
		MatchType:  "new_listing",
		Listing:    event.Listing{ID: "mls-itest-2"},
		Reason:     throttle.ReasonDailyLimit,
		RetryAfter: time.Now().Add(-time.Minute),
	}
	if err := store.Enqueue(ctx, item); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	claimed, err := store.ClaimReady(ctx, BatchSize, time.Now())
	if err != nil {
		t.Fatalf("ClaimReady() error = %v", err)
	}
	if len(claimed) != 0 {
		t.Fatal("claim must skip items for inactive searches")
	}

	n, err := store.ExpireDeactivated(ctx)
	if err != nil {
		t.Fatalf("ExpireDeactivated() error = %v", err)
	}
	if n != 1 {
		t.Errorf("ExpireDeactivated() = %d, want 1", n)
	}
}

func TestPGStoreRetentionSweep(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	store := NewPGStore(pool)
	searchID := insertSearch(t, pool, "itest-user-3", true)

	item := Item{
		UserID:     "itest-user-3",
		SearchID:   searchID,
		ListingID:  "mls-itest-3",
		MatchType:  "new_listing",
		Listing:    event.Listing{ID: "mls-itest-3"},
		Reason:     throttle.ReasonSystem,
		RetryAfter: time.Now().Add(time.Hour),
	}
	if err := store.Enqueue(ctx, item); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	// Everything created before the cutoff expires, then purges.
	cutoff := time.Now().Add(time.Minute)
	n, err := store.ExpireStale(ctx, cutoff)
	if err != nil {
		t.Fatalf("ExpireStale() error = %v", err)
	}
	if n != 1 {
		t.Fatalf("ExpireStale() = %d, want 1", n)
	}
	n, err = store.PurgeTerminal(ctx, cutoff)
	if err != nil {
		t.Fatalf("PurgeTerminal() error = %v", err)
	}
	if n != 1 {
		t.Errorf("PurgeTerminal() = %d, want 1", n)
	}
}
