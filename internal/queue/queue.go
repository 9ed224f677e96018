// Package queue persists throttled notifications and reprocesses them with
// exponential backoff. Items move queued → processing → {sent | queued |
// failed | expired}; terminal items are retained for operator audit until
// the purge sweep removes them.
package queue

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/homescout/alert-engine/internal/event"
	"github.com/homescout/alert-engine/internal/search"
	"github.com/homescout/alert-engine/internal/throttle"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	// DefaultMaxAttempts is the retry budget before an item fails
	// permanently.
	DefaultMaxAttempts = 3

	// BatchSize is how many ready items one processing run claims.
	BatchSize = 20

	baseBackoff = 5 * time.Minute

	// Queued and processing items older than this are expired by the
	// cleanup sweep; terminal items older than PurgeAfter are deleted.
	StaleAfter = 7 * 24 * time.Hour
	PurgeAfter = 30 * 24 * time.Hour
)

// Backoff returns the requeue delay for a given attempt count: 5, 10, 20
// minutes for attempts 0, 1, 2.
func Backoff(attempts int) time.Duration {
	return baseBackoff * time.Duration(1<<attempts)
}

// Status is a queue item's lifecycle state.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusSent       Status = "sent"
	StatusFailed     Status = "failed"
	StatusExpired    Status = "expired"
)

// Item is one deferred notification with its listing snapshot.
type Item struct {
	ID          uuid.UUID
	UserID      string
	SearchID    int64
	ListingID   string
	MatchType   string
	Listing     event.Listing
	Reason      throttle.Reason
	RetryAfter  time.Time
	Attempts    int
	MaxAttempts int
	Status      Status
	LastError   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Claimed pairs a claimed item with its still-active saved search.
type Claimed struct {
	Item
	Search search.Search
}

// Store is the persisted retry queue.
type Store interface {
	Enqueue(ctx context.Context, item Item) error
	// ClaimReady atomically claims up to limit ready items (retry_after
	// elapsed, attempts under budget, search still active) ordered by
	// retry_after ascending, marking them processing. Safe under
	// concurrent batch runs.
	ClaimReady(ctx context.Context, limit int, now time.Time) ([]Claimed, error)
	MarkSent(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
	Requeue(ctx context.Context, id uuid.UUID, retryAfter time.Time, attempts int, reason throttle.Reason) error
	Get(ctx context.Context, id uuid.UUID) (Item, error)
	List(ctx context.Context, status Status, limit int) ([]Item, error)
	// Retry resets a terminal item for immediate reprocessing. Operator
	// surface.
	Retry(ctx context.Context, id uuid.UUID) error
	Remove(ctx context.Context, id uuid.UUID) error
	ExpireStale(ctx context.Context, before time.Time) (int64, error)
	ExpireDeactivated(ctx context.Context) (int64, error)
	PurgeTerminal(ctx context.Context, before time.Time) (int64, error)
}
