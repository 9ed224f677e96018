// Package notify resolves channel preferences and dispatches matched
// notifications to the configured channel senders. The router hands senders
// structured listing context only; rendering and transport belong to the
// channels.
package notify

import (
	"context"
	"time"

	"github.com/homescout/alert-engine/internal/event"
	"github.com/homescout/alert-engine/internal/prefs"
	"github.com/homescout/alert-engine/internal/search"
)

// Per-channel send attempt budget.
const sendTimeout = 10 * time.Second

// Channel attempt order.
var channelOrder = []string{prefs.ChannelPush, prefs.ChannelEmail, prefs.ChannelSMS}

// Origin tells the router which path invoked it, so quiet-hours gating
// responsibility is unambiguous: the direct path re-checks quiet hours as a
// second independent gate, the requeued path was just re-validated by the
// throttle manager and must not be gated twice.
type Origin int

const (
	OriginDirect Origin = iota
	OriginRequeued
)

// SkipReason explains a non-delivery that is not a failure.
type SkipReason string

const (
	SkipNone       SkipReason = ""
	SkipQuietHours SkipReason = "quiet_hours"
	SkipEventType  SkipReason = "event_type_filtered"
	SkipDuplicate  SkipReason = "duplicate"
	SkipNoChannels SkipReason = "no_channels"
)

// Result reports the outcome of one dispatch.
type Result struct {
	Delivered bool
	Channels  []string // channels that succeeded
	Attempted int      // channels actually tried
	Skip      SkipReason
}

// Notification is the structured context handed to channel senders.
type Notification struct {
	UserID     string                  `json:"user_id"`
	SearchID   int64                   `json:"search_id"`
	SearchName string                  `json:"search_name"`
	ListingID  string                  `json:"listing_id"`
	EventType  string                  `json:"event_type"`
	Address    string                  `json:"address"`
	City       string                  `json:"city"`
	Price      int64                   `json:"price"`
	Beds       int                     `json:"beds"`
	Baths      float64                 `json:"baths"`
	Sqft       int                     `json:"sqft"`
	URL        string                  `json:"url,omitempty"`
	Changes    map[string]event.Change `json:"changes,omitempty"`
}

// Build assembles the sender context for a matched event.
func Build(s search.Search, ev event.Event) Notification {
	l := ev.Listing
	return Notification{
		UserID:     s.UserID,
		SearchID:   s.ID,
		SearchName: s.Name,
		ListingID:  l.ID,
		EventType:  string(ev.Type),
		Address:    l.Address,
		City:       l.City,
		Price:      l.Price,
		Beds:       l.Beds,
		Baths:      l.Baths,
		Sqft:       l.Sqft,
		URL:        l.URL,
		Changes:    ev.Changes,
	}
}

// Sender delivers a notification over one channel. Implementations are
// capability-checked by presence in the router's sender map, never by type.
type Sender interface {
	Send(ctx context.Context, userID string, n Notification) error
}

// PrefLookup resolves effective preferences; satisfied by *prefs.Batch.
type PrefLookup interface {
	Lookup(ctx context.Context, userID string, searchID int64) (prefs.Preferences, error)
}

// Store persists dispatch side effects: the idempotency send log and the
// search's last-notified marker. The daily throttle counter is owned by
// the throttle manager, not the router.
type Store interface {
	// RecordSend reserves the idempotency key (user, listing, search,
	// event type). Returns false when the key was already taken.
	RecordSend(ctx context.Context, userID, listingID string, searchID int64, eventType string) (bool, error)
	// ReleaseSend frees a reservation after every channel attempt failed,
	// so a retry may redeliver.
	ReleaseSend(ctx context.Context, userID, listingID string, searchID int64, eventType string) error
	SetLastNotified(ctx context.Context, searchID int64, at time.Time) error
}
