// Package engine orchestrates one listing change event end to end: load the
// active searches, match, throttle, then dispatch or defer each positive
// match. One event in, a fan-out of per-search outcomes out.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/homescout/alert-engine/internal/event"
	"github.com/homescout/alert-engine/internal/match"
	"github.com/homescout/alert-engine/internal/metrics"
	"github.com/homescout/alert-engine/internal/notify"
	"github.com/homescout/alert-engine/internal/prefs"
	"github.com/homescout/alert-engine/internal/queue"
	"github.com/homescout/alert-engine/internal/search"
	"github.com/homescout/alert-engine/internal/throttle"
)

// Throttle is the policy collaborator; satisfied by *throttle.Manager.
type Throttle interface {
	ObserveEvent()
	Decide(ctx context.Context, pl throttle.PrefLookup, userID string, searchID int64) (throttle.Decision, error)
}

// Dispatcher delivers allowed matches; satisfied by *notify.Router.
type Dispatcher interface {
	Dispatch(ctx context.Context, pl notify.PrefLookup, s search.Search, ev event.Event, origin notify.Origin) (notify.Result, error)
}

// Enqueuer defers blocked matches; satisfied by *queue.PGStore.
type Enqueuer interface {
	Enqueue(ctx context.Context, item queue.Item) error
}

// Summary reports the fan-out of one handled event.
type Summary struct {
	Searches   int `json:"searches"`
	Matched    int `json:"matched"`
	Dispatched int `json:"dispatched"`
	Queued     int `json:"queued"`
	Skipped    int `json:"skipped"`
}

// Engine wires the matcher, throttle manager, router and retry queue.
type Engine struct {
	searches search.Source
	matcher  *match.Matcher
	throttle Throttle
	router   Dispatcher
	queue    Enqueuer
	prefs    prefs.Source
	logger   *slog.Logger
	now      func() time.Time
}

// New creates an Engine.
func New(searches search.Source, matcher *match.Matcher, th Throttle, router Dispatcher, q Enqueuer, prefSrc prefs.Source, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		searches: searches,
		matcher:  matcher,
		throttle: th,
		router:   router,
		queue:    q,
		prefs:    prefSrc,
		logger:   logger,
		now:      time.Now,
	}
}

// HandleEvent evaluates one event against every active instant search.
// Per-search failures are contained: one bad search never stops the fan-out.
func (e *Engine) HandleEvent(ctx context.Context, ev event.Event) (Summary, error) {
	metrics.EventsProcessed.WithLabelValues(string(ev.Type)).Inc()
	e.throttle.ObserveEvent()

	searches, err := e.searches.ActiveInstant(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("load active searches: %w", err)
	}

	sum := Summary{Searches: len(searches)}
	batch := prefs.NewBatch(e.prefs)
	for _, s := range searches {
		res := e.matcher.Matches(ctx, ev, s)
		if !res.Matched {
			continue
		}
		sum.Matched++
		metrics.Matches.Inc()
		e.settleMatch(ctx, batch, s, ev, &sum)
	}

	e.logger.Info("event handled",
		"listing_id", ev.ListingID,
		"event_type", string(ev.Type),
		"searches", sum.Searches,
		"matched", sum.Matched,
		"dispatched", sum.Dispatched,
		"queued", sum.Queued,
		"skipped", sum.Skipped)
	return sum, nil
}

// settleMatch routes one positive match to exactly one of: delivered now,
// deferred to the queue, or skipped.
func (e *Engine) settleMatch(ctx context.Context, batch *prefs.Batch, s search.Search, ev event.Event, sum *Summary) {
	d, err := e.throttle.Decide(ctx, batch, s.UserID, s.ID)
	if err != nil {
		// Throttle state being unreadable must not drop the notification;
		// park it and let the queue processor re-decide.
		e.logger.Warn("throttle decision failed, deferring",
			"search_id", s.ID, "user_id", s.UserID, "error", err)
		e.park(ctx, s, ev, throttle.ReasonSystem, time.Time{})
		sum.Queued++
		return
	}
	if !d.Allowed {
		metrics.Blocked.WithLabelValues(string(d.Reason)).Inc()
		e.park(ctx, s, ev, d.Reason, d.RetryAfter)
		sum.Queued++
		return
	}

	res, err := e.router.Dispatch(ctx, batch, s, ev, notify.OriginDirect)
	if err != nil {
		e.logger.Warn("dispatch failed, deferring",
			"search_id", s.ID, "user_id", s.UserID, "error", err)
		e.park(ctx, s, ev, throttle.ReasonSystem, time.Time{})
		sum.Queued++
		return
	}

	switch {
	case res.Delivered:
		sum.Dispatched++

	case res.Skip == notify.SkipQuietHours:
		e.park(ctx, s, ev, throttle.ReasonQuietHours, e.quietResume(ctx, batch, s))
		sum.Queued++

	case res.Skip != notify.SkipNone:
		// Duplicate, event-type filtered, or zero configured channels:
		// nothing to deliver, nothing to retry.
		sum.Skipped++

	default:
		// Every attempted channel failed. The router released the
		// idempotency reservation, so a retry can redeliver.
		e.park(ctx, s, ev, throttle.ReasonSystem, time.Time{})
		sum.Queued++
	}
}

func (e *Engine) park(ctx context.Context, s search.Search, ev event.Event, reason throttle.Reason, retryAfter time.Time) {
	if retryAfter.IsZero() {
		retryAfter = e.now().Add(queue.Backoff(0))
	}
	item := queue.Item{
		UserID:      s.UserID,
		SearchID:    s.ID,
		ListingID:   ev.ListingID,
		MatchType:   string(ev.Type),
		Listing:     ev.Listing,
		Reason:      reason,
		RetryAfter:  retryAfter,
		MaxAttempts: queue.DefaultMaxAttempts,
	}
	if err := e.queue.Enqueue(ctx, item); err != nil {
		e.logger.Error("enqueue deferred notification failed",
			"search_id", s.ID, "user_id", s.UserID,
			"listing_id", ev.ListingID, "error", err)
	}
}

// quietResume resolves when the owner's quiet window ends. Falls back to the
// default backoff when preferences cannot be read.
func (e *Engine) quietResume(ctx context.Context, batch *prefs.Batch, s search.Search) time.Time {
	p, err := batch.Lookup(ctx, s.UserID, s.ID)
	if err != nil {
		return time.Time{}
	}
	if w, ok := p.QuietWindow(); ok {
		return w.NextEnd(e.now())
	}
	return time.Time{}
}
