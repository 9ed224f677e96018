package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/homescout/alert-engine/internal/event"
	"github.com/homescout/alert-engine/internal/metrics"
	"github.com/homescout/alert-engine/internal/notify"
	"github.com/homescout/alert-engine/internal/prefs"
	"github.com/homescout/alert-engine/internal/search"
	"github.com/homescout/alert-engine/internal/throttle"
)

// Decider re-evaluates throttle policy for a deferred item; satisfied by
// *throttle.Manager.
type Decider interface {
	Decide(ctx context.Context, pl throttle.PrefLookup, userID string, searchID int64) (throttle.Decision, error)
}

// Dispatcher delivers a revalidated item; satisfied by *notify.Router.
type Dispatcher interface {
	Dispatch(ctx context.Context, pl notify.PrefLookup, s search.Search, ev event.Event, origin notify.Origin) (notify.Result, error)
}

// BatchResult summarizes one processing run.
type BatchResult struct {
	Processed int `json:"processed"`
	Sent      int `json:"sent"`
	Requeued  int `json:"requeued"`
	Failed    int `json:"failed"`
}

// Processor drains the retry queue in fixed-size batches. Each claimed item
// is revalidated against current throttle policy before delivery; items
// blocked again back off exponentially until the attempt budget runs out.
type Processor struct {
	store    Store
	throttle Decider
	router   Dispatcher
	prefs    prefs.Source
	logger   *slog.Logger
	now      func() time.Time
}

// NewProcessor creates a queue processor.
func NewProcessor(store Store, decider Decider, router Dispatcher, prefSrc prefs.Source, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		store:    store,
		throttle: decider,
		router:   router,
		prefs:    prefSrc,
		logger:   logger,
		now:      time.Now,
	}
}

// ProcessBatch claims one batch of ready items and settles each to a next
// state. Per-item errors are logged and counted, never fatal to the batch.
func (p *Processor) ProcessBatch(ctx context.Context) (BatchResult, error) {
	var res BatchResult

	items, err := p.store.ClaimReady(ctx, BatchSize, p.now())
	if err != nil {
		return res, fmt.Errorf("claim ready items: %w", err)
	}
	if len(items) == 0 {
		return res, nil
	}

	batch := prefs.NewBatch(p.prefs)
	for _, it := range items {
		res.Processed++
		p.processOne(ctx, batch, it, &res)
	}

	p.logger.Info("queue batch processed",
		"processed", res.Processed,
		"sent", res.Sent,
		"requeued", res.Requeued,
		"failed", res.Failed)
	return res, nil
}

func (p *Processor) processOne(ctx context.Context, batch *prefs.Batch, it Claimed, res *BatchResult) {
	d, err := p.throttle.Decide(ctx, batch, it.UserID, it.SearchID)
	if err != nil {
		p.logger.Warn("throttle revalidation failed",
			"item_id", it.ID, "user_id", it.UserID, "error", err)
		p.settleBlocked(ctx, it, throttle.ReasonSystem, time.Time{}, res)
		return
	}
	if !d.Allowed {
		p.settleBlocked(ctx, it, d.Reason, d.RetryAfter, res)
		return
	}

	ev := event.Event{
		ListingID:  it.ListingID,
		Type:       event.Type(it.MatchType),
		Listing:    it.Listing,
		ReceivedAt: it.CreatedAt,
	}
	dres, err := p.router.Dispatch(ctx, batch, it.Search, ev, notify.OriginRequeued)
	if err != nil {
		p.logger.Warn("requeued dispatch failed",
			"item_id", it.ID, "user_id", it.UserID, "error", err)
		p.settleBlocked(ctx, it, throttle.ReasonSystem, time.Time{}, res)
		return
	}

	switch {
	case dres.Delivered, dres.Skip == notify.SkipDuplicate:
		// A duplicate means this notification already went out on another
		// path; the item's work is done either way.
		if err := p.store.MarkSent(ctx, it.ID); err != nil {
			p.logger.Error("mark sent failed", "item_id", it.ID, "error", err)
			return
		}
		res.Sent++
		metrics.QueueOutcomes.WithLabelValues("sent").Inc()

	case dres.Skip == notify.SkipEventType, dres.Skip == notify.SkipNoChannels:
		// Preferences changed since the item was queued; there is nothing
		// left to deliver, now or on any retry.
		if err := p.store.MarkFailed(ctx, it.ID, "undeliverable: "+string(dres.Skip)); err != nil {
			p.logger.Error("mark failed failed", "item_id", it.ID, "error", err)
			return
		}
		res.Failed++
		metrics.QueueOutcomes.WithLabelValues("failed").Inc()

	default:
		// Every attempted channel failed; the reservation was released, so
		// a later attempt can redeliver.
		p.settleBlocked(ctx, it, throttle.ReasonSystem, time.Time{}, res)
	}
}

// settleBlocked either requeues with backoff or fails the item when the
// attempt budget is exhausted. retryAfter from the throttle decision wins
// when it is later than the backoff floor.
func (p *Processor) settleBlocked(ctx context.Context, it Claimed, reason throttle.Reason, retryAfter time.Time, res *BatchResult) {
	next := it.Attempts + 1
	if next >= it.MaxAttempts {
		msg := fmt.Sprintf("retry budget exhausted after %d attempts (%s)", next, reason)
		if err := p.store.MarkFailed(ctx, it.ID, msg); err != nil {
			p.logger.Error("mark failed failed", "item_id", it.ID, "error", err)
			return
		}
		res.Failed++
		metrics.QueueOutcomes.WithLabelValues("failed").Inc()
		p.logger.Warn("queue item failed permanently",
			"item_id", it.ID, "user_id", it.UserID,
			"search_id", it.SearchID, "reason", string(reason))
		return
	}

	at := p.now().Add(Backoff(it.Attempts))
	if retryAfter.After(at) {
		at = retryAfter
	}
	if err := p.store.Requeue(ctx, it.ID, at, next, reason); err != nil {
		p.logger.Error("requeue failed", "item_id", it.ID, "error", err)
		return
	}
	res.Requeued++
	metrics.QueueOutcomes.WithLabelValues("requeued").Inc()
}
