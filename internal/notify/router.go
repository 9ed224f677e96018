package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/homescout/alert-engine/internal/event"
	"github.com/homescout/alert-engine/internal/metrics"
	"github.com/homescout/alert-engine/internal/prefs"
	"github.com/homescout/alert-engine/internal/search"
)

// Router dispatches matched notifications across the user's enabled,
// available channels. Channels are attempted independently; overall
// delivery succeeds when at least one channel succeeds.
type Router struct {
	store   Store
	senders map[string]Sender
	logger  *slog.Logger
	now     func() time.Time
}

// NewRouter creates a Router. senders may be empty; dispatch is then a
// valid silent no-op.
func NewRouter(store Store, senders map[string]Sender, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	if senders == nil {
		senders = map[string]Sender{}
	}
	return &Router{store: store, senders: senders, logger: logger, now: time.Now}
}

// Dispatch sends one matched event to one search's owner.
func (r *Router) Dispatch(ctx context.Context, pl PrefLookup, s search.Search, ev event.Event, origin Origin) (Result, error) {
	p, err := pl.Lookup(ctx, s.UserID, s.ID)
	if err != nil {
		return Result{}, fmt.Errorf("resolve preferences: %w", err)
	}

	if !p.AllowsEventType(string(ev.Type)) {
		return Result{Skip: SkipEventType}, nil
	}

	// Second independent quiet-hours gate for direct invocations that may
	// have bypassed the throttle manager. Requeued deliveries were just
	// re-validated and skip it.
	if origin == OriginDirect {
		if w, ok := p.QuietWindow(); ok && w.Contains(r.now()) {
			return Result{Skip: SkipQuietHours}, nil
		}
	}

	// Reserve the idempotency key before any channel attempt so the same
	// logical notification is sent at most once across all channels and
	// entry paths.
	fresh, err := r.store.RecordSend(ctx, s.UserID, ev.ListingID, s.ID, string(ev.Type))
	if err != nil {
		return Result{}, fmt.Errorf("record send: %w", err)
	}
	if !fresh {
		return Result{Skip: SkipDuplicate}, nil
	}

	n := Build(s, ev)
	res := r.attemptChannels(ctx, p, s, n)

	if res.Attempted == 0 {
		// Zero enabled-and-configured channels is a valid configuration.
		if relErr := r.store.ReleaseSend(ctx, s.UserID, ev.ListingID, s.ID, string(ev.Type)); relErr != nil {
			r.logger.Warn("release send reservation failed", "search_id", s.ID, "error", relErr)
		}
		res.Skip = SkipNoChannels
		return res, nil
	}

	if !res.Delivered {
		// All attempted channels failed; free the key so a retry can
		// redeliver.
		if relErr := r.store.ReleaseSend(ctx, s.UserID, ev.ListingID, s.ID, string(ev.Type)); relErr != nil {
			r.logger.Warn("release send reservation failed", "search_id", s.ID, "error", relErr)
		}
		return res, nil
	}

	if err := r.store.SetLastNotified(ctx, s.ID, r.now()); err != nil {
		r.logger.Warn("update last_notified_at failed", "search_id", s.ID, "error", err)
	}
	return res, nil
}

func (r *Router) attemptChannels(ctx context.Context, p prefs.Preferences, s search.Search, n Notification) Result {
	var res Result
	for _, ch := range channelOrder {
		if !p.ChannelEnabled(ch) {
			continue
		}
		sender, ok := r.senders[ch]
		if !ok {
			// Enabled in preferences but no sender configured: treated as
			// unavailable, not a hard error.
			r.logger.Debug("channel enabled but not configured",
				"channel", ch, "user_id", s.UserID)
			continue
		}

		res.Attempted++
		sctx, cancel := context.WithTimeout(ctx, sendTimeout)
		err := sender.Send(sctx, s.UserID, n)
		cancel()
		if err != nil {
			metrics.SendFailures.WithLabelValues(ch).Inc()
			r.logger.Warn("channel send failed",
				"channel", ch, "user_id", s.UserID,
				"listing_id", n.ListingID, "error", err)
			continue
		}
		metrics.NotificationsSent.WithLabelValues(ch).Inc()
		res.Channels = append(res.Channels, ch)
	}
	res.Delivered = len(res.Channels) > 0
	return res
}
