// Package listener provides a Postgres LISTEN/NOTIFY consumer for real-time
// listing change processing. It holds a dedicated pgx connection (not from
// the pool) listening on the `listing_events` channel.
//
// When the ingestion pipeline commits a listing change, a Postgres trigger
// fires pg_notify and this consumer receives the payload, normalizes it into
// a canonical event, and hands it to the engine.
package listener

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/homescout/alert-engine/internal/engine"
	"github.com/homescout/alert-engine/internal/event"
)

const (
	channel          = "listing_events"
	reconnectBackoff = 5 * time.Second
	maxReconnect     = 30 * time.Second
)

// Handler consumes parsed events; satisfied by *engine.Engine.
type Handler interface {
	HandleEvent(ctx context.Context, ev event.Event) (engine.Summary, error)
}

// Start opens a dedicated connection and listens on the listing_events
// channel. It reconnects automatically on connection loss. Blocks until ctx
// is cancelled. Intended to be called with `go`.
func Start(ctx context.Context, dbURL string, handler Handler, logger *slog.Logger) {
	backoff := reconnectBackoff

	for {
		err := listenLoop(ctx, dbURL, handler, logger)
		if ctx.Err() != nil {
			logger.Info("Listing listener stopped (context cancelled)")
			return
		}

		logger.Error("Listing listener disconnected, reconnecting...",
			"error", err, "backoff", backoff)

		select {
		case <-time.After(backoff):
			backoff = min(backoff*2, maxReconnect)
		case <-ctx.Done():
			return
		}
	}
}

// listenLoop runs a single listen session. Returns when the connection drops
// or the context is cancelled.
func listenLoop(ctx context.Context, dbURL string, handler Handler, logger *slog.Logger) error {
	conn, err := pgx.Connect(ctx, dbURL)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close(context.Background())

	_, err = conn.Exec(ctx, "LISTEN "+channel)
	if err != nil {
		return fmt.Errorf("LISTEN %s: %w", channel, err)
	}
	logger.Info("Listing listener connected", "channel", channel)

	for {
		notification, err := conn.WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("wait for notification: %w", err)
		}

		ev, err := event.Parse([]byte(notification.Payload))
		if err != nil {
			logger.Warn("Failed to parse listing event",
				"payload", notification.Payload, "error", err)
			continue
		}

		logger.Info("Listing event received",
			"listing_id", ev.ListingID,
			"event_type", string(ev.Type),
			"source", ev.Source)

		// Process asynchronously to avoid blocking the listener
		go handleEvent(ctx, handler, ev, logger)
	}
}

func handleEvent(ctx context.Context, handler Handler, ev event.Event, logger *slog.Logger) {
	if _, err := handler.HandleEvent(ctx, ev); err != nil {
		logger.Warn("Failed to handle listing event",
			"listing_id", ev.ListingID,
			"event_type", string(ev.Type), "error", err)
	}
}
