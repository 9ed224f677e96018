package notify

import (
	"context"
	"log/slog"
)

// PushSender sends push notifications. Nil-safe: when not configured, all
// methods are no-ops and the channel is simply absent from the router.
type PushSender struct {
	credentialsFile string
	logger          *slog.Logger
}

// NewPushSender creates a push sender from a service account credentials
// file. Returns nil if credentialsFile is empty (channel disabled).
func NewPushSender(credentialsFile string, logger *slog.Logger) *PushSender {
	if credentialsFile == "" {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PushSender{credentialsFile: credentialsFile, logger: logger}
}

// Send delivers one push notification. The transport integration hangs off
// the credentials file; during development the send is logged.
func (s *PushSender) Send(ctx context.Context, userID string, n Notification) error {
	if s == nil {
		return nil
	}
	s.logger.Info("push send",
		"user_id", userID,
		"listing_id", n.ListingID,
		"event_type", n.EventType,
		"search", n.SearchName)
	return nil
}

// LogSender writes notifications to the log instead of a real transport.
// Used for local development via the DEV_CHANNELS configuration.
type LogSender struct {
	channel string
	logger  *slog.Logger
}

// NewLogSender creates a development sender for the named channel.
func NewLogSender(channel string, logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{channel: channel, logger: logger}
}

// Send logs the structured notification context.
func (s *LogSender) Send(ctx context.Context, userID string, n Notification) error {
	s.logger.Info("dev channel send",
		"channel", s.channel,
		"user_id", userID,
		"listing_id", n.ListingID,
		"event_type", n.EventType,
		"address", n.Address,
		"price", n.Price,
		"beds", n.Beds,
		"baths", n.Baths)
	return nil
}
