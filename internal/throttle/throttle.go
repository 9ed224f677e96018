// Package throttle decides whether a matched notification may be sent now
// or must be deferred. Policies: quiet hours, daily caps, per-search rate
// limiting with burst tolerance, and bulk-import backpressure. A blocked
// decision is a deliberate deferral, never an error.
package throttle

import "time"

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	// Rate limiting: at most one notification per rolling window, except
	// inside a burst of closely spaced arrivals.
	rateWindow = 60 * time.Second
	burstGap   = 5 * time.Second
	burstMax   = 30

	rateRetryDelay = 5 * time.Minute

	// Bulk-import backpressure: a rolling event window above the
	// threshold switches on batch mode for a fixed period.
	bulkWindow        = 60 * time.Second
	bulkThreshold     = 90
	batchModeDuration = 5 * time.Minute
	bulkRetryDelay    = 30 * time.Minute

	// Daily-cap deferrals resume delivery at this local hour next day.
	deliveryResumeHour = 6
)

// Reason codes for blocked decisions.
type Reason string

const (
	ReasonQuietHours  Reason = "quiet_hours"
	ReasonDailyLimit  Reason = "daily_limit"
	ReasonRateLimited Reason = "rate_limited"
	ReasonBulkImport  Reason = "bulk_import"
	ReasonSystem      Reason = "system"
)

// Decision is the outcome of a throttle check.
type Decision struct {
	Allowed    bool
	Reason     Reason
	RetryAfter time.Time
}

// Allow is the positive decision.
func Allow() Decision { return Decision{Allowed: true} }

// Blocked builds a deferral decision.
func Blocked(reason Reason, retryAfter time.Time) Decision {
	return Decision{Reason: reason, RetryAfter: retryAfter}
}

// State is one day's counters for a (user, search) pair. Exactly one row
// exists per key per day; counts never decrease within the day.
type State struct {
	UserID             string
	SearchID           int64
	Day                time.Time
	NotificationCount  int
	ThrottledCount     int
	LastNotificationAt *time.Time
}
