package throttle

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/homescout/alert-engine/internal/prefs"
)

// Store owns persisted per-day throttle counters. RecordAllowed must be an
// atomic check-and-increment; a read-then-write here is a lost-update race
// under concurrent events for the same user and search.
type Store interface {
	Get(ctx context.Context, userID string, searchID int64, day time.Time) (State, error)
	// RecordAllowed increments the day's send counter unless that would
	// push it past cap (cap <= 0 means unlimited). Returns false when the
	// cap was already reached, which can happen even after a passing read
	// when a concurrent decider lands first.
	RecordAllowed(ctx context.Context, userID string, searchID int64, day time.Time, at time.Time, cap int) (bool, error)
	RecordThrottled(ctx context.Context, userID string, searchID int64, day time.Time) error
	Reset(ctx context.Context, userID string, searchID int64, day time.Time) error
}

// PrefLookup resolves effective preferences; satisfied by *prefs.Batch.
type PrefLookup interface {
	Lookup(ctx context.Context, userID string, searchID int64) (prefs.Preferences, error)
}

// Manager evaluates throttling policy per (user, search) key.
type Manager struct {
	store   Store
	enabled bool // global kill-switch; false short-circuits to Allow
	loc     *time.Location
	logger  *slog.Logger
	now     func() time.Time

	mu    sync.Mutex
	rates map[rateKey]*rateState

	imports *importWindow
}

type rateKey struct {
	userID   string
	searchID int64
}

// rateState tracks the in-memory rolling rate window for one key.
type rateState struct {
	lastArrival time.Time
	lastAllowed time.Time
	burst       int // length of the current <5s arrival chain
}

// NewManager creates a throttle manager. enabled=false is the global
// kill-switch: every decision becomes Allow and is still recorded.
func NewManager(store Store, enabled bool, loc *time.Location, logger *slog.Logger) *Manager {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:   store,
		enabled: enabled,
		loc:     loc,
		logger:  logger,
		now:     time.Now,
		rates:   make(map[rateKey]*rateState),
		imports: newImportWindow(),
	}
}

// ObserveEvent feeds the bulk-import detector. Call once per inbound event
// before evaluating searches.
func (m *Manager) ObserveEvent() {
	m.imports.Observe(m.now().In(m.loc))
}

// BatchModeActive reports whether bulk-import backpressure is in effect.
func (m *Manager) BatchModeActive() bool {
	return m.imports.BatchMode(m.now().In(m.loc))
}

// Decide runs the throttle policy chain for one matched notification.
// Policy order: kill-switch → per-user disable → quiet hours → daily cap →
// rate limit → bulk import. On Allow the daily counter increment and the
// rate marker update happen as one unit.
func (m *Manager) Decide(ctx context.Context, pl PrefLookup, userID string, searchID int64) (Decision, error) {
	now := m.now().In(m.loc)
	day := dayOf(now)
	key := rateKey{userID, searchID}

	if !m.enabled {
		return m.allow(ctx, key, userID, searchID, day, now, 0)
	}

	p, err := pl.Lookup(ctx, userID, searchID)
	if err != nil {
		return Decision{}, fmt.Errorf("resolve preferences: %w", err)
	}
	if !p.ThrottlingEnabled {
		return m.allow(ctx, key, userID, searchID, day, now, 0)
	}

	if w, ok := p.QuietWindow(); ok && w.Contains(now) {
		return m.block(ctx, userID, searchID, day, ReasonQuietHours, w.NextEnd(now))
	}

	if p.MaxDailyNotifications > 0 {
		st, err := m.store.Get(ctx, userID, searchID, day)
		if err != nil {
			return Decision{}, fmt.Errorf("read throttle state: %w", err)
		}
		if st.NotificationCount >= p.MaxDailyNotifications {
			return m.block(ctx, userID, searchID, day, ReasonDailyLimit, m.capResume(now))
		}
	}

	if !m.checkRate(key, now) {
		return m.block(ctx, userID, searchID, day, ReasonRateLimited, now.Add(rateRetryDelay))
	}

	if m.imports.BatchMode(now) {
		return m.block(ctx, userID, searchID, day, ReasonBulkImport, now.Add(bulkRetryDelay))
	}

	return m.allow(ctx, key, userID, searchID, day, now, p.MaxDailyNotifications)
}

// ResetKey clears today's counters for a key. Operator surface.
func (m *Manager) ResetKey(ctx context.Context, userID string, searchID int64) error {
	now := m.now().In(m.loc)
	m.mu.Lock()
	delete(m.rates, rateKey{userID, searchID})
	m.mu.Unlock()
	return m.store.Reset(ctx, userID, searchID, dayOf(now))
}

func (m *Manager) allow(ctx context.Context, key rateKey, userID string, searchID int64, day, now time.Time, cap int) (Decision, error) {
	ok, err := m.store.RecordAllowed(ctx, userID, searchID, day, now, cap)
	if err != nil {
		return Decision{}, fmt.Errorf("record allowed send: %w", err)
	}
	if !ok {
		// A concurrent decider reached the cap between our read and the
		// increment.
		return m.block(ctx, userID, searchID, day, ReasonDailyLimit, m.capResume(now))
	}
	m.commitRate(key, now)
	return Allow(), nil
}

// capResume is when daily-cap deferrals come back: tomorrow at the local
// delivery-resume hour.
func (m *Manager) capResume(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), now.Day(),
		deliveryResumeHour, 0, 0, 0, m.loc).AddDate(0, 0, 1)
}

func (m *Manager) block(ctx context.Context, userID string, searchID int64, day time.Time, reason Reason, retryAfter time.Time) (Decision, error) {
	if err := m.store.RecordThrottled(ctx, userID, searchID, day); err != nil {
		// Losing a throttled-count increment is not worth failing the
		// decision over; log and return the block.
		m.logger.Warn("record throttled failed",
			"user_id", userID, "search_id", searchID, "error", err)
	}
	return Blocked(reason, retryAfter), nil
}

// checkRate applies the rolling-window limit with burst tolerance:
// arrivals under 5s apart extend a burst that may run to 30 sends; outside
// a burst at most one send per rolling 60s is allowed.
func (m *Manager) checkRate(key rateKey, now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.rates[key]
	if !ok {
		st = &rateState{}
		m.rates[key] = st
	}
	defer func() { st.lastArrival = now }()

	if st.lastArrival.IsZero() {
		st.burst = 1
		return true
	}
	if now.Sub(st.lastArrival) < burstGap {
		st.burst++
		return st.burst <= burstMax
	}
	st.burst = 1
	if !st.lastAllowed.IsZero() && now.Sub(st.lastAllowed) < rateWindow {
		return false
	}
	return true
}

// commitRate marks a completed send. Only called once the decision is a
// final Allow, so a later policy block never consumes the rate budget.
func (m *Manager) commitRate(key rateKey, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.rates[key]
	if !ok {
		st = &rateState{burst: 1}
		m.rates[key] = st
	}
	st.lastAllowed = now
	if st.lastArrival.IsZero() {
		st.lastArrival = now
	}
}

func dayOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
