// Package prefs resolves user notification preferences. Lookup falls back
// search-specific → most recent user-level → hardcoded defaults, and a
// short-lived batch context caches resolved preferences for the duration
// of one event or one queue batch.
package prefs

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Channel identifiers shared with the notification router.
const (
	ChannelPush  = "push"
	ChannelEmail = "email"
	ChannelSMS   = "sms"
)

// Preferences holds one user's notification settings, either user-level
// (SearchID nil) or overriding a single search.
type Preferences struct {
	UserID   string
	SearchID *int64

	PushEnabled  bool
	EmailEnabled bool
	SMSEnabled   bool

	// Quiet hours as "HH:MM" local clock strings; both empty disables
	// the window.
	QuietStart string
	QuietEnd   string

	ThrottlingEnabled     bool
	MaxDailyNotifications int

	// Empty means every event type is allowed.
	AllowedEventTypes []string

	UpdatedAt time.Time
}

// Default returns the hardcoded fallback preferences.
func Default(userID string) Preferences {
	return Preferences{
		UserID:                userID,
		PushEnabled:           true,
		EmailEnabled:          true,
		SMSEnabled:            false,
		QuietStart:            "22:00",
		QuietEnd:              "07:00",
		ThrottlingEnabled:     true,
		MaxDailyNotifications: 10,
	}
}

// ChannelEnabled reports whether a channel is toggled on.
func (p Preferences) ChannelEnabled(channel string) bool {
	switch channel {
	case ChannelPush:
		return p.PushEnabled
	case ChannelEmail:
		return p.EmailEnabled
	case ChannelSMS:
		return p.SMSEnabled
	}
	return false
}

// AllowsEventType reports whether the allow-list admits the event type.
// An empty list allows everything.
func (p Preferences) AllowsEventType(evType string) bool {
	if len(p.AllowedEventTypes) == 0 {
		return true
	}
	for _, t := range p.AllowedEventTypes {
		if strings.EqualFold(t, evType) {
			return true
		}
	}
	return false
}

// QuietWindow parses the preference's quiet-hours window. ok is false when
// no window is configured.
func (p Preferences) QuietWindow() (QuietWindow, bool) {
	if p.QuietStart == "" || p.QuietEnd == "" || p.QuietStart == p.QuietEnd {
		return QuietWindow{}, false
	}
	start, err := parseClock(p.QuietStart)
	if err != nil {
		return QuietWindow{}, false
	}
	end, err := parseClock(p.QuietEnd)
	if err != nil {
		return QuietWindow{}, false
	}
	return QuietWindow{startMin: start, endMin: end}, true
}

// QuietWindow is a daily local-time window in which notifications are
// deferred, not dropped. Supports overnight wraparound (start > end).
type QuietWindow struct {
	startMin int // minutes since midnight
	endMin   int
}

// Contains reports whether t falls inside the window.
func (w QuietWindow) Contains(t time.Time) bool {
	m := t.Hour()*60 + t.Minute()
	if w.startMin > w.endMin {
		// Overnight window, e.g. 22:00–06:00.
		return m >= w.startMin || m <= w.endMin
	}
	return m >= w.startMin && m <= w.endMin
}

// NextEnd returns the next moment the window closes strictly after now:
// today if the end is still upcoming, otherwise tomorrow.
func (w QuietWindow) NextEnd(now time.Time) time.Time {
	end := time.Date(now.Year(), now.Month(), now.Day(),
		w.endMin/60, w.endMin%60, 0, 0, now.Location())
	if !end.After(now) {
		end = end.AddDate(0, 0, 1)
	}
	return end
}

func parseClock(s string) (int, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid clock %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h*60 + m, nil
}
