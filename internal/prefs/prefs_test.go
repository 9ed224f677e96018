package prefs

import (
	"testing"
	"time"
)

func clock(hour, min int) time.Time {
	return time.Date(2026, 8, 30, hour, min, 0, 0, time.UTC)
}

func TestQuietWindowContains(t *testing.T) {
	tests := []struct {
		name       string
		start, end string
		at         time.Time
		want       bool
	}{
		{"overnight late evening", "22:00", "07:00", clock(23, 0), true},
		{"overnight early morning", "22:00", "07:00", clock(3, 0), true},
		{"overnight at start", "22:00", "07:00", clock(22, 0), true},
		{"overnight at end", "22:00", "07:00", clock(7, 0), true},
		{"overnight midday", "22:00", "07:00", clock(10, 0), false},
		{"overnight just before start", "22:00", "07:00", clock(21, 59), false},
		{"same-day window inside", "12:00", "14:00", clock(13, 0), true},
		{"same-day window outside", "12:00", "14:00", clock(15, 0), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Preferences{QuietStart: tt.start, QuietEnd: tt.end}
			w, ok := p.QuietWindow()
			if !ok {
				t.Fatal("QuietWindow() ok = false, want true")
			}
			if got := w.Contains(tt.at); got != tt.want {
				t.Errorf("Contains(%v) = %v, want %v", tt.at, got, tt.want)
			}
		})
	}
}

func TestQuietWindowDisabled(t *testing.T) {
	tests := []struct {
		name       string
		start, end string
	}{
		{"both empty", "", ""},
		{"start only", "22:00", ""},
		{"equal bounds", "08:00", "08:00"},
		{"invalid clock", "25:00", "07:00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Preferences{QuietStart: tt.start, QuietEnd: tt.end}
			if _, ok := p.QuietWindow(); ok {
				t.Error("QuietWindow() ok = true, want false")
			}
		})
	}
}

func TestQuietWindowNextEnd(t *testing.T) {
	p := Preferences{QuietStart: "22:00", QuietEnd: "07:00"}
	w, _ := p.QuietWindow()

	// At 23:30 the window closes tomorrow morning.
	got := w.NextEnd(clock(23, 30))
	want := time.Date(2026, 8, 31, 7, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("NextEnd(23:30) = %v, want %v", got, want)
	}

	// At 03:00 the window closes later the same morning.
	got = w.NextEnd(clock(3, 0))
	want = time.Date(2026, 8, 30, 7, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("NextEnd(03:00) = %v, want %v", got, want)
	}
}

func TestAllowsEventType(t *testing.T) {
	open := Preferences{}
	if !open.AllowsEventType("price_drop") {
		t.Error("empty allow-list should allow everything")
	}

	limited := Preferences{AllowedEventTypes: []string{"new_listing", "price_drop"}}
	if !limited.AllowsEventType("price_drop") {
		t.Error("listed type should be allowed")
	}
	if limited.AllowsEventType("open_house") {
		t.Error("unlisted type should be filtered")
	}
	if !limited.AllowsEventType("PRICE_DROP") {
		t.Error("allow-list comparison should be case-insensitive")
	}
}

func TestChannelEnabled(t *testing.T) {
	p := Preferences{PushEnabled: true, SMSEnabled: true}
	if !p.ChannelEnabled(ChannelPush) || !p.ChannelEnabled(ChannelSMS) {
		t.Error("enabled channels should report true")
	}
	if p.ChannelEnabled(ChannelEmail) {
		t.Error("disabled channel should report false")
	}
	if p.ChannelEnabled("carrier_pigeon") {
		t.Error("unknown channel should report false")
	}
}

func TestDefaultPreferences(t *testing.T) {
	p := Default("u1")
	if !p.PushEnabled || !p.EmailEnabled || p.SMSEnabled {
		t.Error("defaults should enable push and email only")
	}
	if !p.ThrottlingEnabled || p.MaxDailyNotifications != 10 {
		t.Errorf("defaults should throttle at 10/day, got %d", p.MaxDailyNotifications)
	}
	if _, ok := p.QuietWindow(); !ok {
		t.Error("defaults should carry a quiet window")
	}
}
