package notify

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/homescout/alert-engine/internal/event"
	"github.com/homescout/alert-engine/internal/prefs"
	"github.com/homescout/alert-engine/internal/search"
)

// memStore is an in-memory Store for router tests.
type memStore struct {
	reservations map[string]bool
	lastNotified map[int64]time.Time
	releases     int
}

func newMemStore() *memStore {
	return &memStore{
		reservations: make(map[string]bool),
		lastNotified: make(map[int64]time.Time),
	}
}

func (s *memStore) sendKey(userID, listingID string, searchID int64, eventType string) string {
	return fmt.Sprintf("%s|%s|%d|%s", userID, listingID, searchID, eventType)
}

func (s *memStore) RecordSend(ctx context.Context, userID, listingID string, searchID int64, eventType string) (bool, error) {
	k := s.sendKey(userID, listingID, searchID, eventType)
	if s.reservations[k] {
		return false, nil
	}
	s.reservations[k] = true
	return true, nil
}

func (s *memStore) ReleaseSend(ctx context.Context, userID, listingID string, searchID int64, eventType string) error {
	delete(s.reservations, s.sendKey(userID, listingID, searchID, eventType))
	s.releases++
	return nil
}

func (s *memStore) SetLastNotified(ctx context.Context, searchID int64, at time.Time) error {
	s.lastNotified[searchID] = at
	return nil
}

// fakeSender records sends and optionally fails.
type fakeSender struct {
	sent []Notification
	err  error
}

func (f *fakeSender) Send(ctx context.Context, userID string, n Notification) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, n)
	return nil
}

type fixedPrefs struct {
	p prefs.Preferences
}

func (f fixedPrefs) Lookup(ctx context.Context, userID string, searchID int64) (prefs.Preferences, error) {
	return f.p, nil
}

func allChannels() prefs.Preferences {
	return prefs.Preferences{UserID: "u1", PushEnabled: true, EmailEnabled: true, SMSEnabled: true}
}

func testSearch() search.Search {
	return search.Search{ID: 7, UserID: "u1", Name: "Downtown condos"}
}

func testEvent() event.Event {
	return event.Event{
		ListingID: "mls-1",
		Type:      event.TypeNewListing,
		Listing:   event.Listing{ID: "mls-1", Address: "100 Main St", City: "Austin", Price: 500_000},
	}
}

func TestDispatchDeliversAllEnabledChannels(t *testing.T) {
	store := newMemStore()
	push := &fakeSender{}
	email := &fakeSender{}
	r := NewRouter(store, map[string]Sender{
		prefs.ChannelPush:  push,
		prefs.ChannelEmail: email,
	}, nil)

	res, err := r.Dispatch(context.Background(), fixedPrefs{allChannels()}, testSearch(), testEvent(), OriginDirect)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if !res.Delivered || len(res.Channels) != 2 {
		t.Fatalf("Result = %+v, want delivery on push and email", res)
	}
	if len(push.sent) != 1 || len(email.sent) != 1 {
		t.Errorf("sends = %d push / %d email, want 1 each", len(push.sent), len(email.sent))
	}
	if _, ok := store.lastNotified[7]; !ok {
		t.Error("successful delivery should update last_notified_at")
	}
}

func TestDispatchChannelIndependence(t *testing.T) {
	store := newMemStore()
	push := &fakeSender{err: errors.New("fcm unavailable")}
	email := &fakeSender{}
	r := NewRouter(store, map[string]Sender{
		prefs.ChannelPush:  push,
		prefs.ChannelEmail: email,
	}, nil)

	res, err := r.Dispatch(context.Background(), fixedPrefs{allChannels()}, testSearch(), testEvent(), OriginDirect)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if !res.Delivered {
		t.Fatal("one failing channel must not sink the others")
	}
	if len(res.Channels) != 1 || res.Channels[0] != prefs.ChannelEmail {
		t.Errorf("Channels = %v, want [email]", res.Channels)
	}
	if res.Attempted != 2 {
		t.Errorf("Attempted = %d, want 2", res.Attempted)
	}
}

func TestDispatchAllChannelsFailReleasesReservation(t *testing.T) {
	store := newMemStore()
	r := NewRouter(store, map[string]Sender{
		prefs.ChannelPush: &fakeSender{err: errors.New("down")},
	}, nil)
	p := prefs.Preferences{UserID: "u1", PushEnabled: true}

	res, err := r.Dispatch(context.Background(), fixedPrefs{p}, testSearch(), testEvent(), OriginDirect)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if res.Delivered || res.Attempted != 1 {
		t.Fatalf("Result = %+v, want failed single attempt", res)
	}
	if store.releases != 1 {
		t.Error("total failure should release the idempotency reservation")
	}

	// A retry after the failure can redeliver.
	r2 := NewRouter(store, map[string]Sender{prefs.ChannelPush: &fakeSender{}}, nil)
	res, err = r2.Dispatch(context.Background(), fixedPrefs{p}, testSearch(), testEvent(), OriginRequeued)
	if err != nil {
		t.Fatalf("retry Dispatch() error = %v", err)
	}
	if !res.Delivered {
		t.Errorf("retry Result = %+v, want delivered", res)
	}
}

func TestDispatchDuplicateSuppressed(t *testing.T) {
	store := newMemStore()
	sender := &fakeSender{}
	r := NewRouter(store, map[string]Sender{prefs.ChannelPush: sender}, nil)
	p := prefs.Preferences{UserID: "u1", PushEnabled: true}

	if _, err := r.Dispatch(context.Background(), fixedPrefs{p}, testSearch(), testEvent(), OriginDirect); err != nil {
		t.Fatalf("first Dispatch() error = %v", err)
	}
	res, err := r.Dispatch(context.Background(), fixedPrefs{p}, testSearch(), testEvent(), OriginDirect)
	if err != nil {
		t.Fatalf("second Dispatch() error = %v", err)
	}
	if res.Skip != SkipDuplicate {
		t.Errorf("Skip = %q, want duplicate", res.Skip)
	}
	if len(sender.sent) != 1 {
		t.Errorf("sends = %d, want exactly 1", len(sender.sent))
	}
}

func TestDispatchEventTypeAllowList(t *testing.T) {
	store := newMemStore()
	sender := &fakeSender{}
	r := NewRouter(store, map[string]Sender{prefs.ChannelPush: sender}, nil)
	p := prefs.Preferences{UserID: "u1", PushEnabled: true, AllowedEventTypes: []string{"price_drop"}}

	res, err := r.Dispatch(context.Background(), fixedPrefs{p}, testSearch(), testEvent(), OriginDirect)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if res.Skip != SkipEventType {
		t.Errorf("Skip = %q, want event_type_filtered", res.Skip)
	}
	if len(sender.sent) != 0 {
		t.Error("filtered event must not reach any channel")
	}
	if len(store.reservations) != 0 {
		t.Error("filtered event must not reserve the idempotency key")
	}
}

func TestDispatchQuietHoursOriginGating(t *testing.T) {
	store := newMemStore()
	sender := &fakeSender{}
	r := NewRouter(store, map[string]Sender{prefs.ChannelPush: sender}, nil)
	r.now = func() time.Time { return time.Date(2026, 8, 30, 23, 30, 0, 0, time.UTC) }
	p := prefs.Preferences{UserID: "u1", PushEnabled: true, QuietStart: "22:00", QuietEnd: "07:00"}

	// Direct path re-checks quiet hours.
	res, err := r.Dispatch(context.Background(), fixedPrefs{p}, testSearch(), testEvent(), OriginDirect)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if res.Skip != SkipQuietHours {
		t.Errorf("direct Skip = %q, want quiet_hours", res.Skip)
	}

	// Requeued deliveries were just revalidated and must not be gated twice.
	res, err = r.Dispatch(context.Background(), fixedPrefs{p}, testSearch(), testEvent(), OriginRequeued)
	if err != nil {
		t.Fatalf("requeued Dispatch() error = %v", err)
	}
	if !res.Delivered {
		t.Errorf("requeued Result = %+v, want delivered", res)
	}
}

func TestDispatchNoConfiguredChannels(t *testing.T) {
	store := newMemStore()
	r := NewRouter(store, nil, nil)

	res, err := r.Dispatch(context.Background(), fixedPrefs{allChannels()}, testSearch(), testEvent(), OriginDirect)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if res.Skip != SkipNoChannels || res.Delivered {
		t.Errorf("Result = %+v, want no_channels skip", res)
	}
	if len(store.reservations) != 0 {
		t.Error("no-channel dispatch must release the idempotency key")
	}
}

func TestBuildNotification(t *testing.T) {
	n := Build(testSearch(), testEvent())
	if n.UserID != "u1" || n.SearchID != 7 || n.ListingID != "mls-1" {
		t.Errorf("Build() = %+v, want search and listing identity carried over", n)
	}
	if n.EventType != "new_listing" || n.Price != 500_000 {
		t.Errorf("Build() = %+v, want event context carried over", n)
	}
}
