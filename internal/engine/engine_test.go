package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/homescout/alert-engine/internal/event"
	"github.com/homescout/alert-engine/internal/match"
	"github.com/homescout/alert-engine/internal/notify"
	"github.com/homescout/alert-engine/internal/prefs"
	"github.com/homescout/alert-engine/internal/queue"
	"github.com/homescout/alert-engine/internal/search"
	"github.com/homescout/alert-engine/internal/throttle"
)

type fakeSearches struct {
	searches []search.Search
	err      error
}

func (f fakeSearches) ActiveInstant(ctx context.Context) ([]search.Search, error) {
	return f.searches, f.err
}

type fakeThrottle struct {
	d        throttle.Decision
	err      error
	observed int
}

func (f *fakeThrottle) ObserveEvent() { f.observed++ }

func (f *fakeThrottle) Decide(ctx context.Context, pl throttle.PrefLookup, userID string, searchID int64) (throttle.Decision, error) {
	return f.d, f.err
}

type fakeRouter struct {
	res notify.Result
	err error
}

func (f fakeRouter) Dispatch(ctx context.Context, pl notify.PrefLookup, s search.Search, ev event.Event, origin notify.Origin) (notify.Result, error) {
	return f.res, f.err
}

type fakeQueue struct {
	items []queue.Item
	err   error
}

func (f *fakeQueue) Enqueue(ctx context.Context, item queue.Item) error {
	if f.err != nil {
		return f.err
	}
	f.items = append(f.items, item)
	return nil
}

type staticPrefs struct {
	p prefs.Preferences
}

func (f staticPrefs) Lookup(ctx context.Context, userID string, searchID int64) (prefs.Preferences, error) {
	return f.p, nil
}

var handleAt = time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

func instantSearch(id int64, userID string) search.Search {
	return search.Search{
		ID:        id,
		UserID:    userID,
		Name:      "any listing",
		IsActive:  true,
		Frequency: search.FrequencyInstant,
		CreatedAt: handleAt.Add(-30 * 24 * time.Hour),
	}
}

func listingEvent() event.Event {
	return event.Event{
		ListingID: "mls-1",
		Type:      event.TypeNewListing,
		Listing: event.Listing{
			ID:         "mls-1",
			City:       "Austin",
			Status:     "Active",
			Price:      600_000,
			ModifiedAt: handleAt.Add(-time.Minute),
		},
	}
}

func testEngine(src search.Source, th Throttle, router Dispatcher, q Enqueuer, p prefs.Preferences) *Engine {
	e := New(src, match.New(nil, nil), th, router, q, staticPrefs{p}, nil)
	e.now = func() time.Time { return handleAt }
	return e
}

func TestHandleEventDispatchesAllowedMatches(t *testing.T) {
	th := &fakeThrottle{d: throttle.Allow()}
	q := &fakeQueue{}
	e := testEngine(
		fakeSearches{searches: []search.Search{instantSearch(1, "u1"), instantSearch(2, "u2")}},
		th,
		fakeRouter{res: notify.Result{Delivered: true, Channels: []string{"push"}, Attempted: 1}},
		q,
		prefs.Preferences{},
	)

	sum, err := e.HandleEvent(context.Background(), listingEvent())
	if err != nil {
		t.Fatalf("HandleEvent() error = %v", err)
	}
	want := Summary{Searches: 2, Matched: 2, Dispatched: 2}
	if sum != want {
		t.Errorf("Summary = %+v, want %+v", sum, want)
	}
	if th.observed != 1 {
		t.Errorf("ObserveEvent calls = %d, want 1", th.observed)
	}
	if len(q.items) != 0 {
		t.Error("allowed matches must not reach the queue")
	}
}

func TestHandleEventParksThrottledMatch(t *testing.T) {
	resume := handleAt.Add(30 * time.Minute)
	q := &fakeQueue{}
	e := testEngine(
		fakeSearches{searches: []search.Search{instantSearch(1, "u1")}},
		&fakeThrottle{d: throttle.Blocked(throttle.ReasonDailyLimit, resume)},
		fakeRouter{},
		q,
		prefs.Preferences{},
	)

	sum, err := e.HandleEvent(context.Background(), listingEvent())
	if err != nil {
		t.Fatalf("HandleEvent() error = %v", err)
	}
	if sum.Queued != 1 || sum.Dispatched != 0 {
		t.Fatalf("Summary = %+v, want 1 queued", sum)
	}
	it := q.items[0]
	if it.Reason != throttle.ReasonDailyLimit || !it.RetryAfter.Equal(resume) {
		t.Errorf("queued item = %+v, want daily_limit with throttle resume time", it)
	}
	if it.MaxAttempts != queue.DefaultMaxAttempts || it.MatchType != "new_listing" {
		t.Errorf("queued item = %+v, want default budget and event type carried", it)
	}
}

func TestHandleEventQuietHoursSkipParksWithResume(t *testing.T) {
	// The router's own quiet gate fired; the engine parks until the window
	// closes per the owner's preferences.
	q := &fakeQueue{}
	e := testEngine(
		fakeSearches{searches: []search.Search{instantSearch(1, "u1")}},
		&fakeThrottle{d: throttle.Allow()},
		fakeRouter{res: notify.Result{Skip: notify.SkipQuietHours}},
		q,
		prefs.Preferences{QuietStart: "22:00", QuietEnd: "07:00"},
	)

	sum, err := e.HandleEvent(context.Background(), listingEvent())
	if err != nil {
		t.Fatalf("HandleEvent() error = %v", err)
	}
	if sum.Queued != 1 {
		t.Fatalf("Summary = %+v, want 1 queued", sum)
	}
	it := q.items[0]
	if it.Reason != throttle.ReasonQuietHours {
		t.Errorf("Reason = %s, want quiet_hours", it.Reason)
	}
	want := time.Date(2026, 8, 31, 7, 0, 0, 0, time.UTC)
	if !it.RetryAfter.Equal(want) {
		t.Errorf("RetryAfter = %v, want window end %v", it.RetryAfter, want)
	}
}

func TestHandleEventSkipsWithoutQueueing(t *testing.T) {
	for _, skip := range []notify.SkipReason{notify.SkipDuplicate, notify.SkipEventType, notify.SkipNoChannels} {
		q := &fakeQueue{}
		e := testEngine(
			fakeSearches{searches: []search.Search{instantSearch(1, "u1")}},
			&fakeThrottle{d: throttle.Allow()},
			fakeRouter{res: notify.Result{Skip: skip}},
			q,
			prefs.Preferences{},
		)

		sum, err := e.HandleEvent(context.Background(), listingEvent())
		if err != nil {
			t.Fatalf("%s: HandleEvent() error = %v", skip, err)
		}
		if sum.Skipped != 1 || sum.Queued != 0 {
			t.Errorf("%s: Summary = %+v, want 1 skipped 0 queued", skip, sum)
		}
		if len(q.items) != 0 {
			t.Errorf("%s: skip must not enqueue", skip)
		}
	}
}

func TestHandleEventAllChannelsFailedParks(t *testing.T) {
	q := &fakeQueue{}
	e := testEngine(
		fakeSearches{searches: []search.Search{instantSearch(1, "u1")}},
		&fakeThrottle{d: throttle.Allow()},
		fakeRouter{res: notify.Result{Delivered: false, Attempted: 2}},
		q,
		prefs.Preferences{},
	)

	sum, err := e.HandleEvent(context.Background(), listingEvent())
	if err != nil {
		t.Fatalf("HandleEvent() error = %v", err)
	}
	if sum.Queued != 1 {
		t.Fatalf("Summary = %+v, want 1 queued", sum)
	}
	it := q.items[0]
	if it.Reason != throttle.ReasonSystem {
		t.Errorf("Reason = %s, want system", it.Reason)
	}
	if !it.RetryAfter.Equal(handleAt.Add(queue.Backoff(0))) {
		t.Errorf("RetryAfter = %v, want default backoff", it.RetryAfter)
	}
}

func TestHandleEventThrottleErrorDefersNotDrops(t *testing.T) {
	q := &fakeQueue{}
	e := testEngine(
		fakeSearches{searches: []search.Search{instantSearch(1, "u1")}},
		&fakeThrottle{err: errors.New("db down")},
		fakeRouter{},
		q,
		prefs.Preferences{},
	)

	sum, err := e.HandleEvent(context.Background(), listingEvent())
	if err != nil {
		t.Fatalf("HandleEvent() error = %v", err)
	}
	if sum.Queued != 1 {
		t.Fatalf("Summary = %+v, want unreadable throttle state to defer", sum)
	}
}

func TestHandleEventSearchLoadFailure(t *testing.T) {
	e := testEngine(
		fakeSearches{err: errors.New("db down")},
		&fakeThrottle{d: throttle.Allow()},
		fakeRouter{},
		&fakeQueue{},
		prefs.Preferences{},
	)
	if _, err := e.HandleEvent(context.Background(), listingEvent()); err == nil {
		t.Fatal("HandleEvent() error = nil, want load failure surfaced")
	}
}

func TestHandleEventNonMatchingSearchIgnored(t *testing.T) {
	s := instantSearch(1, "u1")
	s.Filters.PriceMax = 100_000 // listing is 600k
	e := testEngine(
		fakeSearches{searches: []search.Search{s}},
		&fakeThrottle{d: throttle.Allow()},
		fakeRouter{res: notify.Result{Delivered: true}},
		&fakeQueue{},
		prefs.Preferences{},
	)

	sum, err := e.HandleEvent(context.Background(), listingEvent())
	if err != nil {
		t.Fatalf("HandleEvent() error = %v", err)
	}
	if sum.Matched != 0 || sum.Dispatched != 0 {
		t.Errorf("Summary = %+v, want no matches", sum)
	}
}
