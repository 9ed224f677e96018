package throttle

import (
	"sync"
	"time"
)

// importWindow is the global bulk-import detector: a rolling count of
// recent events plus a batch-mode flag. When the window already holds more
// than the threshold, the next arrival switches batch mode on for a fixed
// period, deferring further notifications instead of storming users during
// backfills and resyncs.
type importWindow struct {
	mu         sync.Mutex
	arrivals   []time.Time
	batchUntil time.Time
}

func newImportWindow() *importWindow {
	return &importWindow{}
}

// Observe records one inbound event. The activating event itself is not
// blocked; batch mode applies from the following arrival.
func (w *importWindow) Observe(now time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.trim(now)
	if len(w.arrivals) > bulkThreshold {
		w.batchUntil = now.Add(batchModeDuration)
	}
	w.arrivals = append(w.arrivals, now)
}

// BatchMode reports whether batch mode is in effect.
func (w *importWindow) BatchMode(now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return now.Before(w.batchUntil)
}

func (w *importWindow) trim(now time.Time) {
	cutoff := now.Add(-bulkWindow)
	i := 0
	for i < len(w.arrivals) && !w.arrivals[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.arrivals = append(w.arrivals[:0], w.arrivals[i:]...)
	}
}
