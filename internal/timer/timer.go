// Package timer provides cancellable one-shot timer handles. Every
// debounce in the client is owned by an explicit handle so it can be
// stopped on the owning scope's teardown and never fires against stale
// state.
package timer

import (
	"sync"
	"time"
)

// Debouncer runs a function once the configured duration has elapsed
// since the last Trigger call. Each Trigger resets the timer (debounce,
// not throttle).
type Debouncer struct {
	mu sync.Mutex
	d  time.Duration
	t  *time.Timer
}

func NewDebouncer(d time.Duration) *Debouncer {
	return &Debouncer{d: d}
}

// Trigger schedules fn to run after the debounce interval, replacing
// any previously scheduled function.
func (db *Debouncer) Trigger(fn func()) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.t != nil {
		db.t.Stop()
	}
	db.t = time.AfterFunc(db.d, fn)
}

// Stop cancels the pending function, if any.
func (db *Debouncer) Stop() {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.t != nil {
		db.t.Stop()
		db.t = nil
	}
}
