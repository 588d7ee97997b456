package search

import (
	"sync"
	"time"
)

// stopper is the part of *time.Timer the debouncer needs.
type stopper interface {
	Stop() bool
}

// afterFunc schedules f after d. It matches time.AfterFunc so tests can
// substitute a fake clock.
type afterFunc func(d time.Duration, f func()) stopper

func realAfterFunc(d time.Duration, f func()) stopper {
	return time.AfterFunc(d, f)
}

// Debouncer runs the most recently triggered function once calls have
// stopped for the configured delay. Each Trigger replaces the pending timer;
// a timer that fires after being replaced does nothing.
type Debouncer struct {
	mu        sync.Mutex
	delay     time.Duration
	afterFunc afterFunc
	pending   stopper
	seq       uint64
	stopped   bool
}

// NewDebouncer creates a Debouncer with the given quiet period.
func NewDebouncer(delay time.Duration) *Debouncer {
	return newDebouncer(delay, realAfterFunc)
}

func newDebouncer(delay time.Duration, after afterFunc) *Debouncer {
	return &Debouncer{delay: delay, afterFunc: after}
}

// Trigger (re)starts the quiet period; fn runs when it elapses unless
// Trigger or Stop is called first.
func (d *Debouncer) Trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	if d.pending != nil {
		d.pending.Stop()
	}
	d.seq++
	seq := d.seq
	d.pending = d.afterFunc(d.delay, func() {
		d.mu.Lock()
		current := seq == d.seq && !d.stopped
		if current {
			d.pending = nil
		}
		d.mu.Unlock()
		if current {
			fn()
		}
	})
}

// Cancel drops the pending call, if any. The debouncer stays usable.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancelLocked()
}

// Stop drops the pending call and ignores later triggers.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancelLocked()
	d.stopped = true
}

func (d *Debouncer) cancelLocked() {
	if d.pending != nil {
		d.pending.Stop()
		d.pending = nil
	}
	d.seq++
}
