package playground

import (
	"sync"
	"time"

	"k8s.io/utils/clock"
)

// DefaultDebounce is the delay between the last edit and the automatic recomposition.
const DefaultDebounce = time.Second

// Debouncer collapses a burst of triggers into one call of fn, made once
// interval has passed without a new trigger.
type Debouncer struct {
	clock    clock.WithDelayedExecution
	interval time.Duration
	fn       func()

	mu    sync.Mutex
	timer clock.Timer
	gen   uint64
}

// NewDebouncer creates a debouncer. A nil clock uses the wall clock.
func NewDebouncer(clk clock.WithDelayedExecution, interval time.Duration, fn func()) *Debouncer {
	if clk == nil {
		clk = clock.RealClock{}
	}
	if interval <= 0 {
		interval = DefaultDebounce
	}
	return &Debouncer{clock: clk, interval: interval, fn: fn}
}

// Trigger cancels any pending call and schedules a new one.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopLocked()
	gen := d.gen
	d.timer = d.clock.AfterFunc(d.interval, func() { d.fire(gen) })
}

// Flush cancels the pending call, if any, and calls fn right away.
func (d *Debouncer) Flush() {
	d.Cancel()
	d.fn()
}

// Cancel drops the pending call.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked()
}

// Pending reports whether a call is scheduled.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

// stopLocked bumps the generation so a timer that already fired but has not yet
// acquired the lock becomes a no-op.
func (d *Debouncer) stopLocked() {
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	if gen != d.gen {
		d.mu.Unlock()
		return
	}
	// The timer is not stopped here: a fake clock runs this callback while holding its own lock.
	d.timer = nil
	d.gen++
	d.mu.Unlock()

	d.fn()
}
