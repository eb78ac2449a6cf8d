package service

import (
	"sync"
	"time"
)

// DefaultKeywordDebounce is the quiet period before keyword input is applied.
const DefaultKeywordDebounce = 300 * time.Millisecond

// Debouncer commits the latest pushed value once no new value has arrived for
// the configured delay.
type Debouncer struct {
	mu      sync.Mutex
	delay   time.Duration
	commit  func(string)
	timer   *time.Timer
	pending string
	hasNext bool
	stopped bool
	gen     uint64
}

// NewDebouncer returns a debouncer that calls commit after delay of quiet.
func NewDebouncer(delay time.Duration, commit func(string)) *Debouncer {
	if delay <= 0 {
		delay = DefaultKeywordDebounce
	}
	return &Debouncer{delay: delay, commit: commit}
}

// Push records value and restarts the quiet period.
func (d *Debouncer) Push(value string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}

	d.pending = value
	d.hasNext = true
	d.gen++
	gen := d.gen
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, func() { d.fire(gen) })
}

// Pending returns the value waiting to be committed, or the last pushed one.
func (d *Debouncer) Pending() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}

// Reset drops any pending commit and sets the displayed value.
func (d *Debouncer) Reset(value string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.pending = value
	d.hasNext = false
	d.gen++
}

// Flush commits the pending value immediately.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	gen := d.gen
	d.mu.Unlock()
	d.fire(gen)
}

// Stop cancels any pending commit. Later pushes are ignored.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	d.hasNext = false
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// fire commits only if no push happened after the timer for gen was armed.
func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	if d.stopped || !d.hasNext || gen != d.gen {
		d.mu.Unlock()
		return
	}
	value := d.pending
	d.hasNext = false
	d.timer = nil
	d.mu.Unlock()

	if d.commit != nil {
		d.commit(value)
	}
}
