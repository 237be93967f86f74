package service

import (
	"sync"
	"time"
)

// Debouncer coalesces rapid values: apply runs with the latest value once
// no new value has arrived for the quiet period, and only when that value
// differs from the last one applied.
type Debouncer struct {
	quiet time.Duration
	apply func(string)

	mu      sync.Mutex
	timer   *time.Timer
	seq     uint64
	pending string
	last    string
	stopped bool
}

func NewDebouncer(quiet time.Duration, initial string, apply func(string)) *Debouncer {
	return &Debouncer{quiet: quiet, apply: apply, last: initial}
}

func (d *Debouncer) Trigger(v string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.seq++
	seq := d.seq
	d.pending = v

	if d.quiet <= 0 {
		go d.fire(seq)
		return
	}
	d.timer = time.AfterFunc(d.quiet, func() { d.fire(seq) })
}

// Flush applies a pending value immediately.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	seq := d.seq
	d.mu.Unlock()
	d.fire(seq)
}

// Stop drops any pending value. Later triggers are ignored.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	d.seq++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

func (d *Debouncer) fire(seq uint64) {
	d.mu.Lock()
	if d.stopped || seq != d.seq || d.pending == d.last {
		d.mu.Unlock()
		return
	}
	v := d.pending
	d.last = v
	d.mu.Unlock()

	d.apply(v)
}
