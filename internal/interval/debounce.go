package interval

import (
	"sync"
	"time"
)

// Debouncer groups rapid successive calls into a single callback after a
// quiet period.
//
// Thread-safety: All methods are safe for concurrent use. The callback is
// never run concurrently with itself by the debouncer.
type Debouncer struct {
	mu       sync.Mutex
	delay    time.Duration
	timer    *time.Timer
	pending  bool
	seq      uint64 // sequence number to detect stale callbacks
	callback func()
	running  sync.Mutex
}

// NewDebouncer creates a debouncer that runs callback once no call has
// been made for delay.
func NewDebouncer(delay time.Duration, callback func()) *Debouncer {
	return &Debouncer{
		delay:    delay,
		callback: callback,
	}
}

// Call schedules the callback, restarting the quiet period.
func (d *Debouncer) Call() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.pending = true
	d.seq++
	currentSeq := d.seq

	if d.timer != nil {
		d.timer.Stop()
	}

	d.timer = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		// Only execute if this is still the current scheduled callback
		if d.pending && d.seq == currentSeq && d.callback != nil {
			d.pending = false
			d.timer = nil
			d.mu.Unlock()
			d.run()
		} else {
			d.mu.Unlock()
		}
	})
}

// CallImmediate runs the callback now if a call is pending, canceling the
// scheduled one.
func (d *Debouncer) CallImmediate() {
	d.mu.Lock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.seq++

	if d.pending && d.callback != nil {
		d.pending = false
		d.mu.Unlock()
		d.run()
	} else {
		d.mu.Unlock()
	}
}

// Cancel drops any pending call.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.seq++
	d.pending = false
}

// SetDelay changes the quiet period used by subsequent calls.
func (d *Debouncer) SetDelay(delay time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.delay = delay
}

// isPending reports whether a call is scheduled.
func (d *Debouncer) isPending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}

func (d *Debouncer) run() {
	d.running.Lock()
	defer d.running.Unlock()
	d.callback()
}
