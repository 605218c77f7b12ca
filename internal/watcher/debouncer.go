package watcher

import (
	"sync"
	"time"
)

// debouncer collects events and flushes them as one batch once no new event
// has arrived for the configured delay
type debouncer struct {
	delay time.Duration
	flush func([]Event)

	mu      sync.Mutex
	timer   *time.Timer
	gen     uint64 // bumped on every add; only the newest timer may flush
	pending []Event
	index   map[string]int
	stopped bool

	// flushMu keeps batches from overlapping
	flushMu sync.Mutex
}

func newDebouncer(delay time.Duration, flush func([]Event)) *debouncer {
	return &debouncer{
		delay: delay,
		flush: flush,
		index: make(map[string]int),
	}
}

// add records ev and restarts the quiet period
func (d *debouncer) add(ev Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}

	if i, ok := d.index[ev.Path]; ok {
		prev := d.pending[i]
		// A file created and then written within one batch is still new
		if !(prev.Kind == Created && ev.Kind == Modified) {
			prev.Kind = ev.Kind
		}
		prev.Timestamp = ev.Timestamp
		d.pending[i] = prev
	} else {
		d.index[ev.Path] = len(d.pending)
		d.pending = append(d.pending, ev)
	}

	// A fired timer re-arms on Reset, so each add starts a new one.
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.timer = time.AfterFunc(d.delay, func() { d.fire(gen) })
}

func (d *debouncer) fire(gen uint64) {
	d.flushMu.Lock()
	defer d.flushMu.Unlock()

	d.mu.Lock()
	if gen != d.gen {
		d.mu.Unlock()
		return
	}
	batch := d.pending
	d.pending = nil
	d.index = make(map[string]int)
	d.timer = nil
	stopped := d.stopped
	d.mu.Unlock()

	if stopped || len(batch) == 0 {
		return
	}
	d.flush(batch)
}

// debouncing reports whether a batch is pending
func (d *debouncer) debouncing() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending) > 0
}

// stop discards pending events and waits for a running flush to return
func (d *debouncer) stop() {
	d.mu.Lock()
	d.stopped = true
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.pending = nil
	d.mu.Unlock()

	d.flushMu.Lock()
	defer d.flushMu.Unlock()
}
