package watcher

import (
	"sort"
	"sync"
	"time"
)

// Debouncer coalesces change events. A batch is emitted once no new event
// has arrived for the quiet window; events for the same path within a
// batch collapse to the latest one.
type Debouncer struct {
	delay  time.Duration
	output chan []ChangeEvent

	mutex   sync.Mutex
	pending map[string]ChangeEvent
	timer   *time.Timer
	stopped bool
}

// NewDebouncer creates a debouncer with the given quiet window.
func NewDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{
		delay:   delay,
		output:  make(chan []ChangeEvent, 16),
		pending: make(map[string]ChangeEvent),
	}
}

// Batches delivers coalesced batches, sorted by path.
func (d *Debouncer) Batches() <-chan []ChangeEvent {
	return d.output
}

// Add records an event and restarts the quiet window.
func (d *Debouncer) Add(event ChangeEvent) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.stopped {
		return
	}

	d.pending[event.Path] = event

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.Flush)
}

// Flush emits the pending events now. If the consumer is behind, the
// events stay pending and the window is restarted, so nothing is dropped.
func (d *Debouncer) Flush() {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.stopped || len(d.pending) == 0 {
		return
	}

	events := make([]ChangeEvent, 0, len(d.pending))
	for _, event := range d.pending {
		events = append(events, event)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Path < events[j].Path })

	select {
	case d.output <- events:
		d.pending = make(map[string]ChangeEvent)
	default:
		d.timer = time.AfterFunc(d.delay, d.Flush)
	}
}

// Stop discards pending events. No batch is emitted after Stop returns.
func (d *Debouncer) Stop() {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	d.pending = make(map[string]ChangeEvent)
}
