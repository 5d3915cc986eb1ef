package fs

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// EventType represents the type of filesystem event
type EventType int

const (
	EventCreate EventType = iota
	EventWrite
	EventDelete
)

// Default quiet period before a batch of changes is flushed.
// Editors often save in several steps (truncate, write, chmod), 300ms folds
// those into one restart.
const DefaultDebounceDelay = 300 * time.Millisecond

// String returns the string representation of an EventType
func (e EventType) String() string {
	switch e {
	case EventCreate:
		return "create"
	case EventWrite:
		return "write"
	case EventDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Change is one path in a flushed batch, relative to the watched root
type Change struct {
	Path string
	Type EventType
}

// debouncer collects filesystem events and flushes them as one batch once no
// new event has arrived for the delay period. A path seen several times in a
// window is reported once, with CREATE and DELETE taking precedence over WRITE.
type debouncer struct {
	pending  map[string]EventType
	timer    *time.Timer
	mu       sync.Mutex
	delay    time.Duration
	onFlush  func(batch []Change)
	stopping atomic.Bool // Prevents new events during shutdown
}

// newDebouncer creates a debouncer with specified delay
func newDebouncer(delay time.Duration, onFlush func(batch []Change)) *debouncer {
	if delay <= 0 {
		delay = DefaultDebounceDelay
	}
	return &debouncer{
		pending: make(map[string]EventType),
		delay:   delay,
		onFlush: onFlush,
	}
}

// Queue adds an event to the current batch and restarts the quiet period.
// Returns false if the debouncer is stopping and the event was ignored.
func (d *debouncer) Queue(path string, eventType EventType) bool {
	// Check if stopping before acquiring lock (fast path)
	if d.stopping.Load() {
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	// Double-check after acquiring lock (prevents race with Stop)
	if d.stopping.Load() {
		return false
	}

	if prev, ok := d.pending[path]; !ok || prev == EventWrite {
		d.pending[path] = eventType
	} else if eventType != EventWrite {
		d.pending[path] = eventType
	}

	if d.timer == nil {
		d.timer = time.AfterFunc(d.delay, d.onTimer)
	} else if !d.timer.Reset(d.delay) {
		// Timer already fired; onTimer will pick this event up or has
		// already swapped the map, in which case a new timer is needed.
		d.timer = time.AfterFunc(d.delay, d.onTimer)
	}
	return true
}

// onTimer fires when the quiet period expires
func (d *debouncer) onTimer() {
	d.mu.Lock()
	if len(d.pending) == 0 || d.stopping.Load() {
		d.mu.Unlock()
		return
	}
	batch := make([]Change, 0, len(d.pending))
	for path, eventType := range d.pending {
		batch = append(batch, Change{Path: path, Type: eventType})
	}
	d.pending = make(map[string]EventType)
	d.timer = nil
	d.mu.Unlock()

	sort.Slice(batch, func(i, j int) bool { return batch[i].Path < batch[j].Path })
	d.onFlush(batch)
}

// Stop cancels the pending batch and prevents new events from being queued.
// After Stop returns, no more batches will be flushed.
func (d *debouncer) Stop() {
	// Set stopping flag first to prevent new events
	d.stopping.Store(true)

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.pending = make(map[string]EventType)
}

// pendingCount returns the number of paths waiting in the current batch (for testing)
func (d *debouncer) pendingCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}
