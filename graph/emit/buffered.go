package emit

import "sync"

// BufferedEmitter keeps every event in memory, grouped by run, for
// later inspection. Intended for tests, debugging, and short-lived
// runs; memory grows with event volume.
type BufferedEmitter struct {
	mu     sync.RWMutex
	events map[string][]Event
}

// NewBufferedEmitter creates an empty buffered emitter.
func NewBufferedEmitter() *BufferedEmitter {
	return &BufferedEmitter{events: make(map[string][]Event)}
}

// Emit stores the event.
func (b *BufferedEmitter) Emit(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events[event.Run] = append(b.events[event.Run], event)
}

// History returns the events recorded for a run, in emit order.
func (b *BufferedEmitter) History(runID string) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Event, len(b.events[runID]))
	copy(out, b.events[runID])
	return out
}

// Filter selects events from a run's history. Zero-valued fields
// match everything; set fields are ANDed together.
type Filter struct {
	Node    string
	Msg     string
	MinStep int
	MaxStep int // 0 means no upper bound
}

// HistoryWhere returns the run's events matching the filter.
func (b *BufferedEmitter) HistoryWhere(runID string, f Filter) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []Event
	for _, e := range b.events[runID] {
		if f.Node != "" && e.Node != f.Node {
			continue
		}
		if f.Msg != "" && e.Msg != f.Msg {
			continue
		}
		if e.Step < f.MinStep {
			continue
		}
		if f.MaxStep > 0 && e.Step > f.MaxStep {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Clear drops the stored events for one run.
func (b *BufferedEmitter) Clear(runID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.events, runID)
}

// ClearAll drops everything.
func (b *BufferedEmitter) ClearAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = make(map[string][]Event)
}
