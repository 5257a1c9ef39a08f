package store

import (
	"context"
	"sync"
)

// MemStore keeps run history and checkpoints in process memory.
//
// Suited to tests and single-shot pipeline runs where durability is
// not needed. Thread-safe. History grows until the store is dropped.
type MemStore[S any] struct {
	mu          sync.RWMutex
	steps       map[string][]StepRecord[S]
	checkpoints map[string]checkpoint[S]
}

type checkpoint[S any] struct {
	state S
	step  int
}

// NewMemStore creates an empty in-memory store.
func NewMemStore[S any]() *MemStore[S] {
	return &MemStore[S]{
		steps:       make(map[string][]StepRecord[S]),
		checkpoints: make(map[string]checkpoint[S]),
	}
}

// SaveStep appends a step record to the run's history.
func (m *MemStore[S]) SaveStep(_ context.Context, runID string, step int, nodeID string, state S) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.steps[runID] = append(m.steps[runID], StepRecord[S]{Step: step, NodeID: nodeID, State: state})
	return nil
}

// LoadLatest returns the record with the highest step number, which
// handles out-of-order saves from parallel branches.
func (m *MemStore[S]) LoadLatest(_ context.Context, runID string) (S, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	records := m.steps[runID]
	if len(records) == 0 {
		var zero S
		return zero, 0, ErrNotFound
	}

	latest := records[0]
	for _, r := range records[1:] {
		if r.Step > latest.Step {
			latest = r
		}
	}
	return latest.State, latest.Step, nil
}

// SaveCheckpoint stores a labeled snapshot, overwriting any previous
// snapshot under the same label.
func (m *MemStore[S]) SaveCheckpoint(_ context.Context, label string, state S, step int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.checkpoints[label] = checkpoint[S]{state: state, step: step}
	return nil
}

// LoadCheckpoint returns a labeled snapshot.
func (m *MemStore[S]) LoadCheckpoint(_ context.Context, label string) (S, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cp, ok := m.checkpoints[label]
	if !ok {
		var zero S
		return zero, 0, ErrNotFound
	}
	return cp.state, cp.step, nil
}

// Runs returns the IDs of all runs with saved history.
func (m *MemStore[S]) Runs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, 0, len(m.steps))
	for id := range m.steps {
		out = append(out, id)
	}
	return out
}

// History returns the full step history for a run in save order.
func (m *MemStore[S]) History(runID string) []StepRecord[S] {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]StepRecord[S], len(m.steps[runID]))
	copy(out, m.steps[runID])
	return out
}

// Close is a no-op for the in-memory store.
func (m *MemStore[S]) Close() error { return nil }
