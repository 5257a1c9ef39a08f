// Package store provides persistence backends for pipeline run state:
// per-step history plus named checkpoints for resumption.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a run or checkpoint does not exist.
var ErrNotFound = errors.New("not found")

// Store persists pipeline state during execution.
//
// The engine saves the merged state after every step, keyed by run ID
// and step number. Named checkpoints label a state so a run can be
// resumed later under a new run ID.
//
// Type parameter S is the state type; durable backends serialize it
// as JSON, so it must be JSON-marshalable.
type Store[S any] interface {
	// SaveStep persists the state produced by one execution step.
	// Saving the same (runID, step) twice overwrites.
	SaveStep(ctx context.Context, runID string, step int, nodeID string, state S) error

	// LoadLatest returns the highest-numbered step saved for a run,
	// or ErrNotFound if the run has no history.
	LoadLatest(ctx context.Context, runID string) (state S, step int, err error)

	// SaveCheckpoint labels a state snapshot. An existing label is
	// overwritten.
	SaveCheckpoint(ctx context.Context, label string, state S, step int) error

	// LoadCheckpoint returns a labeled snapshot, or ErrNotFound.
	LoadCheckpoint(ctx context.Context, label string) (state S, step int, err error)

	// Close releases backend resources. Safe to call more than once.
	Close() error
}

// StepRecord is one persisted execution step.
type StepRecord[S any] struct {
	Step   int    `json:"step"`
	NodeID string `json:"node_id"`
	State  S      `json:"state"`
}
