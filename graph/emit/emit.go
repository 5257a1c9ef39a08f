// Package emit defines the observability event stream produced during
// pipeline execution and the pluggable sinks that consume it.
package emit

// Event is one observability record from a pipeline run.
type Event struct {
	// Run identifies the pipeline run.
	Run string

	// Step is the 1-based execution step. Zero for run-level events
	// (run started, run complete, checkpoint saved).
	Step int

	// Node is the node that produced the event. Empty for run-level
	// events.
	Node string

	// Msg is a short human-readable description.
	Msg string

	// Attrs carries structured detail; common keys are "error",
	// "attempt", "label", "sources", "duration_ms".
	Attrs map[string]any
}

// Emitter consumes events during execution.
//
// Implementations must be safe for concurrent use and must not block
// or panic: a slow or failing sink should never stall a run.
type Emitter interface {
	Emit(event Event)
}

// NullEmitter discards every event. Use it when observability output
// is unwanted; it has zero overhead.
type NullEmitter struct{}

// NewNullEmitter returns an emitter that drops all events.
func NewNullEmitter() *NullEmitter { return &NullEmitter{} }

// Emit implements Emitter as a no-op.
func (*NullEmitter) Emit(Event) {}
