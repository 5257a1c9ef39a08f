package graph

import "errors"

// ErrMaxSteps is returned when a run exceeds its configured step limit.
var ErrMaxSteps = errors.New("run exceeded max steps")

// ErrNoRoute is returned when a node neither routes explicitly nor has
// a matching edge.
var ErrNoRoute = errors.New("no route from node")

// ErrAttemptsExhausted is returned when a node fails more times than
// its retry policy allows.
var ErrAttemptsExhausted = errors.New("retry attempts exhausted")

// ErrInvalidRetryPolicy is returned by RetryPolicy.Validate for
// non-sensical configurations.
var ErrInvalidRetryPolicy = errors.New("invalid retry policy")

// RunError is a structured engine error with a machine-readable code.
//
// Codes used by the engine:
//
//	NO_ENTRY, NODE_NOT_FOUND, DUPLICATE_NODE, MISSING_MERGE,
//	MISSING_STORE, MAX_STEPS, NO_ROUTE, NODE_TIMEOUT, STORE_ERROR,
//	CHECKPOINT_NOT_FOUND
type RunError struct {
	Code    string
	Message string
	Cause   error
}

func (e *RunError) Error() string {
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}

func (e *RunError) Unwrap() error {
	return e.Cause
}
