// Package graph implements the pipeline execution engine: a directed
// graph of nodes sharing a single state value, executed step by step
// with persistence, retries, and observability hooks.
package graph

// Edge is a possible transition between two nodes.
//
// Edges are consulted only when a node returns the zero Route. The
// first edge whose predicate matches (nil predicate always matches)
// decides the next node, in the order the edges were declared.
type Edge[S any] struct {
	From string
	To   string

	// When guards the edge. Nil means unconditional.
	When Predicate[S]
}

// Predicate evaluates state to decide whether an edge applies. It
// should be a pure function of the state.
type Predicate[S any] func(state S) bool
