package graph

import "context"

// Node is a single processing unit in a pipeline graph.
//
// A node receives the current pipeline state, does its work (fetch a
// document, call a model, reshape data), and reports back a Result: a
// partial state update, a routing decision, and any error.
//
// Type parameter S is the state type shared across the pipeline.
type Node[S any] interface {
	// Run executes the node against the given state. It must respect
	// context cancellation for any blocking work.
	Run(ctx context.Context, state S) Result[S]
}

// Result is what a node hands back to the graph after running.
type Result[S any] struct {
	// Delta is the partial state update produced by the node. It is
	// merged into the current state by the graph's Merge function.
	Delta S

	// Next is the routing decision. The zero value defers to the
	// graph's edges.
	Next Route

	// Err aborts the run when non-nil, unless the node's retry policy
	// decides otherwise.
	Err error
}

// Route describes where execution goes after a node completes.
//
// Exactly one of the three modes applies:
//   - Done: the run is finished, return the merged state
//   - Target: jump to a single named node
//   - Branches: execute the named nodes in parallel
//
// A zero Route means "follow the graph's edges".
type Route struct {
	Target   string
	Branches []string
	Done     bool
}

// End returns a Route that finishes the run.
func End() Route { return Route{Done: true} }

// To returns a Route that jumps to the named node.
func To(nodeID string) Route { return Route{Target: nodeID} }

// Fan returns a Route that executes the named nodes in parallel.
// Branch deltas are merged in the order given here, not in completion
// order, so runs stay deterministic.
func Fan(nodeIDs ...string) Route { return Route{Branches: nodeIDs} }

// NodeFunc adapts a plain function to the Node interface.
//
//	upper := graph.NodeFunc[State](func(ctx context.Context, s State) graph.Result[State] {
//	    return graph.Result[State]{Delta: State{Out: strings.ToUpper(s.In)}, Next: graph.End()}
//	})
type NodeFunc[S any] func(ctx context.Context, state S) Result[S]

// Run implements Node.
func (f NodeFunc[S]) Run(ctx context.Context, state S) Result[S] {
	return f(ctx, state)
}

// NodeError is a structured error produced during node execution.
type NodeError struct {
	NodeID  string
	Message string
	Cause   error
}

func (e *NodeError) Error() string {
	if e.NodeID != "" {
		return "node " + e.NodeID + ": " + e.Message
	}
	return e.Message
}

// Unwrap supports errors.Is / errors.As against the cause.
func (e *NodeError) Unwrap() error {
	return e.Cause
}
