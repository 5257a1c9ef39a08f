package graph

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/dshills/answergraph-go/graph/emit"
	"github.com/dshills/answergraph-go/graph/store"
)

// Merge combines a node's partial state update with the current state.
//
// Merge must be deterministic: the engine relies on it to produce the
// same state regardless of branch completion order, because parallel
// branch deltas are always applied in declared order.
type Merge[S any] func(prev, delta S) S

// Graph is the pipeline execution engine.
//
// A Graph owns the node registry and the edges between nodes, and
// drives a run from the entry node until a node ends it. After every
// step the merged state is persisted to the store and an event is
// emitted, so runs can be observed and resumed.
//
//	g := graph.New(mergeFn, store.NewMemStore[State](), emit.NewLogEmitter(os.Stderr, false))
//	g.AddNode("fetch", fetchNode)
//	g.AddNode("answer", answerNode)
//	g.Link("fetch", "answer", nil)
//	g.SetEntry("fetch")
//	final, err := g.Execute(ctx, runID, State{Prompt: "..."})
type Graph[S any] struct {
	mu       sync.RWMutex
	merge    Merge[S]
	nodes    map[string]Node[S]
	policies map[string]*NodePolicy
	edges    []Edge[S]
	entry    string
	store    store.Store[S]
	emitter  emit.Emitter
	opts     Options
}

// New creates a Graph with the given merge function, store, and
// emitter. The emitter may be nil to suppress events. Behavior is
// tuned through functional options; zero-value defaults are safe.
func New[S any](merge Merge[S], st store.Store[S], emitter emit.Emitter, opts ...Option) *Graph[S] {
	cfg := defaultOptions()
	for _, o := range opts {
		o(&cfg)
	}
	return &Graph[S]{
		merge:    merge,
		nodes:    make(map[string]Node[S]),
		policies: make(map[string]*NodePolicy),
		store:    st,
		emitter:  emitter,
		opts:     cfg,
	}
}

// AddNode registers a node under a unique ID.
func (g *Graph[S]) AddNode(nodeID string, node Node[S]) error {
	if nodeID == "" {
		return &RunError{Code: "NODE_NOT_FOUND", Message: "node ID cannot be empty"}
	}
	if node == nil {
		return &RunError{Code: "NODE_NOT_FOUND", Message: "node cannot be nil"}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.nodes[nodeID]; exists {
		return &RunError{Code: "DUPLICATE_NODE", Message: "duplicate node ID: " + nodeID}
	}
	g.nodes[nodeID] = node
	return nil
}

// SetPolicy attaches an execution policy (timeout, retries) to a
// registered node.
func (g *Graph[S]) SetPolicy(nodeID string, policy *NodePolicy) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.nodes[nodeID]; !exists {
		return &RunError{Code: "NODE_NOT_FOUND", Message: "unknown node: " + nodeID}
	}
	if policy != nil && policy.Retry != nil {
		if err := policy.Retry.Validate(); err != nil {
			return err
		}
	}
	g.policies[nodeID] = policy
	return nil
}

// SetEntry declares the node a run starts at. The node must already be
// registered.
func (g *Graph[S]) SetEntry(nodeID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.nodes[nodeID]; !exists {
		return &RunError{Code: "NODE_NOT_FOUND", Message: "entry node does not exist: " + nodeID}
	}
	g.entry = nodeID
	return nil
}

// Link declares an edge between two nodes. A nil predicate makes the
// edge unconditional. Edges only apply when a node returns the zero
// Route; explicit routing always wins.
func (g *Graph[S]) Link(from, to string, when Predicate[S]) error {
	if from == "" || to == "" {
		return &RunError{Code: "NODE_NOT_FOUND", Message: "edge endpoints cannot be empty"}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.edges = append(g.edges, Edge[S]{From: from, To: to, When: when})
	return nil
}

// Execute runs the pipeline from the entry node until a node ends the
// run, an error occurs, or a limit is hit. The returned state is the
// result of merging every executed node's delta in order.
func (g *Graph[S]) Execute(ctx context.Context, runID string, initial S) (S, error) {
	var zero S

	if err := g.validate(); err != nil {
		return zero, err
	}

	if g.opts.WallClock > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.opts.WallClock)
		defer cancel()
	}

	g.emitRun(runID, "run started", map[string]any{"entry": g.entry})

	state := initial
	current := g.entry
	step := 0

	for {
		if g.opts.MaxSteps > 0 && step >= g.opts.MaxSteps {
			return zero, &RunError{Code: "MAX_STEPS", Message: "run exceeded max steps", Cause: ErrMaxSteps}
		}
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		node, pol, err := g.lookup(current)
		if err != nil {
			return zero, err
		}

		step++
		res, err := g.runNode(ctx, runID, step, current, node, pol, state)
		if err != nil {
			return zero, err
		}

		state = g.merge(state, res.Delta)
		if err := g.saveStep(ctx, runID, step, current, state); err != nil {
			return zero, err
		}

		switch {
		case res.Next.Done:
			g.emitRun(runID, "run complete", map[string]any{"steps": step})
			return state, nil

		case res.Next.Target != "":
			current = res.Next.Target

		case len(res.Next.Branches) > 0:
			state, err = g.runBranches(ctx, runID, &step, current, res.Next.Branches, state)
			if err != nil {
				return zero, err
			}
			next := g.nextByEdge(current, state)
			if next == "" {
				g.emitRun(runID, "run complete", map[string]any{"steps": step})
				return state, nil
			}
			current = next

		default:
			next := g.nextByEdge(current, state)
			if next == "" {
				return zero, &RunError{Code: "NO_ROUTE", Message: "no route from node: " + current, Cause: ErrNoRoute}
			}
			current = next
		}
	}
}

// runBranches executes the named nodes concurrently against deep
// copies of the current state, bounded by MaxParallel. Deltas are
// merged in declared branch order so results do not depend on
// completion order.
//
// Branch nodes are leaves of the fan-out: their own routing is not
// followed. After all branches complete, control returns to the
// fan-out node's edges (or the run ends if it has none).
func (g *Graph[S]) runBranches(ctx context.Context, runID string, step *int, from string, branches []string, state S) (S, error) {
	var zero S

	type branchOut struct {
		res Result[S]
		err error
	}

	outs := make([]branchOut, len(branches))
	sem := make(chan struct{}, g.opts.MaxParallel)
	var wg sync.WaitGroup

	baseStep := *step
	*step += len(branches)

	for i, nodeID := range branches {
		node, pol, err := g.lookup(nodeID)
		if err != nil {
			return zero, err
		}

		snapshot, err := cloneState(state)
		if err != nil {
			return zero, &RunError{Code: "STORE_ERROR", Message: "cannot snapshot state for branch " + nodeID, Cause: err}
		}

		wg.Add(1)
		go func(i int, nodeID string, node Node[S], pol *NodePolicy, snap S) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if g.opts.Metrics != nil {
				g.opts.Metrics.BranchStarted()
				defer g.opts.Metrics.BranchDone()
			}

			res, err := g.runNode(ctx, runID, baseStep+i+1, nodeID, node, pol, snap)
			outs[i] = branchOut{res: res, err: err}
		}(i, nodeID, node, pol, snapshot)
	}
	wg.Wait()

	for i, nodeID := range branches {
		if outs[i].err != nil {
			return zero, outs[i].err
		}
		state = g.merge(state, outs[i].res.Delta)
		if err := g.saveStep(ctx, runID, baseStep+i+1, nodeID, state); err != nil {
			return zero, err
		}
	}
	return state, nil
}

// runNode executes one node with timeout and retry handling.
func (g *Graph[S]) runNode(ctx context.Context, runID string, step int, nodeID string, node Node[S], pol *NodePolicy, state S) (Result[S], error) {
	attempts := 1
	if pol != nil && pol.Retry != nil {
		attempts = pol.Retry.MaxAttempts
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano())) // #nosec G404 -- retry jitter only

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		start := time.Now()
		res, err := g.runNodeOnce(ctx, nodeID, node, pol, state)
		switch {
		case err != nil:
			// Timed-out attempts go through the same retry decision
			// as node-level failures.
			lastErr = err
			g.recordStep(runID, nodeID, time.Since(start), "timeout")
		case res.Err != nil:
			lastErr = res.Err
			g.recordStep(runID, nodeID, time.Since(start), "error")
		default:
			g.recordStep(runID, nodeID, time.Since(start), "success")
			g.emitStep(runID, step, nodeID, "node complete", nil)
			return res, nil
		}

		retryable := pol != nil && pol.Retry != nil && pol.Retry.Retryable != nil && pol.Retry.Retryable(lastErr)
		if !retryable || attempt == attempts-1 {
			break
		}

		if g.opts.Metrics != nil {
			g.opts.Metrics.RetryRecorded(runID, nodeID)
		}
		g.emitStep(runID, step, nodeID, "node retry", map[string]any{
			"attempt": attempt + 1,
			"error":   lastErr.Error(),
		})

		delay := backoff(attempt, pol.Retry.BaseDelay, pol.Retry.MaxDelay, rng)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return Result[S]{}, ctx.Err()
		}
	}

	if attempts > 1 {
		return Result[S]{}, &NodeError{
			NodeID:  nodeID,
			Message: "retry attempts exhausted",
			Cause:   errors.Join(ErrAttemptsExhausted, lastErr),
		}
	}
	return Result[S]{}, &NodeError{NodeID: nodeID, Message: lastErr.Error(), Cause: lastErr}
}

// runNodeOnce executes a single attempt under the node's timeout.
// The returned error is reserved for timeouts; node-level failures
// come back inside the Result.
func (g *Graph[S]) runNodeOnce(ctx context.Context, nodeID string, node Node[S], pol *NodePolicy, state S) (Result[S], error) {
	timeout := g.opts.NodeTimeout
	if pol != nil && pol.Timeout > 0 {
		timeout = pol.Timeout
	}
	if timeout <= 0 {
		return node.Run(ctx, state), nil
	}

	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res := node.Run(tctx, state)
	if tctx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		return Result[S]{}, &RunError{
			Code:    "NODE_TIMEOUT",
			Message: "node " + nodeID + " exceeded timeout " + timeout.String(),
			Cause:   context.DeadlineExceeded,
		}
	}
	return res, nil
}

// Checkpoint labels the latest persisted state of a run so it can be
// resumed later, including from a different process when a durable
// store backs the graph.
func (g *Graph[S]) Checkpoint(ctx context.Context, runID, label string) error {
	state, step, err := g.store.LoadLatest(ctx, runID)
	if err != nil {
		return &RunError{Code: "CHECKPOINT_NOT_FOUND", Message: "no state for run " + runID, Cause: err}
	}
	if err := g.store.SaveCheckpoint(ctx, label, state, step); err != nil {
		return &RunError{Code: "STORE_ERROR", Message: "save checkpoint " + label, Cause: err}
	}
	g.emitRun(runID, "checkpoint saved", map[string]any{"label": label, "step": step})
	return nil
}

// ResumeFrom starts a fresh run from a checkpointed state, beginning
// at the given node.
func (g *Graph[S]) ResumeFrom(ctx context.Context, label, newRunID, startNode string) (S, error) {
	var zero S

	state, step, err := g.store.LoadCheckpoint(ctx, label)
	if err != nil {
		return zero, &RunError{Code: "CHECKPOINT_NOT_FOUND", Message: "checkpoint not found: " + label, Cause: err}
	}

	g.mu.Lock()
	prevEntry := g.entry
	g.mu.Unlock()

	if err := g.SetEntry(startNode); err != nil {
		return zero, err
	}
	defer func() {
		g.mu.Lock()
		g.entry = prevEntry
		g.mu.Unlock()
	}()

	g.emitRun(newRunID, "resuming from checkpoint", map[string]any{"label": label, "step": step})
	return g.Execute(ctx, newRunID, state)
}

func (g *Graph[S]) validate() error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.merge == nil {
		return &RunError{Code: "MISSING_MERGE", Message: "merge function is required"}
	}
	if g.store == nil {
		return &RunError{Code: "MISSING_STORE", Message: "store is required"}
	}
	if g.entry == "" {
		return &RunError{Code: "NO_ENTRY", Message: "entry node not set (call SetEntry before Execute)"}
	}
	if _, exists := g.nodes[g.entry]; !exists {
		return &RunError{Code: "NODE_NOT_FOUND", Message: "entry node does not exist: " + g.entry}
	}
	return nil
}

func (g *Graph[S]) lookup(nodeID string) (Node[S], *NodePolicy, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	node, exists := g.nodes[nodeID]
	if !exists {
		return nil, nil, &RunError{Code: "NODE_NOT_FOUND", Message: "node not found during execution: " + nodeID}
	}
	return node, g.policies[nodeID], nil
}

// nextByEdge returns the first matching edge target from a node, or
// "" when no edge matches.
func (g *Graph[S]) nextByEdge(from string, state S) string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for _, e := range g.edges {
		if e.From != from {
			continue
		}
		if e.When == nil || e.When(state) {
			return e.To
		}
	}
	return ""
}

func (g *Graph[S]) saveStep(ctx context.Context, runID string, step int, nodeID string, state S) error {
	if err := g.store.SaveStep(ctx, runID, step, nodeID, state); err != nil {
		return &RunError{Code: "STORE_ERROR", Message: "failed to save step", Cause: err}
	}
	return nil
}

func (g *Graph[S]) recordStep(runID, nodeID string, d time.Duration, status string) {
	if g.opts.Metrics != nil {
		g.opts.Metrics.StepObserved(runID, nodeID, d, status)
	}
}

func (g *Graph[S]) emitStep(runID string, step int, nodeID, msg string, attrs map[string]any) {
	if g.emitter == nil {
		return
	}
	g.emitter.Emit(emit.Event{Run: runID, Step: step, Node: nodeID, Msg: msg, Attrs: attrs})
}

func (g *Graph[S]) emitRun(runID, msg string, attrs map[string]any) {
	if g.emitter == nil {
		return
	}
	g.emitter.Emit(emit.Event{Run: runID, Msg: msg, Attrs: attrs})
}
