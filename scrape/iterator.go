package scrape

import (
	"context"
	"fmt"
	"sync"

	"github.com/dshills/answergraph-go/graph"
)

// DefaultIteratorConcurrency bounds the number of sources answered at
// once when a GraphIteratorNode is built with zero MaxConcurrent.
const DefaultIteratorConcurrency = 16

// SourceRunner answers one question against one source. The
// multi-source iterator drives a runner once per source.
type SourceRunner interface {
	AnswerSource(ctx context.Context, userPrompt, source string) (string, error)
}

// SourceRunnerFunc adapts a function to the SourceRunner interface.
type SourceRunnerFunc func(ctx context.Context, userPrompt, source string) (string, error)

// AnswerSource implements SourceRunner.
func (f SourceRunnerFunc) AnswerSource(ctx context.Context, userPrompt, source string) (string, error) {
	return f(ctx, userPrompt, source)
}

// GraphIteratorNode fans the question out across every source,
// running each through the configured runner. Results keep source
// order regardless of completion order.
type GraphIteratorNode struct {
	Runner SourceRunner

	// MaxConcurrent bounds in-flight sources. 0 uses the default.
	MaxConcurrent int

	// FailFast aborts on the first per-source failure. When false,
	// failures are recorded per source and the run continues; the
	// node only fails if every source fails.
	FailFast bool
}

// Run implements graph.Node.
func (n *GraphIteratorNode) Run(ctx context.Context, s State) graph.Result[State] {
	if n.Runner == nil {
		return graph.Result[State]{Err: fmt.Errorf("iterate sources: no runner configured")}
	}
	if len(s.Sources) == 0 {
		return graph.Result[State]{Err: fmt.Errorf("iterate sources: no sources")}
	}

	limit := n.MaxConcurrent
	if limit <= 0 {
		limit = DefaultIteratorConcurrency
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]SourceAnswer, len(s.Sources))
	sem := make(chan struct{}, limit)
	var wg sync.WaitGroup
	var failFast sync.Once
	var fastErr error

	for i, src := range s.Sources {
		wg.Add(1)
		go func(i int, src string) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-runCtx.Done():
				results[i] = SourceAnswer{Source: src, Err: runCtx.Err().Error()}
				return
			}

			answer, err := n.Runner.AnswerSource(runCtx, s.UserPrompt, src)
			if err != nil {
				results[i] = SourceAnswer{Source: src, Err: err.Error()}
				if n.FailFast {
					failFast.Do(func() {
						fastErr = fmt.Errorf("source %s: %w", src, err)
						cancel()
					})
				}
				return
			}
			results[i] = SourceAnswer{Source: src, Answer: answer}
		}(i, src)
	}
	wg.Wait()

	if fastErr != nil {
		return graph.Result[State]{Err: fastErr}
	}

	failed := 0
	for _, r := range results {
		if r.Err != "" {
			failed++
		}
	}
	if failed == len(results) {
		return graph.Result[State]{Err: fmt.Errorf("all %d sources failed", failed)}
	}
	return graph.Result[State]{Delta: State{Results: results}}
}
