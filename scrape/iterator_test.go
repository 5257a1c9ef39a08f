package scrape

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestGraphIteratorNode_Run(t *testing.T) {
	ctx := context.Background()

	t.Run("answers every source in order", func(t *testing.T) {
		runner := SourceRunnerFunc(func(ctx context.Context, prompt, source string) (string, error) {
			return "answer for " + source, nil
		})
		n := &GraphIteratorNode{Runner: runner}

		res := n.Run(ctx, State{UserPrompt: "q", Sources: []string{"a", "b", "c"}})
		if res.Err != nil {
			t.Fatalf("Run failed: %v", res.Err)
		}
		results := res.Delta.Results
		if len(results) != 3 {
			t.Fatalf("expected 3 results, got %d", len(results))
		}
		for i, src := range []string{"a", "b", "c"} {
			if results[i].Source != src || results[i].Answer != "answer for "+src {
				t.Errorf("result %d out of order: %+v", i, results[i])
			}
		}
	})

	t.Run("order kept under concurrency", func(t *testing.T) {
		runner := SourceRunnerFunc(func(ctx context.Context, prompt, source string) (string, error) {
			if source == "first" {
				time.Sleep(30 * time.Millisecond)
			}
			return source, nil
		})
		n := &GraphIteratorNode{Runner: runner, MaxConcurrent: 4}

		res := n.Run(ctx, State{UserPrompt: "q", Sources: []string{"first", "second"}})
		if res.Err != nil {
			t.Fatalf("Run failed: %v", res.Err)
		}
		if res.Delta.Results[0].Answer != "first" || res.Delta.Results[1].Answer != "second" {
			t.Errorf("completion order leaked into results: %+v", res.Delta.Results)
		}
	})

	t.Run("bounds concurrency", func(t *testing.T) {
		var inflight, peak atomic.Int32
		var mu sync.Mutex
		runner := SourceRunnerFunc(func(ctx context.Context, prompt, source string) (string, error) {
			cur := inflight.Add(1)
			mu.Lock()
			if cur > peak.Load() {
				peak.Store(cur)
			}
			mu.Unlock()
			time.Sleep(10 * time.Millisecond)
			inflight.Add(-1)
			return "ok", nil
		})
		n := &GraphIteratorNode{Runner: runner, MaxConcurrent: 2}

		sources := make([]string, 8)
		for i := range sources {
			sources[i] = fmt.Sprintf("s%d", i)
		}
		res := n.Run(ctx, State{UserPrompt: "q", Sources: sources})
		if res.Err != nil {
			t.Fatalf("Run failed: %v", res.Err)
		}
		if peak.Load() > 2 {
			t.Errorf("concurrency exceeded limit: peak %d", peak.Load())
		}
	})

	t.Run("continues past failing sources", func(t *testing.T) {
		runner := SourceRunnerFunc(func(ctx context.Context, prompt, source string) (string, error) {
			if source == "bad" {
				return "", errors.New("unreachable")
			}
			return "ok", nil
		})
		n := &GraphIteratorNode{Runner: runner}

		res := n.Run(ctx, State{UserPrompt: "q", Sources: []string{"good", "bad", "also-good"}})
		if res.Err != nil {
			t.Fatalf("Run should continue past one failure: %v", res.Err)
		}
		results := res.Delta.Results
		if results[1].Err == "" || results[1].Answer != "" {
			t.Errorf("failure not recorded: %+v", results[1])
		}
		if results[0].Answer != "ok" || results[2].Answer != "ok" {
			t.Errorf("healthy sources affected: %+v", results)
		}
	})

	t.Run("fails when every source fails", func(t *testing.T) {
		runner := SourceRunnerFunc(func(ctx context.Context, prompt, source string) (string, error) {
			return "", errors.New("down")
		})
		n := &GraphIteratorNode{Runner: runner}

		res := n.Run(ctx, State{UserPrompt: "q", Sources: []string{"a", "b"}})
		if res.Err == nil {
			t.Fatal("expected error when all sources fail")
		}
		if !strings.Contains(res.Err.Error(), "all 2 sources failed") {
			t.Errorf("unexpected error: %v", res.Err)
		}
	})

	t.Run("fail fast aborts", func(t *testing.T) {
		wantErr := errors.New("boom")
		runner := SourceRunnerFunc(func(ctx context.Context, prompt, source string) (string, error) {
			if source == "bad" {
				return "", wantErr
			}
			select {
			case <-time.After(5 * time.Second):
				return "ok", nil
			case <-ctx.Done():
				return "", ctx.Err()
			}
		})
		n := &GraphIteratorNode{Runner: runner, FailFast: true, MaxConcurrent: 4}

		start := time.Now()
		res := n.Run(ctx, State{UserPrompt: "q", Sources: []string{"bad", "slow"}})
		if !errors.Is(res.Err, wantErr) {
			t.Errorf("expected fail-fast error, got %v", res.Err)
		}
		if time.Since(start) > time.Second {
			t.Error("fail fast did not cancel the slow source")
		}
	})

	t.Run("preconditions", func(t *testing.T) {
		n := &GraphIteratorNode{}
		if res := n.Run(ctx, State{Sources: []string{"a"}}); res.Err == nil {
			t.Error("expected error without runner")
		}
		n.Runner = SourceRunnerFunc(func(ctx context.Context, p, s string) (string, error) { return "", nil })
		if res := n.Run(ctx, State{}); res.Err == nil {
			t.Error("expected error without sources")
		}
	})
}
