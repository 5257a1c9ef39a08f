package scrape

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/dshills/answergraph-go/graph"
	"github.com/dshills/answergraph-go/graph/model"
)

func TestMergeAnswersNode_Run(t *testing.T) {
	ctx := context.Background()

	state := State{
		UserPrompt: "What are the project names?",
		Results: []SourceAnswer{
			{Source: "a.json", Answer: "alpha"},
			{Source: "b.json", Answer: "beta"},
		},
	}

	t.Run("merges per-source answers", func(t *testing.T) {
		mock := &model.MockChatModel{Responses: []model.Response{
			{Text: `{"answer": "alpha and beta"}`, Usage: model.Usage{InputTokens: 20, OutputTokens: 10}},
		}}
		usage := graph.NewUsageTracker("r1")
		n := &MergeAnswersNode{Model: mock, Usage: usage}

		res := n.Run(ctx, state)
		if res.Err != nil {
			t.Fatalf("Run failed: %v", res.Err)
		}
		if res.Delta.Answer != "alpha and beta" {
			t.Errorf("unexpected answer: %q", res.Delta.Answer)
		}
		if !res.Next.Done {
			t.Error("merge node should end the run")
		}
		if in, out := usage.Tokens(); in != 20 || out != 10 {
			t.Errorf("usage not recorded: %d/%d", in, out)
		}
	})

	t.Run("prompt carries every answer", func(t *testing.T) {
		mock := &model.MockChatModel{Responses: []model.Response{{Text: `{"answer": "x"}`}}}
		n := &MergeAnswersNode{Model: mock}
		_ = n.Run(ctx, state)

		prompt := mock.Calls()[0].Messages[1].Content
		for _, want := range []string{"a.json", "alpha", "b.json", "beta"} {
			if !strings.Contains(prompt, want) {
				t.Errorf("merge prompt missing %q", want)
			}
		}
	})

	t.Run("failed sources are named in the prompt", func(t *testing.T) {
		mock := &model.MockChatModel{Responses: []model.Response{{Text: `{"answer": "x"}`}}}
		n := &MergeAnswersNode{Model: mock}

		withFailure := state
		withFailure.Results = append(withFailure.Results, SourceAnswer{Source: "c.json", Err: "timeout"})
		_ = n.Run(ctx, withFailure)

		prompt := mock.Calls()[0].Messages[1].Content
		if !strings.Contains(prompt, "failed: timeout") {
			t.Errorf("merge prompt missing failure note: %q", prompt)
		}
	})

	t.Run("model failure propagates", func(t *testing.T) {
		wantErr := errors.New("over quota")
		n := &MergeAnswersNode{Model: &model.MockChatModel{Err: wantErr}}
		if res := n.Run(ctx, state); !errors.Is(res.Err, wantErr) {
			t.Errorf("expected model error, got %v", res.Err)
		}
	})

	t.Run("schema enforced on merged answer", func(t *testing.T) {
		schema := Schema{"type": "object", "required": []any{"names"}}
		mock := &model.MockChatModel{Responses: []model.Response{
			{Text: `{"answer": {"wrong": []}}`},
		}}
		n := &MergeAnswersNode{Model: mock, Schema: schema}
		if res := n.Run(ctx, state); res.Err == nil {
			t.Error("expected schema validation error")
		}
	})

	t.Run("no-answer reply skips schema", func(t *testing.T) {
		schema := Schema{"type": "object", "required": []any{"names"}}
		mock := &model.MockChatModel{Responses: []model.Response{
			{Text: `{"answer": "NA"}`},
		}}
		n := &MergeAnswersNode{Model: mock, Schema: schema}
		res := n.Run(ctx, state)
		if res.Err != nil {
			t.Fatalf("no-answer reply should not fail validation: %v", res.Err)
		}
		if res.Delta.Answer != NoAnswer {
			t.Errorf("expected %q, got %q", NoAnswer, res.Delta.Answer)
		}
	})

	t.Run("preconditions", func(t *testing.T) {
		mock := &model.MockChatModel{}
		if res := (&MergeAnswersNode{}).Run(ctx, state); res.Err == nil {
			t.Error("expected error without model")
		}
		if res := (&MergeAnswersNode{Model: mock}).Run(ctx, State{UserPrompt: "q"}); res.Err == nil {
			t.Error("expected error without results")
		}
		if res := (&MergeAnswersNode{Model: mock}).Run(ctx, State{Results: state.Results}); res.Err == nil {
			t.Error("expected error without prompt")
		}
	})
}
