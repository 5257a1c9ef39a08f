package scrape

import (
	"context"
	"fmt"

	"github.com/dshills/answergraph-go/graph"
	"github.com/dshills/answergraph-go/graph/model"
)

// MergeAnswersNode folds the per-source answers into one final
// answer with a single model call.
type MergeAnswersNode struct {
	Model       model.ChatModel
	Schema      Schema
	Usage       *graph.UsageTracker
	Metrics     *graph.Metrics
	Temperature *float64
	MaxTokens   int
}

// Run implements graph.Node.
func (n *MergeAnswersNode) Run(ctx context.Context, s State) graph.Result[State] {
	if n.Model == nil {
		return graph.Result[State]{Err: fmt.Errorf("merge answers: no model configured")}
	}
	if len(s.Results) == 0 {
		return graph.Result[State]{Err: fmt.Errorf("merge answers: no results to merge")}
	}
	if s.UserPrompt == "" {
		return graph.Result[State]{Err: fmt.Errorf("merge answers: empty user prompt")}
	}

	req := model.Request{
		Messages: []model.Message{
			{Role: model.RoleSystem, Content: mergeSystemPrompt},
			{Role: model.RoleUser, Content: mergePrompt(s.UserPrompt, s.Results, n.Schema)},
		},
		JSONOutput:  true,
		Temperature: n.Temperature,
		MaxTokens:   n.MaxTokens,
	}
	resp, err := n.Model.Chat(ctx, req)
	if err != nil {
		return graph.Result[State]{Err: fmt.Errorf("merge answers: %w", err)}
	}
	if n.Usage != nil {
		n.Usage.Record(n.Model.Name(), "merge_answers", resp.Usage.InputTokens, resp.Usage.OutputTokens)
	}
	if n.Metrics != nil {
		n.Metrics.LLMCallObserved(n.Model.Name(), resp.Usage.InputTokens, resp.Usage.OutputTokens)
	}

	answer := ExtractAnswer(resp.Text)
	// A no-answer reply is plain text by convention; schemas only
	// constrain substantive answers.
	if n.Schema != nil && answer != NoAnswer {
		if err := n.Schema.Validate(answer); err != nil {
			return graph.Result[State]{Err: fmt.Errorf("merged answer failed schema validation: %w", err)}
		}
	}
	return graph.Result[State]{Delta: State{Answer: answer}, Next: graph.End()}
}
