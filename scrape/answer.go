package scrape

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dshills/answergraph-go/graph"
	"github.com/dshills/answergraph-go/graph/model"
)

// GenerateAnswerNode answers the user's question from the parsed
// documents. Single-chunk documents go to the model in one call;
// larger documents are answered per chunk and the partial answers
// combined with a follow-up call.
type GenerateAnswerNode struct {
	Model       model.ChatModel
	Schema      Schema
	Usage       *graph.UsageTracker
	Metrics     *graph.Metrics
	Temperature *float64
	MaxTokens   int
}

// Run implements graph.Node.
func (n *GenerateAnswerNode) Run(ctx context.Context, s State) graph.Result[State] {
	if n.Model == nil {
		return graph.Result[State]{Err: fmt.Errorf("generate answer: no model configured")}
	}
	if len(s.Docs) == 0 {
		return graph.Result[State]{Err: fmt.Errorf("generate answer: no documents")}
	}
	if s.UserPrompt == "" {
		return graph.Result[State]{Err: fmt.Errorf("generate answer: empty user prompt")}
	}

	answers := make([]string, 0, len(s.Docs))
	for _, doc := range s.Docs {
		answer, err := n.answerDocument(ctx, s.UserPrompt, doc)
		if err != nil {
			return graph.Result[State]{Err: fmt.Errorf("answer %s: %w", doc.Source, err)}
		}
		answers = append(answers, answer)
	}

	answer := answers[0]
	if len(answers) > 1 {
		combined, err := n.chat(ctx, "generate_answer", combinePrompt(s.UserPrompt, answers, n.Schema))
		if err != nil {
			return graph.Result[State]{Err: err}
		}
		answer = combined
	}

	// The no-answer sentinel is plain text by convention and is never
	// expected to conform to a configured schema.
	if n.Schema != nil && answer != NoAnswer {
		if err := n.Schema.Validate(answer); err != nil {
			return graph.Result[State]{Err: fmt.Errorf("answer failed schema validation: %w", err)}
		}
	}
	return graph.Result[State]{Delta: State{Answer: answer}, Next: graph.End()}
}

func (n *GenerateAnswerNode) answerDocument(ctx context.Context, question string, doc Document) (string, error) {
	chunks := doc.Chunks
	if len(chunks) == 0 {
		chunks = []string{doc.Raw}
	}

	if len(chunks) == 1 {
		return n.chat(ctx, "generate_answer", answerPrompt(question, chunks[0], n.Schema))
	}

	partials := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		partial, err := n.chat(ctx, "generate_answer", chunkPrompt(question, chunk, i, len(chunks)))
		if err != nil {
			return "", err
		}
		partials = append(partials, partial)
	}
	return n.chat(ctx, "generate_answer", combinePrompt(question, partials, n.Schema))
}

func (n *GenerateAnswerNode) chat(ctx context.Context, nodeID, prompt string) (string, error) {
	req := model.Request{
		Messages: []model.Message{
			{Role: model.RoleSystem, Content: answerSystemPrompt},
			{Role: model.RoleUser, Content: prompt},
		},
		JSONOutput:  true,
		Temperature: n.Temperature,
		MaxTokens:   n.MaxTokens,
	}
	resp, err := n.Model.Chat(ctx, req)
	if err != nil {
		return "", err
	}
	if n.Usage != nil {
		n.Usage.Record(n.Model.Name(), nodeID, resp.Usage.InputTokens, resp.Usage.OutputTokens)
	}
	if n.Metrics != nil {
		n.Metrics.LLMCallObserved(n.Model.Name(), resp.Usage.InputTokens, resp.Usage.OutputTokens)
	}
	return ExtractAnswer(resp.Text), nil
}

// ExtractAnswer pulls the answer field out of a model reply. Replies
// that are not JSON objects, or that lack an answer field, are
// returned trimmed as-is so a model drifting off format still yields
// something usable.
func ExtractAnswer(text string) string {
	trimmed := strings.TrimSpace(text)
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &envelope); err != nil {
		return trimmed
	}
	raw, ok := envelope["answer"]
	if !ok {
		return trimmed
	}
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return str
	}
	return strings.TrimSpace(string(raw))
}
