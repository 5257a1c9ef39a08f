// Package google adapts the Gemini SDK to model.ChatModel.
package google

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/dshills/answergraph-go/graph/model"
)

// DefaultModel is used when no model name is given.
const DefaultModel = "gemini-1.5-flash"

// ChatModel wraps the Gemini generate-content API.
type ChatModel struct {
	client    *genai.Client
	modelName string
}

// New creates a Gemini-backed ChatModel. Close releases the client
// when the model is no longer needed.
func New(ctx context.Context, apiKey, modelName string) (*ChatModel, error) {
	if apiKey == "" {
		return nil, errors.New("google: API key is required")
	}
	if modelName == "" {
		modelName = DefaultModel
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("google: create client: %w", err)
	}
	return &ChatModel{client: client, modelName: modelName}, nil
}

// Name implements model.ChatModel.
func (m *ChatModel) Name() string { return m.modelName }

// Close releases the underlying client.
func (m *ChatModel) Close() error {
	if m.client != nil {
		return m.client.Close()
	}
	return nil
}

// Chat implements model.ChatModel. System messages become the model's
// system instruction; the remaining conversation is flattened into a
// single prompt, which fits the one-shot requests the pipelines make.
func (m *ChatModel) Chat(ctx context.Context, req model.Request) (model.Response, error) {
	if err := ctx.Err(); err != nil {
		return model.Response{}, err
	}

	gm := m.client.GenerativeModel(m.modelName)
	if req.JSONOutput {
		gm.ResponseMIMEType = "application/json"
	}
	if req.Temperature != nil {
		gm.SetTemperature(float32(*req.Temperature))
	}
	if req.MaxTokens > 0 {
		gm.SetMaxOutputTokens(int32(req.MaxTokens))
	}

	system, prompt := flatten(req.Messages)
	if system != "" {
		gm.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}

	resp, err := gm.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return model.Response{}, fmt.Errorf("google: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return model.Response{}, errors.New("google: empty response")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}

	var usage model.Usage
	if resp.UsageMetadata != nil {
		usage = model.Usage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		}
	}
	return model.Response{Text: sb.String(), Usage: usage}, nil
}

func flatten(messages []model.Message) (system, prompt string) {
	var sys, conv []string
	for _, msg := range messages {
		switch msg.Role {
		case model.RoleSystem:
			sys = append(sys, msg.Content)
		default:
			conv = append(conv, msg.Content)
		}
	}
	return strings.Join(sys, "\n\n"), strings.Join(conv, "\n\n")
}
