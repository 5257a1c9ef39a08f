// Package model abstracts LLM chat providers behind a single
// interface so pipeline nodes stay provider-agnostic.
package model

import "context"

// Message is one entry in a chat conversation.
type Message struct {
	// Role is one of the Role* constants.
	Role string

	// Content is the message text.
	Content string
}

// Roles follow the chat conventions shared by the major providers.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Request is one chat completion request.
type Request struct {
	// Messages is the conversation, typically a system message
	// followed by a user message.
	Messages []Message

	// JSONOutput asks the provider for JSON-mode output where the
	// API supports it. Callers should still instruct the model in
	// the prompt; this flag only constrains decoding.
	JSONOutput bool

	// Temperature overrides the provider default when non-nil.
	Temperature *float64

	// MaxTokens caps the completion length. 0 uses the provider
	// default.
	MaxTokens int
}

// Usage reports token consumption for one call.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Response is the provider's reply.
type Response struct {
	Text  string
	Usage Usage
}

// ChatModel is implemented by each provider adapter.
//
// Implementations handle authentication, request translation, and
// error mapping, and must respect context cancellation.
type ChatModel interface {
	// Name returns the concrete model identifier (e.g. "gpt-4o"),
	// used for usage tracking and metrics labels.
	Name() string

	// Chat sends the request and returns the model's reply.
	Chat(ctx context.Context, req Request) (Response, error)
}
