package model

import (
	"context"
	"sync"
)

// MockChatModel is a scripted ChatModel for tests.
//
// Each Chat call returns the next configured response; once exhausted,
// the last response repeats. Every call is recorded for assertions.
//
//	mock := &model.MockChatModel{
//	    Responses: []model.Response{{Text: `{"answer":"42"}`}},
//	}
type MockChatModel struct {
	// Responses are returned in order; the last one repeats.
	Responses []Response

	// Err, when set, is returned instead of a response.
	Err error

	// ModelName reported by Name. Defaults to "mock".
	ModelName string

	mu    sync.Mutex
	calls []Request
	next  int
}

// Name implements ChatModel.
func (m *MockChatModel) Name() string {
	if m.ModelName == "" {
		return "mock"
	}
	return m.ModelName
}

// Chat implements ChatModel. The call is recorded even when an error
// is returned.
func (m *MockChatModel) Chat(ctx context.Context, req Request) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, req)

	if m.Err != nil {
		return Response{}, m.Err
	}
	if len(m.Responses) == 0 {
		return Response{}, nil
	}

	idx := m.next
	if idx >= len(m.Responses) {
		idx = len(m.Responses) - 1
	} else {
		m.next++
	}
	return m.Responses[idx], nil
}

// Calls returns a copy of the recorded requests.
func (m *MockChatModel) Calls() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Request, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many times Chat was invoked.
func (m *MockChatModel) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Reset clears the call history and rewinds the response script.
func (m *MockChatModel) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.next = 0
}
