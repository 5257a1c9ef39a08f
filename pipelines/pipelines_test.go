package pipelines

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/dshills/answergraph-go/graph/emit"
	"github.com/dshills/answergraph-go/graph/model"
	"github.com/dshills/answergraph-go/graph/store"
	"github.com/dshills/answergraph-go/scrape"
)

func writeSource(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func mockModel(responses ...string) *model.MockChatModel {
	out := make([]model.Response, len(responses))
	for i, r := range responses {
		out[i] = model.Response{Text: r, Usage: model.Usage{InputTokens: 10, OutputTokens: 5}}
	}
	return &model.MockChatModel{Responses: out}
}

func TestJSONScraperPipeline_Run(t *testing.T) {
	ctx := context.Background()
	source := writeSource(t, "book.json", `{"title": "The Go Programming Language", "year": 2015}`)

	t.Run("answers from one document", func(t *testing.T) {
		mock := mockModel(`{"answer": "The Go Programming Language"}`)
		pipe, err := NewJSONScraperPipeline(ctx, Config{Provider: ProviderMock}, WithChatModel(mock))
		if err != nil {
			t.Fatalf("NewJSONScraperPipeline failed: %v", err)
		}
		defer func() { _ = pipe.Close() }()

		answer, err := pipe.Run(ctx, "What is the title?", source)
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		if answer != "The Go Programming Language" {
			t.Errorf("unexpected answer: %q", answer)
		}

		prompt := mock.Calls()[0].Messages[1].Content
		if !strings.Contains(prompt, "What is the title?") {
			t.Errorf("prompt missing question: %q", prompt)
		}
		if !strings.Contains(prompt, `"title":"The Go Programming Language"`) {
			t.Errorf("prompt missing document content: %q", prompt)
		}
	})

	t.Run("empty answer falls back", func(t *testing.T) {
		pipe, err := NewJSONScraperPipeline(ctx, Config{Provider: ProviderMock},
			WithChatModel(mockModel(`{"answer": ""}`)))
		if err != nil {
			t.Fatal(err)
		}
		defer func() { _ = pipe.Close() }()

		answer, err := pipe.Run(ctx, "q", source)
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		if answer != NoAnswerFound {
			t.Errorf("expected %q, got %q", NoAnswerFound, answer)
		}
	})

	t.Run("tracks usage", func(t *testing.T) {
		pipe, err := NewJSONScraperPipeline(ctx, Config{Provider: ProviderMock},
			WithChatModel(mockModel(`{"answer": "x"}`)))
		if err != nil {
			t.Fatal(err)
		}
		defer func() { _ = pipe.Close() }()

		if _, err := pipe.Run(ctx, "q", source); err != nil {
			t.Fatal(err)
		}
		usage := pipe.Usage()
		if usage == nil {
			t.Fatal("expected usage after run")
		}
		if in, out := usage.Tokens(); in != 10 || out != 5 {
			t.Errorf("unexpected usage: %d/%d", in, out)
		}
	})

	t.Run("invalid source fails", func(t *testing.T) {
		pipe, err := NewJSONScraperPipeline(ctx, Config{Provider: ProviderMock},
			WithChatModel(mockModel(`{"answer": "x"}`)))
		if err != nil {
			t.Fatal(err)
		}
		defer func() { _ = pipe.Close() }()

		if _, err := pipe.Run(ctx, "q", "/missing.json"); err == nil {
			t.Error("expected error for unreadable source")
		}
	})

	t.Run("rejects empty inputs", func(t *testing.T) {
		pipe, err := NewJSONScraperPipeline(ctx, Config{Provider: ProviderMock})
		if err != nil {
			t.Fatal(err)
		}
		defer func() { _ = pipe.Close() }()

		if _, err := pipe.Run(ctx, "", source); err == nil {
			t.Error("expected error for empty prompt")
		}
		if _, err := pipe.Run(ctx, "q", ""); err == nil {
			t.Error("expected error for empty source")
		}
	})
}

func TestJSONScraperMultiPipeline_Run(t *testing.T) {
	ctx := context.Background()

	a := writeSource(t, "a.json", `{"project": "alpha"}`)
	b := writeSource(t, "b.json", `{"project": "beta"}`)

	t.Run("merges answers across documents", func(t *testing.T) {
		// Two per-source calls plus one merge call. The mock repeats
		// its last response, so script the merge answer last.
		mock := mockModel(
			`{"answer": "alpha"}`,
			`{"answer": "beta"}`,
			`{"answer": "alpha and beta"}`,
		)
		pipe, err := NewJSONScraperMultiPipeline(ctx, Config{Provider: ProviderMock, MaxConcurrent: 1},
			WithChatModel(mock))
		if err != nil {
			t.Fatalf("NewJSONScraperMultiPipeline failed: %v", err)
		}
		defer func() { _ = pipe.Close() }()

		answer, err := pipe.Run(ctx, "What are the project names?", []string{a, b})
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		if answer != "alpha and beta" {
			t.Errorf("unexpected answer: %q", answer)
		}
		if mock.CallCount() != 3 {
			t.Errorf("expected 3 model calls, got %d", mock.CallCount())
		}

		merge := mock.Calls()[2].Messages[1].Content
		if !strings.Contains(merge, "alpha") || !strings.Contains(merge, "beta") {
			t.Errorf("merge prompt missing per-source answers: %q", merge)
		}
	})

	t.Run("continues past a bad source", func(t *testing.T) {
		mock := mockModel(`{"answer": "alpha"}`, `{"answer": "merged"}`)
		pipe, err := NewJSONScraperMultiPipeline(ctx, Config{Provider: ProviderMock, MaxConcurrent: 1},
			WithChatModel(mock))
		if err != nil {
			t.Fatal(err)
		}
		defer func() { _ = pipe.Close() }()

		answer, err := pipe.Run(ctx, "q", []string{a, "/missing.json"})
		if err != nil {
			t.Fatalf("Run should tolerate one bad source: %v", err)
		}
		if answer != "merged" {
			t.Errorf("unexpected answer: %q", answer)
		}
	})

	t.Run("fails when every source fails", func(t *testing.T) {
		pipe, err := NewJSONScraperMultiPipeline(ctx, Config{Provider: ProviderMock},
			WithChatModel(mockModel(`{"answer": "x"}`)))
		if err != nil {
			t.Fatal(err)
		}
		defer func() { _ = pipe.Close() }()

		if _, err := pipe.Run(ctx, "q", []string{"/gone.json", "/also-gone.json"}); err == nil {
			t.Error("expected error when no source is readable")
		}
	})

	t.Run("fail fast surfaces the source error", func(t *testing.T) {
		pipe, err := NewJSONScraperMultiPipeline(ctx, Config{Provider: ProviderMock, FailFast: true},
			WithChatModel(mockModel(`{"answer": "x"}`)))
		if err != nil {
			t.Fatal(err)
		}
		defer func() { _ = pipe.Close() }()

		_, err = pipe.Run(ctx, "q", []string{a, "/missing.json"})
		if err == nil || !strings.Contains(err.Error(), "missing.json") {
			t.Errorf("expected fail-fast error naming the source, got %v", err)
		}
	})

	t.Run("empty answer falls back", func(t *testing.T) {
		pipe, err := NewJSONScraperMultiPipeline(ctx, Config{Provider: ProviderMock},
			WithChatModel(mockModel(`{"answer": ""}`)))
		if err != nil {
			t.Fatal(err)
		}
		defer func() { _ = pipe.Close() }()

		answer, err := pipe.Run(ctx, "q", []string{a})
		if err != nil {
			t.Fatal(err)
		}
		if answer != NoAnswerFound {
			t.Errorf("expected %q, got %q", NoAnswerFound, answer)
		}
	})

	t.Run("rejects empty inputs", func(t *testing.T) {
		pipe, err := NewJSONScraperMultiPipeline(ctx, Config{Provider: ProviderMock})
		if err != nil {
			t.Fatal(err)
		}
		defer func() { _ = pipe.Close() }()

		if _, err := pipe.Run(ctx, "", []string{a}); err == nil {
			t.Error("expected error for empty prompt")
		}
		if _, err := pipe.Run(ctx, "q", nil); err == nil {
			t.Error("expected error for no sources")
		}
	})

	t.Run("persists run history", func(t *testing.T) {
		st := store.NewMemStore[scrape.State]()
		pipe, err := NewJSONScraperMultiPipeline(ctx, Config{Provider: ProviderMock},
			WithChatModel(mockModel(`{"answer": "x"}`)), WithStore(st))
		if err != nil {
			t.Fatal(err)
		}
		defer func() { _ = pipe.Close() }()

		if _, err := pipe.Run(ctx, "q", []string{a}); err != nil {
			t.Fatal(err)
		}
		// One run for the outer graph plus one per-source sub-run.
		if len(st.Runs()) != 2 {
			t.Errorf("expected 2 persisted runs, got %v", st.Runs())
		}
	})

	t.Run("emits progress events", func(t *testing.T) {
		rec := &recordingEmitter{}
		pipe, err := NewJSONScraperMultiPipeline(ctx, Config{Provider: ProviderMock},
			WithChatModel(mockModel(`{"answer": "x"}`)), WithEmitter(rec))
		if err != nil {
			t.Fatal(err)
		}
		defer func() { _ = pipe.Close() }()

		if _, err := pipe.Run(ctx, "q", []string{a}); err != nil {
			t.Fatal(err)
		}

		var started, completed int
		for _, e := range rec.Events() {
			switch e.Msg {
			case "run started":
				started++
			case "run complete":
				completed++
			}
		}
		// The outer run plus one sub-run per source.
		if started != 2 || completed != 2 {
			t.Errorf("expected 2 started / 2 completed, got %d / %d", started, completed)
		}
	})

	t.Run("config mutation after build has no effect", func(t *testing.T) {
		cfg := Config{Provider: ProviderMock, Schema: scrape.Schema{"type": "object"}}
		pipe, err := NewJSONScraperMultiPipeline(ctx, cfg,
			WithChatModel(mockModel(`{"answer": {"any": true}}`)))
		if err != nil {
			t.Fatal(err)
		}
		defer func() { _ = pipe.Close() }()

		// Breaking the caller's schema must not break the pipeline.
		cfg.Schema["required"] = []any{"impossible"}

		if _, err := pipe.Run(ctx, "q", []string{a}); err != nil {
			t.Errorf("pipeline shared the caller's schema: %v", err)
		}
	})
}

// recordingEmitter captures events across all runs, which the
// buffered emitter's per-run grouping can't do when run IDs are
// generated inside the pipeline.
type recordingEmitter struct {
	mu     sync.Mutex
	events []emit.Event
}

func (r *recordingEmitter) Emit(e emit.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingEmitter) Events() []emit.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]emit.Event, len(r.events))
	copy(out, r.events)
	return out
}

func TestMultiPipeline_ConcurrentSources(t *testing.T) {
	ctx := context.Background()

	// All sub-runs share one underlying pipeline, so concurrent
	// sources exercise its usage bookkeeping from many goroutines.
	sources := make([]string, 8)
	for i := range sources {
		sources[i] = writeSource(t, fmt.Sprintf("s%d.json", i), fmt.Sprintf(`{"n": %d}`, i))
	}

	pipe, err := NewJSONScraperMultiPipeline(ctx, Config{Provider: ProviderMock, MaxConcurrent: 8},
		WithChatModel(mockModel(`{"answer": "x"}`)))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = pipe.Close() }()

	answer, err := pipe.Run(ctx, "q", sources)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if answer != "x" {
		t.Errorf("unexpected answer: %q", answer)
	}
	if pipe.Usage() == nil {
		t.Error("expected usage after run")
	}
}

func TestMultiPipeline_SchemaValidation(t *testing.T) {
	ctx := context.Background()
	src := writeSource(t, "s.json", `{"k": 1}`)

	schema := scrape.Schema{
		"type":     "object",
		"required": []any{"names"},
		"properties": map[string]any{
			"names": map[string]any{"type": "array"},
		},
	}

	t.Run("conforming merged answer passes", func(t *testing.T) {
		// The schema applies to the per-source answers too, so both
		// responses must conform.
		mock := mockModel(
			`{"answer": {"names": ["alpha"]}}`,
			`{"answer": {"names": ["alpha"]}}`,
		)
		pipe, err := NewJSONScraperMultiPipeline(ctx, Config{Provider: ProviderMock, Schema: schema},
			WithChatModel(mock))
		if err != nil {
			t.Fatal(err)
		}
		defer func() { _ = pipe.Close() }()

		answer, err := pipe.Run(ctx, "q", []string{src})
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		if !strings.Contains(answer, "alpha") {
			t.Errorf("unexpected answer: %q", answer)
		}
	})

	t.Run("non-conforming merged answer fails", func(t *testing.T) {
		mock := mockModel(
			`{"answer": {"names": ["alpha"]}}`,
			`{"answer": {"wrong": true}}`,
		)
		pipe, err := NewJSONScraperMultiPipeline(ctx, Config{Provider: ProviderMock, Schema: schema},
			WithChatModel(mock))
		if err != nil {
			t.Fatal(err)
		}
		defer func() { _ = pipe.Close() }()

		_, err = pipe.Run(ctx, "q", []string{src})
		if err == nil {
			t.Fatal("expected schema validation error")
		}
		if !strings.Contains(err.Error(), "schema") {
			t.Errorf("expected schema error, got %v", err)
		}
	})
}

func TestMultiPipeline_ModelErrorPropagates(t *testing.T) {
	ctx := context.Background()
	src := writeSource(t, "s.json", `{"k": 1}`)

	wantErr := errors.New("provider outage")
	pipe, err := NewJSONScraperMultiPipeline(ctx, Config{Provider: ProviderMock},
		WithChatModel(&model.MockChatModel{Err: wantErr}))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = pipe.Close() }()

	// Every source fails on its model call, so the run fails.
	if _, err := pipe.Run(ctx, "q", []string{src}); err == nil {
		t.Error("expected error when the model is down")
	}
}
