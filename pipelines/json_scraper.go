package pipelines

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/dshills/answergraph-go/graph"
	"github.com/dshills/answergraph-go/graph/emit"
	"github.com/dshills/answergraph-go/graph/model"
	"github.com/dshills/answergraph-go/graph/store"
	"github.com/dshills/answergraph-go/scrape"
)

// NoAnswerFound is returned when a run finishes without producing an
// answer.
const NoAnswerFound = "No answer found."

// Node IDs of the single-source pipeline.
const (
	nodeFetch  = "fetch"
	nodeParse  = "parse"
	nodeAnswer = "generate_answer"
)

// JSONScraperPipeline answers a question from a single JSON document.
// It fetches the source, parses and chunks it, and asks the model.
type JSONScraperPipeline struct {
	cfg     Config
	model   model.ChatModel
	store   store.Store[scrape.State]
	emitter emit.Emitter
	metrics *graph.Metrics

	// mu guards usage: the multi-source iterator calls AnswerSource
	// from many goroutines against one shared pipeline.
	mu    sync.Mutex
	usage *graph.UsageTracker
}

// NewJSONScraperPipeline builds a pipeline from the config. The
// config is deep-copied; later mutations of the caller's copy have no
// effect.
func NewJSONScraperPipeline(ctx context.Context, cfg Config, opts ...Option) (*JSONScraperPipeline, error) {
	cfg = cfg.Clone()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if o.model == nil {
		m, err := cfg.BuildModel(ctx)
		if err != nil {
			return nil, err
		}
		o.model = m
	}
	if o.store == nil {
		st, err := cfg.BuildStore()
		if err != nil {
			return nil, err
		}
		o.store = st
	}
	if o.emitter == nil {
		if cfg.Verbose {
			o.emitter = emit.NewLogEmitter(nil, false)
		} else {
			o.emitter = emit.NewNullEmitter()
		}
	}

	return &JSONScraperPipeline{
		cfg:     cfg,
		model:   o.model,
		store:   o.store,
		emitter: o.emitter,
		metrics: o.metrics,
	}, nil
}

// Run answers the question from one source. A run that finishes
// without an answer returns NoAnswerFound.
func (p *JSONScraperPipeline) Run(ctx context.Context, userPrompt, source string) (string, error) {
	answer, err := p.AnswerSource(ctx, userPrompt, source)
	if err != nil {
		return "", err
	}
	if answer == "" {
		return NoAnswerFound, nil
	}
	return answer, nil
}

// AnswerSource implements scrape.SourceRunner, letting the pipeline
// serve as the per-source worker of a multi-source run.
func (p *JSONScraperPipeline) AnswerSource(ctx context.Context, userPrompt, source string) (string, error) {
	if userPrompt == "" {
		return "", fmt.Errorf("empty user prompt")
	}
	if source == "" {
		return "", fmt.Errorf("empty source")
	}

	runID := uuid.NewString()
	usage := graph.NewUsageTracker(runID)

	g, err := p.build(usage)
	if err != nil {
		return "", err
	}

	initial := scrape.State{UserPrompt: userPrompt, Sources: []string{source}}
	final, err := g.Execute(ctx, runID, initial)
	if err != nil {
		return "", err
	}

	p.mu.Lock()
	p.usage = usage
	p.mu.Unlock()
	return final.Answer, nil
}

// Usage reports the token and cost tracker of the most recent run.
// Nil before the first run.
func (p *JSONScraperPipeline) Usage() *graph.UsageTracker {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.usage
}

// Close releases the pipeline's store and, for providers that hold
// connections, the model.
func (p *JSONScraperPipeline) Close() error {
	var errs []error
	if c, ok := p.model.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if p.store != nil {
		if err := p.store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

func (p *JSONScraperPipeline) build(usage *graph.UsageTracker) (*graph.Graph[scrape.State], error) {
	gopts := []graph.Option{}
	if p.cfg.NodeTimeout > 0 {
		gopts = append(gopts, graph.WithNodeTimeout(p.cfg.NodeTimeout))
	}
	if p.metrics != nil {
		gopts = append(gopts, graph.WithMetrics(p.metrics))
	}

	g := graph.New(scrape.Reduce, p.store, p.emitter, gopts...)

	if err := g.AddNode(nodeFetch, &scrape.FetchNode{}); err != nil {
		return nil, err
	}
	if err := g.AddNode(nodeParse, &scrape.ParseNode{ChunkSize: p.cfg.ChunkSize}); err != nil {
		return nil, err
	}
	answer := &scrape.GenerateAnswerNode{
		Model:       p.model,
		Schema:      p.cfg.Schema,
		Usage:       usage,
		Metrics:     p.metrics,
		Temperature: p.cfg.Temperature,
		MaxTokens:   p.cfg.MaxTokens,
	}
	if err := g.AddNode(nodeAnswer, answer); err != nil {
		return nil, err
	}

	if err := g.SetEntry(nodeFetch); err != nil {
		return nil, err
	}
	if err := g.Link(nodeFetch, nodeParse, nil); err != nil {
		return nil, err
	}
	if err := g.Link(nodeParse, nodeAnswer, nil); err != nil {
		return nil, err
	}
	return g, nil
}
