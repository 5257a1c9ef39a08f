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

// Node IDs of the multi-source pipeline.
const (
	nodeIterate = "iterate_sources"
	nodeMerge   = "merge_answers"
)

// JSONScraperMultiPipeline answers a question from several JSON
// documents at once. Each source runs through its own single-source
// pipeline; the per-source answers are then merged by the model into
// one final answer.
type JSONScraperMultiPipeline struct {
	cfg     Config
	model   model.ChatModel
	store   store.Store[scrape.State]
	emitter emit.Emitter
	metrics *graph.Metrics

	single *JSONScraperPipeline

	mu    sync.Mutex
	usage *graph.UsageTracker
}

// NewJSONScraperMultiPipeline builds a multi-source pipeline from the
// config. The config is deep-copied, and the per-source sub-pipelines
// get their own copy again, so no state is shared between them.
func NewJSONScraperMultiPipeline(ctx context.Context, cfg Config, opts ...Option) (*JSONScraperMultiPipeline, error) {
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

	single, err := NewJSONScraperPipeline(ctx, cfg,
		WithChatModel(o.model),
		WithStore(o.store),
		WithEmitter(o.emitter),
		WithMetrics(o.metrics),
	)
	if err != nil {
		return nil, err
	}

	return &JSONScraperMultiPipeline{
		cfg:     cfg,
		model:   o.model,
		store:   o.store,
		emitter: o.emitter,
		metrics: o.metrics,
		single:  single,
	}, nil
}

// Run answers the question across every source and merges the
// per-source answers. A run that finishes without an answer returns
// NoAnswerFound.
func (p *JSONScraperMultiPipeline) Run(ctx context.Context, userPrompt string, sources []string) (string, error) {
	if userPrompt == "" {
		return "", fmt.Errorf("empty user prompt")
	}
	if len(sources) == 0 {
		return "", fmt.Errorf("no sources")
	}

	runID := uuid.NewString()
	usage := graph.NewUsageTracker(runID)

	g, err := p.build(usage)
	if err != nil {
		return "", err
	}

	initial := scrape.State{UserPrompt: userPrompt, Sources: sources}
	final, err := g.Execute(ctx, runID, initial)
	if err != nil {
		return "", err
	}

	p.mu.Lock()
	p.usage = usage
	p.mu.Unlock()
	if final.Answer == "" {
		return NoAnswerFound, nil
	}
	return final.Answer, nil
}

// Usage reports the token and cost tracker of the most recent run,
// covering the merge call. Per-source costs are tracked by the
// sub-pipeline runs. Nil before the first run.
func (p *JSONScraperMultiPipeline) Usage() *graph.UsageTracker {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.usage
}

// Close releases the shared store and model.
func (p *JSONScraperMultiPipeline) Close() error {
	return p.single.Close()
}

func (p *JSONScraperMultiPipeline) build(usage *graph.UsageTracker) (*graph.Graph[scrape.State], error) {
	gopts := []graph.Option{}
	if p.cfg.NodeTimeout > 0 {
		gopts = append(gopts, graph.WithNodeTimeout(p.cfg.NodeTimeout))
	}
	if p.metrics != nil {
		gopts = append(gopts, graph.WithMetrics(p.metrics))
	}

	g := graph.New(scrape.Reduce, p.store, p.emitter, gopts...)

	iterate := &scrape.GraphIteratorNode{
		Runner:        p.single,
		MaxConcurrent: p.cfg.MaxConcurrent,
		FailFast:      p.cfg.FailFast,
	}
	if err := g.AddNode(nodeIterate, iterate); err != nil {
		return nil, err
	}
	merge := &scrape.MergeAnswersNode{
		Model:       p.model,
		Schema:      p.cfg.Schema,
		Usage:       usage,
		Metrics:     p.metrics,
		Temperature: p.cfg.Temperature,
		MaxTokens:   p.cfg.MaxTokens,
	}
	if err := g.AddNode(nodeMerge, merge); err != nil {
		return nil, err
	}

	if err := g.SetEntry(nodeIterate); err != nil {
		return nil, err
	}
	if err := g.Link(nodeIterate, nodeMerge, nil); err != nil {
		return nil, err
	}
	return g, nil
}
