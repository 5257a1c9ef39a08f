package pipelines

import (
	"github.com/dshills/answergraph-go/graph"
	"github.com/dshills/answergraph-go/graph/emit"
	"github.com/dshills/answergraph-go/graph/model"
	"github.com/dshills/answergraph-go/graph/store"
	"github.com/dshills/answergraph-go/scrape"
)

type options struct {
	model   model.ChatModel
	store   store.Store[scrape.State]
	emitter emit.Emitter
	metrics *graph.Metrics
}

// Option overrides a dependency the config would otherwise build.
type Option func(*options)

// WithChatModel supplies the chat model directly, bypassing the
// config's provider selection.
func WithChatModel(m model.ChatModel) Option {
	return func(o *options) { o.model = m }
}

// WithStore supplies the step store directly.
func WithStore(st store.Store[scrape.State]) Option {
	return func(o *options) { o.store = st }
}

// WithEmitter supplies the progress emitter directly.
func WithEmitter(e emit.Emitter) Option {
	return func(o *options) { o.emitter = e }
}

// WithMetrics wires Prometheus collectors into every run.
func WithMetrics(m *graph.Metrics) Option {
	return func(o *options) { o.metrics = m }
}
