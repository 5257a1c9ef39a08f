package graph

import "time"

// Options holds engine tuning knobs. Zero values fall back to the
// defaults from defaultOptions.
type Options struct {
	// MaxSteps caps the number of node executions in one run.
	// 0 disables the cap.
	MaxSteps int

	// MaxParallel bounds concurrent branch execution during fan-out.
	MaxParallel int

	// NodeTimeout is the default per-node execution limit. A node's
	// policy timeout overrides it. 0 disables.
	NodeTimeout time.Duration

	// WallClock caps total run time. 0 disables.
	WallClock time.Duration

	// Metrics receives execution measurements when non-nil.
	Metrics *Metrics
}

func defaultOptions() Options {
	return Options{
		MaxSteps:    0,
		MaxParallel: 8,
		NodeTimeout: 0,
		WallClock:   0,
	}
}

// Option is a functional option for New.
type Option func(*Options)

// WithMaxSteps caps the number of node executions in one run.
// Recommended for graphs with cycles.
func WithMaxSteps(n int) Option {
	return func(o *Options) { o.MaxSteps = n }
}

// WithMaxParallel bounds how many fan-out branches execute at once.
// Each running branch holds a deep copy of state, so memory scales
// with this value.
func WithMaxParallel(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.MaxParallel = n
		}
	}
}

// WithNodeTimeout sets the default per-node execution limit.
// Individual nodes override it via NodePolicy.Timeout.
func WithNodeTimeout(d time.Duration) Option {
	return func(o *Options) { o.NodeTimeout = d }
}

// WithWallClock caps the total wall-clock time of a run.
func WithWallClock(d time.Duration) Option {
	return func(o *Options) { o.WallClock = d }
}

// WithMetrics enables Prometheus metrics collection for the graph.
//
//	reg := prometheus.NewRegistry()
//	g := graph.New(merge, st, em, graph.WithMetrics(graph.NewMetrics(reg)))
//	http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
func WithMetrics(m *Metrics) Option {
	return func(o *Options) { o.Metrics = m }
}
