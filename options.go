package trisum

import (
	"github.com/hupe1980/trisum/checkpoint"
	"github.com/hupe1980/trisum/resource"
	"github.com/hupe1980/trisum/sink"
)

type options struct {
	metricsCollector MetricsCollector
	logger           *Logger
	store            *checkpoint.Store
	resume           string
	label            string
	resource         *resource.Controller
	sink             sink.Sink
	sorted           bool
}

// Option configures a Solver.
type Option func(*options)

// WithMetricsCollector configures a metrics collector.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &trisum.BasicMetricsCollector{}
//	s, _ := trisum.New(cfg, trisum.WithMetricsCollector(metrics))
//	// ... run ...
//	stats := metrics.GetStats()
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging. Pass nil to disable logging.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithCheckpointStore enables checkpointing of the build structure.
// Saves run in the background while the probe phase proceeds; a failed save
// is logged and reported in Result.CheckpointErr but never fails the run.
func WithCheckpointStore(store *checkpoint.Store) Option {
	return func(o *options) {
		o.store = store
	}
}

// WithResume names the checkpoint to resume the build structure from.
// "latest" resolves the LATEST pointer of the strategy's structure kind.
// A missing, corrupt or mismatched checkpoint is logged and rebuilt.
func WithResume(name string) Option {
	return func(o *options) {
		o.resume = name
	}
}

// WithCheckpointLabel sets the label of saved checkpoints.
// Defaults to the UTC creation timestamp.
func WithCheckpointLabel(label string) Option {
	return func(o *options) {
		o.label = label
	}
}

// WithResourceController bounds memory reservations, background checkpoint
// saves and checkpoint IO. Nil means unlimited.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) {
		o.resource = rc
	}
}

// WithSink delivers the triples of a successful run to s, chunk by chunk in
// chunk order. Nothing is written when the run fails.
func WithSink(s sink.Sink) Option {
	return func(o *options) {
		o.sink = s
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}

// WithSortedOutput orders Result.Triples by (C, A, B) row index, so every
// strategy and worker count yields the same sequence. Without it triples
// keep probe chunk order.
func WithSortedOutput() Option {
	return func(o *options) {
		o.sorted = true
	}
}
