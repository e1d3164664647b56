package bcache

import (
	"log/slog"

	"github.com/hupe1980/bcache/resource"
)

const (
	// DefaultBuffers is the default number of buffers.
	DefaultBuffers = 30
	// DefaultBuckets is the default number of hash buckets. A prime spreads
	// sequential block numbers evenly.
	DefaultBuckets = 13
	// DefaultBlockSize is the default block size in bytes.
	DefaultBlockSize = 1024
)

type options struct {
	buffers          int
	buckets          int
	blockSize        int
	logger           *Logger
	metricsCollector MetricsCollector
	resources        *resource.Controller
}

func defaultOptions() options {
	return options{
		buffers:          DefaultBuffers,
		buckets:          DefaultBuckets,
		blockSize:        DefaultBlockSize,
		logger:           NoopLogger(),
		metricsCollector: NoopMetricsCollector{},
	}
}

// Option configures New.
type Option func(*options)

// WithBuffers sets the number of buffers. The pool never grows.
func WithBuffers(n int) Option {
	return func(o *options) {
		o.buffers = n
	}
}

// WithBuckets sets the number of hash buckets. Each bucket has its own
// lock, so more buckets mean less contention between unrelated blocks.
func WithBuckets(n int) Option {
	return func(o *options) {
		o.buckets = n
	}
}

// WithBlockSize sets the block size. Every mounted device must match it.
func WithBlockSize(n int) Option {
	return func(o *options) {
		o.blockSize = n
	}
}

// WithLogger configures structured logging.
// Pass nil to disable logging.
//
// Example:
//
//	logger := bcache.NewJSONLogger(slog.LevelDebug)
//	c, err := bcache.New(bcache.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel logs human-readable text to stderr at the given level.
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &bcache.BasicMetricsCollector{}
//	c, err := bcache.New(bcache.WithMetricsCollector(metrics))
//	...
//	fmt.Printf("hit ratio: %.2f\n", metrics.GetStats().HitRatio())
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithResourceController charges the buffer arena against the memory
// budget of rc. New fails if the budget is too small.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) {
		o.resources = rc
	}
}
