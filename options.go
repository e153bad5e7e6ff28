package atree

const (
	// DefaultParseCacheSize is the default number of parsed expressions kept
	// in an index's parse cache.
	DefaultParseCacheSize = 10_000
)

type options struct {
	logger           *Logger
	metricsCollector MetricsCollector
	parseCacheSize   int64
	concurrency      int
}

func defaultOptions() options {
	return options{
		logger:           NoopLogger(),
		metricsCollector: NoopMetricsCollector{},
		parseCacheSize:   DefaultParseCacheSize,
		concurrency:      1,
	}
}

// Option configures an Index.
type Option func(*options)

// WithLogger configures structured logging.  Pass nil to disable logging.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		if l == nil {
			l = NoopLogger()
		}
		o.logger = l
	}
}

// WithMetricsCollector configures a metrics collector for monitoring
// operations.  Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &atree.BasicMetricsCollector{}
//	idx, _ := atree.New(schema, atree.WithMetricsCollector(metrics))
//	// ... use idx ...
//	stats := metrics.GetStats()
func WithMetricsCollector(m MetricsCollector) Option {
	return func(o *options) {
		if m == nil {
			m = NoopMetricsCollector{}
		}
		o.metricsCollector = m
	}
}

// WithParseCacheSize sets the number of parsed expressions cached by the
// index.  Expressions differing only in their literals share an entry.  Zero
// disables the cache.
func WithParseCacheSize(n int64) Option {
	return func(o *options) {
		if n < 0 {
			n = 0
		}
		o.parseCacheSize = n
	}
}

// WithConcurrency sets how many attributes' leaf matchers run in parallel
// during a search, and how many events SearchBatch evaluates at once.
// Values below 1 are treated as 1.
func WithConcurrency(n int) Option {
	return func(o *options) {
		if n < 1 {
			n = 1
		}
		o.concurrency = n
	}
}
