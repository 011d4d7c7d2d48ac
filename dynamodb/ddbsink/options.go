package ddbsink

import (
	"log/slog"
)

const (
	// MaxBatchSize is the store's limit on requests per BatchWriteItem call.
	MaxBatchSize       = 25
	DefaultBatchSize   = MaxBatchSize
	DefaultConcurrency = 8
	DefaultMaxRetries  = 5
)

type Option func(*sinkOpts)

type sinkOpts struct {
	batchSize   int
	concurrency int
	maxRetries  int
	backoff     BackoffFunc
	logger      *slog.Logger
}

// WithBatchSize sets how many rows are buffered before a flush. Values are clamped to 1..25.
func WithBatchSize(n int) Option {
	return func(o *sinkOpts) {
		o.batchSize = min(max(n, 1), MaxBatchSize)
	}
}

// WithConcurrency bounds how many rows are written at once when a flush goes row by row.
func WithConcurrency(n int) Option {
	return func(o *sinkOpts) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithMaxRetries sets how often unprocessed batch items are retried. Zero disables retries.
func WithMaxRetries(n int) Option {
	return func(o *sinkOpts) {
		if n >= 0 {
			o.maxRetries = n
		}
	}
}

// WithBackoff sets the wait between batch retries. Defaults to [DefaultBackoff].
func WithBackoff(fn BackoffFunc) Option {
	return func(o *sinkOpts) {
		if fn != nil {
			o.backoff = fn
		}
	}
}

// WithLogger overrides the logger, which otherwise is the Context's.
func WithLogger(l *slog.Logger) Option {
	return func(o *sinkOpts) {
		if l != nil {
			o.logger = l
		}
	}
}
