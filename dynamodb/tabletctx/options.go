package tabletctx

import (
	"io"
	"log/slog"
	"time"
)

const (
	DefaultWriteTimeout = 30 * time.Second
	DefaultWaitTimeout  = 5 * time.Minute
)

type Option func(*options)

type options struct {
	logger         *slog.Logger
	writeTimeout   time.Duration
	waitTimeout    time.Duration
	waiterMinDelay time.Duration
	waiterMaxDelay time.Duration
	closer         io.Closer
}

func defaultOptions() options {
	return options{
		logger:       slog.Default(),
		writeTimeout: DefaultWriteTimeout,
		waitTimeout:  DefaultWaitTimeout,
	}
}

// WithLogger sets the logger. Every record carries the context id, table and write mode.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithWriteTimeout bounds each WriteRow call. Non-positive values keep the default.
func WithWriteTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.writeTimeout = d
		}
	}
}

// WithWaitTimeout bounds how long Create and Delete wait for the table to settle.
func WithWaitTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.waitTimeout = d
		}
	}
}

// WithWaiterDelay sets the polling delays used while waiting for table status changes.
// The SDK defaults (20s to 120s) apply when unset.
func WithWaiterDelay(minDelay, maxDelay time.Duration) Option {
	return func(o *options) {
		if minDelay > 0 && maxDelay >= minDelay {
			o.waiterMinDelay = minDelay
			o.waiterMaxDelay = maxDelay
		}
	}
}

// WithCloser hands ownership of the store session to the Context. Close closes it.
func WithCloser(c io.Closer) Option {
	return func(o *options) {
		o.closer = c
	}
}
