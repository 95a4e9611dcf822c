// Package worker turns queued event windows into stored stacks.
package worker

import (
	"context"

	"github.com/okian/frameevents/pkg/logger"
)

// Option applies a configuration option to the InMemoryWorker.
type Option func(*InMemoryWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *InMemoryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(logger logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithReporter sets the callback invoked after every job, successful or not.
func WithReporter(fn func(ctx context.Context, o Outcome)) Option {
	return func(w *InMemoryWorker) {
		if fn != nil {
			w.report = fn
		}
	}
}

// PoolOption applies a configuration option to the Pool.
type PoolOption func(*Pool)

// WithErrorHandler is called for every failed job. Handlers run on worker
// goroutines and must be safe for concurrent use.
func WithErrorHandler(fn func(ctx context.Context, o Outcome)) PoolOption {
	return func(p *Pool) {
		if fn != nil {
			p.onError = fn
		}
	}
}

// WithPoolLogger sets the logger the pool and its workers derive from.
func WithPoolLogger(l logger.Logger) PoolOption {
	return func(p *Pool) {
		if l != nil {
			p.logger = l
		}
	}
}
