package service

import (
	"github.com/okian/frameevents/internal/domain/scan"
	"github.com/okian/frameevents/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithParams sets the trigger threshold and padding.
func WithParams(p scan.Params) Option {
	return func(s *Service) {
		s.params = p
	}
}

// WithWorkerCount sets the number of writer goroutines.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets how many windows may wait for a writer.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithProgressInterval logs scan progress every n frames. Zero disables it.
func WithProgressInterval(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.progressEvery = n
		}
	}
}

// WithManifest toggles writing events.json next to the stacks.
func WithManifest(enabled bool) Option {
	return func(s *Service) {
		s.manifest = enabled
	}
}

// WithRunID overrides the generated run identifier.
func WithRunID(id string) Option {
	return func(s *Service) {
		if id != "" {
			s.runID = id
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(logger logger.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}
