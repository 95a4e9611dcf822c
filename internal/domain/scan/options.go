package scan

import "context"

// ProgressFunc receives the cursor position after each step of a scan.
type ProgressFunc func(ctx context.Context, position, total int)

// Option applies a configuration option to the Scanner.
type Option func(*Scanner)

// WithProgress calls fn whenever the cursor crosses another multiple of
// every frames, and once when the scan completes. every <= 0 disables it.
func WithProgress(every int, fn ProgressFunc) Option {
	return func(s *Scanner) {
		if every > 0 && fn != nil {
			s.progressEvery = every
			s.progress = fn
		}
	}
}
