// Package sink persists encoded event stacks.
package sink

import (
	"context"
	"io"
)

// Sink stores named artifacts.
type Sink interface {
	// Kind names the sink for logs and metrics.
	Kind() string
	// Prepare readies the destination before any Put; it fails with
	// ErrOutputNotEmpty when the destination must start empty and does not.
	Prepare(ctx context.Context) error
	// Put stores size bytes from r under name.
	Put(ctx context.Context, name string, r io.Reader, size int64, contentType string) error
	// Location describes where name ends up, for reports.
	Location(name string) string
}
