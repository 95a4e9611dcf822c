package sink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

const (
	dirPermission  = 0o755
	filePermission = 0o644
)

// FS writes artifacts into a local directory.
type FS struct {
	dir          string
	requireEmpty bool
}

// FSOption applies a configuration option to FS.
type FSOption func(*FS)

// WithRequireEmpty makes Prepare refuse a directory that already has entries.
func WithRequireEmpty(require bool) FSOption {
	return func(s *FS) {
		s.requireEmpty = require
	}
}

// NewFS returns a sink writing into dir.
func NewFS(dir string, opts ...FSOption) *FS {
	s := &FS{dir: dir}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Kind implements Sink.
func (s *FS) Kind() string { return "fs" }

// Location implements Sink.
func (s *FS) Location(name string) string { return filepath.Join(s.dir, name) }

// Prepare creates the directory and enforces the emptiness policy.
func (s *FS) Prepare(_ context.Context) error {
	if err := os.MkdirAll(s.dir, dirPermission); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	if !s.requireEmpty {
		return nil
	}
	f, err := os.Open(s.dir)
	if err != nil {
		return fmt.Errorf("open output directory: %w", err)
	}
	defer f.Close()
	names, err := f.Readdirnames(1)
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read output directory: %w", err)
	}
	if len(names) > 0 {
		return fmt.Errorf("%w: %s contains %s", ErrOutputNotEmpty, s.dir, names[0])
	}
	return nil
}

// Put writes to a temporary file and renames it into place, so a reader
// never sees a partial artifact.
func (s *FS) Put(ctx context.Context, name string, r io.Reader, _ int64, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.dir, "."+name+".*.part")
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPut, name, err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%w: %s: %w", ErrPut, name, err)
	}
	if err := tmp.Chmod(filePermission); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%w: %s: %w", ErrPut, name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPut, name, err)
	}
	if err := os.Rename(tmpName, s.Location(name)); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPut, name, err)
	}
	return nil
}
