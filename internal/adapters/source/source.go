// Package source reads numbered single-frame image files from a directory.
package source

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/okian/frameevents/internal/domain/model"
)

// Decoder turns one image file into a frame.
type Decoder interface {
	Decode(r io.Reader) (model.Frame, error)
}

// Dir lists and loads frames from a single directory.
type Dir struct {
	root    string
	decoder Decoder
	exts    map[string]struct{}
}

// Option applies a configuration option to the Dir.
type Option func(*Dir)

// WithExtensions limits listing to files with one of exts (case-insensitive,
// with or without the leading dot). No extensions means every regular file.
func WithExtensions(exts ...string) Option {
	return func(d *Dir) {
		for _, e := range exts {
			e = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(e), "."))
			if e != "" {
				d.exts[e] = struct{}{}
			}
		}
	}
}

// New returns a Dir reading from root with decoder. The decoder is the
// caller's engine handle; Dir never creates one.
func New(root string, decoder Decoder, opts ...Option) *Dir {
	d := &Dir{
		root:    root,
		decoder: decoder,
		exts:    make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Root returns the directory being read.
func (d *Dir) Root() string { return d.root }

// List returns the names of candidate frame files. Subdirectories and
// hidden files are skipped.
func (d *Dir) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(d.root)
	if err != nil {
		return nil, fmt.Errorf("read frame directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := e.Name()
		if !e.Type().IsRegular() || strings.HasPrefix(name, ".") {
			continue
		}
		if len(d.exts) > 0 {
			ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
			if _, ok := d.exts[ext]; !ok {
				continue
			}
		}
		names = append(names, name)
	}
	return names, nil
}

// Load decodes the frame stored under identifier.
func (d *Dir) Load(ctx context.Context, identifier string) (model.Frame, error) {
	if err := ctx.Err(); err != nil {
		return model.Frame{}, err
	}
	f, err := os.Open(filepath.Join(d.root, identifier))
	if err != nil {
		return model.Frame{}, err
	}
	defer f.Close()

	frame, err := d.decoder.Decode(f)
	if err != nil {
		return model.Frame{}, fmt.Errorf("decode %s: %w", identifier, err)
	}
	return frame, nil
}
