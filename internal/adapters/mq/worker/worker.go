package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/okian/frameevents/internal/adapters/mq/queue"
	"github.com/okian/frameevents/internal/domain/index"
	"github.com/okian/frameevents/internal/domain/model"
	"github.com/okian/frameevents/pkg/logger"
	"github.com/okian/frameevents/pkg/metrics"
)

const poolShutdownTimeout = 30 * time.Second

// Write stages, used as metric labels and in errors.
const (
	StageLoad   = "load"
	StageEncode = "encode"
	StagePut    = "put"
)

// Loader fetches frame data by position.
type Loader interface {
	Fetch(ctx context.Context, position int) (model.Frame, error)
}

// Encoder serialises a stack of frames into one artifact.
type Encoder interface {
	EncodeStack(w io.Writer, frames []model.Frame) error
	Ext() string
	ContentType() string
}

// Sink stores encoded artifacts.
type Sink interface {
	Kind() string
	Put(ctx context.Context, name string, r io.Reader, size int64, contentType string) error
	Location(name string) string
}

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Job
}

// Written describes one stored event stack.
type Written struct {
	Seq      int
	Window   model.EventWindow
	Name     string
	Location string
	Frames   int
	Bytes    int64
}

// Outcome is the result of processing one job.
type Outcome struct {
	Written
	Stage string // failing stage; empty on success
	Err   error
}

// Worker consumes jobs from a queue.
type Worker interface {
	// Run starts the worker loop until ctx is canceled or the queue drains.
	Run(ctx context.Context)

	// Shutdown gracefully stops the worker.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker loads, encodes and stores one window at a time.
type InMemoryWorker struct {
	queue   Queue
	loader  Loader
	encoder Encoder
	sink    Sink
	name    string
	report  func(ctx context.Context, o Outcome)

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(queue Queue, loader Loader, encoder Encoder, sink Sink, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    queue,
		loader:   loader,
		encoder:  encoder,
		sink:     sink,
		name:     "writer",
		report:   func(context.Context, Outcome) {},
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(w)
	}

	if w.logger == nil {
		w.logger = logger.Get().Named("writer")
	}
	if w.name != "writer" {
		w.logger = w.logger.Named(w.name)
	}

	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			w.report(ctx, w.process(ctx, job))
		}
	}
}

// Shutdown stops the worker after its current job.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.shutdownOnce.Do(func() { close(w.shutdown) })

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Done is closed once Run has returned.
func (w *InMemoryWorker) Done() <-chan struct{} { return w.done }

func (w *InMemoryWorker) process(ctx context.Context, job queue.Job) Outcome {
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
	}()

	win := job.Window
	name := index.OutputName(win, w.encoder.Ext())
	out := Outcome{Written: Written{
		Seq:      job.Seq,
		Window:   win,
		Name:     name,
		Location: w.sink.Location(name),
		Frames:   win.Len(),
	}}
	fail := func(stage string, err error) Outcome {
		metrics.RecordWriteError(w.sink.Kind(), stage)
		w.logger.Error(ctx, "event write failed",
			logger.String("name", name),
			logger.String("stage", stage),
			logger.Error(err),
		)
		out.Stage = stage
		out.Err = fmt.Errorf("write %s: %s: %w", name, stage, err)
		return out
	}

	frames := make([]model.Frame, 0, win.Len())
	for pos := win.StartPosition; pos <= win.EndPosition; pos++ {
		f, err := w.loader.Fetch(ctx, pos)
		if err != nil {
			return fail(StageLoad, err)
		}
		frames = append(frames, f)
	}

	encodeStart := time.Now()
	var buf bytes.Buffer
	if err := w.encoder.EncodeStack(&buf, frames); err != nil {
		return fail(StageEncode, err)
	}
	metrics.RecordEncodeLatency(float64(time.Since(encodeStart).Milliseconds()))

	size := int64(buf.Len())
	putStart := time.Now()
	if err := w.sink.Put(ctx, name, &buf, size, w.encoder.ContentType()); err != nil {
		return fail(StagePut, err)
	}
	metrics.RecordPutLatency(w.sink.Kind(), float64(time.Since(putStart).Milliseconds()))
	metrics.RecordEventWritten(w.sink.Kind(), len(frames), size)

	out.Bytes = size
	w.logger.Debug(ctx, "event written",
		logger.String("name", name),
		logger.Int("frames", len(frames)),
		logger.Int("bytes", int(size)),
	)
	return out
}

// Pool manages multiple writers and collects their outcomes.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	onError func(ctx context.Context, o Outcome)

	mu      sync.Mutex
	written []Written
	errs    []error

	logger logger.Logger
}

// NewPool creates a new writer pool. A workerCount below one means one.
func NewPool(workerCount int, queue Queue, loader Loader, encoder Encoder, sink Sink, opts ...PoolOption) *Pool {
	if workerCount < 1 {
		workerCount = 1
	}

	pool := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   queue,
		onError: func(context.Context, Outcome) {},
	}
	for _, opt := range opts {
		opt(pool)
	}
	if pool.logger == nil {
		pool.logger = logger.Get().Named("writer-pool")
	}

	for i := 0; i < workerCount; i++ {
		pool.workers[i] = NewInMemoryWorker(
			queue,
			loader,
			encoder,
			sink,
			WithName("writer-"+strconv.Itoa(i)),
			WithLogger(pool.logger),
			WithReporter(pool.collect),
		)
	}

	metrics.UpdateWorkerActiveCount(0)

	return pool
}

func (p *Pool) collect(ctx context.Context, o Outcome) {
	if o.Err != nil {
		p.onError(ctx, o)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if o.Err != nil {
		p.errs = append(p.errs, o.Err)
		return
	}
	p.written = append(p.written, o.Written)
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	metrics.UpdateWorkerActiveCount(len(p.workers))
	for _, worker := range p.workers {
		go worker.Run(ctx)
	}
}

// Wait blocks until every worker has returned, then reports the stored
// stacks in emission order and the joined write errors.
func (p *Pool) Wait() ([]Written, error) {
	for _, worker := range p.workers {
		<-worker.Done()
	}
	metrics.UpdateWorkerActiveCount(0)
	return p.Results()
}

// Results returns what has been collected so far.
func (p *Pool) Results() ([]Written, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	written := slices.Clone(p.written)
	slices.SortFunc(written, func(a, b Written) int { return a.Seq - b.Seq })
	return written, errors.Join(p.errs...)
}

// Shutdown closes the queue when it supports it and waits for the workers
// to drain it, bounded by ctx and a fixed timeout.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	for i, worker := range p.workers {
		select {
		case <-worker.Done():
		case <-shutdownCtx.Done():
			p.logger.Warn(ctx, "writer shutdown timed out", logger.Int("worker_id", i))
			return fmt.Errorf("writer shutdown: %w", shutdownCtx.Err())
		}
	}
	metrics.UpdateWorkerActiveCount(0)
	return nil
}
