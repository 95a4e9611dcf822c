// Package service runs one extraction: it indexes the source, scans it for
// trigger frames and hands every event window to a pool of writers.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/frameevents/internal/adapters/mq/queue"
	"github.com/okian/frameevents/internal/adapters/mq/worker"
	"github.com/okian/frameevents/internal/domain/index"
	"github.com/okian/frameevents/internal/domain/model"
	"github.com/okian/frameevents/internal/domain/scan"
	"github.com/okian/frameevents/pkg/logger"
	"github.com/okian/frameevents/pkg/metrics"
)

// Default service configuration constants.
const (
	defaultQueueSize     = 64
	defaultProgressEvery = 500
	defaultThreshold     = 40
	defaultPadding       = 5
)

// Run statuses, used for metrics and the manifest.
const (
	StatusOK       = "ok"
	StatusEmpty    = "empty"
	StatusFailed   = "failed"
	StatusCanceled = "canceled"
)

// Source lists frame identifiers and loads frames by identifier.
type Source interface {
	List(ctx context.Context) ([]string, error)
	Load(ctx context.Context, identifier string) (model.Frame, error)
}

// Sink stores event stacks. Prepare runs once before anything is stored.
type Sink interface {
	Kind() string
	Prepare(ctx context.Context) error
	Put(ctx context.Context, name string, r io.Reader, size int64, contentType string) error
	Location(name string) string
}

// Report summarises a run.
type Report struct {
	RunID    string
	Params   scan.Params
	Started  time.Time
	Duration time.Duration
	// Frames is the number of indexed frames.
	Frames  int
	Issues  []*index.IssueError
	Windows []model.EventWindow
	Written []worker.Written
	// Canceled is set when the caller's context ended the scan early.
	Canceled bool
}

// Service orchestrates one extraction run.
type Service struct {
	mu sync.RWMutex

	source  Source
	encoder worker.Encoder
	sink    Sink

	params        scan.Params
	workerCount   int
	queueSize     int
	progressEvery int
	manifest      bool
	runID         string

	state         string
	framesTotal   int
	framesScanned int
	windows       int
	written       int
	writeErrors   int
	issues        int
	prepared      bool

	logger logger.Logger
}

// New constructs a Service reading from source and writing through sink.
func New(source Source, encoder worker.Encoder, sink Sink, opts ...Option) *Service {
	s := &Service{
		source:  source,
		encoder: encoder,
		sink:    sink,
		params: scan.Params{
			Threshold: defaultThreshold,
			Before:    defaultPadding,
			After:     defaultPadding,
		},
		workerCount:   runtime.NumCPU(),
		queueSize:     defaultQueueSize,
		progressEvery: defaultProgressEvery,
		manifest:      true,
		runID:         uuid.NewString(),
		state:         "idle",
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// RunID identifies this run in logs and the manifest.
func (s *Service) RunID() string { return s.runID }

// Run performs the extraction. Indexing issues are logged and reported but
// do not fail the run. An empty index fails with scan.ErrEmptySequence. A
// fetch failure stops the scan; windows already queued are still written.
// Canceling ctx stops the scan the same way.
func (s *Service) Run(ctx context.Context) (Report, error) {
	if s.logger == nil {
		s.logger = logger.Get().Named("extract")
	}
	log := s.logger

	report := Report{RunID: s.runID, Params: s.params, Started: time.Now()}
	s.begin()

	status, err := s.run(ctx, &report)
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		status = StatusCanceled
		report.Canceled = true
	}
	report.Duration = time.Since(report.Started)
	s.setState(status)
	metrics.RecordRun(status, report.Duration.Seconds())

	if s.manifest && s.isPrepared() {
		if merr := writeManifest(context.WithoutCancel(ctx), s.sink, newManifest(&report, status)); merr != nil {
			log.Error(ctx, "manifest not written", logger.Error(merr))
			err = errors.Join(err, merr)
		}
	}

	log.Info(ctx, "run finished",
		logger.String("run_id", s.runID),
		logger.String("status", status),
		logger.Int("frames", report.Frames),
		logger.Int("events", len(report.Written)),
		logger.Int("issues", len(report.Issues)),
		logger.Duration("elapsed", report.Duration),
	)
	return report, err
}

func (s *Service) run(ctx context.Context, report *Report) (string, error) {
	log := s.logger

	if err := s.params.Validate(); err != nil {
		return StatusFailed, err
	}

	ids, err := s.source.List(ctx)
	if err != nil {
		return StatusFailed, fmt.Errorf("list frames: %w", err)
	}

	res := index.Index(ids)
	report.Frames = len(res.Frames)
	report.Issues = res.Issues
	metrics.RecordFramesIndexed(len(res.Frames))
	for _, issue := range res.Issues {
		metrics.RecordIndexIssue(issueKind(issue))
		log.Warn(ctx, "frame skipped",
			logger.String("identifier", issue.Identifier),
			logger.Error(issue),
		)
	}
	s.mu.Lock()
	s.framesTotal = len(res.Frames)
	s.issues = len(res.Issues)
	s.mu.Unlock()

	if len(res.Frames) == 0 {
		return StatusEmpty, fmt.Errorf("%w: %d identifiers listed, none indexed", scan.ErrEmptySequence, len(ids))
	}

	if err := s.sink.Prepare(ctx); err != nil {
		return StatusFailed, fmt.Errorf("prepare output: %w", err)
	}
	s.mu.Lock()
	s.prepared = true
	s.mu.Unlock()

	scanner, err := scan.New(s.params, scan.WithProgress(s.progressEvery, s.progress(report.Started)))
	if err != nil {
		return StatusFailed, err
	}

	log.Info(ctx, "scan started",
		logger.String("run_id", s.runID),
		logger.Int("frames", len(res.Frames)),
		logger.Float64("threshold", s.params.Threshold),
		logger.Int("before", s.params.Before),
		logger.Int("after", s.params.After),
		logger.String("sink", s.sink.Kind()),
	)

	// A write failure stops the scan; the caller's cancellation stops it
	// too but never interrupts writes already queued.
	scanCtx, stopScan := context.WithCancel(ctx)
	defer stopScan()

	acc := frameAccessor{frames: res.Frames, source: s.source}
	q := queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
	pool := worker.NewPool(s.workerCount, q, acc, s.encoder, s.sink,
		worker.WithPoolLogger(log),
		worker.WithErrorHandler(func(context.Context, worker.Outcome) {
			s.mu.Lock()
			s.writeErrors++
			s.mu.Unlock()
			stopScan()
		}),
	)
	pool.Start(context.WithoutCancel(ctx))

	var scanErr error
	for w, err := range scanner.Scan(scanCtx, scan.Sequence{Frames: res.Frames, Data: acc}) {
		if err != nil {
			scanErr = err
			break
		}
		report.Windows = append(report.Windows, w)
		s.mu.Lock()
		s.windows++
		s.mu.Unlock()
		if err := q.Enqueue(scanCtx, queue.Job{Seq: len(report.Windows) - 1, Window: w}); err != nil {
			scanErr = err
			break
		}
	}
	_ = q.Close()

	written, writeErr := pool.Wait()
	report.Written = written
	s.mu.Lock()
	s.written = len(written)
	s.mu.Unlock()

	switch {
	case scanErr != nil && ctx.Err() != nil:
		report.Canceled = true
		log.Warn(ctx, "scan canceled",
			logger.Int("windows", len(report.Windows)),
			logger.Int("events", len(written)),
		)
		return StatusCanceled, errors.Join(ctx.Err(), writeErr)
	case writeErr != nil:
		// The scan error, if any, is the cancellation caused by the write failure.
		return StatusFailed, writeErr
	case scanErr != nil:
		var fe *scan.FetchError
		if errors.As(scanErr, &fe) {
			log.Error(ctx, "frame unavailable",
				logger.Int("position", fe.Position),
				logger.String("identifier", fe.Identifier),
				logger.Error(fe.Err),
			)
		}
		return StatusFailed, scanErr
	}
	return StatusOK, nil
}

// progress logs scan progress with elapsed time and a linear ETA.
func (s *Service) progress(started time.Time) scan.ProgressFunc {
	return func(ctx context.Context, position, total int) {
		s.mu.Lock()
		s.framesScanned = position
		s.mu.Unlock()

		ratio := float64(position) / float64(total)
		metrics.UpdateScanProgress(ratio)

		elapsed := time.Since(started)
		var eta time.Duration
		if position > 0 {
			eta = time.Duration(float64(elapsed) / ratio * (1 - ratio))
		}
		s.logger.Info(ctx, "scan progress",
			logger.Int("position", position),
			logger.Int("total", total),
			logger.Float64("percent", ratio*100),
			logger.Duration("elapsed", elapsed.Round(time.Millisecond)),
			logger.Duration("eta", eta.Round(time.Second)),
		)
	}
}

// begin clears the counters of any previous run so stats and the manifest
// describe only the current one.
func (s *Service) begin() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = "running"
	s.framesTotal = 0
	s.framesScanned = 0
	s.windows = 0
	s.written = 0
	s.writeErrors = 0
	s.issues = 0
	s.prepared = false
}

func (s *Service) setState(state string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

func (s *Service) isPrepared() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prepared
}

// GetStats returns run statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return map[string]interface{}{
		"runId":         s.runID,
		"state":         s.state,
		"sink":          s.sink.Kind(),
		"threshold":     s.params.Threshold,
		"before":        s.params.Before,
		"after":         s.params.After,
		"workerCount":   s.workerCount,
		"queueSize":     s.queueSize,
		"framesTotal":   s.framesTotal,
		"framesScanned": s.framesScanned,
		"indexIssues":   s.issues,
		"windows":       s.windows,
		"eventsWritten": s.written,
		"writeErrors":   s.writeErrors,
	}
}

func issueKind(issue *index.IssueError) string {
	if errors.Is(issue, index.ErrDuplicateOrderKey) {
		return "duplicate_order_key"
	}
	return "malformed_identifier"
}

// frameAccessor resolves positions to identifiers and loads them from the
// source.
type frameAccessor struct {
	frames []model.FrameRef
	source Source
}

func (a frameAccessor) Fetch(ctx context.Context, position int) (model.Frame, error) {
	if position < 0 || position >= len(a.frames) {
		return model.Frame{}, fmt.Errorf("position %d out of range [0,%d)", position, len(a.frames))
	}
	return a.source.Load(ctx, a.frames[position].Identifier)
}
