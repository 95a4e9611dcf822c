package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/frameevents/internal/adapters/codec"
	"github.com/okian/frameevents/internal/adapters/http/api"
	"github.com/okian/frameevents/internal/adapters/sink"
	"github.com/okian/frameevents/internal/adapters/source"
	service "github.com/okian/frameevents/internal/app"
	"github.com/okian/frameevents/internal/config"
	"github.com/okian/frameevents/internal/domain/scan"
	"github.com/okian/frameevents/pkg/logger"
	"github.com/okian/frameevents/pkg/metrics"
)

// Exit codes.
const (
	exitOK       = 0
	exitFailure  = 1
	exitUsage    = 2
	exitCanceled = 130
)

const systemMetricsInterval = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// options mirrors the command line. Only flags that were set override the
// loaded configuration.
type options struct {
	configPath     string
	input          string
	output         string
	threshold      float64
	before         int
	after          int
	sink           string
	metricsAddr    string
	logLevel       string
	logFormat      string
	writers        int
	allowNonEmpty  bool
	noManifest     bool
	progressPeriod int
}

func parseFlags(args []string, stderr io.Writer) (*options, *flag.FlagSet, error) {
	o := &options{}
	fs := flag.NewFlagSet("frameevents", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: frameevents [flags] [input_dir]\n\n"+
			"Extracts padded windows around frames whose brightest pixel reaches the threshold\n"+
			"and stores each window as one multi-page TIFF.\n\nFlags:\n")
		fs.PrintDefaults()
	}
	fs.StringVar(&o.configPath, "config", "", "YAML config file (default $FRAMEEVENTS_CONFIG)")
	fs.StringVar(&o.input, "input", "", "directory of numbered frames")
	fs.StringVar(&o.output, "output", "", "output directory (default <input>/events)")
	fs.Float64Var(&o.threshold, "threshold", 0, "trigger when a frame's maximum is >= this value")
	fs.IntVar(&o.before, "before", 0, "frames kept before a trigger")
	fs.IntVar(&o.after, "after", 0, "frames kept after a trigger")
	fs.StringVar(&o.sink, "sink", "", "output sink: fs or minio")
	fs.StringVar(&o.metricsAddr, "metrics-addr", "", "serve /healthz and /stats on this address")
	fs.StringVar(&o.logLevel, "log-level", "", "debug, info, warn or error")
	fs.StringVar(&o.logFormat, "log-format", "", "text or json")
	fs.IntVar(&o.writers, "writers", 0, "number of concurrent writers")
	fs.BoolVar(&o.allowNonEmpty, "allow-nonempty", false, "write into an output that already has files")
	fs.BoolVar(&o.noManifest, "no-manifest", false, "do not write events.json")
	fs.IntVar(&o.progressPeriod, "progress", 0, "log progress every N frames (0 keeps the configured value)")

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	if fs.NArg() > 1 {
		return nil, nil, fmt.Errorf("expected at most one input directory, got %d arguments", fs.NArg())
	}
	if fs.NArg() == 1 {
		o.input = fs.Arg(0)
	}
	return o, fs, nil
}

// apply copies explicitly set flags onto cfg.
func (o *options) apply(cfg *config.Config, fs *flag.FlagSet) {
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if o.input != "" {
		cfg.InputDir = o.input
	}
	if set["output"] {
		cfg.OutputDir = o.output
	}
	if set["threshold"] {
		cfg.Threshold = o.threshold
	}
	if set["before"] {
		cfg.Before = o.before
	}
	if set["after"] {
		cfg.After = o.after
	}
	if set["sink"] {
		cfg.Sink = o.sink
	}
	if set["metrics-addr"] {
		cfg.MetricsAddr = o.metricsAddr
	}
	if set["log-level"] {
		cfg.LogLevel = o.logLevel
	}
	if set["log-format"] {
		cfg.LogFormat = o.logFormat
	}
	if set["writers"] {
		cfg.WriterCount = o.writers
	}
	if set["allow-nonempty"] {
		cfg.RequireEmptyOutput = !o.allowNonEmpty
	}
	if set["no-manifest"] {
		cfg.Manifest = !o.noManifest
	}
	if set["progress"] {
		cfg.ProgressInterval = o.progressPeriod
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, fs, err := parseFlags(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return exitOK
	}
	if err != nil {
		fmt.Fprintln(stderr, "frameevents:", err)
		return exitUsage
	}

	if err := logger.InitWithWriter(stderr); err != nil {
		fmt.Fprintln(stderr, "failed to initialize logging:", err)
		return exitFailure
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load(ctx, opts.configPath)
	if err != nil {
		fmt.Fprintln(stderr, "failed to load config:", err)
		return exitUsage
	}
	opts.apply(cfg, fs)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}

	if err := logger.SetFormat(cfg.LogFormat); err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}
	log := logger.Get()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	if err := metrics.Configure(
		metrics.WithNamespace(cfg.MetricsNamespace),
		metrics.WithCustomLabels(cfg.MetricsLabels),
		metrics.WithHistogramBuckets(cfg.MetricsLatencyBuckets),
	); err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}

	cdc := codec.New()
	src := source.New(cfg.InputDir, cdc, source.WithExtensions(cfg.Extensions...))
	snk, err := buildSink(cfg)
	if err != nil {
		log.Error(ctx, "sink unavailable", logger.Error(err))
		return exitFailure
	}

	svc := service.New(src, cdc, snk,
		service.WithParams(cfg.ScanParams()),
		service.WithWorkerCount(cfg.WriterCount),
		service.WithQueueSize(cfg.QueueSize),
		service.WithProgressInterval(cfg.ProgressInterval),
		service.WithManifest(cfg.Manifest),
		service.WithLogger(log.Named("extract")),
	)

	serverCtx, stopServer := context.WithCancel(ctx)
	defer stopServer()
	if cfg.MetricsAddr != "" {
		go startSystemMetricsUpdater(serverCtx)
		go func() {
			if err := api.NewServer(svc).ListenAndServe(serverCtx, cfg.MetricsAddr); err != nil {
				log.Error(ctx, "metrics server failed", logger.Error(err))
			}
		}()
	}

	report, err := svc.Run(ctx)
	printReport(stdout, report)

	switch {
	case err == nil:
		return exitOK
	case report.Canceled:
		log.Warn(ctx, "interrupted; events already written are kept", logger.Error(err))
		return exitCanceled
	case errors.Is(err, scan.ErrEmptySequence):
		log.Error(ctx, "no frames to scan", logger.String("input", cfg.InputDir), logger.Error(err))
		return exitFailure
	default:
		log.Error(ctx, "extraction failed", logger.Error(err))
		return exitFailure
	}
}

func buildSink(cfg *config.Config) (service.Sink, error) {
	switch cfg.Sink {
	case config.SinkMinIO:
		s, err := sink.NewMinIO(sink.MinIOConfig{
			Endpoint:     cfg.MinIO.Endpoint,
			AccessKey:    cfg.MinIO.AccessKey,
			SecretKey:    cfg.MinIO.SecretKey,
			UseSSL:       cfg.MinIO.UseSSL,
			Bucket:       cfg.MinIO.Bucket,
			Prefix:       cfg.MinIO.Prefix,
			RequireEmpty: cfg.RequireEmptyOutput,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return sink.NewFS(cfg.EventsDir(), sink.WithRequireEmpty(cfg.RequireEmptyOutput)), nil
	}
}

func printReport(w io.Writer, r service.Report) {
	for _, ev := range r.Written {
		fmt.Fprintf(w, "%s\t%d frames\t[%d..%d]\n", ev.Location, ev.Frames, ev.Window.StartPosition, ev.Window.EndPosition)
	}
	fmt.Fprintf(w, "%d events from %d frames (%d skipped) in %s\n",
		len(r.Written), r.Frames, len(r.Issues), r.Duration.Round(time.Millisecond))
}

// startSystemMetricsUpdater refreshes process gauges while the metrics
// server is up.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	updateSystemMetrics()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
}
