package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/mati/keyload/internal/config"
	"github.com/mati/keyload/internal/httpclient"
	"github.com/mati/keyload/internal/metrics"
	"github.com/mati/keyload/internal/output"
	"github.com/mati/keyload/internal/runner"
	"github.com/mati/keyload/internal/threshold"
	"github.com/mati/keyload/internal/tracing"
)

const (
	progressInterval = time.Second
	shutdownTimeout  = 5 * time.Second
)

// Exit codes.
const (
	exitPass   = 0
	exitFail   = 1
	exitConfig = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	cfg, err := config.NewLoader().Load(args)
	if err != nil {
		if errors.Is(err, config.ErrHelpRequested) {
			return exitPass
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitConfig
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitConfig
	}
	thresholds, err := threshold.ParseMultiple(cfg.Thresholds)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitConfig
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	runID := ulid.Make().String()
	tp, err := tracing.Init(ctx, cfg.Tracing, tracing.RunInfo{
		ID:      runID,
		Target:  cfg.TargetURL,
		Profile: string(cfg.Profile),
		Rate:    cfg.Rate,
	})
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitConfig
	}
	defer func() {
		shutdownCtx, done := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer done()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			fmt.Fprintf(stderr, "[keyload] tracing shutdown: %v\n", err)
		}
	}()

	builder, err := httpclient.NewPayloadBuilder(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitConfig
	}

	collector := metrics.NewCollector()
	requester := &keyRequester{
		client:    httpclient.NewClient(cfg.Timeout, cfg.MaxWorkers),
		builder:   builder,
		collector: collector,
		accepts:   cfg.Accepts,
		spans:     tp,
	}

	var wrapped runner.Requester = requester
	var failures *stderrFailureLogger
	if cfg.LogErrors {
		failures = newFailureLogger(stderr)
		wrapped = runner.WithLogging(wrapped, failures)
	}

	planned := cfg.PlannedIterations()
	liveProgress := cfg.Output == config.OutputText

	opts := runner.Options{
		Rate:         cfg.Rate,
		Duration:     cfg.Duration,
		PreAllocated: cfg.PreAllocatedWorkers,
		MaxWorkers:   cfg.MaxWorkers,
		GracePeriod:  cfg.GracePeriod,
		Requester:    wrapped,
		OnDrop:       func(runner.Iteration) { collector.RecordDropped() },
	}
	if !liveProgress && cfg.ProgressEvery > 0 {
		opts.OnDispatch = newProgressLogger(stderr, cfg.ProgressEvery, planned).LogDispatch
	}
	r := runner.New(opts)

	fmt.Fprintf(stderr, "[keyload] run %s: %d iterations at %g/s against %s\n", runID, planned, cfg.Rate, cfg.TargetURL)

	collector.Start()
	var progress *output.ProgressReporter
	if liveProgress {
		progress = output.NewProgressReporter(collector, planned, progressInterval, stderr)
		progress.Start()
	}

	result := r.Run(ctx)
	if progress != nil {
		progress.Stop()
	}
	if failures != nil {
		failures.Flush()
	}
	stats := collector.Stats(result.Duration)

	report := output.NewReport(output.ReportInput{
		RunID:      runID,
		Target:     cfg.TargetURL,
		Profile:    string(cfg.Profile),
		TargetRate: cfg.Rate,
		Planned:    planned,
		Stats:      stats,
		Result:     result,
		SLO:        threshold.SLO{Percentile: cfg.SLO.Percentile, Threshold: cfg.SLO.Threshold},
		Thresholds: thresholds,
	})

	switch cfg.Output {
	case config.OutputJSON:
		err = output.PrintJSONReport(stdout, report)
	case config.OutputYAML:
		err = output.PrintYAMLReport(stdout, report)
	default:
		output.PrintReport(stdout, report)
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitConfig
	}

	if cfg.ResultsFile != "" {
		label := cfg.ResultsLabel
		if label == "" {
			label = strconv.Itoa(cfg.MaxWorkers)
		}
		appendCtx, done := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		err := output.AppendResults(appendCtx, cfg.ResultsFile, label, report.Stats)
		done()
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return exitConfig
		}
	}

	if !report.Passed {
		return exitFail
	}
	return exitPass
}
