package output

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/gofrs/flock"

	"github.com/mati/keyload/internal/metrics"
)

// WriteResultsBlock writes one labelled latency block in the results log format:
//
//	200 ->
//	   Min: 1.20
//	   Average: 3.40
//	   ...
func WriteResultsBlock(w io.Writer, label string, stats metrics.Stats) error {
	_, err := fmt.Fprintf(w,
		"%s ->\n   Min: %.2f\n   Average: %.2f\n   Median: %.2f\n   P90: %.2f\n   P95: %.2f\n   Max: %.2f\n\n",
		label,
		stats.MinLatencyMs,
		stats.MeanLatencyMs,
		stats.P50LatencyMs,
		stats.P90LatencyMs,
		stats.P95LatencyMs,
		stats.MaxLatencyMs,
	)
	return err
}

// AppendResults appends a block to path. Concurrent keyload processes sharing the
// file serialise on an exclusive lock of path+".lock".
func AppendResults(ctx context.Context, path, label string, stats metrics.Stats) error {
	lock := flock.New(path + ".lock")
	locked, err := lock.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil {
		return fmt.Errorf("lock results file: %w", err)
	}
	if !locked {
		return fmt.Errorf("lock results file: %s is held by another process", path+".lock")
	}
	defer func() { _ = lock.Unlock() }()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open results file: %w", err)
	}
	if err := WriteResultsBlock(f, label, stats); err != nil {
		_ = f.Close()
		return fmt.Errorf("write results file: %w", err)
	}
	return f.Close()
}
