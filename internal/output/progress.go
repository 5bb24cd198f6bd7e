package output

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/mati/keyload/internal/metrics"
)

// ProgressReporter prints a live status line while a run is in progress.
type ProgressReporter struct {
	collector *metrics.Collector
	planned   int64
	ticker    *time.Ticker
	done      chan struct{}
	finished  chan struct{}
	writer    io.Writer
	active    int32
}

// NewProgressReporter creates a progress reporter that updates at the given interval.
// planned is the number of iterations the run schedules; 0 hides the percentage.
func NewProgressReporter(collector *metrics.Collector, planned int64, interval time.Duration, writer io.Writer) *ProgressReporter {
	if writer == nil {
		writer = io.Discard
	}
	return &ProgressReporter{
		collector: collector,
		planned:   planned,
		ticker:    time.NewTicker(interval),
		done:      make(chan struct{}),
		finished:  make(chan struct{}),
		writer:    writer,
	}
}

// Start begins displaying progress updates in a background goroutine.
func (p *ProgressReporter) Start() {
	if !atomic.CompareAndSwapInt32(&p.active, 0, 1) {
		return
	}
	go p.run()
}

// Stop halts progress updates and ends the status line.
func (p *ProgressReporter) Stop() {
	if atomic.CompareAndSwapInt32(&p.active, 1, 0) {
		close(p.done)
		p.ticker.Stop()
		<-p.finished
		fmt.Fprintln(p.writer)
	}
}

func (p *ProgressReporter) run() {
	defer close(p.finished)
	for {
		select {
		case <-p.ticker.C:
			fmt.Fprint(p.writer, "\r"+FormatProgress(p.collector.Live(p.collector.Elapsed()), p.planned))
		case <-p.done:
			return
		}
	}
}

// FormatProgress renders one progress line from a live snapshot.
func FormatProgress(live metrics.LiveStats, planned int64) string {
	line := fmt.Sprintf("Requests: %d", live.Total)
	if planned > 0 {
		line += fmt.Sprintf("/%d (%.0f%%)", planned, float64(live.Total+live.Dropped)/float64(planned)*100)
	}
	line += fmt.Sprintf(" | Successes: %d | Failures: %d | RPS: %.1f | P95: %.1fms",
		live.Successes, live.Failures, live.RequestsPerSec,
		float64(live.P95Latency)/float64(time.Millisecond))
	if live.Dropped > 0 {
		line += fmt.Sprintf(" | Dropped: %d", live.Dropped)
	}
	return line
}
