package main

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/mati/keyload/internal/runner"
)

// stderrFailureLogger prints failed iterations. After the first burst it prints at
// most one line per second and reports how many it skipped in between.
type stderrFailureLogger struct {
	mu      sync.Mutex
	w       io.Writer
	every   rate.Sometimes
	skipped int
}

func newFailureLogger(w io.Writer) *stderrFailureLogger {
	return &stderrFailureLogger{
		w:     w,
		every: rate.Sometimes{First: 10, Interval: time.Second},
	}
}

func (l *stderrFailureLogger) LogFailure(it runner.Iteration, err error) {
	if err == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	logged := false
	l.every.Do(func() {
		logged = true
		if l.skipped > 0 {
			fmt.Fprintf(l.w, "[keyload] %d failures not shown\n", l.skipped)
			l.skipped = 0
		}
		fmt.Fprintf(l.w, "[keyload] iteration %d failed: %s\n", it.Index, describeFailure(err))
	})
	if !logged {
		l.skipped++
	}
}

// Flush reports failures skipped since the last printed line. Call it once the
// run has finished.
func (l *stderrFailureLogger) Flush() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.skipped > 0 {
		fmt.Fprintf(l.w, "[keyload] %d failures not shown\n", l.skipped)
		l.skipped = 0
	}
}

func describeFailure(err error) string {
	var httpErr *runner.HTTPError
	if errors.As(err, &httpErr) {
		if httpErr.Message != "" {
			return fmt.Sprintf("status %d: %s", httpErr.StatusCode, httpErr.Message)
		}
		return fmt.Sprintf("status %d", httpErr.StatusCode)
	}
	return err.Error()
}

// progressLogger prints a line for iteration 0 and every n-th iteration after it.
// It is called from the scheduler goroutine only.
type progressLogger struct {
	w       io.Writer
	planned int64
	every   rate.Sometimes
}

func newProgressLogger(w io.Writer, n int, planned int64) *progressLogger {
	return &progressLogger{
		w:       w,
		planned: planned,
		every:   rate.Sometimes{Every: n},
	}
}

func (p *progressLogger) LogDispatch(it runner.Iteration) {
	p.every.Do(func() {
		fmt.Fprintf(p.w, "[keyload] iteration %d/%d dispatched (lag %s)\n",
			it.Index, p.planned, it.Lag().Round(time.Millisecond))
	})
}
