package runner

import (
	"context"
	"math"
	"time"
)

// scheduledIterations is floor(rate * d). The epsilon keeps products such as
// 0.1*30 from flooring to one less than intended. Rates that are not finite, or
// products past MaxInt64, schedule nothing.
func scheduledIterations(rate float64, d time.Duration) int64 {
	if math.IsNaN(rate) || math.IsInf(rate, 0) || rate <= 0 || d <= 0 {
		return 0
	}
	planned := rate*d.Seconds() + 1e-9
	if planned >= math.MaxInt64 {
		return 0
	}
	return int64(planned)
}

// constantArrival paces iterations at a fixed rate. Due times are derived from the
// start instant, so a late tick never pushes later ticks back.
type constantArrival struct {
	start time.Time
	rate  float64
	timer *time.Timer
}

func newConstantArrival(start time.Time, rate float64) *constantArrival {
	return &constantArrival{start: start, rate: rate}
}

func (a *constantArrival) due(n int64) time.Time {
	return a.start.Add(time.Duration(math.Round(float64(n) * float64(time.Second) / a.rate)))
}

// Wait blocks until iteration n is due or ctx is done.
func (a *constantArrival) Wait(ctx context.Context, n int64) error {
	return a.waitUntil(ctx, a.due(n))
}

func (a *constantArrival) waitUntil(ctx context.Context, t time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	delay := time.Until(t)
	if delay <= 0 {
		return nil
	}
	if a.timer == nil {
		a.timer = time.NewTimer(delay)
	} else {
		a.timer.Reset(delay)
	}
	select {
	case <-ctx.Done():
		a.timer.Stop()
		return ctx.Err()
	case <-a.timer.C:
		return nil
	}
}

func (a *constantArrival) stop() {
	if a.timer != nil {
		a.timer.Stop()
	}
}
