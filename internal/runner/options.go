package runner

import (
	"context"
	"time"
)

// Requester executes one iteration. Implementations record their own outcome and
// return an error for failed iterations.
type Requester interface {
	Do(ctx context.Context, it Iteration) error
}

// Iteration identifies one scheduled unit of work.
type Iteration struct {
	Index      int64
	Due        time.Time // start + Index/Rate
	Dispatched time.Time // when the scheduler handed it to a worker
}

// Lag is how late the iteration was dispatched relative to its ideal start.
func (it Iteration) Lag() time.Duration {
	if it.Dispatched.Before(it.Due) {
		return 0
	}
	return it.Dispatched.Sub(it.Due)
}

// Options configure the Runner.
type Options struct {
	Rate         float64       // iterations started per second
	Duration     time.Duration // scheduling window
	PreAllocated int           // workers started before the first iteration
	MaxWorkers   int           // upper bound on workers; iterations beyond it are dropped
	GracePeriod  time.Duration // time in-flight iterations may take after Duration
	Requester    Requester     // iteration executor (required)

	OnDispatch func(Iteration) // optional, called from the scheduler goroutine
	OnDrop     func(Iteration) // optional, called from the scheduler goroutine
}

func (o *Options) normalize() {
	if o.Rate < 0 {
		o.Rate = 0
	}
	if o.Duration < 0 {
		o.Duration = 0
	}
	if o.PreAllocated < 1 {
		o.PreAllocated = 1
	}
	if o.MaxWorkers < o.PreAllocated {
		o.MaxWorkers = o.PreAllocated
	}
	if o.GracePeriod < 0 {
		o.GracePeriod = 0
	}
}
