package runner

import (
	"context"
	"errors"
	"time"
)

// ErrAbandoned is the cancellation cause seen by iterations still running when the
// grace period expires.
var ErrAbandoned = errors.New("iteration abandoned after grace period")

// Result captures the scheduling summary of a run.
type Result struct {
	Scheduled   int64 // iterations that came due
	Dispatched  int64 // handed to a worker
	Dropped     int64 // no worker available
	Abandoned   int64 // still running when the grace period expired
	Errors      int64 // iterations whose Requester returned an error
	PeakWorkers int
	MaxLag      time.Duration
	Duration    time.Duration
}

// Runner starts iterations at a constant arrival rate on a bounded worker pool.
type Runner struct {
	opt Options
}

func New(opt Options) *Runner {
	opt.normalize()
	return &Runner{opt: opt}
}

// Planned is the number of iterations a full run schedules.
func (r *Runner) Planned() int64 {
	return scheduledIterations(r.opt.Rate, r.opt.Duration)
}

// Run schedules floor(Rate*Duration) iterations and returns once every dispatched
// iteration has finished or been abandoned. Cancelling ctx stops scheduling early;
// in-flight iterations still get the grace period.
func (r *Runner) Run(ctx context.Context) Result {
	// Requests outlive ctx so an interrupt drains instead of failing everything.
	reqCtx, abandon := context.WithCancelCause(context.WithoutCancel(ctx))
	defer abandon(nil)

	p := newPool(reqCtx, r.opt.Requester, r.opt.MaxWorkers)
	p.start(r.opt.PreAllocated)

	start := time.Now()
	arrival := newConstantArrival(start, r.opt.Rate)
	defer arrival.stop()

	var res Result
	total := r.Planned()
	for n := int64(0); n < total; n++ {
		if err := arrival.Wait(ctx, n); err != nil {
			break
		}
		it := Iteration{Index: n, Due: arrival.due(n), Dispatched: time.Now()}
		res.Scheduled++
		if lag := it.Lag(); lag > res.MaxLag {
			res.MaxLag = lag
		}

		if !p.dispatch(it) {
			res.Dropped++
			if r.opt.OnDrop != nil {
				r.opt.OnDrop(it)
			}
			continue
		}
		res.Dispatched++
		if r.opt.OnDispatch != nil {
			r.opt.OnDispatch(it)
		}
	}

	_ = arrival.waitUntil(ctx, start.Add(r.opt.Duration))

	res.Abandoned = p.drain(r.opt.GracePeriod, abandon)
	res.Errors = p.errs.Load()
	res.PeakWorkers = int(p.workers.Load())
	res.Duration = time.Since(start)
	return res
}
