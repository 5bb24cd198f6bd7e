package runner

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// pool is a bounded set of worker goroutines fed through an unbuffered channel.
//
// idle counts workers that are blocked on, or about to block on, the task channel.
// Only the scheduler consumes idle tokens, so a successful reservation guarantees a
// receiver and the send cannot stall the tick loop behind a busy worker.
type pool struct {
	ctx   context.Context
	req   Requester
	max   int
	tasks chan Iteration

	workers  atomic.Int64
	idle     atomic.Int64
	inflight atomic.Int64
	errs     atomic.Int64
	wg       sync.WaitGroup
}

func newPool(ctx context.Context, req Requester, max int) *pool {
	return &pool{
		ctx:   ctx,
		req:   req,
		max:   max,
		tasks: make(chan Iteration),
	}
}

// start launches n idle workers.
func (p *pool) start(n int) {
	for i := 0; i < n; i++ {
		p.workers.Add(1)
		p.idle.Add(1)
		p.wg.Add(1)
		go p.work(nil)
	}
}

// dispatch hands it to an idle worker, or to a new worker while fewer than max
// exist. It reports false when the iteration has to be dropped.
func (p *pool) dispatch(it Iteration) bool {
	if p.idle.Add(-1) >= 0 {
		p.inflight.Add(1)
		p.tasks <- it
		return true
	}
	p.idle.Add(1)

	if p.workers.Load() >= int64(p.max) {
		return false
	}
	p.workers.Add(1)
	p.inflight.Add(1)
	p.wg.Add(1)
	go p.work(&it)
	return true
}

func (p *pool) work(first *Iteration) {
	defer p.wg.Done()
	if first != nil {
		p.execute(*first)
		p.idle.Add(1)
	}
	for it := range p.tasks {
		p.execute(it)
		p.idle.Add(1)
	}
}

func (p *pool) execute(it Iteration) {
	defer p.inflight.Add(-1)
	if p.req == nil {
		return
	}
	if err := p.req.Do(p.ctx, it); err != nil {
		p.errs.Add(1)
	}
}

// drain closes the queue and waits up to grace for running iterations. When grace
// runs out the remaining ones are cancelled with ErrAbandoned and counted.
func (p *pool) drain(grace time.Duration, abandon context.CancelCauseFunc) int64 {
	close(p.tasks)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-done:
		return 0
	case <-timer.C:
	}

	abandoned := p.inflight.Load()
	abandon(ErrAbandoned)
	<-done
	return abandoned
}
