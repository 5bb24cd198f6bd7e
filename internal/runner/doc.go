// Package runner drives a constant-arrival-rate load test.
//
// Iteration n of a run is due at start + n/Rate, and exactly floor(Rate*Duration)
// iterations come due. The tick loop never waits for a request: each due iteration
// goes to an idle worker, to a freshly spawned one while fewer than MaxWorkers
// exist, or is dropped and counted in [Result.Dropped].
//
// # Basic Usage
//
//	r := runner.New(runner.Options{
//		Rate:         200,
//		Duration:     10 * time.Second,
//		PreAllocated: 50,
//		MaxWorkers:   200,
//		GracePeriod:  5 * time.Second,
//		Requester:    myRequester,
//	})
//	result := r.Run(ctx)
//
// # Draining
//
// After Duration the queue closes and in-flight iterations get GracePeriod to
// finish. Iterations still running after that see their context cancelled with
// [ErrAbandoned] as the cause and are counted in [Result.Abandoned]. Cancelling the
// ctx passed to Run only stops scheduling; draining works the same way.
//
// # Middleware
//
// [WithLogging] reports failed iterations to a [FailureLogger]. Failed responses are
// described by [HTTPError].
package runner
