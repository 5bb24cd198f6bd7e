// Package httpclient builds check-or-create requests and the HTTP client that sends them.
//
// A [PayloadBuilder] turns an iteration index into a JSON POST:
//
//	builder, err := httpclient.NewPayloadBuilder(cfg)
//	if err != nil {
//		return err
//	}
//	req, key, err := builder.Build(ctx, it.Index)
//
// Generated keys combine the configured prefix, the iteration index and nine random
// digits, so keys are unique within a run and differ between runs. Setting
// payload.fixed_key sends the same key on every request.
//
// [NewClient] returns a client with connection reuse sized for the worker pool:
//
//	client := httpclient.NewClient(30*time.Second, cfg.MaxWorkers)
package httpclient
