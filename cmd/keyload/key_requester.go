package main

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/mati/keyload/internal/httpclient"
	"github.com/mati/keyload/internal/metrics"
	"github.com/mati/keyload/internal/runner"
	"github.com/mati/keyload/internal/tracing"
)

const (
	maxLoggedBodyBytes = 1024
	maxBodyReadSize    = 1024 * 1024
)

// keyRequester posts one check-or-create request per iteration and records exactly
// one outcome for it.
type keyRequester struct {
	client    *http.Client
	builder   *httpclient.PayloadBuilder
	collector *metrics.Collector
	accepts   func(code int) bool
	spans     *tracing.Provider
}

func (r *keyRequester) Do(ctx context.Context, it runner.Iteration) error {
	if ctx == nil {
		ctx = context.Background()
	}

	req, _, err := r.builder.Build(ctx, it.Index)
	if err != nil {
		r.collector.Record(metrics.Outcome{Iteration: it.Index, Timestamp: time.Now(), Err: err})
		return err
	}

	req, span := r.spans.StartRequest(req, it.Index)
	ctx = req.Context()

	start := time.Now()
	resp, err := r.client.Do(req)
	if err != nil {
		r.collector.Record(metrics.Outcome{
			Iteration: it.Index,
			Timestamp: start,
			Latency:   time.Since(start),
			Err:       err,
			Timeout:   isTimeout(ctx, err),
		})
		tracing.EndRequest(span, 0, err)
		return err
	}

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodyReadSize))
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	latency := time.Since(start)

	outcome, resultErr := r.classify(resp.StatusCode, body, readErr)
	outcome.Iteration = it.Index
	outcome.Timestamp = start
	outcome.Latency = latency
	if readErr != nil {
		outcome.Timeout = isTimeout(ctx, readErr)
	}
	r.collector.Record(outcome)
	tracing.EndRequest(span, resp.StatusCode, resultErr)
	return resultErr
}

// classify turns a response into an outcome. Only accepted statuses with a fully
// read body count as success.
func (r *keyRequester) classify(status int, body []byte, readErr error) (metrics.Outcome, error) {
	o := metrics.Outcome{StatusCode: status}
	if readErr != nil {
		o.Err = readErr
		return o, readErr
	}
	if r.accepts(status) {
		o.Success = true
		if gjson.ValidBytes(body) {
			o.Source = gjson.GetBytes(body, "source").String()
		}
		return o, nil
	}

	snippet := body
	if len(snippet) > maxLoggedBodyBytes {
		snippet = snippet[:maxLoggedBodyBytes]
	}
	httpErr := &runner.HTTPError{
		StatusCode: status,
		Body:       strings.TrimSpace(string(snippet)),
	}
	if gjson.ValidBytes(body) {
		httpErr.Message = gjson.GetBytes(body, "message").String()
	}
	o.Err = httpErr
	return o, httpErr
}

// isTimeout reports whether a failed request ran out of time. Abandonment after the
// grace period counts as a timeout.
func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(context.Cause(ctx), runner.ErrAbandoned) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
