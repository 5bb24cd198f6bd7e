package tracing

import (
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// StartRequest opens the client span of one iteration's request. The returned
// request carries the span context, and its headers carry the W3C trace context
// when propagation is on. Callers must finish the span with EndRequest.
func (p *Provider) StartRequest(req *http.Request, iteration int64) (*http.Request, trace.Span) {
	ctx, span := p.activeTracer().Start(req.Context(), req.Method+" "+req.URL.Path,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", req.Method),
			attribute.String("url.full", req.URL.String()),
			attribute.String("server.address", req.URL.Hostname()),
			attribute.Int64("keyload.iteration", iteration),
		),
	)
	if id := req.Header.Get("X-Request-Id"); id != "" {
		span.SetAttributes(attribute.String("keyload.request_id", id))
	}

	req = req.WithContext(ctx)
	if p.propagates() {
		p.propagator.Inject(ctx, propagation.HeaderCarrier(req.Header))
	}
	return req, span
}

// EndRequest finishes a request span. status is the response code, or 0 when no
// response arrived; err marks the span as failed.
func EndRequest(span trace.Span, status int, err error) {
	if status > 0 {
		span.SetAttributes(attribute.Int("http.response.status_code", status))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
