package tracing

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/mati/keyload/internal/config"
)

var testRun = RunInfo{
	ID:      "01JABCDEF0123456789XYZWXYZ",
	Target:  "http://keys.internal:8080/api/keys/check-or-create",
	Profile: "check-or-create",
	Rate:    200,
}

func newTestProvider(t *testing.T, cfg config.TracingConfig) (*Provider, *tracetest.InMemoryExporter) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1
	}
	p, err := NewProvider(context.Background(), exporter, cfg, testRun)
	if err != nil {
		t.Fatalf("NewProvider() error = %v", err)
	}
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })
	return p, exporter
}

func flushed(t *testing.T, p *Provider, exporter *tracetest.InMemoryExporter) tracetest.SpanStubs {
	t.Helper()
	if err := p.tp.ForceFlush(context.Background()); err != nil {
		t.Fatalf("ForceFlush() error = %v", err)
	}
	return exporter.GetSpans()
}

func newKeyRequest(t *testing.T) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, testRun.Target, strings.NewReader(`{"keyValue":"k"}`))
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	req.Header.Set("X-Request-Id", "req-7")
	return req
}

func attrMap(kvs []attribute.KeyValue) map[string]string {
	m := make(map[string]string, len(kvs))
	for _, kv := range kvs {
		m[string(kv.Key)] = kv.Value.Emit()
	}
	return m
}

func TestRequestSpanCarriesIterationAndRun(t *testing.T) {
	p, exporter := newTestProvider(t, config.TracingConfig{})

	req, span := p.StartRequest(newKeyRequest(t), 42)
	if !trace.SpanContextFromContext(req.Context()).IsValid() {
		t.Fatal("request context does not carry the span")
	}
	EndRequest(span, http.StatusCreated, nil)

	spans := flushed(t, p, exporter)
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	got := spans[0]
	if got.Name != "POST /api/keys/check-or-create" {
		t.Errorf("span name = %q", got.Name)
	}
	if got.SpanKind != trace.SpanKindClient {
		t.Errorf("span kind = %v, want client", got.SpanKind)
	}
	if got.Status.Code != codes.Ok {
		t.Errorf("status = %v, want Ok", got.Status.Code)
	}

	attrs := attrMap(got.Attributes)
	for k, v := range map[string]string{
		"http.request.method":       "POST",
		"server.address":            "keys.internal",
		"keyload.iteration":         "42",
		"keyload.request_id":        "req-7",
		"http.response.status_code": "201",
	} {
		if attrs[k] != v {
			t.Errorf("span attribute %s = %q, want %q", k, attrs[k], v)
		}
	}

	res := attrMap(got.Resource.Attributes())
	for k, v := range map[string]string{
		"service.name":    "keyload",
		"keyload.run_id":  testRun.ID,
		"keyload.target":  testRun.Target,
		"keyload.profile": "check-or-create",
		"keyload.rate":    "200",
	} {
		if res[k] != v {
			t.Errorf("resource attribute %s = %q, want %q", k, res[k], v)
		}
	}
}

func TestFailedRequestSpan(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		err        error
		wantStatus bool
	}{
		{"rejected status", http.StatusConflict, errors.New("HTTP 409: exists"), true},
		{"no response", 0, context.DeadlineExceeded, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, exporter := newTestProvider(t, config.TracingConfig{})
			_, span := p.StartRequest(newKeyRequest(t), 1)
			EndRequest(span, tt.status, tt.err)

			spans := flushed(t, p, exporter)
			if len(spans) != 1 {
				t.Fatalf("got %d spans, want 1", len(spans))
			}
			if spans[0].Status.Code != codes.Error {
				t.Errorf("status = %v, want Error", spans[0].Status.Code)
			}
			if len(spans[0].Events) == 0 {
				t.Error("error was not recorded as a span event")
			}
			_, hasStatus := attrMap(spans[0].Attributes)["http.response.status_code"]
			if hasStatus != tt.wantStatus {
				t.Errorf("status attribute present = %v, want %v", hasStatus, tt.wantStatus)
			}
		})
	}
}

func TestPropagationHeaders(t *testing.T) {
	off := false
	tests := []struct {
		name      string
		cfg       config.TracingConfig
		wantTrace bool
	}{
		{"default propagates", config.TracingConfig{}, true},
		{"explicitly off", config.TracingConfig{Propagate: &off}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _ := newTestProvider(t, tt.cfg)
			req, span := p.StartRequest(newKeyRequest(t), 3)
			defer span.End()

			tp := req.Header.Get("Traceparent")
			if (tp != "") != tt.wantTrace {
				t.Fatalf("traceparent = %q, want present %v", tp, tt.wantTrace)
			}
			if tt.wantTrace {
				want := span.SpanContext().TraceID().String()
				if !strings.Contains(tp, want) {
					t.Errorf("traceparent %q does not carry trace id %s", tp, want)
				}
			}
		})
	}
}

func TestUnsampledRequestsStillPropagate(t *testing.T) {
	p, exporter := newTestProvider(t, config.TracingConfig{SampleRate: 0.000001})
	for i := int64(0); i < 20; i++ {
		req, span := p.StartRequest(newKeyRequest(t), i)
		if req.Header.Get("Traceparent") == "" {
			t.Fatalf("iteration %d: traceparent missing", i)
		}
		EndRequest(span, http.StatusOK, nil)
	}
	if n := len(flushed(t, p, exporter)); n > 1 {
		t.Errorf("exported %d spans at a near-zero sample rate", n)
	}
}

func TestDisabledProviderLeavesRequestsAlone(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")

	p, err := Init(context.Background(), config.TracingConfig{Propagate: new(bool)}, testRun)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	providers := map[string]*Provider{"without endpoint": p, "nil": nil}
	for name, p := range providers {
		t.Run(name, func(t *testing.T) {
			orig := newKeyRequest(t)
			req, span := p.StartRequest(orig, 5)
			EndRequest(span, http.StatusOK, nil)

			if span.IsRecording() {
				t.Error("disabled provider returned a recording span")
			}
			if len(req.Header) != len(orig.Header) {
				t.Errorf("headers changed: %v", req.Header)
			}
			if p.propagates() {
				t.Error("propagates() = true for a disabled provider")
			}
			if err := p.Shutdown(context.Background()); err != nil {
				t.Errorf("Shutdown() error = %v", err)
			}
		})
	}
}

func TestInitRejectsBadSettings(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.TracingConfig
	}{
		{"unknown protocol", config.TracingConfig{Endpoint: "localhost:4317", Protocol: "thrift"}},
		{"negative sample rate", config.TracingConfig{Endpoint: "localhost:4317", Insecure: true, SampleRate: -0.5}},
		{"sample rate above one", config.TracingConfig{Endpoint: "localhost:4318", Protocol: "http", Insecure: true, SampleRate: 1.5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Init(context.Background(), tt.cfg, testRun); err == nil {
				t.Fatal("Init() error = nil, want error")
			}
		})
	}
}
