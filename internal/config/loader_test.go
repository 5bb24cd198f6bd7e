package config

import (
	"reflect"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestAsString(t *testing.T) {
	tests := []struct {
		input interface{}
		want  string
	}{
		{"hello", "hello"},
		{123, "123"},
		{true, "true"},
		{nil, ""},
		{[]byte("bytes"), "bytes"},
	}

	for _, tt := range tests {
		got, err := asString(tt.input)
		if err != nil {
			t.Errorf("asString(%v) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("asString(%v) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestAsFloat64(t *testing.T) {
	tests := []struct {
		input interface{}
		want  float64
	}{
		{100, 100},
		{int64(200), 200},
		{"12.5", 12.5},
		{float32(0.5), 0.5},
		{nil, 0},
	}

	for _, tt := range tests {
		got, err := asFloat64(tt.input)
		if err != nil {
			t.Errorf("asFloat64(%v) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("asFloat64(%v) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestAsDuration(t *testing.T) {
	tests := []struct {
		input interface{}
		want  time.Duration
	}{
		{time.Second, time.Second},
		{"1m", time.Minute},
		{10, 10 * time.Second},
		{"10", 10 * time.Second},
		{nil, 0},
	}

	for _, tt := range tests {
		got, err := asDuration(tt.input)
		if err != nil {
			t.Errorf("asDuration(%v) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("asDuration(%v) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestAsLatencyTreatsNumbersAsMilliseconds(t *testing.T) {
	tests := []struct {
		input interface{}
		want  time.Duration
	}{
		{200, 200 * time.Millisecond},
		{"150", 150 * time.Millisecond},
		{"1s", time.Second},
		{12.5, 12500 * time.Microsecond},
	}

	for _, tt := range tests {
		got, err := asLatency(tt.input)
		if err != nil {
			t.Errorf("asLatency(%v) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("asLatency(%v) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestAsIntSlice(t *testing.T) {
	tests := []struct {
		input interface{}
		want  []int
	}{
		{"200,404", []int{200, 404}},
		{" 200 , 201 ", []int{200, 201}},
		{[]interface{}{200, "404"}, []int{200, 404}},
		{201, []int{201}},
	}

	for _, tt := range tests {
		got, err := asIntSlice(tt.input)
		if err != nil {
			t.Errorf("asIntSlice(%v) error = %v", tt.input, err)
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("asIntSlice(%v) = %v, want %v", tt.input, got, tt.want)
		}
	}

	if _, err := asIntSlice("200,abc"); err == nil {
		t.Error("asIntSlice(\"200,abc\") expected error")
	}
}

func TestApplyConfigSettings(t *testing.T) {
	cfg := Defaults()
	settings := map[string]interface{}{
		"target":               "http://example.com/api/keys/check-or-create",
		"rate":                 200,
		"duration":             "5s",
		"preallocated_workers": 10,
		"max_workers":          40,
		"accept_status":        []interface{}{200, 404},
		"slo": map[string]interface{}{
			"percentile": 99,
			"threshold":  "300ms",
		},
		"payload": map[string]interface{}{
			"key_prefix":  "loadtest_6_02_",
			"entity_code": "XY",
		},
		"headers": map[string]interface{}{
			"x-api-key": "secret",
		},
	}

	if err := applyConfigSettings(cfg, settings); err != nil {
		t.Fatalf("applyConfigSettings() error = %v", err)
	}

	if cfg.TargetURL != "http://example.com/api/keys/check-or-create" {
		t.Errorf("TargetURL = %q", cfg.TargetURL)
	}
	if cfg.Rate != 200 {
		t.Errorf("Rate = %v, want 200", cfg.Rate)
	}
	if cfg.Duration != 5*time.Second {
		t.Errorf("Duration = %v, want 5s", cfg.Duration)
	}
	if cfg.PreAllocatedWorkers != 10 || cfg.MaxWorkers != 40 {
		t.Errorf("workers = %d/%d, want 10/40", cfg.PreAllocatedWorkers, cfg.MaxWorkers)
	}
	if !reflect.DeepEqual(cfg.AcceptStatus, []int{200, 404}) {
		t.Errorf("AcceptStatus = %v, want [200 404]", cfg.AcceptStatus)
	}
	if cfg.SLO.Percentile != 99 || cfg.SLO.Threshold != 300*time.Millisecond {
		t.Errorf("SLO = %+v, want p99 < 300ms", cfg.SLO)
	}
	if cfg.Payload.KeyPrefix != "loadtest_6_02_" || cfg.Payload.EntityCode != "XY" {
		t.Errorf("Payload = %+v", cfg.Payload)
	}
	if cfg.Payload.AccountNumber != "123456789" {
		t.Errorf("Payload.AccountNumber = %q, want default kept", cfg.Payload.AccountNumber)
	}
	if cfg.Headers["X-Api-Key"] != "secret" {
		t.Errorf("Headers[X-Api-Key] = %q, want secret", cfg.Headers["X-Api-Key"])
	}
}

func TestApplyFlagOverrides(t *testing.T) {
	cfg := Defaults()

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	configureFlags(fs)

	args := []string{
		"--rate=12.5",
		"--max-workers=300",
		"--accept-status=200",
		"--accept-status=404",
		"--header=X-Test=123",
		"--slo-threshold=150ms",
		"--otel-propagate=false",
	}
	if err := fs.Parse(args); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if err := applyFlagOverrides(cfg, fs); err != nil {
		t.Fatalf("applyFlagOverrides() error = %v", err)
	}

	if cfg.Rate != 12.5 {
		t.Errorf("Rate = %v, want 12.5", cfg.Rate)
	}
	if cfg.MaxWorkers != 300 {
		t.Errorf("MaxWorkers = %d, want 300", cfg.MaxWorkers)
	}
	if cfg.PreAllocatedWorkers != 50 {
		t.Errorf("PreAllocatedWorkers = %d, want untouched default 50", cfg.PreAllocatedWorkers)
	}
	if !reflect.DeepEqual(cfg.AcceptStatus, []int{200, 404}) {
		t.Errorf("AcceptStatus = %v, want [200 404]", cfg.AcceptStatus)
	}
	if cfg.Headers["X-Test"] != "123" {
		t.Errorf("Headers[X-Test] = %q, want 123", cfg.Headers["X-Test"])
	}
	if cfg.SLO.Threshold != 150*time.Millisecond {
		t.Errorf("SLO.Threshold = %v, want 150ms", cfg.SLO.Threshold)
	}
	if cfg.Tracing.Propagate == nil || *cfg.Tracing.Propagate {
		t.Errorf("Tracing.Propagate = %v, want explicit false", cfg.Tracing.Propagate)
	}
}

func TestApplyFlagOverridesRejectsMalformedHeader(t *testing.T) {
	cfg := Defaults()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	configureFlags(fs)
	if err := fs.Parse([]string{"--header=missing-separator"}); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if err := applyFlagOverrides(cfg, fs); err == nil {
		t.Fatal("expected error for header without '='")
	}
}

func TestLoader_Load(t *testing.T) {
	loader := NewLoader()
	args := []string{
		"--target=http://example.com",
		"--rate=10",
		"--duration=2s",
	}

	cfg, err := loader.Load(args)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.TargetURL != "http://example.com" {
		t.Errorf("TargetURL = %q, want http://example.com", cfg.TargetURL)
	}
	if cfg.PlannedIterations() != 20 {
		t.Errorf("PlannedIterations() = %d, want 20", cfg.PlannedIterations())
	}
}
