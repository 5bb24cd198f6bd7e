package metrics_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mati/keyload/internal/metrics"
)

func ok(latency time.Duration) metrics.Outcome {
	return metrics.Outcome{Latency: latency, Success: true, StatusCode: 201, Timestamp: time.Now()}
}

func TestCollectorLatencyStats(t *testing.T) {
	c := metrics.NewCollector()

	for _, ms := range []int{30, 10, 50, 20, 40} {
		c.Record(ok(time.Duration(ms) * time.Millisecond))
	}

	stats := c.Stats(0)

	if stats.Total != 5 || stats.Successes != 5 || stats.Failures != 0 {
		t.Errorf("counts = %d/%d/%d, want 5/5/0", stats.Total, stats.Successes, stats.Failures)
	}
	if stats.MinLatency != 10*time.Millisecond {
		t.Errorf("expected min 10ms, got %s", stats.MinLatency)
	}
	if stats.MaxLatency != 50*time.Millisecond {
		t.Errorf("expected max 50ms, got %s", stats.MaxLatency)
	}
	if stats.MeanLatency != 30*time.Millisecond {
		t.Errorf("expected mean 30ms, got %s", stats.MeanLatency)
	}
	if stats.P50Latency != 30*time.Millisecond {
		t.Errorf("expected p50 30ms, got %s", stats.P50Latency)
	}
	if stats.P95Latency != 50*time.Millisecond {
		t.Errorf("expected p95 50ms, got %s", stats.P95Latency)
	}
}

func TestNearestRankPercentiles(t *testing.T) {
	c := metrics.NewCollector()
	for i := 1; i <= 100; i++ {
		c.Record(ok(time.Duration(i) * time.Millisecond))
	}

	stats := c.Stats(time.Second)

	want := map[string][2]time.Duration{
		"p50": {stats.P50Latency, 50 * time.Millisecond},
		"p90": {stats.P90Latency, 90 * time.Millisecond},
		"p95": {stats.P95Latency, 95 * time.Millisecond},
		"p99": {stats.P99Latency, 99 * time.Millisecond},
		"max": {stats.MaxLatency, 100 * time.Millisecond},
	}
	for name, pair := range want {
		if pair[0] != pair[1] {
			t.Errorf("%s = %s, want %s", name, pair[0], pair[1])
		}
	}
	if got := stats.LatencyAt(75); got != 75*time.Millisecond {
		t.Errorf("LatencyAt(75) = %s, want 75ms", got)
	}
	if got := stats.LatencyAt(95); got != stats.P95Latency {
		t.Errorf("LatencyAt(95) = %s, want %s", got, stats.P95Latency)
	}
}

func TestPercentilesAreMonotonic(t *testing.T) {
	c := metrics.NewCollector()
	for _, ms := range []int{7, 3, 120, 45, 45, 8, 300, 2, 19, 61, 5} {
		c.Record(ok(time.Duration(ms) * time.Millisecond))
	}
	s := c.Stats(time.Second)

	ordered := []time.Duration{s.MinLatency, s.P50Latency, s.P90Latency, s.P95Latency, s.P99Latency, s.MaxLatency}
	for i := 1; i < len(ordered); i++ {
		if ordered[i] < ordered[i-1] {
			t.Fatalf("percentiles not monotonic: %v", ordered)
		}
	}
	if s.MeanLatency < s.MinLatency || s.MeanLatency > s.MaxLatency {
		t.Errorf("mean %s outside [%s, %s]", s.MeanLatency, s.MinLatency, s.MaxLatency)
	}
}

func TestEmptyCollectorReportsZeros(t *testing.T) {
	c := metrics.NewCollector()
	c.RecordDropped()
	s := c.Stats(time.Second)

	if s.Total != 0 || s.Samples != 0 {
		t.Fatalf("Total/Samples = %d/%d, want 0/0", s.Total, s.Samples)
	}
	for _, d := range []time.Duration{s.MinLatency, s.MeanLatency, s.P50Latency, s.P95Latency, s.P99Latency, s.MaxLatency} {
		if d != 0 {
			t.Fatalf("expected zero latencies, got %+v", s)
		}
	}
	if s.SuccessRate() != 0 {
		t.Errorf("SuccessRate() = %v, want 0", s.SuccessRate())
	}
	if s.Dropped != 1 {
		t.Errorf("Dropped = %d, want 1", s.Dropped)
	}
	if s.RequestsPerSec != 0 {
		t.Errorf("RequestsPerSec = %v, want 0", s.RequestsPerSec)
	}
}

func TestFailuresAndBreakdowns(t *testing.T) {
	c := metrics.NewCollector()
	c.Record(metrics.Outcome{Latency: 5 * time.Millisecond, Success: true, StatusCode: 201, Source: "new"})
	c.Record(metrics.Outcome{Latency: 6 * time.Millisecond, Success: true, StatusCode: 200, Source: "cache"})
	c.Record(metrics.Outcome{Latency: 7 * time.Millisecond, Success: true, StatusCode: 200, Source: "cache"})
	c.Record(metrics.Outcome{Latency: 8 * time.Millisecond, StatusCode: 500, Err: errors.New("status 500")})
	c.Record(metrics.Outcome{Latency: 9 * time.Millisecond, Timeout: true, Err: context.DeadlineExceeded})

	s := c.Stats(time.Second)

	if s.Total != 5 || s.Successes != 3 || s.Failures != 2 {
		t.Fatalf("counts = %d/%d/%d, want 5/3/2", s.Total, s.Successes, s.Failures)
	}
	if s.Timeouts != 1 {
		t.Errorf("Timeouts = %d, want 1", s.Timeouts)
	}
	if s.StatusCodes["200"] != 2 || s.StatusCodes["201"] != 1 || s.StatusCodes["500"] != 1 || s.StatusCodes[metrics.KindTimeout] != 1 {
		t.Errorf("StatusCodes = %v", s.StatusCodes)
	}
	if s.Errors["HTTP 500"] != 1 || s.Errors[metrics.KindTimeout] != 1 || len(s.Errors) != 2 {
		t.Errorf("Errors = %v", s.Errors)
	}
	if s.Sources["cache"] != 2 || s.Sources["new"] != 1 {
		t.Errorf("Sources = %v", s.Sources)
	}
	if got := s.SuccessRate(); got != 60 {
		t.Errorf("SuccessRate() = %v, want 60", got)
	}
}

func TestJSONReportSchema(t *testing.T) {
	c := metrics.NewCollector()
	c.Record(ok(15 * time.Millisecond))
	c.Record(ok(25 * time.Millisecond))

	data, err := json.Marshal(c.Stats(100 * time.Millisecond))
	if err != nil {
		t.Fatalf("failed to marshal stats: %v", err)
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}

	requiredFields := []string{"total", "successes", "failures", "dropped", "min_latency_ms", "max_latency_ms", "mean_latency_ms", "p50_latency_ms", "p90_latency_ms", "p95_latency_ms", "p99_latency_ms", "duration_ms", "requests_per_sec", "status_codes"}
	for _, field := range requiredFields {
		if _, ok := parsed[field]; !ok {
			t.Errorf("missing field %q in JSON output", field)
		}
	}
	if parsed["p95_latency_ms"].(float64) != 25 {
		t.Errorf("p95_latency_ms = %v, want 25", parsed["p95_latency_ms"])
	}
}

func TestConcurrentRecording(t *testing.T) {
	c := metrics.NewCollector()

	var wg sync.WaitGroup
	workers := 10
	recordsPerWorker := 100

	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(worker int) {
			defer wg.Done()
			for j := 0; j < recordsPerWorker; j++ {
				o := ok(time.Duration(j+1) * time.Millisecond)
				if (worker+j)%4 == 0 {
					o.Success = false
					o.StatusCode = 503
				}
				c.Record(o)
				if j%10 == 0 {
					_ = c.Live(time.Second)
				}
			}
		}(i)
	}
	wg.Wait()

	stats := c.Stats(time.Second)
	expected := int64(workers * recordsPerWorker)
	if stats.Total != expected {
		t.Errorf("expected total %d, got %d", expected, stats.Total)
	}
	if stats.Successes+stats.Failures != stats.Total {
		t.Errorf("successes %d + failures %d != total %d", stats.Successes, stats.Failures, stats.Total)
	}
	if int64(stats.Samples) != stats.Total {
		t.Errorf("samples %d != total %d", stats.Samples, stats.Total)
	}
}

func TestLiveStats(t *testing.T) {
	c := metrics.NewCollector()
	for i := 1; i <= 100; i++ {
		c.Record(ok(time.Duration(i) * time.Millisecond))
	}
	c.RecordDropped()

	live := c.Live(2 * time.Second)
	if live.Total != 100 || live.Dropped != 1 {
		t.Fatalf("Live = %+v", live)
	}
	if live.RequestsPerSec != 50 {
		t.Errorf("RequestsPerSec = %v, want 50", live.RequestsPerSec)
	}
	// HDR buckets carry three significant digits.
	if live.P95Latency < 94*time.Millisecond || live.P95Latency > 96*time.Millisecond {
		t.Errorf("P95Latency = %s, want ~95ms", live.P95Latency)
	}
}
