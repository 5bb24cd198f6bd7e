package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Outcome is the result of one iteration. It is created by the requester, recorded
// once and never mutated.
type Outcome struct {
	Iteration  int64
	Timestamp  time.Time
	Latency    time.Duration
	Success    bool
	StatusCode int // 0 when no response arrived
	Err        error
	Timeout    bool
	Source     string // "source" field of a check-or-create response, if any
}

// Collector aggregates outcomes in a thread-safe manner.
type Collector struct {
	mu          sync.Mutex
	hist        *hdrhistogram.Histogram
	samples     []time.Duration
	sumLatency  time.Duration
	successes   int64
	failures    int64
	timeouts    int64
	dropped     int64
	statusCodes map[string]int64
	errors      map[string]int64
	sources     map[string]int64
	start       time.Time
}

// Stats is an immutable snapshot of a Collector.
type Stats struct {
	Total     int64 `json:"total" yaml:"total"`
	Successes int64 `json:"successes" yaml:"successes"`
	Failures  int64 `json:"failures" yaml:"failures"`
	Timeouts  int64 `json:"timeouts" yaml:"timeouts"`
	Dropped   int64 `json:"dropped" yaml:"dropped"`
	Samples   int   `json:"samples" yaml:"samples"`

	MinLatency     time.Duration `json:"-" yaml:"-"`
	MaxLatency     time.Duration `json:"-" yaml:"-"`
	MeanLatency    time.Duration `json:"-" yaml:"-"`
	P50Latency     time.Duration `json:"-" yaml:"-"`
	P90Latency     time.Duration `json:"-" yaml:"-"`
	P95Latency     time.Duration `json:"-" yaml:"-"`
	P99Latency     time.Duration `json:"-" yaml:"-"`
	Duration       time.Duration `json:"-" yaml:"-"`
	RequestsPerSec float64       `json:"requests_per_sec" yaml:"requests_per_sec"`

	// Millisecond mirrors for the JSON and YAML reports.
	MinLatencyMs  float64 `json:"min_latency_ms" yaml:"min_latency_ms"`
	MaxLatencyMs  float64 `json:"max_latency_ms" yaml:"max_latency_ms"`
	MeanLatencyMs float64 `json:"mean_latency_ms" yaml:"mean_latency_ms"`
	P50LatencyMs  float64 `json:"p50_latency_ms" yaml:"p50_latency_ms"`
	P90LatencyMs  float64 `json:"p90_latency_ms" yaml:"p90_latency_ms"`
	P95LatencyMs  float64 `json:"p95_latency_ms" yaml:"p95_latency_ms"`
	P99LatencyMs  float64 `json:"p99_latency_ms" yaml:"p99_latency_ms"`
	DurationMs    float64 `json:"duration_ms" yaml:"duration_ms"`

	StatusCodes map[string]int `json:"status_codes,omitempty" yaml:"status_codes,omitempty"`
	Errors      map[string]int `json:"errors,omitempty" yaml:"errors,omitempty"`
	Sources     map[string]int `json:"sources,omitempty" yaml:"sources,omitempty"`

	sorted []time.Duration
}

// LiveStats is the cheap mid-run view used for progress lines.
type LiveStats struct {
	Total          int64
	Successes      int64
	Failures       int64
	Dropped        int64
	P95Latency     time.Duration
	RequestsPerSec float64
}

func NewCollector() *Collector {
	// Track latencies from 1µs up to 60s with 3 significant figures.
	h := hdrhistogram.New(1, 60_000_000, 3)
	return &Collector{
		hist:        h,
		statusCodes: make(map[string]int64),
		errors:      make(map[string]int64),
		sources:     make(map[string]int64),
		start:       time.Now(),
	}
}

// Start marks the beginning of the run for Elapsed.
func (c *Collector) Start() {
	c.mu.Lock()
	c.start = time.Now()
	c.mu.Unlock()
}

// Elapsed is the time since Start.
func (c *Collector) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Since(c.start)
}

// Record adds one outcome. Successes, failures and samples move together.
func (c *Collector) Record(o Outcome) {
	latency := o.Latency
	if latency < 0 {
		latency = 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.samples = append(c.samples, latency)
	c.sumLatency += latency

	us := latency.Microseconds()
	if us < c.hist.LowestTrackableValue() {
		us = c.hist.LowestTrackableValue()
	}
	if us > c.hist.HighestTrackableValue() {
		us = c.hist.HighestTrackableValue()
	}
	_ = c.hist.RecordValue(us)

	if o.Success {
		c.successes++
	} else {
		c.failures++
		c.errors[failureLabel(o)]++
	}
	if o.Timeout {
		c.timeouts++
	}
	c.statusCodes[StatusKey(o)]++
	if o.Source != "" {
		c.sources[o.Source]++
	}
}

// RecordDropped counts an iteration the scheduler could not hand to any worker.
// Dropped iterations are not part of Total.
func (c *Collector) RecordDropped() {
	c.mu.Lock()
	c.dropped++
	c.mu.Unlock()
}

// Stats computes the aggregated snapshot. With no samples every latency is zero.
func (c *Collector) Stats(elapsed time.Duration) Stats {
	c.mu.Lock()
	sorted := make([]time.Duration, len(c.samples))
	copy(sorted, c.samples)
	stats := Stats{
		Total:       c.successes + c.failures,
		Successes:   c.successes,
		Failures:    c.failures,
		Timeouts:    c.timeouts,
		Dropped:     c.dropped,
		Samples:     len(c.samples),
		StatusCodes: copyCounts(c.statusCodes),
		Errors:      copyCounts(c.errors),
		Sources:     copyCounts(c.sources),
	}
	sum := c.sumLatency
	c.mu.Unlock()

	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	stats.sorted = sorted

	if n := len(sorted); n > 0 {
		stats.MinLatency = sorted[0]
		stats.MaxLatency = sorted[n-1]
		stats.MeanLatency = sum / time.Duration(n)
		stats.P50Latency = Percentile(sorted, 50)
		stats.P90Latency = Percentile(sorted, 90)
		stats.P95Latency = Percentile(sorted, 95)
		stats.P99Latency = Percentile(sorted, 99)
	}

	stats.MinLatencyMs = toMs(stats.MinLatency)
	stats.MaxLatencyMs = toMs(stats.MaxLatency)
	stats.MeanLatencyMs = toMs(stats.MeanLatency)
	stats.P50LatencyMs = toMs(stats.P50Latency)
	stats.P90LatencyMs = toMs(stats.P90Latency)
	stats.P95LatencyMs = toMs(stats.P95Latency)
	stats.P99LatencyMs = toMs(stats.P99Latency)

	stats.Duration = elapsed
	stats.DurationMs = toMs(elapsed)
	if elapsed > 0 && stats.Total > 0 {
		stats.RequestsPerSec = float64(stats.Total) / elapsed.Seconds()
	}

	return stats
}

// Live reads counters and the histogram p95 without sorting samples.
func (c *Collector) Live(elapsed time.Duration) LiveStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	live := LiveStats{
		Total:     c.successes + c.failures,
		Successes: c.successes,
		Failures:  c.failures,
		Dropped:   c.dropped,
	}
	if c.hist.TotalCount() > 0 {
		live.P95Latency = time.Duration(c.hist.ValueAtQuantile(95)) * time.Microsecond
	}
	if elapsed > 0 && live.Total > 0 {
		live.RequestsPerSec = float64(live.Total) / elapsed.Seconds()
	}
	return live
}

// SuccessRate is the successful share of Total in percent; 0 when nothing completed.
func (s Stats) SuccessRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Successes) / float64(s.Total) * 100
}

// LatencyAt returns the p-th percentile of the snapshot.
func (s Stats) LatencyAt(p float64) time.Duration {
	switch p {
	case 50:
		return s.P50Latency
	case 90:
		return s.P90Latency
	case 95:
		return s.P95Latency
	case 99:
		return s.P99Latency
	case 100:
		return s.MaxLatency
	}
	return Percentile(s.sorted, p)
}

func copyCounts(src map[string]int64) map[string]int {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]int, len(src))
	for k, v := range src {
		out[k] = int(v)
	}
	return out
}

func toMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
