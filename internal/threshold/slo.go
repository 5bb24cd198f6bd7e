package threshold

import (
	"fmt"
	"time"

	"github.com/mati/keyload/internal/metrics"
)

// SLO is the latency objective of a run: the Percentile latency must be below
// Threshold.
type SLO struct {
	Percentile float64
	Threshold  time.Duration
}

// Verdict is the outcome of an SLO evaluation.
type Verdict struct {
	Percentile  float64       `json:"percentile" yaml:"percentile"`
	Threshold   time.Duration `json:"-" yaml:"-"`
	Actual      time.Duration `json:"-" yaml:"-"`
	ThresholdMs float64       `json:"threshold_ms" yaml:"threshold_ms"`
	ActualMs    float64       `json:"actual_ms" yaml:"actual_ms"`
	Pass        bool          `json:"pass" yaml:"pass"`
}

// Evaluate passes iff the observed percentile is positive and strictly below the
// threshold. A run without samples reports 0 and fails.
func (s SLO) Evaluate(stats metrics.Stats) Verdict {
	actual := stats.LatencyAt(s.Percentile)
	return Verdict{
		Percentile:  s.Percentile,
		Threshold:   s.Threshold,
		Actual:      actual,
		ThresholdMs: msOf(s.Threshold),
		ActualMs:    msOf(actual),
		Pass:        actual > 0 && actual < s.Threshold,
	}
}

// Label is the short name of the percentile, e.g. "P95" or "P99.9".
func (s SLO) Label() string {
	return fmt.Sprintf("P%g", s.Percentile)
}

// Label is the short name of the percentile, e.g. "P95".
func (v Verdict) Label() string {
	return SLO{Percentile: v.Percentile}.Label()
}

func msOf(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
