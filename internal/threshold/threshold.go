package threshold

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/mati/keyload/internal/metrics"
)

// Metric names. The k6 spellings are accepted as aliases.
const (
	MetricLatency  = "latency"
	MetricFailures = "failures"
	MetricRequests = "requests"
	MetricDropped  = "dropped"
	MetricTimeouts = "timeouts"
)

var metricAliases = map[string]string{
	MetricLatency:        MetricLatency,
	"http_req_duration":  MetricLatency,
	MetricFailures:       MetricFailures,
	"http_req_failed":    MetricFailures,
	MetricRequests:       MetricRequests,
	"http_reqs":          MetricRequests,
	"http_requests":      MetricRequests,
	MetricDropped:        MetricDropped,
	"dropped_iterations": MetricDropped,
	MetricTimeouts:       MetricTimeouts,
}

var thresholdPattern = regexp.MustCompile(`^([a-z_]+):([a-z0-9.]+)\s*([<>=!]+)\s*([0-9.]+)$`)

// errNoSamples marks latency assertions evaluated on a run without completed iterations.
var errNoSamples = errors.New("no latency samples")

// Threshold represents a performance assertion that can pass or fail.
type Threshold struct {
	Metric    string  // canonical metric name, e.g. "latency"
	Aggregate string  // e.g. "p95", "p99.9", "avg", "max", "rate", "count"
	Operator  string  // "<", "<=", ">", ">=", "=="
	Value     float64 // milliseconds for latency, a fraction for rates
	Raw       string  // original string for display
}

// Result represents the outcome of evaluating a threshold.
type Result struct {
	Threshold Threshold `json:"-" yaml:"-"`
	Raw       string    `json:"threshold" yaml:"threshold"`
	Actual    float64   `json:"actual" yaml:"actual"`
	Pass      bool      `json:"pass" yaml:"pass"`
	Message   string    `json:"message" yaml:"message"`
}

// Evaluator evaluates thresholds against collected metrics.
type Evaluator struct {
	thresholds []Threshold
}

func NewEvaluator(thresholds []Threshold) *Evaluator {
	return &Evaluator{thresholds: thresholds}
}

// Evaluate checks all thresholds against the provided stats.
func (e *Evaluator) Evaluate(stats metrics.Stats) []Result {
	if len(e.thresholds) == 0 {
		return nil
	}
	results := make([]Result, 0, len(e.thresholds))
	for _, t := range e.thresholds {
		results = append(results, evaluateOne(t, stats))
	}
	return results
}

// AllPassed reports whether every result passed. An empty slice passes.
func AllPassed(results []Result) bool {
	for _, r := range results {
		if !r.Pass {
			return false
		}
	}
	return true
}

func evaluateOne(t Threshold, stats metrics.Stats) Result {
	actual, err := extractMetricValue(t, stats)
	if err != nil {
		return Result{
			Threshold: t,
			Raw:       t.Raw,
			Message:   fmt.Sprintf("✗ %s: %v", t.Raw, err),
		}
	}

	pass := compareValues(actual, t.Operator, t.Value)
	status := "✓"
	if !pass {
		status = "✗"
	}
	return Result{
		Threshold: t,
		Raw:       t.Raw,
		Actual:    actual,
		Pass:      pass,
		Message:   fmt.Sprintf("%s %s: %.2f %s %.2f", status, t.Raw, actual, t.Operator, t.Value),
	}
}

// Parse parses a threshold string. Supported forms:
//   - "latency:p95 < 200"      latency percentile in ms (any pNN, plus avg, min, max)
//   - "failures:rate < 0.01"   failed share of completed iterations
//   - "failures:count == 0"
//   - "requests:count >= 100"  completed iterations; "requests:rate" is per second
//   - "dropped:count == 0"     iterations no worker could take
//   - "timeouts:count < 5"
func Parse(s string) (Threshold, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Threshold{}, fmt.Errorf("empty threshold string")
	}

	matches := thresholdPattern.FindStringSubmatch(s)
	if matches == nil {
		return Threshold{}, fmt.Errorf("invalid threshold format: %q (expected metric:aggregate operator value, e.g. 'latency:p95 < 200')", s)
	}

	metric, ok := metricAliases[matches[1]]
	if !ok {
		return Threshold{}, fmt.Errorf("unsupported metric: %q (supported: latency, failures, requests, dropped, timeouts)", matches[1])
	}
	aggregate := matches[2]
	operator := matches[3]

	value, err := strconv.ParseFloat(matches[4], 64)
	if err != nil {
		return Threshold{}, fmt.Errorf("invalid threshold value %q: %v", matches[4], err)
	}

	if err := validateAggregate(metric, aggregate); err != nil {
		return Threshold{}, err
	}
	if !isValidOperator(operator) {
		return Threshold{}, fmt.Errorf("unsupported operator: %q (supported: <, <=, >, >=, ==)", operator)
	}

	return Threshold{
		Metric:    metric,
		Aggregate: aggregate,
		Operator:  operator,
		Value:     value,
		Raw:       s,
	}, nil
}

// ParseMultiple parses multiple threshold strings, reporting every malformed one.
func ParseMultiple(thresholds []string) ([]Threshold, error) {
	if len(thresholds) == 0 {
		return nil, nil
	}

	result := make([]Threshold, 0, len(thresholds))
	var problems []string
	for i, s := range thresholds {
		t, err := Parse(s)
		if err != nil {
			problems = append(problems, fmt.Sprintf("threshold[%d]: %v", i, err))
			continue
		}
		result = append(result, t)
	}
	if len(problems) > 0 {
		return nil, fmt.Errorf("threshold parsing errors: %s", strings.Join(problems, "; "))
	}
	return result, nil
}

func validateAggregate(metric, aggregate string) error {
	switch metric {
	case MetricLatency:
		switch aggregate {
		case "avg", "mean", "min", "max":
			return nil
		}
		if _, err := percentileOf(aggregate); err != nil {
			return fmt.Errorf("unsupported aggregate %q for latency (use pNN, avg, min or max)", aggregate)
		}
		return nil
	case MetricFailures, MetricRequests:
		if aggregate == "count" || aggregate == "rate" {
			return nil
		}
		return fmt.Errorf("unsupported aggregate %q for %s (use 'count' or 'rate')", aggregate, metric)
	default:
		if aggregate == "count" {
			return nil
		}
		return fmt.Errorf("unsupported aggregate %q for %s (use 'count')", aggregate, metric)
	}
}

// percentileOf parses "p95" or "p99.9".
func percentileOf(aggregate string) (float64, error) {
	if !strings.HasPrefix(aggregate, "p") {
		return 0, fmt.Errorf("not a percentile: %q", aggregate)
	}
	p, err := strconv.ParseFloat(aggregate[1:], 64)
	if err != nil || p <= 0 || p > 100 {
		return 0, fmt.Errorf("not a percentile: %q", aggregate)
	}
	return p, nil
}

func isValidOperator(operator string) bool {
	switch operator {
	case "<", "<=", ">", ">=", "==":
		return true
	}
	return false
}

func extractMetricValue(t Threshold, stats metrics.Stats) (float64, error) {
	switch t.Metric {
	case MetricLatency:
		return extractLatencyMetric(t.Aggregate, stats)
	case MetricFailures:
		if t.Aggregate == "count" {
			return float64(stats.Failures), nil
		}
		if stats.Total == 0 {
			return 0, nil
		}
		return float64(stats.Failures) / float64(stats.Total), nil
	case MetricRequests:
		if t.Aggregate == "count" {
			return float64(stats.Total), nil
		}
		return stats.RequestsPerSec, nil
	case MetricDropped:
		return float64(stats.Dropped), nil
	case MetricTimeouts:
		return float64(stats.Timeouts), nil
	default:
		return 0, fmt.Errorf("unknown metric: %s", t.Metric)
	}
}

func extractLatencyMetric(aggregate string, stats metrics.Stats) (float64, error) {
	if stats.Samples == 0 {
		return 0, errNoSamples
	}
	switch aggregate {
	case "avg", "mean":
		return stats.MeanLatencyMs, nil
	case "min":
		return stats.MinLatencyMs, nil
	case "max":
		return stats.MaxLatencyMs, nil
	}
	p, err := percentileOf(aggregate)
	if err != nil {
		return 0, err
	}
	return msOf(stats.LatencyAt(p)), nil
}

func compareValues(actual float64, operator string, expected float64) bool {
	epsilon := 1e-9

	switch operator {
	case "<":
		return actual < expected
	case "<=":
		return actual <= expected || math.Abs(actual-expected) < epsilon
	case ">":
		return actual > expected
	case ">=":
		return actual >= expected || math.Abs(actual-expected) < epsilon
	case "==":
		return math.Abs(actual-expected) < epsilon
	default:
		return false
	}
}
