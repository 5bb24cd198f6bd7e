package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mati/keyload/internal/metrics"
	"github.com/mati/keyload/internal/runner"
	"github.com/mati/keyload/internal/threshold"
)

const boxWidth = 60

// Report is everything printed at the end of a run.
type Report struct {
	RunID      string             `json:"run_id" yaml:"run_id"`
	Target     string             `json:"target" yaml:"target"`
	Profile    string             `json:"profile,omitempty" yaml:"profile,omitempty"`
	TargetRate float64            `json:"target_rate" yaml:"target_rate"`
	Planned    int64              `json:"planned_iterations" yaml:"planned_iterations"`
	Stats      metrics.Stats      `json:"stats" yaml:"stats"`
	Scheduling Scheduling         `json:"scheduling" yaml:"scheduling"`
	SLO        threshold.Verdict  `json:"slo" yaml:"slo"`
	Thresholds []threshold.Result `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`
	Passed     bool               `json:"passed" yaml:"passed"`
}

// Scheduling mirrors runner.Result.
type Scheduling struct {
	Scheduled   int64   `json:"scheduled" yaml:"scheduled"`
	Dispatched  int64   `json:"dispatched" yaml:"dispatched"`
	Dropped     int64   `json:"dropped" yaml:"dropped"`
	Abandoned   int64   `json:"abandoned" yaml:"abandoned"`
	PeakWorkers int     `json:"peak_workers" yaml:"peak_workers"`
	MaxLagMs    float64 `json:"max_lag_ms" yaml:"max_lag_ms"`
}

// ReportInput collects what NewReport needs from a finished run.
type ReportInput struct {
	RunID      string
	Target     string
	Profile    string
	TargetRate float64
	Planned    int64
	Stats      metrics.Stats
	Result     runner.Result
	SLO        threshold.SLO
	Thresholds []threshold.Threshold
}

// NewReport evaluates the SLO and the extra thresholds. The run passes only when
// all of them pass.
func NewReport(in ReportInput) Report {
	if in.Result.Scheduled > 0 {
		// The scheduler's count is authoritative for drops.
		in.Stats.Dropped = in.Result.Dropped
	}
	r := Report{
		RunID:      in.RunID,
		Target:     in.Target,
		Profile:    in.Profile,
		TargetRate: in.TargetRate,
		Planned:    in.Planned,
		Stats:      in.Stats,
		Scheduling: Scheduling{
			Scheduled:   in.Result.Scheduled,
			Dispatched:  in.Result.Dispatched,
			Dropped:     in.Result.Dropped,
			Abandoned:   in.Result.Abandoned,
			PeakWorkers: in.Result.PeakWorkers,
			MaxLagMs:    float64(in.Result.MaxLag) / float64(time.Millisecond),
		},
		SLO: in.SLO.Evaluate(in.Stats),
	}
	if len(in.Thresholds) > 0 {
		r.Thresholds = threshold.NewEvaluator(in.Thresholds).Evaluate(in.Stats)
	}
	r.Passed = r.SLO.Pass && threshold.AllPassed(r.Thresholds)
	return r
}

// PrintReport outputs the boxed human-readable summary.
func PrintReport(w io.Writer, r Report) {
	stats := r.Stats
	fmt.Fprintln(w)
	fmt.Fprintln(w, "╔"+strings.Repeat("═", boxWidth)+"╗")
	fmt.Fprintln(w, "║"+center("LOAD TEST RESULTS", boxWidth)+"║")
	fmt.Fprintln(w, "╚"+strings.Repeat("═", boxWidth)+"╝")
	fmt.Fprintln(w)
	if r.RunID != "" {
		fmt.Fprintf(w, "Run:                    %s\n", r.RunID)
	}
	if r.Target != "" {
		fmt.Fprintf(w, "Target:                 %s\n", r.Target)
	}
	if r.Profile != "" {
		fmt.Fprintf(w, "Profile:                %s\n", r.Profile)
	}

	fmt.Fprintln(w, "\nRequest Summary:")
	fmt.Fprintf(w, "   Total Requests:      %d\n", stats.Total)
	fmt.Fprintf(w, "   Successful:          %d\n", stats.Successes)
	fmt.Fprintf(w, "   Failed:              %d\n", stats.Failures)
	fmt.Fprintf(w, "   Success Rate:        %.2f%%\n", stats.SuccessRate())
	fmt.Fprintf(w, "   Requests/sec:        %.2f\n", stats.RequestsPerSec)
	fmt.Fprintf(w, "   Duration:            %s\n", stats.Duration.Round(time.Millisecond))

	fmt.Fprintln(w, "\nLatency Stats (ms):")
	fmt.Fprintf(w, "   Min:                 %.2f\n", stats.MinLatencyMs)
	fmt.Fprintf(w, "   Average:             %.2f\n", stats.MeanLatencyMs)
	fmt.Fprintf(w, "   Median:              %.2f\n", stats.P50LatencyMs)
	fmt.Fprintf(w, "   P90:                 %.2f\n", stats.P90LatencyMs)
	fmt.Fprintf(w, "   P95:                 %.2f\n", stats.P95LatencyMs)
	fmt.Fprintf(w, "   P99:                 %.2f\n", stats.P99LatencyMs)
	fmt.Fprintf(w, "   Max:                 %.2f\n", stats.MaxLatencyMs)

	label := r.SLO.Label()
	fmt.Fprintln(w, "\nRequirements Check:")
	fmt.Fprintf(w, "   Target RPS:          %g req/sec\n", r.TargetRate)
	fmt.Fprintf(w, "   %-21s< %g ms\n", "Target "+label+" Latency:", r.SLO.ThresholdMs)
	fmt.Fprintf(w, "   %-21s%.2f ms\n", "Actual "+label+" Latency:", r.SLO.ActualMs)
	fmt.Fprintf(w, "   Status:              %s\n", verdictWord(r.SLO.Pass))

	s := r.Scheduling
	if s.Dropped > 0 || s.Abandoned > 0 || stats.Timeouts > 0 {
		fmt.Fprintln(w, "\nScheduling:")
		fmt.Fprintf(w, "   Planned:             %d\n", r.Planned)
		fmt.Fprintf(w, "   Dispatched:          %d\n", s.Dispatched)
		fmt.Fprintf(w, "   Dropped Iterations:  %d\n", s.Dropped)
		fmt.Fprintf(w, "   Abandoned:           %d\n", s.Abandoned)
		fmt.Fprintf(w, "   Timeouts:            %d\n", stats.Timeouts)
		fmt.Fprintf(w, "   Peak Workers:        %d\n", s.PeakWorkers)
		fmt.Fprintf(w, "   Max Lag:             %.2f ms\n", s.MaxLagMs)
	}

	writeCounts(w, "Status Codes:", stats.StatusCodes)
	writeCounts(w, "Response Sources:", stats.Sources)

	if len(r.Thresholds) > 0 {
		fmt.Fprintln(w, "\nThresholds:")
		for _, res := range r.Thresholds {
			fmt.Fprintf(w, "   %s\n", res.Message)
		}
		fmt.Fprintf(w, "   Overall:             %s\n", verdictWord(threshold.AllPassed(r.Thresholds)))
	}
}

// PrintJSONReport outputs a JSON-formatted report.
func PrintJSONReport(w io.Writer, r Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// PrintYAMLReport outputs a YAML-formatted report.
func PrintYAMLReport(w io.Writer, r Report) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return err
	}
	return enc.Close()
}

func writeCounts(w io.Writer, title string, counts map[string]int) {
	rows := metrics.FlattenCounts(counts)
	if len(rows) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s\n", title)
	for _, row := range rows {
		fmt.Fprintf(w, "   %-21s%d\n", row.Code+":", row.Count)
	}
}

func verdictWord(pass bool) string {
	if pass {
		return "PASSED"
	}
	return "FAILED"
}

func center(s string, width int) string {
	pad := width - len(s)
	if pad <= 0 {
		return s
	}
	left := pad / 2
	return strings.Repeat(" ", left) + s + strings.Repeat(" ", pad-left)
}
