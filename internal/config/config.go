package config

import (
	"fmt"
	"math"
	"net/url"
	"os"
	"strings"
	"time"
)

// Profile names a preset of run parameters that differ between test variants.
type Profile string

const (
	// ProfileStrict treats only 200 and 201 as success and targets 100 req/s.
	ProfileStrict Profile = "strict"
	// ProfileCheckOrCreate also accepts 404 ("already exists") and targets 200 req/s.
	ProfileCheckOrCreate Profile = "check-or-create"
)

type profileDefaults struct {
	rate   float64
	accept []int
}

var profiles = map[Profile]profileDefaults{
	ProfileStrict:        {rate: 100, accept: []int{200, 201}},
	ProfileCheckOrCreate: {rate: 200, accept: []int{200, 404}},
}

type OutputFormat string

const (
	OutputText OutputFormat = "text"
	OutputJSON OutputFormat = "json"
	OutputYAML OutputFormat = "yaml"
)

type Config struct {
	TargetURL           string            `mapstructure:"target"`
	Profile             Profile           `mapstructure:"profile"`
	Rate                float64           `mapstructure:"rate"`
	Duration            time.Duration     `mapstructure:"duration"`
	PreAllocatedWorkers int               `mapstructure:"preallocated_workers"`
	MaxWorkers          int               `mapstructure:"max_workers"`
	GracePeriod         time.Duration     `mapstructure:"grace_period"`
	Timeout             time.Duration     `mapstructure:"timeout"`
	AcceptStatus        []int             `mapstructure:"accept_status"`
	SLO                 SLOConfig         `mapstructure:"slo"`
	Thresholds          []string          `mapstructure:"thresholds"`
	Payload             PayloadConfig     `mapstructure:"payload"`
	Headers             map[string]string `mapstructure:"headers"`
	Seed                int64             `mapstructure:"seed"`
	ProgressEvery       int               `mapstructure:"progress_every"`
	LogErrors           bool              `mapstructure:"log_errors"`
	Output              OutputFormat      `mapstructure:"output"`
	ResultsFile         string            `mapstructure:"results_file"`
	ResultsLabel        string            `mapstructure:"results_label"`
	Tracing             TracingConfig     `mapstructure:"tracing"`
	ConfigFile          string            `mapstructure:"-"`
}

// SLOConfig is the latency objective a run is judged against.
type SLOConfig struct {
	Percentile float64       `mapstructure:"percentile"`
	Threshold  time.Duration `mapstructure:"threshold"`
}

// PayloadConfig holds the fixed fields of the check-or-create body.
type PayloadConfig struct {
	KeyPrefix     string `mapstructure:"key_prefix"`
	FixedKey      string `mapstructure:"fixed_key"`
	AccountNumber string `mapstructure:"account_number"`
	OwnerDocument string `mapstructure:"owner_document"`
	EntityCode    string `mapstructure:"entity_code"`
}

type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	Protocol    string  `mapstructure:"protocol"` // "grpc" or "http"
	Insecure    bool    `mapstructure:"insecure"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	Propagate   *bool   `mapstructure:"propagate"`
}

// OTLPEndpoint is the configured collector endpoint, falling back to
// OTEL_EXPORTER_OTLP_ENDPOINT.
func (t TracingConfig) OTLPEndpoint() string {
	if ep := strings.TrimSpace(t.Endpoint); ep != "" {
		return ep
	}
	return strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
}

// Enabled reports whether spans are exported at all.
func (t TracingConfig) Enabled() bool {
	return t.OTLPEndpoint() != ""
}

// Defaults returns a Config populated with the values used when nothing else is set.
func Defaults() *Config {
	return &Config{
		Rate:                0,
		PreAllocatedWorkers: 50,
		MaxWorkers:          200,
		GracePeriod:         5 * time.Second,
		Timeout:             30 * time.Second,
		AcceptStatus:        []int{200, 201},
		SLO: SLOConfig{
			Percentile: 95,
			Threshold:  200 * time.Millisecond,
		},
		Payload: PayloadConfig{
			KeyPrefix:     "loadtest_",
			AccountNumber: "123456789",
			OwnerDocument: "123456789",
			EntityCode:    "BA",
		},
		Headers:       map[string]string{},
		LogErrors:     true,
		ProgressEvery: 100,
		Output:        OutputText,
		Tracing:       TracingConfig{Protocol: "grpc", SampleRate: 1.0},
	}
}

// applyProfile fills rate and accepted statuses from the named profile unless the
// caller has set them explicitly.
func (c *Config) applyProfile(rateSet, acceptSet bool) error {
	if c.Profile == "" {
		return nil
	}
	defaults, ok := profiles[c.Profile]
	if !ok {
		return fmt.Errorf("profile %q is not supported (use %q or %q)", c.Profile, ProfileStrict, ProfileCheckOrCreate)
	}
	if !rateSet {
		c.Rate = defaults.rate
	}
	if !acceptSet {
		c.AcceptStatus = append([]int(nil), defaults.accept...)
	}
	return nil
}

// Accepts reports whether code is one of the statuses classified as success.
func (c Config) Accepts(code int) bool {
	for _, s := range c.AcceptStatus {
		if s == code {
			return true
		}
	}
	return false
}

// PlannedIterations is floor(rate * duration), or 0 when the product is not a
// representable iteration count.
func (c Config) PlannedIterations() int64 {
	planned := c.Rate*c.Duration.Seconds() + 1e-9
	if math.IsNaN(planned) || planned <= 0 || planned >= math.MaxInt64 {
		return 0
	}
	return int64(planned)
}

type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

func (c Config) Validate() error {
	var issues []string

	issues = append(issues, validateTarget(c.TargetURL)...)

	finiteRate := !math.IsNaN(c.Rate) && !math.IsInf(c.Rate, 0)
	if finiteRate && c.Rate > 5000 {
		fmt.Fprintf(os.Stderr, "WARNING: High arrival rate configured (%.0f req/s). Ensure you have authorization to test the target system.\n", c.Rate)
	}

	switch {
	case !finiteRate:
		issues = append(issues, "rate must be a finite number")
	case c.Rate <= 0:
		issues = append(issues, "rate must be > 0")
	}
	if c.Duration <= 0 {
		issues = append(issues, "duration must be > 0")
	}
	if finiteRate && c.Rate > 0 && c.Duration > 0 {
		switch {
		case c.Rate*c.Duration.Seconds() >= math.MaxInt64:
			issues = append(issues, "rate * duration schedules too many iterations")
		case c.PlannedIterations() == 0:
			issues = append(issues, "rate * duration must schedule at least one iteration")
		}
	}
	if c.PreAllocatedWorkers < 1 {
		issues = append(issues, "preallocated workers must be >= 1")
	}
	if c.MaxWorkers < c.PreAllocatedWorkers {
		issues = append(issues, "max workers must be >= preallocated workers")
	}
	if c.GracePeriod < 0 {
		issues = append(issues, "grace period must be >= 0")
	}
	if c.Timeout < 0 {
		issues = append(issues, "timeout must be >= 0")
	}
	if c.ProgressEvery < 0 {
		issues = append(issues, "progress-every must be >= 0")
	}

	if len(c.AcceptStatus) == 0 {
		issues = append(issues, "accept-status must list at least one status code")
	}
	for _, code := range c.AcceptStatus {
		if code < 100 || code > 599 {
			issues = append(issues, fmt.Sprintf("accept-status %d is not a valid HTTP status", code))
		}
	}

	if c.SLO.Percentile <= 0 || c.SLO.Percentile > 100 {
		issues = append(issues, "slo percentile must be in (0, 100]")
	}
	if c.SLO.Threshold <= 0 {
		issues = append(issues, "slo threshold must be > 0")
	}

	switch c.Output {
	case "", OutputText, OutputJSON, OutputYAML:
	default:
		issues = append(issues, fmt.Sprintf("output %q is not supported (text, json or yaml)", c.Output))
	}

	if strings.TrimSpace(c.Payload.FixedKey) == "" && strings.TrimSpace(c.Payload.KeyPrefix) == "" {
		issues = append(issues, "payload: key prefix or fixed key is required")
	}

	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		issues = append(issues, "tracing: sample rate must be between 0.0 and 1.0")
	}
	switch strings.ToLower(c.Tracing.Protocol) {
	case "", "grpc", "http":
	default:
		issues = append(issues, fmt.Sprintf("tracing: protocol %q is not supported (grpc or http)", c.Tracing.Protocol))
	}

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}

func validateTarget(target string) []string {
	target = strings.TrimSpace(target)
	if target == "" {
		return []string{"target is required (use --help for usage information)"}
	}
	u, err := url.Parse(target)
	if err != nil {
		return []string{fmt.Sprintf("target %q is not a valid URL: %v", target, err)}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return []string{fmt.Sprintf("target %q must use http or https", target)}
	}
	if u.Host == "" {
		return []string{fmt.Sprintf("target %q has no host", target)}
	}
	return nil
}
