package config

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// newFlagCommand creates a cobra command with all flags configured.
func newFlagCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "keyload",
		Short:         "Constant-arrival-rate load generator for check-or-create endpoints",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetOut(os.Stdout)
	configureFlags(cmd.Flags())
	return cmd
}

// configureFlags sets up all CLI flags on the provided flag set.
func configureFlags(flags *pflag.FlagSet) {
	// Target
	flags.String("target", "", "Check-or-create endpoint URL to load test")
	flags.StringSlice("header", nil, "Additional request header in key=value form")
	flags.String("profile", "", "Run profile: 'strict' (200,201 @ 100/s) or 'check-or-create' (200,404 @ 200/s)")

	// Load shape
	flags.Float64P("rate", "r", 0, "Iterations started per second")
	flags.DurationP("duration", "d", 0, "How long to schedule iterations (e.g. 10s, 1m)")
	flags.Int("preallocated-workers", 50, "Workers started before the first iteration")
	flags.Int("max-workers", 200, "Upper bound on workers; iterations beyond it are dropped")
	flags.Duration("grace-period", 5*time.Second, "Time in-flight requests may take to finish after the run ends")
	flags.Duration("timeout", 30*time.Second, "Per-request timeout (0 disables)")
	flags.Int64("seed", 0, "Seed for the random key component (0 uses the clock)")

	// Classification and objectives
	flags.IntSlice("accept-status", []int{200, 201}, "Status codes counted as success (repeatable)")
	flags.Float64("slo-percentile", 95, "Latency percentile the SLO is evaluated on")
	flags.Duration("slo-threshold", 200*time.Millisecond, "The SLO passes when the percentile is > 0 and below this value")
	flags.StringSlice("threshold", nil, "Additional assertion (repeatable, e.g. 'failures:rate < 0.01')")

	// Payload
	flags.String("key-prefix", "loadtest_", "Prefix of the generated keyValue")
	flags.String("fixed-key", "", "Send this keyValue on every iteration instead of generating one")
	flags.String("account-number", "123456789", "accountNumber sent with every key")
	flags.String("owner-document", "123456789", "ownerDocument sent with every key")
	flags.String("entity-code", "BA", "entityCode sent with every key")

	// Output
	flags.String("output", string(OutputText), "Report format: text, json or yaml")
	flags.Int("progress-every", 100, "Log progress every N dispatched iterations (0 disables)")
	flags.Bool("log-errors", true, "Log failed requests to stderr, throttled to one line per second after the first 10")
	flags.String("results-file", "", "Append latency stats to this results log")
	flags.String("results-label", "", "Label of the results log block (defaults to --max-workers)")
	flags.String("config", "", "Path to configuration file (JSON or YAML)")

	// Tracing
	flags.String("otel-endpoint", "", "OTLP collector endpoint (enables tracing)")
	flags.String("otel-protocol", "grpc", "OTLP protocol: grpc or http")
	flags.Bool("otel-insecure", false, "Disable TLS to the OTLP collector")
	flags.Float64("otel-sample-rate", 1.0, "Fraction of requests traced")
	flags.Bool("otel-propagate", true, "Inject W3C trace headers into requests when tracing is enabled")
}

// displayHelp prints the help message for a command.
func displayHelp(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Usage: %s\n\nFlags:\n", cmd.UseLine())
	fs := cmd.Flags()
	fs.SetOutput(out)
	fs.PrintDefaults()
}

// applyFlagOverrides applies command-line flag values to the config, overriding
// values from the config file and environment.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	if fs.Changed("target") {
		val, err := fs.GetString("target")
		if err != nil {
			return err
		}
		cfg.TargetURL = strings.TrimSpace(val)
	}
	if fs.Changed("profile") {
		val, err := fs.GetString("profile")
		if err != nil {
			return err
		}
		cfg.Profile = Profile(strings.ToLower(strings.TrimSpace(val)))
	}
	if fs.Changed("rate") {
		val, err := fs.GetFloat64("rate")
		if err != nil {
			return err
		}
		cfg.Rate = val
	}
	if fs.Changed("duration") {
		val, err := fs.GetDuration("duration")
		if err != nil {
			return err
		}
		cfg.Duration = val
	}
	if fs.Changed("preallocated-workers") {
		val, err := fs.GetInt("preallocated-workers")
		if err != nil {
			return err
		}
		cfg.PreAllocatedWorkers = val
	}
	if fs.Changed("max-workers") {
		val, err := fs.GetInt("max-workers")
		if err != nil {
			return err
		}
		cfg.MaxWorkers = val
	}
	if fs.Changed("grace-period") {
		val, err := fs.GetDuration("grace-period")
		if err != nil {
			return err
		}
		cfg.GracePeriod = val
	}
	if fs.Changed("timeout") {
		val, err := fs.GetDuration("timeout")
		if err != nil {
			return err
		}
		cfg.Timeout = val
	}
	if fs.Changed("seed") {
		val, err := fs.GetInt64("seed")
		if err != nil {
			return err
		}
		cfg.Seed = val
	}
	if fs.Changed("accept-status") {
		val, err := fs.GetIntSlice("accept-status")
		if err != nil {
			return err
		}
		cfg.AcceptStatus = val
	}
	if fs.Changed("slo-percentile") {
		val, err := fs.GetFloat64("slo-percentile")
		if err != nil {
			return err
		}
		cfg.SLO.Percentile = val
	}
	if fs.Changed("slo-threshold") {
		val, err := fs.GetDuration("slo-threshold")
		if err != nil {
			return err
		}
		cfg.SLO.Threshold = val
	}
	if fs.Changed("threshold") {
		val, err := fs.GetStringSlice("threshold")
		if err != nil {
			return err
		}
		cfg.Thresholds = val
	}
	if fs.Changed("key-prefix") {
		val, err := fs.GetString("key-prefix")
		if err != nil {
			return err
		}
		cfg.Payload.KeyPrefix = val
	}
	if fs.Changed("fixed-key") {
		val, err := fs.GetString("fixed-key")
		if err != nil {
			return err
		}
		cfg.Payload.FixedKey = strings.TrimSpace(val)
	}
	if fs.Changed("account-number") {
		val, err := fs.GetString("account-number")
		if err != nil {
			return err
		}
		cfg.Payload.AccountNumber = val
	}
	if fs.Changed("owner-document") {
		val, err := fs.GetString("owner-document")
		if err != nil {
			return err
		}
		cfg.Payload.OwnerDocument = val
	}
	if fs.Changed("entity-code") {
		val, err := fs.GetString("entity-code")
		if err != nil {
			return err
		}
		cfg.Payload.EntityCode = val
	}
	if fs.Changed("output") {
		val, err := fs.GetString("output")
		if err != nil {
			return err
		}
		cfg.Output = OutputFormat(strings.ToLower(strings.TrimSpace(val)))
	}
	if fs.Changed("progress-every") {
		val, err := fs.GetInt("progress-every")
		if err != nil {
			return err
		}
		cfg.ProgressEvery = val
	}
	if fs.Changed("log-errors") {
		val, err := fs.GetBool("log-errors")
		if err != nil {
			return err
		}
		cfg.LogErrors = val
	}
	if fs.Changed("results-file") {
		val, err := fs.GetString("results-file")
		if err != nil {
			return err
		}
		cfg.ResultsFile = strings.TrimSpace(val)
	}
	if fs.Changed("results-label") {
		val, err := fs.GetString("results-label")
		if err != nil {
			return err
		}
		cfg.ResultsLabel = strings.TrimSpace(val)
	}

	vals, err := fs.GetStringSlice("header")
	if err != nil {
		return err
	}
	if len(vals) > 0 {
		if cfg.Headers == nil {
			cfg.Headers = map[string]string{}
		}
		for _, entry := range vals {
			parts := strings.SplitN(entry, "=", 2)
			if len(parts) != 2 {
				return fmt.Errorf("header must be in key=value format: %s", entry)
			}
			key := http.CanonicalHeaderKey(strings.TrimSpace(parts[0]))
			if key == "" {
				return fmt.Errorf("header key cannot be empty")
			}
			cfg.Headers[key] = strings.TrimSpace(parts[1])
		}
	}

	if fs.Changed("otel-endpoint") {
		val, err := fs.GetString("otel-endpoint")
		if err != nil {
			return err
		}
		cfg.Tracing.Endpoint = strings.TrimSpace(val)
	}
	if fs.Changed("otel-protocol") {
		val, err := fs.GetString("otel-protocol")
		if err != nil {
			return err
		}
		cfg.Tracing.Protocol = strings.ToLower(strings.TrimSpace(val))
	}
	if fs.Changed("otel-insecure") {
		val, err := fs.GetBool("otel-insecure")
		if err != nil {
			return err
		}
		cfg.Tracing.Insecure = val
	}
	if fs.Changed("otel-sample-rate") {
		val, err := fs.GetFloat64("otel-sample-rate")
		if err != nil {
			return err
		}
		cfg.Tracing.SampleRate = val
	}
	if fs.Changed("otel-propagate") {
		val, err := fs.GetBool("otel-propagate")
		if err != nil {
			return err
		}
		cfg.Tracing.Propagate = &val
	}

	return nil
}
