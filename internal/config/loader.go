package config

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable the loader reads, e.g. KEYLOAD_TARGET.
const EnvPrefix = "KEYLOAD"

// envKeys are the settings that may come from the environment.
var envKeys = []string{
	"target",
	"profile",
	"rate",
	"duration",
	"preallocated_workers",
	"max_workers",
	"grace_period",
	"timeout",
	"accept_status",
	"thresholds",
	"seed",
	"output",
	"progress_every",
	"log_errors",
	"results_file",
	"results_label",
	"slo.percentile",
	"slo.threshold",
	"payload.key_prefix",
	"payload.fixed_key",
	"tracing.endpoint",
	"tracing.protocol",
}

// Loader handles loading configuration from files, environment and command-line arguments.
type Loader struct{}

// ErrHelpRequested is returned when the user requests help via --help flag.
var ErrHelpRequested = errors.New("help requested")

// NewLoader creates a new configuration Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load parses command-line arguments, the environment and an optional configuration
// file to produce a Config. Precedence: flags, then environment, then file, then defaults.
func (l Loader) Load(args []string) (*Config, error) {
	cmd := newFlagCommand()
	if err := cmd.Flags().Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
		return nil, err
	}

	flagSet := cmd.Flags()
	if helpFlag := flagSet.Lookup("help"); helpFlag != nil {
		if wantsHelp, err := strconv.ParseBool(helpFlag.Value.String()); err == nil && wantsHelp {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
	}

	configPath := flagSet.Lookup("config").Value.String()
	cfgViper := viper.New()
	cfgViper.SetEnvPrefix(EnvPrefix)
	cfgViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	for _, key := range envKeys {
		if err := cfgViper.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	if configPath != "" {
		cfgViper.SetConfigFile(configPath)
		if err := cfgViper.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	settings := cfgViper.AllSettings()

	cfg := Defaults()
	cfg.ConfigFile = configPath

	if err := applyConfigSettings(cfg, settings); err != nil {
		return nil, err
	}

	if err := applyFlagOverrides(cfg, flagSet); err != nil {
		return nil, err
	}

	_, rateInSettings := lookupSetting(settings, "rate")
	_, acceptInSettings := lookupSetting(settings, "acceptstatus", "accept_status", "accept-status")
	if err := cfg.applyProfile(rateInSettings || flagSet.Changed("rate"), acceptInSettings || flagSet.Changed("accept-status")); err != nil {
		return nil, err
	}

	cfg.TargetURL = strings.TrimSpace(cfg.TargetURL)
	if cfg.Output == "" {
		cfg.Output = OutputText
	}
	if cfg.Headers == nil {
		cfg.Headers = map[string]string{}
	}

	return cfg, nil
}

// applyConfigSettings applies settings from a config file or the environment to the Config struct.
func applyConfigSettings(cfg *Config, settings map[string]interface{}) error {
	if len(settings) == 0 {
		return nil
	}

	if raw, ok := lookupSetting(settings, "target"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("target: %w", err)
		}
		cfg.TargetURL = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "profile"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("profile: %w", err)
		}
		cfg.Profile = Profile(strings.ToLower(strings.TrimSpace(val)))
	}

	if raw, ok := lookupSetting(settings, "rate"); ok {
		val, err := asFloat64(raw)
		if err != nil {
			return fmt.Errorf("rate: %w", err)
		}
		cfg.Rate = val
	}

	if raw, ok := lookupSetting(settings, "duration"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("duration: %w", err)
		}
		cfg.Duration = dur
	}

	if raw, ok := lookupSetting(settings, "preallocatedworkers", "preallocated_workers", "preallocated-workers"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("preallocated_workers: %w", err)
		}
		cfg.PreAllocatedWorkers = val
	}

	if raw, ok := lookupSetting(settings, "maxworkers", "max_workers", "max-workers"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("max_workers: %w", err)
		}
		cfg.MaxWorkers = val
	}

	if raw, ok := lookupSetting(settings, "graceperiod", "grace_period", "grace-period"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("grace_period: %w", err)
		}
		cfg.GracePeriod = dur
	}

	if raw, ok := lookupSetting(settings, "timeout"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("timeout: %w", err)
		}
		cfg.Timeout = dur
	}

	if raw, ok := lookupSetting(settings, "seed"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("seed: %w", err)
		}
		cfg.Seed = int64(val)
	}

	if raw, ok := lookupSetting(settings, "acceptstatus", "accept_status", "accept-status"); ok {
		codes, err := asIntSlice(raw)
		if err != nil {
			return fmt.Errorf("accept_status: %w", err)
		}
		cfg.AcceptStatus = codes
	}

	if raw, ok := lookupSetting(settings, "slo"); ok {
		slo, err := parseSLO(raw, cfg.SLO)
		if err != nil {
			return fmt.Errorf("slo: %w", err)
		}
		cfg.SLO = slo
	}

	if raw, ok := lookupSetting(settings, "thresholds"); ok {
		thresholds, err := asStringSlice(raw)
		if err != nil {
			return fmt.Errorf("thresholds: %w", err)
		}
		cfg.Thresholds = thresholds
	}

	if raw, ok := lookupSetting(settings, "payload"); ok {
		payload, err := parsePayload(raw, cfg.Payload)
		if err != nil {
			return fmt.Errorf("payload: %w", err)
		}
		cfg.Payload = payload
	}

	if raw, ok := lookupSetting(settings, "headers"); ok {
		hdrs, err := asStringMap(raw)
		if err != nil {
			return fmt.Errorf("headers: %w", err)
		}
		if cfg.Headers == nil {
			cfg.Headers = map[string]string{}
		}
		for k, v := range hdrs {
			cfg.Headers[http.CanonicalHeaderKey(k)] = v
		}
	}

	if raw, ok := lookupSetting(settings, "progressevery", "progress_every", "progress-every"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("progress_every: %w", err)
		}
		cfg.ProgressEvery = val
	}

	if raw, ok := lookupSetting(settings, "logerrors", "log_errors", "log-errors"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("log_errors: %w", err)
		}
		cfg.LogErrors = val
	}

	if raw, ok := lookupSetting(settings, "output"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("output: %w", err)
		}
		cfg.Output = OutputFormat(strings.ToLower(strings.TrimSpace(val)))
	}

	if raw, ok := lookupSetting(settings, "resultsfile", "results_file", "results-file"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("results_file: %w", err)
		}
		cfg.ResultsFile = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "resultslabel", "results_label", "results-label"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("results_label: %w", err)
		}
		cfg.ResultsLabel = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "tracing"); ok {
		tracing, err := parseTracing(raw, cfg.Tracing)
		if err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
		cfg.Tracing = tracing
	}

	return nil
}

func parseSLO(value interface{}, base SLOConfig) (SLOConfig, error) {
	if value == nil {
		return base, nil
	}
	settings, err := toStringKeyMap(value)
	if err != nil {
		return SLOConfig{}, err
	}
	slo := base
	if raw, ok := lookupSetting(settings, "percentile"); ok {
		val, err := asFloat64(raw)
		if err != nil {
			return SLOConfig{}, fmt.Errorf("percentile: %w", err)
		}
		slo.Percentile = val
	}
	if raw, ok := lookupSetting(settings, "threshold"); ok {
		dur, err := asLatency(raw)
		if err != nil {
			return SLOConfig{}, fmt.Errorf("threshold: %w", err)
		}
		slo.Threshold = dur
	}
	return slo, nil
}

func parsePayload(value interface{}, base PayloadConfig) (PayloadConfig, error) {
	if value == nil {
		return base, nil
	}
	settings, err := toStringKeyMap(value)
	if err != nil {
		return PayloadConfig{}, err
	}
	payload := base
	fields := []struct {
		dst  *string
		keys []string
	}{
		{&payload.KeyPrefix, []string{"keyprefix", "key_prefix", "key-prefix"}},
		{&payload.FixedKey, []string{"fixedkey", "fixed_key", "fixed-key"}},
		{&payload.AccountNumber, []string{"accountnumber", "account_number", "account-number"}},
		{&payload.OwnerDocument, []string{"ownerdocument", "owner_document", "owner-document"}},
		{&payload.EntityCode, []string{"entitycode", "entity_code", "entity-code"}},
	}
	for _, f := range fields {
		raw, ok := lookupSetting(settings, f.keys...)
		if !ok {
			continue
		}
		val, err := asString(raw)
		if err != nil {
			return PayloadConfig{}, fmt.Errorf("%s: %w", f.keys[1], err)
		}
		*f.dst = val
	}
	return payload, nil
}

func parseTracing(value interface{}, base TracingConfig) (TracingConfig, error) {
	if value == nil {
		return base, nil
	}
	settings, err := toStringKeyMap(value)
	if err != nil {
		return TracingConfig{}, err
	}
	tc := base
	if raw, ok := lookupSetting(settings, "endpoint"); ok {
		val, err := asString(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("endpoint: %w", err)
		}
		tc.Endpoint = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "protocol"); ok {
		val, err := asString(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("protocol: %w", err)
		}
		tc.Protocol = strings.ToLower(strings.TrimSpace(val))
	}
	if raw, ok := lookupSetting(settings, "insecure"); ok {
		val, err := asBool(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("insecure: %w", err)
		}
		tc.Insecure = val
	}
	if raw, ok := lookupSetting(settings, "servicename", "service_name", "service-name"); ok {
		val, err := asString(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("service_name: %w", err)
		}
		tc.ServiceName = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "samplerate", "sample_rate", "sample-rate"); ok {
		val, err := asFloat64(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("sample_rate: %w", err)
		}
		tc.SampleRate = val
	}
	if raw, ok := lookupSetting(settings, "propagate"); ok {
		val, err := asBool(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("propagate: %w", err)
		}
		tc.Propagate = &val
	}
	return tc, nil
}
