// Package config loads collector settings from defaults, an optional YAML
// file, environment variables and command line flags, in that order of
// increasing precedence. Positional arguments name extra counters to
// sample, matching the original pmc-collector invocation style:
//
//	pmc-collector SQ_WAVES SQ_INSTS_VALU
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

const envPrefix = "PMC_COLLECTOR_"

type Config struct {
	// Counters sampled on every device each poll, in request order. The
	// reference counter is always sampled and need not be listed.
	Counters []string `yaml:"counters"`

	// ReferenceCounter is the free-running counter watched for session
	// invalidation. Defaults to GRBM_COUNT.
	ReferenceCounter string `yaml:"reference_counter"`

	// Interval between polls.
	Interval time.Duration `yaml:"interval"`

	// RocprofilerLibrary is the rocprofiler-sdk shared object to load.
	RocprofilerLibrary string `yaml:"rocprofiler_library"`

	// ListenAddress serves Prometheus metrics when non-empty.
	ListenAddress string `yaml:"listen_address"`

	// Parallel samples devices concurrently on each poll.
	Parallel bool `yaml:"parallel"`
}

func Default() *Config {
	return &Config{
		ReferenceCounter:   "GRBM_COUNT",
		Interval:           time.Second,
		RocprofilerLibrary: "librocprofiler-sdk.so",
	}
}

// LoadConfig parses args (not including the program name) into a Config.
func LoadConfig(args []string) (*Config, error) {
	cfg := Default()

	fs := pflag.NewFlagSet("pmc-collector", pflag.ContinueOnError)
	configPath := fs.String("config", "", "path to YAML configuration file")
	counters := fs.StringSlice("counter", nil, "counter to sample, repeatable")
	interval := fs.Duration("interval", cfg.Interval, "sampling interval")
	reference := fs.String("reference-counter", cfg.ReferenceCounter, "monotonic counter used for session validity")
	library := fs.String("rocprofiler-library", cfg.RocprofilerLibrary, "rocprofiler-sdk shared object")
	listen := fs.String("listen-address", cfg.ListenAddress, "Prometheus listen address, empty to disable")
	parallel := fs.Bool("parallel", cfg.Parallel, "sample devices in parallel")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *configPath == "" {
		*configPath = os.Getenv(envPrefix + "CONFIG")
	}
	if *configPath != "" {
		data, err := os.ReadFile(*configPath)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", *configPath, err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	// Flags the caller actually set override the file and environment.
	if fs.Changed("counter") {
		cfg.Counters = *counters
	}
	if fs.Changed("interval") {
		cfg.Interval = *interval
	}
	if fs.Changed("reference-counter") {
		cfg.ReferenceCounter = *reference
	}
	if fs.Changed("rocprofiler-library") {
		cfg.RocprofilerLibrary = *library
	}
	if fs.Changed("listen-address") {
		cfg.ListenAddress = *listen
	}
	if fs.Changed("parallel") {
		cfg.Parallel = *parallel
	}

	cfg.Counters = append(cfg.Counters, fs.Args()...)

	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("interval must be positive, got %s", cfg.Interval)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv(envPrefix + "LISTEN_ADDRESS"); v != "" {
		cfg.ListenAddress = v
	}
	if v := os.Getenv(envPrefix + "ROCPROFILER_LIBRARY"); v != "" {
		cfg.RocprofilerLibrary = v
	}
	if v := os.Getenv(envPrefix + "INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parsing %sINTERVAL: %w", envPrefix, err)
		}
		cfg.Interval = d
	}
	return nil
}
