// Package config loads the engine's analysis parameters (hop bound,
// noise lists, report/tag-pool/log paths) from a YAML file, falling
// back to the original tool's hardcoded defaults when no file is
// given.
package config

import (
	"os"

	"gopkg.in/yaml.v3"

	provtraceerrors "provtrace/errors"
	"provtrace/internal/noise"
)

// NoiseConfig mirrors noise.Config in YAML-tagged form.
type NoiseConfig struct {
	IgnoredPrefixes         []string `yaml:"ignored_prefixes"`
	IgnoredBinaries         []string `yaml:"ignored_binaries"`
	IgnoredExactPaths       []string `yaml:"ignored_exact_paths"`
	IgnoredPorts            []int    `yaml:"ignored_ports"`
	IgnoredSocketSubstrings []string `yaml:"ignored_socket_substrings"`
}

// EgressConfig holds the egress-enrichment settings read from YAML.
// The backward tracer does not read it: its pass-through shell list is
// fixed in internal/trace/backward.
type EgressConfig struct {
	PassthroughShells []string `yaml:"passthrough_shells"`
}

// Config is the engine's YAML-loaded configuration surface.
type Config struct {
	MaxHops     int          `yaml:"max_hops"`
	ReportDir   string       `yaml:"report_dir"`
	TagPoolFile string       `yaml:"tag_pool_file"`
	LogFile     string       `yaml:"log_file"`
	Noise       NoiseConfig  `yaml:"noise"`
	Egress      EgressConfig `yaml:"egress"`
}

// Default returns the engine defaults, matching the original tool's
// hardcoded constants (main.py's DEFAULT_* and utils/filters.py).
func Default() Config {
	nc := noise.NewDefaultConfig()
	return Config{
		MaxHops:     5,
		ReportDir:   "reports",
		TagPoolFile: "config/tag_pool.json",
		LogFile:     "logs/auditbeat-20251031.ndjson",
		Noise: NoiseConfig{
			IgnoredPrefixes:         nc.IgnoredPrefixes,
			IgnoredBinaries:         nc.IgnoredBinaries,
			IgnoredExactPaths:       nc.IgnoredExactPaths,
			IgnoredPorts:            nc.IgnoredPorts,
			IgnoredSocketSubstrings: nc.IgnoredSocketSubstrings,
		},
		Egress: EgressConfig{
			PassthroughShells: []string{"/usr/bin/sudo", "/bin/sudo", "/usr/bin/bash", "/bin/bash"},
		},
	}
}

// Load reads a YAML config file at path, overlaying it onto Default().
// A missing file is not an error: config is optional (SPEC_FULL.md §4.9).
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, provtraceerrors.Wrap(err, provtraceerrors.ErrInvalidConfig, "config.Load")
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, provtraceerrors.WrapWithDetail(err, provtraceerrors.ErrInvalidConfig, "config.Load", "malformed engine config")
	}
	return cfg, nil
}

// NoiseFilter builds the noise.Config this engine config implies.
func (c Config) NoiseFilter() noise.Config {
	return noise.Config{
		IgnoredPrefixes:         c.Noise.IgnoredPrefixes,
		IgnoredBinaries:         c.Noise.IgnoredBinaries,
		IgnoredExactPaths:       c.Noise.IgnoredExactPaths,
		IgnoredPorts:            c.Noise.IgnoredPorts,
		IgnoredSocketSubstrings: c.Noise.IgnoredSocketSubstrings,
	}
}
