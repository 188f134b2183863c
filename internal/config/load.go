package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads, parses, defaults, and validates the config file at path.
// The only error it ever returns is *ConfigError, wrapping either a single
// I/O/parse problem or every validation problem found — this is the
// boundary past which every problem becomes the operator's to fix before
// any pipeline starts (spec §7).
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Problems: []string{fmt.Sprintf("reading %s: %v", path, err)}}
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, &ConfigError{Problems: []string{fmt.Sprintf("parsing %s: %v", path, err)}}
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
