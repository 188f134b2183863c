// Package config loads and validates the birdgate daemon configuration.
package config

import (
	"fmt"
)

// FrequencyBand is an inclusive [Low, High) band in Hz used to isolate a
// portion of the spectrum for RMS measurement.
type FrequencyBand struct {
	Low  float64 `yaml:"low"`
	High float64 `yaml:"high"`
}

// GatingThresholds are the decision boundaries the gate compares features
// against.
type GatingThresholds struct {
	MinOverallRMSDB float64 `yaml:"min_overall_rms_db"`
	MinBirdSNRDB    float64 `yaml:"min_bird_snr_db"`
}

// StreamConfig describes one RTSP stream to ingest.
type StreamConfig struct {
	Name              string  `yaml:"name"`
	URL               string  `yaml:"url"`
	SampleRate        int     `yaml:"sample_rate"`
	WindowSizeSeconds float64 `yaml:"window_size_seconds"`
	Channels          int     `yaml:"channels"`
}

// BirdNETConfig configures the classifier client.
type BirdNETConfig struct {
	Mode          string  `yaml:"mode"` // "http" | "cli"
	HTTPURL       string  `yaml:"http_url"`
	HTTPTimeout   float64 `yaml:"http_timeout"`
	CLIPath       string  `yaml:"cli_path"`
	CLIModelPath  string  `yaml:"cli_model_path"`
	MinConfidence float64 `yaml:"min_confidence"`
	TopN          int     `yaml:"top_n"`
	Latitude      float64 `yaml:"latitude"`
	Longitude     float64 `yaml:"longitude"`
}

// StorageConfig configures the window log backend.
type StorageConfig struct {
	Backend string `yaml:"backend"` // "sqlite" | "jsonl"
	Path    string `yaml:"path"`
}

// Config is the full daemon configuration, loaded from a YAML file.
type Config struct {
	SiteID                   string           `yaml:"site_id"`
	Streams                  []StreamConfig   `yaml:"streams"`
	BirdBand                 FrequencyBand    `yaml:"bird_band"`
	LowBand                  FrequencyBand    `yaml:"low_band"`
	Gating                   GatingThresholds `yaml:"gating"`
	BirdNET                  BirdNETConfig    `yaml:"birdnet"`
	Storage                  StorageConfig    `yaml:"storage"`
	ReconnectDelaySeconds    float64          `yaml:"reconnect_delay_seconds"`
	MaxReconnectDelaySeconds float64          `yaml:"max_reconnect_delay_seconds"`
}

// ConfigError wraps one or more configuration problems found at load or
// validation time. It is the only error kind that may surface fatally to
// the operator (spec §7).
type ConfigError struct {
	Problems []string
}

func (e *ConfigError) Error() string {
	if len(e.Problems) == 1 {
		return fmt.Sprintf("config error: %s", e.Problems[0])
	}
	msg := fmt.Sprintf("config error: %d problems found:", len(e.Problems))
	for _, p := range e.Problems {
		msg += "\n  - " + p
	}
	return msg
}

func newConfigError(problems []string) error {
	if len(problems) == 0 {
		return nil
	}
	return &ConfigError{Problems: problems}
}

// applyDefaults fills in the documented defaults (spec §6) for any field
// left at its YAML zero value.
func (c *Config) applyDefaults() {
	if c.SiteID == "" {
		c.SiteID = "default"
	}
	for i := range c.Streams {
		s := &c.Streams[i]
		if s.SampleRate == 0 {
			s.SampleRate = 48000
		}
		if s.WindowSizeSeconds == 0 {
			s.WindowSizeSeconds = 5.0
		}
		if s.Channels == 0 {
			s.Channels = 1
		}
	}
	if c.BirdBand.Low == 0 && c.BirdBand.High == 0 {
		c.BirdBand = FrequencyBand{Low: 2000, High: 9000}
	}
	if c.LowBand.Low == 0 && c.LowBand.High == 0 {
		c.LowBand = FrequencyBand{Low: 20, High: 500}
	}
	if c.Gating.MinOverallRMSDB == 0 {
		c.Gating.MinOverallRMSDB = -60.0
	}
	if c.Gating.MinBirdSNRDB == 0 {
		c.Gating.MinBirdSNRDB = 3.0
	}
	if c.BirdNET.Mode == "" {
		c.BirdNET.Mode = "http"
	}
	if c.BirdNET.HTTPURL == "" {
		c.BirdNET.HTTPURL = "http://localhost:8080/analyze"
	}
	if c.BirdNET.HTTPTimeout == 0 {
		c.BirdNET.HTTPTimeout = 30.0
	}
	if c.BirdNET.MinConfidence == 0 {
		c.BirdNET.MinConfidence = 0.1
	}
	if c.BirdNET.TopN == 0 {
		c.BirdNET.TopN = 5
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = "sqlite"
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "birdgate.db"
	}
	if c.ReconnectDelaySeconds == 0 {
		c.ReconnectDelaySeconds = 5.0
	}
	if c.MaxReconnectDelaySeconds == 0 {
		c.MaxReconnectDelaySeconds = 60.0
	}
}

// Validate checks the configuration for the invariants named in spec §3/§6
// and returns a *ConfigError joining every problem found, or nil.
func (c *Config) Validate() error {
	var problems []string

	if len(c.Streams) == 0 {
		problems = append(problems, "at least one stream must be configured")
	}
	seen := make(map[string]bool, len(c.Streams))
	for _, s := range c.Streams {
		if s.Name == "" {
			problems = append(problems, "stream: name is required")
			continue
		}
		if seen[s.Name] {
			problems = append(problems, fmt.Sprintf("stream %q: name must be unique", s.Name))
		}
		seen[s.Name] = true
		if s.URL == "" {
			problems = append(problems, fmt.Sprintf("stream %q: url is required", s.Name))
		}
		if s.SampleRate <= 0 {
			problems = append(problems, fmt.Sprintf("stream %q: sample_rate must be > 0", s.Name))
		}
		if s.WindowSizeSeconds <= 0 {
			problems = append(problems, fmt.Sprintf("stream %q: window_size_seconds must be > 0", s.Name))
		}
		if s.Channels < 1 {
			problems = append(problems, fmt.Sprintf("stream %q: channels must be >= 1", s.Name))
		}

		nyquist := float64(s.SampleRate) / 2
		for name, band := range map[string]FrequencyBand{"bird_band": c.BirdBand, "low_band": c.LowBand} {
			if band.Low < 0 || band.Low >= band.High {
				problems = append(problems, fmt.Sprintf("%s: low (%.1f) must be >= 0 and < high (%.1f)", name, band.Low, band.High))
			}
			if s.SampleRate > 0 && band.High >= nyquist {
				problems = append(problems, fmt.Sprintf("%s: high (%.1f) must be below Nyquist (%.1f) for stream %q", name, band.High, nyquist, s.Name))
			}
		}
	}

	switch c.BirdNET.Mode {
	case "http":
		if c.BirdNET.HTTPURL == "" {
			problems = append(problems, "birdnet: http_url is required in http mode")
		}
	case "cli":
		if c.BirdNET.CLIPath == "" {
			problems = append(problems, "birdnet: cli_path is required in cli mode")
		}
	default:
		problems = append(problems, fmt.Sprintf("birdnet: unknown mode %q (want \"http\" or \"cli\")", c.BirdNET.Mode))
	}
	if c.BirdNET.HTTPTimeout <= 0 {
		problems = append(problems, "birdnet: http_timeout must be > 0")
	}
	if c.BirdNET.MinConfidence < 0 || c.BirdNET.MinConfidence > 1 {
		problems = append(problems, "birdnet: min_confidence must be in [0, 1]")
	}
	if c.BirdNET.TopN <= 0 {
		problems = append(problems, "birdnet: top_n must be > 0")
	}

	switch c.Storage.Backend {
	case "sqlite", "jsonl":
	default:
		problems = append(problems, fmt.Sprintf("storage: unknown backend %q (want \"sqlite\" or \"jsonl\")", c.Storage.Backend))
	}
	if c.Storage.Path == "" {
		problems = append(problems, "storage: path is required")
	}

	if c.ReconnectDelaySeconds <= 0 {
		problems = append(problems, "reconnect_delay_seconds must be > 0")
	}
	if c.MaxReconnectDelaySeconds < c.ReconnectDelaySeconds {
		problems = append(problems, "max_reconnect_delay_seconds must be >= reconnect_delay_seconds")
	}

	return newConfigError(problems)
}
