// Package classifier is the capability boundary between a stream pipeline
// and a bird-sound classification backend: a remote HTTP service or a
// local CLI subprocess, both producing the same Detection shape (spec
// §4.6).
package classifier

import (
	"context"
	"fmt"

	"birdgate/internal/config"
)

// Detection is one species hypothesis for a window, optionally bounded to
// a sub-range of the window (spec §3).
type Detection struct {
	Species    string  `json:"species"`
	Confidence float64 `json:"confidence"`
	StartTime  float64 `json:"start_time"`
	EndTime    float64 `json:"end_time"`
}

// Client is the classification capability. Both backends never
// propagate classification failures as errors: a bad response, a timeout,
// or a nonzero exit all degrade to a nil Detection slice. The error
// return is reserved for misuse the caller should find out about.
type Client interface {
	Analyze(ctx context.Context, samples []float32, sampleRate int) ([]Detection, error)
}

// New builds a Client for cfg.Mode ("http" or "cli"). config.Validate
// already rejects unknown modes, so an unrecognized mode here indicates a
// Config built without validation.
func New(cfg config.BirdNETConfig) (Client, error) {
	switch cfg.Mode {
	case "http":
		return newHTTPClient(cfg), nil
	case "cli":
		return newCLIClient(cfg), nil
	default:
		return nil, fmt.Errorf("classifier: unknown mode %q", cfg.Mode)
	}
}
