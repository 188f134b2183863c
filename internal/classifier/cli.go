package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"birdgate/internal/config"
)

// cliClient classifies windows by invoking a local BirdNET-style CLI
// binary as a subprocess, reading its JSON output back from a temp
// directory.
type cliClient struct {
	cfg config.BirdNETConfig
}

func newCLIClient(cfg config.BirdNETConfig) *cliClient {
	return &cliClient{cfg: cfg}
}

func (c *cliClient) Analyze(ctx context.Context, samples []float32, sampleRate int) ([]Detection, error) {
	stem := fmt.Sprintf("birdgate-%s", uuid.NewString())
	inputPath := filepath.Join(os.TempDir(), stem+".wav")
	if err := writeWAV(inputPath, samples, sampleRate); err != nil {
		slog.Default().Warn("classifier: failed to write temp WAV", "error", err)
		return nil, nil
	}
	defer os.Remove(inputPath)

	outDir, err := os.MkdirTemp("", stem+"-out")
	if err != nil {
		slog.Default().Warn("classifier: failed to create output dir", "error", err)
		return nil, nil
	}
	defer os.RemoveAll(outDir)

	args := []string{
		"--input", inputPath,
		"--output", outDir,
		"--lat", fmt.Sprintf("%v", c.cfg.Latitude),
		"--lon", fmt.Sprintf("%v", c.cfg.Longitude),
		"--min_confidence", fmt.Sprintf("%v", c.cfg.MinConfidence),
		"--result_type", "json",
	}
	if c.cfg.CLIModelPath != "" {
		args = append(args, "--classifier", c.cfg.CLIModelPath)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, time.Duration(c.cfg.HTTPTimeout*float64(time.Second)))
	defer cancel()

	// cli_path is a command line, not a single binary path (e.g.
	// "python -m birdnet_analyzer"), so split it before
	// appending our own flags.
	parts := strings.Fields(c.cfg.CLIPath)
	if len(parts) == 0 {
		slog.Default().Warn("classifier: cli_path is empty")
		return nil, nil
	}
	cmd := exec.CommandContext(timeoutCtx, parts[0], append(parts[1:], args...)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		slog.Default().Warn("classifier: cli invocation failed", "error", err, "stderr", stderr.String())
		return nil, nil
	}

	matches, err := filepath.Glob(filepath.Join(outDir, stem+"*.json"))
	if err != nil || len(matches) == 0 {
		slog.Default().Warn("classifier: no output JSON found", "stem", stem, "error", err)
		return nil, nil
	}

	raw, err := os.ReadFile(matches[0])
	if err != nil {
		slog.Default().Warn("classifier: failed to read output JSON", "path", matches[0], "error", err)
		return nil, nil
	}

	dets := parseCLIOutput(raw)
	return postProcess(dets, c.cfg.MinConfidence, c.cfg.TopN), nil
}

type cliResultShape struct {
	Results []struct {
		Detections []httpDetectionShape `json:"detections"`
	} `json:"results"`
}

// parseCLIOutput accepts either the nested {"results": [{"detections":
// [...]}, ...]} shape (flattened across all result entries) or a flat
// top-level array, per spec §4.6.2.
func parseCLIOutput(raw []byte) []Detection {
	var nested cliResultShape
	if err := json.Unmarshal(raw, &nested); err == nil && nested.Results != nil {
		var all []httpDetectionShape
		for _, r := range nested.Results {
			all = append(all, r.Detections...)
		}
		return toDetections(all)
	}

	var flat []httpDetectionShape
	if err := json.Unmarshal(raw, &flat); err == nil {
		return toDetections(flat)
	}

	return nil
}
