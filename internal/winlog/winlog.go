// Package winlog is the window-log capability: it persists every gated
// window and its detections, and answers the read queries the inspector
// tool and any future dashboard need (spec §4.7).
package winlog

import (
	"fmt"
	"io"
	"time"

	"birdgate/internal/classifier"
	"birdgate/internal/config"
	"birdgate/internal/features"
	"birdgate/internal/gate"
)

// Store is the window-log capability interface. Both backends also
// implement io.Closer.
type Store interface {
	io.Closer

	// LogWindow persists one window and its detections (possibly empty)
	// and returns the new record's strictly increasing id.
	LogWindow(siteID, streamName string, timestamp time.Time, f features.AudioFeatures, decision gate.Decision, reason string, dets []classifier.Detection) (int64, error)

	// GetRecentWindows returns up to limit most-recent windows, optionally
	// filtered by stream name and/or decision.
	GetRecentWindows(streamName string, decision string, limit int) ([]WindowRecord, error)

	// GetDetectionsForWindow returns the detections logged for one window
	// id, highest confidence first.
	GetDetectionsForWindow(windowID int64) ([]classifier.Detection, error)

	// GetSpeciesSummary aggregates detection counts by species, optionally
	// filtered by stream name and/or a since cutoff.
	GetSpeciesSummary(streamName string, since time.Time) ([]SpeciesSummary, error)

	// GetDecisionStats counts windows by decision, optionally filtered by
	// stream name and/or a since cutoff.
	GetDecisionStats(streamName string, since time.Time) (DecisionStats, error)
}

// SpeciesSummary is one row of GetSpeciesSummary: a species and how many
// times it was detected.
type SpeciesSummary struct {
	Species        string
	DetectionCount int
	MaxConfidence  float64
	AvgConfidence  float64
}

// DecisionStats counts windows by gate decision.
type DecisionStats struct {
	Silence       int
	Trash         int
	SendToBirdNET int
}

// New builds a Store for cfg.Backend ("sqlite" or "jsonl").
// config.Validate already rejects unknown backends, so an unrecognized
// backend here indicates a Config built without validation.
func New(cfg config.StorageConfig) (Store, error) {
	switch cfg.Backend {
	case "sqlite":
		return newSQLiteStore(cfg.Path)
	case "jsonl":
		return newJSONLStore(cfg.Path)
	default:
		return nil, fmt.Errorf("winlog: unknown backend %q", cfg.Backend)
	}
}
