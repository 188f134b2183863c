// Package pipeline composes one stream's reader, feature extraction,
// gate, classifier, and window log into the five-step loop described in
// spec §4.8: extract, gate, maybe-classify, log, never let any of the
// first four steps kill the stream.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"birdgate/internal/classifier"
	"birdgate/internal/config"
	"birdgate/internal/features"
	"birdgate/internal/framer"
	"birdgate/internal/gate"
	"birdgate/internal/reader"
	"birdgate/internal/winlog"
)

// windowSource is the narrow surface Pipeline needs from a reader.Reader;
// isolating it here lets tests drive Pipeline without a real decoder.
type windowSource interface {
	Next(ctx context.Context) (framer.Window, error)
	Stop()
}

// Pipeline runs one configured stream end to end.
type Pipeline struct {
	name            string
	siteID          string
	reader          windowSource
	birdBand        features.Band
	lowBand         features.Band
	thresholds      gate.Thresholds
	classifier      classifier.Client
	store           winlog.Store
	classifyTimeout time.Duration
	logger          *slog.Logger
}

// Params configures one Pipeline. The classifier and store are shared
// across every stream's Pipeline (spec §4.9).
type Params struct {
	StreamName      string
	SiteID          string
	Reader          *reader.Reader
	BirdBand        config.FrequencyBand
	LowBand         config.FrequencyBand
	Thresholds      config.GatingThresholds
	Classifier      classifier.Client
	Store           winlog.Store
	ClassifyTimeout time.Duration
	Logger          *slog.Logger
}

// New builds a Pipeline from Params.
func New(p Params) *Pipeline {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if p.ClassifyTimeout <= 0 {
		p.ClassifyTimeout = 30 * time.Second
	}
	return &Pipeline{
		name:            p.StreamName,
		siteID:          p.SiteID,
		reader:          p.Reader,
		birdBand:        features.Band{Low: p.BirdBand.Low, High: p.BirdBand.High},
		lowBand:         features.Band{Low: p.LowBand.Low, High: p.LowBand.High},
		thresholds:      gate.Thresholds{MinOverallRMSDB: p.Thresholds.MinOverallRMSDB, MinBirdSNRDB: p.Thresholds.MinBirdSNRDB},
		classifier:      p.Classifier,
		store:           p.Store,
		classifyTimeout: p.ClassifyTimeout,
		logger:          logger.With("stream", p.StreamName),
	}
}

// Run blocks, processing windows until ctx is canceled or the reader is
// stopped. Every window's processing is isolated: an error or panic in
// feature extraction, gating, classification, or logging is recovered
// and logged, and the loop moves on to the next window (spec §4.8).
func (p *Pipeline) Run(ctx context.Context) error {
	for {
		w, err := p.reader.Next(ctx)
		if err != nil {
			if errors.Is(err, reader.ErrStopped) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			p.logger.Error("reader returned an unexpected error, stopping stream", "error", err)
			return err
		}

		p.processWindow(ctx, w)
	}
}

// ForceStop kills the underlying reader's decoder immediately, for use
// during a bounded shutdown when Run hasn't returned on its own yet.
func (p *Pipeline) ForceStop() {
	p.reader.Stop()
}

func (p *Pipeline) processWindow(ctx context.Context, w framer.Window) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("recovered from panic while processing window", "panic", r)
		}
	}()

	f := features.Extract(w, p.birdBand, p.lowBand, p.logger)
	result := gate.Evaluate(f, p.thresholds)

	var dets []classifier.Detection
	if result.Decision == gate.SendToBirdNET {
		classifyCtx, cancel := context.WithTimeout(ctx, p.classifyTimeout)
		d, err := p.classifier.Analyze(classifyCtx, w.Samples, w.SampleRate)
		cancel()
		if err != nil {
			p.logger.Error("classifier returned a programmer error", "error", err)
		}
		dets = d
	}

	id, err := p.store.LogWindow(p.siteID, p.name, w.Timestamp, f, result.Decision, result.Reason, dets)
	if err != nil {
		p.logger.Error("failed to log window", "error", err)
		return
	}
	p.logger.Debug("window logged", "id", id, "decision", result.Decision.String(), "reason", result.Reason)
}
