// Package supervisor owns the shared classifier client and window-log
// store and runs one pipeline per configured stream, each on its own
// goroutine (spec §4.9).
package supervisor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"birdgate/internal/classifier"
	"birdgate/internal/config"
	"birdgate/internal/pipeline"
	"birdgate/internal/reader"
	"birdgate/internal/winlog"
)

// shutdownGracePeriod bounds how long Shutdown waits for all pipelines to
// return on their own before force-stopping stragglers (spec §4.9).
const shutdownGracePeriod = 10 * time.Second

// Supervisor runs every configured stream concurrently, sharing one
// classifier client and one window-log store across all of them.
type Supervisor struct {
	cfg    *config.Config
	logger *slog.Logger

	classifier classifier.Client
	store      winlog.Store

	pipelines []*pipeline.Pipeline
	wg        sync.WaitGroup
}

// New constructs the shared classifier and store and one Pipeline per
// configured stream. The classifier and store are built once here and
// handed to every pipeline, per spec §4.9.
func New(cfg *config.Config, decoderBinaryPath string, logger *slog.Logger) (*Supervisor, error) {
	if logger == nil {
		logger = slog.Default()
	}

	client, err := classifier.New(cfg.BirdNET)
	if err != nil {
		return nil, err
	}

	store, err := winlog.New(cfg.Storage)
	if err != nil {
		return nil, err
	}

	s := &Supervisor{cfg: cfg, logger: logger, classifier: client, store: store}

	for _, sc := range cfg.Streams {
		r := reader.New(reader.Params{
			StreamName:        sc.Name,
			URL:               sc.URL,
			DecoderBinaryPath: decoderBinaryPath,
			SampleRate:        sc.SampleRate,
			Channels:          sc.Channels,
			WindowSizeSeconds: sc.WindowSizeSeconds,
			ReconnectDelay:    time.Duration(cfg.ReconnectDelaySeconds * float64(time.Second)),
			MaxReconnectDelay: time.Duration(cfg.MaxReconnectDelaySeconds * float64(time.Second)),
		}, logger.With("stream", sc.Name))

		p := pipeline.New(pipeline.Params{
			StreamName: sc.Name,
			SiteID:     cfg.SiteID,
			Reader:     r,
			BirdBand:   cfg.BirdBand,
			LowBand:    cfg.LowBand,
			Thresholds: cfg.Gating,
			Classifier: client,
			Store:      store,
			Logger:     logger,
		})
		s.pipelines = append(s.pipelines, p)
	}

	return s, nil
}

// Run starts every pipeline on its own goroutine and blocks until ctx is
// canceled or every pipeline has returned.
func (s *Supervisor) Run(ctx context.Context) error {
	for _, p := range s.pipelines {
		s.wg.Add(1)
		go func(p *pipeline.Pipeline) {
			defer s.wg.Done()
			if err := p.Run(ctx); err != nil {
				s.logger.Error("pipeline exited with an error", "error", err)
			}
		}(p)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		s.Shutdown()
	case <-done:
	}
	return nil
}

// Shutdown waits up to shutdownGracePeriod for every pipeline to return
// on its own, then force-stops any that are still running.
func (s *Supervisor) Shutdown() {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return
	case <-time.After(shutdownGracePeriod):
	}

	s.logger.Warn("shutdown grace period elapsed, force-stopping remaining streams")
	for _, p := range s.pipelines {
		p.ForceStop()
	}
	<-done
}

// Close releases the shared store. Call after Run returns.
func (s *Supervisor) Close() error {
	return s.store.Close()
}
