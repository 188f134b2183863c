// Command birdgate is the audio-gateway daemon: it reads its stream and
// gating configuration from a YAML file, then runs one pipeline per
// configured stream until interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"birdgate/internal/config"
	"birdgate/internal/supervisor"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML configuration file (required)")
	verbose := flag.Bool("verbose", false, "enable debug-level logging")
	decoderPath := flag.String("decoder-path", "ffmpeg", "path to the audio decoder binary")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if *configPath == "" {
		logger.Error("missing required -config flag")
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load configuration", "path", *configPath, "error", err)
		os.Exit(1)
	}

	sup, err := supervisor.New(cfg, *decoderPath, logger)
	if err != nil {
		logger.Error("failed to build supervisor", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := sup.Close(); err != nil {
			logger.Error("failed to close window log store", "error", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", fmt.Sprint(sig))
		cancel()
	}()

	logger.Info("starting birdgate", "site_id", cfg.SiteID, "streams", len(cfg.Streams))
	if err := sup.Run(ctx); err != nil {
		logger.Error("supervisor exited with an error", "error", err)
		os.Exit(1)
	}
}
