// Package reader drives the decoder+framer pair through a reconnect/backoff
// state machine so that a transient stream failure degrades to a retry
// instead of killing the owning pipeline (spec §4.3).
package reader

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"birdgate/internal/decoder"
	"birdgate/internal/framer"
)

// State is one node of the reconnect state machine (spec §4.3).
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateStreaming
	StateBackoff
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateConnecting:
		return "CONNECTING"
	case StateStreaming:
		return "STREAMING"
	case StateBackoff:
		return "BACKOFF"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// ErrStopped is returned by Next once the Reader has been stopped.
var ErrStopped = errors.New("reader: stopped")

// Params configures a Reader's connection and backoff behavior.
type Params struct {
	StreamName        string
	URL               string
	DecoderBinaryPath string
	SampleRate        int
	Channels          int
	WindowSizeSeconds float64

	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration
}

// Reader yields AudioWindows from a stream, transparently reconnecting the
// underlying decoder on failure with exponential backoff. Next is the only
// blocking call; it is not safe to call Next concurrently from multiple
// goroutines.
type Reader struct {
	params Params
	logger *slog.Logger

	state        atomic.Int32
	stopped      atomic.Bool
	stopCh       chan struct{}
	currentDelay time.Duration

	handleMu      sync.Mutex
	decoderHandle *decoder.Handle
	fr            *framer.Framer
}

// New returns a Reader in the IDLE state. The first call to Next triggers
// the initial connection attempt.
func New(params Params, logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	if params.ReconnectDelay <= 0 {
		params.ReconnectDelay = 5 * time.Second
	}
	if params.MaxReconnectDelay <= 0 {
		params.MaxReconnectDelay = 60 * time.Second
	}
	r := &Reader{params: params, logger: logger, currentDelay: params.ReconnectDelay, stopCh: make(chan struct{})}
	r.state.Store(int32(StateIdle))
	return r
}

// State returns the Reader's current state.
func (r *Reader) State() State {
	return State(r.state.Load())
}

// Stop transitions the Reader to STOPPED from any state and unblocks a
// pending Next by killing the decoder and/or canceling the backoff sleep.
// Idempotent.
func (r *Reader) Stop() {
	if r.stopped.Swap(true) {
		return
	}
	r.state.Store(int32(StateStopped))
	close(r.stopCh)
	r.handleMu.Lock()
	h := r.decoderHandle
	r.handleMu.Unlock()
	if h != nil {
		h.Stop()
	}
}

// Next returns the next AudioWindow, transparently reconnecting across
// decoder failures. It returns ErrStopped once Stop has been called, and
// propagates ctx cancellation the same way.
func (r *Reader) Next(ctx context.Context) (framer.Window, error) {
	for {
		if r.stopped.Load() {
			return framer.Window{}, ErrStopped
		}
		select {
		case <-ctx.Done():
			return framer.Window{}, ctx.Err()
		default:
		}

		if r.fr == nil {
			if err := r.connect(ctx); err != nil {
				if r.stopped.Load() {
					return framer.Window{}, ErrStopped
				}
				if err := r.backoff(ctx); err != nil {
					return framer.Window{}, err
				}
				continue
			}
		}

		r.state.Store(int32(StateStreaming))
		w, err := r.fr.Next()
		if err == nil {
			return w, nil
		}

		r.logger.Warn("reader: stream ended, reconnecting", "stream", r.params.StreamName, "error", err)
		r.teardown()
		if r.stopped.Load() {
			return framer.Window{}, ErrStopped
		}
		if err := r.backoff(ctx); err != nil {
			return framer.Window{}, err
		}
	}
}

// connect spawns a fresh decoder and framer. currentDelay is reset to the
// configured base delay only here, on a successful spawn, never on a
// successful read (spec §4.3/§9).
func (r *Reader) connect(ctx context.Context) error {
	r.state.Store(int32(StateConnecting))

	h, err := decoder.Start(ctx, decoder.Params{
		BinaryPath: r.params.DecoderBinaryPath,
		URL:        r.params.URL,
		SampleRate: r.params.SampleRate,
		Channels:   r.params.Channels,
	}, r.logger)
	if err != nil {
		r.logger.Warn("reader: decoder spawn failed", "stream", r.params.StreamName, "error", err)
		return err
	}

	r.handleMu.Lock()
	r.decoderHandle = h
	r.handleMu.Unlock()
	r.fr = framer.New(h, r.params.StreamName, r.params.SampleRate, r.params.Channels, r.params.WindowSizeSeconds)
	r.currentDelay = r.params.ReconnectDelay
	return nil
}

func (r *Reader) teardown() {
	r.handleMu.Lock()
	h := r.decoderHandle
	r.decoderHandle = nil
	r.handleMu.Unlock()
	if h != nil {
		h.Stop()
	}
	r.fr = nil
}

// backoff sleeps for currentDelay, then doubles it (capped at
// MaxReconnectDelay) for the next round. The sleep is interruptible by
// Stop or ctx cancellation.
func (r *Reader) backoff(ctx context.Context) error {
	r.state.Store(int32(StateBackoff))
	delay := r.currentDelay
	r.logger.Info("reader: backing off", "stream", r.params.StreamName, "delay", delay)

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
		return ctx.Err()
	case <-r.stopCh:
		return ErrStopped
	}

	next := time.Duration(float64(r.currentDelay) * 2)
	if next > r.params.MaxReconnectDelay {
		next = r.params.MaxReconnectDelay
	}
	r.currentDelay = next
	return nil
}

// DelayForTesting exposes the current backoff delay for state-machine
// tests; not meant for production callers.
func (r *Reader) DelayForTesting() time.Duration { return r.currentDelay }
