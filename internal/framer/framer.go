// Package framer converts a raw s16le PCM byte stream into fixed-duration
// audio windows (spec §4.2).
package framer

import (
	"encoding/binary"
	"errors"
	"io"
	"math"
	"time"

	"birdgate/internal/decoder"
)

// byteReader is the minimal surface the framer needs from a decoder
// handle: read exactly n bytes or report ErrDecoderEOF/EOF.
type byteReader interface {
	ReadExact(buf []byte) error
}

// Window is one fixed-duration slice of mono, float-normalized audio,
// timestamped at read completion (spec §3 AudioWindow).
type Window struct {
	Samples         []float32
	Timestamp       time.Time
	StreamName      string
	SampleRate      int
	DurationSeconds float64
}

// ErrEOF is returned by Next when the underlying stream ended before a
// full window's worth of bytes could be read. The in-progress window is
// discarded, per spec §4.2 step 2.
var ErrEOF = errors.New("framer: end of stream")

// Framer reads fixed-size byte chunks from a decoder and yields Windows.
// It is a lazy, finite, non-restartable sequence: once Next returns ErrEOF
// it will keep returning ErrEOF.
type Framer struct {
	reader     byteReader
	streamName string
	sampleRate int
	channels   int
	windowSize float64

	samplesPerWindow int
	bytesNeeded      int
	buf              []byte
}

// New returns a Framer that reads exactly windowSizeSeconds worth of audio
// per call to Next.
func New(reader byteReader, streamName string, sampleRate, channels int, windowSizeSeconds float64) *Framer {
	samplesPerWindow := int(math.Round(float64(sampleRate) * windowSizeSeconds))
	bytesNeeded := samplesPerWindow * channels * 2 // 2 bytes per int16 sample

	return &Framer{
		reader:           reader,
		streamName:       streamName,
		sampleRate:       sampleRate,
		channels:         channels,
		windowSize:       windowSizeSeconds,
		samplesPerWindow: samplesPerWindow,
		bytesNeeded:      bytesNeeded,
		buf:              make([]byte, bytesNeeded),
	}
}

// Next reads exactly one window's worth of bytes and decodes it to mono
// float32 samples in [-1, 1]. On a short read it returns ErrEOF and a zero
// Window; the underlying decoder stream is treated as exhausted.
func (f *Framer) Next() (Window, error) {
	if err := f.reader.ReadExact(f.buf); err != nil {
		return Window{}, errJoin(err)
	}

	mono := make([]float32, f.samplesPerWindow)
	if f.channels == 1 {
		for i := 0; i < f.samplesPerWindow; i++ {
			mono[i] = int16ToFloat32(f.buf[i*2:])
		}
	} else {
		frame := make([]float32, f.channels)
		for i := 0; i < f.samplesPerWindow; i++ {
			off := i * f.channels * 2
			var sum float32
			for c := 0; c < f.channels; c++ {
				frame[c] = int16ToFloat32(f.buf[off+c*2:])
				sum += frame[c]
			}
			mono[i] = sum / float32(f.channels)
		}
	}

	return Window{
		Samples:         mono,
		Timestamp:       time.Now().UTC(),
		StreamName:      f.streamName,
		SampleRate:      f.sampleRate,
		DurationSeconds: f.windowSize,
	}, nil
}

func int16ToFloat32(b []byte) float32 {
	v := int16(binary.LittleEndian.Uint16(b))
	return float32(v) / 32768.0
}

// errJoin normalizes any end-of-stream signal from the underlying reader
// (io.EOF or a decoder-specific EOF sentinel) to ErrEOF; any other error is
// passed through unchanged.
func errJoin(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, decoder.ErrDecoderEOF) {
		return ErrEOF
	}
	return err
}
