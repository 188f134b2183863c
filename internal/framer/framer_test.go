package framer

import (
	"encoding/binary"
	"errors"
	"testing"

	"birdgate/internal/decoder"
)

// fakeReader serves ReadExact from a fixed byte slice, then reports
// decoder.ErrDecoderEOF once it is exhausted.
type fakeReader struct {
	data []byte
	pos  int
}

func (f *fakeReader) ReadExact(buf []byte) error {
	if f.pos+len(buf) > len(f.data) {
		return decoder.ErrDecoderEOF
	}
	copy(buf, f.data[f.pos:f.pos+len(buf)])
	f.pos += len(buf)
	return nil
}

func int16Bytes(values ...int16) []byte {
	buf := make([]byte, len(values)*2)
	for i, v := range values {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
	}
	return buf
}

func TestNextProducesExactSampleCount(t *testing.T) {
	const sampleRate = 8
	const windowSeconds = 1.0 // 8 mono samples
	samples := make([]int16, 8)
	for i := range samples {
		samples[i] = int16(i * 1000)
	}
	r := &fakeReader{data: int16Bytes(samples...)}
	f := New(r, "stream-a", sampleRate, 1, windowSeconds)

	w, err := f.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if len(w.Samples) != 8 {
		t.Fatalf("len(Samples) = %d, want 8", len(w.Samples))
	}
	for _, s := range w.Samples {
		if s < -1 || s > 1 {
			t.Errorf("sample %v out of [-1, 1]", s)
		}
	}
	if w.StreamName != "stream-a" || w.SampleRate != sampleRate || w.DurationSeconds != windowSeconds {
		t.Errorf("window metadata mismatch: %+v", w)
	}
}

func TestNextAveragesChannels(t *testing.T) {
	const sampleRate = 2
	const windowSeconds = 1.0 // 2 stereo frames
	// Frame 1: L=16384 (0.5), R=0 -> mono 0.25; Frame 2: L=-16384, R=-16384 -> mono -0.5
	r := &fakeReader{data: int16Bytes(16384, 0, -16384, -16384)}
	f := New(r, "stream-b", sampleRate, 2, windowSeconds)

	w, err := f.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if len(w.Samples) != 2 {
		t.Fatalf("len(Samples) = %d, want 2", len(w.Samples))
	}
	if diff := w.Samples[0] - 0.25; diff > 1e-4 || diff < -1e-4 {
		t.Errorf("Samples[0] = %v, want ~0.25", w.Samples[0])
	}
	if diff := w.Samples[1] - (-0.5); diff > 1e-4 || diff < -1e-4 {
		t.Errorf("Samples[1] = %v, want ~-0.5", w.Samples[1])
	}
}

func TestNextReturnsEOFOnShortRead(t *testing.T) {
	r := &fakeReader{data: int16Bytes(1, 2, 3)} // only 3 samples, window wants 4
	f := New(r, "stream-c", 4, 1, 1.0)

	_, err := f.Next()
	if !errors.Is(err, ErrEOF) {
		t.Fatalf("Next err = %v, want ErrEOF", err)
	}
}
