// Package features computes cheap spectral-energy features from an audio
// window: overall RMS, per-band RMS after a Butterworth band-pass filter,
// and the resulting signal-to-noise ratio (spec §4.4).
package features

import (
	"log/slog"
	"math"
	"sync"

	"birdgate/internal/framer"
)

// floorRMS is the minimum RMS value before conversion to dB; values below
// it are floored at floorDB (spec §4.4).
const (
	floorRMS = 1e-10
	floorDB  = -200.0
)

// Band mirrors config.FrequencyBand without importing the config package,
// keeping this package a pure leaf with no dependency on the YAML schema.
type Band struct {
	Low  float64
	High float64
}

// AudioFeatures holds the four derived measurements, all in dB (spec §3).
type AudioFeatures struct {
	RMSTotalDB    float64
	RMSBirdBandDB float64
	RMSLowBandDB  float64
	SNRBirdDB     float64
}

// warnOnce logs the degenerate-band warning (spec §4.4, §9 Open Question 2)
// at most once per distinct band configuration, to avoid flooding logs
// across every window of a misconfigured stream.
var warnOnce sync.Map // map[string]*sync.Once

func warnDegenerateBand(logger *slog.Logger, key string, low, high float64) {
	onceAny, _ := warnOnce.LoadOrStore(key, &sync.Once{})
	once := onceAny.(*sync.Once)
	once.Do(func() {
		if logger == nil {
			logger = slog.Default()
		}
		logger.Warn("band filter skipped: low >= high after Nyquist clamp, using unfiltered samples",
			"band", key, "low_normalized", low, "high_normalized", high)
	})
}

// RMS returns the root-mean-square amplitude of samples.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// ToDB converts a linear RMS amplitude to dB, flooring at floorDB.
func ToDB(rms float64) float64 {
	if rms < floorRMS {
		rms = floorRMS
	}
	return 20 * math.Log10(rms)
}

// Extract computes AudioFeatures for one window. It is pure and never
// fails: a degenerate band configuration degrades to an unfiltered
// passthrough with a one-time warning, per spec §4.4/§9.
func Extract(w framer.Window, birdBand, lowBand Band, logger *slog.Logger) AudioFeatures {
	total := ToDB(RMS(w.Samples))

	birdRMS := bandRMS(w.Samples, float64(w.SampleRate), birdBand, "bird_band", logger)
	lowRMS := bandRMS(w.Samples, float64(w.SampleRate), lowBand, "low_band", logger)

	birdDB := ToDB(birdRMS)
	lowDB := ToDB(lowRMS)

	return AudioFeatures{
		RMSTotalDB:    total,
		RMSBirdBandDB: birdDB,
		RMSLowBandDB:  lowDB,
		SNRBirdDB:     birdDB - lowDB,
	}
}

// bandRMS filters samples through a 4th-order Butterworth band-pass
// (spec §4.4) and returns the RMS of the result, or the RMS of the raw
// samples if the band degenerates after Nyquist clamping.
func bandRMS(samples []float32, sampleRate float64, band Band, key string, logger *slog.Logger) float64 {
	sections, lowNorm, highNorm, err := ButterworthBandpass(4, band.Low, band.High, sampleRate)
	if err != nil {
		warnDegenerateBand(logger, key, lowNorm, highNorm)
		return RMS(samples)
	}
	filtered := applySections(sections, samples)
	return RMS(filtered)
}
