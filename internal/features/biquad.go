package features

import (
	"fmt"
	"math"
)

// SOSSection is one second-order IIR section in direct-form II transposed
// form: b0,b1,b2 numerator and a1,a2 denominator coefficients, a0 already
// normalized to 1.
type SOSSection struct {
	B0, B1, B2 float64
	A1, A2     float64
}

// sectionQMultiplier holds the relative Q of each cascaded second-order
// section in a 2-section (4th order) Butterworth band-pass cascade. These
// come from the pole angles of the order-4 Butterworth lowpass prototype
// (67.5 and 22.5 degrees off the real axis); cascading two constant-skirt
// bandpass biquads at these relative Qs around a shared center frequency
// approximates the maximally-flat Butterworth passband.
var sectionQMultiplier = [2]float64{0.54119610, 1.30656296}

// ButterworthBandpass designs a cascaded-biquad band-pass filter of the
// given order (spec §4.4 always uses 4, i.e. two sections) between low and
// high Hz at sampleRate. It returns the Nyquist-normalized cutoffs
// actually used after clamping to [0.001, 0.999]; if low ends up >= high
// after clamping, it returns a non-nil error and the caller falls back to
// an unfiltered passthrough (spec §9 Open Question 2).
func ButterworthBandpass(order int, low, high, sampleRate float64) (sections []SOSSection, lowNorm, highNorm float64, err error) {
	nyquist := sampleRate / 2
	lowNorm = clamp(low/nyquist, 0.001, 0.999)
	highNorm = clamp(high/nyquist, 0.001, 0.999)
	if lowNorm >= highNorm {
		return nil, lowNorm, highNorm, fmt.Errorf("features: degenerate band after clamp: low=%v high=%v", lowNorm, highNorm)
	}

	numSections := order / 2
	if numSections < 1 {
		numSections = 1
	}

	centerHz := math.Sqrt(low * high)
	if centerHz <= 0 {
		centerHz = (lowNorm + highNorm) / 2 * nyquist
	}
	bandwidthHz := high - low
	if bandwidthHz <= 0 {
		bandwidthHz = (highNorm - lowNorm) * nyquist
	}
	baseQ := centerHz / bandwidthHz

	w0 := 2 * math.Pi * centerHz / sampleRate

	sections = make([]SOSSection, numSections)
	for i := 0; i < numSections; i++ {
		q := baseQ * sectionQMultiplier[i%len(sectionQMultiplier)]
		sections[i] = rbjBandpass(w0, q)
	}
	return sections, lowNorm, highNorm, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// rbjBandpass builds one constant-0-dB-peak-gain bandpass biquad at
// normalized angular frequency w0 = 2*pi*f0/Fs, per the RBJ audio-eq-cookbook
// formulas.
func rbjBandpass(w0, q float64) SOSSection {
	if q <= 0 {
		q = 0.01
	}
	alpha := math.Sin(w0) / (2 * q)
	cosW0 := math.Cos(w0)

	a0 := 1 + alpha
	return SOSSection{
		B0: alpha / a0,
		B1: 0,
		B2: -alpha / a0,
		A1: (-2 * cosW0) / a0,
		A2: (1 - alpha) / a0,
	}
}

// applySections runs samples through a cascade of SOS sections in
// direct-form II transposed, the standard numerically stable structure
// for cascaded IIR filtering.
func applySections(sections []SOSSection, samples []float32) []float32 {
	out := make([]float32, len(samples))
	copy(out, samples)
	for _, s := range sections {
		out = applyBiquad(s, out)
	}
	return out
}

func applyBiquad(s SOSSection, in []float32) []float32 {
	out := make([]float32, len(in))
	var z1, z2 float64
	for i, xf := range in {
		x := float64(xf)
		y := s.B0*x + z1
		z1 = s.B1*x + z2 - s.A1*y
		z2 = s.B2*x - s.A2*y
		out[i] = float32(y)
	}
	return out
}
