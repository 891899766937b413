// Package pitch provides monophonic fundamental-frequency estimation for
// vocal audio frames.
//
// Two estimators are available behind the [Estimator] interface: a YIN
// periodicity analyser (accurate, heavier) and an FFT-accelerated
// autocorrelation tracker (cheaper, for low-latency deployments). Both gate
// on frame energy and periodicity confidence; a frame without a discernible
// pitch is a normal result, not an error.
package pitch

import "fmt"

// Algorithm selects the estimator implementation.
type Algorithm string

const (
	// AlgorithmYIN is the YIN cumulative-mean-normalised difference
	// estimator (de Cheveigné & Kawahara, 2002).
	AlgorithmYIN Algorithm = "yin"

	// AlgorithmACF is a normalised autocorrelation peak tracker with the
	// correlation computed through an FFT.
	AlgorithmACF Algorithm = "acf"
)

// IsValid reports whether a is a recognised algorithm name.
func (a Algorithm) IsValid() bool {
	return a == AlgorithmYIN || a == AlgorithmACF
}

// Sample is one pitch observation on the session timeline. Frequency is nil
// when the frame was judged unvoiced or silent; absence of pitch is data,
// not an error.
type Sample struct {
	Timestamp float64  `json:"timestamp"`
	Frequency *float64 `json:"pitch"`
}

// Estimate is the outcome of analysing one frame. When Voiced is false,
// Frequency is meaningless and must be ignored.
type Estimate struct {
	Frequency  float64
	Confidence float64
	Voiced     bool
}

// Estimator converts a fixed-size mono frame into a fundamental-frequency
// estimate. Implementations are stateless per call and safe for concurrent
// use on distinct frames.
type Estimator interface {
	// Estimate analyses exactly FrameLength samples. Shorter or longer
	// frames yield an unvoiced estimate.
	Estimate(frame []float64) Estimate

	// FrameLength returns the expected frame size in samples.
	FrameLength() int
}

// Config holds the parameters shared by both estimator implementations.
type Config struct {
	// SampleRate is the audio sample rate in Hz.
	SampleRate int

	// FrameLength is the analysis window size in samples.
	FrameLength int

	// FMin and FMax bound the search range in Hz. Candidates outside the
	// range are discarded as unvoiced, never clamped. Defaults cover the
	// audible vocal range C2..C7.
	FMin float64
	FMax float64

	// Threshold is the periodicity acceptance threshold: the YIN CMNDF
	// ceiling, or the minimum normalised autocorrelation peak for ACF.
	// Zero means the per-algorithm default.
	Threshold float64

	// SilenceRMS is the energy floor below which a frame is treated as
	// silence. Zero means the default of 0.01.
	SilenceRMS float64
}

// Default search range: C2 (65.41 Hz) to C7 (2093.0 Hz).
const (
	DefaultFMin = 65.41
	DefaultFMax = 2093.0

	defaultSilenceRMS   = 0.01
	defaultYINThreshold = 0.15
	defaultACFThreshold = 0.5
)

// withDefaults fills zero fields and validates the result.
func (c Config) withDefaults() (Config, error) {
	if c.FMin == 0 {
		c.FMin = DefaultFMin
	}
	if c.FMax == 0 {
		c.FMax = DefaultFMax
	}
	if c.SilenceRMS == 0 {
		c.SilenceRMS = defaultSilenceRMS
	}
	if c.SampleRate <= 0 {
		return c, fmt.Errorf("pitch: sample rate %d must be positive", c.SampleRate)
	}
	if c.FrameLength <= 0 {
		return c, fmt.Errorf("pitch: frame length %d must be positive", c.FrameLength)
	}
	if c.FMin <= 0 || c.FMax <= c.FMin {
		return c, fmt.Errorf("pitch: frequency range [%g, %g] is invalid", c.FMin, c.FMax)
	}
	return c, nil
}

// lagBounds converts the frequency search range into autocorrelation lag
// bounds, clamped so that a lag never exceeds half the frame. Frequencies
// whose period does not fit twice into the frame are simply undetectable at
// this frame size.
func (c Config) lagBounds() (minLag, maxLag int, err error) {
	minLag = int(float64(c.SampleRate) / c.FMax)
	if minLag < 2 {
		minLag = 2
	}
	maxLag = int(float64(c.SampleRate) / c.FMin)
	if half := c.FrameLength / 2; maxLag > half {
		maxLag = half
	}
	if maxLag <= minLag {
		return 0, 0, fmt.Errorf("pitch: frame length %d too short for range [%g, %g] Hz at %d Hz", c.FrameLength, c.FMin, c.FMax, c.SampleRate)
	}
	return minLag, maxLag, nil
}

// New constructs the estimator named by alg.
func New(alg Algorithm, cfg Config) (Estimator, error) {
	switch alg {
	case AlgorithmYIN:
		return NewYIN(cfg)
	case AlgorithmACF:
		return NewACF(cfg)
	default:
		return nil, fmt.Errorf("pitch: unknown algorithm %q", alg)
	}
}

// parabolicInterp refines a discrete minimum or maximum location by fitting
// a parabola through the point and its neighbours.
func parabolicInterp(data []float64, idx int) float64 {
	if idx <= 0 || idx >= len(data)-1 {
		return float64(idx)
	}
	y1, y2, y3 := data[idx-1], data[idx], data[idx+1]
	a := (y1 - 2*y2 + y3) / 2
	if a == 0 {
		return float64(idx)
	}
	b := (y3 - y1) / 2
	return float64(idx) - b/(2*a)
}
