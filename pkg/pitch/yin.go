package pitch

import (
	"math"
	"math/bits"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
)

// YIN implements the YIN fundamental-frequency estimator: a squared
// difference function over half the frame, cumulative-mean normalisation,
// and an absolute threshold on the first qualifying minimum. The difference
// function is evaluated through a frequency-domain correlation, keeping
// per-frame cost at O(n log n) like [ACF].
//
// Reference: de Cheveigné, A., Kawahara, H. (2002). "YIN, a fundamental
// frequency estimator for speech and music".
type YIN struct {
	cfg       Config
	threshold float64
	minLag    int
	maxLag    int
	fftSize   int
}

// NewYIN creates a YIN estimator for the given configuration.
func NewYIN(cfg Config) (*YIN, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}
	minLag, maxLag, err := cfg.lagBounds()
	if err != nil {
		return nil, err
	}
	threshold := cfg.Threshold
	if threshold == 0 {
		threshold = defaultYINThreshold
	}
	// Zero-pad past frame plus half-window so the circular correlation
	// equals the linear one for every lag in range.
	fftSize := 1 << bits.Len(uint(cfg.FrameLength+cfg.FrameLength/2-1))
	return &YIN{cfg: cfg, threshold: threshold, minLag: minLag, maxLag: maxLag, fftSize: fftSize}, nil
}

// FrameLength returns the expected frame size in samples.
func (y *YIN) FrameLength() int { return y.cfg.FrameLength }

// Estimate analyses one frame. Frames that are silent, aperiodic, or whose
// best candidate falls outside [FMin, FMax] come back unvoiced.
func (y *YIN) Estimate(frame []float64) Estimate {
	if len(frame) != y.cfg.FrameLength {
		return Estimate{}
	}
	if rms(frame) < y.cfg.SilenceRMS {
		return Estimate{}
	}

	half := len(frame) / 2
	diff := y.difference(frame)

	// Cumulative mean normalised difference function.
	cmndf := make([]float64, half)
	cmndf[0] = 1
	running := 0.0
	for tau := 1; tau < half; tau++ {
		running += diff[tau]
		if running == 0 {
			cmndf[tau] = 1
			continue
		}
		cmndf[tau] = diff[tau] * float64(tau) / running
	}

	// First local minimum below the absolute threshold wins; otherwise take
	// the global minimum in range and let the threshold gate voicing.
	bestTau := -1
	for tau := y.minLag; tau < y.maxLag; tau++ {
		if cmndf[tau] < y.threshold {
			for tau+1 < y.maxLag && cmndf[tau+1] < cmndf[tau] {
				tau++
			}
			bestTau = tau
			break
		}
	}
	if bestTau < 0 {
		return Estimate{}
	}

	period := parabolicInterp(cmndf, bestTau)
	if period <= 0 {
		return Estimate{}
	}
	freq := float64(y.cfg.SampleRate) / period
	if freq < y.cfg.FMin || freq > y.cfg.FMax {
		return Estimate{}
	}

	conf := 1 - cmndf[bestTau]
	if conf < 0 {
		conf = 0
	}
	return Estimate{Frequency: freq, Confidence: conf, Voiced: true}
}

// difference evaluates the squared difference function d(tau) for lags
// [0, half) where half is len(frame)/2. Expanding the square gives
// d(tau) = E(0) + E(tau) - 2 r(tau) with E the sliding half-window energy
// and r the correlation of the frame against its first half-window, so the
// expensive part reduces to one frequency-domain correlation
// (Wiener-Khinchin, same route as [ACF]).
func (y *YIN) difference(frame []float64) []float64 {
	half := len(frame) / 2

	// Prefix sums of squared samples give E(tau) in constant time per lag.
	prefix := make([]float64, len(frame)+1)
	for i, s := range frame {
		prefix[i+1] = prefix[i] + s*s
	}

	padFrame := make([]float64, y.fftSize)
	copy(padFrame, frame)
	padWindow := make([]float64, y.fftSize)
	copy(padWindow, frame[:half])

	specFrame := fft.FFTReal(padFrame)
	specWindow := fft.FFTReal(padWindow)
	for i := range specFrame {
		specFrame[i] *= cmplx.Conj(specWindow[i])
	}
	inv := fft.IFFT(specFrame)

	diff := make([]float64, half)
	e0 := prefix[half]
	for tau := 1; tau < half; tau++ {
		eTau := prefix[tau+half] - prefix[tau]
		d := e0 + eTau - 2*real(inv[tau])
		if d < 0 {
			// Transform rounding can push near-zero values negative.
			d = 0
		}
		diff[tau] = d
	}
	return diff
}

// rms is the root-mean-square amplitude of the frame.
func rms(frame []float64) float64 {
	if len(frame) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range frame {
		sum += s * s
	}
	return math.Sqrt(sum / float64(len(frame)))
}
