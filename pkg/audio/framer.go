package audio

import (
	"fmt"
	"log/slog"
)

// FramerMode selects how the framer slices buffered samples into frames.
type FramerMode string

const (
	// ModeDense emits overlapping FrameLength windows advancing by
	// HopLength, producing one frame per hop.
	ModeDense FramerMode = "dense"

	// ModeChunk emits non-overlapping buffers of SamplesPerBuffer samples,
	// typically sized to a fixed real-time duration such as one second.
	ModeChunk FramerMode = "chunk"
)

// IsValid reports whether m is a recognised framer mode.
func (m FramerMode) IsValid() bool {
	return m == ModeDense || m == ModeChunk
}

// Frame is a fixed-length window of mono samples with its nominal start time
// in seconds since the beginning of the stream. Frames are immutable once
// emitted; the framer never aliases its internal buffer.
type Frame struct {
	Samples []float64
	Start   float64
}

// FramerConfig configures a [Framer].
type FramerConfig struct {
	// Mode selects dense (sliding window) or chunk (non-overlapping) framing.
	Mode FramerMode

	// SampleRate is the input sample rate in Hz.
	SampleRate int

	// FrameLength is the analysis window size in samples (dense mode).
	FrameLength int

	// HopLength is the step between consecutive windows in samples (dense mode).
	HopLength int

	// SamplesPerBuffer is the emission size in samples (chunk mode). In
	// dense mode a non-zero value gates emission: no frames are produced
	// until at least this many samples are buffered, so analysis happens
	// in batches of roughly this size. Zero disables the gate.
	SamplesPerBuffer int

	// MaxBufferedSamples caps the pending-sample buffer. When an incoming
	// chunk would push the buffer past this bound, the oldest samples are
	// dropped and OnDrop is invoked. Zero means 10 seconds of audio.
	MaxBufferedSamples int

	// OnDrop is called with the number of samples discarded on overflow.
	// May be nil.
	OnDrop func(dropped int)
}

// Framer accumulates arbitrarily-sized sample chunks and emits fixed-size
// frames in strict arrival order with monotonically non-decreasing start
// times. It is not safe for concurrent use; each session owns exactly one.
type Framer struct {
	cfg FramerConfig

	buf []float64
	// pos is the absolute stream index of buf[0], including dropped samples,
	// so frame timestamps stay consistent across overflow drops.
	pos int64
}

// NewFramer validates cfg and returns a ready framer.
func NewFramer(cfg FramerConfig) (*Framer, error) {
	if !cfg.Mode.IsValid() {
		return nil, fmt.Errorf("audio: framer mode %q is invalid", cfg.Mode)
	}
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("audio: sample rate %d must be positive", cfg.SampleRate)
	}
	switch cfg.Mode {
	case ModeDense:
		if cfg.FrameLength <= 0 {
			return nil, fmt.Errorf("audio: frame length %d must be positive", cfg.FrameLength)
		}
		if cfg.HopLength <= 0 || cfg.HopLength > cfg.FrameLength {
			return nil, fmt.Errorf("audio: hop length %d must be in (0, frame length %d]", cfg.HopLength, cfg.FrameLength)
		}
	case ModeChunk:
		if cfg.SamplesPerBuffer <= 0 {
			return nil, fmt.Errorf("audio: samples per buffer %d must be positive", cfg.SamplesPerBuffer)
		}
	}
	if cfg.MaxBufferedSamples == 0 {
		cfg.MaxBufferedSamples = 10 * cfg.SampleRate
	}
	if w := windowSize(cfg); cfg.MaxBufferedSamples < w {
		return nil, fmt.Errorf("audio: buffer bound %d is smaller than one analysis window (%d samples)", cfg.MaxBufferedSamples, w)
	}
	if cfg.MaxBufferedSamples < cfg.SamplesPerBuffer {
		return nil, fmt.Errorf("audio: buffer bound %d is smaller than one batch (%d samples)", cfg.MaxBufferedSamples, cfg.SamplesPerBuffer)
	}
	return &Framer{cfg: cfg}, nil
}

// windowSize returns the emission window size for the configured mode.
func windowSize(cfg FramerConfig) int {
	if cfg.Mode == ModeChunk {
		return cfg.SamplesPerBuffer
	}
	return cfg.FrameLength
}

// Push appends samples to the pending buffer and returns all frames that
// became complete, in arrival order. On overflow the oldest samples are
// dropped first so that the most recent audio is kept.
func (f *Framer) Push(samples []float64) []Frame {
	f.buf = append(f.buf, samples...)

	if excess := len(f.buf) - f.cfg.MaxBufferedSamples; excess > 0 {
		f.buf = f.buf[excess:]
		f.pos += int64(excess)
		slog.Warn("audio framer buffer overflow, dropping oldest samples",
			"dropped", excess,
			"bound", f.cfg.MaxBufferedSamples,
		)
		if f.cfg.OnDrop != nil {
			f.cfg.OnDrop(excess)
		}
	}

	if f.cfg.SamplesPerBuffer > 0 && len(f.buf) < f.cfg.SamplesPerBuffer {
		return nil
	}

	window := windowSize(f.cfg)
	advance := window
	if f.cfg.Mode == ModeDense {
		advance = f.cfg.HopLength
	}

	var frames []Frame
	for len(f.buf) >= window {
		out := make([]float64, window)
		copy(out, f.buf[:window])
		frames = append(frames, Frame{
			Samples: out,
			Start:   float64(f.pos) / float64(f.cfg.SampleRate),
		})
		f.buf = f.buf[advance:]
		f.pos += int64(advance)
	}
	return frames
}

// Pending returns the number of buffered samples that have not yet filled a
// complete frame.
func (f *Framer) Pending() int { return len(f.buf) }

// Reset discards all buffered samples and rewinds the stream clock to zero.
func (f *Framer) Reset() {
	f.buf = nil
	f.pos = 0
}
