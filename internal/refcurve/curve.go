// Package refcurve holds the reference pitch curve for a song: a sorted,
// timestamp-indexed series of pitch samples loaded once at startup and
// immutable afterwards. The curve is safe for unsynchronised concurrent
// reads; nearest-timestamp lookup is logarithmic.
package refcurve

import (
	"errors"
	"fmt"
	"sort"
)

// ErrCurveEmpty is returned when a source yields no samples.
var ErrCurveEmpty = errors.New("refcurve: curve has no samples")

// Sample is one point on the reference curve. Pitch is nil where the
// reference vocal is unvoiced.
type Sample struct {
	Timestamp float64  `json:"timestamp"`
	Pitch     *float64 `json:"pitch"`
}

// Curve is an immutable, timestamp-ordered reference pitch curve.
type Curve struct {
	samples []Sample
}

// New validates samples and builds a curve. Timestamps must be strictly
// increasing; duplicates and out-of-order entries are rejected rather than
// silently reordered, since they indicate a broken reference file.
func New(samples []Sample) (*Curve, error) {
	if len(samples) == 0 {
		return nil, ErrCurveEmpty
	}
	for i := 1; i < len(samples); i++ {
		if samples[i].Timestamp <= samples[i-1].Timestamp {
			return nil, fmt.Errorf("refcurve: timestamps not strictly increasing at index %d (%g after %g)",
				i, samples[i].Timestamp, samples[i-1].Timestamp)
		}
	}
	own := make([]Sample, len(samples))
	copy(own, samples)
	return &Curve{samples: own}, nil
}

// Len returns the number of samples on the curve.
func (c *Curve) Len() int { return len(c.samples) }

// Duration returns the timestamp of the last sample in seconds.
func (c *Curve) Duration() float64 { return c.samples[len(c.samples)-1].Timestamp }

// Samples returns the full curve in timestamp order. The returned slice is
// shared; callers must not modify it.
func (c *Curve) Samples() []Sample { return c.samples }

// Nearest returns the sample whose timestamp is closest to ts. When the
// closest sample is further away than tolerance, ok is false. Equidistant
// neighbours resolve to the lower timestamp.
func (c *Curve) Nearest(ts, tolerance float64) (Sample, bool) {
	i := sort.Search(len(c.samples), func(i int) bool {
		return c.samples[i].Timestamp >= ts
	})

	best := -1
	switch {
	case i == 0:
		best = 0
	case i == len(c.samples):
		best = len(c.samples) - 1
	default:
		// Prefer the left neighbour on an exact tie.
		if ts-c.samples[i-1].Timestamp <= c.samples[i].Timestamp-ts {
			best = i - 1
		} else {
			best = i
		}
	}

	s := c.samples[best]
	if d := ts - s.Timestamp; d > tolerance || -d > tolerance {
		return Sample{}, false
	}
	return s, true
}
