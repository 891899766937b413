// Package analysis turns estimated vocal pitch into actionable feedback: it
// compares the singer's pitch track against the reference curve and condenses
// sustained deviations into problem sections.
package analysis

import (
	"github.com/cantus-audio/cantus/internal/refcurve"
	"github.com/cantus-audio/cantus/pkg/pitch"
)

// Direction says which side of the reference the singer was on.
type Direction string

const (
	DirectionAbove Direction = "above"
	DirectionBelow Direction = "below"
)

// Comparison pairs one user pitch sample with its nearest reference sample.
// UserPitch is nil when the user frame was unvoiced and ReferencePitch is nil
// when the matched reference sample is unvoiced; DeviationPercent and
// Direction are defined exactly when both pitches are present.
type Comparison struct {
	Timestamp        float64   `json:"timestamp"`
	UserPitch        *float64  `json:"user_pitch"`
	ReferencePitch   *float64  `json:"reference_pitch"`
	DeviationPercent *float64  `json:"deviation_percent"`
	Direction        Direction `json:"direction,omitempty"`
}

// Defined reports whether the comparison carries a usable deviation.
func (c Comparison) Defined() bool { return c.DeviationPercent != nil }

// Compare matches each user sample, voiced or not, against the reference
// curve. The sample's timestamp is shifted by offset onto the song timeline
// before the lookup. Samples without a reference within tolerance are
// dropped; a match where either side is unvoiced yields a comparison with no
// deviation. Emitting those matters downstream: an unvoiced user frame
// closes any open problem section in [Segment].
//
// Direction is above only when the user sings strictly higher than the
// reference; an exact match reads as below with zero deviation.
//
// Compare is pure: it reads the curve without synchronisation and neither
// input is modified, so repeated calls with the same arguments agree.
func Compare(user []pitch.Sample, curve *refcurve.Curve, offset, tolerance float64) []Comparison {
	var out []Comparison
	for _, s := range user {
		adjusted := s.Timestamp + offset
		ref, ok := curve.Nearest(adjusted, tolerance)
		if !ok {
			continue
		}

		comp := Comparison{Timestamp: adjusted}
		if s.Frequency != nil {
			userHz := *s.Frequency
			comp.UserPitch = &userHz
		}
		if ref.Pitch != nil && *ref.Pitch > 0 {
			refHz := *ref.Pitch
			comp.ReferencePitch = &refHz
		}
		if comp.UserPitch != nil && comp.ReferencePitch != nil {
			diff := *comp.UserPitch - *comp.ReferencePitch
			if diff > 0 {
				comp.Direction = DirectionAbove
			} else {
				comp.Direction = DirectionBelow
				diff = -diff
			}
			dev := diff / *comp.ReferencePitch * 100
			comp.DeviationPercent = &dev
		}
		out = append(out, comp)
	}
	return out
}
