package analysis_test

import (
	"math"
	"reflect"
	"testing"

	"github.com/cantus-audio/cantus/internal/analysis"
	"github.com/cantus-audio/cantus/internal/refcurve"
	"github.com/cantus-audio/cantus/pkg/pitch"
)

const tolerance = 0.05

func hz(f float64) *float64 { return &f }

func curve(t *testing.T, samples ...refcurve.Sample) *refcurve.Curve {
	t.Helper()
	c, err := refcurve.New(samples)
	if err != nil {
		t.Fatalf("refcurve.New: %v", err)
	}
	return c
}

func TestCompare_SharpSinger(t *testing.T) {
	c := curve(t,
		refcurve.Sample{Timestamp: 0.0, Pitch: hz(200)},
		refcurve.Sample{Timestamp: 1.0, Pitch: hz(210)},
	)
	user := []pitch.Sample{{Timestamp: 0.0, Frequency: hz(260)}}

	got := analysis.Compare(user, c, 0, tolerance)
	if len(got) != 1 {
		t.Fatalf("got %d comparisons, want 1", len(got))
	}
	comp := got[0]
	if !comp.Defined() {
		t.Fatal("comparison should carry a deviation")
	}
	if math.Abs(*comp.DeviationPercent-30.0) > 1e-9 {
		t.Errorf("deviation = %g, want 30.0", *comp.DeviationPercent)
	}
	if comp.Direction != analysis.DirectionAbove {
		t.Errorf("direction = %q, want above", comp.Direction)
	}
	if *comp.ReferencePitch != 200 {
		t.Errorf("reference = %g, want 200", *comp.ReferencePitch)
	}
}

func TestCompare_FlatSingerAndOffset(t *testing.T) {
	c := curve(t,
		refcurve.Sample{Timestamp: 10.0, Pitch: hz(400)},
	)
	// Batch-relative timestamp 0.5 with offset 9.5 lands on the sample.
	user := []pitch.Sample{{Timestamp: 0.5, Frequency: hz(300)}}

	got := analysis.Compare(user, c, 9.5, tolerance)
	if len(got) != 1 {
		t.Fatalf("got %d comparisons, want 1", len(got))
	}
	comp := got[0]
	if comp.Timestamp != 10.0 {
		t.Errorf("timestamp = %g, want adjusted 10.0", comp.Timestamp)
	}
	if comp.Direction != analysis.DirectionBelow {
		t.Errorf("direction = %q, want below", comp.Direction)
	}
	if math.Abs(*comp.DeviationPercent-25.0) > 1e-9 {
		t.Errorf("deviation = %g, want 25.0", *comp.DeviationPercent)
	}
}

func TestCompare_UnmatchedDroppedUnvoicedKept(t *testing.T) {
	c := curve(t,
		refcurve.Sample{Timestamp: 0.0, Pitch: hz(200)},
		refcurve.Sample{Timestamp: 1.0, Pitch: nil},
	)
	user := []pitch.Sample{
		{Timestamp: 0.0, Frequency: hz(200)},  // matches voiced reference
		{Timestamp: 0.03, Frequency: nil},     // unvoiced user frame, still matched
		{Timestamp: 0.5, Frequency: hz(200)},  // no reference within tolerance
		{Timestamp: 1.01, Frequency: hz(180)}, // matches unvoiced reference
	}

	got := analysis.Compare(user, c, 0, tolerance)
	if len(got) != 3 {
		t.Fatalf("got %d comparisons, want 3", len(got))
	}
	if !got[0].Defined() || *got[0].DeviationPercent != 0 {
		t.Errorf("perfect match should have zero deviation, got %+v", got[0])
	}
	if got[1].UserPitch != nil || got[1].Defined() {
		t.Errorf("unvoiced user frame must be reported without pitch or deviation, got %+v", got[1])
	}
	if got[1].ReferencePitch == nil {
		t.Errorf("unvoiced user frame should still carry its reference, got %+v", got[1])
	}
	if got[2].Defined() {
		t.Errorf("match against unvoiced reference must not carry a deviation, got %+v", got[2])
	}
}

func TestCompare_EqualPitchIsNotAbove(t *testing.T) {
	c := curve(t, refcurve.Sample{Timestamp: 0.0, Pitch: hz(220)})

	got := analysis.Compare([]pitch.Sample{{Timestamp: 0, Frequency: hz(220)}}, c, 0, tolerance)
	if len(got) != 1 {
		t.Fatalf("got %d comparisons, want 1", len(got))
	}
	if got[0].Direction == analysis.DirectionAbove {
		t.Error("singing exactly on pitch must not read as above")
	}
	if *got[0].DeviationPercent != 0 {
		t.Errorf("deviation = %g, want 0", *got[0].DeviationPercent)
	}
}

func TestCompare_SilenceSplitsFlaggedRun(t *testing.T) {
	// A 40% sharp stretch, six silent frames, then one more sharp note.
	// The silence closes the first run, so neither stretch reaches the
	// duration floor and no section is reported.
	samples := make([]refcurve.Sample, 11)
	for i := range samples {
		samples[i] = refcurve.Sample{Timestamp: float64(i) * 0.1, Pitch: hz(200)}
	}
	c := curve(t, samples...)

	var user []pitch.Sample
	for i := 0; i < 4; i++ {
		user = append(user, pitch.Sample{Timestamp: float64(i) * 0.1, Frequency: hz(280)})
	}
	for i := 4; i < 10; i++ {
		user = append(user, pitch.Sample{Timestamp: float64(i) * 0.1})
	}
	user = append(user, pitch.Sample{Timestamp: 1.0, Frequency: hz(280)})

	got := analysis.Compare(user, c, 0, tolerance)
	if len(got) != 11 {
		t.Fatalf("got %d comparisons, want one per user sample", len(got))
	}

	sections := analysis.Segment(got, 30, 0)
	if len(sections) != 0 {
		t.Fatalf("silent gap should split the run below the duration floor, got %+v", sections)
	}
}

func TestCompare_DeviationNonNegative(t *testing.T) {
	c := curve(t, refcurve.Sample{Timestamp: 0.0, Pitch: hz(220)})
	for _, f := range []float64{110, 219, 220, 221, 440} {
		got := analysis.Compare([]pitch.Sample{{Timestamp: 0, Frequency: hz(f)}}, c, 0, tolerance)
		if len(got) != 1 {
			t.Fatalf("user %g Hz: got %d comparisons", f, len(got))
		}
		if *got[0].DeviationPercent < 0 {
			t.Errorf("user %g Hz: negative deviation %g", f, *got[0].DeviationPercent)
		}
	}
}

func TestCompare_Idempotent(t *testing.T) {
	c := curve(t,
		refcurve.Sample{Timestamp: 0.0, Pitch: hz(200)},
		refcurve.Sample{Timestamp: 0.5, Pitch: hz(220)},
		refcurve.Sample{Timestamp: 1.0, Pitch: nil},
	)
	user := []pitch.Sample{
		{Timestamp: 0.0, Frequency: hz(230)},
		{Timestamp: 0.5, Frequency: hz(190)},
		{Timestamp: 1.0, Frequency: hz(210)},
	}

	first := analysis.Compare(user, c, 0, tolerance)
	second := analysis.Compare(user, c, 0, tolerance)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("repeated comparison diverged:\nfirst:  %+v\nsecond: %+v", first, second)
	}
}
