package analysis_test

import (
	"math"
	"testing"

	"github.com/cantus-audio/cantus/internal/analysis"
)

// comps builds a comparison series at the given spacing with the given
// deviations, all above the reference.
func comps(spacing float64, deviations ...float64) []analysis.Comparison {
	out := make([]analysis.Comparison, len(deviations))
	for i, d := range deviations {
		ref := 200.0
		user := ref * (1 + d/100)
		dev := d
		out[i] = analysis.Comparison{
			Timestamp:        float64(i) * spacing,
			UserPitch:        &user,
			ReferencePitch:   &ref,
			DeviationPercent: &dev,
			Direction:        analysis.DirectionAbove,
		}
	}
	return out
}

func TestSegment_ShortRunsDiscarded(t *testing.T) {
	// Three flagged points spanning 0.2 s, then a break, then a single
	// flagged point. Both runs fall under the duration floor.
	got := analysis.Segment(comps(0.1, 40, 45, 50, 20, 35), 30, 0)
	if len(got) != 0 {
		t.Fatalf("got %d sections, want 0: %+v", len(got), got)
	}
}

func TestSegment_SustainedRunReported(t *testing.T) {
	got := analysis.Segment(comps(0.1, 40, 42, 44, 46, 48, 50, 52), 30, 0)
	if len(got) != 1 {
		t.Fatalf("got %d sections, want 1: %+v", len(got), got)
	}
	s := got[0]
	if s.StartTime != 0 || math.Abs(s.EndTime-0.6) > 1e-9 {
		t.Errorf("section spans [%g, %g], want [0, 0.6]", s.StartTime, s.EndTime)
	}
	if math.Abs(s.AvgDeviation-46) > 1e-9 {
		t.Errorf("avg deviation = %g, want the arithmetic mean 46", s.AvgDeviation)
	}
	if s.Direction != analysis.DirectionAbove {
		t.Errorf("direction = %q, want above", s.Direction)
	}
	if s.Comparisons != 7 {
		t.Errorf("comparisons = %d, want 7", s.Comparisons)
	}
}

func TestSegment_UndefinedDeviationCloses(t *testing.T) {
	series := comps(0.1, 40, 40, 40, 40, 40, 40, 40)
	// Strip the deviation from the middle point, splitting the run into
	// two sub-floor halves.
	series[3].ReferencePitch = nil
	series[3].Direction = ""
	series[3].DeviationPercent = nil

	if got := analysis.Segment(series, 30, 0); len(got) != 0 {
		t.Fatalf("got %d sections, want 0: %+v", len(got), got)
	}
}

func TestSegment_UnvoicedUserCloses(t *testing.T) {
	// The singer going silent mid-run splits it just like an unvoiced
	// reference does.
	series := comps(0.1, 40, 40, 40, 40, 40, 40, 40)
	series[3].UserPitch = nil
	series[3].Direction = ""
	series[3].DeviationPercent = nil

	if got := analysis.Segment(series, 30, 0); len(got) != 0 {
		t.Fatalf("got %d sections, want 0: %+v", len(got), got)
	}
}

func TestSegment_TrailingSectionFlushed(t *testing.T) {
	// Run still open at the end of the series must be reported.
	series := comps(0.1, 10, 10, 40, 40, 40, 40, 40, 40, 40)
	got := analysis.Segment(series, 30, 0)
	if len(got) != 1 {
		t.Fatalf("got %d sections, want 1: %+v", len(got), got)
	}
	if got[0].StartTime != 0.2 || math.Abs(got[0].EndTime-0.8) > 1e-9 {
		t.Errorf("section spans [%g, %g], want [0.2, 0.8]", got[0].StartTime, got[0].EndTime)
	}
}

func TestSegment_DirectionByMajority(t *testing.T) {
	series := comps(0.1, 40, 40, 40, 40, 40, 40, 40)
	for i := 0; i < 3; i++ {
		series[i].Direction = analysis.DirectionBelow
	}
	got := analysis.Segment(series, 30, 0)
	if len(got) != 1 {
		t.Fatalf("got %d sections, want 1", len(got))
	}
	if got[0].Direction != analysis.DirectionAbove {
		t.Errorf("direction = %q, want majority above", got[0].Direction)
	}
}

func TestSegment_SectionsDisjointAndOrdered(t *testing.T) {
	series := comps(0.1,
		40, 40, 40, 40, 40, 40, 40, // flagged, 0.6 s
		5, 5, // clean gap
		50, 50, 50, 50, 50, 50, 50, 50, // flagged, 0.7 s
	)
	got := analysis.Segment(series, 30, 0)
	if len(got) != 2 {
		t.Fatalf("got %d sections, want 2: %+v", len(got), got)
	}
	for i, s := range got {
		if s.EndTime <= s.StartTime {
			t.Errorf("section %d has non-positive span [%g, %g]", i, s.StartTime, s.EndTime)
		}
	}
	if got[0].EndTime >= got[1].StartTime {
		t.Errorf("sections overlap: %+v", got)
	}
}

func TestSummarize(t *testing.T) {
	series := comps(0.1, 40, 40, 40, 40, 40, 40, 40, 10, 10, 10)
	sum := analysis.Summarize(series, 30, 0)
	if len(sum.AnalyzedSections) != 1 {
		t.Fatalf("got %d sections, want 1", len(sum.AnalyzedSections))
	}
	if sum.TotalComparisons != 10 {
		t.Errorf("total comparisons = %d, want 10", sum.TotalComparisons)
	}
	if math.Abs(sum.MeanDeviation-31) > 1e-9 {
		t.Errorf("mean deviation = %g, want 31", sum.MeanDeviation)
	}
}

func TestSummarize_EmptyPerformance(t *testing.T) {
	sum := analysis.Summarize(nil, 30, 0)
	if sum.AnalyzedSections == nil || len(sum.AnalyzedSections) != 0 {
		t.Errorf("sections should be an empty non-nil slice, got %#v", sum.AnalyzedSections)
	}
	if sum.TotalComparisons != 0 || sum.MeanDeviation != 0 {
		t.Errorf("unexpected stats: %+v", sum)
	}
}
