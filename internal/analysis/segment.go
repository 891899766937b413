package analysis

import "gonum.org/v1/gonum/stat"

// DefaultMinSectionDuration is the floor below which a run of off-pitch
// comparisons is too short to report, in seconds.
const DefaultMinSectionDuration = 0.5

// ProblemSection is a sustained stretch where the singer deviated from the
// reference by more than the threshold.
type ProblemSection struct {
	StartTime    float64   `json:"start_time"`
	EndTime      float64   `json:"end_time"`
	AvgDeviation float64   `json:"avg_deviation"`
	Direction    Direction `json:"direction"`
	Comparisons  int       `json:"comparisons"`
}

// Duration returns the section length in seconds.
func (s ProblemSection) Duration() float64 { return s.EndTime - s.StartTime }

// Segment groups consecutive comparisons whose deviation exceeds threshold
// (in percent) into problem sections. A comparison at or below the threshold,
// or one without a defined deviation, closes the open section; a section
// still open after the last comparison is flushed through the same filter.
// Sections spanning minDuration seconds or less are discarded; minDuration of
// zero means [DefaultMinSectionDuration].
//
// AvgDeviation is the arithmetic mean of the contributing deviations and
// Direction is their majority side, ties resolving to above. Comparisons must
// be in ascending timestamp order; returned sections are disjoint and
// ordered.
func Segment(comps []Comparison, threshold, minDuration float64) []ProblemSection {
	if minDuration == 0 {
		minDuration = DefaultMinSectionDuration
	}

	var (
		sections   []ProblemSection
		open       bool
		start, end float64
		deviations []float64
		above      int
	)

	flush := func() {
		if !open {
			return
		}
		open = false
		if end-start <= minDuration {
			deviations = deviations[:0]
			above = 0
			return
		}
		dir := DirectionBelow
		if above*2 >= len(deviations) {
			dir = DirectionAbove
		}
		sections = append(sections, ProblemSection{
			StartTime:    start,
			EndTime:      end,
			AvgDeviation: stat.Mean(deviations, nil),
			Direction:    dir,
			Comparisons:  len(deviations),
		})
		deviations = deviations[:0]
		above = 0
	}

	for _, c := range comps {
		if !c.Defined() || *c.DeviationPercent <= threshold {
			flush()
			continue
		}
		if !open {
			open = true
			start = c.Timestamp
		}
		end = c.Timestamp
		deviations = append(deviations, *c.DeviationPercent)
		if c.Direction == DirectionAbove {
			above++
		}
	}
	flush()
	return sections
}

// Summary is the digest of a completed performance.
type Summary struct {
	AnalyzedSections []ProblemSection `json:"analyzed_sections"`
	TotalComparisons int              `json:"total_comparisons"`
	MeanDeviation    float64          `json:"mean_deviation"`
}

// Summarize runs the segmenter over the full comparison history of a
// performance and attaches overall statistics. MeanDeviation averages every
// defined comparison, flagged or not.
func Summarize(comps []Comparison, threshold, minDuration float64) Summary {
	s := Summary{
		AnalyzedSections: Segment(comps, threshold, minDuration),
		TotalComparisons: len(comps),
	}
	var deviations []float64
	for _, c := range comps {
		if c.Defined() {
			deviations = append(deviations, *c.DeviationPercent)
		}
	}
	if len(deviations) > 0 {
		s.MeanDeviation = stat.Mean(deviations, nil)
	}
	if s.AnalyzedSections == nil {
		s.AnalyzedSections = []ProblemSection{}
	}
	return s
}
