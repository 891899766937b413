package pitch

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

// ChunkSummary is the collapsed result of analysing one ingestion chunk as a
// series of independent sub-frames.
type ChunkSummary struct {
	// Median is the median frequency of all voiced sub-frames, in Hz.
	// When VoicedFrames is zero, Median is 0.0: callers must treat a zero
	// in this mode as "no usable pitch", not as a frequency.
	Median float64

	// VoicedFrames counts sub-frames that produced a pitch.
	VoicedFrames int

	// TotalFrames counts all analysed sub-frames.
	TotalFrames int
}

// SummarizeChunk slides the estimator's window across chunk in steps of hop
// and collapses the voiced estimates into their median, a statistic robust
// against the occasional octave error of single-frame estimation. A trailing
// partial window is ignored.
func SummarizeChunk(chunk []float64, est Estimator, hop int) ChunkSummary {
	if hop <= 0 {
		hop = est.FrameLength()
	}
	window := est.FrameLength()

	var summary ChunkSummary
	var voiced []float64
	for start := 0; start+window <= len(chunk); start += hop {
		summary.TotalFrames++
		e := est.Estimate(chunk[start : start+window])
		if e.Voiced {
			voiced = append(voiced, e.Frequency)
		}
	}
	summary.VoicedFrames = len(voiced)
	if len(voiced) == 0 {
		return summary
	}

	sort.Float64s(voiced)
	summary.Median = stat.Quantile(0.5, stat.LinInterp, voiced, nil)
	return summary
}
