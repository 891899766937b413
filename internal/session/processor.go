package session

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/cantus-audio/cantus/internal/analysis"
	"github.com/cantus-audio/cantus/internal/observe"
	"github.com/cantus-audio/cantus/internal/refcurve"
	"github.com/cantus-audio/cantus/pkg/audio"
	"github.com/cantus-audio/cantus/pkg/pitch"
)

// ProcessorConfig wires one session's analysis pipeline.
type ProcessorConfig struct {
	Framer    audio.FramerConfig
	Estimator pitch.Estimator
	Curve     *refcurve.Curve

	// HopLength is the sub-frame hop used to summarise chunks in chunk
	// mode.
	HopLength int

	// Tolerance is the nearest-reference lookup window in seconds.
	Tolerance float64

	// Threshold and MinSectionDuration parameterise the final segmenter
	// run.
	Threshold          float64
	MinSectionDuration float64

	// Sem caps concurrent estimation across all sessions. May be nil.
	Sem *semaphore.Weighted

	// Metrics may be nil in tests.
	Metrics *observe.Metrics
}

// Processor turns decoded PCM into outbound pitch updates and accumulates
// the comparison history for the final performance analysis. It is not safe
// for concurrent use; each session owns exactly one and drives it from its
// read loop.
type Processor struct {
	cfg     ProcessorConfig
	framer  *audio.Framer
	metrics *observe.Metrics

	// streamSamples counts every decoded sample pushed so far; it anchors
	// song_position realignment to the next incoming sample.
	streamSamples int64

	// songOffset maps stream time onto the song timeline: songTime =
	// streamTime + songOffset.
	songOffset float64

	history []analysis.Comparison
}

// NewProcessor validates the configuration and builds a processor.
func NewProcessor(cfg ProcessorConfig) (*Processor, error) {
	if cfg.Estimator == nil {
		return nil, fmt.Errorf("session: estimator is required")
	}
	if cfg.Curve == nil {
		return nil, fmt.Errorf("session: reference curve is required")
	}
	if m := cfg.Metrics; m != nil {
		cfg.Framer.OnDrop = func(dropped int) {
			m.DroppedSamples.Add(context.Background(), int64(dropped))
		}
	}
	framer, err := audio.NewFramer(cfg.Framer)
	if err != nil {
		return nil, err
	}
	return &Processor{cfg: cfg, framer: framer, metrics: cfg.Metrics}, nil
}

// streamTime returns the stream timestamp of the next sample to arrive.
func (p *Processor) streamTime() float64 {
	return float64(p.streamSamples) / float64(p.cfg.Framer.SampleRate)
}

// SetPosition realigns the song timeline so that the next incoming sample
// corresponds to pos seconds into the song.
func (p *Processor) SetPosition(pos float64) {
	p.songOffset = pos - p.streamTime()
}

// ProcessAudio feeds decoded mono samples through the framer and estimator
// and returns the resulting updates, one per batch in dense mode or one per
// chunk in chunk mode. An empty slice means not enough audio has accumulated
// yet. Comparisons are appended to the performance history.
func (p *Processor) ProcessAudio(ctx context.Context, samples []float64) ([]Update, error) {
	p.streamSamples += int64(len(samples))
	frames := p.framer.Push(samples)
	if len(frames) == 0 {
		return nil, nil
	}

	if p.cfg.Framer.Mode == audio.ModeChunk {
		return p.processChunks(ctx, frames)
	}
	return p.processDense(ctx, frames)
}

// processDense estimates every window of the batch and emits a single update
// with the batch's pitch track and comparisons.
func (p *Processor) processDense(ctx context.Context, frames []audio.Frame) ([]Update, error) {
	batchStart := time.Now()

	track := make([]pitch.Sample, 0, len(frames))
	for _, fr := range frames {
		est, err := p.estimate(ctx, fr.Samples)
		if err != nil {
			return nil, err
		}
		s := pitch.Sample{Timestamp: fr.Start}
		if est.Voiced {
			f := est.Frequency
			s.Frequency = &f
		}
		if p.metrics != nil {
			p.metrics.RecordFrame(ctx, string(audio.ModeDense), est.Voiced)
		}
		track = append(track, s)
	}

	comps := analysis.Compare(track, p.cfg.Curve, p.songOffset, p.cfg.Tolerance)
	p.history = append(p.history, comps...)
	if p.metrics != nil {
		p.metrics.ComparisonsEmitted.Add(ctx, int64(len(comps)))
		p.metrics.BatchDuration.Record(ctx, time.Since(batchStart).Seconds())
	}

	// Report the pitch track on the song timeline, matching the
	// comparisons.
	adjusted := make([]pitch.Sample, len(track))
	for i, s := range track {
		s.Timestamp += p.songOffset
		adjusted[i] = s
	}
	if comps == nil {
		comps = []analysis.Comparison{}
	}
	return []Update{DenseUpdate{
		Type:        "pitch_update",
		TimeOffset:  p.songOffset,
		UserPitch:   adjusted,
		Comparisons: comps,
	}}, nil
}

// processChunks summarises each chunk into its median voiced pitch and emits
// one update per chunk. A summary of 0.0 means no usable pitch.
func (p *Processor) processChunks(ctx context.Context, frames []audio.Frame) ([]Update, error) {
	updates := make([]Update, 0, len(frames))
	for _, fr := range frames {
		batchStart := time.Now()

		if err := p.acquire(ctx); err != nil {
			return nil, err
		}
		summary := pitch.SummarizeChunk(fr.Samples, p.cfg.Estimator, p.cfg.HopLength)
		p.release()

		ts := fr.Start + p.songOffset
		var track []pitch.Sample
		if summary.VoicedFrames > 0 {
			f := summary.Median
			track = []pitch.Sample{{Timestamp: fr.Start, Frequency: &f}}
		} else {
			track = []pitch.Sample{{Timestamp: fr.Start}}
		}

		comps := analysis.Compare(track, p.cfg.Curve, p.songOffset, p.cfg.Tolerance)
		p.history = append(p.history, comps...)
		if comps == nil {
			comps = []analysis.Comparison{}
		}

		if p.metrics != nil {
			p.metrics.RecordFrame(ctx, string(audio.ModeChunk), summary.VoicedFrames > 0)
			p.metrics.ComparisonsEmitted.Add(ctx, int64(len(comps)))
			p.metrics.BatchDuration.Record(ctx, time.Since(batchStart).Seconds())
		}

		updates = append(updates, ChunkUpdate{
			Type:         "pitch_update",
			Timestamp:    ts,
			UserPitch:    summary.Median,
			VoicedFrames: summary.VoicedFrames,
			TotalFrames:  summary.TotalFrames,
			Comparisons:  comps,
		})
	}
	return updates, nil
}

// estimate runs one frame through the estimator under the shared concurrency
// cap.
func (p *Processor) estimate(ctx context.Context, frame []float64) (pitch.Estimate, error) {
	if err := p.acquire(ctx); err != nil {
		return pitch.Estimate{}, err
	}
	start := time.Now()
	est := p.cfg.Estimator.Estimate(frame)
	p.release()

	if p.metrics != nil {
		p.metrics.EstimationDuration.Record(ctx, time.Since(start).Seconds())
	}
	return est, nil
}

func (p *Processor) acquire(ctx context.Context) error {
	if p.cfg.Sem == nil {
		return nil
	}
	if err := p.cfg.Sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("session: acquire estimation slot: %w", err)
	}
	return nil
}

func (p *Processor) release() {
	if p.cfg.Sem != nil {
		p.cfg.Sem.Release(1)
	}
}

// Finish runs the segmenter over the accumulated comparison history and
// returns the performance summary.
func (p *Processor) Finish() analysis.Summary {
	return analysis.Summarize(p.history, p.cfg.Threshold, p.cfg.MinSectionDuration)
}

// History returns the comparisons accumulated so far. The returned slice is
// shared; callers must not modify it.
func (p *Processor) History() []analysis.Comparison {
	return p.history
}
