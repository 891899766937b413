// Package session implements the websocket analysis session: it receives a
// singer's PCM stream, runs it through the pitch pipeline, and streams
// comparison results back to the client. Each connection owns one session;
// sessions are isolated, so a fault in one never affects another.
package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/cantus-audio/cantus/internal/analysis"
	"github.com/cantus-audio/cantus/internal/observe"
	"github.com/cantus-audio/cantus/pkg/audio"
)

// State is the session lifecycle phase. Only an active session accepts
// messages; a closed session never writes to its connection again.
type State string

const (
	StateConnecting State = "connecting"
	StateActive     State = "active"
	StateClosed     State = "closed"
)

// Config holds the dependencies for one [Session].
type Config struct {
	// ID uniquely identifies the session in logs and the registry.
	ID string

	// Processor is the session's analysis pipeline.
	Processor *Processor

	// Encoding is the PCM sample format of inbound audio.
	Encoding audio.Encoding

	// InputSampleRate is the client capture rate. When it differs from
	// SampleRate, inbound audio is resampled before analysis. Zero means
	// audio already arrives at SampleRate.
	InputSampleRate int

	// SampleRate is the analysis sample rate.
	SampleRate int

	// IdleTimeout closes the session when no inbound message arrives for
	// this long. Zero disables the timeout.
	IdleTimeout time.Duration

	// Metrics may be nil in tests.
	Metrics *observe.Metrics

	// OnComplete receives the final summary when the client ends the
	// performance. May be nil.
	OnComplete func(analysis.Summary)
}

// Session drives one websocket connection through the analysis pipeline.
// All writes happen from the read loop, so a session never interleaves
// messages on the wire.
type Session struct {
	id         string
	conn       *websocket.Conn
	proc       *Processor
	encoding   audio.Encoding
	inputRate  int
	rate       int
	idle       time.Duration
	metrics    *observe.Metrics
	onComplete func(analysis.Summary)

	mu    sync.Mutex
	state State

	// writeMu orders outbound writes against close: a write that saw an
	// active state finishes before the connection is torn down.
	writeMu sync.Mutex

	done      chan struct{}
	closeOnce sync.Once
}

// New wraps an accepted websocket connection in a session. The session stays
// in [StateConnecting] until [Session.Run] starts.
func New(conn *websocket.Conn, cfg Config) *Session {
	return &Session{
		id:         cfg.ID,
		conn:       conn,
		proc:       cfg.Processor,
		encoding:   cfg.Encoding,
		inputRate:  cfg.InputSampleRate,
		rate:       cfg.SampleRate,
		idle:       cfg.IdleTimeout,
		metrics:    cfg.Metrics,
		onComplete: cfg.OnComplete,
		state:      StateConnecting,
		done:       make(chan struct{}),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle phase.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done is closed when the session has fully shut down.
func (s *Session) Done() <-chan struct{} { return s.done }

// Run reads and handles client messages until the connection drops, the
// client ends the performance, the idle timeout fires, or ctx is cancelled.
// It always leaves the session in [StateClosed].
func (s *Session) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateConnecting {
		s.mu.Unlock()
		return fmt.Errorf("session %s: run from state %q", s.id, s.state)
	}
	s.state = StateActive
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.ActiveSessions.Add(ctx, 1)
		defer s.metrics.ActiveSessions.Add(ctx, -1)
	}
	defer s.Close()

	slog.Info("session started", "session_id", s.id, "encoding", s.encoding)

	for {
		typ, data, err := s.read(ctx)
		if err != nil {
			return s.finishRead(ctx, err)
		}

		finished, err := s.handleMessage(ctx, typ, data)
		if err != nil {
			return err
		}
		if finished {
			s.close(websocket.StatusNormalClosure, "performance complete")
			return nil
		}
	}
}

// read blocks for the next message, bounded by the idle timeout.
func (s *Session) read(ctx context.Context) (websocket.MessageType, []byte, error) {
	if s.idle <= 0 {
		return s.conn.Read(ctx)
	}
	readCtx, cancel := context.WithTimeout(ctx, s.idle)
	defer cancel()
	return s.conn.Read(readCtx)
}

// finishRead translates a read-loop exit into the session's result.
func (s *Session) finishRead(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		slog.Info("session idle timeout", "session_id", s.id, "timeout", s.idle)
		s.close(websocket.StatusGoingAway, "idle timeout")
		return nil
	case ctx.Err() != nil:
		s.close(websocket.StatusGoingAway, "server shutting down")
		return nil
	case websocket.CloseStatus(err) != -1:
		slog.Info("session disconnected", "session_id", s.id, "status", websocket.CloseStatus(err))
		return nil
	default:
		slog.Warn("session read error", "session_id", s.id, "err", err)
		return fmt.Errorf("session %s: read: %w", s.id, err)
	}
}

// handleMessage dispatches one inbound message. Malformed input is answered
// with an error message and the session keeps running; only end_performance
// finishes it.
func (s *Session) handleMessage(ctx context.Context, typ websocket.MessageType, data []byte) (finished bool, err error) {
	if typ == websocket.MessageBinary {
		// Binary frames carry raw PCM without the JSON envelope.
		return false, s.handleAudio(ctx, data)
	}

	msg, perr := parseInbound(data)
	if perr != nil {
		s.reject(ctx, "bad_json", perr)
		return false, nil
	}

	switch msg.Type {
	case MessageAudioChunk:
		pcm, derr := base64.StdEncoding.DecodeString(msg.AudioData)
		if derr != nil {
			s.reject(ctx, "bad_base64", fmt.Errorf("session: decode audio_data: %w", derr))
			return false, nil
		}
		return false, s.handleAudio(ctx, pcm)

	case MessageSongPosition:
		if msg.Position < 0 {
			s.reject(ctx, "bad_position", fmt.Errorf("session: position %g must not be negative", msg.Position))
			return false, nil
		}
		s.proc.SetPosition(msg.Position)
		slog.Debug("session realigned", "session_id", s.id, "position", msg.Position)
		return false, nil

	case MessageEndPerformance:
		summary := s.proc.Finish()
		if werr := s.writeJSON(ctx, newCompleteMessage(summary)); werr != nil {
			return true, werr
		}
		if s.onComplete != nil {
			s.onComplete(summary)
		}
		slog.Info("performance complete",
			"session_id", s.id,
			"comparisons", summary.TotalComparisons,
			"sections", len(summary.AnalyzedSections),
		)
		return true, nil
	}
	return false, nil
}

// handleAudio decodes, analyses, and answers one chunk of PCM.
func (s *Session) handleAudio(ctx context.Context, pcm []byte) error {
	samples, err := audio.Decode(pcm, s.encoding)
	if err != nil {
		s.reject(ctx, "bad_pcm", err)
		return nil
	}
	if s.inputRate > 0 && s.rate > 0 && s.inputRate != s.rate {
		samples = audio.Resample(samples, s.inputRate, s.rate)
	}

	updates, err := s.proc.ProcessAudio(ctx, samples)
	if err != nil {
		return fmt.Errorf("session %s: %w", s.id, err)
	}
	for _, u := range updates {
		if err := s.writeJSON(ctx, u); err != nil {
			return err
		}
	}
	return nil
}

// reject answers a malformed message without ending the session.
func (s *Session) reject(ctx context.Context, reason string, err error) {
	slog.Warn("session rejected message", "session_id", s.id, "reason", reason, "err", err)
	if s.metrics != nil {
		s.metrics.RecordMalformedMessage(ctx, reason)
	}
	_ = s.writeJSON(ctx, newErrorMessage(err))
}

// writeJSON marshals v and writes it as a text message. Writes after close
// are dropped silently; the state check and the write happen under the same
// lock so a concurrent close cannot slip between them.
func (s *Session) writeJSON(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("session %s: marshal: %w", s.id, err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.State() == StateClosed {
		return nil
	}
	return s.conn.Write(ctx, websocket.MessageText, data)
}

// Close shuts the session down with a normal closure. Idempotent.
func (s *Session) Close() error {
	s.close(websocket.StatusNormalClosure, "session closed")
	return nil
}

func (s *Session) close(status websocket.StatusCode, reason string) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.state = StateClosed
		s.mu.Unlock()

		// Any write already past its state check still holds writeMu;
		// wait it out before tearing the connection down.
		s.writeMu.Lock()
		if s.conn != nil {
			_ = s.conn.Close(status, reason)
		}
		s.writeMu.Unlock()

		close(s.done)
		slog.Info("session closed", "session_id", s.id, "reason", reason)
	})
}
