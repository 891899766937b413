package session

import (
	"encoding/json"
	"fmt"

	"github.com/cantus-audio/cantus/internal/analysis"
	"github.com/cantus-audio/cantus/pkg/pitch"
)

// MessageType identifies an inbound client message.
type MessageType string

const (
	// MessageAudioChunk carries base64-encoded PCM samples.
	MessageAudioChunk MessageType = "audio_chunk"

	// MessageSongPosition resynchronises the session to a point on the
	// song timeline.
	MessageSongPosition MessageType = "song_position"

	// MessageEndPerformance finishes the performance and requests the
	// final analysis.
	MessageEndPerformance MessageType = "end_performance"
)

// IsValid reports whether t is a recognised inbound message type.
func (t MessageType) IsValid() bool {
	switch t {
	case MessageAudioChunk, MessageSongPosition, MessageEndPerformance:
		return true
	}
	return false
}

// inbound is the envelope for all client messages.
type inbound struct {
	Type MessageType `json:"type"`

	// AudioData is base64-encoded PCM, present for audio_chunk.
	AudioData string `json:"audio_data"`

	// Position is the song timeline position in seconds, present for
	// song_position.
	Position float64 `json:"position"`
}

// parseInbound decodes and validates one client text message.
func parseInbound(data []byte) (inbound, error) {
	var msg inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		return inbound{}, fmt.Errorf("session: decode message: %w", err)
	}
	if !msg.Type.IsValid() {
		return inbound{}, fmt.Errorf("session: unknown message type %q", msg.Type)
	}
	return msg, nil
}

// Update is an outbound message produced by analysing client audio.
type Update interface {
	isUpdate()
}

// DenseUpdate is the pitch_update payload in dense framing mode: the pitch
// track and comparisons for one analysed batch.
type DenseUpdate struct {
	Type        string                `json:"type"`
	TimeOffset  float64               `json:"time_offset"`
	UserPitch   []pitch.Sample        `json:"user_pitch"`
	Comparisons []analysis.Comparison `json:"comparisons"`
}

func (DenseUpdate) isUpdate() {}

// ChunkUpdate is the pitch_update payload in chunk framing mode: one summary
// per ingestion chunk. UserPitch is the median voiced frequency, or 0.0 when
// no sub-frame carried a usable pitch.
type ChunkUpdate struct {
	Type         string                `json:"type"`
	Timestamp    float64               `json:"timestamp"`
	UserPitch    float64               `json:"user_pitch"`
	VoicedFrames int                   `json:"voiced_frames"`
	TotalFrames  int                   `json:"total_frames"`
	Comparisons  []analysis.Comparison `json:"comparisons"`
}

func (ChunkUpdate) isUpdate() {}

// errorMessage reports a rejected inbound message without ending the session.
type errorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func newErrorMessage(err error) errorMessage {
	return errorMessage{Type: "error", Message: err.Error()}
}

// completeMessage carries the final performance analysis.
type completeMessage struct {
	Type string `json:"type"`
	analysis.Summary
}

func newCompleteMessage(s analysis.Summary) completeMessage {
	return completeMessage{Type: "performance_complete", Summary: s}
}
