// Package audio provides PCM decoding helpers and the streaming framer that
// turns arbitrarily-sized inbound sample chunks into fixed-size analysis
// frames.
//
// All pipeline stages operate on mono float64 samples normalised to
// [-1.0, 1.0]. The decode helpers in this file convert the two wire
// encodings (little-endian int16 and little-endian float32) into that
// canonical form and down-mix interleaved multi-channel input by averaging
// channels.
package audio

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Encoding identifies the PCM sample encoding of an inbound audio stream.
type Encoding string

const (
	// EncodingF32LE is raw little-endian IEEE 754 float32 samples, already
	// normalised to [-1.0, 1.0].
	EncodingF32LE Encoding = "f32le"

	// EncodingS16LE is raw little-endian signed 16-bit samples, normalised
	// on decode by dividing by 32768.
	EncodingS16LE Encoding = "s16le"
)

// IsValid reports whether e is a recognised PCM encoding.
func (e Encoding) IsValid() bool {
	return e == EncodingF32LE || e == EncodingS16LE
}

// BytesPerSample returns the wire size of one sample for the encoding.
func (e Encoding) BytesPerSample() int {
	if e == EncodingS16LE {
		return 2
	}
	return 4
}

// Decode converts raw PCM bytes into normalised float64 samples according to
// the encoding. The byte length must be a multiple of the sample size.
func Decode(data []byte, enc Encoding) ([]float64, error) {
	switch enc {
	case EncodingS16LE:
		return DecodeS16LE(data)
	case EncodingF32LE:
		return DecodeF32LE(data)
	default:
		return nil, fmt.Errorf("audio: unknown encoding %q", enc)
	}
}

// DecodeS16LE converts little-endian int16 PCM into float64 samples in
// [-1.0, 1.0). Values are divided by 32768, matching the usual fixed-point
// convention.
func DecodeS16LE(data []byte) ([]float64, error) {
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("audio: s16le payload has odd byte count %d", len(data))
	}
	samples := make([]float64, len(data)/2)
	for i := range samples {
		s := int16(binary.LittleEndian.Uint16(data[i*2:]))
		samples[i] = float64(s) / 32768.0
	}
	return samples, nil
}

// DecodeF32LE converts little-endian float32 PCM into float64 samples.
// NaN and infinite values are replaced with silence so that a corrupt chunk
// cannot poison downstream analysis.
func DecodeF32LE(data []byte) ([]float64, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("audio: f32le payload length %d is not a multiple of 4", len(data))
	}
	samples := make([]float64, len(data)/4)
	for i := range samples {
		bits := binary.LittleEndian.Uint32(data[i*4:])
		v := float64(math.Float32frombits(bits))
		if math.IsNaN(v) || math.IsInf(v, 0) {
			v = 0
		}
		samples[i] = v
	}
	return samples, nil
}

// Downmix collapses interleaved multi-channel samples to mono by averaging
// the channels of each frame. channels <= 1 returns the input unchanged.
// Trailing samples that do not fill a whole frame are dropped.
func Downmix(samples []float64, channels int) []float64 {
	if channels <= 1 {
		return samples
	}
	frames := len(samples) / channels
	out := make([]float64, frames)
	for i := range frames {
		sum := 0.0
		for c := range channels {
			sum += samples[i*channels+c]
		}
		out[i] = sum / float64(channels)
	}
	return out
}

// RMS returns the root-mean-square amplitude of the samples. Zero-length
// input yields 0.
func RMS(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range samples {
		sum += s * s
	}
	return math.Sqrt(sum / float64(len(samples)))
}
