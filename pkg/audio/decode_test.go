package audio_test

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/cantus-audio/cantus/pkg/audio"
)

// s16Bytes converts int16 samples to little-endian bytes.
func s16Bytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// f32Bytes converts float32 samples to little-endian bytes.
func f32Bytes(samples []float32) []byte {
	buf := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(s))
	}
	return buf
}

func TestDecodeS16LE(t *testing.T) {
	got, err := audio.DecodeS16LE(s16Bytes([]int16{0, 16384, -16384, 32767, -32768}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []float64{0, 0.5, -0.5, 32767.0 / 32768.0, -1.0}
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-9 {
			t.Errorf("sample %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestDecodeS16LE_OddLength(t *testing.T) {
	if _, err := audio.DecodeS16LE([]byte{0x01}); err == nil {
		t.Fatal("expected error for odd byte count")
	}
}

func TestDecodeF32LE(t *testing.T) {
	got, err := audio.DecodeF32LE(f32Bytes([]float32{0, 0.25, -0.75, 1.0}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []float64{0, 0.25, -0.75, 1.0}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-6 {
			t.Errorf("sample %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestDecodeF32LE_SanitisesNonFinite(t *testing.T) {
	got, err := audio.DecodeF32LE(f32Bytes([]float32{float32(math.NaN()), float32(math.Inf(1))}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, v := range got {
		if v != 0 {
			t.Errorf("sample %d: got %v, want 0", i, v)
		}
	}
}

func TestDecode_UnknownEncoding(t *testing.T) {
	if _, err := audio.Decode([]byte{0, 0}, audio.Encoding("ulaw")); err == nil {
		t.Fatal("expected error for unknown encoding")
	}
}

func TestDownmix(t *testing.T) {
	stereo := []float64{0.2, 0.4, -0.5, 0.5, 1.0, 0.0}
	got := audio.Downmix(stereo, 2)
	want := []float64{0.3, 0.0, 0.5}
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-9 {
			t.Errorf("frame %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestDownmix_MonoPassthrough(t *testing.T) {
	mono := []float64{0.1, 0.2}
	got := audio.Downmix(mono, 1)
	if &got[0] != &mono[0] {
		t.Error("mono input should be returned unchanged")
	}
}

func TestRMS(t *testing.T) {
	if got := audio.RMS(nil); got != 0 {
		t.Errorf("empty RMS: got %v, want 0", got)
	}
	if got := audio.RMS([]float64{0.5, -0.5, 0.5, -0.5}); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("RMS: got %v, want 0.5", got)
	}
}
