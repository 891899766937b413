package refcurve_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cantus-audio/cantus/internal/refcurve"
)

func hz(f float64) *float64 { return &f }

func mustCurve(t *testing.T, samples []refcurve.Sample) *refcurve.Curve {
	t.Helper()
	c, err := refcurve.New(samples)
	if err != nil {
		t.Fatalf("refcurve.New: %v", err)
	}
	return c
}

func TestNew_RejectsEmptyAndUnordered(t *testing.T) {
	if _, err := refcurve.New(nil); err == nil {
		t.Error("expected error for empty curve")
	}
	if _, err := refcurve.New([]refcurve.Sample{
		{Timestamp: 0.5, Pitch: hz(200)},
		{Timestamp: 0.5, Pitch: hz(201)},
	}); err == nil {
		t.Error("expected error for duplicate timestamps")
	}
	if _, err := refcurve.New([]refcurve.Sample{
		{Timestamp: 1.0, Pitch: hz(200)},
		{Timestamp: 0.5, Pitch: hz(201)},
	}); err == nil {
		t.Error("expected error for descending timestamps")
	}
}

func TestNearest_WithinTolerance(t *testing.T) {
	c := mustCurve(t, []refcurve.Sample{
		{Timestamp: 0.0, Pitch: hz(200)},
		{Timestamp: 0.5, Pitch: hz(210)},
		{Timestamp: 1.0, Pitch: nil},
	})

	cases := []struct {
		ts       float64
		wantTS   float64
		wantOK   bool
		wantHz   *float64
		scenario string
	}{
		{0.0, 0.0, true, hz(200), "exact hit"},
		{0.52, 0.5, true, hz(210), "close to a sample"},
		{0.46, 0.5, true, hz(210), "rounds up to nearer sample"},
		{0.99, 1.0, true, nil, "unvoiced reference sample still matches"},
		{0.3, 0, false, nil, "gap larger than tolerance"},
		{1.2, 0, false, nil, "past the end"},
		{-0.2, 0, false, nil, "before the start"},
	}
	for _, tc := range cases {
		got, ok := c.Nearest(tc.ts, 0.05)
		if ok != tc.wantOK {
			t.Errorf("%s: Nearest(%g) ok = %v, want %v", tc.scenario, tc.ts, ok, tc.wantOK)
			continue
		}
		if !ok {
			continue
		}
		if got.Timestamp != tc.wantTS {
			t.Errorf("%s: Nearest(%g) timestamp = %g, want %g", tc.scenario, tc.ts, got.Timestamp, tc.wantTS)
		}
		switch {
		case tc.wantHz == nil && got.Pitch != nil:
			t.Errorf("%s: expected unvoiced sample, got %g Hz", tc.scenario, *got.Pitch)
		case tc.wantHz != nil && (got.Pitch == nil || *got.Pitch != *tc.wantHz):
			t.Errorf("%s: pitch mismatch", tc.scenario)
		}
	}
}

func TestNearest_TieBreaksLow(t *testing.T) {
	c := mustCurve(t, []refcurve.Sample{
		{Timestamp: 1.0, Pitch: hz(100)},
		{Timestamp: 2.0, Pitch: hz(300)},
	})
	// 1.5 is exactly between the two samples.
	got, ok := c.Nearest(1.5, 0.5)
	if !ok {
		t.Fatal("expected a match at the tolerance boundary")
	}
	if got.Timestamp != 1.0 {
		t.Errorf("tie should resolve to lower timestamp, got %g", got.Timestamp)
	}
}

func TestCurve_Accessors(t *testing.T) {
	c := mustCurve(t, []refcurve.Sample{
		{Timestamp: 0.0, Pitch: hz(200)},
		{Timestamp: 2.5, Pitch: hz(220)},
	})
	if c.Len() != 2 {
		t.Errorf("Len = %d, want 2", c.Len())
	}
	if c.Duration() != 2.5 {
		t.Errorf("Duration = %g, want 2.5", c.Duration())
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "curve.json")
	data := `[
		{"timestamp": 0.0, "pitch": 196.0},
		{"timestamp": 0.5, "pitch": null},
		{"timestamp": 1.0, "pitch": 220.0}
	]`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := refcurve.LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if c.Len() != 3 {
		t.Fatalf("Len = %d, want 3", c.Len())
	}
	if s := c.Samples()[1]; s.Pitch != nil {
		t.Errorf("sample 1 should be unvoiced, got %g Hz", *s.Pitch)
	}
	if s := c.Samples()[2]; s.Pitch == nil || *s.Pitch != 220.0 {
		t.Error("sample 2 pitch mismatch")
	}
}

func TestLoadFile_Errors(t *testing.T) {
	if _, err := refcurve.LoadFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}

	bad := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(bad, []byte(`{"not": "an array"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := refcurve.LoadFile(bad); err == nil {
		t.Error("expected error for malformed JSON")
	}

	unordered := filepath.Join(t.TempDir(), "unordered.json")
	data := `[{"timestamp": 1.0, "pitch": 200.0}, {"timestamp": 0.5, "pitch": 210.0}]`
	if err := os.WriteFile(unordered, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := refcurve.LoadFile(unordered); err == nil {
		t.Error("expected error for unordered samples")
	}
}
