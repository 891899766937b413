package refcurve

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
)

// LoadFile reads a reference curve from a JSON file containing an array of
// {"timestamp": float, "pitch": float|null} objects in ascending timestamp
// order.
func LoadFile(path string) (*Curve, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("refcurve: read %s: %w", path, err)
	}

	var samples []Sample
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&samples); err != nil {
		return nil, fmt.Errorf("refcurve: parse %s: %w", path, err)
	}

	curve, err := New(samples)
	if err != nil {
		return nil, fmt.Errorf("refcurve: %s: %w", path, err)
	}
	return curve, nil
}
