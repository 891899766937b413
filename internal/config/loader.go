package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	cfg.ApplyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil {
		if tls.CertFile == "" || tls.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	// Audio
	if cfg.Audio.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d must be positive", cfg.Audio.SampleRate))
	}
	if cfg.Audio.InputSampleRate < 0 {
		errs = append(errs, fmt.Errorf("audio.input_sample_rate %d must not be negative", cfg.Audio.InputSampleRate))
	}
	if !cfg.Audio.Encoding.IsValid() {
		errs = append(errs, fmt.Errorf("audio.encoding %q is invalid; valid values: f32le, s16le", cfg.Audio.Encoding))
	}
	if !cfg.Audio.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("audio.mode %q is invalid; valid values: dense, chunk", cfg.Audio.Mode))
	}
	if cfg.Audio.FrameLength <= 0 {
		errs = append(errs, fmt.Errorf("audio.frame_length %d must be positive", cfg.Audio.FrameLength))
	}
	if cfg.Audio.HopLength <= 0 || cfg.Audio.HopLength > cfg.Audio.FrameLength {
		errs = append(errs, fmt.Errorf("audio.hop_length %d must be in (0, frame_length]", cfg.Audio.HopLength))
	}
	if cfg.Audio.ChunkFrameSize <= 0 {
		errs = append(errs, fmt.Errorf("audio.chunk_frame_size %d must be positive", cfg.Audio.ChunkFrameSize))
	}
	if cfg.Audio.BufferSeconds <= 0 {
		errs = append(errs, fmt.Errorf("audio.buffer_seconds %g must be positive", cfg.Audio.BufferSeconds))
	}
	if cfg.Audio.MaxBufferSeconds < cfg.Audio.BufferSeconds {
		errs = append(errs, fmt.Errorf("audio.max_buffer_seconds %g must be at least buffer_seconds %g",
			cfg.Audio.MaxBufferSeconds, cfg.Audio.BufferSeconds))
	}

	// Pitch
	if !cfg.Pitch.Algorithm.IsValid() {
		errs = append(errs, fmt.Errorf("pitch.algorithm %q is invalid; valid values: yin, acf", cfg.Pitch.Algorithm))
	}
	if cfg.Pitch.FMin <= 0 || cfg.Pitch.FMax <= cfg.Pitch.FMin {
		errs = append(errs, fmt.Errorf("pitch frequency range [%g, %g] is invalid", cfg.Pitch.FMin, cfg.Pitch.FMax))
	}

	// Reference
	switch {
	case cfg.Reference.File == "" && cfg.Reference.Postgres == nil:
		errs = append(errs, errors.New("reference requires either file or postgres"))
	case cfg.Reference.File != "" && cfg.Reference.Postgres != nil:
		errs = append(errs, errors.New("reference.file and reference.postgres are mutually exclusive"))
	case cfg.Reference.Postgres != nil:
		if cfg.Reference.Postgres.DSN == "" {
			errs = append(errs, errors.New("reference.postgres.dsn is required"))
		}
		if cfg.Reference.Postgres.SongID == "" {
			errs = append(errs, errors.New("reference.postgres.song_id is required"))
		}
	}

	// Analysis
	if cfg.Analysis.ToleranceSeconds <= 0 {
		errs = append(errs, fmt.Errorf("analysis.tolerance_seconds %g must be positive", cfg.Analysis.ToleranceSeconds))
	}
	if cfg.Analysis.DeviationThreshold <= 0 {
		errs = append(errs, fmt.Errorf("analysis.deviation_threshold %g must be positive", cfg.Analysis.DeviationThreshold))
	}
	if cfg.Analysis.MinSectionDuration < 0 {
		errs = append(errs, fmt.Errorf("analysis.min_section_duration %g must not be negative", cfg.Analysis.MinSectionDuration))
	}

	// Session
	if t := cfg.Session.IdleTimeoutSeconds; t != nil && *t < 0 {
		errs = append(errs, errors.New("session.idle_timeout_seconds must not be negative"))
	}
	if cfg.Session.MaxEstimationConcurrency < 0 {
		errs = append(errs, errors.New("session.max_estimation_concurrency must not be negative"))
	}
	if t := cfg.Session.IdleTimeoutSeconds; t != nil && *t == 0 {
		slog.Warn("session.idle_timeout_seconds is 0; abandoned sessions are kept until they disconnect")
	}

	return errors.Join(errs...)
}
