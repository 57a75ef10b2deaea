package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/vocalbooth/internal/params"
)

// ValidBackendNames lists known implementation names per factory kind.
// Used by [Validate] to warn about unrecognised names.
var ValidBackendNames = map[string][]string{
	"audio": {"malgo", "mock"},
	"pitch": {"yin"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
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

// LoadFromReader decodes a YAML config from r on top of [Default] and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadBytes adapts [LoadFromReader] to the watcher's loader signature.
func loadBytes(data []byte) (*Config, error) {
	return LoadFromReader(bytes.NewReader(data))
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Audio
	a := cfg.Audio
	if a.Backend == "" {
		errs = append(errs, errors.New("audio.backend is required"))
	}
	validateBackendName("audio", a.Backend)
	if a.SampleRate < 8000 || a.SampleRate > 192000 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d is out of range [8000, 192000]", a.SampleRate))
	}
	if a.FrameSize < 32 || a.FrameSize > 8192 {
		errs = append(errs, fmt.Errorf("audio.frame_size %d is out of range [32, 8192]", a.FrameSize))
	}
	if a.Periods < 1 {
		errs = append(errs, fmt.Errorf("audio.periods %d must be at least 1", a.Periods))
	}

	// Pitch
	p := cfg.Pitch
	if p.Detector == "" {
		errs = append(errs, errors.New("pitch.detector is required"))
	}
	validateBackendName("pitch", p.Detector)
	if p.WindowSize < a.FrameSize {
		errs = append(errs, fmt.Errorf("pitch.window_size %d must be at least audio.frame_size %d", p.WindowSize, a.FrameSize))
	}
	if p.MinFrequency <= 0 || p.MaxFrequency <= p.MinFrequency {
		errs = append(errs, fmt.Errorf("pitch frequency range [%.1f, %.1f] is invalid", p.MinFrequency, p.MaxFrequency))
	}
	if a.SampleRate > 0 && p.MaxFrequency >= float64(a.SampleRate)/2 {
		errs = append(errs, fmt.Errorf("pitch.max_frequency %.1f must be below Nyquist (%d Hz)", p.MaxFrequency, a.SampleRate/2))
	}
	if p.Threshold <= 0 || p.Threshold >= 1 {
		errs = append(errs, fmt.Errorf("pitch.threshold %.3f is out of range (0, 1)", p.Threshold))
	}
	if p.Breaker.MaxFailures < 0 || p.Breaker.ResetTimeout < 0 {
		errs = append(errs, errors.New("pitch.breaker values must not be negative"))
	}

	// Noise
	n := cfg.Noise
	if n.HistorySize < 1 {
		errs = append(errs, fmt.Errorf("noise.history_size %d must be positive", n.HistorySize))
	}
	if n.VADThreshold < 0 || n.VADThreshold > 1 {
		errs = append(errs, fmt.Errorf("noise.vad_threshold %.3f is out of range [0, 1]", n.VADThreshold))
	}
	if n.GracePeriodMs < 0 {
		errs = append(errs, fmt.Errorf("noise.grace_period_ms %d must not be negative", n.GracePeriodMs))
	}
	if n.GateThreshold < 0 {
		errs = append(errs, fmt.Errorf("noise.gate_threshold %.3f must not be negative", n.GateThreshold))
	}
	if n.ReductionStrength < 0 || n.ReductionStrength > 1 {
		errs = append(errs, fmt.Errorf("noise.reduction_strength %.2f is out of range [0, 1]", n.ReductionStrength))
	}
	if a.SampleRate > 0 && (n.HighPassHz <= 0 || n.HighPassHz >= float64(a.SampleRate)/2) {
		errs = append(errs, fmt.Errorf("noise.high_pass_hz %.1f must be in (0, Nyquist)", n.HighPassHz))
	}

	// Effects
	if err := cfg.Effects.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("effects: %w", err))
	}

	// Song
	if cfg.Song.Name == "" && (cfg.Song.Melody == "" || cfg.Song.Instrumental == "") {
		slog.Warn("song.name is empty; a song must be selected with -song or song.melody/song.instrumental")
	}

	// Params
	if cfg.Params.PollInterval < params.DefaultPollInterval {
		errs = append(errs, fmt.Errorf("params.poll_interval %s must be at least %s", cfg.Params.PollInterval, params.DefaultPollInterval))
	}

	// Recording
	if cfg.Recording.Enabled && cfg.Recording.Dir == "" {
		errs = append(errs, errors.New("recording.dir is required when recording is enabled"))
	}
	if cfg.Recording.MaxSeconds < 0 {
		errs = append(errs, fmt.Errorf("recording.max_seconds %d must not be negative", cfg.Recording.MaxSeconds))
	}

	return errors.Join(errs...)
}

// validateBackendName logs a warning if name is non-empty and not found in
// the [ValidBackendNames] list for the given kind.
func validateBackendName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidBackendNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown backend name; may be a typo or third-party implementation",
		"kind", kind,
		"name", name,
		"known", known,
	)
}

// FrameDuration returns the wall-clock duration of one frame.
func (a AudioConfig) FrameDuration() time.Duration {
	if a.SampleRate <= 0 {
		return 0
	}
	return time.Duration(a.FrameSize) * time.Second / time.Duration(a.SampleRate)
}
