// Package config provides the configuration schema, loader, watcher and
// factory registry for the vocalbooth karaoke engine.
package config

import (
	"time"

	"github.com/MrWong99/vocalbooth/internal/params"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Audio     AudioConfig     `yaml:"audio"`
	Pitch     PitchConfig     `yaml:"pitch"`
	Noise     NoiseConfig     `yaml:"noise"`
	Effects   params.Effects  `yaml:"effects"`
	Song      SongConfig      `yaml:"song"`
	Params    ParamsConfig    `yaml:"params"`
	Recording RecordingConfig `yaml:"recording"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address of the control server (e.g., ":8765").
	// Empty disables the server.
	ListenAddr string `yaml:"listen_addr"`

	// AllowedOrigins is a comma-separated list of origin host patterns
	// (e.g., "localhost:*") from which browser clients may open the
	// websocket. Same-origin requests are always accepted.
	AllowedOrigins string `yaml:"allowed_origins"`

	// LogLevel controls verbosity. Hot-reloadable.
	LogLevel LogLevel `yaml:"log_level"`
}

// AudioConfig selects the duplex device and the stream format.
type AudioConfig struct {
	// Backend names the registered audio backend (e.g., "malgo").
	Backend string `yaml:"backend"`

	// SampleRate of capture, playback and the instrumental, in Hz.
	SampleRate int `yaml:"sample_rate"`

	// FrameSize is the number of samples per processing frame.
	FrameSize int `yaml:"frame_size"`

	// Periods is the device buffer count. Lower is lower latency.
	Periods int `yaml:"periods"`
}

// PitchConfig configures the pitch detector.
type PitchConfig struct {
	// Detector names the registered detector implementation (e.g., "yin").
	Detector string `yaml:"detector"`

	// WindowSize is the analysis window in samples.
	WindowSize int `yaml:"window_size"`

	MinFrequency float64 `yaml:"min_frequency"`
	MaxFrequency float64 `yaml:"max_frequency"`

	// Threshold is the detector's voicing threshold.
	Threshold float64 `yaml:"threshold"`

	// Breaker skips detection after repeated detector failures.
	Breaker BreakerConfig `yaml:"breaker"`
}

// BreakerConfig tunes the detector circuit breaker.
type BreakerConfig struct {
	MaxFailures  int           `yaml:"max_failures"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
}

// NoiseConfig holds the noise suppressor tuning.
type NoiseConfig struct {
	HistorySize       int     `yaml:"history_size"`
	VADThreshold      float64 `yaml:"vad_threshold"`
	GracePeriodMs     int     `yaml:"grace_period_ms"`
	GateThreshold     float64 `yaml:"gate_threshold"`
	ReductionStrength float64 `yaml:"reduction_strength"`
	HighPassHz        float64 `yaml:"high_pass_hz"`
}

// SongConfig locates the melody and instrumental for the session. Melody and
// Instrumental override the paths derived from Dir and Name.
type SongConfig struct {
	Dir          string `yaml:"dir"`
	Name         string `yaml:"name"`
	Melody       string `yaml:"melody"`
	Instrumental string `yaml:"instrumental"`
}

// ParamsConfig configures the live parameter channels.
type ParamsConfig struct {
	// File is the key=value parameter file polled for changes. Empty
	// disables the file source.
	File string `yaml:"file"`

	// PollInterval is the file polling interval. At least 100ms.
	PollInterval time.Duration `yaml:"poll_interval"`

	NATS NATSConfig `yaml:"nats"`
}

// NATSConfig configures the NATS parameter subscriber. An empty URL
// disables it.
type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// RecordingConfig controls the session recording.
type RecordingConfig struct {
	Enabled bool `yaml:"enabled"`

	// Dir receives the recorded WAV files.
	Dir string `yaml:"dir"`

	// MaxSeconds pre-sizes the recording buffer.
	MaxSeconds int `yaml:"max_seconds"`
}

// TelemetryConfig configures OpenTelemetry.
type TelemetryConfig struct {
	ServiceName string `yaml:"service_name"`
}

// Default returns the configuration used for keys absent from the file.
func Default() Config {
	return Config{
		Server: ServerConfig{
			ListenAddr: ":8765",
			LogLevel:   LogInfo,
		},
		Audio: AudioConfig{
			Backend:    "malgo",
			SampleRate: 48000,
			FrameSize:  256,
			Periods:    2,
		},
		Pitch: PitchConfig{
			Detector:     "yin",
			WindowSize:   2048,
			MinFrequency: 60,
			MaxFrequency: 1500,
			Threshold:    0.15,
			Breaker: BreakerConfig{
				MaxFailures:  5,
				ResetTimeout: 2 * time.Second,
			},
		},
		Noise: NoiseConfig{
			HistorySize:       1000,
			VADThreshold:      0.3,
			GracePeriodMs:     200,
			GateThreshold:     0.01,
			ReductionStrength: 0.6,
			HighPassHz:        80,
		},
		Effects: params.Defaults(),
		Song: SongConfig{
			Dir: "songs",
		},
		Params: ParamsConfig{
			PollInterval: params.DefaultPollInterval,
			NATS: NATSConfig{
				Subject: params.DefaultSubject,
			},
		},
		Recording: RecordingConfig{
			Enabled:    true,
			Dir:        "recordings",
			MaxSeconds: 600,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "vocalbooth",
		},
	}
}
