package config_test

import (
	"strings"
	"testing"

	"github.com/MrWong99/vocalbooth/internal/config"
)

func TestValidate_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantSub string
	}{
		{"bad log level", func(c *config.Config) { c.Server.LogLevel = "chatty" }, "server.log_level"},
		{"missing backend", func(c *config.Config) { c.Audio.Backend = "" }, "audio.backend is required"},
		{"sample rate too low", func(c *config.Config) { c.Audio.SampleRate = 4000 }, "audio.sample_rate"},
		{"frame size too small", func(c *config.Config) { c.Audio.FrameSize = 8 }, "audio.frame_size"},
		{"no periods", func(c *config.Config) { c.Audio.Periods = 0 }, "audio.periods"},
		{"window below frame", func(c *config.Config) { c.Pitch.WindowSize = 128 }, "pitch.window_size"},
		{"inverted frequency range", func(c *config.Config) { c.Pitch.MinFrequency = 2000 }, "frequency range"},
		{"max above nyquist", func(c *config.Config) { c.Pitch.MaxFrequency = 30000 }, "Nyquist"},
		{"threshold one", func(c *config.Config) { c.Pitch.Threshold = 1 }, "pitch.threshold"},
		{"negative breaker", func(c *config.Config) { c.Pitch.Breaker.MaxFailures = -1 }, "pitch.breaker"},
		{"empty noise history", func(c *config.Config) { c.Noise.HistorySize = 0 }, "noise.history_size"},
		{"vad threshold", func(c *config.Config) { c.Noise.VADThreshold = 1.2 }, "noise.vad_threshold"},
		{"reduction strength", func(c *config.Config) { c.Noise.ReductionStrength = 2 }, "noise.reduction_strength"},
		{"high pass", func(c *config.Config) { c.Noise.HighPassHz = 0 }, "noise.high_pass_hz"},
		{"effects range", func(c *config.Config) { c.Effects.VoiceVolume = 9 }, "voice_volume"},
		{"fast polling", func(c *config.Config) { c.Params.PollInterval = 1 }, "params.poll_interval"},
		{"recording without dir", func(c *config.Config) { c.Recording.Dir = "" }, "recording.dir"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := config.Default()
			tt.mutate(&cfg)
			err := config.Validate(&cfg)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("error %q does not mention %q", err, tt.wantSub)
			}
		})
	}
}

func TestValidate_JoinsAllErrors(t *testing.T) {
	t.Parallel()

	yaml := `
server:
  log_level: loud
audio:
  frame_size: 1
noise:
  reduction_strength: 3
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"server.log_level", "audio.frame_size", "noise.reduction_strength"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("joined error missing %q: %v", want, err)
		}
	}
}

func TestValidate_DefaultIsValid(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	if err := config.Validate(&cfg); err != nil {
		t.Fatalf("Default() is invalid: %v", err)
	}
}

func TestLogLevel_IsValid(t *testing.T) {
	t.Parallel()

	for _, l := range []config.LogLevel{config.LogDebug, config.LogInfo, config.LogWarn, config.LogError} {
		if !l.IsValid() {
			t.Errorf("%q should be valid", l)
		}
	}
	if config.LogLevel("trace").IsValid() {
		t.Error("trace should be invalid")
	}
}

func TestLoad_ExampleConfig(t *testing.T) {
	t.Parallel()

	cfg, err := config.Load("../../configs/example.yaml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.AllowedOrigins != "localhost:*" {
		t.Errorf("AllowedOrigins = %q, want %q", cfg.Server.AllowedOrigins, "localhost:*")
	}
	if cfg.Effects != config.Default().Effects {
		t.Errorf("Effects = %+v, want the defaults", cfg.Effects)
	}
	if cfg.Params.File != "voice_params.txt" {
		t.Errorf("Params.File = %q, want voice_params.txt", cfg.Params.File)
	}
}

func TestLoad_ExplicitZeroNoiseSettings(t *testing.T) {
	t.Parallel()

	yaml := `
noise:
  vad_threshold: 0
  grace_period_ms: 0
  gate_threshold: 0
  reduction_strength: 0
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	n := cfg.Noise
	if n.VADThreshold != 0 || n.GracePeriodMs != 0 || n.GateThreshold != 0 || n.ReductionStrength != 0 {
		t.Errorf("explicit zeros replaced: %+v", n)
	}
	if def := config.Default().Noise; n.HistorySize != def.HistorySize || n.HighPassHz != def.HighPassHz {
		t.Errorf("absent fields lost their defaults: %+v", n)
	}
}
