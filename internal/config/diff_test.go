package config_test

import (
	"slices"
	"testing"

	"github.com/MrWong99/vocalbooth/internal/config"
)

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	d := config.Diff(&cfg, &cfg)
	if d.LogLevelChanged || d.EffectsChanged || len(d.RestartRequired) != 0 {
		t.Errorf("expected empty diff, got %+v", d)
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old := config.Default()
	new := config.Default()
	new.Server.LogLevel = config.LogDebug

	d := config.Diff(&old, &new)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("expected NewLogLevel=debug, got %q", d.NewLogLevel)
	}
	if len(d.RestartRequired) != 0 {
		t.Errorf("log level should not require restart: %v", d.RestartRequired)
	}
}

func TestDiff_EffectsChanged(t *testing.T) {
	t.Parallel()
	old := config.Default()
	new := config.Default()
	new.Effects.PitchShift = 3

	d := config.Diff(&old, &new)
	if !d.EffectsChanged || d.NewEffects.PitchShift != 3 {
		t.Errorf("diff = %+v", d)
	}
}

func TestDiff_RestartRequired(t *testing.T) {
	t.Parallel()
	old := config.Default()
	new := config.Default()
	new.Audio.FrameSize = 512
	new.Song.Name = "other"
	new.Server.ListenAddr = ":1"

	d := config.Diff(&old, &new)
	want := []string{"server.listen_addr", "audio", "song"}
	if !slices.Equal(d.RestartRequired, want) {
		t.Errorf("RestartRequired = %v, want %v", d.RestartRequired, want)
	}
}
