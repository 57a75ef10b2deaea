package config

import "github.com/MrWong99/vocalbooth/internal/params"

// ConfigDiff describes what changed between two configs.
// Fields listed individually can be applied without restarting the stream.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// EffectsChanged is set when the effects block changed; NewEffects is
	// the new block.
	EffectsChanged bool
	NewEffects     params.Effects

	// RestartRequired names the top-level blocks that changed but only take
	// effect on the next start.
	RestartRequired []string
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Effects != new.Effects {
		d.EffectsChanged = true
		d.NewEffects = new.Effects
	}

	restart := []struct {
		name    string
		changed bool
	}{
		{"server.listen_addr", old.Server.ListenAddr != new.Server.ListenAddr},
		{"server.allowed_origins", old.Server.AllowedOrigins != new.Server.AllowedOrigins},
		{"audio", old.Audio != new.Audio},
		{"pitch", old.Pitch != new.Pitch},
		{"noise", old.Noise != new.Noise},
		{"song", old.Song != new.Song},
		{"params", old.Params != new.Params},
		{"recording", old.Recording != new.Recording},
		{"telemetry", old.Telemetry != new.Telemetry},
	}
	for _, r := range restart {
		if r.changed {
			d.RestartRequired = append(d.RestartRequired, r.name)
		}
	}
	return d
}
