package params

import (
	"fmt"
	"strings"
)

// Preset is a named set of effect values applied over the current settings.
type Preset struct {
	Name   string
	Values map[string]float64
}

// Presets lists the built-in voice presets.
var Presets = []Preset{
	{Name: "Natural", Values: map[string]float64{
		KeyAutotuneStrength: 0.3, KeyPitchShift: 0, KeyVoiceVolume: 1.0, KeyInstrumentVolume: 2.0,
	}},
	{Name: "Autotune", Values: map[string]float64{
		KeyAutotuneStrength: 1.0, KeyPitchShift: 0, KeyVoiceVolume: 1.1, KeyInstrumentVolume: 2.0,
	}},
	{Name: "Chipmunk", Values: map[string]float64{
		KeyAutotuneStrength: 0.8, KeyPitchShift: 7, KeyVoiceVolume: 1.2, KeyInstrumentVolume: 2.0,
	}},
	{Name: "Deep Voice", Values: map[string]float64{
		KeyAutotuneStrength: 0.6, KeyPitchShift: -7, KeyVoiceVolume: 1.3, KeyInstrumentVolume: 2.0,
	}},
	{Name: "Robot", Values: map[string]float64{
		KeyAutotuneStrength: 1.0, KeyPitchShift: 0, KeyVoiceVolume: 1.0, KeyInstrumentVolume: 2.0, KeyEnableChorus: 1,
	}},
	{Name: "Angelic", Values: map[string]float64{
		KeyAutotuneStrength: 0.9, KeyPitchShift: 2, KeyVoiceVolume: 1.4, KeyInstrumentVolume: 2.0, KeyEnableReverb: 1,
	}},
}

// LookupPreset finds a preset by case-insensitive name.
func LookupPreset(name string) (Preset, bool) {
	for _, p := range Presets {
		if strings.EqualFold(p.Name, strings.TrimSpace(name)) {
			return p, true
		}
	}
	return Preset{}, false
}

// ApplyPreset returns base with the named preset's values applied.
func ApplyPreset(base Effects, name string) (Effects, error) {
	p, ok := LookupPreset(name)
	if !ok {
		return base, fmt.Errorf("params: unknown preset %q", name)
	}
	next := base
	for _, key := range Keys {
		v, ok := p.Values[key]
		if !ok {
			continue
		}
		if err := next.SetFloat(key, v); err != nil {
			return base, fmt.Errorf("params: preset %q: %w", p.Name, err)
		}
	}
	return next, nil
}
