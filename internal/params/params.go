// Package params holds the live voice effect settings and the channels that
// update them while a session is streaming.
//
// [Effects] is a plain value. The real-time thread reads the current value
// through [Store.Load], which never blocks. Writers (the parameter file
// poller, the NATS subscriber, the websocket control server) build a new
// value with [Apply] or [Effects.Set] and publish it with [Store.Update].
// Each key is validated on its own: an unparsable or out-of-range value is
// rejected and the previous value for that key is kept.
package params

import (
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"
	"strconv"
	"strings"
)

var (
	// ErrUnknownKey is reported for keys that name no effect.
	ErrUnknownKey = errors.New("params: unknown key")

	// ErrOutOfRange is reported for values outside the key's valid range.
	ErrOutOfRange = errors.New("params: value out of range")

	// ErrInvalidValue is reported for values that do not parse.
	ErrInvalidValue = errors.New("params: invalid value")
)

// Canonical effect keys as written in the parameter file.
const (
	KeyAutotuneStrength = "autotune_strength"
	KeyPitchShift       = "pitch_shift"
	KeyVoiceVolume      = "voice_volume"
	KeyInstrumentVolume = "instrument_volume"
	KeyEnableChorus     = "enable_chorus"
	KeyChorusDepth      = "chorus_depth"
	KeyEnableReverb     = "enable_reverb"
	KeyReverbWetness    = "reverb_wetness"
)

// Keys lists the canonical keys in file order.
var Keys = []string{
	KeyAutotuneStrength,
	KeyPitchShift,
	KeyVoiceVolume,
	KeyInstrumentVolume,
	KeyEnableChorus,
	KeyChorusDepth,
	KeyEnableReverb,
	KeyReverbWetness,
}

// aliases maps control-protocol names onto canonical keys.
var aliases = map[string]string{
	"autotune": KeyAutotuneStrength,
}

// Range is an inclusive numeric bound.
type Range struct {
	Min, Max float64
}

// Contains reports whether v lies within r. NaN is never contained.
func (r Range) Contains(v float64) bool { return v >= r.Min && v <= r.Max }

// Ranges holds the valid range of every numeric key.
var Ranges = map[string]Range{
	KeyAutotuneStrength: {0, 2},
	KeyPitchShift:       {-12, 12},
	KeyVoiceVolume:      {0, 5},
	KeyInstrumentVolume: {0, 5},
	KeyChorusDepth:      {0, 64},
	KeyReverbWetness:    {0, 1},
}

// Effects is one complete set of voice effect settings.
type Effects struct {
	AutotuneStrength float64 `yaml:"autotune_strength" json:"autotune_strength"`
	PitchShift       float64 `yaml:"pitch_shift" json:"pitch_shift"` // semitones
	VoiceVolume      float64 `yaml:"voice_volume" json:"voice_volume"`
	InstrumentVolume float64 `yaml:"instrument_volume" json:"instrument_volume"`
	EnableChorus     bool    `yaml:"enable_chorus" json:"enable_chorus"`
	ChorusDepth      float64 `yaml:"chorus_depth" json:"chorus_depth"` // samples
	EnableReverb     bool    `yaml:"enable_reverb" json:"enable_reverb"`
	ReverbWetness    float64 `yaml:"reverb_wetness" json:"reverb_wetness"`
}

// Defaults returns the settings a session starts with.
func Defaults() Effects {
	return Effects{
		AutotuneStrength: 1.0,
		PitchShift:       0,
		VoiceVolume:      1.1,
		InstrumentVolume: 2.0,
		EnableChorus:     false,
		ChorusDepth:      0.1,
		EnableReverb:     false,
		ReverbWetness:    0.3,
	}
}

// Canonical resolves key, including aliases, to its canonical name.
func Canonical(key string) (string, bool) {
	key = strings.ToLower(strings.TrimSpace(key))
	if c, ok := aliases[key]; ok {
		return c, true
	}
	switch key {
	case KeyAutotuneStrength, KeyPitchShift, KeyVoiceVolume, KeyInstrumentVolume,
		KeyEnableChorus, KeyChorusDepth, KeyEnableReverb, KeyReverbWetness:
		return key, true
	}
	return "", false
}

// Validate checks every numeric field against [Ranges].
func (e Effects) Validate() error {
	var errs []error
	for _, key := range Keys {
		r, ok := Ranges[key]
		if !ok {
			continue
		}
		v, _ := e.number(key)
		if !r.Contains(v) {
			errs = append(errs, fmt.Errorf("%w: %s=%g not in [%g, %g]", ErrOutOfRange, key, v, r.Min, r.Max))
		}
	}
	return errors.Join(errs...)
}

// Set parses value and assigns it to key. On error e is left unchanged.
func (e *Effects) Set(key, value string) error {
	canon, ok := Canonical(key)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
	value = strings.TrimSpace(value)
	switch canon {
	case KeyEnableChorus, KeyEnableReverb:
		b, err := parseBool(value)
		if err != nil {
			return fmt.Errorf("%w: %s=%q", ErrInvalidValue, canon, value)
		}
		e.setBool(canon, b)
		return nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("%w: %s=%q", ErrInvalidValue, canon, value)
	}
	return e.SetFloat(canon, f)
}

// SetFloat assigns a numeric value. Boolean keys treat values above 0.5 as
// enabled. On error e is left unchanged.
func (e *Effects) SetFloat(key string, v float64) error {
	canon, ok := Canonical(key)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%w: %s=%g", ErrInvalidValue, canon, v)
	}
	switch canon {
	case KeyEnableChorus, KeyEnableReverb:
		e.setBool(canon, v > 0.5)
		return nil
	}
	if r := Ranges[canon]; !r.Contains(v) {
		return fmt.Errorf("%w: %s=%g not in [%g, %g]", ErrOutOfRange, canon, v, r.Min, r.Max)
	}
	switch canon {
	case KeyAutotuneStrength:
		e.AutotuneStrength = v
	case KeyPitchShift:
		e.PitchShift = v
	case KeyVoiceVolume:
		e.VoiceVolume = v
	case KeyInstrumentVolume:
		e.InstrumentVolume = v
	case KeyChorusDepth:
		e.ChorusDepth = v
	case KeyReverbWetness:
		e.ReverbWetness = v
	}
	return nil
}

// SetAny assigns a decoded JSON value (number, bool or string).
func (e *Effects) SetAny(key string, v any) error {
	switch x := v.(type) {
	case float64:
		return e.SetFloat(key, x)
	case int:
		return e.SetFloat(key, float64(x))
	case bool:
		canon, ok := Canonical(key)
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownKey, key)
		}
		if canon != KeyEnableChorus && canon != KeyEnableReverb {
			return fmt.Errorf("%w: %s expects a number", ErrInvalidValue, canon)
		}
		e.setBool(canon, x)
		return nil
	case string:
		return e.Set(key, x)
	default:
		return fmt.Errorf("%w: %s has unsupported type %T", ErrInvalidValue, key, v)
	}
}

func (e *Effects) setBool(key string, b bool) {
	if key == KeyEnableChorus {
		e.EnableChorus = b
	} else {
		e.EnableReverb = b
	}
}

// number returns the numeric value of key, mapping booleans to 0/1.
func (e Effects) number(key string) (float64, bool) {
	switch key {
	case KeyAutotuneStrength:
		return e.AutotuneStrength, true
	case KeyPitchShift:
		return e.PitchShift, true
	case KeyVoiceVolume:
		return e.VoiceVolume, true
	case KeyInstrumentVolume:
		return e.InstrumentVolume, true
	case KeyChorusDepth:
		return e.ChorusDepth, true
	case KeyReverbWetness:
		return e.ReverbWetness, true
	case KeyEnableChorus:
		return boolNumber(e.EnableChorus), true
	case KeyEnableReverb:
		return boolNumber(e.EnableReverb), true
	}
	return 0, false
}

// Map returns the settings keyed by canonical name, as sent to clients.
func (e Effects) Map() map[string]any {
	m := make(map[string]any, len(Keys))
	for _, key := range Keys {
		switch key {
		case KeyEnableChorus:
			m[key] = e.EnableChorus
		case KeyEnableReverb:
			m[key] = e.EnableReverb
		default:
			m[key], _ = e.number(key)
		}
	}
	return m
}

// Apply assigns every entry of kv on top of base. Each entry is validated
// independently; rejected entries keep the base value and are returned as
// errors.
func Apply(base Effects, kv map[string]string) (Effects, []error) {
	var errs []error
	// Iterate in key order so error output is stable.
	for _, key := range sortedKeys(kv) {
		if err := base.Set(key, kv[key]); err != nil {
			errs = append(errs, err)
		}
	}
	return base, errs
}

// ApplyValues is [Apply] for decoded JSON values.
func ApplyValues(base Effects, kv map[string]any) (Effects, []error) {
	var errs []error
	for _, key := range slices.Sorted(maps.Keys(kv)) {
		if err := base.SetAny(key, kv[key]); err != nil {
			errs = append(errs, err)
		}
	}
	return base, errs
}

func parseBool(s string) (bool, error) {
	if b, err := strconv.ParseBool(s); err == nil {
		return b, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return false, err
	}
	return f > 0.5, nil
}

func boolNumber(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
