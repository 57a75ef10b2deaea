package params_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/MrWong99/vocalbooth/internal/params"
)

func TestDefaults_Valid(t *testing.T) {
	t.Parallel()

	d := params.Defaults()
	if err := d.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	if d.AutotuneStrength != 1.0 || d.VoiceVolume != 1.1 || d.InstrumentVolume != 2.0 ||
		d.ChorusDepth != 0.1 || d.ReverbWetness != 0.3 || d.EnableChorus || d.EnableReverb {
		t.Errorf("unexpected defaults: %+v", d)
	}
}

func TestSet(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		key     string
		value   string
		wantErr error
		check   func(params.Effects) bool
	}{
		{"voice volume", "voice_volume", "2.5", nil, func(e params.Effects) bool { return e.VoiceVolume == 2.5 }},
		{"alias", "autotune", "0.4", nil, func(e params.Effects) bool { return e.AutotuneStrength == 0.4 }},
		{"upper case key", "PITCH_SHIFT", "-3", nil, func(e params.Effects) bool { return e.PitchShift == -3 }},
		{"bool numeric", "enable_chorus", "1", nil, func(e params.Effects) bool { return e.EnableChorus }},
		{"bool word", "enable_reverb", "true", nil, func(e params.Effects) bool { return e.EnableReverb }},
		{"range max inclusive", "pitch_shift", "12", nil, func(e params.Effects) bool { return e.PitchShift == 12 }},
		{"voice too loud", "voice_volume", "7", params.ErrOutOfRange, nil},
		{"shift too low", "pitch_shift", "-13", params.ErrOutOfRange, nil},
		{"wetness above one", "reverb_wetness", "1.5", params.ErrOutOfRange, nil},
		{"not a number", "voice_volume", "loud", params.ErrInvalidValue, nil},
		{"nan", "voice_volume", "NaN", params.ErrInvalidValue, nil},
		{"unknown key", "bass_boost", "1", params.ErrUnknownKey, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e := params.Defaults()
			err := e.Set(tt.key, tt.value)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				if e != params.Defaults() {
					t.Errorf("rejected value modified effects: %+v", e)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.check(e) {
				t.Errorf("value not applied: %+v", e)
			}
		})
	}
}

func TestApply_RejectAndRetain(t *testing.T) {
	t.Parallel()

	base := params.Defaults()
	got, errs := params.Apply(base, map[string]string{
		"voice_volume":      "7",
		"instrument_volume": "1.5",
		"autotune_strength": "abc",
		"mystery":           "1",
	})
	if len(errs) != 3 {
		t.Fatalf("errs = %v, want 3 errors", errs)
	}
	if got.VoiceVolume != base.VoiceVolume {
		t.Errorf("VoiceVolume = %v, want retained %v", got.VoiceVolume, base.VoiceVolume)
	}
	if got.AutotuneStrength != base.AutotuneStrength {
		t.Errorf("AutotuneStrength = %v, want retained %v", got.AutotuneStrength, base.AutotuneStrength)
	}
	if got.InstrumentVolume != 1.5 {
		t.Errorf("InstrumentVolume = %v, want 1.5", got.InstrumentVolume)
	}
}

func TestSetAny(t *testing.T) {
	t.Parallel()

	e := params.Defaults()
	if err := e.SetAny("enable_chorus", true); err != nil || !e.EnableChorus {
		t.Errorf("bool: err=%v chorus=%v", err, e.EnableChorus)
	}
	if err := e.SetAny("chorus_depth", 12.0); err != nil || e.ChorusDepth != 12 {
		t.Errorf("number: err=%v depth=%v", err, e.ChorusDepth)
	}
	if err := e.SetAny("voice_volume", "0.5"); err != nil || e.VoiceVolume != 0.5 {
		t.Errorf("string: err=%v volume=%v", err, e.VoiceVolume)
	}
	if err := e.SetAny("voice_volume", true); !errors.Is(err, params.ErrInvalidValue) {
		t.Errorf("bool for number: err = %v", err)
	}
	if err := e.SetAny("voice_volume", []int{1}); !errors.Is(err, params.ErrInvalidValue) {
		t.Errorf("slice: err = %v", err)
	}
}

func TestValidate_JoinsErrors(t *testing.T) {
	t.Parallel()

	e := params.Defaults()
	e.VoiceVolume = -1
	e.ReverbWetness = 2
	err := e.Validate()
	if !errors.Is(err, params.ErrOutOfRange) {
		t.Fatalf("err = %v, want ErrOutOfRange", err)
	}
	for _, key := range []string{"voice_volume", "reverb_wetness"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("error %q does not mention %s", err, key)
		}
	}
}

func TestParse(t *testing.T) {
	t.Parallel()

	doc := "# written by the control server\n\nvoice_volume=1.5\n autotune_strength = 0.2 \nvoice_volume=1.6\n"
	kv, err := params.Parse(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if kv["voice_volume"] != "1.6" || kv["autotune_strength"] != "0.2" || len(kv) != 2 {
		t.Errorf("kv = %v", kv)
	}

	if _, err := params.Parse(strings.NewReader("voice_volume 1.5\n")); err == nil {
		t.Error("expected error for line without '='")
	}
}

func TestFormat_ParsesBack(t *testing.T) {
	t.Parallel()

	e := params.Defaults()
	e.EnableReverb = true
	e.PitchShift = -4.5

	var b strings.Builder
	if err := params.Format(&b, e); err != nil {
		t.Fatalf("Format: %v", err)
	}
	kv, err := params.Parse(strings.NewReader(b.String()))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	got, errs := params.Apply(params.Effects{}, kv)
	if len(errs) != 0 {
		t.Fatalf("Apply errors: %v", errs)
	}
	if got != e {
		t.Errorf("got %+v, want %+v", got, e)
	}
}

func TestMap(t *testing.T) {
	t.Parallel()

	m := params.Defaults().Map()
	if len(m) != len(params.Keys) {
		t.Fatalf("len = %d, want %d", len(m), len(params.Keys))
	}
	if m["enable_chorus"] != false || m["voice_volume"] != 1.1 {
		t.Errorf("map = %v", m)
	}
}

func TestApplyPreset(t *testing.T) {
	t.Parallel()

	tests := []struct {
		preset string
		check  func(params.Effects) bool
	}{
		{"Natural", func(e params.Effects) bool { return e.AutotuneStrength == 0.3 && e.VoiceVolume == 1.0 }},
		{"chipmunk", func(e params.Effects) bool { return e.PitchShift == 7 && e.VoiceVolume == 1.2 }},
		{"Deep Voice", func(e params.Effects) bool { return e.PitchShift == -7 && e.AutotuneStrength == 0.6 }},
		{"Robot", func(e params.Effects) bool { return e.EnableChorus && !e.EnableReverb }},
		{"Angelic", func(e params.Effects) bool { return e.EnableReverb && e.PitchShift == 2 && e.VoiceVolume == 1.4 }},
	}
	for _, tt := range tests {
		t.Run(tt.preset, func(t *testing.T) {
			t.Parallel()
			got, err := params.ApplyPreset(params.Defaults(), tt.preset)
			if err != nil {
				t.Fatalf("ApplyPreset: %v", err)
			}
			if !tt.check(got) {
				t.Errorf("preset not applied: %+v", got)
			}
			if got.ReverbWetness != params.Defaults().ReverbWetness {
				t.Errorf("preset touched reverb_wetness: %v", got.ReverbWetness)
			}
		})
	}

	if _, err := params.ApplyPreset(params.Defaults(), "Opera"); err == nil {
		t.Error("expected error for unknown preset")
	}
}
