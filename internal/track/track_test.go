package track_test

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/MrWong99/vocalbooth/internal/track"
	"github.com/MrWong99/vocalbooth/internal/wav"
)

func sine(freq float64, rate, n int) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = 0.5 * math.Sin(2*math.Pi*freq*float64(i)/float64(rate))
	}
	return s
}

func TestLoad_SameRate(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "inst.wav")
	in := sine(220, 48000, 4800)
	if err := wav.WriteFile(path, in, 48000); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	got, err := track.Load(path, 48000)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != len(in) {
		t.Fatalf("len = %d, want %d", len(got), len(in))
	}
	for i := range in {
		if math.Abs(got[i]-in[i]) > 2.0/32767 {
			t.Fatalf("sample %d = %v, want %v", i, got[i], in[i])
		}
	}
}

func TestLoad_Resamples(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "inst.wav")
	if err := wav.WriteFile(path, sine(440, 44100, 44100), 44100); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	got, err := track.Load(path, 48000)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if math.Abs(float64(len(got))-48000) > 100 {
		t.Errorf("len = %d, want ~48000", len(got))
	}

	// Zero crossings of a 440 Hz tone over the middle half second.
	mid := got[12000:36000]
	crossings := 0
	for i := 1; i < len(mid); i++ {
		if (mid[i-1] < 0) != (mid[i] < 0) {
			crossings++
		}
	}
	if want := 440; math.Abs(float64(crossings-want)) > 4 {
		t.Errorf("zero crossings = %d, want ~%d", crossings, want)
	}
}

func TestConvert_InvalidRates(t *testing.T) {
	t.Parallel()

	if _, err := track.Convert([]float64{0}, 0, 48000); err == nil {
		t.Error("expected error for zero source rate")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()

	if _, err := track.Load(filepath.Join(t.TempDir(), "nope.wav"), 48000); err == nil {
		t.Error("expected error")
	}
}
