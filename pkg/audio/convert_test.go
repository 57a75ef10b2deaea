package audio_test

import (
	"encoding/binary"
	"math"
	"testing"
	"time"

	"github.com/MrWong99/vocalbooth/pkg/audio"
)

// samplesToBytes converts a slice of int16 samples to little-endian byte representation.
func samplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// bytesToSamples converts a little-endian byte slice to int16 samples.
func bytesToSamples(b []byte) []int16 {
	samples := make([]int16, len(b)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return samples
}

func TestFloatToPCM16_ScalesAndClamps(t *testing.T) {
	t.Parallel()

	in := []float64{0, 0.5, -0.5, 1, -1, 1.7, -3, math.NaN()}
	buf := make([]byte, len(in)*2)
	if n := audio.FloatToPCM16(buf, in); n != len(in) {
		t.Fatalf("FloatToPCM16 wrote %d samples, want %d", n, len(in))
	}
	got := bytesToSamples(buf)
	want := []int16{0, 16383, -16383, 32767, -32767, 32767, -32767, 0}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestPCM16ToFloat(t *testing.T) {
	t.Parallel()

	src := samplesToBytes([]int16{0, 16384, -32768})
	dst := make([]float64, 3)
	if n := audio.PCM16ToFloat(dst, src); n != 3 {
		t.Fatalf("PCM16ToFloat wrote %d samples, want 3", n)
	}
	want := []float64{0, 0.5, -1}
	for i := range want {
		if dst[i] != want[i] {
			t.Errorf("sample %d: got %v, want %v", i, dst[i], want[i])
		}
	}
}

func TestF32LE_RoundTrip(t *testing.T) {
	t.Parallel()

	in := []float64{0, 0.25, -0.75, 1}
	buf := make([]byte, len(in)*4)
	audio.FloatToF32LE(buf, in)

	out := make([]float64, len(in))
	if n := audio.F32LEToFloat(out, buf); n != len(in) {
		t.Fatalf("F32LEToFloat wrote %d samples, want %d", n, len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("sample %d: got %v, want %v", i, out[i], in[i])
		}
	}
}

func TestF32LEToFloat_ShortDestination(t *testing.T) {
	t.Parallel()

	buf := make([]byte, 16)
	dst := make([]float64, 2)
	if n := audio.F32LEToFloat(dst, buf); n != 2 {
		t.Errorf("n = %d, want 2", n)
	}
}

func TestDownmix(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		in       []float64
		channels int
		want     []float64
	}{
		{"mono passthrough", []float64{0.1, 0.2}, 1, []float64{0.1, 0.2}},
		{"stereo average", []float64{0.2, 0.4, -1, 1}, 2, []float64{0.3, 0}},
		{"partial frame dropped", []float64{0.5, 0.5, 0.9}, 2, []float64{0.5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := audio.Downmix(tt.in, tt.channels)
			if len(got) != len(tt.want) {
				t.Fatalf("len = %d, want %d", len(got), len(tt.want))
			}
			for i := range tt.want {
				if math.Abs(got[i]-tt.want[i]) > 1e-12 {
					t.Errorf("sample %d: got %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestFormat_FrameDuration(t *testing.T) {
	t.Parallel()

	f := audio.Format{SampleRate: 48000, Channels: 1}
	if got := f.FrameDuration(480); got != 10*time.Millisecond {
		t.Errorf("FrameDuration(480) = %v, want 10ms", got)
	}
	if got := f.FrameSeconds(256); math.Abs(got-256.0/48000) > 1e-15 {
		t.Errorf("FrameSeconds(256) = %v", got)
	}
	if got := (audio.Format{}).FrameSeconds(256); got != 0 {
		t.Errorf("zero format FrameSeconds = %v, want 0", got)
	}
	if got := f.String(); got != "48000Hz mono" {
		t.Errorf("String() = %q", got)
	}
}
