package wav_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/MrWong99/vocalbooth/internal/wav"
)

// rawWAV builds a minimal RIFF/WAVE file around data.
func rawWAV(format, channels uint16, rate uint32, bits uint16, data []byte) []byte {
	var b bytes.Buffer
	block := channels * bits / 8
	b.WriteString("RIFF")
	_ = binary.Write(&b, binary.LittleEndian, uint32(36+len(data)))
	b.WriteString("WAVE")
	b.WriteString("fmt ")
	_ = binary.Write(&b, binary.LittleEndian, uint32(16))
	_ = binary.Write(&b, binary.LittleEndian, format)
	_ = binary.Write(&b, binary.LittleEndian, channels)
	_ = binary.Write(&b, binary.LittleEndian, rate)
	_ = binary.Write(&b, binary.LittleEndian, rate*uint32(block))
	_ = binary.Write(&b, binary.LittleEndian, block)
	_ = binary.Write(&b, binary.LittleEndian, bits)
	b.WriteString("data")
	_ = binary.Write(&b, binary.LittleEndian, uint32(len(data)))
	b.Write(data)
	return b.Bytes()
}

func writeTemp(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestWriteRead_RoundTrip(t *testing.T) {
	t.Parallel()

	in := make([]float64, 4800)
	for i := range in {
		in[i] = 0.8 * math.Sin(2*math.Pi*440*float64(i)/48000)
	}
	in[10] = 1.7  // clamps
	in[11] = -3.0 // clamps

	path := filepath.Join(t.TempDir(), "out.wav")
	if err := wav.WriteFile(path, in, 48000); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	got, err := wav.Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.SampleRate != 48000 || got.Channels != 1 {
		t.Fatalf("format = %d Hz / %d ch", got.SampleRate, got.Channels)
	}
	if len(got.Samples) != len(in) {
		t.Fatalf("len = %d, want %d", len(got.Samples), len(in))
	}
	const lsb = 1.0 / 32767
	for i, v := range got.Samples {
		want := max(-1, min(1, in[i]))
		if math.Abs(v-want) > 2*lsb {
			t.Fatalf("sample %d = %v, want %v", i, v, want)
		}
	}
}

func TestRead_Encodings(t *testing.T) {
	t.Parallel()

	le16 := func(vs ...int16) []byte {
		var b bytes.Buffer
		for _, v := range vs {
			_ = binary.Write(&b, binary.LittleEndian, v)
		}
		return b.Bytes()
	}
	f32 := func(vs ...float32) []byte {
		var b bytes.Buffer
		for _, v := range vs {
			_ = binary.Write(&b, binary.LittleEndian, v)
		}
		return b.Bytes()
	}

	tests := []struct {
		name     string
		file     []byte
		channels int
		want     []float64
	}{
		{
			name:     "8-bit unsigned",
			file:     rawWAV(1, 1, 8000, 8, []byte{128, 255, 0}),
			channels: 1,
			want:     []float64{0, 127.0 / 128, -1},
		},
		{
			name:     "16-bit stereo",
			file:     rawWAV(1, 2, 44100, 16, le16(16384, -16384, 0, 32767)),
			channels: 2,
			want:     []float64{0.5, -0.5, 0, 32767.0 / 32768},
		},
		{
			name:     "24-bit negative",
			file:     rawWAV(1, 1, 48000, 24, []byte{0x00, 0x00, 0xC0, 0x00, 0x00, 0x40}),
			channels: 1,
			want:     []float64{-0.5, 0.5},
		},
		{
			name:     "32-bit float",
			file:     rawWAV(3, 1, 48000, 32, f32(0.25, -0.75)),
			channels: 1,
			want:     []float64{0.25, -0.75},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := wav.Read(writeTemp(t, "in.wav", tt.file))
			if err != nil {
				t.Fatalf("Read: %v", err)
			}
			if got.Channels != tt.channels {
				t.Errorf("channels = %d, want %d", got.Channels, tt.channels)
			}
			if len(got.Samples) != len(tt.want) {
				t.Fatalf("samples = %v, want %v", got.Samples, tt.want)
			}
			for i := range tt.want {
				if math.Abs(got.Samples[i]-tt.want[i]) > 1e-9 {
					t.Errorf("sample %d = %v, want %v", i, got.Samples[i], tt.want[i])
				}
			}
		})
	}
}

func TestAudio_Mono(t *testing.T) {
	t.Parallel()

	a := wav.Audio{SampleRate: 8000, Channels: 2, Samples: []float64{1, 0, 0.5, 0.5, -1, 1}}
	if a.Frames() != 3 {
		t.Errorf("Frames = %d, want 3", a.Frames())
	}
	got := a.Mono()
	want := []float64{0.5, 0.5, 0}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Mono()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestRead_Errors(t *testing.T) {
	t.Parallel()

	if _, err := wav.Read(filepath.Join(t.TempDir(), "missing.wav")); err == nil || errors.Is(err, wav.ErrFormat) {
		t.Errorf("missing file: err = %v, want a non-format error", err)
	}

	unsupported := rawWAV(1, 1, 8000, 12, []byte{0, 0})
	if _, err := wav.Read(writeTemp(t, "odd.wav", unsupported)); !errors.Is(err, wav.ErrFormat) {
		t.Errorf("12-bit: err = %v, want ErrFormat", err)
	}

	if _, err := wav.Read(writeTemp(t, "junk.wav", []byte("junk"))); !errors.Is(err, wav.ErrFormat) {
		t.Errorf("junk: err = %v, want ErrFormat", err)
	}
}

func TestWrite_RejectsBadRate(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bad.wav")
	if err := wav.WriteFile(path, []float64{0}, 0); err == nil {
		t.Error("expected error for zero sample rate")
	}
}
