// Package wav reads RIFF/WAVE files into float samples and writes 16-bit PCM
// files, on top of github.com/zenwerk/go-wave.
//
// Reading supports 8-bit unsigned, 16/24/32-bit signed integer PCM and 32-bit
// IEEE float data with any channel count. Samples are returned interleaved
// and scaled to [-1, 1].
package wav

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	wave "github.com/zenwerk/go-wave"

	"github.com/MrWong99/vocalbooth/pkg/audio"
)

// ErrFormat is returned for files that are not RIFF/WAVE or use an
// unsupported encoding.
var ErrFormat = errors.New("wav: unsupported format")

// WAVE format tags.
const (
	formatPCM   = 1
	formatFloat = 3
)

// Audio is a decoded file.
type Audio struct {
	SampleRate int
	Channels   int

	// Samples are interleaved by channel and scaled to [-1, 1].
	Samples []float64
}

// Frames returns the number of sample frames (samples per channel).
func (a Audio) Frames() int {
	if a.Channels <= 0 {
		return 0
	}
	return len(a.Samples) / a.Channels
}

// Mono returns the per-frame channel average. Mono audio is returned as is.
func (a Audio) Mono() []float64 {
	return audio.Downmix(a.Samples, a.Channels)
}

// Read decodes the WAVE file at path.
func Read(path string) (Audio, error) {
	if _, err := os.Stat(path); err != nil {
		return Audio{}, fmt.Errorf("wav: %w", err)
	}
	r, err := wave.NewReader(path)
	if err != nil {
		return Audio{}, fmt.Errorf("%w: %s: %v", ErrFormat, path, err)
	}
	f := r.FmtChunk.Data
	channels := int(f.Channel)
	bits := int(f.BitsPerSamples)
	if channels <= 0 || f.SamplesPerSec == 0 {
		return Audio{}, fmt.Errorf("%w: %s: %d channels at %d Hz", ErrFormat, path, channels, f.SamplesPerSec)
	}
	decode, err := decoder(f.WaveFormatType, bits)
	if err != nil {
		return Audio{}, fmt.Errorf("%w: %s", err, path)
	}
	width := bits / 8

	out := Audio{
		SampleRate: int(f.SamplesPerSec),
		Channels:   channels,
		Samples:    make([]float64, 0, int(r.NumSamples)*channels),
	}
	for range r.NumSamples {
		raw, err := r.ReadRawSample()
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			break
		}
		if err != nil {
			return Audio{}, fmt.Errorf("wav: read %s: %w", path, err)
		}
		if len(raw) < channels*width {
			break
		}
		for c := range channels {
			out.Samples = append(out.Samples, decode(raw[c*width:(c+1)*width]))
		}
	}
	return out, nil
}

func decoder(format uint16, bits int) (func([]byte) float64, error) {
	switch {
	case format == formatPCM && bits == 8:
		return func(b []byte) float64 { return (float64(b[0]) - 128) / 128 }, nil
	case format == formatPCM && bits == 16:
		return func(b []byte) float64 {
			return float64(int16(binary.LittleEndian.Uint16(b))) / 32768
		}, nil
	case format == formatPCM && bits == 24:
		return func(b []byte) float64 {
			v := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
			v = v << 8 >> 8 // sign extend
			return float64(v) / (1 << 23)
		}, nil
	case format == formatPCM && bits == 32:
		return func(b []byte) float64 {
			return float64(int32(binary.LittleEndian.Uint32(b))) / (1 << 31)
		}, nil
	case format == formatFloat && bits == 32:
		return func(b []byte) float64 {
			return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
		}, nil
	}
	return nil, fmt.Errorf("%w: format %d with %d bits", ErrFormat, format, bits)
}

// Write encodes mono samples as 16-bit PCM at sampleRate and closes w.
// Samples are scaled by 32767 and clamped.
func Write(w io.WriteCloser, samples []float64, sampleRate int) error {
	if sampleRate <= 0 {
		_ = w.Close()
		return fmt.Errorf("wav: sample rate must be positive, got %d", sampleRate)
	}
	ww, err := wave.NewWriter(wave.WriterParam{
		Out:           w,
		Channel:       1,
		SampleRate:    sampleRate,
		BitsPerSample: 16,
	})
	if err != nil {
		_ = w.Close()
		return fmt.Errorf("wav: create writer: %w", err)
	}
	pcm := make([]int16, len(samples))
	for i, s := range samples {
		pcm[i] = audio.SampleToInt16(s)
	}
	if _, err := ww.WriteSample16(pcm); err != nil {
		_ = ww.Close()
		return fmt.Errorf("wav: write samples: %w", err)
	}
	if err := ww.Close(); err != nil {
		return fmt.Errorf("wav: finalize: %w", err)
	}
	return nil
}

// WriteFile creates path and writes samples to it with [Write].
func WriteFile(path string, samples []float64, sampleRate int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("wav: %w", err)
	}
	return Write(f, samples, sampleRate)
}
