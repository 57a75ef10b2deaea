package audio

import (
	"encoding/binary"
	"math"
)

// F32LEToFloat decodes little-endian float32 samples from src into dst and
// returns the number of samples written. Decoding stops at whichever of dst
// or src runs out first; a trailing partial sample is ignored.
func F32LEToFloat(dst []float64, src []byte) int {
	n := min(len(dst), len(src)/4)
	for i := range n {
		dst[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(src[i*4:])))
	}
	return n
}

// FloatToF32LE encodes src as little-endian float32 into dst and returns the
// number of samples written.
func FloatToF32LE(dst []byte, src []float64) int {
	n := min(len(src), len(dst)/4)
	for i := range n {
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(float32(src[i])))
	}
	return n
}

// PCM16ToFloat decodes little-endian int16 samples from src into dst, scaled
// to [-1, 1), and returns the number of samples written.
func PCM16ToFloat(dst []float64, src []byte) int {
	n := min(len(dst), len(src)/2)
	for i := range n {
		dst[i] = float64(int16(binary.LittleEndian.Uint16(src[i*2:]))) / 32768
	}
	return n
}

// FloatToPCM16 encodes src as little-endian int16 into dst using a 32767
// scale factor. Samples outside [-1, 1] are clamped so they never wrap.
func FloatToPCM16(dst []byte, src []float64) int {
	n := min(len(src), len(dst)/2)
	for i := range n {
		binary.LittleEndian.PutUint16(dst[i*2:], uint16(SampleToInt16(src[i])))
	}
	return n
}

// SampleToInt16 converts one float sample to int16 with clamping.
func SampleToInt16(s float64) int16 {
	switch {
	case math.IsNaN(s):
		return 0
	case s >= 1:
		return math.MaxInt16
	case s <= -1:
		return -math.MaxInt16
	}
	return int16(s * math.MaxInt16)
}

// Downmix averages interleaved multi-channel samples into a mono slice.
// Mono input (channels <= 1) is returned unchanged. A trailing partial frame
// is dropped.
func Downmix(interleaved []float64, channels int) []float64 {
	if channels <= 1 {
		return interleaved
	}
	frames := len(interleaved) / channels
	out := make([]float64, frames)
	for i := range frames {
		var sum float64
		for c := range channels {
			sum += interleaved[i*channels+c]
		}
		out[i] = sum / float64(channels)
	}
	return out
}
