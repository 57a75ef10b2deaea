package audio

import (
	"fmt"
	"time"
)

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	// SampleRate in Hz (e.g., 48000).
	SampleRate int

	// Channels: 1 for the mono voice path, 2 for stereo sources.
	Channels int
}

// FrameDuration returns the wall-clock length of n sample frames at this
// format's sample rate. Returns 0 for a non-positive sample rate.
func (f Format) FrameDuration(n int) time.Duration {
	if f.SampleRate <= 0 || n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(f.SampleRate)
}

// FrameSeconds is [Format.FrameDuration] expressed as float seconds, which is
// the unit the playback clock advances in.
func (f Format) FrameSeconds(n int) float64 {
	if f.SampleRate <= 0 || n <= 0 {
		return 0
	}
	return float64(n) / float64(f.SampleRate)
}

// String returns a human-readable form such as "48000Hz mono".
func (f Format) String() string {
	ch := "mono"
	switch {
	case f.Channels == 2:
		ch = "stereo"
	case f.Channels > 2:
		ch = fmt.Sprintf("%dch", f.Channels)
	}
	return fmt.Sprintf("%dHz %s", f.SampleRate, ch)
}
