// Package pitch defines the Detector interface for fundamental-frequency
// estimation backends.
//
// A Detector wraps a frame-level pitch estimator (YIN, autocorrelation, or an
// external library) and surfaces it as a stateful per-stream object. Each
// detector owns its scratch memory, allocated once at construction, so that
// Detect can run on the real-time audio thread without allocating.
//
// Detect is synchronous by design: it returns immediately with an estimate for
// the frame most recently supplied. A Detector must not be shared across
// concurrent streams.
package pitch

import "errors"

// ErrFrameTooLarge is returned by Detect when a frame exceeds the detector's
// hop capacity.
var ErrFrameTooLarge = errors.New("pitch: frame exceeds detector capacity")

// Estimate is a single pitch reading.
type Estimate struct {
	// Frequency is the detected fundamental in Hz. Zero means unvoiced.
	Frequency float64

	// Confidence in [0, 1]. Higher means the periodicity is clearer.
	Confidence float64
}

// Voiced reports whether the estimate carries a usable frequency.
func (e Estimate) Voiced() bool {
	return e.Frequency > 0
}

// Config holds detector parameters shared by all backends.
type Config struct {
	// SampleRate of the frames passed to Detect, in Hz.
	SampleRate int

	// HopSize is the number of samples per Detect call (the pipeline frame
	// size). Frames shorter than HopSize are accepted.
	HopSize int

	// WindowSize is the analysis window in samples. Backends keep a sliding
	// buffer of this many samples and analyse it after every hop.
	WindowSize int

	// MinFrequency and MaxFrequency bound the search range in Hz.
	MinFrequency float64
	MaxFrequency float64

	// Threshold is backend specific (the YIN absolute threshold, for example).
	Threshold float64
}

// Detector estimates pitch from consecutive audio frames.
type Detector interface {
	// Detect appends frame to the analysis window and returns the estimate for
	// the updated window. Implementations must not retain frame.
	Detect(frame []float64) (Estimate, error)

	// Reset clears the analysis window.
	Reset()
}
