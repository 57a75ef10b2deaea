package session

import "slices"

// Recording is the append-only buffer of mixed output samples kept for the
// whole session.
//
// Appends happen on the real-time thread. The buffer should be pre-sized with
// [NewRecording] for the expected song length so that growth, which does
// allocate, is rare.
type Recording struct {
	samples []float64
	enabled bool
}

// NewRecording returns a recording with room for capacity samples. A
// disabled recording ignores Append.
func NewRecording(capacity int, enabled bool) *Recording {
	var buf []float64
	if enabled && capacity > 0 {
		buf = make([]float64, 0, capacity)
	}
	return &Recording{samples: buf, enabled: enabled}
}

// Enabled reports whether Append stores samples.
func (r *Recording) Enabled() bool { return r.enabled }

// Append stores frame verbatim.
func (r *Recording) Append(frame []float64) {
	if !r.enabled {
		return
	}
	r.samples = append(r.samples, frame...)
}

// Len returns the number of recorded samples.
func (r *Recording) Len() int { return len(r.samples) }

// Samples returns a copy of the recorded samples. Call it after the stream
// has stopped.
func (r *Recording) Samples() []float64 {
	return slices.Clone(r.samples)
}
