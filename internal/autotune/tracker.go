package autotune

import "github.com/MrWong99/vocalbooth/pkg/provider/pitch"

// Acceptance thresholds for replacing the held estimate.
const (
	TrackConfidence = 0.3
	TrackMinFreq    = 50.0
)

// Tracker holds the last good pitch estimate. A new detector reading
// replaces it only when its confidence exceeds [TrackConfidence] and its
// frequency exceeds [TrackMinFreq], so momentary low-confidence jitter does
// not disturb correction.
//
// Tracker is owned by the real-time thread and is not safe for concurrent use.
type Tracker struct {
	current pitch.Estimate
}

// Observe offers a new reading and returns the estimate now held.
func (t *Tracker) Observe(est pitch.Estimate) pitch.Estimate {
	if est.Confidence > TrackConfidence && est.Frequency > TrackMinFreq {
		t.current = est
	}
	return t.current
}

// Current returns the held estimate.
func (t *Tracker) Current() pitch.Estimate { return t.current }

// Reset forgets the held estimate.
func (t *Tracker) Reset() { t.current = pitch.Estimate{} }
