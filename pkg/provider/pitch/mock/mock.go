// Package mock provides a test double for the pitch.Detector interface.
//
// Use Detector to inject fixed or scripted estimates and inspect how many
// frames were submitted.
//
// Example:
//
//	det := &mock.Detector{
//	    Result: pitch.Estimate{Frequency: 440, Confidence: 0.9},
//	}
//	est, _ := det.Detect(frame)
package mock

import (
	"sync"

	"github.com/MrWong99/vocalbooth/pkg/provider/pitch"
)

// Ensure Detector implements pitch.Detector at compile time.
var _ pitch.Detector = (*Detector)(nil)

// Detector is a mock implementation of pitch.Detector.
type Detector struct {
	mu sync.Mutex

	// Result is returned by every Detect call when Script is exhausted.
	Result pitch.Estimate

	// Script, if non-empty, supplies one estimate per Detect call in order
	// before falling back to Result.
	Script []pitch.Estimate

	// Err, if non-nil, is returned from every Detect call.
	Err error

	// DetectCalls counts Detect invocations.
	DetectCalls int

	// Samples counts the total number of samples submitted.
	Samples int

	// ResetCalls counts Reset invocations.
	ResetCalls int
}

// Detect records the call and returns the next scripted estimate, Result, or Err.
func (d *Detector) Detect(frame []float64) (pitch.Estimate, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.DetectCalls++
	d.Samples += len(frame)
	if d.Err != nil {
		return pitch.Estimate{}, d.Err
	}
	if len(d.Script) > 0 {
		est := d.Script[0]
		d.Script = d.Script[1:]
		return est, nil
	}
	return d.Result, nil
}

// Reset records the call.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ResetCalls++
}

// SetErr replaces Err. Thread-safe.
func (d *Detector) SetErr(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Err = err
}
