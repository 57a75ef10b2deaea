// Package mock provides an in-memory [audio.Duplex] for unit tests and
// offline rendering.
//
// The mock does not run on a timer. Tests drive it explicitly with
// [Duplex.Feed] (one frame) or [Duplex.Run] (a whole input signal), and read
// back everything the callback produced with [Duplex.Output]. It records
// every lifecycle call so tests can assert on call counts.
//
// Typical usage:
//
//	dev := &mock.Duplex{Rate: 48000, Size: 256}
//	_ = dev.Start(engine.Process)
//	out := dev.Run(input)
package mock

import (
	"errors"
	"sync"

	"github.com/MrWong99/vocalbooth/pkg/audio"
)

// ErrNotStarted is returned by [Duplex.Feed] when no callback is installed.
var ErrNotStarted = errors.New("mock: duplex not started")

// Compile-time interface assertion.
var _ audio.Duplex = (*Duplex)(nil)

// Duplex is a mock implementation of [audio.Duplex].
// Set the exported fields before use; inspect the CallCount* fields after.
type Duplex struct {
	// Rate is the reported sample rate. Defaults to 48000 when zero.
	Rate int

	// Size is the reported frame size. Defaults to 256 when zero.
	Size int

	// StartError is returned by [Duplex.Start].
	StartError error

	// StopError is returned by [Duplex.Stop].
	StopError error

	mu     sync.Mutex
	cb     audio.Callback
	output []float64
	outBuf []float64
	closed bool

	// CallCountStart records how many times Start was called.
	CallCountStart int

	// CallCountStop records how many times Stop was called.
	CallCountStop int

	// CallCountClose records how many times Close was called.
	CallCountClose int
}

// Format implements [audio.Duplex].
func (d *Duplex) Format() audio.Format {
	rate := d.Rate
	if rate == 0 {
		rate = 48000
	}
	return audio.Format{SampleRate: rate, Channels: 1}
}

// FrameSize implements [audio.Duplex].
func (d *Duplex) FrameSize() int {
	if d.Size == 0 {
		return 256
	}
	return d.Size
}

// Start implements [audio.Duplex]. It installs cb unless StartError is set.
func (d *Duplex) Start(cb audio.Callback) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.CallCountStart++
	if d.StartError != nil {
		return d.StartError
	}
	d.cb = cb
	return nil
}

// Stop implements [audio.Duplex]. It removes the callback.
func (d *Duplex) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.CallCountStop++
	d.cb = nil
	return d.StopError
}

// Close implements [audio.Duplex].
func (d *Duplex) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.CallCountClose++
	d.cb = nil
	d.closed = true
	return nil
}

// Closed reports whether Close has been called.
func (d *Duplex) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Feed delivers one input frame to the installed callback and returns the
// frame it produced. The returned slice is only valid until the next Feed.
func (d *Duplex) Feed(in []float64) ([]float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cb == nil {
		return nil, ErrNotStarted
	}
	if cap(d.outBuf) < len(in) {
		d.outBuf = make([]float64, len(in))
	}
	out := d.outBuf[:len(in)]
	d.cb(in, out)
	d.output = append(d.output, out...)
	return out, nil
}

// Run splits signal into frames of [Duplex.FrameSize] samples and feeds them
// in order. A trailing partial frame is fed as a shorter frame. Run returns
// the concatenated output, or nil when the duplex is not started.
func (d *Duplex) Run(signal []float64) []float64 {
	size := d.FrameSize()
	var out []float64
	for off := 0; off < len(signal); off += size {
		end := min(off+size, len(signal))
		frame, err := d.Feed(signal[off:end])
		if err != nil {
			return nil
		}
		out = append(out, frame...)
	}
	return out
}

// Output returns a copy of every sample the callback has produced so far.
func (d *Duplex) Output() []float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]float64, len(d.output))
	copy(out, d.output)
	return out
}
