// Package audio defines the sample formats and the device contract used by the
// vocalbooth real-time pipeline.
//
// Samples travel through the pipeline as mono float64 frames nominally in
// [-1, 1]. Device adapters (e.g., audio/malgo) convert to and from the
// hardware's native encoding at the boundary using the helpers in this
// package, so that everything between capture and playback works on a single
// representation.
//
// This package lives under pkg/ because external code (alternative device
// backends) is expected to implement [Duplex].
package audio

// Callback processes one frame. in holds the captured samples; out has the
// same length and must be fully written before the callback returns.
//
// Callbacks run on the device's real-time thread: they must not block,
// perform I/O, or allocate unboundedly.
type Callback func(in, out []float64)

// Duplex is a single capture+playback device pair driven by a periodic
// callback at a fixed cadence.
//
// Implementations must be safe for calling Stop and Close from a goroutine
// other than the one running the callback.
type Duplex interface {
	// Format reports the negotiated stream format. Channels is always 1.
	Format() Format

	// FrameSize reports the number of samples delivered per callback.
	FrameSize() int

	// Start begins streaming, invoking cb once per frame until Stop is
	// called. Start returns once the stream is running.
	Start(cb Callback) error

	// Stop halts the stream. After Stop returns the callback is no longer
	// invoked. Calling Stop on a stopped device is a no-op.
	Stop() error

	// Close releases device resources. It implies Stop. Calling Close more
	// than once is safe.
	Close() error
}
