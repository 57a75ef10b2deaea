package engine

import (
	"sync/atomic"
	"time"
)

// Stats are cumulative pipeline counters since the engine was created.
type Stats struct {
	Frames         uint64
	DeadlineMisses uint64
	Corrections    uint64
	ClampedSamples uint64
	VoiceActive    uint64
	DetectorErrors uint64
	DetectorSkips  uint64
	BreakerTrips   uint64
}

// Sub returns the per-field difference s - prev.
func (s Stats) Sub(prev Stats) Stats {
	return Stats{
		Frames:         s.Frames - prev.Frames,
		DeadlineMisses: s.DeadlineMisses - prev.DeadlineMisses,
		Corrections:    s.Corrections - prev.Corrections,
		ClampedSamples: s.ClampedSamples - prev.ClampedSamples,
		VoiceActive:    s.VoiceActive - prev.VoiceActive,
		DetectorErrors: s.DetectorErrors - prev.DetectorErrors,
		DetectorSkips:  s.DetectorSkips - prev.DetectorSkips,
		BreakerTrips:   s.BreakerTrips - prev.BreakerTrips,
	}
}

type counters struct {
	frames         atomic.Uint64
	deadlineMisses atomic.Uint64
	corrections    atomic.Uint64
	clamped        atomic.Uint64
	voiceActive    atomic.Uint64
	detectorErrors atomic.Uint64
	detectorSkips  atomic.Uint64
}

// Stats returns the cumulative counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Frames:         e.stats.frames.Load(),
		DeadlineMisses: e.stats.deadlineMisses.Load(),
		Corrections:    e.stats.corrections.Load(),
		ClampedSamples: e.stats.clamped.Load(),
		VoiceActive:    e.stats.voiceActive.Load(),
		DetectorErrors: e.stats.detectorErrors.Load(),
		DetectorSkips:  e.stats.detectorSkips.Load(),
		BreakerTrips:   e.breaker.Trips(),
	}
}

// durationQueueSize holds about 340 ms of 256-sample frames at 48 kHz,
// enough for a 10 Hz reader.
const durationQueueSize = 64

// durationQueue is a single-producer single-consumer ring of frame
// processing times. When the consumer falls behind, new values are dropped.
type durationQueue struct {
	buf  [durationQueueSize]atomic.Int64
	head atomic.Uint64 // next write, producer only
	tail atomic.Uint64 // next read, consumer only
}

func (q *durationQueue) push(d time.Duration) {
	h := q.head.Load()
	if h-q.tail.Load() >= durationQueueSize {
		return
	}
	q.buf[h%durationQueueSize].Store(int64(d))
	q.head.Store(h + 1)
}

func (q *durationQueue) drain(fn func(time.Duration)) int {
	t := q.tail.Load()
	h := q.head.Load()
	for i := t; i < h; i++ {
		fn(time.Duration(q.buf[i%durationQueueSize].Load()))
	}
	q.tail.Store(h)
	return int(h - t)
}

// DrainFrameDurations calls fn for every frame processing time recorded since
// the previous call and returns how many there were. It must be called from a
// single goroutine.
func (e *Engine) DrainFrameDurations(fn func(time.Duration)) int {
	return e.durations.drain(fn)
}
