package engine

import (
	"sync"
	"sync/atomic"

	"github.com/MrWong99/vocalbooth/internal/resilience"
)

// Snapshot is the externally visible pipeline state after one frame.
type Snapshot struct {
	Frame uint64  `json:"frame"`
	Clock float64 `json:"clock"` // seconds

	Pitch      float64 `json:"pitch"` // Hz, held estimate
	Confidence float64 `json:"confidence"`
	Target     float64 `json:"target"` // Hz, 0 when no melody point is near
	Ratio      float64 `json:"ratio"`
	Corrected  bool    `json:"corrected"`

	NoiseLevel     float64 `json:"noise_level"`
	SignalLevel    float64 `json:"signal_level"`
	VADProbability float64 `json:"vad_probability"`
	VoiceActive    bool    `json:"voice_active"`
	InGrace        bool    `json:"in_grace"`

	Detector        resilience.State `json:"-"`
	InstrumentalPos int              `json:"instrumental_pos"`

	// Visualisation histories, oldest first and of equal length.
	PitchHistory  []float64 `json:"pitch_history"`
	TargetHistory []float64 `json:"target_history"`
	TimeHistory   []float64 `json:"time_history"`
}

// copyTo copies s into dst, reusing dst's slices.
func (s *Snapshot) copyTo(dst *Snapshot) {
	p, t, c := dst.PitchHistory, dst.TargetHistory, dst.TimeHistory
	*dst = *s
	dst.PitchHistory = append(p[:0], s.PitchHistory...)
	dst.TargetHistory = append(t[:0], s.TargetHistory...)
	dst.TimeHistory = append(c[:0], s.TimeHistory...)
}

// freshBit marks the middle slot as not yet taken by the reader.
const freshBit = 1 << 2

// tripleBuffer hands complete snapshots from the real-time producer to
// readers without either side waiting on the other. Each of the three slots
// is owned by exactly one side at a time: the producer writes its back slot
// and swaps it with the middle one; a reader swaps a fresh middle slot with
// its front slot.
type tripleBuffer struct {
	slots [3]Snapshot

	middle atomic.Uint32 // slot index | freshBit

	backIdx int // producer only

	mu       sync.Mutex // serialises readers
	frontIdx int
}

func newTripleBuffer(history int) *tripleBuffer {
	b := &tripleBuffer{backIdx: 0, frontIdx: 2}
	b.middle.Store(1)
	for i := range b.slots {
		b.slots[i].PitchHistory = make([]float64, 0, history)
		b.slots[i].TargetHistory = make([]float64, 0, history)
		b.slots[i].TimeHistory = make([]float64, 0, history)
	}
	return b
}

// back returns the producer's slot.
func (b *tripleBuffer) back() *Snapshot { return &b.slots[b.backIdx] }

// publish makes the back slot the newest complete snapshot.
func (b *tripleBuffer) publish() {
	prev := b.middle.Swap(uint32(b.backIdx) | freshBit)
	b.backIdx = int(prev &^ freshBit)
}

// read copies the newest complete snapshot into dst.
func (b *tripleBuffer) read(dst *Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.middle.Load()&freshBit != 0 {
		prev := b.middle.Swap(uint32(b.frontIdx))
		b.frontIdx = int(prev &^ freshBit)
	}
	b.slots[b.frontIdx].copyTo(dst)
}
