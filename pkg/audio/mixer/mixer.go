// Package mixer combines the processed voice with the instrumental backing
// track into the single output frame sent to playback and recording.
//
// A [Mixer] applies per-source volumes, an optional chorus tap, an optional
// reverb on the voice and a final hard clamp to [-1, 1]. It keeps reverb
// state across frames and is owned by the real-time thread: it is not safe
// for concurrent use and performs no allocation once its scratch buffer has
// grown to the frame size.
package mixer

import (
	"math"

	"github.com/cwbudde/algo-dsp/dsp/effects"
)

const (
	// DefaultChorusRate is the chorus LFO frequency in Hz.
	DefaultChorusRate = 0.5

	// DefaultChorusMix is the gain of the delayed chorus tap.
	DefaultChorusMix = 0.3

	// DefaultRoomSize is the reverb comb feedback.
	DefaultRoomSize = 0.84

	// DefaultDamp is the reverb damping.
	DefaultDamp = 0.2
)

// Params are the per-frame mix settings, taken from the current effect
// snapshot.
type Params struct {
	VoiceVolume      float64
	InstrumentVolume float64

	Chorus      bool
	ChorusDepth float64 // samples

	Reverb        bool
	ReverbWetness float64 // [0, 1]
}

// Option configures a [Mixer] during construction.
type Option func(*Mixer)

// WithChorus overrides the chorus LFO rate (Hz) and tap gain.
func WithChorus(rate, mix float64) Option {
	return func(m *Mixer) {
		m.chorusRate = rate
		m.chorusMix = mix
	}
}

// WithRoom sets the reverb room size and damping.
func WithRoom(roomSize, damp float64) Option {
	return func(m *Mixer) {
		m.reverb.SetRoomSize(roomSize)
		m.reverb.SetDamp(damp)
	}
}

// Mixer produces output frames. Create one with [New].
type Mixer struct {
	chorusRate float64
	chorusMix  float64

	reverb   *effects.Reverb
	reverbOn bool

	voice []float64 // scratch: voice after reverb
}

// New returns a mixer with scratch space for frames of up to frameSize
// samples.
func New(frameSize int, opts ...Option) *Mixer {
	m := &Mixer{
		chorusRate: DefaultChorusRate,
		chorusMix:  DefaultChorusMix,
		reverb:     effects.NewReverb(),
		voice:      make([]float64, max(frameSize, 0)),
	}
	m.reverb.SetRoomSize(DefaultRoomSize)
	m.reverb.SetDamp(DefaultDamp)
	for _, o := range opts {
		o(m)
	}
	return m
}

// Reset clears the reverb tail.
func (m *Mixer) Reset() {
	m.reverb.Reset()
	m.reverbOn = false
}

// Mix writes len(voice) output samples into dst. Instrumental samples beyond
// len(inst) count as silence. clock is the playback time in seconds and
// drives the chorus LFO. dst may alias inst but not voice.
//
// It reports how many samples were clamped.
func (m *Mixer) Mix(dst, voice, inst []float64, clock float64, p Params) int {
	n := min(len(dst), len(voice))
	if n == 0 {
		return 0
	}
	if cap(m.voice) < n {
		m.voice = make([]float64, n)
	}
	v := m.voice[:n]
	copy(v, voice[:n])

	if p.Reverb {
		m.reverb.SetWet(p.ReverbWetness)
		m.reverb.SetDry(1 - p.ReverbWetness)
		m.reverb.ProcessInPlace(v)
		m.reverbOn = true
	} else if m.reverbOn {
		m.reverb.Reset()
		m.reverbOn = false
	}

	var lfo float64
	if p.Chorus {
		lfo = ChorusLFO(clock, m.chorusRate, p.ChorusDepth)
	}

	clamped := 0
	for i := range n {
		var in float64
		if i < len(inst) {
			in = inst[i]
		}
		out := p.InstrumentVolume*in + p.VoiceVolume*v[i]
		if p.Chorus {
			out += m.chorusMix * v[ChorusIndex(i, lfo, n)]
		}
		if out > 1 {
			out = 1
			clamped++
		} else if out < -1 {
			out = -1
			clamped++
		} else if math.IsNaN(out) {
			out = 0
		}
		dst[i] = out
	}
	return clamped
}

// ChorusLFO returns the chorus modulation in samples at clock seconds:
// sin(2π·rate·clock)·depth. Non-finite results yield 0.
func ChorusLFO(clock, rate, depth float64) float64 {
	lfo := math.Sin(2*math.Pi*rate*clock) * depth
	if math.IsNaN(lfo) || math.IsInf(lfo, 0) {
		return 0
	}
	return lfo
}

// ChorusIndex returns the tap read for output sample i of an n-sample frame.
// The fractional position i+lfo is truncated toward zero and wrapped into
// [0, n).
func ChorusIndex(i int, lfo float64, n int) int {
	if n <= 0 {
		return 0
	}
	idx := int(float64(i)+lfo) % n
	if idx < 0 {
		idx += n
	}
	return idx
}
