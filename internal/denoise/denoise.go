// Package denoise implements the adaptive noise-floor tracker, voice activity
// detector and noise gate applied to the corrected voice before mixing.
//
// The suppressor keeps a 1000-frame history of frame RMS values and tracks
// the noise floor as a slow moving average of its median, while a faster
// envelope follows the signal. Their ratio drives a sigmoid VAD probability.
// A grace period holds the gate open for a short time after voice activity
// ends so word endings are not clipped.
//
// Every frame goes through a first-order 80 Hz high-pass filter. Frames that
// are neither voiced nor within the grace period are additionally hard-gated
// and attenuated.
//
// A [Suppressor] is owned by the real-time thread and is not safe for
// concurrent use. All buffers are allocated in [New].
package denoise

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/cwbudde/algo-dsp/dsp/filter/biquad"
	"github.com/cwbudde/algo-dsp/dsp/filter/design/pass"
	dsptime "github.com/cwbudde/algo-dsp/stats/time"
)

// Noise floor bounds. The tracked noise level never leaves this range and
// starts at MinNoise.
const (
	MinNoise = 0.001
	MaxNoise = 0.5
)

// Config holds the suppressor tuning. [DefaultConfig] returns the defaults
// listed on each field. Zero values of the tuning fields are honoured as
// given; only HistorySize and HighPassHz fall back to their defaults when
// unset.
type Config struct {
	// SampleRate in Hz. Required.
	SampleRate int

	// HistorySize is the number of frame RMS values in the median window.
	// Default: 1000.
	HistorySize int

	// VADThreshold is the probability above which a frame is voiced.
	// Default: 0.3.
	VADThreshold float64

	// GracePeriodMs keeps the gate open after voice activity ends. It is
	// counted down in whole milliseconds per frame. Default: 200.
	GracePeriodMs int

	// GateThreshold is the absolute sample level below which samples are
	// zeroed while gated. Default: 0.01.
	GateThreshold float64

	// ReductionStrength attenuates gated frames by (1 - strength), in
	// [0, 1]. Default: 0.6.
	ReductionStrength float64

	// HighPassHz is the cutoff of the always-on high-pass. Default: 80.
	HighPassHz float64
}

// DefaultConfig returns the default tuning for sampleRate.
func DefaultConfig(sampleRate int) Config {
	return Config{
		SampleRate:        sampleRate,
		HistorySize:       1000,
		VADThreshold:      0.3,
		GracePeriodMs:     200,
		GateThreshold:     0.01,
		ReductionStrength: 0.6,
		HighPassHz:        80,
	}
}

func (c *Config) validate() error {
	var errs []error
	if c.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("sample rate must be positive, got %d", c.SampleRate))
	}
	if c.VADThreshold < 0 || c.VADThreshold > 1 {
		errs = append(errs, fmt.Errorf("vad threshold %.3f out of range [0, 1]", c.VADThreshold))
	}
	if c.GracePeriodMs < 0 {
		errs = append(errs, fmt.Errorf("grace period %d ms must not be negative", c.GracePeriodMs))
	}
	if c.GateThreshold < 0 {
		errs = append(errs, fmt.Errorf("gate threshold %.3f must not be negative", c.GateThreshold))
	}
	if c.ReductionStrength < 0 || c.ReductionStrength > 1 {
		errs = append(errs, fmt.Errorf("reduction strength %.2f out of range [0, 1]", c.ReductionStrength))
	}
	if c.SampleRate > 0 && c.HighPassHz >= float64(c.SampleRate)/2 {
		errs = append(errs, fmt.Errorf("high-pass cutoff %.1f Hz must be below Nyquist", c.HighPassHz))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("denoise: %w", err)
	}
	return nil
}

// State is the externally observable suppressor state after a frame.
type State struct {
	NoiseLevel     float64
	SignalLevel    float64
	VADProbability float64
	Active         bool // VAD decision for the last frame
	InGrace        bool // gate held open after activity
	GraceRemaining int  // milliseconds
}

// VoiceActive reports the externally visible activity flag: voiced or still
// within the grace period.
func (s State) VoiceActive() bool { return s.Active || s.InGrace }

// Suppressor is the noise suppression / VAD state machine.
type Suppressor struct {
	cfg Config

	highPass *biquad.Chain

	history []float64 // RMS ring, zero-filled at start
	next    int       // ring write index
	sorted  []float64 // median scratch

	state State
}

// New validates cfg and returns a suppressor in its reset state.
func New(cfg Config) (*Suppressor, error) {
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 1000
	}
	if cfg.HighPassHz <= 0 {
		cfg.HighPassHz = 80
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	s := &Suppressor{
		cfg:      cfg,
		highPass: biquad.NewChain(pass.ButterworthHP(cfg.HighPassHz, 1, float64(cfg.SampleRate))),
		history:  make([]float64, cfg.HistorySize),
		sorted:   make([]float64, cfg.HistorySize),
	}
	s.Reset()
	return s, nil
}

// Config returns the effective configuration.
func (s *Suppressor) Config() Config { return s.cfg }

// State returns the state after the most recent frame.
func (s *Suppressor) State() State { return s.state }

// Reset restores the initial state: noise at [MinNoise], silent, empty
// history, cleared filter memory.
func (s *Suppressor) Reset() {
	clear(s.history)
	s.next = 0
	s.highPass.Reset()
	s.state = State{NoiseLevel: MinNoise}
}

// Process runs one frame in place and returns the updated state. An empty
// frame leaves the state untouched.
func (s *Suppressor) Process(frame []float64) State {
	n := len(frame)
	if n == 0 {
		return s.state
	}
	st := &s.state

	// 1. Frame energy into the history window.
	rms := dsptime.RMS(frame)
	s.history[s.next] = rms
	s.next = (s.next + 1) % len(s.history)

	// 2. Noise floor follows the median slowly.
	st.NoiseLevel = 0.95*st.NoiseLevel + 0.05*s.median()
	st.NoiseLevel = min(MaxNoise, max(MinNoise, st.NoiseLevel))

	// 3. Signal envelope reacts faster.
	st.SignalLevel = 0.9*st.SignalLevel + 0.1*rms

	// 4-5. VAD.
	st.VADProbability = vadProbability(st.SignalLevel, st.NoiseLevel)
	st.Active = st.VADProbability > s.cfg.VADThreshold

	// 6. Grace period hysteresis.
	switch {
	case st.Active:
		st.GraceRemaining = s.cfg.GracePeriodMs
		st.InGrace = true
	case st.InGrace:
		st.GraceRemaining -= s.frameMs(n)
		if st.GraceRemaining <= 0 {
			st.GraceRemaining = 0
			st.InGrace = false
		}
	}

	// 7. Always high-pass; gate and attenuate only when silent.
	s.highPass.ProcessBlock(frame)
	if !st.Active && !st.InGrace {
		gain := 1 - s.cfg.ReductionStrength
		for i, v := range frame {
			if math.Abs(v) < s.cfg.GateThreshold {
				frame[i] = 0
				continue
			}
			frame[i] = v * gain
		}
	}
	return *st
}

// frameMs is the frame duration in whole milliseconds, at least 1 so the
// grace period always ends.
func (s *Suppressor) frameMs(n int) int {
	return max(1, n*1000/s.cfg.SampleRate)
}

// median returns the median of the RMS history using the preallocated
// scratch slice. For even sizes it returns the upper median.
func (s *Suppressor) median() float64 {
	copy(s.sorted, s.history)
	slices.Sort(s.sorted)
	return s.sorted[len(s.sorted)/2]
}

// vadProbability maps the signal-to-noise ratio onto [0, 1] with a sigmoid
// centred at SNR 2. Near-zero noise makes SNR meaningless, so voice is assumed.
func vadProbability(signal, noise float64) float64 {
	if noise < MinNoise {
		return 1
	}
	snr := signal / noise
	p := 1 / (1 + math.Exp(-5*(snr-2)))
	return min(1, max(0, p))
}
