// Package yin implements [pitch.Detector] with the YIN algorithm
// (de Cheveigné & Kawahara, 2002).
//
// The detector keeps a sliding window of the most recent WindowSize samples.
// Every Detect call shifts the new hop into the window and runs the
// cumulative-mean-normalised difference function over lags that correspond
// to the configured frequency range. All buffers are allocated in [New].
package yin

import (
	"fmt"
	"math"

	"github.com/MrWong99/vocalbooth/pkg/provider/pitch"
)

// Compile-time interface assertion.
var _ pitch.Detector = (*Detector)(nil)

const (
	defaultWindow    = 2048
	defaultThreshold = 0.15
	defaultMinFreq   = 60.0
	defaultMaxFreq   = 1500.0

	// silenceEnergy is the window energy below which the detector reports
	// an unvoiced frame without running the difference function.
	silenceEnergy = 1e-10
)

// Detector is a YIN pitch detector. It is not safe for concurrent use.
type Detector struct {
	sampleRate float64
	hop        int
	threshold  float64
	minTau     int
	maxTau     int

	window []float64 // sliding analysis window, oldest sample first
	diff   []float64 // difference / CMND buffer indexed by lag
}

// New validates cfg, applies defaults and allocates the detector's buffers.
func New(cfg pitch.Config) (*Detector, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("yin: sample rate must be positive, got %d", cfg.SampleRate)
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = defaultWindow
	}
	if cfg.HopSize <= 0 || cfg.HopSize > cfg.WindowSize {
		return nil, fmt.Errorf("yin: hop size %d must be in (0, %d]", cfg.HopSize, cfg.WindowSize)
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = defaultThreshold
	}
	if cfg.MinFrequency <= 0 {
		cfg.MinFrequency = defaultMinFreq
	}
	if cfg.MaxFrequency <= 0 {
		cfg.MaxFrequency = defaultMaxFreq
	}
	if cfg.MinFrequency >= cfg.MaxFrequency {
		return nil, fmt.Errorf("yin: min frequency %.1f must be below max frequency %.1f", cfg.MinFrequency, cfg.MaxFrequency)
	}

	sr := float64(cfg.SampleRate)
	half := cfg.WindowSize / 2
	minTau := max(2, int(sr/cfg.MaxFrequency))
	maxTau := min(half-1, int(math.Ceil(sr/cfg.MinFrequency)))
	if minTau >= maxTau {
		return nil, fmt.Errorf("yin: window %d too short for frequency range [%.1f, %.1f] Hz",
			cfg.WindowSize, cfg.MinFrequency, cfg.MaxFrequency)
	}

	return &Detector{
		sampleRate: sr,
		hop:        cfg.HopSize,
		threshold:  cfg.Threshold,
		minTau:     minTau,
		maxTau:     maxTau,
		window:     make([]float64, cfg.WindowSize),
		diff:       make([]float64, maxTau+2),
	}, nil
}

// Detect implements [pitch.Detector].
func (d *Detector) Detect(frame []float64) (pitch.Estimate, error) {
	n := len(frame)
	if n > d.hop {
		return pitch.Estimate{}, pitch.ErrFrameTooLarge
	}
	if n > 0 {
		copy(d.window, d.window[n:])
		copy(d.window[len(d.window)-n:], frame)
	}
	return d.analyse(), nil
}

// Reset implements [pitch.Detector].
func (d *Detector) Reset() {
	clear(d.window)
}

// analyse runs YIN over the current window.
func (d *Detector) analyse() pitch.Estimate {
	x := d.window
	integ := len(x) / 2

	var energy float64
	for _, v := range x[:integ] {
		energy += v * v
	}
	if energy < silenceEnergy {
		return pitch.Estimate{}
	}

	// Step 2: difference function for every lag up to maxTau+1 (the extra
	// lag feeds parabolic interpolation at the edge).
	last := min(d.maxTau+1, len(x)-integ)
	d.diff[0] = 0
	for tau := 1; tau <= last; tau++ {
		var sum float64
		for j := range integ {
			delta := x[j] - x[j+tau]
			sum += delta * delta
		}
		d.diff[tau] = sum
	}

	// Step 3: cumulative mean normalised difference.
	d.diff[0] = 1
	var running float64
	for tau := 1; tau <= last; tau++ {
		running += d.diff[tau]
		if running == 0 {
			d.diff[tau] = 1
			continue
		}
		d.diff[tau] *= float64(tau) / running
	}

	// Step 4: absolute threshold, falling back to the global minimum.
	best := -1
	for tau := d.minTau; tau <= d.maxTau; tau++ {
		if d.diff[tau] < d.threshold {
			for tau+1 <= d.maxTau && d.diff[tau+1] < d.diff[tau] {
				tau++
			}
			best = tau
			break
		}
	}
	if best < 0 {
		best = d.minTau
		for tau := d.minTau + 1; tau <= d.maxTau; tau++ {
			if d.diff[tau] < d.diff[best] {
				best = tau
			}
		}
	}

	// Step 5: parabolic interpolation around the chosen lag.
	period := float64(best)
	if best > 0 && best < last {
		a, b, c := d.diff[best-1], d.diff[best], d.diff[best+1]
		if den := a + c - 2*b; den != 0 {
			shift := (a - c) / (2 * den)
			if math.Abs(shift) < 1 {
				period += shift
			}
		}
	}

	confidence := 1 - d.diff[best]
	confidence = max(0, min(1, confidence))
	if period <= 0 {
		return pitch.Estimate{}
	}
	return pitch.Estimate{
		Frequency:  d.sampleRate / period,
		Confidence: confidence,
	}
}
