// Package track loads the backing instrumental for a session: a WAVE file
// decoded, averaged to mono and resampled to the session rate.
package track

import (
	"fmt"

	"github.com/cwbudde/algo-dsp/dsp/resample"

	"github.com/MrWong99/vocalbooth/internal/wav"
)

// Load reads the WAVE file at path and returns mono samples at sampleRate.
func Load(path string, sampleRate int) ([]float64, error) {
	a, err := wav.Read(path)
	if err != nil {
		return nil, fmt.Errorf("track: load %s: %w", path, err)
	}
	samples, err := Convert(a.Mono(), a.SampleRate, sampleRate)
	if err != nil {
		return nil, fmt.Errorf("track: load %s: %w", path, err)
	}
	return samples, nil
}

// Convert resamples mono samples from one rate to another. Equal rates return
// the input unchanged.
func Convert(samples []float64, from, to int) ([]float64, error) {
	if from <= 0 || to <= 0 {
		return nil, fmt.Errorf("invalid sample rates %d -> %d", from, to)
	}
	if from == to || len(samples) == 0 {
		return samples, nil
	}
	r, err := resample.NewForRates(float64(from), float64(to), resample.WithQuality(resample.QualityBalanced))
	if err != nil {
		return nil, fmt.Errorf("resample %d -> %d: %w", from, to, err)
	}
	return r.Process(samples), nil
}
