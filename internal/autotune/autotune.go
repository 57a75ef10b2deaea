// Package autotune computes and applies the pitch-correction resample ratio
// that pulls a sung frame toward its melody target.
//
// Correction is a nearest-neighbour time-domain index shift: output sample i
// is taken from input sample round(i·ratio). It is intentionally simple and
// degrades audibly as the ratio moves away from 1.
package autotune

import (
	"math"

	"github.com/MrWong99/vocalbooth/pkg/provider/pitch"
)

const (
	// MinConfidence is the detector confidence a reading must exceed before
	// correction is applied.
	MinConfidence = 0.5

	// MinRatio bounds degenerate ratios (zero, negative, NaN) so the index
	// mapping stays defined.
	MinRatio = 1e-3
)

// Params are the live-tunable correction settings.
type Params struct {
	// Strength interpolates between no correction (0) and full correction
	// (1). Values above 1 over-correct and are not clamped.
	Strength float64

	// ShiftSemitones transposes the corrected voice.
	ShiftSemitones float64
}

// Ratio returns the final resample ratio for one frame and whether
// correction applies at all. When ok is false the caller must pass the frame
// through unchanged.
func Ratio(est pitch.Estimate, target float64, p Params) (ratio float64, ok bool) {
	if est.Confidence <= MinConfidence || est.Frequency <= 0 || target <= 0 {
		return 1, false
	}
	base := target / est.Frequency
	blended := 1 + (base-1)*p.Strength
	ratio = blended * math.Exp2(p.ShiftSemitones/12)
	if !(ratio > MinRatio) || math.IsInf(ratio, 0) {
		ratio = MinRatio
	}
	return ratio, true
}

// Correct writes the corrected frame into dst and reports whether correction
// was applied. dst and src must have the same length and must not overlap.
// When correction does not apply, dst receives an exact copy of src.
func Correct(dst, src []float64, est pitch.Estimate, target float64, p Params) bool {
	ratio, ok := Ratio(est, target, p)
	if !ok {
		copy(dst, src)
		return false
	}
	Resample(dst, src, ratio)
	return true
}

// Resample performs the nearest-index shift dst[i] = src[round(i·ratio)],
// writing 0 where the source index falls outside the frame.
func Resample(dst, src []float64, ratio float64) {
	n := len(src)
	for i := range dst {
		j := math.Round(float64(i) * ratio)
		if j >= 0 && j < float64(n) {
			dst[i] = src[int(j)]
		} else {
			dst[i] = 0
		}
	}
}
