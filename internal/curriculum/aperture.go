package curriculum

import "math"

// ApertureSchedule grows the stop radius linearly with progress. The growth
// rate is scaled by Overshoot, so with the default 1.1 the final radius is
// reached at ~91% of the run and held from then on.
type ApertureSchedule struct {
	Start      float64
	Final      float64
	Iterations int
	Overshoot  float64
}

// NewApertureSchedule starts at fraction·final.
func NewApertureSchedule(final, fraction, overshoot float64, iterations int) ApertureSchedule {
	return ApertureSchedule{
		Start:      final * fraction,
		Final:      final,
		Iterations: iterations,
		Overshoot:  overshoot,
	}
}

// At returns the aperture radius for iteration i.
func (s ApertureSchedule) At(i int) float64 {
	p := 0.0
	if s.Iterations > 0 {
		p = float64(i) / float64(s.Iterations)
	}
	return math.Min(s.Start+(s.Final-s.Start)*p*s.Overshoot, s.Final)
}
