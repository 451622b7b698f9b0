package opt

import "math"

// LRSetter receives the schedule multiplier.
type LRSetter interface {
	SetLRScale(scale float64)
}

// WarmupCosine ramps the learning rate linearly from zero over the warmup
// steps, then decays it along half a cosine to zero at total steps.
//
// The multiplier for step 0 is applied at construction, so with a non-zero
// warmup the very first optimizer step runs at rate zero.
type WarmupCosine struct {
	target LRSetter
	warmup int
	total  int
	step   int
}

// NewWarmupCosine creates the schedule and applies the step-0 multiplier to target.
func NewWarmupCosine(target LRSetter, warmup, total int) *WarmupCosine {
	s := &WarmupCosine{
		target: target,
		warmup: warmup,
		total:  total,
	}
	target.SetLRScale(s.Factor())
	return s
}

// Factor returns the multiplier for the current step.
func (s *WarmupCosine) Factor() float64 {
	return warmupCosineFactor(s.step, s.warmup, s.total)
}

// Step advances the schedule by one step and pushes the new multiplier.
func (s *WarmupCosine) Step() {
	s.step++
	s.target.SetLRScale(s.Factor())
}

// Current returns the number of schedule steps taken.
func (s *WarmupCosine) Current() int {
	return s.step
}

func warmupCosineFactor(step, warmup, total int) float64 {
	if step < warmup {
		return float64(step) / float64(max(1, warmup))
	}
	progress := float64(step-warmup) / float64(max(1, total-warmup))
	return math.Max(0, 0.5*(1+math.Cos(math.Pi*progress)))
}
