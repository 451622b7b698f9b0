package geolens

import "math"

// Geometric limits enforced by LossReg and CorrectShape, mm.
const (
	minGlassGap = 0.3
	minAirGap   = 0.1
	maxSlope    = 1.0
	maxConicArg = 0.95
)

func relu(x float64) float64 {
	return math.Max(0, x)
}

// minGap returns the minimum axial spacing behind surface i.
func (l *Lens) minGap(i int) float64 {
	if l.medium(i + 1).IsAir() {
		return minAirGap
	}
	return minGlassGap
}

// LossReg penalizes shapes that cannot be manufactured or traced: thin
// center or edge gaps, steep or undefined surface edges, and a sensor closer
// to the last surface than the flange distance.
func (l *Lens) LossReg() float64 {
	var loss float64
	n := len(l.Surfaces)
	for i := 0; i < n-1; i++ {
		s, next := l.Surfaces[i], l.Surfaces[i+1]
		gap := l.minGap(i)
		loss += relu(gap - (next.D - s.D))

		r := math.Min(s.R, next.R)
		edge := (next.D + next.Sag(r)) - (s.D + s.Sag(r))
		loss += relu(gap - edge)
	}

	for _, s := range l.Surfaces {
		if s.Type == Aperture {
			continue
		}
		arg := (1 + s.K) * s.C * s.C * s.R * s.R
		loss += relu(arg - maxConicArg)
		if arg < maxConicArg {
			loss += relu(math.Abs(s.Slope(s.R)) - maxSlope)
		}
	}

	loss += relu(l.Flange - (l.DSensor - l.lastD()))
	return loss
}
