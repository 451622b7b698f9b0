package geolens

import (
	"context"
	"log/slog"
	"math"
	"math/rand"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/stat"

	"github.com/cwbudde/autolens/internal/optics"
)

// refocusRange is the sensor search window as a fraction of the back focal
// distance.
const refocusRange = 0.1

// CorrectShape pulls the lens back into its valid region: curvatures are
// clamped so the conic stays defined over the clear aperture, gaps are
// widened to their minimum by shifting everything behind them, and the
// sensor is refocused for the smallest on-axis spot.
func (l *Lens) CorrectShape(ctx context.Context) error {
	for _, s := range l.Surfaces {
		if s.Type == Aperture || s.R == 0 || 1+s.K <= 0 {
			continue
		}
		if arg := (1 + s.K) * s.C * s.C * s.R * s.R; arg > maxConicArg {
			s.C = math.Copysign(math.Sqrt(maxConicArg/((1+s.K)*s.R*s.R)), s.C)
		}
	}

	for i := 0; i < len(l.Surfaces)-1; i++ {
		s, next := l.Surfaces[i], l.Surfaces[i+1]
		gap := l.minGap(i)
		r := math.Min(s.R, next.R)
		center := next.D - s.D
		edge := (next.D + next.Sag(r)) - (s.D + s.Sag(r))
		if shift := math.Max(gap-center, gap-edge); shift > 0 {
			l.shiftFrom(i+1, shift)
		}
	}
	if back := l.DSensor - l.lastD(); back < l.Flange {
		l.DSensor += l.Flange - back
	}

	return l.refocus(ctx)
}

// shiftFrom moves surface i, everything behind it and the sensor by dz.
func (l *Lens) shiftFrom(i int, dz float64) {
	for _, s := range l.Surfaces[i:] {
		s.D += dz
	}
	l.DSensor += dz
}

// axialBundle traces a fixed square grid of on-axis rays at the green line
// through the entrance pupil.
func (l *Lens) axialBundle(ctx context.Context, depth float64) (*optics.Batch, error) {
	const side = 11
	iors := l.iors(optics.WaveGreen)
	pupil := l.entrancePupil(depth, iors)
	z0 := l.Surfaces[0].D
	origin := r3.Vector{Z: depth}

	var dirs []r3.Vector
	for a := 0; a < side; a++ {
		for b := 0; b < side; b++ {
			x := pupil * (-1 + 2*float64(a)/(side-1))
			y := pupil * (-1 + 2*float64(b)/(side-1))
			if x*x+y*y > pupil*pupil {
				continue
			}
			dirs = append(dirs, r3.Vector{X: x, Y: y, Z: z0}.Sub(origin).Normalize())
		}
	}
	batch := optics.NewBatch(1, len(dirs), optics.WaveGreen)
	for i, d := range dirs {
		batch.O[i] = origin
		batch.D[i] = d
	}
	return l.Trace(ctx, batch)
}

// spotRMS returns the RMS distance of the valid points from center, or +Inf
// when no point is valid.
func spotRMS(xy []r2.Point, valid []float64, center r2.Point) float64 {
	sq := make([]float64, len(xy))
	var n float64
	for i, p := range xy {
		d := p.Sub(center)
		sq[i] = d.Dot(d)
		n += valid[i]
	}
	if n == 0 {
		return math.Inf(1)
	}
	return math.Sqrt(stat.Mean(sq, valid))
}

// refocus searches for the sensor position with the smallest on-axis spot.
func (l *Lens) refocus(ctx context.Context) error {
	bfd := l.DSensor - l.lastD()
	if bfd <= 0 || l.searcher == nil {
		return nil
	}
	traced, err := l.axialBundle(ctx, optics.DefaultDepth)
	if err != nil {
		return err
	}
	if traced.ValidCount(0) == 0 {
		slog.Debug("Refocus skipped, no on-axis rays reach the sensor")
		return nil
	}

	eval := func(z float64) float64 {
		return spotRMS(traced.ProjectTo(z), traced.Valid, r2.Point{})
	}
	lo := math.Max(l.DSensor-refocusRange*bfd, l.lastD()+l.Flange)
	hi := l.DSensor + refocusRange*bfd
	if hi <= lo {
		return nil
	}

	before := eval(l.DSensor)
	best, cost := l.searcher.Run(func(x []float64) float64 {
		return eval(x[0])
	}, []float64{lo}, []float64{hi}, 1)
	if cost < before {
		slog.Debug("Sensor refocused", "from", l.DSensor, "to", best[0], "rms", cost)
		l.DSensor = best[0]
	}
	return nil
}

// MatchMaterials replaces every glass with its nearest catalog entry. The
// material is updated in place so registered parameters stay bound.
func (l *Lens) MatchMaterials() error {
	for _, s := range l.Surfaces {
		if s.Type == Aperture || s.Mat2.IsAir() {
			continue
		}
		*s.Mat2 = s.Mat2.Nearest()
	}
	return nil
}

// PruneSurfaces shrinks every clear radius to the footprint of the full-field
// bundle at the green line, enlarged by expand. The stop is left unchanged.
func (l *Lens) PruneSurfaces(ctx context.Context, expand float64) error {
	iors := l.iors(optics.WaveGreen)
	pupil := l.entrancePupil(optics.DefaultDepth, iors)
	rng := rand.New(rand.NewSource(analysisSeed))

	footprint := make([]float64, len(l.Surfaces))
	for _, f := range analysisFields {
		if err := ctx.Err(); err != nil {
			return err
		}
		b := optics.NewBatch(1, analysisSPP, optics.WaveGreen)
		l.fillCell(b, 0, l.objectPoint(f, f, optics.DefaultDepth), pupil, iors, rng)
		for i := range b.O {
			o, d := b.O[i], b.D[i]
			for k, s := range l.Surfaces {
				p, ok := s.intersect(o, d, true)
				if !ok {
					break
				}
				footprint[k] = math.Max(footprint[k], math.Hypot(p.X, p.Y))
				if s.Type != Aperture {
					if d, ok = refract(d, s.normal(p), iors[k], iors[k+1]); !ok {
						break
					}
				}
				o = p
			}
		}
	}

	for k, s := range l.Surfaces {
		if s.Type == Aperture || footprint[k] == 0 {
			continue
		}
		s.R = footprint[k] * (1 + expand)
	}
	return nil
}
