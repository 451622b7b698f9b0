package geolens

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"

	"github.com/cwbudde/autolens/internal/optics"
)

// CalcScalePinhole returns the object-to-sensor magnification of an ideal
// pinhole that maps the full field at depth onto the sensor diagonal.
func (l *Lens) CalcScalePinhole(depth float64) float64 {
	return math.Abs(depth) * math.Tan(l.HFOV) / l.RSensor
}

// fieldGrid returns n normalized field coordinates in [-1, 1]. Importance
// sampling pushes them toward the edge of the field, where aberrations grow.
func fieldGrid(n int, importance bool) []float64 {
	if n == 1 {
		return []float64{0}
	}
	x := make([]float64, n)
	for i := range x {
		v := -1 + 2*float64(i)/float64(n-1)
		if importance {
			v = math.Copysign(math.Sqrt(math.Abs(v)), v)
		}
		x[i] = v
	}
	return x
}

// objectPoint maps normalized field coordinates to a point at depth. The
// grid corner (1, 1) sits on the full diagonal field.
func (l *Lens) objectPoint(u, v, depth float64) r3.Vector {
	h := math.Abs(depth) * math.Tan(l.HFOV) / math.Sqrt2
	return r3.Vector{X: u * h, Y: v * h, Z: depth}
}

// SamplePointSource draws NumRays rays from each of NumGrid×NumGrid object
// points, aimed uniformly over the entrance pupil around the chief ray.
func (l *Lens) SamplePointSource(ctx context.Context, spec optics.SampleSpec) (*optics.Batch, error) {
	if spec.NumGrid <= 0 || spec.NumRays <= 0 {
		return nil, fmt.Errorf("invalid sample size: grid=%d rays=%d", spec.NumGrid, spec.NumRays)
	}
	iors := l.iors(spec.Wavelength)
	pupil := l.entrancePupil(spec.Depth, iors)
	grid := fieldGrid(spec.NumGrid, spec.ImportanceSampling)

	b := optics.NewBatch(spec.NumGrid, spec.NumRays, spec.Wavelength)
	for row := 0; row < spec.NumGrid; row++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for col := 0; col < spec.NumGrid; col++ {
			c := row*spec.NumGrid + col
			p := l.objectPoint(grid[col], grid[row], spec.Depth)
			l.fillCell(b, c, p, pupil, iors, l.rng)
		}
	}
	return b, nil
}

// fillCell aims every sample of cell c from p at a uniform point of a disk
// around the chief ray on the first vertex plane. The disk is slightly
// overfilled so the stop, not the sampler, limits the bundle.
func (l *Lens) fillCell(b *optics.Batch, c int, p r3.Vector, pupil float64, iors []float64, rng *rand.Rand) {
	aim, ok := l.chiefAim(p, iors)
	if !ok {
		aim = r2.Point{}
	}
	z0 := l.Surfaces[0].D
	for s := 0; s < b.SPP; s++ {
		i := b.Index(c, s)
		rr := 1.05 * pupil * math.Sqrt(rng.Float64())
		th := 2 * math.Pi * rng.Float64()
		target := r3.Vector{X: aim.X + rr*math.Cos(th), Y: aim.Y + rr*math.Sin(th), Z: z0}
		b.O[i] = p
		b.D[i] = target.Sub(p).Normalize()
	}
}

// stopHeight traces a ray from p towards (x, y) on the first vertex plane and
// returns where it crosses the stop plane.
func (l *Lens) stopHeight(p r3.Vector, x, y float64, iors []float64) (r2.Point, bool) {
	target := r3.Vector{X: x, Y: y, Z: l.Surfaces[0].D}
	o, _, ok := l.traceRay(p, target.Sub(p).Normalize(), iors, l.AperIdx+1, false)
	if !ok {
		return r2.Point{}, false
	}
	return r2.Point{X: o.X, Y: o.Y}, true
}

// entrancePupil estimates the entrance pupil radius: the largest height on
// the first vertex plane whose on-axis ray still passes the stop.
func (l *Lens) entrancePupil(depth float64, iors []float64) float64 {
	p := r3.Vector{Z: depth}
	stop := l.ApertureRadius()
	lo, hi := 0.0, l.Surfaces[0].R
	if l.AperIdx == 0 {
		return stop
	}
	for k := 0; k < 40; k++ {
		mid := (lo + hi) / 2
		h, ok := l.stopHeight(p, mid, 0, iors)
		if ok && math.Abs(h.X) <= stop {
			lo = mid
		} else {
			hi = mid
		}
	}
	if lo == 0 {
		return stop
	}
	return lo
}

// chiefAim finds the point on the first vertex plane that the chief ray
// from p passes through, i.e. the ray crossing the stop center.
func (l *Lens) chiefAim(p r3.Vector, iors []float64) (r2.Point, bool) {
	rho := math.Hypot(p.X, p.Y)
	if rho < 1e-12 || l.AperIdx == 0 {
		return r2.Point{}, true
	}
	ux, uy := p.X/rho, p.Y/rho

	// Signed stop height along the field direction, secant solve for zero
	f := func(h float64) (float64, bool) {
		s, ok := l.stopHeight(p, h*ux, h*uy, iors)
		return s.X*ux + s.Y*uy, ok
	}
	h0, h1 := 0.0, 0.1*l.Surfaces[0].R
	f0, ok0 := f(h0)
	f1, ok1 := f(h1)
	if !ok0 || !ok1 {
		return r2.Point{}, false
	}
	for k := 0; k < 30; k++ {
		if math.Abs(f1) < 1e-10 {
			break
		}
		if f1 == f0 {
			return r2.Point{}, false
		}
		h2 := h1 - f1*(h1-h0)/(f1-f0)
		f2, ok := f(h2)
		if !ok {
			return r2.Point{}, false
		}
		h0, f0 = h1, f1
		h1, f1 = h2, f2
	}
	return r2.Point{X: h1 * ux, Y: h1 * uy}, true
}

// PSFCenter returns the PSF center of each object point in PSF image
// coordinates (sensor coordinates mirrored through the axis). Chief rays
// that cannot be traced fall back to the pinhole projection.
func (l *Lens) PSFCenter(ctx context.Context, points []r3.Vector, wavelength float64, method optics.CenterMethod) ([]r2.Point, error) {
	out := make([]r2.Point, len(points))
	switch method {
	case optics.Pinhole:
		for i, p := range points {
			out[i] = l.pinholeCenter(p)
		}
	case optics.ChiefRay:
		iors := l.iors(wavelength)
		for i, p := range points {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			xy, ok := l.chiefSensor(p, iors)
			if !ok {
				out[i] = l.pinholeCenter(p)
				continue
			}
			out[i] = xy.Mul(-1)
		}
	default:
		return nil, fmt.Errorf("%w: %s", optics.ErrUnknownCenterMethod, method)
	}
	return out, nil
}

// pinholeCenter returns the pinhole image of p in PSF coordinates.
func (l *Lens) pinholeCenter(p r3.Vector) r2.Point {
	scale := l.CalcScalePinhole(p.Z)
	// The sensor image is inverted; PSF coordinates undo that
	return r2.Point{X: p.X / scale, Y: p.Y / scale}
}

// chiefSensor traces the chief ray of p to the sensor.
func (l *Lens) chiefSensor(p r3.Vector, iors []float64) (r2.Point, bool) {
	aim, ok := l.chiefAim(p, iors)
	if !ok {
		return r2.Point{}, false
	}
	target := r3.Vector{X: aim.X, Y: aim.Y, Z: l.Surfaces[0].D}
	o, d, ok := l.traceRay(p, target.Sub(p).Normalize(), iors, len(l.Surfaces), false)
	if !ok || d.Z <= 0 {
		return r2.Point{}, false
	}
	t := (l.DSensor - o.Z) / d.Z
	return r2.Point{X: o.X + t*d.X, Y: o.Y + t*d.Y}, true
}
