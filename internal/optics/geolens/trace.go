package geolens

import (
	"context"
	"runtime"

	"github.com/golang/geo/r3"
	"golang.org/x/sync/errgroup"

	"github.com/cwbudde/autolens/internal/optics"
)

// Trace propagates every valid ray of b through all surfaces. Rays that miss
// a surface, fall outside a clear aperture or are totally reflected are
// marked invalid and keep their last position. b is modified in place.
func (l *Lens) Trace(ctx context.Context, b *optics.Batch) (*optics.Batch, error) {
	iors := l.iors(b.Wavelength)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for c := 0; c < b.Cells(); c++ {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			for s := 0; s < b.SPP; s++ {
				i := b.Index(c, s)
				if b.Valid[i] == 0 {
					continue
				}
				o, d, ok := l.traceRay(b.O[i], b.D[i], iors, len(l.Surfaces), true)
				b.O[i], b.D[i] = o, d
				if !ok {
					b.Valid[i] = 0
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return b, nil
}

// iors returns the index after each surface at wavelength wv, with the
// ambient index at position 0 and surface i's index at i+1.
func (l *Lens) iors(wv float64) []float64 {
	n := make([]float64, len(l.Surfaces)+1)
	n[0] = 1
	for i, s := range l.Surfaces {
		if s.Type == Aperture {
			n[i+1] = n[i]
			continue
		}
		n[i+1] = s.Mat2.IOR(wv)
	}
	return n
}

// traceRay traces a single ray through the first upTo surfaces.
func (l *Lens) traceRay(o, d r3.Vector, iors []float64, upTo int, clip bool) (r3.Vector, r3.Vector, bool) {
	for i := 0; i < upTo; i++ {
		s := l.Surfaces[i]
		p, ok := s.intersect(o, d, clip)
		if !ok {
			return o, d, false
		}
		o = p
		if s.Type == Aperture {
			continue
		}
		nd, ok := refract(d, s.normal(p), iors[i], iors[i+1])
		if !ok {
			return o, d, false
		}
		d = nd
	}
	return o, d, true
}
