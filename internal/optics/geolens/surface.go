package geolens

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
)

// SurfaceType selects the sag model of a surface.
type SurfaceType string

const (
	Spheric  SurfaceType = "Spheric"
	Aspheric SurfaceType = "Aspheric"
	Aperture SurfaceType = "Aperture"
)

// ParseSurfaceType maps a lens-type token to a surface type.
func ParseSurfaceType(name string) (SurfaceType, error) {
	switch name {
	case "Spheric", "Spherical", "S":
		return Spheric, nil
	case "Aspheric", "Asphere", "A":
		return Aspheric, nil
	case "Aperture", "Stop":
		return Aperture, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownSurface, name)
	}
}

const (
	newtonIters = 12
	newtonTol   = 1e-9
)

// Surface is one rotationally symmetric interface. D is the vertex position
// on the optical axis, R the clear radius, and Mat2 the medium behind it.
type Surface struct {
	Type SurfaceType
	D    float64
	R    float64
	C    float64   // curvature
	K    float64   // conic constant
	Ai   []float64 // even aspheric terms, Ai[j] multiplies ρ^(2j+4)
	Mat2 *Material
}

// sag returns the surface height at squared radius u and whether the
// conic term is defined there.
func (s *Surface) sag(u float64) (float64, bool) {
	if s.Type == Aperture {
		return 0, true
	}
	arg := 1 - (1+s.K)*s.C*s.C*u
	if arg < 0 {
		return 0, false
	}
	z := s.C * u / (1 + math.Sqrt(arg))
	p := u * u
	for _, a := range s.Ai {
		z += a * p
		p *= u
	}
	return z, true
}

// dsag returns ∂sag/∂u at squared radius u.
func (s *Surface) dsag(u float64) (float64, bool) {
	if s.Type == Aperture {
		return 0, true
	}
	arg := 1 - (1+s.K)*s.C*s.C*u
	if arg <= 1e-12 {
		return 0, false
	}
	sq := math.Sqrt(arg)
	d := s.C/(1+sq) + s.C*u*(1+s.K)*s.C*s.C/(2*sq*(1+sq)*(1+sq))
	p := u
	for j, a := range s.Ai {
		d += a * float64(j+2) * p
		p *= u
	}
	return d, true
}

// Sag returns the surface height at radius rho.
func (s *Surface) Sag(rho float64) float64 {
	z, _ := s.sag(rho * rho)
	return z
}

// Slope returns dz/dρ at radius rho.
func (s *Surface) Slope(rho float64) float64 {
	d, _ := s.dsag(rho * rho)
	return 2 * rho * d
}

// intersect finds where the ray o + t·d meets the surface. clip rejects hits
// outside the clear radius.
func (s *Surface) intersect(o, d r3.Vector, clip bool) (r3.Vector, bool) {
	if d.Z <= 0 {
		return r3.Vector{}, false
	}
	t := (s.D - o.Z) / d.Z
	if s.Type != Aperture {
		for k := 0; ; k++ {
			p := o.Add(d.Mul(t))
			u := p.X*p.X + p.Y*p.Y
			z, ok := s.sag(u)
			if !ok {
				return r3.Vector{}, false
			}
			ds, ok := s.dsag(u)
			if !ok {
				return r3.Vector{}, false
			}
			f := p.Z - s.D - z
			if math.Abs(f) < newtonTol {
				break
			}
			if k == newtonIters {
				return r3.Vector{}, false
			}
			fp := d.Z - 2*ds*(p.X*d.X+p.Y*d.Y)
			if fp == 0 {
				return r3.Vector{}, false
			}
			t -= f / fp
		}
	}

	p := o.Add(d.Mul(t))
	if clip && p.X*p.X+p.Y*p.Y > s.R*s.R {
		return r3.Vector{}, false
	}
	return p, true
}

// normal returns the unit normal at p, oriented along +z.
func (s *Surface) normal(p r3.Vector) r3.Vector {
	ds, _ := s.dsag(p.X*p.X + p.Y*p.Y)
	return r3.Vector{X: -2 * ds * p.X, Y: -2 * ds * p.Y, Z: 1}.Normalize()
}

// refract bends the unit direction d through a surface with unit normal n
// going from index n1 to n2. ok is false on total internal reflection.
func refract(d, n r3.Vector, n1, n2 float64) (r3.Vector, bool) {
	eta := n1 / n2
	cosi := -d.Dot(n)
	if cosi < 0 {
		n = n.Mul(-1)
		cosi = -cosi
	}
	if cosi > 1 {
		cosi = 1
	}
	k := 1 - eta*eta*(1-cosi*cosi)
	if k < 0 {
		return r3.Vector{}, false
	}
	return d.Mul(eta).Add(n.Mul(eta*cosi - math.Sqrt(k))).Normalize(), true
}

func (s *Surface) clone() *Surface {
	c := *s
	c.Ai = append([]float64(nil), s.Ai...)
	m := *s.Mat2
	c.Mat2 = &m
	return &c
}
