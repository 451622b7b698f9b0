package geolens

import (
	"fmt"
	"math"
)

// CreateSpec describes a blank starting design.
type CreateSpec struct {
	FocLen    float64
	FOV       float64 // diagonal field of view, degrees
	FNum      float64
	Flange    float64
	Thickness float64 // vertex of the first surface to the sensor
	// LensType lists surface groups front to back, e.g.
	// [[Spheric Spheric] [Aperture] [Spheric Aspheric]]. A group of two or
	// more surfaces is one (cemented) element.
	LensType [][]string
	Seed     int64
}

// crown/flint alternation for new elements
var startGlasses = []string{"N-BK7", "N-SF2"}

// Create builds a lens of flat surfaces evenly spaced over the available
// track, with the stop sized for the target f-number.
func Create(spec CreateSpec) (*Lens, error) {
	if spec.FocLen <= 0 || spec.FNum <= 0 || spec.FOV <= 0 || spec.FOV >= 180 {
		return nil, fmt.Errorf("invalid design target: foclen=%g fnum=%g fov=%g", spec.FocLen, spec.FNum, spec.FOV)
	}
	if spec.Thickness <= spec.Flange || spec.Flange < 0 {
		return nil, fmt.Errorf("thickness %g must exceed flange %g", spec.Thickness, spec.Flange)
	}

	var surfaces []*Surface
	aperIdx := -1
	element := 0
	for _, group := range spec.LensType {
		for k, token := range group {
			typ, err := ParseSurfaceType(token)
			if err != nil {
				return nil, err
			}
			s := &Surface{Type: typ, Mat2: Air()}
			switch {
			case typ == Aperture:
				if aperIdx >= 0 {
					return nil, fmt.Errorf("lens type has more than one aperture")
				}
				aperIdx = len(surfaces)
			case k < len(group)-1:
				m, _ := LookupMaterial(startGlasses[(element+k)%len(startGlasses)])
				s.Mat2 = m
			}
			if typ == Aspheric {
				s.Ai = make([]float64, 3)
			}
			surfaces = append(surfaces, s)
		}
		if len(group) > 1 {
			element++
		}
	}
	if aperIdx < 0 {
		return nil, ErrNoAperture
	}
	if len(surfaces) < 2 {
		return nil, fmt.Errorf("lens type needs at least one refractive surface")
	}

	track := spec.Thickness - spec.Flange
	step := track / float64(len(surfaces))
	for i, s := range surfaces {
		s.D = float64(i) * step
	}

	l := &Lens{
		Surfaces: surfaces,
		AperIdx:  aperIdx,
		DSensor:  spec.Thickness,
		FocLen:   spec.FocLen,
		Flange:   spec.Flange,
	}
	l.SetSeed(spec.Seed)
	hfov := spec.FOV / 2 * math.Pi / 180
	l.SetTargetFOVFNum(hfov, spec.FNum)

	// Clear radii cover the full field through the stop with some margin
	aperR := l.ApertureRadius()
	dStop := surfaces[aperIdx].D
	for i, s := range surfaces {
		if i == aperIdx {
			continue
		}
		s.R = 1.2 * (aperR + math.Abs(s.D-dStop)*math.Tan(hfov))
	}
	return l, nil
}
