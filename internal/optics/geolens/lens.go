// Package geolens is a sequential geometric ray tracer for rotationally
// symmetric refractive lenses. It implements optics.Engine with finite
// difference gradients, which is adequate for the few dozen shape
// parameters of a compound lens.
package geolens

import (
	"errors"
	"math"
	"math/rand"

	"github.com/cwbudde/autolens/internal/opt"
	"github.com/cwbudde/autolens/internal/optics"
)

var (
	// ErrUnknownSurface is returned for an unrecognized surface type token.
	ErrUnknownSurface = errors.New("unknown surface type")
	// ErrNoAperture is returned when a lens has no aperture stop.
	ErrNoAperture = errors.New("lens has no aperture stop")
	// ErrNotRegistered is returned when gradients are requested before ParamGroups.
	ErrNotRegistered = errors.New("no parameters registered")
)

var _ optics.Engine = (*Lens)(nil)

// Lens is a sequence of surfaces followed by a flat sensor.
type Lens struct {
	Surfaces []*Surface
	AperIdx  int

	DSensor float64 // sensor position on the axis
	RSensor float64 // sensor half diagonal
	HFOV    float64 // half diagonal field of view, radians
	FocLen  float64
	FNum    float64
	Flange  float64 // minimum clearance between the last surface and the sensor

	rng      *rand.Rand
	searcher opt.Searcher
	params   []*opt.Param
}

// SetSeed reseeds the ray sampler and the refocus search.
func (l *Lens) SetSeed(seed int64) {
	l.rng = rand.New(rand.NewSource(seed))
	l.searcher = opt.NewMayfly(30, 20, seed)
}

// ApertureRadius returns the clear radius of the stop.
func (l *Lens) ApertureRadius() float64 {
	return l.Surfaces[l.AperIdx].R
}

// SetAperture sets the stop radius and recomputes the f-number.
func (l *Lens) SetAperture(r float64) {
	l.Surfaces[l.AperIdx].R = r
	l.FNum = l.FocLen / r / 2
}

// FocalLength returns the design focal length.
func (l *Lens) FocalLength() float64 {
	return l.FocLen
}

// SensorDistance returns the sensor position on the axis.
func (l *Lens) SensorDistance() float64 {
	return l.DSensor
}

// SetTargetFOVFNum sets the design field of view and f-number. The sensor
// size and stop radius follow from the focal length.
func (l *Lens) SetTargetFOVFNum(hfov, fnum float64) {
	l.HFOV = hfov
	l.RSensor = l.FocLen * math.Tan(hfov)
	l.SetAperture(l.FocLen / fnum / 2)
}

// Clone returns an independent copy without registered parameters.
func (l *Lens) Clone() *Lens {
	c := *l
	c.Surfaces = make([]*Surface, len(l.Surfaces))
	for i, s := range l.Surfaces {
		c.Surfaces[i] = s.clone()
	}
	c.params = nil
	return &c
}

// medium returns the material in front of surface i.
func (l *Lens) medium(i int) *Material {
	for j := i - 1; j >= 0; j-- {
		if l.Surfaces[j].Type != Aperture {
			return l.Surfaces[j].Mat2
		}
	}
	return Air()
}

// lastD returns the vertex position of the last surface.
func (l *Lens) lastD() float64 {
	return l.Surfaces[len(l.Surfaces)-1].D
}
