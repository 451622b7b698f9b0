package optics

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"

	"github.com/cwbudde/autolens/internal/opt"
)

// CenterMethod selects how the target point of a field is estimated.
type CenterMethod string

const (
	// ChiefRay uses the sensor intersection of the ray through the stop center.
	ChiefRay CenterMethod = "chief_ray"
	// Pinhole uses an ideal pinhole projection of the object point.
	Pinhole CenterMethod = "pinhole"
)

// ErrUnknownCenterMethod is returned when a method name is not recognized.
var ErrUnknownCenterMethod = errors.New("unknown center method")

// ParseCenterMethod maps user input to a canonical method.
func ParseCenterMethod(name string) (CenterMethod, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "pinhole":
		return Pinhole, nil
	case "chief_ray", "chief-ray", "chief", "centroid":
		return ChiefRay, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownCenterMethod, name)
	}
}

// SampleSpec parameterizes a point-source draw.
type SampleSpec struct {
	Depth              float64 // object distance, mm
	NumRays            int     // samples per field point
	NumGrid            int     // field points per axis
	Wavelength         float64 // µm
	ImportanceSampling bool    // densify field points toward the edge of the field
}

// AnalysisOptions controls the artifacts written by Analysis.
type AnalysisOptions struct {
	ZmxFormat   bool // also write a Zemax-style prescription
	PlotInvalid bool // draw vignetted rays in the spot diagram
	MultiPlot   bool // one spot diagram per wavelength instead of a combined one
}

// Geometry exposes the aperture stop of the lens.
type Geometry interface {
	// ApertureRadius returns the current radius of the aperture stop.
	ApertureRadius() float64
	// SetAperture sets the stop radius and recomputes the f-number.
	SetAperture(r float64)
	FocalLength() float64
	SensorDistance() float64
}

// Sampler draws ray batches and estimates field centers. Nothing here is on
// the differentiable path.
type Sampler interface {
	SamplePointSource(ctx context.Context, spec SampleSpec) (*Batch, error)
	// PSFCenter returns one center per object point in PSF image coordinates,
	// which are mirrored relative to sensor coordinates.
	PSFCenter(ctx context.Context, points []r3.Vector, wavelength float64, method CenterMethod) ([]r2.Point, error)
	CalcScalePinhole(depth float64) float64
}

// Tracer propagates rays through the lens and back-propagates position
// gradients onto the registered parameters.
type Tracer interface {
	// Trace mutates b in place and returns it, leaving rays after the last surface.
	Trace(ctx context.Context, b *Batch) (*Batch, error)
	// Backward accumulates Σ adjoint·∂xy/∂θ into each registered parameter's
	// gradient, where xy is the sensor projection of b after tracing. b is
	// not modified.
	Backward(ctx context.Context, b *Batch, adjoint []r2.Point) error
}

// Regularizer scores geometric validity of the current shape.
type Regularizer interface {
	LossReg() float64
	// BackwardReg accumulates weight·∂LossReg/∂θ into parameter gradients.
	BackwardReg(weight float64)
}

// Corrector applies the non-differentiable fix-ups run at evaluation boundaries.
type Corrector interface {
	CorrectShape(ctx context.Context) error
	MatchMaterials() error
}

// Serializer persists lens state and analysis artifacts.
type Serializer interface {
	WriteLensJSON(path string) error
	Analysis(ctx context.Context, prefix string, opts AnalysisOptions) error
}

// Engine is everything the curriculum needs from the optics collaborator.
type Engine interface {
	Geometry
	Sampler
	Tracer
	Regularizer
	Corrector
	Serializer

	// ParamGroups registers the learnable parameters and returns them grouped
	// by learning rate. lrs are [thickness, curvature, conic, aspheric].
	ParamGroups(lrs [4]float64, decay float64, optimMat bool) ([]*opt.Group, error)
}
