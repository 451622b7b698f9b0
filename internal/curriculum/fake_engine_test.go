package curriculum

import (
	"context"
	"os"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"

	"github.com/cwbudde/autolens/internal/opt"
	"github.com/cwbudde/autolens/internal/optics"
)

// fakeEngine is a deterministic stand-in for the optics engine. Rays travel
// straight along +z, so a ray lands on the sensor at its origin's (x, y).
// Every call is recorded for the orchestration tests.
type fakeEngine struct {
	aperture float64
	focal    float64
	sensor   float64
	param    float64

	spread   float64 // lateral offset of samples s>0 from their field point
	traceErr error

	setApertures []float64
	corrections  int
	matches      int
	writes       []string
	analyses     []string
	samples      []optics.SampleSpec
	centers      []optics.CenterMethod
	traces       int
	backwards    int
	groupsCalls  int
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{aperture: 10, focal: 50, sensor: 60, spread: 0.1}
}

func (f *fakeEngine) ApertureRadius() float64 { return f.aperture }
func (f *fakeEngine) SetAperture(r float64) {
	f.aperture = r
	f.setApertures = append(f.setApertures, r)
}
func (f *fakeEngine) FocalLength() float64    { return f.focal }
func (f *fakeEngine) SensorDistance() float64 { return f.sensor }

func (f *fakeEngine) SamplePointSource(ctx context.Context, spec optics.SampleSpec) (*optics.Batch, error) {
	f.samples = append(f.samples, spec)
	b := optics.NewBatch(spec.NumGrid, spec.NumRays, spec.Wavelength)
	for c := 0; c < b.Cells(); c++ {
		cx, cy := float64(c%b.Grid), float64(c/b.Grid)
		if spec.ImportanceSampling {
			cx, cy = cx*cx, cy*cy
		}
		for s := 0; s < b.SPP; s++ {
			i := b.Index(c, s)
			off := 0.0
			if s > 0 {
				off = f.spread * float64(s)
			}
			b.O[i] = r3.Vector{X: cx + off, Y: cy - off, Z: 0}
			b.D[i] = r3.Vector{Z: 1}
		}
	}
	return b, nil
}

func (f *fakeEngine) PSFCenter(ctx context.Context, points []r3.Vector, wavelength float64, method optics.CenterMethod) ([]r2.Point, error) {
	f.centers = append(f.centers, method)
	out := make([]r2.Point, len(points))
	for i, p := range points {
		out[i] = r2.Point{X: -p.X, Y: -p.Y}
	}
	return out, nil
}

func (f *fakeEngine) CalcScalePinhole(depth float64) float64 { return 1 }

func (f *fakeEngine) Trace(ctx context.Context, b *optics.Batch) (*optics.Batch, error) {
	f.traces++
	if f.traceErr != nil {
		return nil, f.traceErr
	}
	// Leave rays just before the sensor, mutating the input like a real tracer
	for i := range b.O {
		b.O[i].Z = f.sensor - 1
	}
	return b, nil
}

func (f *fakeEngine) Backward(ctx context.Context, b *optics.Batch, adjoint []r2.Point) error {
	f.backwards++
	return nil
}

func (f *fakeEngine) LossReg() float64 { return f.param * f.param }

func (f *fakeEngine) BackwardReg(weight float64) {}

func (f *fakeEngine) CorrectShape(ctx context.Context) error {
	f.corrections++
	return nil
}

func (f *fakeEngine) MatchMaterials() error {
	f.matches++
	return nil
}

func (f *fakeEngine) ParamGroups(lrs [4]float64, decay float64, optimMat bool) ([]*opt.Group, error) {
	f.groupsCalls++
	return []*opt.Group{{Name: "curvature", LR: lrs[1], Params: []*opt.Param{{Name: "c", Value: &f.param}}}}, nil
}

func (f *fakeEngine) WriteLensJSON(path string) error {
	f.writes = append(f.writes, path)
	return os.WriteFile(path, []byte("{}"), 0644)
}

func (f *fakeEngine) Analysis(ctx context.Context, prefix string, opts optics.AnalysisOptions) error {
	f.analyses = append(f.analyses, prefix)
	return os.WriteFile(prefix+".png", []byte("png"), 0644)
}
