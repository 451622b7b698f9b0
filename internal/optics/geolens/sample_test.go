package geolens

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/golang/geo/r3"

	"github.com/cwbudde/autolens/internal/optics"
)

func TestFieldGrid(t *testing.T) {
	if got := fieldGrid(1, true); len(got) != 1 || got[0] != 0 {
		t.Errorf("Single field point should be on axis, got %v", got)
	}
	uniform := fieldGrid(5, false)
	warped := fieldGrid(5, true)
	want := []float64{-1, -0.5, 0, 0.5, 1}
	for i := range want {
		if math.Abs(uniform[i]-want[i]) > 1e-12 {
			t.Errorf("uniform[%d] = %v, want %v", i, uniform[i], want[i])
		}
	}
	if math.Abs(warped[3]-math.Sqrt(0.5)) > 1e-12 || warped[0] != -1 || warped[2] != 0 {
		t.Errorf("Importance warp wrong: %v", warped)
	}
}

func TestSamplePointSource(t *testing.T) {
	l := newSinglet(t)
	b, err := l.SamplePointSource(context.Background(), optics.SampleSpec{
		Depth: optics.DefaultDepth, NumRays: 16, NumGrid: 3, Wavelength: optics.WaveRed,
	})
	if err != nil {
		t.Fatalf("SamplePointSource failed: %v", err)
	}
	if b.Grid != 3 || b.SPP != 16 || b.Len() != 144 || b.Wavelength != optics.WaveRed {
		t.Fatalf("Unexpected batch shape: grid %d spp %d len %d", b.Grid, b.SPP, b.Len())
	}

	for c := 0; c < b.Cells(); c++ {
		p := b.O[b.Index(c, 0)]
		if p.Z != optics.DefaultDepth {
			t.Errorf("cell %d: object not at depth: %v", c, p)
		}
		for s := 0; s < b.SPP; s++ {
			i := b.Index(c, s)
			if b.O[i] != p {
				t.Errorf("cell %d sample %d: origin differs from the field point", c, s)
			}
			if math.Abs(b.D[i].Norm()-1) > 1e-12 || b.D[i].Z <= 0 {
				t.Errorf("cell %d sample %d: bad direction %v", c, s, b.D[i])
			}
		}
	}

	// Corner cell sits on the diagonal of the full field
	corner := b.O[b.Index(8, 0)]
	h := math.Abs(optics.DefaultDepth) * math.Tan(l.HFOV) / math.Sqrt2
	if math.Abs(corner.X-h) > 1e-9 || math.Abs(corner.Y-h) > 1e-9 {
		t.Errorf("Corner field point = %v, want (%v, %v)", corner, h, h)
	}

	traced, err := l.Trace(context.Background(), b.Clone())
	if err != nil {
		t.Fatalf("Trace failed: %v", err)
	}
	if n := traced.ValidCount(4); n < float64(b.SPP)/2 {
		t.Errorf("Most on-axis rays should pass the stop, got %v of %d", n, b.SPP)
	}
}

func TestSamplePointSource_Errors(t *testing.T) {
	l := newSinglet(t)
	if _, err := l.SamplePointSource(context.Background(), optics.SampleSpec{NumRays: 0, NumGrid: 3}); err == nil {
		t.Error("Expected error for zero rays")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := l.SamplePointSource(ctx, optics.SampleSpec{Depth: -100, NumRays: 4, NumGrid: 2, Wavelength: 0.589})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestPSFCenter_Pinhole(t *testing.T) {
	l := newSinglet(t)
	depth := -1000.0
	h := math.Abs(depth) * math.Tan(l.HFOV) / math.Sqrt2
	points := []r3.Vector{{Z: depth}, {X: h, Y: h, Z: depth}}

	centers, err := l.PSFCenter(context.Background(), points, optics.WaveGreen, optics.Pinhole)
	if err != nil {
		t.Fatalf("PSFCenter failed: %v", err)
	}
	if centers[0].X != 0 || centers[0].Y != 0 {
		t.Errorf("On-axis center = %v, want origin", centers[0])
	}
	want := l.RSensor / math.Sqrt2
	if math.Abs(centers[1].X-want) > 1e-9 || math.Abs(centers[1].Y-want) > 1e-9 {
		t.Errorf("Corner center = %v, want (%v, %v)", centers[1], want, want)
	}
	if scale := l.CalcScalePinhole(depth); math.Abs(scale-h*math.Sqrt2/l.RSensor) > 1e-9 {
		t.Errorf("CalcScalePinhole = %v", scale)
	}
}

func TestPSFCenter_ChiefRay(t *testing.T) {
	l := newSinglet(t)
	depth := optics.DefaultDepth
	h := math.Abs(depth) * math.Tan(l.HFOV) / math.Sqrt2
	points := []r3.Vector{{Z: depth}, {X: h, Z: depth}, {X: -h / 2, Y: h / 2, Z: depth}}

	chief, err := l.PSFCenter(context.Background(), points, optics.WaveGreen, optics.ChiefRay)
	if err != nil {
		t.Fatalf("PSFCenter failed: %v", err)
	}
	pinhole, _ := l.PSFCenter(context.Background(), points, optics.WaveGreen, optics.Pinhole)

	if chief[0].Norm() > 1e-9 {
		t.Errorf("On-axis chief ray should land on the axis, got %v", chief[0])
	}
	for i := 1; i < len(points); i++ {
		// PSF coordinates follow the object, opposite to the inverted sensor image
		if chief[i].X*points[i].X <= 0 {
			t.Errorf("point %d: chief center %v has the wrong sign", i, chief[i])
		}
		if d := chief[i].Sub(pinhole[i]).Norm(); d > 0.1*pinhole[i].Norm() {
			t.Errorf("point %d: chief %v far from pinhole %v", i, chief[i], pinhole[i])
		}
	}

	if _, err := l.PSFCenter(context.Background(), points, optics.WaveGreen, "centroid"); !errors.Is(err, optics.ErrUnknownCenterMethod) {
		t.Errorf("Expected ErrUnknownCenterMethod, got %v", err)
	}
}
