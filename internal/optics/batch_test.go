package optics

import (
	"errors"
	"math"
	"testing"

	"github.com/golang/geo/r3"
)

func TestNewBatchLayout(t *testing.T) {
	b := NewBatch(3, 4, WaveGreen)

	if b.Cells() != 9 {
		t.Fatalf("Expected 9 cells, got %d", b.Cells())
	}
	if b.Len() != 36 {
		t.Fatalf("Expected 36 rays, got %d", b.Len())
	}
	if b.Index(2, 3) != 11 {
		t.Errorf("Index(2,3) = %d, expected 11", b.Index(2, 3))
	}
	if b.ValidCount(0) != 4 {
		t.Errorf("Expected all rays valid, got %f", b.ValidCount(0))
	}
}

func TestCloneIsDeep(t *testing.T) {
	b := NewBatch(2, 2, WaveRed)
	b.O[0] = r3.Vector{X: 1, Y: 2, Z: 3}
	b.D[0] = r3.Vector{Z: 1}

	c := b.Clone()
	c.O[0] = r3.Vector{X: 9}
	c.D[0] = r3.Vector{X: 1}
	c.Valid[0] = 0

	if b.O[0] != (r3.Vector{X: 1, Y: 2, Z: 3}) {
		t.Errorf("Original origin mutated: %v", b.O[0])
	}
	if b.D[0] != (r3.Vector{Z: 1}) {
		t.Errorf("Original direction mutated: %v", b.D[0])
	}
	if b.Valid[0] != 1 {
		t.Errorf("Original validity mutated: %f", b.Valid[0])
	}
}

func TestProjectTo(t *testing.T) {
	b := NewBatch(1, 2, WaveBlue)
	b.O[0] = r3.Vector{X: 0, Y: 0, Z: 0}
	b.D[0] = r3.Vector{X: 1, Y: 0, Z: 1}.Normalize()
	b.O[1] = r3.Vector{X: 5, Y: 5, Z: 0}
	b.D[1] = r3.Vector{Z: 1}
	b.Valid[1] = 0

	xy := b.ProjectTo(10)

	if math.Abs(xy[0].X-10) > 1e-12 || math.Abs(xy[0].Y) > 1e-12 {
		t.Errorf("Expected (10, 0), got %v", xy[0])
	}
	if xy[1].X != 0 || xy[1].Y != 0 {
		t.Errorf("Invalid ray should project to origin, got %v", xy[1])
	}
}

func TestFirstSamples(t *testing.T) {
	b := NewBatch(2, 3, WaveGreen)
	for c := 0; c < b.Cells(); c++ {
		for s := 0; s < b.SPP; s++ {
			b.O[b.Index(c, s)] = r3.Vector{X: float64(c), Y: float64(s)}
		}
	}

	points := b.FirstSamples()
	if len(points) != 4 {
		t.Fatalf("Expected 4 points, got %d", len(points))
	}
	for c, p := range points {
		if p.X != float64(c) || p.Y != 0 {
			t.Errorf("Cell %d: expected first sample, got %v", c, p)
		}
	}
}

func TestParseCenterMethod(t *testing.T) {
	cases := map[string]CenterMethod{
		"":          Pinhole,
		"pinhole":   Pinhole,
		"Chief_Ray": ChiefRay,
		"centroid":  ChiefRay,
	}
	for in, want := range cases {
		got, err := ParseCenterMethod(in)
		if err != nil {
			t.Errorf("ParseCenterMethod(%q) failed: %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("ParseCenterMethod(%q) = %s, expected %s", in, got, want)
		}
	}

	if _, err := ParseCenterMethod("centroidish"); !errors.Is(err, ErrUnknownCenterMethod) {
		t.Errorf("Expected ErrUnknownCenterMethod, got %v", err)
	}
}
