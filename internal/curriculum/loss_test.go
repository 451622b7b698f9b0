package curriculum

import (
	"math"
	"testing"

	"github.com/golang/geo/r2"
)

// buildCells creates xy/valid/ref for cells of spp rays each, where cell c
// spreads its rays by spreads[c] around a reference at (c, 0).
func buildCells(spreads []float64, spp int) (xy []r2.Point, valid []float64, ref []r2.Point) {
	for c, spread := range spreads {
		center := r2.Point{X: float64(c)}
		for s := 0; s < spp; s++ {
			off := spread
			if s%2 == 1 {
				off = -spread
			}
			xy = append(xy, center.Add(r2.Point{X: off, Y: off / 2}))
			valid = append(valid, 1)
			ref = append(ref, center)
		}
	}
	return xy, valid, ref
}

func TestSpotErrorWeightsHaveUnitMean(t *testing.T) {
	xy, valid, ref := buildCells([]float64{0.1, 0.5, 2, 0.01}, 4)

	res := SpotError(xy, valid, ref, 4)

	var sum float64
	for _, w := range res.Weights {
		sum += w
	}
	mean := sum / float64(len(res.Weights))
	if math.Abs(mean-1) > 1e-12 {
		t.Errorf("Mean weight = %f, expected 1", mean)
	}

	// Worse cells weigh more
	if !(res.Weights[2] > res.Weights[1] && res.Weights[1] > res.Weights[0]) {
		t.Errorf("Weights not ordered by spread: %v", res.Weights)
	}
}

func TestSpotErrorZeroWhenCentered(t *testing.T) {
	xy, valid, ref := buildCells([]float64{0, 0, 0}, 8)

	res := SpotError(xy, valid, ref, 8)

	if res.Loss != 0 {
		t.Errorf("Expected zero loss for centered rays, got %g", res.Loss)
	}
	for c, w := range res.Weights {
		if w != 1 {
			t.Errorf("Cell %d weight = %f, expected fallback 1", c, w)
		}
	}
}

func TestSpotErrorEmptyCellIsBounded(t *testing.T) {
	xy, valid, ref := buildCells([]float64{0.3, 0.3}, 4)
	// Kill the second cell and give its rays garbage positions
	for s := 4; s < 8; s++ {
		valid[s] = 0
		xy[s] = r2.Point{X: math.NaN(), Y: math.Inf(1)}
	}

	res := SpotError(xy, valid, ref, 4)

	if math.IsNaN(res.Loss) || math.IsInf(res.Loss, 0) {
		t.Fatalf("Loss must be finite with an empty cell, got %f", res.Loss)
	}
	if res.Weights[1] != 0 {
		t.Errorf("Empty cell weight = %f, expected 0", res.Weights[1])
	}
	for i := 4; i < 8; i++ {
		if res.Adjoint[i] != (r2.Point{}) {
			t.Errorf("Invalid ray %d has adjoint %v", i, res.Adjoint[i])
		}
	}
}

func TestSpotErrorAllInvalid(t *testing.T) {
	xy, valid, ref := buildCells([]float64{1, 1}, 2)
	for i := range valid {
		valid[i] = 0
	}

	res := SpotError(xy, valid, ref, 2)

	if res.Loss != 0 {
		t.Errorf("Expected zero loss without valid rays, got %g", res.Loss)
	}
}

func TestSpotErrorSingleCellValue(t *testing.T) {
	// One cell, two rays at ±(1, 0.5): mean L1 = 1.5, weight normalized to 1
	xy, valid, ref := buildCells([]float64{1}, 2)

	res := SpotError(xy, valid, ref, 2)

	if math.Abs(res.Loss-1.5) > 1e-6 {
		t.Errorf("Loss = %f, expected 1.5", res.Loss)
	}
}

func TestSpotErrorAdjointPointsAwayFromReference(t *testing.T) {
	xy, valid, ref := buildCells([]float64{0.5}, 2)

	res := SpotError(xy, valid, ref, 2)

	// Ray 0 sits at +x of the reference, ray 1 at -x
	if res.Adjoint[0].X <= 0 || res.Adjoint[1].X >= 0 {
		t.Errorf("Unexpected adjoint signs: %v", res.Adjoint)
	}
	// d|d|/dx = 1/(N+eps) with unit weight and a single cell
	if math.Abs(res.Adjoint[0].X-0.5) > 1e-6 {
		t.Errorf("Adjoint = %f, expected 0.5", res.Adjoint[0].X)
	}
}

func TestSpotErrorPanicsOnMismatchedInputs(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Expected panic for mismatched lengths")
		}
	}()
	SpotError(make([]r2.Point, 4), make([]float64, 3), make([]r2.Point, 4), 2)
}

func TestNormalizeWeights(t *testing.T) {
	w := []float64{1, 2, 3, 6}
	NormalizeWeights(w)

	want := []float64{1.0 / 3, 2.0 / 3, 1, 2}
	for i := range w {
		if math.Abs(w[i]-want[i]) > 1e-12 {
			t.Errorf("w[%d] = %f, expected %f", i, w[i], want[i])
		}
	}
}
