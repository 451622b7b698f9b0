package curriculum

import (
	"math"

	"github.com/golang/geo/r2"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/cwbudde/autolens/internal/optics"
)

// SpotResult is the spot error of one wavelength.
type SpotResult struct {
	Loss    float64
	Weights []float64  // per-cell weights, unit mean
	Adjoint []r2.Point // ∂Loss/∂xy per ray
}

// SpotError computes the variance-weighted spot error of traced positions xy
// around the broadcast reference points.
//
// Deviations are masked by validity. Each cell is weighted by its mean
// squared deviation per valid ray, normalized to unit mean over the grid, so
// poorly corrected fields pull harder than well corrected ones. The weights
// are constants with respect to xy; only the absolute deviation term carries
// gradient.
func SpotError(xy []r2.Point, valid []float64, ref []r2.Point, spp int) SpotResult {
	if len(xy) != len(valid) || len(xy) != len(ref) || spp <= 0 || len(xy)%spp != 0 {
		panic("spot error inputs must have matching lengths")
	}
	cells := len(xy) / spp

	dev := make([]r2.Point, len(xy))
	for i := range xy {
		if valid[i] == 0 {
			continue
		}
		dev[i] = xy[i].Sub(ref[i]).Mul(valid[i])
	}

	counts := make([]float64, cells)
	weights := make([]float64, cells)
	abs := make([]float64, cells)
	for c := 0; c < cells; c++ {
		var sq, l1 float64
		for s := 0; s < spp; s++ {
			i := c*spp + s
			counts[c] += valid[i]
			sq += dev[i].X*dev[i].X + dev[i].Y*dev[i].Y
			l1 += math.Abs(dev[i].X) + math.Abs(dev[i].Y)
		}
		weights[c] = sq / (counts[c] + optics.Epsilon)
		abs[c] = l1 / (counts[c] + optics.Epsilon)
	}
	NormalizeWeights(weights)

	loss := floats.Dot(abs, weights) / float64(cells)

	adjoint := make([]r2.Point, len(xy))
	for c := 0; c < cells; c++ {
		k := weights[c] / (counts[c] + optics.Epsilon) / float64(cells)
		for s := 0; s < spp; s++ {
			i := c*spp + s
			adjoint[i] = r2.Point{
				X: k * sign(dev[i].X) * valid[i],
				Y: k * sign(dev[i].Y) * valid[i],
			}
		}
	}

	return SpotResult{Loss: loss, Weights: weights, Adjoint: adjoint}
}

// NormalizeWeights scales w in place to unit mean. An all-zero grid, which
// only happens when every ray already hits its target, becomes all ones.
func NormalizeWeights(w []float64) {
	mean := stat.Mean(w, nil)
	if mean == 0 || !isFinite(mean) {
		for i := range w {
			w[i] = 1
		}
		return
	}
	floats.Scale(1/mean, w)
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
