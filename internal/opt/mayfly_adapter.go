package opt

import (
	"math/rand"

	"github.com/cwbudde/mayfly"
)

// MayflyAdapter wraps the external Mayfly library to conform to our Searcher interface
type MayflyAdapter struct {
	maxIters int
	popSize  int
	seed     int64
}

// NewMayfly creates a new Mayfly searcher adapter
func NewMayfly(maxIters, popSize int, seed int64) Searcher {
	return &MayflyAdapter{
		maxIters: maxIters,
		popSize:  popSize,
		seed:     seed,
	}
}

// Run executes the Mayfly optimization using the external library.
//
// The library only accepts scalar bounds, so the search runs on the unit cube
// and every candidate is mapped onto [lower[i], upper[i]] before evaluation.
func (m *MayflyAdapter) Run(eval func([]float64) float64, lower, upper []float64, dim int) ([]float64, float64) {
	toBox := func(unit []float64) []float64 {
		x := make([]float64, dim)
		for i := range x {
			x[i] = lower[i] + unit[i]*(upper[i]-lower[i])
		}
		return x
	}

	config := mayfly.NewDefaultConfig()
	config.ObjectiveFunc = func(unit []float64) float64 {
		return eval(toBox(unit))
	}
	config.ProblemSize = dim
	config.MaxIterations = m.maxIters
	config.NPop = m.popSize
	config.LowerBound = 0
	config.UpperBound = 1

	// Set random seed for reproducibility
	config.Rand = rand.New(rand.NewSource(m.seed))

	result, err := mayfly.Optimize(config)
	if err != nil {
		// Fall back to the box center if the search fails
		center := make([]float64, dim)
		for i := range center {
			center[i] = 0.5
		}
		x := toBox(center)
		return x, eval(x)
	}

	return toBox(result.GlobalBest.Position), result.GlobalBest.Cost
}
