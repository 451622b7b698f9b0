package curriculum

import (
	"fmt"
	"math"

	"github.com/cwbudde/autolens/internal/optics"
)

// Config holds everything a design run needs. It is passed to New once and
// never read from ambient state.
type Config struct {
	// Optimizer
	LRs   []float64 // [thickness, curvature, conic, aspheric]
	Decay float64   // per-order decay of aspheric learning rates

	// Budget and cadence
	Iterations  int
	TestPerIter int

	// Sampling
	Depth              float64
	NumGrid            int
	SPP                int
	Wavelengths        []float64
	ImportanceSampling bool
	CenterMethod       optics.CenterMethod

	// Materials
	OptimMat bool
	MatchMat bool

	// Curriculum
	ShapeControl  bool
	StartFraction float64 // initial aperture as a fraction of the final one
	Overshoot     float64
	RegWeight     float64

	// Fine-tune early stopping, checked at evaluation boundaries. Patience 0
	// runs every fine-tune iteration.
	Patience  int
	Threshold float64

	// OutDir receives lens snapshots and analysis artifacts.
	OutDir string
}

// DefaultConfig returns the settings of a standard RMS curriculum run.
func DefaultConfig() Config {
	return Config{
		LRs:                []float64{5e-4, 1e-4, 0.1, 1e-4},
		Decay:              0.02,
		Iterations:         5000,
		TestPerIter:        100,
		Depth:              optics.DefaultDepth,
		NumGrid:            15,
		SPP:                512,
		Wavelengths:        append([]float64(nil), optics.WaveRGB...),
		ImportanceSampling: true,
		CenterMethod:       optics.Pinhole,
		ShapeControl:       true,
		StartFraction:      0.4,
		Overshoot:          1.1,
		RegWeight:          0.1,
		Threshold:          0.001,
		OutDir:             "./results",
	}
}

// SampleEvery returns the resampling cadence. Chief-ray centering is more
// expensive, so batches are kept five times longer in that mode.
func (c Config) SampleEvery() int {
	if c.CenterMethod == optics.ChiefRay {
		return 5 * c.TestPerIter
	}
	return c.TestPerIter
}

// Validate rejects configurations that would fail mid-run.
func (c Config) Validate() error {
	if len(c.LRs) != 4 {
		return &ValidationError{Field: "LRs", Reason: fmt.Sprintf("must have 4 entries, got %d", len(c.LRs))}
	}
	for i, lr := range c.LRs {
		if !isFinite(lr) || lr < 0 {
			return &ValidationError{Field: fmt.Sprintf("LRs[%d]", i), Reason: "must be finite and non-negative"}
		}
	}
	if !isFinite(c.Decay) || c.Decay < 0 {
		return &ValidationError{Field: "Decay", Reason: "must be finite and non-negative"}
	}
	if c.Iterations < 0 {
		return &ValidationError{Field: "Iterations", Reason: "cannot be negative"}
	}
	if c.TestPerIter <= 0 {
		return &ValidationError{Field: "TestPerIter", Reason: "must be positive"}
	}
	if !isFinite(c.Depth) || c.Depth == 0 {
		return &ValidationError{Field: "Depth", Reason: "must be finite and non-zero"}
	}
	if c.NumGrid <= 0 {
		return &ValidationError{Field: "NumGrid", Reason: "must be positive"}
	}
	if c.SPP <= 0 {
		return &ValidationError{Field: "SPP", Reason: "must be positive"}
	}
	if len(c.Wavelengths) == 0 {
		return &ValidationError{Field: "Wavelengths", Reason: "cannot be empty"}
	}
	for i, wv := range c.Wavelengths {
		if !isFinite(wv) || wv <= 0 {
			return &ValidationError{Field: fmt.Sprintf("Wavelengths[%d]", i), Reason: "must be positive"}
		}
	}
	if c.CenterMethod != optics.Pinhole && c.CenterMethod != optics.ChiefRay {
		return &ValidationError{Field: "CenterMethod", Reason: fmt.Sprintf("unknown method %q", c.CenterMethod)}
	}
	if !isFinite(c.StartFraction) || c.StartFraction <= 0 || c.StartFraction > 1 {
		return &ValidationError{Field: "StartFraction", Reason: "must be in (0, 1]"}
	}
	if !isFinite(c.Overshoot) || c.Overshoot <= 0 {
		return &ValidationError{Field: "Overshoot", Reason: "must be positive"}
	}
	if !isFinite(c.RegWeight) || c.RegWeight < 0 {
		return &ValidationError{Field: "RegWeight", Reason: "must be finite and non-negative"}
	}
	if c.Patience < 0 {
		return &ValidationError{Field: "Patience", Reason: "cannot be negative"}
	}
	if !isFinite(c.Threshold) || c.Threshold < 0 {
		return &ValidationError{Field: "Threshold", Reason: "must be finite and non-negative"}
	}
	if c.OutDir == "" {
		return &ValidationError{Field: "OutDir", Reason: "cannot be empty"}
	}
	return nil
}

// ValidationError represents a rejected configuration field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
