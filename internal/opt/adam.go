package opt

import (
	"errors"
	"math"
)

// ErrNoParams is returned when an optimizer is built without learnable parameters.
var ErrNoParams = errors.New("optimizer has no parameters")

// Adam implements the Adam optimizer with bias correction over parameter groups.
//
// Update rule, per parameter with base rate lr of its group and schedule multiplier s:
//
//	m = β1·m + (1-β1)·g
//	v = β2·v + (1-β2)·g²
//	w = w - s·lr · (m/(1-β1^t)) / (√(v/(1-β2^t)) + ε)
type Adam struct {
	groups []*Group
	beta1  float64
	beta2  float64
	eps    float64

	m, v  [][]float64
	t     int
	scale float64
}

// NewAdam creates an Adam optimizer over the given groups.
// Uses standard defaults: β1=0.9, β2=0.999, ε=1e-8.
func NewAdam(groups []*Group) (*Adam, error) {
	if NumParams(groups) == 0 {
		return nil, ErrNoParams
	}

	a := &Adam{
		groups: groups,
		beta1:  0.9,
		beta2:  0.999,
		eps:    1e-8,
		m:      make([][]float64, len(groups)),
		v:      make([][]float64, len(groups)),
		scale:  1,
	}
	for i, g := range groups {
		a.m[i] = make([]float64, len(g.Params))
		a.v[i] = make([]float64, len(g.Params))
	}
	return a, nil
}

// Groups returns the parameter groups driven by this optimizer.
func (a *Adam) Groups() []*Group {
	return a.groups
}

// ZeroGrad clears every accumulated gradient.
func (a *Adam) ZeroGrad() {
	for _, g := range a.groups {
		for _, p := range g.Params {
			p.Grad = 0
		}
	}
}

// Step applies one update using the gradients accumulated since ZeroGrad.
func (a *Adam) Step() {
	a.t++

	bc1 := 1 - math.Pow(a.beta1, float64(a.t))
	bc2 := 1 - math.Pow(a.beta2, float64(a.t))

	for gi, g := range a.groups {
		lr := g.LR * a.scale
		for pi, p := range g.Params {
			grad := p.Grad

			a.m[gi][pi] = a.beta1*a.m[gi][pi] + (1-a.beta1)*grad
			a.v[gi][pi] = a.beta2*a.v[gi][pi] + (1-a.beta2)*grad*grad

			mHat := a.m[gi][pi] / bc1
			vHat := a.v[gi][pi] / bc2

			*p.Value -= lr * mHat / (math.Sqrt(vHat) + a.eps)
		}
	}
}

// SetLRScale sets the multiplier applied to every group's base rate.
func (a *Adam) SetLRScale(scale float64) {
	a.scale = scale
}

// LR returns the effective learning rate of group i.
func (a *Adam) LR(i int) float64 {
	return a.groups[i].LR * a.scale
}

// Steps returns the number of updates applied so far.
func (a *Adam) Steps() int {
	return a.t
}
