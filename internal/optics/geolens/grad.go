package geolens

import (
	"context"
	"fmt"
	"math"

	"github.com/golang/geo/r2"

	"github.com/cwbudde/autolens/internal/opt"
	"github.com/cwbudde/autolens/internal/optics"
)

// Learning rates for material parameters, which are not user tunable.
const (
	lrIndex = 1e-4
	lrAbbe  = 1e-2
)

// ParamGroups registers the learnable parameters of the lens. The first
// surface position is fixed; every later vertex position is a thickness
// parameter. Aspheric orders get their own groups whose rate decays by
// decay per order.
func (l *Lens) ParamGroups(lrs [4]float64, decay float64, optimMat bool) ([]*opt.Group, error) {
	thickness := &opt.Group{Name: "thickness", LR: lrs[0]}
	curvature := &opt.Group{Name: "curvature", LR: lrs[1]}
	conic := &opt.Group{Name: "conic", LR: lrs[2]}
	var aspheric []*opt.Group
	index := &opt.Group{Name: "material_n", LR: lrIndex}
	abbe := &opt.Group{Name: "material_v", LR: lrAbbe}

	for i, s := range l.Surfaces {
		if i > 0 {
			thickness.Params = append(thickness.Params, &opt.Param{Name: fmt.Sprintf("d%d", i), Value: &s.D})
		}
		if s.Type == Aperture {
			continue
		}
		curvature.Params = append(curvature.Params, &opt.Param{Name: fmt.Sprintf("c%d", i), Value: &s.C})
		if s.Type == Aspheric {
			conic.Params = append(conic.Params, &opt.Param{Name: fmt.Sprintf("k%d", i), Value: &s.K})
			for j := range s.Ai {
				for len(aspheric) <= j {
					order := 2*len(aspheric) + 4
					aspheric = append(aspheric, &opt.Group{
						Name: fmt.Sprintf("aspheric_a%d", order),
						LR:   lrs[3] * math.Pow(decay, float64(len(aspheric))),
					})
				}
				aspheric[j].Params = append(aspheric[j].Params, &opt.Param{
					Name:  fmt.Sprintf("a%d_%d", 2*j+4, i),
					Value: &s.Ai[j],
				})
			}
		}
		if optimMat && !s.Mat2.IsAir() {
			index.Params = append(index.Params, &opt.Param{Name: fmt.Sprintf("n%d", i), Value: &s.Mat2.N})
			abbe.Params = append(abbe.Params, &opt.Param{Name: fmt.Sprintf("v%d", i), Value: &s.Mat2.V})
		}
	}

	var groups []*opt.Group
	for _, g := range append([]*opt.Group{thickness, curvature, conic}, aspheric...) {
		if len(g.Params) > 0 {
			groups = append(groups, g)
		}
	}
	if optimMat {
		for _, g := range []*opt.Group{index, abbe} {
			if len(g.Params) > 0 {
				groups = append(groups, g)
			}
		}
	}
	if len(groups) == 0 {
		return nil, opt.ErrNoParams
	}
	l.params = opt.Flatten(groups)
	return groups, nil
}

// fdStep returns the central difference step for value v.
func fdStep(v float64) float64 {
	return 1e-6 * math.Max(1, math.Abs(v))
}

// Backward accumulates Σ adjoint·∂xy/∂θ by central differences. A ray only
// contributes when it survives the unperturbed trace and both perturbed ones,
// so vignetting flips do not produce spurious gradients.
func (l *Lens) Backward(ctx context.Context, b *optics.Batch, adjoint []r2.Point) error {
	if len(l.params) == 0 {
		return ErrNotRegistered
	}
	if len(adjoint) != b.Len() {
		return fmt.Errorf("adjoint length %d does not match batch length %d", len(adjoint), b.Len())
	}

	base, err := l.Trace(ctx, b.Clone())
	if err != nil {
		return err
	}

	project := func() (*optics.Batch, []r2.Point, error) {
		t, err := l.Trace(ctx, b.Clone())
		if err != nil {
			return nil, nil, err
		}
		return t, t.ProjectTo(l.DSensor), nil
	}

	for _, p := range l.params {
		v := *p.Value
		h := fdStep(v)

		*p.Value = v + h
		plus, xyPlus, err := project()
		if err != nil {
			*p.Value = v
			return err
		}
		*p.Value = v - h
		minus, xyMinus, err := project()
		*p.Value = v
		if err != nil {
			return err
		}

		var g float64
		for i, a := range adjoint {
			if base.Valid[i]*plus.Valid[i]*minus.Valid[i] == 0 {
				continue
			}
			g += a.Dot(xyPlus[i].Sub(xyMinus[i]))
		}
		p.Grad += g / (2 * h)
	}
	return nil
}

// BackwardReg accumulates weight·∂LossReg/∂θ by central differences.
func (l *Lens) BackwardReg(weight float64) {
	if weight == 0 {
		return
	}
	for _, p := range l.params {
		v := *p.Value
		h := fdStep(v)
		*p.Value = v + h
		plus := l.LossReg()
		*p.Value = v - h
		minus := l.LossReg()
		*p.Value = v
		p.Grad += weight * (plus - minus) / (2 * h)
	}
}
