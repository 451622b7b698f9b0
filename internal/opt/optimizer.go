package opt

// Searcher defines a derivative-free search over a bounded box
type Searcher interface {
	// Run executes the search
	// eval: objective function to minimize
	// lower, upper: parameter bounds
	// dim: dimensionality of parameter space
	// Returns: best parameters and best cost
	Run(eval func([]float64) float64, lower, upper []float64, dim int) ([]float64, float64)
}

// Param is a single learnable scalar. Value points into the owner's storage so
// that an optimizer step mutates the owning geometry in place.
type Param struct {
	Name  string
	Value *float64
	Grad  float64
}

// Group is a set of parameters sharing one base learning rate.
type Group struct {
	Name   string
	LR     float64
	Params []*Param
}

// NumParams counts the parameters across groups.
func NumParams(groups []*Group) int {
	n := 0
	for _, g := range groups {
		n += len(g.Params)
	}
	return n
}

// Flatten returns every parameter in group order.
func Flatten(groups []*Group) []*Param {
	params := make([]*Param, 0, NumParams(groups))
	for _, g := range groups {
		params = append(params, g.Params...)
	}
	return params
}
