package store

import (
	"strings"
	"time"
)

// RunConfig is the resolved configuration of a design run, persisted as
// config.yml in the run directory so a run can be inspected and repeated.
type RunConfig struct {
	ExpName            string     `yaml:"exp_name"`
	Seed               int64      `yaml:"seed"`
	FocLen             float64    `yaml:"foclen"`
	FOV                float64    `yaml:"fov"`
	FNum               float64    `yaml:"fnum"`
	Flange             float64    `yaml:"flange"`
	Thickness          float64    `yaml:"thickness"`
	LensType           [][]string `yaml:"lens_type"`
	LRs                []float64  `yaml:"lrs"`
	Decay              float64    `yaml:"decay"`
	Iterations         int        `yaml:"iterations"`
	TestPerIter        int        `yaml:"test_per_iter"`
	ImportanceSampling bool       `yaml:"importance_sampling"`
	OptimMat           bool       `yaml:"optim_mat"`
	MatchMat           bool       `yaml:"match_mat"`
	CenterMethod       string     `yaml:"center_method"`
	NumGrid            int        `yaml:"num_grid"`
	SPP                int        `yaml:"spp"`
	Depth              float64    `yaml:"depth"`
	FinetuneIters      int        `yaml:"finetune_iters"`
	FinetunePatience   int        `yaml:"finetune_patience"`
	InitLens           string     `yaml:"init_lens,omitempty"`
	ResultDir          string     `yaml:"result_dir"`
}

// Validate checks the fields a run cannot start without.
func (c *RunConfig) Validate() error {
	if strings.TrimSpace(c.ExpName) == "" {
		return &ValidationError{Field: "exp_name", Reason: "cannot be empty"}
	}
	if c.InitLens == "" {
		if c.FocLen <= 0 {
			return &ValidationError{Field: "foclen", Reason: "must be positive"}
		}
		if c.FNum <= 0 {
			return &ValidationError{Field: "fnum", Reason: "must be positive"}
		}
		if c.FOV <= 0 || c.FOV >= 180 {
			return &ValidationError{Field: "fov", Reason: "must be in (0, 180) degrees"}
		}
		if len(c.LensType) == 0 {
			return &ValidationError{Field: "lens_type", Reason: "cannot be empty"}
		}
	}
	if c.FinetuneIters < 0 {
		return &ValidationError{Field: "finetune_iters", Reason: "cannot be negative"}
	}
	if c.FinetunePatience < 0 {
		return &ValidationError{Field: "finetune_patience", Reason: "cannot be negative"}
	}
	return nil
}

// RunInfo contains metadata about a run directory.
type RunInfo struct {
	Name       string    `json:"name"`
	Path       string    `json:"path"`
	ExpName    string    `json:"expName,omitempty"`
	ModTime    time.Time `json:"modTime"`
	Snapshot   string    `json:"snapshot,omitempty"`
	Iteration  int       `json:"iteration"`
	Final      bool      `json:"final"`
	LastLoss   float64   `json:"lastLoss,omitempty"`
	HasHistory bool      `json:"hasHistory"`
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}
