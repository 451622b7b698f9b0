package curriculum

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/golang/geo/r2"

	"github.com/cwbudde/autolens/internal/opt"
	"github.com/cwbudde/autolens/internal/optics"
)

// Progress is reported once per optimization step.
type Progress struct {
	Phase     string
	Iteration int
	Loss      float64 // total loss: RMS + weighted regularization
	RMS       float64 // spot error averaged over wavelengths
	Reg       float64 // unweighted regularization
	Aperture  float64 // stop radius during this step
	LRScale   float64 // schedule multiplier used by this step
	Evaluated bool    // a snapshot was written at this iteration
}

// Option configures a Designer.
type Option func(*Designer)

// WithProgress registers a callback invoked after every step.
func WithProgress(fn func(Progress)) Option {
	return func(d *Designer) {
		d.onProgress = fn
	}
}

// Designer runs the aperture curriculum against an optics engine.
type Designer struct {
	eng        optics.Engine
	cfg        Config
	onProgress func(Progress)
}

// New validates cfg and creates a Designer.
func New(eng optics.Engine, cfg Config, opts ...Option) (*Designer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	d := &Designer{eng: eng, cfg: cfg}
	for _, o := range opts {
		o(d)
	}
	return d, nil
}

// phase describes one pass of the optimization loop.
type phase struct {
	name       string
	prefix     string            // snapshot file prefix
	iterations int               // loop runs for i = 0..iterations
	aperture   *ApertureSchedule // nil keeps the aperture fixed
	earlyStop  bool              // stop once the evaluation loss stagnates
}

// Run executes the aperture curriculum. The current stop radius of the lens
// is the final aperture; training starts at StartFraction of it.
//
// Engine errors abort the run. Snapshots written before the failure remain
// on disk.
func (d *Designer) Run(ctx context.Context) error {
	final := d.eng.ApertureRadius()
	schedule := NewApertureSchedule(final, d.cfg.StartFraction, d.cfg.Overshoot, d.cfg.Iterations)
	return d.run(ctx, phase{
		name:       "curriculum",
		prefix:     "iter",
		iterations: d.cfg.Iterations,
		aperture:   &schedule,
	})
}

// FineTune continues optimizing at the current aperture for the given
// number of iterations with a fresh optimizer and schedule.
func (d *Designer) FineTune(ctx context.Context, iterations int) error {
	if iterations < 0 {
		return &ValidationError{Field: "iterations", Reason: "cannot be negative"}
	}
	return d.run(ctx, phase{
		name:       "finetune",
		prefix:     "finetune_iter",
		iterations: iterations,
		earlyStop:  true,
	})
}

// SnapshotPath returns the lens file written at iteration i of the curriculum.
func (d *Designer) SnapshotPath(i int) string {
	return filepath.Join(d.cfg.OutDir, fmt.Sprintf("iter%d.json", i))
}

func (d *Designer) run(ctx context.Context, ph phase) error {
	cfg := d.cfg
	lrs := [4]float64{cfg.LRs[0], cfg.LRs[1], cfg.LRs[2], cfg.LRs[3]}

	slog.Info("Starting lens optimization",
		"phase", ph.name,
		"lr", cfg.LRs,
		"decay", cfg.Decay,
		"iterations", ph.iterations,
		"spp", cfg.SPP,
		"grid", cfg.NumGrid,
	)

	groups, err := d.eng.ParamGroups(lrs, cfg.Decay, cfg.OptimMat)
	if err != nil {
		return fmt.Errorf("failed to build parameter groups: %w", err)
	}
	adam, err := opt.NewAdam(groups)
	if err != nil {
		return fmt.Errorf("failed to create optimizer: %w", err)
	}
	schedule := opt.NewWarmupCosine(adam, ph.iterations/10, ph.iterations)

	cache := NewRayCache(d.eng, cfg)
	sampleEvery := cfg.SampleEvery()
	tracker := newConvergenceTracker(0, 0)
	if ph.earlyStop {
		tracker = newConvergenceTracker(cfg.Patience, cfg.Threshold)
	}

	for i := 0; i <= ph.iterations; i++ {
		evaluated := false
		if i%cfg.TestPerIter == 0 {
			if err := d.evaluate(ctx, ph, i); err != nil {
				return err
			}
			evaluated = true
		}

		if i%sampleEvery == 0 {
			if err := cache.Refresh(ctx); err != nil {
				return fmt.Errorf("iteration %d: %w", i, err)
			}
		}

		lrScale := schedule.Factor()
		rms, reg, err := d.step(ctx, cache, adam)
		if err != nil {
			return fmt.Errorf("iteration %d: %w", i, err)
		}
		schedule.Step()

		p := Progress{
			Phase:     ph.name,
			Iteration: i,
			Loss:      rms + cfg.RegWeight*reg,
			RMS:       rms,
			Reg:       reg,
			Aperture:  d.eng.ApertureRadius(),
			LRScale:   lrScale,
			Evaluated: evaluated,
		}
		if evaluated {
			slog.Info("Evaluation", "phase", ph.name, "iteration", i, "rms", rms, "reg", reg, "aperture", p.Aperture)
		} else {
			slog.Debug("Step", "phase", ph.name, "iteration", i, "rms", rms)
		}
		if d.onProgress != nil {
			d.onProgress(p)
		}
		if evaluated && tracker.Update(p.Loss) {
			slog.Info("Loss converged, stopping early", "phase", ph.name, "iteration", i, "best", tracker.Best())
			break
		}
	}

	slog.Info("Lens optimization complete", "phase", ph.name, "iterations", ph.iterations)
	return nil
}

// evaluate is the checkpoint at an evaluation boundary: grow the aperture,
// correct the shape, and persist the lens with its analysis.
func (d *Designer) evaluate(ctx context.Context, ph phase, i int) error {
	if ph.aperture != nil {
		r := ph.aperture.At(i)
		d.eng.SetAperture(r)
		slog.Info("Aperture updated",
			"iteration", i,
			"aperture", r,
			"fnum", d.eng.FocalLength()/r/2,
		)
	}

	if i > 0 {
		if d.cfg.ShapeControl {
			if err := d.eng.CorrectShape(ctx); err != nil {
				return fmt.Errorf("iteration %d: failed to correct shape: %w", i, err)
			}
		}
		if d.cfg.OptimMat && d.cfg.MatchMat {
			if err := d.eng.MatchMaterials(); err != nil {
				return fmt.Errorf("iteration %d: failed to match materials: %w", i, err)
			}
		}
	}

	name := fmt.Sprintf("%s%d", ph.prefix, i)
	if err := d.eng.WriteLensJSON(filepath.Join(d.cfg.OutDir, name+".json")); err != nil {
		return fmt.Errorf("iteration %d: failed to write lens: %w", i, err)
	}
	opts := optics.AnalysisOptions{ZmxFormat: true, PlotInvalid: true, MultiPlot: false}
	if err := d.eng.Analysis(ctx, filepath.Join(d.cfg.OutDir, name), opts); err != nil {
		return fmt.Errorf("iteration %d: failed to analyze lens: %w", i, err)
	}
	return nil
}

// step computes the total loss on the cached rays, back-propagates it and
// applies one optimizer update.
func (d *Designer) step(ctx context.Context, cache *RayCache, adam *opt.Adam) (rms, reg float64, err error) {
	waves := len(d.cfg.Wavelengths)
	ref := cache.Reference()

	adam.ZeroGrad()

	for j := 0; j < waves; j++ {
		cached := cache.Batch(j)
		traced, err := d.eng.Trace(ctx, cached.Clone())
		if err != nil {
			return 0, 0, fmt.Errorf("trace: %w", err)
		}
		xy := traced.ProjectTo(d.eng.SensorDistance())

		res := SpotError(xy, traced.Valid, ref, traced.SPP)
		rms += res.Loss

		// The total is the mean over wavelengths
		scaleAdjoint(res.Adjoint, 1/float64(waves))
		if err := d.eng.Backward(ctx, cached, res.Adjoint); err != nil {
			return 0, 0, fmt.Errorf("backward: %w", err)
		}
	}
	rms /= float64(waves)

	reg = d.eng.LossReg()
	d.eng.BackwardReg(d.cfg.RegWeight)

	adam.Step()
	return rms, reg, nil
}

func scaleAdjoint(adj []r2.Point, k float64) {
	for i := range adj {
		adj[i] = adj[i].Mul(k)
	}
}
