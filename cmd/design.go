package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cwbudde/autolens/internal/curriculum"
	"github.com/cwbudde/autolens/internal/optics"
	"github.com/cwbudde/autolens/internal/optics/geolens"
	"github.com/cwbudde/autolens/internal/store"
)

var designCmd = &cobra.Command{
	Use:   "design",
	Short: "Design a lens with the aperture curriculum",
	Long: `Design a lens from a YAML configuration. The run directory receives the
resolved config, lens snapshots with analysis at every evaluation, the loss
history and the final lens.`,
	RunE: runDesign,
}

func init() {
	rootCmd.AddCommand(designCmd)
	addDesignFlags(designCmd)
}

func addDesignFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("config", "configs/auto_lens_design.yml", "Design configuration file")
	f.String("exp-name", "", "Experiment name")
	f.Int64("seed", 0, "Random seed (0 picks one)")
	f.Int("iterations", 0, "Curriculum iterations")
	f.Int("test-per-iter", 0, "Evaluation interval")
	f.Int("finetune-iters", 0, "Fine-tune iterations at full aperture after the curriculum")
	f.String("center-method", "", "PSF center estimate: pinhole or chief_ray")
	f.String("init-lens", "", "Start from a saved lens instead of a flat design")
	f.String("result-dir", "", "Directory that receives run directories")
}

// flagKeys maps command-line flags to configuration keys.
var flagKeys = map[string]string{
	"exp-name":       "exp_name",
	"seed":           "seed",
	"iterations":     "iterations",
	"test-per-iter":  "test_per_iter",
	"finetune-iters": "finetune_iters",
	"center-method":  "center_method",
	"init-lens":      "init_lens",
	"result-dir":     "result_dir",
}

func setDesignDefaults(v *viper.Viper) {
	def := curriculum.DefaultConfig()
	v.SetDefault("exp_name", "autolens")
	v.SetDefault("seed", 0)
	v.SetDefault("foclen", 50.0)
	v.SetDefault("fov", 40.0)
	v.SetDefault("fnum", 4.0)
	v.SetDefault("flange", 1.0)
	v.SetDefault("thickness", 60.0)
	v.SetDefault("lens_type", [][]string{{"Spheric", "Spheric"}, {"Aperture"}, {"Spheric", "Spheric"}})
	v.SetDefault("lrs", def.LRs)
	v.SetDefault("decay", def.Decay)
	v.SetDefault("iterations", def.Iterations)
	v.SetDefault("test_per_iter", def.TestPerIter)
	v.SetDefault("importance_sampling", def.ImportanceSampling)
	v.SetDefault("optim_mat", false)
	v.SetDefault("match_mat", false)
	v.SetDefault("center_method", string(def.CenterMethod))
	v.SetDefault("num_grid", def.NumGrid)
	v.SetDefault("spp", def.SPP)
	v.SetDefault("depth", def.Depth)
	v.SetDefault("finetune_iters", 0)
	v.SetDefault("finetune_patience", 0)
	v.SetDefault("result_dir", def.OutDir)
}

// loadDesignConfig resolves defaults, the config file and changed flags, in
// increasing precedence. A missing config file is only an error when the
// user named it explicitly.
func loadDesignConfig(cmd *cobra.Command) (*store.RunConfig, error) {
	v := viper.New()
	setDesignDefaults(v)

	path, _ := cmd.Flags().GetString("config")
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		if cmd.Flags().Changed("config") || !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		slog.Warn("Config file not found, using defaults", "path", path)
	}

	for flag, key := range flagKeys {
		if cmd.Flags().Changed(flag) {
			if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
				return nil, fmt.Errorf("failed to bind flag %s: %w", flag, err)
			}
		}
	}

	var cfg store.RunConfig
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) { dc.TagName = "yaml" }); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// curriculumConfig maps the run configuration onto the optimizer settings.
func curriculumConfig(cfg *store.RunConfig, outDir string) (curriculum.Config, error) {
	method, err := optics.ParseCenterMethod(cfg.CenterMethod)
	if err != nil {
		return curriculum.Config{}, err
	}
	c := curriculum.DefaultConfig()
	c.LRs = cfg.LRs
	c.Decay = cfg.Decay
	c.Iterations = cfg.Iterations
	c.TestPerIter = cfg.TestPerIter
	c.Depth = cfg.Depth
	c.NumGrid = cfg.NumGrid
	c.SPP = cfg.SPP
	c.ImportanceSampling = cfg.ImportanceSampling
	c.CenterMethod = method
	c.OptimMat = cfg.OptimMat
	c.MatchMat = cfg.MatchMat
	c.Patience = cfg.FinetunePatience
	c.OutDir = outDir
	return c, c.Validate()
}

// newRunName returns <MMDD-HHMMSS>-AutoLens-RMS-<4 chars>.
func newRunName(now time.Time) string {
	return fmt.Sprintf("%s-AutoLens-RMS-%s", now.Format("0102-150405"), uuid.NewString()[:4])
}

// buildLens loads the initial lens or creates a flat one from the targets.
func buildLens(cfg *store.RunConfig) (*geolens.Lens, error) {
	if cfg.InitLens != "" {
		l, err := geolens.LoadJSON(cfg.InitLens, cfg.Seed)
		if err != nil {
			return nil, err
		}
		if cfg.FOV > 0 && cfg.FNum > 0 {
			l.SetTargetFOVFNum(cfg.FOV/2*math.Pi/180, cfg.FNum)
		}
		return l, nil
	}
	return geolens.Create(geolens.CreateSpec{
		FocLen:    cfg.FocLen,
		FOV:       cfg.FOV,
		FNum:      cfg.FNum,
		Flange:    cfg.Flange,
		Thickness: cfg.Thickness,
		LensType:  cfg.LensType,
		Seed:      cfg.Seed,
	})
}

func runDesign(cmd *cobra.Command, args []string) error {
	cfg, err := loadDesignConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Seed == 0 {
		cfg.Seed = rand.New(rand.NewSource(time.Now().UnixNano())).Int63n(100000) + 1
	}

	runStore, err := store.NewFSStore(cfg.ResultDir)
	if err != nil {
		return fmt.Errorf("failed to create run store: %w", err)
	}
	runName := newRunName(time.Now())
	runDir, err := runStore.CreateRun(runName)
	if err != nil {
		return err
	}
	if err := runStore.SaveConfig(runName, cfg); err != nil {
		return err
	}

	logFile, err := os.Create(filepath.Join(runDir, "output.log"))
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}
	setupLogger(io.MultiWriter(os.Stdout, logFile))
	defer func() {
		setupLogger(os.Stdout)
		logFile.Close()
	}()

	slog.Info("Starting design run",
		"run", runName,
		"exp_name", cfg.ExpName,
		"seed", cfg.Seed,
		"dir", runDir,
	)

	lens, err := buildLens(cfg)
	if err != nil {
		return fmt.Errorf("failed to build lens: %w", err)
	}
	slog.Info("Design target",
		"foclen", lens.FocLen,
		"fov", 2*lens.HFOV*180/math.Pi,
		"fnum", lens.FNum,
	)
	ccfg, err := curriculumConfig(cfg, runDir)
	if err != nil {
		return err
	}

	history, err := store.NewLossWriter(runDir, false)
	if err != nil {
		return err
	}
	defer history.Close()

	designer, err := curriculum.New(lens, ccfg, curriculum.WithProgress(func(p curriculum.Progress) {
		entry := store.LossEntry{
			Phase:     p.Phase,
			Iteration: p.Iteration,
			Loss:      p.Loss,
			RMS:       p.RMS,
			Reg:       p.Reg,
			Aperture:  p.Aperture,
			LRScale:   p.LRScale,
			Timestamp: time.Now(),
		}
		if err := history.Write(entry); err != nil {
			slog.Warn("Failed to record loss", "iteration", p.Iteration, "error", err)
		}
		if p.Evaluated {
			history.Flush()
		}
	}))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	if err := designer.Run(ctx); err != nil {
		return fmt.Errorf("design run failed: %w", err)
	}
	if cfg.FinetuneIters > 0 {
		if err := designer.FineTune(ctx, cfg.FinetuneIters); err != nil {
			return fmt.Errorf("fine-tune failed: %w", err)
		}
	}

	if err := lens.PruneSurfaces(ctx, 0.02); err != nil {
		return fmt.Errorf("failed to prune surfaces: %w", err)
	}
	slog.Info("Actual design",
		"efl", lens.EffectiveFocalLength(),
		"fov", 2*lens.HFOV*180/math.Pi,
		"r_sensor", lens.RSensor,
		"fnum", lens.FNum,
	)

	if err := exportFinal(ctx, lens, runDir); err != nil {
		return err
	}
	slog.Info("Design run complete", "run", runName, "elapsed", time.Since(start).String())
	fmt.Printf("Final lens written to %s\n", filepath.Join(runDir, "final_lens.json"))
	return nil
}

// exportFinal writes final_lens.json with its full analysis set.
func exportFinal(ctx context.Context, lens *geolens.Lens, runDir string) error {
	prefix := filepath.Join(runDir, "final_lens")
	if err := lens.WriteLensJSON(prefix + ".json"); err != nil {
		return fmt.Errorf("failed to write final lens: %w", err)
	}
	opts := optics.AnalysisOptions{ZmxFormat: true, PlotInvalid: true, MultiPlot: true}
	if err := lens.Analysis(ctx, prefix, opts); err != nil {
		return fmt.Errorf("failed to analyze final lens: %w", err)
	}
	return nil
}
