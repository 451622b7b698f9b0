package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cwbudde/autolens/internal/optics"
	"github.com/cwbudde/autolens/internal/optics/geolens"
	"github.com/cwbudde/autolens/internal/store"
)

var (
	analyzeRun       string
	analyzeResultDir string
	analyzeOut       string
	analyzeZmx       bool
	analyzeMultiPlot bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [lens.json]",
	Short: "Analyze a lens file or the latest snapshot of a run",
	Long: `Compute RMS spot sizes over the field for the RGB lines and write the
report, spot diagram and optional Zemax prescription next to the lens.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().StringVar(&analyzeRun, "run", "", "Analyze the latest snapshot of this run")
	analyzeCmd.Flags().StringVar(&analyzeResultDir, "result-dir", "./results", "Directory containing runs")
	analyzeCmd.Flags().StringVar(&analyzeOut, "out", "", "Output prefix (default: lens path without .json)")
	analyzeCmd.Flags().BoolVar(&analyzeZmx, "zmx", true, "Also write a Zemax prescription")
	analyzeCmd.Flags().BoolVar(&analyzeMultiPlot, "multi-plot", false, "One spot diagram per wavelength")
}

// resolveLensPath picks the lens file from the argument or the run.
func resolveLensPath(args []string) (string, error) {
	if len(args) == 1 {
		if analyzeRun != "" {
			return "", fmt.Errorf("give either a lens file or --run, not both")
		}
		return args[0], nil
	}
	if analyzeRun == "" {
		return "", fmt.Errorf("a lens file or --run is required")
	}

	runStore, err := store.NewFSStore(analyzeResultDir)
	if err != nil {
		return "", fmt.Errorf("failed to open run store: %w", err)
	}
	path, iter, err := runStore.LatestSnapshot(analyzeRun)
	if err != nil {
		return "", err
	}
	slog.Info("Using latest snapshot", "run", analyzeRun, "path", path, "iteration", iter)
	return path, nil
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	path, err := resolveLensPath(args)
	if err != nil {
		return err
	}
	lens, err := geolens.LoadJSON(path, 1)
	if err != nil {
		return err
	}

	prefix := analyzeOut
	if prefix == "" {
		prefix = strings.TrimSuffix(path, ".json")
	}
	opts := optics.AnalysisOptions{ZmxFormat: analyzeZmx, PlotInvalid: true, MultiPlot: analyzeMultiPlot}
	if err := lens.Analysis(context.Background(), prefix, opts); err != nil {
		return fmt.Errorf("failed to analyze lens: %w", err)
	}

	data, err := os.ReadFile(prefix + "_rms.json")
	if err != nil {
		return fmt.Errorf("failed to read analysis report: %w", err)
	}
	var report geolens.Report
	if err := json.Unmarshal(data, &report); err != nil {
		return fmt.Errorf("failed to parse analysis report: %w", err)
	}
	printReport(report)
	return nil
}

func printReport(r geolens.Report) {
	fmt.Printf("Focal length %.4g mm (design %.4g), F/%.3g\n\n", r.EFL, r.FocLen, r.FNum)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "WAVELENGTH\tFIELD\tRMS (um)\tVALID")
	fmt.Fprintln(w, "----------\t-----\t--------\t-----")
	for _, s := range r.Spots {
		rms := "n/a"
		if s.RMS >= 0 {
			rms = fmt.Sprintf("%.2f", s.RMS*1000)
		}
		fmt.Fprintf(w, "%.0f nm\t%.1f\t%s\t%.0f%%\n", s.Wavelength*1000, s.Field, rms, s.Valid*100)
	}
	w.Flush()

	fmt.Printf("\nAverage RMS: %.2f um\n", r.AvgRMS*1000)
}
