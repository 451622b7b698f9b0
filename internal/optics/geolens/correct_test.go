package geolens

import (
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/golang/geo/r2"

	"github.com/cwbudde/autolens/internal/optics"
)

func axialRMS(t *testing.T, l *Lens) float64 {
	t.Helper()
	b, err := l.axialBundle(context.Background(), optics.DefaultDepth)
	if err != nil {
		t.Fatalf("axialBundle failed: %v", err)
	}
	return spotRMS(b.ProjectTo(l.DSensor), b.Valid, r2.Point{})
}

func TestCorrectShape_Refocus(t *testing.T) {
	l := newSinglet(t)
	l.DSensor = 56
	before := axialRMS(t, l)

	if err := l.CorrectShape(context.Background()); err != nil {
		t.Fatalf("CorrectShape failed: %v", err)
	}
	after := axialRMS(t, l)
	if after >= before {
		t.Errorf("Refocus did not improve the on-axis spot: %v -> %v", before, after)
	}
	if l.DSensor >= 56 || l.DSensor < 50 {
		t.Errorf("Sensor moved to %v, expected towards the focus near 52.7", l.DSensor)
	}
}

func TestCorrectShape_RestoresGaps(t *testing.T) {
	l := newSinglet(t)
	l.Surfaces[2].D = 1.1
	l.Surfaces[1].C = 1.0 / 7 // conic undefined at the clear radius

	if err := l.CorrectShape(context.Background()); err != nil {
		t.Fatalf("CorrectShape failed: %v", err)
	}

	s := l.Surfaces[1]
	if arg := (1 + s.K) * s.C * s.C * s.R * s.R; arg > maxConicArg+1e-12 {
		t.Errorf("Curvature not clamped, arg = %v", arg)
	}
	for i := 0; i < len(l.Surfaces)-1; i++ {
		if gap := l.Surfaces[i+1].D - l.Surfaces[i].D; gap < l.minGap(i)-1e-9 {
			t.Errorf("Gap after surface %d is %v", i, gap)
		}
	}
	if back := l.DSensor - l.lastD(); back < l.Flange-1e-9 {
		t.Errorf("Back distance %v below flange", back)
	}
}

func TestMatchMaterials(t *testing.T) {
	l := newSinglet(t)
	mat := l.Surfaces[1].Mat2
	mat.Name = "optimized"
	mat.N, mat.V = 1.64, 34.5

	if err := l.MatchMaterials(); err != nil {
		t.Fatalf("MatchMaterials failed: %v", err)
	}
	if l.Surfaces[1].Mat2 != mat {
		t.Error("Material pointer replaced, registered params would be lost")
	}
	if mat.Name != "N-SF2" {
		t.Errorf("Matched %s, want N-SF2", mat.Name)
	}
	if !l.Surfaces[2].Mat2.IsAir() {
		t.Error("Air was matched to a glass")
	}
}

func TestAnalysis_WritesArtifacts(t *testing.T) {
	l := newSinglet(t)
	prefix := filepath.Join(t.TempDir(), "iter0")

	err := l.Analysis(context.Background(), prefix, optics.AnalysisOptions{ZmxFormat: true, PlotInvalid: true})
	if err != nil {
		t.Fatalf("Analysis failed: %v", err)
	}
	for _, name := range []string{"iter0_rms.json", "iter0.png", "iter0.zmx"} {
		if _, err := os.Stat(filepath.Join(filepath.Dir(prefix), name)); err != nil {
			t.Errorf("Missing artifact %s: %v", name, err)
		}
	}

	data, err := os.ReadFile(prefix + "_rms.json")
	if err != nil {
		t.Fatal(err)
	}
	var report Report
	if err := json.Unmarshal(data, &report); err != nil {
		t.Fatalf("Report is not valid JSON: %v", err)
	}
	if len(report.Spots) != len(optics.WaveRGB)*len(analysisFields) {
		t.Errorf("Expected %d spots, got %d", len(optics.WaveRGB)*len(analysisFields), len(report.Spots))
	}
	if report.AvgRMS <= 0 || math.Abs(report.EFL-49) > 1 {
		t.Errorf("Unexpected report: avg %v efl %v", report.AvgRMS, report.EFL)
	}
}

func TestAnalysis_MultiPlot(t *testing.T) {
	l := newSinglet(t)
	dir := t.TempDir()
	prefix := filepath.Join(dir, "final")

	if err := l.Analysis(context.Background(), prefix, optics.AnalysisOptions{MultiPlot: true}); err != nil {
		t.Fatalf("Analysis failed: %v", err)
	}
	for _, name := range []string{"final_656nm.png", "final_589nm.png", "final_486nm.png"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("Missing %s: %v", name, err)
		}
	}
	if _, err := os.Stat(prefix + ".zmx"); !os.IsNotExist(err) {
		t.Error("Prescription written without ZmxFormat")
	}
}

func TestPruneSurfaces(t *testing.T) {
	l := newSinglet(t)
	stop := l.ApertureRadius()

	if err := l.PruneSurfaces(context.Background(), 0.02); err != nil {
		t.Fatalf("PruneSurfaces failed: %v", err)
	}
	if l.ApertureRadius() != stop {
		t.Error("Stop radius changed")
	}
	for i, s := range l.Surfaces[1:] {
		if s.R >= 8 || s.R < stop {
			t.Errorf("Surface %d radius %v not pruned to the footprint", i+1, s.R)
		}
	}

	// The pruned lens still passes every ray the stop admits
	b, err := l.axialBundle(context.Background(), optics.DefaultDepth)
	if err != nil {
		t.Fatalf("axialBundle failed: %v", err)
	}
	if b.ValidCount(0) != float64(b.SPP) {
		t.Errorf("Pruning vignetted on-axis rays: %v of %d", b.ValidCount(0), b.SPP)
	}
}
