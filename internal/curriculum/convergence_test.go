package curriculum

import (
	"context"
	"testing"
)

func TestConvergenceTracker(t *testing.T) {
	c := newConvergenceTracker(2, 0.01)

	losses := []float64{1.0, 0.5, 0.499, 0.4, 0.399, 0.398}
	want := []bool{false, false, false, false, false, true}
	for i, loss := range losses {
		if got := c.Update(loss); got != want[i] {
			t.Errorf("Update(%v) at %d = %v, want %v", loss, i, got, want[i])
		}
	}
	if c.Best() != 0.398 {
		t.Errorf("Best = %v, want 0.398", c.Best())
	}
}

func TestConvergenceTracker_Disabled(t *testing.T) {
	c := newConvergenceTracker(0, 0.01)
	for i := 0; i < 10; i++ {
		if c.Update(1) {
			t.Fatal("Disabled tracker reported convergence")
		}
	}
}

func TestFineTuneStopsEarly(t *testing.T) {
	eng := newFakeEngine()
	cfg := testConfig(t)
	cfg.Patience = 1

	var steps int
	d, err := New(eng, cfg, WithProgress(func(Progress) { steps++ }))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := d.FineTune(context.Background(), 50); err != nil {
		t.Fatalf("FineTune failed: %v", err)
	}

	// The loss is flat, so the second evaluation ends the pass
	if len(eng.writes) != 2 {
		t.Errorf("Expected snapshots at 0 and 5, got %v", eng.writes)
	}
	if steps != 6 {
		t.Errorf("Expected 6 steps, got %d", steps)
	}
}

func TestRunIgnoresPatience(t *testing.T) {
	eng := newFakeEngine()
	cfg := testConfig(t)
	cfg.Patience = 1

	d, _ := New(eng, cfg)
	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(eng.writes) != 3 {
		t.Errorf("Curriculum must run to the end, got snapshots %v", eng.writes)
	}
}
