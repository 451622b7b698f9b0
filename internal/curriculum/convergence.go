package curriculum

import (
	"log/slog"
	"math"
)

// convergenceTracker watches the loss at evaluation boundaries of a
// fine-tune pass and reports when it has stopped improving.
type convergenceTracker struct {
	patience  int     // evaluations without improvement before stopping, 0 disables
	threshold float64 // minimum relative improvement that counts as progress

	best            float64
	lastSignificant float64
	stale           int
	seen            int
}

func newConvergenceTracker(patience int, threshold float64) *convergenceTracker {
	return &convergenceTracker{
		patience:        patience,
		threshold:       threshold,
		best:            math.Inf(1),
		lastSignificant: math.Inf(1),
	}
}

// Update records a loss and returns true once the pass has converged.
func (c *convergenceTracker) Update(loss float64) bool {
	if c.patience <= 0 {
		return false
	}
	c.seen++
	if loss < c.best {
		c.best = loss
	}
	if c.seen == 1 {
		c.lastSignificant = loss
		return false
	}

	improvement := (c.lastSignificant - loss) / c.lastSignificant
	if improvement >= c.threshold {
		c.lastSignificant = loss
		c.stale = 0
		return false
	}

	c.stale++
	slog.Debug("No significant loss improvement",
		"loss", loss,
		"last_significant", c.lastSignificant,
		"stale", c.stale,
		"patience", c.patience,
	)
	return c.stale >= c.patience
}

// Best returns the lowest loss seen.
func (c *convergenceTracker) Best() float64 {
	return c.best
}
