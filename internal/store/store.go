package store

// Store defines the interface for run directory management.
// Implementations must be safe for concurrent use.
//
// Error handling conventions:
//   - Return ErrNotFound if a run doesn't exist (for Load/Delete/Latest)
//   - Wrap underlying errors with context using fmt.Errorf("context: %w", err)
type Store interface {
	// CreateRun creates the directory of a new run and returns its path.
	// Creating a run that already exists is an error.
	CreateRun(name string) (string, error)

	// SaveConfig writes the resolved configuration of a run as config.yml.
	SaveConfig(name string, cfg *RunConfig) error

	// LoadConfig reads config.yml of a run.
	LoadConfig(name string) (*RunConfig, error)

	// ListRuns returns metadata for every run, newest first.
	ListRuns() ([]RunInfo, error)

	// LatestSnapshot returns the path and iteration of the most recent lens
	// snapshot of a run. A run with a final lens reports it with iteration -1.
	LatestSnapshot(name string) (string, int, error)

	// DeleteRun removes a run directory and all artifacts in it.
	DeleteRun(name string) error
}

// ErrNotFound is returned when a requested run does not exist.
// Use errors.Is(err, ErrNotFound) to check for this error.
var ErrNotFound = &NotFoundError{}

// NotFoundError represents a missing run or artifact.
type NotFoundError struct {
	Run string
}

func (e *NotFoundError) Error() string {
	if e.Run != "" {
		return "run not found: " + e.Run
	}
	return "run not found"
}

func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}
