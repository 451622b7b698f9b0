package store

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"gopkg.in/yaml.v3"
)

const (
	configFile = "config.yml"
	finalLens  = "final_lens.json"
)

// Snapshot lens files in order of precedence after the final lens.
var snapshotKinds = []struct {
	prefix string
	re     *regexp.Regexp
}{
	{"finetune_iter", regexp.MustCompile(`^finetune_iter(\d+)\.json$`)},
	{"iter", regexp.MustCompile(`^iter(\d+)\.json$`)},
}

// FSStore implements the Store interface on the filesystem.
// Runs are stored one per directory: <baseDir>/<run>/
//
// Thread-safety: writes use temp file + rename and no locks are held.
type FSStore struct {
	baseDir string // Root directory for all runs (e.g., "./results")
}

// NewFSStore creates a new filesystem-based store.
// The baseDir will be created if it doesn't exist.
func NewFSStore(baseDir string) (*FSStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	return &FSStore{baseDir: baseDir}, nil
}

// BaseDir returns the root directory of the store.
func (fs *FSStore) BaseDir() string {
	return fs.baseDir
}

// RunDir returns the directory path for a given run.
func (fs *FSStore) RunDir(name string) string {
	return filepath.Join(fs.baseDir, name)
}

// WriteFileAtomic writes data to path through a temporary file in the same
// directory followed by a rename, so readers never see a partial file.
func WriteFileAtomic(path string, data []byte) error {
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		// Clean up temp file on failure
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// CreateRun creates the directory of a new run.
func (fs *FSStore) CreateRun(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("run name cannot be empty")
	}
	dir := fs.RunDir(name)
	if err := os.Mkdir(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create run directory: %w", err)
	}
	slog.Debug("Run created", "run", name, "path", dir)
	return dir, nil
}

// SaveConfig atomically writes config.yml for the given run.
func (fs *FSStore) SaveConfig(name string, cfg *RunConfig) error {
	if name == "" {
		return fmt.Errorf("run name cannot be empty")
	}
	if cfg == nil {
		return fmt.Errorf("config cannot be nil")
	}
	if err := fs.requireRun(name); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}
	path := filepath.Join(fs.RunDir(name), configFile)
	if err := WriteFileAtomic(path, data); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	slog.Debug("Config saved", "run", name, "path", path)
	return nil
}

// LoadConfig reads config.yml of the given run.
func (fs *FSStore) LoadConfig(name string) (*RunConfig, error) {
	if name == "" {
		return nil, fmt.Errorf("run name cannot be empty")
	}
	path := filepath.Join(fs.RunDir(name), configFile)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, &NotFoundError{Run: name}
	} else if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg RunConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to deserialize config: %w", err)
	}
	return &cfg, nil
}

// ListRuns returns metadata for every run directory, newest first.
// Directories without a config or snapshot are skipped.
func (fs *FSStore) ListRuns() ([]RunInfo, error) {
	entries, err := os.ReadDir(fs.baseDir)
	if errors.Is(err, os.ErrNotExist) {
		return []RunInfo{}, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to read base directory: %w", err)
	}

	infos := []RunInfo{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, ok := fs.runInfo(entry)
		if ok {
			infos = append(infos, info)
		}
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].ModTime.After(infos[j].ModTime)
	})

	slog.Debug("Listed runs", "count", len(infos))
	return infos, nil
}

func (fs *FSStore) runInfo(entry os.DirEntry) (RunInfo, bool) {
	name := entry.Name()
	info := RunInfo{Name: name, Path: fs.RunDir(name), Iteration: -1}

	cfg, cfgErr := fs.LoadConfig(name)
	if cfgErr == nil {
		info.ExpName = cfg.ExpName
	}
	snapshot, iter, snapErr := fs.LatestSnapshot(name)
	if snapErr == nil {
		info.Snapshot = snapshot
		info.Iteration = iter
		info.Final = filepath.Base(snapshot) == finalLens
	}
	if cfgErr != nil && snapErr != nil {
		return RunInfo{}, false
	}

	if st, err := entry.Info(); err == nil {
		info.ModTime = st.ModTime()
	}
	if history, err := ReadLossHistory(info.Path); err == nil && len(history) > 0 {
		info.HasHistory = true
		info.LastLoss = history[len(history)-1].Loss
	}
	return info, true
}

// LatestSnapshot returns the most recent lens snapshot of a run: the final
// lens if present (iteration -1), otherwise the highest fine-tune or
// curriculum iteration.
func (fs *FSStore) LatestSnapshot(name string) (string, int, error) {
	dir := fs.RunDir(name)
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return "", 0, &NotFoundError{Run: name}
	} else if err != nil {
		return "", 0, fmt.Errorf("failed to read run directory: %w", err)
	}

	best := make([]int, len(snapshotKinds))
	for i := range best {
		best[i] = -1
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if entry.Name() == finalLens {
			return filepath.Join(dir, finalLens), -1, nil
		}
		for i, kind := range snapshotKinds {
			m := kind.re.FindStringSubmatch(entry.Name())
			if m == nil {
				continue
			}
			if n, err := strconv.Atoi(m[1]); err == nil && n > best[i] {
				best[i] = n
			}
		}
	}

	for i, n := range best {
		if n >= 0 {
			file := fmt.Sprintf("%s%d.json", snapshotKinds[i].prefix, n)
			return filepath.Join(dir, file), n, nil
		}
	}
	return "", 0, &NotFoundError{Run: name}
}

// DeleteRun removes the run directory and all associated artifacts.
func (fs *FSStore) DeleteRun(name string) error {
	if name == "" {
		return fmt.Errorf("run name cannot be empty")
	}
	if err := fs.requireRun(name); err != nil {
		return err
	}

	dir := fs.RunDir(name)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove run directory: %w", err)
	}

	slog.Debug("Run deleted", "run", name, "path", dir)
	return nil
}

func (fs *FSStore) requireRun(name string) error {
	st, err := os.Stat(fs.RunDir(name))
	if errors.Is(err, os.ErrNotExist) {
		return &NotFoundError{Run: name}
	} else if err != nil {
		return fmt.Errorf("failed to stat run directory: %w", err)
	}
	if !st.IsDir() {
		return &NotFoundError{Run: name}
	}
	return nil
}
