package store

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// LossFile is the name of the loss history inside a run directory.
const LossFile = "loss.jsonl"

// LossEntry is one optimization step in the loss history.
// Each entry is serialized as a JSON line in loss.jsonl.
type LossEntry struct {
	Phase     string    `json:"phase"`
	Iteration int       `json:"iteration"`
	Loss      float64   `json:"loss"`
	RMS       float64   `json:"rms"`
	Reg       float64   `json:"reg"`
	Aperture  float64   `json:"aperture"`
	LRScale   float64   `json:"lrScale"`
	Timestamp time.Time `json:"timestamp"`
}

// LossWriter writes loss entries to a JSONL file.
// It uses buffered I/O and is safe for concurrent use.
type LossWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
	path   string
}

// NewLossWriter creates a loss writer at <runDir>/loss.jsonl.
// If append is true, new entries are appended to an existing file.
func NewLossWriter(runDir string, append bool) (*LossWriter, error) {
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create run directory: %w", err)
	}

	path := filepath.Join(runDir, LossFile)
	var file *os.File
	var err error
	if append {
		file, err = os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	} else {
		file, err = os.Create(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open loss file: %w", err)
	}

	return &LossWriter{
		file:   file,
		writer: bufio.NewWriterSize(file, 64*1024),
		path:   path,
	}, nil
}

// Write appends an entry. It is buffered until Flush or Close.
func (lw *LossWriter) Write(entry LossEntry) error {
	lw.mu.Lock()
	defer lw.mu.Unlock()

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal loss entry: %w", err)
	}
	if _, err := lw.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write loss entry: %w", err)
	}
	if err := lw.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}
	return nil
}

// Flush writes buffered data and syncs the file.
func (lw *LossWriter) Flush() error {
	lw.mu.Lock()
	defer lw.mu.Unlock()

	if err := lw.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush loss writer: %w", err)
	}
	if err := lw.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync loss file: %w", err)
	}
	return nil
}

// Close flushes buffered data and closes the file.
func (lw *LossWriter) Close() error {
	lw.mu.Lock()
	defer lw.mu.Unlock()

	if err := lw.writer.Flush(); err != nil {
		lw.file.Close()
		return fmt.Errorf("failed to flush on close: %w", err)
	}
	if err := lw.file.Close(); err != nil {
		return fmt.Errorf("failed to close loss file: %w", err)
	}
	return nil
}

// Path returns the filesystem path to the loss file.
func (lw *LossWriter) Path() string {
	return lw.path
}

// LossReader reads loss entries from a JSONL file.
type LossReader struct {
	file    *os.File
	scanner *bufio.Scanner
}

// NewLossReader opens <runDir>/loss.jsonl.
func NewLossReader(runDir string) (*LossReader, error) {
	file, err := os.Open(filepath.Join(runDir, LossFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &NotFoundError{Run: filepath.Base(runDir)}
		}
		return nil, fmt.Errorf("failed to open loss file: %w", err)
	}
	return &LossReader{file: file, scanner: bufio.NewScanner(file)}, nil
}

// Read returns the next entry, or io.EOF when none are left.
func (lr *LossReader) Read() (*LossEntry, error) {
	if !lr.scanner.Scan() {
		if err := lr.scanner.Err(); err != nil {
			return nil, fmt.Errorf("failed to scan loss line: %w", err)
		}
		return nil, io.EOF
	}

	var entry LossEntry
	if err := json.Unmarshal(lr.scanner.Bytes(), &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal loss entry: %w", err)
	}
	return &entry, nil
}

// ReadAll reads every remaining entry.
func (lr *LossReader) ReadAll() ([]LossEntry, error) {
	var entries []LossEntry
	for {
		entry, err := lr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, nil
}

// Close closes the reader.
func (lr *LossReader) Close() error {
	if err := lr.file.Close(); err != nil {
		return fmt.Errorf("failed to close loss file: %w", err)
	}
	return nil
}

// ReadLossHistory reads the full loss history of a run.
func ReadLossHistory(runDir string) ([]LossEntry, error) {
	lr, err := NewLossReader(runDir)
	if err != nil {
		return nil, err
	}
	defer lr.Close()
	return lr.ReadAll()
}
