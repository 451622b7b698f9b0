package store

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestLossWriter_WriteAndRead(t *testing.T) {
	runDir := filepath.Join(t.TempDir(), "run-1")

	writer, err := NewLossWriter(runDir, false)
	if err != nil {
		t.Fatalf("Failed to create loss writer: %v", err)
	}

	entries := []LossEntry{
		{Phase: "curriculum", Iteration: 0, Loss: 1.0, RMS: 0.9, Reg: 1.0, Aperture: 0.6, Timestamp: time.Now()},
		{Phase: "curriculum", Iteration: 1, Loss: 0.8, RMS: 0.7, Reg: 1.0, Aperture: 0.6, LRScale: 0.1, Timestamp: time.Now()},
		{Phase: "finetune", Iteration: 0, Loss: 0.4, RMS: 0.4, Timestamp: time.Now()},
	}
	for _, entry := range entries {
		if err := writer.Write(entry); err != nil {
			t.Fatalf("Failed to write entry: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Failed to close writer: %v", err)
	}
	if writer.Path() != filepath.Join(runDir, LossFile) {
		t.Errorf("Unexpected path %s", writer.Path())
	}

	got, err := ReadLossHistory(runDir)
	if err != nil {
		t.Fatalf("Failed to read history: %v", err)
	}
	if len(got) != len(entries) {
		t.Fatalf("Expected %d entries, got %d", len(entries), len(got))
	}
	for i := range entries {
		if got[i].Phase != entries[i].Phase || got[i].Iteration != entries[i].Iteration || got[i].Loss != entries[i].Loss {
			t.Errorf("Entry %d mismatch: got %+v, want %+v", i, got[i], entries[i])
		}
	}
	if got[1].LRScale != 0.1 {
		t.Errorf("LRScale not preserved: %v", got[1].LRScale)
	}
}

func TestLossWriter_Append(t *testing.T) {
	runDir := t.TempDir()

	for round := 0; round < 2; round++ {
		w, err := NewLossWriter(runDir, round > 0)
		if err != nil {
			t.Fatalf("Failed to create writer: %v", err)
		}
		if err := w.Write(LossEntry{Iteration: round}); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
		if err := w.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}

	got, err := ReadLossHistory(runDir)
	if err != nil {
		t.Fatalf("Failed to read history: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 entries after append, got %d", len(got))
	}

	// Truncate on a fresh writer
	w, err := NewLossWriter(runDir, false)
	if err != nil {
		t.Fatalf("Failed to create writer: %v", err)
	}
	w.Close()
	got, _ = ReadLossHistory(runDir)
	if len(got) != 0 {
		t.Errorf("Expected empty history after truncate, got %d", len(got))
	}
}

func TestLossWriter_Concurrent(t *testing.T) {
	runDir := t.TempDir()
	w, err := NewLossWriter(runDir, false)
	if err != nil {
		t.Fatalf("Failed to create writer: %v", err)
	}

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				w.Write(LossEntry{Iteration: g*50 + i})
			}
		}(g)
	}
	wg.Wait()
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	got, err := ReadLossHistory(runDir)
	if err != nil {
		t.Fatalf("Failed to read history: %v", err)
	}
	if len(got) != 400 {
		t.Errorf("Expected 400 entries, got %d", len(got))
	}
}

func TestLossReader_Errors(t *testing.T) {
	runDir := t.TempDir()

	if _, err := NewLossReader(runDir); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}

	if err := os.WriteFile(filepath.Join(runDir, LossFile), []byte("{\"iteration\":1}\nnot json\n"), 0644); err != nil {
		t.Fatal(err)
	}
	r, err := NewLossReader(runDir)
	if err != nil {
		t.Fatalf("NewLossReader failed: %v", err)
	}
	defer r.Close()

	if e, err := r.Read(); err != nil || e.Iteration != 1 {
		t.Fatalf("First read: %+v, %v", e, err)
	}
	if _, err := r.Read(); err == nil || err == io.EOF {
		t.Errorf("Expected unmarshal error, got %v", err)
	}
}
