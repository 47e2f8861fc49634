package dbwriter

import (
	"context"
	"sync"

	"github.com/chensirou3/Multi-factor-combination/internal/grid"
	"github.com/chensirou3/Multi-factor-combination/internal/oos"
)

// SavedTable is one SaveTable call recorded by InMemWriter.
type SavedTable struct {
	Run   Run
	Table *grid.Table
}

// SavedStability is one SaveStability call recorded by InMemWriter.
type SavedStability struct {
	Run    Run
	Report *oos.Report
}

// InMemWriter is an in-memory implementation of the ResultStore interface for testing.
type InMemWriter struct {
	mu          sync.RWMutex
	Tables      []SavedTable
	Stabilities []SavedStability
	IsClosed    bool
}

// NewInMemWriter creates a new InMemWriter.
func NewInMemWriter() *InMemWriter {
	return &InMemWriter{
		Tables:      make([]SavedTable, 0),
		Stabilities: make([]SavedStability, 0),
	}
}

// SaveTable appends the table to the in-memory slice.
func (w *InMemWriter) SaveTable(ctx context.Context, run Run, table *grid.Table) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Tables = append(w.Tables, SavedTable{Run: run, Table: table})
	return int64(len(table.Rows)), nil
}

// SaveStability appends the report to the in-memory slice.
func (w *InMemWriter) SaveStability(ctx context.Context, run Run, rep *oos.Report) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Stabilities = append(w.Stabilities, SavedStability{Run: run, Report: rep})
	return nil
}

// Phases returns the phase of every saved table in call order.
func (w *InMemWriter) Phases() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]string, len(w.Tables))
	for i, t := range w.Tables {
		out[i] = t.Run.Phase
	}
	return out
}

// Close marks the writer as closed.
func (w *InMemWriter) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.IsClosed = true
}
