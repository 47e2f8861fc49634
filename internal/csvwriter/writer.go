// Package csvwriter writes result tables as CSV files.
package csvwriter

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
)

// ErrFieldCount is returned when a row does not match the header width.
var ErrFieldCount = errors.New("row width does not match header")

// Writer is a CSV writer for one result table. Once a header is written,
// every row must have the same number of fields.
type Writer struct {
	path   string
	file   *os.File
	writer *csv.Writer
	logger *zap.Logger
	mu     sync.Mutex
	width  int
	rows   int
}

// NewWriter creates the file at filePath, truncating an existing one.
func NewWriter(filePath string, logger *zap.Logger) (*Writer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	file, err := os.Create(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create CSV file: %w", err)
	}

	return &Writer{
		path:   filePath,
		file:   file,
		writer: csv.NewWriter(file),
		logger: logger,
	}, nil
}

// WriteHeader writes the column names and fixes the row width.
func (w *Writer) WriteHeader(columns []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.writer.Write(columns); err != nil {
		return fmt.Errorf("failed to write header to CSV: %w", err)
	}
	w.width = len(columns)
	return nil
}

// Write writes a record to the CSV file.
func (w *Writer) Write(record []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.width > 0 && len(record) != w.width {
		return fmt.Errorf("%w: %s row %d has %d fields, want %d", ErrFieldCount, w.path, w.rows+1, len(record), w.width)
	}
	if err := w.writer.Write(record); err != nil {
		return fmt.Errorf("failed to write record to CSV: %w", err)
	}
	w.rows++
	return nil
}

// Rows returns the number of records written after the header.
func (w *Writer) Rows() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rows
}

// Flush flushes any buffered data to the underlying file.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.writer.Flush()
	return w.writer.Error()
}

// Close flushes and closes the file.
func (w *Writer) Close() error {
	flushErr := w.Flush()
	closeErr := w.file.Close()
	w.logger.Debug("Closed CSV file", zap.String("path", w.path), zap.Int("rows", w.rows))
	return errors.Join(flushErr, closeErr)
}
