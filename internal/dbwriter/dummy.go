package dbwriter

import (
	"context"

	"github.com/chensirou3/Multi-factor-combination/internal/grid"
	"github.com/chensirou3/Multi-factor-combination/internal/oos"
	"github.com/chensirou3/Multi-factor-combination/pkg/logger"
)

// dummyWriter is a no-op implementation of the ResultStore interface.
// It is used when the database is disabled.
type dummyWriter struct {
	logger logger.Logger
}

// NewDummyWriter creates a new dummy writer.
func NewDummyWriter(l logger.Logger) ResultStore {
	l.Info("Database disabled, results are written to CSV only.")
	return &dummyWriter{logger: l}
}

// SaveTable does nothing and reports zero rows.
func (d *dummyWriter) SaveTable(ctx context.Context, run Run, table *grid.Table) (int64, error) {
	d.logger.Debugf("Dummy writer: SaveTable called for %s/%s (%d rows)", run.Symbol, run.Phase, len(table.Rows))
	return 0, nil
}

// SaveStability does nothing and returns nil.
func (d *dummyWriter) SaveStability(ctx context.Context, run Run, rep *oos.Report) error {
	d.logger.Debugf("Dummy writer: SaveStability called for %s", rep.Symbol)
	return nil
}

// Close does nothing.
func (d *dummyWriter) Close() {
	d.logger.Debug("Dummy writer: Close called")
}
