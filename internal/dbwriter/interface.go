package dbwriter

import (
	"context"

	"github.com/chensirou3/Multi-factor-combination/internal/grid"
	"github.com/chensirou3/Multi-factor-combination/internal/oos"
)

// ResultStore defines the interface for persisting research results.
// This allows for mocking in tests.
type ResultStore interface {
	SaveTable(ctx context.Context, run Run, table *grid.Table) (int64, error)
	SaveStability(ctx context.Context, run Run, rep *oos.Report) error
	Close()
}
