// Package grid evaluates a set of signal configurations against one bar
// series in parallel and collects the results into a table.
package grid

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/chensirou3/Multi-factor-combination/internal/backtest"
	"github.com/chensirou3/Multi-factor-combination/internal/bar"
	"github.com/chensirou3/Multi-factor-combination/internal/report"
	"github.com/chensirou3/Multi-factor-combination/internal/signal"
)

// SimParams are the simulation settings shared by every row of a grid.
type SimParams struct {
	CostBps     float64
	BarsPerYear float64
	// Workers bounds the number of concurrent evaluations. Zero means
	// GOMAXPROCS.
	Workers int
}

// Row is the outcome of one configuration.
type Row struct {
	Index  int
	Config signal.Config
	Record report.Record
	// Err is set when the configuration failed. Such rows carry a zero
	// Record and are excluded from ranking.
	Err error
}

// Failed reports whether the row is an error marker.
func (r Row) Failed() bool { return r.Err != nil }

// Table is the collection of rows for one series, in input order.
type Table struct {
	Symbol string
	Mode   signal.Mode
	Rows   []Row
}

// Evaluate runs the signal, simulate, summarize pipeline for one
// configuration. A panic inside the pipeline is returned as an error.
func Evaluate(s *bar.Series, cfg signal.Config, p SimParams) (rec report.Record, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("evaluate %s: panic: %v", cfg.Key(), r)
		}
	}()

	if err := cfg.Validate(); err != nil {
		return report.Record{}, err
	}
	sig, err := signal.Generate(s, cfg)
	if err != nil {
		return report.Record{}, err
	}
	res, err := backtest.Simulate(s, sig.Exec, backtest.Params{HoldingBars: cfg.HoldingBars, CostBps: p.CostBps})
	if err != nil {
		return report.Record{}, err
	}
	return report.Summarize(res.Trades, res.Equity, p.BarsPerYear), nil
}

// Run evaluates every configuration. Each configuration is independent; a
// failure is recorded on its row and does not stop the others. The only
// error returned is the context's.
func Run(ctx context.Context, s *bar.Series, configs []signal.Config, p SimParams, logger *zap.Logger) (*Table, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	workers := p.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	var mode signal.Mode
	if len(configs) > 0 {
		mode = configs[0].Mode
	}
	table := &Table{Symbol: s.Symbol(), Mode: mode, Rows: make([]Row, len(configs))}

	logger.Info("Starting grid search",
		zap.String("symbol", s.Symbol()),
		zap.String("mode", mode.String()),
		zap.Int("configs", len(configs)),
		zap.Int("bars", s.Len()),
		zap.Int("workers", workers),
	)

	var done, failed atomic.Int64
	step := int64(len(configs) / 10)
	if step == 0 {
		step = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, cfg := range configs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rec, err := Evaluate(s, cfg, p)
			table.Rows[i] = Row{Index: i, Config: cfg, Record: rec, Err: err}
			if err != nil {
				failed.Add(1)
				logger.Warn("Configuration failed", zap.String("config", cfg.Key()), zap.Error(err))
			}
			if n := done.Add(1); n%step == 0 {
				logger.Debug("Grid progress", zap.Int64("done", n), zap.Int("total", len(configs)))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	logger.Info("Grid search finished",
		zap.String("symbol", s.Symbol()),
		zap.Int64("evaluated", done.Load()),
		zap.Int64("failed", failed.Load()),
	)
	return table, nil
}

// Valid returns the rows that did not fail.
func (t *Table) Valid() []Row {
	out := make([]Row, 0, len(t.Rows))
	for _, r := range t.Rows {
		if !r.Failed() {
			out = append(out, r)
		}
	}
	return out
}

// Failed returns the error-marker rows.
func (t *Table) Failed() []Row {
	var out []Row
	for _, r := range t.Rows {
		if r.Failed() {
			out = append(out, r)
		}
	}
	return out
}

// Lookup finds the row for cfg.
func (t *Table) Lookup(cfg signal.Config) (Row, bool) {
	for _, r := range t.Rows {
		if r.Config == cfg {
			return r, true
		}
	}
	return Row{}, false
}

// Field is a sortable record column.
type Field int

const (
	FieldSharpe Field = iota
	FieldTotalReturn
	FieldWinRate
	FieldMaxDrawdown
	FieldTrades
)

var fieldNames = map[Field]string{
	FieldSharpe:      "sharpe",
	FieldTotalReturn: "total_return",
	FieldWinRate:     "win_rate",
	FieldMaxDrawdown: "max_drawdown",
	FieldTrades:      "trades",
}

func (f Field) String() string { return fieldNames[f] }

// ParseField converts a column name into a Field.
func ParseField(s string) (Field, error) {
	for f, name := range fieldNames {
		if name == s {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unknown sort field %q", s)
}

// Value extracts the field from a record.
func (f Field) Value(r report.Record) float64 {
	switch f {
	case FieldTotalReturn:
		return r.TotalReturn
	case FieldWinRate:
		return r.WinRate
	case FieldMaxDrawdown:
		return r.MaxDrawdown
	case FieldTrades:
		return float64(r.TotalTrades)
	default:
		return r.SharpeRatio
	}
}

// SortRows orders rows by field, breaking ties by configuration parameters
// (signal.Config.Compare) so the order is deterministic.
func SortRows(rows []Row, field Field, desc bool) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := field.Value(rows[i].Record), field.Value(rows[j].Record)
		if a != b {
			if desc {
				return a > b
			}
			return a < b
		}
		return rows[i].Config.Compare(rows[j].Config) < 0
	})
}

// Sorted returns the valid rows ordered by field.
func (t *Table) Sorted(field Field, desc bool) []Row {
	rows := t.Valid()
	SortRows(rows, field, desc)
	return rows
}
