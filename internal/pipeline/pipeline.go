// Package pipeline wires a loaded configuration to a bar source, the grid and
// OOS engines, and the result writers. The commands under cmd/ are thin
// wrappers around it.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/chensirou3/Multi-factor-combination/internal/bar"
	"github.com/chensirou3/Multi-factor-combination/internal/benchmark"
	"github.com/chensirou3/Multi-factor-combination/internal/config"
	"github.com/chensirou3/Multi-factor-combination/internal/csvwriter"
	"github.com/chensirou3/Multi-factor-combination/internal/datastore"
	"github.com/chensirou3/Multi-factor-combination/internal/dbwriter"
	"github.com/chensirou3/Multi-factor-combination/internal/grid"
	"github.com/chensirou3/Multi-factor-combination/internal/oos"
	"github.com/chensirou3/Multi-factor-combination/internal/signal"
	"github.com/chensirou3/Multi-factor-combination/pkg/logger"
)

// Number of best rows logged after each grid.
const logTop = 5

// Open builds the bar source and result store the configuration asks for.
// With the database disabled bars come from CSV and results go nowhere but
// the CSV tables. The returned cleanup closes the connection pool.
func Open(ctx context.Context, cfg *config.Config, zl *zap.Logger) (datastore.Source, dbwriter.ResultStore, func(), error) {
	if !cfg.Database.Enabled {
		store := dbwriter.NewDummyWriter(logger.NewLogger(cfg.LogLevel))
		return cfg.CSVSource(), store, store.Close, nil
	}

	if err := dbwriter.Migrate(cfg.Database.DSN("pgx5"), zl); err != nil {
		return nil, nil, nil, err
	}
	pool, err := pgxpool.New(ctx, cfg.Database.DSN("postgres"))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	store := dbwriter.NewResultWriter(pool, zl)

	var src datastore.Source = cfg.CSVSource()
	if cfg.Database.LoadBars {
		iv, err := cfg.Data.Interval()
		if err != nil {
			store.Close()
			return nil, nil, nil, err
		}
		src = datastore.NewTimescaleRepository(pool, iv)
	}
	return src, store, store.Close, nil
}

// ParseSymbols splits a comma-separated list, dropping blanks.
func ParseSymbols(list string) []string {
	var out []string
	for _, s := range strings.Split(list, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Runner executes grid and OOS runs for a set of symbols.
type Runner struct {
	cfg    *config.Config
	source datastore.Source
	store  dbwriter.ResultStore
	logger *zap.Logger
	sortBy grid.Field
}

// NewRunner creates a Runner. A nil store discards results.
func NewRunner(cfg *config.Config, source datastore.Source, store dbwriter.ResultStore, zl *zap.Logger) *Runner {
	if zl == nil {
		zl = zap.NewNop()
	}
	if store == nil {
		store = dbwriter.NewInMemWriter()
	}
	return &Runner{cfg: cfg, source: source, store: store, logger: zl, sortBy: grid.FieldSharpe}
}

// SortBy sets the field the best configurations of a grid are ranked by in
// the log. Drawdown ranks ascending, every other field descending.
func (r *Runner) SortBy(f grid.Field) *Runner {
	r.sortBy = f
	return r
}

func (r *Runner) symbols(override []string) ([]string, error) {
	if len(override) > 0 {
		return override, nil
	}
	if len(r.cfg.Data.Symbols) == 0 {
		return nil, errors.New("no symbols given and data.symbols is empty")
	}
	return r.cfg.Data.Symbols, nil
}

func (r *Runner) outPath(name string) (string, error) {
	dir := r.cfg.Output.Dir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output dir %s: %w", dir, err)
	}
	return filepath.Join(dir, name), nil
}

func (r *Runner) configs(mode signal.Mode) ([]signal.Config, error) {
	space, err := r.cfg.Space(mode)
	if err != nil {
		return nil, err
	}
	configs := space.Configs()
	if len(configs) == 0 {
		return nil, fmt.Errorf("the %s grid is empty", mode)
	}
	return configs, nil
}

// Grid evaluates the mode's grid on every symbol. A symbol that fails to
// load is skipped; the failures are returned together once all symbols ran.
func (r *Runner) Grid(ctx context.Context, mode signal.Mode, override []string) ([]*grid.Table, error) {
	symbols, err := r.symbols(override)
	if err != nil {
		return nil, err
	}
	configs, err := r.configs(mode)
	if err != nil {
		return nil, err
	}
	sim := r.cfg.SimParams()
	r.logger.Info("Starting grid search",
		zap.Stringer("mode", mode),
		zap.Strings("symbols", symbols),
		zap.Int("configs", len(configs)),
		zap.Float64("cost_bps", sim.CostBps),
		zap.Float64("bars_per_year", sim.BarsPerYear),
	)

	var (
		tables []*grid.Table
		errs   []error
	)
	for _, symbol := range symbols {
		series, err := r.source.LoadSeries(ctx, symbol)
		if err != nil {
			r.logger.Error("Failed to load bars, skipping symbol", zap.String("symbol", symbol), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", symbol, err))
			continue
		}
		r.logBenchmark("full", series)
		table, err := grid.Run(ctx, series, configs, sim, r.logger)
		if err != nil {
			return tables, err
		}
		tables = append(tables, table)
		r.logBest(table)

		path, err := r.outPath(fmt.Sprintf("grid_%s_%s.csv", mode, symbol))
		if err != nil {
			return tables, err
		}
		if err := csvwriter.WriteTable(path, table, r.logger); err != nil {
			return tables, err
		}
		if _, err := r.store.SaveTable(ctx, dbwriter.NewRun(symbol, dbwriter.PhaseGrid, mode, sim), table); err != nil {
			return tables, err
		}
	}
	return tables, errors.Join(errs...)
}

func (r *Runner) logBenchmark(window string, s *bar.Series) {
	bh, err := benchmark.BuyAndHold(s)
	if err != nil {
		r.logger.Warn("Skipping buy-and-hold benchmark", zap.String("window", window), zap.Error(err))
		return
	}
	r.logger.Info("Buy-and-hold benchmark",
		zap.String("symbol", bh.Symbol),
		zap.String("window", window),
		zap.Int("bars", bh.Bars),
		zap.Float64("total_return", bh.TotalReturn),
		zap.Float64("max_drawdown", bh.MaxDrawdown),
	)
}

func (r *Runner) logBest(table *grid.Table) {
	best := table.Sorted(r.sortBy, r.sortBy != grid.FieldMaxDrawdown)
	if len(best) > logTop {
		best = best[:logTop]
	}
	for i, row := range best {
		r.logger.Info("Top configuration",
			zap.String("symbol", table.Symbol),
			zap.Int("rank", i+1),
			zap.String("config", row.Config.Key()),
			zap.Stringer("sort", r.sortBy),
			zap.Float64("value", r.sortBy.Value(row.Record)),
			zap.Float64("sharpe", row.Record.SharpeRatio),
			zap.Float64("total_return", row.Record.TotalReturn),
			zap.Int("trades", row.Record.TotalTrades),
		)
	}
}

// OOS runs the out-of-sample analysis on every symbol. All splits are
// checked against their series before the first grid runs; a boundary
// violation aborts the whole run with an error matching oos.ErrBoundary.
func (r *Runner) OOS(ctx context.Context, mode signal.Mode, override []string) ([]*oos.Report, error) {
	symbols, err := r.symbols(override)
	if err != nil {
		return nil, err
	}
	configs, err := r.configs(mode)
	if err != nil {
		return nil, err
	}
	params, err := r.cfg.OOSParams()
	if err != nil {
		return nil, err
	}

	splits := make([]oos.Split, len(symbols))
	series := make([]*bar.Series, len(symbols))
	for i, symbol := range symbols {
		split, err := r.cfg.Split(symbol)
		if err != nil {
			return nil, err
		}
		s, err := r.source.LoadSeries(ctx, symbol)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", symbol, err)
		}
		if err := split.Validate(s); err != nil {
			return nil, err
		}
		splits[i], series[i] = split, s
	}

	analyzer := oos.NewAnalyzer(params, r.logger)
	reports := make([]*oos.Report, 0, len(symbols))
	for i := range symbols {
		r.logBenchmark("train", splits[i].Train(series[i]))
		r.logBenchmark("test", splits[i].Test(series[i]))
		rep, err := analyzer.Run(ctx, series[i], splits[i], configs)
		if err != nil {
			return reports, err
		}
		reports = append(reports, rep)
		if err := r.writeReport(ctx, mode, rep, params.Sim); err != nil {
			return reports, err
		}
	}

	path, err := r.outPath(fmt.Sprintf("oos_stability_%s.csv", mode))
	if err != nil {
		return reports, err
	}
	if err := csvwriter.WriteStability(path, reports, r.logger); err != nil {
		return reports, err
	}
	return reports, nil
}

func (r *Runner) writeReport(ctx context.Context, mode signal.Mode, rep *oos.Report, sim grid.SimParams) error {
	for _, phase := range []struct {
		name  string
		table *grid.Table
	}{
		{dbwriter.PhaseTrain, rep.Train},
		{dbwriter.PhaseTest, rep.Test},
	} {
		path, err := r.outPath(fmt.Sprintf("oos_%s_%s_%s.csv", phase.name, mode, rep.Symbol))
		if err != nil {
			return err
		}
		if err := csvwriter.WriteTable(path, phase.table, r.logger); err != nil {
			return err
		}
		if _, err := r.store.SaveTable(ctx, dbwriter.NewRun(rep.Symbol, phase.name, mode, sim), phase.table); err != nil {
			return err
		}
	}
	if len(rep.Core) > 0 {
		path, err := r.outPath(fmt.Sprintf("oos_core_%s.csv", rep.Symbol))
		if err != nil {
			return err
		}
		if err := csvwriter.WriteCore(path, rep.Symbol, rep.Core, r.logger); err != nil {
			return err
		}
		if _, err := r.store.SaveTable(ctx, dbwriter.NewRun(rep.Symbol, dbwriter.PhaseCore, mode, sim), rep.CoreTable()); err != nil {
			return err
		}
	}
	return r.store.SaveStability(ctx, dbwriter.NewRun(rep.Symbol, dbwriter.PhaseOOS, mode, sim), rep)
}
