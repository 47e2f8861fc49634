package dbwriter

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/chensirou3/Multi-factor-combination/internal/grid"
	"github.com/chensirou3/Multi-factor-combination/internal/oos"
	"github.com/chensirou3/Multi-factor-combination/internal/signal"
)

// Run phases.
const (
	PhaseGrid  = "grid"
	PhaseTrain = "train"
	PhaseTest  = "test"
	PhaseCore  = "core" // tracked core configurations on the test window
	PhaseOOS   = "oos"
)

// Pool is an interface that abstracts the pgxpool.Pool for testability.
type Pool interface {
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Close()
}

// Run はデータベースに保存する1回分の評価の識別情報です。
type Run struct {
	ID          uuid.UUID
	Symbol      string
	Phase       string
	Mode        signal.Mode
	CostBps     float64
	BarsPerYear float64
}

// NewRun creates a Run with a fresh random ID.
func NewRun(symbol, phase string, mode signal.Mode, p grid.SimParams) Run {
	return Run{
		ID:          uuid.New(),
		Symbol:      symbol,
		Phase:       phase,
		Mode:        mode,
		CostBps:     p.CostBps,
		BarsPerYear: p.BarsPerYear,
	}
}

var resultColumns = []string{
	"run_id", "config_key", "mode",
	"ofi_filter_threshold", "manip_entry_threshold",
	"weight_manip", "weight_ofi", "composite_entry_threshold",
	"holding_bars", "total_trades", "win_rate", "total_return", "avg_return_per_trade",
	"sharpe_ratio", "sortino_ratio", "profit_factor", "max_drawdown", "avg_holding_bars",
	"low_confidence", "error",
}

// ResultWriter は評価結果をTimescaleDBへ書き込みます。
type ResultWriter struct {
	pool   Pool
	logger *zap.Logger
}

var _ ResultStore = (*ResultWriter)(nil)

// NewResultWriter creates a writer on an existing pool.
func NewResultWriter(pool Pool, logger *zap.Logger) *ResultWriter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResultWriter{pool: pool, logger: logger}
}

// SaveRun inserts the run header. Saving the same run twice is a no-op.
func (w *ResultWriter) SaveRun(ctx context.Context, run Run) error {
	query := `INSERT INTO research_runs (id, symbol, phase, mode, cost_bps, bars_per_year)
	          VALUES ($1, $2, $3, $4, $5, $6)
	          ON CONFLICT (id) DO NOTHING`
	_, err := w.pool.Exec(ctx, query, run.ID, run.Symbol, run.Phase, run.Mode.String(), run.CostBps, run.BarsPerYear)
	if err != nil {
		w.logger.Error("Failed to insert run", zap.Error(err), zap.String("run_id", run.ID.String()))
		return fmt.Errorf("failed to insert run %s: %w", run.ID, err)
	}
	return nil
}

// SaveTable stores the run header and every row of table, failed rows
// included, and returns the number of rows copied.
func (w *ResultWriter) SaveTable(ctx context.Context, run Run, table *grid.Table) (int64, error) {
	if err := w.SaveRun(ctx, run); err != nil {
		return 0, err
	}
	if len(table.Rows) == 0 {
		return 0, nil
	}
	w.logger.Debug("Copying backtest results", zap.String("run_id", run.ID.String()), zap.Int("count", len(table.Rows)))

	n, err := w.pool.CopyFrom(
		ctx,
		pgx.Identifier{"backtest_results"},
		resultColumns,
		pgx.CopyFromRows(toResultInterfaces(run.ID, table.Rows)),
	)
	if err != nil {
		w.logger.Error("Failed to copy backtest results", zap.Error(err), zap.String("run_id", run.ID.String()))
		return 0, fmt.Errorf("failed to copy backtest results: %w", err)
	}
	w.logger.Info("Saved backtest results",
		zap.String("run_id", run.ID.String()),
		zap.String("symbol", run.Symbol),
		zap.String("phase", run.Phase),
		zap.Int64("rows", n))
	return n, nil
}

// SaveStability stores the run header and the stability summary of rep.
func (w *ResultWriter) SaveStability(ctx context.Context, run Run, rep *oos.Report) error {
	if err := w.SaveRun(ctx, run); err != nil {
		return err
	}
	st := rep.Stability
	ratios := st.Ratios
	if ratios == nil {
		ratios = []oos.Ratio{}
	}
	ratiosJSON, err := json.Marshal(ratios)
	if err != nil {
		return fmt.Errorf("failed to encode ratios: %w", err)
	}

	var bestConfig, bestTrain, bestTest interface{}
	if sb := rep.SingleBest; sb != nil {
		bestConfig = sb.BestConfig.Key()
		bestTrain = numeric(sb.BestTrainSharpe)
		if sb.BestTestErr == nil {
			bestTest = numeric(sb.BestTestSharpe)
		}
	}

	query := `INSERT INTO oos_stability (
	              run_id, symbol, train_start, train_end, test_start, test_end, strategy, method,
	              max_train_sharpe, plateau_threshold, plateau_size, subset_size, test_evaluated,
	              train_mean_sharpe, train_median_sharpe, test_mean_sharpe, test_median_sharpe, test_std_sharpe,
	              ratios, degradation_mean, degradation_median, low_confidence,
	              best_config, best_train_sharpe, best_test_sharpe)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18,
	                  $19, $20, $21, $22, $23, $24, $25)`
	_, err = w.pool.Exec(ctx, query,
		run.ID, rep.Symbol,
		rep.Split.TrainStart, rep.Split.TrainEnd, rep.Split.TestStart, rep.Split.TestEnd,
		string(rep.Strategy), string(rep.Selection.Method),
		numeric(rep.Selection.MaxSharpe), numeric(rep.Selection.Threshold),
		st.PlateauSize, st.SubsetSize, st.TestEvaluated,
		numeric(st.Train.Mean), numeric(st.Train.Median),
		numeric(st.Test.Mean), numeric(st.Test.Median), numeric(st.Test.Std),
		string(ratiosJSON), numeric(st.DegradationMean), numeric(st.DegradationMedian), st.LowConfidence,
		bestConfig, bestTrain, bestTest,
	)
	if err != nil {
		w.logger.Error("Failed to insert OOS stability", zap.Error(err), zap.String("symbol", rep.Symbol))
		return fmt.Errorf("failed to insert OOS stability: %w", err)
	}
	w.logger.Info("Saved OOS stability", zap.String("run_id", run.ID.String()), zap.String("symbol", rep.Symbol))
	return nil
}

// Close はデータベース接続プールをクローズします。
func (w *ResultWriter) Close() {
	if w.pool != nil {
		w.pool.Close()
		w.logger.Info("TimescaleDB connection pool closed")
	}
}

// numeric rounds v for a NUMERIC column. Non-finite values become NULL.
func numeric(v float64) interface{} {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return decimal.NewFromFloat(v).Round(8).InexactFloat64()
}

func toResultInterfaces(runID uuid.UUID, rows []grid.Row) [][]interface{} {
	out := make([][]interface{}, len(rows))
	for i, r := range rows {
		c := r.Config
		var ofiThr, manipThr, wManip, wOFI, compThr interface{}
		switch c.Mode {
		case signal.ModeFilter:
			ofiThr, manipThr = numeric(c.OFIFilterThreshold), numeric(c.ManipEntryThreshold)
		case signal.ModeScore:
			wManip, wOFI, compThr = numeric(c.WeightManip), numeric(c.WeightOFI), numeric(c.CompositeEntryThreshold)
		}
		var errText interface{}
		if r.Err != nil {
			errText = r.Err.Error()
		}
		rec := r.Record
		out[i] = []interface{}{
			runID, c.Key(), c.Mode.String(),
			ofiThr, manipThr, wManip, wOFI, compThr,
			c.HoldingBars, rec.TotalTrades,
			numeric(rec.WinRate), numeric(rec.TotalReturn), numeric(rec.AvgReturnPerTrade),
			numeric(rec.SharpeRatio), numeric(rec.SortinoRatio), numeric(rec.ProfitFactor),
			numeric(rec.MaxDrawdown), numeric(rec.AvgHoldingBars),
			rec.LowConfidence, errText,
		}
	}
	return out
}
