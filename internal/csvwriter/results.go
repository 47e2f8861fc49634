package csvwriter

import (
	"fmt"
	"math"
	"strconv"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/chensirou3/Multi-factor-combination/internal/grid"
	"github.com/chensirou3/Multi-factor-combination/internal/oos"
	"github.com/chensirou3/Multi-factor-combination/internal/report"
	"github.com/chensirou3/Multi-factor-combination/internal/signal"
)

// Fractional digits kept for statistics.
const precision = 6

var recordHeader = []string{
	"total_trades", "winning_trades", "losing_trades", "long_trades", "short_trades", "truncated_trades",
	"total_return", "avg_return_per_trade", "std_return_per_trade", "win_rate",
	"sharpe_ratio", "sortino_ratio", "profit_factor", "max_drawdown", "avg_holding_bars",
	"max_consecutive_wins", "max_consecutive_losses", "low_confidence",
}

func recordFields(r report.Record) []string {
	return []string{
		strconv.Itoa(r.TotalTrades),
		strconv.Itoa(r.WinningTrades),
		strconv.Itoa(r.LosingTrades),
		strconv.Itoa(r.LongTrades),
		strconv.Itoa(r.ShortTrades),
		strconv.Itoa(r.TruncatedTrades),
		formatFloat(r.TotalReturn),
		formatFloat(r.AvgReturnPerTrade),
		formatFloat(r.StdReturnPerTrade),
		formatFloat(r.WinRate),
		formatFloat(r.SharpeRatio),
		formatFloat(r.SortinoRatio),
		formatFloat(r.ProfitFactor),
		formatFloat(r.MaxDrawdown),
		formatFloat(r.AvgHoldingBars),
		strconv.Itoa(r.MaxConsecutiveWins),
		strconv.Itoa(r.MaxConsecutiveLosses),
		strconv.FormatBool(r.LowConfidence),
	}
}

// formatFloat rounds to a fixed number of decimals. Non-finite values are
// written as empty cells.
func formatFloat(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ""
	}
	return decimal.NewFromFloat(v).Round(precision).String()
}

func paramFields(cfg signal.Config) []string {
	ps := cfg.Params()
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = formatFloat(p.Value)
	}
	return out
}

func errField(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// WriteTable writes one row per configuration: symbol, the mode's parameter
// columns, the record columns and an error column that is non-empty for
// failed rows.
func WriteTable(path string, table *grid.Table, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	w, err := NewWriter(path, logger)
	if err != nil {
		return err
	}

	header := append([]string{"symbol"}, signal.ParamNames(table.Mode)...)
	header = append(header, recordHeader...)
	header = append(header, "error")
	if err := w.WriteHeader(header); err != nil {
		w.Close()
		return err
	}
	for _, row := range table.Rows {
		rec := append([]string{table.Symbol}, paramFields(row.Config)...)
		rec = append(rec, recordFields(row.Record)...)
		rec = append(rec, errField(row.Err))
		if err := w.Write(rec); err != nil {
			w.Close()
			return err
		}
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	logger.Info("Wrote results table", zap.String("path", path), zap.Int("rows", w.Rows()))
	return nil
}

// WriteCore writes the core-combination rows with train_ and test_ prefixed
// record columns.
func WriteCore(path, symbol string, rows []oos.CoreRow, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	w, err := NewWriter(path, logger)
	if err != nil {
		return err
	}

	header := []string{"symbol", "mode", "weight_manip", "weight_ofi", "ofi_filter_threshold",
		"manip_entry_threshold", "composite_entry_threshold", "holding_bars"}
	for _, prefix := range []string{"train_", "test_"} {
		for _, h := range recordHeader {
			header = append(header, prefix+h)
		}
		header = append(header, prefix+"error")
	}
	if err := w.WriteHeader(header); err != nil {
		w.Close()
		return err
	}
	for _, r := range rows {
		c := r.Config
		rec := []string{symbol, c.Mode.String(),
			formatFloat(c.WeightManip), formatFloat(c.WeightOFI),
			formatFloat(c.OFIFilterThreshold), formatFloat(c.ManipEntryThreshold),
			formatFloat(c.CompositeEntryThreshold), strconv.Itoa(c.HoldingBars)}
		rec = append(rec, recordFields(r.Train)...)
		rec = append(rec, errField(r.TrainErr))
		rec = append(rec, recordFields(r.Test)...)
		rec = append(rec, errField(r.TestErr))
		if err := w.Write(rec); err != nil {
			w.Close()
			return err
		}
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	logger.Info("Wrote core combination table", zap.String("path", path), zap.Int("rows", w.Rows()))
	return nil
}

// WriteStability writes one summary row per symbol.
func WriteStability(path string, reports []*oos.Report, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	w, err := NewWriter(path, logger)
	if err != nil {
		return err
	}

	var thresholds []float64
	if len(reports) > 0 {
		for _, r := range reports[0].Stability.Ratios {
			thresholds = append(thresholds, r.Threshold)
		}
	}
	header := []string{"symbol", "train_start", "train_end", "test_start", "test_end", "strategy", "method",
		"max_train_sharpe", "plateau_threshold", "plateau_size", "subset_size", "test_evaluated"}
	for _, prefix := range []string{"train_", "test_"} {
		for _, h := range []string{"mean", "median", "std", "min", "max", "p25", "p75"} {
			header = append(header, prefix+h+"_sharpe")
		}
	}
	for _, thr := range thresholds {
		header = append(header, "ratio_test_sharpe_gt_"+formatFloat(thr))
	}
	header = append(header, "degradation_mean", "degradation_median", "low_confidence",
		"best_config", "best_train_sharpe", "best_test_sharpe")
	if err := w.WriteHeader(header); err != nil {
		w.Close()
		return err
	}

	for _, rep := range reports {
		st := rep.Stability
		rec := []string{
			rep.Symbol,
			rep.Split.TrainStart.Format("2006-01-02"), rep.Split.TrainEnd.Format("2006-01-02"),
			rep.Split.TestStart.Format("2006-01-02"), rep.Split.TestEnd.Format("2006-01-02"),
			string(rep.Strategy), string(rep.Selection.Method),
			formatFloat(rep.Selection.MaxSharpe), formatFloat(rep.Selection.Threshold),
			strconv.Itoa(st.PlateauSize), strconv.Itoa(st.SubsetSize), strconv.Itoa(st.TestEvaluated),
		}
		for _, s := range []oos.Stats{st.Train, st.Test} {
			rec = append(rec, formatFloat(s.Mean), formatFloat(s.Median), formatFloat(s.Std),
				formatFloat(s.Min), formatFloat(s.Max), formatFloat(s.P25), formatFloat(s.P75))
		}
		for i := range thresholds {
			ratio := ""
			if i < len(st.Ratios) {
				ratio = formatFloat(st.Ratios[i].Ratio)
			}
			rec = append(rec, ratio)
		}
		rec = append(rec, formatFloat(st.DegradationMean), formatFloat(st.DegradationMedian),
			strconv.FormatBool(st.LowConfidence))
		if sb := rep.SingleBest; sb != nil {
			rec = append(rec, sb.BestConfig.Key(), formatFloat(sb.BestTrainSharpe), formatFloat(sb.BestTestSharpe))
		} else {
			rec = append(rec, "", "", "")
		}
		if err := w.Write(rec); err != nil {
			w.Close()
			return err
		}
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	logger.Info("Wrote stability summary", zap.String("path", path), zap.Int("rows", w.Rows()))
	return nil
}
