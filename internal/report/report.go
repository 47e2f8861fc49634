// Package report summarizes simulated trades into performance records.
package report

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/chensirou3/Multi-factor-combination/internal/backtest"
	"github.com/chensirou3/Multi-factor-combination/internal/signal"
)

// Record はバックテスト結果の集計値を保持します。
type Record struct {
	TotalTrades          int     `json:"total_trades"`
	WinningTrades        int     `json:"winning_trades"`
	LosingTrades         int     `json:"losing_trades"`
	LongTrades           int     `json:"long_trades"`
	ShortTrades          int     `json:"short_trades"`
	TruncatedTrades      int     `json:"truncated_trades"`
	TotalReturn          float64 `json:"total_return"`
	AvgReturnPerTrade    float64 `json:"avg_return_per_trade"`
	StdReturnPerTrade    float64 `json:"std_return_per_trade"`
	WinRate              float64 `json:"win_rate"` // fraction, 0..1
	SharpeRatio          float64 `json:"sharpe_ratio"`
	SortinoRatio         float64 `json:"sortino_ratio"`
	ProfitFactor         float64 `json:"profit_factor"`
	MaxDrawdown          float64 `json:"max_drawdown"` // fraction of peak equity, >= 0
	AvgHoldingBars       float64 `json:"avg_holding_bars"`
	MaxConsecutiveWins   int     `json:"max_consecutive_wins"`
	MaxConsecutiveLosses int     `json:"max_consecutive_losses"`
	// LowConfidence is set when the Sharpe ratio could not be estimated
	// (fewer than two trades or zero dispersion).
	LowConfidence bool `json:"low_confidence"`
}

// BarsPerYear returns the number of bars of the given interval in a
// 365-day year. A non-positive interval yields 0.
func BarsPerYear(interval time.Duration) float64 {
	if interval <= 0 {
		return 0
	}
	return float64(365*24*time.Hour) / float64(interval)
}

// AnnualizationFactor converts per-trade statistics to yearly ones: the
// number of back-to-back trades of the average holding length that fit in a
// year. Holding lengths below one bar count as one bar. A non-positive
// barsPerYear disables annualization.
func AnnualizationFactor(barsPerYear, avgHoldingBars float64) float64 {
	if barsPerYear <= 0 || math.IsNaN(barsPerYear) || math.IsInf(barsPerYear, 0) {
		return 1
	}
	hold := avgHoldingBars
	if hold < 1 || math.IsNaN(hold) {
		hold = 1
	}
	return barsPerYear / hold
}

// Summarize は取引リストとエクイティカーブからレコードを作成します。
func Summarize(trades []backtest.Trade, equity []float64, barsPerYear float64) Record {
	r := Record{TotalTrades: len(trades)}
	r.MaxDrawdown = maxDrawdown(equity)
	r.TotalReturn = totalReturn(trades, equity)

	if len(trades) == 0 {
		r.LowConfidence = true
		return finite(r)
	}

	returns := make([]float64, len(trades))
	var holding int
	var grossProfit, grossLoss float64
	var consecutiveWins, consecutiveLosses int
	for i, t := range trades {
		returns[i] = t.NetReturn
		holding += t.HoldingBars
		switch t.Direction {
		case signal.Long:
			r.LongTrades++
		case signal.Short:
			r.ShortTrades++
		}
		if t.Truncated {
			r.TruncatedTrades++
		}

		switch {
		case t.NetReturn > 0:
			r.WinningTrades++
			grossProfit += t.NetReturn
			consecutiveWins++
			consecutiveLosses = 0
			if consecutiveWins > r.MaxConsecutiveWins {
				r.MaxConsecutiveWins = consecutiveWins
			}
		case t.NetReturn < 0:
			r.LosingTrades++
			grossLoss += t.NetReturn
			consecutiveLosses++
			consecutiveWins = 0
			if consecutiveLosses > r.MaxConsecutiveLosses {
				r.MaxConsecutiveLosses = consecutiveLosses
			}
		default:
			consecutiveWins, consecutiveLosses = 0, 0
		}
	}

	n := float64(len(trades))
	r.WinRate = float64(r.WinningTrades) / n
	r.AvgHoldingBars = float64(holding) / n
	r.AvgReturnPerTrade, r.StdReturnPerTrade = meanStdDev(returns)
	if grossLoss < 0 {
		r.ProfitFactor = grossProfit / math.Abs(grossLoss)
	}

	factor := AnnualizationFactor(barsPerYear, r.AvgHoldingBars)
	var ok bool
	r.SharpeRatio, ok = sharpeRatio(returns, factor)
	r.LowConfidence = !ok
	r.SortinoRatio = sortinoRatio(returns, factor)
	return finite(r)
}

func totalReturn(trades []backtest.Trade, equity []float64) float64 {
	if len(equity) > 0 && equity[0] > 0 {
		return equity[len(equity)-1]/equity[0] - 1
	}
	value := 1.0
	for _, t := range trades {
		value *= 1 + t.NetReturn
	}
	return value - 1
}

// maxDrawdown returns the largest peak-to-trough decline as a fraction of
// the peak.
func maxDrawdown(equity []float64) float64 {
	var peak, dd float64
	for i, v := range equity {
		if i == 0 || v > peak {
			peak = v
		}
		if peak > 0 {
			if d := (peak - v) / peak; d > dd {
				dd = d
			}
		}
	}
	return dd
}

// meanStdDev は平均と標本標準偏差 (n-1) を返します。1件以下なら偏差は0です。
func meanStdDev(xs []float64) (float64, float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	m, sd := stat.MeanStdDev(xs, nil)
	if len(xs) < 2 {
		sd = 0
	}
	return m, sd
}

// downsideDeviation は下方偏差を計算します。
func downsideDeviation(returns []float64, target float64) float64 {
	downsideVariance := 0.0
	downsideCount := 0
	for _, r := range returns {
		if r < target {
			downsideVariance += math.Pow(r-target, 2)
			downsideCount++
		}
	}
	if downsideCount == 0 {
		return 0
	}
	return math.Sqrt(downsideVariance / float64(downsideCount))
}

// sharpeRatio returns the annualized Sharpe ratio and whether it could be
// estimated at all.
func sharpeRatio(returns []float64, factor float64) (float64, bool) {
	if len(returns) < 2 {
		return 0, false
	}
	m, sd := meanStdDev(returns)
	if !(sd > 1e-12*math.Abs(m)) {
		return 0, false
	}
	return m / sd * math.Sqrt(factor), true
}

func sortinoRatio(returns []float64, factor float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	dd := downsideDeviation(returns, 0)
	if dd == 0 {
		return 0
	}
	return stat.Mean(returns, nil) / dd * math.Sqrt(factor)
}

// finite replaces any NaN or Inf that slipped through with 0.
func finite(r Record) Record {
	for _, p := range []*float64{
		&r.TotalReturn, &r.AvgReturnPerTrade, &r.StdReturnPerTrade, &r.WinRate,
		&r.SharpeRatio, &r.SortinoRatio, &r.ProfitFactor, &r.MaxDrawdown, &r.AvgHoldingBars,
	} {
		if math.IsNaN(*p) || math.IsInf(*p, 0) {
			*p = 0
		}
	}
	return r
}
