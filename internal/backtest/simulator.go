// Package backtest turns an execution signal into non-overlapping,
// fixed-holding-period trades.
package backtest

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/chensirou3/Multi-factor-combination/internal/bar"
	"github.com/chensirou3/Multi-factor-combination/internal/signal"
)

var (
	// ErrInvalidHoldingBars is returned when Params.HoldingBars is not positive.
	ErrInvalidHoldingBars = errors.New("holding bars must be positive")
	// ErrNegativeCost is returned for a negative or NaN Params.CostBps.
	ErrNegativeCost = errors.New("cost must not be negative")
	// ErrSignalLength is returned when the execution signal and the series
	// differ in length.
	ErrSignalLength = errors.New("signal length does not match series length")
	// ErrInvalidPrice is returned when a trade would enter or exit on a
	// non-positive or infinite close.
	ErrInvalidPrice = errors.New("invalid close price")
)

// Trade is one completed round trip.
type Trade struct {
	EntryIndex  int
	ExitIndex   int
	EntryTime   time.Time
	ExitTime    time.Time
	Direction   signal.Direction
	EntryPrice  float64
	ExitPrice   float64
	GrossReturn float64
	NetReturn   float64
	HoldingBars int
	// Truncated marks a trade closed at the last bar before its full holding
	// period elapsed.
	Truncated bool
}

// Params controls a simulation run.
type Params struct {
	HoldingBars int
	CostBps     float64
}

// Validate reports a configuration error, if any.
func (p Params) Validate() error {
	if p.HoldingBars <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidHoldingBars, p.HoldingBars)
	}
	if p.CostBps < 0 || math.IsNaN(p.CostBps) {
		return fmt.Errorf("%w: %v bps", ErrNegativeCost, p.CostBps)
	}
	return nil
}

// Result holds the trades and the per-bar equity curve.
type Result struct {
	Trades []Trade
	Equity []float64
}

// Simulate walks the execution signal and opens a position on the close of
// every bar with a non-zero signal while flat. The position is closed
// HoldingBars later, or on the last bar. Scanning resumes on the bar after the
// exit, so positions never overlap.
//
// The round-trip cost is charged once per trade: net = gross - cost_bps/1e4.
func Simulate(s *bar.Series, exec []signal.Direction, p Params) (Result, error) {
	if err := p.Validate(); err != nil {
		return Result{}, err
	}
	n := s.Len()
	if len(exec) != n {
		return Result{}, fmt.Errorf("%w: %d signals for %d bars", ErrSignalLength, len(exec), n)
	}
	if n == 0 {
		return Result{Equity: []float64{1.0}}, nil
	}

	cost := p.CostBps / 10000
	last := n - 1
	var trades []Trade

	for i := 0; i < n; {
		dir := exec[i]
		if dir == signal.Flat {
			i++
			continue
		}
		exit := i + p.HoldingBars
		truncated := false
		if exit > last {
			exit = last
			truncated = true
		}
		entryBar, exitBar := s.At(i), s.At(exit)
		if !validPrice(entryBar.Close) {
			return Result{}, fmt.Errorf("%w: %v at %s", ErrInvalidPrice, entryBar.Close, entryBar.Time.Format(time.RFC3339))
		}
		if !validPrice(exitBar.Close) {
			return Result{}, fmt.Errorf("%w: %v at %s", ErrInvalidPrice, exitBar.Close, exitBar.Time.Format(time.RFC3339))
		}
		gross := float64(dir) * (exitBar.Close/entryBar.Close - 1)
		trades = append(trades, Trade{
			EntryIndex:  i,
			ExitIndex:   exit,
			EntryTime:   entryBar.Time,
			ExitTime:    exitBar.Time,
			Direction:   dir,
			EntryPrice:  entryBar.Close,
			ExitPrice:   exitBar.Close,
			GrossReturn: gross,
			NetReturn:   gross - cost,
			HoldingBars: exit - i,
			Truncated:   truncated,
		})
		i = exit + 1
	}

	return Result{Trades: trades, Equity: EquityCurve(n, trades)}, nil
}

func validPrice(p float64) bool {
	return p > 0 && !math.IsInf(p, 0)
}

// EquityCurve compounds trade net returns onto a starting value of 1.0. The
// curve has one point per bar and steps at each trade's exit bar.
func EquityCurve(n int, trades []Trade) []float64 {
	if n == 0 {
		return []float64{1.0}
	}
	equity := make([]float64, n)
	value := 1.0
	t := 0
	for i := 0; i < n; i++ {
		for t < len(trades) && trades[t].ExitIndex == i {
			value *= 1 + trades[t].NetReturn
			t++
		}
		equity[i] = value
	}
	return equity
}
