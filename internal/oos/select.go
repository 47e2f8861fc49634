package oos

import (
	"fmt"
	"math"
	"strings"

	"github.com/chensirou3/Multi-factor-combination/internal/grid"
	"github.com/chensirou3/Multi-factor-combination/internal/signal"
)

// Strategy chooses how the train subset is picked.
type Strategy string

const (
	// StrategyAdaptive uses the plateau unless it is larger than twice TopK,
	// in which case it falls back to the top K.
	StrategyAdaptive Strategy = "adaptive"
	// StrategyPlateau always uses the plateau.
	StrategyPlateau Strategy = "plateau"
	// StrategyTopK always uses the top K.
	StrategyTopK Strategy = "top_k"
)

// ParseStrategy converts a name into a Strategy. Empty means adaptive.
func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(strings.ToLower(strings.TrimSpace(s))); st {
	case "":
		return StrategyAdaptive, nil
	case StrategyAdaptive, StrategyPlateau, StrategyTopK:
		return st, nil
	default:
		return "", fmt.Errorf("unknown selection strategy %q", s)
	}
}

// Core designates configurations that are always evaluated on both windows.
type Core struct {
	// Weights selects every score-mode configuration with this weight pair.
	Weights *grid.WeightPair
	// Configs are tracked as given.
	Configs []signal.Config
}

// Empty reports whether nothing is tracked.
func (c Core) Empty() bool { return c.Weights == nil && len(c.Configs) == 0 }

// Resolve returns the tracked configurations: explicit ones first, then
// those in grid whose weights match, without duplicates.
func (c Core) Resolve(configs []signal.Config) []signal.Config {
	out := append([]signal.Config(nil), c.Configs...)
	if c.Weights != nil {
		for _, cfg := range configs {
			if cfg.Mode == signal.ModeScore && cfg.WeightManip == c.Weights.Manip && cfg.WeightOFI == c.Weights.OFI {
				out = append(out, cfg)
			}
		}
	}
	return grid.Dedup(out)
}

// Params controls the analysis.
type Params struct {
	PlateauFraction  float64
	TopK             int
	Strategy         Strategy
	MinTradesTrain   int
	MinTradesTest    int
	SharpeThresholds []float64
	Core             Core
	Sim              grid.SimParams
}

// DefaultParams returns the defaults: fraction 0.7, top 20, adaptive.
func DefaultParams() Params {
	return Params{
		PlateauFraction:  0.7,
		TopK:             20,
		Strategy:         StrategyAdaptive,
		MinTradesTrain:   1,
		MinTradesTest:    1,
		SharpeThresholds: []float64{0, 0.3, 0.5},
	}
}

// Validate checks the parameters.
func (p Params) Validate() error {
	if p.PlateauFraction <= 0 || p.PlateauFraction > 1 || math.IsNaN(p.PlateauFraction) {
		return fmt.Errorf("plateau fraction must be in (0, 1], got %v", p.PlateauFraction)
	}
	if p.TopK <= 0 {
		return fmt.Errorf("top_k must be positive, got %d", p.TopK)
	}
	if _, err := ParseStrategy(string(p.Strategy)); err != nil {
		return err
	}
	if p.MinTradesTrain < 0 || p.MinTradesTest < 0 {
		return fmt.Errorf("min trades must not be negative")
	}
	return nil
}

// Selection is the train-phase outcome.
type Selection struct {
	// Method is the rule actually applied: plateau or top_k.
	Method      Strategy
	MaxSharpe   float64
	Threshold   float64
	PlateauSize int
	// Candidates is the number of train rows eligible for selection.
	Candidates int
	// Rows are the selected train rows, best first.
	Rows []grid.Row
}

// Configs returns the selected configurations in rank order.
func (s Selection) Configs() []signal.Config {
	out := make([]signal.Config, len(s.Rows))
	for i, r := range s.Rows {
		out[i] = r.Config
	}
	return out
}

// Select picks the train subset. Eligible rows are those that did not fail
// and traded at least MinTradesTrain times. They are ranked by Sharpe
// descending with the configuration key as tie-breaker. The plateau holds
// every row with Sharpe >= min(fraction*max, max); the min keeps the best
// row in the plateau when the maximum is negative.
func Select(train *grid.Table, p Params) Selection {
	var eligible []grid.Row
	for _, r := range train.Valid() {
		if r.Record.TotalTrades >= p.MinTradesTrain {
			eligible = append(eligible, r)
		}
	}
	strategy := p.Strategy
	if strategy == "" {
		strategy = StrategyAdaptive
	}
	sel := Selection{Method: strategy, Candidates: len(eligible)}
	if len(eligible) == 0 {
		if strategy == StrategyAdaptive {
			sel.Method = StrategyPlateau
		}
		return sel
	}

	grid.SortRows(eligible, grid.FieldSharpe, true)
	sel.MaxSharpe = eligible[0].Record.SharpeRatio
	sel.Threshold = math.Min(p.PlateauFraction*sel.MaxSharpe, sel.MaxSharpe)
	for _, r := range eligible {
		if r.Record.SharpeRatio < sel.Threshold {
			break
		}
		sel.PlateauSize++
	}

	topK := p.TopK
	if topK > len(eligible) {
		topK = len(eligible)
	}
	switch strategy {
	case StrategyPlateau:
		sel.Rows = eligible[:sel.PlateauSize]
	case StrategyTopK:
		sel.Rows = eligible[:topK]
	default:
		if sel.PlateauSize > 2*p.TopK {
			sel.Method = StrategyTopK
			sel.Rows = eligible[:topK]
		} else {
			sel.Method = StrategyPlateau
			sel.Rows = eligible[:sel.PlateauSize]
		}
	}
	return sel
}
