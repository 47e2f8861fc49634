// Package oos splits a series into train and test windows, selects a robust
// configuration subset on train, and measures how it holds up on test.
package oos

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/chensirou3/Multi-factor-combination/internal/bar"
	"github.com/chensirou3/Multi-factor-combination/internal/grid"
	"github.com/chensirou3/Multi-factor-combination/internal/report"
	"github.com/chensirou3/Multi-factor-combination/internal/signal"
)

// Stability summarizes the selected subset on both windows.
type Stability struct {
	SubsetSize  int `json:"subset_size"`
	PlateauSize int `json:"plateau_size"`
	// TestEvaluated counts subset members that did not fail on test and
	// traded at least MinTradesTest times.
	TestEvaluated     int     `json:"test_evaluated"`
	Train             Stats   `json:"train"`
	Test              Stats   `json:"test"`
	Ratios            []Ratio `json:"ratios"`
	DegradationMean   float64 `json:"degradation_mean"`
	DegradationMedian float64 `json:"degradation_median"`
	LowConfidence     bool    `json:"low_confidence"`
}

// CoreRow is one tracked configuration evaluated on both windows.
type CoreRow struct {
	Config   signal.Config
	Train    report.Record
	Test     report.Record
	TrainErr error
	TestErr  error
}

// Comparison contrasts the single best train configuration with the subset.
type Comparison struct {
	BestConfig        signal.Config
	BestTrainSharpe   float64
	BestTestSharpe    float64
	BestTestErr       error
	PlateauMeanTest   float64
	PlateauMedianTest float64
}

// Report is the full result for one symbol. It is not modified after Run
// returns it.
type Report struct {
	Symbol     string
	Split      Split
	Strategy   Strategy
	Train      *grid.Table
	Test       *grid.Table
	Selection  Selection
	Stability  Stability
	Core       []CoreRow
	SingleBest *Comparison
}

// CoreTable returns the tracked configurations' test-window results as a
// table, or nil when no core combination was tracked.
func (r *Report) CoreTable() *grid.Table {
	if len(r.Core) == 0 {
		return nil
	}
	t := &grid.Table{Symbol: r.Symbol, Rows: make([]grid.Row, len(r.Core))}
	if r.Train != nil {
		t.Mode = r.Train.Mode
	}
	for i, c := range r.Core {
		t.Rows[i] = grid.Row{Index: i, Config: c.Config, Record: c.Test, Err: c.TestErr}
	}
	return t
}

// Analyzer runs the train, select, test sequence.
type Analyzer struct {
	params Params
	logger *zap.Logger
}

// NewAnalyzer creates a new Analyzer.
func NewAnalyzer(params Params, logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{params: params, logger: logger}
}

// Run analyzes configs on series. The split is validated before any grid
// work; a *BoundaryError is returned unwrapped so callers can match
// ErrBoundary.
func (a *Analyzer) Run(ctx context.Context, series *bar.Series, split Split, configs []signal.Config) (*Report, error) {
	if split.Symbol == "" {
		split.Symbol = series.Symbol()
	}
	if err := split.Validate(series); err != nil {
		return nil, err
	}
	if err := a.params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid oos params: %w", err)
	}
	log := a.logger.With(zap.String("symbol", split.Symbol))
	configs = grid.Dedup(configs)

	trainSeries, testSeries := split.Train(series), split.Test(series)
	log.Info("OOS split",
		zap.String("split", split.String()),
		zap.Int("train_bars", trainSeries.Len()),
		zap.Int("test_bars", testSeries.Len()),
		zap.Int("configs", len(configs)),
	)

	train, err := grid.Run(ctx, trainSeries, configs, a.params.Sim, log)
	if err != nil {
		return nil, fmt.Errorf("train grid: %w", err)
	}

	sel := Select(train, a.params)
	log.Info("Selected train subset",
		zap.String("method", string(sel.Method)),
		zap.Int("candidates", sel.Candidates),
		zap.Int("plateau_size", sel.PlateauSize),
		zap.Int("selected", len(sel.Rows)),
		zap.Float64("max_sharpe", sel.MaxSharpe),
		zap.Float64("threshold", sel.Threshold),
	)
	if len(sel.Rows) == 0 {
		log.Warn("No train configuration passed the filters; stability metrics will be empty")
	}

	test, err := grid.Run(ctx, testSeries, sel.Configs(), a.params.Sim, log)
	if err != nil {
		return nil, fmt.Errorf("test grid: %w", err)
	}

	stab := a.stability(sel, test)
	log.Info("OOS stability",
		zap.Int("test_evaluated", stab.TestEvaluated),
		zap.Float64("train_mean_sharpe", stab.Train.Mean),
		zap.Float64("test_mean_sharpe", stab.Test.Mean),
		zap.Float64("degradation", stab.DegradationMean),
		zap.Bool("low_confidence", stab.LowConfidence),
	)

	core, err := a.core(ctx, trainSeries, testSeries, train, configs, log)
	if err != nil {
		return nil, err
	}

	return &Report{
		Symbol:     split.Symbol,
		Split:      split,
		Strategy:   a.params.Strategy,
		Train:      train,
		Test:       test,
		Selection:  sel,
		Stability:  stab,
		Core:       core,
		SingleBest: singleBest(sel, test, stab),
	}, nil
}

func (a *Analyzer) stability(sel Selection, test *grid.Table) Stability {
	trainSharpes := make([]float64, 0, len(sel.Rows))
	for _, r := range sel.Rows {
		trainSharpes = append(trainSharpes, r.Record.SharpeRatio)
	}
	var testSharpes []float64
	for _, r := range test.Valid() {
		if r.Record.TotalTrades >= a.params.MinTradesTest {
			testSharpes = append(testSharpes, r.Record.SharpeRatio)
		}
	}

	st := Stability{
		SubsetSize:    len(sel.Rows),
		PlateauSize:   sel.PlateauSize,
		TestEvaluated: len(testSharpes),
		Train:         Describe(trainSharpes),
		Test:          Describe(testSharpes),
		Ratios:        ratiosAbove(testSharpes, a.params.SharpeThresholds),
		LowConfidence: len(testSharpes) < 2,
	}
	if len(trainSharpes) > 0 && len(testSharpes) > 0 {
		st.DegradationMean = st.Train.Mean - st.Test.Mean
		st.DegradationMedian = st.Train.Median - st.Test.Median
	}
	return st
}

func (a *Analyzer) core(ctx context.Context, trainSeries, testSeries *bar.Series, train *grid.Table, configs []signal.Config, log *zap.Logger) ([]CoreRow, error) {
	if a.params.Core.Empty() {
		return nil, nil
	}
	tracked := a.params.Core.Resolve(configs)
	if len(tracked) == 0 {
		log.Warn("Core combination matches no configuration")
		return nil, nil
	}

	var missing []signal.Config
	for _, cfg := range tracked {
		if _, ok := train.Lookup(cfg); !ok {
			missing = append(missing, cfg)
		}
	}
	extra, err := grid.Run(ctx, trainSeries, missing, a.params.Sim, log)
	if err != nil {
		return nil, fmt.Errorf("core train grid: %w", err)
	}
	test, err := grid.Run(ctx, testSeries, tracked, a.params.Sim, log)
	if err != nil {
		return nil, fmt.Errorf("core test grid: %w", err)
	}

	rows := make([]CoreRow, len(tracked))
	for i, cfg := range tracked {
		tr, ok := train.Lookup(cfg)
		if !ok {
			tr, _ = extra.Lookup(cfg)
		}
		te := test.Rows[i]
		rows[i] = CoreRow{Config: cfg, Train: tr.Record, TrainErr: tr.Err, Test: te.Record, TestErr: te.Err}
	}
	log.Info("Core combination evaluated", zap.Int("configs", len(rows)))
	return rows, nil
}

func singleBest(sel Selection, test *grid.Table, stab Stability) *Comparison {
	if len(sel.Rows) == 0 {
		return nil
	}
	best := sel.Rows[0]
	c := &Comparison{
		BestConfig:        best.Config,
		BestTrainSharpe:   best.Record.SharpeRatio,
		PlateauMeanTest:   stab.Test.Mean,
		PlateauMedianTest: stab.Test.Median,
	}
	if r, ok := test.Lookup(best.Config); ok {
		c.BestTestSharpe = r.Record.SharpeRatio
		c.BestTestErr = r.Err
	}
	return c
}
