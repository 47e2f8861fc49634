package oos

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/chensirou3/Multi-factor-combination/internal/bar"
	"github.com/chensirou3/Multi-factor-combination/internal/grid"
	"github.com/chensirou3/Multi-factor-combination/internal/report"
	"github.com/chensirou3/Multi-factor-combination/internal/signal"
)

var day0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func date(days int) time.Time { return day0.AddDate(0, 0, days) }

func newWaveSeries(t *testing.T, n int) *bar.Series {
	t.Helper()
	bars := make([]bar.Bar, n)
	for i := range bars {
		x := float64(i)
		bars[i] = bar.Bar{
			Time:    day0.Add(time.Duration(i) * 4 * time.Hour),
			Close:   100 + 10*math.Sin(x/7) + 3*math.Cos(x/2),
			ManipZ:  3 * math.Sin(x/3),
			OFIZ:    math.Cos(x / 5),
			OFIAbsZ: math.NaN(),
		}
	}
	s, err := bar.NewSeries("ETHUSDT", 4*time.Hour, bars)
	require.NoError(t, err)
	return s
}

func tableWithSharpes(sharpes ...float64) *grid.Table {
	rows := make([]grid.Row, len(sharpes))
	for i, sh := range sharpes {
		rows[i] = grid.Row{
			Index:  i,
			Config: signal.NewFilterConfig(0.5, 2, i+1),
			Record: report.Record{SharpeRatio: sh, TotalTrades: 10},
		}
	}
	return &grid.Table{Mode: signal.ModeFilter, Rows: rows}
}

func sharpesOf(rows []grid.Row) []float64 {
	out := make([]float64, len(rows))
	for i, r := range rows {
		out[i] = r.Record.SharpeRatio
	}
	return out
}

func TestSelect_Plateau(t *testing.T) {
	p := DefaultParams()
	sel := Select(tableWithSharpes(0.6, 1.0, 0.3, 0.8), p)

	assert.Equal(t, StrategyPlateau, sel.Method)
	assert.Equal(t, 2, sel.PlateauSize)
	assert.Equal(t, 1.0, sel.MaxSharpe)
	assert.InDelta(t, 0.7, sel.Threshold, 1e-12)
	assert.Equal(t, 4, sel.Candidates)
	assert.Equal(t, []float64{1.0, 0.8}, sharpesOf(sel.Rows))
}

func TestSelect_Strategies(t *testing.T) {
	sharpes := make([]float64, 10)
	for i := range sharpes {
		sharpes[i] = 1 - float64(i)*0.01 // all inside the plateau
	}
	table := tableWithSharpes(sharpes...)

	t.Run("adaptive falls back to top k", func(t *testing.T) {
		p := DefaultParams()
		p.TopK = 3
		sel := Select(table, p)
		assert.Equal(t, StrategyTopK, sel.Method)
		assert.Equal(t, 10, sel.PlateauSize)
		assert.Len(t, sel.Rows, 3)
		assert.InDeltaSlice(t, []float64{1, 0.99, 0.98}, sharpesOf(sel.Rows), 1e-12)
	})

	t.Run("adaptive keeps plateau at exactly twice top k", func(t *testing.T) {
		p := DefaultParams()
		p.TopK = 5
		sel := Select(table, p)
		assert.Equal(t, StrategyPlateau, sel.Method)
		assert.Len(t, sel.Rows, 10)
	})

	t.Run("forced plateau", func(t *testing.T) {
		p := DefaultParams()
		p.TopK = 1
		p.Strategy = StrategyPlateau
		assert.Len(t, Select(table, p).Rows, 10)
	})

	t.Run("forced top k", func(t *testing.T) {
		p := DefaultParams()
		p.TopK = 50
		p.Strategy = StrategyTopK
		sel := Select(table, p)
		assert.Equal(t, StrategyTopK, sel.Method)
		assert.Len(t, sel.Rows, 10)
	})
}

func TestSelect_Filters(t *testing.T) {
	table := tableWithSharpes(2.0, 1.5, 1.4)
	table.Rows[0].Record.TotalTrades = 1
	table.Rows[1].Err = errors.New("bad config")

	p := DefaultParams()
	p.MinTradesTrain = 5
	sel := Select(table, p)
	assert.Equal(t, 1, sel.Candidates)
	assert.Equal(t, []float64{1.4}, sharpesOf(sel.Rows))

	p.MinTradesTrain = 100
	sel = Select(table, p)
	assert.Empty(t, sel.Rows)
	assert.Equal(t, 0, sel.Candidates)
}

func TestSelect_NegativeMaxKeepsBest(t *testing.T) {
	sel := Select(tableWithSharpes(-0.5, -1.0, -0.6), DefaultParams())
	assert.Equal(t, -0.5, sel.Threshold)
	assert.Equal(t, []float64{-0.5}, sharpesOf(sel.Rows))
}

func TestSelect_TieBreakIsDeterministic(t *testing.T) {
	table := tableWithSharpes(0.9, 0.9, 0.9)
	// reverse the input order; the result must not change
	rev := &grid.Table{Rows: []grid.Row{table.Rows[2], table.Rows[1], table.Rows[0]}}
	a := Select(table, DefaultParams())
	b := Select(rev, DefaultParams())
	assert.Equal(t, a.Configs(), b.Configs())
	assert.Equal(t, 1, a.Configs()[0].HoldingBars)
}

func TestDescribe(t *testing.T) {
	got := Describe([]float64{4, 1, 3, 2})
	want := Stats{Count: 4, Mean: 2.5, Median: 2.5, Std: math.Sqrt(5.0 / 3.0), Min: 1, Max: 4, P25: 1.75, P75: 3.25}
	if diff := cmp.Diff(want, got, cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Errorf("Describe() mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, Stats{}, Describe(nil))
	assert.Equal(t, Stats{Count: 1, Mean: 7, Median: 7, Min: 7, Max: 7, P25: 7, P75: 7}, Describe([]float64{7}))
}

func TestRatiosAbove(t *testing.T) {
	got := ratiosAbove([]float64{-0.1, 0.2, 0.4, 0.6}, []float64{0, 0.3, 0.5})
	assert.Equal(t, []Ratio{{0, 0.75}, {0.3, 0.5}, {0.5, 0.25}}, got)
	assert.Equal(t, []Ratio{{0, 0}}, ratiosAbove(nil, []float64{0}))
}

func TestSplit_Validate(t *testing.T) {
	s := newWaveSeries(t, 600) // 100 days

	tests := []struct {
		name  string
		split Split
		ok    bool
	}{
		{"valid", Split{Symbol: "ETHUSDT", TrainStart: date(0), TrainEnd: date(59), TestStart: date(60), TestEnd: date(99)}, true},
		{"overlap", Split{Symbol: "ETHUSDT", TrainStart: date(0), TrainEnd: date(60), TestStart: date(60), TestEnd: date(99)}, false},
		{"test before train", Split{Symbol: "ETHUSDT", TrainStart: date(50), TrainEnd: date(90), TestStart: date(0), TestEnd: date(40)}, false},
		{"inverted train", Split{Symbol: "ETHUSDT", TrainStart: date(40), TrainEnd: date(10), TestStart: date(60), TestEnd: date(99)}, false},
		{"inverted test", Split{Symbol: "ETHUSDT", TrainStart: date(0), TrainEnd: date(50), TestStart: date(99), TestEnd: date(60)}, false},
		{"train before data", Split{Symbol: "ETHUSDT", TrainStart: date(-30), TrainEnd: date(50), TestStart: date(60), TestEnd: date(99)}, false},
		{"test after data", Split{Symbol: "ETHUSDT", TrainStart: date(0), TrainEnd: date(50), TestStart: date(60), TestEnd: date(200)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.split.Validate(s)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrBoundary)
			var be *BoundaryError
			require.ErrorAs(t, err, &be)
			assert.Equal(t, "ETHUSDT", be.Symbol)
			assert.Contains(t, err.Error(), "ETHUSDT")
		})
	}
}

func TestAnalyzer_OverlapFailsBeforeAnyGrid(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	a := NewAnalyzer(DefaultParams(), zap.New(core))

	for _, sym := range []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"} {
		s := newWaveSeries(t, 600)
		split := Split{Symbol: sym, TrainStart: date(0), TrainEnd: date(70), TestStart: date(60), TestEnd: date(99)}
		rep, err := a.Run(context.Background(), s, split, []signal.Config{signal.NewFilterConfig(0.5, 2, 3)})
		assert.Nil(t, rep)
		assert.ErrorIs(t, err, ErrBoundary)
		assert.Contains(t, err.Error(), sym)
	}
	assert.Equal(t, 0, logs.Len(), "no grid work may start")
}

func TestAnalyzer_Run(t *testing.T) {
	s := newWaveSeries(t, 600)
	split := Split{TrainStart: date(0), TrainEnd: date(59), TestStart: date(60), TestEnd: date(99)}
	cfgs := grid.ScoreSpace{
		Weights:                  []grid.WeightPair{{Manip: 1, OFI: 0}, {Manip: 0.6, OFI: 0.4}, {Manip: 0.5, OFI: 0.5}},
		CompositeEntryThresholds: []float64{1.0, 1.5, 2.0},
		HoldingBars:              []int{2, 4, 6},
	}.Configs()

	p := DefaultParams()
	p.TopK = 5
	p.Sim = grid.SimParams{CostBps: 5, BarsPerYear: report.BarsPerYear(4 * time.Hour), Workers: 4}
	p.Core = Core{
		Weights: &grid.WeightPair{Manip: 0.6, OFI: 0.4},
		Configs: []signal.Config{signal.NewScoreConfig(0.7, 0.3, 1.5, 3)},
	}

	rep, err := NewAnalyzer(p, zap.NewNop()).Run(context.Background(), s, split, cfgs)
	require.NoError(t, err)

	assert.Equal(t, "ETHUSDT", rep.Symbol)
	assert.Len(t, rep.Train.Rows, len(cfgs))
	require.NotEmpty(t, rep.Selection.Rows)

	// the test grid only ever sees the selected subset
	assert.Equal(t, rep.Selection.Configs(), configsOf(rep.Test.Rows))
	assert.LessOrEqual(t, len(rep.Test.Rows), 2*p.TopK)

	stab := rep.Stability
	assert.Equal(t, len(rep.Selection.Rows), stab.SubsetSize)
	assert.Len(t, stab.Ratios, 3)
	if stab.TestEvaluated > 0 {
		assert.InDelta(t, stab.Train.Mean-stab.Test.Mean, stab.DegradationMean, 1e-12)
	}
	for _, r := range stab.Ratios {
		assert.GreaterOrEqual(t, r.Ratio, 0.0)
		assert.LessOrEqual(t, r.Ratio, 1.0)
	}

	// 9 configs with weights (0.6, 0.4) plus the explicit one
	require.Len(t, rep.Core, 10)
	assert.Equal(t, signal.NewScoreConfig(0.7, 0.3, 1.5, 3), rep.Core[0].Config)
	for _, c := range rep.Core[1:] {
		assert.Equal(t, 0.6, c.Config.WeightManip)
		assert.NoError(t, c.TrainErr)
		trainRow, ok := rep.Train.Lookup(c.Config)
		require.True(t, ok)
		assert.Equal(t, trainRow.Record, c.Train)
	}

	ct := rep.CoreTable()
	require.Len(t, ct.Rows, len(rep.Core))
	assert.Equal(t, signal.ModeScore, ct.Mode)
	for i, c := range rep.Core {
		assert.Equal(t, c.Config, ct.Rows[i].Config)
		assert.Equal(t, c.Test, ct.Rows[i].Record)
	}
	assert.Nil(t, (&Report{}).CoreTable())

	require.NotNil(t, rep.SingleBest)
	assert.Equal(t, rep.Selection.Rows[0].Config, rep.SingleBest.BestConfig)
	assert.Equal(t, stab.Test.Mean, rep.SingleBest.PlateauMeanTest)

	again, err := NewAnalyzer(p, nil).Run(context.Background(), s, split, cfgs)
	require.NoError(t, err)
	assert.Equal(t, rep.Selection.Configs(), again.Selection.Configs())
	assert.Equal(t, rep.Stability, again.Stability)
}

func TestAnalyzer_InvalidParams(t *testing.T) {
	s := newWaveSeries(t, 600)
	split := Split{TrainStart: date(0), TrainEnd: date(59), TestStart: date(60), TestEnd: date(99)}
	p := DefaultParams()
	p.PlateauFraction = 1.5
	_, err := NewAnalyzer(p, nil).Run(context.Background(), s, split, nil)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrBoundary)
}

func configsOf(rows []grid.Row) []signal.Config {
	out := make([]signal.Config, len(rows))
	for i, r := range rows {
		out[i] = r.Config
	}
	return out
}

func TestParseStrategy(t *testing.T) {
	for in, want := range map[string]Strategy{"": StrategyAdaptive, "Plateau": StrategyPlateau, "top_k": StrategyTopK} {
		got, err := ParseStrategy(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseStrategy("best")
	assert.Error(t, err)
}
