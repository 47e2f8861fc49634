package grid

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chensirou3/Multi-factor-combination/internal/backtest"
	"github.com/chensirou3/Multi-factor-combination/internal/bar"
	"github.com/chensirou3/Multi-factor-combination/internal/report"
	"github.com/chensirou3/Multi-factor-combination/internal/signal"
)

// newWaveSeries builds a deterministic series whose factors cross the usual
// thresholds often enough to produce trades.
func newWaveSeries(t *testing.T, n int) *bar.Series {
	t.Helper()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]bar.Bar, n)
	for i := range bars {
		x := float64(i)
		bars[i] = bar.Bar{
			Time:    start.Add(time.Duration(i) * 4 * time.Hour),
			Close:   100 + 10*math.Sin(x/5) + x*0.05,
			ManipZ:  3 * math.Sin(x/3),
			OFIZ:    math.Cos(x / 2),
			OFIAbsZ: math.NaN(),
		}
	}
	s, err := bar.NewSeries("ETHUSDT", 4*time.Hour, bars)
	require.NoError(t, err)
	return s
}

func TestCartesian(t *testing.T) {
	got := Cartesian(2, 1, 3)
	want := [][]int{
		{0, 0, 0}, {0, 0, 1}, {0, 0, 2},
		{1, 0, 0}, {1, 0, 1}, {1, 0, 2},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Cartesian() mismatch (-want +got):\n%s", diff)
	}
	assert.Empty(t, Cartesian(2, 0, 3))
	assert.Empty(t, Cartesian())
}

func TestSpaces(t *testing.T) {
	fs := FilterSpace{
		OFIFilterThresholds:  []float64{0.3, 0.5},
		ManipEntryThresholds: []float64{1.5, 2.0, 1.5},
		HoldingBars:          []int{3, 6},
	}
	cfgs := fs.Configs()
	assert.Len(t, cfgs, 8, "duplicate threshold must be dropped")
	assert.Equal(t, signal.NewFilterConfig(0.3, 1.5, 3), cfgs[0])
	assert.Equal(t, signal.NewFilterConfig(0.3, 1.5, 6), cfgs[1])

	ss := ScoreSpace{
		Weights:                  []WeightPair{{0.6, 0.4}, {0.4, 0.6}},
		CompositeEntryThresholds: []float64{1, 1.5},
		HoldingBars:              []int{6},
	}
	scfgs := ss.Configs()
	require.Len(t, scfgs, 4)
	assert.Equal(t, signal.NewScoreConfig(0.4, 0.6, 1.5, 6), scfgs[3])
}

func TestDedup(t *testing.T) {
	a := signal.NewFilterConfig(0.3, 2, 3)
	b := signal.NewFilterConfig(0.5, 2, 3)
	assert.Equal(t, []signal.Config{a, b}, Dedup([]signal.Config{a, b, a, b, a}))
}

func TestEvaluate(t *testing.T) {
	s := newWaveSeries(t, 200)
	cfg := signal.NewScoreConfig(1, 0, 2, 3)
	rec, err := Evaluate(s, cfg, SimParams{CostBps: 5, BarsPerYear: 2190})
	require.NoError(t, err)
	assert.Greater(t, rec.TotalTrades, 0)

	_, err = Evaluate(s, signal.NewScoreConfig(1, 0, 2, 0), SimParams{})
	assert.Error(t, err)

	_, err = Evaluate(s, cfg, SimParams{CostBps: -1})
	assert.ErrorIs(t, err, backtest.ErrNegativeCost)
}

func TestEvaluate_TenBarScoreScenario(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	closes := []float64{100, 101, 102, 103, 104, 100, 99, 98, 97, 96}
	bars := make([]bar.Bar, len(closes))
	for i, c := range closes {
		bars[i] = bar.Bar{Time: start.Add(time.Duration(i) * time.Hour), Close: c, OFIAbsZ: math.NaN()}
	}
	bars[2].ManipZ = 2.5
	s, err := bar.NewSeries("BTCUSDT", time.Hour, bars)
	require.NoError(t, err)

	rec, err := Evaluate(s, signal.NewScoreConfig(1, 0, 2, 2), SimParams{BarsPerYear: report.BarsPerYear(time.Hour)})
	require.NoError(t, err)

	// one short from bar 3 (103) to bar 5 (100)
	assert.Equal(t, 1, rec.TotalTrades)
	assert.Equal(t, 1, rec.ShortTrades)
	assert.Equal(t, 1, rec.WinningTrades)
	assert.Equal(t, 0, rec.TruncatedTrades)
	assert.InDelta(t, 3.0/103.0, rec.TotalReturn, 1e-12)
	assert.InDelta(t, 3.0/103.0, rec.AvgReturnPerTrade, 1e-12)
	assert.Equal(t, 2.0, rec.AvgHoldingBars)
	assert.Equal(t, 1.0, rec.WinRate)
	assert.Equal(t, 0.0, rec.SharpeRatio)
	assert.True(t, rec.LowConfidence)
}

func TestRun(t *testing.T) {
	s := newWaveSeries(t, 300)
	space := FilterSpace{
		OFIFilterThresholds:  []float64{0.3, 0.5, 0.8},
		ManipEntryThresholds: []float64{1.5, 2.0, 2.5},
		HoldingBars:          []int{0, 3, 6},
	}
	cfgs := space.Configs()
	p := SimParams{CostBps: 5, BarsPerYear: report.BarsPerYear(4 * time.Hour), Workers: 4}

	table, err := Run(context.Background(), s, cfgs, p, zap.NewNop())
	require.NoError(t, err)
	require.Len(t, table.Rows, len(cfgs))
	assert.Equal(t, signal.ModeFilter, table.Mode)
	assert.Equal(t, "ETHUSDT", table.Symbol)

	for i, r := range table.Rows {
		assert.Equal(t, i, r.Index)
		assert.Equal(t, cfgs[i], r.Config)
		assert.Equal(t, r.Config.HoldingBars == 0, r.Failed(), r.Config.Key())
	}
	assert.Len(t, table.Failed(), 9)
	assert.Len(t, table.Valid(), 18)

	row, ok := table.Lookup(cfgs[5])
	require.True(t, ok)
	assert.Equal(t, 5, row.Index)
	_, ok = table.Lookup(signal.NewFilterConfig(9, 9, 9))
	assert.False(t, ok)
}

func TestRun_Deterministic(t *testing.T) {
	s := newWaveSeries(t, 300)
	cfgs := ScoreSpace{
		Weights:                  []WeightPair{{1, 0}, {0.6, 0.4}, {0.5, 0.5}},
		CompositeEntryThresholds: []float64{1, 1.5, 2},
		HoldingBars:              []int{2, 4, 8},
	}.Configs()

	a, err := Run(context.Background(), s, cfgs, SimParams{CostBps: 3, BarsPerYear: 2190, Workers: 8}, nil)
	require.NoError(t, err)
	b, err := Run(context.Background(), s, cfgs, SimParams{CostBps: 3, BarsPerYear: 2190, Workers: 1}, nil)
	require.NoError(t, err)

	if diff := cmp.Diff(a.Rows, b.Rows); diff != "" {
		t.Errorf("grid results differ between runs (-first +second):\n%s", diff)
	}
	assert.Equal(t, a.Sorted(FieldSharpe, true), b.Sorted(FieldSharpe, true))
}

func TestRun_Canceled(t *testing.T) {
	s := newWaveSeries(t, 50)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, s, []signal.Config{signal.NewFilterConfig(0.5, 2, 3)}, SimParams{Workers: 1}, nil)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestTable_Sorted(t *testing.T) {
	mk := func(i int, hold int, sharpe float64, err error) Row {
		return Row{Index: i, Config: signal.NewFilterConfig(0.5, 2, hold), Record: report.Record{SharpeRatio: sharpe, TotalTrades: hold}, Err: err}
	}
	table := &Table{Rows: []Row{
		mk(0, 5, 0.8, nil),
		mk(1, 3, 1.2, nil),
		mk(2, 4, 0.8, nil),
		mk(3, 9, 9.9, errors.New("boom")),
	}}

	got := table.Sorted(FieldSharpe, true)
	require.Len(t, got, 3)
	assert.Equal(t, []int{1, 2, 0}, []int{got[0].Index, got[1].Index, got[2].Index},
		"ties are broken by parameters: holding_bars=4 sorts before holding_bars=5")

	asc := table.Sorted(FieldTrades, false)
	assert.Equal(t, []int{1, 2, 0}, []int{asc[0].Index, asc[1].Index, asc[2].Index})
}

func TestSortRows_TieBreakIsNumeric(t *testing.T) {
	rows := []Row{
		{Index: 0, Config: signal.NewFilterConfig(0.5, 2, 12)},
		{Index: 1, Config: signal.NewFilterConfig(0.5, 2, 3)},
		{Index: 2, Config: signal.NewFilterConfig(0.5, 10, 1)},
		{Index: 3, Config: signal.NewFilterConfig(0.5, 2, 6)},
	}
	SortRows(rows, FieldSharpe, true)
	// a string key would put holding_bars=12 before 3 and manip 10 before 2
	assert.Equal(t, []int{1, 3, 0, 2}, []int{rows[0].Index, rows[1].Index, rows[2].Index, rows[3].Index})
}

func TestParseField(t *testing.T) {
	f, err := ParseField("win_rate")
	require.NoError(t, err)
	assert.Equal(t, FieldWinRate, f)
	assert.Equal(t, "win_rate", f.String())
	_, err = ParseField("calmar")
	assert.Error(t, err)
}
