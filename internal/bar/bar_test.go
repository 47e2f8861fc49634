package bar

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func hourly(n int) []Bar {
	bars := make([]Bar, n)
	for i := range bars {
		bars[i] = Bar{Time: t0.Add(time.Duration(i) * time.Hour), Close: 100 + float64(i), ManipZ: 0, OFIZ: 0, OFIAbsZ: math.NaN()}
	}
	return bars
}

func TestNewSeries(t *testing.T) {
	t.Run("valid series", func(t *testing.T) {
		s, err := NewSeries("BTCUSDT", time.Hour, hourly(5))
		require.NoError(t, err)
		assert.Equal(t, 5, s.Len())
		assert.Equal(t, "BTCUSDT", s.Symbol())
		assert.Equal(t, time.Hour, s.Interval())
		assert.Equal(t, t0, s.Start())
		assert.Equal(t, t0.Add(4*time.Hour), s.End())
	})

	t.Run("duplicate timestamp", func(t *testing.T) {
		bars := hourly(3)
		bars[2].Time = bars[1].Time
		_, err := NewSeries("X", time.Hour, bars)
		assert.ErrorIs(t, err, ErrDuplicateTimestamp)
	})

	t.Run("unordered", func(t *testing.T) {
		bars := hourly(3)
		bars[1], bars[2] = bars[2], bars[1]
		_, err := NewSeries("X", time.Hour, bars)
		assert.ErrorIs(t, err, ErrUnordered)
	})

	t.Run("input slice is copied", func(t *testing.T) {
		bars := hourly(2)
		s, err := NewSeries("X", time.Hour, bars)
		require.NoError(t, err)
		bars[0].Close = -1
		assert.Equal(t, 100.0, s.At(0).Close)
	})

	t.Run("empty series", func(t *testing.T) {
		s, err := NewSeries("X", time.Hour, nil)
		require.NoError(t, err)
		assert.Equal(t, 0, s.Len())
		assert.True(t, s.Start().IsZero())
		assert.True(t, s.End().IsZero())
	})
}

func TestSeries_Between(t *testing.T) {
	s, err := NewSeries("X", time.Hour, hourly(10))
	require.NoError(t, err)

	tests := []struct {
		name       string
		start, end time.Time
		wantLen    int
		wantFirst  float64
	}{
		{"inclusive both ends", t0.Add(2 * time.Hour), t0.Add(5 * time.Hour), 4, 102},
		{"between bars", t0.Add(90 * time.Minute), t0.Add(150 * time.Minute), 1, 102},
		{"whole range", t0.Add(-time.Hour), t0.Add(24 * time.Hour), 10, 100},
		{"outside range", t0.Add(20 * time.Hour), t0.Add(30 * time.Hour), 0, 0},
		{"inverted", t0.Add(5 * time.Hour), t0.Add(2 * time.Hour), 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := s.Between(tt.start, tt.end)
			assert.Equal(t, tt.wantLen, sub.Len())
			if tt.wantLen > 0 {
				assert.Equal(t, tt.wantFirst, sub.At(0).Close)
			}
			assert.Equal(t, "X", sub.Symbol())
		})
	}
}

func TestBar_AbsOFI(t *testing.T) {
	assert.Equal(t, 1.5, Bar{OFIZ: -1.5, OFIAbsZ: math.NaN()}.AbsOFI())
	assert.Equal(t, 0.7, Bar{OFIZ: -1.5, OFIAbsZ: 0.7}.AbsOFI())
	assert.True(t, math.IsNaN(Bar{OFIZ: math.NaN(), OFIAbsZ: math.NaN()}.AbsOFI()))
}

func TestSeries_GapsAndQuality(t *testing.T) {
	bars := hourly(6)
	// remove the bar at index 3 to open a two hour gap
	bars = append(bars[:3], bars[4:]...)
	bars[0].ManipZ = math.NaN()
	bars[1].OFIZ = math.NaN()
	s, err := NewSeries("X", time.Hour, bars)
	require.NoError(t, err)

	gaps := s.Gaps(0.1)
	require.Len(t, gaps, 1)
	assert.Equal(t, 3, gaps[0].Index)
	assert.Equal(t, 2*time.Hour, gaps[0].Duration())

	q := s.Quality()
	assert.Equal(t, 5, q.Bars)
	assert.Equal(t, 1, q.Gaps)
	assert.Equal(t, 2*time.Hour, q.MaxGap)
	assert.InDelta(t, 20.0, q.ManipMissingPct, 1e-9)
	assert.InDelta(t, 20.0, q.OFIMissingPct, 1e-9)
}
