// Package bar holds the immutable, time-ordered bar series that every
// downstream stage reads from.
package bar

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"
)

var (
	// ErrDuplicateTimestamp is returned when two bars share a timestamp.
	ErrDuplicateTimestamp = errors.New("duplicate bar timestamp")
	// ErrUnordered is returned when bars are not in ascending time order.
	ErrUnordered = errors.New("bars are not in ascending time order")
)

// Bar is one fixed-interval observation with its pre-computed factor values.
// Missing factor values are NaN.
type Bar struct {
	Time    time.Time
	Open    float64
	High    float64
	Low     float64
	Close   float64
	Volume  float64
	ManipZ  float64
	OFIZ    float64
	OFIAbsZ float64
}

// AbsOFI returns the absolute order-flow z-score, preferring the
// pre-computed column.
func (b Bar) AbsOFI() float64 {
	if !math.IsNaN(b.OFIAbsZ) {
		return b.OFIAbsZ
	}
	return math.Abs(b.OFIZ)
}

// Series is a read-only sequence of bars for one symbol.
type Series struct {
	symbol   string
	interval time.Duration
	bars     []Bar
}

// NewSeries copies bars into a new Series. Gaps are allowed; duplicates and
// out-of-order timestamps are not.
func NewSeries(symbol string, interval time.Duration, bars []Bar) (*Series, error) {
	for i := 1; i < len(bars); i++ {
		prev, cur := bars[i-1].Time, bars[i].Time
		switch {
		case cur.Equal(prev):
			return nil, fmt.Errorf("%w: %s at index %d", ErrDuplicateTimestamp, cur.Format(time.RFC3339), i)
		case cur.Before(prev):
			return nil, fmt.Errorf("%w: %s after %s at index %d", ErrUnordered,
				cur.Format(time.RFC3339), prev.Format(time.RFC3339), i)
		}
	}
	cp := make([]Bar, len(bars))
	copy(cp, bars)
	return &Series{symbol: symbol, interval: interval, bars: cp}, nil
}

// Len returns the number of bars.
func (s *Series) Len() int { return len(s.bars) }

// At returns the i-th bar.
func (s *Series) At(i int) Bar { return s.bars[i] }

// Symbol returns the instrument symbol.
func (s *Series) Symbol() string { return s.symbol }

// Interval returns the nominal bar interval.
func (s *Series) Interval() time.Duration { return s.interval }

// Start returns the first timestamp, or the zero time for an empty series.
func (s *Series) Start() time.Time {
	if len(s.bars) == 0 {
		return time.Time{}
	}
	return s.bars[0].Time
}

// End returns the last timestamp, or the zero time for an empty series.
func (s *Series) End() time.Time {
	if len(s.bars) == 0 {
		return time.Time{}
	}
	return s.bars[len(s.bars)-1].Time
}

// Bars returns a copy of the underlying bars.
func (s *Series) Bars() []Bar {
	cp := make([]Bar, len(s.bars))
	copy(cp, s.bars)
	return cp
}

// indexAtOrAfter returns the first index whose time is >= t.
func (s *Series) indexAtOrAfter(t time.Time) int {
	return sort.Search(len(s.bars), func(i int) bool {
		return !s.bars[i].Time.Before(t)
	})
}

// indexAfter returns the first index whose time is > t.
func (s *Series) indexAfter(t time.Time) int {
	return sort.Search(len(s.bars), func(i int) bool {
		return s.bars[i].Time.After(t)
	})
}

// Between returns the sub-series with start <= time <= end.
func (s *Series) Between(start, end time.Time) *Series {
	lo := s.indexAtOrAfter(start)
	hi := s.indexAfter(end)
	if hi < lo {
		hi = lo
	}
	cp := make([]Bar, hi-lo)
	copy(cp, s.bars[lo:hi])
	return &Series{symbol: s.symbol, interval: s.interval, bars: cp}
}

// Gap is a step between two consecutive bars wider than the nominal interval.
type Gap struct {
	Index int // index of the bar after the gap
	From  time.Time
	To    time.Time
}

// Duration returns the elapsed time across the gap.
func (g Gap) Duration() time.Duration { return g.To.Sub(g.From) }

// Gaps reports every step longer than interval*(1+tolerance).
func (s *Series) Gaps(tolerance float64) []Gap {
	if s.interval <= 0 {
		return nil
	}
	limit := time.Duration(float64(s.interval) * (1 + tolerance))
	var gaps []Gap
	for i := 1; i < len(s.bars); i++ {
		if s.bars[i].Time.Sub(s.bars[i-1].Time) > limit {
			gaps = append(gaps, Gap{Index: i, From: s.bars[i-1].Time, To: s.bars[i].Time})
		}
	}
	return gaps
}

// Quality summarizes continuity and factor coverage of a series.
type Quality struct {
	Bars            int
	Gaps            int
	MaxGap          time.Duration
	ManipMissingPct float64
	OFIMissingPct   float64
}

// Quality computes the data-quality summary. Gaps use a 10% tolerance.
func (s *Series) Quality() Quality {
	q := Quality{Bars: len(s.bars)}
	for _, g := range s.Gaps(0.1) {
		q.Gaps++
		if d := g.Duration(); d > q.MaxGap {
			q.MaxGap = d
		}
	}
	if len(s.bars) == 0 {
		return q
	}
	var manipMissing, ofiMissing int
	for _, b := range s.bars {
		if math.IsNaN(b.ManipZ) {
			manipMissing++
		}
		if math.IsNaN(b.OFIZ) && math.IsNaN(b.OFIAbsZ) {
			ofiMissing++
		}
	}
	n := float64(len(s.bars))
	q.ManipMissingPct = float64(manipMissing) / n * 100
	q.OFIMissingPct = float64(ofiMissing) / n * 100
	return q
}
