package oos

import (
	"errors"
	"fmt"
	"time"

	"github.com/chensirou3/Multi-factor-combination/internal/bar"
)

// ErrBoundary matches every *BoundaryError.
var ErrBoundary = errors.New("invalid oos split boundary")

// BoundaryError identifies the symbol and the violated split constraint.
type BoundaryError struct {
	Symbol string
	Reason string
}

func (e *BoundaryError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrBoundary, e.Symbol, e.Reason)
}

// Is makes errors.Is(err, ErrBoundary) true.
func (e *BoundaryError) Is(target error) bool { return target == ErrBoundary }

// Split holds the inclusive train and test date windows for one symbol.
type Split struct {
	Symbol     string
	TrainStart time.Time
	TrainEnd   time.Time
	TestStart  time.Time
	TestEnd    time.Time
}

const dateLayout = "2006-01-02"

func (s Split) String() string {
	return fmt.Sprintf("%s train=[%s, %s] test=[%s, %s]", s.Symbol,
		s.TrainStart.Format(dateLayout), s.TrainEnd.Format(dateLayout),
		s.TestStart.Format(dateLayout), s.TestEnd.Format(dateLayout))
}

func (s Split) fail(format string, args ...interface{}) error {
	return &BoundaryError{Symbol: s.Symbol, Reason: fmt.Sprintf(format, args...)}
}

// Validate checks the split against itself and against the series. Windows
// must be ordered, disjoint with train strictly before test, lie within the
// series span give or take one bar interval, and contain at least one bar.
func (s Split) Validate(series *bar.Series) error {
	if !s.TrainStart.Before(s.TrainEnd) {
		return s.fail("train_start %s is not before train_end %s",
			s.TrainStart.Format(dateLayout), s.TrainEnd.Format(dateLayout))
	}
	if !s.TestStart.Before(s.TestEnd) {
		return s.fail("test_start %s is not before test_end %s",
			s.TestStart.Format(dateLayout), s.TestEnd.Format(dateLayout))
	}
	if !s.TrainEnd.Before(s.TestStart) {
		return s.fail("train_end %s must be before test_start %s (windows overlap)",
			s.TrainEnd.Format(dateLayout), s.TestStart.Format(dateLayout))
	}
	if series == nil || series.Len() == 0 {
		return s.fail("series is empty")
	}

	slack := series.Interval()
	if slack < 0 {
		slack = 0
	}
	lo, hi := series.Start().Add(-slack), series.End().Add(slack)
	if s.TrainStart.Before(lo) {
		return s.fail("train_start %s is before the first bar %s",
			s.TrainStart.Format(dateLayout), series.Start().Format(time.RFC3339))
	}
	if s.TestEnd.After(hi) {
		return s.fail("test_end %s is after the last bar %s",
			s.TestEnd.Format(dateLayout), series.End().Format(time.RFC3339))
	}
	if series.Between(s.TrainStart, s.TrainEnd).Len() == 0 {
		return s.fail("train window contains no bars")
	}
	if series.Between(s.TestStart, s.TestEnd).Len() == 0 {
		return s.fail("test window contains no bars")
	}
	return nil
}

// Train returns the train window of series.
func (s Split) Train(series *bar.Series) *bar.Series {
	return series.Between(s.TrainStart, s.TrainEnd)
}

// Test returns the test window of series.
func (s Split) Test(series *bar.Series) *bar.Series {
	return series.Between(s.TestStart, s.TestEnd)
}
