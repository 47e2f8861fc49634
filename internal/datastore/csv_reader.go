package datastore

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/chensirou3/Multi-factor-combination/internal/bar"
	"github.com/chensirou3/Multi-factor-combination/internal/indicator"
	"github.com/chensirou3/Multi-factor-combination/pkg/logger"
)

// Source loads the bar series for a symbol.
type Source interface {
	LoadSeries(ctx context.Context, symbol string) (*bar.Series, error)
}

// ErrMissingColumn is returned when a required column is absent from the
// CSV header.
var ErrMissingColumn = errors.New("missing required column")

// column aliases, matched case-insensitively
var columnAliases = map[string][]string{
	"time":        {"time", "timestamp", "datetime", "date"},
	"open":        {"open"},
	"high":        {"high"},
	"low":         {"low"},
	"close":       {"close"},
	"volume":      {"volume"},
	"manip_z":     {"manip_z", "manipscore_z"},
	"ofi_z":       {"ofi_z"},
	"ofi_abs_z":   {"ofi_abs_z"},
	"manip_score": {"manip_score", "manipscore"},
}

// ZScoreParams controls the rolling z-score applied to a raw manipulation
// score when the file has no pre-computed manip_z column.
type ZScoreParams struct {
	Window     int
	MinPeriods int
}

// CSVSource reads one CSV file per symbol.
// The file name is Pattern with "{symbol}" replaced, relative to Dir.
type CSVSource struct {
	Dir      string
	Pattern  string
	Interval time.Duration
	ZScore   ZScoreParams
}

// Path returns the file path for symbol.
func (s CSVSource) Path(symbol string) string {
	pattern := s.Pattern
	if pattern == "" {
		pattern = "{symbol}.csv"
	}
	return filepath.Join(s.Dir, strings.ReplaceAll(pattern, "{symbol}", symbol))
}

// LoadSeries implements Source.
func (s CSVSource) LoadSeries(ctx context.Context, symbol string) (*bar.Series, error) {
	path := s.Path(symbol)
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open csv file: %w", err)
	}
	defer file.Close()

	bars, err := ReadBars(ctx, file, s.ZScore)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	series, err := bar.NewSeries(symbol, s.Interval, bars)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	logQuality(series)
	return series, nil
}

// ReadBars parses bars from CSV with a header row. Rows whose time cannot be
// parsed are skipped with a warning; empty or "nan" numeric cells become NaN.
// Without an ofi_abs_z column it is derived as |ofi_z|.
// Rows are returned in file order.
func ReadBars(ctx context.Context, r io.Reader, zs ZScoreParams) ([]bar.Bar, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, nil // Empty file is not an error
		}
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}
	cols := mapColumns(header)
	for _, req := range []string{"time", "close"} {
		if _, ok := cols[req]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, req)
		}
	}
	_, hasManipZ := cols["manip_z"]
	_, hasManipScore := cols["manip_score"]
	if !hasManipZ && !hasManipScore {
		return nil, fmt.Errorf("%w: manip_z or manip_score", ErrMissingColumn)
	}
	_, hasOFI := cols["ofi_z"]
	_, hasOFIAbs := cols["ofi_abs_z"]
	if !hasOFI && !hasOFIAbs {
		return nil, fmt.Errorf("%w: ofi_z", ErrMissingColumn)
	}

	var bars []bar.Bar
	var rawScores []float64
	line := 1
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("failed to read csv record at line %d: %w", line, err)
		}

		ts, err := parseTime(cell(record, cols, "time"))
		if err != nil {
			logger.Warnf("Skipping record at line %d due to time parse error: %v", line, err)
			continue
		}
		b := bar.Bar{
			Time:    ts,
			Open:    parseNumber(cell(record, cols, "open")),
			High:    parseNumber(cell(record, cols, "high")),
			Low:     parseNumber(cell(record, cols, "low")),
			Close:   parsePrice(cell(record, cols, "close")),
			Volume:  parseNumber(cell(record, cols, "volume")),
			ManipZ:  parseNumber(cell(record, cols, "manip_z")),
			OFIZ:    parseNumber(cell(record, cols, "ofi_z")),
			OFIAbsZ: parseNumber(cell(record, cols, "ofi_abs_z")),
		}
		bars = append(bars, b)
		rawScores = append(rawScores, parseNumber(cell(record, cols, "manip_score")))
	}

	if !hasManipZ {
		window := zs.Window
		if window <= 0 {
			window = 200
		}
		z := indicator.RollingZScore(rawScores, window, zs.MinPeriods)
		for i := range bars {
			bars[i].ManipZ = z[i]
		}
		logger.Debugf("Computed manip_z with a rolling window of %d bars", window)
	}
	if !hasOFIAbs {
		ofi := make([]float64, len(bars))
		for i := range bars {
			ofi[i] = bars[i].OFIZ
		}
		for i, v := range indicator.Abs(ofi) {
			bars[i].OFIAbsZ = v
		}
	}
	return bars, nil
}

func mapColumns(header []string) map[string]int {
	cols := make(map[string]int)
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(h))
		for canonical, aliases := range columnAliases {
			if _, done := cols[canonical]; done {
				continue
			}
			for _, a := range aliases {
				if name == a {
					cols[canonical] = i
				}
			}
		}
	}
	return cols
}

func cell(record []string, cols map[string]int, name string) string {
	i, ok := cols[name]
	if !ok || i >= len(record) {
		return ""
	}
	return record[i]
}

func parseNumber(s string) float64 {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "nan", "null", "none", "na":
		return math.NaN()
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return math.NaN()
	}
	return d.InexactFloat64()
}

// parsePrice reads a price with fixed precision before converting.
func parsePrice(s string) float64 {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return math.NaN()
	}
	return d.Round(8).InexactFloat64()
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	layouts := []string{
		time.RFC3339Nano,
		"2006-01-02 15:04:05.999999-07",
		"2006-01-02 15:04:05-07:00",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"2006-01-02",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("could not parse time: %q", s)
}

func logQuality(s *bar.Series) {
	q := s.Quality()
	logger.Infof("Loaded %s: %d bars from %s to %s, %d gaps (max %s), manip_z missing %.2f%%, ofi_z missing %.2f%%",
		s.Symbol(), q.Bars, s.Start().Format(time.RFC3339), s.End().Format(time.RFC3339),
		q.Gaps, q.MaxGap, q.ManipMissingPct, q.OFIMissingPct)
}
