// Package signal provides the logic for generating trading signals from the
// manipulation and order-flow factors.
package signal

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/chensirou3/Multi-factor-combination/internal/bar"
	"github.com/chensirou3/Multi-factor-combination/pkg/logger"
)

// Direction is the desired position for a bar: -1 short, 0 flat, +1 long.
type Direction int

const (
	// Short indicates a short signal.
	Short Direction = -1
	// Flat indicates no signal.
	Flat Direction = 0
	// Long indicates a long signal.
	Long Direction = 1
)

// String returns the string representation of Direction.
func (d Direction) String() string {
	switch d {
	case Long:
		return "LONG"
	case Short:
		return "SHORT"
	case Flat:
		return "NONE"
	default:
		return "UNKNOWN"
	}
}

// Mode selects how the two factors are combined.
type Mode int

const (
	// ModeFilter gates the manipulation factor by a calm order-flow condition.
	ModeFilter Mode = iota + 1
	// ModeScore thresholds a weighted sum of both factors.
	ModeScore
)

// ErrUnknownMode is returned for a mode outside ModeFilter and ModeScore.
var ErrUnknownMode = errors.New("unknown signal mode")

func (m Mode) String() string {
	switch m {
	case ModeFilter:
		return "filter"
	case ModeScore:
		return "score"
	default:
		return "unknown"
	}
}

// ParseMode converts "filter" or "score" into a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "filter":
		return ModeFilter, nil
	case "score":
		return ModeScore, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

// Config is one point of the parameter space. It is a comparable value and
// can be used as a map key.
type Config struct {
	Mode Mode

	// filter mode
	OFIFilterThreshold  float64
	ManipEntryThreshold float64

	// score mode
	WeightManip             float64
	WeightOFI               float64
	CompositeEntryThreshold float64

	HoldingBars int
}

// NewFilterConfig builds a filter-mode Config.
func NewFilterConfig(ofiThreshold, manipThreshold float64, holdingBars int) Config {
	return Config{
		Mode:                ModeFilter,
		OFIFilterThreshold:  ofiThreshold,
		ManipEntryThreshold: manipThreshold,
		HoldingBars:         holdingBars,
	}
}

// NewScoreConfig builds a score-mode Config.
func NewScoreConfig(weightManip, weightOFI, entryThreshold float64, holdingBars int) Config {
	return Config{
		Mode:                    ModeScore,
		WeightManip:             weightManip,
		WeightOFI:               weightOFI,
		CompositeEntryThreshold: entryThreshold,
		HoldingBars:             holdingBars,
	}
}

// Param is a named parameter value, used for table columns.
type Param struct {
	Name  string
	Value float64
}

// Params returns the mode's parameters in a fixed column order.
func (c Config) Params() []Param {
	switch c.Mode {
	case ModeFilter:
		return []Param{
			{"ofi_filter_threshold", c.OFIFilterThreshold},
			{"manip_entry_threshold", c.ManipEntryThreshold},
			{"holding_bars", float64(c.HoldingBars)},
		}
	case ModeScore:
		return []Param{
			{"weight_manip", c.WeightManip},
			{"weight_ofi", c.WeightOFI},
			{"composite_entry_threshold", c.CompositeEntryThreshold},
			{"holding_bars", float64(c.HoldingBars)},
		}
	default:
		return nil
	}
}

// ParamNames returns the column names produced by Params for mode m.
func ParamNames(m Mode) []string {
	ps := Config{Mode: m}.Params()
	names := make([]string, len(ps))
	for i, p := range ps {
		names[i] = p.Name
	}
	return names
}

// Key is a stable string identity, also used as the final tie-breaker when
// ranking.
func (c Config) Key() string {
	var b strings.Builder
	b.WriteString(c.Mode.String())
	for _, p := range c.Params() {
		b.WriteByte('|')
		b.WriteString(p.Name)
		b.WriteByte('=')
		b.WriteString(strconv.FormatFloat(p.Value, 'g', -1, 64))
	}
	return b.String()
}

func (c Config) String() string { return c.Key() }

// Compare orders configurations by mode, then by their parameters in
// Params order, compared as numbers. It returns -1, 0 or +1.
func (c Config) Compare(o Config) int {
	if r := cmp.Compare(c.Mode, o.Mode); r != 0 {
		return r
	}
	a, b := c.Params(), o.Params()
	for i := range min(len(a), len(b)) {
		if r := cmp.Compare(a[i].Value, b[i].Value); r != 0 {
			return r
		}
	}
	return cmp.Compare(len(a), len(b))
}

// Validate checks the fields relevant to the mode.
func (c Config) Validate() error {
	if c.HoldingBars <= 0 {
		return fmt.Errorf("holding_bars must be positive, got %d", c.HoldingBars)
	}
	switch c.Mode {
	case ModeFilter:
		if isBad(c.OFIFilterThreshold) || isBad(c.ManipEntryThreshold) {
			return fmt.Errorf("filter thresholds must be finite: %s", c.Key())
		}
	case ModeScore:
		if isBad(c.WeightManip) || isBad(c.WeightOFI) || isBad(c.CompositeEntryThreshold) {
			return fmt.Errorf("score parameters must be finite: %s", c.Key())
		}
	default:
		return fmt.Errorf("%w: %d", ErrUnknownMode, c.Mode)
	}
	return nil
}

func isBad(v float64) bool { return math.IsNaN(v) || math.IsInf(v, 0) }

// Composite returns wm*manip + wo*ofi. NaN propagates.
func Composite(b bar.Bar, cfg Config) float64 {
	return cfg.WeightManip*b.ManipZ + cfg.WeightOFI*b.OFIZ
}

// Raw evaluates one bar. An extreme manipulation reading is traded as a
// reversal: high manip goes short, low manip goes long. A NaN input yields
// Flat.
func Raw(b bar.Bar, cfg Config) Direction {
	switch cfg.Mode {
	case ModeFilter:
		absOFI := b.AbsOFI()
		if math.IsNaN(b.ManipZ) || math.IsNaN(absOFI) {
			return Flat
		}
		if absOFI >= cfg.OFIFilterThreshold {
			return Flat
		}
		if b.ManipZ > cfg.ManipEntryThreshold {
			return Short
		}
		if b.ManipZ < -cfg.ManipEntryThreshold {
			return Long
		}
	case ModeScore:
		if math.IsNaN(b.ManipZ) || math.IsNaN(b.OFIZ) {
			return Flat
		}
		c := Composite(b, cfg)
		if c > cfg.CompositeEntryThreshold {
			return Short
		}
		if c < -cfg.CompositeEntryThreshold {
			return Long
		}
	}
	return Flat
}

// Shift delays a raw signal by one bar so that a decision made on bar t's
// close is acted on at bar t+1. The result at index 0 is Flat.
func Shift(raw []Direction) []Direction {
	exec := make([]Direction, len(raw))
	for i := 1; i < len(raw); i++ {
		exec[i] = raw[i-1]
	}
	return exec
}

// Signals holds the raw and execution signal series for one series/config.
type Signals struct {
	Raw  []Direction
	Exec []Direction
}

// Generate computes the raw and execution signals. It is pure: the series is
// not modified.
func Generate(s *bar.Series, cfg Config) (Signals, error) {
	if cfg.Mode != ModeFilter && cfg.Mode != ModeScore {
		return Signals{}, fmt.Errorf("%w: %d", ErrUnknownMode, cfg.Mode)
	}
	raw := make([]Direction, s.Len())
	var longs, shorts int
	for i := range raw {
		raw[i] = Raw(s.At(i), cfg)
		switch raw[i] {
		case Long:
			longs++
		case Short:
			shorts++
		}
	}
	logger.Debugf("signals %s %s: long=%d short=%d bars=%d", s.Symbol(), cfg.Key(), longs, shorts, len(raw))
	return Signals{Raw: raw, Exec: Shift(raw)}, nil
}
