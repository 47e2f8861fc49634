package grid

import (
	"github.com/chensirou3/Multi-factor-combination/internal/signal"
)

// WeightPair is a (manip, ofi) weight combination for score mode.
type WeightPair struct {
	Manip float64 `yaml:"manip"`
	OFI   float64 `yaml:"ofi"`
}

// Space produces the configurations to evaluate.
type Space interface {
	Configs() []signal.Config
}

// FilterSpace is the filter-mode parameter grid.
type FilterSpace struct {
	OFIFilterThresholds  []float64
	ManipEntryThresholds []float64
	HoldingBars          []int
}

// Configs enumerates the full cartesian product.
func (s FilterSpace) Configs() []signal.Config {
	idx := Cartesian(len(s.OFIFilterThresholds), len(s.ManipEntryThresholds), len(s.HoldingBars))
	out := make([]signal.Config, 0, len(idx))
	for _, ix := range idx {
		out = append(out, signal.NewFilterConfig(
			s.OFIFilterThresholds[ix[0]],
			s.ManipEntryThresholds[ix[1]],
			s.HoldingBars[ix[2]],
		))
	}
	return Dedup(out)
}

// ScoreSpace is the score-mode parameter grid.
type ScoreSpace struct {
	Weights                  []WeightPair
	CompositeEntryThresholds []float64
	HoldingBars              []int
}

// Configs enumerates the full cartesian product.
func (s ScoreSpace) Configs() []signal.Config {
	idx := Cartesian(len(s.Weights), len(s.CompositeEntryThresholds), len(s.HoldingBars))
	out := make([]signal.Config, 0, len(idx))
	for _, ix := range idx {
		w := s.Weights[ix[0]]
		out = append(out, signal.NewScoreConfig(w.Manip, w.OFI, s.CompositeEntryThresholds[ix[1]], s.HoldingBars[ix[2]]))
	}
	return Dedup(out)
}

// Cartesian returns every index tuple for the given dimension sizes, with the
// last dimension varying fastest. Any zero size yields no tuples.
func Cartesian(sizes ...int) [][]int {
	if len(sizes) == 0 {
		return nil
	}
	total := 1
	for _, n := range sizes {
		if n <= 0 {
			return nil
		}
		total *= n
	}
	out := make([][]int, 0, total)
	cur := make([]int, len(sizes))
	for {
		tuple := make([]int, len(cur))
		copy(tuple, cur)
		out = append(out, tuple)

		d := len(sizes) - 1
		for d >= 0 {
			cur[d]++
			if cur[d] < sizes[d] {
				break
			}
			cur[d] = 0
			d--
		}
		if d < 0 {
			return out
		}
	}
}

// Dedup drops repeated configurations, keeping the first occurrence.
func Dedup(configs []signal.Config) []signal.Config {
	seen := make(map[signal.Config]struct{}, len(configs))
	out := make([]signal.Config, 0, len(configs))
	for _, c := range configs {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
