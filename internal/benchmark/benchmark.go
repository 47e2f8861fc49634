// Package benchmark computes passive buy-and-hold figures for a bar series so
// strategy results can be read against them.
package benchmark

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/chensirou3/Multi-factor-combination/internal/bar"
)

// ErrInfinitePrice is returned for a series holding an infinite close.
var ErrInfinitePrice = errors.New("infinite close price")

// Result はバイアンドホールドのベンチマーク値です。
type Result struct {
	Symbol      string  `json:"symbol"`
	Bars        int     `json:"bars"`
	StartPrice  float64 `json:"start_price"`
	EndPrice    float64 `json:"end_price"`
	TotalReturn float64 `json:"total_return"`
	MaxDrawdown float64 `json:"max_drawdown"` // fraction of peak close
}

// BuyAndHold returns the long-only benchmark over s: enter at the first valid
// close, exit at the last. Bars with a non-positive or NaN close are skipped;
// an infinite close is an error.
func BuyAndHold(s *bar.Series) (Result, error) {
	res := Result{Symbol: s.Symbol(), Bars: s.Len()}
	var peak decimal.Decimal
	first := true
	for i := 0; i < s.Len(); i++ {
		b := s.At(i)
		c := b.Close
		if math.IsInf(c, 0) {
			return Result{}, fmt.Errorf("%w: %s at %s", ErrInfinitePrice, s.Symbol(), b.Time.Format(time.RFC3339))
		}
		if math.IsNaN(c) || c <= 0 {
			continue
		}
		if first {
			res.StartPrice = c
			peak = decimal.NewFromFloat(c)
			first = false
		}
		res.EndPrice = c

		price := decimal.NewFromFloat(c)
		if price.GreaterThan(peak) {
			peak = price
		}
		if dd := peak.Sub(price).Div(peak).InexactFloat64(); dd > res.MaxDrawdown {
			res.MaxDrawdown = dd
		}
	}
	if res.StartPrice > 0 {
		res.TotalReturn = decimal.NewFromFloat(res.EndPrice).
			Div(decimal.NewFromFloat(res.StartPrice)).
			Sub(decimal.NewFromInt(1)).
			InexactFloat64()
	}
	return res, nil
}
