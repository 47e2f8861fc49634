// Copyright (c) 2024 OBI-Scalp-Bot
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package indicator

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// RollingZScore standardizes each value against the trailing window ending
// at it: (x - mean) / std, with the sample standard deviation. The result is
// NaN until the window holds minPeriods finite values, and NaN wherever the
// window's deviation is zero. NaN inputs are skipped inside the window.
//
// Each window is evaluated in two passes, so large levels (raw volume or
// order-flow values) keep full precision.
func RollingZScore(values []float64, window, minPeriods int) []float64 {
	out := make([]float64, len(values))
	for i := range out {
		out[i] = math.NaN()
	}
	if window <= 0 {
		return out
	}
	if minPeriods <= 0 || minPeriods > window {
		minPeriods = window
	}
	if minPeriods < 2 {
		minPeriods = 2
	}

	buf := make([]float64, 0, window)
	for i, x := range values {
		if math.IsNaN(x) {
			continue
		}
		buf = buf[:0]
		for _, v := range values[max(0, i-window+1) : i+1] {
			if !math.IsNaN(v) {
				buf = append(buf, v)
			}
		}
		if len(buf) < minPeriods {
			continue
		}
		mean, std := stat.MeanStdDev(buf, nil)
		if !(std > 1e-12*math.Max(1, math.Abs(mean))) {
			continue
		}
		out[i] = (x - mean) / std
	}
	return out
}

// Abs returns |x| for each value. NaN stays NaN.
func Abs(values []float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = math.Abs(v)
	}
	return out
}
