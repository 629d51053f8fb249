// Package indicator provides vectorized technical indicators computed over a
// full bar sequence. Each indicator produces one or more columns aligned with
// the input bars; leading values are NaN until the indicator's warm-up window
// is satisfied. Composite indicators (e.g. MACD) expose each named sub-series
// as its own column.
package indicator

import (
	"math"

	"github.com/saidsurucu/borsago/internal/types"
)

// Columns maps a column name to a series aligned with the input bars.
type Columns map[string][]float64

// Indicator is a stateless computation over a bar sequence.
type Indicator interface {
	// Name returns the registry key of this indicator.
	Name() string
	// Compute returns the indicator columns for the given bars. Every column
	// has exactly len(bars) values.
	Compute(bars []types.Bar) (Columns, error)
}

// nanSeries returns a series of n NaN values.
func nanSeries(n int) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = math.NaN()
	}

	return s
}

// closes extracts the close column from a bar sequence.
func closes(bars []types.Bar) []float64 {
	c := make([]float64, len(bars))
	for i, b := range bars {
		c[i] = b.Close
	}

	return c
}

// ema computes an exponential moving average over values, seeded with the
// simple average of the first period values. Output is NaN before index
// period-1. NaN inputs keep the output NaN until enough defined values exist.
func ema(values []float64, period int) []float64 {
	out := nanSeries(len(values))
	if period <= 0 || len(values) < period {
		return out
	}

	// Find the first window of `period` consecutive defined values.
	start := 0
	for start < len(values) && math.IsNaN(values[start]) {
		start++
	}

	if len(values)-start < period {
		return out
	}

	sum := 0.0
	for i := start; i < start+period; i++ {
		sum += values[i]
	}

	idx := start + period - 1
	out[idx] = sum / float64(period)

	multiplier := 2.0 / float64(period+1)
	for i := idx + 1; i < len(values); i++ {
		out[i] = (values[i]-out[i-1])*multiplier + out[i-1]
	}

	return out
}
