package indicator

import (
	"fmt"

	"github.com/saidsurucu/borsago/internal/types"
	"github.com/saidsurucu/borsago/pkg/errors"
)

// SMA implements a simple moving average of the close price.
type SMA struct {
	period int
}

// NewSMA creates an SMA indicator with the given period.
func NewSMA(period int) *SMA {
	return &SMA{period: period}
}

// Name returns the registry key, e.g. "sma_50".
func (s *SMA) Name() string {
	return fmt.Sprintf("sma_%d", s.period)
}

// Compute implements Indicator.
func (s *SMA) Compute(bars []types.Bar) (Columns, error) {
	if s.period <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidParameter, "sma period must be positive, got %d", s.period)
	}

	out := nanSeries(len(bars))
	if len(bars) < s.period {
		return Columns{s.Name(): out}, nil
	}

	sum := 0.0

	for i, bar := range bars {
		sum += bar.Close
		if i >= s.period {
			sum -= bars[i-s.period].Close
		}

		if i >= s.period-1 {
			out[i] = sum / float64(s.period)
		}
	}

	return Columns{s.Name(): out}, nil
}
