package indicator

import (
	"fmt"

	"github.com/saidsurucu/borsago/internal/types"
	"github.com/saidsurucu/borsago/pkg/errors"
)

// RSI implements the relative strength index with Wilder's smoothing.
type RSI struct {
	period int
}

// NewRSI creates an RSI indicator with the given period.
func NewRSI(period int) *RSI {
	return &RSI{period: period}
}

// Name returns the registry key, e.g. "rsi_14".
func (r *RSI) Name() string {
	return fmt.Sprintf("rsi_%d", r.period)
}

// Compute implements Indicator.
func (r *RSI) Compute(bars []types.Bar) (Columns, error) {
	if r.period <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidParameter, "rsi period must be positive, got %d", r.period)
	}

	out := nanSeries(len(bars))
	if len(bars) <= r.period {
		return Columns{r.Name(): out}, nil
	}

	var avgGain, avgLoss float64

	// Seed with the simple average of the first `period` changes.
	for i := 1; i <= r.period; i++ {
		change := bars[i].Close - bars[i-1].Close
		if change > 0 {
			avgGain += change
		} else {
			avgLoss -= change
		}
	}

	avgGain /= float64(r.period)
	avgLoss /= float64(r.period)
	out[r.period] = rsiValue(avgGain, avgLoss)

	for i := r.period + 1; i < len(bars); i++ {
		change := bars[i].Close - bars[i-1].Close

		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}

		avgGain = (avgGain*float64(r.period-1) + gain) / float64(r.period)
		avgLoss = (avgLoss*float64(r.period-1) + loss) / float64(r.period)
		out[i] = rsiValue(avgGain, avgLoss)
	}

	return Columns{r.Name(): out}, nil
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}

	rs := avgGain / avgLoss

	return 100 - 100/(1+rs)
}
