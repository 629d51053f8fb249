package indicator

import (
	"fmt"

	"github.com/saidsurucu/borsago/internal/types"
	"github.com/saidsurucu/borsago/pkg/errors"
)

// EMA implements an exponential moving average of the close price, seeded
// with the simple average of the first period closes.
type EMA struct {
	period int
}

// NewEMA creates an EMA indicator with the given period.
func NewEMA(period int) *EMA {
	return &EMA{period: period}
}

// Name returns the registry key, e.g. "ema_12".
func (e *EMA) Name() string {
	return fmt.Sprintf("ema_%d", e.period)
}

// Compute implements Indicator.
func (e *EMA) Compute(bars []types.Bar) (Columns, error) {
	if e.period <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidParameter, "ema period must be positive, got %d", e.period)
	}

	return Columns{e.Name(): ema(closes(bars), e.period)}, nil
}
