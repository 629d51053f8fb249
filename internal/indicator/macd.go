package indicator

import (
	"math"

	"github.com/saidsurucu/borsago/internal/types"
	"github.com/saidsurucu/borsago/pkg/errors"
)

// MACD implements moving average convergence/divergence. It is a composite
// indicator exposing three columns: macd, macd_signal and macd_hist.
type MACD struct {
	fastPeriod   int
	slowPeriod   int
	signalPeriod int
}

// NewMACD creates a MACD indicator with the given fast, slow and signal
// periods (conventionally 12, 26, 9).
func NewMACD(fastPeriod, slowPeriod, signalPeriod int) *MACD {
	return &MACD{
		fastPeriod:   fastPeriod,
		slowPeriod:   slowPeriod,
		signalPeriod: signalPeriod,
	}
}

// Name returns the registry key.
func (m *MACD) Name() string {
	return "macd"
}

// Compute implements Indicator.
func (m *MACD) Compute(bars []types.Bar) (Columns, error) {
	if m.fastPeriod <= 0 || m.slowPeriod <= 0 || m.signalPeriod <= 0 {
		return nil, errors.New(errors.ErrCodeInvalidParameter, "macd periods must be positive")
	}

	if m.fastPeriod >= m.slowPeriod {
		return nil, errors.Newf(errors.ErrCodeInvalidParameter,
			"macd fast period %d must be shorter than slow period %d", m.fastPeriod, m.slowPeriod)
	}

	closeSeries := closes(bars)
	fast := ema(closeSeries, m.fastPeriod)
	slow := ema(closeSeries, m.slowPeriod)

	macdLine := nanSeries(len(bars))
	for i := range bars {
		if !math.IsNaN(fast[i]) && !math.IsNaN(slow[i]) {
			macdLine[i] = fast[i] - slow[i]
		}
	}

	signalLine := ema(macdLine, m.signalPeriod)

	hist := nanSeries(len(bars))
	for i := range bars {
		if !math.IsNaN(macdLine[i]) && !math.IsNaN(signalLine[i]) {
			hist[i] = macdLine[i] - signalLine[i]
		}
	}

	return Columns{
		"macd":        macdLine,
		"macd_signal": signalLine,
		"macd_hist":   hist,
	}, nil
}
