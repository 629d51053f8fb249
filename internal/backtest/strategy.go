package backtest

import (
	"github.com/saidsurucu/borsago/internal/types"
)

// Strategy decides a signal for a single bar. It receives the bar, the
// engine's current position state, and the indicator values defined at this
// bar (columns whose warm-up window is not yet satisfied are absent from the
// map). Returning SignalNone or an error counts as hold; a returned error or
// panic never aborts the run.
//
// This is the only plugin surface of the core. Implementations are expected
// to be pure: no I/O, no dependence on anything but the arguments.
type Strategy func(bar types.Bar, position types.PositionState, indicators map[string]float64) (types.Signal, error)

// NewSMACrossStrategy returns a strategy that goes long while the fast moving
// average is above the slow one. Indicator columns are addressed by their
// registry names (e.g. "sma_20", "sma_50").
func NewSMACrossStrategy(fastName, slowName string) Strategy {
	return func(_ types.Bar, position types.PositionState, indicators map[string]float64) (types.Signal, error) {
		fast, fastOk := indicators[fastName]

		slow, slowOk := indicators[slowName]
		if !fastOk || !slowOk {
			return types.SignalHold, nil
		}

		if fast > slow && position == types.PositionNone {
			return types.SignalBuy, nil
		}

		if fast < slow && position == types.PositionLong {
			return types.SignalSell, nil
		}

		return types.SignalHold, nil
	}
}

// NewRSIStrategy returns a mean-reversion strategy buying below the oversold
// threshold and selling above the overbought one.
func NewRSIStrategy(rsiName string, oversold, overbought float64) Strategy {
	return func(_ types.Bar, position types.PositionState, indicators map[string]float64) (types.Signal, error) {
		rsi, ok := indicators[rsiName]
		if !ok {
			return types.SignalHold, nil
		}

		if rsi < oversold && position == types.PositionNone {
			return types.SignalBuy, nil
		}

		if rsi > overbought && position == types.PositionLong {
			return types.SignalSell, nil
		}

		return types.SignalHold, nil
	}
}
