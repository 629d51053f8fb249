package types

import "time"

// CurvePoint is one sample of a time-indexed series.
type CurvePoint struct {
	Time  time.Time `yaml:"time"`
	Value float64   `yaml:"value"`
}

// BacktestResult is the immutable summary of one full backtest run. It is
// produced once by the engine and read-only afterward; all analytics are
// computed on demand from the three curves plus the trade list, so it is safe
// to hand to multiple readers concurrently.
//
// The three curves are parallel: same length, same timestamp index, covering
// post-warm-up bars only.
type BacktestResult struct {
	// ID is the unique identifier for this backtest run.
	ID string `yaml:"id"`
	// Timestamp is when this backtest run was executed.
	Timestamp time.Time `yaml:"timestamp"`
	// Symbol of the instrument.
	Symbol string `yaml:"symbol"`
	// Period of the history request.
	Period Period `yaml:"period"`
	// Interval of the history request.
	Interval Interval `yaml:"interval"`
	// StrategyName is the human-readable name of the strategy.
	StrategyName string `yaml:"strategy_name"`
	// InitialCapital is the starting cash of the run.
	InitialCapital float64 `yaml:"initial_capital"`
	// CommissionRate is the fractional rate charged on entry and exit notional.
	CommissionRate float64 `yaml:"commission_rate"`
	// Trades is the ordered list of trades; the last trade is always closed.
	Trades []Trade `yaml:"-"`
	// EquityCurve is the mark-to-market portfolio value per processed bar.
	EquityCurve []CurvePoint `yaml:"-"`
	// DrawdownCurve is (equity - running max) / running max, always <= 0.
	DrawdownCurve []CurvePoint `yaml:"-"`
	// BuyHoldCurve is the hypothetical all-in buy-and-hold valuation over the
	// same bar range.
	BuyHoldCurve []CurvePoint `yaml:"-"`
}

// FinalEquity returns the last equity value, or the initial capital when the
// curve is empty.
func (r *BacktestResult) FinalEquity() float64 {
	if len(r.EquityCurve) == 0 {
		return r.InitialCapital
	}

	return r.EquityCurve[len(r.EquityCurve)-1].Value
}

// ClosedTrades returns only the closed trades. After a normal run every trade
// is closed; the filter guards against callers inspecting partial state.
func (r *BacktestResult) ClosedTrades() []Trade {
	closed := make([]Trade, 0, len(r.Trades))

	for _, t := range r.Trades {
		if t.IsClosed() {
			closed = append(closed, t)
		}
	}

	return closed
}
