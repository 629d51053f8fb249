package backtest

import (
	"time"

	"github.com/google/uuid"
	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"

	"github.com/saidsurucu/borsago/internal/types"
)

// Ledger tracks a single open position at a time, the realized trades and the
// cash balance of one backtest run.
//
// Sizing is all-in by design: every entry commits 100% of available cash to a
// single long position, matching the engine's contract. Fractional sizing is
// a deliberate non-feature of the current scope.
type Ledger struct {
	symbol         string
	commissionRate decimal.Decimal
	cash           decimal.Decimal
	position       optional.Option[types.Trade]
	trades         []types.Trade
}

// NewLedger creates a ledger with the given starting cash and fractional
// commission rate.
func NewLedger(symbol string, initialCapital, commissionRate float64) *Ledger {
	return &Ledger{
		symbol:         symbol,
		commissionRate: decimal.NewFromFloat(commissionRate),
		cash:           decimal.NewFromFloat(initialCapital),
		position:       optional.None[types.Trade](),
		trades:         nil,
	}
}

// PositionState returns the state exposed to the strategy callback.
func (l *Ledger) PositionState() types.PositionState {
	if l.position.IsSome() {
		return types.PositionLong
	}

	return types.PositionNone
}

// HasPosition reports whether a position is currently open.
func (l *Ledger) HasPosition() bool {
	return l.position.IsSome()
}

// Cash returns the current cash balance. While a position is open the cash is
// zero: the full balance is committed to the position.
func (l *Ledger) Cash() decimal.Decimal {
	return l.cash
}

// Trades returns the realized trades in entry order.
func (l *Ledger) Trades() []types.Trade {
	return l.trades
}

// OpenLong opens a long position at the given price using all available cash
// minus the entry commission. A no-op when a position is already open or the
// price is not positive.
func (l *Ledger) OpenLong(at time.Time, price float64) {
	if l.position.IsSome() || price <= 0 || l.cash.IsZero() {
		return
	}

	priceDec := decimal.NewFromFloat(price)
	entryCommission := l.cash.Mul(l.commissionRate)
	shares := l.cash.Sub(entryCommission).Div(priceDec)

	l.position = optional.Some(types.Trade{
		ID:         uuid.New().String(),
		Symbol:     l.symbol,
		Side:       types.SideLong,
		EntryTime:  at,
		EntryPrice: priceDec,
		Shares:     shares,
		Commission: entryCommission,
		ExitTime:   optional.None[time.Time](),
		ExitPrice:  optional.None[decimal.Decimal](),
	})
	l.cash = decimal.Zero
}

// CloseLong closes the open position at the given price, charging the exit
// commission on the exit notional and realizing the proceeds into cash. A
// no-op when no position is open.
func (l *Ledger) CloseLong(at time.Time, price float64) {
	if l.position.IsNone() {
		return
	}

	trade := l.position.Unwrap()
	priceDec := decimal.NewFromFloat(price)
	notional := trade.Shares.Mul(priceDec)
	exitCommission := notional.Mul(l.commissionRate)

	trade.ExitTime = optional.Some(at)
	trade.ExitPrice = optional.Some(priceDec)
	trade.Commission = trade.Commission.Add(exitCommission)

	l.cash = notional.Sub(exitCommission)
	l.trades = append(l.trades, trade)
	l.position = optional.None[types.Trade]()
}

// Equity returns the mark-to-market portfolio value at the given close price:
// shares times close while in position, cash otherwise.
func (l *Ledger) Equity(closePrice float64) float64 {
	if l.position.IsSome() {
		value, _ := l.position.Unwrap().Shares.Mul(decimal.NewFromFloat(closePrice)).Float64()

		return value
	}

	value, _ := l.cash.Float64()

	return value
}
