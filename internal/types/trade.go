package types

import (
	"time"

	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Trade is one completed or open position. A trade is closed iff both exit
// fields are set; derived values are None while the trade is open.
type Trade struct {
	ID         string          `yaml:"id"`
	Symbol     string          `yaml:"symbol"`
	Side       Side            `yaml:"side"`
	EntryTime  time.Time       `yaml:"entry_time"`
	EntryPrice decimal.Decimal `yaml:"entry_price"`
	Shares     decimal.Decimal `yaml:"shares"`
	// Commission accumulates across entry and exit, each charged on the
	// notional at transaction time.
	Commission decimal.Decimal                   `yaml:"commission"`
	ExitTime   optional.Option[time.Time]        `yaml:"exit_time,omitempty"`
	ExitPrice  optional.Option[decimal.Decimal]  `yaml:"exit_price,omitempty"`
}

// IsClosed reports whether both exit fields are set.
func (t *Trade) IsClosed() bool {
	return t.ExitTime.IsSome() && t.ExitPrice.IsSome()
}

// Profit returns the realized profit after commission, or None while open.
func (t *Trade) Profit() optional.Option[decimal.Decimal] {
	if !t.IsClosed() {
		return optional.None[decimal.Decimal]()
	}

	exit := t.ExitPrice.Unwrap()

	var gross decimal.Decimal
	if t.Side == SideShort {
		gross = t.EntryPrice.Sub(exit).Mul(t.Shares)
	} else {
		gross = exit.Sub(t.EntryPrice).Mul(t.Shares)
	}

	return optional.Some(gross.Sub(t.Commission))
}

// ProfitPct returns the realized profit as a percentage of the entry notional,
// or None while open.
func (t *Trade) ProfitPct() optional.Option[decimal.Decimal] {
	profit := t.Profit()
	if profit.IsNone() {
		return optional.None[decimal.Decimal]()
	}

	notional := t.EntryPrice.Mul(t.Shares)
	if notional.IsZero() {
		return optional.Some(decimal.Zero)
	}

	return optional.Some(profit.Unwrap().Div(notional).Mul(hundred))
}

// HoldingDays returns the trade duration in days, or None while open.
func (t *Trade) HoldingDays() optional.Option[float64] {
	if !t.IsClosed() {
		return optional.None[float64]()
	}

	return optional.Some(t.ExitTime.Unwrap().Sub(t.EntryTime).Hours() / 24)
}
