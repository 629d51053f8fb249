// Package marketdata defines the narrow read interfaces the backtest and
// replay cores consume, plus file-backed (DuckDB) and exchange-backed
// (Binance) implementations.
package marketdata

import (
	"context"
	"time"

	"github.com/moznion/go-optional"

	"github.com/saidsurucu/borsago/internal/types"
)

// HistoryProvider supplies OHLCV history for an instrument. Implementations
// must return bars strictly ascending by timestamp and must surface a typed
// no-data error (errors.ErrCodeNoDataFound) instead of a silently empty slice
// when the source has nothing for the request.
type HistoryProvider interface {
	GetHistory(
		ctx context.Context,
		symbol string,
		period types.Period,
		interval types.Interval,
		start optional.Option[time.Time],
		end optional.Option[time.Time],
	) ([]types.Bar, error)
}

// RiskFreeRateProvider supplies the annualized risk-free rate used by the
// Sharpe and Sortino ratios (e.g. 0.30 for 30%/yr). The analyzer tolerates
// this collaborator failing and substitutes a fixed fallback.
type RiskFreeRateProvider interface {
	RiskFreeRate() (float64, error)
}

// StaticRiskFreeRate is a RiskFreeRateProvider returning a fixed rate.
type StaticRiskFreeRate float64

// RiskFreeRate implements RiskFreeRateProvider.
func (s StaticRiskFreeRate) RiskFreeRate() (float64, error) {
	return float64(s), nil
}
