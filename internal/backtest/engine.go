package backtest

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/saidsurucu/borsago/internal/indicator"
	"github.com/saidsurucu/borsago/internal/logger"
	"github.com/saidsurucu/borsago/internal/marketdata"
	"github.com/saidsurucu/borsago/internal/types"
	"github.com/saidsurucu/borsago/pkg/errors"
)

// OnProgressCallback is invoked once per processed bar.
type OnProgressCallback func(current int, total int)

// RunRequest describes one backtest run.
type RunRequest struct {
	Symbol       string
	Period       types.Period
	Interval     types.Interval
	StrategyName string
	Strategy     Strategy
	// Indicators lists registry names to precompute and expose to the
	// strategy. Unrecognized names are skipped, not fatal.
	Indicators []string
	// OnProgress is optional.
	OnProgress OnProgressCallback
}

// Engine drives a single sequential pass over historic bars. It is
// single-threaded and synchronous: there is no concurrency contract beyond
// the vectorized indicator precomputation.
type Engine struct {
	config   Config
	history  marketdata.HistoryProvider
	registry indicator.Registry
	logger   *logger.Logger
}

// NewEngine creates an engine over the given history provider. A nil
// registry gets the built-in default set; a nil logger discards output.
func NewEngine(
	config Config,
	history marketdata.HistoryProvider,
	registry indicator.Registry,
	log *logger.Logger,
) (*Engine, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	if history == nil {
		return nil, errors.New(errors.ErrCodeMissingParameter, "history provider is required")
	}

	if registry == nil {
		registry = indicator.NewDefaultRegistry()
	}

	if log == nil {
		log = logger.NewNopLogger()
	}

	if config.WarmupBars == 0 {
		config.WarmupBars = DefaultWarmupBars
	}

	return &Engine{
		config:   config,
		history:  history,
		registry: registry,
		logger:   log,
	}, nil
}

// Run executes one backtest and returns its immutable result.
//
// Errors that invalidate the whole run (no data, not enough bars) propagate;
// errors local to one bar (strategy failure, undefined indicator value)
// degrade to hold/skip for that bar only and never escape once the pass has
// started.
func (e *Engine) Run(ctx context.Context, req RunRequest) (*types.BacktestResult, error) {
	if req.Strategy == nil {
		return nil, errors.New(errors.ErrCodeStrategyMissing, "strategy is required")
	}

	bars, err := e.history.GetHistory(ctx, req.Symbol, req.Period, req.Interval, e.config.StartTime, e.config.EndTime)
	if err != nil {
		return nil, err
	}

	if len(bars) == 0 {
		return nil, errors.Newf(errors.ErrCodeNoDataFound, "no history for symbol %q", req.Symbol)
	}

	warmup := e.config.WarmupBars
	if len(bars) <= warmup {
		return nil, errors.NewInsufficientDataErrorf(warmup+1, len(bars), req.Symbol,
			"insufficient data for %s: need more than %d bars, got %d", req.Symbol, warmup, len(bars))
	}

	columns := e.precomputeIndicators(bars, req.Indicators)

	ledger := NewLedger(req.Symbol, e.config.InitialCapital, e.config.CommissionRate)
	total := len(bars) - warmup
	equity := make([]types.CurvePoint, 0, total)

	for i := warmup; i < len(bars); i++ {
		bar := bars[i]
		snapshot := indicatorsAt(columns, i)

		signal := e.callStrategy(req.Strategy, bar, ledger.PositionState(), snapshot)

		switch signal {
		case types.SignalBuy:
			if !ledger.HasPosition() {
				ledger.OpenLong(bar.Time, bar.Close)
			}
		case types.SignalSell:
			if ledger.HasPosition() {
				ledger.CloseLong(bar.Time, bar.Close)
			}
		}

		equity = append(equity, types.CurvePoint{
			Time:  bar.Time,
			Value: ledger.Equity(bar.Close),
		})

		if req.OnProgress != nil {
			req.OnProgress(i-warmup+1, total)
		}
	}

	// Every run ends with all trades closed.
	if ledger.HasPosition() {
		last := bars[len(bars)-1]
		ledger.CloseLong(last.Time, last.Close)
	}

	result := &types.BacktestResult{
		ID:             uuid.New().String(),
		Timestamp:      time.Now(),
		Symbol:         req.Symbol,
		Period:         req.Period,
		Interval:       req.Interval,
		StrategyName:   req.StrategyName,
		InitialCapital: e.config.InitialCapital,
		CommissionRate: e.config.CommissionRate,
		Trades:         ledger.Trades(),
		EquityCurve:    equity,
		DrawdownCurve:  drawdownCurve(equity),
		BuyHoldCurve:   buyHoldCurve(bars[warmup:], e.config.InitialCapital),
	}

	e.logger.Debug("Backtest run finished",
		zap.String("symbol", req.Symbol),
		zap.String("strategy", req.StrategyName),
		zap.Int("bars", total),
		zap.Int("trades", len(result.Trades)),
	)

	return result, nil
}

// precomputeIndicators computes every requested indicator over the full bar
// sequence. Unknown names and failing computations are logged and skipped.
func (e *Engine) precomputeIndicators(bars []types.Bar, names []string) map[string][]float64 {
	columns := make(map[string][]float64)

	for _, name := range names {
		ind, err := e.registry.Get(name)
		if err != nil {
			e.logger.Debug("Skipping unknown indicator", zap.String("indicator", name))

			continue
		}

		cols, err := ind.Compute(bars)
		if err != nil {
			e.logger.Warn("Indicator computation failed, skipping",
				zap.String("indicator", name),
				zap.Error(err),
			)

			continue
		}

		for colName, series := range cols {
			columns[colName] = series
		}
	}

	return columns
}

// callStrategy isolates a single strategy invocation: an error or panic
// degrades to hold for this bar and is logged at debug level.
func (e *Engine) callStrategy(
	strategy Strategy,
	bar types.Bar,
	position types.PositionState,
	indicators map[string]float64,
) (signal types.Signal) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Debug("Strategy panicked, treating as hold",
				zap.Time("bar", bar.Time),
				zap.Any("panic", r),
			)

			signal = types.SignalHold
		}
	}()

	signal, err := strategy(bar, position, indicators)
	if err != nil {
		e.logger.Debug("Strategy returned error, treating as hold",
			zap.Time("bar", bar.Time),
			zap.Error(err),
		)

		return types.SignalHold
	}

	return signal
}

// indicatorsAt snapshots the column values defined at index i.
func indicatorsAt(columns map[string][]float64, i int) map[string]float64 {
	snapshot := make(map[string]float64, len(columns))

	for name, series := range columns {
		if i < len(series) && !math.IsNaN(series[i]) {
			snapshot[name] = series[i]
		}
	}

	return snapshot
}

// drawdownCurve derives (equity - running max) / running max per point.
func drawdownCurve(equity []types.CurvePoint) []types.CurvePoint {
	curve := make([]types.CurvePoint, len(equity))
	runningMax := math.Inf(-1)

	for i, point := range equity {
		if point.Value > runningMax {
			runningMax = point.Value
		}

		value := 0.0
		if runningMax != 0 {
			value = (point.Value - runningMax) / runningMax
		}

		curve[i] = types.CurvePoint{Time: point.Time, Value: value}
	}

	return curve
}

// buyHoldCurve scales the close series by capital at the first post-warm-up
// close: the hypothetical all-in buy-and-hold valuation.
func buyHoldCurve(bars []types.Bar, capital float64) []types.CurvePoint {
	curve := make([]types.CurvePoint, len(bars))
	if len(bars) == 0 {
		return curve
	}

	base := bars[0].Close

	for i, bar := range bars {
		value := capital
		if base != 0 {
			value = capital / base * bar.Close
		}

		curve[i] = types.CurvePoint{Time: bar.Time, Value: value}
	}

	return curve
}
