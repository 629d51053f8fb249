// Package replay re-emits historical bars as a restartable, speed-controlled
// sequence, either instantly or paced to simulate real elapsed time. It is a
// consumption mode for strategy-building code outside the backtest engine and
// never touches a ledger.
package replay

import (
	"context"
	"time"

	"github.com/moznion/go-optional"
	"go.uber.org/zap"

	"github.com/saidsurucu/borsago/internal/logger"
	"github.com/saidsurucu/borsago/internal/marketdata"
	"github.com/saidsurucu/borsago/internal/types"
)

// State is the session's lifecycle phase.
type State string

const (
	StateIdle     State = "idle"
	StateRunning  State = "running"
	StateFinished State = "finished"
)

// Candle is one replayed bar plus its progress metadata. Index and Progress
// are relative to the current run, so a filtered replay counts from 0 over
// the filtered subset.
type Candle struct {
	types.Bar

	Index    int
	Total    int
	Progress float64
}

// OnCandleCallback observes each candle immediately before it is yielded. A
// returned error or panic is swallowed so one faulty observer cannot halt the
// replay.
type OnCandleCallback func(candle Candle) error

// Session is a mutable iteration cursor over a fixed bar sequence. The bar
// slice is read-only after construction; the cursor and callback list are
// mutated only by the single consuming iterator, so a session is strictly
// single-consumer. Callers needing parallel replay create separate sessions
// over the same bars.
type Session struct {
	bars      []types.Bar
	speed     float64
	realtime  bool
	callbacks []OnCandleCallback
	state     State
	logger    *logger.Logger

	// sleepFn is swapped out in tests to observe pacing without waiting.
	sleepFn func(time.Duration)
}

// Option configures a Session at construction.
type Option func(*Session)

// WithSpeed sets the pacing divisor: real bar gaps are divided by speed.
// Only meaningful together with WithRealtime; speed <= 0 disables pacing.
func WithSpeed(speed float64) Option {
	return func(s *Session) {
		s.speed = speed
	}
}

// WithRealtime enables pacing: the iterator sleeps the real time gap between
// consecutive bars (divided by speed) before each yield after the first.
func WithRealtime(enabled bool) Option {
	return func(s *Session) {
		s.realtime = enabled
	}
}

// WithLogger sets the logger for swallowed callback errors.
func WithLogger(log *logger.Logger) Option {
	return func(s *Session) {
		s.logger = log
	}
}

// NewSession creates a session over the given bars. Empty bars are allowed;
// replaying an empty session yields nothing.
func NewSession(bars []types.Bar, opts ...Option) *Session {
	s := &Session{
		bars:    bars,
		speed:   1,
		state:   StateIdle,
		logger:  logger.NewNopLogger(),
		sleepFn: time.Sleep,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// NewSessionFromHistory fetches the full history for a symbol and wraps it in
// a session.
func NewSessionFromHistory(
	ctx context.Context,
	provider marketdata.HistoryProvider,
	symbol string,
	period types.Period,
	interval types.Interval,
	opts ...Option,
) (*Session, error) {
	bars, err := provider.GetHistory(ctx, symbol, period, interval,
		optional.None[time.Time](), optional.None[time.Time]())
	if err != nil {
		return nil, err
	}

	return NewSession(bars, opts...), nil
}

// OnCandle registers a callback invoked synchronously with each candle.
func (s *Session) OnCandle(callback OnCandleCallback) {
	s.callbacks = append(s.callbacks, callback)
}

// State returns the current lifecycle phase.
func (s *Session) State() State {
	return s.state
}

// Len returns the number of bars in the session.
func (s *Session) Len() int {
	return len(s.bars)
}

// Reset rewinds the session to idle for reuse. A fresh Replay call restarts
// from the beginning regardless, so Reset only matters to callers inspecting
// State.
func (s *Session) Reset() {
	s.state = StateIdle
}

// Replay returns a one-shot iterator over all bars in ascending timestamp
// order. Each call restarts from index 0; a single iterator instance is not
// rewindable mid-iteration. Stopping early is done by breaking out of the
// range loop.
func (s *Session) Replay() func(yield func(Candle) bool) {
	return s.iterate(s.bars)
}

// ReplayFiltered is Replay restricted to an inclusive time window. Index,
// Total and Progress are relative to the filtered subset.
func (s *Session) ReplayFiltered(start, end time.Time) func(yield func(Candle) bool) {
	filtered := make([]types.Bar, 0, len(s.bars))

	for _, bar := range s.bars {
		if bar.Time.Before(start) || bar.Time.After(end) {
			continue
		}

		filtered = append(filtered, bar)
	}

	return s.iterate(filtered)
}

func (s *Session) iterate(bars []types.Bar) func(yield func(Candle) bool) {
	return func(yield func(Candle) bool) {
		s.state = StateRunning
		total := len(bars)

		for i, bar := range bars {
			if i > 0 {
				s.pace(bars[i-1].Time, bar.Time)
			}

			candle := Candle{
				Bar:      bar,
				Index:    i,
				Total:    total,
				Progress: float64(i+1) / float64(total),
			}

			s.notify(candle)

			if !yield(candle) {
				s.state = StateIdle

				return
			}
		}

		s.state = StateFinished
	}
}

// pace sleeps the real gap between two bars divided by the speed multiplier.
// Disabled pacing or a non-positive speed fires as fast as possible.
func (s *Session) pace(prev, current time.Time) {
	if !s.realtime || s.speed <= 0 {
		return
	}

	gap := current.Sub(prev)
	if gap <= 0 {
		return
	}

	s.sleepFn(time.Duration(float64(gap) / s.speed))
}

// notify runs every callback, swallowing errors and panics.
func (s *Session) notify(candle Candle) {
	for _, callback := range s.callbacks {
		s.invoke(callback, candle)
	}
}

func (s *Session) invoke(callback OnCandleCallback, candle Candle) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Debug("Replay callback panicked, continuing",
				zap.Time("bar", candle.Time),
				zap.Any("panic", r),
			)
		}
	}()

	if err := callback(candle); err != nil {
		s.logger.Debug("Replay callback failed, continuing",
			zap.Time("bar", candle.Time),
			zap.Error(err),
		)
	}
}
