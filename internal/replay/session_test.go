package replay

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/moznion/go-optional"
	"github.com/stretchr/testify/suite"

	"github.com/saidsurucu/borsago/internal/logger"
	"github.com/saidsurucu/borsago/internal/types"
	"github.com/saidsurucu/borsago/pkg/errors"
)

type SessionTestSuite struct {
	suite.Suite
}

func TestSessionSuite(t *testing.T) {
	suite.Run(t, new(SessionTestSuite))
}

func (s *SessionTestSuite) bars(n int) []types.Bar {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]types.Bar, n)

	for i := range bars {
		price := 100 + float64(i)
		bars[i] = types.Bar{
			Time:   start.AddDate(0, 0, i),
			Open:   price,
			High:   price + 1,
			Low:    price - 1,
			Close:  price,
			Volume: 1000,
		}
	}

	return bars
}

func (s *SessionTestSuite) collect(seq func(yield func(Candle) bool)) []Candle {
	var out []Candle

	seq(func(c Candle) bool {
		out = append(out, c)

		return true
	})

	return out
}

func (s *SessionTestSuite) TestReplayYieldsAllBarsInOrder() {
	session := NewSession(s.bars(5))
	candles := s.collect(session.Replay())

	s.Require().Len(candles, 5)

	for i, c := range candles {
		s.Equal(i, c.Index)
		s.Equal(5, c.Total)
		s.InDelta(float64(i+1)/5, c.Progress, 1e-9)

		if i > 0 {
			s.True(c.Time.After(candles[i-1].Time))
		}
	}

	s.Equal(StateFinished, session.State())
}

func (s *SessionTestSuite) TestReplayRestartsFromZeroAfterPartialConsumption() {
	session := NewSession(s.bars(10))

	consumed := 0
	session.Replay()(func(c Candle) bool {
		consumed++

		return consumed < 3
	})

	s.Equal(3, consumed)
	s.Equal(StateIdle, session.State())

	candles := s.collect(session.Replay())
	s.Require().Len(candles, 10)
	s.Equal(0, candles[0].Index)
	s.Equal(9, candles[9].Index)
}

func (s *SessionTestSuite) TestReplayTwiceYieldsIdenticalSequences() {
	session := NewSession(s.bars(6))

	first := s.collect(session.Replay())
	second := s.collect(session.Replay())

	s.Require().Equal(len(first), len(second))

	for i := range first {
		s.Equal(first[i], second[i])
	}
}

func (s *SessionTestSuite) TestEmptySessionYieldsNothing() {
	session := NewSession(nil)
	candles := s.collect(session.Replay())

	s.Empty(candles)
	s.Equal(0, session.Len())
}

func (s *SessionTestSuite) TestReplayFilteredInclusiveWindow() {
	bars := s.bars(10)
	session := NewSession(bars)

	candles := s.collect(session.ReplayFiltered(bars[2].Time, bars[5].Time))

	s.Require().Len(candles, 4)
	s.Equal(bars[2].Time, candles[0].Time)
	s.Equal(bars[5].Time, candles[3].Time)

	// Progress is relative to the filtered subset.
	s.Equal(0, candles[0].Index)
	s.Equal(4, candles[0].Total)
	s.InDelta(1.0, candles[3].Progress, 1e-9)
}

func (s *SessionTestSuite) TestReplayFilteredEmptyWindow() {
	session := NewSession(s.bars(10))

	candles := s.collect(session.ReplayFiltered(
		time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2030, 12, 31, 0, 0, 0, 0, time.UTC),
	))

	s.Empty(candles)
}

func (s *SessionTestSuite) TestRealtimePacingSleepsGapOverSpeed() {
	session := NewSession(s.bars(3), WithRealtime(true), WithSpeed(24))

	var slept []time.Duration
	session.sleepFn = func(d time.Duration) {
		slept = append(slept, d)
	}

	candles := s.collect(session.Replay())
	s.Require().Len(candles, 3)

	// Daily gaps divided by 24x speed: one hour each, no sleep before the
	// first bar.
	s.Require().Len(slept, 2)
	s.Equal(time.Hour, slept[0])
	s.Equal(time.Hour, slept[1])
}

func (s *SessionTestSuite) TestNoPacingWhenRealtimeDisabled() {
	session := NewSession(s.bars(5), WithSpeed(1))

	session.sleepFn = func(time.Duration) {
		s.Fail("sleep must not be called without realtime pacing")
	}

	s.Len(s.collect(session.Replay()), 5)
}

func (s *SessionTestSuite) TestNoPacingWithNonPositiveSpeed() {
	session := NewSession(s.bars(5), WithRealtime(true), WithSpeed(0))

	session.sleepFn = func(time.Duration) {
		s.Fail("sleep must not be called with zero speed")
	}

	s.Len(s.collect(session.Replay()), 5)
}

func (s *SessionTestSuite) TestCallbacksSeeEveryCandle() {
	session := NewSession(s.bars(4))

	var seen []int
	session.OnCandle(func(c Candle) error {
		seen = append(seen, c.Index)

		return nil
	})

	s.collect(session.Replay())
	s.Equal([]int{0, 1, 2, 3}, seen)
}

func (s *SessionTestSuite) TestCallbackErrorIsSwallowed() {
	session := NewSession(s.bars(4), WithLogger(logger.NewNopLogger()))

	calls := 0
	session.OnCandle(func(Candle) error {
		calls++

		return fmt.Errorf("observer failure")
	})

	candles := s.collect(session.Replay())
	s.Len(candles, 4)
	s.Equal(4, calls)
}

func (s *SessionTestSuite) TestCallbackPanicIsSwallowed() {
	session := NewSession(s.bars(4))

	session.OnCandle(func(Candle) error {
		panic("observer bug")
	})

	survivor := 0
	session.OnCandle(func(Candle) error {
		survivor++

		return nil
	})

	candles := s.collect(session.Replay())
	s.Len(candles, 4)
	s.Equal(4, survivor)
}

func (s *SessionTestSuite) TestResetReturnsToIdle() {
	session := NewSession(s.bars(3))

	s.collect(session.Replay())
	s.Equal(StateFinished, session.State())

	session.Reset()
	s.Equal(StateIdle, session.State())
}

func (s *SessionTestSuite) TestNewSessionFromHistory() {
	provider := &fixedHistory{bars: s.bars(7)}

	session, err := NewSessionFromHistory(context.Background(), provider,
		"THYAO", types.Period1Y, types.Interval1d)
	s.Require().NoError(err)
	s.Equal(7, session.Len())
}

func (s *SessionTestSuite) TestNewSessionFromHistoryPropagatesError() {
	provider := &fixedHistory{err: errors.New(errors.ErrCodeNoDataFound, "no data")}

	_, err := NewSessionFromHistory(context.Background(), provider,
		"GHOST", types.Period1Y, types.Interval1d)
	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodeNoDataFound))
}

type fixedHistory struct {
	bars []types.Bar
	err  error
}

func (f *fixedHistory) GetHistory(
	_ context.Context,
	_ string,
	_ types.Period,
	_ types.Interval,
	_, _ optional.Option[time.Time],
) ([]types.Bar, error) {
	if f.err != nil {
		return nil, f.err
	}

	return f.bars, nil
}
