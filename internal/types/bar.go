package types

import (
	"time"

	"github.com/moznion/go-optional"
)

// Bar is one OHLCV sample. Bars are immutable once fetched. A bar sequence is
// ordered ascending by timestamp; no fixed interval spacing is assumed.
type Bar struct {
	Time   time.Time `csv:"time" yaml:"time"`
	Open   float64   `csv:"open" yaml:"open"`
	High   float64   `csv:"high" yaml:"high"`
	Low    float64   `csv:"low" yaml:"low"`
	Close  float64   `csv:"close" yaml:"close"`
	Volume float64   `csv:"volume" yaml:"volume"`
}

// Period is the lookback range of a history request.
type Period string

const (
	Period1D  Period = "1d"
	Period5D  Period = "5d"
	Period1Mo Period = "1mo"
	Period3Mo Period = "3mo"
	Period6Mo Period = "6mo"
	Period1Y  Period = "1y"
	Period2Y  Period = "2y"
	Period5Y  Period = "5y"
	Period10Y Period = "10y"
	PeriodYTD Period = "ytd"
	PeriodMax Period = "max"
)

// AllPeriods lists every supported period value.
var AllPeriods = []Period{
	Period1D, Period5D, Period1Mo, Period3Mo, Period6Mo,
	Period1Y, Period2Y, Period5Y, Period10Y, PeriodYTD, PeriodMax,
}

// IsValid reports whether p is a supported period.
func (p Period) IsValid() bool {
	for _, v := range AllPeriods {
		if p == v {
			return true
		}
	}

	return false
}

// Start returns the inclusive start of the lookback window ending at ref.
// PeriodMax has no start and returns None.
func (p Period) Start(ref time.Time) optional.Option[time.Time] {
	switch p {
	case Period1D:
		return optional.Some(ref.AddDate(0, 0, -1))
	case Period5D:
		return optional.Some(ref.AddDate(0, 0, -5))
	case Period1Mo:
		return optional.Some(ref.AddDate(0, -1, 0))
	case Period3Mo:
		return optional.Some(ref.AddDate(0, -3, 0))
	case Period6Mo:
		return optional.Some(ref.AddDate(0, -6, 0))
	case Period1Y:
		return optional.Some(ref.AddDate(-1, 0, 0))
	case Period2Y:
		return optional.Some(ref.AddDate(-2, 0, 0))
	case Period5Y:
		return optional.Some(ref.AddDate(-5, 0, 0))
	case Period10Y:
		return optional.Some(ref.AddDate(-10, 0, 0))
	case PeriodYTD:
		return optional.Some(time.Date(ref.Year(), time.January, 1, 0, 0, 0, 0, ref.Location()))
	case PeriodMax:
		return optional.None[time.Time]()
	}

	return optional.None[time.Time]()
}

// Interval is the spacing of bars in a history request.
type Interval string

const (
	Interval1m  Interval = "1m"
	Interval5m  Interval = "5m"
	Interval15m Interval = "15m"
	Interval30m Interval = "30m"
	Interval1h  Interval = "1h"
	Interval4h  Interval = "4h"
	Interval1d  Interval = "1d"
	Interval1wk Interval = "1wk"
	Interval1mo Interval = "1mo"
)

// AllIntervals lists every supported interval value.
var AllIntervals = []Interval{
	Interval1m, Interval5m, Interval15m, Interval30m,
	Interval1h, Interval4h, Interval1d, Interval1wk, Interval1mo,
}

// IsValid reports whether i is a supported interval.
func (i Interval) IsValid() bool {
	for _, v := range AllIntervals {
		if i == v {
			return true
		}
	}

	return false
}
