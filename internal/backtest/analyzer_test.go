package backtest

import (
	"fmt"
	"math"
	"os"
	"testing"
	"time"

	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"gopkg.in/yaml.v3"

	"github.com/saidsurucu/borsago/internal/logger"
	"github.com/saidsurucu/borsago/internal/marketdata"
	"github.com/saidsurucu/borsago/internal/types"
)

// failingRiskFree always errors, forcing the fallback rate.
type failingRiskFree struct{}

func (failingRiskFree) RiskFreeRate() (float64, error) {
	return 0, fmt.Errorf("bond yield source unavailable")
}

type AnalyzerTestSuite struct {
	suite.Suite
}

func TestAnalyzerSuite(t *testing.T) {
	suite.Run(t, new(AnalyzerTestSuite))
}

// resultWithEquity builds a daily result over the given equity values, with
// matching drawdown and buy-and-hold curves derived the same way the engine
// derives them.
func (s *AnalyzerTestSuite) resultWithEquity(capital float64, equity []float64) *types.BacktestResult {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	curve := make([]types.CurvePoint, len(equity))
	for i, v := range equity {
		curve[i] = types.CurvePoint{Time: start.AddDate(0, 0, i), Value: v}
	}

	return &types.BacktestResult{
		ID:             "test",
		Symbol:         "THYAO",
		StrategyName:   "test",
		InitialCapital: capital,
		EquityCurve:    curve,
		DrawdownCurve:  drawdownCurve(curve),
		BuyHoldCurve:   curve,
	}
}

func (s *AnalyzerTestSuite) closedTrade(profit float64) types.Trade {
	entry := decimal.NewFromInt(100)
	shares := decimal.NewFromInt(10)
	exit := entry.Add(decimal.NewFromFloat(profit).Div(shares))

	return types.Trade{
		ID:         "t",
		Symbol:     "THYAO",
		Side:       types.SideLong,
		EntryTime:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EntryPrice: entry,
		Shares:     shares,
		ExitTime:   optional.Some(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)),
		ExitPrice:  optional.Some(exit),
	}
}

func (s *AnalyzerTestSuite) analyzer(result *types.BacktestResult) *Analyzer {
	return NewAnalyzer(result, marketdata.StaticRiskFreeRate(0.30), logger.NewNopLogger())
}

func (s *AnalyzerTestSuite) TestNetProfit() {
	result := s.resultWithEquity(10000, []float64{10000, 10500, 11000})
	analyzer := s.analyzer(result)

	s.InDelta(1000.0, analyzer.NetProfit(), 1e-9)
	s.InDelta(10.0, analyzer.NetProfitPct(), 1e-9)
}

func (s *AnalyzerTestSuite) TestNetProfitPctZeroCapital() {
	result := s.resultWithEquity(0, []float64{0, 100})

	s.InDelta(0.0, s.analyzer(result).NetProfitPct(), 1e-9)
}

func (s *AnalyzerTestSuite) TestWinRate() {
	result := s.resultWithEquity(10000, []float64{10000, 10000})
	result.Trades = []types.Trade{
		s.closedTrade(100),
		s.closedTrade(-50),
		s.closedTrade(200),
		s.closedTrade(-10),
	}

	analyzer := s.analyzer(result)
	s.InDelta(50.0, analyzer.WinRate(), 1e-9)
	s.GreaterOrEqual(analyzer.WinRate(), 0.0)
	s.LessOrEqual(analyzer.WinRate(), 100.0)
}

func (s *AnalyzerTestSuite) TestWinRateNoTrades() {
	result := s.resultWithEquity(10000, []float64{10000})

	s.InDelta(0.0, s.analyzer(result).WinRate(), 1e-9)
}

func (s *AnalyzerTestSuite) TestProfitFactor() {
	result := s.resultWithEquity(10000, []float64{10000, 10000})
	result.Trades = []types.Trade{
		s.closedTrade(300),
		s.closedTrade(-100),
	}

	s.InDelta(3.0, s.analyzer(result).ProfitFactor(), 1e-9)
}

func (s *AnalyzerTestSuite) TestProfitFactorNoLosses() {
	result := s.resultWithEquity(10000, []float64{10000, 10000})
	result.Trades = []types.Trade{s.closedTrade(300)}

	s.True(math.IsInf(s.analyzer(result).ProfitFactor(), 1))
}

func (s *AnalyzerTestSuite) TestProfitFactorNoTrades() {
	result := s.resultWithEquity(10000, []float64{10000, 10000})

	s.InDelta(0.0, s.analyzer(result).ProfitFactor(), 1e-9)
}

func (s *AnalyzerTestSuite) TestSharpeUndefinedOnSinglePoint() {
	result := s.resultWithEquity(10000, []float64{10000})

	s.True(math.IsNaN(s.analyzer(result).SharpeRatio()))
}

func (s *AnalyzerTestSuite) TestSharpeUndefinedOnZeroVariance() {
	result := s.resultWithEquity(10000, []float64{10000, 10000, 10000, 10000})

	s.True(math.IsNaN(s.analyzer(result).SharpeRatio()))
}

func (s *AnalyzerTestSuite) TestSharpeOnVaryingReturns() {
	result := s.resultWithEquity(10000, []float64{10000, 10100, 10050, 10200, 10300})

	sharpe := s.analyzer(result).SharpeRatio()
	s.False(math.IsNaN(sharpe))
	s.False(math.IsInf(sharpe, 0))
}

func (s *AnalyzerTestSuite) TestSharpeFallbackRateOnProviderFailure() {
	result := s.resultWithEquity(10000, []float64{10000, 10100, 10050, 10200, 10300})

	withFallback := NewAnalyzer(result, failingRiskFree{}, logger.NewNopLogger())
	withStatic := NewAnalyzer(result, marketdata.StaticRiskFreeRate(fallbackRiskFreeRate), logger.NewNopLogger())

	s.InDelta(withStatic.SharpeRatio(), withFallback.SharpeRatio(), 1e-12)
}

func (s *AnalyzerTestSuite) TestSortinoInfiniteWithoutDownside() {
	// Monotonically rising equity well above the risk-free drift.
	result := s.resultWithEquity(10000, []float64{10000, 10500, 11000, 11600})

	s.True(math.IsInf(s.analyzer(result).SortinoRatio(), 1))
}

func (s *AnalyzerTestSuite) TestSortinoDefinedWithDownside() {
	result := s.resultWithEquity(10000, []float64{10000, 10500, 10200, 10800})

	sortino := s.analyzer(result).SortinoRatio()
	s.False(math.IsNaN(sortino))
	s.False(math.IsInf(sortino, 0))
}

func (s *AnalyzerTestSuite) TestMaxDrawdown() {
	// Peak 12000, trough 9000: drawdown -25%.
	result := s.resultWithEquity(10000, []float64{10000, 12000, 9000, 11000})

	s.InDelta(-25.0, s.analyzer(result).MaxDrawdown(), 1e-9)
}

func (s *AnalyzerTestSuite) TestMaxDrawdownEmptyCurve() {
	result := s.resultWithEquity(10000, nil)

	s.InDelta(0.0, s.analyzer(result).MaxDrawdown(), 1e-9)
}

func (s *AnalyzerTestSuite) TestMaxDrawdownDuration() {
	// Below the running peak for bars 2-4, recovering at bar 5.
	result := s.resultWithEquity(10000, []float64{10000, 12000, 11000, 10500, 11500, 13000})

	s.Equal(3, s.analyzer(result).MaxDrawdownDuration())
}

func (s *AnalyzerTestSuite) TestCalmarInfiniteWithoutDrawdown() {
	result := s.resultWithEquity(10000, []float64{10000, 10500, 11000})

	s.True(math.IsInf(s.analyzer(result).CalmarRatio(), 1))
}

func (s *AnalyzerTestSuite) TestCalmarZeroWithoutProfitOrDrawdown() {
	result := s.resultWithEquity(10000, []float64{10000, 10000})

	s.InDelta(0.0, s.analyzer(result).CalmarRatio(), 1e-9)
}

func (s *AnalyzerTestSuite) TestVsBuyHold() {
	result := s.resultWithEquity(10000, []float64{10000, 11000})
	// Buy-and-hold doubled while the strategy gained 10%.
	result.BuyHoldCurve = []types.CurvePoint{
		{Time: result.EquityCurve[0].Time, Value: 10000},
		{Time: result.EquityCurve[1].Time, Value: 20000},
	}

	analyzer := s.analyzer(result)
	s.InDelta(100.0, analyzer.BuyHoldReturnPct(), 1e-9)
	s.InDelta(-90.0, analyzer.VsBuyHold(), 1e-9)
}

func (s *AnalyzerTestSuite) TestConsecutiveRuns() {
	result := s.resultWithEquity(10000, []float64{10000, 10000})
	result.Trades = []types.Trade{
		s.closedTrade(100),
		s.closedTrade(50),
		s.closedTrade(-10),
		s.closedTrade(20),
		s.closedTrade(30),
		s.closedTrade(40),
		s.closedTrade(-5),
		s.closedTrade(-5),
	}

	analyzer := s.analyzer(result)
	s.Equal(3, analyzer.MaxConsecutiveWins())
	s.Equal(2, analyzer.MaxConsecutiveLosses())
}

func (s *AnalyzerTestSuite) TestSummaryUndefinedRatiosSerializeAsNull() {
	result := s.resultWithEquity(10000, []float64{10000})
	summary := s.analyzer(result).Summarize()

	s.Nil(summary.SharpeRatio)
	s.Nil(summary.SortinoRatio)

	data, err := yaml.Marshal(summary)
	s.Require().NoError(err)
	s.Contains(string(data), "sharpe_ratio: null")
	s.Contains(string(data), "sortino_ratio: null")
}

func (s *AnalyzerTestSuite) TestSummaryInfinityDistinctFromZero() {
	result := s.resultWithEquity(10000, []float64{10000, 10000})
	result.Trades = []types.Trade{s.closedTrade(300)}

	summary := s.analyzer(result).Summarize()
	s.Require().NotNil(summary.ProfitFactor)
	s.True(math.IsInf(*summary.ProfitFactor, 1))

	data, err := yaml.Marshal(summary)
	s.Require().NoError(err)
	s.Contains(string(data), "profit_factor: .inf")
}

func (s *AnalyzerTestSuite) TestWriteSummary() {
	result := s.resultWithEquity(10000, []float64{10000, 10500, 11000})
	summary := s.analyzer(result).Summarize()

	path := s.T().TempDir() + "/summary.yaml"
	s.Require().NoError(WriteSummary(path, summary))

	var loaded map[string]any
	data, err := os.ReadFile(path)
	s.Require().NoError(err)
	s.Require().NoError(yaml.Unmarshal(data, &loaded))

	s.Equal("THYAO", loaded["symbol"])
	s.InDelta(10.0, loaded["net_profit_pct"].(float64), 1e-9)
}

func (s *AnalyzerTestSuite) TestFormatSummaryHandlesUndefined() {
	result := s.resultWithEquity(10000, []float64{10000})
	out := FormatSummary(s.analyzer(result).Summarize())

	s.Contains(out, "Sharpe ratio:          n/a")
}
