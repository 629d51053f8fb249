package backtest

import (
	"fmt"
	"math"
	"os"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/saidsurucu/borsago/internal/logger"
	"github.com/saidsurucu/borsago/internal/marketdata"
	"github.com/saidsurucu/borsago/internal/types"
)

const (
	// fallbackRiskFreeRate is the annualized rate substituted when no
	// risk-free-rate source is available or the lookup fails.
	fallbackRiskFreeRate = 0.30

	tradingDaysPerYear = 252
)

// Analyzer derives performance metrics from a finished run. All methods are
// pure reads over the result; none of them mutate state or return errors, so
// an undefined metric comes back as NaN or +-Inf, never as a failure.
type Analyzer struct {
	result   *types.BacktestResult
	riskFree marketdata.RiskFreeRateProvider
	logger   *logger.Logger
}

// NewAnalyzer creates an analyzer over the given result. riskFree may be nil;
// the fallback annual rate is used in that case.
func NewAnalyzer(result *types.BacktestResult, riskFree marketdata.RiskFreeRateProvider, log *logger.Logger) *Analyzer {
	if log == nil {
		log = logger.NewNopLogger()
	}

	return &Analyzer{
		result:   result,
		riskFree: riskFree,
		logger:   log,
	}
}

// NetProfit returns final equity minus initial capital.
func (a *Analyzer) NetProfit() float64 {
	return a.result.FinalEquity() - a.result.InitialCapital
}

// NetProfitPct returns the net profit as a percentage of initial capital.
func (a *Analyzer) NetProfitPct() float64 {
	if a.result.InitialCapital == 0 {
		return 0
	}

	return a.NetProfit() / a.result.InitialCapital * 100
}

// WinRate returns the percentage of closed trades with positive profit.
// Always in [0, 100]; zero trades yields 0.
func (a *Analyzer) WinRate() float64 {
	closed := a.result.ClosedTrades()
	if len(closed) == 0 {
		return 0
	}

	wins := 0

	for i := range closed {
		if closed[i].Profit().Unwrap().IsPositive() {
			wins++
		}
	}

	return float64(wins) / float64(len(closed)) * 100
}

// ProfitFactor returns gross profit over absolute gross loss. With zero
// losses it is +Inf when there is any profit and 0 otherwise.
func (a *Analyzer) ProfitFactor() float64 {
	grossProfit := 0.0
	grossLoss := 0.0

	for _, t := range a.result.ClosedTrades() {
		profit, _ := t.Profit().Unwrap().Float64()
		if profit > 0 {
			grossProfit += profit
		} else {
			grossLoss += profit
		}
	}

	if grossLoss == 0 {
		if grossProfit > 0 {
			return math.Inf(1)
		}

		return 0
	}

	return grossProfit / math.Abs(grossLoss)
}

// SharpeRatio returns the annualized Sharpe ratio over daily equity returns.
// Fewer than two equity points or zero return variance yields NaN.
func (a *Analyzer) SharpeRatio() float64 {
	excess := a.excessReturns()
	if len(excess) < 1 {
		return math.NaN()
	}

	mean := meanOf(excess)

	std := sampleStd(excess, mean)
	if std == 0 || math.IsNaN(std) {
		return math.NaN()
	}

	return math.Sqrt(tradingDaysPerYear) * mean / std
}

// SortinoRatio is the Sharpe numerator over the deviation of negative excess
// returns only. With no negative returns it is +Inf when the mean excess is
// positive and NaN otherwise.
func (a *Analyzer) SortinoRatio() float64 {
	excess := a.excessReturns()
	if len(excess) < 1 {
		return math.NaN()
	}

	mean := meanOf(excess)

	negatives := make([]float64, 0, len(excess))

	for _, r := range excess {
		if r < 0 {
			negatives = append(negatives, r)
		}
	}

	if len(negatives) == 0 {
		if mean > 0 {
			return math.Inf(1)
		}

		return math.NaN()
	}

	sumSq := 0.0
	for _, r := range negatives {
		sumSq += r * r
	}

	downside := math.Sqrt(sumSq / float64(len(negatives)))
	if downside == 0 {
		return math.NaN()
	}

	return math.Sqrt(tradingDaysPerYear) * mean / downside
}

// MaxDrawdown returns the deepest drawdown as a percentage, always <= 0.
func (a *Analyzer) MaxDrawdown() float64 {
	if len(a.result.DrawdownCurve) == 0 {
		return 0
	}

	minimum := 0.0

	for _, point := range a.result.DrawdownCurve {
		if point.Value < minimum {
			minimum = point.Value
		}
	}

	return minimum * 100
}

// MaxDrawdownDuration returns the longest consecutive run of bars spent
// below the running equity peak.
func (a *Analyzer) MaxDrawdownDuration() int {
	longest := 0
	current := 0

	for _, point := range a.result.DrawdownCurve {
		if point.Value < 0 {
			current++
			if current > longest {
				longest = current
			}
		} else {
			current = 0
		}
	}

	return longest
}

// AnnualizedReturn scales the net profit percentage to a per-year rate using
// the equity curve's calendar span. A span of zero yields the raw percentage.
func (a *Analyzer) AnnualizedReturn() float64 {
	curve := a.result.EquityCurve
	if len(curve) < 2 {
		return a.NetProfitPct()
	}

	years := curve[len(curve)-1].Time.Sub(curve[0].Time).Hours() / 24 / 365.25
	if years <= 0 {
		return a.NetProfitPct()
	}

	return a.NetProfitPct() / years
}

// CalmarRatio returns annualized return over absolute max drawdown. With a
// zero drawdown it is +Inf when there is any profit and 0 otherwise.
func (a *Analyzer) CalmarRatio() float64 {
	drawdown := a.MaxDrawdown()
	if drawdown == 0 {
		if a.NetProfit() > 0 {
			return math.Inf(1)
		}

		return 0
	}

	return a.AnnualizedReturn() / math.Abs(drawdown)
}

// BuyHoldReturnPct returns the buy-and-hold return over the same bar range as
// a percentage of initial capital.
func (a *Analyzer) BuyHoldReturnPct() float64 {
	curve := a.result.BuyHoldCurve
	if len(curve) == 0 || a.result.InitialCapital == 0 {
		return 0
	}

	final := curve[len(curve)-1].Value

	return (final - a.result.InitialCapital) / a.result.InitialCapital * 100
}

// VsBuyHold returns the strategy's net profit percentage minus the
// buy-and-hold return percentage.
func (a *Analyzer) VsBuyHold() float64 {
	return a.NetProfitPct() - a.BuyHoldReturnPct()
}

// MaxConsecutiveWins returns the longest run of consecutive winning trades.
func (a *Analyzer) MaxConsecutiveWins() int {
	return a.longestRun(true)
}

// MaxConsecutiveLosses returns the longest run of consecutive trades with
// zero or negative profit.
func (a *Analyzer) MaxConsecutiveLosses() int {
	return a.longestRun(false)
}

func (a *Analyzer) longestRun(winning bool) int {
	longest := 0
	current := 0

	for _, t := range a.result.ClosedTrades() {
		win := t.Profit().Unwrap().IsPositive()
		if win == winning {
			current++
			if current > longest {
				longest = current
			}
		} else {
			current = 0
		}
	}

	return longest
}

// annualRiskFreeRate resolves the annual risk-free rate, substituting the
// fallback when the provider is absent or fails.
func (a *Analyzer) annualRiskFreeRate() float64 {
	if a.riskFree == nil {
		return fallbackRiskFreeRate
	}

	rate, err := a.riskFree.RiskFreeRate()
	if err != nil {
		a.logger.Debug("Risk-free rate lookup failed, using fallback",
			zap.Float64("fallback", fallbackRiskFreeRate),
			zap.Error(err),
		)

		return fallbackRiskFreeRate
	}

	return rate
}

// excessReturns derives daily equity returns minus the daily risk-free rate.
// An empty or single-point curve yields an empty slice.
func (a *Analyzer) excessReturns() []float64 {
	curve := a.result.EquityCurve
	if len(curve) < 2 {
		return nil
	}

	dailyRiskFree := a.annualRiskFreeRate() / tradingDaysPerYear

	excess := make([]float64, 0, len(curve)-1)

	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Value
		if prev == 0 {
			continue
		}

		excess = append(excess, (curve[i].Value-prev)/prev-dailyRiskFree)
	}

	return excess
}

func meanOf(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}

	return sum / float64(len(values))
}

// sampleStd is the n-1 standard deviation; NaN for fewer than two samples.
func sampleStd(values []float64, mean float64) float64 {
	if len(values) < 2 {
		return math.NaN()
	}

	sumSq := 0.0
	for _, v := range values {
		d := v - mean
		sumSq += d * d
	}

	return math.Sqrt(sumSq / float64(len(values)-1))
}

// Summary is the serializable metric set of one run. Ratio fields are
// pointers so an undefined (NaN) metric serializes as null rather than 0.
type Summary struct {
	Symbol              string   `yaml:"symbol"`
	StrategyName        string   `yaml:"strategy_name"`
	InitialCapital      float64  `yaml:"initial_capital"`
	FinalEquity         float64  `yaml:"final_equity"`
	NetProfit           float64  `yaml:"net_profit"`
	NetProfitPct        float64  `yaml:"net_profit_pct"`
	TotalTrades         int      `yaml:"total_trades"`
	WinRate             float64  `yaml:"win_rate"`
	ProfitFactor        *float64 `yaml:"profit_factor"`
	SharpeRatio         *float64 `yaml:"sharpe_ratio"`
	SortinoRatio        *float64 `yaml:"sortino_ratio"`
	MaxDrawdown         float64  `yaml:"max_drawdown"`
	MaxDrawdownDuration int      `yaml:"max_drawdown_duration"`
	AnnualizedReturn    float64  `yaml:"annualized_return"`
	CalmarRatio         *float64 `yaml:"calmar_ratio"`
	BuyHoldReturnPct    float64  `yaml:"buy_hold_return_pct"`
	VsBuyHold           float64  `yaml:"vs_buy_hold"`
	MaxConsecutiveWins  int      `yaml:"max_consecutive_wins"`
	MaxConsecutiveLoss  int      `yaml:"max_consecutive_losses"`
}

// Summarize computes the full metric set in one call.
func (a *Analyzer) Summarize() Summary {
	return Summary{
		Symbol:              a.result.Symbol,
		StrategyName:        a.result.StrategyName,
		InitialCapital:      a.result.InitialCapital,
		FinalEquity:         a.result.FinalEquity(),
		NetProfit:           a.NetProfit(),
		NetProfitPct:        a.NetProfitPct(),
		TotalTrades:         len(a.result.ClosedTrades()),
		WinRate:             a.WinRate(),
		ProfitFactor:        nilIfNaN(a.ProfitFactor()),
		SharpeRatio:         nilIfNaN(a.SharpeRatio()),
		SortinoRatio:        nilIfNaN(a.SortinoRatio()),
		MaxDrawdown:         a.MaxDrawdown(),
		MaxDrawdownDuration: a.MaxDrawdownDuration(),
		AnnualizedReturn:    a.AnnualizedReturn(),
		CalmarRatio:         nilIfNaN(a.CalmarRatio()),
		BuyHoldReturnPct:    a.BuyHoldReturnPct(),
		VsBuyHold:           a.VsBuyHold(),
		MaxConsecutiveWins:  a.MaxConsecutiveWins(),
		MaxConsecutiveLoss:  a.MaxConsecutiveLosses(),
	}
}

// nilIfNaN maps NaN to nil so serialization shows null instead of a number.
// Infinities pass through; YAML renders them as .inf.
func nilIfNaN(v float64) *float64 {
	if math.IsNaN(v) {
		return nil
	}

	return &v
}

// WriteSummary serializes the summary as YAML to the given path.
func WriteSummary(path string, summary Summary) error {
	data, err := yaml.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

// FormatSummary renders the summary as a human-readable block for terminal
// output.
func FormatSummary(summary Summary) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Symbol:                %s\n", summary.Symbol)
	fmt.Fprintf(&b, "Strategy:              %s\n", summary.StrategyName)
	fmt.Fprintf(&b, "Initial capital:       %.2f\n", summary.InitialCapital)
	fmt.Fprintf(&b, "Final equity:          %.2f\n", summary.FinalEquity)
	fmt.Fprintf(&b, "Net profit:            %.2f (%.2f%%)\n", summary.NetProfit, summary.NetProfitPct)
	fmt.Fprintf(&b, "Total trades:          %d\n", summary.TotalTrades)
	fmt.Fprintf(&b, "Win rate:              %.2f%%\n", summary.WinRate)
	fmt.Fprintf(&b, "Profit factor:         %s\n", formatRatio(summary.ProfitFactor))
	fmt.Fprintf(&b, "Sharpe ratio:          %s\n", formatRatio(summary.SharpeRatio))
	fmt.Fprintf(&b, "Sortino ratio:         %s\n", formatRatio(summary.SortinoRatio))
	fmt.Fprintf(&b, "Max drawdown:          %.2f%% (%d bars)\n", summary.MaxDrawdown, summary.MaxDrawdownDuration)
	fmt.Fprintf(&b, "Annualized return:     %.2f%%\n", summary.AnnualizedReturn)
	fmt.Fprintf(&b, "Calmar ratio:          %s\n", formatRatio(summary.CalmarRatio))
	fmt.Fprintf(&b, "Buy & hold return:     %.2f%%\n", summary.BuyHoldReturnPct)
	fmt.Fprintf(&b, "Vs buy & hold:         %.2f%%\n", summary.VsBuyHold)
	fmt.Fprintf(&b, "Max consecutive wins:  %d\n", summary.MaxConsecutiveWins)
	fmt.Fprintf(&b, "Max consecutive loss:  %d", summary.MaxConsecutiveLoss)

	return b.String()
}

func formatRatio(v *float64) string {
	if v == nil {
		return "n/a"
	}

	if math.IsInf(*v, 1) {
		return "inf"
	}

	if math.IsInf(*v, -1) {
		return "-inf"
	}

	return fmt.Sprintf("%.2f", *v)
}
