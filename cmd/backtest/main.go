package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/saidsurucu/borsago/internal/backtest"
	"github.com/saidsurucu/borsago/internal/indicator"
	"github.com/saidsurucu/borsago/internal/logger"
	"github.com/saidsurucu/borsago/internal/marketdata"
	"github.com/saidsurucu/borsago/internal/replay"
	"github.com/saidsurucu/borsago/internal/types"
)

// buildStrategy maps a strategy flag value to its callback.
func buildStrategy(name string) (backtest.Strategy, []string, error) {
	switch name {
	case "sma-cross":
		return backtest.NewSMACrossStrategy("sma_20", "sma_50"), []string{"sma_20", "sma_50"}, nil
	case "rsi":
		return backtest.NewRSIStrategy("rsi_14", 30, 70), []string{"rsi_14"}, nil
	default:
		return nil, nil, fmt.Errorf("unknown strategy %q (supported: sma-cross, rsi)", name)
	}
}

func newProvider(dataPath string, log *logger.Logger) (*marketdata.DuckDBProvider, error) {
	provider, err := marketdata.NewDuckDBProvider(log)
	if err != nil {
		return nil, fmt.Errorf("failed to create data provider: %w", err)
	}

	if err := provider.Initialize(dataPath); err != nil {
		_ = provider.Close()

		return nil, fmt.Errorf("failed to load %s: %w", dataPath, err)
	}

	return provider, nil
}

func runAction(ctx context.Context, cmd *cli.Command) error {
	log, err := logger.NewLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	period := types.Period(cmd.String("period"))
	interval := types.Interval(cmd.String("interval"))

	strategy, indicators, err := buildStrategy(cmd.String("strategy"))
	if err != nil {
		return err
	}

	if extra := cmd.StringSlice("indicators"); len(extra) > 0 {
		indicators = append(indicators, extra...)
	}

	provider, err := newProvider(cmd.String("data"), log)
	if err != nil {
		return err
	}
	defer provider.Close()

	config := backtest.DefaultConfig()
	config.InitialCapital = cmd.Float("capital")
	config.CommissionRate = cmd.Float("commission")

	engine, err := backtest.NewEngine(config, provider, indicator.NewDefaultRegistry(), log)
	if err != nil {
		return err
	}

	symbol := cmd.String("symbol")

	var bar *progressbar.ProgressBar

	result, err := engine.Run(ctx, backtest.RunRequest{
		Symbol:       symbol,
		Period:       period,
		Interval:     interval,
		StrategyName: cmd.String("strategy"),
		Strategy:     strategy,
		Indicators:   indicators,
		OnProgress: func(current, total int) {
			if bar == nil {
				bar = progressbar.Default(int64(total))
				bar.Describe(fmt.Sprintf("Backtesting %s", symbol))
			}

			_ = bar.Set(current)
		},
	})
	if err != nil {
		return fmt.Errorf("backtest failed: %w", err)
	}

	analyzer := backtest.NewAnalyzer(result,
		marketdata.StaticRiskFreeRate(cmd.Float("risk-free-rate")), log)
	summary := analyzer.Summarize()

	fmt.Println()
	fmt.Println(backtest.FormatSummary(summary))

	if output := cmd.String("output"); output != "" {
		if err := backtest.WriteSummary(output, summary); err != nil {
			return fmt.Errorf("failed to write summary: %w", err)
		}

		log.Info("Summary written", zap.String("path", output))
	}

	return nil
}

func replayAction(ctx context.Context, cmd *cli.Command) error {
	log, err := logger.NewLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	provider, err := newProvider(cmd.String("data"), log)
	if err != nil {
		return err
	}
	defer provider.Close()

	session, err := replay.NewSessionFromHistory(ctx, provider,
		cmd.String("symbol"),
		types.Period(cmd.String("period")),
		types.Interval(cmd.String("interval")),
		replay.WithRealtime(cmd.Bool("realtime")),
		replay.WithSpeed(cmd.Float("speed")),
		replay.WithLogger(log),
	)
	if err != nil {
		return fmt.Errorf("failed to build replay session: %w", err)
	}

	seq := session.Replay()

	if start, end := cmd.Timestamp("start"), cmd.Timestamp("end"); !start.IsZero() || !end.IsZero() {
		if end.IsZero() {
			end = time.Now()
		}

		seq = session.ReplayFiltered(start, end)
	}

	seq(func(c replay.Candle) bool {
		fmt.Printf("[%d/%d] %s  O=%.2f H=%.2f L=%.2f C=%.2f V=%.0f\n",
			c.Index+1, c.Total, c.Time.Format(time.RFC3339),
			c.Open, c.High, c.Low, c.Close, c.Volume)

		return ctx.Err() == nil
	})

	return nil
}

func schemaAction(_ context.Context, _ *cli.Command) error {
	config := backtest.DefaultConfig()

	schema, err := config.GenerateSchemaJSON()
	if err != nil {
		return fmt.Errorf("failed to generate config schema: %w", err)
	}

	fmt.Println(schema)

	return nil
}

func main() {
	dataFlags := []cli.Flag{
		&cli.StringFlag{
			Name:     "data",
			Aliases:  []string{"d"},
			Usage:    "Path to a CSV or parquet file with time/open/high/low/close/volume columns",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "symbol",
			Aliases:  []string{"s"},
			Usage:    "Instrument symbol",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "period",
			Usage: fmt.Sprintf("History period (%s)", joinPeriods()),
			Value: string(types.PeriodMax),
		},
		&cli.StringFlag{
			Name:  "interval",
			Usage: fmt.Sprintf("Bar interval (%s)", joinIntervals()),
			Value: string(types.Interval1d),
		},
	}

	cmd := &cli.Command{
		Name:  "backtest",
		Usage: "Run strategy backtests and bar replays over historical market data",
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Run a strategy backtest and print its performance summary",
				Flags: append(dataFlags,
					&cli.FloatFlag{
						Name:  "capital",
						Usage: "Starting cash",
						Value: 100000,
					},
					&cli.FloatFlag{
						Name:  "commission",
						Usage: "Fractional commission rate charged on entry and exit notional",
						Value: 0.001,
					},
					&cli.StringFlag{
						Name:  "strategy",
						Usage: "Strategy to run (sma-cross, rsi)",
						Value: "sma-cross",
					},
					&cli.StringSliceFlag{
						Name:  "indicators",
						Usage: "Additional indicator names to expose to the strategy",
					},
					&cli.FloatFlag{
						Name:  "risk-free-rate",
						Usage: "Annualized risk-free rate used by Sharpe and Sortino",
						Value: 0.30,
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Write the summary as YAML to this path",
					},
				),
				Action: runAction,
			},
			{
				Name:  "replay",
				Usage: "Re-emit historical bars, optionally paced to simulate real time",
				Flags: append(dataFlags,
					&cli.BoolFlag{
						Name:  "realtime",
						Usage: "Pace emission by the real time gap between bars",
					},
					&cli.FloatFlag{
						Name:  "speed",
						Usage: "Pacing speed multiplier (gaps are divided by this)",
						Value: 1,
					},
					&cli.TimestampFlag{
						Name:  "start",
						Usage: "Replay window start in `YYYY-MM-DD` format",
						Config: cli.TimestampConfig{
							Layouts: []string{"2006-01-02"},
						},
					},
					&cli.TimestampFlag{
						Name:  "end",
						Usage: "Replay window end in `YYYY-MM-DD` format",
						Config: cli.TimestampConfig{
							Layouts: []string{"2006-01-02"},
						},
					},
				),
				Action: replayAction,
			},
			{
				Name:   "schema",
				Usage:  "Print the JSON schema of the backtest configuration",
				Action: schemaAction,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func joinPeriods() string {
	parts := make([]string, len(types.AllPeriods))
	for i, p := range types.AllPeriods {
		parts[i] = string(p)
	}

	return strings.Join(parts, ", ")
}

func joinIntervals() string {
	parts := make([]string, len(types.AllIntervals))
	for i, v := range types.AllIntervals {
		parts[i] = string(v)
	}

	return strings.Join(parts, ", ")
}
