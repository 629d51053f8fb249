package marketdata

import (
	"context"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/moznion/go-optional"
	"go.uber.org/zap"

	"github.com/saidsurucu/borsago/internal/logger"
	"github.com/saidsurucu/borsago/internal/types"
	"github.com/saidsurucu/borsago/pkg/errors"
)

// maxKlinesPerRequest is the Binance API page size limit.
const maxKlinesPerRequest = 1000

// Service interfaces for mocking the Binance API

// KlinesService interface for fetching candlestick data.
type KlinesService interface {
	Symbol(symbol string) KlinesService
	Interval(interval string) KlinesService
	StartTime(startTime int64) KlinesService
	EndTime(endTime int64) KlinesService
	Limit(limit int) KlinesService
	Do(ctx context.Context) ([]*binance.Kline, error)
}

// BinanceClient interface abstracts the Binance client for testing.
type BinanceClient interface {
	NewKlinesService() KlinesService
}

// realBinanceClient wraps the actual binance.Client.
type realBinanceClient struct {
	client *binance.Client
}

func (r *realBinanceClient) NewKlinesService() KlinesService {
	return &realKlinesService{service: r.client.NewKlinesService()}
}

type realKlinesService struct {
	service *binance.KlinesService
}

func (r *realKlinesService) Symbol(symbol string) KlinesService {
	r.service = r.service.Symbol(symbol)

	return r
}

func (r *realKlinesService) Interval(interval string) KlinesService {
	r.service = r.service.Interval(interval)

	return r
}

func (r *realKlinesService) StartTime(startTime int64) KlinesService {
	r.service = r.service.StartTime(startTime)

	return r
}

func (r *realKlinesService) EndTime(endTime int64) KlinesService {
	r.service = r.service.EndTime(endTime)

	return r
}

func (r *realKlinesService) Limit(limit int) KlinesService {
	r.service = r.service.Limit(limit)

	return r
}

func (r *realKlinesService) Do(ctx context.Context) ([]*binance.Kline, error) {
	return r.service.Do(ctx)
}

// BinanceProvider is a HistoryProvider backed by the Binance klines API.
type BinanceProvider struct {
	client BinanceClient
	logger *logger.Logger
}

// NewBinanceProvider creates a provider using real Binance API credentials.
func NewBinanceProvider(apiKey, secretKey string, log *logger.Logger) *BinanceProvider {
	return NewBinanceProviderWithClient(
		&realBinanceClient{client: binance.NewClient(apiKey, secretKey)},
		log,
	)
}

// NewBinanceProviderWithClient creates a provider with a custom client,
// typically a mock in tests.
func NewBinanceProviderWithClient(client BinanceClient, log *logger.Logger) *BinanceProvider {
	if log == nil {
		log = logger.NewNopLogger()
	}

	return &BinanceProvider{
		client: client,
		logger: log,
	}
}

// binanceInterval maps the library interval to the Binance kline interval
// string.
func binanceInterval(interval types.Interval) (string, error) {
	switch interval {
	case types.Interval1m, types.Interval5m, types.Interval15m, types.Interval30m,
		types.Interval1h, types.Interval4h, types.Interval1d:
		return string(interval), nil
	case types.Interval1wk:
		return "1w", nil
	case types.Interval1mo:
		return "1M", nil
	}

	return "", errors.Newf(errors.ErrCodeInvalidInterval, "invalid interval %q", interval)
}

// GetHistory implements HistoryProvider. Results are paginated through the
// API limit and concatenated in ascending timestamp order.
func (b *BinanceProvider) GetHistory(
	ctx context.Context,
	symbol string,
	period types.Period,
	interval types.Interval,
	start optional.Option[time.Time],
	end optional.Option[time.Time],
) ([]types.Bar, error) {
	if !period.IsValid() {
		return nil, errors.Newf(errors.ErrCodeInvalidPeriod, "invalid period %q", period)
	}

	binanceIntervalStr, err := binanceInterval(interval)
	if err != nil {
		return nil, err
	}

	endTime := time.Now()
	if end.IsSome() {
		endTime = end.Unwrap()
	}

	startTime := start
	if startTime.IsNone() {
		startTime = period.Start(endTime)
	}

	var bars []types.Bar

	cursor := startTime

	for {
		service := b.client.NewKlinesService().
			Symbol(symbol).
			Interval(binanceIntervalStr).
			EndTime(endTime.UnixMilli()).
			Limit(maxKlinesPerRequest)

		if cursor.IsSome() {
			service = service.StartTime(cursor.Unwrap().UnixMilli())
		}

		klines, err := service.Do(ctx)
		if err != nil {
			return nil, errors.Wrapf(errors.ErrCodeMarketDataFetchFailed, err, "failed to fetch klines for %s", symbol)
		}

		if len(klines) == 0 {
			break
		}

		for _, k := range klines {
			bar, err := klineToBar(k)
			if err != nil {
				return nil, err
			}

			bars = append(bars, bar)
		}

		if len(klines) < maxKlinesPerRequest {
			break
		}

		// Next page starts after the last open time of this one.
		last := klines[len(klines)-1]
		cursor = optional.Some(time.UnixMilli(last.OpenTime).Add(time.Millisecond))
	}

	if len(bars) == 0 {
		return nil, errors.Newf(errors.ErrCodeNoDataFound, "no history for symbol %q (period %s, interval %s)", symbol, period, interval)
	}

	b.logger.Debug("Fetched klines",
		zap.String("symbol", symbol),
		zap.Int("bars", len(bars)),
	)

	return bars, nil
}

func klineToBar(k *binance.Kline) (types.Bar, error) {
	open, err := strconv.ParseFloat(k.Open, 64)
	if err != nil {
		return types.Bar{}, errors.Wrap(errors.ErrCodeMarketDataParseFailed, "failed to parse open price", err)
	}

	high, err := strconv.ParseFloat(k.High, 64)
	if err != nil {
		return types.Bar{}, errors.Wrap(errors.ErrCodeMarketDataParseFailed, "failed to parse high price", err)
	}

	low, err := strconv.ParseFloat(k.Low, 64)
	if err != nil {
		return types.Bar{}, errors.Wrap(errors.ErrCodeMarketDataParseFailed, "failed to parse low price", err)
	}

	closePrice, err := strconv.ParseFloat(k.Close, 64)
	if err != nil {
		return types.Bar{}, errors.Wrap(errors.ErrCodeMarketDataParseFailed, "failed to parse close price", err)
	}

	volume, err := strconv.ParseFloat(k.Volume, 64)
	if err != nil {
		return types.Bar{}, errors.Wrap(errors.ErrCodeMarketDataParseFailed, "failed to parse volume", err)
	}

	return types.Bar{
		Time:   time.UnixMilli(k.OpenTime),
		Open:   open,
		High:   high,
		Low:    low,
		Close:  closePrice,
		Volume: volume,
	}, nil
}
