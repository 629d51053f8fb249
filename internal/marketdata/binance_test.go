package marketdata

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/moznion/go-optional"
	"github.com/stretchr/testify/suite"

	"github.com/saidsurucu/borsago/internal/types"
	"github.com/saidsurucu/borsago/pkg/errors"
)

// fakeKlinesService returns canned klines and records the requested range.
type fakeKlinesService struct {
	klines    []*binance.Kline
	err       error
	symbol    string
	interval  string
	startTime optional.Option[int64]
	endTime   optional.Option[int64]
	limit     int
}

func (f *fakeKlinesService) Symbol(symbol string) KlinesService {
	f.symbol = symbol

	return f
}

func (f *fakeKlinesService) Interval(interval string) KlinesService {
	f.interval = interval

	return f
}

func (f *fakeKlinesService) StartTime(startTime int64) KlinesService {
	f.startTime = optional.Some(startTime)

	return f
}

func (f *fakeKlinesService) EndTime(endTime int64) KlinesService {
	f.endTime = optional.Some(endTime)

	return f
}

func (f *fakeKlinesService) Limit(limit int) KlinesService {
	f.limit = limit

	return f
}

func (f *fakeKlinesService) Do(_ context.Context) ([]*binance.Kline, error) {
	return f.klines, f.err
}

type fakeBinanceClient struct {
	service *fakeKlinesService
}

func (f *fakeBinanceClient) NewKlinesService() KlinesService {
	return f.service
}

func testKlines(n int) []*binance.Kline {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	klines := make([]*binance.Kline, n)

	for i := range klines {
		price := 100.0 + float64(i)
		klines[i] = &binance.Kline{
			OpenTime: start.AddDate(0, 0, i).UnixMilli(),
			Open:     fmt.Sprintf("%.2f", price),
			High:     fmt.Sprintf("%.2f", price+1),
			Low:      fmt.Sprintf("%.2f", price-1),
			Close:    fmt.Sprintf("%.2f", price+0.5),
			Volume:   "1000",
		}
	}

	return klines
}

type BinanceProviderTestSuite struct {
	suite.Suite
}

func TestBinanceProviderSuite(t *testing.T) {
	suite.Run(t, new(BinanceProviderTestSuite))
}

func (suite *BinanceProviderTestSuite) TestGetHistory() {
	service := &fakeKlinesService{klines: testKlines(5)}
	provider := NewBinanceProviderWithClient(&fakeBinanceClient{service: service}, nil)

	bars, err := provider.GetHistory(
		context.Background(), "BTCTRY", types.Period1Mo, types.Interval1d,
		optional.None[time.Time](), optional.None[time.Time](),
	)
	suite.NoError(err)
	suite.Len(bars, 5)
	suite.Equal("BTCTRY", service.symbol)
	suite.Equal("1d", service.interval)
	suite.Equal(maxKlinesPerRequest, service.limit)

	// ascending order and parsed values
	suite.True(bars[0].Time.Before(bars[1].Time))
	suite.InDelta(100.0, bars[0].Open, 1e-9)
	suite.InDelta(100.5, bars[0].Close, 1e-9)
}

func (suite *BinanceProviderTestSuite) TestGetHistoryIntervalMapping() {
	service := &fakeKlinesService{klines: testKlines(1)}
	provider := NewBinanceProviderWithClient(&fakeBinanceClient{service: service}, nil)

	_, err := provider.GetHistory(
		context.Background(), "BTCTRY", types.Period1Y, types.Interval1wk,
		optional.None[time.Time](), optional.None[time.Time](),
	)
	suite.NoError(err)
	suite.Equal("1w", service.interval)
}

func (suite *BinanceProviderTestSuite) TestGetHistoryInvalidInterval() {
	provider := NewBinanceProviderWithClient(&fakeBinanceClient{service: &fakeKlinesService{}}, nil)

	_, err := provider.GetHistory(
		context.Background(), "BTCTRY", types.Period1Y, types.Interval("2d"),
		optional.None[time.Time](), optional.None[time.Time](),
	)
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidInterval))
}

func (suite *BinanceProviderTestSuite) TestGetHistoryNoData() {
	service := &fakeKlinesService{klines: nil}
	provider := NewBinanceProviderWithClient(&fakeBinanceClient{service: service}, nil)

	_, err := provider.GetHistory(
		context.Background(), "UNKNOWN", types.Period1Y, types.Interval1d,
		optional.None[time.Time](), optional.None[time.Time](),
	)
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeNoDataFound))
}

func (suite *BinanceProviderTestSuite) TestGetHistoryFetchError() {
	service := &fakeKlinesService{err: fmt.Errorf("api down")}
	provider := NewBinanceProviderWithClient(&fakeBinanceClient{service: service}, nil)

	_, err := provider.GetHistory(
		context.Background(), "BTCTRY", types.Period1Y, types.Interval1d,
		optional.None[time.Time](), optional.None[time.Time](),
	)
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeMarketDataFetchFailed))
}

func (suite *BinanceProviderTestSuite) TestStaticRiskFreeRate() {
	rate, err := StaticRiskFreeRate(0.3).RiskFreeRate()
	suite.NoError(err)
	suite.InDelta(0.3, rate, 1e-9)
}
