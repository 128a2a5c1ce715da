package services

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valer-ix/mardatbot/internal/cache"
	"github.com/valer-ix/mardatbot/internal/clients/fmp"
	"github.com/valer-ix/mardatbot/internal/domain"
)

type fakeGateway struct {
	feedQuotes []domain.Quote
	feedErr    error
	feedCalls  int

	ohlcBars       []domain.OHLCBar
	ohlcErr        error
	gotResolution  int
	gotSize        int
	lastBar        domain.OHLCBar
	lastBarErr     error
	crossrate      decimal.Decimal
	crossrateErr   error
	gotBase        string
	gotCounter     string
}

func (g *fakeGateway) Feed(symbolIDs ...string) ([]domain.Quote, error) {
	g.feedCalls++
	return g.feedQuotes, g.feedErr
}

func (g *fakeGateway) OHLC(symbolID string, resolutionSecs, size int) ([]domain.OHLCBar, error) {
	g.gotResolution = resolutionSecs
	g.gotSize = size
	return g.ohlcBars, g.ohlcErr
}

func (g *fakeGateway) LastOHLCBar(symbolID string) (domain.OHLCBar, error) {
	return g.lastBar, g.lastBarErr
}

func (g *fakeGateway) CrossratePrice(base, counter string) (decimal.Decimal, error) {
	g.gotBase, g.gotCounter = base, counter
	return g.crossrate, g.crossrateErr
}

type fakeFundamentals struct {
	records map[fmp.SheetKind]fmp.Record
	err     error
}

func (f *fakeFundamentals) Request(symbol string, sheet fmp.SheetKind) (fmp.Record, error) {
	if f.err != nil {
		return fmp.Record{}, f.err
	}
	rec, ok := f.records[sheet]
	if !ok {
		rec = fmp.Record{Symbol: symbol, Sheet: sheet, Payload: json.RawMessage(`[]`), FetchedAt: time.Now()}
	}
	return rec, nil
}

func listRecord(sheet fmp.SheetKind, payload string) fmp.Record {
	return fmp.Record{Sheet: sheet, Payload: json.RawMessage(payload), FetchedAt: time.Now()}
}

func newTestService(gateway *fakeGateway, fundamentals *fakeFundamentals) (*MarketDataService, *cache.CatalogCache, *cache.FeedCache) {
	catalogs := cache.NewCatalogCache()
	feed := cache.NewFeedCache()
	svc := NewMarketDataService(gateway, fundamentals, catalogs, feed, zerolog.Nop())
	return svc, catalogs, feed
}

func TestLookupStock(t *testing.T) {
	svc, catalogs, _ := newTestService(&fakeGateway{}, &fakeFundamentals{})
	catalogs.ReplaceStocks([]domain.Instrument{{ID: "AAPL.NASDAQ", Ticker: "AAPL", Currency: "USD"}})

	result, err := svc.Lookup("aapl")
	require.NoError(t, err)
	assert.Equal(t, LookupStock, result.Kind)
	assert.Equal(t, "AAPL.NASDAQ", result.Instrument.ID)
}

func TestLookupCrossrate(t *testing.T) {
	svc, catalogs, _ := newTestService(&fakeGateway{}, &fakeFundamentals{})
	catalogs.ReplaceCrossrates([]domain.CrossRatePair{
		{ID: "EUR%2FUSD.EXANTE", Ticker: "EUR/USD"},
	})

	result, err := svc.Lookup("eur/usd")
	require.NoError(t, err)
	assert.Equal(t, LookupCrossrate, result.Kind)
	assert.Equal(t, "EUR", result.Base)
	assert.Equal(t, "USD", result.Counter)

	// The reversed direction resolves to the same pair with base and counter
	// swapped back to the asked-for canonical direction.
	result, err = svc.Lookup("usd/eur")
	require.NoError(t, err)
	assert.Equal(t, "EUR/USD", result.Instrument.Ticker)
	assert.Equal(t, "EUR", result.Base)
	assert.Equal(t, "USD", result.Counter)
}

func TestLookupCrypto(t *testing.T) {
	svc, catalogs, _ := newTestService(&fakeGateway{}, &fakeFundamentals{})
	catalogs.ReplaceCrypto([]domain.Instrument{{ID: "BTC.USD", Ticker: "BTC", Description: "Bitcoin"}})

	result, err := svc.Lookup("btc")
	require.NoError(t, err)
	assert.Equal(t, LookupCrypto, result.Kind)
}

func TestLookupStockShadowsCrypto(t *testing.T) {
	svc, catalogs, _ := newTestService(&fakeGateway{}, &fakeFundamentals{})
	catalogs.ReplaceStocks([]domain.Instrument{{ID: "BTC.NASDAQ", Ticker: "BTC"}})
	catalogs.ReplaceCrypto([]domain.Instrument{{ID: "BTC.USD", Ticker: "BTC"}})

	result, err := svc.Lookup("btc")
	require.NoError(t, err)
	assert.Equal(t, LookupStock, result.Kind)
}

func TestLookupMiss(t *testing.T) {
	svc, _, _ := newTestService(&fakeGateway{}, &fakeFundamentals{})

	_, err := svc.Lookup("nosuch")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.Lookup("xx/yy")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.Lookup("...")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLatestQuotePullThrough(t *testing.T) {
	gateway := &fakeGateway{
		feedQuotes: []domain.Quote{{SymbolID: "AAPL.NASDAQ", Timestamp: 1700000000000}},
	}
	svc, _, feed := newTestService(gateway, &fakeFundamentals{})

	q, err := svc.LatestQuote("AAPL.NASDAQ")
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000000), q.Timestamp)
	assert.Equal(t, 1, gateway.feedCalls)

	// Second lookup is served from the cache.
	_, err = svc.LatestQuote("AAPL.NASDAQ")
	require.NoError(t, err)
	assert.Equal(t, 1, gateway.feedCalls)
	assert.Equal(t, 1, feed.Len())
}

func TestLatestQuoteEmptyFeedResponse(t *testing.T) {
	gateway := &fakeGateway{}
	svc, _, _ := newTestService(gateway, &fakeFundamentals{})

	_, err := svc.LatestQuote("AAPL.NASDAQ")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no quote returned")
}

func TestOHLCSeriesRequestShape(t *testing.T) {
	gateway := &fakeGateway{}
	svc, _, _ := newTestService(gateway, &fakeFundamentals{})

	_, err := svc.OHLCSeries("AAPL.NASDAQ", "1 day")
	require.NoError(t, err)
	assert.Equal(t, 3600, gateway.gotResolution)
	assert.Equal(t, 24, gateway.gotSize)

	_, err = svc.OHLCSeries("AAPL.NASDAQ", "6 months")
	require.NoError(t, err)
	assert.Equal(t, 86400, gateway.gotResolution)
	assert.Equal(t, 180, gateway.gotSize)
}

func TestOHLCSeriesUnknownRange(t *testing.T) {
	svc, _, _ := newTestService(&fakeGateway{}, &fakeFundamentals{})

	_, err := svc.OHLCSeries("AAPL.NASDAQ", "2 fortnights")
	assert.ErrorIs(t, err, ErrUnknownRange)
}

func TestOHLCSeriesDropsBarsPastSpan(t *testing.T) {
	newest := int64(1700000000000)
	gateway := &fakeGateway{ohlcBars: []domain.OHLCBar{
		{Timestamp: newest},
		{Timestamp: newest - 1800*1000},          // inside the 1-hour span
		{Timestamp: newest - 3600*1000},          // exactly one span back, dropped
		{Timestamp: newest - 2*3600*1000},        // far past the span
	}}
	svc, _, _ := newTestService(gateway, &fakeFundamentals{})

	bars, err := svc.OHLCSeries("AAPL.NASDAQ", "1 hour")
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, newest, bars[0].Timestamp)
	assert.Equal(t, newest-1800*1000, bars[1].Timestamp)
}

func TestCrossratePrice(t *testing.T) {
	gateway := &fakeGateway{crossrate: decimal.RequireFromString("1.0845")}
	svc, _, _ := newTestService(gateway, &fakeFundamentals{})

	rate, err := svc.CrossratePrice("EUR", "USD")
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("1.0845").Equal(rate))
	assert.Equal(t, "EUR", gateway.gotBase)
	assert.Equal(t, "USD", gateway.gotCounter)
}

func TestStockRatiosUSD(t *testing.T) {
	gateway := &fakeGateway{lastBar: domain.OHLCBar{Close: decimal.RequireFromString("180.00")}}
	fundamentals := &fakeFundamentals{records: map[fmp.SheetKind]fmp.Record{
		fmp.SheetKeyMetrics: listRecord(fmp.SheetKeyMetrics,
			`[{"debtToEquity": 1.95731, "peRatio": 28.512}]`),
		fmp.SheetRatios: listRecord(fmp.SheetRatios,
			`[{"returnOnEquity": 0.38126}]`),
		fmp.SheetIncomeStatement: listRecord(fmp.SheetIncomeStatement,
			`[{"epsdiluted": 1.5}, {"epsdiluted": 1.5}, {"epsdiluted": 1.5}, {"epsdiluted": 1.5}]`),
	}}
	svc, _, _ := newTestService(gateway, fundamentals)

	ratios, err := svc.StockRatios(domain.Instrument{ID: "AAPL.NASDAQ", Ticker: "AAPL", Currency: "USD"})
	require.NoError(t, err)
	assert.False(t, ratios.Limited)
	assert.Equal(t, "6", ratios.EPS.String())
	// 180 / 6, from the latest daily close rather than the reported ratio.
	assert.Equal(t, "30", ratios.PERatio.String())
	assert.Equal(t, "1.9573", ratios.DebtToEquity.String())
	assert.Equal(t, "0.3813", ratios.ReturnOnEquity.String())
}

func TestStockRatiosNonUSDUsesReportedPE(t *testing.T) {
	fundamentals := &fakeFundamentals{records: map[fmp.SheetKind]fmp.Record{
		fmp.SheetKeyMetrics: listRecord(fmp.SheetKeyMetrics,
			`[{"debtToEquity": 0.5, "peRatio": 12.345}]`),
		fmp.SheetRatios: listRecord(fmp.SheetRatios,
			`[{"returnOnEquity": 0.2}]`),
		fmp.SheetIncomeStatement: listRecord(fmp.SheetIncomeStatement,
			`[{"epsdiluted": 2.0}]`),
	}}
	svc, _, _ := newTestService(&fakeGateway{}, fundamentals)

	ratios, err := svc.StockRatios(domain.Instrument{ID: "VOD.LSE", Ticker: "VOD", Currency: "GBP"})
	require.NoError(t, err)
	assert.Equal(t, "12.35", ratios.PERatio.String())
}

func TestStockRatiosZeroEPSSkipsPE(t *testing.T) {
	fundamentals := &fakeFundamentals{records: map[fmp.SheetKind]fmp.Record{
		fmp.SheetIncomeStatement: listRecord(fmp.SheetIncomeStatement,
			`[{"epsdiluted": 1.0}, {"epsdiluted": -1.0}]`),
	}}
	svc, _, _ := newTestService(&fakeGateway{}, fundamentals)

	ratios, err := svc.StockRatios(domain.Instrument{ID: "X.NASDAQ", Ticker: "X", Currency: "USD"})
	require.NoError(t, err)
	assert.True(t, ratios.EPS.IsZero())
	assert.True(t, ratios.PERatio.IsZero())
}

func TestStockRatiosLimited(t *testing.T) {
	fundamentals := &fakeFundamentals{records: map[fmp.SheetKind]fmp.Record{
		fmp.SheetKeyMetrics: {
			Sheet:   fmp.SheetKeyMetrics,
			Payload: json.RawMessage(`{"Error Message": "Limit Reach"}`),
			Limited: true,
		},
	}}
	svc, _, _ := newTestService(&fakeGateway{}, fundamentals)

	ratios, err := svc.StockRatios(domain.Instrument{ID: "AAPL.NASDAQ", Ticker: "AAPL", Currency: "USD"})
	require.NoError(t, err)
	assert.True(t, ratios.Limited)
	assert.True(t, ratios.EPS.IsZero())
}

func TestStockRatiosFundamentalsError(t *testing.T) {
	fundamentals := &fakeFundamentals{err: errors.New("boom")}
	svc, _, _ := newTestService(&fakeGateway{}, fundamentals)

	_, err := svc.StockRatios(domain.Instrument{Ticker: "AAPL"})
	assert.Error(t, err)
}

func TestRangeLabelsCoverBuckets(t *testing.T) {
	labels := RangeLabels()
	assert.Len(t, labels, len(ohlcBuckets))
	for _, label := range labels {
		_, ok := ohlcBuckets[label]
		assert.True(t, ok, "label %q has no bucket", label)
	}
}
