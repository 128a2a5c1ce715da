// Package services exposes the read-only query facade consumed by the
// presentation layer. It only ever reads the caches; all cache writes happen
// in the background refresher or through pull-through fetches funneled here.
package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/valer-ix/mardatbot/internal/cache"
	"github.com/valer-ix/mardatbot/internal/clients/fmp"
	"github.com/valer-ix/mardatbot/internal/domain"
)

// ErrNotFound marks a lookup miss, a distinct state from an upstream failure.
var ErrNotFound = errors.New("instrument not found")

// ErrUnknownRange marks an unrecognized OHLC range label.
var ErrUnknownRange = errors.New("unknown range label")

var (
	pairPattern   = regexp.MustCompile(`([\w]{1,4})/([\w]{1,4})`)
	tickerPattern = regexp.MustCompile(`[\w]{1,9}`)
)

// ohlcBucket is the request shape for one named range.
type ohlcBucket struct {
	resolution int   // seconds per bar
	count      int   // bars requested
	span       int64 // wall-clock width of the range, seconds
}

// ohlcBuckets maps every supported range label to its request shape and span.
// Bars older than one span before the newest bar are dropped from the series.
var ohlcBuckets = map[string]ohlcBucket{
	"30 mins.": {resolution: 60, count: 30, span: 1800},
	"1 hour":   {resolution: 60, count: 60, span: 3600},
	"6 hours":  {resolution: 600, count: 36, span: 21600},
	"1 day":    {resolution: 3600, count: 24, span: 86400},
	"1 week":   {resolution: 21600, count: 28, span: 604800},
	"30 days":  {resolution: 86400, count: 30, span: 2592000},
	"3 months": {resolution: 86400, count: 90, span: 7776000},
	"6 months": {resolution: 86400, count: 180, span: 15552000},
}

// RangeLabels returns the supported OHLC range labels.
func RangeLabels() []string {
	return []string{"30 mins.", "1 hour", "6 hours", "1 day", "1 week", "30 days", "3 months", "6 months"}
}

// Gateway is the slice of the market-data client the facade needs.
type Gateway interface {
	Feed(symbolIDs ...string) ([]domain.Quote, error)
	OHLC(symbolID string, resolutionSecs, size int) ([]domain.OHLCBar, error)
	LastOHLCBar(symbolID string) (domain.OHLCBar, error)
	CrossratePrice(base, counter string) (decimal.Decimal, error)
}

// Fundamentals is the slice of the fundamentals client the facade needs.
type Fundamentals interface {
	Request(symbol string, sheet fmp.SheetKind) (fmp.Record, error)
}

// LookupKind says which catalog a lookup resolved against.
type LookupKind string

// Lookup result kinds.
const (
	LookupStock     LookupKind = "stock"
	LookupCrossrate LookupKind = "crossrate"
	LookupCrypto    LookupKind = "crypto"
)

// Lookup is one resolved instrument lookup. Base and Counter are set for
// crossrates, after any direction reversal.
type Lookup struct {
	Kind       LookupKind        `json:"kind"`
	Instrument domain.Instrument `json:"instrument"`
	Base       string            `json:"base,omitempty"`
	Counter    string            `json:"counter,omitempty"`
}

// MarketDataService is the read-only query facade.
type MarketDataService struct {
	gateway      Gateway
	fundamentals Fundamentals
	catalogs     *cache.CatalogCache
	feed         *cache.FeedCache
	log          zerolog.Logger
}

// NewMarketDataService creates the facade over the given caches and clients.
func NewMarketDataService(
	gateway Gateway,
	fundamentals Fundamentals,
	catalogs *cache.CatalogCache,
	feed *cache.FeedCache,
	log zerolog.Logger,
) *MarketDataService {
	return &MarketDataService{
		gateway:      gateway,
		fundamentals: fundamentals,
		catalogs:     catalogs,
		feed:         feed,
		log:          log.With().Str("service", "market_data").Logger(),
	}
}

// Lookup resolves free text to a stock, currency pair or crypto asset.
// "abc/xyz" shapes resolve against the crossrate catalog, falling back to the
// reversed pair when the asked-for direction is not the canonical one stored.
// A miss returns ErrNotFound so callers can tell "no such symbol" apart from
// "upstream unavailable".
func (s *MarketDataService) Lookup(text string) (Lookup, error) {
	if m := pairPattern.FindStringSubmatch(text); m != nil {
		base := strings.ToUpper(m[1])
		counter := strings.ToUpper(m[2])

		pair, reversed, ok := s.catalogs.Crossrate(base + "/" + counter)
		if !ok {
			return Lookup{}, ErrNotFound
		}
		if reversed {
			base, counter = counter, base
		}
		return Lookup{Kind: LookupCrossrate, Instrument: pair, Base: base, Counter: counter}, nil
	}

	m := tickerPattern.FindString(text)
	if m == "" {
		return Lookup{}, ErrNotFound
	}
	ticker := strings.ToUpper(m)

	if stock, ok := s.catalogs.Stock(ticker); ok {
		return Lookup{Kind: LookupStock, Instrument: stock}, nil
	}
	if crypto, ok := s.catalogs.Crypto(ticker); ok {
		return Lookup{Kind: LookupCrypto, Instrument: crypto}, nil
	}
	return Lookup{}, ErrNotFound
}

// LatestQuote returns the cached quote for a symbol, fetching and caching it
// on a miss.
func (s *MarketDataService) LatestQuote(symbolID string) (domain.Quote, error) {
	if q, ok := s.feed.Get(symbolID); ok {
		return q, nil
	}

	quotes, err := s.gateway.Feed(symbolID)
	if err != nil {
		return domain.Quote{}, err
	}
	if len(quotes) == 0 {
		return domain.Quote{}, fmt.Errorf("no quote returned for %s", symbolID)
	}

	s.feed.Put(quotes[0])
	return quotes[0], nil
}

// OHLCSeries fetches bars for a named range and drops bars older than one
// range span before the newest bar, so a series never stretches past the
// window the label names.
func (s *MarketDataService) OHLCSeries(symbolID, rangeLabel string) ([]domain.OHLCBar, error) {
	bucket, ok := ohlcBuckets[rangeLabel]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRange, rangeLabel)
	}

	bars, err := s.gateway.OHLC(symbolID, bucket.resolution, bucket.count)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return bars, nil
	}

	cutoff := bars[0].Timestamp - bucket.span*1000
	kept := make([]domain.OHLCBar, 0, len(bars))
	for _, bar := range bars {
		if bar.Timestamp > cutoff {
			kept = append(kept, bar)
		}
	}
	return kept, nil
}

// CrossratePrice returns the current conversion rate for one currency pair.
func (s *MarketDataService) CrossratePrice(base, counter string) (decimal.Decimal, error) {
	return s.gateway.CrossratePrice(base, counter)
}

// Fundamentals returns the cached-or-fetched statement sheet for one symbol.
func (s *MarketDataService) Fundamentals(ticker string, sheet fmp.SheetKind) (fmp.Record, error) {
	return s.fundamentals.Request(ticker, sheet)
}

// CryptoList returns the crypto catalog ordered by description.
func (s *MarketDataService) CryptoList() []domain.Instrument {
	return s.catalogs.CryptoList()
}

// Ratios are the headline accounting figures derived from the three
// fundamental sheets plus the latest daily close. Limited means the provider
// rate limit was hit and the values are unset.
type Ratios struct {
	EPS            decimal.Decimal `json:"eps"` // trailing twelve months, diluted
	PERatio        decimal.Decimal `json:"pe_ratio"`
	DebtToEquity   decimal.Decimal `json:"debt_to_equity"`
	ReturnOnEquity decimal.Decimal `json:"return_on_equity"`
	Limited        bool            `json:"limited"`
}

// StockRatios computes EPS, P/E, D/E and ROE for a stock. EPS is the sum of
// the cached quarters' diluted EPS. For USD instruments P/E is the latest
// daily close over EPS; otherwise the provider's reported peRatio is used, as
// close and EPS would be in different currencies.
func (s *MarketDataService) StockRatios(stock domain.Instrument) (Ratios, error) {
	keyMetrics, err := s.fundamentals.Request(stock.Ticker, fmp.SheetKeyMetrics)
	if err != nil {
		return Ratios{}, err
	}
	ratios, err := s.fundamentals.Request(stock.Ticker, fmp.SheetRatios)
	if err != nil {
		return Ratios{}, err
	}
	income, err := s.fundamentals.Request(stock.Ticker, fmp.SheetIncomeStatement)
	if err != nil {
		return Ratios{}, err
	}

	if keyMetrics.Limited || ratios.Limited || income.Limited {
		s.log.Warn().Str("ticker", stock.Ticker).Msg("Fundamentals provider limit reached")
		return Ratios{Limited: true}, nil
	}

	var metrics []struct {
		DebtToEquity decimal.Decimal `json:"debtToEquity"`
		PERatio      decimal.Decimal `json:"peRatio"`
	}
	if err := json.Unmarshal(keyMetrics.Payload, &metrics); err != nil {
		return Ratios{}, fmt.Errorf("failed to decode key-metrics for %s: %w", stock.Ticker, err)
	}

	var returns []struct {
		ReturnOnEquity decimal.Decimal `json:"returnOnEquity"`
	}
	if err := json.Unmarshal(ratios.Payload, &returns); err != nil {
		return Ratios{}, fmt.Errorf("failed to decode ratios for %s: %w", stock.Ticker, err)
	}

	var quarters []struct {
		EPSDiluted decimal.Decimal `json:"epsdiluted"`
	}
	if err := json.Unmarshal(income.Payload, &quarters); err != nil {
		return Ratios{}, fmt.Errorf("failed to decode income statement for %s: %w", stock.Ticker, err)
	}

	out := Ratios{}
	if len(metrics) > 0 {
		out.DebtToEquity = metrics[0].DebtToEquity.Round(4)
	}
	if len(returns) > 0 {
		out.ReturnOnEquity = returns[0].ReturnOnEquity.Round(4)
	}

	eps := decimal.Zero
	for _, q := range quarters {
		eps = eps.Add(q.EPSDiluted)
	}
	if eps.IsZero() {
		return out, nil
	}
	out.EPS = eps.Round(2)

	if stock.Currency == "USD" {
		bar, err := s.gateway.LastOHLCBar(stock.ID)
		if err != nil {
			return Ratios{}, err
		}
		out.PERatio = bar.Close.Div(eps).Round(2)
	} else if len(metrics) > 0 {
		out.PERatio = metrics[0].PERatio.Round(2)
	}
	return out, nil
}
