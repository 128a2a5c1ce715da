// Package fmp provides the Financial Modeling Prep client with a pull-through
// per-symbol cache of quarterly statement sheets.
package fmp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultBaseURL is the v3 API of financialmodelingprep.com.
const DefaultBaseURL = "https://financialmodelingprep.com/api/v3"

// DefaultTTL is how long a cached sheet stays fresh before a lookup triggers
// a re-fetch.
const DefaultTTL = 24 * time.Hour

// maxQuarters bounds list payloads to the most recent quarterly reports.
const maxQuarters = 4

// SheetKind names one statement sheet exposed by the provider.
type SheetKind string

// Supported statement sheets.
const (
	SheetKeyMetrics      SheetKind = "key-metrics"
	SheetRatios          SheetKind = "ratios"
	SheetIncomeStatement SheetKind = "income-statement"
)

// ParseSheetKind validates a sheet name from an external caller.
func ParseSheetKind(s string) (SheetKind, error) {
	switch kind := SheetKind(s); kind {
	case SheetKeyMetrics, SheetRatios, SheetIncomeStatement:
		return kind, nil
	default:
		return "", fmt.Errorf("unknown sheet kind %q", s)
	}
}

// APIError reports a failed fundamentals request: a transport error or a
// non-2xx response. Status is 0 for transport failures.
type APIError struct {
	Endpoint string
	Status   int
	Err      error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fundamentals request %s failed: %v", e.Endpoint, e.Err)
	}
	return fmt.Sprintf("fundamentals request %s returned status %d", e.Endpoint, e.Status)
}

func (e *APIError) Unwrap() error { return e.Err }

// Record is one cached sheet for one symbol.
//
// Limited marks a payload that was not list-shaped: the provider signals its
// rate limit through the shape of the JSON body rather than an HTTP status.
// Such a payload is cached like any other so the limited endpoint is not
// hammered until the entry expires; callers must check Limited before using
// Payload.
type Record struct {
	Symbol    string          `json:"symbol"`
	Sheet     SheetKind       `json:"sheet"`
	Payload   json.RawMessage `json:"payload"`
	Limited   bool            `json:"limited"`
	FetchedAt time.Time       `json:"fetched_at"`
}

type cacheKey struct {
	symbol string
	sheet  SheetKind
}

// Client for the fundamentals provider. Sheets are cached per (symbol, sheet)
// so requesting one sheet never evicts a sibling sheet of the same symbol.
type Client struct {
	baseURL    string
	apiKey     string
	ttl        time.Duration
	httpClient *http.Client
	log        zerolog.Logger

	mu    sync.Mutex
	cache map[cacheKey]Record

	now func() time.Time
}

// NewClient creates a new fundamentals client. Empty baseURL and zero ttl
// select the defaults.
func NewClient(baseURL, apiKey string, ttl time.Duration, log zerolog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		ttl:        ttl,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		log:        log.With().Str("client", "fmp").Logger(),
		cache:      make(map[cacheKey]Record),
		now:        time.Now,
	}
}

// Request returns the cached sheet when it is fresher than the TTL, fetching
// and caching it otherwise. List payloads are truncated to the four most
// recent quarters before caching.
func (c *Client) Request(symbol string, sheet SheetKind) (Record, error) {
	key := cacheKey{symbol: symbol, sheet: sheet}

	c.mu.Lock()
	rec, ok := c.cache[key]
	c.mu.Unlock()
	if ok && c.now().Sub(rec.FetchedAt) < c.ttl {
		c.log.Debug().Str("symbol", symbol).Str("sheet", string(sheet)).Msg("Cache hit")
		return rec, nil
	}

	payload, err := c.fetch(symbol, sheet)
	if err != nil {
		return Record{}, err
	}

	limited := !isList(payload)
	if limited {
		c.log.Warn().
			Str("symbol", symbol).
			Str("sheet", string(sheet)).
			Msg("Provider returned a non-list payload, treating as rate limited")
	} else {
		payload, err = truncateQuarters(payload)
		if err != nil {
			return Record{}, fmt.Errorf("failed to truncate %s payload for %s: %w", sheet, symbol, err)
		}
	}

	rec = Record{
		Symbol:    symbol,
		Sheet:     sheet,
		Payload:   payload,
		Limited:   limited,
		FetchedAt: c.now(),
	}

	c.mu.Lock()
	c.cache[key] = rec
	c.mu.Unlock()

	return rec, nil
}

// fetch performs the GET for one sheet.
func (c *Client) fetch(symbol string, sheet SheetKind) (json.RawMessage, error) {
	endpoint := fmt.Sprintf("/%s/%s", sheet, url.PathEscape(symbol))
	params := url.Values{
		"period": []string{"quarter"},
		"apikey": []string{c.apiKey},
	}

	resp, err := c.httpClient.Get(c.baseURL + endpoint + "?" + params.Encode())
	if err != nil {
		c.log.Error().Err(err).Str("endpoint", endpoint).Msg("Request failed")
		return nil, &APIError{Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.log.Error().
			Int("status", resp.StatusCode).
			Str("endpoint", endpoint).
			Msg("API returned non-2xx status")
		return nil, &APIError{Endpoint: endpoint, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", endpoint, err)
	}
	return body, nil
}

// SweepExpired removes entries older than the TTL and returns how many were
// dropped. Run daily by the cron scheduler.
func (c *Client) SweepExpired() int {
	cutoff := c.now().Add(-c.ttl)

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, rec := range c.cache {
		if rec.FetchedAt.Before(cutoff) {
			delete(c.cache, key)
			removed++
		}
	}
	return removed
}

// isList reports whether the payload's first JSON token opens an array.
func isList(payload []byte) bool {
	trimmed := bytes.TrimLeft(payload, " \t\r\n")
	return len(trimmed) > 0 && trimmed[0] == '['
}

// truncateQuarters keeps at most the first maxQuarters elements of a list
// payload; the provider returns quarters newest first.
func truncateQuarters(payload json.RawMessage) (json.RawMessage, error) {
	var reports []json.RawMessage
	if err := json.Unmarshal(payload, &reports); err != nil {
		return nil, err
	}
	if len(reports) <= maxQuarters {
		return payload, nil
	}
	return json.Marshal(reports[:maxQuarters])
}
