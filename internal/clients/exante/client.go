// Package exante provides the authenticated client for the Exante market-data
// HTTP API. Every remote call funnels through a single request chokepoint so
// token attachment and failure classification stay in one place.
package exante

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/valer-ix/mardatbot/internal/domain"
)

// DefaultBaseURL is the demo environment of the market-data API.
const DefaultBaseURL = "https://api-demo.exante.eu/md/2.0"

// dailyResolution is the bar resolution used for "latest close" lookups.
const dailyResolution = 86400

// APIError reports a failed market-data request: a transport error or a
// non-2xx response. Status is 0 for transport failures.
type APIError struct {
	Endpoint string
	Status   int
	Err      error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("market-data request %s failed: %v", e.Endpoint, e.Err)
	}
	return fmt.Sprintf("market-data request %s returned status %d", e.Endpoint, e.Status)
}

func (e *APIError) Unwrap() error { return e.Err }

// Client for the Exante market-data API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     *TokenManager
	log        zerolog.Logger
}

// NewClient creates a new market-data client. An empty baseURL selects the
// demo environment.
func NewClient(baseURL string, tokens *TokenManager, log zerolog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		tokens:     tokens,
		log:        log.With().Str("client", "exante").Logger(),
	}
}

// get performs one authenticated GET against the API and decodes the JSON
// response into out. No retries here; retry policy belongs to the caller.
func (c *Client) get(endpoint string, params url.Values, out interface{}) error {
	token, err := c.tokens.Token()
	if err != nil {
		return fmt.Errorf("failed to obtain access token: %w", err)
	}

	requestURL := c.baseURL + endpoint
	if len(params) > 0 {
		requestURL += "?" + params.Encode()
	}

	req, err := http.NewRequest(http.MethodGet, requestURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/x-json-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Error().Err(err).Str("endpoint", endpoint).Msg("Request failed")
		return &APIError{Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.log.Error().
			Int("status", resp.StatusCode).
			Str("endpoint", endpoint).
			Msg("API returned non-2xx status")
		return &APIError{Endpoint: endpoint, Status: resp.StatusCode}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", endpoint, err)
	}
	return nil
}

// Stocks fetches the stock catalog.
func (c *Client) Stocks() ([]domain.Instrument, error) {
	var list []domain.Instrument
	if err := c.get("/types/STOCK", nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// Crossrates fetches the currency pair catalog. Each pair's ticker is its
// canonical "BASE/COUNTER" direction.
func (c *Client) Crossrates() ([]domain.CrossRatePair, error) {
	var list []domain.CrossRatePair
	if err := c.get("/types/CURRENCY", nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// Crypto fetches the crypto asset catalog.
func (c *Client) Crypto() ([]domain.Instrument, error) {
	var list []domain.Instrument
	if err := c.get("/types/FUND", nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// CrossratePrice fetches the current conversion rate for one currency pair.
func (c *Client) CrossratePrice(base, counter string) (decimal.Decimal, error) {
	var out struct {
		Pair string          `json:"pair"`
		Rate decimal.Decimal `json:"rate"`
	}
	endpoint := fmt.Sprintf("/crossrates/%s/%s", url.PathEscape(base), url.PathEscape(counter))
	if err := c.get(endpoint, nil, &out); err != nil {
		return decimal.Zero, err
	}
	return out.Rate, nil
}

// OHLC fetches up to size bars at the given resolution, newest bar first.
func (c *Client) OHLC(symbolID string, resolutionSecs, size int) ([]domain.OHLCBar, error) {
	endpoint := fmt.Sprintf("/ohlc/%s/%d", domain.EncodeSymbolID(symbolID), resolutionSecs)
	params := url.Values{"size": []string{strconv.Itoa(size)}}

	var bars []domain.OHLCBar
	if err := c.get(endpoint, params, &bars); err != nil {
		return nil, err
	}
	return bars, nil
}

// LastOHLCBar fetches the most recent daily bar for a symbol.
func (c *Client) LastOHLCBar(symbolID string) (domain.OHLCBar, error) {
	bars, err := c.OHLC(symbolID, dailyResolution, 1)
	if err != nil {
		return domain.OHLCBar{}, err
	}
	if len(bars) == 0 {
		return domain.OHLCBar{}, fmt.Errorf("no bars returned for %s", symbolID)
	}
	return bars[0], nil
}

// Feed fetches the latest quote for one batch of symbols. Ids are
// percent-encoded before joining into the path segment, and the returned
// quotes carry encoded ids so they can be used as cache keys directly.
func (c *Client) Feed(symbolIDs ...string) ([]domain.Quote, error) {
	encoded := make([]string, len(symbolIDs))
	for i, id := range symbolIDs {
		encoded[i] = domain.EncodeSymbolID(id)
	}
	endpoint := fmt.Sprintf("/feed/%s/last", strings.Join(encoded, ","))

	var quotes []domain.Quote
	if err := c.get(endpoint, nil, &quotes); err != nil {
		return nil, err
	}
	for i := range quotes {
		quotes[i].SymbolID = domain.EncodeSymbolID(quotes[i].SymbolID)
	}
	return quotes, nil
}
