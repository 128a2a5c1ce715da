// Package domain holds the core market-data model shared by the API clients,
// the in-memory caches and the query facade.
package domain

// Instrument is one tradable instrument from a reference catalog.
type Instrument struct {
	ID          string `json:"id"`
	Ticker      string `json:"ticker"`
	Exchange    string `json:"exchange"`
	Currency    string `json:"currency,omitempty"`
	Description string `json:"description"`
	Country     string `json:"country,omitempty"`
	Name        string `json:"name,omitempty"`
}

// CrossRatePair is a currency pair instrument. The catalog stores one
// canonical direction, keyed by its "BASE/COUNTER" ticker.
type CrossRatePair = Instrument
