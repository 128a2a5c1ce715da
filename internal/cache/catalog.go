// Package cache holds the warm in-memory stores for reference catalogs and
// live feed quotes. A background refresher writes; foreground readers only
// ever observe a whole old or whole new snapshot, never a mix.
package cache

import (
	"sort"
	"strings"
	"sync"

	"github.com/valer-ix/mardatbot/internal/domain"
)

// CatalogCache holds the latest snapshot of each instrument catalog.
// Each Replace* call builds the new collection in full and swaps it in under
// the lock, so concurrent readers see either the previous or the new catalog.
type CatalogCache struct {
	mu         sync.RWMutex
	stocks     map[string]domain.Instrument
	crossrates map[string]domain.CrossRatePair
	crypto     map[string]domain.Instrument
	cryptoList []domain.Instrument // description order, for enumeration only
}

// NewCatalogCache creates an empty catalog cache.
func NewCatalogCache() *CatalogCache {
	return &CatalogCache{
		stocks:     make(map[string]domain.Instrument),
		crossrates: make(map[string]domain.CrossRatePair),
		crypto:     make(map[string]domain.Instrument),
	}
}

// ReplaceStocks swaps in a full new stock catalog keyed by ticker.
func (c *CatalogCache) ReplaceStocks(list []domain.Instrument) {
	stocks := make(map[string]domain.Instrument, len(list))
	for _, inst := range list {
		stocks[inst.Ticker] = inst
	}

	c.mu.Lock()
	c.stocks = stocks
	c.mu.Unlock()
}

// ReplaceCrossrates swaps in a full new currency-pair catalog keyed by the
// canonical "BASE/COUNTER" ticker.
func (c *CatalogCache) ReplaceCrossrates(list []domain.CrossRatePair) {
	crossrates := make(map[string]domain.CrossRatePair, len(list))
	for _, pair := range list {
		crossrates[pair.Ticker] = pair
	}

	c.mu.Lock()
	c.crossrates = crossrates
	c.mu.Unlock()
}

// ReplaceCrypto swaps in a full new crypto catalog keyed by ticker and
// rebuilds the description-ordered listing. Ordering affects enumeration
// only, never lookup.
func (c *CatalogCache) ReplaceCrypto(list []domain.Instrument) {
	ordered := make([]domain.Instrument, len(list))
	copy(ordered, list)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Description < ordered[j].Description
	})

	crypto := make(map[string]domain.Instrument, len(ordered))
	for _, inst := range ordered {
		crypto[inst.Ticker] = inst
	}

	c.mu.Lock()
	c.crypto = crypto
	c.cryptoList = ordered
	c.mu.Unlock()
}

// Stock looks up a stock by ticker.
func (c *CatalogCache) Stock(ticker string) (domain.Instrument, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	inst, ok := c.stocks[ticker]
	return inst, ok
}

// Crossrate looks up a currency pair by its "BASE/COUNTER" ticker, trying the
// reversed direction when the forward key misses. reversed reports whether
// the returned pair is the opposite direction of the one asked for.
func (c *CatalogCache) Crossrate(pair string) (p domain.CrossRatePair, reversed bool, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if p, ok := c.crossrates[pair]; ok {
		return p, false, true
	}
	parts := strings.SplitN(pair, "/", 2)
	if len(parts) != 2 {
		return domain.CrossRatePair{}, false, false
	}
	if p, ok := c.crossrates[parts[1]+"/"+parts[0]]; ok {
		return p, true, true
	}
	return domain.CrossRatePair{}, false, false
}

// Crypto looks up a crypto asset by ticker.
func (c *CatalogCache) Crypto(ticker string) (domain.Instrument, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	inst, ok := c.crypto[ticker]
	return inst, ok
}

// CryptoList returns the crypto catalog ordered by description.
func (c *CatalogCache) CryptoList() []domain.Instrument {
	c.mu.RLock()
	defer c.mu.RUnlock()

	list := make([]domain.Instrument, len(c.cryptoList))
	copy(list, c.cryptoList)
	return list
}

// Counts returns the size of each catalog, for logging.
func (c *CatalogCache) Counts() (stocks, crossrates, crypto int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.stocks), len(c.crossrates), len(c.crypto)
}
