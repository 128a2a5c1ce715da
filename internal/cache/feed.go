package cache

import (
	"sort"
	"sync"

	"github.com/valer-ix/mardatbot/internal/domain"
)

// FeedCache holds the latest known quote per instrument. Entries never expire
// by time; they are overwritten by the next scheduled refresh or pull-through
// fetch. A stale quote is preferable to no quote, and staleness stays visible
// to callers through Quote.Timestamp.
//
// Keys are percent-encoded symbol ids. Both Get and Put encode on entry so an
// id crossing this boundary in either form lands on the same key.
type FeedCache struct {
	mu     sync.RWMutex
	quotes map[string]domain.Quote
}

// NewFeedCache creates an empty feed cache.
func NewFeedCache() *FeedCache {
	return &FeedCache{quotes: make(map[string]domain.Quote)}
}

// Get returns the cached quote for a symbol id, encoded or not.
func (c *FeedCache) Get(symbolID string) (domain.Quote, bool) {
	key := domain.EncodeSymbolID(symbolID)

	c.mu.RLock()
	defer c.mu.RUnlock()
	q, ok := c.quotes[key]
	return q, ok
}

// Put stores a quote under its encoded symbol id, overwriting any previous
// entry for the same symbol.
func (c *FeedCache) Put(quote domain.Quote) {
	quote.SymbolID = domain.EncodeSymbolID(quote.SymbolID)

	c.mu.Lock()
	c.quotes[quote.SymbolID] = quote
	c.mu.Unlock()
}

// Symbols returns all cached symbol ids in sorted order, so batch refreshes
// walk the watch-list deterministically.
func (c *FeedCache) Symbols() []string {
	c.mu.RLock()
	symbols := make([]string, 0, len(c.quotes))
	for id := range c.quotes {
		symbols = append(symbols, id)
	}
	c.mu.RUnlock()

	sort.Strings(symbols)
	return symbols
}

// Len returns the number of cached quotes.
func (c *FeedCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.quotes)
}
