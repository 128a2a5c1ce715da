// Package scheduler runs the background loops that keep the in-memory caches
// warm: the perpetual catalog/feed refresher and a cron wrapper for
// housekeeping jobs.
package scheduler

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/valer-ix/mardatbot/internal/cache"
	"github.com/valer-ix/mardatbot/internal/domain"
)

// Default cadence of the refresh loop.
const (
	DefaultInterval      = 15 * time.Minute
	DefaultRetryInterval = 15 * time.Second
	DefaultBatchSize     = 5
)

// defaultWatchlist seeds the feed cache at startup so foreground lookups have
// quotes to read before the first scheduled refresh completes.
var defaultWatchlist = []string{
	"GOOG.NASDAQ", "AAPL.NASDAQ", "TSLA.NASDAQ", "AMZN.NASDAQ", "NFLX.NASDAQ",
	"EUR%2FUSD.EXANTE", "EUR%2FRUB.EXANTE", "USD%2FRUB.EXANTE", "GBP%2FUSD.EXANTE",
	"EUR%2FGBP.EXANTE",
}

// MarketDataSource is the slice of the market-data client the refresher needs.
type MarketDataSource interface {
	Stocks() ([]domain.Instrument, error)
	Crossrates() ([]domain.CrossRatePair, error)
	Crypto() ([]domain.Instrument, error)
	Feed(symbolIDs ...string) ([]domain.Quote, error)
}

// Config holds the refresher cadence. Zero values select the defaults.
type Config struct {
	Interval      time.Duration
	RetryInterval time.Duration
	BatchSize     int
	Watchlist     []string
}

// Refresher re-populates the catalog and feed caches on a fixed interval.
// The loop is the sole writer of both caches, never stops on error, and
// shortens its sleep after a failed cycle instead of propagating.
type Refresher struct {
	source        MarketDataSource
	catalogs      *cache.CatalogCache
	feed          *cache.FeedCache
	interval      time.Duration
	retryInterval time.Duration
	batchSize     int
	log           zerolog.Logger

	// skipFeed suppresses the feed batch refresh until one full cycle has
	// succeeded, avoiding a redundant refresh right after the seed fetch.
	skipFeed bool

	now    func() time.Time
	stopCh chan struct{}
	doneCh chan struct{}
}

// New creates a refresher and synchronously seeds the feed cache from the
// watch-list in fixed-size batches, so the cache is non-empty the instant the
// loop starts. A seed failure is fatal to construction.
func New(source MarketDataSource, catalogs *cache.CatalogCache, feed *cache.FeedCache, cfg Config, log zerolog.Logger) (*Refresher, error) {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = DefaultRetryInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if len(cfg.Watchlist) == 0 {
		cfg.Watchlist = defaultWatchlist
	}

	r := &Refresher{
		source:        source,
		catalogs:      catalogs,
		feed:          feed,
		interval:      cfg.Interval,
		retryInterval: cfg.RetryInterval,
		batchSize:     cfg.BatchSize,
		log:           log.With().Str("component", "refresher").Logger(),
		skipFeed:      true,
		now:           time.Now,
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}

	if err := r.seed(cfg.Watchlist); err != nil {
		return nil, fmt.Errorf("failed to seed feed cache: %w", err)
	}
	return r, nil
}

// seed fetches the watch-list quotes batch by batch into the feed cache.
func (r *Refresher) seed(watchlist []string) error {
	for start := 0; start < len(watchlist); start += r.batchSize {
		end := start + r.batchSize
		if end > len(watchlist) {
			end = len(watchlist)
		}
		quotes, err := r.source.Feed(watchlist[start:end]...)
		if err != nil {
			return err
		}
		for _, q := range quotes {
			r.feed.Put(q)
		}
	}
	r.log.Info().Int("symbols", r.feed.Len()).Msg("Feed cache seeded")
	return nil
}

// Start launches the refresh loop.
func (r *Refresher) Start() {
	go r.run()
	r.log.Info().Dur("interval", r.interval).Msg("Refresher started")
}

// Stop signals the loop to exit and waits for it.
func (r *Refresher) Stop() {
	close(r.stopCh)
	<-r.doneCh
	r.log.Info().Msg("Refresher stopped")
}

func (r *Refresher) run() {
	defer close(r.doneCh)

	for {
		interval := r.interval
		if err := r.runCycle(); err != nil {
			r.log.Error().Err(err).Msg("Refresh cycle failed, retrying shortly")
			interval = r.retryInterval
		}

		select {
		case <-r.stopCh:
			return
		case <-time.After(interval):
		}
	}
}

// runCycle replaces the three reference catalogs and, outside weekends and
// the warm-up cycle, re-fetches quotes for every cached symbol. The warm-up
// flag clears only after a fully successful cycle.
func (r *Refresher) runCycle() error {
	log := r.log.With().Str("cycle_id", uuid.NewString()).Logger()

	if err := r.refreshCatalogs(log); err != nil {
		return err
	}

	switch {
	case r.skipFeed:
		log.Debug().Msg("Skipping feed refresh on warm-up cycle")
	case isWeekend(r.now()):
		log.Debug().Msg("Skipping feed refresh, market closed")
	default:
		if err := r.refreshFeed(log); err != nil {
			return err
		}
	}

	r.skipFeed = false
	return nil
}

// refreshCatalogs fetches and atomically replaces each catalog in turn. A
// catalog already replaced this cycle stays replaced if a later fetch fails;
// the failed one keeps its previous snapshot.
func (r *Refresher) refreshCatalogs(log zerolog.Logger) error {
	stocks, err := r.source.Stocks()
	if err != nil {
		return fmt.Errorf("failed to fetch stock catalog: %w", err)
	}
	r.catalogs.ReplaceStocks(stocks)

	crossrates, err := r.source.Crossrates()
	if err != nil {
		return fmt.Errorf("failed to fetch crossrate catalog: %w", err)
	}
	r.catalogs.ReplaceCrossrates(crossrates)

	crypto, err := r.source.Crypto()
	if err != nil {
		return fmt.Errorf("failed to fetch crypto catalog: %w", err)
	}
	r.catalogs.ReplaceCrypto(crypto)

	nStocks, nCrossrates, nCrypto := r.catalogs.Counts()
	log.Info().
		Int("stocks", nStocks).
		Int("crossrates", nCrossrates).
		Int("crypto", nCrypto).
		Msg("Reference catalogs replaced")
	return nil
}

// refreshFeed re-fetches every cached symbol in fixed-size batches, merging
// each batch back as it lands. A failure partway leaves earlier batches
// updated and later ones stale, which stays visible via quote timestamps.
func (r *Refresher) refreshFeed(log zerolog.Logger) error {
	symbols := r.feed.Symbols()

	for start := 0; start < len(symbols); start += r.batchSize {
		end := start + r.batchSize
		if end > len(symbols) {
			end = len(symbols)
		}
		quotes, err := r.source.Feed(symbols[start:end]...)
		if err != nil {
			return fmt.Errorf("failed to refresh feed batch %d: %w", start/r.batchSize+1, err)
		}
		for _, q := range quotes {
			r.feed.Put(q)
		}
	}

	log.Info().Int("symbols", len(symbols)).Msg("Feed cache refreshed")
	return nil
}

func isWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}
