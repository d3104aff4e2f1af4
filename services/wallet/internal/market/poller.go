package market

import (
	"context"
	"log/slog"
	"time"

	"github.com/patrickmn/go-cache"
)

const liveQuotesKey = "markets:live"

type topMarketsSource interface {
	TopMarkets(ctx context.Context, page, perPage int) ([]Quote, Origin)
}

// QuotePoller keeps the most recent live top-markets listing for the whole
// process. Engines read from it instead of calling upstream themselves.
// Snapshot and fallback responses are never stored: placeholder prices must
// not replace a real quote.
type QuotePoller struct {
	source   topMarketsSource
	perPage  int
	interval time.Duration
	timeout  time.Duration
	quotes   *cache.Cache
	logger   *slog.Logger
}

// NewQuotePoller polls every interval. A stored listing expires after maxAge
// (default ten intervals); after that LiveQuotes reports nothing.
func NewQuotePoller(source topMarketsSource, perPage int, interval, maxAge time.Duration, logger *slog.Logger) *QuotePoller {
	if logger == nil {
		logger = slog.Default()
	}
	if perPage <= 0 {
		perPage = 100
	}
	if interval <= 0 {
		interval = time.Minute
	}
	if maxAge <= 0 {
		maxAge = 10 * interval
	}
	return &QuotePoller{
		source:   source,
		perPage:  perPage,
		interval: interval,
		timeout:  10 * time.Second,
		quotes:   cache.New(maxAge, maxAge),
		logger:   logger,
	}
}

// Poll fetches one listing and reports whether it was live.
func (p *QuotePoller) Poll(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	quotes, origin := p.source.TopMarkets(ctx, 1, p.perPage)
	if origin != OriginLive {
		p.logger.Warn("live quotes unavailable, keeping last listing", "origin", origin)
		return false
	}
	p.quotes.Set(liveQuotesKey, quotes, cache.DefaultExpiration)
	return true
}

// Run polls immediately and then on every tick until ctx is done.
func (p *QuotePoller) Run(ctx context.Context) {
	p.Poll(ctx)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Poll(ctx)
		}
	}
}

// LiveQuotes returns a copy of the last live listing, or nil when none is
// fresh enough.
func (p *QuotePoller) LiveQuotes(context.Context) []Quote {
	v, ok := p.quotes.Get(liveQuotesKey)
	if !ok {
		return nil
	}
	quotes := v.([]Quote)
	out := make([]Quote, len(quotes))
	copy(out, quotes)
	return out
}
