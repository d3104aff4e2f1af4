package market

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/goccy/go-json"
)

// Fetcher is the live upstream.
type Fetcher interface {
	FetchTopMarkets(ctx context.Context, page, perPage int) ([]Quote, error)
	FetchTrending(ctx context.Context) ([]TrendingCoin, error)
	FetchPriceHistory(ctx context.Context, id string, days int) (PriceHistory, error)
	FetchCoinDetails(ctx context.Context, id string) (CoinDetails, error)
}

// Origin says where a response came from.
type Origin string

const (
	OriginLive     Origin = "live"
	OriginSnapshot Origin = "snapshot"
	OriginFallback Origin = "fallback"
)

// Source serves market data and never fails: a live fetch error degrades to
// the last snapshot and then to the built-in tables. Failures are logged.
type Source struct {
	fetcher   Fetcher
	snapshots SnapshotStore
	ttl       time.Duration
	logger    *slog.Logger
	metrics   *Metrics
	now       func() time.Time
}

func NewSource(fetcher Fetcher, snapshots SnapshotStore, ttl time.Duration, logger *slog.Logger, metrics *Metrics) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Source{
		fetcher:   fetcher,
		snapshots: snapshots,
		ttl:       ttl,
		logger:    logger,
		metrics:   metrics,
		now:       time.Now,
	}
}

func (s *Source) GetTopMarketPrices(ctx context.Context, page, perPage int) []Quote {
	quotes, _ := s.TopMarkets(ctx, page, perPage)
	return quotes
}

// TopMarkets is GetTopMarketPrices that also reports the origin, so callers
// that must not treat placeholder data as a real quote can tell them apart.
func (s *Source) TopMarkets(ctx context.Context, page, perPage int) ([]Quote, Origin) {
	if page <= 0 {
		page = 1
	}
	if perPage <= 0 {
		perPage = 20
	}
	key := fmt.Sprintf("markets:%d:%d", page, perPage)

	if s.fetcher != nil {
		quotes, err := s.fetcher.FetchTopMarkets(ctx, page, perPage)
		if err == nil {
			s.save(ctx, key, quotes)
			s.metrics.IncServed("markets", OriginLive)
			return quotes, OriginLive
		}
		s.logger.Warn("market fetch failed, using fallback data", "page", page, "per_page", perPage, "error", err)
	}

	var cached []Quote
	if s.load(ctx, key, &cached) {
		s.metrics.IncServed("markets", OriginSnapshot)
		return cached, OriginSnapshot
	}
	s.metrics.IncServed("markets", OriginFallback)
	return fallbackPage(page, perPage), OriginFallback
}

func (s *Source) Trending(ctx context.Context) []TrendingCoin {
	const key = "trending"
	if s.fetcher != nil {
		coins, err := s.fetcher.FetchTrending(ctx)
		if err == nil {
			s.save(ctx, key, coins)
			s.metrics.IncServed("trending", OriginLive)
			return coins
		}
		s.logger.Warn("trending fetch failed, using fallback data", "error", err)
	}

	var cached []TrendingCoin
	if s.load(ctx, key, &cached) {
		s.metrics.IncServed("trending", OriginSnapshot)
		return cached
	}
	s.metrics.IncServed("trending", OriginFallback)
	return fallbackTrending()
}

func (s *Source) PriceHistory(ctx context.Context, id string, days int) PriceHistory {
	if days <= 0 {
		days = 7
	}
	key := fmt.Sprintf("history:%s:%d", id, days)
	if s.fetcher != nil {
		history, err := s.fetcher.FetchPriceHistory(ctx, id, days)
		if err == nil {
			s.save(ctx, key, history)
			s.metrics.IncServed("history", OriginLive)
			return history
		}
		s.logger.Warn("price history fetch failed, using fallback data", "id", id, "days", days, "error", err)
	}

	var cached PriceHistory
	if s.load(ctx, key, &cached) {
		s.metrics.IncServed("history", OriginSnapshot)
		return cached
	}
	s.metrics.IncServed("history", OriginFallback)
	return fallbackHistory(id, days, s.now())
}

// CoinDetails describes one coin. Unknown ids fall back to a placeholder for
// the first built-in coin.
func (s *Source) CoinDetails(ctx context.Context, id string) CoinDetails {
	key := "coin:" + id
	if s.fetcher != nil {
		details, err := s.fetcher.FetchCoinDetails(ctx, id)
		if err == nil {
			s.save(ctx, key, details)
			s.metrics.IncServed("coin", OriginLive)
			return details
		}
		s.logger.Warn("coin details fetch failed, using fallback data", "id", id, "error", err)
	}

	var cached CoinDetails
	if s.load(ctx, key, &cached) {
		s.metrics.IncServed("coin", OriginSnapshot)
		return cached
	}
	s.metrics.IncServed("coin", OriginFallback)
	return fallbackCoinDetails(id)
}

func (s *Source) save(ctx context.Context, key string, value any) {
	if s.snapshots == nil {
		return
	}
	raw, err := json.Marshal(value)
	if err != nil {
		s.logger.Warn("snapshot encode failed", "key", key, "error", err)
		return
	}
	if err := s.snapshots.Save(ctx, key, raw, s.ttl); err != nil {
		s.logger.Warn("snapshot save failed", "key", key, "error", err)
	}
}

func (s *Source) load(ctx context.Context, key string, out any) bool {
	if s.snapshots == nil {
		return false
	}
	raw, ok, err := s.snapshots.Load(ctx, key)
	if err != nil {
		s.logger.Warn("snapshot load failed", "key", key, "error", err)
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, out); err != nil {
		s.logger.Warn("snapshot decode failed", "key", key, "error", err)
		return false
	}
	return true
}
