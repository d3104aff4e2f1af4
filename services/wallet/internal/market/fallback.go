package market

import (
	"hash/fnv"
	"math/rand/v2"
	"time"

	"github.com/shopspring/decimal"
)

func mustDec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var fallbackQuotes = []Quote{
	{ID: "bitcoin", Symbol: "btc", Name: "Bitcoin", Image: "https://assets.coingecko.com/coins/images/1/large/bitcoin.png", CurrentPrice: mustDec("57000"), MarketCap: mustDec("1100000000000"), MarketCapRank: 1, TotalVolume: mustDec("55000000000"), PriceChangePercentage24h: 2.5},
	{ID: "ethereum", Symbol: "eth", Name: "Ethereum", Image: "https://assets.coingecko.com/coins/images/279/large/ethereum.png", CurrentPrice: mustDec("3200"), MarketCap: mustDec("380000000000"), MarketCapRank: 2, TotalVolume: mustDec("22000000000"), PriceChangePercentage24h: 1.8},
	{ID: "binancecoin", Symbol: "bnb", Name: "BNB", Image: "https://assets.coingecko.com/coins/images/825/large/bnb-icon2_2x.png", CurrentPrice: mustDec("610"), MarketCap: mustDec("94000000000"), MarketCapRank: 3, TotalVolume: mustDec("5500000000"), PriceChangePercentage24h: -0.9},
	{ID: "solana", Symbol: "sol", Name: "Solana", Image: "https://assets.coingecko.com/coins/images/4128/large/solana.png", CurrentPrice: mustDec("131"), MarketCap: mustDec("55000000000"), MarketCapRank: 4, TotalVolume: mustDec("3000000000"), PriceChangePercentage24h: 4.2},
	{ID: "ripple", Symbol: "xrp", Name: "XRP", Image: "https://assets.coingecko.com/coins/images/44/large/xrp-symbol-white-128.png", CurrentPrice: mustDec("0.52"), MarketCap: mustDec("28000000000"), MarketCapRank: 5, TotalVolume: mustDec("1500000000"), PriceChangePercentage24h: -1.3},
	{ID: "cardano", Symbol: "ada", Name: "Cardano", Image: "https://assets.coingecko.com/coins/images/975/large/cardano.png", CurrentPrice: mustDec("0.58"), MarketCap: mustDec("20500000000"), MarketCapRank: 6, TotalVolume: mustDec("800000000"), PriceChangePercentage24h: 0.7},
	{ID: "dogecoin", Symbol: "doge", Name: "Dogecoin", Image: "https://assets.coingecko.com/coins/images/5/large/dogecoin.png", CurrentPrice: mustDec("0.12"), MarketCap: mustDec("17000000000"), MarketCapRank: 7, TotalVolume: mustDec("1200000000"), PriceChangePercentage24h: 5.3},
	{ID: "polkadot", Symbol: "dot", Name: "Polkadot", Image: "https://assets.coingecko.com/coins/images/12171/large/polkadot.png", CurrentPrice: mustDec("7.8"), MarketCap: mustDec("10200000000"), MarketCapRank: 8, TotalVolume: mustDec("450000000"), PriceChangePercentage24h: -2.1},
}

// FallbackQuotes returns a copy of the built-in market listing.
func FallbackQuotes() []Quote {
	out := make([]Quote, len(fallbackQuotes))
	copy(out, fallbackQuotes)
	return out
}

func fallbackPage(page, perPage int) []Quote {
	all := FallbackQuotes()
	if page <= 1 {
		if perPage > 0 && perPage < len(all) {
			return all[:perPage]
		}
		return all
	}
	start := (page - 1) * perPage
	if perPage <= 0 || start >= len(all) {
		return []Quote{}
	}
	end := min(start+perPage, len(all))
	return all[start:end]
}

func fallbackTrending() []TrendingCoin {
	out := make([]TrendingCoin, 0, 5)
	for _, q := range fallbackQuotes[:5] {
		out = append(out, TrendingCoin{
			ID:                       q.ID,
			Name:                     q.Name,
			Symbol:                   q.Symbol,
			Image:                    q.Image,
			MarketCapRank:            q.MarketCapRank,
			PriceChangePercentage24h: q.PriceChangePercentage24h,
		})
	}
	return out
}

// fallbackCoinDetails answers for unknown ids with the first listed coin.
func fallbackCoinDetails(id string) CoinDetails {
	q := fallbackQuotes[0]
	for _, candidate := range fallbackQuotes {
		if candidate.ID == id {
			q = candidate
			break
		}
	}
	return CoinDetails{
		ID:                       q.ID,
		Symbol:                   q.Symbol,
		Name:                     q.Name,
		Image:                    q.Image,
		CurrentPrice:             q.CurrentPrice,
		MarketCap:                q.MarketCap,
		TotalVolume:              q.TotalVolume,
		PriceChangePercentage24h: q.PriceChangePercentage24h,
		Description:              q.Name + " is one of the major cryptocurrencies in the market. This is a placeholder description for the mock data.",
	}
}

const historyPoints = 100

// fallbackHistory is a random walk with 5% volatility seeded by coin id, so
// repeated calls for the same coin draw the same curve shape.
func fallbackHistory(id string, days int, now time.Time) PriceHistory {
	start := 100.0
	switch id {
	case "bitcoin":
		start = 57000
	case "ethereum":
		start = 3200
	}

	h := fnv.New64a()
	_, _ = h.Write([]byte(id))
	rng := rand.New(rand.NewPCG(h.Sum64(), uint64(days)))

	interval := time.Duration(days) * 24 * time.Hour / historyPoints
	price := start
	points := make([]PricePoint, 0, historyPoints)
	for i := 0; i < historyPoints; i++ {
		price += price * 0.05 * (rng.Float64() - 0.5)
		if price < 0 {
			price = 0.01
		}
		points = append(points, PricePoint{
			At:    now.Add(-time.Duration(historyPoints-1-i) * interval).UTC(),
			Price: price,
		})
	}
	return PriceHistory{ID: id, Days: days, Prices: points}
}
