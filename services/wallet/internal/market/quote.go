package market

import (
	"time"

	"github.com/shopspring/decimal"
)

// Quote is one row of the top-markets listing.
type Quote struct {
	ID                       string          `json:"id"`
	Symbol                   string          `json:"symbol"`
	Name                     string          `json:"name"`
	Image                    string          `json:"image"`
	CurrentPrice             decimal.Decimal `json:"current_price"`
	MarketCap                decimal.Decimal `json:"market_cap"`
	MarketCapRank            int             `json:"market_cap_rank"`
	TotalVolume              decimal.Decimal `json:"total_volume"`
	PriceChangePercentage24h float64         `json:"price_change_percentage_24h"`
}

type TrendingCoin struct {
	ID                       string  `json:"id"`
	Name                     string  `json:"name"`
	Symbol                   string  `json:"symbol"`
	Image                    string  `json:"image"`
	MarketCapRank            int     `json:"market_cap_rank"`
	PriceChangePercentage24h float64 `json:"price_change_percentage_24h"`
}

type PricePoint struct {
	At    time.Time `json:"at"`
	Price float64   `json:"price"`
}

type PriceHistory struct {
	ID     string       `json:"id"`
	Days   int          `json:"days"`
	Prices []PricePoint `json:"prices"`
}

// CoinDetails is the single-coin view.
type CoinDetails struct {
	ID                       string          `json:"id"`
	Symbol                   string          `json:"symbol"`
	Name                     string          `json:"name"`
	Image                    string          `json:"image"`
	CurrentPrice             decimal.Decimal `json:"current_price"`
	MarketCap                decimal.Decimal `json:"market_cap"`
	TotalVolume              decimal.Decimal `json:"total_volume"`
	PriceChangePercentage24h float64         `json:"price_change_percentage_24h"`
	Description              string          `json:"description"`
}
