package ledger

import (
	"strings"

	"github.com/2001-daminho/nexcrypto/services/wallet/internal/market"
	"github.com/shopspring/decimal"
)

// DefaultPrices is the built-in USD price table used until live quotes
// arrive and for any symbol the market source does not price.
func DefaultPrices() map[string]decimal.Decimal {
	return map[string]decimal.Decimal{
		"btc":  decimal.RequireFromString("82958.00"),
		"eth":  decimal.RequireFromString("1943.00"),
		"sol":  decimal.RequireFromString("126.20"),
		"usdt": decimal.RequireFromString("0.99"),
		"ltc":  decimal.RequireFromString("91.75"),
	}
}

var assetImages = map[string]string{
	"btc":  "https://cryptologos.cc/logos/bitcoin-btc-logo.png",
	"eth":  "https://cryptologos.cc/logos/ethereum-eth-logo.png",
	"sol":  "https://cryptologos.cc/logos/solana-sol-logo.png",
	"usdt": "https://cryptologos.cc/logos/tether-usdt-logo.png",
	"ltc":  "https://cryptologos.cc/logos/litecoin-ltc-logo.png",
}

var assetNames = map[string]string{
	"btc":  "Bitcoin",
	"eth":  "Ethereum",
	"sol":  "Solana",
	"usdt": "Tether",
	"ltc":  "Litecoin",
}

func imageFor(symbol string) string {
	return assetImages[canonicalSymbol(symbol)]
}

// displayName synthesizes a name for a first-time acquisition.
func displayName(symbol string) string {
	sym := canonicalSymbol(symbol)
	if name, ok := assetNames[sym]; ok {
		return name
	}
	return strings.ToUpper(sym)
}

// PriceBook maps lowercase symbols to USD prices. Live quotes overlay the
// fallback table; merging never lets a fallback value replace a live one.
// A PriceBook is immutable once built.
type PriceBook struct {
	fallback map[string]decimal.Decimal
	live     map[string]decimal.Decimal
}

func NewPriceBook(fallback map[string]decimal.Decimal) PriceBook {
	fb := make(map[string]decimal.Decimal, len(fallback))
	for sym, p := range fallback {
		fb[canonicalSymbol(sym)] = p
	}
	return PriceBook{fallback: fb, live: map[string]decimal.Decimal{}}
}

// WithQuotes returns a copy of b with positive quote prices applied.
func (b PriceBook) WithQuotes(quotes []market.Quote) PriceBook {
	live := make(map[string]decimal.Decimal, len(b.live)+len(quotes))
	for sym, p := range b.live {
		live[sym] = p
	}
	for _, q := range quotes {
		sym := canonicalSymbol(q.Symbol)
		if sym == "" || !q.CurrentPrice.IsPositive() {
			continue
		}
		live[sym] = q.CurrentPrice
	}
	return PriceBook{fallback: b.fallback, live: live}
}

// Price returns the live price, else the fallback, else zero.
func (b PriceBook) Price(symbol string) decimal.Decimal {
	sym := canonicalSymbol(symbol)
	if p, ok := b.live[sym]; ok {
		return p
	}
	return b.fallback[sym]
}

// Fallback consults only the built-in table.
func (b PriceBook) Fallback(symbol string) decimal.Decimal {
	return b.fallback[canonicalSymbol(symbol)]
}

func (b PriceBook) Map() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(b.fallback)+len(b.live))
	for sym, p := range b.fallback {
		out[sym] = p
	}
	for sym, p := range b.live {
		out[sym] = p
	}
	return out
}
