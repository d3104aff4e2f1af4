package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Fee is charged on top of a transfer. An empty Symbol means the fee is
// taken from the transferred asset.
type Fee struct {
	Amount decimal.Decimal `json:"amount"`
	Symbol string          `json:"symbol"`
}

type FeePolicy interface {
	Fee(amount decimal.Decimal, symbol string, unitPriceUSD decimal.Decimal) Fee
}

type MinimumTransferPolicy interface {
	// Allow returns false and a human readable reason when the transfer is
	// too small.
	Allow(amount decimal.Decimal, unitPriceUSD decimal.Decimal) (bool, string)
}

type NoFee struct{}

func (NoFee) Fee(decimal.Decimal, string, decimal.Decimal) Fee {
	return Fee{Amount: decimal.Zero}
}

// FlatFee charges a fixed amount, e.g. 0.001 ETH of network gas.
type FlatFee struct {
	Amount decimal.Decimal
	Symbol string
}

func (f FlatFee) Fee(decimal.Decimal, string, decimal.Decimal) Fee {
	return Fee{Amount: f.Amount, Symbol: canonicalSymbol(f.Symbol)}
}

// PercentageFee charges Rate of the transferred amount in the same asset.
type PercentageFee struct {
	Rate decimal.Decimal
}

func (p PercentageFee) Fee(amount decimal.Decimal, _ string, _ decimal.Decimal) Fee {
	return Fee{Amount: amount.Mul(p.Rate)}
}

type NoMinimum struct{}

func (NoMinimum) Allow(decimal.Decimal, decimal.Decimal) (bool, string) { return true, "" }

// USDMinimum rejects transfers whose USD value is below Threshold. The
// threshold itself is allowed.
type USDMinimum struct {
	Threshold decimal.Decimal
}

func (m USDMinimum) Allow(amount decimal.Decimal, unitPriceUSD decimal.Decimal) (bool, string) {
	value := amount.Mul(unitPriceUSD)
	if value.LessThan(m.Threshold) {
		return false, fmt.Sprintf("transfer value $%s is below the $%s minimum", value.StringFixed(2), m.Threshold.StringFixed(2))
	}
	return true, ""
}

// PolicyConfig selects the fee and minimum strategies. FeeCurrency is
// "same", "eth" or any asset symbol.
type PolicyConfig struct {
	FeeRateOfAmount    decimal.Decimal
	FeeCurrency        string
	FlatFeeAmount      decimal.Decimal
	MinimumTransferUSD decimal.Decimal
}

func PoliciesFromConfig(cfg PolicyConfig) (FeePolicy, MinimumTransferPolicy, error) {
	if cfg.FeeRateOfAmount.IsNegative() || cfg.FlatFeeAmount.IsNegative() || cfg.MinimumTransferUSD.IsNegative() {
		return nil, nil, fmt.Errorf("fee and minimum settings must not be negative")
	}
	if cfg.FeeRateOfAmount.IsPositive() && cfg.FlatFeeAmount.IsPositive() {
		return nil, nil, fmt.Errorf("fee rate and flat fee are mutually exclusive")
	}

	currency := canonicalSymbol(cfg.FeeCurrency)
	if currency == "same" {
		currency = ""
	}

	var fee FeePolicy = NoFee{}
	switch {
	case cfg.FeeRateOfAmount.IsPositive():
		if currency != "" {
			return nil, nil, fmt.Errorf("percentage fee must be charged in the same currency, got %q", cfg.FeeCurrency)
		}
		if cfg.FeeRateOfAmount.GreaterThanOrEqual(decimal.NewFromInt(1)) {
			return nil, nil, fmt.Errorf("fee rate must be below 1")
		}
		fee = PercentageFee{Rate: cfg.FeeRateOfAmount}
	case cfg.FlatFeeAmount.IsPositive():
		fee = FlatFee{Amount: cfg.FlatFeeAmount, Symbol: currency}
	}

	var minimum MinimumTransferPolicy = NoMinimum{}
	if cfg.MinimumTransferUSD.IsPositive() {
		minimum = USDMinimum{Threshold: cfg.MinimumTransferUSD}
	}
	return fee, minimum, nil
}
