package ledger

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestPoliciesFromConfig(t *testing.T) {
	cases := []struct {
		name    string
		cfg     PolicyConfig
		wantFee FeePolicy
		wantMin MinimumTransferPolicy
		wantErr bool
	}{
		{name: "defaults", wantFee: NoFee{}, wantMin: NoMinimum{}},
		{
			name:    "flat eth gas",
			cfg:     PolicyConfig{FlatFeeAmount: dec("0.001"), FeeCurrency: "ETH"},
			wantFee: FlatFee{Amount: dec("0.001"), Symbol: "eth"},
			wantMin: NoMinimum{},
		},
		{
			name:    "one percent same asset",
			cfg:     PolicyConfig{FeeRateOfAmount: dec("0.01"), FeeCurrency: "same"},
			wantFee: PercentageFee{Rate: dec("0.01")},
			wantMin: NoMinimum{},
		},
		{
			name:    "ten percent with minimum",
			cfg:     PolicyConfig{FeeRateOfAmount: dec("0.1"), MinimumTransferUSD: dec("1000")},
			wantFee: PercentageFee{Rate: dec("0.1")},
			wantMin: USDMinimum{Threshold: dec("1000")},
		},
		{name: "rate and flat", cfg: PolicyConfig{FeeRateOfAmount: dec("0.01"), FlatFeeAmount: dec("0.001")}, wantErr: true},
		{name: "rate in other currency", cfg: PolicyConfig{FeeRateOfAmount: dec("0.01"), FeeCurrency: "eth"}, wantErr: true},
		{name: "rate of one", cfg: PolicyConfig{FeeRateOfAmount: dec("1")}, wantErr: true},
		{name: "negative minimum", cfg: PolicyConfig{MinimumTransferUSD: dec("-5")}, wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fee, minimum, err := PoliciesFromConfig(tc.cfg)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !samePolicy(fee, tc.wantFee) {
				t.Fatalf("fee policy = %#v, want %#v", fee, tc.wantFee)
			}
			if !samePolicy(minimum, tc.wantMin) {
				t.Fatalf("minimum policy = %#v, want %#v", minimum, tc.wantMin)
			}
		})
	}
}

func samePolicy(got, want any) bool {
	switch w := want.(type) {
	case FlatFee:
		g, ok := got.(FlatFee)
		return ok && g.Amount.Equal(w.Amount) && g.Symbol == w.Symbol
	case PercentageFee:
		g, ok := got.(PercentageFee)
		return ok && g.Rate.Equal(w.Rate)
	case USDMinimum:
		g, ok := got.(USDMinimum)
		return ok && g.Threshold.Equal(w.Threshold)
	default:
		return got == want
	}
}

func TestUSDMinimumIsInclusive(t *testing.T) {
	m := USDMinimum{Threshold: dec("1000")}
	price := dec("100")

	if ok, reason := m.Allow(dec("9"), price); ok || reason == "" {
		t.Fatalf("expected 9 units at $100 to be rejected with a reason")
	}
	if ok, _ := m.Allow(dec("10"), price); !ok {
		t.Fatalf("expected 10 units at $100 to be allowed")
	}
	if ok, _ := m.Allow(dec("1"), decimal.Zero); ok {
		t.Fatalf("unpriced asset should not pass a positive minimum")
	}
}

func TestFeeAmounts(t *testing.T) {
	fee := PercentageFee{Rate: dec("0.01")}.Fee(dec("1"), "eth", dec("2000"))
	if !fee.Amount.Equal(dec("0.01")) || fee.Symbol != "" {
		t.Fatalf("unexpected percentage fee %+v", fee)
	}
	flat := FlatFee{Amount: dec("0.001"), Symbol: " ETH "}.Fee(dec("500"), "usdt", dec("1"))
	if !flat.Amount.Equal(dec("0.001")) || flat.Symbol != "eth" {
		t.Fatalf("unexpected flat fee %+v", flat)
	}
	if none := (NoFee{}).Fee(dec("1"), "btc", dec("1")); !none.Amount.IsZero() {
		t.Fatalf("expected no fee")
	}
}
