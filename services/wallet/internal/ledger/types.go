package ledger

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TxType string

const (
	TxBuy     TxType = "buy"
	TxSell    TxType = "sell"
	TxReceive TxType = "receive"
	TxSend    TxType = "send"
)

func ParseTxType(s string) (TxType, bool) {
	switch t := TxType(strings.ToLower(strings.TrimSpace(s))); t {
	case TxBuy, TxSell, TxReceive, TxSend:
		return t, true
	}
	return "", false
}

// IsIncome reports whether the type counts toward today's income.
func (t TxType) IsIncome() bool { return t == TxBuy || t == TxReceive }

// IsExpense reports whether the type counts toward today's expense.
func (t TxType) IsExpense() bool { return t == TxSend || t == TxSell }

type TxStatus string

const (
	StatusPending   TxStatus = "pending"
	StatusCompleted TxStatus = "completed"
	StatusFailed    TxStatus = "failed"
)

func ParseTxStatus(s string) (TxStatus, bool) {
	switch st := TxStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusPending, StatusCompleted, StatusFailed:
		return st, true
	}
	return "", false
}

// Asset is a holding decorated with the current unit price and value.
// Price and Value are never persisted.
type Asset struct {
	ID        uuid.UUID       `json:"id"`
	UserID    uuid.UUID       `json:"user_id"`
	Symbol    string          `json:"symbol"`
	Name      string          `json:"name"`
	Quantity  decimal.Decimal `json:"amount"`
	ImageURL  string          `json:"image_url,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	Price     decimal.Decimal `json:"price"`
	Value     decimal.Decimal `json:"value"`
}

type Transaction struct {
	ID               uuid.UUID        `json:"id"`
	UserID           uuid.UUID        `json:"user_id"`
	Type             TxType           `json:"type"`
	Symbol           string           `json:"symbol"`
	Amount           decimal.Decimal  `json:"amount"`
	RecipientAddress string           `json:"recipient_address,omitempty"`
	TransactionHash  string           `json:"transaction_hash,omitempty"`
	Status           TxStatus         `json:"status"`
	Price            *decimal.Decimal `json:"price_usd,omitempty"`
	Fee              decimal.Decimal  `json:"gas_fee"`
	CreatedAt        time.Time        `json:"created_at"`
}

type Totals struct {
	TotalBalance decimal.Decimal `json:"total_balance"`
	TodayIncome  decimal.Decimal `json:"today_income"`
	TodayExpense decimal.Decimal `json:"today_expense"`
}

// Snapshot is a consistent copy of the engine state.
type Snapshot struct {
	UserID       uuid.UUID                  `json:"user_id"`
	Assets       []Asset                    `json:"assets"`
	Transactions []Transaction              `json:"transactions"`
	Totals       Totals                     `json:"totals"`
	Prices       map[string]decimal.Decimal `json:"prices"`
	Loading      bool                       `json:"loading"`
	Sending      bool                       `json:"sending"`
	LastRefresh  time.Time                  `json:"last_refresh"`
}

func canonicalSymbol(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
