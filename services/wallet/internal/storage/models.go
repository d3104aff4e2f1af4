package storage

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AssetRow is a crypto_assets row as stored. Amount is the column's text
// form; callers coerce it.
type AssetRow struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Symbol    string    `json:"symbol"`
	Name      string    `json:"name"`
	Amount    string    `json:"amount"`
	ImageURL  *string   `json:"image_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TransactionRow is a transactions row as stored. Type and Status are not
// constrained by the schema.
type TransactionRow struct {
	ID               uuid.UUID
	UserID           uuid.UUID
	Type             string
	Symbol           string
	Amount           string
	RecipientAddress *string
	TransactionHash  *string
	Status           string
	PriceUSD         *string
	GasFee           *string
	CreatedAt        time.Time
}

type NewAsset struct {
	UserID   uuid.UUID
	Symbol   string
	Name     string
	Amount   decimal.Decimal
	ImageURL string
}

type NewTransaction struct {
	UserID           uuid.UUID
	Type             string
	Symbol           string
	Amount           decimal.Decimal
	RecipientAddress string
	TransactionHash  string
	Status           string
	PriceUSD         *decimal.Decimal
	GasFee           *decimal.Decimal
}
