package realtime

import (
	"time"

	"github.com/google/uuid"
)

const (
	TableAssets       = "crypto_assets"
	TableTransactions = "transactions"
)

type Op string

const (
	OpInsert Op = "INSERT"
	OpUpdate Op = "UPDATE"
	OpDelete Op = "DELETE"
)

// Change describes one row mutation in a user-scoped table.
type Change struct {
	Table  string    `json:"table"`
	Op     Op        `json:"op"`
	UserID uuid.UUID `json:"user_id"`
	RowID  uuid.UUID `json:"row_id"`
	At     time.Time `json:"at"`
}

// Subscription is released with Unsubscribe. Unsubscribe is idempotent.
type Subscription interface {
	Unsubscribe()
}
