package main

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	emptyUserID    = uuid.MustParse("00000000-0000-0000-0000-000000000003")
	divergedUserID = uuid.MustParse("00000000-0000-0000-0000-000000000004")
)

// seedTestData adds rows that exercise the edge paths: a user with no
// holdings, a history whose balance no longer matches its transactions,
// and rows with legacy type and status values.
func seedTestData(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, `DELETE FROM crypto_assets WHERE user_id = $1`, emptyUserID); err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, `DELETE FROM transactions WHERE user_id = $1`, emptyUserID); err != nil {
		return err
	}

	if err := seedAssets(ctx, pool, divergedUserID, []seedAsset{
		{"eth", "Ethereum", "1", ""},
	}); err != nil {
		return err
	}
	if err := seedTransactions(ctx, pool, divergedUserID, []seedTx{
		{"buy", "eth", "3", "1800", "", 48 * time.Hour},
		{"send", "eth", "1", "0", "0x000000000000000000000000000000000000dead", 24 * time.Hour},
	}); err != nil {
		return err
	}

	_, err := pool.Exec(ctx, `
		INSERT INTO transactions (user_id, type, symbol, amount, status, created_at)
		VALUES ($1, 'airdrop', 'eth', 0.25, 'settled', $2)
	`, divergedUserID, time.Now().UTC().Add(-time.Hour))
	return err
}
