package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	demoUserID   = uuid.MustParse("00000000-0000-0000-0000-000000000001")
	traderUserID = uuid.MustParse("00000000-0000-0000-0000-000000000002")
)

type seedAsset struct {
	symbol string
	name   string
	amount string
	image  string
}

type seedTx struct {
	txType    string
	symbol    string
	amount    string
	priceUSD  string
	recipient string
	age       time.Duration
}

func main() {
	env := getEnv("NEX_ENV", "dev")
	if env != "dev" && env != "test" {
		log.Fatalf("refusing to seed: NEX_ENV must be 'dev' or 'test' (got '%s')", env)
	}

	host := getEnv("POSTGRES_HOST", "localhost")
	port := getEnv("POSTGRES_PORT", "5432")
	db := getEnv("POSTGRES_DB", "nex_wallet")
	user := getEnv("POSTGRES_USER", "nex")
	password := getEnv("POSTGRES_PASSWORD", "nex")
	sslmode := getEnv("POSTGRES_SSLMODE", "disable")

	connStr := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		user, password, host, port, db, sslmode)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		log.Fatalf("connect db: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("ping db: %v", err)
	}

	// the wallet service owns the schema and migrates on startup
	var ready bool
	if err := pool.QueryRow(ctx, `SELECT to_regclass('public.crypto_assets') IS NOT NULL`).Scan(&ready); err != nil {
		log.Fatalf("check schema: %v", err)
	}
	if !ready {
		log.Fatalf("schema missing: start the wallet service once to apply migrations")
	}

	fmt.Println("Seeding database...")

	if err := seedAssets(ctx, pool, demoUserID, []seedAsset{
		{"btc", "Bitcoin", "0.5", "https://assets.coingecko.com/coins/images/1/large/bitcoin.png"},
		{"eth", "Ethereum", "4", "https://assets.coingecko.com/coins/images/279/large/ethereum.png"},
		{"sol", "Solana", "25", "https://assets.coingecko.com/coins/images/4128/large/solana.png"},
		{"usdt", "Tether", "2500", "https://assets.coingecko.com/coins/images/325/large/Tether.png"},
		{"ltc", "Litecoin", "12", "https://assets.coingecko.com/coins/images/2/large/litecoin.png"},
	}); err != nil {
		log.Fatalf("seed demo assets: %v", err)
	}
	if err := seedAssets(ctx, pool, traderUserID, []seedAsset{
		{"btc", "Bitcoin", "2", "https://assets.coingecko.com/coins/images/1/large/bitcoin.png"},
		{"sol", "Solana", "120", "https://assets.coingecko.com/coins/images/4128/large/solana.png"},
	}); err != nil {
		log.Fatalf("seed trader assets: %v", err)
	}
	fmt.Println("✓ Assets seeded")

	if err := seedTransactions(ctx, pool, demoUserID, []seedTx{
		{"buy", "btc", "0.6", "42000", "", 30 * 24 * time.Hour},
		{"sell", "btc", "0.1", "61000", "", 10 * 24 * time.Hour},
		{"buy", "eth", "4", "2200", "", 20 * 24 * time.Hour},
		{"buy", "sol", "25", "140", "", 12 * 24 * time.Hour},
		{"buy", "ltc", "12", "88", "", 8 * 24 * time.Hour},
		{"receive", "usdt", "2500", "1", "0x5e1f6f0b7b7ac3c1b0d3a36c2a7d1d23a3f2c0de", 5 * 24 * time.Hour},
	}); err != nil {
		log.Fatalf("seed demo transactions: %v", err)
	}
	if err := seedTransactions(ctx, pool, traderUserID, []seedTx{
		{"buy", "btc", "2", "38000", "", 60 * 24 * time.Hour},
		{"buy", "sol", "120", "95", "", 15 * 24 * time.Hour},
	}); err != nil {
		log.Fatalf("seed trader transactions: %v", err)
	}
	fmt.Println("✓ Transactions seeded")

	if os.Getenv("SEED_TESTDATA") == "1" {
		if err := seedTestData(ctx, pool); err != nil {
			log.Fatalf("seed test data: %v", err)
		}
		fmt.Println("✓ Test data seeded")
	}

	fmt.Println("\n=== Seed Complete ===")
	fmt.Println("\nDemo Users:")
	fmt.Printf("  demo:   %s\n", demoUserID)
	fmt.Printf("  trader: %s\n", traderUserID)
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func seedAssets(ctx context.Context, pool *pgxpool.Pool, userID uuid.UUID, assets []seedAsset) error {
	now := time.Now().UTC()
	for _, a := range assets {
		_, err := pool.Exec(ctx, `
			INSERT INTO crypto_assets (user_id, symbol, name, amount, image_url, created_at, updated_at)
			VALUES ($1, $2, $3, $4::numeric, $5, $6, $7)
			ON CONFLICT (user_id, symbol) DO UPDATE
			SET amount = EXCLUDED.amount,
			    name = EXCLUDED.name,
			    image_url = EXCLUDED.image_url,
			    updated_at = EXCLUDED.updated_at
		`, userID, a.symbol, a.name, a.amount, a.image, now, now)
		if err != nil {
			return err
		}
	}
	return nil
}

// seedTransactions replaces the user's history so reruns stay deterministic.
func seedTransactions(ctx context.Context, pool *pgxpool.Pool, userID uuid.UUID, txs []seedTx) error {
	if _, err := pool.Exec(ctx, `DELETE FROM transactions WHERE user_id = $1`, userID); err != nil {
		return err
	}
	now := time.Now().UTC()
	for _, tx := range txs {
		var recipient *string
		if tx.recipient != "" {
			recipient = &tx.recipient
		}
		_, err := pool.Exec(ctx, `
			INSERT INTO transactions (user_id, type, symbol, amount, recipient_address, status, price_usd, created_at)
			VALUES ($1, $2, $3, $4::numeric, $5, 'completed', $6::numeric, $7)
		`, userID, tx.txType, tx.symbol, tx.amount, recipient, tx.priceUSD, now.Add(-tx.age))
		if err != nil {
			return err
		}
	}
	return nil
}
