package testutil

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TestDSN builds the integration database URL from the POSTGRES_* env.
func TestDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		getEnv("POSTGRES_USER", "nex"),
		getEnv("POSTGRES_PASSWORD", "nex"),
		getEnv("POSTGRES_HOST", "localhost"),
		getEnv("POSTGRES_PORT", "5432"),
		getEnv("POSTGRES_DB", "nex_wallet"),
		getEnv("POSTGRES_SSLMODE", "disable"),
	)
}

func SetupTestDB() (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, TestDSN())
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	return pool, nil
}

// CleanupUser removes every row owned by userID.
func CleanupUser(ctx context.Context, pool *pgxpool.Pool, userID uuid.UUID) error {
	queries := []string{
		"DELETE FROM transactions WHERE user_id = $1",
		"DELETE FROM crypto_assets WHERE user_id = $1",
	}
	for _, q := range queries {
		if _, err := pool.Exec(ctx, q, userID); err != nil {
			return fmt.Errorf("cleanup %q: %w", q, err)
		}
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
