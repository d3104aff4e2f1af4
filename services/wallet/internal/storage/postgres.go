package storage

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/2001-daminho/nexcrypto/services/wallet/internal/realtime"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAssetExists   = errors.New("asset already exists")
	ErrInvalidCursor = errors.New("invalid cursor")
)

const uniqueViolation = "23505"

// ChangePublisher receives a notification after every committed write.
type ChangePublisher interface {
	PublishChange(ctx context.Context, c realtime.Change) error
}

type Store struct {
	pool    *pgxpool.Pool
	changes ChangePublisher
	logger  *slog.Logger
	now     func() time.Time
}

func New(pool *pgxpool.Pool, changes ChangePublisher, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, changes: changes, logger: logger, now: time.Now}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const assetColumns = `id, user_id, symbol, name, amount::text, image_url, created_at, updated_at`

func scanAsset(row pgx.Row) (AssetRow, error) {
	var a AssetRow
	err := row.Scan(&a.ID, &a.UserID, &a.Symbol, &a.Name, &a.Amount, &a.ImageURL, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func (s *Store) QueryAssets(ctx context.Context, userID uuid.UUID) ([]AssetRow, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+assetColumns+` FROM crypto_assets WHERE user_id = $1 ORDER BY symbol`, userID)
	if err != nil {
		return nil, fmt.Errorf("query assets: %w", err)
	}
	defer rows.Close()

	items := make([]AssetRow, 0)
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("scan asset: %w", err)
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

func (s *Store) QueryTransactions(ctx context.Context, userID uuid.UUID) ([]TransactionRow, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, type, symbol, amount::text, recipient_address, transaction_hash,
		       status, price_usd::text, gas_fee::text, created_at
		FROM transactions
		WHERE user_id = $1
		ORDER BY created_at DESC, id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	items := make([]TransactionRow, 0)
	for rows.Next() {
		var tx TransactionRow
		if err := rows.Scan(&tx.ID, &tx.UserID, &tx.Type, &tx.Symbol, &tx.Amount, &tx.RecipientAddress,
			&tx.TransactionHash, &tx.Status, &tx.PriceUSD, &tx.GasFee, &tx.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		items = append(items, tx)
	}
	return items, rows.Err()
}

func (s *Store) InsertTransaction(ctx context.Context, rec NewTransaction) (*TransactionRow, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO transactions (user_id, type, symbol, amount, recipient_address, transaction_hash, status, price_usd, gas_fee)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at
	`, rec.UserID, rec.Type, rec.Symbol, rec.Amount.String(), nullableText(rec.RecipientAddress),
		nullableText(rec.TransactionHash), rec.Status, nullableDecimal(rec.PriceUSD), nullableDecimal(rec.GasFee))

	out := &TransactionRow{
		UserID:           rec.UserID,
		Type:             rec.Type,
		Symbol:           rec.Symbol,
		Amount:           rec.Amount.String(),
		RecipientAddress: nullableText(rec.RecipientAddress),
		TransactionHash:  nullableText(rec.TransactionHash),
		Status:           rec.Status,
		PriceUSD:         nullableDecimal(rec.PriceUSD),
		GasFee:           nullableDecimal(rec.GasFee),
	}
	if err := row.Scan(&out.ID, &out.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert transaction: %w", err)
	}

	s.publish(ctx, realtime.TableTransactions, realtime.OpInsert, out.UserID, out.ID)
	return out, nil
}

func (s *Store) InsertAsset(ctx context.Context, rec NewAsset) (*AssetRow, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO crypto_assets (user_id, symbol, name, amount, image_url)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+assetColumns,
		rec.UserID, rec.Symbol, rec.Name, rec.Amount.String(), nullableText(rec.ImageURL))

	a, err := scanAsset(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, ErrAssetExists
		}
		return nil, fmt.Errorf("insert asset: %w", err)
	}

	s.publish(ctx, realtime.TableAssets, realtime.OpInsert, a.UserID, a.ID)
	return &a, nil
}

// UpdateAssetAmount overwrites the stored quantity of one asset.
func (s *Store) UpdateAssetAmount(ctx context.Context, assetID uuid.UUID, amount decimal.Decimal, updatedAt time.Time) error {
	if updatedAt.IsZero() {
		updatedAt = s.now()
	}
	var userID uuid.UUID
	err := s.pool.QueryRow(ctx, `
		UPDATE crypto_assets SET amount = $2, updated_at = $3
		WHERE id = $1
		RETURNING user_id
	`, assetID, amount.String(), updatedAt.UTC()).Scan(&userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("update asset: %w", err)
	}

	s.publish(ctx, realtime.TableAssets, realtime.OpUpdate, userID, assetID)
	return nil
}

// CorrectionRecipient marks the audit transaction written by an
// administrative balance correction.
const CorrectionRecipient = "ADMIN_CORRECTION"

// Correction is the outcome of CorrectAssetAmount. Audit is nil when the
// amount did not change.
type Correction struct {
	Asset AssetRow
	Audit *TransactionRow
}

// CorrectAssetAmount sets an asset's amount and records the difference as a
// receive or send transaction in the same database transaction, so the
// ledger keeps explaining every balance.
func (s *Store) CorrectAssetAmount(ctx context.Context, assetID uuid.UUID, amount decimal.Decimal, at time.Time) (*Correction, error) {
	if at.IsZero() {
		at = s.now()
	}
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	var current string
	if err := tx.QueryRow(ctx, `SELECT amount::text FROM crypto_assets WHERE id = $1 FOR UPDATE`, assetID).Scan(&current); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("lock asset: %w", err)
	}
	previous, err := decimal.NewFromString(current)
	if err != nil {
		return nil, fmt.Errorf("parse stored amount %q: %w", current, err)
	}

	asset, err := scanAsset(tx.QueryRow(ctx, `
		UPDATE crypto_assets SET amount = $2, updated_at = $3
		WHERE id = $1
		RETURNING `+assetColumns,
		assetID, amount.String(), at.UTC()))
	if err != nil {
		return nil, fmt.Errorf("update asset: %w", err)
	}

	out := &Correction{Asset: asset}
	delta := amount.Sub(previous)
	if !delta.IsZero() {
		typ := "receive"
		if delta.IsNegative() {
			typ = "send"
		}
		recipient := CorrectionRecipient
		audit := &TransactionRow{
			UserID:           asset.UserID,
			Type:             typ,
			Symbol:           asset.Symbol,
			Amount:           delta.Abs().String(),
			RecipientAddress: &recipient,
			Status:           "completed",
		}
		if err := tx.QueryRow(ctx, `
			INSERT INTO transactions (user_id, type, symbol, amount, recipient_address, status)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id, created_at
		`, audit.UserID, audit.Type, audit.Symbol, audit.Amount, recipient, audit.Status).Scan(&audit.ID, &audit.CreatedAt); err != nil {
			return nil, fmt.Errorf("record correction: %w", err)
		}
		out.Audit = audit
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	committed = true

	s.publish(ctx, realtime.TableAssets, realtime.OpUpdate, asset.UserID, asset.ID)
	if out.Audit != nil {
		s.publish(ctx, realtime.TableTransactions, realtime.OpInsert, asset.UserID, out.Audit.ID)
	}
	return out, nil
}

// ListAllAssets pages through every user's assets for administrators in
// (created_at, id) order; amount updates do not move a row between pages.
func (s *Store) ListAllAssets(ctx context.Context, limit int, cursor string) ([]AssetRow, string, error) {
	limit = clampLimit(limit)

	query := `SELECT ` + assetColumns + ` FROM crypto_assets`
	args := []any{}
	limitParam := 1

	if cursor != "" {
		ts, id, err := decodeCursor(cursor)
		if err != nil {
			return nil, "", err
		}
		query += " WHERE (created_at, id) > ($1, $2)"
		args = append(args, ts, id)
		limitParam = 3
	}

	query += fmt.Sprintf(" ORDER BY created_at, id LIMIT $%d", limitParam)
	args = append(args, limit+1)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()

	items := make([]AssetRow, 0, limit)
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, "", err
		}
		items = append(items, a)
	}

	var nextCursor string
	if len(items) > limit {
		items = items[:limit]
		last := items[limit-1]
		nextCursor = encodeCursor(last.CreatedAt, last.ID)
	}

	return items, nextCursor, rows.Err()
}

func (s *Store) publish(ctx context.Context, table string, op realtime.Op, userID, rowID uuid.UUID) {
	if s.changes == nil {
		return
	}
	c := realtime.Change{Table: table, Op: op, UserID: userID, RowID: rowID, At: s.now().UTC()}
	if err := s.changes.PublishChange(context.WithoutCancel(ctx), c); err != nil {
		s.logger.Warn("change publish failed", "table", table, "row_id", rowID, "error", err)
	}
}

func nullableText(v string) *string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return &v
}

func nullableDecimal(v *decimal.Decimal) *string {
	if v == nil {
		return nil
	}
	s := v.String()
	return &s
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > 200 {
		return 200
	}
	return limit
}

func encodeCursor(ts time.Time, id uuid.UUID) string {
	payload := fmt.Sprintf("%s|%s", ts.UTC().Format(time.RFC3339Nano), id.String())
	return base64.RawURLEncoding.EncodeToString([]byte(payload))
}

func decodeCursor(cursor string) (time.Time, uuid.UUID, error) {
	decoded, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return time.Time{}, uuid.Nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	parts := strings.SplitN(string(decoded), "|", 2)
	if len(parts) != 2 {
		return time.Time{}, uuid.Nil, ErrInvalidCursor
	}
	ts, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return time.Time{}, uuid.Nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	id, err := uuid.Parse(parts[1])
	if err != nil {
		return time.Time{}, uuid.Nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	return ts, id, nil
}
