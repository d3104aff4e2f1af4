package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/2001-daminho/nexcrypto/services/wallet/internal/storage"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *fixedClock {
	return &fixedClock{now: time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)}
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeBackend struct {
	mu    sync.Mutex
	clock *fixedClock
	seq   int

	assets map[uuid.UUID]storage.AssetRow
	txs    []storage.TransactionRow
	txSeq  map[uuid.UUID]int

	queryErr    error
	updateErr   error
	insertTxErr map[int]error
	onInsertTx  func()

	queryCalls       int
	insertTxCalls    int
	insertAssetCalls int
	updateCalls      int
}

func newFakeBackend(clock *fixedClock) *fakeBackend {
	return &fakeBackend{
		clock:       clock,
		assets:      make(map[uuid.UUID]storage.AssetRow),
		txSeq:       make(map[uuid.UUID]int),
		insertTxErr: make(map[int]error),
	}
}

func (b *fakeBackend) addAsset(userID uuid.UUID, symbol, amount string) uuid.UUID {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := uuid.New()
	now := b.clock.Now()
	b.assets[id] = storage.AssetRow{ID: id, UserID: userID, Symbol: symbol, Name: symbol, Amount: amount, CreatedAt: now, UpdatedAt: now}
	return id
}

func (b *fakeBackend) addTx(row storage.TransactionRow) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	b.seq++
	b.txSeq[row.ID] = b.seq
	b.txs = append(b.txs, row)
}

func (b *fakeBackend) setQueryErr(err error) {
	b.mu.Lock()
	b.queryErr = err
	b.mu.Unlock()
}

func (b *fakeBackend) setUpdateErr(err error) {
	b.mu.Lock()
	b.updateErr = err
	b.mu.Unlock()
}

func (b *fakeBackend) amountOf(userID uuid.UUID, symbol string) (decimal.Decimal, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, a := range b.assets {
		if a.UserID == userID && a.Symbol == symbol {
			return decimal.RequireFromString(a.Amount), true
		}
	}
	return decimal.Zero, false
}

func (b *fakeBackend) writes() (insertTx, insertAsset, update int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.insertTxCalls, b.insertAssetCalls, b.updateCalls
}

func (b *fakeBackend) txCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.txs)
}

func (b *fakeBackend) QueryAssets(_ context.Context, userID uuid.UUID) ([]storage.AssetRow, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queryCalls++
	if b.queryErr != nil {
		return nil, b.queryErr
	}
	var out []storage.AssetRow
	for _, a := range b.assets {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

func (b *fakeBackend) QueryTransactions(_ context.Context, userID uuid.UUID) ([]storage.TransactionRow, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.queryErr != nil {
		return nil, b.queryErr
	}
	var out []storage.TransactionRow
	for _, tx := range b.txs {
		if tx.UserID == userID {
			out = append(out, tx)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return b.txSeq[out[i].ID] > b.txSeq[out[j].ID]
	})
	return out, nil
}

func (b *fakeBackend) InsertTransaction(_ context.Context, rec storage.NewTransaction) (*storage.TransactionRow, error) {
	b.mu.Lock()
	b.insertTxCalls++
	call := b.insertTxCalls
	hook := b.onInsertTx
	b.mu.Unlock()

	if hook != nil {
		hook()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.insertTxErr[call]; err != nil {
		return nil, err
	}
	row := storage.TransactionRow{
		ID:               uuid.New(),
		UserID:           rec.UserID,
		Type:             rec.Type,
		Symbol:           rec.Symbol,
		Amount:           rec.Amount.String(),
		RecipientAddress: textOrNil(rec.RecipientAddress),
		TransactionHash:  textOrNil(rec.TransactionHash),
		Status:           rec.Status,
		PriceUSD:         decimalOrNil(rec.PriceUSD),
		GasFee:           decimalOrNil(rec.GasFee),
		CreatedAt:        b.clock.Now(),
	}
	b.seq++
	b.txSeq[row.ID] = b.seq
	b.txs = append(b.txs, row)
	return &row, nil
}

func (b *fakeBackend) InsertAsset(ctx context.Context, rec storage.NewAsset) (*storage.AssetRow, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.insertAssetCalls++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if b.updateErr != nil {
		return nil, b.updateErr
	}
	now := b.clock.Now()
	row := storage.AssetRow{
		ID:        uuid.New(),
		UserID:    rec.UserID,
		Symbol:    rec.Symbol,
		Name:      rec.Name,
		Amount:    rec.Amount.String(),
		ImageURL:  textOrNil(rec.ImageURL),
		CreatedAt: now,
		UpdatedAt: now,
	}
	b.assets[row.ID] = row
	return &row, nil
}

func (b *fakeBackend) UpdateAssetAmount(ctx context.Context, assetID uuid.UUID, amount decimal.Decimal, updatedAt time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.updateCalls++
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.updateErr != nil {
		return b.updateErr
	}
	row, ok := b.assets[assetID]
	if !ok {
		return storage.ErrNotFound
	}
	row.Amount = amount.String()
	row.UpdatedAt = updatedAt
	b.assets[assetID] = row
	return nil
}

func textOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func decimalOrNil(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}

type recorder struct {
	mu   sync.Mutex
	list []Notification
}

func (r *recorder) Notify(_ context.Context, n Notification) {
	r.mu.Lock()
	r.list = append(r.list, n)
	r.mu.Unlock()
}

func (r *recorder) all() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.list...)
}

func (r *recorder) reset() {
	r.mu.Lock()
	r.list = nil
	r.mu.Unlock()
}
