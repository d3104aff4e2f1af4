package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/2001-daminho/nexcrypto/services/wallet/internal/identity"
	"github.com/2001-daminho/nexcrypto/services/wallet/internal/market"
	"github.com/2001-daminho/nexcrypto/services/wallet/internal/realtime"
	"github.com/2001-daminho/nexcrypto/services/wallet/internal/storage"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// Backend is the persistence contract the engine reads and writes through.
type Backend interface {
	QueryAssets(ctx context.Context, userID uuid.UUID) ([]storage.AssetRow, error)
	QueryTransactions(ctx context.Context, userID uuid.UUID) ([]storage.TransactionRow, error)
	InsertTransaction(ctx context.Context, rec storage.NewTransaction) (*storage.TransactionRow, error)
	InsertAsset(ctx context.Context, rec storage.NewAsset) (*storage.AssetRow, error)
	UpdateAssetAmount(ctx context.Context, assetID uuid.UUID, amount decimal.Decimal, updatedAt time.Time) error
}

// ChangeFeed delivers row change notifications scoped to one user and table.
type ChangeFeed interface {
	Subscribe(table string, userID uuid.UUID, onChange func(realtime.Change)) realtime.Subscription
}

// PriceSource yields the latest live quotes, or nothing when none are fresh.
type PriceSource interface {
	LiveQuotes(ctx context.Context) []market.Quote
}

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

const (
	defaultPriceInterval = time.Minute
	refreshTimeout       = 10 * time.Second
)

type Options struct {
	Backend        Backend
	Feed           ChangeFeed
	Prices         PriceSource
	Identity       identity.Provider
	FeePolicy      FeePolicy
	MinimumPolicy  MinimumTransferPolicy
	Notifier       Notifier
	Logger         *slog.Logger
	Metrics        *Metrics
	Clock          Clock
	FallbackPrices map[string]decimal.Decimal

	PriceRefreshInterval time.Duration
}

// Engine owns the asset and transaction view of the signed-in user and is
// the only path that mutates it.
type Engine struct {
	backend  Backend
	feed     ChangeFeed
	prices   PriceSource
	identity identity.Provider
	fees     FeePolicy
	minimum  MinimumTransferPolicy
	notifier Notifier
	logger   *slog.Logger
	metrics  *Metrics
	clock    Clock

	priceInterval time.Duration

	mu          sync.RWMutex
	user        *identity.User
	generation  uint64
	assets      []Asset
	txs         []Transaction
	totals      Totals
	book        PriceBook
	loading     int
	loaded      bool
	lastRefresh time.Time

	refreshMu sync.Mutex
	busy      atomic.Bool

	subsMu sync.Mutex
	subs   []realtime.Subscription

	triggers     chan struct{}
	stopIdentity func()
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	startOnce    sync.Once
	closeOnce    sync.Once
}

func NewEngine(opts Options) (*Engine, error) {
	if opts.Backend == nil {
		return nil, fmt.Errorf("backend is required")
	}
	if opts.Identity == nil {
		return nil, fmt.Errorf("identity provider is required")
	}
	if opts.FeePolicy == nil {
		opts.FeePolicy = NoFee{}
	}
	if opts.MinimumPolicy == nil {
		opts.MinimumPolicy = NoMinimum{}
	}
	if opts.Notifier == nil {
		opts.Notifier = nopNotifier{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = systemClock{}
	}
	if opts.FallbackPrices == nil {
		opts.FallbackPrices = DefaultPrices()
	}
	if opts.PriceRefreshInterval <= 0 {
		opts.PriceRefreshInterval = defaultPriceInterval
	}

	return &Engine{
		backend:       opts.Backend,
		feed:          opts.Feed,
		prices:        opts.Prices,
		identity:      opts.Identity,
		fees:          opts.FeePolicy,
		minimum:       opts.MinimumPolicy,
		notifier:      opts.Notifier,
		logger:        opts.Logger,
		metrics:       opts.Metrics,
		clock:         opts.Clock,
		priceInterval: opts.PriceRefreshInterval,
		book:          NewPriceBook(opts.FallbackPrices),
		totals:        zeroTotals(),
		triggers:      make(chan struct{}, 1),
	}, nil
}

func zeroTotals() Totals {
	return Totals{TotalBalance: decimal.Zero, TodayIncome: decimal.Zero, TodayExpense: decimal.Zero}
}

// Start binds the engine to its identity provider and runs the realtime
// sync loop and the periodic price refresh until Close or ctx is done.
func (e *Engine) Start(ctx context.Context) {
	e.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(ctx)
		e.cancel = cancel

		e.stopIdentity = e.identity.Subscribe(e.bindUser)
		e.bindUser(e.identity.CurrentUser())

		e.wg.Add(1)
		go e.syncLoop(ctx)

		if e.prices != nil {
			e.wg.Add(1)
			go e.priceLoop(ctx)
		}
	})
}

// Close stops the background loops and releases every subscription.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		if e.stopIdentity != nil {
			e.stopIdentity()
		}
		if e.cancel != nil {
			e.cancel()
		}
		e.wg.Wait()
		e.unsubscribeAll()
	})
}

func (e *Engine) unsubscribeAll() {
	e.subsMu.Lock()
	defer e.subsMu.Unlock()
	for _, s := range e.subs {
		s.Unsubscribe()
	}
	e.subs = nil
}

// bindUser tears down the previous user's subscriptions, clears state that
// belongs to another identity and subscribes for the new one.
func (e *Engine) bindUser(u *identity.User) {
	e.subsMu.Lock()
	defer e.subsMu.Unlock()

	for _, s := range e.subs {
		s.Unsubscribe()
	}
	e.subs = nil

	e.mu.Lock()
	if !sameUser(e.user, u) {
		e.assets = nil
		e.txs = nil
		e.totals = zeroTotals()
		e.loaded = false
		e.lastRefresh = time.Time{}
	}
	if u == nil {
		e.user = nil
	} else {
		cp := *u
		e.user = &cp
	}
	e.generation++
	e.mu.Unlock()

	if u == nil {
		return
	}
	if e.feed != nil {
		for _, table := range []string{realtime.TableAssets, realtime.TableTransactions} {
			e.subs = append(e.subs, e.feed.Subscribe(table, u.ID, func(realtime.Change) { e.trigger() }))
		}
	}
	e.trigger()
}

func sameUser(a, b *identity.User) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.ID == b.ID
}

// trigger schedules a refresh; bursts of changes collapse into one.
func (e *Engine) trigger() {
	select {
	case e.triggers <- struct{}{}:
	default:
	}
}

func (e *Engine) syncLoop(ctx context.Context) {
	defer e.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.triggers:
			rctx, cancel := context.WithTimeout(ctx, refreshTimeout)
			_ = e.refresh(rctx, "realtime", true)
			cancel()
		}
	}
}

func (e *Engine) priceLoop(ctx context.Context) {
	defer e.wg.Done()

	run := func() {
		pctx, cancel := context.WithTimeout(ctx, refreshTimeout)
		defer cancel()
		e.RefreshPrices(pctx)
	}

	run()
	ticker := time.NewTicker(e.priceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			run()
		}
	}
}

// Refresh re-reads the user's assets and transactions and recomputes every
// aggregate. Without a signed-in user it does nothing. On failure the
// previous state is kept, a notification is emitted and the error returned.
func (e *Engine) Refresh(ctx context.Context) error {
	return e.refresh(ctx, "manual", true)
}

func (e *Engine) refresh(ctx context.Context, trigger string, notifyOnError bool) error {
	e.refreshMu.Lock()
	defer e.refreshMu.Unlock()

	e.mu.Lock()
	if e.user == nil {
		e.mu.Unlock()
		return nil
	}
	user := *e.user
	gen := e.generation
	book := e.book
	e.loading++
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.loading--
		e.mu.Unlock()
	}()

	start := time.Now()
	var (
		assetRows []storage.AssetRow
		txRows    []storage.TransactionRow
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := e.backend.QueryAssets(gctx, user.ID)
		if err != nil {
			return fmt.Errorf("query assets: %w", err)
		}
		assetRows = rows
		return nil
	})
	g.Go(func() error {
		rows, err := e.backend.QueryTransactions(gctx, user.ID)
		if err != nil {
			return fmt.Errorf("query transactions: %w", err)
		}
		txRows = rows
		return nil
	})
	if err := g.Wait(); err != nil {
		e.metrics.ObserveRefresh(trigger, "error", time.Since(start))
		e.logger.Error("refresh failed", "user_id", user.ID, "trigger", trigger, "error", err)
		if notifyOnError {
			e.notify(ctx, Notification{
				UserID:   user.ID,
				Level:    LevelError,
				Title:    "Error",
				Message:  "Failed to fetch your assets",
				Workflow: "refresh",
			})
		}
		return err
	}

	assets := decorateAssets(assetRows, book, e.logger)
	txs := decorateTransactions(txRows, e.logger)
	now := e.clock.Now()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.generation != gen {
		// identity changed while the queries ran
		return nil
	}
	e.assets = reprice(assets, e.book)
	e.txs = txs
	e.totals = ComputeTotals(e.assets, e.txs, e.book, now)
	e.loaded = true
	e.lastRefresh = now
	e.metrics.ObserveRefresh(trigger, "ok", time.Since(start))
	return nil
}

// RefreshPrices merges the latest live quotes into the price book and
// revalues loaded assets without querying the backend. With no live quotes
// the book is left as it is.
func (e *Engine) RefreshPrices(ctx context.Context) {
	if e.prices == nil {
		return
	}
	quotes := e.prices.LiveQuotes(ctx)
	if len(quotes) == 0 {
		e.metrics.IncPriceRefresh("empty")
		return
	}

	e.mu.Lock()
	e.book = e.book.WithQuotes(quotes)
	e.assets = reprice(e.assets, e.book)
	e.totals = ComputeTotals(e.assets, e.txs, e.book, e.clock.Now())
	e.mu.Unlock()
	e.metrics.IncPriceRefresh("ok")
}

func (e *Engine) Snapshot() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()

	snap := Snapshot{
		Assets:       append([]Asset(nil), e.assets...),
		Transactions: append([]Transaction(nil), e.txs...),
		Totals:       e.totals,
		Prices:       e.book.Map(),
		Loading:      e.loading > 0,
		Sending:      e.busy.Load(),
		LastRefresh:  e.lastRefresh,
	}
	if e.user != nil {
		snap.UserID = e.user.ID
	}
	if snap.Assets == nil {
		snap.Assets = []Asset{}
	}
	if snap.Transactions == nil {
		snap.Transactions = []Transaction{}
	}
	return snap
}

func (e *Engine) currentUser() *identity.User {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.user == nil {
		return nil
	}
	u := *e.user
	return &u
}

func (e *Engine) findAsset(symbol string) (Asset, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, a := range e.assets {
		if a.Symbol == symbol {
			return a, true
		}
	}
	return Asset{}, false
}

func (e *Engine) priceOf(symbol string) decimal.Decimal {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.book.Price(symbol)
}

// ensureLoaded performs the first read for a user when no refresh has
// completed yet, so validation never runs against an empty view.
func (e *Engine) ensureLoaded(ctx context.Context) error {
	e.mu.RLock()
	loaded := e.loaded
	e.mu.RUnlock()
	if loaded {
		return nil
	}
	return e.refresh(ctx, "workflow", false)
}

func (e *Engine) notify(ctx context.Context, n Notification) {
	if n.At.IsZero() {
		n.At = e.clock.Now().UTC()
	}
	e.notifier.Notify(ctx, n)
}

func isDivergence(err error) (*DivergenceError, bool) {
	var d *DivergenceError
	ok := errors.As(err, &d)
	return d, ok
}
