package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/2001-daminho/nexcrypto/services/wallet/internal/identity"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
)

func TestTradeBuyThenSell(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx := context.Background()

	tx, err := h.engine.ExecuteTrade(ctx, TradeRequest{Type: TxBuy, Symbol: "btc", Amount: dec("2")})
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if tx.Type != TxBuy || !tx.Amount.Equal(dec("2")) || tx.Price == nil || !tx.Price.Equal(dec("50000")) {
		t.Fatalf("unexpected buy transaction %+v", tx)
	}
	btc := h.asset(t, "btc")
	if !btc.Quantity.Equal(dec("2")) || !btc.Value.Equal(dec("100000")) {
		t.Fatalf("after buy: quantity %s value %s", btc.Quantity, btc.Value)
	}
	if btc.Name != "Bitcoin" || btc.ImageURL == "" {
		t.Fatalf("expected synthesized name and image, got %+v", btc)
	}

	if _, err := h.engine.ExecuteTrade(ctx, TradeRequest{Type: TxSell, Symbol: "BTC", Amount: dec("1")}); err != nil {
		t.Fatalf("sell: %v", err)
	}
	btc = h.asset(t, "btc")
	if !btc.Quantity.Equal(dec("1")) || !btc.Value.Equal(dec("50000")) {
		t.Fatalf("after sell: quantity %s value %s", btc.Quantity, btc.Value)
	}
	snap := h.engine.Snapshot()
	if len(snap.Transactions) != 2 || snap.Transactions[0].Type != TxSell {
		t.Fatalf("expected sell appended, got %+v", snap.Transactions)
	}

	insertTx, insertAsset, update := h.backend.writes()
	_, err = h.engine.ExecuteTrade(ctx, TradeRequest{Type: TxSell, Symbol: "btc", Amount: dec("5")})
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	if a, b, c := h.backend.writes(); a != insertTx || b != insertAsset || c != update {
		t.Fatalf("rejected sell performed writes")
	}
	if !h.asset(t, "btc").Quantity.Equal(dec("1")) || len(h.engine.Snapshot().Transactions) != 2 {
		t.Fatalf("rejected sell changed state")
	}
}

func TestTradeSellWithoutAsset(t *testing.T) {
	h := newHarness(t, nil, nil)
	_, err := h.engine.ExecuteTrade(context.Background(), TradeRequest{Type: TxSell, Symbol: "eth", Amount: dec("1")})
	if !errors.Is(err, ErrAssetNotFound) || !IsValidation(err) {
		t.Fatalf("expected asset not found validation error, got %v", err)
	}
	if a, b, c := h.backend.writes(); a+b+c != 0 {
		t.Fatalf("expected no writes")
	}
}

func TestTradeRejectsInvalidType(t *testing.T) {
	h := newHarness(t, nil, nil)
	_, err := h.engine.ExecuteTrade(context.Background(), TradeRequest{Type: TxSend, Symbol: "eth", Amount: dec("1")})
	if !errors.Is(err, ErrInvalidTradeType) {
		t.Fatalf("expected invalid trade type, got %v", err)
	}
}

func TestTradeNormalizesType(t *testing.T) {
	h := newHarness(t, nil, nil)
	tx, err := h.engine.ExecuteTrade(context.Background(), TradeRequest{Type: TxType(" BUY "), Symbol: "eth", Amount: dec("1")})
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if tx.Type != TxBuy {
		t.Fatalf("expected buy, got %q", tx.Type)
	}
}

func TestWorkflowsRejectOutOfRangeAmounts(t *testing.T) {
	h := newHarness(t, nil, func(b *fakeBackend, userID uuid.UUID) {
		b.addAsset(userID, "eth", "10")
	})
	ctx := context.Background()
	huge := decimal.RequireFromString("1e3000000")
	tiny := decimal.RequireFromString("1e-30")

	for _, amount := range []decimal.Decimal{huge, tiny} {
		h.notes.reset()
		_, err := h.engine.ExecuteTransfer(ctx, TransferRequest{Symbol: "eth", Amount: amount, RecipientAddress: "addr"})
		if !errors.Is(err, ErrAmountOutOfRange) || !IsValidation(err) {
			t.Fatalf("transfer exp %d: expected out of range, got %v", amount.Exponent(), err)
		}
		_, err = h.engine.ExecuteTrade(ctx, TradeRequest{Type: TxBuy, Symbol: "btc", Amount: amount})
		if !errors.Is(err, ErrAmountOutOfRange) {
			t.Fatalf("trade: expected out of range, got %v", err)
		}
		_, err = h.engine.ExecuteReceive(ctx, ReceiveRequest{Symbol: "eth", Amount: amount})
		if !errors.Is(err, ErrAmountOutOfRange) {
			t.Fatalf("receive: expected out of range, got %v", err)
		}
		if notes := h.notes.all(); len(notes) != 3 {
			t.Fatalf("expected one notification per rejection, got %d", len(notes))
		}
	}
	if a, b, c := h.backend.writes(); a+b+c != 0 {
		t.Fatalf("expected no writes, got %d %d %d", a, b, c)
	}
}

func TestCheckAmountBounds(t *testing.T) {
	cases := []struct {
		in string
		ok bool
	}{
		{"0.000000000000000001", true},
		{"0.0000000000000000001", false},
		{"99999999999999999999", true},
		{"100000000000000000000", false},
		{"12345678901234567890.123456789012345678", true},
		{"1e20", false},
		{"1e19", true},
	}
	for _, tc := range cases {
		err := CheckAmount(decimal.RequireFromString(tc.in))
		if (err == nil) != tc.ok {
			t.Fatalf("%s: expected ok=%v, got %v", tc.in, tc.ok, err)
		}
	}
}

func TestRejectEmitsOneNotification(t *testing.T) {
	h := newHarness(t, nil, nil)
	err := h.engine.Reject(context.Background(), WorkflowTrade, "type must be buy or sell")
	if !errors.Is(err, ErrMalformedRequest) || !IsValidation(err) {
		t.Fatalf("expected malformed request validation error, got %v", err)
	}
	notes := h.notes.all()
	if len(notes) != 1 || notes[0].Workflow != WorkflowTrade || notes[0].Level != LevelError {
		t.Fatalf("unexpected notifications %+v", notes)
	}
	if notes[0].UserID != h.user.ID {
		t.Fatalf("expected notification for %s, got %s", h.user.ID, notes[0].UserID)
	}
}

func TestTransferSameCurrencyPercentageFee(t *testing.T) {
	h := newHarness(t, func(o *Options) {
		o.FeePolicy = PercentageFee{Rate: dec("0.01")}
	}, func(b *fakeBackend, userID uuid.UUID) {
		b.addAsset(userID, "eth", "10")
	})

	res, err := h.engine.ExecuteTransfer(context.Background(), TransferRequest{Symbol: "eth", Amount: dec("1"), RecipientAddress: "addr"})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if !res.Fee.Amount.Equal(dec("0.01")) || res.Fee.Symbol != "eth" {
		t.Fatalf("unexpected fee %+v", res.Fee)
	}
	if amount, _ := h.backend.amountOf(h.user.ID, "eth"); !amount.Equal(dec("8.99")) {
		t.Fatalf("expected 8.99 eth stored, got %s", amount)
	}
	if eth := h.asset(t, "eth"); !eth.Quantity.Equal(dec("8.99")) {
		t.Fatalf("expected 8.99 eth in view, got %s", eth.Quantity)
	}

	insertTx, _, update := h.backend.writes()
	if insertTx != 2 || update != 1 {
		t.Fatalf("expected 2 transactions and 1 update, got %d and %d", insertTx, update)
	}
	if res.FeeTransaction == nil || res.FeeTransaction.RecipientAddress != FeeRecipient || !res.FeeTransaction.Amount.Equal(dec("0.01")) {
		t.Fatalf("unexpected fee transaction %+v", res.FeeTransaction)
	}
	if res.Transaction.RecipientAddress != "addr" || !res.Transaction.Amount.Equal(dec("1")) || !res.Transaction.Fee.Equal(dec("0.01")) {
		t.Fatalf("unexpected principal transaction %+v", res.Transaction)
	}
}

func TestTransferDistinctCurrencyFee(t *testing.T) {
	h := newHarness(t, func(o *Options) {
		o.FeePolicy = FlatFee{Amount: dec("0.001"), Symbol: "ETH"}
	}, func(b *fakeBackend, userID uuid.UUID) {
		b.addAsset(userID, "usdt", "100")
		b.addAsset(userID, "eth", "1")
	})

	res, err := h.engine.ExecuteTransfer(context.Background(), TransferRequest{Symbol: "usdt", Amount: dec("10"), RecipientAddress: "0xabc"})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	insertTx, _, update := h.backend.writes()
	if insertTx != 2 || update != 2 {
		t.Fatalf("expected 2 transactions and 2 updates, got %d and %d", insertTx, update)
	}
	if usdt, _ := h.backend.amountOf(h.user.ID, "usdt"); !usdt.Equal(dec("90")) {
		t.Fatalf("expected 90 usdt, got %s", usdt)
	}
	if eth, _ := h.backend.amountOf(h.user.ID, "eth"); !eth.Equal(dec("0.999")) {
		t.Fatalf("expected 0.999 eth, got %s", eth)
	}
	if res.FeeTransaction == nil || res.FeeTransaction.Symbol != "eth" || res.FeeTransaction.Price == nil || !res.FeeTransaction.Price.Equal(dec("2000")) {
		t.Fatalf("unexpected fee transaction %+v", res.FeeTransaction)
	}
}

func TestTransferInsufficientFeeBalance(t *testing.T) {
	cases := map[string]func(b *fakeBackend, userID uuid.UUID){
		"fee asset too small": func(b *fakeBackend, userID uuid.UUID) {
			b.addAsset(userID, "usdt", "100")
			b.addAsset(userID, "eth", "0.0001")
		},
		"fee asset missing": func(b *fakeBackend, userID uuid.UUID) {
			b.addAsset(userID, "usdt", "100")
		},
	}
	for name, seed := range cases {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, func(o *Options) {
				o.FeePolicy = FlatFee{Amount: dec("0.001"), Symbol: "eth"}
			}, seed)
			_, err := h.engine.ExecuteTransfer(context.Background(), TransferRequest{Symbol: "usdt", Amount: dec("10"), RecipientAddress: "0xabc"})
			if !errors.Is(err, ErrInsufficientFeeBalance) {
				t.Fatalf("expected insufficient fee balance, got %v", err)
			}
			if a, b, c := h.backend.writes(); a+b+c != 0 {
				t.Fatalf("expected no writes")
			}
		})
	}
}

func TestTransferCountsSameCurrencyFeeAgainstBalance(t *testing.T) {
	h := newHarness(t, func(o *Options) {
		o.FeePolicy = PercentageFee{Rate: dec("0.1")}
	}, func(b *fakeBackend, userID uuid.UUID) {
		b.addAsset(userID, "eth", "10")
	})
	_, err := h.engine.ExecuteTransfer(context.Background(), TransferRequest{Symbol: "eth", Amount: dec("10"), RecipientAddress: "addr"})
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	if a, b, c := h.backend.writes(); a+b+c != 0 {
		t.Fatalf("expected no writes")
	}
}

func TestMinimumTransferGate(t *testing.T) {
	h := newHarness(t, func(o *Options) {
		o.FallbackPrices = map[string]decimal.Decimal{"sol": dec("100")}
		o.MinimumPolicy = USDMinimum{Threshold: dec("1000")}
	}, func(b *fakeBackend, userID uuid.UUID) {
		b.addAsset(userID, "sol", "50")
	})
	ctx := context.Background()

	_, err := h.engine.ExecuteTransfer(ctx, TransferRequest{Symbol: "sol", Amount: dec("9"), RecipientAddress: "addr"})
	if !errors.Is(err, ErrBelowMinimum) {
		t.Fatalf("expected below minimum, got %v", err)
	}
	if a, _, _ := h.backend.writes(); a != 0 {
		t.Fatalf("rejected transfer wrote a transaction")
	}

	if _, err := h.engine.ExecuteTransfer(ctx, TransferRequest{Symbol: "sol", Amount: dec("10"), RecipientAddress: "addr"}); err != nil {
		t.Fatalf("transfer at the minimum: %v", err)
	}
	if sol, _ := h.backend.amountOf(h.user.ID, "sol"); !sol.Equal(dec("40")) {
		t.Fatalf("expected 40 sol, got %s", sol)
	}
}

func TestTransferValidation(t *testing.T) {
	cases := []struct {
		name string
		req  TransferRequest
		want error
	}{
		{"zero amount", TransferRequest{Symbol: "eth", Amount: decimal.Zero, RecipientAddress: "a"}, ErrInvalidAmount},
		{"negative amount", TransferRequest{Symbol: "eth", Amount: dec("-1"), RecipientAddress: "a"}, ErrInvalidAmount},
		{"missing recipient", TransferRequest{Symbol: "eth", Amount: dec("1"), RecipientAddress: "  "}, ErrMissingRecipient},
		{"missing symbol", TransferRequest{Amount: dec("1"), RecipientAddress: "a"}, ErrInvalidSymbol},
		{"unknown asset", TransferRequest{Symbol: "doge", Amount: dec("1"), RecipientAddress: "a"}, ErrAssetNotFound},
		{"overdraw", TransferRequest{Symbol: "eth", Amount: dec("3.5"), RecipientAddress: "a"}, ErrInsufficientBalance},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, nil, func(b *fakeBackend, userID uuid.UUID) {
				b.addAsset(userID, "eth", "3")
			})
			_, err := h.engine.ExecuteTransfer(context.Background(), tc.req)
			if !errors.Is(err, tc.want) || !IsValidation(err) {
				t.Fatalf("expected %v validation error, got %v", tc.want, err)
			}
			if a, b, c := h.backend.writes(); a+b+c != 0 {
				t.Fatalf("expected no writes")
			}
			notes := h.notes.all()
			if len(notes) != 1 || notes[0].Level != LevelError {
				t.Fatalf("expected one error notification, got %+v", notes)
			}
		})
	}
}

func TestTransferDivergence(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)
	h := newHarness(t, func(o *Options) {
		o.Metrics = metrics
	}, func(b *fakeBackend, userID uuid.UUID) {
		b.addAsset(userID, "eth", "5")
	})
	h.backend.setUpdateErr(errors.New("update timed out"))
	queries := h.backend.queryCalls

	res, err := h.engine.ExecuteTransfer(context.Background(), TransferRequest{Symbol: "eth", Amount: dec("1"), RecipientAddress: "addr"})
	var div *DivergenceError
	if !errors.As(err, &div) {
		t.Fatalf("expected divergence error, got %v", err)
	}
	if IsValidation(err) {
		t.Fatalf("divergence must not be reported as validation")
	}
	if res == nil || div.TransactionID != res.Transaction.ID || div.Step != "debit_source" {
		t.Fatalf("unexpected divergence %+v result %+v", div, res)
	}
	if h.backend.txCount() != 1 {
		t.Fatalf("expected the recorded transaction to remain, got %d", h.backend.txCount())
	}
	if eth, _ := h.backend.amountOf(h.user.ID, "eth"); !eth.Equal(dec("5")) {
		t.Fatalf("balance should be unchanged, got %s", eth)
	}
	if h.backend.queryCalls == queries {
		t.Fatalf("expected a resynchronizing refresh after divergence")
	}
	if len(h.engine.Snapshot().Transactions) != 1 {
		t.Fatalf("refresh should expose the recorded transaction")
	}

	notes := h.notes.all()
	if len(notes) != 1 || notes[0].Title != "Transaction recorded but balance not updated" {
		t.Fatalf("expected one divergence notification, got %+v", notes)
	}
	if got := testutil.ToFloat64(metrics.divergences.WithLabelValues("transfer", "debit_source")); got != 1 {
		t.Fatalf("expected divergence metric 1, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.workflows.WithLabelValues("transfer", "divergence")); got != 1 {
		t.Fatalf("expected workflow divergence metric 1, got %v", got)
	}
}

func TestTradeDivergenceOnFirstBuy(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.backend.setUpdateErr(errors.New("insert rejected"))

	tx, err := h.engine.ExecuteTrade(context.Background(), TradeRequest{Type: TxBuy, Symbol: "sol", Amount: dec("3")})
	var div *DivergenceError
	if !errors.As(err, &div) || div.Step != "update_balance" || div.Workflow != "trade" {
		t.Fatalf("expected trade divergence, got %v", err)
	}
	if tx == nil || tx.ID != div.TransactionID {
		t.Fatalf("expected the recorded transaction to be returned")
	}
}

func TestFirstWriteFailureIsNotDivergence(t *testing.T) {
	h := newHarness(t, nil, func(b *fakeBackend, userID uuid.UUID) {
		b.addAsset(userID, "eth", "5")
	})
	h.backend.insertTxErr[1] = errors.New("insert failed")

	_, err := h.engine.ExecuteTransfer(context.Background(), TransferRequest{Symbol: "eth", Amount: dec("1"), RecipientAddress: "addr"})
	if err == nil || IsValidation(err) {
		t.Fatalf("expected backend error, got %v", err)
	}
	if _, ok := isDivergence(err); ok {
		t.Fatalf("nothing was written; not a divergence")
	}
	if _, _, update := h.backend.writes(); update != 0 {
		t.Fatalf("balance update must not follow a failed insert")
	}
	notes := h.notes.all()
	if len(notes) != 1 || notes[0].Title != "Transaction failed" {
		t.Fatalf("expected one failure notification, got %+v", notes)
	}
}

func TestFeeRecordFailureIsDivergence(t *testing.T) {
	h := newHarness(t, func(o *Options) {
		o.FeePolicy = PercentageFee{Rate: dec("0.01")}
	}, func(b *fakeBackend, userID uuid.UUID) {
		b.addAsset(userID, "eth", "10")
	})
	h.backend.insertTxErr[2] = errors.New("insert failed")

	_, err := h.engine.ExecuteTransfer(context.Background(), TransferRequest{Symbol: "eth", Amount: dec("1"), RecipientAddress: "addr"})
	div, ok := isDivergence(err)
	if !ok || div.Step != "record_fee" {
		t.Fatalf("expected record_fee divergence, got %v", err)
	}
}

func TestWorkflowRunsToCompletionAfterCancel(t *testing.T) {
	h := newHarness(t, func(o *Options) {
		o.FeePolicy = FlatFee{Amount: dec("0.001"), Symbol: "eth"}
	}, func(b *fakeBackend, userID uuid.UUID) {
		b.addAsset(userID, "usdt", "100")
		b.addAsset(userID, "eth", "1")
	})
	ctx, cancel := context.WithCancel(context.Background())
	h.backend.onInsertTx = cancel

	if _, err := h.engine.ExecuteTransfer(ctx, TransferRequest{Symbol: "usdt", Amount: dec("10"), RecipientAddress: "addr"}); err != nil {
		t.Fatalf("transfer after cancellation: %v", err)
	}
	if usdt, _ := h.backend.amountOf(h.user.ID, "usdt"); !usdt.Equal(dec("90")) {
		t.Fatalf("expected 90 usdt, got %s", usdt)
	}
	if eth, _ := h.backend.amountOf(h.user.ID, "eth"); !eth.Equal(dec("0.999")) {
		t.Fatalf("expected 0.999 eth, got %s", eth)
	}
}

func TestDoubleSubmitIsRejected(t *testing.T) {
	h := newHarness(t, nil, func(b *fakeBackend, userID uuid.UUID) {
		b.addAsset(userID, "eth", "1")
	})

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	h.backend.onInsertTx = func() {
		once.Do(func() { close(entered) })
		<-release
	}

	done := make(chan error, 1)
	go func() {
		_, err := h.engine.ExecuteTransfer(context.Background(), TransferRequest{Symbol: "eth", Amount: dec("1"), RecipientAddress: "addr"})
		done <- err
	}()
	<-entered

	if !h.engine.Snapshot().Sending {
		t.Fatalf("expected sending flag during workflow")
	}
	_, err := h.engine.ExecuteTransfer(context.Background(), TransferRequest{Symbol: "eth", Amount: dec("1"), RecipientAddress: "addr"})
	if !errors.Is(err, ErrWorkflowInProgress) {
		t.Fatalf("expected workflow in progress, got %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first transfer: %v", err)
	}

	if insertTx, _, update := h.backend.writes(); insertTx != 1 || update != 1 {
		t.Fatalf("expected exactly one transfer written, got %d inserts %d updates", insertTx, update)
	}
	if eth, _ := h.backend.amountOf(h.user.ID, "eth"); !eth.IsZero() {
		t.Fatalf("expected zero eth, got %s", eth)
	}
	if h.engine.Snapshot().Sending {
		t.Fatalf("sending flag not cleared")
	}
}

func TestWorkflowWithoutUser(t *testing.T) {
	notes := &recorder{}
	engine, err := NewEngine(Options{Backend: newFakeBackend(newClock()), Identity: identity.NewSession(), Notifier: notes, Logger: quietLogger()})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	_, err = engine.ExecuteTrade(context.Background(), TradeRequest{Type: TxBuy, Symbol: "btc", Amount: dec("1")})
	if !errors.Is(err, ErrNoUser) {
		t.Fatalf("expected no user, got %v", err)
	}
	got := notes.all()
	if len(got) != 1 || got[0].Title != "Not authenticated" || got[0].UserID != uuid.Nil {
		t.Fatalf("unexpected notifications %+v", got)
	}
	if engine.Snapshot().Sending {
		t.Fatalf("busy flag leaked")
	}
}

func TestReceiveCreatesThenCredits(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx := context.Background()

	tx, err := h.engine.ExecuteReceive(ctx, ReceiveRequest{Symbol: "usdt", Amount: dec("25"), FromAddress: "0xsender"})
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if tx.Type != TxReceive || tx.RecipientAddress != "0xsender" {
		t.Fatalf("unexpected receive transaction %+v", tx)
	}
	if _, err := h.engine.ExecuteReceive(ctx, ReceiveRequest{Symbol: "usdt", Amount: dec("5")}); err != nil {
		t.Fatalf("second receive: %v", err)
	}
	if usdt := h.asset(t, "usdt"); !usdt.Quantity.Equal(dec("30")) {
		t.Fatalf("expected 30 usdt, got %s", usdt.Quantity)
	}
	if _, insertAsset, update := h.backend.writes(); insertAsset != 1 || update != 1 {
		t.Fatalf("expected one insert and one update, got %d and %d", insertAsset, update)
	}
}

func TestOneNotificationPerOutcome(t *testing.T) {
	h := newHarness(t, nil, func(b *fakeBackend, userID uuid.UUID) {
		b.addAsset(userID, "eth", "2")
	})
	ctx := context.Background()

	_, _ = h.engine.ExecuteTransfer(ctx, TransferRequest{Symbol: "eth", Amount: dec("1"), RecipientAddress: "addr"})
	_, _ = h.engine.ExecuteTransfer(ctx, TransferRequest{Symbol: "eth", Amount: dec("9"), RecipientAddress: "addr"})
	_, _ = h.engine.ExecuteTrade(ctx, TradeRequest{Type: TxBuy, Symbol: "btc", Amount: dec("0.1")})

	notes := h.notes.all()
	if len(notes) != 3 {
		t.Fatalf("expected 3 notifications, got %d: %+v", len(notes), notes)
	}
	if notes[0].Level != LevelSuccess || notes[1].Title != "Insufficient balance" || notes[2].Level != LevelSuccess {
		t.Fatalf("unexpected notifications %+v", notes)
	}
	for _, n := range notes {
		if n.UserID != h.user.ID || n.At.IsZero() {
			t.Fatalf("notification missing user or time: %+v", n)
		}
	}
}
