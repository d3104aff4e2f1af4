package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/2001-daminho/nexcrypto/services/wallet/internal/identity"
	"github.com/2001-daminho/nexcrypto/services/wallet/internal/storage"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// FeeRecipient marks the audit transaction that records a transfer fee.
const FeeRecipient = "GAS_FEE"

const (
	WorkflowTransfer = "transfer"
	WorkflowTrade    = "trade"
	WorkflowReceive  = "receive"
)

type TransferRequest struct {
	Symbol           string
	Amount           decimal.Decimal
	RecipientAddress string
}

type TransferResult struct {
	Transaction    Transaction  `json:"transaction"`
	FeeTransaction *Transaction `json:"fee_transaction,omitempty"`
	Fee            Fee          `json:"fee"`
}

type TradeRequest struct {
	Type   TxType
	Symbol string
	Amount decimal.Decimal
}

type ReceiveRequest struct {
	Symbol      string
	Amount      decimal.Decimal
	FromAddress string
}

// ExecuteTransfer sends amount of symbol to recipient. Writes run in order:
// principal transaction, source debit, then the fee debit and fee record.
// A failure after the principal transaction is recorded returns a
// *DivergenceError.
func (e *Engine) ExecuteTransfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	user, err := e.begin()
	if err != nil {
		e.report(ctx, WorkflowTransfer, userID(e.currentUser()), err, "")
		return nil, err
	}
	defer e.end()

	res, err := e.transfer(ctx, user, req)
	e.afterWrite(ctx, err)

	msg := ""
	if err == nil {
		msg = fmt.Sprintf("Sent %s %s to %s", res.Transaction.Amount, strings.ToUpper(res.Transaction.Symbol), res.Transaction.RecipientAddress)
	}
	e.report(ctx, WorkflowTransfer, user.ID, err, msg)
	return res, err
}

func (e *Engine) transfer(ctx context.Context, user *identity.User, req TransferRequest) (*TransferResult, error) {
	symbol := canonicalSymbol(req.Symbol)
	if symbol == "" {
		return nil, invalid("symbol", ErrInvalidSymbol, "")
	}
	if !req.Amount.IsPositive() {
		return nil, invalid("amount", ErrInvalidAmount, "")
	}
	if err := CheckAmount(req.Amount); err != nil {
		return nil, invalid("amount", err, "")
	}
	recipient := strings.TrimSpace(req.RecipientAddress)
	if recipient == "" {
		return nil, invalid("recipient_address", ErrMissingRecipient, "")
	}
	if err := e.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	asset, ok := e.findAsset(symbol)
	if !ok {
		return nil, invalid("symbol", ErrAssetNotFound, fmt.Sprintf("you don't have any %s", strings.ToUpper(symbol)))
	}
	unitPrice := asset.Price

	if allowed, reason := e.minimum.Allow(req.Amount, unitPrice); !allowed {
		return nil, invalid("amount", ErrBelowMinimum, reason)
	}

	fee := e.fees.Fee(req.Amount, symbol, unitPrice)
	if !fee.Amount.IsPositive() {
		fee.Amount = decimal.Zero
	}
	fee.Symbol = canonicalSymbol(fee.Symbol)
	if fee.Symbol == "" {
		fee.Symbol = symbol
	}
	hasFee := fee.Amount.IsPositive()
	sameCurrency := fee.Symbol == symbol

	debit := req.Amount
	if hasFee && sameCurrency {
		debit = debit.Add(fee.Amount)
	}
	if asset.Quantity.LessThan(debit) {
		return nil, invalid("amount", ErrInsufficientBalance,
			fmt.Sprintf("need %s %s, have %s", debit, strings.ToUpper(symbol), asset.Quantity))
	}

	var feeAsset Asset
	if hasFee && !sameCurrency {
		feeAsset, ok = e.findAsset(fee.Symbol)
		if !ok || feeAsset.Quantity.LessThan(fee.Amount) {
			return nil, invalid("fee", ErrInsufficientFeeBalance,
				fmt.Sprintf("you need at least %s %s for fees", fee.Amount, strings.ToUpper(fee.Symbol)))
		}
	}

	var gas *decimal.Decimal
	if hasFee {
		gas = &fee.Amount
	}
	row, err := e.backend.InsertTransaction(ctx, storage.NewTransaction{
		UserID:           user.ID,
		Type:             string(TxSend),
		Symbol:           symbol,
		Amount:           req.Amount,
		RecipientAddress: recipient,
		Status:           string(StatusCompleted),
		PriceUSD:         positive(unitPrice),
		GasFee:           gas,
	})
	if err != nil {
		return nil, fmt.Errorf("record transfer: %w", err)
	}

	// The first write is acknowledged: the rest runs to completion.
	wctx := context.WithoutCancel(ctx)
	now := e.clock.Now()
	res := &TransferResult{Transaction: toTransaction(*row, e.logger), Fee: fee}
	diverge := func(step string, err error) error {
		return &DivergenceError{Workflow: WorkflowTransfer, TransactionID: row.ID, Symbol: symbol, Step: step, Err: err}
	}

	if err := e.backend.UpdateAssetAmount(wctx, asset.ID, asset.Quantity.Sub(debit), now); err != nil {
		return res, diverge("debit_source", err)
	}
	if !hasFee {
		return res, nil
	}

	feePrice := unitPrice
	if !sameCurrency {
		feePrice = feeAsset.Price
		if err := e.backend.UpdateAssetAmount(wctx, feeAsset.ID, feeAsset.Quantity.Sub(fee.Amount), now); err != nil {
			return res, diverge("debit_fee", err)
		}
	}
	feeRow, err := e.backend.InsertTransaction(wctx, storage.NewTransaction{
		UserID:           user.ID,
		Type:             string(TxSend),
		Symbol:           fee.Symbol,
		Amount:           fee.Amount,
		RecipientAddress: FeeRecipient,
		Status:           string(StatusCompleted),
		PriceUSD:         positive(feePrice),
	})
	if err != nil {
		return res, diverge("record_fee", err)
	}
	feeTx := toTransaction(*feeRow, e.logger)
	res.FeeTransaction = &feeTx
	return res, nil
}

// ExecuteTrade records a simulated buy or sell at the current price. A sell
// is rejected before any write when the holding is missing or too small.
func (e *Engine) ExecuteTrade(ctx context.Context, req TradeRequest) (*Transaction, error) {
	user, err := e.begin()
	if err != nil {
		e.report(ctx, WorkflowTrade, userID(e.currentUser()), err, "")
		return nil, err
	}
	defer e.end()

	tx, err := e.trade(ctx, user, req)
	e.afterWrite(ctx, err)

	msg := ""
	if err == nil {
		verb := "Bought"
		if tx.Type == TxSell {
			verb = "Sold"
		}
		msg = fmt.Sprintf("%s %s %s", verb, tx.Amount, strings.ToUpper(tx.Symbol))
	}
	e.report(ctx, WorkflowTrade, user.ID, err, msg)
	return tx, err
}

func (e *Engine) trade(ctx context.Context, user *identity.User, req TradeRequest) (*Transaction, error) {
	typ, ok := ParseTxType(string(req.Type))
	if !ok || (typ != TxBuy && typ != TxSell) {
		return nil, invalid("type", ErrInvalidTradeType, "")
	}
	req.Type = typ
	symbol := canonicalSymbol(req.Symbol)
	if symbol == "" {
		return nil, invalid("symbol", ErrInvalidSymbol, "")
	}
	if !req.Amount.IsPositive() {
		return nil, invalid("amount", ErrInvalidAmount, "")
	}
	if err := CheckAmount(req.Amount); err != nil {
		return nil, invalid("amount", err, "")
	}
	if err := e.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	asset, exists := e.findAsset(symbol)
	if req.Type == TxSell {
		if !exists {
			return nil, invalid("symbol", ErrAssetNotFound, fmt.Sprintf("you don't have any %s", strings.ToUpper(symbol)))
		}
		if asset.Quantity.LessThan(req.Amount) {
			return nil, invalid("amount", ErrInsufficientBalance,
				fmt.Sprintf("need %s %s, have %s", req.Amount, strings.ToUpper(symbol), asset.Quantity))
		}
	}

	row, err := e.backend.InsertTransaction(ctx, storage.NewTransaction{
		UserID:   user.ID,
		Type:     string(req.Type),
		Symbol:   symbol,
		Amount:   req.Amount,
		Status:   string(StatusCompleted),
		PriceUSD: positive(e.priceOf(symbol)),
	})
	if err != nil {
		return nil, fmt.Errorf("record %s: %w", req.Type, err)
	}
	tx := toTransaction(*row, e.logger)

	delta := req.Amount
	if req.Type == TxSell {
		delta = delta.Neg()
	}
	if err := e.applyDelta(context.WithoutCancel(ctx), user, symbol, asset, exists, delta); err != nil {
		return &tx, &DivergenceError{Workflow: WorkflowTrade, TransactionID: row.ID, Symbol: symbol, Step: "update_balance", Err: err}
	}
	return &tx, nil
}

// ExecuteReceive records an incoming transfer and credits the holding,
// creating it on first receipt.
func (e *Engine) ExecuteReceive(ctx context.Context, req ReceiveRequest) (*Transaction, error) {
	user, err := e.begin()
	if err != nil {
		e.report(ctx, WorkflowReceive, userID(e.currentUser()), err, "")
		return nil, err
	}
	defer e.end()

	tx, err := e.receive(ctx, user, req)
	e.afterWrite(ctx, err)

	msg := ""
	if err == nil {
		msg = fmt.Sprintf("Received %s %s", tx.Amount, strings.ToUpper(tx.Symbol))
	}
	e.report(ctx, WorkflowReceive, user.ID, err, msg)
	return tx, err
}

func (e *Engine) receive(ctx context.Context, user *identity.User, req ReceiveRequest) (*Transaction, error) {
	symbol := canonicalSymbol(req.Symbol)
	if symbol == "" {
		return nil, invalid("symbol", ErrInvalidSymbol, "")
	}
	if !req.Amount.IsPositive() {
		return nil, invalid("amount", ErrInvalidAmount, "")
	}
	if err := CheckAmount(req.Amount); err != nil {
		return nil, invalid("amount", err, "")
	}
	if err := e.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	asset, exists := e.findAsset(symbol)

	row, err := e.backend.InsertTransaction(ctx, storage.NewTransaction{
		UserID:           user.ID,
		Type:             string(TxReceive),
		Symbol:           symbol,
		Amount:           req.Amount,
		RecipientAddress: strings.TrimSpace(req.FromAddress),
		Status:           string(StatusCompleted),
		PriceUSD:         positive(e.priceOf(symbol)),
	})
	if err != nil {
		return nil, fmt.Errorf("record receive: %w", err)
	}
	tx := toTransaction(*row, e.logger)

	if err := e.applyDelta(context.WithoutCancel(ctx), user, symbol, asset, exists, req.Amount); err != nil {
		return &tx, &DivergenceError{Workflow: WorkflowReceive, TransactionID: row.ID, Symbol: symbol, Step: "update_balance", Err: err}
	}
	return &tx, nil
}

// applyDelta adjusts an existing holding or creates a new one.
func (e *Engine) applyDelta(ctx context.Context, user *identity.User, symbol string, asset Asset, exists bool, delta decimal.Decimal) error {
	if exists {
		return e.backend.UpdateAssetAmount(ctx, asset.ID, asset.Quantity.Add(delta), e.clock.Now())
	}
	_, err := e.backend.InsertAsset(ctx, storage.NewAsset{
		UserID:   user.ID,
		Symbol:   symbol,
		Name:     displayName(symbol),
		Amount:   delta,
		ImageURL: imageFor(symbol),
	})
	return err
}

// Reject reports a request for workflow that was refused before it could be
// decoded, with the same single notification a workflow rejection emits.
func (e *Engine) Reject(ctx context.Context, workflow, reason string) error {
	err := invalid("request", ErrMalformedRequest, reason)
	e.report(ctx, workflow, userID(e.currentUser()), err, "")
	return err
}

// begin claims the engine for one workflow.
func (e *Engine) begin() (*identity.User, error) {
	if !e.busy.CompareAndSwap(false, true) {
		return nil, ErrWorkflowInProgress
	}
	user := e.currentUser()
	if user == nil {
		e.busy.Store(false)
		return nil, ErrNoUser
	}
	return user, nil
}

func (e *Engine) end() {
	e.busy.Store(false)
}

// afterWrite resynchronizes from the backend once anything was written.
// The refresh is quiet; the workflow's own notification covers the outcome.
func (e *Engine) afterWrite(ctx context.Context, err error) {
	if err != nil {
		if _, ok := isDivergence(err); !ok {
			return
		}
	}
	_ = e.refresh(context.WithoutCancel(ctx), "workflow", false)
}

// report emits the single notification for a workflow outcome.
func (e *Engine) report(ctx context.Context, workflow string, user uuid.UUID, err error, successMsg string) {
	n := Notification{UserID: user, Workflow: workflow}

	switch d, divergent := isDivergence(err); {
	case err == nil:
		e.metrics.IncWorkflow(workflow, "success")
		n.Level = LevelSuccess
		n.Title = "Success"
		n.Message = successMsg
	case divergent:
		e.metrics.IncWorkflow(workflow, "divergence")
		e.metrics.IncDivergence(workflow, d.Step)
		e.logger.Error("ledger divergence",
			"workflow", workflow, "user_id", user, "transaction_id", d.TransactionID,
			"symbol", d.Symbol, "step", d.Step, "error", d.Err)
		n.Level = LevelError
		n.Title = "Transaction recorded but balance not updated"
		n.Message = fmt.Sprintf("Transaction %s was recorded but your %s balance was not updated. It will be reconciled.",
			d.TransactionID, strings.ToUpper(d.Symbol))
	case IsValidation(err):
		e.metrics.IncWorkflow(workflow, "rejected")
		n.Level = LevelError
		n.Title = rejectionTitle(err)
		n.Message = err.Error()
	default:
		e.metrics.IncWorkflow(workflow, "failed")
		e.logger.Error("workflow failed", "workflow", workflow, "user_id", user, "error", err)
		n.Level = LevelError
		n.Title = "Transaction failed"
		n.Message = "The transaction could not be completed. Please try again."
	}
	e.notify(ctx, n)
}

func rejectionTitle(err error) string {
	switch {
	case errors.Is(err, ErrNoUser):
		return "Not authenticated"
	case errors.Is(err, ErrWorkflowInProgress):
		return "Transaction in progress"
	case errors.Is(err, ErrAssetNotFound):
		return "Asset not found"
	case errors.Is(err, ErrInsufficientBalance):
		return "Insufficient balance"
	case errors.Is(err, ErrInsufficientFeeBalance):
		return "Insufficient gas fee"
	case errors.Is(err, ErrBelowMinimum):
		return "Below minimum transfer"
	default:
		return "Invalid request"
	}
}

func userID(u *identity.User) uuid.UUID {
	if u == nil {
		return uuid.Nil
	}
	return u.ID
}

func positive(d decimal.Decimal) *decimal.Decimal {
	if !d.IsPositive() {
		return nil
	}
	return &d
}
