package ledger

import (
	"log/slog"
	"time"

	"github.com/2001-daminho/nexcrypto/services/wallet/internal/storage"
	"github.com/shopspring/decimal"
)

func parseQuantity(raw string) (decimal.Decimal, bool) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

func decorateAssets(rows []storage.AssetRow, book PriceBook, logger *slog.Logger) []Asset {
	out := make([]Asset, 0, len(rows))
	for _, row := range rows {
		qty, ok := parseQuantity(row.Amount)
		if !ok {
			logger.Warn("unparseable asset amount, using zero", "asset_id", row.ID, "amount", row.Amount)
		}
		image := ""
		if row.ImageURL != nil && *row.ImageURL != "" {
			image = *row.ImageURL
		} else {
			image = imageFor(row.Symbol)
		}
		out = append(out, Asset{
			ID:        row.ID,
			UserID:    row.UserID,
			Symbol:    canonicalSymbol(row.Symbol),
			Name:      row.Name,
			Quantity:  qty,
			ImageURL:  image,
			CreatedAt: row.CreatedAt,
			UpdatedAt: row.UpdatedAt,
		})
	}
	return reprice(out, book)
}

// reprice recomputes Price and Value in place and returns assets.
func reprice(assets []Asset, book PriceBook) []Asset {
	for i := range assets {
		assets[i].Price = book.Price(assets[i].Symbol)
		assets[i].Value = assets[i].Quantity.Mul(assets[i].Price)
	}
	return assets
}

func decorateTransactions(rows []storage.TransactionRow, logger *slog.Logger) []Transaction {
	out := make([]Transaction, 0, len(rows))
	for _, row := range rows {
		out = append(out, toTransaction(row, logger))
	}
	return out
}

// toTransaction coerces a stored row. Unknown type/status values become
// receive/completed and are logged; unparseable numbers become zero.
func toTransaction(row storage.TransactionRow, logger *slog.Logger) Transaction {
	tx := Transaction{
		ID:        row.ID,
		UserID:    row.UserID,
		Symbol:    canonicalSymbol(row.Symbol),
		CreatedAt: row.CreatedAt,
	}

	typ, ok := ParseTxType(row.Type)
	if !ok {
		logger.Warn("unrecognized transaction type, defaulting to receive", "transaction_id", row.ID, "type", row.Type)
		typ = TxReceive
	}
	tx.Type = typ

	status, ok := ParseTxStatus(row.Status)
	if !ok {
		logger.Warn("unrecognized transaction status, defaulting to completed", "transaction_id", row.ID, "status", row.Status)
		status = StatusCompleted
	}
	tx.Status = status

	amount, ok := parseQuantity(row.Amount)
	if !ok {
		logger.Warn("unparseable transaction amount, using zero", "transaction_id", row.ID, "amount", row.Amount)
	}
	tx.Amount = amount

	if row.PriceUSD != nil {
		if p, ok := parseQuantity(*row.PriceUSD); ok && !p.IsZero() {
			tx.Price = &p
		}
	}
	if row.GasFee != nil {
		if f, ok := parseQuantity(*row.GasFee); ok {
			tx.Fee = f
		}
	}
	if row.RecipientAddress != nil {
		tx.RecipientAddress = *row.RecipientAddress
	}
	if row.TransactionHash != nil {
		tx.TransactionHash = *row.TransactionHash
	}
	return tx
}

// ComputeTotals derives the portfolio aggregates. Today is the UTC calendar
// day of now. A transaction without a recorded price is valued at the
// fallback table price, or zero. Administrative corrections are not income
// or expense.
func ComputeTotals(assets []Asset, txs []Transaction, book PriceBook, now time.Time) Totals {
	totals := Totals{TotalBalance: decimal.Zero, TodayIncome: decimal.Zero, TodayExpense: decimal.Zero}
	for _, a := range assets {
		totals.TotalBalance = totals.TotalBalance.Add(a.Value)
	}

	today := utcDay(now)
	for _, tx := range txs {
		if utcDay(tx.CreatedAt) != today || tx.RecipientAddress == storage.CorrectionRecipient {
			continue
		}
		price := book.Fallback(tx.Symbol)
		if tx.Price != nil && !tx.Price.IsZero() {
			price = *tx.Price
		}
		value := tx.Amount.Mul(price)
		switch {
		case tx.Type.IsIncome():
			totals.TodayIncome = totals.TodayIncome.Add(value)
		case tx.Type.IsExpense():
			totals.TodayExpense = totals.TodayExpense.Add(value)
		}
	}
	return totals
}

func utcDay(t time.Time) string {
	return t.UTC().Format(time.DateOnly)
}
