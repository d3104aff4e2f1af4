package ledger

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrNoUser                 = errors.New("no signed-in user")
	ErrInvalidAmount          = errors.New("amount must be positive")
	ErrInvalidSymbol          = errors.New("symbol is required")
	ErrInvalidTradeType       = errors.New("trade type must be buy or sell")
	ErrMissingRecipient       = errors.New("recipient address is required")
	ErrAssetNotFound          = errors.New("asset not found")
	ErrInsufficientBalance    = errors.New("insufficient balance")
	ErrInsufficientFeeBalance = errors.New("insufficient fee asset balance")
	ErrBelowMinimum           = errors.New("transfer below minimum")
	ErrWorkflowInProgress     = errors.New("another workflow is in progress")
	ErrAmountOutOfRange       = errors.New("amount out of range")
	ErrMalformedRequest       = errors.New("invalid request")
)

// ValidationError is returned when a workflow is rejected before any write.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Reason == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %s", e.Err, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(field string, err error, reason string) error {
	return &ValidationError{Field: field, Err: err, Reason: reason}
}

// DivergenceError means a transaction row was written but a later write in
// the same workflow failed: the ledger and the balances disagree.
type DivergenceError struct {
	Workflow      string
	TransactionID uuid.UUID
	Symbol        string
	Step          string
	Err           error
}

func (e *DivergenceError) Error() string {
	return fmt.Sprintf("transaction %s recorded but balance not updated (%s %s at %s): %v",
		e.TransactionID, e.Workflow, e.Symbol, e.Step, e.Err)
}

func (e *DivergenceError) Unwrap() error { return e.Err }

// IsValidation reports whether err rejected a workflow before any write.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v) || errors.Is(err, ErrWorkflowInProgress) || errors.Is(err, ErrNoUser)
}

// Amounts are stored as numeric(38,18).
const (
	MaxAmountScale         = 18
	MaxAmountIntegerDigits = 20
)

// CheckAmount rejects quantities the ledger cannot store exactly. It looks
// only at the exponent and digit count, so it is cheap for any input.
func CheckAmount(d decimal.Decimal) error {
	exp := int64(d.Exponent())
	if exp < -MaxAmountScale {
		return fmt.Errorf("%w: more than %d decimal places", ErrAmountOutOfRange, MaxAmountScale)
	}
	if int64(d.NumDigits())+exp > MaxAmountIntegerDigits {
		return fmt.Errorf("%w: more than %d integer digits", ErrAmountOutOfRange, MaxAmountIntegerDigits)
	}
	return nil
}
