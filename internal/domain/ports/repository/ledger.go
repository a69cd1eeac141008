package repository

import (
	"context"

	"github.com/shopspring/decimal"
)

// LedgerRepository is the only writer of balances. Every mutation is durable
// before it returns; a failure to persist is reported as domain.ErrPersistence.
type LedgerRepository interface {
	// Get returns zero for unknown users.
	Get(ctx context.Context, tx Tx, userID int64) (decimal.Decimal, error)
	// Set overwrites the balance; negative amounts are rejected with ErrInvalidAmount.
	Set(ctx context.Context, tx Tx, userID int64, amount decimal.Decimal) (decimal.Decimal, error)
	// Add applies delta atomically per user. A result below zero is rejected with an
	// *domain.InsufficientFundsError and leaves the balance unchanged.
	Add(ctx context.Context, tx Tx, userID int64, delta decimal.Decimal) (decimal.Decimal, error)
	// ApplyOnce is Add tagged with an idempotency reference. A reference that was
	// already applied is a no-op and returns applied=false with the current balance.
	ApplyOnce(ctx context.Context, tx Tx, userID int64, delta decimal.Decimal, ref string) (balance decimal.Decimal, applied bool, err error)
	// HasApplied reports whether ref was applied.
	HasApplied(ctx context.Context, tx Tx, ref string) (bool, error)
}
