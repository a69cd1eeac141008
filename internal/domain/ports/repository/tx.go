package repository

import "context"

// Tx is an opaque transaction handle. Its concrete type is backend-defined
// (pgx.Tx for postgres, always nil for the file store).
type Tx interface{}

// TransactionManager runs fn inside one storage transaction.
//
// Repositories MUST accept a nil tx and then run outside of any transaction.
// The file store has no multi-record transactions; its WithTx runs fn directly and
// the invoice flow relies on ledger references plus recovery instead.
type TransactionManager interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// NoTX makes non-transactional calls explicit at call sites.
var NoTX Tx
