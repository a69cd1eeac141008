package filestore

import (
	"context"

	"telegram-smm-shop/internal/domain/ports/repository"
)

// Compile-time check
var _ repository.TransactionManager = (*TxManager)(nil)

// TxManager has no multi-document transactions. fn runs directly with a nil tx;
// cross-document consistency comes from ledger references plus recovery.
type TxManager struct{}

func NewTxManager() *TxManager { return &TxManager{} }

func (TxManager) WithTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx, repository.NoTX)
}
