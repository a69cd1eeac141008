package usecase

import (
	"context"
	"errors"

	"telegram-smm-shop/internal/domain"
	"telegram-smm-shop/internal/domain/ports/repository"
	"telegram-smm-shop/internal/infra/logging"
	"telegram-smm-shop/internal/infra/metrics"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Compile-time check
var _ LedgerUseCase = (*ledgerUC)(nil)

// LedgerUseCase is the public surface of the ledger. Nothing else mutates balances.
type LedgerUseCase interface {
	GetBalance(ctx context.Context, userID int64) (decimal.Decimal, error)
	SetBalance(ctx context.Context, userID int64, amount decimal.Decimal) (decimal.Decimal, error)
	AddBalance(ctx context.Context, userID int64, delta decimal.Decimal) (decimal.Decimal, error)
}

type ledgerUC struct {
	ledger repository.LedgerRepository
	log    *zerolog.Logger
}

func NewLedgerUseCase(ledger repository.LedgerRepository, logger *zerolog.Logger) *ledgerUC {
	return &ledgerUC{ledger: ledger, log: logger}
}

func (u *ledgerUC) GetBalance(ctx context.Context, userID int64) (decimal.Decimal, error) {
	defer logging.TraceDuration(u.log, "LedgerUC.GetBalance")()
	if userID == 0 {
		return decimal.Zero, domain.ErrInvalidArgument
	}
	return u.ledger.Get(ctx, repository.NoTX, userID)
}

func (u *ledgerUC) SetBalance(ctx context.Context, userID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	defer logging.TraceDuration(u.log, "LedgerUC.SetBalance")()
	if userID == 0 {
		return decimal.Zero, domain.ErrInvalidArgument
	}
	if amount.IsNegative() {
		return decimal.Zero, domain.ErrInvalidAmount
	}
	bal, err := u.ledger.Set(ctx, repository.NoTX, userID, amount)
	if err != nil {
		u.observeFailure(userID, "set", err)
		return decimal.Zero, err
	}
	u.log.Info().Int64("tg_id", userID).Str("balance", bal.StringFixed(2)).Msg("balance set")
	return bal, nil
}

func (u *ledgerUC) AddBalance(ctx context.Context, userID int64, delta decimal.Decimal) (decimal.Decimal, error) {
	defer logging.TraceDuration(u.log, "LedgerUC.AddBalance")()
	if userID == 0 {
		return decimal.Zero, domain.ErrInvalidArgument
	}
	bal, err := u.ledger.Add(ctx, repository.NoTX, userID, delta)
	if err != nil {
		u.observeFailure(userID, "add", err)
		return decimal.Zero, err
	}
	return bal, nil
}

func (u *ledgerUC) observeFailure(userID int64, op string, err error) {
	if errors.Is(err, domain.ErrPersistence) {
		metrics.IncPersistenceFailure("ledger_" + op)
		u.log.Error().Err(err).Int64("tg_id", userID).Str("op", op).Msg("ledger write not persisted")
	}
}
