package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"telegram-smm-shop/internal/domain"
	"telegram-smm-shop/internal/domain/model"
	"telegram-smm-shop/internal/domain/ports/adapter"
	"telegram-smm-shop/internal/domain/ports/repository"
	"telegram-smm-shop/internal/infra/logging"
	"telegram-smm-shop/internal/infra/metrics"
	"telegram-smm-shop/internal/pkg/keymutex"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Compile-time check
var _ InvoiceUseCase = (*invoiceUC)(nil)

const invoiceLockTTL = 30 * time.Second

// ConfirmResult describes the outcome of Confirm. AlreadyProcessed is set when the
// invoice had been paid before; nothing was credited in that case.
type ConfirmResult struct {
	Invoice          *model.Invoice
	Balance          decimal.Decimal
	AlreadyProcessed bool
}

type InvoiceUseCase interface {
	Create(ctx context.Context, userID int64, amount decimal.Decimal, note string) (*model.Invoice, error)
	Get(ctx context.Context, id string) (*model.Invoice, error)
	// Confirm credits the owner and marks the invoice paid. The credit is tagged with
	// the invoice reference, so replays never credit twice.
	Confirm(ctx context.Context, id string) (*ConfirmResult, error)
	ListByStatus(ctx context.Context, status model.InvoiceStatus, limit int) ([]*model.Invoice, error)
	// Recover flips pending invoices whose credit already reached the ledger.
	Recover(ctx context.Context) (int, error)
}

type invoiceUC struct {
	invoices repository.InvoiceRepository
	ledger   repository.LedgerRepository
	tm       repository.TransactionManager
	locker   adapter.Locker // optional, for multi-instance deployments
	notifier adapter.Notifier
	keys     *keymutex.KeyMutex
	log      *zerolog.Logger
	now      func() time.Time
}

func NewInvoiceUseCase(
	invoices repository.InvoiceRepository,
	ledger repository.LedgerRepository,
	tm repository.TransactionManager,
	locker adapter.Locker,
	notifier adapter.Notifier,
	logger *zerolog.Logger,
) *invoiceUC {
	return &invoiceUC{
		invoices: invoices,
		ledger:   ledger,
		tm:       tm,
		locker:   locker,
		notifier: notifier,
		keys:     keymutex.New(0),
		log:      logger,
		now:      time.Now,
	}
}

func (u *invoiceUC) Create(ctx context.Context, userID int64, amount decimal.Decimal, note string) (*model.Invoice, error) {
	defer logging.TraceDuration(u.log, "InvoiceUC.Create")()

	inv, err := model.NewInvoice(userID, amount, note)
	if err != nil {
		return nil, err
	}
	if err := u.invoices.Create(ctx, repository.NoTX, inv); err != nil {
		if errors.Is(err, domain.ErrPersistence) {
			metrics.IncPersistenceFailure("invoice_create")
		}
		return nil, err
	}
	metrics.IncInvoice(string(model.InvoiceStatusPending))
	u.log.Info().Str("invoice_id", inv.ID).Int64("tg_id", userID).Str("amount", inv.Amount.StringFixed(2)).Msg("invoice created")
	if u.notifier != nil {
		u.notifier.InvoiceCreated(ctx, inv)
	}
	return inv, nil
}

func (u *invoiceUC) Get(ctx context.Context, id string) (*model.Invoice, error) {
	if id == "" {
		return nil, domain.ErrInvalidArgument
	}
	return u.invoices.FindByID(ctx, repository.NoTX, id)
}

func (u *invoiceUC) ListByStatus(ctx context.Context, status model.InvoiceStatus, limit int) ([]*model.Invoice, error) {
	if !status.Valid() {
		return nil, domain.ErrInvalidArgument
	}
	if limit <= 0 {
		limit = 50
	}
	return u.invoices.ListByStatus(ctx, repository.NoTX, status, limit)
}

func (u *invoiceUC) Confirm(ctx context.Context, id string) (*ConfirmResult, error) {
	defer logging.TraceDuration(u.log, "InvoiceUC.Confirm")()
	if id == "" {
		return nil, domain.ErrInvalidArgument
	}
	l := logging.With(ctx, u.log)

	release, err := u.lock(ctx, "invoice:"+id)
	if err != nil {
		return nil, err
	}
	defer release()

	res := &ConfirmResult{}
	err = u.tm.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		inv, err := u.invoices.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		res.Invoice = inv
		if inv.IsPaid() {
			res.AlreadyProcessed = true
			res.Balance, err = u.ledger.Get(ctx, tx, inv.UserID)
			return err
		}

		// Credit first: if the flip below is lost, Recover sees the reference and
		// finishes the job without crediting again.
		bal, applied, err := u.ledger.ApplyOnce(ctx, tx, inv.UserID, inv.Amount, inv.CreditRef())
		if err != nil {
			return fmt.Errorf("credit invoice %s: %w", inv.ID, err)
		}
		if !applied {
			l.Warn().Str("invoice_id", inv.ID).Msg("invoice credit already applied, completing status flip")
		}
		if err := inv.MarkPaid(u.now()); err != nil {
			return err
		}
		if err := u.invoices.Update(ctx, tx, inv); err != nil {
			return fmt.Errorf("mark invoice %s paid: %w", inv.ID, err)
		}
		res.Balance = bal
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrPersistence) {
			metrics.IncPersistenceFailure("invoice_confirm")
			l.Error().Err(err).Str("invoice_id", id).Msg("invoice confirmation not persisted")
		}
		return nil, err
	}

	if res.AlreadyProcessed {
		l.Info().Str("invoice_id", id).Msg("invoice already paid")
		return res, nil
	}
	metrics.IncInvoice(string(model.InvoiceStatusPaid))
	metrics.AddTopupAmount(res.Invoice.Amount)
	l.Info().
		Str("invoice_id", id).
		Int64("tg_id", res.Invoice.UserID).
		Str("amount", res.Invoice.Amount.StringFixed(2)).
		Str("balance", res.Balance.StringFixed(2)).
		Msg("invoice confirmed")
	if u.notifier != nil {
		u.notifier.InvoicePaid(ctx, res.Invoice, res.Balance)
	}
	return res, nil
}

func (u *invoiceUC) Recover(ctx context.Context) (int, error) {
	defer logging.TraceDuration(u.log, "InvoiceUC.Recover")()

	pending, err := u.invoices.ListByStatus(ctx, repository.NoTX, model.InvoiceStatusPending, 0)
	if err != nil {
		return 0, err
	}
	fixed := 0
	for _, inv := range pending {
		applied, err := u.ledger.HasApplied(ctx, repository.NoTX, inv.CreditRef())
		if err != nil {
			return fixed, err
		}
		if !applied {
			continue
		}
		// Confirm takes the locks and sees the applied reference, so it only flips.
		if _, err := u.Confirm(ctx, inv.ID); err != nil {
			u.log.Error().Err(err).Str("invoice_id", inv.ID).Msg("invoice recovery failed")
			continue
		}
		fixed++
		u.log.Warn().Str("invoice_id", inv.ID).Msg("recovered invoice credited before crash")
	}
	return fixed, nil
}

func (u *invoiceUC) lock(ctx context.Context, key string) (func(), error) {
	unlock := u.keys.Lock(key)
	if u.locker == nil {
		return unlock, nil
	}
	token, err := u.locker.TryLock(ctx, key, invoiceLockTTL)
	if err != nil {
		unlock()
		return nil, err
	}
	return func() {
		if err := u.locker.Unlock(context.WithoutCancel(ctx), key, token); err != nil {
			u.log.Warn().Err(err).Str("key", key).Msg("unlock failed")
		}
		unlock()
	}, nil
}
