//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"testing"

	"telegram-smm-shop/internal/domain"
	"telegram-smm-shop/internal/domain/model"
	"telegram-smm-shop/internal/domain/ports/repository"
	"telegram-smm-shop/internal/usecase"
)

type invoiceDeps struct {
	invoices *MockInvoiceRepo
	ledger   *MockLedgerRepo
	locker   *MockLocker
	notifier *MockNotifier
}

func newInvoiceDeps() *invoiceDeps {
	return &invoiceDeps{
		invoices: NewMockInvoiceRepo(),
		ledger:   NewMockLedgerRepo(),
		locker:   NewMockLocker(),
		notifier: &MockNotifier{},
	}
}

func (d *invoiceDeps) build() usecase.InvoiceUseCase {
	return usecase.NewInvoiceUseCase(d.invoices, d.ledger, NewMockTxManager(), d.locker, d.notifier, newTestLogger())
}

func TestInvoiceUseCase_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("should create a pending invoice with a hex id", func(t *testing.T) {
		// --- Arrange ---
		deps := newInvoiceDeps()
		uc := deps.build()

		// --- Act ---
		inv, err := uc.Create(ctx, 7, dec("499.999"), "  card  ")

		// --- Assert ---
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(inv.ID) != 32 {
			t.Errorf("expected a 32-char id, got %q", inv.ID)
		}
		if inv.Status != model.InvoiceStatusPending {
			t.Errorf("expected pending, got %s", inv.Status)
		}
		if !inv.Amount.Equal(dec("500.00")) {
			t.Errorf("expected rounded amount 500.00, got %s", inv.Amount)
		}
		if inv.Note != "card" {
			t.Errorf("expected trimmed note, got %q", inv.Note)
		}
		if len(deps.notifier.Created) != 1 {
			t.Errorf("expected one created notification, got %d", len(deps.notifier.Created))
		}
	})

	t.Run("should reject non-positive amounts", func(t *testing.T) {
		uc := newInvoiceDeps().build()
		for _, amt := range []string{"0", "-5"} {
			if _, err := uc.Create(ctx, 7, dec(amt), ""); !errors.Is(err, domain.ErrInvalidAmount) {
				t.Errorf("amount %s: expected ErrInvalidAmount, got %v", amt, err)
			}
		}
	})
}

func TestInvoiceUseCase_Confirm(t *testing.T) {
	ctx := context.Background()

	t.Run("should credit once and report the second confirm as processed", func(t *testing.T) {
		// --- Arrange ---
		deps := newInvoiceDeps()
		uc := deps.build()
		inv, _ := uc.Create(ctx, 7, dec("500"), "")

		// --- Act ---
		first, err1 := uc.Confirm(ctx, inv.ID)
		second, err2 := uc.Confirm(ctx, inv.ID)

		// --- Assert ---
		if err1 != nil || err2 != nil {
			t.Fatalf("expected no errors, got %v / %v", err1, err2)
		}
		if first.AlreadyProcessed || !second.AlreadyProcessed {
			t.Errorf("expected only the second confirm to be processed, got %v / %v", first.AlreadyProcessed, second.AlreadyProcessed)
		}
		if !deps.ledger.Balance(7).Equal(dec("500")) {
			t.Errorf("expected balance 500, got %s", deps.ledger.Balance(7))
		}
		if !second.Balance.Equal(dec("500")) {
			t.Errorf("expected the current balance on replay, got %s", second.Balance)
		}
		stored, _ := uc.Get(ctx, inv.ID)
		if !stored.IsPaid() || stored.PaidAt == nil {
			t.Errorf("expected the invoice to be paid, got %+v", stored)
		}
		if len(deps.notifier.Paid) != 1 {
			t.Errorf("expected one paid notification, got %d", len(deps.notifier.Paid))
		}
		if deps.locker.Held() != 0 {
			t.Error("expected every lock to be released")
		}
	})

	t.Run("should finish a lost status flip through Recover without a second credit", func(t *testing.T) {
		// --- Arrange ---
		deps := newInvoiceDeps()
		uc := deps.build()
		inv, _ := uc.Create(ctx, 7, dec("250"), "")
		deps.invoices.UpdateFunc = func(ctx context.Context, tx repository.Tx, inv *model.Invoice) error {
			return domain.ErrPersistence
		}

		// --- Act ---
		_, err := uc.Confirm(ctx, inv.ID)
		if !errors.Is(err, domain.ErrPersistence) {
			t.Fatalf("expected ErrPersistence, got %v", err)
		}
		deps.invoices.UpdateFunc = nil
		fixed, err := uc.Recover(ctx)

		// --- Assert ---
		if err != nil {
			t.Fatalf("recover: %v", err)
		}
		if fixed != 1 {
			t.Errorf("expected one recovered invoice, got %d", fixed)
		}
		if !deps.ledger.Balance(7).Equal(dec("250")) {
			t.Errorf("expected a single credit of 250, got %s", deps.ledger.Balance(7))
		}
		stored, _ := uc.Get(ctx, inv.ID)
		if !stored.IsPaid() {
			t.Error("expected the invoice to be paid after recovery")
		}
	})

	t.Run("should leave invoices without a credit pending on Recover", func(t *testing.T) {
		deps := newInvoiceDeps()
		uc := deps.build()
		_, _ = uc.Create(ctx, 7, dec("10"), "")

		fixed, err := uc.Recover(ctx)
		if err != nil || fixed != 0 {
			t.Fatalf("expected nothing to recover, got %d / %v", fixed, err)
		}
		pending, _ := uc.ListByStatus(ctx, model.InvoiceStatusPending, 0)
		if len(pending) != 1 {
			t.Errorf("expected one pending invoice, got %d", len(pending))
		}
	})

	t.Run("should return not found for an unknown id", func(t *testing.T) {
		uc := newInvoiceDeps().build()
		if _, err := uc.Confirm(ctx, "deadbeef"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("should refuse while another instance holds the lock", func(t *testing.T) {
		// --- Arrange ---
		deps := newInvoiceDeps()
		uc := deps.build()
		inv, _ := uc.Create(ctx, 7, dec("10"), "")
		if _, err := deps.locker.TryLock(ctx, "invoice:"+inv.ID, 0); err != nil {
			t.Fatalf("pre-lock: %v", err)
		}

		// --- Act ---
		_, err := uc.Confirm(ctx, inv.ID)

		// --- Assert ---
		if !errors.Is(err, domain.ErrLockNotAcquired) {
			t.Fatalf("expected ErrLockNotAcquired, got %v", err)
		}
		if !deps.ledger.Balance(7).IsZero() {
			t.Error("expected no credit while locked")
		}
	})

	t.Run("should reject an invalid status filter", func(t *testing.T) {
		uc := newInvoiceDeps().build()
		if _, err := uc.ListByStatus(ctx, "refunded", 10); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}
