package model

import (
	"strings"
	"time"

	"telegram-smm-shop/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type InvoiceStatus string

const (
	InvoiceStatusPending InvoiceStatus = "pending" // created by /topup, waiting for the transfer
	InvoiceStatusPaid    InvoiceStatus = "paid"    // confirmed by an admin, balance credited
)

func (s InvoiceStatus) Valid() bool {
	return s == InvoiceStatusPending || s == InvoiceStatusPaid
}

// Invoice is a topup request. It moves pending -> paid at most once.
type Invoice struct {
	ID        string // uuid4 hex, no dashes
	UserID    int64
	Amount    decimal.Decimal
	Note      string
	Status    InvoiceStatus
	CreatedAt time.Time
	PaidAt    *time.Time
}

// NewInvoiceID returns an opaque 32-char hex token.
func NewInvoiceID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func NewInvoice(userID int64, amount decimal.Decimal, note string) (*Invoice, error) {
	if userID == 0 {
		return nil, domain.ErrInvalidArgument
	}
	amount = RoundMoney(amount)
	if !amount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}
	return &Invoice{
		ID:        NewInvoiceID(),
		UserID:    userID,
		Amount:    amount,
		Note:      strings.TrimSpace(note),
		Status:    InvoiceStatusPending,
		CreatedAt: time.Now().UTC(),
	}, nil
}

func (i *Invoice) IsPaid() bool { return i != nil && i.Status == InvoiceStatusPaid }

// CreditRef is the ledger idempotency reference of this invoice's credit.
func (i *Invoice) CreditRef() string { return "invoice:" + i.ID }

// MarkPaid flips the status. Paying twice returns ErrAlreadyProcessed.
func (i *Invoice) MarkPaid(at time.Time) error {
	if i.IsPaid() {
		return domain.ErrAlreadyProcessed
	}
	t := at.UTC()
	i.Status = InvoiceStatusPaid
	i.PaidAt = &t
	return nil
}

func (i *Invoice) Validate() error {
	if i == nil || i.ID == "" || i.UserID == 0 {
		return domain.ErrInvalidArgument
	}
	if !i.Amount.IsPositive() {
		return domain.ErrInvalidAmount
	}
	if !i.Status.Valid() {
		return domain.ErrInvalidArgument
	}
	if i.Status == InvoiceStatusPaid && i.PaidAt == nil {
		return domain.ErrInvalidArgument
	}
	return nil
}
