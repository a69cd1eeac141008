package repository

import (
	"context"

	"telegram-smm-shop/internal/domain/model"
)

type InvoiceRepository interface {
	// Create fails with ErrAlreadyExists on a duplicate id.
	Create(ctx context.Context, tx Tx, inv *model.Invoice) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Invoice, error)
	// Update persists a status change of an existing invoice.
	Update(ctx context.Context, tx Tx, inv *model.Invoice) error
	// ListByStatus returns oldest first; limit <= 0 means no limit.
	ListByStatus(ctx context.Context, tx Tx, status model.InvoiceStatus, limit int) ([]*model.Invoice, error)
}
