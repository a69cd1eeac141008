package repository

import (
	"context"

	"telegram-smm-shop/internal/domain/model"
)

// OrderRepository is append-only. Only the settlement engine writes to it.
type OrderRepository interface {
	Append(ctx context.Context, tx Tx, o *model.Order) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Order, error)
	// ListByUser returns newest first.
	ListByUser(ctx context.Context, tx Tx, userID int64, limit int) ([]*model.Order, error)
	// ListAll returns orders in append order.
	ListAll(ctx context.Context, tx Tx) ([]*model.Order, error)
}
