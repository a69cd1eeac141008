package adapter

import (
	"context"

	"telegram-smm-shop/internal/domain/model"
)

// ProviderClient is the upstream SMM panel. PlaceOrder is the only call in the
// system that cannot be undone; there is no cancel endpoint.
type ProviderClient interface {
	Name() string
	ListServices(ctx context.Context) ([]model.ProviderService, error)
	// PlaceOrder returns the upstream order id. A response without an id is an error.
	PlaceOrder(ctx context.Context, serviceID, link string, quantity int64) (string, error)
}
