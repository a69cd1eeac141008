package repository

import (
	"context"

	"telegram-smm-shop/internal/domain/model"
)

// CatalogSource provides the read-only catalog document.
type CatalogSource interface {
	Load(ctx context.Context) (*model.Catalog, error)
}
