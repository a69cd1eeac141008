package repository

import (
	"context"

	"telegram-smm-shop/internal/domain/model"
)

type PromoRepository interface {
	// FindByCode expects a normalised code and returns ErrNotFound on a miss.
	FindByCode(ctx context.Context, tx Tx, code string) (*model.PromoRule, error)
	Upsert(ctx context.Context, tx Tx, rule *model.PromoRule) error
	List(ctx context.Context, tx Tx) ([]*model.PromoRule, error)

	IsUsed(ctx context.Context, tx Tx, userID int64, code string) (bool, error)
	// MarkUsed is idempotent; created is false when the pair was already recorded.
	MarkUsed(ctx context.Context, tx Tx, userID int64, code string) (created bool, err error)
}
