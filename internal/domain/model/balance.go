package model

import (
	"time"

	"telegram-smm-shop/internal/domain"

	"github.com/shopspring/decimal"
)

// Balance is a user's spendable amount. It is created implicitly at zero and never deleted.
type Balance struct {
	UserID    int64
	Amount    decimal.Decimal
	UpdatedAt time.Time
}

func NewBalance(userID int64, amount decimal.Decimal) (*Balance, error) {
	if userID == 0 {
		return nil, domain.ErrInvalidArgument
	}
	if amount.IsNegative() {
		return nil, domain.ErrInvalidAmount
	}
	return &Balance{UserID: userID, Amount: amount, UpdatedAt: time.Now()}, nil
}

func (b *Balance) Validate() error {
	if b == nil || b.UserID == 0 {
		return domain.ErrInvalidArgument
	}
	if b.Amount.IsNegative() {
		return domain.ErrInvalidAmount
	}
	return nil
}
