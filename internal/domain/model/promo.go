package model

import (
	"strings"
	"time"

	"telegram-smm-shop/internal/domain"

	"github.com/shopspring/decimal"
)

var (
	promoMaxPercent = decimal.NewFromInt(90)
	hundred         = decimal.NewFromInt(100)
)

// NormalizePromoCode makes codes case-insensitive.
func NormalizePromoCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// PromoRule is a discount a user may redeem once.
type PromoRule struct {
	Code       string
	Percent    decimal.Decimal
	MinTotal   decimal.Decimal // zero means no floor
	Active     bool
	Combinable bool // informational; bundles never take promos
	CreatedAt  time.Time
}

func NewPromoRule(code string, percent, minTotal decimal.Decimal, active, combinable bool) (*PromoRule, error) {
	r := &PromoRule{
		Code:       NormalizePromoCode(code),
		Percent:    percent,
		MinTotal:   minTotal,
		Active:     active,
		Combinable: combinable,
		CreatedAt:  time.Now().UTC(),
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// PercentInRange reports whether the discount lies in (0, 90].
func (r *PromoRule) PercentInRange() bool {
	return r.Percent.IsPositive() && r.Percent.LessThanOrEqual(promoMaxPercent)
}

func (r *PromoRule) Validate() error {
	if r == nil || r.Code == "" || r.Code != NormalizePromoCode(r.Code) {
		return domain.ErrInvalidArgument
	}
	if !r.PercentInRange() {
		return domain.ErrInvalidArgument
	}
	if r.MinTotal.IsNegative() {
		return domain.ErrInvalidAmount
	}
	return nil
}

// PromoUsage records that a user consumed a code.
type PromoUsage struct {
	UserID int64
	Code   string
	UsedAt time.Time
}

// ApplyDiscount returns amount * (1 - percent/100), floored at zero. It does not round.
func ApplyDiscount(amount, percent decimal.Decimal) decimal.Decimal {
	factor := decimal.NewFromInt(1).Sub(percent.Div(hundred))
	out := amount.Mul(factor)
	if out.IsNegative() {
		return decimal.Zero
	}
	return out
}
