package model

import (
	"strings"

	"telegram-smm-shop/internal/domain"

	"github.com/shopspring/decimal"
)

// MoneyPlaces is the precision charges and balances are rounded to.
const MoneyPlaces = 2

// RoundMoney rounds half-up to two decimal places. Amounts in this system are
// never negative at the charge boundary, so half-away-from-zero is half-up.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

// ParseAmount parses user input such as "500", "499.90" or "499,90".
// The result must be strictly positive.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	if s == "" {
		return decimal.Zero, domain.ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, domain.ErrInvalidAmount
	}
	if !d.IsPositive() {
		return decimal.Zero, domain.ErrInvalidAmount
	}
	return d, nil
}
