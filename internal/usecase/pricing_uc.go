package usecase

import (
	"fmt"

	"telegram-smm-shop/internal/domain"
	"telegram-smm-shop/internal/domain/model"

	"github.com/shopspring/decimal"
)

var (
	per100  = decimal.NewFromInt(100)
	per1000 = decimal.NewFromInt(1000)
)

// ComputeCost is the exact, unrounded charge for quantity units of an item.
//
//	per_1000: base * multiplier * quantity / 1000
//	per_100:  base * multiplier * quantity / 100
//	package:  base * multiplier
func ComputeCost(base decimal.Decimal, unit model.UnitKind, multiplier decimal.Decimal, quantity int64) (decimal.Decimal, error) {
	if base.IsNegative() || !multiplier.IsPositive() {
		return decimal.Zero, domain.ErrInvalidAmount
	}
	price := base.Mul(multiplier)
	q := decimal.NewFromInt(quantity)
	switch unit {
	case model.UnitPer1000:
		if quantity <= 0 {
			return decimal.Zero, domain.ErrQuantityOutOfRange
		}
		return price.Mul(q).Div(per1000), nil
	case model.UnitPer100:
		if quantity <= 0 {
			return decimal.Zero, domain.ErrQuantityOutOfRange
		}
		return price.Mul(q).Div(per100), nil
	case model.UnitPackage:
		return price, nil
	default:
		return decimal.Zero, fmt.Errorf("%w: unit %q", domain.ErrInvalidArgument, unit)
	}
}

// Quote is a priced purchase before reservation. All amounts are rounded.
type Quote struct {
	Subtotal  decimal.Decimal
	Discount  decimal.Decimal
	Charge    decimal.Decimal
	PromoCode string
	Percent   decimal.Decimal
}

// PricingEngine applies the process-wide multiplier.
type PricingEngine struct {
	multiplier decimal.Decimal
}

func NewPricingEngine(multiplier decimal.Decimal) *PricingEngine {
	if !multiplier.IsPositive() {
		multiplier = decimal.NewFromInt(1)
	}
	return &PricingEngine{multiplier: multiplier}
}

func (p *PricingEngine) Multiplier() decimal.Decimal { return p.multiplier }

// DisplayPrice is the per-unit price shown in the catalog.
func (p *PricingEngine) DisplayPrice(item *model.CatalogItem) decimal.Decimal {
	return model.RoundMoney(item.BasePrice.Mul(p.multiplier))
}

// Quote prices quantity units of item and applies percent when it is positive.
func (p *PricingEngine) Quote(item *model.CatalogItem, quantity int64, promoCode string, percent decimal.Decimal) (Quote, error) {
	cost, err := ComputeCost(item.BasePrice, item.Unit, p.multiplier, quantity)
	if err != nil {
		return Quote{}, err
	}
	q := Quote{Subtotal: model.RoundMoney(cost)}
	q.Charge = q.Subtotal
	if percent.IsPositive() {
		q.Charge = model.RoundMoney(model.ApplyDiscount(q.Subtotal, percent))
		q.Discount = q.Subtotal.Sub(q.Charge)
		q.PromoCode = promoCode
		q.Percent = percent
	}
	return q, nil
}
