package model

import (
	"time"

	"telegram-smm-shop/internal/domain"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusCommitted  OrderStatus = "committed"
	OrderStatusRolledBack OrderStatus = "rolled_back"
)

// Placement is one place_order call made for an order.
type Placement struct {
	ServiceID       string
	Quantity        int64
	UpstreamOrderID string // empty when the call failed or was never made
	Error           string
}

// Order is an append-only settlement record. A non-nil UpstreamOrderID means the
// debit is final.
type Order struct {
	ID              string
	UserID          int64
	ItemID          string
	ItemTitle       string
	Quantity        int64
	Link            string
	Subtotal        decimal.Decimal
	Discount        decimal.Decimal
	Charged         decimal.Decimal
	PromoCode       string
	UpstreamOrderID *string
	Status          OrderStatus
	Placements      []Placement
	CreatedAt       time.Time
}

func NewOrderID() string { return ulid.Make().String() }

func (o *Order) Committed() bool { return o.UpstreamOrderID != nil }

// RefundRef is the ledger idempotency reference of the compensating credit.
func (o *Order) RefundRef() string { return "refund:" + o.ID }

func (o *Order) Validate() error {
	if o == nil || o.ID == "" || o.UserID == 0 || o.ItemID == "" {
		return domain.ErrInvalidArgument
	}
	if o.Charged.IsNegative() || o.Subtotal.IsNegative() {
		return domain.ErrInvalidAmount
	}
	switch o.Status {
	case OrderStatusCommitted:
		if o.UpstreamOrderID == nil || *o.UpstreamOrderID == "" {
			return domain.ErrInvalidArgument
		}
	case OrderStatusRolledBack:
		if o.UpstreamOrderID != nil {
			return domain.ErrInvalidArgument
		}
	default:
		return domain.ErrInvalidArgument
	}
	return nil
}
