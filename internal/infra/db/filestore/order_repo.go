package filestore

import (
	"context"
	"fmt"
	"time"

	"telegram-smm-shop/internal/domain"
	"telegram-smm-shop/internal/domain/model"
	"telegram-smm-shop/internal/domain/ports/repository"

	"github.com/shopspring/decimal"
)

// Compile-time check
var _ repository.OrderRepository = (*OrderRepo)(nil)

type placementRecord struct {
	ServiceID       string `json:"service_id"`
	Quantity        int64  `json:"quantity"`
	UpstreamOrderID string `json:"upstream_order_id,omitempty"`
	Error           string `json:"error,omitempty"`
}

type orderRecord struct {
	ID              string            `json:"id"`
	UserID          int64             `json:"user_id"`
	ItemID          string            `json:"item_id"`
	ItemTitle       string            `json:"item_title"`
	Quantity        int64             `json:"quantity"`
	Link            string            `json:"link"`
	Subtotal        decimal.Decimal   `json:"subtotal"`
	Discount        decimal.Decimal   `json:"discount"`
	Charged         decimal.Decimal   `json:"charged"`
	PromoCode       string            `json:"promo_code,omitempty"`
	UpstreamOrderID *string           `json:"upstream_order_id"`
	Status          string            `json:"status"`
	Placements      []placementRecord `json:"placements"`
	CreatedAt       time.Time         `json:"created_at"`
}

func toOrderRecord(o *model.Order) orderRecord {
	rec := orderRecord{
		ID:              o.ID,
		UserID:          o.UserID,
		ItemID:          o.ItemID,
		ItemTitle:       o.ItemTitle,
		Quantity:        o.Quantity,
		Link:            o.Link,
		Subtotal:        o.Subtotal,
		Discount:        o.Discount,
		Charged:         o.Charged,
		PromoCode:       o.PromoCode,
		UpstreamOrderID: o.UpstreamOrderID,
		Status:          string(o.Status),
		CreatedAt:       o.CreatedAt,
	}
	for _, p := range o.Placements {
		rec.Placements = append(rec.Placements, placementRecord(p))
	}
	return rec
}

func (r orderRecord) model() *model.Order {
	o := &model.Order{
		ID:        r.ID,
		UserID:    r.UserID,
		ItemID:    r.ItemID,
		ItemTitle: r.ItemTitle,
		Quantity:  r.Quantity,
		Link:      r.Link,
		Subtotal:  r.Subtotal,
		Discount:  r.Discount,
		Charged:   r.Charged,
		PromoCode: r.PromoCode,
		Status:    model.OrderStatus(r.Status),
		CreatedAt: r.CreatedAt,
	}
	if r.UpstreamOrderID != nil {
		id := *r.UpstreamOrderID
		o.UpstreamOrderID = &id
	}
	for _, p := range r.Placements {
		o.Placements = append(o.Placements, model.Placement(p))
	}
	return o
}

// OrderRepo is an append-only list of settlement records.
type OrderRepo struct {
	file  *jsonFile
	items []orderRecord
	byID  map[string]int
}

func NewOrderRepo(path string) (*OrderRepo, error) {
	r := &OrderRepo{file: newJSONFile(path), byID: map[string]int{}}
	if _, err := r.file.load(&r.items); err != nil {
		return nil, err
	}
	for i, rec := range r.items {
		if err := rec.model().Validate(); err != nil {
			return nil, corrupt(path, fmt.Sprintf("order #%d", i), err)
		}
		if _, dup := r.byID[rec.ID]; dup {
			return nil, corrupt(path, "order "+rec.ID, domain.ErrAlreadyExists)
		}
		r.byID[rec.ID] = i
	}
	return r, nil
}

func (r *OrderRepo) Append(ctx context.Context, _ repository.Tx, o *model.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := o.Validate(); err != nil {
		return err
	}
	r.file.mu.Lock()
	defer r.file.mu.Unlock()

	if _, ok := r.byID[o.ID]; ok {
		return fmt.Errorf("order %s: %w", o.ID, domain.ErrAlreadyExists)
	}
	r.items = append(r.items, toOrderRecord(o))
	if err := r.file.save(r.items); err != nil {
		r.items = r.items[:len(r.items)-1]
		return err
	}
	r.byID[o.ID] = len(r.items) - 1
	return nil
}

func (r *OrderRepo) FindByID(ctx context.Context, _ repository.Tx, id string) (*model.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.file.mu.RLock()
	defer r.file.mu.RUnlock()
	i, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return r.items[i].model(), nil
}

func (r *OrderRepo) ListByUser(ctx context.Context, _ repository.Tx, userID int64, limit int) ([]*model.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.file.mu.RLock()
	defer r.file.mu.RUnlock()

	out := make([]*model.Order, 0)
	for i := len(r.items) - 1; i >= 0; i-- {
		if r.items[i].UserID != userID {
			continue
		}
		out = append(out, r.items[i].model())
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *OrderRepo) ListAll(ctx context.Context, _ repository.Tx) ([]*model.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.file.mu.RLock()
	defer r.file.mu.RUnlock()
	out := make([]*model.Order, 0, len(r.items))
	for _, rec := range r.items {
		out = append(out, rec.model())
	}
	return out, nil
}
