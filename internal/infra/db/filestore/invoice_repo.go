package filestore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"telegram-smm-shop/internal/domain"
	"telegram-smm-shop/internal/domain/model"
	"telegram-smm-shop/internal/domain/ports/repository"

	"github.com/shopspring/decimal"
)

// Compile-time check
var _ repository.InvoiceRepository = (*InvoiceRepo)(nil)

type invoiceRecord struct {
	ID        string          `json:"id"`
	UserID    int64           `json:"user_id"`
	Amount    decimal.Decimal `json:"amount"`
	Note      string          `json:"note,omitempty"`
	Status    string          `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	PaidAt    *time.Time      `json:"paid_at,omitempty"`
}

func toInvoiceRecord(inv *model.Invoice) invoiceRecord {
	return invoiceRecord{
		ID:        inv.ID,
		UserID:    inv.UserID,
		Amount:    inv.Amount,
		Note:      inv.Note,
		Status:    string(inv.Status),
		CreatedAt: inv.CreatedAt,
		PaidAt:    inv.PaidAt,
	}
}

func (r invoiceRecord) model() *model.Invoice {
	inv := &model.Invoice{
		ID:        r.ID,
		UserID:    r.UserID,
		Amount:    r.Amount,
		Note:      r.Note,
		Status:    model.InvoiceStatus(r.Status),
		CreatedAt: r.CreatedAt,
	}
	if r.PaidAt != nil {
		t := *r.PaidAt
		inv.PaidAt = &t
	}
	return inv
}

type InvoiceRepo struct {
	file  *jsonFile
	items []invoiceRecord // creation order
	byID  map[string]int
}

func NewInvoiceRepo(path string) (*InvoiceRepo, error) {
	r := &InvoiceRepo{file: newJSONFile(path), byID: map[string]int{}}
	if _, err := r.file.load(&r.items); err != nil {
		return nil, err
	}
	for i, rec := range r.items {
		if err := rec.model().Validate(); err != nil {
			return nil, corrupt(path, fmt.Sprintf("invoice #%d", i), err)
		}
		if _, dup := r.byID[rec.ID]; dup {
			return nil, corrupt(path, "invoice "+rec.ID, domain.ErrAlreadyExists)
		}
		r.byID[rec.ID] = i
	}
	return r, nil
}

func (r *InvoiceRepo) Create(ctx context.Context, _ repository.Tx, inv *model.Invoice) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := inv.Validate(); err != nil {
		return err
	}
	r.file.mu.Lock()
	defer r.file.mu.Unlock()

	if _, ok := r.byID[inv.ID]; ok {
		return fmt.Errorf("invoice %s: %w", inv.ID, domain.ErrAlreadyExists)
	}
	r.items = append(r.items, toInvoiceRecord(inv))
	if err := r.file.save(r.items); err != nil {
		r.items = r.items[:len(r.items)-1]
		return err
	}
	r.byID[inv.ID] = len(r.items) - 1
	return nil
}

func (r *InvoiceRepo) FindByID(ctx context.Context, _ repository.Tx, id string) (*model.Invoice, error) {
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

func (r *InvoiceRepo) Update(ctx context.Context, _ repository.Tx, inv *model.Invoice) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := inv.Validate(); err != nil {
		return err
	}
	r.file.mu.Lock()
	defer r.file.mu.Unlock()

	i, ok := r.byID[inv.ID]
	if !ok {
		return domain.ErrNotFound
	}
	prev := r.items[i]
	r.items[i] = toInvoiceRecord(inv)
	if err := r.file.save(r.items); err != nil {
		r.items[i] = prev
		return err
	}
	return nil
}

func (r *InvoiceRepo) ListByStatus(ctx context.Context, _ repository.Tx, status model.InvoiceStatus, limit int) ([]*model.Invoice, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.file.mu.RLock()
	defer r.file.mu.RUnlock()

	out := make([]*model.Invoice, 0)
	for _, rec := range r.items {
		if rec.Status == string(status) {
			out = append(out, rec.model())
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
