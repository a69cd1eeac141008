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
var _ repository.PromoRepository = (*PromoRepo)(nil)

type promoRecord struct {
	Code       string          `json:"code"`
	Percent    decimal.Decimal `json:"percent"`
	MinTotal   decimal.Decimal `json:"min_total"`
	Active     bool            `json:"active"`
	Combinable bool            `json:"combinable"`
	CreatedAt  time.Time       `json:"created_at"`
}

type promoUsageRecord struct {
	UserID int64     `json:"user_id"`
	Code   string    `json:"code"`
	UsedAt time.Time `json:"used_at"`
}

// promoDoc keeps rules and the usage log in one file.
type promoDoc struct {
	Rules  map[string]promoRecord `json:"rules"`
	Usages []promoUsageRecord     `json:"usages"`
}

func (p promoRecord) model() *model.PromoRule {
	return &model.PromoRule{
		Code:       p.Code,
		Percent:    p.Percent,
		MinTotal:   p.MinTotal,
		Active:     p.Active,
		Combinable: p.Combinable,
		CreatedAt:  p.CreatedAt,
	}
}

func usageKey(userID int64, code string) string {
	return fmt.Sprintf("%d|%s", userID, code)
}

type PromoRepo struct {
	file *jsonFile
	doc  promoDoc
	used map[string]struct{}
	now  func() time.Time
}

// NewPromoRepo loads path. Stored rules are checked for shape only: a percent
// outside (0, 90] is kept so that validation can report it.
func NewPromoRepo(path string) (*PromoRepo, error) {
	r := &PromoRepo{
		file: newJSONFile(path),
		doc:  promoDoc{Rules: map[string]promoRecord{}},
		used: map[string]struct{}{},
		now:  time.Now,
	}
	if _, err := r.file.load(&r.doc); err != nil {
		return nil, err
	}
	if r.doc.Rules == nil {
		r.doc.Rules = map[string]promoRecord{}
	}
	for code, rec := range r.doc.Rules {
		if code == "" || code != model.NormalizePromoCode(code) || rec.Code != code {
			return nil, corrupt(path, "promo "+code, domain.ErrInvalidArgument)
		}
		if rec.MinTotal.IsNegative() {
			return nil, corrupt(path, "promo "+code, domain.ErrInvalidAmount)
		}
	}
	for _, u := range r.doc.Usages {
		if u.UserID == 0 || u.Code == "" {
			return nil, corrupt(path, "promo usage", domain.ErrInvalidArgument)
		}
		r.used[usageKey(u.UserID, u.Code)] = struct{}{}
	}
	return r, nil
}

func (r *PromoRepo) FindByCode(ctx context.Context, _ repository.Tx, code string) (*model.PromoRule, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.file.mu.RLock()
	defer r.file.mu.RUnlock()
	rec, ok := r.doc.Rules[code]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return rec.model(), nil
}

func (r *PromoRepo) Upsert(ctx context.Context, _ repository.Tx, rule *model.PromoRule) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := rule.Validate(); err != nil {
		return err
	}
	r.file.mu.Lock()
	defer r.file.mu.Unlock()

	prev, had := r.doc.Rules[rule.Code]
	created := rule.CreatedAt
	if created.IsZero() {
		created = r.now().UTC()
	}
	if had {
		created = prev.CreatedAt
	}
	r.doc.Rules[rule.Code] = promoRecord{
		Code:       rule.Code,
		Percent:    rule.Percent,
		MinTotal:   rule.MinTotal,
		Active:     rule.Active,
		Combinable: rule.Combinable,
		CreatedAt:  created,
	}
	if err := r.file.save(&r.doc); err != nil {
		if had {
			r.doc.Rules[rule.Code] = prev
		} else {
			delete(r.doc.Rules, rule.Code)
		}
		return err
	}
	return nil
}

func (r *PromoRepo) List(ctx context.Context, _ repository.Tx) ([]*model.PromoRule, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.file.mu.RLock()
	defer r.file.mu.RUnlock()
	out := make([]*model.PromoRule, 0, len(r.doc.Rules))
	for _, rec := range r.doc.Rules {
		out = append(out, rec.model())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (r *PromoRepo) IsUsed(ctx context.Context, _ repository.Tx, userID int64, code string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.file.mu.RLock()
	defer r.file.mu.RUnlock()
	_, ok := r.used[usageKey(userID, code)]
	return ok, nil
}

func (r *PromoRepo) MarkUsed(ctx context.Context, _ repository.Tx, userID int64, code string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.file.mu.Lock()
	defer r.file.mu.Unlock()

	k := usageKey(userID, code)
	if _, ok := r.used[k]; ok {
		return false, nil
	}
	r.doc.Usages = append(r.doc.Usages, promoUsageRecord{UserID: userID, Code: code, UsedAt: r.now().UTC()})
	if err := r.file.save(&r.doc); err != nil {
		r.doc.Usages = r.doc.Usages[:len(r.doc.Usages)-1]
		return false, err
	}
	r.used[k] = struct{}{}
	return true, nil
}
