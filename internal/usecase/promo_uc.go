package usecase

import (
	"context"
	"errors"

	"telegram-smm-shop/internal/domain"
	"telegram-smm-shop/internal/domain/model"
	"telegram-smm-shop/internal/domain/ports/repository"
	"telegram-smm-shop/internal/infra/logging"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Compile-time check
var _ PromoUseCase = (*promoUC)(nil)

// PromoDecision is the read-only verdict of Validate.
type PromoDecision struct {
	Code     string
	Accepted bool
	Reason   domain.PromoRejectReason
	Percent  decimal.Decimal
}

// Err converts a rejection into a *domain.PromoError; nil when accepted.
func (d PromoDecision) Err() error {
	if d.Accepted {
		return nil
	}
	return &domain.PromoError{Code: d.Code, Reason: d.Reason}
}

type PromoUseCase interface {
	// Validate never mutates state. Rejections are reported in the decision, errors
	// are reserved for storage failures.
	Validate(ctx context.Context, code string, subtotal decimal.Decimal, userID int64) (PromoDecision, error)
	MarkUsed(ctx context.Context, userID int64, code string) error
	ApplyDiscount(amount, percent decimal.Decimal) decimal.Decimal

	Upsert(ctx context.Context, rule *model.PromoRule) error
	List(ctx context.Context) ([]*model.PromoRule, error)
	// Seed upserts rules that are not stored yet; stored rules win.
	Seed(ctx context.Context, rules []model.PromoRule) (int, error)
}

type promoUC struct {
	promos repository.PromoRepository
	log    *zerolog.Logger
}

func NewPromoUseCase(promos repository.PromoRepository, logger *zerolog.Logger) *promoUC {
	return &promoUC{promos: promos, log: logger}
}

func (u *promoUC) Validate(ctx context.Context, code string, subtotal decimal.Decimal, userID int64) (PromoDecision, error) {
	defer logging.TraceDuration(u.log, "PromoUC.Validate")()

	norm := model.NormalizePromoCode(code)
	d := PromoDecision{Code: norm}

	rule, err := u.promos.FindByCode(ctx, repository.NoTX, norm)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return d, err
	}
	if rule == nil || !rule.Active {
		d.Reason = domain.PromoReasonNotFound
		return d, nil
	}
	if rule.MinTotal.IsPositive() && subtotal.LessThan(rule.MinTotal) {
		d.Reason = domain.PromoReasonBelowMinimum
		return d, nil
	}
	used, err := u.promos.IsUsed(ctx, repository.NoTX, userID, norm)
	if err != nil {
		return d, err
	}
	if used {
		d.Reason = domain.PromoReasonAlreadyUsed
		return d, nil
	}
	if !rule.PercentInRange() {
		u.log.Warn().Str("promo", norm).Str("percent", rule.Percent.String()).Msg("stored promo has percent out of range")
		d.Reason = domain.PromoReasonOutOfRange
		return d, nil
	}

	d.Accepted = true
	d.Percent = rule.Percent
	return d, nil
}

func (u *promoUC) MarkUsed(ctx context.Context, userID int64, code string) error {
	norm := model.NormalizePromoCode(code)
	if norm == "" || userID == 0 {
		return domain.ErrInvalidArgument
	}
	created, err := u.promos.MarkUsed(ctx, repository.NoTX, userID, norm)
	if err != nil {
		return err
	}
	if !created {
		u.log.Debug().Int64("tg_id", userID).Str("promo", norm).Msg("promo usage already recorded")
	}
	return nil
}

func (u *promoUC) ApplyDiscount(amount, percent decimal.Decimal) decimal.Decimal {
	return model.ApplyDiscount(amount, percent)
}

func (u *promoUC) Upsert(ctx context.Context, rule *model.PromoRule) error {
	if rule == nil {
		return domain.ErrInvalidArgument
	}
	rule.Code = model.NormalizePromoCode(rule.Code)
	if err := rule.Validate(); err != nil {
		return err
	}
	return u.promos.Upsert(ctx, repository.NoTX, rule)
}

func (u *promoUC) List(ctx context.Context) ([]*model.PromoRule, error) {
	return u.promos.List(ctx, repository.NoTX)
}

func (u *promoUC) Seed(ctx context.Context, rules []model.PromoRule) (int, error) {
	added := 0
	for i := range rules {
		r := rules[i]
		r.Code = model.NormalizePromoCode(r.Code)
		if _, err := u.promos.FindByCode(ctx, repository.NoTX, r.Code); err == nil {
			continue
		} else if !errors.Is(err, domain.ErrNotFound) {
			return added, err
		}
		if err := u.Upsert(ctx, &r); err != nil {
			return added, err
		}
		added++
	}
	if added > 0 {
		u.log.Info().Int("count", added).Msg("promo rules seeded from catalog")
	}
	return added, nil
}
