package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"telegram-smm-shop/internal/domain"
	"telegram-smm-shop/internal/domain/model"
	"telegram-smm-shop/internal/domain/ports/adapter"
	"telegram-smm-shop/internal/domain/ports/repository"
	"telegram-smm-shop/internal/infra/logging"
	"telegram-smm-shop/internal/infra/metrics"
	"telegram-smm-shop/internal/pkg/keymutex"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Compile-time check
var _ SettlementUseCase = (*settlementUC)(nil)

const DefaultProviderTimeout = 30 * time.Second

type SettlementState string

const (
	StateQuoted     SettlementState = "quoted"
	StateReserved   SettlementState = "reserved"
	StateCommitted  SettlementState = "committed"
	StateRolledBack SettlementState = "rolled_back"
)

type PurchaseRequest struct {
	UserID    int64
	ItemID    string
	Link      string
	Quantity  int64 // ignored for bundles
	PromoCode string
}

type SettlementResult struct {
	State   SettlementState
	Item    *model.CatalogItem
	Quote   Quote
	Order   *model.Order
	Balance decimal.Decimal
}

type SettlementUseCase interface {
	// Quote validates and prices a request without side effects.
	Quote(ctx context.Context, req PurchaseRequest) (*SettlementResult, error)
	// Purchase runs quote, reserve and commit. On a provider failure the charge is
	// credited back before the *domain.ProviderError is returned.
	Purchase(ctx context.Context, req PurchaseRequest) (*SettlementResult, error)
	ListOrders(ctx context.Context, userID int64, limit int) ([]*model.Order, error)
}

type SettlementConfig struct {
	ProviderTimeout time.Duration
	MinQuantity     int64
	// Locker extends the per-user promo lock across instances. Optional.
	Locker adapter.Locker
}

// promoLockTTL bounds a cross-process promo lock held by a crashed instance.
const promoLockTTL = 2 * time.Minute

type settlementUC struct {
	catalog  CatalogUseCase
	pricing  *PricingEngine
	promos   PromoUseCase
	ledger   repository.LedgerRepository
	orders   repository.OrderRepository
	provider adapter.ProviderClient
	notifier adapter.Notifier
	promoMu  *keymutex.KeyMutex
	cfg      SettlementConfig
	log      *zerolog.Logger
}

func NewSettlementUseCase(
	catalog CatalogUseCase,
	pricing *PricingEngine,
	promos PromoUseCase,
	ledger repository.LedgerRepository,
	orders repository.OrderRepository,
	provider adapter.ProviderClient,
	notifier adapter.Notifier,
	cfg SettlementConfig,
	logger *zerolog.Logger,
) *settlementUC {
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = DefaultProviderTimeout
	}
	return &settlementUC{
		catalog:  catalog,
		pricing:  pricing,
		promos:   promos,
		ledger:   ledger,
		orders:   orders,
		provider: provider,
		notifier: notifier,
		promoMu:  keymutex.New(0),
		cfg:      cfg,
		log:      logger,
	}
}

// plan is a quoted settlement: what to charge and which placements to make.
type plan struct {
	item       *model.CatalogItem
	quantity   int64
	placements []model.Placement
	quote      Quote
}

func (u *settlementUC) Quote(ctx context.Context, req PurchaseRequest) (*SettlementResult, error) {
	p, err := u.quote(ctx, req)
	if err != nil {
		return nil, err
	}
	return &SettlementResult{State: StateQuoted, Item: p.item, Quote: p.quote}, nil
}

func (u *settlementUC) Purchase(ctx context.Context, req PurchaseRequest) (*SettlementResult, error) {
	defer logging.TraceDuration(u.log, "SettlementUC.Purchase")()
	ctx = logging.WithTgID(ctx, req.UserID)
	l := logging.With(ctx, u.log)

	// A promo is validated and consumed under one per-user lock so the same code
	// cannot slip through two concurrent purchases.
	if strings.TrimSpace(req.PromoCode) != "" {
		unlock, err := u.lockPromo(ctx, req.UserID)
		if err != nil {
			metrics.IncSettlement(outcomeOf(err))
			return nil, err
		}
		defer unlock()
	}

	// --- Quoted ---
	p, err := u.quote(ctx, req)
	if err != nil {
		metrics.IncSettlement(outcomeOf(err))
		return nil, err
	}
	res := &SettlementResult{State: StateQuoted, Item: p.item, Quote: p.quote}

	// --- Reserved ---
	bal, err := u.ledger.Add(ctx, repository.NoTX, req.UserID, p.quote.Charge.Neg())
	if err != nil {
		if errors.Is(err, domain.ErrPersistence) {
			metrics.IncPersistenceFailure("ledger_reserve")
			l.Error().Err(err).Msg("reservation not persisted")
		}
		metrics.IncSettlement(outcomeOf(err))
		return nil, err
	}
	res.State = StateReserved
	res.Balance = bal

	order := &model.Order{
		ID:         model.NewOrderID(),
		UserID:     req.UserID,
		ItemID:     p.item.ID,
		ItemTitle:  p.item.Title,
		Quantity:   p.quantity,
		Link:       req.Link,
		Subtotal:   p.quote.Subtotal,
		Discount:   p.quote.Discount,
		Charged:    p.quote.Charge,
		PromoCode:  p.quote.PromoCode,
		Placements: p.placements,
		CreatedAt:  time.Now().UTC(),
	}
	res.Order = order
	l = logging.With(logging.WithOrderID(ctx, order.ID), u.log)
	l.Info().Str("item_id", p.item.ID).Str("charge", p.quote.Charge.StringFixed(2)).Msg("balance reserved")

	// --- Commit attempt ---
	cause := u.place(ctx, order)
	if cause == nil {
		return u.commit(ctx, res, l)
	}
	return u.rollback(ctx, res, cause, l)
}

func (u *settlementUC) ListOrders(ctx context.Context, userID int64, limit int) ([]*model.Order, error) {
	if userID == 0 {
		return nil, domain.ErrInvalidArgument
	}
	if limit <= 0 {
		limit = 10
	}
	return u.orders.ListByUser(ctx, repository.NoTX, userID, limit)
}

func (u *settlementUC) quote(ctx context.Context, req PurchaseRequest) (*plan, error) {
	if req.UserID == 0 || req.ItemID == "" {
		return nil, domain.ErrInvalidArgument
	}
	if strings.TrimSpace(req.Link) == "" {
		return nil, fmt.Errorf("%w: link is required", domain.ErrInvalidArgument)
	}
	item, err := u.catalog.Item(ctx, req.ItemID)
	if err != nil {
		return nil, err
	}

	p := &plan{item: item}
	if item.IsBundle() {
		p.quantity = 1
		for _, c := range item.Components {
			if err := u.checkBounds(ctx, c.ServiceID, c.Quantity); err != nil {
				return nil, err
			}
			p.placements = append(p.placements, model.Placement{ServiceID: c.ServiceID, Quantity: c.Quantity})
		}
	} else {
		sid, err := u.catalog.Resolve(ctx, item)
		if err != nil {
			return nil, err
		}
		qty := req.Quantity
		if item.Unit == model.UnitPackage && item.PackageQuantity > 0 {
			qty = item.PackageQuantity
		}
		if qty <= 0 {
			return nil, fmt.Errorf("%w: quantity must be positive", domain.ErrQuantityOutOfRange)
		}
		if item.Unit != model.UnitPackage && u.cfg.MinQuantity > 0 && qty < u.cfg.MinQuantity {
			return nil, fmt.Errorf("%w: minimum is %d", domain.ErrQuantityOutOfRange, u.cfg.MinQuantity)
		}
		if err := u.checkBounds(ctx, sid, qty); err != nil {
			return nil, err
		}
		p.quantity = qty
		p.placements = []model.Placement{{ServiceID: sid, Quantity: qty}}
	}

	q, err := u.pricing.Quote(item, p.quantity, "", decimal.Zero)
	if err != nil {
		return nil, err
	}

	if code := model.NormalizePromoCode(req.PromoCode); code != "" {
		if item.IsBundle() {
			return nil, &domain.PromoError{Code: code, Reason: domain.PromoReasonNotEligible}
		}
		d, err := u.promos.Validate(ctx, code, q.Subtotal, req.UserID)
		if err != nil {
			return nil, err
		}
		if !d.Accepted {
			return nil, d.Err()
		}
		if q, err = u.pricing.Quote(item, p.quantity, d.Code, d.Percent); err != nil {
			return nil, err
		}
	}
	if !q.Charge.IsPositive() {
		return nil, fmt.Errorf("%w: charge for %s is %s", domain.ErrInvalidAmount, item.ID, q.Charge)
	}
	p.quote = q
	return p, nil
}

func (u *settlementUC) checkBounds(ctx context.Context, serviceID string, quantity int64) error {
	svc, err := u.catalog.ProviderService(ctx, serviceID)
	if err != nil {
		return err
	}
	if !svc.Allows(quantity) {
		return fmt.Errorf("%w: %d not within [%d, %d] for service %s", domain.ErrQuantityOutOfRange, quantity, svc.Min, svc.Max, serviceID)
	}
	return nil
}

// place calls the provider for every placement and stops at the first failure.
func (u *settlementUC) place(ctx context.Context, o *model.Order) error {
	for i := range o.Placements {
		pl := &o.Placements[i]
		upstreamID, err := u.placeOne(ctx, o.Link, pl)
		if err != nil {
			pl.Error = err.Error()
			return err
		}
		pl.UpstreamOrderID = upstreamID
	}
	return nil
}

func (u *settlementUC) placeOne(ctx context.Context, link string, pl *model.Placement) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, u.cfg.ProviderTimeout)
	defer cancel()
	defer logging.TraceDuration(u.log, "Provider.PlaceOrder")()

	id, err := u.provider.PlaceOrder(ctx, pl.ServiceID, link, pl.Quantity)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(id) == "" {
		return "", errors.New("provider returned no order id")
	}
	return id, nil
}

func (u *settlementUC) commit(ctx context.Context, res *SettlementResult, l *zerolog.Logger) (*SettlementResult, error) {
	o := res.Order
	ids := make([]string, 0, len(o.Placements))
	for _, pl := range o.Placements {
		ids = append(ids, pl.UpstreamOrderID)
	}
	upstream := strings.Join(ids, ",")
	o.UpstreamOrderID = &upstream
	o.Status = model.OrderStatusCommitted
	res.State = StateCommitted

	// The debit is final from here on. Bookkeeping failures are reported but never
	// reverse the charge.
	if err := u.orders.Append(ctx, repository.NoTX, o); err != nil {
		metrics.IncPersistenceFailure("order_append")
		l.Error().Err(err).Str("upstream_order_id", upstream).Msg("committed order not recorded")
	}
	if o.PromoCode != "" {
		if err := u.promos.MarkUsed(ctx, o.UserID, o.PromoCode); err != nil {
			metrics.IncPersistenceFailure("promo_mark_used")
			l.Error().Err(err).Str("promo", o.PromoCode).Msg("promo usage not recorded")
		}
	}

	metrics.IncSettlement(string(StateCommitted))
	metrics.AddRevenue(o.Charged)
	l.Info().Str("upstream_order_id", upstream).Str("charged", o.Charged.StringFixed(2)).Msg("settlement committed")
	if u.notifier != nil {
		u.notifier.OrderCommitted(ctx, o)
	}
	return res, nil
}

func (u *settlementUC) rollback(ctx context.Context, res *SettlementResult, cause error, l *zerolog.Logger) (*SettlementResult, error) {
	o := res.Order
	o.Status = model.OrderStatusRolledBack
	res.State = StateRolledBack

	// The caller may have given up already; the credit must still land.
	cctx := context.WithoutCancel(ctx)
	provErr := &domain.ProviderError{Op: "place_order", Err: cause}

	bal, applied, err := u.ledger.ApplyOnce(cctx, repository.NoTX, o.UserID, o.Charged, o.RefundRef())
	if err != nil {
		metrics.IncPersistenceFailure("ledger_refund")
		metrics.IncSettlement("refund_failed")
		l.Error().Err(err).AnErr("cause", cause).Str("charge", o.Charged.StringFixed(2)).Msg("compensating credit failed")
		return res, errors.Join(provErr, fmt.Errorf("compensating credit for order %s: %w", o.ID, err))
	}
	if !applied {
		l.Warn().Msg("compensating credit already applied")
	}
	provErr.Restored = true
	res.Balance = bal

	placed := 0
	for _, pl := range o.Placements {
		if pl.UpstreamOrderID != "" {
			placed++
		}
	}
	ev := l.Warn().Err(cause).Str("balance", bal.StringFixed(2))
	if placed > 0 {
		// No cancel endpoint upstream: these placements may still be delivered.
		ev = ev.Int("placed_before_failure", placed)
	}
	ev.Msg("settlement rolled back")

	if err := u.orders.Append(cctx, repository.NoTX, o); err != nil {
		metrics.IncPersistenceFailure("order_append")
		l.Error().Err(err).Msg("rolled back order not recorded")
	}
	metrics.IncSettlement(string(StateRolledBack))
	if u.notifier != nil {
		u.notifier.OrderRolledBack(cctx, o, cause)
	}
	return res, provErr
}

func (u *settlementUC) lockPromo(ctx context.Context, userID int64) (func(), error) {
	unlock := u.promoMu.LockID(userID)
	if u.cfg.Locker == nil {
		return unlock, nil
	}
	key := fmt.Sprintf("promo:%d", userID)
	token, err := u.cfg.Locker.TryLock(ctx, key, promoLockTTL)
	if err != nil {
		unlock()
		return nil, err
	}
	return func() {
		if err := u.cfg.Locker.Unlock(context.WithoutCancel(ctx), key, token); err != nil {
			u.log.Warn().Err(err).Str("key", key).Msg("unlock failed")
		}
		unlock()
	}, nil
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, domain.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, domain.ErrQuantityOutOfRange):
		return "quantity_out_of_range"
	case errors.Is(err, domain.ErrUnmappedService):
		return "unmapped_service"
	case errors.Is(err, domain.ErrPromoRejected):
		return "promo_rejected"
	case errors.Is(err, domain.ErrProviderFailure):
		return "provider_error"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrPersistence):
		return "persistence_error"
	case errors.Is(err, domain.ErrLockNotAcquired):
		return "busy"
	default:
		return "invalid"
	}
}
