package application

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"telegram-smm-shop/internal/config"
	"telegram-smm-shop/internal/domain"
	"telegram-smm-shop/internal/domain/model"
	"telegram-smm-shop/internal/usecase"
)

const (
	ordersShown           = 10
	mappingsShown         = 50
	providerServicesShown = 10
)

// BotFacade composes use cases into bot commands. Methods return the text to
// send; an error means something unexpected failed and the adapter answers
// with a generic message.
type BotFacade struct {
	Ledger     LedgerUseCaseIface
	Invoices   InvoiceUseCaseIface
	Settlement SettlementUseCaseIface
	Catalog    CatalogUseCaseIface
	Stats      StatsUseCaseIface
	Pricing    *usecase.PricingEngine

	tr      Translator
	payment config.PaymentConfig
	now     func() time.Time
}

func NewBotFacade(
	ledger LedgerUseCaseIface,
	invoices InvoiceUseCaseIface,
	settlement SettlementUseCaseIface,
	catalog CatalogUseCaseIface,
	stats StatsUseCaseIface,
	pricing *usecase.PricingEngine,
	tr Translator,
	payment config.PaymentConfig,
) *BotFacade {
	return &BotFacade{
		Ledger:     ledger,
		Invoices:   invoices,
		Settlement: settlement,
		Catalog:    catalog,
		Stats:      stats,
		Pricing:    pricing,
		tr:         tr,
		payment:    payment,
		now:        time.Now,
	}
}

func money(d decimal.Decimal) string { return model.RoundMoney(d).StringFixed(model.MoneyPlaces) }

func (b *BotFacade) HandleStart(ctx context.Context, tgID int64, name string) (string, error) {
	bal, err := b.Ledger.GetBalance(ctx, tgID)
	if err != nil {
		return "", fmt.Errorf("get balance: %w", err)
	}
	if strings.TrimSpace(name) == "" {
		name = strconv.FormatInt(tgID, 10)
	}
	return b.tr.T("welcome", name, money(bal)), nil
}

func (b *BotFacade) HandleHelp(isAdmin bool) string {
	text := b.tr.T("help")
	if isAdmin {
		text += "\n\n" + b.tr.T("help_admin")
	}
	return text
}

func (b *BotFacade) HandleBalance(ctx context.Context, tgID int64) (string, error) {
	bal, err := b.Ledger.GetBalance(ctx, tgID)
	if err != nil {
		return "", fmt.Errorf("get balance: %w", err)
	}
	return b.tr.T("balance", money(bal)), nil
}

// HandleTopup expects "<amount> [note...]".
func (b *BotFacade) HandleTopup(ctx context.Context, tgID int64, args []string) (string, error) {
	if len(args) < 1 {
		return b.tr.T("usage_topup"), nil
	}
	amount, err := model.ParseAmount(args[0])
	if err != nil {
		return b.tr.T("error_invalid_amount"), nil
	}
	inv, err := b.Invoices.Create(ctx, tgID, amount, strings.Join(args[1:], " "))
	if err != nil {
		if errors.Is(err, domain.ErrInvalidAmount) {
			return b.tr.T("error_invalid_amount"), nil
		}
		return "", fmt.Errorf("create invoice: %w", err)
	}
	return b.tr.T("invoice_created", inv.ID, money(inv.Amount), b.payment.CardDetails, b.payment.Instructions), nil
}

func (b *BotFacade) HandleConfirmPayment(ctx context.Context, args []string) (string, error) {
	if len(args) < 1 || strings.TrimSpace(args[0]) == "" {
		return b.tr.T("usage_confirm"), nil
	}
	id := strings.TrimSpace(args[0])
	res, err := b.Invoices.Confirm(ctx, id)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrNotFound):
		return b.tr.T("invoice_not_found", id), nil
	case errors.Is(err, domain.ErrLockNotAcquired):
		return b.tr.T("invoice_busy", id), nil
	default:
		return "", fmt.Errorf("confirm invoice %s: %w", id, err)
	}
	if res.AlreadyProcessed {
		return b.tr.T("invoice_already_paid", id), nil
	}
	return b.tr.T("invoice_confirmed", id, res.Invoice.UserID, money(res.Invoice.Amount), money(res.Balance)), nil
}

func (b *BotFacade) HandleServices(ctx context.Context) (string, error) {
	cat, err := b.Catalog.Catalog(ctx)
	if err != nil {
		return "", fmt.Errorf("load catalog: %w", err)
	}
	var sb strings.Builder
	sb.WriteString(b.tr.T("services_header"))
	n := 0
	for _, c := range cat.Categories {
		if len(c.Items) == 0 {
			continue
		}
		sb.WriteString("\n\n" + b.tr.T("services_category", c.Title))
		for i := range c.Items {
			it := &c.Items[i]
			sb.WriteString("\n" + b.tr.T("services_item", it.ID, it.Title, money(b.Pricing.DisplayPrice(it)), b.tr.T("unit_"+string(it.Unit))))
			n++
		}
	}
	if n == 0 {
		return b.tr.T("services_empty"), nil
	}
	sb.WriteString("\n\n" + b.tr.T("usage_buy"))
	return sb.String(), nil
}

// HandleBuy expects "<item_id> <link> <quantity> [promo]". Bundles and packages
// accept "<item_id> <link> [promo]" as well.
func (b *BotFacade) HandleBuy(ctx context.Context, tgID int64, args []string) (string, error) {
	if len(args) < 2 {
		return b.tr.T("usage_buy"), nil
	}
	req := usecase.PurchaseRequest{UserID: tgID, ItemID: args[0], Link: args[1]}
	rest := args[2:]
	if len(rest) > 0 {
		if q, err := strconv.ParseInt(rest[0], 10, 64); err == nil {
			req.Quantity = q
			rest = rest[1:]
		}
	}
	if len(rest) > 0 {
		req.PromoCode = rest[0]
	}

	res, err := b.Settlement.Purchase(ctx, req)
	if err != nil {
		return b.describePurchaseError(res, err)
	}
	o := res.Order
	text := b.tr.T("order_committed", o.ItemTitle, *o.UpstreamOrderID, money(o.Charged), money(res.Balance))
	if o.PromoCode != "" {
		text += "\n" + b.tr.T("order_discount", o.PromoCode, money(o.Discount))
	}
	return text, nil
}

func (b *BotFacade) describePurchaseError(res *usecase.SettlementResult, err error) (string, error) {
	var (
		ife   *domain.InsufficientFundsError
		perr  *domain.ProviderError
		promo *domain.PromoError
	)
	switch {
	case errors.As(err, &ife):
		return b.tr.T("insufficient_funds", money(ife.Required), money(ife.Balance), money(ife.Shortfall())), nil
	case errors.As(err, &perr) && res != nil && res.Order != nil:
		// Only a failure after the reservation carries an order; quote-time
		// provider errors fall through to provider_unavailable.
		if perr.Restored {
			return b.tr.T("order_failed_restored", money(res.Order.Charged), money(res.Balance)), nil
		}
		// The refund did not persist; the admin log already has the details.
		return "", err
	case errors.As(err, &promo):
		return b.tr.T("promo_"+string(promo.Reason), promo.Code), nil
	case errors.Is(err, domain.ErrPersistence):
		return "", err
	case errors.Is(err, domain.ErrProviderFailure):
		return b.tr.T("provider_unavailable"), nil
	case errors.Is(err, domain.ErrLockNotAcquired):
		return b.tr.T("purchase_busy"), nil
	case errors.Is(err, domain.ErrQuantityOutOfRange):
		return b.tr.T("quantity_out_of_range", err.Error()), nil
	case errors.Is(err, domain.ErrUnmappedService):
		return b.tr.T("unmapped_service"), nil
	case errors.Is(err, domain.ErrNotFound):
		return b.tr.T("item_not_found"), nil
	case errors.Is(err, domain.ErrInvalidArgument), errors.Is(err, domain.ErrInvalidAmount):
		return b.tr.T("usage_buy"), nil
	default:
		return "", err
	}
}

func (b *BotFacade) HandleOrders(ctx context.Context, tgID int64) (string, error) {
	orders, err := b.Settlement.ListOrders(ctx, tgID, ordersShown)
	if err != nil {
		return "", fmt.Errorf("list orders: %w", err)
	}
	if len(orders) == 0 {
		return b.tr.T("orders_empty"), nil
	}
	var sb strings.Builder
	sb.WriteString(b.tr.T("orders_header"))
	for _, o := range orders {
		upstream := "-"
		if o.UpstreamOrderID != nil {
			upstream = *o.UpstreamOrderID
		}
		sb.WriteString("\n" + b.tr.T("orders_line",
			o.CreatedAt.Format("2006-01-02 15:04"), o.ItemTitle, o.Quantity, money(o.Charged),
			b.tr.T("status_"+string(o.Status)), upstream))
	}
	return sb.String(), nil
}

// HandleOrdersCSV returns the export file name and content.
func (b *BotFacade) HandleOrdersCSV(ctx context.Context) (string, []byte, int, error) {
	var buf bytes.Buffer
	n, err := b.Stats.ExportOrdersCSV(ctx, &buf)
	if err != nil {
		return "", nil, 0, fmt.Errorf("export orders: %w", err)
	}
	name := "orders_" + b.now().UTC().Format("20060102_150405") + ".csv"
	return name, buf.Bytes(), n, nil
}

func (b *BotFacade) HandleOrdersCSVCaption(n int) string { return b.tr.T("orders_csv_caption", n) }

func (b *BotFacade) HandleStatus(ctx context.Context) (string, error) {
	t, err := b.Stats.Totals(ctx)
	if err != nil {
		return "", fmt.Errorf("totals: %w", err)
	}
	return b.tr.T("shop_status",
		t.OrdersByStatus[model.OrderStatusCommitted], t.OrdersByStatus[model.OrderStatusRolledBack],
		money(t.Revenue), t.PendingInvoices), nil
}

func (b *BotFacade) HandleSyncServices(ctx context.Context) (string, error) {
	rep, err := b.Catalog.SyncServices(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrProviderFailure) {
			return b.tr.T("provider_unavailable"), nil
		}
		return "", fmt.Errorf("sync services: %w", err)
	}
	var sb strings.Builder
	sb.WriteString(b.tr.T("sync_report", len(rep.Matched), len(rep.Unmatched), rep.Skipped))
	for _, m := range rep.Matched {
		sb.WriteString("\n" + b.tr.T("sync_line", m.ItemTitle, m.ServiceID, m.ServiceName, int(m.Score*100)))
	}
	if len(rep.Unmatched) > 0 {
		sb.WriteString("\n" + b.tr.T("sync_unmatched", strings.Join(rep.Unmatched, ", ")))
	}
	return sb.String(), nil
}

func (b *BotFacade) HandleSetService(ctx context.Context, args []string) (string, error) {
	if len(args) < 2 {
		return b.tr.T("usage_set_service"), nil
	}
	err := b.Catalog.SetService(ctx, args[0], args[1])
	switch {
	case err == nil:
		return b.tr.T("service_set", args[0], args[1]), nil
	case errors.Is(err, domain.ErrNotFound):
		return b.tr.T("item_not_found"), nil
	case errors.Is(err, domain.ErrInvalidArgument):
		return b.tr.T("usage_set_service"), nil
	default:
		return "", fmt.Errorf("set service: %w", err)
	}
}

func (b *BotFacade) HandleShowMap(ctx context.Context) (string, error) {
	entries, err := b.Catalog.Mappings(ctx, mappingsShown)
	if err != nil {
		return "", fmt.Errorf("mappings: %w", err)
	}
	if len(entries) == 0 {
		return b.tr.T("map_empty"), nil
	}
	var sb strings.Builder
	sb.WriteString(b.tr.T("map_header"))
	for _, e := range entries {
		line := b.tr.T("map_line", e.Key, e.ServiceID)
		if e.Legacy {
			line += " " + b.tr.T("map_legacy")
		}
		sb.WriteString("\n" + line)
	}
	return sb.String(), nil
}

func (b *BotFacade) HandleProviderServices(ctx context.Context) (string, error) {
	services, err := b.Catalog.ProviderServices(ctx, providerServicesShown)
	if err != nil {
		if errors.Is(err, domain.ErrProviderFailure) {
			return b.tr.T("provider_unavailable"), nil
		}
		return "", fmt.Errorf("provider services: %w", err)
	}
	var sb strings.Builder
	sb.WriteString(b.tr.T("provider_services_header", len(services)))
	for _, s := range services {
		sb.WriteString("\n" + b.tr.T("provider_service_line", s.ID, s.Name, money(s.RatePer1000), s.Min, s.Max))
	}
	return sb.String(), nil
}
