package usecase

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"telegram-smm-shop/internal/domain/model"
	"telegram-smm-shop/internal/domain/ports/repository"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Compile-time check
var _ StatsUseCase = (*statsUC)(nil)

// ShopTotals is the admin summary shown by /status.
type ShopTotals struct {
	OrdersByStatus  map[model.OrderStatus]int
	Revenue         decimal.Decimal // sum charged by committed orders
	PendingInvoices int
}

var ordersCSVHeader = []string{
	"order_id", "created_at", "user_id", "item_id", "item_title", "quantity", "link",
	"subtotal", "discount", "charged", "promo_code", "status", "upstream_order_id",
}

type StatsUseCase interface {
	Totals(ctx context.Context) (*ShopTotals, error)
	// ExportOrdersCSV writes every order record in append order.
	ExportOrdersCSV(ctx context.Context, w io.Writer) (int, error)
}

type statsUC struct {
	orders   repository.OrderRepository
	invoices repository.InvoiceRepository

	log *zerolog.Logger
}

func NewStatsUseCase(orders repository.OrderRepository, invoices repository.InvoiceRepository, logger *zerolog.Logger) *statsUC {
	return &statsUC{orders: orders, invoices: invoices, log: logger}
}

func (s *statsUC) Totals(ctx context.Context) (*ShopTotals, error) {
	all, err := s.orders.ListAll(ctx, repository.NoTX)
	if err != nil {
		return nil, err
	}
	t := &ShopTotals{OrdersByStatus: map[model.OrderStatus]int{}, Revenue: decimal.Zero}
	for _, o := range all {
		t.OrdersByStatus[o.Status]++
		if o.Committed() {
			t.Revenue = t.Revenue.Add(o.Charged)
		}
	}
	pending, err := s.invoices.ListByStatus(ctx, repository.NoTX, model.InvoiceStatusPending, 0)
	if err != nil {
		return nil, err
	}
	t.PendingInvoices = len(pending)
	return t, nil
}

func (s *statsUC) ExportOrdersCSV(ctx context.Context, w io.Writer) (int, error) {
	all, err := s.orders.ListAll(ctx, repository.NoTX)
	if err != nil {
		return 0, err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(ordersCSVHeader); err != nil {
		return 0, err
	}
	for _, o := range all {
		upstream := ""
		if o.UpstreamOrderID != nil {
			upstream = *o.UpstreamOrderID
		}
		row := []string{
			o.ID,
			o.CreatedAt.UTC().Format(time.RFC3339),
			strconv.FormatInt(o.UserID, 10),
			o.ItemID,
			o.ItemTitle,
			strconv.FormatInt(o.Quantity, 10),
			o.Link,
			o.Subtotal.StringFixed(2),
			o.Discount.StringFixed(2),
			o.Charged.StringFixed(2),
			o.PromoCode,
			string(o.Status),
			upstream,
		}
		if err := cw.Write(row); err != nil {
			return 0, err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return 0, err
	}
	s.log.Debug().Int("orders", len(all)).Msg("orders exported")
	return len(all), nil
}
