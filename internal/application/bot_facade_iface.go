package application

import (
	"context"
	"io"

	"telegram-smm-shop/internal/domain/model"
	"telegram-smm-shop/internal/usecase"

	"github.com/shopspring/decimal"
)

// Narrow views of the use cases, so facade tests can pass light-weight fakes.

type LedgerUseCaseIface interface {
	GetBalance(ctx context.Context, userID int64) (decimal.Decimal, error)
}

type InvoiceUseCaseIface interface {
	Create(ctx context.Context, userID int64, amount decimal.Decimal, note string) (*model.Invoice, error)
	Confirm(ctx context.Context, id string) (*usecase.ConfirmResult, error)
}

type SettlementUseCaseIface interface {
	Purchase(ctx context.Context, req usecase.PurchaseRequest) (*usecase.SettlementResult, error)
	ListOrders(ctx context.Context, userID int64, limit int) ([]*model.Order, error)
}

type CatalogUseCaseIface interface {
	Catalog(ctx context.Context) (*model.Catalog, error)
	ProviderServices(ctx context.Context, limit int) ([]model.ProviderService, error)
	SetService(ctx context.Context, itemID, serviceID string) error
	Mappings(ctx context.Context, limit int) ([]usecase.MappingEntry, error)
	SyncServices(ctx context.Context) (*usecase.SyncReport, error)
}

type StatsUseCaseIface interface {
	Totals(ctx context.Context) (*usecase.ShopTotals, error)
	ExportOrdersCSV(ctx context.Context, w io.Writer) (int, error)
}

type Translator interface {
	T(key string, args ...interface{}) string
}

// Compile-time checks against the concrete use cases.
var (
	_ LedgerUseCaseIface     = (usecase.LedgerUseCase)(nil)
	_ InvoiceUseCaseIface    = (usecase.InvoiceUseCase)(nil)
	_ SettlementUseCaseIface = (usecase.SettlementUseCase)(nil)
	_ CatalogUseCaseIface    = (usecase.CatalogUseCase)(nil)
	_ StatsUseCaseIface      = (usecase.StatsUseCase)(nil)
)
