package adapter

import (
	"context"

	"telegram-smm-shop/internal/domain/model"

	"github.com/shopspring/decimal"
)

type InlineButton struct {
	Text string
	Data string
	URL  string
}

type TelegramBotAdapter interface {
	SendMessage(ctx context.Context, telegramID int64, text string) error
	SendButtons(ctx context.Context, telegramID int64, text string, rows [][]InlineButton) error
	SendDocument(ctx context.Context, telegramID int64, filename string, data []byte, caption string) error
}

// Notifier delivers out-of-band events to the admin log chat and to users.
// Implementations must not block the caller.
type Notifier interface {
	InvoiceCreated(ctx context.Context, inv *model.Invoice)
	InvoicePaid(ctx context.Context, inv *model.Invoice, balance decimal.Decimal)
	OrderCommitted(ctx context.Context, o *model.Order)
	OrderRolledBack(ctx context.Context, o *model.Order, cause error)
}
