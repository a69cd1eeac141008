package telegram

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"telegram-smm-shop/internal/domain/model"
	"telegram-smm-shop/internal/domain/ports/adapter"
	"telegram-smm-shop/internal/infra/worker"
)

var _ adapter.Notifier = (*Notifier)(nil)

const notifyTimeout = 15 * time.Second

// Notifier sends shop events to the admin log chat and to users through the
// worker pool, so a slow Telegram API never holds up a settlement.
type Notifier struct {
	sender    adapter.TelegramBotAdapter
	pool      *worker.Pool
	tr        Translator
	logChatID int64
	log       *zerolog.Logger
}

// NewNotifier with logChatID 0 only notifies users. sender may be nil and bound
// later with Bind, before any event is raised.
func NewNotifier(sender adapter.TelegramBotAdapter, pool *worker.Pool, tr Translator, logChatID int64, logger *zerolog.Logger) *Notifier {
	return &Notifier{sender: sender, pool: pool, tr: tr, logChatID: logChatID, log: logger}
}

// Bind sets the sender once the bot adapter exists. Not safe for concurrent use
// with the event methods.
func (n *Notifier) Bind(sender adapter.TelegramBotAdapter) { n.sender = sender }

func money(d decimal.Decimal) string { return model.RoundMoney(d).StringFixed(model.MoneyPlaces) }

func (n *Notifier) send(chatID int64, text string) {
	if chatID == 0 {
		return
	}
	if n.sender == nil {
		n.log.Warn().Int64("chat_id", chatID).Msg("notification dropped: no sender bound")
		return
	}
	err := n.pool.Submit(func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, notifyTimeout)
		defer cancel()
		return n.sender.SendMessage(ctx, chatID, text)
	})
	if err != nil {
		n.log.Warn().Err(err).Int64("chat_id", chatID).Msg("notification dropped")
	}
}

func (n *Notifier) InvoiceCreated(_ context.Context, inv *model.Invoice) {
	note := inv.Note
	if note == "" {
		note = "-"
	}
	n.send(n.logChatID, n.tr.T("admin_invoice_created", inv.ID, inv.UserID, money(inv.Amount), note, inv.ID))
}

func (n *Notifier) InvoicePaid(_ context.Context, inv *model.Invoice, balance decimal.Decimal) {
	n.send(inv.UserID, n.tr.T("user_invoice_paid", money(inv.Amount), money(balance)))
	n.send(n.logChatID, n.tr.T("admin_invoice_paid", inv.ID, inv.UserID, money(inv.Amount)))
}

func (n *Notifier) OrderCommitted(_ context.Context, o *model.Order) {
	upstream := ""
	if o.UpstreamOrderID != nil {
		upstream = *o.UpstreamOrderID
	}
	n.send(n.logChatID, n.tr.T("admin_order_committed", o.ID, o.UserID, o.ItemTitle, o.Quantity, money(o.Charged), upstream))
}

func (n *Notifier) OrderRolledBack(_ context.Context, o *model.Order, cause error) {
	reason := "-"
	if cause != nil {
		reason = cause.Error()
	}
	text := n.tr.T("admin_order_rolled_back", o.ID, o.UserID, o.ItemTitle, money(o.Charged), reason)

	var placed []string
	for _, p := range o.Placements {
		if p.UpstreamOrderID != "" {
			placed = append(placed, p.UpstreamOrderID)
		}
	}
	if len(placed) > 0 {
		text += "\n" + n.tr.T("admin_partial_delivery", strings.Join(placed, ","))
	}
	n.send(n.logChatID, text)
}
