package telegram

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"telegram-smm-shop/internal/infra/logging"
	"telegram-smm-shop/internal/infra/metrics"
)

// Facade is the command surface of application.BotFacade.
type Facade interface {
	HandleStart(ctx context.Context, tgID int64, name string) (string, error)
	HandleHelp(isAdmin bool) string
	HandleBalance(ctx context.Context, tgID int64) (string, error)
	HandleTopup(ctx context.Context, tgID int64, args []string) (string, error)
	HandleConfirmPayment(ctx context.Context, args []string) (string, error)
	HandleServices(ctx context.Context) (string, error)
	HandleBuy(ctx context.Context, tgID int64, args []string) (string, error)
	HandleOrders(ctx context.Context, tgID int64) (string, error)
	HandleOrdersCSV(ctx context.Context) (string, []byte, int, error)
	HandleOrdersCSVCaption(n int) string
	HandleStatus(ctx context.Context) (string, error)
	HandleSyncServices(ctx context.Context) (string, error)
	HandleSetService(ctx context.Context, args []string) (string, error)
	HandleShowMap(ctx context.Context) (string, error)
	HandleProviderServices(ctx context.Context) (string, error)
}

type Translator interface {
	T(key string, args ...interface{}) string
}

type commandHandler func(ctx context.Context, message *tgbotapi.Message) error

var userCommands = []tgbotapi.BotCommand{
	{Command: "start", Description: "Start"},
	{Command: "balance", Description: "Balance"},
	{Command: "topup", Description: "Top up balance"},
	{Command: "services", Description: "Service catalog"},
	{Command: "buy", Description: "Place an order"},
	{Command: "orders", Description: "Recent orders"},
	{Command: "help", Description: "Help"},
}

var adminCommands = []tgbotapi.BotCommand{
	{Command: "confirm_payment", Description: "Confirm an invoice"},
	{Command: "status", Description: "Shop totals"},
	{Command: "orders_csv", Description: "Export orders"},
	{Command: "sync_services", Description: "Match items to provider services"},
	{Command: "set_service", Description: "Map an item to a service"},
	{Command: "show_map", Description: "Show service mappings"},
	{Command: "provider_services", Description: "List provider services"},
}

func (r *RealTelegramBotAdapter) commandRoutes() map[string]commandHandler {
	return map[string]commandHandler{
		"start": r.handleStartCommand,
		"help":  r.handleHelpCommand,
		"balance": r.reply(func(ctx context.Context, m *tgbotapi.Message) (string, error) {
			return r.facade.HandleBalance(ctx, m.From.ID)
		}),
		"topup": r.reply(func(ctx context.Context, m *tgbotapi.Message) (string, error) {
			return r.facade.HandleTopup(ctx, m.From.ID, args(m))
		}),
		"services": r.reply(func(ctx context.Context, _ *tgbotapi.Message) (string, error) { return r.facade.HandleServices(ctx) }),
		"buy": r.reply(func(ctx context.Context, m *tgbotapi.Message) (string, error) {
			return r.facade.HandleBuy(ctx, m.From.ID, args(m))
		}),
		"orders": r.reply(func(ctx context.Context, m *tgbotapi.Message) (string, error) {
			return r.facade.HandleOrders(ctx, m.From.ID)
		}),

		// These handlers are wrapped in the adminOnly middleware.
		"confirm_payment": r.adminOnly(r.reply(func(ctx context.Context, m *tgbotapi.Message) (string, error) {
			return r.facade.HandleConfirmPayment(ctx, args(m))
		})),
		"status":     r.adminOnly(r.reply(func(ctx context.Context, _ *tgbotapi.Message) (string, error) { return r.facade.HandleStatus(ctx) })),
		"orders_csv": r.adminOnly(r.handleOrdersCSVCommand),
		"sync_services": r.adminOnly(r.reply(func(ctx context.Context, _ *tgbotapi.Message) (string, error) {
			return r.facade.HandleSyncServices(ctx)
		})),
		"set_service": r.adminOnly(r.reply(func(ctx context.Context, m *tgbotapi.Message) (string, error) {
			return r.facade.HandleSetService(ctx, args(m))
		})),
		"show_map": r.adminOnly(r.reply(func(ctx context.Context, _ *tgbotapi.Message) (string, error) { return r.facade.HandleShowMap(ctx) })),
		"provider_services": r.adminOnly(r.reply(func(ctx context.Context, _ *tgbotapi.Message) (string, error) {
			return r.facade.HandleProviderServices(ctx)
		})),
	}
}

func args(m *tgbotapi.Message) []string { return strings.Fields(m.CommandArguments()) }

func (r *RealTelegramBotAdapter) isAdmin(id int64) bool {
	_, ok := r.adminIDsMap[id]
	return ok
}

func (r *RealTelegramBotAdapter) adminOnly(next commandHandler) commandHandler {
	return func(ctx context.Context, message *tgbotapi.Message) error {
		if !r.isAdmin(message.From.ID) {
			metrics.IncAdminCommand("/"+message.Command(), "unauthorized")
			return r.SendMessage(ctx, message.Chat.ID, r.translator.T("error_unauthorized"))
		}
		metrics.IncAdminCommand("/"+message.Command(), "authorized")
		return next(ctx, message)
	}
}

// reply sends the facade's text, or the generic error text when it failed.
func (r *RealTelegramBotAdapter) reply(fn func(ctx context.Context, m *tgbotapi.Message) (string, error)) commandHandler {
	return func(ctx context.Context, message *tgbotapi.Message) error {
		text, err := fn(ctx, message)
		if err != nil {
			logging.With(ctx, r.log).Error().Err(err).Str("command", message.Command()).Msg("command failed")
			text = r.translator.T("error_generic")
		}
		return r.SendMessage(ctx, message.Chat.ID, text)
	}
}

func (r *RealTelegramBotAdapter) handleStartCommand(ctx context.Context, message *tgbotapi.Message) error {
	isAdmin := r.isAdmin(message.From.ID)
	if err := r.SetMenuCommands(ctx, message.Chat.ID, isAdmin); err != nil {
		r.log.Warn().Err(err).Int64("tg_id", message.From.ID).Msg("failed to set menu commands")
	}
	text, err := r.facade.HandleStart(ctx, message.From.ID, message.From.FirstName)
	if err != nil {
		logging.With(ctx, r.log).Error().Err(err).Msg("start failed")
		text = r.translator.T("error_generic")
	}
	return r.SendMessage(ctx, message.Chat.ID, text)
}

func (r *RealTelegramBotAdapter) handleHelpCommand(ctx context.Context, message *tgbotapi.Message) error {
	return r.SendMessage(ctx, message.Chat.ID, r.facade.HandleHelp(r.isAdmin(message.From.ID)))
}

func (r *RealTelegramBotAdapter) handleOrdersCSVCommand(ctx context.Context, message *tgbotapi.Message) error {
	name, data, n, err := r.facade.HandleOrdersCSV(ctx)
	if err != nil {
		logging.With(ctx, r.log).Error().Err(err).Msg("orders export failed")
		return r.SendMessage(ctx, message.Chat.ID, r.translator.T("error_generic"))
	}
	if n == 0 {
		return r.SendMessage(ctx, message.Chat.ID, r.translator.T("orders_csv_empty"))
	}
	return r.SendDocument(ctx, message.Chat.ID, name, data, r.facade.HandleOrdersCSVCaption(n))
}
