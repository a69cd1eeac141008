//go:build !integration

package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telegram-smm-shop/internal/config"
	"telegram-smm-shop/internal/domain/model"
	"telegram-smm-shop/internal/domain/ports/adapter"
	"telegram-smm-shop/internal/infra/worker"
)

type fakeBot struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	updates  chan tgbotapi.Update
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, nil
}

func (f *fakeBot) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeBot) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	if f.updates != nil {
		return f.updates
	}
	return make(chan tgbotapi.Update)
}

func (f *fakeBot) StopReceivingUpdates() {}

func (f *fakeBot) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.sent {
		if m, ok := c.(tgbotapi.MessageConfig); ok {
			out = append(out, m.Text)
		}
	}
	return out
}

type echoTranslator struct{}

func (echoTranslator) T(key string, _ ...interface{}) string { return key }

type stubFacade struct {
	calls   []string
	lastArg []string
	err     error
	csvRows int
}

func (s *stubFacade) record(name string, args []string) (string, error) {
	s.calls = append(s.calls, name)
	s.lastArg = args
	if s.err != nil {
		return "", s.err
	}
	return name + ":" + strings.Join(args, ","), nil
}

func (s *stubFacade) HandleStart(_ context.Context, tgID int64, name string) (string, error) {
	return s.record("start", []string{name})
}
func (s *stubFacade) HandleHelp(isAdmin bool) string {
	if isAdmin {
		return "help+admin"
	}
	return "help"
}
func (s *stubFacade) HandleBalance(context.Context, int64) (string, error) {
	return s.record("balance", nil)
}
func (s *stubFacade) HandleTopup(_ context.Context, _ int64, a []string) (string, error) {
	return s.record("topup", a)
}
func (s *stubFacade) HandleConfirmPayment(_ context.Context, a []string) (string, error) {
	return s.record("confirm", a)
}
func (s *stubFacade) HandleServices(context.Context) (string, error) { return s.record("services", nil) }
func (s *stubFacade) HandleBuy(_ context.Context, _ int64, a []string) (string, error) {
	return s.record("buy", a)
}
func (s *stubFacade) HandleOrders(context.Context, int64) (string, error) {
	return s.record("orders", nil)
}
func (s *stubFacade) HandleOrdersCSV(context.Context) (string, []byte, int, error) {
	s.calls = append(s.calls, "orders_csv")
	return "orders.csv", []byte("order_id\n"), s.csvRows, s.err
}
func (s *stubFacade) HandleOrdersCSVCaption(n int) string          { return fmt.Sprintf("%d orders", n) }
func (s *stubFacade) HandleStatus(context.Context) (string, error) { return s.record("status", nil) }
func (s *stubFacade) HandleSyncServices(context.Context) (string, error) {
	return s.record("sync", nil)
}
func (s *stubFacade) HandleSetService(_ context.Context, a []string) (string, error) {
	return s.record("set_service", a)
}
func (s *stubFacade) HandleShowMap(context.Context) (string, error) { return s.record("show_map", nil) }
func (s *stubFacade) HandleProviderServices(context.Context) (string, error) {
	return s.record("provider_services", nil)
}

type denyAfter struct {
	mu    sync.Mutex
	count map[string]int
	limit int
}

func (d *denyAfter) Allow(_ context.Context, key string, _ int, _ time.Duration) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.count[key]++
	return d.count[key] <= d.limit, nil
}

const adminID = 1

func newTestAdapter(t *testing.T, limiter Limiter) (*RealTelegramBotAdapter, *fakeBot, *stubFacade) {
	t.Helper()
	logger := zerolog.New(io.Discard)
	bot := &fakeBot{}
	facade := &stubFacade{}
	cfg := &config.BotConfig{AdminIDs: []int64{adminID}, RateLimit: 2, RateWindow: time.Minute}
	a, err := newAdapter(bot, cfg, facade, echoTranslator{}, limiter, &logger)
	require.NoError(t, err)
	return a, bot, facade
}

// blockingFacade holds /balance until release is closed.
type blockingFacade struct {
	*stubFacade
	started  chan struct{}
	release  chan struct{}
	finished chan struct{}
}

func (b *blockingFacade) HandleBalance(context.Context, int64) (string, error) {
	close(b.started)
	<-b.release
	close(b.finished)
	return "balance", nil
}

func command(from int64, text string) tgbotapi.Update {
	cmd := strings.Fields(text)[0]
	return tgbotapi.Update{Message: &tgbotapi.Message{
		From:     &tgbotapi.User{ID: from, FirstName: "Ivan"},
		Chat:     &tgbotapi.Chat{ID: from},
		Text:     text,
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}},
	}}
}

func TestStartPolling(t *testing.T) {
	t.Run("should return only after in-flight handlers finish", func(t *testing.T) {
		logger := zerolog.New(io.Discard)
		bot := &fakeBot{updates: make(chan tgbotapi.Update)}
		facade := &blockingFacade{
			stubFacade: &stubFacade{},
			started:    make(chan struct{}),
			release:    make(chan struct{}),
			finished:   make(chan struct{}),
		}
		cfg := &config.BotConfig{AdminIDs: []int64{adminID}, Workers: 1}
		a, err := newAdapter(bot, cfg, facade, echoTranslator{}, nil, &logger)
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		done := make(chan error, 1)
		go func() { done <- a.StartPolling(ctx) }()

		bot.updates <- command(42, "/balance")
		select {
		case <-facade.started:
		case <-time.After(2 * time.Second):
			t.Fatal("handler did not start")
		}

		cancel()
		select {
		case <-done:
			t.Fatal("polling returned while a handler was running")
		case <-time.After(50 * time.Millisecond):
		}

		close(facade.release)
		select {
		case err := <-done:
			assert.ErrorIs(t, err, context.Canceled)
		case <-time.After(2 * time.Second):
			t.Fatal("polling did not return after the handler finished")
		}
		select {
		case <-facade.finished:
		default:
			t.Fatal("handler was cut short")
		}
	})
}

func TestCommandRouting(t *testing.T) {
	ctx := context.Background()

	t.Run("should pass arguments to the facade", func(t *testing.T) {
		a, bot, facade := newTestAdapter(t, nil)
		require.NoError(t, a.handleUpdate(ctx, command(42, "/buy tg_subs https://t.me/x 100 SAVE10")))

		assert.Equal(t, []string{"buy"}, facade.calls)
		assert.Equal(t, []string{"tg_subs", "https://t.me/x", "100", "SAVE10"}, facade.lastArg)
		assert.Equal(t, []string{"buy:tg_subs,https://t.me/x,100,SAVE10"}, bot.texts())
	})

	t.Run("should reply with the generic error when the facade fails", func(t *testing.T) {
		a, bot, facade := newTestAdapter(t, nil)
		facade.err = errors.New("disk full")
		require.NoError(t, a.handleUpdate(ctx, command(42, "/balance")))
		assert.Equal(t, []string{"error_generic"}, bot.texts())
	})

	t.Run("should ignore plain text and answer unknown commands", func(t *testing.T) {
		a, bot, _ := newTestAdapter(t, nil)
		plain := tgbotapi.Update{Message: &tgbotapi.Message{From: &tgbotapi.User{ID: 42}, Chat: &tgbotapi.Chat{ID: 42}, Text: "hello"}}
		require.NoError(t, a.handleUpdate(ctx, plain))
		require.NoError(t, a.handleUpdate(ctx, command(42, "/charge 100")))
		assert.Equal(t, []string{"unknown_command"}, bot.texts())
	})

	t.Run("should set the menu on start", func(t *testing.T) {
		a, bot, facade := newTestAdapter(t, nil)
		require.NoError(t, a.handleUpdate(ctx, command(adminID, "/start")))
		assert.Equal(t, []string{"Ivan"}, facade.lastArg)
		require.Len(t, bot.requests, 1)
		cfg, ok := bot.requests[0].(tgbotapi.SetMyCommandsConfig)
		require.True(t, ok)
		assert.Len(t, cfg.Commands, len(userCommands)+len(adminCommands))
	})
}

func TestAdminOnly(t *testing.T) {
	ctx := context.Background()
	a, bot, facade := newTestAdapter(t, nil)

	require.NoError(t, a.handleUpdate(ctx, command(42, "/confirm_payment abc")))
	assert.Empty(t, facade.calls, "non-admins never reach the facade")
	assert.Equal(t, []string{"error_unauthorized"}, bot.texts())

	require.NoError(t, a.handleUpdate(ctx, command(adminID, "/confirm_payment abc")))
	assert.Equal(t, []string{"confirm"}, facade.calls)
	assert.Equal(t, []string{"abc"}, facade.lastArg)

	require.NoError(t, a.handleUpdate(ctx, command(42, "/help")))
	require.NoError(t, a.handleUpdate(ctx, command(adminID, "/help")))
	texts := bot.texts()
	assert.Equal(t, []string{"help", "help+admin"}, texts[len(texts)-2:])
}

func TestOrdersCSVCommand(t *testing.T) {
	ctx := context.Background()

	a, bot, facade := newTestAdapter(t, nil)
	facade.csvRows = 2
	require.NoError(t, a.handleUpdate(ctx, command(adminID, "/orders_csv")))
	require.Len(t, bot.sent, 1)
	doc, ok := bot.sent[0].(tgbotapi.DocumentConfig)
	require.True(t, ok, "expected a document upload")
	assert.Equal(t, "2 orders", doc.Caption)
	fb, ok := doc.File.(tgbotapi.FileBytes)
	require.True(t, ok)
	assert.Equal(t, "orders.csv", fb.Name)

	a, bot, _ = newTestAdapter(t, nil)
	require.NoError(t, a.handleUpdate(ctx, command(adminID, "/orders_csv")))
	assert.Equal(t, []string{"orders_csv_empty"}, bot.texts())
}

func TestRateLimit(t *testing.T) {
	ctx := context.Background()
	a, bot, facade := newTestAdapter(t, &denyAfter{count: map[string]int{}, limit: 2})

	for i := 0; i < 3; i++ {
		require.NoError(t, a.handleUpdate(ctx, command(42, "/balance")))
	}
	require.NoError(t, a.handleUpdate(ctx, command(42, "/orders")))

	assert.Equal(t, []string{"balance", "balance", "orders"}, facade.calls, "the limit is per command")
	assert.Equal(t, "rate_limited", bot.texts()[2])
}

type recordingSender struct {
	mu   sync.Mutex
	msgs map[int64][]string
	done chan struct{}
}

func (r *recordingSender) SendMessage(_ context.Context, id int64, text string) error {
	r.mu.Lock()
	r.msgs[id] = append(r.msgs[id], text)
	r.mu.Unlock()
	r.done <- struct{}{}
	return nil
}
func (r *recordingSender) SendButtons(context.Context, int64, string, [][]adapter.InlineButton) error {
	return nil
}
func (r *recordingSender) SendDocument(context.Context, int64, string, []byte, string) error {
	return nil
}

func (r *recordingSender) wait(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-r.done:
		case <-time.After(2 * time.Second):
			t.Fatalf("expected %d notifications, got %d", n, i)
		}
	}
}

func TestNotifier(t *testing.T) {
	const logChat = -100
	logger := zerolog.New(io.Discard)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool := worker.NewPool(1, &logger)
	pool.Start(ctx)
	defer pool.Stop()

	sender := &recordingSender{msgs: map[int64][]string{}, done: make(chan struct{}, 8)}
	n := NewNotifier(sender, pool, echoTranslator{}, logChat, &logger)

	inv := &model.Invoice{ID: "abc", UserID: 7, Amount: decimal.RequireFromString("500")}
	n.InvoiceCreated(ctx, inv)
	n.InvoicePaid(ctx, inv, decimal.RequireFromString("700"))
	sender.wait(t, 3)

	o := &model.Order{ID: "01H", UserID: 7, ItemTitle: "Combo", Charged: decimal.RequireFromString("150"),
		Placements: []model.Placement{{ServiceID: "101", UpstreamOrderID: "9001"}, {ServiceID: "202", Error: "timeout"}}}
	n.OrderRolledBack(ctx, o, errors.New("timeout"))
	sender.wait(t, 1)

	sender.mu.Lock()
	defer sender.mu.Unlock()
	assert.Equal(t, []string{"user_invoice_paid"}, sender.msgs[7])
	require.Len(t, sender.msgs[logChat], 3)
	assert.Equal(t, "admin_invoice_created", sender.msgs[logChat][0])
	assert.Equal(t, "admin_order_rolled_back\nadmin_partial_delivery", sender.msgs[logChat][2])
}

func TestNotifierWithoutLogChat(t *testing.T) {
	logger := zerolog.New(io.Discard)
	pool := worker.NewPool(1, &logger)
	sender := &recordingSender{msgs: map[int64][]string{}, done: make(chan struct{}, 8)}
	n := NewNotifier(sender, pool, echoTranslator{}, 0, &logger)

	up := "X1"
	n.OrderCommitted(context.Background(), &model.Order{ID: "01H", UpstreamOrderID: &up})
	n.InvoiceCreated(context.Background(), &model.Invoice{ID: "abc", UserID: 7})
	assert.NoError(t, pool.Submit(func(context.Context) error { return nil }), "nothing was queued")
	pool.Stop()
	assert.Empty(t, sender.msgs)
}

func TestNotifierBind(t *testing.T) {
	logger := zerolog.New(io.Discard)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool := worker.NewPool(1, &logger)
	pool.Start(ctx)
	defer pool.Stop()

	n := NewNotifier(nil, pool, echoTranslator{}, -100, &logger)
	n.InvoiceCreated(ctx, &model.Invoice{ID: "abc", UserID: 7})

	sender := &recordingSender{msgs: map[int64][]string{}, done: make(chan struct{}, 8)}
	n.Bind(sender)
	n.InvoiceCreated(ctx, &model.Invoice{ID: "def", UserID: 7})
	sender.wait(t, 1)

	sender.mu.Lock()
	defer sender.mu.Unlock()
	assert.Len(t, sender.msgs[-100], 1)
}
