package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"telegram-smm-shop/internal/application"
	"telegram-smm-shop/internal/config"
	"telegram-smm-shop/internal/domain/ports/adapter"
	"telegram-smm-shop/internal/domain/ports/repository"
	"telegram-smm-shop/internal/infra/adapters/provider"
	tele "telegram-smm-shop/internal/infra/adapters/telegram"
	"telegram-smm-shop/internal/infra/api"
	"telegram-smm-shop/internal/infra/db"
	"telegram-smm-shop/internal/infra/db/filestore"
	"telegram-smm-shop/internal/infra/i18n"
	"telegram-smm-shop/internal/infra/logging"
	"telegram-smm-shop/internal/infra/metrics"
	red "telegram-smm-shop/internal/infra/redis"
	"telegram-smm-shop/internal/infra/sched"
	"telegram-smm-shop/internal/infra/worker"
	"telegram-smm-shop/internal/usecase"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

var version = "dev"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("shop stopped")
	}
}

func run(cfg *config.Config, logger *zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.MustRegister()
	metrics.SetBuildInfo(version, cfg.Storage.Driver)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("development mode enabled")
	}

	st, err := db.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	catalogSource, err := filestore.NewCatalogFile(cfg.Catalog.Path)
	if err != nil {
		return fmt.Errorf("catalog: %w", err)
	}

	tr, err := i18n.NewTranslator(i18n.LocalesFS, cfg.Bot.Locale)
	if err != nil {
		return fmt.Errorf("i18n: %w", err)
	}

	looksmm, err := provider.NewLookSMMClient(cfg.Provider.BaseURL, cfg.Provider.Key, cfg.Provider.Timeout)
	if err != nil {
		return fmt.Errorf("provider: %w", err)
	}

	// Redis is optional: without it there is no rate limit, no cross-instance
	// invoice lock and no services cache.
	var (
		upstream adapter.ProviderClient = looksmm
		locker   adapter.Locker
		limiter  tele.Limiter
	)
	if cfg.Redis.URL != "" {
		rc, err := red.NewClient(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer rc.Close()
		upstream = red.NewCachedProvider(looksmm, rc, cfg.Provider.ServicesTTL, logger)
		locker = red.NewLocker(rc)
		limiter = red.NewRateLimiter(rc)
		logger.Info().Msg("redis enabled: rate limit, invoice lock, services cache")
	}

	pool := worker.NewPool(cfg.Bot.Workers, logger)
	notifier := tele.NewNotifier(nil, pool, tr, cfg.Bot.LogChatID, logger)

	pricing := usecase.NewPricingEngine(decimal.NewFromFloat(cfg.Pricing.Multiplier))
	ledgerUC := usecase.NewLedgerUseCase(st.Ledger, logger)
	invoiceUC := usecase.NewInvoiceUseCase(st.Invoices, st.Ledger, st.TM, locker, notifier, logger)
	promoUC := usecase.NewPromoUseCase(st.Promos, logger)
	catalogUC := usecase.NewCatalogUseCase(catalogSource, st.ServiceMap, upstream, logger)
	settlementUC := usecase.NewSettlementUseCase(catalogUC, pricing, promoUC, st.Ledger, st.Orders, upstream, notifier,
		usecase.SettlementConfig{ProviderTimeout: cfg.Provider.Timeout, MinQuantity: cfg.Pricing.MinQuantity, Locker: locker}, logger)
	statsUC := usecase.NewStatsUseCase(st.Orders, st.Invoices, logger)

	facade := application.NewBotFacade(ledgerUC, invoiceUC, settlementUC, catalogUC, statsUC, pricing, tr, cfg.Payment)

	var (
		sender  adapter.TelegramBotAdapter
		polling *tele.RealTelegramBotAdapter
	)
	if strings.EqualFold(cfg.Bot.Mode, "noop") {
		sender = tele.NewNoopBotAdapter(logger)
		logger.Warn().Msg("bot.mode=noop: telegram disabled, messages are only logged")
	} else {
		polling, err = tele.NewRealTelegramBotAdapter(&cfg.Bot, facade, tr, limiter, logger)
		if err != nil {
			return fmt.Errorf("telegram: %w", err)
		}
		sender = polling
	}
	notifier.Bind(sender)
	// queued notifications are still delivered while shutting down
	pool.Start(context.WithoutCancel(ctx))
	defer pool.Stop()

	if err := bootstrap(ctx, cfg, catalogSource, promoUC, catalogUC, invoiceUC, logger); err != nil {
		return err
	}

	srv := api.NewServer(api.Deps{
		Invoices: invoiceUC,
		Promos:   promoUC,
		Orders:   settlementUC,
		Stats:    statsUC,
		Auth:     api.NewAuthManager(cfg.Admin.APISecret, cfg.Admin.JWTSecret, cfg.Admin.TokenTTL),
		Storage:  cfg.Storage.Driver,
	}, cfg.HTTP.RequestTimeout, logger)
	errc := make(chan error, 2)
	go func() {
		if err := srv.Start(cfg.HTTP.Port); err != nil {
			errc <- fmt.Errorf("http: %w", err)
		}
	}()

	// Storage and the worker pool close in defers, so every goroutine that
	// can still write must be done before run returns.
	var background errgroup.Group
	background.Go(func() error {
		sched.NewInvoiceReconciler(invoiceUC, cfg.Scheduler.ReconcileInterval, logger).Start(ctx)
		return nil
	})

	if polling != nil {
		background.Go(func() error {
			if err := polling.StartPolling(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errc <- fmt.Errorf("telegram polling: %w", err)
			}
			return nil
		})
	}

	logger.Info().Str("version", version).Str("storage", cfg.Storage.Driver).Int("port", cfg.HTTP.Port).Msg("shop started")

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown requested")
	case runErr = <-errc:
	}
	stop()
	if !waitTimeout(background.Wait, drainTimeout) {
		logger.Warn().Dur("timeout", drainTimeout).Msg("in-flight handlers still running at shutdown")
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown")
	}
	return runErr
}

const drainTimeout = 30 * time.Second

// waitTimeout reports whether wait returned within d.
func waitTimeout(wait func() error, d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		_ = wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(d):
		return false
	}
}

// bootstrap seeds catalog promos, migrates legacy mapping keys and finishes
// invoices whose credit was applied before a crash.
func bootstrap(
	ctx context.Context,
	cfg *config.Config,
	source repository.CatalogSource,
	promos usecase.PromoUseCase,
	catalog usecase.CatalogUseCase,
	invoices usecase.InvoiceUseCase,
	logger *zerolog.Logger,
) error {
	cat, err := source.Load(ctx)
	if err != nil {
		return fmt.Errorf("catalog: %w", err)
	}
	seeded, err := promos.Seed(ctx, cat.Promos)
	if err != nil {
		return fmt.Errorf("seed promos: %w", err)
	}
	migrated, err := catalog.MigrateLegacyKeys(ctx)
	if err != nil {
		return fmt.Errorf("migrate service map: %w", err)
	}
	recovered, err := invoices.Recover(ctx)
	if err != nil {
		return fmt.Errorf("recover invoices: %w", err)
	}
	logger.Info().
		Str("catalog", cfg.Catalog.Path).
		Int("items", len(cat.Items())).
		Int("promos_seeded", seeded).
		Int("mappings_migrated", migrated).
		Int("invoices_recovered", recovered).
		Msg("bootstrap done")
	return nil
}
