// Package db picks the storage backend named in the config.
package db

import (
	"context"
	"fmt"
	"time"

	"telegram-smm-shop/internal/config"
	"telegram-smm-shop/internal/domain/ports/repository"
	"telegram-smm-shop/internal/infra/db/filestore"
	pg "telegram-smm-shop/internal/infra/db/postgres"

	"github.com/rs/zerolog"
)

// Stores holds one repository per entity plus the matching transaction manager.
type Stores struct {
	Ledger     repository.LedgerRepository
	Invoices   repository.InvoiceRepository
	Promos     repository.PromoRepository
	Orders     repository.OrderRepository
	ServiceMap repository.ServiceMapRepository
	TM         repository.TransactionManager

	close func()
}

func (s *Stores) Close() {
	if s.close != nil {
		s.close()
	}
}

// Open connects postgres (running migrations) or loads the JSON files.
// A malformed persisted record fails here.
func Open(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*Stores, error) {
	switch cfg.Storage.Driver {
	case config.StoragePostgres:
		pool, err := pg.Connect(ctx, cfg.Database.URL)
		if err != nil {
			return nil, err
		}
		go pg.ReportPoolStats(ctx, pool, 15*time.Second)
		logger.Info().Msg("storage: postgres")
		return &Stores{
			Ledger:     pg.NewPostgresLedgerRepo(pool),
			Invoices:   pg.NewPostgresInvoiceRepo(pool),
			Promos:     pg.NewPostgresPromoRepo(pool),
			Orders:     pg.NewPostgresOrderRepo(pool),
			ServiceMap: pg.NewPostgresServiceMapRepo(pool),
			TM:         pg.NewTxManager(pool),
			close:      pool.Close,
		}, nil
	case config.StorageFile:
		return openFiles(cfg.Storage, logger)
	default:
		return nil, fmt.Errorf("storage driver %q is not supported", cfg.Storage.Driver)
	}
}

func openFiles(s config.StorageConfig, logger *zerolog.Logger) (*Stores, error) {
	ledger, err := filestore.NewLedgerRepo(s.BalancesFile)
	if err != nil {
		return nil, fmt.Errorf("balances: %w", err)
	}
	invoices, err := filestore.NewInvoiceRepo(s.InvoicesFile)
	if err != nil {
		return nil, fmt.Errorf("invoices: %w", err)
	}
	promos, err := filestore.NewPromoRepo(s.PromosFile)
	if err != nil {
		return nil, fmt.Errorf("promos: %w", err)
	}
	orders, err := filestore.NewOrderRepo(s.OrdersFile)
	if err != nil {
		return nil, fmt.Errorf("orders: %w", err)
	}
	mapping, err := filestore.NewServiceMapRepo(s.ServiceMapFile)
	if err != nil {
		return nil, fmt.Errorf("service map: %w", err)
	}
	logger.Info().Str("data_dir", s.DataDir).Msg("storage: json files")
	return &Stores{
		Ledger:     ledger,
		Invoices:   invoices,
		Promos:     promos,
		Orders:     orders,
		ServiceMap: mapping,
		TM:         filestore.NewTxManager(),
	}, nil
}
