// Command seed loads the catalog promos into the configured store and optionally
// sets starting balances, e.g. -balance 123:500 -balance 456:0.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"telegram-smm-shop/internal/config"
	"telegram-smm-shop/internal/infra/db"
	"telegram-smm-shop/internal/infra/db/filestore"
	"telegram-smm-shop/internal/infra/logging"
	"telegram-smm-shop/internal/usecase"

	"github.com/shopspring/decimal"
)

type balanceFlags []string

func (b *balanceFlags) String() string     { return strings.Join(*b, ",") }
func (b *balanceFlags) Set(v string) error { *b = append(*b, v); return nil }

func parseBalance(v string) (int64, decimal.Decimal, error) {
	id, amount, ok := strings.Cut(v, ":")
	if !ok {
		return 0, decimal.Zero, fmt.Errorf("want user_id:amount, got %q", v)
	}
	uid, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
	if err != nil || uid == 0 {
		return 0, decimal.Zero, fmt.Errorf("bad user id %q", id)
	}
	amt, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return 0, decimal.Zero, fmt.Errorf("bad amount %q: %w", amount, err)
	}
	return uid, amt, nil
}

func main() {
	var balances balanceFlags
	flag.Var(&balances, "balance", "user_id:amount to set, repeatable")

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	st, err := db.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open storage")
	}
	defer st.Close()

	source, err := filestore.NewCatalogFile(cfg.Catalog.Path)
	if err != nil {
		logger.Fatal().Err(err).Msg("load catalog")
	}
	cat, err := source.Load(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("load catalog")
	}

	promos := usecase.NewPromoUseCase(st.Promos, logger)
	n, err := promos.Seed(ctx, cat.Promos)
	if err != nil {
		logger.Fatal().Err(err).Msg("seed promos")
	}
	fmt.Printf("promos: %d of %d seeded\n", n, len(cat.Promos))

	ledger := usecase.NewLedgerUseCase(st.Ledger, logger)
	for _, b := range balances {
		uid, amt, err := parseBalance(b)
		if err != nil {
			logger.Fatal().Err(err).Msg("parse -balance")
		}
		bal, err := ledger.SetBalance(ctx, uid, amt)
		if err != nil {
			logger.Fatal().Err(err).Int64("tg_id", uid).Msg("set balance")
		}
		fmt.Printf("balance %d = %s\n", uid, bal.StringFixed(2))
	}
}
