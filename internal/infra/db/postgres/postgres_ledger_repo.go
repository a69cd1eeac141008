package postgres

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/shopspring/decimal"

	"telegram-smm-shop/internal/domain"
	"telegram-smm-shop/internal/domain/ports/repository"
)

var _ repository.LedgerRepository = (*PostgresLedgerRepo)(nil)

// PostgresLedgerRepo keeps the non-negative invariant in the database: debits
// are conditional updates, credits are upserts.
type PostgresLedgerRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresLedgerRepo(pool *pgxpool.Pool) *PostgresLedgerRepo {
	return &PostgresLedgerRepo{pool: pool}
}

const (
	creditSQL = `
INSERT INTO balances (user_id, balance, updated_at) VALUES ($1, $2, now())
ON CONFLICT (user_id) DO UPDATE
   SET balance = balances.balance + EXCLUDED.balance, updated_at = now()
RETURNING balance;`

	debitSQL = `
UPDATE balances SET balance = balance + $2, updated_at = now()
 WHERE user_id = $1 AND balance + $2 >= 0
RETURNING balance;`
)

func (r *PostgresLedgerRepo) Get(ctx context.Context, tx repository.Tx, userID int64) (decimal.Decimal, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT balance FROM balances WHERE user_id=$1;`, userID)
	if err != nil {
		return decimal.Zero, err
	}
	var bal decimal.Decimal
	if err := row.Scan(&bal); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, nil
		}
		return decimal.Zero, persistErr(err)
	}
	return bal, nil
}

func (r *PostgresLedgerRepo) Set(ctx context.Context, tx repository.Tx, userID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	if userID == 0 {
		return decimal.Zero, domain.ErrInvalidArgument
	}
	if amount.IsNegative() {
		return decimal.Zero, domain.ErrInvalidAmount
	}
	const q = `
INSERT INTO balances (user_id, balance, updated_at) VALUES ($1, $2, now())
ON CONFLICT (user_id) DO UPDATE SET balance = EXCLUDED.balance, updated_at = now();`
	if _, err := execSQL(ctx, r.pool, tx, q, userID, amount); err != nil {
		return decimal.Zero, persistErr(err)
	}
	return amount, nil
}

func (r *PostgresLedgerRepo) Add(ctx context.Context, tx repository.Tx, userID int64, delta decimal.Decimal) (decimal.Decimal, error) {
	if userID == 0 {
		return decimal.Zero, domain.ErrInvalidArgument
	}
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return decimal.Zero, err
	}
	var bal decimal.Decimal
	err = retryOutsideTx(ctx, tx, func() error {
		return add(ctx, ex, userID, delta, &bal)
	})
	return bal, err
}

// add applies delta in one statement. When a debit does not apply, the current
// balance is read back for the InsufficientFundsError.
func add(ctx context.Context, ex executor, userID int64, delta decimal.Decimal, out *decimal.Decimal) error {
	q := creditSQL
	if delta.IsNegative() {
		q = debitSQL
	}
	err := ex.QueryRow(ctx, q, userID, delta).Scan(out)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return persistErr(err)
	}
	var cur decimal.Decimal
	if err := ex.QueryRow(ctx, `SELECT balance FROM balances WHERE user_id=$1;`, userID).Scan(&cur); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return persistErr(err)
	}
	*out = cur
	return &domain.InsufficientFundsError{Balance: cur, Required: delta.Neg()}
}

func (r *PostgresLedgerRepo) ApplyOnce(ctx context.Context, tx repository.Tx, userID int64, delta decimal.Decimal, ref string) (decimal.Decimal, bool, error) {
	if userID == 0 || strings.TrimSpace(ref) == "" {
		return decimal.Zero, false, domain.ErrInvalidArgument
	}

	var (
		bal     decimal.Decimal
		applied bool
	)
	run := func() error {
		// A caller transaction gets a savepoint so a rejected debit only undoes the ref.
		var (
			inner pgx.Tx
			err   error
		)
		if outer, ok := tx.(pgx.Tx); ok {
			inner, err = outer.Begin(ctx)
		} else {
			inner, err = r.pool.Begin(ctx)
		}
		if err != nil {
			return persistErr(err)
		}
		defer func() { _ = inner.Rollback(ctx) }()

		tag, err := inner.Exec(ctx, `
INSERT INTO ledger_refs (ref, user_id, delta, applied_at) VALUES ($1, $2, $3, now())
ON CONFLICT (ref) DO NOTHING;`, ref, userID, delta)
		if err != nil {
			return persistErr(err)
		}
		if tag.RowsAffected() == 0 {
			applied = false
			if err := inner.QueryRow(ctx, `SELECT balance FROM balances WHERE user_id=$1;`, userID).Scan(&bal); err != nil && !errors.Is(err, pgx.ErrNoRows) {
				return persistErr(err)
			}
			return nil
		}
		if err := add(ctx, inner, userID, delta, &bal); err != nil {
			return err
		}
		if err := inner.Commit(ctx); err != nil {
			return persistErr(err)
		}
		applied = true
		return nil
	}

	if err := retryOutsideTx(ctx, tx, run); err != nil {
		return bal, false, err
	}
	return bal, applied, nil
}

func (r *PostgresLedgerRepo) HasApplied(ctx context.Context, tx repository.Tx, ref string) (bool, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT EXISTS (SELECT 1 FROM ledger_refs WHERE ref=$1);`, ref)
	if err != nil {
		return false, err
	}
	var ok bool
	if err := row.Scan(&ok); err != nil {
		return false, persistErr(err)
	}
	return ok, nil
}
