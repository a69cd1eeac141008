package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-smm-shop/internal/domain"
	"telegram-smm-shop/internal/domain/model"
	"telegram-smm-shop/internal/domain/ports/repository"
)

var _ repository.InvoiceRepository = (*PostgresInvoiceRepo)(nil)

type PostgresInvoiceRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresInvoiceRepo(pool *pgxpool.Pool) *PostgresInvoiceRepo {
	return &PostgresInvoiceRepo{pool: pool}
}

const invoiceColumns = `id, user_id, amount, note, status, created_at, paid_at`

func (r *PostgresInvoiceRepo) Create(ctx context.Context, tx repository.Tx, inv *model.Invoice) error {
	if err := inv.Validate(); err != nil {
		return err
	}
	const q = `INSERT INTO invoices (` + invoiceColumns + `) VALUES ($1,$2,$3,$4,$5,$6,$7);`
	_, err := execSQL(ctx, r.pool, tx, q, inv.ID, inv.UserID, inv.Amount, inv.Note, string(inv.Status), inv.CreatedAt, inv.PaidAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return persistErr(err)
	}
	return nil
}

func (r *PostgresInvoiceRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Invoice, error) {
	q := `SELECT ` + invoiceColumns + ` FROM invoices WHERE id=$1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	inv, err := scanInvoice(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, persistErr(err)
	}
	return inv, nil
}

func (r *PostgresInvoiceRepo) Update(ctx context.Context, tx repository.Tx, inv *model.Invoice) error {
	if err := inv.Validate(); err != nil {
		return err
	}
	const q = `UPDATE invoices SET status=$2, paid_at=$3, note=$4 WHERE id=$1;`
	tag, err := execSQL(ctx, r.pool, tx, q, inv.ID, string(inv.Status), inv.PaidAt, inv.Note)
	if err != nil {
		return persistErr(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *PostgresInvoiceRepo) ListByStatus(ctx context.Context, tx repository.Tx, status model.InvoiceStatus, limit int) ([]*model.Invoice, error) {
	q := `SELECT ` + invoiceColumns + ` FROM invoices WHERE status=$1 ORDER BY created_at, id`
	args := []interface{}{string(status)}
	if limit > 0 {
		q += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := queryRows(ctx, r.pool, tx, q+";", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, persistErr(err)
		}
		out = append(out, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr(err)
	}
	return out, nil
}

func scanInvoice(row pgx.Row) (*model.Invoice, error) {
	var (
		inv    model.Invoice
		status string
	)
	if err := row.Scan(&inv.ID, &inv.UserID, &inv.Amount, &inv.Note, &status, &inv.CreatedAt, &inv.PaidAt); err != nil {
		return nil, err
	}
	inv.Status = model.InvoiceStatus(status)
	return &inv, nil
}
