package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-smm-shop/internal/domain"
	"telegram-smm-shop/internal/domain/model"
	"telegram-smm-shop/internal/domain/ports/repository"
)

var _ repository.OrderRepository = (*PostgresOrderRepo)(nil)

// PostgresOrderRepo only inserts; seq preserves append order.
type PostgresOrderRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresOrderRepo(pool *pgxpool.Pool) *PostgresOrderRepo {
	return &PostgresOrderRepo{pool: pool}
}

type placementJSON struct {
	ServiceID       string `json:"service_id"`
	Quantity        int64  `json:"quantity"`
	UpstreamOrderID string `json:"upstream_order_id,omitempty"`
	Error           string `json:"error,omitempty"`
}

const orderColumns = `id, user_id, item_id, item_title, quantity, link, subtotal, discount, charged, promo_code, upstream_order_id, status, placements, created_at`

func (r *PostgresOrderRepo) Append(ctx context.Context, tx repository.Tx, o *model.Order) error {
	if err := o.Validate(); err != nil {
		return err
	}
	pls := make([]placementJSON, 0, len(o.Placements))
	for _, p := range o.Placements {
		pls = append(pls, placementJSON(p))
	}
	raw, err := json.Marshal(pls)
	if err != nil {
		return fmt.Errorf("encode placements: %w", err)
	}
	const q = `INSERT INTO orders (` + orderColumns + `) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13::jsonb,$14);`
	_, err = execSQL(ctx, r.pool, tx, q,
		o.ID, o.UserID, o.ItemID, o.ItemTitle, o.Quantity, o.Link,
		o.Subtotal, o.Discount, o.Charged, o.PromoCode, o.UpstreamOrderID, string(o.Status), string(raw), o.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return persistErr(err)
	}
	return nil
}

func (r *PostgresOrderRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Order, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+orderColumns+` FROM orders WHERE id=$1;`, id)
	if err != nil {
		return nil, err
	}
	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, persistErr(err)
	}
	return o, nil
}

func (r *PostgresOrderRepo) ListByUser(ctx context.Context, tx repository.Tx, userID int64, limit int) ([]*model.Order, error) {
	q := `SELECT ` + orderColumns + ` FROM orders WHERE user_id=$1 ORDER BY seq DESC`
	args := []interface{}{userID}
	if limit > 0 {
		q += ` LIMIT $2`
		args = append(args, limit)
	}
	return r.list(ctx, tx, q+";", args...)
}

func (r *PostgresOrderRepo) ListAll(ctx context.Context, tx repository.Tx) ([]*model.Order, error) {
	return r.list(ctx, tx, `SELECT `+orderColumns+` FROM orders ORDER BY seq;`)
}

func (r *PostgresOrderRepo) list(ctx context.Context, tx repository.Tx, q string, args ...interface{}) ([]*model.Order, error) {
	rows, err := queryRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, persistErr(err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr(err)
	}
	return out, nil
}

func scanOrder(row pgx.Row) (*model.Order, error) {
	var (
		o      model.Order
		status string
		raw    []byte
	)
	err := row.Scan(&o.ID, &o.UserID, &o.ItemID, &o.ItemTitle, &o.Quantity, &o.Link,
		&o.Subtotal, &o.Discount, &o.Charged, &o.PromoCode, &o.UpstreamOrderID, &status, &raw, &o.CreatedAt)
	if err != nil {
		return nil, err
	}
	o.Status = model.OrderStatus(status)
	var pls []placementJSON
	if err := json.Unmarshal(raw, &pls); err != nil {
		return nil, fmt.Errorf("decode placements of %s: %w", o.ID, err)
	}
	for _, p := range pls {
		o.Placements = append(o.Placements, model.Placement(p))
	}
	return &o, nil
}
