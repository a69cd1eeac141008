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

var _ repository.PromoRepository = (*PostgresPromoRepo)(nil)

type PostgresPromoRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresPromoRepo(pool *pgxpool.Pool) *PostgresPromoRepo {
	return &PostgresPromoRepo{pool: pool}
}

const promoColumns = `code, percent, min_total, active, combinable, created_at`

func (r *PostgresPromoRepo) FindByCode(ctx context.Context, tx repository.Tx, code string) (*model.PromoRule, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+promoColumns+` FROM promo_rules WHERE code=$1;`, code)
	if err != nil {
		return nil, err
	}
	rule, err := scanPromo(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, persistErr(err)
	}
	return rule, nil
}

// Upsert keeps the original created_at of an existing code.
func (r *PostgresPromoRepo) Upsert(ctx context.Context, tx repository.Tx, rule *model.PromoRule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	const q = `
INSERT INTO promo_rules (` + promoColumns + `) VALUES ($1,$2,$3,$4,$5, COALESCE($6, now()))
ON CONFLICT (code) DO UPDATE SET
  percent=EXCLUDED.percent, min_total=EXCLUDED.min_total, active=EXCLUDED.active, combinable=EXCLUDED.combinable;`
	var created interface{}
	if !rule.CreatedAt.IsZero() {
		created = rule.CreatedAt
	}
	if _, err := execSQL(ctx, r.pool, tx, q, rule.Code, rule.Percent, rule.MinTotal, rule.Active, rule.Combinable, created); err != nil {
		return persistErr(err)
	}
	return nil
}

func (r *PostgresPromoRepo) List(ctx context.Context, tx repository.Tx) ([]*model.PromoRule, error) {
	rows, err := queryRows(ctx, r.pool, tx, `SELECT `+promoColumns+` FROM promo_rules ORDER BY code;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.PromoRule
	for rows.Next() {
		rule, err := scanPromo(rows)
		if err != nil {
			return nil, persistErr(err)
		}
		out = append(out, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr(err)
	}
	return out, nil
}

func (r *PostgresPromoRepo) IsUsed(ctx context.Context, tx repository.Tx, userID int64, code string) (bool, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT EXISTS (SELECT 1 FROM promo_usages WHERE user_id=$1 AND code=$2);`, userID, code)
	if err != nil {
		return false, err
	}
	var used bool
	if err := row.Scan(&used); err != nil {
		return false, persistErr(err)
	}
	return used, nil
}

func (r *PostgresPromoRepo) MarkUsed(ctx context.Context, tx repository.Tx, userID int64, code string) (bool, error) {
	const q = `INSERT INTO promo_usages (user_id, code, used_at) VALUES ($1, $2, now()) ON CONFLICT DO NOTHING;`
	tag, err := execSQL(ctx, r.pool, tx, q, userID, code)
	if err != nil {
		return false, persistErr(err)
	}
	return tag.RowsAffected() == 1, nil
}

func scanPromo(row pgx.Row) (*model.PromoRule, error) {
	var rule model.PromoRule
	if err := row.Scan(&rule.Code, &rule.Percent, &rule.MinTotal, &rule.Active, &rule.Combinable, &rule.CreatedAt); err != nil {
		return nil, err
	}
	return &rule, nil
}
