package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-smm-shop/internal/domain"
	"telegram-smm-shop/internal/domain/ports/repository"
)

var _ repository.ServiceMapRepository = (*PostgresServiceMapRepo)(nil)

type PostgresServiceMapRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresServiceMapRepo(pool *pgxpool.Pool) *PostgresServiceMapRepo {
	return &PostgresServiceMapRepo{pool: pool}
}

func (r *PostgresServiceMapRepo) Get(ctx context.Context, key string) (string, error) {
	row, err := pickRow(ctx, r.pool, nil, `SELECT service_id FROM service_map WHERE key=$1;`, key)
	if err != nil {
		return "", err
	}
	var sid string
	if err := row.Scan(&sid); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", domain.ErrNotFound
		}
		return "", persistErr(err)
	}
	return sid, nil
}

func (r *PostgresServiceMapRepo) Set(ctx context.Context, key, serviceID string) error {
	if key == "" || serviceID == "" {
		return domain.ErrInvalidArgument
	}
	const q = `
INSERT INTO service_map (key, service_id, updated_at) VALUES ($1, $2, now())
ON CONFLICT (key) DO UPDATE SET service_id=EXCLUDED.service_id, updated_at=now();`
	if _, err := execSQL(ctx, r.pool, nil, q, key, serviceID); err != nil {
		return persistErr(err)
	}
	return nil
}

func (r *PostgresServiceMapRepo) Delete(ctx context.Context, key string) error {
	if _, err := execSQL(ctx, r.pool, nil, `DELETE FROM service_map WHERE key=$1;`, key); err != nil {
		return persistErr(err)
	}
	return nil
}

func (r *PostgresServiceMapRepo) All(ctx context.Context) (map[string]string, error) {
	rows, err := queryRows(ctx, r.pool, nil, `SELECT key, service_id FROM service_map;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, persistErr(err)
		}
		out[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr(err)
	}
	return out, nil
}
