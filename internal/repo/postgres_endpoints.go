package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/LeventeLantos/group-campaigns/internal/model"
)

type PostgresEndpointRepo struct {
	db DB
}

func NewPostgresEndpointRepo(db DB) *PostgresEndpointRepo {
	return &PostgresEndpointRepo{db: db}
}

func (r *PostgresEndpointRepo) Get(ctx context.Context, name string) (*model.EndpointRecord, error) {
	var rec model.EndpointRecord
	var owner *string
	err := r.db.QueryRow(ctx, `
		SELECT name, owner_phone
		FROM endpoints
		WHERE name = $1
	`, name).Scan(&rec.Name, &owner)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("endpoint %q: %w", name, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get endpoint: %w", err)
	}
	if owner != nil {
		rec.OwnerPhone = *owner
	}
	return &rec, nil
}

func (r *PostgresEndpointRepo) Exists(ctx context.Context, name string) (bool, error) {
	var ok bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM endpoints WHERE name = $1)
	`, name).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("failed to check endpoint: %w", err)
	}
	return ok, nil
}

func (r *PostgresEndpointRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM endpoints`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count endpoints: %w", err)
	}
	return n, nil
}
