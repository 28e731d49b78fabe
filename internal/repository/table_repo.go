package repository

import (
	"context"
	"errors"

	"github.com/ariefcatur/go-realtime-venue/internal/models"
	"github.com/ariefcatur/go-realtime-venue/internal/postgres"
	"github.com/jackc/pgx/v5"
)

type tableRepo struct{ db postgres.DBTX }

const tableColumns = `id, name, category, capacity, status, active, created_at, updated_at`

func (r *tableRepo) Create(ctx context.Context, t *models.Table) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO venue_tables(id, name, category, capacity, status, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,now(),now())`,
		t.ID, t.Name, t.Category, t.Capacity, t.Status, t.Active)
	return err
}

func (r *tableRepo) Get(ctx context.Context, id string) (*models.Table, error) {
	return r.get(ctx, `SELECT `+tableColumns+` FROM venue_tables WHERE id=$1`, id)
}

func (r *tableRepo) GetForUpdate(ctx context.Context, id string) (*models.Table, error) {
	return r.get(ctx, `SELECT `+tableColumns+` FROM venue_tables WHERE id=$1 FOR UPDATE`, id)
}

func (r *tableRepo) get(ctx context.Context, sql, id string) (*models.Table, error) {
	var t models.Table
	err := r.db.QueryRow(ctx, sql, id).Scan(
		&t.ID, &t.Name, &t.Category, &t.Capacity, &t.Status, &t.Active, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *tableRepo) UpdateStatus(ctx context.Context, id string, status models.TableStatus) error {
	_, err := r.db.Exec(ctx, `UPDATE venue_tables SET status=$2, updated_at=now() WHERE id=$1`, id, status)
	return err
}
