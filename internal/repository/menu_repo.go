package repository

import (
	"context"
	"errors"
	"sort"

	"github.com/ariefcatur/go-realtime-venue/internal/models"
	"github.com/ariefcatur/go-realtime-venue/internal/postgres"
	"github.com/jackc/pgx/v5"
)

type menuRepo struct{ db postgres.DBTX }

func (r *menuRepo) Create(ctx context.Context, m *models.MenuItem) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO menu_items(id, category, name, price, stock, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,now(),now())`,
		m.ID, m.Category, m.Name, m.Price, m.Stock, m.Status)
	return err
}

func (r *menuRepo) Get(ctx context.Context, id string) (*models.MenuItem, error) {
	var m models.MenuItem
	err := r.db.QueryRow(ctx, `
		SELECT id, category, name, price, stock, status, created_at, updated_at
		FROM menu_items WHERE id=$1`, id).
		Scan(&m.ID, &m.Category, &m.Name, &m.Price, &m.Stock, &m.Status, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *menuRepo) LockForUpdate(ctx context.Context, ids []string) ([]models.MenuItem, error) {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)

	// ORDER BY id keeps lock acquisition order stable across concurrent orders.
	rows, err := r.db.Query(ctx, `
		SELECT id, category, name, price, stock, status, created_at, updated_at
		FROM menu_items WHERE id = ANY($1::uuid[])
		ORDER BY id
		FOR UPDATE`, sorted)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.MenuItem
	for rows.Next() {
		var m models.MenuItem
		if err := rows.Scan(&m.ID, &m.Category, &m.Name, &m.Price, &m.Stock, &m.Status, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *menuRepo) UpdateStock(ctx context.Context, id string, stock int, status models.MenuItemStatus) error {
	_, err := r.db.Exec(ctx, `UPDATE menu_items SET stock=$2, status=$3, updated_at=now() WHERE id=$1`, id, stock, status)
	return err
}
