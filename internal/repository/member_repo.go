package repository

import (
	"context"
	"errors"

	"github.com/ariefcatur/go-realtime-venue/internal/models"
	"github.com/ariefcatur/go-realtime-venue/internal/postgres"
	"github.com/jackc/pgx/v5"
)

type memberRepo struct{ db postgres.DBTX }

const memberColumns = `id, name, phone, level, points, created_at, updated_at`

func scanMember(row pgx.Row) (*models.Member, error) {
	var m models.Member
	if err := row.Scan(&m.ID, &m.Name, &m.Phone, &m.Level, &m.Points, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *memberRepo) Create(ctx context.Context, m *models.Member) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO members(id, name, phone, level, points, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$6)`, m.ID, m.Name, m.Phone, m.Level, m.Points, m.CreatedAt)
	return err
}

func (r *memberRepo) Get(ctx context.Context, id string) (*models.Member, error) {
	m, err := scanMember(r.db.QueryRow(ctx, `SELECT `+memberColumns+` FROM members WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return m, err
}

func (r *memberRepo) GetForUpdate(ctx context.Context, id string) (*models.Member, error) {
	m, err := scanMember(r.db.QueryRow(ctx, `SELECT `+memberColumns+` FROM members WHERE id=$1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return m, err
}

func (r *memberRepo) SetPoints(ctx context.Context, id string, points int64) error {
	_, err := r.db.Exec(ctx, `UPDATE members SET points=$2, updated_at=now() WHERE id=$1`, id, points)
	return err
}

func (r *memberRepo) Top(ctx context.Context, limit int) ([]models.Member, error) {
	rows, err := r.db.Query(ctx, `SELECT `+memberColumns+` FROM members
		ORDER BY points DESC, created_at ASC, id ASC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func (r *memberRepo) CountAbove(ctx context.Context, points int64) (int64, error) {
	var n int64
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM members WHERE points > $1`, points).Scan(&n)
	return n, err
}
