package repository

import (
	"context"
	"errors"

	"github.com/ariefcatur/go-realtime-venue/internal/models"
	"github.com/ariefcatur/go-realtime-venue/internal/postgres"
	"github.com/jackc/pgx/v5"
)

type reservationRepo struct{ db postgres.DBTX }

const reservationColumns = `id, customer_name, customer_phone, member_id, party_size, table_id, reserved_at,
	deposit_amount, deposit_paid, payment_id, status, cancel_reason, created_at, updated_at`

func scanReservation(row pgx.Row) (*models.Reservation, error) {
	var r models.Reservation
	err := row.Scan(&r.ID, &r.CustomerName, &r.CustomerPhone, &r.MemberID, &r.PartySize, &r.TableID,
		&r.ReservedAt, &r.DepositAmount, &r.DepositPaid, &r.PaymentID, &r.Status, &r.CancelReason,
		&r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (r *reservationRepo) Create(ctx context.Context, res *models.Reservation) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO reservations(id, customer_name, customer_phone, member_id, party_size, table_id, reserved_at,
			deposit_amount, deposit_paid, payment_id, status, cancel_reason, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$13)`,
		res.ID, res.CustomerName, res.CustomerPhone, res.MemberID, res.PartySize, res.TableID, res.ReservedAt,
		res.DepositAmount, res.DepositPaid, res.PaymentID, res.Status, res.CancelReason, res.CreatedAt)
	return err
}

func (r *reservationRepo) Get(ctx context.Context, id string) (*models.Reservation, error) {
	res, err := scanReservation(r.db.QueryRow(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return res, err
}

func (r *reservationRepo) GetForUpdate(ctx context.Context, id string) (*models.Reservation, error) {
	res, err := scanReservation(r.db.QueryRow(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id=$1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return res, err
}

func (r *reservationRepo) Update(ctx context.Context, res *models.Reservation) error {
	_, err := r.db.Exec(ctx, `
		UPDATE reservations
		SET status=$2, deposit_paid=$3, payment_id=$4, cancel_reason=$5, updated_at=now()
		WHERE id=$1`,
		res.ID, res.Status, res.DepositPaid, res.PaymentID, res.CancelReason)
	return err
}

func (r *reservationRepo) ListActiveByTable(ctx context.Context, tableID string) ([]models.Reservation, error) {
	rows, err := r.db.Query(ctx, `SELECT `+reservationColumns+` FROM reservations
		WHERE table_id=$1 AND status IN ('PENDING','CONFIRMED')
		ORDER BY reserved_at`, tableID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *res)
	}
	return out, rows.Err()
}
