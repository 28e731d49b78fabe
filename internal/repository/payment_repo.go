package repository

import (
	"context"
	"errors"
	"time"

	"github.com/ariefcatur/go-realtime-venue/internal/models"
	"github.com/ariefcatur/go-realtime-venue/internal/postgres"
	"github.com/jackc/pgx/v5"
)

type paymentRepo struct{ db postgres.DBTX }

const paymentColumns = `id, payment_order_no, type, method, status, amount, paid_amount, order_id, reservation_id,
	member_id, recharge_points, bonus_points, provider_ref, failure_reason, parent_payment_id, paid_at,
	created_at, updated_at`

func scanPayment(row pgx.Row) (*models.Payment, error) {
	var p models.Payment
	err := row.Scan(&p.ID, &p.PaymentOrderNo, &p.Type, &p.Method, &p.Status, &p.Amount, &p.PaidAmount,
		&p.OrderID, &p.ReservationID, &p.MemberID, &p.RechargePoints, &p.BonusPoints, &p.ProviderRef,
		&p.FailureReason, &p.ParentPaymentID, &p.PaidAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *paymentRepo) Create(ctx context.Context, p *models.Payment) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO payments(id, payment_order_no, type, method, status, amount, paid_amount, order_id,
			reservation_id, member_id, recharge_points, bonus_points, provider_ref, failure_reason,
			parent_payment_id, paid_at, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$17)`,
		p.ID, p.PaymentOrderNo, p.Type, p.Method, p.Status, p.Amount, p.PaidAmount, p.OrderID,
		p.ReservationID, p.MemberID, p.RechargePoints, p.BonusPoints, p.ProviderRef, p.FailureReason,
		p.ParentPaymentID, p.PaidAt, p.CreatedAt)
	return err
}

func (r *paymentRepo) one(ctx context.Context, sql string, arg string) (*models.Payment, error) {
	p, err := scanPayment(r.db.QueryRow(ctx, sql, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

func (r *paymentRepo) Get(ctx context.Context, id string) (*models.Payment, error) {
	return r.one(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id=$1`, id)
}

func (r *paymentRepo) GetByOrderNo(ctx context.Context, no string) (*models.Payment, error) {
	return r.one(ctx, `SELECT `+paymentColumns+` FROM payments WHERE payment_order_no=$1`, no)
}

func (r *paymentRepo) GetByOrderNoForUpdate(ctx context.Context, no string) (*models.Payment, error) {
	return r.one(ctx, `SELECT `+paymentColumns+` FROM payments WHERE payment_order_no=$1 FOR UPDATE`, no)
}

func (r *paymentRepo) Update(ctx context.Context, p *models.Payment) error {
	_, err := r.db.Exec(ctx, `
		UPDATE payments
		SET status=$2, paid_amount=$3, provider_ref=$4, failure_reason=$5, paid_at=$6, updated_at=now()
		WHERE id=$1`, p.ID, p.Status, p.PaidAmount, p.ProviderRef, p.FailureReason, p.PaidAt)
	return err
}

func (r *paymentRepo) ListStale(ctx context.Context, before time.Time, limit int) ([]models.Payment, error) {
	rows, err := r.db.Query(ctx, `SELECT `+paymentColumns+` FROM payments
		WHERE status IN ('PENDING','PROCESSING') AND created_at < $1
		ORDER BY created_at LIMIT $2`, before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}
