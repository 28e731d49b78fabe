package repository

import (
	"context"

	"github.com/ariefcatur/go-realtime-venue/internal/models"
	"github.com/ariefcatur/go-realtime-venue/internal/postgres"
)

// loyaltyRepo never updates or deletes: the ledger is append-only.
type loyaltyRepo struct{ db postgres.DBTX }

func (r *loyaltyRepo) Append(ctx context.Context, e *models.LoyaltyTransaction) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO loyalty_transactions(id, member_id, type, points, order_id, payment_id, note, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		e.ID, e.MemberID, e.Type, e.Points, e.OrderID, e.PaymentID, e.Note, e.CreatedAt)
	return err
}

func (r *loyaltyRepo) Sum(ctx context.Context, memberID string) (int64, error) {
	var n int64
	err := r.db.QueryRow(ctx, `SELECT COALESCE(SUM(points), 0) FROM loyalty_transactions WHERE member_id=$1`,
		memberID).Scan(&n)
	return n, err
}

func (r *loyaltyRepo) ExistsForOrder(ctx context.Context, orderID string, typ models.LoyaltyType) (bool, error) {
	var ok bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM loyalty_transactions WHERE order_id=$1 AND type=$2)`,
		orderID, typ).Scan(&ok)
	return ok, err
}

func (r *loyaltyRepo) ExistsForPayment(ctx context.Context, paymentID string, typ models.LoyaltyType) (bool, error) {
	var ok bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM loyalty_transactions WHERE payment_id=$1 AND type=$2)`,
		paymentID, typ).Scan(&ok)
	return ok, err
}

func (r *loyaltyRepo) ListByMember(ctx context.Context, memberID string, limit int) ([]models.LoyaltyTransaction, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, member_id, type, points, order_id, payment_id, note, created_at
		FROM loyalty_transactions WHERE member_id=$1
		ORDER BY created_at DESC LIMIT $2`, memberID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.LoyaltyTransaction
	for rows.Next() {
		var e models.LoyaltyTransaction
		if err := rows.Scan(&e.ID, &e.MemberID, &e.Type, &e.Points, &e.OrderID, &e.PaymentID, &e.Note, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
