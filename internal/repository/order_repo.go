package repository

import (
	"context"
	"errors"

	"github.com/ariefcatur/go-realtime-venue/internal/models"
	"github.com/ariefcatur/go-realtime-venue/internal/postgres"
	"github.com/jackc/pgx/v5"
)

type orderRepo struct{ db postgres.DBTX }

const orderColumns = `id, order_no, member_id, reservation_id, table_id, member_coupon_id,
	original_amount, discount_amount, total_amount, status, paid_at, cancelled_at, restocked, created_at, updated_at`

func (r *orderRepo) Create(ctx context.Context, o *models.Order) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO orders(id, order_no, member_id, reservation_id, table_id, member_coupon_id,
			original_amount, discount_amount, total_amount, status, restocked, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,false,$11,$11)`,
		o.ID, o.OrderNo, o.MemberID, o.ReservationID, o.TableID, o.MemberCouponID,
		o.OriginalAmount, o.DiscountAmount, o.TotalAmount, o.Status, o.CreatedAt)
	if err != nil {
		return err
	}
	for _, it := range o.Items {
		if _, err := r.db.Exec(ctx, `
			INSERT INTO order_items(id, order_id, menu_item_id, name, unit_amount, quantity, subtotal)
			VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			it.ID, o.ID, it.MenuItemID, it.Name, it.UnitAmount, it.Quantity, it.Subtotal); err != nil {
			return err
		}
	}
	return nil
}

func (r *orderRepo) Get(ctx context.Context, id string) (*models.Order, error) {
	return r.get(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id)
}

func (r *orderRepo) GetForUpdate(ctx context.Context, id string) (*models.Order, error) {
	return r.get(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1 FOR UPDATE`, id)
}

func (r *orderRepo) get(ctx context.Context, sql, id string) (*models.Order, error) {
	var o models.Order
	err := r.db.QueryRow(ctx, sql, id).Scan(&o.ID, &o.OrderNo, &o.MemberID, &o.ReservationID, &o.TableID,
		&o.MemberCouponID, &o.OriginalAmount, &o.DiscountAmount, &o.TotalAmount, &o.Status,
		&o.PaidAt, &o.CancelledAt, &o.Restocked, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, order_id, menu_item_id, name, unit_amount, quantity, subtotal
		FROM order_items WHERE order_id=$1 ORDER BY menu_item_id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var it models.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.MenuItemID, &it.Name, &it.UnitAmount, &it.Quantity, &it.Subtotal); err != nil {
			return nil, err
		}
		o.Items = append(o.Items, it)
	}
	return &o, rows.Err()
}

func (r *orderRepo) Update(ctx context.Context, o *models.Order) error {
	_, err := r.db.Exec(ctx, `
		UPDATE orders SET status=$2, paid_at=$3, cancelled_at=$4, restocked=$5, updated_at=now()
		WHERE id=$1`, o.ID, o.Status, o.PaidAt, o.CancelledAt, o.Restocked)
	return err
}

func (r *orderRepo) CountOpenByTable(ctx context.Context, tableID, excludeOrderID string) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM orders
		WHERE table_id=$1 AND id::text <> $2
		  AND status IN ('PENDING','PAYMENT_FAILED','PAID','IN_PROGRESS')`, tableID, excludeOrderID).Scan(&n)
	return n, err
}

func (r *orderRepo) ListOpenByTable(ctx context.Context, tableID string) ([]models.Order, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE table_id=$1 AND status IN ('PENDING','PAYMENT_FAILED','PAID','IN_PROGRESS')
		ORDER BY created_at`, tableID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Order
	for rows.Next() {
		var o models.Order
		if err := rows.Scan(&o.ID, &o.OrderNo, &o.MemberID, &o.ReservationID, &o.TableID,
			&o.MemberCouponID, &o.OriginalAmount, &o.DiscountAmount, &o.TotalAmount, &o.Status,
			&o.PaidAt, &o.CancelledAt, &o.Restocked, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *orderRepo) HasOpenWithCoupon(ctx context.Context, memberCouponID string) (bool, error) {
	var ok bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM orders WHERE member_coupon_id=$1 AND status <> 'CANCELLED')`,
		memberCouponID).Scan(&ok)
	return ok, err
}
