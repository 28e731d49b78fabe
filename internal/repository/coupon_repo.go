package repository

import (
	"context"
	"errors"
	"time"

	"github.com/ariefcatur/go-realtime-venue/internal/models"
	"github.com/ariefcatur/go-realtime-venue/internal/postgres"
	"github.com/jackc/pgx/v5"
)

type couponRepo struct{ db postgres.DBTX }

func (r *couponRepo) Create(ctx context.Context, c *models.Coupon) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO coupons(id, name, type, value, min_amount, max_discount, total_quantity, claimed_quantity,
			limit_per_user, min_level, start_time, end_time, valid_days, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,now(),now())`,
		c.ID, c.Name, c.Type, c.Value, c.MinAmount, c.MaxDiscount, c.TotalQuantity, c.ClaimedQuantity,
		c.LimitPerUser, c.MinLevel, c.StartTime, c.EndTime, c.ValidDays, c.Status)
	return err
}

func (r *couponRepo) Get(ctx context.Context, id string) (*models.Coupon, error) {
	var c models.Coupon
	err := r.db.QueryRow(ctx, `
		SELECT id, name, type, value, min_amount, max_discount, total_quantity, claimed_quantity,
			limit_per_user, min_level, start_time, end_time, valid_days, status, created_at, updated_at
		FROM coupons WHERE id=$1`, id).
		Scan(&c.ID, &c.Name, &c.Type, &c.Value, &c.MinAmount, &c.MaxDiscount, &c.TotalQuantity,
			&c.ClaimedQuantity, &c.LimitPerUser, &c.MinLevel, &c.StartTime, &c.EndTime, &c.ValidDays,
			&c.Status, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *couponRepo) IncrementClaimed(ctx context.Context, id string) (bool, error) {
	ct, err := r.db.Exec(ctx, `
		UPDATE coupons SET claimed_quantity = claimed_quantity + 1, updated_at = now()
		WHERE id=$1 AND claimed_quantity < total_quantity`, id)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

func (r *couponRepo) CountClaims(ctx context.Context, couponID, memberID string) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM member_coupons WHERE coupon_id=$1 AND member_id=$2`,
		couponID, memberID).Scan(&n)
	return n, err
}

const claimColumns = `id, coupon_id, member_id, status, start_time, end_time, order_id, used_at, claimed_at`

func scanClaim(row pgx.Row) (*models.MemberCoupon, error) {
	var mc models.MemberCoupon
	if err := row.Scan(&mc.ID, &mc.CouponID, &mc.MemberID, &mc.Status, &mc.StartTime, &mc.EndTime,
		&mc.OrderID, &mc.UsedAt, &mc.ClaimedAt); err != nil {
		return nil, err
	}
	return &mc, nil
}

func (r *couponRepo) CreateClaim(ctx context.Context, mc *models.MemberCoupon) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO member_coupons(`+claimColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		mc.ID, mc.CouponID, mc.MemberID, mc.Status, mc.StartTime, mc.EndTime, mc.OrderID, mc.UsedAt, mc.ClaimedAt)
	return err
}

func (r *couponRepo) GetClaim(ctx context.Context, id string) (*models.MemberCoupon, error) {
	mc, err := scanClaim(r.db.QueryRow(ctx, `SELECT `+claimColumns+` FROM member_coupons WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return mc, err
}

func (r *couponRepo) GetClaimForUpdate(ctx context.Context, id string) (*models.MemberCoupon, error) {
	mc, err := scanClaim(r.db.QueryRow(ctx, `SELECT `+claimColumns+` FROM member_coupons WHERE id=$1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return mc, err
}

func (r *couponRepo) UpdateClaim(ctx context.Context, mc *models.MemberCoupon) error {
	_, err := r.db.Exec(ctx, `UPDATE member_coupons SET status=$2, order_id=$3, used_at=$4 WHERE id=$1`,
		mc.ID, mc.Status, mc.OrderID, mc.UsedAt)
	return err
}

func (r *couponRepo) ListClaimsByMember(ctx context.Context, memberID string) ([]models.MemberCoupon, error) {
	rows, err := r.db.Query(ctx, `SELECT `+claimColumns+` FROM member_coupons
		WHERE member_id=$1 ORDER BY claimed_at DESC`, memberID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.MemberCoupon
	for rows.Next() {
		mc, err := scanClaim(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *mc)
	}
	return out, rows.Err()
}

func (r *couponRepo) ExpireClaims(ctx context.Context, now time.Time) (int64, error) {
	ct, err := r.db.Exec(ctx, `
		UPDATE member_coupons SET status='EXPIRED'
		WHERE status='AVAILABLE' AND end_time <= $1`, now)
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}
