package coupons

import (
	"github.com/ariefcatur/go-realtime-venue/internal/models"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// CalculateDiscount returns the discount in minor units a coupon grants on an
// order amount. Fractions are dropped, and the result never exceeds the
// coupon's cap or the amount itself.
func CalculateDiscount(c *models.Coupon, amount int64) int64 {
	if c == nil || amount <= 0 || amount < c.MinAmount {
		return 0
	}
	amt := decimal.NewFromInt(amount)

	var d decimal.Decimal
	switch c.Type {
	case models.CouponAmount:
		d = c.Value
	case models.CouponDiscount:
		// Value is the share the customer still pays, 0.8 is 20% off.
		if c.Value.LessThanOrEqual(decimal.Zero) || c.Value.GreaterThanOrEqual(decimal.NewFromInt(1)) {
			return 0
		}
		d = amt.Mul(decimal.NewFromInt(1).Sub(c.Value))
	case models.CouponPercentage:
		if c.Value.LessThanOrEqual(decimal.Zero) {
			return 0
		}
		d = amt.Mul(c.Value).Div(hundred)
	default:
		return 0
	}

	out := d.Floor().IntPart()
	if c.MaxDiscount != nil && *c.MaxDiscount > 0 && out > *c.MaxDiscount {
		out = *c.MaxDiscount
	}
	if out > amount {
		out = amount
	}
	if out < 0 {
		return 0
	}
	return out
}
