package coupons

import (
	"testing"

	"github.com/ariefcatur/go-realtime-venue/internal/models"
	"github.com/shopspring/decimal"
)

func ptr(v int64) *int64 { return &v }

func TestCalculateDiscount(t *testing.T) {
	cases := []struct {
		name   string
		coupon models.Coupon
		amount int64
		want   int64
	}{
		{"amount flat", models.Coupon{Type: models.CouponAmount, Value: decimal.NewFromInt(2000)}, 10000, 2000},
		{"amount above order", models.Coupon{Type: models.CouponAmount, Value: decimal.NewFromInt(5000)}, 3000, 3000},
		{"below minimum", models.Coupon{Type: models.CouponAmount, Value: decimal.NewFromInt(2000), MinAmount: 10001}, 10000, 0},
		{"at minimum", models.Coupon{Type: models.CouponAmount, Value: decimal.NewFromInt(2000), MinAmount: 10000}, 10000, 2000},
		{"discount ratio", models.Coupon{Type: models.CouponDiscount, Value: decimal.RequireFromString("0.8")}, 10000, 2000},
		{"discount floors", models.Coupon{Type: models.CouponDiscount, Value: decimal.RequireFromString("0.85")}, 999, 149},
		{"discount ratio out of range", models.Coupon{Type: models.CouponDiscount, Value: decimal.NewFromInt(1)}, 10000, 0},
		{"percentage", models.Coupon{Type: models.CouponPercentage, Value: decimal.NewFromInt(15)}, 10000, 1500},
		{"percentage floors", models.Coupon{Type: models.CouponPercentage, Value: decimal.RequireFromString("12.5")}, 333, 41},
		{"percentage capped", models.Coupon{Type: models.CouponPercentage, Value: decimal.NewFromInt(50), MaxDiscount: ptr(1000)}, 10000, 1000},
		{"percentage over 100 clamps to amount", models.Coupon{Type: models.CouponPercentage, Value: decimal.NewFromInt(150)}, 4000, 4000},
		{"zero amount", models.Coupon{Type: models.CouponAmount, Value: decimal.NewFromInt(100)}, 0, 0},
		{"unknown type", models.Coupon{Type: "BOGUS", Value: decimal.NewFromInt(100)}, 1000, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CalculateDiscount(&tc.coupon, tc.amount); got != tc.want {
				t.Fatalf("CalculateDiscount = %d, want %d", got, tc.want)
			}
		})
	}
}
