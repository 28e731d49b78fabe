package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TableStatus string

const (
	TableAvailable   TableStatus = "AVAILABLE"
	TableReserved    TableStatus = "RESERVED"
	TableInUse       TableStatus = "IN_USE"
	TableMaintenance TableStatus = "MAINTENANCE"
)

type TableCategory string

const (
	TableMain   TableCategory = "MAIN"
	TableSide   TableCategory = "SIDE"
	TableDining TableCategory = "DINING"
)

type Table struct {
	ID        string        `gorm:"type:uuid;primaryKey" json:"id"`
	Name      string        `gorm:"size:64;not null" json:"name"`
	Category  TableCategory `gorm:"size:16;not null" json:"category"`
	Capacity  int           `gorm:"not null" json:"capacity"`
	Status    TableStatus   `gorm:"size:16;not null;index" json:"status"`
	Active    bool          `gorm:"not null" json:"active"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

func (Table) TableName() string { return "venue_tables" }

type ReservationStatus string

const (
	ReservationPending   ReservationStatus = "PENDING"
	ReservationConfirmed ReservationStatus = "CONFIRMED"
	ReservationCheckedIn ReservationStatus = "CHECKED_IN"
	ReservationCancelled ReservationStatus = "CANCELLED"
)

// Active reservations hold their table.
func (s ReservationStatus) Active() bool {
	return s == ReservationPending || s == ReservationConfirmed
}

type Reservation struct {
	ID            string            `gorm:"type:uuid;primaryKey" json:"id"`
	CustomerName  string            `gorm:"size:128;not null" json:"customer_name"`
	CustomerPhone string            `gorm:"size:32" json:"customer_phone"`
	MemberID      *string           `gorm:"type:uuid;index" json:"member_id,omitempty"`
	PartySize     int               `gorm:"not null" json:"party_size"`
	TableID       string            `gorm:"type:uuid;not null;index" json:"table_id"`
	ReservedAt    time.Time         `gorm:"not null" json:"reserved_at"`
	DepositAmount int64             `gorm:"not null" json:"deposit_amount"`
	DepositPaid   bool              `gorm:"not null" json:"deposit_paid"`
	PaymentID     *string           `gorm:"type:uuid" json:"payment_id,omitempty"`
	Status        ReservationStatus `gorm:"size:16;not null;index" json:"status"`
	CancelReason  *string           `gorm:"size:255" json:"cancel_reason,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

type MenuItemStatus string

const (
	MenuOnSale  MenuItemStatus = "ON_SALE"
	MenuOffSale MenuItemStatus = "OFF_SALE"
	MenuSoldOut MenuItemStatus = "SOLD_OUT"
)

type MenuItem struct {
	ID        string         `gorm:"type:uuid;primaryKey" json:"id"`
	Category  string         `gorm:"size:64;not null" json:"category"`
	Name      string         `gorm:"size:128;not null" json:"name"`
	Price     int64          `gorm:"not null" json:"price"`
	Stock     int            `gorm:"not null" json:"stock"`
	Status    MenuItemStatus `gorm:"size:16;not null" json:"status"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

type OrderStatus string

const (
	OrderPending       OrderStatus = "PENDING"
	OrderPaid          OrderStatus = "PAID"
	OrderPaymentFailed OrderStatus = "PAYMENT_FAILED"
	OrderInProgress    OrderStatus = "IN_PROGRESS"
	OrderCompleted     OrderStatus = "COMPLETED"
	OrderCancelled     OrderStatus = "CANCELLED"
)

// OpenOrderStatuses still occupy their table.
var OpenOrderStatuses = []OrderStatus{OrderPending, OrderPaymentFailed, OrderPaid, OrderInProgress}

func (s OrderStatus) Open() bool {
	for _, o := range OpenOrderStatuses {
		if s == o {
			return true
		}
	}
	return false
}

type Order struct {
	ID             string      `gorm:"type:uuid;primaryKey" json:"id"`
	OrderNo        string      `gorm:"size:32;not null;uniqueIndex" json:"order_no"`
	MemberID       *string     `gorm:"type:uuid;index" json:"member_id,omitempty"`
	ReservationID  *string     `gorm:"type:uuid;index" json:"reservation_id,omitempty"`
	TableID        *string     `gorm:"type:uuid;index" json:"table_id,omitempty"`
	MemberCouponID *string     `gorm:"type:uuid;index" json:"member_coupon_id,omitempty"`
	Items          []OrderItem `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"items"`
	OriginalAmount int64       `gorm:"not null" json:"original_amount"`
	DiscountAmount int64       `gorm:"not null" json:"discount_amount"`
	TotalAmount    int64       `gorm:"not null" json:"total_amount"`
	Status         OrderStatus `gorm:"size:16;not null;index" json:"status"`
	PaidAt         *time.Time  `json:"paid_at,omitempty"`
	CancelledAt    *time.Time  `json:"cancelled_at,omitempty"`
	Restocked      bool        `gorm:"not null" json:"restocked"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// OrderItem snapshots name and price at order time.
type OrderItem struct {
	ID         string `gorm:"type:uuid;primaryKey" json:"id"`
	OrderID    string `gorm:"type:uuid;not null;index" json:"order_id"`
	MenuItemID string `gorm:"type:uuid;not null" json:"menu_item_id"`
	Name       string `gorm:"size:128;not null" json:"name"`
	UnitAmount int64  `gorm:"not null" json:"unit_amount"`
	Quantity   int    `gorm:"not null" json:"quantity"`
	Subtotal   int64  `gorm:"not null" json:"subtotal"`
}

type PaymentType string

const (
	PaymentOrder      PaymentType = "ORDER_PAYMENT"
	PaymentDeposit    PaymentType = "RESERVATION_DEPOSIT"
	PaymentRecharge   PaymentType = "RECHARGE"
	PaymentRefundType PaymentType = "REFUND"
)

type PaymentMethod string

const (
	MethodWechat  PaymentMethod = "WECHAT"
	MethodAlipay  PaymentMethod = "ALIPAY"
	MethodCard    PaymentMethod = "CARD"
	MethodCash    PaymentMethod = "CASH"
	MethodBalance PaymentMethod = "BALANCE"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodWechat, MethodAlipay, MethodCard, MethodCash, MethodBalance:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "PENDING"
	PaymentProcessing PaymentStatus = "PROCESSING"
	PaymentSuccess    PaymentStatus = "SUCCESS"
	PaymentFailed     PaymentStatus = "FAILED"
	PaymentCancelled  PaymentStatus = "CANCELLED"
	PaymentRefunded   PaymentStatus = "REFUNDED"
)

type Payment struct {
	ID              string        `gorm:"type:uuid;primaryKey" json:"id"`
	PaymentOrderNo  string        `gorm:"size:40;not null;uniqueIndex" json:"payment_order_no"`
	Type            PaymentType   `gorm:"size:24;not null" json:"type"`
	Method          PaymentMethod `gorm:"size:16;not null" json:"method"`
	Status          PaymentStatus `gorm:"size:16;not null;index" json:"status"`
	Amount          int64         `gorm:"not null" json:"amount"`
	PaidAmount      int64         `gorm:"not null" json:"paid_amount"`
	OrderID         *string       `gorm:"type:uuid;index" json:"order_id,omitempty"`
	ReservationID   *string       `gorm:"type:uuid;index" json:"reservation_id,omitempty"`
	MemberID        *string       `gorm:"type:uuid;index" json:"member_id,omitempty"`
	RechargePoints  int64         `gorm:"not null" json:"recharge_points"`
	BonusPoints     int64         `gorm:"not null" json:"bonus_points"`
	ProviderRef     string        `gorm:"size:128" json:"provider_ref"`
	FailureReason   *string       `gorm:"size:255" json:"failure_reason,omitempty"`
	ParentPaymentID *string       `gorm:"type:uuid" json:"parent_payment_id,omitempty"`
	PaidAt          *time.Time    `json:"paid_at,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

type CouponType string

const (
	CouponAmount     CouponType = "AMOUNT"
	CouponDiscount   CouponType = "DISCOUNT"
	CouponPercentage CouponType = "PERCENTAGE"
)

type CouponStatus string

const (
	CouponActive   CouponStatus = "ACTIVE"
	CouponInactive CouponStatus = "INACTIVE"
)

// Coupon is a template. Value is minor units for AMOUNT, a pay-ratio in (0,1)
// for DISCOUNT and a 0-100 rate for PERCENTAGE.
type Coupon struct {
	ID              string          `gorm:"type:uuid;primaryKey" json:"id"`
	Name            string          `gorm:"size:128;not null" json:"name"`
	Type            CouponType      `gorm:"size:16;not null" json:"type"`
	Value           decimal.Decimal `gorm:"type:numeric(14,4);not null" json:"value"`
	MinAmount       int64           `gorm:"not null" json:"min_amount"`
	MaxDiscount     *int64          `json:"max_discount,omitempty"`
	TotalQuantity   int             `gorm:"not null" json:"total_quantity"`
	ClaimedQuantity int             `gorm:"not null" json:"claimed_quantity"`
	LimitPerUser    int             `gorm:"not null" json:"limit_per_user"`
	MinLevel        int             `gorm:"not null" json:"min_level"`
	StartTime       time.Time       `gorm:"not null" json:"start_time"`
	EndTime         time.Time       `gorm:"not null" json:"end_time"`
	ValidDays       *int            `json:"valid_days,omitempty"`
	Status          CouponStatus    `gorm:"size:16;not null" json:"status"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

type MemberCouponStatus string

const (
	MemberCouponAvailable MemberCouponStatus = "AVAILABLE"
	MemberCouponUsed      MemberCouponStatus = "USED"
	MemberCouponExpired   MemberCouponStatus = "EXPIRED"
)

type MemberCoupon struct {
	ID        string             `gorm:"type:uuid;primaryKey" json:"id"`
	CouponID  string             `gorm:"type:uuid;not null;index" json:"coupon_id"`
	MemberID  string             `gorm:"type:uuid;not null;index" json:"member_id"`
	Status    MemberCouponStatus `gorm:"size:16;not null" json:"status"`
	StartTime time.Time          `gorm:"not null" json:"start_time"`
	EndTime   time.Time          `gorm:"not null;index" json:"end_time"`
	OrderID   *string            `gorm:"type:uuid" json:"order_id,omitempty"`
	UsedAt    *time.Time         `json:"used_at,omitempty"`
	ClaimedAt time.Time          `gorm:"not null" json:"claimed_at"`
}

type Member struct {
	ID        string    `gorm:"type:uuid;primaryKey" json:"id"`
	Name      string    `gorm:"size:128;not null" json:"name"`
	Phone     string    `gorm:"size:32;uniqueIndex" json:"phone"`
	Level     int       `gorm:"not null" json:"level"`
	Points    int64     `gorm:"not null;index" json:"points"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type LoyaltyType string

const (
	LoyaltyEarn   LoyaltyType = "EARN"
	LoyaltyRedeem LoyaltyType = "REDEEM"
)

// LoyaltyTransaction is append-only. Points is signed: EARN > 0, REDEEM < 0.
type LoyaltyTransaction struct {
	ID        string      `gorm:"type:uuid;primaryKey" json:"id"`
	MemberID  string      `gorm:"type:uuid;not null;index" json:"member_id"`
	Type      LoyaltyType `gorm:"size:8;not null" json:"type"`
	Points    int64       `gorm:"not null" json:"points"`
	OrderID   *string     `gorm:"type:uuid" json:"order_id,omitempty"`
	PaymentID *string     `gorm:"type:uuid" json:"payment_id,omitempty"`
	Note      string      `gorm:"size:255" json:"note"`
	CreatedAt time.Time   `json:"created_at"`
}

func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
