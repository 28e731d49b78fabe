package repository

import (
	"context"
	"time"

	"github.com/ariefcatur/go-realtime-venue/internal/models"
	"github.com/ariefcatur/go-realtime-venue/internal/postgres"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Getters return (nil, nil) when the row does not exist.

type TableRepo interface {
	Create(ctx context.Context, t *models.Table) error
	Get(ctx context.Context, id string) (*models.Table, error)
	GetForUpdate(ctx context.Context, id string) (*models.Table, error)
	UpdateStatus(ctx context.Context, id string, status models.TableStatus) error
}

type ReservationRepo interface {
	Create(ctx context.Context, r *models.Reservation) error
	Get(ctx context.Context, id string) (*models.Reservation, error)
	GetForUpdate(ctx context.Context, id string) (*models.Reservation, error)
	Update(ctx context.Context, r *models.Reservation) error
	ListActiveByTable(ctx context.Context, tableID string) ([]models.Reservation, error)
}

type MenuRepo interface {
	Create(ctx context.Context, m *models.MenuItem) error
	Get(ctx context.Context, id string) (*models.MenuItem, error)
	// LockForUpdate locks the rows in id order; missing ids are simply absent from the result.
	LockForUpdate(ctx context.Context, ids []string) ([]models.MenuItem, error)
	UpdateStock(ctx context.Context, id string, stock int, status models.MenuItemStatus) error
}

type OrderRepo interface {
	Create(ctx context.Context, o *models.Order) error
	Get(ctx context.Context, id string) (*models.Order, error)
	GetForUpdate(ctx context.Context, id string) (*models.Order, error)
	Update(ctx context.Context, o *models.Order) error
	CountOpenByTable(ctx context.Context, tableID, excludeOrderID string) (int, error)
	// ListOpenByTable returns the open orders seated at a table, without items.
	ListOpenByTable(ctx context.Context, tableID string) ([]models.Order, error)
	HasOpenWithCoupon(ctx context.Context, memberCouponID string) (bool, error)
}

type PaymentRepo interface {
	Create(ctx context.Context, p *models.Payment) error
	Get(ctx context.Context, id string) (*models.Payment, error)
	GetByOrderNo(ctx context.Context, paymentOrderNo string) (*models.Payment, error)
	GetByOrderNoForUpdate(ctx context.Context, paymentOrderNo string) (*models.Payment, error)
	Update(ctx context.Context, p *models.Payment) error
	ListStale(ctx context.Context, before time.Time, limit int) ([]models.Payment, error)
}

type CouponRepo interface {
	Create(ctx context.Context, c *models.Coupon) error
	Get(ctx context.Context, id string) (*models.Coupon, error)
	// IncrementClaimed bumps claimed_quantity only while it is below total_quantity.
	IncrementClaimed(ctx context.Context, id string) (bool, error)
	CountClaims(ctx context.Context, couponID, memberID string) (int, error)
	CreateClaim(ctx context.Context, mc *models.MemberCoupon) error
	GetClaim(ctx context.Context, id string) (*models.MemberCoupon, error)
	GetClaimForUpdate(ctx context.Context, id string) (*models.MemberCoupon, error)
	UpdateClaim(ctx context.Context, mc *models.MemberCoupon) error
	ListClaimsByMember(ctx context.Context, memberID string) ([]models.MemberCoupon, error)
	ExpireClaims(ctx context.Context, now time.Time) (int64, error)
}

type MemberRepo interface {
	Create(ctx context.Context, m *models.Member) error
	Get(ctx context.Context, id string) (*models.Member, error)
	GetForUpdate(ctx context.Context, id string) (*models.Member, error)
	SetPoints(ctx context.Context, id string, points int64) error
	Top(ctx context.Context, limit int) ([]models.Member, error)
	CountAbove(ctx context.Context, points int64) (int64, error)
}

type LoyaltyRepo interface {
	Append(ctx context.Context, e *models.LoyaltyTransaction) error
	Sum(ctx context.Context, memberID string) (int64, error)
	ExistsForOrder(ctx context.Context, orderID string, typ models.LoyaltyType) (bool, error)
	ExistsForPayment(ctx context.Context, paymentID string, typ models.LoyaltyType) (bool, error)
	ListByMember(ctx context.Context, memberID string, limit int) ([]models.LoyaltyTransaction, error)
}

type Repository struct {
	Tables       TableRepo
	Reservations ReservationRepo
	Menu         MenuRepo
	Orders       OrderRepo
	Payments     PaymentRepo
	Coupons      CouponRepo
	Members      MemberRepo
	Loyalty      LoyaltyRepo
}

// Store hands out repositories bound either to the pool or to one transaction.
type Store interface {
	Repos() *Repository
	WithTx(ctx context.Context, fn func(r *Repository) error) error
}

func buildRepository(db postgres.DBTX) *Repository {
	return &Repository{
		Tables:       &tableRepo{db: db},
		Reservations: &reservationRepo{db: db},
		Menu:         &menuRepo{db: db},
		Orders:       &orderRepo{db: db},
		Payments:     &paymentRepo{db: db},
		Coupons:      &couponRepo{db: db},
		Members:      &memberRepo{db: db},
		Loyalty:      &loyaltyRepo{db: db},
	}
}

type PgStore struct {
	DB    *pgxpool.Pool
	repos *Repository
}

func NewPgStore(db *pgxpool.Pool) *PgStore {
	return &PgStore{DB: db, repos: buildRepository(db)}
}

func (s *PgStore) Repos() *Repository { return s.repos }

func (s *PgStore) WithTx(ctx context.Context, fn func(r *Repository) error) error {
	return postgres.WithTx(ctx, s.DB, func(tx pgx.Tx) error {
		return fn(buildRepository(tx))
	})
}
