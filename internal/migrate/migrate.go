package migrate

import (
	"context"

	"github.com/ariefcatur/go-realtime-venue/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type MigrateOptions struct {
	CreateChecks  bool // status enums and non-negative amounts
	CreateIndexes bool // partial unique indexes the runtime relies on
	CreateFKs     bool
}

func DefaultMigrateOptions() MigrateOptions {
	return MigrateOptions{
		CreateChecks:  true,
		CreateIndexes: true,
		CreateFKs:     true,
	}
}

type step struct {
	name string
	sql  string
}

var checks = []step{
	{"chk venue_tables.status", `
ALTER TABLE venue_tables
	DROP CONSTRAINT IF EXISTS chk_tables_status,
	ADD CONSTRAINT chk_tables_status
	CHECK (status IN ('AVAILABLE','RESERVED','IN_USE','MAINTENANCE') AND capacity > 0);`},
	{"chk reservations", `
ALTER TABLE reservations
	DROP CONSTRAINT IF EXISTS chk_reservations_status,
	ADD CONSTRAINT chk_reservations_status
	CHECK (status IN ('PENDING','CONFIRMED','CHECKED_IN','CANCELLED') AND deposit_amount >= 0 AND party_size > 0);`},
	{"chk menu_items", `
ALTER TABLE menu_items
	DROP CONSTRAINT IF EXISTS chk_menu_items_stock,
	ADD CONSTRAINT chk_menu_items_stock
	CHECK (stock >= 0 AND price >= 0 AND status IN ('ON_SALE','OFF_SALE','SOLD_OUT'));`},
	{"chk orders", `
ALTER TABLE orders
	DROP CONSTRAINT IF EXISTS chk_orders_amounts,
	ADD CONSTRAINT chk_orders_amounts
	CHECK (total_amount >= 0 AND discount_amount >= 0
		AND status IN ('PENDING','PAID','PAYMENT_FAILED','IN_PROGRESS','COMPLETED','CANCELLED'));`},
	{"chk order_items", `
ALTER TABLE order_items
	DROP CONSTRAINT IF EXISTS chk_order_items_quantity,
	ADD CONSTRAINT chk_order_items_quantity
	CHECK (quantity > 0);`},
	{"chk payments", `
ALTER TABLE payments
	DROP CONSTRAINT IF EXISTS chk_payments_status,
	ADD CONSTRAINT chk_payments_status
	CHECK (amount >= 0
		AND status IN ('PENDING','PROCESSING','SUCCESS','FAILED','CANCELLED','REFUNDED')
		AND type IN ('ORDER_PAYMENT','RESERVATION_DEPOSIT','RECHARGE','REFUND'));`},
	{"chk coupons", `
ALTER TABLE coupons
	DROP CONSTRAINT IF EXISTS chk_coupons_quantity,
	ADD CONSTRAINT chk_coupons_quantity
	CHECK (claimed_quantity >= 0 AND claimed_quantity <= total_quantity AND limit_per_user >= 0);`},
	{"chk member_coupons", `
ALTER TABLE member_coupons
	DROP CONSTRAINT IF EXISTS chk_member_coupons_status,
	ADD CONSTRAINT chk_member_coupons_status
	CHECK (status IN ('AVAILABLE','USED','EXPIRED'));`},
	{"chk loyalty_transactions", `
ALTER TABLE loyalty_transactions
	DROP CONSTRAINT IF EXISTS chk_loyalty_sign,
	ADD CONSTRAINT chk_loyalty_sign
	CHECK ((type = 'EARN' AND points > 0) OR (type = 'REDEEM' AND points < 0));`},
	{"chk members", `
ALTER TABLE members
	DROP CONSTRAINT IF EXISTS chk_members_points,
	ADD CONSTRAINT chk_members_points
	CHECK (points >= 0);`},
}

var indexes = []step{
	// one grant and one revocation per order, one recharge credit per payment
	{"ux loyalty order", `
CREATE UNIQUE INDEX IF NOT EXISTS ux_loyalty_order_type
ON loyalty_transactions (order_id, type) WHERE order_id IS NOT NULL;`},
	{"ux loyalty payment", `
CREATE UNIQUE INDEX IF NOT EXISTS ux_loyalty_payment_type
ON loyalty_transactions (payment_id, type) WHERE payment_id IS NOT NULL;`},
	{"ix member_coupons claims", `
CREATE INDEX IF NOT EXISTS ix_member_coupons_coupon_member
ON member_coupons (coupon_id, member_id);`},
	{"ix member_coupons sweep", `
CREATE INDEX IF NOT EXISTS ix_member_coupons_available_end
ON member_coupons (end_time) WHERE status = 'AVAILABLE';`},
	{"ix payments stale", `
CREATE INDEX IF NOT EXISTS ix_payments_open_created
ON payments (created_at) WHERE status IN ('PENDING','PROCESSING');`},
	{"ix members leaderboard", `
CREATE INDEX IF NOT EXISTS ix_members_points_created
ON members (points DESC, created_at ASC);`},
}

var fks = []step{
	{"fk reservations.table_id", `
ALTER TABLE reservations
	DROP CONSTRAINT IF EXISTS fk_reservations_table,
	ADD CONSTRAINT fk_reservations_table
	FOREIGN KEY (table_id) REFERENCES venue_tables(id) ON DELETE RESTRICT;`},
	{"fk order_items.menu_item_id", `
ALTER TABLE order_items
	DROP CONSTRAINT IF EXISTS fk_order_items_menu_item,
	ADD CONSTRAINT fk_order_items_menu_item
	FOREIGN KEY (menu_item_id) REFERENCES menu_items(id) ON DELETE RESTRICT;`},
	{"fk member_coupons.coupon_id", `
ALTER TABLE member_coupons
	DROP CONSTRAINT IF EXISTS fk_member_coupons_coupon,
	ADD CONSTRAINT fk_member_coupons_coupon
	FOREIGN KEY (coupon_id) REFERENCES coupons(id) ON DELETE RESTRICT;`},
	{"fk loyalty_transactions.member_id", `
ALTER TABLE loyalty_transactions
	DROP CONSTRAINT IF EXISTS fk_loyalty_member,
	ADD CONSTRAINT fk_loyalty_member
	FOREIGN KEY (member_id) REFERENCES members(id) ON DELETE RESTRICT;`},
}

func MigrateVenueDB(ctx context.Context, db *gorm.DB, log *zap.Logger, opt MigrateOptions) error {
	log.Info("migrating venue schema")
	db = db.WithContext(ctx)

	if err := db.AutoMigrate(
		&models.Table{},
		&models.Reservation{},
		&models.MenuItem{},
		&models.Order{},
		&models.OrderItem{},
		&models.Payment{},
		&models.Coupon{},
		&models.MemberCoupon{},
		&models.Member{},
		&models.LoyaltyTransaction{},
	); err != nil {
		log.Error("AutoMigrate error", zap.Error(err))
		return err
	}
	log.Info("tables created")

	if opt.CreateChecks {
		if err := run(db, log, checks); err != nil {
			return err
		}
		log.Info("check constraints created")
	}
	if opt.CreateIndexes {
		if err := run(db, log, indexes); err != nil {
			return err
		}
		log.Info("indexes created")
	}
	if opt.CreateFKs {
		if err := run(db, log, fks); err != nil {
			return err
		}
		log.Info("foreign keys created")
	}

	log.Info("venue schema migrated")
	return nil
}

func run(db *gorm.DB, log *zap.Logger, steps []step) error {
	for _, s := range steps {
		if err := db.Exec(s.sql).Error; err != nil {
			log.Error(s.name, zap.Error(err))
			return err
		}
	}
	return nil
}
