package memory

import (
	"context"
	"sort"
	"time"

	"github.com/ariefcatur/go-realtime-venue/internal/models"
)

type tableRepo struct{ base }

func (r tableRepo) Create(_ context.Context, t *models.Table) error {
	defer r.guard()()
	if _, ok := r.s.st.tables[t.ID]; ok {
		return duplicate("venue_tables", t.ID)
	}
	now := time.Now()
	t.CreatedAt, t.UpdatedAt = now, now
	r.s.st.tables[t.ID] = *t
	return nil
}

func (r tableRepo) Get(_ context.Context, id string) (*models.Table, error) {
	defer r.guard()()
	t, ok := r.s.st.tables[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (r tableRepo) GetForUpdate(ctx context.Context, id string) (*models.Table, error) {
	return r.Get(ctx, id)
}

func (r tableRepo) UpdateStatus(_ context.Context, id string, status models.TableStatus) error {
	defer r.guard()()
	t, ok := r.s.st.tables[id]
	if !ok {
		return nil
	}
	t.Status = status
	t.UpdatedAt = time.Now()
	r.s.st.tables[id] = t
	return nil
}

type reservationRepo struct{ base }

func (r reservationRepo) Create(_ context.Context, res *models.Reservation) error {
	defer r.guard()()
	if _, ok := r.s.st.reservations[res.ID]; ok {
		return duplicate("reservations", res.ID)
	}
	res.UpdatedAt = res.CreatedAt
	r.s.st.reservations[res.ID] = *res
	return nil
}

func (r reservationRepo) Get(_ context.Context, id string) (*models.Reservation, error) {
	defer r.guard()()
	res, ok := r.s.st.reservations[id]
	if !ok {
		return nil, nil
	}
	return &res, nil
}

func (r reservationRepo) GetForUpdate(ctx context.Context, id string) (*models.Reservation, error) {
	return r.Get(ctx, id)
}

func (r reservationRepo) Update(_ context.Context, res *models.Reservation) error {
	defer r.guard()()
	cur, ok := r.s.st.reservations[res.ID]
	if !ok {
		return nil
	}
	cur.Status = res.Status
	cur.DepositPaid = res.DepositPaid
	cur.PaymentID = res.PaymentID
	cur.CancelReason = res.CancelReason
	cur.UpdatedAt = time.Now()
	r.s.st.reservations[res.ID] = cur
	return nil
}

func (r reservationRepo) ListActiveByTable(_ context.Context, tableID string) ([]models.Reservation, error) {
	defer r.guard()()
	var out []models.Reservation
	for _, res := range r.s.st.reservations {
		if res.TableID == tableID && res.Status.Active() {
			out = append(out, res)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReservedAt.Before(out[j].ReservedAt) })
	return out, nil
}

type menuRepo struct{ base }

func (r menuRepo) Create(_ context.Context, m *models.MenuItem) error {
	defer r.guard()()
	if _, ok := r.s.st.menu[m.ID]; ok {
		return duplicate("menu_items", m.ID)
	}
	now := time.Now()
	m.CreatedAt, m.UpdatedAt = now, now
	r.s.st.menu[m.ID] = *m
	return nil
}

func (r menuRepo) Get(_ context.Context, id string) (*models.MenuItem, error) {
	defer r.guard()()
	m, ok := r.s.st.menu[id]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (r menuRepo) LockForUpdate(_ context.Context, ids []string) ([]models.MenuItem, error) {
	defer r.guard()()
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	var out []models.MenuItem
	for i, id := range sorted {
		if i > 0 && sorted[i-1] == id {
			continue
		}
		if m, ok := r.s.st.menu[id]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r menuRepo) UpdateStock(_ context.Context, id string, stock int, status models.MenuItemStatus) error {
	defer r.guard()()
	m, ok := r.s.st.menu[id]
	if !ok {
		return nil
	}
	m.Stock = stock
	m.Status = status
	m.UpdatedAt = time.Now()
	r.s.st.menu[id] = m
	return nil
}

type orderRepo struct{ base }

func (r orderRepo) Create(_ context.Context, o *models.Order) error {
	defer r.guard()()
	if _, ok := r.s.st.orders[o.ID]; ok {
		return duplicate("orders", o.ID)
	}
	for _, ex := range r.s.st.orders {
		if ex.OrderNo == o.OrderNo {
			return duplicate("orders.order_no", o.OrderNo)
		}
	}
	cp := *o
	cp.UpdatedAt = cp.CreatedAt
	cp.Items = append([]models.OrderItem(nil), o.Items...)
	for i := range cp.Items {
		cp.Items[i].OrderID = o.ID
	}
	r.s.st.orders[o.ID] = cp
	return nil
}

func (r orderRepo) Get(_ context.Context, id string) (*models.Order, error) {
	defer r.guard()()
	o, ok := r.s.st.orders[id]
	if !ok {
		return nil, nil
	}
	o.Items = append([]models.OrderItem(nil), o.Items...)
	sort.Slice(o.Items, func(i, j int) bool { return o.Items[i].MenuItemID < o.Items[j].MenuItemID })
	return &o, nil
}

func (r orderRepo) GetForUpdate(ctx context.Context, id string) (*models.Order, error) {
	return r.Get(ctx, id)
}

func (r orderRepo) Update(_ context.Context, o *models.Order) error {
	defer r.guard()()
	cur, ok := r.s.st.orders[o.ID]
	if !ok {
		return nil
	}
	cur.Status = o.Status
	cur.PaidAt = o.PaidAt
	cur.CancelledAt = o.CancelledAt
	cur.Restocked = o.Restocked
	cur.UpdatedAt = time.Now()
	r.s.st.orders[o.ID] = cur
	return nil
}

func (r orderRepo) CountOpenByTable(_ context.Context, tableID, excludeOrderID string) (int, error) {
	defer r.guard()()
	n := 0
	for _, o := range r.s.st.orders {
		if o.ID != excludeOrderID && models.Deref(o.TableID) == tableID && o.Status.Open() {
			n++
		}
	}
	return n, nil
}

func (r orderRepo) ListOpenByTable(_ context.Context, tableID string) ([]models.Order, error) {
	defer r.guard()()
	var out []models.Order
	for _, o := range r.s.st.orders {
		if models.Deref(o.TableID) == tableID && o.Status.Open() {
			o.Items = nil
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r orderRepo) HasOpenWithCoupon(_ context.Context, memberCouponID string) (bool, error) {
	defer r.guard()()
	for _, o := range r.s.st.orders {
		if models.Deref(o.MemberCouponID) == memberCouponID && o.Status != models.OrderCancelled {
			return true, nil
		}
	}
	return false, nil
}

type paymentRepo struct{ base }

func (r paymentRepo) Create(_ context.Context, p *models.Payment) error {
	defer r.guard()()
	for _, ex := range r.s.st.payments {
		if ex.ID == p.ID || ex.PaymentOrderNo == p.PaymentOrderNo {
			return duplicate("payments.payment_order_no", p.PaymentOrderNo)
		}
	}
	p.UpdatedAt = p.CreatedAt
	r.s.st.payments[p.ID] = *p
	return nil
}

func (r paymentRepo) Get(_ context.Context, id string) (*models.Payment, error) {
	defer r.guard()()
	p, ok := r.s.st.payments[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r paymentRepo) GetByOrderNo(_ context.Context, no string) (*models.Payment, error) {
	defer r.guard()()
	for _, p := range r.s.st.payments {
		if p.PaymentOrderNo == no {
			return &p, nil
		}
	}
	return nil, nil
}

func (r paymentRepo) GetByOrderNoForUpdate(ctx context.Context, no string) (*models.Payment, error) {
	return r.GetByOrderNo(ctx, no)
}

func (r paymentRepo) Update(_ context.Context, p *models.Payment) error {
	defer r.guard()()
	cur, ok := r.s.st.payments[p.ID]
	if !ok {
		return nil
	}
	cur.Status = p.Status
	cur.PaidAmount = p.PaidAmount
	cur.ProviderRef = p.ProviderRef
	cur.FailureReason = p.FailureReason
	cur.PaidAt = p.PaidAt
	cur.UpdatedAt = time.Now()
	r.s.st.payments[p.ID] = cur
	return nil
}

func (r paymentRepo) ListStale(_ context.Context, before time.Time, limit int) ([]models.Payment, error) {
	defer r.guard()()
	var out []models.Payment
	for _, p := range r.s.st.payments {
		if (p.Status == models.PaymentPending || p.Status == models.PaymentProcessing) && p.CreatedAt.Before(before) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type couponRepo struct{ base }

func (r couponRepo) Create(_ context.Context, c *models.Coupon) error {
	defer r.guard()()
	if _, ok := r.s.st.coupons[c.ID]; ok {
		return duplicate("coupons", c.ID)
	}
	now := time.Now()
	c.CreatedAt, c.UpdatedAt = now, now
	r.s.st.coupons[c.ID] = *c
	return nil
}

func (r couponRepo) Get(_ context.Context, id string) (*models.Coupon, error) {
	defer r.guard()()
	c, ok := r.s.st.coupons[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (r couponRepo) IncrementClaimed(_ context.Context, id string) (bool, error) {
	defer r.guard()()
	c, ok := r.s.st.coupons[id]
	if !ok || c.ClaimedQuantity >= c.TotalQuantity {
		return false, nil
	}
	c.ClaimedQuantity++
	r.s.st.coupons[id] = c
	return true, nil
}

func (r couponRepo) CountClaims(_ context.Context, couponID, memberID string) (int, error) {
	defer r.guard()()
	n := 0
	for _, mc := range r.s.st.claims {
		if mc.CouponID == couponID && mc.MemberID == memberID {
			n++
		}
	}
	return n, nil
}

func (r couponRepo) CreateClaim(_ context.Context, mc *models.MemberCoupon) error {
	defer r.guard()()
	if _, ok := r.s.st.claims[mc.ID]; ok {
		return duplicate("member_coupons", mc.ID)
	}
	r.s.st.claims[mc.ID] = *mc
	return nil
}

func (r couponRepo) GetClaim(_ context.Context, id string) (*models.MemberCoupon, error) {
	defer r.guard()()
	mc, ok := r.s.st.claims[id]
	if !ok {
		return nil, nil
	}
	return &mc, nil
}

func (r couponRepo) GetClaimForUpdate(ctx context.Context, id string) (*models.MemberCoupon, error) {
	return r.GetClaim(ctx, id)
}

func (r couponRepo) UpdateClaim(_ context.Context, mc *models.MemberCoupon) error {
	defer r.guard()()
	cur, ok := r.s.st.claims[mc.ID]
	if !ok {
		return nil
	}
	cur.Status = mc.Status
	cur.OrderID = mc.OrderID
	cur.UsedAt = mc.UsedAt
	r.s.st.claims[mc.ID] = cur
	return nil
}

func (r couponRepo) ListClaimsByMember(_ context.Context, memberID string) ([]models.MemberCoupon, error) {
	defer r.guard()()
	var out []models.MemberCoupon
	for _, mc := range r.s.st.claims {
		if mc.MemberID == memberID {
			out = append(out, mc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClaimedAt.After(out[j].ClaimedAt) })
	return out, nil
}

func (r couponRepo) ExpireClaims(_ context.Context, now time.Time) (int64, error) {
	defer r.guard()()
	var n int64
	for id, mc := range r.s.st.claims {
		if mc.Status == models.MemberCouponAvailable && !mc.EndTime.After(now) {
			mc.Status = models.MemberCouponExpired
			r.s.st.claims[id] = mc
			n++
		}
	}
	return n, nil
}

type memberRepo struct{ base }

func (r memberRepo) Create(_ context.Context, m *models.Member) error {
	defer r.guard()()
	if _, ok := r.s.st.members[m.ID]; ok {
		return duplicate("members", m.ID)
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	m.UpdatedAt = m.CreatedAt
	r.s.st.members[m.ID] = *m
	return nil
}

func (r memberRepo) Get(_ context.Context, id string) (*models.Member, error) {
	defer r.guard()()
	m, ok := r.s.st.members[id]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (r memberRepo) GetForUpdate(ctx context.Context, id string) (*models.Member, error) {
	return r.Get(ctx, id)
}

func (r memberRepo) SetPoints(_ context.Context, id string, points int64) error {
	defer r.guard()()
	m, ok := r.s.st.members[id]
	if !ok {
		return nil
	}
	m.Points = points
	m.UpdatedAt = time.Now()
	r.s.st.members[id] = m
	return nil
}

func (r memberRepo) Top(_ context.Context, limit int) ([]models.Member, error) {
	defer r.guard()()
	out := make([]models.Member, 0, len(r.s.st.members))
	for _, m := range r.s.st.members {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Points != out[j].Points {
			return out[i].Points > out[j].Points
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r memberRepo) CountAbove(_ context.Context, points int64) (int64, error) {
	defer r.guard()()
	var n int64
	for _, m := range r.s.st.members {
		if m.Points > points {
			n++
		}
	}
	return n, nil
}

type loyaltyRepo struct{ base }

func (r loyaltyRepo) Append(_ context.Context, e *models.LoyaltyTransaction) error {
	defer r.guard()()
	for _, ex := range r.s.st.loyalty {
		if ex.Type != e.Type {
			continue
		}
		if e.OrderID != nil && models.Deref(ex.OrderID) == *e.OrderID {
			return duplicate("loyalty_transactions.order_id", *e.OrderID)
		}
		if e.PaymentID != nil && models.Deref(ex.PaymentID) == *e.PaymentID {
			return duplicate("loyalty_transactions.payment_id", *e.PaymentID)
		}
	}
	r.s.st.loyalty = append(r.s.st.loyalty, *e)
	return nil
}

func (r loyaltyRepo) Sum(_ context.Context, memberID string) (int64, error) {
	defer r.guard()()
	var n int64
	for _, e := range r.s.st.loyalty {
		if e.MemberID == memberID {
			n += e.Points
		}
	}
	return n, nil
}

func (r loyaltyRepo) ExistsForOrder(_ context.Context, orderID string, typ models.LoyaltyType) (bool, error) {
	defer r.guard()()
	for _, e := range r.s.st.loyalty {
		if e.Type == typ && models.Deref(e.OrderID) == orderID {
			return true, nil
		}
	}
	return false, nil
}

func (r loyaltyRepo) ExistsForPayment(_ context.Context, paymentID string, typ models.LoyaltyType) (bool, error) {
	defer r.guard()()
	for _, e := range r.s.st.loyalty {
		if e.Type == typ && models.Deref(e.PaymentID) == paymentID {
			return true, nil
		}
	}
	return false, nil
}

func (r loyaltyRepo) ListByMember(_ context.Context, memberID string, limit int) ([]models.LoyaltyTransaction, error) {
	defer r.guard()()
	var out []models.LoyaltyTransaction
	for i := len(r.s.st.loyalty) - 1; i >= 0 && len(out) < limit; i-- {
		if e := r.s.st.loyalty[i]; e.MemberID == memberID {
			out = append(out, e)
		}
	}
	return out, nil
}
