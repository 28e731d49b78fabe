// Package loyalty keeps the append-only points ledger. Member.Points is a
// cached sum written in the same transaction as every entry.
package loyalty

import (
	"context"
	"time"

	"github.com/ariefcatur/go-realtime-venue/internal/apperr"
	"github.com/ariefcatur/go-realtime-venue/internal/events"
	"github.com/ariefcatur/go-realtime-venue/internal/fanout"
	"github.com/ariefcatur/go-realtime-venue/internal/models"
	"github.com/ariefcatur/go-realtime-venue/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	DefaultLeaderboardSize = 10
	MaxLeaderboardSize     = 100
)

var minorPerPoint = decimal.NewFromInt(100)

// PointsFor converts a paid amount in minor units to points: one point per
// whole currency unit.
func PointsFor(totalAmount int64) int64 {
	if totalAmount <= 0 {
		return 0
	}
	return decimal.NewFromInt(totalAmount).Div(minorPerPoint).Floor().IntPart()
}

type Grant struct {
	MemberID  string
	Points    int64
	OrderID   string
	PaymentID string
	Note      string
}

type Ledger struct {
	Store  repository.Store
	Fanout *fanout.Dispatcher
	Log    *zap.Logger
	Now    func() time.Time
}

func NewLedger(store repository.Store, fan *fanout.Dispatcher, log *zap.Logger) *Ledger {
	return &Ledger{Store: store, Fanout: fan, Log: log, Now: time.Now}
}

// EarnTx appends an EARN entry. A grant tied to an order or payment that was
// already credited is a no-op and returns nil.
func (l *Ledger) EarnTx(ctx context.Context, r *repository.Repository, b *fanout.Batch, g Grant) (*models.LoyaltyTransaction, error) {
	if g.Points <= 0 {
		return nil, nil
	}
	if g.OrderID != "" {
		done, err := r.Loyalty.ExistsForOrder(ctx, g.OrderID, models.LoyaltyEarn)
		if err != nil || done {
			return nil, err
		}
	}
	if g.PaymentID != "" {
		done, err := r.Loyalty.ExistsForPayment(ctx, g.PaymentID, models.LoyaltyEarn)
		if err != nil || done {
			return nil, err
		}
	}
	m, err := l.lockMember(ctx, r, g.MemberID)
	if err != nil {
		return nil, err
	}
	return l.post(ctx, r, b, m, models.LoyaltyEarn, g.Points, g)
}

// RedeemTx spends points; the balance never goes negative.
func (l *Ledger) RedeemTx(ctx context.Context, r *repository.Repository, b *fanout.Batch, g Grant) (*models.LoyaltyTransaction, error) {
	if g.Points <= 0 {
		return nil, apperr.New(apperr.InvalidInput, "points must be positive")
	}
	m, err := l.lockMember(ctx, r, g.MemberID)
	if err != nil {
		return nil, err
	}
	if m.Points < g.Points {
		return nil, apperr.WithDetails(apperr.InsufficientPoints, "not enough points",
			map[string]any{"balance": m.Points, "required": g.Points})
	}
	return l.post(ctx, r, b, m, models.LoyaltyRedeem, -g.Points, g)
}

// RevokeTx takes back points earned on a refunded order, at most what the
// member still holds. It runs once per order.
func (l *Ledger) RevokeTx(ctx context.Context, r *repository.Repository, b *fanout.Batch, memberID, orderID string, points int64) (int64, error) {
	if points <= 0 || memberID == "" || orderID == "" {
		return 0, nil
	}
	done, err := r.Loyalty.ExistsForOrder(ctx, orderID, models.LoyaltyRedeem)
	if err != nil || done {
		return 0, err
	}
	m, err := l.lockMember(ctx, r, memberID)
	if err != nil {
		return 0, err
	}
	if points > m.Points {
		l.Log.Warn("points revoke bounded by balance", zap.String("member_id", memberID),
			zap.String("order_id", orderID), zap.Int64("earned", points), zap.Int64("balance", m.Points))
		points = m.Points
	}
	if points == 0 {
		return 0, nil
	}
	_, err = l.post(ctx, r, b, m, models.LoyaltyRedeem, -points, Grant{MemberID: memberID, OrderID: orderID, Note: "refund"})
	return points, err
}

func (l *Ledger) post(ctx context.Context, r *repository.Repository, b *fanout.Batch, m *models.Member,
	typ models.LoyaltyType, delta int64, g Grant) (*models.LoyaltyTransaction, error) {
	e := &models.LoyaltyTransaction{
		ID:        uuid.NewString(),
		MemberID:  m.ID,
		Type:      typ,
		Points:    delta,
		OrderID:   models.StringPtr(g.OrderID),
		PaymentID: models.StringPtr(g.PaymentID),
		Note:      g.Note,
		CreatedAt: l.Now(),
	}
	if err := r.Loyalty.Append(ctx, e); err != nil {
		return nil, err
	}
	balance := m.Points + delta
	if err := r.Members.SetPoints(ctx, m.ID, balance); err != nil {
		return nil, err
	}
	m.Points = balance
	b.Event(events.EventLoyaltyPosted, m.ID, events.LoyaltyPostedPayload{
		MemberID: m.ID, Type: string(typ), Points: delta, Balance: balance, OrderID: g.OrderID,
	})
	return e, nil
}

func (l *Ledger) lockMember(ctx context.Context, r *repository.Repository, id string) (*models.Member, error) {
	if id == "" {
		return nil, apperr.New(apperr.InvalidInput, "member_id is required")
	}
	m, err := r.Members.GetForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, apperr.New(apperr.NotFound, "member %s not found", id)
	}
	return m, nil
}

func (l *Ledger) Redeem(ctx context.Context, memberID string, points int64, note string) (*models.LoyaltyTransaction, error) {
	var out *models.LoyaltyTransaction
	b := fanout.NewBatch()
	err := l.Store.WithTx(ctx, func(r *repository.Repository) error {
		e, err := l.RedeemTx(ctx, r, b, Grant{MemberID: memberID, Points: points, Note: note})
		out = e
		return err
	})
	if err != nil {
		return nil, err
	}
	l.Fanout.Flush(ctx, b)
	l.Log.Info("points redeemed", zap.String("member_id", memberID), zap.Int64("points", points))
	return out, nil
}

// Balance sums the ledger, which is the source of truth.
func (l *Ledger) Balance(ctx context.Context, memberID string) (int64, error) {
	m, err := l.Store.Repos().Members.Get(ctx, memberID)
	if err != nil {
		return 0, err
	}
	if m == nil {
		return 0, apperr.New(apperr.NotFound, "member %s not found", memberID)
	}
	return l.Store.Repos().Loyalty.Sum(ctx, memberID)
}

func (l *Ledger) History(ctx context.Context, memberID string, limit int) ([]models.LoyaltyTransaction, error) {
	if limit <= 0 || limit > MaxLeaderboardSize {
		limit = MaxLeaderboardSize
	}
	return l.Store.Repos().Loyalty.ListByMember(ctx, memberID, limit)
}

type Entry struct {
	Rank     int64  `json:"rank"`
	MemberID string `json:"member_id"`
	Name     string `json:"name"`
	Level    int    `json:"level"`
	Points   int64  `json:"points"`
}

// GetLeaderboard ranks by points. Equal points share a rank, matching GetUserRank.
func (l *Ledger) GetLeaderboard(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultLeaderboardSize
	}
	if limit > MaxLeaderboardSize {
		limit = MaxLeaderboardSize
	}
	top, err := l.Store.Repos().Members.Top(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, len(top))
	for i, m := range top {
		rank := int64(i + 1)
		if i > 0 && m.Points == top[i-1].Points {
			rank = out[i-1].Rank
		}
		out[i] = Entry{Rank: rank, MemberID: m.ID, Name: m.Name, Level: m.Level, Points: m.Points}
	}
	return out, nil
}

// GetUserRank is 1 + the number of members with strictly more points.
func (l *Ledger) GetUserRank(ctx context.Context, memberID string) (*Entry, error) {
	m, err := l.Store.Repos().Members.Get(ctx, memberID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, apperr.New(apperr.NotFound, "member %s not found", memberID)
	}
	above, err := l.Store.Repos().Members.CountAbove(ctx, m.Points)
	if err != nil {
		return nil, err
	}
	return &Entry{Rank: above + 1, MemberID: m.ID, Name: m.Name, Level: m.Level, Points: m.Points}, nil
}

// Reconcile rewrites the cached balance from the ledger and reports whether it had drifted.
func (l *Ledger) Reconcile(ctx context.Context, memberID string) (int64, bool, error) {
	var (
		sum     int64
		drifted bool
	)
	err := l.Store.WithTx(ctx, func(r *repository.Repository) error {
		m, err := l.lockMember(ctx, r, memberID)
		if err != nil {
			return err
		}
		if sum, err = r.Loyalty.Sum(ctx, memberID); err != nil {
			return err
		}
		if sum == m.Points {
			return nil
		}
		drifted = true
		l.Log.Warn("points cache drifted", zap.String("member_id", memberID),
			zap.Int64("cached", m.Points), zap.Int64("ledger", sum))
		return r.Members.SetPoints(ctx, memberID, sum)
	})
	if err != nil {
		return 0, false, err
	}
	return sum, drifted, nil
}
