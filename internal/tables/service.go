package tables

import (
	"context"
	"strings"
	"time"

	"github.com/ariefcatur/go-realtime-venue/internal/apperr"
	"github.com/ariefcatur/go-realtime-venue/internal/fanout"
	"github.com/ariefcatur/go-realtime-venue/internal/models"
	"github.com/ariefcatur/go-realtime-venue/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Service struct {
	Store  repository.Store
	Fanout *fanout.Dispatcher
	Log    *zap.Logger
	// Slot is how long a reservation holds its table; overlapping slots on one table are refused.
	Slot time.Duration
	Now  func() time.Time
}

func NewService(store repository.Store, fan *fanout.Dispatcher, log *zap.Logger, slot time.Duration) *Service {
	return &Service{Store: store, Fanout: fan, Log: log, Slot: slot, Now: time.Now}
}

type ReserveInput struct {
	TableID       string    `json:"table_id"`
	CustomerName  string    `json:"customer_name"`
	CustomerPhone string    `json:"customer_phone"`
	MemberID      string    `json:"member_id,omitempty"`
	PartySize     int       `json:"party_size"`
	ReservedAt    time.Time `json:"reserved_at"`
	DepositAmount int64     `json:"deposit_amount"`
}

func (in ReserveInput) validate() error {
	switch {
	case in.TableID == "":
		return apperr.New(apperr.InvalidInput, "table_id is required")
	case strings.TrimSpace(in.CustomerName) == "":
		return apperr.New(apperr.InvalidInput, "customer_name is required")
	case in.PartySize <= 0:
		return apperr.New(apperr.InvalidInput, "party_size must be positive")
	case in.ReservedAt.IsZero():
		return apperr.New(apperr.InvalidInput, "reserved_at is required")
	case in.DepositAmount < 0:
		return apperr.New(apperr.InvalidInput, "deposit_amount must not be negative")
	}
	return nil
}

// ReserveTable creates a reservation and marks the table RESERVED. A reservation
// without deposit is confirmed immediately.
func (s *Service) ReserveTable(ctx context.Context, in ReserveInput) (*models.Reservation, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	now := s.Now()
	if in.ReservedAt.Before(now.Add(-s.Slot)) {
		return nil, apperr.New(apperr.InvalidInput, "reserved_at %s is in the past", in.ReservedAt.Format(time.RFC3339))
	}

	var out *models.Reservation
	b := fanout.NewBatch()
	err := s.Store.WithTx(ctx, func(r *repository.Repository) error {
		t, err := r.Tables.GetForUpdate(ctx, in.TableID)
		if err != nil {
			return err
		}
		if t == nil {
			return apperr.New(apperr.NotFound, "table %s not found", in.TableID)
		}
		if !t.Active || (t.Status != models.TableAvailable && t.Status != models.TableReserved) {
			return apperr.New(apperr.TableUnavailable, "table %s is %s", t.ID, t.Status)
		}
		if in.PartySize > t.Capacity {
			return apperr.New(apperr.InvalidInput, "party of %d exceeds table capacity %d", in.PartySize, t.Capacity)
		}
		if in.MemberID != "" {
			m, err := r.Members.Get(ctx, in.MemberID)
			if err != nil {
				return err
			}
			if m == nil {
				return apperr.New(apperr.NotFound, "member %s not found", in.MemberID)
			}
		}

		active, err := r.Reservations.ListActiveByTable(ctx, t.ID)
		if err != nil {
			return err
		}
		for _, a := range active {
			if s.overlaps(a.ReservedAt, in.ReservedAt) {
				return apperr.WithDetails(apperr.TableUnavailable, "table already reserved for an overlapping slot",
					map[string]any{"reservation_id": a.ID, "reserved_at": a.ReservedAt})
			}
		}

		next, err := NextTable(t.Status, TableReserve)
		if err != nil {
			return err
		}

		res := &models.Reservation{
			ID:            uuid.NewString(),
			CustomerName:  strings.TrimSpace(in.CustomerName),
			CustomerPhone: in.CustomerPhone,
			MemberID:      models.StringPtr(in.MemberID),
			PartySize:     in.PartySize,
			TableID:       t.ID,
			ReservedAt:    in.ReservedAt,
			DepositAmount: in.DepositAmount,
			Status:        models.ReservationPending,
			CreatedAt:     now,
		}
		if in.DepositAmount == 0 {
			if res.Status, _, err = NextReservation(res.Status, ReservationConfirm); err != nil {
				return err
			}
		}
		if err := r.Reservations.Create(ctx, res); err != nil {
			return err
		}
		if next != t.Status {
			if err := r.Tables.UpdateStatus(ctx, t.ID, next); err != nil {
				return err
			}
			b.Table(t.ID, t.Status, next)
		}
		b.Reservation(res.ID, "", res.Status, t.ID)
		out = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.Fanout.Flush(ctx, b)
	s.Log.Info("table reserved", zap.String("reservation_id", out.ID), zap.String("table_id", out.TableID),
		zap.String("status", string(out.Status)))
	return out, nil
}

func (s *Service) overlaps(a, b time.Time) bool {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return d < s.Slot
}

// UpdateReservationStatus drives a reservation to the requested status through
// the state machine. A reservation with an unpaid deposit is only confirmed by
// its deposit settling.
func (s *Service) UpdateReservationStatus(ctx context.Context, id string, status models.ReservationStatus) (*models.Reservation, error) {
	switch status {
	case models.ReservationCancelled:
		return s.CancelReservation(ctx, id, "")
	case models.ReservationCheckedIn:
		return s.inTx(ctx, func(r *repository.Repository, b *fanout.Batch) (*models.Reservation, error) {
			return s.CheckInTx(ctx, r, b, id)
		})
	case models.ReservationConfirmed:
		return s.inTx(ctx, func(r *repository.Repository, b *fanout.Batch) (*models.Reservation, error) {
			return s.transition(ctx, r, b, id, ReservationConfirm)
		})
	default:
		return nil, apperr.New(apperr.InvalidTransition, "reservation cannot be moved to %s", status)
	}
}

// CancelReservation releases the table. Cancelling an already cancelled
// reservation is a no-op; a checked-in reservation cannot be cancelled.
func (s *Service) CancelReservation(ctx context.Context, id, reason string) (*models.Reservation, error) {
	return s.inTx(ctx, func(r *repository.Repository, b *fanout.Batch) (*models.Reservation, error) {
		res, err := r.Reservations.GetForUpdate(ctx, id)
		if err != nil {
			return nil, err
		}
		if res == nil {
			return nil, apperr.New(apperr.NotFound, "reservation %s not found", id)
		}
		if res.Status == models.ReservationCancelled {
			return res, nil
		}
		if reason != "" {
			res.CancelReason = &reason
		}
		return s.apply(ctx, r, b, res, ReservationCancel)
	})
}

// CheckInTx checks a reservation in and occupies its table inside the caller's transaction.
func (s *Service) CheckInTx(ctx context.Context, r *repository.Repository, b *fanout.Batch, id string) (*models.Reservation, error) {
	return s.transition(ctx, r, b, id, ReservationCheckIn)
}

// ConfirmDepositTx records a settled deposit payment against the reservation.
func (s *Service) ConfirmDepositTx(ctx context.Context, r *repository.Repository, b *fanout.Batch, id, paymentID string) (*models.Reservation, error) {
	res, err := r.Reservations.GetForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, apperr.New(apperr.NotFound, "reservation %s not found", id)
	}
	res.DepositPaid = true
	res.PaymentID = &paymentID
	return s.apply(ctx, r, b, res, ReservationDepositSettled)
}

func (s *Service) transition(ctx context.Context, r *repository.Repository, b *fanout.Batch, id string, ev ReservationEvent) (*models.Reservation, error) {
	res, err := r.Reservations.GetForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, apperr.New(apperr.NotFound, "reservation %s not found", id)
	}
	return s.apply(ctx, r, b, res, ev)
}

func (s *Service) apply(ctx context.Context, r *repository.Repository, b *fanout.Batch, res *models.Reservation, ev ReservationEvent) (*models.Reservation, error) {
	prev := res.Status
	next, effects, err := NextReservation(prev, ev)
	if err != nil {
		return nil, err
	}
	if ev == ReservationConfirm && prev != next && res.DepositAmount > 0 && !res.DepositPaid {
		return nil, apperr.WithDetails(apperr.InvalidTransition, "reservation awaits its deposit",
			map[string]any{"deposit_amount": res.DepositAmount})
	}
	res.Status = next
	if err := r.Reservations.Update(ctx, res); err != nil {
		return nil, err
	}
	b.Reservation(res.ID, prev, next, res.TableID)

	for _, eff := range effects {
		switch eff {
		case EffectOccupyTable:
			if err := s.occupyForReservation(ctx, r, b, res); err != nil {
				return nil, err
			}
		case EffectReleaseTable:
			if err := s.SettleTableTx(ctx, r, b, res.TableID, ""); err != nil {
				return nil, err
			}
		}
	}
	return res, nil
}

// occupyForReservation seats a reservation's party. The table may already be
// IN_USE only by that reservation's own orders.
func (s *Service) occupyForReservation(ctx context.Context, r *repository.Repository, b *fanout.Batch, res *models.Reservation) error {
	t, err := r.Tables.GetForUpdate(ctx, res.TableID)
	if err != nil {
		return err
	}
	if t == nil {
		return apperr.New(apperr.NotFound, "table %s not found", res.TableID)
	}
	if !t.Active {
		return apperr.New(apperr.TableUnavailable, "table %s is inactive", t.ID)
	}
	if t.Status == models.TableInUse {
		open, err := r.Orders.ListOpenByTable(ctx, t.ID)
		if err != nil {
			return err
		}
		for _, o := range open {
			if models.Deref(o.ReservationID) != res.ID {
				return apperr.WithDetails(apperr.TableUnavailable, "table is occupied by another party",
					map[string]any{"table_id": t.ID, "order_id": o.ID})
			}
		}
	}
	next, err := NextTable(t.Status, TableOccupy)
	if err != nil {
		return apperr.New(apperr.TableUnavailable, "table %s is %s", t.ID, t.Status)
	}
	return s.setStatus(ctx, r, b, t, next)
}

// OccupyTableTx seats a walk-in party at a bare table. A table held by a
// reservation must be taken through the reservation's check-in instead, and an
// IN_USE table only takes add-on orders from the walk-in party already there.
func (s *Service) OccupyTableTx(ctx context.Context, r *repository.Repository, b *fanout.Batch, tableID string) (*models.Table, error) {
	t, err := r.Tables.GetForUpdate(ctx, tableID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, apperr.New(apperr.NotFound, "table %s not found", tableID)
	}
	if !t.Active || t.Status == models.TableReserved || t.Status == models.TableMaintenance {
		return nil, apperr.New(apperr.TableUnavailable, "table %s is %s", t.ID, t.Status)
	}
	if t.Status == models.TableInUse {
		open, err := r.Orders.ListOpenByTable(ctx, t.ID)
		if err != nil {
			return nil, err
		}
		if len(open) == 0 {
			return nil, apperr.New(apperr.TableUnavailable, "table %s is seated by a reservation", t.ID)
		}
		for _, o := range open {
			if o.ReservationID != nil {
				return nil, apperr.WithDetails(apperr.TableUnavailable, "table is seated by a reservation",
					map[string]any{"table_id": t.ID, "reservation_id": *o.ReservationID})
			}
		}
	}
	next, err := NextTable(t.Status, TableOccupy)
	if err != nil {
		return nil, err
	}
	if err := s.setStatus(ctx, r, b, t, next); err != nil {
		return nil, err
	}
	t.Status = next
	return t, nil
}

// SettleTableTx recomputes a table's status from what still holds it: open
// orders keep it IN_USE, active reservations keep it RESERVED, otherwise it is
// AVAILABLE. Maintenance is left alone.
func (s *Service) SettleTableTx(ctx context.Context, r *repository.Repository, b *fanout.Batch, tableID, excludeOrderID string) error {
	t, err := r.Tables.GetForUpdate(ctx, tableID)
	if err != nil {
		return err
	}
	if t == nil || t.Status == models.TableMaintenance || t.Status == models.TableAvailable {
		return nil
	}
	open, err := r.Orders.CountOpenByTable(ctx, t.ID, excludeOrderID)
	if err != nil {
		return err
	}
	if open > 0 && t.Status == models.TableInUse {
		return nil
	}
	next, err := NextTable(t.Status, TableRelease)
	if err != nil {
		return err
	}
	active, err := r.Reservations.ListActiveByTable(ctx, t.ID)
	if err != nil {
		return err
	}
	if len(active) > 0 {
		if next, err = NextTable(next, TableReserve); err != nil {
			return err
		}
	}
	return s.setStatus(ctx, r, b, t, next)
}

// SetTableStatus is the manual edit path. Only MAINTENANCE and AVAILABLE can be
// requested; a table held by a reservation or an open order cannot be forced.
func (s *Service) SetTableStatus(ctx context.Context, id string, status models.TableStatus) (*models.Table, error) {
	var out *models.Table
	b := fanout.NewBatch()
	err := s.Store.WithTx(ctx, func(r *repository.Repository) error {
		t, err := r.Tables.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if t == nil {
			return apperr.New(apperr.NotFound, "table %s not found", id)
		}
		var next models.TableStatus
		switch status {
		case models.TableMaintenance:
			if next, err = NextTable(t.Status, TableMaintain); err != nil {
				return err
			}
		case models.TableAvailable:
			if t.Status == models.TableMaintenance {
				if next, err = NextTable(t.Status, TableRestore); err != nil {
					return err
				}
				break
			}
			open, err := r.Orders.CountOpenByTable(ctx, t.ID, "")
			if err != nil {
				return err
			}
			active, err := r.Reservations.ListActiveByTable(ctx, t.ID)
			if err != nil {
				return err
			}
			if open > 0 || len(active) > 0 {
				return apperr.WithDetails(apperr.InvalidTransition, "table is still held",
					map[string]any{"open_orders": open, "active_reservations": len(active)})
			}
			if next, err = NextTable(t.Status, TableRelease); err != nil {
				return err
			}
		default:
			return apperr.New(apperr.InvalidTransition, "table status %s is set by reservations and orders", status)
		}
		if err := s.setStatus(ctx, r, b, t, next); err != nil {
			return err
		}
		t.Status = next
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.Fanout.Flush(ctx, b)
	return out, nil
}

func (s *Service) setStatus(ctx context.Context, r *repository.Repository, b *fanout.Batch, t *models.Table, next models.TableStatus) error {
	if next == t.Status {
		return nil
	}
	if err := r.Tables.UpdateStatus(ctx, t.ID, next); err != nil {
		return err
	}
	b.Table(t.ID, t.Status, next)
	return nil
}

// GetTableStatus is the display read: cache first, database on a miss.
func (s *Service) GetTableStatus(ctx context.Context, id string) (models.TableStatus, error) {
	load := func() (string, error) {
		t, err := s.Store.Repos().Tables.Get(ctx, id)
		if err != nil {
			return "", err
		}
		if t == nil {
			return "", apperr.New(apperr.NotFound, "table %s not found", id)
		}
		return string(t.Status), nil
	}
	if s.Fanout == nil {
		st, err := load()
		return models.TableStatus(st), err
	}
	st, err := s.Fanout.TableStatus(ctx, id, load)
	return models.TableStatus(st), err
}

func (s *Service) GetReservation(ctx context.Context, id string) (*models.Reservation, error) {
	res, err := s.Store.Repos().Reservations.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, apperr.New(apperr.NotFound, "reservation %s not found", id)
	}
	return res, nil
}

func (s *Service) inTx(ctx context.Context, fn func(r *repository.Repository, b *fanout.Batch) (*models.Reservation, error)) (*models.Reservation, error) {
	var out *models.Reservation
	b := fanout.NewBatch()
	err := s.Store.WithTx(ctx, func(r *repository.Repository) error {
		res, err := fn(r, b)
		out = res
		return err
	})
	if err != nil {
		return nil, err
	}
	s.Fanout.Flush(ctx, b)
	return out, nil
}
