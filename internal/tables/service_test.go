package tables

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ariefcatur/go-realtime-venue/internal/apperr"
	"github.com/ariefcatur/go-realtime-venue/internal/events"
	"github.com/ariefcatur/go-realtime-venue/internal/fanout"
	"github.com/ariefcatur/go-realtime-venue/internal/models"
	"github.com/ariefcatur/go-realtime-venue/internal/repository"
	"github.com/ariefcatur/go-realtime-venue/internal/testkit"
	"github.com/google/uuid"
)

func newService(env *testkit.Env) *Service {
	s := NewService(env.Store, env.Fanout, env.Log, 2*time.Hour)
	s.Now = env.Clock.Now
	return s
}

func reserveInput(tableID string, at time.Time, deposit int64) ReserveInput {
	return ReserveInput{TableID: tableID, CustomerName: "Ann", PartySize: 2, ReservedAt: at, DepositAmount: deposit}
}

func tableStatus(t *testing.T, env *testkit.Env, id string) models.TableStatus {
	t.Helper()
	tb, err := env.Repos().Tables.Get(context.Background(), id)
	if err != nil || tb == nil {
		t.Fatalf("get table: %v", err)
	}
	return tb.Status
}

func TestReserveTable(t *testing.T) {
	ctx := context.Background()
	env := testkit.NewEnv()
	s := newService(env)
	tb := env.Table(t, models.TableAvailable)

	res, err := s.ReserveTable(ctx, reserveInput(tb.ID, env.Clock.Now().Add(3*time.Hour), 5000))
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if res.Status != models.ReservationPending {
		t.Fatalf("status = %s", res.Status)
	}
	if got := tableStatus(t, env, tb.ID); got != models.TableReserved {
		t.Fatalf("table = %s", got)
	}
	if got, _ := env.Cache.TableStatus(ctx, tb.ID); got != string(models.TableReserved) {
		t.Fatalf("cache = %q", got)
	}
	if env.Bus.Count(events.EventReservationStatusChanged) != 1 {
		t.Fatalf("expected reservation event")
	}
}

func TestReserveWithoutDepositIsConfirmed(t *testing.T) {
	env := testkit.NewEnv()
	s := newService(env)
	tb := env.Table(t, models.TableAvailable)

	res, err := s.ReserveTable(context.Background(), reserveInput(tb.ID, env.Clock.Now().Add(time.Hour), 0))
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if res.Status != models.ReservationConfirmed {
		t.Fatalf("status = %s", res.Status)
	}
}

func TestReserveTableRejections(t *testing.T) {
	ctx := context.Background()
	env := testkit.NewEnv()
	s := newService(env)
	at := env.Clock.Now().Add(3 * time.Hour)

	inUse := env.Table(t, models.TableInUse)
	maint := env.Table(t, models.TableMaintenance)
	free := env.Table(t, models.TableAvailable)

	cases := []struct {
		name string
		in   ReserveInput
		want apperr.Kind
	}{
		{"in use", reserveInput(inUse.ID, at, 0), apperr.TableUnavailable},
		{"maintenance", reserveInput(maint.ID, at, 0), apperr.TableUnavailable},
		{"missing table", reserveInput("nope", at, 0), apperr.NotFound},
		{"too many guests", ReserveInput{TableID: free.ID, CustomerName: "Bo", PartySize: 9, ReservedAt: at}, apperr.InvalidInput},
		{"no name", ReserveInput{TableID: free.ID, PartySize: 2, ReservedAt: at}, apperr.InvalidInput},
		{"past", reserveInput(free.ID, env.Clock.Now().Add(-5*time.Hour), 0), apperr.InvalidInput},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := s.ReserveTable(ctx, tc.in)
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %s", err, tc.want)
			}
		})
	}
}

func TestReserveOverlappingSlot(t *testing.T) {
	ctx := context.Background()
	env := testkit.NewEnv()
	s := newService(env)
	tb := env.Table(t, models.TableAvailable)
	at := env.Clock.Now().Add(3 * time.Hour)

	if _, err := s.ReserveTable(ctx, reserveInput(tb.ID, at, 0)); err != nil {
		t.Fatalf("first: %v", err)
	}
	if _, err := s.ReserveTable(ctx, reserveInput(tb.ID, at.Add(time.Hour), 0)); !errors.Is(err, apperr.TableUnavailable) {
		t.Fatalf("overlap err = %v", err)
	}
	if _, err := s.ReserveTable(ctx, reserveInput(tb.ID, at.Add(2*time.Hour), 0)); err != nil {
		t.Fatalf("later slot on a reserved table: %v", err)
	}
}

func TestCancelReservationReleasesTable(t *testing.T) {
	ctx := context.Background()
	env := testkit.NewEnv()
	s := newService(env)
	tb := env.Table(t, models.TableAvailable)

	res, _ := s.ReserveTable(ctx, reserveInput(tb.ID, env.Clock.Now().Add(time.Hour), 1000))
	got, err := s.CancelReservation(ctx, res.ID, "changed plans")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got.Status != models.ReservationCancelled || models.Deref(got.CancelReason) != "changed plans" {
		t.Fatalf("reservation = %+v", got)
	}
	if st := tableStatus(t, env, tb.ID); st != models.TableAvailable {
		t.Fatalf("table = %s", st)
	}

	// repeated cancel is a no-op
	if _, err := s.CancelReservation(ctx, res.ID, ""); err != nil {
		t.Fatalf("second cancel: %v", err)
	}
}

func TestCancelKeepsTableReservedForOtherBooking(t *testing.T) {
	ctx := context.Background()
	env := testkit.NewEnv()
	s := newService(env)
	tb := env.Table(t, models.TableAvailable)

	first, _ := s.ReserveTable(ctx, reserveInput(tb.ID, env.Clock.Now().Add(time.Hour), 0))
	if _, err := s.ReserveTable(ctx, reserveInput(tb.ID, env.Clock.Now().Add(5*time.Hour), 0)); err != nil {
		t.Fatalf("second: %v", err)
	}
	if _, err := s.CancelReservation(ctx, first.ID, ""); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if st := tableStatus(t, env, tb.ID); st != models.TableReserved {
		t.Fatalf("table = %s, want RESERVED", st)
	}
}

func TestCheckedInReservationCannotBeCancelled(t *testing.T) {
	ctx := context.Background()
	env := testkit.NewEnv()
	s := newService(env)
	tb := env.Table(t, models.TableAvailable)

	res, _ := s.ReserveTable(ctx, reserveInput(tb.ID, env.Clock.Now(), 0))
	if _, err := s.UpdateReservationStatus(ctx, res.ID, models.ReservationCheckedIn); err != nil {
		t.Fatalf("check in: %v", err)
	}
	if st := tableStatus(t, env, tb.ID); st != models.TableInUse {
		t.Fatalf("table = %s", st)
	}

	_, err := s.CancelReservation(ctx, res.ID, "")
	if !errors.Is(err, apperr.InvalidTransition) {
		t.Fatalf("err = %v, want InvalidTransition", err)
	}
	got, _ := s.GetReservation(ctx, res.ID)
	if got.Status != models.ReservationCheckedIn {
		t.Fatalf("status changed to %s", got.Status)
	}
	if st := tableStatus(t, env, tb.ID); st != models.TableInUse {
		t.Fatalf("table changed to %s", st)
	}
}

func TestUpdateReservationStatusRejectsPending(t *testing.T) {
	env := testkit.NewEnv()
	s := newService(env)
	tb := env.Table(t, models.TableAvailable)
	res, _ := s.ReserveTable(context.Background(), reserveInput(tb.ID, env.Clock.Now().Add(time.Hour), 0))

	if _, err := s.UpdateReservationStatus(context.Background(), res.ID, models.ReservationPending); !errors.Is(err, apperr.InvalidTransition) {
		t.Fatalf("err = %v", err)
	}
}

func TestSetTableStatusMaintenance(t *testing.T) {
	ctx := context.Background()
	env := testkit.NewEnv()
	s := newService(env)

	free := env.Table(t, models.TableAvailable)
	if _, err := s.SetTableStatus(ctx, free.ID, models.TableMaintenance); err != nil {
		t.Fatalf("maintenance: %v", err)
	}
	if _, err := s.SetTableStatus(ctx, free.ID, models.TableAvailable); err != nil {
		t.Fatalf("restore: %v", err)
	}

	held := env.Table(t, models.TableAvailable)
	if _, err := s.ReserveTable(ctx, reserveInput(held.ID, env.Clock.Now().Add(time.Hour), 0)); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if _, err := s.SetTableStatus(ctx, held.ID, models.TableMaintenance); !errors.Is(err, apperr.InvalidTransition) {
		t.Fatalf("maintenance on reserved table: %v", err)
	}
	if _, err := s.SetTableStatus(ctx, held.ID, models.TableAvailable); !errors.Is(err, apperr.InvalidTransition) {
		t.Fatalf("force available on reserved table: %v", err)
	}
	if _, err := s.SetTableStatus(ctx, held.ID, models.TableInUse); !errors.Is(err, apperr.InvalidTransition) {
		t.Fatalf("manual IN_USE: %v", err)
	}
}

func seatOrder(t *testing.T, env *testkit.Env, tableID, reservationID string) *models.Order {
	t.Helper()
	o := &models.Order{
		ID:            uuid.NewString(),
		OrderNo:       uuid.NewString(),
		TableID:       &tableID,
		ReservationID: models.StringPtr(reservationID),
		Status:        models.OrderPending,
		CreatedAt:     env.Clock.Now(),
	}
	if err := env.Repos().Orders.Create(context.Background(), o); err != nil {
		t.Fatalf("order: %v", err)
	}
	return o
}

func TestOccupyTableTx(t *testing.T) {
	ctx := context.Background()
	env := testkit.NewEnv()
	s := newService(env)
	free := env.Table(t, models.TableAvailable)
	reserved := env.Table(t, models.TableReserved)

	occupy := func(id string) error {
		return env.Store.WithTx(ctx, func(r *repository.Repository) error {
			_, err := s.OccupyTableTx(ctx, r, fanout.NewBatch(), id)
			return err
		})
	}
	if err := occupy(free.ID); err != nil {
		t.Fatalf("walk-in: %v", err)
	}
	seatOrder(t, env, free.ID, "")
	if err := occupy(free.ID); err != nil {
		t.Fatalf("add-on order at the same table: %v", err)
	}
	if err := occupy(reserved.ID); !errors.Is(err, apperr.TableUnavailable) {
		t.Fatalf("reserved table err = %v", err)
	}
	if st := tableStatus(t, env, free.ID); st != models.TableInUse {
		t.Fatalf("table = %s", st)
	}
}

func TestSeatedReservationHoldsTable(t *testing.T) {
	ctx := context.Background()
	env := testkit.NewEnv()
	s := newService(env)
	tb := env.Table(t, models.TableAvailable)

	res, _ := s.ReserveTable(ctx, reserveInput(tb.ID, env.Clock.Now(), 0))
	checkIn := func() error {
		_, err := s.UpdateReservationStatus(ctx, res.ID, models.ReservationCheckedIn)
		return err
	}
	walkIn := func() error {
		return env.Store.WithTx(ctx, func(r *repository.Repository) error {
			_, err := s.OccupyTableTx(ctx, r, fanout.NewBatch(), tb.ID)
			return err
		})
	}

	if err := checkIn(); err != nil {
		t.Fatalf("check in: %v", err)
	}
	if err := walkIn(); !errors.Is(err, apperr.TableUnavailable) {
		t.Fatalf("walk-in on seated table err = %v", err)
	}
	first := seatOrder(t, env, tb.ID, res.ID)
	if err := checkIn(); err != nil {
		t.Fatalf("add-on check in: %v", err)
	}
	if err := walkIn(); !errors.Is(err, apperr.TableUnavailable) {
		t.Fatalf("walk-in next to reservation order err = %v", err)
	}

	// the party's only order closes and the table is released
	first.Status = models.OrderCancelled
	if err := env.Repos().Orders.Update(ctx, first); err != nil {
		t.Fatalf("close order: %v", err)
	}
	err := env.Store.WithTx(ctx, func(r *repository.Repository) error {
		return s.SettleTableTx(ctx, r, fanout.NewBatch(), tb.ID, "")
	})
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if st := tableStatus(t, env, tb.ID); st != models.TableAvailable {
		t.Fatalf("table = %s after release", st)
	}

	if err := checkIn(); err != nil {
		t.Fatalf("check in again: %v", err)
	}
	if st := tableStatus(t, env, tb.ID); st != models.TableInUse {
		t.Fatalf("table = %s after second check in", st)
	}
	if err := walkIn(); !errors.Is(err, apperr.TableUnavailable) {
		t.Fatalf("walk-in after re-seat err = %v", err)
	}
}

func TestCheckInRefusedWhileWalkInSeated(t *testing.T) {
	ctx := context.Background()
	env := testkit.NewEnv()
	s := newService(env)
	tb := env.Table(t, models.TableAvailable)

	res, _ := s.ReserveTable(ctx, reserveInput(tb.ID, env.Clock.Now(), 0))
	if _, err := s.UpdateReservationStatus(ctx, res.ID, models.ReservationCheckedIn); err != nil {
		t.Fatalf("check in: %v", err)
	}
	// the party left without ordering and the table went to a walk-in
	if err := env.Repos().Tables.UpdateStatus(ctx, tb.ID, models.TableInUse); err != nil {
		t.Fatalf("status: %v", err)
	}
	seatOrder(t, env, tb.ID, "")

	if _, err := s.UpdateReservationStatus(ctx, res.ID, models.ReservationCheckedIn); !errors.Is(err, apperr.TableUnavailable) {
		t.Fatalf("err = %v, want TableUnavailable", err)
	}
}

func TestConfirmRequiresPaidDeposit(t *testing.T) {
	ctx := context.Background()
	env := testkit.NewEnv()
	s := newService(env)
	tb := env.Table(t, models.TableAvailable)
	res, _ := s.ReserveTable(ctx, reserveInput(tb.ID, env.Clock.Now().Add(time.Hour), 5000))

	if _, err := s.UpdateReservationStatus(ctx, res.ID, models.ReservationConfirmed); !errors.Is(err, apperr.InvalidTransition) {
		t.Fatalf("err = %v, want InvalidTransition", err)
	}
	got, _ := s.GetReservation(ctx, res.ID)
	if got.Status != models.ReservationPending {
		t.Fatalf("status = %s", got.Status)
	}

	err := env.Store.WithTx(ctx, func(r *repository.Repository) error {
		_, err := s.ConfirmDepositTx(ctx, r, fanout.NewBatch(), res.ID, "pay-1")
		return err
	})
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	got, _ = s.GetReservation(ctx, res.ID)
	if got.Status != models.ReservationConfirmed || !got.DepositPaid {
		t.Fatalf("reservation = %+v", got)
	}
	if _, err := s.UpdateReservationStatus(ctx, res.ID, models.ReservationConfirmed); err != nil {
		t.Fatalf("confirm after deposit: %v", err)
	}

	free, _ := s.ReserveTable(ctx, reserveInput(env.Table(t, models.TableAvailable).ID, env.Clock.Now().Add(time.Hour), 0))
	if _, err := s.UpdateReservationStatus(ctx, free.ID, models.ReservationConfirmed); err != nil {
		t.Fatalf("confirm without deposit: %v", err)
	}
}

func TestGetTableStatusRefillsCache(t *testing.T) {
	ctx := context.Background()
	env := testkit.NewEnv()
	s := newService(env)
	tb := env.Table(t, models.TableMaintenance)

	st, err := s.GetTableStatus(ctx, tb.ID)
	if err != nil || st != models.TableMaintenance {
		t.Fatalf("status = %s, %v", st, err)
	}
	if got, _ := env.Cache.TableStatus(ctx, tb.ID); got != string(models.TableMaintenance) {
		t.Fatalf("cache = %q", got)
	}
	if _, err := s.GetTableStatus(ctx, "missing"); !errors.Is(err, apperr.NotFound) {
		t.Fatalf("missing err = %v", err)
	}
}
