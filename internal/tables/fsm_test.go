package tables

import (
	"errors"
	"testing"

	"github.com/ariefcatur/go-realtime-venue/internal/apperr"
	"github.com/ariefcatur/go-realtime-venue/internal/models"
)

func TestNextTable(t *testing.T) {
	cases := []struct {
		from    models.TableStatus
		ev      TableEvent
		want    models.TableStatus
		invalid bool
	}{
		{models.TableAvailable, TableReserve, models.TableReserved, false},
		{models.TableAvailable, TableOccupy, models.TableInUse, false},
		{models.TableReserved, TableReserve, models.TableReserved, false},
		{models.TableReserved, TableOccupy, models.TableInUse, false},
		{models.TableReserved, TableRelease, models.TableAvailable, false},
		{models.TableReserved, TableMaintain, "", true},
		{models.TableInUse, TableRelease, models.TableAvailable, false},
		{models.TableInUse, TableReserve, "", true},
		{models.TableInUse, TableMaintain, "", true},
		{models.TableMaintenance, TableOccupy, "", true},
		{models.TableMaintenance, TableRestore, models.TableAvailable, false},
	}
	for _, tc := range cases {
		t.Run(string(tc.from)+"/"+string(tc.ev), func(t *testing.T) {
			got, err := NextTable(tc.from, tc.ev)
			if tc.invalid {
				if !errors.Is(err, apperr.InvalidTransition) {
					t.Fatalf("err = %v, want InvalidTransition", err)
				}
				return
			}
			if err != nil || got != tc.want {
				t.Fatalf("got %s, %v; want %s", got, err, tc.want)
			}
		})
	}
}

func TestNextReservation(t *testing.T) {
	cases := []struct {
		from    models.ReservationStatus
		ev      ReservationEvent
		want    models.ReservationStatus
		effects []Effect
		invalid bool
	}{
		{models.ReservationPending, ReservationDepositSettled, models.ReservationConfirmed, nil, false},
		{models.ReservationPending, ReservationCheckIn, models.ReservationCheckedIn, []Effect{EffectOccupyTable}, false},
		{models.ReservationConfirmed, ReservationCheckIn, models.ReservationCheckedIn, []Effect{EffectOccupyTable}, false},
		{models.ReservationPending, ReservationCancel, models.ReservationCancelled, []Effect{EffectReleaseTable}, false},
		{models.ReservationConfirmed, ReservationCancel, models.ReservationCancelled, []Effect{EffectReleaseTable}, false},
		{models.ReservationCheckedIn, ReservationCheckIn, models.ReservationCheckedIn, []Effect{EffectOccupyTable}, false},
		{models.ReservationCheckedIn, ReservationDepositSettled, models.ReservationCheckedIn, nil, false},
		{models.ReservationCheckedIn, ReservationCancel, "", nil, true},
		{models.ReservationCancelled, ReservationCancel, "", nil, true},
		{models.ReservationCancelled, ReservationCheckIn, "", nil, true},
	}
	for _, tc := range cases {
		t.Run(string(tc.from)+"/"+string(tc.ev), func(t *testing.T) {
			got, effects, err := NextReservation(tc.from, tc.ev)
			if tc.invalid {
				if !errors.Is(err, apperr.InvalidTransition) {
					t.Fatalf("err = %v, want InvalidTransition", err)
				}
				return
			}
			if err != nil || got != tc.want {
				t.Fatalf("got %s, %v; want %s", got, err, tc.want)
			}
			if len(effects) != len(tc.effects) {
				t.Fatalf("effects = %v, want %v", effects, tc.effects)
			}
			for i := range effects {
				if effects[i] != tc.effects[i] {
					t.Fatalf("effects = %v, want %v", effects, tc.effects)
				}
			}
		})
	}
}
