package tables

import (
	"github.com/ariefcatur/go-realtime-venue/internal/apperr"
	"github.com/ariefcatur/go-realtime-venue/internal/models"
)

type TableEvent string

const (
	TableReserve  TableEvent = "RESERVE"
	TableOccupy   TableEvent = "OCCUPY"
	TableRelease  TableEvent = "RELEASE"
	TableMaintain TableEvent = "MAINTAIN"
	TableRestore  TableEvent = "RESTORE"
)

var tableNext = map[models.TableStatus]map[TableEvent]models.TableStatus{
	models.TableAvailable: {
		TableReserve:  models.TableReserved,
		TableOccupy:   models.TableInUse,
		TableRelease:  models.TableAvailable,
		TableMaintain: models.TableMaintenance,
	},
	models.TableReserved: {
		TableReserve: models.TableReserved,
		TableOccupy:  models.TableInUse,
		TableRelease: models.TableAvailable,
	},
	models.TableInUse: {
		TableOccupy:  models.TableInUse,
		TableRelease: models.TableAvailable,
	},
	models.TableMaintenance: {
		TableMaintain: models.TableMaintenance,
		TableRestore:  models.TableAvailable,
	},
}

// NextTable is the table transition function. It has no side effects.
func NextTable(cur models.TableStatus, ev TableEvent) (models.TableStatus, error) {
	next, ok := tableNext[cur][ev]
	if !ok {
		return cur, apperr.New(apperr.InvalidTransition, "table %s cannot %s", cur, ev)
	}
	return next, nil
}

type ReservationEvent string

const (
	ReservationDepositSettled ReservationEvent = "DEPOSIT_SETTLED"
	ReservationConfirm        ReservationEvent = "CONFIRM"
	ReservationCheckIn        ReservationEvent = "CHECK_IN"
	ReservationCancel         ReservationEvent = "CANCEL"
)

// Effect is a table-side consequence of a reservation transition.
type Effect string

const (
	EffectOccupyTable  Effect = "OCCUPY_TABLE"
	EffectReleaseTable Effect = "RELEASE_TABLE"
)

type reservationEdge struct {
	to      models.ReservationStatus
	effects []Effect
}

var reservationNext = map[models.ReservationStatus]map[ReservationEvent]reservationEdge{
	models.ReservationPending: {
		ReservationDepositSettled: {to: models.ReservationConfirmed},
		ReservationConfirm:        {to: models.ReservationConfirmed},
		ReservationCheckIn:        {to: models.ReservationCheckedIn, effects: []Effect{EffectOccupyTable}},
		ReservationCancel:         {to: models.ReservationCancelled, effects: []Effect{EffectReleaseTable}},
	},
	models.ReservationConfirmed: {
		ReservationDepositSettled: {to: models.ReservationConfirmed},
		ReservationConfirm:        {to: models.ReservationConfirmed},
		ReservationCheckIn:        {to: models.ReservationCheckedIn, effects: []Effect{EffectOccupyTable}},
		ReservationCancel:         {to: models.ReservationCancelled, effects: []Effect{EffectReleaseTable}},
	},
	models.ReservationCheckedIn: {
		// add-on orders and a returning party re-seat the table
		ReservationCheckIn:        {to: models.ReservationCheckedIn, effects: []Effect{EffectOccupyTable}},
		ReservationDepositSettled: {to: models.ReservationCheckedIn},
	},
	models.ReservationCancelled: {},
}

// NextReservation returns the next status and the table effects to apply.
// Checking in again occupies the table again; other self-transitions carry no effects.
func NextReservation(cur models.ReservationStatus, ev ReservationEvent) (models.ReservationStatus, []Effect, error) {
	edge, ok := reservationNext[cur][ev]
	if !ok {
		return cur, nil, apperr.New(apperr.InvalidTransition, "reservation %s cannot %s", cur, ev)
	}
	return edge.to, edge.effects, nil
}
