package trip

import (
	"errors"
	"strings"
)

// Status is a trip status per spec §4.3.
type Status string

const (
	StatusDraft         Status = "DRAFT"
	StatusSearching     Status = "SEARCHING"
	StatusMatched       Status = "MATCHED"
	StatusDriverAssigned Status = "DRIVER_ASSIGNED"
	StatusDriverEnRoute Status = "DRIVER_EN_ROUTE"
	StatusDriverArrived Status = "DRIVER_ARRIVED"
	StatusInProgress    Status = "IN_PROGRESS"
	StatusCompleted     Status = "COMPLETED"
	StatusCanceled      Status = "CANCELED"
	StatusNoShow        Status = "NO_SHOW"
	StatusNoDrivers     Status = "NO_DRIVERS"
)

var ErrInvalidStatus = errors.New("invalid trip status")

func ParseStatus(in string) (Status, error) {
	s := Status(strings.ToUpper(strings.TrimSpace(in)))
	if s.Valid() {
		return s, nil
	}
	return "", ErrInvalidStatus
}

func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusSearching, StatusMatched, StatusDriverAssigned,
		StatusDriverEnRoute, StatusDriverArrived, StatusInProgress,
		StatusCompleted, StatusCanceled, StatusNoShow, StatusNoDrivers:
		return true
	default:
		return false
	}
}

func (s Status) String() string { return string(s) }

// Terminal reports whether no further transition is ever legal (invariant 3).
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCanceled, StatusNoShow, StatusNoDrivers:
		return true
	default:
		return false
	}
}

// Actor identifies who may legally drive a transition.
type Actor string

const (
	ActorSystem    Actor = "system"
	ActorPassenger Actor = "passenger"
	ActorDriver    Actor = "driver"
)

// CanTransitionTo implements the transition table of §4.3, independent of
// actor (actor authorization is checked separately by the caller, since it
// also depends on matching the trip's passengerId/driverId — see §4.3
// "Authorization").
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusSearching:
		return next == StatusMatched || next == StatusCanceled || next == StatusNoDrivers
	case StatusMatched:
		return next == StatusDriverEnRoute || next == StatusDriverArrived || next == StatusCanceled
	case StatusDriverAssigned:
		return next == StatusDriverArrived || next == StatusCanceled
	case StatusDriverEnRoute:
		return next == StatusDriverArrived || next == StatusCanceled
	case StatusDriverArrived:
		return next == StatusInProgress || next == StatusNoShow || next == StatusCanceled
	case StatusInProgress:
		return next == StatusCompleted
	default:
		return false
	}
}
