package trip

import (
	"errors"
	"strings"
	"time"
)

type PaymentMethod string

const (
	PaymentCash PaymentMethod = "CASH"
	PaymentMoMo PaymentMethod = "MOMO"
	PaymentOM   PaymentMethod = "OM"
)

func (p PaymentMethod) Valid() bool {
	switch p {
	case PaymentCash, PaymentMoMo, PaymentOM:
		return true
	default:
		return false
	}
}

type CanceledBy string

const (
	CanceledByPassenger CanceledBy = "PASSENGER"
	CanceledByDriver    CanceledBy = "DRIVER"
	CanceledBySystem    CanceledBy = "SYSTEM"
)

type Point struct {
	Lat     float64
	Lng     float64
	Address string
}

func (p Point) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

var (
	ErrPassengerRequired = errors.New("passenger id is required")
	ErrInvalidPoint      = errors.New("coordinate out of range")
	ErrDriverRequired    = errors.New("driver id is required")
	ErrAlreadyAssigned   = errors.New("driver already assigned")
	ErrInvalidTransition = errors.New("invalid trip status transition")
	ErrTerminal          = errors.New("trip already reached a terminal state")
)

// Trip is the durable row (§3); created at MATCHED, never at SEARCHING
// (SEARCHING only exists in the ephemeral key-value record, see internal/kv
// and internal/dispatch).
type Trip struct {
	ID          string
	PassengerID string
	DriverID    *string

	Status Status

	Pickup  Point
	Dropoff Point

	RoutePolyline string
	DistanceM     int
	DurationS     int

	FareEstimate int // XAF
	FareFinal    *int

	PaymentMethod PaymentMethod

	// driver location snapshot taken at MATCHED time
	DriverLocationAtMatch *Point

	MatchedAt       *time.Time
	DriverEnRouteAt *time.Time
	DriverArrivedAt *time.Time
	TripStartedAt   *time.Time
	TripCompletedAt *time.Time
	CanceledAt      *time.Time

	CancelReason *string
	CanceledBy   *CanceledBy

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewAtMatch builds the durable Trip row at the moment of acceptance (§4.2
// "Acceptance race"): the row is created directly in MATCHED status, the
// ephemeral SEARCHING phase never produces a durable row (invariant 2).
func NewAtMatch(id, passengerID, driverID string, pickup, dropoff Point, distanceM, durationS, fareEstimate int, payment PaymentMethod, driverLoc Point) (*Trip, error) {
	if strings.TrimSpace(passengerID) == "" {
		return nil, ErrPassengerRequired
	}
	if strings.TrimSpace(driverID) == "" {
		return nil, ErrDriverRequired
	}
	if !pickup.Valid() || !dropoff.Valid() {
		return nil, ErrInvalidPoint
	}
	if !payment.Valid() {
		return nil, errors.New("invalid payment method")
	}

	now := time.Now().UTC()
	drv := driverID
	return &Trip{
		ID:                    id,
		PassengerID:           passengerID,
		DriverID:              &drv,
		Status:                StatusMatched,
		Pickup:                pickup,
		Dropoff:               dropoff,
		DistanceM:             distanceM,
		DurationS:             durationS,
		FareEstimate:          fareEstimate,
		PaymentMethod:         payment,
		DriverLocationAtMatch: &driverLoc,
		MatchedAt:             &now,
		CreatedAt:             now,
		UpdatedAt:             now,
	}, nil
}

// Transition applies a raw status move, validating the transition table.
// Timestamps for well-known transitions are stamped by the caller (the
// state machine in internal/tripstate) since they differ per transition.
func (t *Trip) Transition(next Status) error {
	if t.Status.Terminal() {
		return ErrTerminal
	}
	if !t.Status.CanTransitionTo(next) {
		return ErrInvalidTransition
	}
	t.Status = next
	t.touch()
	return nil
}

func (t *Trip) touch() { t.UpdatedAt = time.Now().UTC() }
