package tripstate

import (
	"testing"

	"ride-hail/internal/apperr"
	"ride-hail/internal/domain/trip"
)

func TestTransitionAppliesValidMove(t *testing.T) {
	tr, err := trip.NewAtMatch("trip-1", "pax-1", "drv-1",
		trip.Point{Lat: 4.05, Lng: 9.7}, trip.Point{Lat: 4.06, Lng: 9.75},
		5000, 600, 1500, trip.PaymentCash, trip.Point{Lat: 4.05, Lng: 9.7})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := transition(tr, trip.StatusDriverEnRoute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.Status != trip.StatusDriverEnRoute {
		t.Errorf("got %s, want %s", tr.Status, trip.StatusDriverEnRoute)
	}
}

func TestTransitionRejectsInvalidMove(t *testing.T) {
	tr, err := trip.NewAtMatch("trip-1", "pax-1", "drv-1",
		trip.Point{Lat: 4.05, Lng: 9.7}, trip.Point{Lat: 4.06, Lng: 9.75},
		5000, 600, 1500, trip.PaymentCash, trip.Point{Lat: 4.05, Lng: 9.7})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err = transition(tr, trip.StatusCompleted)
	appErr, ok := apperr.As(err)
	if !ok {
		t.Fatalf("expected apperr.Error, got %T", err)
	}
	if appErr.Kind != apperr.KindPreconditionFailed {
		t.Errorf("got kind %s, want %s", appErr.Kind, apperr.KindPreconditionFailed)
	}
	if appErr.Code != "INVALID_TRANSITION" {
		t.Errorf("got code %s, want INVALID_TRANSITION", appErr.Code)
	}
}

func TestTransitionRejectsFromTerminalState(t *testing.T) {
	tr, err := trip.NewAtMatch("trip-1", "pax-1", "drv-1",
		trip.Point{Lat: 4.05, Lng: 9.7}, trip.Point{Lat: 4.06, Lng: 9.75},
		5000, 600, 1500, trip.PaymentCash, trip.Point{Lat: 4.05, Lng: 9.7})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tr.Status = trip.StatusCompleted

	err = transition(tr, trip.StatusCanceled)
	appErr, ok := apperr.As(err)
	if !ok {
		t.Fatalf("expected apperr.Error, got %T", err)
	}
	if appErr.Code != "TRIP_TERMINAL" {
		t.Errorf("got code %s, want TRIP_TERMINAL", appErr.Code)
	}
}
