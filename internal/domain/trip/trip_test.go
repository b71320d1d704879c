package trip

import "testing"

func validPoint() Point { return Point{Lat: 4.05, Lng: 9.7, Address: "Bonanjo"} }

func TestNewAtMatch(t *testing.T) {
	tr, err := NewAtMatch("trip-1", "pax-1", "drv-1", validPoint(), validPoint(), 5000, 600, 1500, PaymentCash, validPoint())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.Status != StatusMatched {
		t.Errorf("got status %s, want %s", tr.Status, StatusMatched)
	}
	if tr.DriverID == nil || *tr.DriverID != "drv-1" {
		t.Errorf("driver id not set correctly")
	}
	if tr.MatchedAt == nil {
		t.Error("expected MatchedAt to be stamped")
	}
}

func TestNewAtMatchValidation(t *testing.T) {
	pt := validPoint()
	if _, err := NewAtMatch("t", "", "drv-1", pt, pt, 1, 1, 1, PaymentCash, pt); err != ErrPassengerRequired {
		t.Errorf("got %v, want ErrPassengerRequired", err)
	}
	if _, err := NewAtMatch("t", "pax-1", "", pt, pt, 1, 1, 1, PaymentCash, pt); err != ErrDriverRequired {
		t.Errorf("got %v, want ErrDriverRequired", err)
	}
	bad := Point{Lat: 200, Lng: 9.7}
	if _, err := NewAtMatch("t", "pax-1", "drv-1", bad, pt, 1, 1, 1, PaymentCash, pt); err != ErrInvalidPoint {
		t.Errorf("got %v, want ErrInvalidPoint", err)
	}
	if _, err := NewAtMatch("t", "pax-1", "drv-1", pt, pt, 1, 1, 1, PaymentMethod("WIRE"), pt); err == nil {
		t.Error("expected error for invalid payment method")
	}
}

func TestTripTransition(t *testing.T) {
	tr, err := NewAtMatch("trip-1", "pax-1", "drv-1", validPoint(), validPoint(), 5000, 600, 1500, PaymentCash, validPoint())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := tr.Transition(StatusDriverEnRoute); err != nil {
		t.Fatalf("unexpected error transitioning to driver en route: %v", err)
	}
	if tr.Status != StatusDriverEnRoute {
		t.Errorf("got %s, want %s", tr.Status, StatusDriverEnRoute)
	}

	if err := tr.Transition(StatusCompleted); err != ErrInvalidTransition {
		t.Errorf("got %v, want ErrInvalidTransition", err)
	}

	if err := tr.Transition(StatusDriverArrived); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := tr.Transition(StatusInProgress); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := tr.Transition(StatusCompleted); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := tr.Transition(StatusCanceled); err != ErrTerminal {
		t.Errorf("got %v, want ErrTerminal", err)
	}
}
