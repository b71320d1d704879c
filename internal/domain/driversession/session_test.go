package driversession

import "testing"

func TestNew(t *testing.T) {
	s, err := New("drv-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.DriverID != "drv-1" {
		t.Errorf("got driver id %s, want drv-1", s.DriverID)
	}
	if s.EndedAt != nil {
		t.Error("expected a freshly-started session to have no EndedAt")
	}
	if s.TotalRides != 0 || s.TotalEarnings != 0 {
		t.Errorf("got rides=%d earnings=%d, want 0,0", s.TotalRides, s.TotalEarnings)
	}

	if _, err := New(""); err != ErrDriverIDRequired {
		t.Errorf("got %v, want ErrDriverIDRequired", err)
	}
	if _, err := New("   "); err != ErrDriverIDRequired {
		t.Errorf("got %v, want ErrDriverIDRequired", err)
	}
}

func TestAddRide(t *testing.T) {
	s, _ := New("drv-1")

	if err := s.AddRide(1500); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.AddRide(2500); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.TotalRides != 2 {
		t.Errorf("got %d rides, want 2", s.TotalRides)
	}
	if s.TotalEarnings != 4000 {
		t.Errorf("got %d earnings, want 4000", s.TotalEarnings)
	}

	if err := s.AddRide(-1); err != ErrNegativeTotals {
		t.Errorf("got %v, want ErrNegativeTotals", err)
	}
}

func TestEnd(t *testing.T) {
	s, _ := New("drv-1")

	if err := s.End(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.EndedAt == nil {
		t.Fatal("expected EndedAt to be set")
	}

	if err := s.End(); err != ErrSessionAlreadyEnded {
		t.Errorf("got %v, want ErrSessionAlreadyEnded", err)
	}
	if err := s.AddRide(100); err != ErrSessionAlreadyEnded {
		t.Errorf("got %v, want ErrSessionAlreadyEnded", err)
	}
}

func TestDuration(t *testing.T) {
	s, _ := New("drv-1")
	if s.Duration() < 0 {
		t.Error("expected non-negative duration for an open session")
	}

	if err := s.End(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := s.Duration(); got < 0 {
		t.Errorf("got negative duration %v after End", got)
	}
}
