package trip

import "testing"

func TestStatusCanTransitionTo(t *testing.T) {
	cases := []struct {
		from Status
		to   Status
		want bool
	}{
		{StatusSearching, StatusMatched, true},
		{StatusSearching, StatusCanceled, true},
		{StatusSearching, StatusNoDrivers, true},
		{StatusSearching, StatusInProgress, false},
		{StatusMatched, StatusDriverEnRoute, true},
		{StatusMatched, StatusDriverArrived, true},
		{StatusMatched, StatusCanceled, true},
		{StatusMatched, StatusCompleted, false},
		{StatusDriverAssigned, StatusDriverArrived, true},
		{StatusDriverAssigned, StatusCanceled, true},
		{StatusDriverAssigned, StatusInProgress, false},
		{StatusDriverEnRoute, StatusDriverArrived, true},
		{StatusDriverEnRoute, StatusCanceled, true},
		{StatusDriverArrived, StatusInProgress, true},
		{StatusDriverArrived, StatusNoShow, true},
		{StatusDriverArrived, StatusCanceled, true},
		{StatusDriverArrived, StatusMatched, false},
		{StatusInProgress, StatusCompleted, true},
		{StatusInProgress, StatusCanceled, false},
		{StatusCompleted, StatusInProgress, false},
		{StatusCanceled, StatusSearching, false},
	}
	for _, c := range cases {
		got := c.from.CanTransitionTo(c.to)
		if got != c.want {
			t.Errorf("%s -> %s: got %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestStatusTerminal(t *testing.T) {
	terminal := []Status{StatusCompleted, StatusCanceled, StatusNoShow, StatusNoDrivers}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	nonTerminal := []Status{StatusDraft, StatusSearching, StatusMatched, StatusDriverAssigned, StatusDriverEnRoute, StatusDriverArrived, StatusInProgress}
	for _, s := range nonTerminal {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus(" in_progress ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s != StatusInProgress {
		t.Errorf("got %s, want %s", s, StatusInProgress)
	}

	if _, err := ParseStatus("bogus"); err != ErrInvalidStatus {
		t.Errorf("got %v, want ErrInvalidStatus", err)
	}
}
