package apperr

import (
	"errors"
	"testing"
)

func TestAsAndKindOf(t *testing.T) {
	err := Validation("TRIP_INVALID", "bad request")
	e, ok := As(err)
	if !ok {
		t.Fatal("expected As to find the error")
	}
	if e.Kind != KindValidation {
		t.Errorf("got %s, want %s", e.Kind, KindValidation)
	}
	if KindOf(err) != KindValidation {
		t.Errorf("got %s, want %s", KindOf(err), KindValidation)
	}
}

func TestKindOfPlainError(t *testing.T) {
	if KindOf(errors.New("boom")) != KindInternal {
		t.Error("expected plain errors to classify as KindInternal")
	}
	if _, ok := As(errors.New("boom")); ok {
		t.Error("expected As to fail for a plain error")
	}
}

func TestWrapUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := Internal("db write failed", cause)

	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find the wrapped cause")
	}
	if err.Kind != KindInternal {
		t.Errorf("got %s, want %s", err.Kind, KindInternal)
	}
}

func TestWithData(t *testing.T) {
	err := Conflict("DRIVER_ALREADY_OFFERED", "driver already has a pending offer").
		WithData(map[string]any{"driver_id": "drv-1"})

	if err.Data["driver_id"] != "drv-1" {
		t.Errorf("expected data to carry driver_id")
	}
}
