package earning

import (
	"testing"
	"time"
)

func baseRule() Rule {
	return Rule{
		ID:        "rule-1",
		Priority:  1,
		Type:      RuleCommissionPercent,
		AppliesTo: AppliesRide,
		ValidFrom: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		IsActive:  true,
		CommissionRate: 0.18,
	}
}

func TestRuleMatchesInactive(t *testing.T) {
	r := baseRule()
	r.IsActive = false
	if r.Matches(Context{}, time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)) {
		t.Error("inactive rule should never match")
	}
}

func TestRuleMatchesValidityWindow(t *testing.T) {
	r := baseRule()
	validTo := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	r.ValidTo = &validTo

	if r.Matches(Context{}, time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)) {
		t.Error("rule should not match before ValidFrom")
	}
	if !r.Matches(Context{}, time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)) {
		t.Error("rule should match within its validity window")
	}
	if r.Matches(Context{}, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)) {
		t.Error("rule should not match after ValidTo")
	}
}

func TestRuleMatchesCity(t *testing.T) {
	r := baseRule()
	r.Condition.City = "Douala"

	if !r.Matches(Context{City: "Douala"}, time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)) {
		t.Error("expected match for same city")
	}
	if r.Matches(Context{City: "Yaounde"}, time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)) {
		t.Error("expected no match for different city")
	}
}

func TestRuleMatchesHourWindowWrapsPastMidnight(t *testing.T) {
	r := baseRule()
	start, end := 22, 4
	r.Condition.HourStart = &start
	r.Condition.HourEnd = &end

	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	if !r.Matches(Context{TripHour: 23}, now) {
		t.Error("expected match at 23:00 within wrapping window")
	}
	if !r.Matches(Context{TripHour: 2}, now) {
		t.Error("expected match at 02:00 within wrapping window")
	}
	if r.Matches(Context{TripHour: 12}, now) {
		t.Error("expected no match at noon outside wrapping window")
	}
}

func TestRuleMatchesFareAndDistanceBounds(t *testing.T) {
	r := baseRule()
	minFare, maxFare := 1000, 5000
	r.Condition.MinFare = &minFare
	r.Condition.MaxFare = &maxFare
	minDist := 2000
	r.Condition.MinDistanceM = &minDist

	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	if r.Matches(Context{Fare: 500, DistanceM: 3000}, now) {
		t.Error("expected no match below MinFare")
	}
	if r.Matches(Context{Fare: 6000, DistanceM: 3000}, now) {
		t.Error("expected no match above MaxFare")
	}
	if r.Matches(Context{Fare: 2000, DistanceM: 500}, now) {
		t.Error("expected no match below MinDistanceM")
	}
	if !r.Matches(Context{Fare: 2000, DistanceM: 3000}, now) {
		t.Error("expected match within all bounds")
	}
}

func TestRuleMatchesPaymentMethodsAndTiers(t *testing.T) {
	r := baseRule()
	r.Condition.PaymentMethods = []string{"MOMO", "OM"}
	r.Condition.DriverTiers = []string{"GOLD"}

	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	if r.Matches(Context{PaymentMethod: "CASH", DriverTier: "GOLD"}, now) {
		t.Error("expected no match for excluded payment method")
	}
	if r.Matches(Context{PaymentMethod: "MOMO", DriverTier: "SILVER"}, now) {
		t.Error("expected no match for excluded driver tier")
	}
	if !r.Matches(Context{PaymentMethod: "MOMO", DriverTier: "GOLD"}, now) {
		t.Error("expected match for included payment method and tier")
	}
}
