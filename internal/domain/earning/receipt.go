// Package earning models the rule engine, bonus programs/awards and the
// per-trip receipt that anchors C7's idempotency guarantee (§4.5).
package earning

import (
	"errors"
	"time"
)

type ReceiptStatus string

const (
	ReceiptPending  ReceiptStatus = "PENDING"
	ReceiptSettled  ReceiptStatus = "SETTLED"
	ReceiptRefunded ReceiptStatus = "REFUNDED"
)

// Receipt is the UNIQUE(tripId) double-post kill switch (§3 TripReceipt,
// invariant 4).
type Receipt struct {
	ID              string
	TripID          string // UNIQUE
	DriverID        string
	PassengerID     string
	GrossFare       int
	CommissionRate  float64 // 4-dp decimal
	CommissionAmount int
	BonusTotal      int
	DriverNet       int
	PaymentMethod   string
	CommissionRuleID *string
	AppliedRules    []AppliedRule
	Status          ReceiptStatus
	ProcessedAt     *time.Time
	CreatedAt       time.Time
}

// AppliedRule is one entry of the audit snapshot (§4.5 step 10): every rule
// evaluated for this trip, whether it matched, and what it contributed.
type AppliedRule struct {
	RuleID    string
	Type      RuleType
	Matched   bool
	Amount    int     // flat/percent contribution in XAF, 0 if not matched
	Rate      float64 // only meaningful for COMMISSION_PERCENT
}

var ErrTripIDRequired = errors.New("trip id is required")

func NewPendingReceipt(id, tripID, driverID, passengerID string, grossFare int, paymentMethod string) (*Receipt, error) {
	if tripID == "" {
		return nil, ErrTripIDRequired
	}
	return &Receipt{
		ID:            id,
		TripID:        tripID,
		DriverID:      driverID,
		PassengerID:   passengerID,
		GrossFare:     grossFare,
		PaymentMethod: paymentMethod,
		Status:        ReceiptPending,
		CreatedAt:     time.Now().UTC(),
	}, nil
}
