package trip

import "time"

// Ephemeral is the `trip:<id>` JSON record (§6.2): the dispatcher's
// working copy of a trip while it is SEARCHING, and the fast-path mirror
// of the durable row once MATCHED. The durable Trip row (trip.go) is only
// ever created at MATCHED (invariant 2); before that, Ephemeral is the
// only record of the trip's existence.
type Ephemeral struct {
	ID              string        `json:"id"`
	PassengerID     string        `json:"passenger_id"`
	DriverID        *string       `json:"driver_id,omitempty"`
	Status          Status        `json:"status"`
	Pickup          Point         `json:"pickup"`
	Dropoff         Point         `json:"dropoff"`
	DistanceM       int           `json:"distance_m"`
	DurationS       int           `json:"duration_s"`
	FareEstimate    int           `json:"fare_estimate"`
	VehicleType     string        `json:"vehicle_type"`
	PaymentMethod   PaymentMethod `json:"payment_method"`
	MatchedAt       *time.Time    `json:"matched_at,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
}
