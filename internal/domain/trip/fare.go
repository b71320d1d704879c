package trip

import "math"

// PriceRule is the minimal shape §6.4's fare function needs from the active
// PriceRule row (full CRUD for price rules is out of scope per §1; only the
// pure function is specified).
type PriceRule struct {
	City        string
	VehicleType string
	BaseFare    float64 // XAF
	PerKM       float64 // XAF per km
	PerMinute   float64 // XAF per minute
	MinFare     float64 // XAF
	SurgeMult   float64 // multiplier, 1.0 = no surge
}

// EstimateFare implements §6.4's shared pure function: fare = max(base +
// distanceKm*per_km + durationMin*per_min, min_fare) * surge_mult, rounded
// to the nearest integer XAF. city and vehicleType are accepted for parity
// with the external fare estimator's signature even though PriceRule
// already carries them (the caller is expected to have looked up the rule
// matching this (city, vehicleType) pair).
func EstimateFare(city, vehicleType string, distanceKM, durationMin float64, rule PriceRule) int {
	surge := rule.SurgeMult
	if surge <= 0 {
		surge = 1.0
	}

	raw := rule.BaseFare + distanceKM*rule.PerKM + durationMin*rule.PerMinute
	if raw < rule.MinFare {
		raw = rule.MinFare
	}

	fare := raw * surge
	return int(math.Round(fare))
}
