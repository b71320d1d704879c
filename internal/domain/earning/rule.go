package earning

import (
	"time"
)

type RuleType string

const (
	RuleCommissionPercent RuleType = "COMMISSION_PERCENT"
	RuleBonusFlat         RuleType = "BONUS_FLAT"
	RuleBonusMultiplier   RuleType = "BONUS_MULTIPLIER"
	RulePenalty           RuleType = "PENALTY"
)

type AppliesTo string

const (
	AppliesRide   AppliesTo = "RIDE"
	AppliesRental AppliesTo = "RENTAL"
	AppliesAll    AppliesTo = "ALL"
)

// Condition is the JSON-shaped matcher condition (§3 EarningRule). Every
// field is optional; a zero value means "not constrained on this axis".
type Condition struct {
	City           string   `json:"city,omitempty"`
	HourStart      *int     `json:"hour_start,omitempty"` // inclusive, 0-23
	HourEnd        *int     `json:"hour_end,omitempty"`   // exclusive, 1-24
	DaysOfWeek     []int    `json:"days_of_week,omitempty"` // 0=Sunday..6=Saturday
	MinFare        *int     `json:"min_fare,omitempty"`
	MaxFare        *int     `json:"max_fare,omitempty"`
	MinDistanceM   *int     `json:"min_distance_m,omitempty"`
	PaymentMethods []string `json:"payment_methods,omitempty"`
	DriverTiers    []string `json:"driver_tiers,omitempty"`
	PickupZone     string   `json:"pickup_zone,omitempty"`
}

// Rule is a single priority-ordered earning rule (§3 EarningRule).
type Rule struct {
	ID             string
	Priority       int
	Type           RuleType
	Condition      Condition
	AppliesTo      AppliesTo
	ValidFrom      time.Time
	ValidTo        *time.Time
	IsActive       bool
	CommissionRate float64 // only meaningful for COMMISSION_PERCENT
	BonusAmount    int     // only meaningful for BONUS_FLAT (XAF)
	BonusMultiplier float64 // only meaningful for BONUS_MULTIPLIER
}

// Context is the per-trip evaluation context built in §4.5 step 2.
type Context struct {
	Fare          int
	City          string
	TripHour      int // local hour of day, 0-23
	TripDayOfWeek int // 0=Sunday..6=Saturday
	DistanceM     int
	PaymentMethod string
	DriverTier    string
	PickupZone    string
}

// Matches evaluates a rule's condition against ctx, respecting the
// validity window and isActive flag already filtered by the caller's query.
func (r Rule) Matches(ctx Context, now time.Time) bool {
	if !r.IsActive {
		return false
	}
	if now.Before(r.ValidFrom) {
		return false
	}
	if r.ValidTo != nil && now.After(*r.ValidTo) {
		return false
	}

	c := r.Condition
	if c.City != "" && c.City != ctx.City {
		return false
	}
	if c.HourStart != nil && c.HourEnd != nil {
		if !hourInWindow(ctx.TripHour, *c.HourStart, *c.HourEnd) {
			return false
		}
	}
	if len(c.DaysOfWeek) > 0 && !containsInt(c.DaysOfWeek, ctx.TripDayOfWeek) {
		return false
	}
	if c.MinFare != nil && ctx.Fare < *c.MinFare {
		return false
	}
	if c.MaxFare != nil && ctx.Fare > *c.MaxFare {
		return false
	}
	if c.MinDistanceM != nil && ctx.DistanceM < *c.MinDistanceM {
		return false
	}
	if len(c.PaymentMethods) > 0 && !containsStr(c.PaymentMethods, ctx.PaymentMethod) {
		return false
	}
	if len(c.DriverTiers) > 0 && !containsStr(c.DriverTiers, ctx.DriverTier) {
		return false
	}
	if c.PickupZone != "" && c.PickupZone != ctx.PickupZone {
		return false
	}
	return true
}

func hourInWindow(hour, start, end int) bool {
	if start <= end {
		return hour >= start && hour < end
	}
	// wraps past midnight, e.g. 22..4
	return hour >= start || hour < end
}

func containsInt(xs []int, v int) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

func containsStr(xs []string, v string) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

// DefaultCommissionRate is the fallback when no COMMISSION_PERCENT rule
// matches (§4.5 step 4).
const DefaultCommissionRate = 0.15
