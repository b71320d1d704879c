// Package rating models the Rating entity (§3): one rating per (tripId,
// ratedBy), exactly one rating_type per direction (invariant 6).
package rating

import (
	"errors"
	"strings"
	"time"
)

type RatingType string

const (
	TypeDriverToPassenger RatingType = "DRIVER_TO_PASSENGER"
	TypePassengerToDriver RatingType = "PASSENGER_TO_DRIVER"
)

func (t RatingType) Valid() bool {
	return t == TypeDriverToPassenger || t == TypePassengerToDriver
}

var (
	ErrTripIDRequired  = errors.New("trip id is required")
	ErrStarsOutOfRange = errors.New("stars must be within [1,5]")
	ErrInvalidType     = errors.New("invalid rating type")
)

type Rating struct {
	ID         string
	TripID     string
	RatedBy    string
	RatedUser  string
	RatingType RatingType
	Stars      int
	Comment    string
	CreatedAt  time.Time
}

func New(tripID, ratedBy, ratedUser string, typ RatingType, stars int, comment string) (*Rating, error) {
	if strings.TrimSpace(tripID) == "" {
		return nil, ErrTripIDRequired
	}
	if !typ.Valid() {
		return nil, ErrInvalidType
	}
	if stars < 1 || stars > 5 {
		return nil, ErrStarsOutOfRange
	}
	return &Rating{
		TripID:     tripID,
		RatedBy:    ratedBy,
		RatedUser:  ratedUser,
		RatingType: typ,
		Stars:      stars,
		Comment:    strings.TrimSpace(comment),
		CreatedAt:  time.Now().UTC(),
	}, nil
}
