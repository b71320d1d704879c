// Package rating implements the post-trip rating flow (§3 Rating): once a
// trip reaches COMPLETED, the passenger may rate the driver and the driver
// may rate the passenger, exactly once per side (invariant 6).
package rating

import (
	"context"
	"fmt"
	"time"

	"ride-hail/internal/apperr"
	"ride-hail/internal/domain/rating"
	"ride-hail/internal/domain/trip"
	"ride-hail/internal/general/logger"
	"ride-hail/internal/ports"
)

// Service implements ports.RatingService.
type Service struct {
	repo  ports.RatingRepository
	trips ports.TripRepository
	pub   ports.EventPublisher
	log   *logger.Logger
}

// New constructs a rating Service.
func New(repo ports.RatingRepository, trips ports.TripRepository, pub ports.EventPublisher, log *logger.Logger) *Service {
	return &Service{repo: repo, trips: trips, pub: pub, log: log}
}

var _ ports.RatingService = (*Service)(nil)

// SubmitRating validates that the trip has reached COMPLETED and that the
// rater was a participant, then inserts the rating. The UNIQUE(tripId,
// ratedBy) constraint is the idempotency anchor (§3 invariant 6): a repeat
// submission for the same trip and rater surfaces as ALREADY_RATED rather
// than a second row.
func (s *Service) SubmitRating(ctx context.Context, in ports.SubmitRatingInput) (*rating.Rating, error) {
	t, err := s.trips.GetByID(ctx, in.TripID)
	if err != nil {
		return nil, err
	}
	if t.Status != trip.StatusCompleted {
		return nil, apperr.Precondition("TRIP_NOT_COMPLETED", "a trip can only be rated after it has completed")
	}

	var ratedUser string
	var ratingType rating.RatingType
	switch in.RaterID {
	case t.PassengerID:
		if t.DriverID == nil {
			return nil, apperr.Internal("completed trip has no driver", nil)
		}
		ratedUser = *t.DriverID
		ratingType = rating.TypePassengerToDriver
	default:
		if t.DriverID == nil || *t.DriverID != in.RaterID {
			return nil, apperr.Forbidden("ACCESS_DENIED", "caller is not a participant of this trip")
		}
		ratedUser = t.PassengerID
		ratingType = rating.TypeDriverToPassenger
	}

	r, err := rating.New(in.TripID, in.RaterID, ratedUser, ratingType, in.Stars, in.Comment)
	if err != nil {
		if err == rating.ErrStarsOutOfRange {
			return nil, apperr.Validation("STARS_OUT_OF_RANGE", "stars must be within [1,5]")
		}
		return nil, apperr.Internal("build rating", err)
	}

	if err := s.repo.Insert(ctx, r); err != nil {
		return nil, err
	}

	s.notify(ctx, fmt.Sprintf("user:%s", ratedUser), "rating:received", in.TripID, map[string]any{
		"trip_id": in.TripID, "stars": r.Stars, "rating_type": string(r.RatingType),
	})
	s.log.Info(s.log.WithTripID(ctx, in.TripID), "rating_submitted", "Rating submitted", map[string]any{
		"rated_user": ratedUser, "rating_type": string(r.RatingType), "stars": r.Stars,
	})
	return r, nil
}

func (s *Service) notify(ctx context.Context, room, eventType, tripID string, payload map[string]any) {
	ev := ports.WireEvent{Type: eventType, TripID: tripID, Payload: payload, Timestamp: time.Now().UTC()}
	if err := s.pub.Publish(ctx, room, ev); err != nil {
		s.log.Error(ctx, "rating_notify_failed", "Failed to publish rating event", err, map[string]any{"room": room, "event": eventType})
	}
}
