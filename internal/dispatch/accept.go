package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ride-hail/internal/apperr"
	"ride-hail/internal/domain/trip"
	"ride-hail/internal/ports"

	"github.com/google/uuid"
)

// AcceptOffer is the critical section of §4.2 "Acceptance race": exactly
// one of the drivers offered a trip may win it, enforced by a SET NX EX
// lock keyed on the trip id and released, nonce-checked, once the durable
// row exists or the attempt fails.
func (s *Service) AcceptOffer(ctx context.Context, tripID, driverID string) (*trip.Trip, error) {
	nonce := uuid.NewString()

	acquired, err := s.kv.AcquireLock(ctx, lockKey(tripID), nonce, lockTTL)
	if err != nil {
		return nil, apperr.Internal("acquire trip lock", err)
	}
	if !acquired {
		return nil, apperr.Conflict("TRIP_LOCKED", "another driver is already accepting this trip")
	}
	defer func() {
		if rerr := s.kv.ReleaseLock(context.Background(), lockKey(tripID), nonce); rerr != nil {
			s.log.Error(ctx, "release_trip_lock_failed", "Failed to release trip accept lock", rerr, map[string]any{"trip_id": tripID})
		}
	}()

	_ = s.kv.Del(ctx, timeoutKey(tripID))
	if err := s.kv.Set(ctx, acceptingKey(tripID), driverID, acceptingTTL); err != nil {
		return nil, apperr.Internal("mark trip accepting", err)
	}
	_ = s.kv.Set(ctx, noExpireKey(tripID), "1", acceptingTTL)

	e, err := s.getEphemeral(ctx, tripID)
	if err != nil {
		return nil, apperr.NotFound("TRIP_NOT_AVAILABLE", "trip is no longer available")
	}
	if e.Status != trip.StatusSearching {
		if e.DriverID != nil {
			return nil, apperr.Conflict("TRIP_ALREADY_ACCEPTED", "trip was already accepted by another driver")
		}
		return nil, apperr.Precondition("TRIP_NOT_AVAILABLE", "trip is no longer searching for a driver")
	}
	if e.DriverID != nil {
		return nil, apperr.Conflict("TRIP_ALREADY_ACCEPTED", "trip was already accepted by another driver")
	}

	online, err := s.presence.IsOnline(ctx, driverID)
	if err != nil {
		return nil, apperr.Internal("check driver online", err)
	}
	if !online {
		return nil, apperr.Unavailable("DRIVER_OFFLINE", "driver must be online to accept a trip")
	}
	loc, err := s.presence.GetLocation(ctx, driverID)
	if err != nil {
		return nil, apperr.Internal("get driver location", err)
	}
	if loc == nil {
		return nil, apperr.Unavailable("DRIVER_LOCATION_MISSING", "driver has no known location")
	}

	now := time.Now().UTC()
	matchedDriverID := driverID
	e.DriverID = &matchedDriverID
	e.Status = trip.StatusMatched
	e.MatchedAt = &now

	driverLoc := trip.Point{Lat: loc.Latitude, Lng: loc.Longitude}
	durable, err := trip.NewAtMatch(tripID, e.PassengerID, driverID, e.Pickup, e.Dropoff, e.DistanceM, e.DurationS, e.FareEstimate, e.PaymentMethod, driverLoc)
	if err != nil {
		return nil, apperr.Internal("build matched trip", err)
	}

	txErr := s.uow.WithinTx(ctx, func(txCtx context.Context) error {
		if err := s.trips.Create(txCtx, durable); err != nil {
			return err
		}
		ev, err := trip.NewEvent(tripID, trip.EventTripMatched, driverID, map[string]any{
			"passenger_id": e.PassengerID,
		})
		if err != nil {
			return apperr.Internal("build trip matched event", err)
		}
		return s.events.Append(txCtx, ev)
	})
	if txErr != nil {
		return nil, txErr
	}

	if err := s.putEphemeral(ctx, e, matchedTTL); err != nil {
		s.log.Error(ctx, "ephemeral_update_after_match_failed", "Failed to update ephemeral trip after match", err, nil)
	}

	if err := s.linkActiveTrip(ctx, tripID, e.PassengerID, driverID); err != nil {
		s.log.Error(ctx, "active_trip_link_failed", "Failed to write active trip index", err, nil)
	}

	s.notifyMatch(ctx, durable)
	s.notifyLosers(ctx, tripID, driverID)

	_ = s.kv.Del(ctx, acceptingKey(tripID), noExpireKey(tripID))

	s.log.Info(s.log.WithTripID(s.log.WithDriverID(ctx, driverID), tripID), "trip_matched", "Driver accepted trip offer", map[string]any{
		"passenger_id": e.PassengerID,
	})

	return durable, nil
}

func (s *Service) linkActiveTrip(ctx context.Context, tripID, passengerID, driverID string) error {
	ref := trip.ActiveRef{TripID: tripID, PassengerID: passengerID, DriverID: driverID}
	body, err := json.Marshal(ref)
	if err != nil {
		return err
	}
	if err := s.kv.Set(ctx, driverActiveKey(driverID), string(body), matchedTTL); err != nil {
		return err
	}
	return s.kv.Set(ctx, passengerActiveKey(passengerID), string(body), matchedTTL)
}

func (s *Service) notifyMatch(ctx context.Context, t *trip.Trip) {
	now := time.Now().UTC()
	driverAssigned := ports.WireEvent{
		Type: "trip:driver_assigned", TripID: t.ID,
		Payload: map[string]any{
			"trip_id":   t.ID,
			"driver_id": *t.DriverID,
		},
		Timestamp: now,
	}
	if err := s.pub.Publish(ctx, fmt.Sprintf("passenger:%s", t.PassengerID), driverAssigned); err != nil {
		s.log.Error(ctx, "notify_passenger_matched_failed", "Failed to notify passenger of match", err, nil)
	}

	matched := ports.WireEvent{
		Type: "trip:matched", TripID: t.ID,
		Payload: map[string]any{
			"trip_id":      t.ID,
			"passenger_id": t.PassengerID,
			"pickup":       map[string]any{"lat": t.Pickup.Lat, "lng": t.Pickup.Lng, "address": t.Pickup.Address},
			"dropoff":      map[string]any{"lat": t.Dropoff.Lat, "lng": t.Dropoff.Lng, "address": t.Dropoff.Address},
		},
		Timestamp: now,
	}
	if err := s.pub.Publish(ctx, fmt.Sprintf("driver:%s", *t.DriverID), matched); err != nil {
		s.log.Error(ctx, "notify_driver_matched_failed", "Failed to notify driver of match", err, nil)
	}
}

// notifyLosers tells every other driver who was offered this trip that the
// offer has expired, and prunes it from their pending-offers list (§4.2
// "Acceptance race" final bullet).
func (s *Service) notifyLosers(ctx context.Context, tripID, winnerID string) {
	offered, err := s.offeredDrivers(ctx, tripID)
	if err != nil {
		s.log.Error(ctx, "load_offered_drivers_failed", "Failed to load offered drivers for loser notification", err, nil)
		return
	}
	var losers []string
	for _, id := range offered {
		if id != winnerID {
			losers = append(losers, id)
		}
	}
	s.notifyOffersExpired(ctx, tripID, losers)
}
