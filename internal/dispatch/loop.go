package dispatch

import (
	"context"
	"fmt"
	"time"

	"ride-hail/internal/domain/trip"
	"ride-hail/internal/ports"
)

// runOfferLoop drives the wave broadcast of §4.2 "Offer loop" for one
// SEARCHING trip. It is spawned as a detached goroutine from RequestTrip,
// mirroring the teacher's superviseRideMatch: a timer-driven supervisor that
// outlives the HTTP request and owns the trip's match lifecycle end to end.
func (s *Service) runOfferLoop(ctx context.Context, e *trip.Ephemeral) {
	radius := s.dispatch.Dispatch.RadiusKM
	waveTimeout := time.Duration(s.dispatch.Dispatch.WaveTimeoutSeconds) * time.Second

	for wave := 1; wave <= s.dispatch.Dispatch.MaxWaves; wave++ {
		current, err := s.getEphemeral(ctx, e.ID)
		if err != nil {
			s.log.Error(ctx, "offer_loop_lookup_failed", "Failed to reload ephemeral trip mid-loop", err, nil)
			return
		}
		if current.Status != trip.StatusSearching {
			// Already matched, canceled, or expired by another path.
			return
		}

		candidates, err := s.presence.FindNearbyAvailable(ctx, current.Pickup.Lat, current.Pickup.Lng, current.VehicleType, radius, 0)
		if err != nil {
			s.log.Error(ctx, "offer_loop_candidates_failed", "Failed to find nearby drivers", err, map[string]any{"wave": wave})
		}

		declined, _ := s.kv.SMembers(ctx, declinedSetKey(e.ID))
		declinedSet := make(map[string]struct{}, len(declined))
		for _, id := range declined {
			declinedSet[id] = struct{}{}
		}

		offered, _ := s.offeredDrivers(ctx, e.ID)
		offeredThisTrip := make(map[string]struct{}, len(offered))
		for _, id := range offered {
			offeredThisTrip[id] = struct{}{}
		}

		waveCandidates := make([]string, 0, s.dispatch.Dispatch.WaveSize)
		for _, c := range candidates {
			if _, declined := declinedSet[c.DriverID]; declined {
				continue
			}
			if _, already := offeredThisTrip[c.DriverID]; already {
				continue
			}
			waveCandidates = append(waveCandidates, c.DriverID)
			if len(waveCandidates) >= s.dispatch.Dispatch.WaveSize {
				break
			}
		}

		if len(waveCandidates) == 0 {
			radius = nextRadius(radius, s.dispatch.Dispatch.RadiusStepKM, s.dispatch.Dispatch.MaxRadiusKM)
			time.Sleep(waveTimeout)
			continue
		}

		s.broadcastWave(ctx, current, waveCandidates, waveTimeout)

		if err := s.kv.Set(ctx, timeoutKey(e.ID), "1", waveTimeout); err != nil {
			s.log.Error(ctx, "offer_loop_timeout_key_failed", "Failed to set wave timeout key", err, nil)
		}

		resolved := s.waitForWaveResolution(ctx, e.ID, waveTimeout)
		if resolved {
			return
		}

		radius = nextRadius(radius, s.dispatch.Dispatch.RadiusStepKM, s.dispatch.Dispatch.MaxRadiusKM)
	}

	s.exhaustNoDrivers(ctx, e.ID)
}

func nextRadius(current, step, max float64) float64 {
	next := current + step
	if next > max {
		return max
	}
	return next
}

// broadcastWave pushes trip:new_request to every candidate driver's room
// and records the offer in both the per-trip offers index and each
// driver's pending-offers list (§4.2 step 2).
func (s *Service) broadcastWave(ctx context.Context, e *trip.Ephemeral, candidates []string, waveTimeout time.Duration) {
	now := time.Now().UTC()
	ev := ports.WireEvent{
		Type:   "trip:new_request",
		TripID: e.ID,
		Payload: map[string]any{
			"trip_id":      e.ID,
			"pickup":       map[string]any{"lat": e.Pickup.Lat, "lng": e.Pickup.Lng, "address": e.Pickup.Address},
			"dropoff":      map[string]any{"lat": e.Dropoff.Lat, "lng": e.Dropoff.Lng, "address": e.Dropoff.Address},
			"fare_estimate": e.FareEstimate,
			"vehicle_type":  e.VehicleType,
		},
		Timestamp: now,
	}

	for _, driverID := range candidates {
		if err := s.pub.Publish(ctx, fmt.Sprintf("driver:%s", driverID), ev); err != nil {
			s.log.Error(ctx, "offer_publish_failed", "Failed to publish trip offer to driver", err, map[string]any{"driver_id": driverID})
			continue
		}
		if err := s.addPendingOffer(ctx, driverID, e.ID, now.Add(waveTimeout)); err != nil {
			s.log.Error(ctx, "offer_pending_record_failed", "Failed to record pending offer", err, map[string]any{"driver_id": driverID})
		}
	}
	if err := s.recordOffers(ctx, e.ID, candidates); err != nil {
		s.log.Error(ctx, "offer_record_failed", "Failed to record wave offers", err, nil)
	}
}

// waitForWaveResolution polls the ephemeral trip until it leaves SEARCHING
// or the wave timeout elapses. Polling (rather than a channel) is
// deliberate: AcceptOffer runs in a different goroutine, possibly a
// different process entirely, and the only shared state between them is
// the key-value store.
func (s *Service) waitForWaveResolution(ctx context.Context, tripID string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		<-ticker.C
		current, err := s.getEphemeral(ctx, tripID)
		if err != nil {
			// Key gone: canceled, or consumed by some other terminal path.
			return true
		}
		if current.Status != trip.StatusSearching {
			return true
		}
	}
	return false
}

// exhaustNoDrivers transitions the ephemeral trip to NO_DRIVERS once every
// wave has been tried without an acceptance (§4.2 "after max waves").
func (s *Service) exhaustNoDrivers(ctx context.Context, tripID string) {
	e, err := s.getEphemeral(ctx, tripID)
	if err != nil {
		return
	}
	if e.Status != trip.StatusSearching {
		return
	}
	e.Status = trip.StatusNoDrivers
	if err := s.putEphemeral(ctx, e, 60*time.Second); err != nil {
		s.log.Error(ctx, "no_drivers_persist_failed", "Failed to persist NO_DRIVERS status", err, nil)
	}
	_ = s.kv.Del(ctx, passengerActiveKey(e.PassengerID), timeoutKey(tripID))

	ev := ports.WireEvent{
		Type: "trip:no_drivers", TripID: tripID,
		Payload: map[string]any{"trip_id": tripID}, Timestamp: time.Now().UTC(),
	}
	if err := s.pub.Publish(ctx, fmt.Sprintf("passenger:%s", e.PassengerID), ev); err != nil {
		s.log.Error(ctx, "no_drivers_notify_failed", "Failed to notify passenger of NO_DRIVERS", err, nil)
	}
	s.log.Info(s.log.WithTripID(ctx, tripID), "trip_no_drivers", "No drivers accepted after max waves", nil)
}
