package tripstate

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ride-hail/internal/apperr"
	"ride-hail/internal/domain/trip"
	"ride-hail/internal/general/logger"
	"ride-hail/internal/kv"
	"ride-hail/internal/ports"
)

const noShowMinWait = 300 * time.Second

// Service implements ports.TripStateService (§4.3): every transition
// validates the predecessor state, updates the durable row, mirrors the
// ephemeral record, appends a TripEvent, and — on terminal transitions —
// releases the driver back to drivers:available and clears the active-trip
// indexes.
type Service struct {
	kv       *kv.Client
	uow      ports.UnitOfWork
	trips    ports.TripRepository
	events   ports.TripEventRepository
	presence ports.PresenceService
	earnings ports.EarningsService
	pub      ports.EventPublisher
	log      *logger.Logger
}

// New constructs a trip state machine Service.
func New(
	kvClient *kv.Client,
	uow ports.UnitOfWork,
	trips ports.TripRepository,
	events ports.TripEventRepository,
	presence ports.PresenceService,
	earnings ports.EarningsService,
	pub ports.EventPublisher,
	log *logger.Logger,
) *Service {
	return &Service{kv: kvClient, uow: uow, trips: trips, events: events, presence: presence, earnings: earnings, pub: pub, log: log}
}

var _ ports.TripStateService = (*Service)(nil)

func (s *Service) GetTrip(ctx context.Context, tripID string) (*trip.Trip, error) {
	var out *trip.Trip
	err := s.uow.WithinTx(ctx, func(txCtx context.Context) error {
		t, err := s.trips.GetByID(txCtx, tripID)
		out = t
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) authorizeDriver(t *trip.Trip, actorID string) error {
	if t.DriverID == nil || *t.DriverID != actorID {
		return apperr.Forbidden("ACCESS_DENIED", "caller is not the assigned driver")
	}
	return nil
}

func (s *Service) authorizePassenger(t *trip.Trip, actorID string) error {
	if t.PassengerID != actorID {
		return apperr.Forbidden("ACCESS_DENIED", "caller is not the trip's passenger")
	}
	return nil
}

// transition validates and applies the status move on a loaded trip object
// (in-memory only; callers persist via the relevant repository Mark* call).
func transition(t *trip.Trip, next trip.Status) error {
	if err := t.Transition(next); err != nil {
		switch err {
		case trip.ErrTerminal:
			return apperr.Precondition("TRIP_TERMINAL", "trip has already reached a terminal state")
		case trip.ErrInvalidTransition:
			return apperr.Precondition("INVALID_TRANSITION", fmt.Sprintf("cannot move trip to %s from its current state", next))
		default:
			return apperr.Internal("apply trip transition", err)
		}
	}
	return nil
}

func (s *Service) mirrorEphemeral(ctx context.Context, t *trip.Trip) {
	raw, err := s.kv.Get(ctx, tripKey(t.ID))
	if err != nil {
		// The ephemeral copy may have already expired (§6.2 TTL 7200s);
		// the durable row is authoritative, so this is not an error.
		return
	}
	var e trip.Ephemeral
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		s.log.Error(ctx, "ephemeral_mirror_decode_failed", "Failed to decode ephemeral trip for mirroring", err, nil)
		return
	}
	e.Status = t.Status
	body, err := json.Marshal(e)
	if err != nil {
		return
	}
	_ = s.kv.Set(ctx, tripKey(t.ID), string(body), matchedTTL)
}

// releaseDriver runs on every terminal transition (§4.3 step 5): the
// driver returns to drivers:available and both active-trip indexes are
// cleared.
func (s *Service) releaseDriver(ctx context.Context, t *trip.Trip) {
	if t.DriverID == nil {
		return
	}
	_ = s.kv.Del(ctx, driverActiveKey(*t.DriverID), passengerActiveKey(t.PassengerID))
	if err := s.presence.MarkAvailable(ctx, *t.DriverID); err != nil {
		s.log.Error(ctx, "release_driver_failed", "Failed to mark driver available after terminal transition", err, map[string]any{"driver_id": *t.DriverID})
	}
}

func (s *Service) appendEvent(ctx context.Context, tripID string, typ trip.EventType, by string, meta map[string]any) error {
	ev, err := trip.NewEvent(tripID, typ, by, meta)
	if err != nil {
		return apperr.Internal("build trip event", err)
	}
	return s.events.Append(ctx, ev)
}

func (s *Service) notify(ctx context.Context, room, eventType, tripID string, payload map[string]any) {
	ev := ports.WireEvent{Type: eventType, TripID: tripID, Payload: payload, Timestamp: time.Now().UTC()}
	if err := s.pub.Publish(ctx, room, ev); err != nil {
		s.log.Error(ctx, "trip_state_notify_failed", "Failed to publish trip state event", err, map[string]any{"room": room, "event": eventType})
	}
}

// DriverEnRoute moves MATCHED → DRIVER_EN_ROUTE.
func (s *Service) DriverEnRoute(ctx context.Context, tripID, driverID string) (*trip.Trip, error) {
	var out *trip.Trip
	err := s.uow.WithinTx(ctx, func(txCtx context.Context) error {
		t, err := s.trips.GetByID(txCtx, tripID)
		if err != nil {
			return err
		}
		if err := s.authorizeDriver(t, driverID); err != nil {
			return err
		}
		if err := transition(t, trip.StatusDriverEnRoute); err != nil {
			return err
		}
		if err := s.trips.MarkEnRoute(txCtx, tripID, t.UpdatedAt); err != nil {
			return err
		}
		if err := s.appendEvent(txCtx, tripID, trip.EventDriverEnRoute, driverID, nil); err != nil {
			return err
		}
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.mirrorEphemeral(ctx, out)
	s.notify(ctx, fmt.Sprintf("passenger:%s", out.PassengerID), "trip:state_sync", tripID, map[string]any{"status": string(out.Status)})
	s.log.Info(s.log.WithTripID(s.log.WithDriverID(ctx, driverID), tripID), "trip_driver_en_route", "Driver en route to pickup", nil)
	return out, nil
}

// DriverArrived moves {MATCHED, DRIVER_ASSIGNED, DRIVER_EN_ROUTE} → DRIVER_ARRIVED.
func (s *Service) DriverArrived(ctx context.Context, tripID, driverID string) (*trip.Trip, error) {
	var out *trip.Trip
	err := s.uow.WithinTx(ctx, func(txCtx context.Context) error {
		t, err := s.trips.GetByID(txCtx, tripID)
		if err != nil {
			return err
		}
		if err := s.authorizeDriver(t, driverID); err != nil {
			return err
		}
		if err := transition(t, trip.StatusDriverArrived); err != nil {
			return err
		}
		if err := s.trips.MarkArrived(txCtx, tripID, t.UpdatedAt); err != nil {
			return err
		}
		if err := s.appendEvent(txCtx, tripID, trip.EventDriverArrived, driverID, nil); err != nil {
			return err
		}
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.mirrorEphemeral(ctx, out)
	s.notify(ctx, fmt.Sprintf("passenger:%s", out.PassengerID), "trip:driver_arrived", tripID, map[string]any{"trip_id": tripID})
	s.log.Info(s.log.WithTripID(s.log.WithDriverID(ctx, driverID), tripID), "trip_driver_arrived", "Driver arrived at pickup", nil)
	return out, nil
}

// StartTrip moves DRIVER_ARRIVED → IN_PROGRESS.
func (s *Service) StartTrip(ctx context.Context, tripID, driverID string) (*trip.Trip, error) {
	var out *trip.Trip
	err := s.uow.WithinTx(ctx, func(txCtx context.Context) error {
		t, err := s.trips.GetByID(txCtx, tripID)
		if err != nil {
			return err
		}
		if err := s.authorizeDriver(t, driverID); err != nil {
			return err
		}
		if err := transition(t, trip.StatusInProgress); err != nil {
			return err
		}
		if err := s.trips.MarkStarted(txCtx, tripID, t.UpdatedAt); err != nil {
			return err
		}
		if err := s.appendEvent(txCtx, tripID, trip.EventTripStarted, driverID, nil); err != nil {
			return err
		}
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.mirrorEphemeral(ctx, out)
	s.notify(ctx, fmt.Sprintf("passenger:%s", out.PassengerID), "trip:started", tripID, map[string]any{"trip_id": tripID})
	s.log.Info(s.log.WithTripID(s.log.WithDriverID(ctx, driverID), tripID), "trip_started", "Trip started", nil)
	return out, nil
}

// CompleteTrip moves IN_PROGRESS → COMPLETED and synchronously triggers the
// earnings engine within the same database transaction that writes
// tripCompletedAt (§4.5 "Trigger").
func (s *Service) CompleteTrip(ctx context.Context, tripID, driverID string, fareFinal int) (*trip.Trip, error) {
	var out *trip.Trip
	var settledNet int
	err := s.uow.WithinTx(ctx, func(txCtx context.Context) error {
		t, err := s.trips.GetByID(txCtx, tripID)
		if err != nil {
			return err
		}
		if err := s.authorizeDriver(t, driverID); err != nil {
			return err
		}
		if err := transition(t, trip.StatusCompleted); err != nil {
			return err
		}
		if err := s.trips.MarkCompleted(txCtx, tripID, fareFinal, t.UpdatedAt); err != nil {
			return err
		}
		if err := s.appendEvent(txCtx, tripID, trip.EventTripCompleted, driverID, map[string]any{"fare_final": fareFinal}); err != nil {
			return err
		}

		gross := fareFinal
		if gross <= 0 {
			gross = t.FareEstimate
		}
		settlement, err := s.earnings.SettleTrip(txCtx, ports.SettleTripInput{
			TripID:        tripID,
			DriverID:      driverID,
			PassengerID:   t.PassengerID,
			GrossFare:     gross,
			City:          t.Pickup.Address,
			TripTime:      t.UpdatedAt,
			DistanceM:     t.DistanceM,
			PaymentMethod: string(t.PaymentMethod),
			PickupZone:    t.Pickup.Address,
		})
		if err != nil {
			return err
		}
		settledNet = settlement.Receipt.DriverNet

		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.mirrorEphemeral(ctx, out)
	s.releaseDriver(ctx, out)
	if err := s.presence.RecordSessionRide(ctx, driverID, settledNet); err != nil {
		s.log.Error(ctx, "session_ride_record_failed", "Failed to fold completed trip into driver session totals", err, map[string]any{"trip_id": tripID, "driver_id": driverID})
	}
	s.notify(ctx, fmt.Sprintf("passenger:%s", out.PassengerID), "trip:completed", tripID, map[string]any{
		"trip_id": tripID, "fare_final": fareFinal,
	})
	s.log.Info(s.log.WithTripID(s.log.WithDriverID(ctx, driverID), tripID), "trip_completed", "Trip completed and settled", map[string]any{"fare_final": fareFinal})
	return out, nil
}

// CancelTrip moves a cancelable state to CANCELED. Passenger cancellation
// is honored from SEARCHING-adjacent durable states (MATCHED, DRIVER_EN_ROUTE,
// DRIVER_ARRIVED — SEARCHING itself has no durable row, see
// internal/dispatch.CancelSearch); driver cancellation is restricted to the
// same set per §5's concurrency model. IN_PROGRESS is not cancelable by
// either actor — only the transition table of §4.3 permits CANCELED, and it
// omits IN_PROGRESS as a predecessor.
func (s *Service) CancelTrip(ctx context.Context, tripID, actorID string, by trip.CanceledBy, reason string) (*trip.Trip, error) {
	var out *trip.Trip
	err := s.uow.WithinTx(ctx, func(txCtx context.Context) error {
		t, err := s.trips.GetByID(txCtx, tripID)
		if err != nil {
			return err
		}
		switch by {
		case trip.CanceledByDriver:
			if err := s.authorizeDriver(t, actorID); err != nil {
				return err
			}
		case trip.CanceledByPassenger:
			if err := s.authorizePassenger(t, actorID); err != nil {
				return err
			}
		}
		if err := transition(t, trip.StatusCanceled); err != nil {
			return err
		}
		if err := s.trips.MarkCanceled(txCtx, tripID, reason, by, t.UpdatedAt); err != nil {
			return err
		}
		return s.appendEvent(txCtx, tripID, trip.EventTripCanceled, actorID, map[string]any{"reason": reason, "by": string(by)})
	})
	if err != nil {
		return nil, err
	}
	_ = s.uow.WithinTx(ctx, func(txCtx context.Context) error {
		out, _ = s.trips.GetByID(txCtx, tripID)
		return nil
	})
	if out == nil {
		return nil, apperr.Internal("reload canceled trip", nil)
	}
	s.mirrorEphemeral(ctx, out)
	s.releaseDriver(ctx, out)
	payload := map[string]any{"trip_id": tripID, "reason": reason, "canceled_by": string(by)}
	s.notify(ctx, fmt.Sprintf("passenger:%s", out.PassengerID), "trip:canceled", tripID, payload)
	if out.DriverID != nil {
		s.notify(ctx, fmt.Sprintf("driver:%s", *out.DriverID), "trip:canceled", tripID, payload)
	}
	s.log.Info(s.log.WithTripID(ctx, tripID), "trip_canceled", "Trip canceled", map[string]any{"by": string(by), "reason": reason})
	return out, nil
}

// MarkNoShow moves DRIVER_ARRIVED → NO_SHOW, only legal once the driver has
// waited at least 300s since arrivedAt (§4.3, boundary behavior in §8:
// 299 rejected, 300 accepted).
func (s *Service) MarkNoShow(ctx context.Context, tripID, driverID string) (*trip.Trip, error) {
	var out *trip.Trip
	err := s.uow.WithinTx(ctx, func(txCtx context.Context) error {
		t, err := s.trips.GetByID(txCtx, tripID)
		if err != nil {
			return err
		}
		if err := s.authorizeDriver(t, driverID); err != nil {
			return err
		}
		if t.DriverArrivedAt == nil {
			return apperr.Precondition("NOT_ARRIVED", "driver has not marked arrival for this trip")
		}
		waited := time.Since(*t.DriverArrivedAt)
		if waited < noShowMinWait {
			return apperr.Precondition("WAIT_TIME_NOT_ELAPSED", "driver must wait at least 300s after arrival before reporting a no-show")
		}
		if err := transition(t, trip.StatusNoShow); err != nil {
			return err
		}
		if err := s.trips.MarkNoShow(txCtx, tripID, t.UpdatedAt); err != nil {
			return err
		}
		if err := s.appendEvent(txCtx, tripID, trip.EventTripNoShow, driverID, nil); err != nil {
			return err
		}
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.mirrorEphemeral(ctx, out)
	s.releaseDriver(ctx, out)
	s.notify(ctx, fmt.Sprintf("passenger:%s", out.PassengerID), "trip:no_show", tripID, map[string]any{"trip_id": tripID})
	s.log.Info(s.log.WithTripID(s.log.WithDriverID(ctx, driverID), tripID), "trip_no_show", "Driver reported passenger no-show", nil)
	return out, nil
}
