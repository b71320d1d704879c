package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"ride-hail/internal/apperr"
	"ride-hail/internal/domain/trip"
	"ride-hail/internal/general/config"
	"ride-hail/internal/general/logger"
	"ride-hail/internal/kv"
	"ride-hail/internal/ports"

	"github.com/google/uuid"
)

// Service implements ports.DispatchService (§4.2).
type Service struct {
	kv        *kv.Client
	presence  ports.PresenceService
	uow       ports.UnitOfWork
	trips     ports.TripRepository
	events    ports.TripEventRepository
	pub       ports.EventPublisher
	log       *logger.Logger
	dispatch  config.Config
}

// New constructs a dispatch Service. cfg is copied by value so the
// offer-loop goroutines never race the rest of the process over config
// mutation (there is none today, but the copy costs nothing).
func New(
	kvClient *kv.Client,
	presence ports.PresenceService,
	uow ports.UnitOfWork,
	trips ports.TripRepository,
	events ports.TripEventRepository,
	pub ports.EventPublisher,
	log *logger.Logger,
	cfg *config.Config,
) *Service {
	return &Service{
		kv: kvClient, presence: presence, uow: uow, trips: trips,
		events: events, pub: pub, log: log, dispatch: *cfg,
	}
}

var _ ports.DispatchService = (*Service)(nil)

func (s *Service) getEphemeral(ctx context.Context, tripID string) (*trip.Ephemeral, error) {
	raw, err := s.kv.Get(ctx, tripKey(tripID))
	if err != nil {
		return nil, err
	}
	var e trip.Ephemeral
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return nil, apperr.Internal("decode ephemeral trip", err)
	}
	return &e, nil
}

func (s *Service) putEphemeral(ctx context.Context, e *trip.Ephemeral, ttl time.Duration) error {
	body, err := json.Marshal(e)
	if err != nil {
		return apperr.Internal("encode ephemeral trip", err)
	}
	return s.kv.Set(ctx, tripKey(e.ID), string(body), ttl)
}

// RequestTrip creates the ephemeral SEARCHING trip and starts the offer
// loop in the background (§4.2). The loop outlives the inbound request, so
// it runs against context.Background() rather than ctx — matching the
// teacher's superviseRideMatch pattern of detaching match supervision from
// the request lifecycle.
func (s *Service) RequestTrip(ctx context.Context, in ports.RequestTripInput) (ports.RequestTripResult, error) {
	pickup := trip.Point{Lat: in.PickupLat, Lng: in.PickupLng, Address: in.PickupAddress}
	dropoff := trip.Point{Lat: in.DropoffLat, Lng: in.DropoffLng, Address: in.DropoffAddress}
	if !pickup.Valid() || !dropoff.Valid() {
		return ports.RequestTripResult{}, apperr.Validation("INVALID_COORDINATES", "pickup/dropoff coordinates out of range")
	}
	if !in.PaymentMethod.Valid() {
		return ports.RequestTripResult{}, apperr.Validation("INVALID_PAYMENT_METHOD", "unsupported payment method")
	}

	tripID := uuid.NewString()
	now := time.Now().UTC()
	e := &trip.Ephemeral{
		ID: tripID, PassengerID: in.PassengerID, Status: trip.StatusSearching,
		Pickup: pickup, Dropoff: dropoff, DistanceM: in.DistanceM, DurationS: in.DurationS,
		FareEstimate: in.FareEstimate,
		VehicleType:  in.VehicleType, PaymentMethod: in.PaymentMethod,
		CreatedAt: now,
	}

	if err := s.putEphemeral(ctx, e, searchingTTL); err != nil {
		return ports.RequestTripResult{}, apperr.Internal("create ephemeral trip", err)
	}

	ref := trip.ActiveRef{TripID: tripID, PassengerID: in.PassengerID}
	refBody, _ := json.Marshal(ref)
	if err := s.kv.Set(ctx, passengerActiveKey(in.PassengerID), string(refBody), searchingTTL); err != nil {
		return ports.RequestTripResult{}, apperr.Internal("set passenger active trip index", err)
	}

	log := s.log.WithTripID(context.Background(), tripID)
	s.log.Info(s.log.WithTripID(ctx, tripID), "trip_searching", "Trip requested, offer loop starting", map[string]any{
		"passenger_id": in.PassengerID,
	})

	go s.runOfferLoop(log, e)

	return ports.RequestTripResult{TripID: tripID, Status: string(trip.StatusSearching)}, nil
}

// CancelSearch deletes the ephemeral trip, its reverse index and timeout
// key, and notifies any already-notified drivers (§4.2 "Cancellation
// during SEARCHING").
func (s *Service) CancelSearch(ctx context.Context, tripID, passengerID string) error {
	e, err := s.getEphemeral(ctx, tripID)
	if err != nil {
		if err == kv.ErrNotFound {
			return apperr.NotFound("TRIP_NOT_FOUND", "trip not found")
		}
		return apperr.Internal("load ephemeral trip", err)
	}
	if e.PassengerID != passengerID {
		return apperr.Forbidden("ACCESS_DENIED", "only the requesting passenger may cancel a search")
	}
	if e.Status != trip.StatusSearching {
		return apperr.Precondition("TRIP_NOT_SEARCHING", "trip is no longer searching for a driver")
	}

	notified, _ := s.offeredDrivers(ctx, tripID)

	_ = s.kv.Del(ctx, tripKey(tripID), timeoutKey(tripID), passengerActiveKey(passengerID), offersKey(tripID))

	s.notifyOffersExpired(ctx, tripID, notified)
	s.log.Info(s.log.WithTripID(ctx, tripID), "trip_search_canceled", "Passenger canceled search", nil)
	return nil
}

// DeclineOffer records a driver's decline (§4.2 step 5): added to
// trip:declined (excluded from future waves for this trip), removed from
// their own pending-offers list. The current wave's slot for this driver is
// considered resolved; the offer loop does not wait for declines. No
// TripEvent is appended here: the durable trips row, and with it
// trip_events, does not exist yet while a trip is only SEARCHING
// (invariant 2) — the decline lives purely in the ephemeral store.
func (s *Service) DeclineOffer(ctx context.Context, tripID, driverID string) error {
	if err := s.kv.SAdd(ctx, declinedSetKey(tripID), declinedTTL, driverID); err != nil {
		return apperr.Internal("record decline", err)
	}
	if err := s.removePendingOffer(ctx, driverID, tripID); err != nil {
		s.log.Error(ctx, "remove_pending_offer_failed", "Failed to remove pending offer after decline", err, nil)
	}
	return nil
}

func (s *Service) offeredDrivers(ctx context.Context, tripID string) ([]string, error) {
	raw, err := s.kv.Get(ctx, offersKey(tripID))
	if err != nil {
		if err == kv.ErrNotFound {
			return nil, nil
		}
		return nil, err
	}
	var body struct {
		Drivers []string `json:"drivers"`
	}
	if err := json.Unmarshal([]byte(raw), &body); err != nil {
		return nil, err
	}
	return body.Drivers, nil
}

func (s *Service) recordOffers(ctx context.Context, tripID string, wave []string) error {
	existing, _ := s.offeredDrivers(ctx, tripID)
	all := append(existing, wave...)
	body, err := json.Marshal(map[string]any{"drivers": all})
	if err != nil {
		return err
	}
	return s.kv.Set(ctx, offersKey(tripID), string(body), matchedTTL)
}

type pendingOffer struct {
	TripID    string    `json:"trip_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *Service) addPendingOffer(ctx context.Context, driverID, tripID string, expiresAt time.Time) error {
	existing, err := s.pendingOffers(ctx, driverID)
	if err != nil {
		return err
	}
	existing = append(existing, pendingOffer{TripID: tripID, ExpiresAt: expiresAt})
	body, err := json.Marshal(existing)
	if err != nil {
		return err
	}
	return s.kv.Set(ctx, pendingOffersKey(driverID), string(body), pendingOffersTTL)
}

func (s *Service) removePendingOffer(ctx context.Context, driverID, tripID string) error {
	existing, err := s.pendingOffers(ctx, driverID)
	if err != nil {
		return err
	}
	kept := existing[:0]
	for _, o := range existing {
		if o.TripID != tripID {
			kept = append(kept, o)
		}
	}
	if len(kept) == 0 {
		return s.kv.Del(ctx, pendingOffersKey(driverID))
	}
	body, err := json.Marshal(kept)
	if err != nil {
		return err
	}
	return s.kv.Set(ctx, pendingOffersKey(driverID), string(body), pendingOffersTTL)
}

// pendingOffers returns a driver's still-open offers (§4.4 reconnect replay
// depends on this too).
func (s *Service) pendingOffers(ctx context.Context, driverID string) ([]pendingOffer, error) {
	raw, err := s.kv.Get(ctx, pendingOffersKey(driverID))
	if err != nil {
		if err == kv.ErrNotFound {
			return nil, nil
		}
		return nil, err
	}
	var out []pendingOffer
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// PruneOrphanedOffers walks every driver:pending_offers:* key and drops
// entries whose deadline has passed or whose trip:<id> ephemeral record is
// already gone, so a driver who never reconnects to see the expiry event
// does not carry a phantom offer forever (§4.7).
func (s *Service) PruneOrphanedOffers(ctx context.Context) (int, error) {
	keys, err := s.kv.ScanKeys(ctx, "driver:pending_offers:*")
	if err != nil {
		return 0, apperr.Internal("scan pending offer keys", err)
	}

	now := time.Now().UTC()
	pruned := 0
	for _, key := range keys {
		driverID := strings.TrimPrefix(key, "driver:pending_offers:")

		offers, err := s.pendingOffers(ctx, driverID)
		if err != nil {
			s.log.Error(ctx, "cleanup_pending_offers_read_failed", "Failed to read pending offers during sweep", err, map[string]any{"driver_id": driverID})
			continue
		}

		kept := offers[:0]
		for _, o := range offers {
			if now.After(o.ExpiresAt) {
				pruned++
				continue
			}
			if exists, _ := s.kv.Exists(ctx, tripKey(o.TripID)); !exists {
				pruned++
				continue
			}
			kept = append(kept, o)
		}

		if len(kept) == len(offers) {
			continue
		}
		if len(kept) == 0 {
			if err := s.kv.Del(ctx, key); err != nil {
				s.log.Error(ctx, "cleanup_pending_offers_del_failed", "Failed to delete empty pending offers key", err, map[string]any{"driver_id": driverID})
			}
			continue
		}
		body, err := json.Marshal(kept)
		if err != nil {
			continue
		}
		if err := s.kv.Set(ctx, key, string(body), pendingOffersTTL); err != nil {
			s.log.Error(ctx, "cleanup_pending_offers_write_failed", "Failed to rewrite pruned pending offers", err, map[string]any{"driver_id": driverID})
		}
	}

	if pruned > 0 {
		s.log.Info(ctx, "cleanup_orphaned_offers_pruned", "Pruned orphaned pending offers", map[string]any{"count": pruned})
	}
	return pruned, nil
}

func (s *Service) notifyOffersExpired(ctx context.Context, tripID string, driverIDs []string) {
	for _, id := range driverIDs {
		ev := ports.WireEvent{
			Type: "trip:request_expired", TripID: tripID,
			Payload: map[string]any{"trip_id": tripID}, Timestamp: time.Now().UTC(),
		}
		if err := s.pub.Publish(ctx, fmt.Sprintf("driver:%s", id), ev); err != nil {
			s.log.Error(ctx, "notify_offer_expired_failed", "Failed to notify driver of offer expiry", err, map[string]any{"driver_id": id})
		}
		_ = s.removePendingOffer(ctx, id, tripID)
	}
}
