package presence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"ride-hail/internal/apperr"
	"ride-hail/internal/domain/trip"
	"ride-hail/internal/general/logger"
	"ride-hail/internal/kv"
	"ride-hail/internal/ports"

	"github.com/redis/go-redis/v9"
)

// Service implements ports.PresenceService (§4.1) against the C1 key-value
// store for liveness, plus the durable driver_sessions table (C2) for the
// online-period summary returned by GoOffline (§4.1, §4.7).
type Service struct {
	kv       *kv.Client
	uow      ports.UnitOfWork
	sessions ports.DriverSessionRepository
	pub      ports.EventPublisher
	log      *logger.Logger
}

// New constructs a presence Service.
func New(kvClient *kv.Client, uow ports.UnitOfWork, sessions ports.DriverSessionRepository, pub ports.EventPublisher, log *logger.Logger) *Service {
	return &Service{kv: kvClient, uow: uow, sessions: sessions, pub: pub, log: log}
}

var _ ports.PresenceService = (*Service)(nil)

func validateCoords(lat, lng float64) error {
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return apperr.Validation("INVALID_COORDINATES", "latitude/longitude out of range")
	}
	return nil
}

// GoOnline adds the driver to the geo index, the online and available
// sets, and writes its metadata/location hashes — all in one atomic
// pipeline (§5: "manipulated with atomic multi-command batches").
func (s *Service) GoOnline(ctx context.Context, in ports.GoOnlineInput) (ports.GoOnlineResult, error) {
	if err := validateCoords(in.Latitude, in.Longitude); err != nil {
		return ports.GoOnlineResult{}, err
	}

	now := time.Now().UTC()
	meta, err := json.Marshal(map[string]any{
		"vehicle_type": in.VehicleType,
		"updated_at":   now.Format(time.RFC3339),
	})
	if err != nil {
		return ports.GoOnlineResult{}, apperr.Internal("marshal driver metadata", err)
	}

	err = s.kv.Pipeline(ctx, func(pipe redis.Pipeliner) error {
		pipe.GeoAdd(ctx, geoIndexKey, &redis.GeoLocation{
			Name: in.DriverID, Longitude: in.Longitude, Latitude: in.Latitude,
		})
		pipe.SAdd(ctx, onlineSetKey, in.DriverID)
		pipe.SAdd(ctx, availableSetKey, in.DriverID)
		pipe.Set(ctx, onlineFlagKey(in.DriverID), "1", onlineFlagTTLSeconds*time.Second)
		pipe.Set(ctx, metadataKey(in.DriverID), string(meta), metadataTTLSeconds*time.Second)
		pipe.HSet(ctx, locationKey(in.DriverID), map[string]any{
			"lat": in.Latitude, "lng": in.Longitude,
			"heading": 0.0, "speed": 0.0, "accuracy": 0.0,
			"timestamp": now.Unix(),
		})
		pipe.Expire(ctx, locationKey(in.DriverID), locationTTLSeconds*time.Second)
		return nil
	})
	if err != nil {
		return ports.GoOnlineResult{}, apperr.Internal("go online", err)
	}

	var sessionID string
	err = s.uow.WithinTx(ctx, func(txCtx context.Context) error {
		id, err := s.sessions.Start(txCtx, in.DriverID)
		if err != nil {
			return err
		}
		sessionID = id
		return nil
	})
	if err != nil {
		return ports.GoOnlineResult{}, apperr.Internal("start driver session", err)
	}

	s.log.Info(s.log.WithDriverID(ctx, in.DriverID), "driver_online", "Driver came online", map[string]any{
		"lat": in.Latitude, "lng": in.Longitude, "session_id": sessionID,
	})

	return ports.GoOnlineResult{
		Status:    "online",
		DriverID:  in.DriverID,
		Message:   "driver is now online and discoverable",
		SessionID: sessionID,
	}, nil
}

// GoOffline removes the driver from the geo index and both sets, and
// deletes its hashes. It never touches Account.status (§4.1).
func (s *Service) GoOffline(ctx context.Context, driverID string) (ports.GoOfflineResult, error) {
	err := s.kv.Pipeline(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, geoIndexKey, driverID)
		pipe.SRem(ctx, onlineSetKey, driverID)
		pipe.SRem(ctx, availableSetKey, driverID)
		pipe.Del(ctx, onlineFlagKey(driverID))
		pipe.Del(ctx, metadataKey(driverID))
		pipe.Del(ctx, locationKey(driverID))
		return nil
	})
	if err != nil {
		return ports.GoOfflineResult{}, apperr.Internal("go offline", err)
	}

	var summary *ports.DriverSessionSummary
	err = s.uow.WithinTx(ctx, func(txCtx context.Context) error {
		active, err := s.sessions.GetActiveForDriver(txCtx, driverID)
		if err != nil {
			// no open session is not fatal — a driver can go offline twice,
			// or the session may already have been closed by the stale
			// presence sweep.
			return nil
		}
		closed, err := s.sessions.End(txCtx, active.ID)
		if err != nil {
			return err
		}
		summary = &ports.DriverSessionSummary{
			SessionID:      closed.ID,
			DurationHours:  closed.Duration().Hours(),
			RidesCompleted: closed.TotalRides,
			Earnings:       closed.TotalEarnings,
		}
		return nil
	})
	if err != nil {
		return ports.GoOfflineResult{}, apperr.Internal("end driver session", err)
	}

	s.log.Info(s.log.WithDriverID(ctx, driverID), "driver_offline", "Driver went offline", map[string]any{
		"session_summary": summary,
	})

	return ports.GoOfflineResult{Status: "offline", Message: "driver removed from dispatch", Session: summary}, nil
}

// RecordSessionRide folds one just-completed trip's net earnings into the
// driver's currently-open session, called by trip completion once
// settlement succeeds (§4.5 -> §4.1). A no-op if the driver has no open
// session — e.g. the sweep already closed it out from under them.
func (s *Service) RecordSessionRide(ctx context.Context, driverID string, earnings int) error {
	return s.uow.WithinTx(ctx, func(txCtx context.Context) error {
		active, err := s.sessions.GetActiveForDriver(txCtx, driverID)
		if err != nil {
			return nil
		}
		return s.sessions.IncrementCounters(txCtx, active.ID, earnings)
	})
}

// UpdateLocation is accepted only while the driver is online; writes are
// idempotent. If the driver currently has an active trip, the new position
// is also pushed to the passenger's channel (§4.1).
func (s *Service) UpdateLocation(ctx context.Context, in ports.UpdateLocationInput) error {
	online, err := s.IsOnline(ctx, in.DriverID)
	if err != nil {
		return err
	}
	if !online {
		return apperr.Unavailable("DRIVER_OFFLINE", "driver is not online")
	}
	if err := validateCoords(in.Latitude, in.Longitude); err != nil {
		return err
	}

	now := time.Now().UTC()
	fields := map[string]any{
		"lat": in.Latitude, "lng": in.Longitude, "timestamp": now.Unix(),
	}
	if in.HeadingDegrees != nil {
		fields["heading"] = *in.HeadingDegrees
	}
	if in.SpeedKmh != nil {
		fields["speed"] = *in.SpeedKmh
	}
	if in.AccuracyMeters != nil {
		fields["accuracy"] = *in.AccuracyMeters
	}

	err = s.kv.Pipeline(ctx, func(pipe redis.Pipeliner) error {
		pipe.GeoAdd(ctx, geoIndexKey, &redis.GeoLocation{
			Name: in.DriverID, Longitude: in.Longitude, Latitude: in.Latitude,
		})
		pipe.HSet(ctx, locationKey(in.DriverID), fields)
		pipe.Expire(ctx, locationKey(in.DriverID), locationTTLSeconds*time.Second)
		return nil
	})
	if err != nil {
		return apperr.Internal("update location", err)
	}

	s.pushToActivePassenger(ctx, in)
	return nil
}

// pushToActivePassenger emits driver:location_update to the passenger's
// channel when this driver currently holds an active trip. Failure to push
// is logged but never fails the location update itself — it is a
// best-effort broadcast, not part of location state.
func (s *Service) pushToActivePassenger(ctx context.Context, in ports.UpdateLocationInput) {
	raw, err := s.kv.Get(ctx, activeTripKey(in.DriverID))
	if errors.Is(err, kv.ErrNotFound) {
		return
	}
	if err != nil {
		s.log.Error(ctx, "presence_active_trip_lookup_failed", "Failed to look up active trip for location push", err, nil)
		return
	}

	var ref trip.ActiveRef
	if err := json.Unmarshal([]byte(raw), &ref); err != nil {
		s.log.Error(ctx, "presence_active_trip_decode_failed", "Failed to decode active trip ref", err, nil)
		return
	}

	ev := ports.WireEvent{
		Type:   "driver:location_update",
		TripID: ref.TripID,
		Payload: map[string]any{
			"driver_id": in.DriverID,
			"latitude":  in.Latitude,
			"longitude": in.Longitude,
		},
		Timestamp: time.Now().UTC(),
	}
	if err := s.pub.Publish(ctx, fmt.Sprintf("passenger:%s", ref.PassengerID), ev); err != nil {
		s.log.Error(ctx, "presence_location_push_failed", "Failed to push location update to passenger", err, nil)
	}
}

func (s *Service) MarkAvailable(ctx context.Context, driverID string) error {
	if err := s.kv.SAdd(ctx, availableSetKey, 0, driverID); err != nil {
		return apperr.Internal("mark driver available", err)
	}
	return nil
}

func (s *Service) MarkUnavailable(ctx context.Context, driverID string) error {
	if err := s.kv.SRem(ctx, availableSetKey, driverID); err != nil {
		return apperr.Internal("mark driver unavailable", err)
	}
	return nil
}

// CountAvailable reports how many drivers are both online and available.
func (s *Service) CountAvailable(ctx context.Context) (int, error) {
	eligible, err := s.kv.SInter(ctx, availableSetKey, onlineSetKey)
	if err != nil {
		return 0, apperr.Internal("count available drivers", err)
	}
	return len(eligible), nil
}

func (s *Service) IsOnline(ctx context.Context, driverID string) (bool, error) {
	exists, err := s.kv.Exists(ctx, onlineFlagKey(driverID))
	if err != nil {
		return false, apperr.Internal("check driver online", err)
	}
	return exists, nil
}

// FindNearbyAvailable returns drivers ∩ (drivers:available, drivers:online)
// within radiusKM of (lat,lng), sorted ascending by distance (§4.1).
func (s *Service) FindNearbyAvailable(ctx context.Context, lat, lng float64, vehicleType string, radiusKM float64, limit int) ([]ports.NearbyDriver, error) {
	eligible, err := s.kv.SInter(ctx, availableSetKey, onlineSetKey)
	if err != nil {
		return nil, apperr.Internal("intersect available/online drivers", err)
	}
	if len(eligible) == 0 {
		return nil, nil
	}
	eligibleSet := make(map[string]struct{}, len(eligible))
	for _, id := range eligible {
		eligibleSet[id] = struct{}{}
	}

	// Over-fetch from the geo index since GEORADIUS has no native
	// intersect-with-another-set operator, then filter and re-sort.
	fetchLimit := 0
	if limit > 0 {
		fetchLimit = limit * 4
	}
	nearby, err := s.kv.GeoSearchRadius(ctx, geoIndexKey, lat, lng, radiusKM, fetchLimit)
	if err != nil {
		return nil, apperr.Internal("geo radius search", err)
	}

	out := make([]ports.NearbyDriver, 0, len(nearby))
	for _, n := range nearby {
		if _, ok := eligibleSet[n.DriverID]; !ok {
			continue
		}
		vt, driverLat, driverLng, err := s.driverMeta(ctx, n.DriverID)
		if err != nil {
			continue
		}
		if vehicleType != "" && vt != "" && vt != vehicleType {
			continue
		}
		out = append(out, ports.NearbyDriver{
			DriverID:    n.DriverID,
			DistanceKM:  n.DistanceKM,
			Latitude:    driverLat,
			Longitude:   driverLng,
			VehicleType: vt,
		})
		if limit > 0 && len(out) >= limit {
			break
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].DistanceKM < out[j].DistanceKM })
	return out, nil
}

// SweepStalePresence walks drivers:online and offlines anyone whose location
// hash has not been refreshed within maxAge — a driver's app can die without
// ever sending goOffline, leaving the online flag to expire naturally but the
// geo/available entries to linger past that (§4.7 "stale presence sweep").
func (s *Service) SweepStalePresence(ctx context.Context, maxAge time.Duration) (int, error) {
	ids, err := s.kv.SMembers(ctx, onlineSetKey)
	if err != nil {
		return 0, apperr.Internal("list online drivers", err)
	}

	cutoff := time.Now().UTC().Add(-maxAge)
	swept := 0
	for _, driverID := range ids {
		hash, err := s.kv.HGetAll(ctx, locationKey(driverID))
		if errors.Is(err, kv.ErrNotFound) {
			if _, offErr := s.GoOffline(ctx, driverID); offErr != nil {
				s.log.Error(ctx, "presence_sweep_offline_failed", "Failed to offline driver with no location", offErr, map[string]any{"driver_id": driverID})
				continue
			}
			swept++
			continue
		}
		if err != nil {
			s.log.Error(ctx, "presence_sweep_lookup_failed", "Failed to read location during sweep", err, map[string]any{"driver_id": driverID})
			continue
		}

		var ts int64
		_, _ = fmt.Sscanf(hash["timestamp"], "%d", &ts)
		if ts == 0 || time.Unix(ts, 0).UTC().Before(cutoff) {
			if _, offErr := s.GoOffline(ctx, driverID); offErr != nil {
				s.log.Error(ctx, "presence_sweep_offline_failed", "Failed to offline stale driver", offErr, map[string]any{"driver_id": driverID})
				continue
			}
			swept++
		}
	}

	if swept > 0 {
		s.log.Info(ctx, "presence_sweep_complete", "Stale presence sweep offlined drivers", map[string]any{"count": swept})
	}
	return swept, nil
}

func (s *Service) driverMeta(ctx context.Context, driverID string) (vehicleType string, lat, lng float64, err error) {
	hash, herr := s.kv.HGetAll(ctx, locationKey(driverID))
	if herr != nil {
		return "", 0, 0, herr
	}
	lat = parseFloat(hash["lat"])
	lng = parseFloat(hash["lng"])

	raw, merr := s.kv.Get(ctx, metadataKey(driverID))
	if merr == nil {
		var meta struct {
			VehicleType string `json:"vehicle_type"`
		}
		if json.Unmarshal([]byte(raw), &meta) == nil {
			vehicleType = meta.VehicleType
		}
	}
	return vehicleType, lat, lng, nil
}

func parseFloat(s string) float64 {
	var f float64
	_, _ = fmt.Sscanf(s, "%g", &f)
	return f
}

// GetLocation returns a driver's last known location, used by reconnect
// replay and the admin dashboard. Returns (nil, nil) if the driver has no
// current location (offline or expired).
func (s *Service) GetLocation(ctx context.Context, driverID string) (*ports.NearbyDriver, error) {
	hash, err := s.kv.HGetAll(ctx, locationKey(driverID))
	if errors.Is(err, kv.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Internal("get driver location", err)
	}
	vt, _, _, _ := s.driverMeta(ctx, driverID)
	return &ports.NearbyDriver{
		DriverID:    driverID,
		Latitude:    parseFloat(hash["lat"]),
		Longitude:   parseFloat(hash["lng"]),
		VehicleType: vt,
	}, nil
}
