package ports

import (
	"context"
	"time"

	"ride-hail/internal/domain/chat"
	"ride-hail/internal/domain/earning"
	"ride-hail/internal/domain/rating"
	"ride-hail/internal/domain/trip"
)

// ---------------------------------------------------------------------------------------------------------------

// ----- DTOs for Presence Service (C3) -----

// GoOnlineInput is the validated input for a driver coming online.
type GoOnlineInput struct {
	DriverID    string
	Latitude    float64
	Longitude   float64
	VehicleType string
}

// GoOnlineResult confirms the driver is now discoverable by the dispatcher.
type GoOnlineResult struct {
	Status    string `json:"status"` // "online"
	DriverID  string `json:"driver_id"`
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
}

// DriverSessionSummary reports how one online period went, returned by
// GoOffline (§4.1, §4.7). Grounded on the driver_sessions table: one row per
// online period, closed out with its ride count and net earnings the moment
// the driver goes offline.
type DriverSessionSummary struct {
	SessionID      string  `json:"session_id"`
	DurationHours  float64 `json:"duration_hours"`
	RidesCompleted int     `json:"rides_completed"`
	Earnings       int     `json:"earnings"` // XAF
}

// GoOfflineResult confirms the driver has been removed from the geo index.
// Session is nil if the driver had no open session to close (already
// offline, or closed out from under them by the stale presence sweep).
type GoOfflineResult struct {
	Status  string                `json:"status"` // "offline"
	Message string                `json:"message"`
	Session *DriverSessionSummary `json:"session,omitempty"`
}

// UpdateLocationInput is a single location ping from a driver's device.
type UpdateLocationInput struct {
	DriverID       string
	Latitude       float64
	Longitude      float64
	AccuracyMeters *float64
	SpeedKmh       *float64
	HeadingDegrees *float64
}

// NearbyDriver is one candidate returned by a geo-radius search.
type NearbyDriver struct {
	DriverID    string  `json:"driver_id"`
	DistanceKM  float64 `json:"distance_km"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	VehicleType string  `json:"vehicle_type"`
}

// PresenceService implements §4.1: driver online/offline/location state and
// nearby-driver lookups, backed by the ephemeral KV store (C1), with
// online-period summaries kept in the driver_sessions table (C2).
type PresenceService interface {
	GoOnline(ctx context.Context, in GoOnlineInput) (GoOnlineResult, error)
	GoOffline(ctx context.Context, driverID string) (GoOfflineResult, error)
	// RecordSessionRide folds a completed trip's net earnings into the
	// driver's currently-open session (§4.1, called from trip completion).
	RecordSessionRide(ctx context.Context, driverID string, earnings int) error
	UpdateLocation(ctx context.Context, in UpdateLocationInput) error
	MarkAvailable(ctx context.Context, driverID string) error
	MarkUnavailable(ctx context.Context, driverID string) error
	IsOnline(ctx context.Context, driverID string) (bool, error)
	FindNearbyAvailable(ctx context.Context, lat, lng float64, vehicleType string, radiusKM float64, limit int) ([]NearbyDriver, error)
	// GetLocation returns a driver's last known location, or (nil, nil) if
	// it is absent (offline or expired).
	GetLocation(ctx context.Context, driverID string) (*NearbyDriver, error)
	// SweepStalePresence transitions every online driver whose last location
	// update is older than maxAge to offline (§4.1 "lazily via the cleanup
	// job", §4.7 "every 5 min"). Returns the number of drivers swept.
	SweepStalePresence(ctx context.Context, maxAge time.Duration) (int, error)
	// CountAvailable reports the size of drivers:available ∩ drivers:online,
	// used by the admin overview's live dispatch-load metric.
	CountAvailable(ctx context.Context) (int, error)
}

// ---------------------------------------------------------------------------------------------------------------

// ----- DTOs for Dispatcher (C4) -----

// RequestTripInput is the validated input for a passenger requesting a trip.
type RequestTripInput struct {
	PassengerID    string
	PickupLat      float64
	PickupLng      float64
	PickupAddress  string
	DropoffLat     float64
	DropoffLng     float64
	DropoffAddress string
	DistanceM      int
	DurationS      int
	FareEstimate   int
	VehicleType    string
	PaymentMethod  trip.PaymentMethod
}

// RequestTripResult acknowledges an offer loop has started.
type RequestTripResult struct {
	TripID string `json:"trip_id"`
	Status string `json:"status"` // "SEARCHING"
}

// DispatchService implements §4.2: the offer loop, the acceptance race, and
// decline/cancellation handling during SEARCHING.
type DispatchService interface {
	RequestTrip(ctx context.Context, in RequestTripInput) (RequestTripResult, error)
	AcceptOffer(ctx context.Context, tripID, driverID string) (*trip.Trip, error)
	DeclineOffer(ctx context.Context, tripID, driverID string) error
	CancelSearch(ctx context.Context, tripID, passengerID string) error
	// PruneOrphanedOffers scans driver:pending_offers:* for offers whose
	// trip:<id> ephemeral record has already expired or been cleared, and
	// removes them (§4.7: pending-offer keys otherwise outlive their trip).
	PruneOrphanedOffers(ctx context.Context) (int, error)
}

// ---------------------------------------------------------------------------------------------------------------

// ----- DTOs for Trip State Machine (C5) -----

// TripStateService implements §4.3: validated transitions plus the durable
// and ephemeral record updates and TripEvent append that accompany them.
type TripStateService interface {
	DriverEnRoute(ctx context.Context, tripID, driverID string) (*trip.Trip, error)
	DriverArrived(ctx context.Context, tripID, driverID string) (*trip.Trip, error)
	StartTrip(ctx context.Context, tripID, driverID string) (*trip.Trip, error)
	CompleteTrip(ctx context.Context, tripID, driverID string, fareFinal int) (*trip.Trip, error)
	CancelTrip(ctx context.Context, tripID, actorID string, by trip.CanceledBy, reason string) (*trip.Trip, error)
	MarkNoShow(ctx context.Context, tripID, driverID string) (*trip.Trip, error)
	GetTrip(ctx context.Context, tripID string) (*trip.Trip, error)
}

// ---------------------------------------------------------------------------------------------------------------

// ----- DTOs for Event Bus / Socket Gateway (C6) -----

// WireEvent is the canonical envelope delivered to subscribed sessions
// (§6.3) and published to the cross-process bus.
type WireEvent struct {
	Type      string         `json:"type"`
	TripID    string         `json:"trip_id,omitempty"`
	Payload   map[string]any `json:"payload"`
	Timestamp time.Time      `json:"timestamp"`
}

// Gateway is the real-time fan-out boundary: per-connection sessions join
// rooms, and events raised anywhere in the system are broadcast to every
// session in the addressed room, whether the event originated in this
// process or another (bridged over the message bus).
type Gateway interface {
	JoinRoom(ctx context.Context, connectionID, room string) error
	LeaveRoom(ctx context.Context, connectionID, room string) error
	Send(ctx context.Context, connectionID string, ev WireEvent) error
	Broadcast(ctx context.Context, room string, ev WireEvent) error
	ReplayMissed(ctx context.Context, connectionID, userID string, since time.Time) error
}

// EventPublisher is the narrow boundary domain services use to raise wire
// events without depending on the gateway's transport details.
type EventPublisher interface {
	Publish(ctx context.Context, room string, ev WireEvent) error
}

// ---------------------------------------------------------------------------------------------------------------

// ----- DTOs for Earnings Engine (C7) -----

// SettleTripInput carries everything the settlement transaction (§4.5)
// needs about the completed trip.
type SettleTripInput struct {
	TripID        string
	DriverID      string
	PassengerID   string
	GrossFare     int
	City          string
	TripTime      time.Time
	DistanceM     int
	PaymentMethod string
	DriverTier    string
	PickupZone    string
}

// SettleTripResult carries the settled receipt plus whether this call
// actually ran the ten-step settlement or found it already done (§4.5 step
// 1, §8's double-settlement test).
type SettleTripResult struct {
	Receipt          *earning.Receipt
	AlreadyProcessed bool
}

// EarningsService implements §4.5's transactional settlement and exposes
// wallet/receipt read paths for driver earnings summaries.
type EarningsService interface {
	SettleTrip(ctx context.Context, in SettleTripInput) (*SettleTripResult, error)
	GetWalletSummary(ctx context.Context, driverID string) (*WalletSummary, error)
	// RetrySettlement re-runs settlement for a trip that has already
	// reached COMPLETED, using the durable trip row to rebuild the
	// settlement input rather than requiring the caller to resupply it.
	// Safe to call any number of times: it always hits the same
	// UNIQUE(trip_id) idempotency anchor SettleTrip does.
	RetrySettlement(ctx context.Context, tripID string) (*SettleTripResult, error)
}

// WalletSummary is the supplemented driver earnings summary view.
type WalletSummary struct {
	DriverID        string                 `json:"driver_id"`
	Balance         int                    `json:"balance"`
	TotalEarned     int                    `json:"total_earned"`
	TotalCommission int                    `json:"total_commission"`
	TotalBonuses    int                    `json:"total_bonuses"`
	RecentTransactions []RecentTransaction `json:"recent_transactions"`
}

// RecentTransaction is one ledger row surfaced in a wallet summary.
type RecentTransaction struct {
	Type        string    `json:"type"`
	Amount      int       `json:"amount"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// ---------------------------------------------------------------------------------------------------------------

// ----- DTOs for Chat Service (C8) -----

// SendMessageInput is the validated input for sending a trip chat message.
type SendMessageInput struct {
	TripID     string
	FromUserID string
	Text       string
}

// ChatService implements §4.6: messaging gated to live, driver-assigned
// trip states.
type ChatService interface {
	SendMessage(ctx context.Context, in SendMessageInput) (*chat.Message, error)
	ListMessages(ctx context.Context, tripID string) ([]*chat.Message, error)
	MarkRead(ctx context.Context, tripID, recipientID string) (int, error)
}

// ---------------------------------------------------------------------------------------------------------------

// ----- DTOs for Rating Service (§3 Rating, invariant 6) -----

// SubmitRatingInput is the validated input for one side of a trip rating.
type SubmitRatingInput struct {
	TripID  string
	RaterID string
	Stars   int
	Comment string
}

// RatingService implements the post-trip rating flow: a trip must have
// reached COMPLETED before either party may rate the other, and each side
// may rate once per trip (UNIQUE(tripId, ratedBy)).
type RatingService interface {
	SubmitRating(ctx context.Context, in SubmitRatingInput) (*rating.Rating, error)
}

// ---------------------------------------------------------------------------------------------------------------

// ----- DTOs for Admin Dashboard (supplemented) -----

// OverviewMetrics groups all numeric KPIs for the overview.
type OverviewMetrics struct {
	ActiveTrips            int     `json:"active_trips"`
	AvailableDrivers       int     `json:"available_drivers"`
	TotalTripsToday        int     `json:"total_trips_today"`
	TotalRevenueToday      int     `json:"total_revenue_today"`
	AverageWaitTimeMinutes float64 `json:"average_wait_time_minutes"`
	CancellationRate       float64 `json:"cancellation_rate"`
}

// SystemOverviewResult is the top-level response DTO for the admin overview.
type SystemOverviewResult struct {
	Timestamp time.Time       `json:"timestamp"`
	Metrics   OverviewMetrics `json:"metrics"`
}

// AdminService exposes read-only monitoring for administrators.
type AdminService interface {
	GetSystemOverview(ctx context.Context) (SystemOverviewResult, error)
}

// ---------------------------------------------------------------------------------------------------------------

// ----- Lifecycle & Cleanup (C9) -----

// CleanupService implements §4.7: periodic sweeps over stale ephemeral and
// durable state that the rest of the system leaves behind.
type CleanupService interface {
	RunPendingSignupSweep(ctx context.Context, now time.Time) (int, error)
	RunStalePresenceSweep(ctx context.Context, now time.Time) (int, error)
	RunExpiredOfferSweep(ctx context.Context, now time.Time) (int, error)
}
