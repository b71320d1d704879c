package contracts

// Exchanges
const (
	ExchangeRideTopic      = "ride_topic"
	ExchangeDriverTopic    = "driver_topic"
	ExchangeLocationFanout = "location_fanout"

	// ExchangeEventsFanout carries every ports.WireEvent raised on any
	// dispatch_service instance to every other instance, so a room can be
	// broadcast to regardless of which process holds the socket (§4.4, §5).
	ExchangeEventsFanout = "ride_hail_events"
)

// Queues
const (
	QueueRideRequests        = "ride_requests"
	QueueRideStatus          = "ride_status"
	QueueDriverMatching      = "driver_matching"
	QueueDriverResponses     = "driver_responses"
	QueueDriverStatus        = "driver_status"
	QueueLocationUpdatesRide = "location_updates_ride"
)

// Routing patterns
const (
	RouteRideRequestPrefix  = "ride.request."    // {ride_type}
	RouteRideStatusPrefix   = "ride.status."     // {status}
	RouteDriverRespPrefix   = "driver.response." // {ride_id}
	RouteDriverStatusPrefix = "driver.status."   // {driver_id}
)
