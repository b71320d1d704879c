package eventbus

import (
	"context"
	"encoding/json"

	"ride-hail/internal/apperr"
	"ride-hail/internal/domain/trip"
	"ride-hail/internal/ports"
)

// handleDriverMessage routes one inbound driver→server wire event (§6.3).
// Each case decodes its own payload shape and writes an ack or a
// structured error back to the same connection — grounded on the teacher's
// per-type switch in internal/general/websocket/upgrader.go's read loop.
func (srv *Server) handleDriverMessage(ctx context.Context, s *session, driverID, msgType string, data json.RawMessage) {
	switch msgType {
	case "driver:online":
		var p struct {
			Latitude, Longitude float64
			VehicleType         string `json:"vehicle_type"`
		}
		if err := json.Unmarshal(data, &p); err != nil {
			srv.ackError(s, msgType, "bad driver:online payload")
			return
		}
		res, err := srv.presence.GoOnline(ctx, ports.GoOnlineInput{
			DriverID: driverID, Latitude: p.Latitude, Longitude: p.Longitude, VehicleType: p.VehicleType,
		})
		srv.ackOrError(s, msgType, res, err)

	case "driver:offline":
		res, err := srv.presence.GoOffline(ctx, driverID)
		srv.ackOrError(s, msgType, res, err)

	case "driver:location":
		var p struct {
			Latitude       float64  `json:"latitude"`
			Longitude      float64  `json:"longitude"`
			AccuracyMeters *float64 `json:"accuracy_meters,omitempty"`
			SpeedKmh       *float64 `json:"speed_kmh,omitempty"`
			HeadingDegrees *float64 `json:"heading_degrees,omitempty"`
		}
		if err := json.Unmarshal(data, &p); err != nil {
			srv.ackError(s, msgType, "bad driver:location payload")
			return
		}
		err := srv.presence.UpdateLocation(ctx, ports.UpdateLocationInput{
			DriverID: driverID, Latitude: p.Latitude, Longitude: p.Longitude,
			AccuracyMeters: p.AccuracyMeters, SpeedKmh: p.SpeedKmh, HeadingDegrees: p.HeadingDegrees,
		})
		srv.ackOrError(s, msgType, nil, err)

	case "trip:accept":
		tripID, ok := decodeTripID(s, msgType, data)
		if !ok {
			return
		}
		t, err := srv.dispatch.AcceptOffer(ctx, tripID, driverID)
		srv.ackOrError(s, msgType, t, err)

	case "trip:decline":
		tripID, ok := decodeTripID(s, msgType, data)
		if !ok {
			return
		}
		err := srv.dispatch.DeclineOffer(ctx, tripID, driverID)
		srv.ackOrError(s, msgType, nil, err)

	case "driver:en_route":
		tripID, ok := decodeTripID(s, msgType, data)
		if !ok {
			return
		}
		t, err := srv.tripstate.DriverEnRoute(ctx, tripID, driverID)
		srv.ackOrError(s, msgType, t, err)

	case "driver:arrived":
		tripID, ok := decodeTripID(s, msgType, data)
		if !ok {
			return
		}
		t, err := srv.tripstate.DriverArrived(ctx, tripID, driverID)
		srv.ackOrError(s, msgType, t, err)

	case "trip:start":
		tripID, ok := decodeTripID(s, msgType, data)
		if !ok {
			return
		}
		t, err := srv.tripstate.StartTrip(ctx, tripID, driverID)
		srv.ackOrError(s, msgType, t, err)

	case "trip:complete":
		var p struct {
			TripID    string `json:"trip_id"`
			FinalFare *int   `json:"final_fare,omitempty"`
		}
		if err := json.Unmarshal(data, &p); err != nil || p.TripID == "" {
			srv.ackError(s, msgType, "bad trip:complete payload")
			return
		}
		fare := 0
		if p.FinalFare != nil {
			fare = *p.FinalFare
		}
		t, err := srv.tripstate.CompleteTrip(ctx, p.TripID, driverID, fare)
		srv.ackOrError(s, msgType, t, err)

	case "trip:cancel":
		var p struct {
			TripID string `json:"trip_id"`
			Reason string `json:"reason"`
		}
		if err := json.Unmarshal(data, &p); err != nil || p.TripID == "" {
			srv.ackError(s, msgType, "bad trip:cancel payload")
			return
		}
		t, err := srv.tripstate.CancelTrip(ctx, p.TripID, driverID, trip.CanceledByDriver, p.Reason)
		srv.ackOrError(s, msgType, t, err)

	case "trip:no_show":
		tripID, ok := decodeTripID(s, msgType, data)
		if !ok {
			return
		}
		t, err := srv.tripstate.MarkNoShow(ctx, tripID, driverID)
		srv.ackOrError(s, msgType, t, err)

	case "chat:send":
		srv.handleChatSend(ctx, s, driverID, data)
	case "chat:typing":
		srv.handleChatTyping(ctx, s, driverID, data)
	case "chat:mark_read":
		srv.handleChatMarkRead(ctx, s, driverID, data)

	default:
		srv.ackError(s, msgType, "unknown message type")
	}
}

// handlePassengerMessage routes passenger→server wire events (§6.3).
func (srv *Server) handlePassengerMessage(ctx context.Context, s *session, passengerID, msgType string, data json.RawMessage) {
	switch msgType {
	case "trip:request":
		var p struct {
			Pickup struct {
				Lat, Lng float64
				Address  string
			} `json:"pickup"`
			Dropoff struct {
				Lat, Lng float64
				Address  string
			} `json:"dropoff"`
			DistanceM     int    `json:"distanceM"`
			DurationS     int    `json:"durationS"`
			PaymentMethod string `json:"paymentMethod"`
			FareEstimate  int    `json:"fareEstimate"`
			VehicleType   string `json:"vehicle_type"`
		}
		if err := json.Unmarshal(data, &p); err != nil {
			srv.ackError(s, msgType, "bad trip:request payload")
			return
		}
		res, err := srv.dispatch.RequestTrip(ctx, ports.RequestTripInput{
			PassengerID:    passengerID,
			PickupLat:      p.Pickup.Lat, PickupLng: p.Pickup.Lng, PickupAddress: p.Pickup.Address,
			DropoffLat:     p.Dropoff.Lat, DropoffLng: p.Dropoff.Lng, DropoffAddress: p.Dropoff.Address,
			DistanceM:      p.DistanceM, DurationS: p.DurationS, FareEstimate: p.FareEstimate,
			VehicleType:    p.VehicleType,
			PaymentMethod:  trip.PaymentMethod(p.PaymentMethod),
		})
		srv.ackOrError(s, msgType, res, err)

	case "trip:cancel":
		var p struct {
			TripID string `json:"trip_id"`
			Reason string `json:"reason"`
		}
		if err := json.Unmarshal(data, &p); err != nil || p.TripID == "" {
			srv.ackError(s, msgType, "bad trip:cancel payload")
			return
		}
		// A passenger's cancel during SEARCHING and one after MATCHED are
		// two different state machines (§4.2 vs §4.3); try the search
		// cancel first since it is the more common case, and only fall
		// back to the trip state machine once dispatch says this trip is
		// not (or no longer) in SEARCHING.
		searchErr := srv.dispatch.CancelSearch(ctx, p.TripID, passengerID)
		if searchErr == nil {
			srv.ackOrError(s, msgType, nil, nil)
			return
		}
		if ae, ok := apperr.As(searchErr); !ok || (ae.Code != "TRIP_NOT_FOUND" && ae.Code != "TRIP_NOT_SEARCHING") {
			srv.ackOrError(s, msgType, nil, searchErr)
			return
		}
		t, err := srv.tripstate.CancelTrip(ctx, p.TripID, passengerID, trip.CanceledByPassenger, p.Reason)
		srv.ackOrError(s, msgType, t, err)

	case "chat:send":
		srv.handleChatSend(ctx, s, passengerID, data)
	case "chat:typing":
		srv.handleChatTyping(ctx, s, passengerID, data)
	case "chat:mark_read":
		srv.handleChatMarkRead(ctx, s, passengerID, data)

	default:
		srv.ackError(s, msgType, "unknown message type")
	}
}

func (srv *Server) handleChatSend(ctx context.Context, s *session, fromUserID string, data json.RawMessage) {
	var p struct {
		TripID string `json:"trip_id"`
		Text   string `json:"text"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		srv.ackError(s, "chat:send", "bad chat:send payload")
		return
	}
	msg, err := srv.chat.SendMessage(ctx, ports.SendMessageInput{TripID: p.TripID, FromUserID: fromUserID, Text: p.Text})
	srv.ackOrError(s, "chat:send", msg, err)
}

// handleChatTyping is ephemeral per §4.6: never persisted, delivered only
// to the counterparty's room, and never acked back to the sender.
func (srv *Server) handleChatTyping(ctx context.Context, s *session, fromUserID string, data json.RawMessage) {
	var p struct {
		TripID        string `json:"trip_id"`
		CounterpartID string `json:"counterpart_id"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	_ = srv.gw.Publish(ctx, "user:"+p.CounterpartID, ports.WireEvent{
		Type: "chat:typing", TripID: p.TripID,
		Payload: map[string]any{"trip_id": p.TripID, "from_user_id": fromUserID},
	})
}

func (srv *Server) handleChatMarkRead(ctx context.Context, s *session, recipientID string, data json.RawMessage) {
	var p struct {
		TripID string `json:"trip_id"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		srv.ackError(s, "chat:mark_read", "bad chat:mark_read payload")
		return
	}
	n, err := srv.chat.MarkRead(ctx, p.TripID, recipientID)
	srv.ackOrError(s, "chat:mark_read", map[string]any{"marked": n}, err)
}

func decodeTripID(s *session, msgType string, data json.RawMessage) (string, bool) {
	var p struct {
		TripID string `json:"trip_id"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.TripID == "" {
		_ = s.writeJSON(map[string]any{"type": "error", "in_reply_to": msgType, "error": "missing trip_id"})
		return "", false
	}
	return p.TripID, true
}

func (srv *Server) ackError(s *session, msgType, msg string) {
	_ = s.writeJSON(map[string]any{"type": "error", "in_reply_to": msgType, "error": msg})
}

// ackOrError acks a successful call with its result payload, or translates
// an *apperr.Error into the structured {error, code, message, data?} shape
// the client contract of §7 promises.
func (srv *Server) ackOrError(s *session, msgType string, result any, err error) {
	if err != nil {
		if ae, ok := apperr.As(err); ok {
			_ = s.writeJSON(map[string]any{
				"type": "error", "in_reply_to": msgType,
				"error": ae.Message, "code": ae.Code, "data": ae.Data,
			})
			return
		}
		srv.log.Error(context.Background(), "ws_handler_failed", "Unhandled error in message handler", err, map[string]any{"type": msgType})
		_ = s.writeJSON(map[string]any{"type": "error", "in_reply_to": msgType, "error": "internal error"})
		return
	}
	_ = s.writeJSON(map[string]any{"type": msgType + "_ack", "data": result})
}
