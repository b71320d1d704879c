package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ride-hail/internal/domain/account"
	"ride-hail/internal/general/logger"
	"ride-hail/internal/general/rabbitmq"
	"ride-hail/internal/kv"
	"ride-hail/internal/ports"
)

// Gateway is the real-time fan-out boundary (§4.4): it satisfies both
// ports.Gateway (room membership, direct send, reconnect replay) and
// ports.EventPublisher (the narrow boundary every other service publishes
// wire events through), so dispatch/tripstate/chat never depend on
// WebSocket or RabbitMQ directly.
type Gateway struct {
	hub *hub
	bus *bus
	kv  *kv.Client
	log *logger.Logger
}

var (
	_ ports.Gateway        = (*Gateway)(nil)
	_ ports.EventPublisher = (*Gateway)(nil)
)

// New wires a Gateway around a hub (in-process rooms) and a bus (cross-
// process bridge over mq). Callers must call Run in a goroutine to start
// the fanout subscription before any cross-process event can be delivered.
func New(mq *rabbitmq.Client, kvClient *kv.Client, log *logger.Logger) *Gateway {
	h := newHub()
	return &Gateway{hub: h, bus: newBus(mq, log, h), kv: kvClient, log: log}
}

// Run blocks subscribing to the cross-process fanout exchange until ctx is
// done. Intended to be started with `go gw.Run(ctx)` at service startup.
func (g *Gateway) Run(ctx context.Context) { g.bus.run(ctx) }

func (g *Gateway) JoinRoom(_ context.Context, connectionID, room string) error {
	g.hub.join(connectionID, room)
	return nil
}

func (g *Gateway) LeaveRoom(_ context.Context, connectionID, room string) error {
	g.hub.leave(connectionID, room)
	return nil
}

func (g *Gateway) Send(_ context.Context, connectionID string, ev ports.WireEvent) error {
	s, ok := g.hub.sessionByID(connectionID)
	if !ok {
		return fmt.Errorf("eventbus: connection %s not found", connectionID)
	}
	return s.writeJSON(ev)
}

// Broadcast and Publish both just hand the event to the cross-process
// bridge; this instance's own local room members are reached when the
// event loops back through its own fanout subscription (bus.run), so the
// local and remote delivery path is exactly one path, not two.
func (g *Gateway) Broadcast(_ context.Context, room string, ev ports.WireEvent) error {
	return g.bus.publish(room, ev)
}

func (g *Gateway) Publish(ctx context.Context, room string, ev ports.WireEvent) error {
	return g.Broadcast(ctx, room, ev)
}

// ReplayMissed implements the reconnect-replay rule of §4.4: after a
// reconnect, re-emit whatever the client would otherwise have missed
// during the gap, read straight from the ephemeral records the dispatcher
// and trip state machine already maintain.
func (g *Gateway) ReplayMissed(ctx context.Context, connectionID, userID string, _ time.Time) error {
	s, ok := g.hub.sessionByID(connectionID)
	if !ok {
		return fmt.Errorf("eventbus: connection %s not found", connectionID)
	}

	if s.role == account.TypeDriver {
		return g.replayDriver(ctx, s, userID)
	}
	return g.replayPassenger(ctx, s, userID)
}

func (g *Gateway) replayDriver(ctx context.Context, s *session, driverID string) error {
	if raw, err := g.kv.Get(ctx, driverActiveKey(driverID)); err == nil {
		var ref struct {
			TripID string `json:"trip_id"`
		}
		if decodeJSON(raw, &ref) == nil && ref.TripID != "" {
			return s.writeJSON(ports.WireEvent{
				Type: "trip:matched", TripID: ref.TripID,
				Payload: map[string]any{"trip_id": ref.TripID}, Timestamp: time.Now().UTC(),
			})
		}
	}

	raw, err := g.kv.Get(ctx, pendingOffersKey(driverID))
	if err != nil {
		return nil // no pending offers, nothing to replay
	}
	var pending []struct {
		TripID string `json:"trip_id"`
	}
	if decodeJSON(raw, &pending) != nil {
		return nil
	}
	for _, p := range pending {
		tripRaw, err := g.kv.Get(ctx, tripKey(p.TripID))
		if err != nil {
			continue
		}
		var e struct {
			Status string `json:"status"`
		}
		if decodeJSON(tripRaw, &e) != nil || e.Status != "SEARCHING" {
			continue
		}
		_ = s.writeJSON(ports.WireEvent{
			Type: "trip:new_request", TripID: p.TripID,
			Payload: map[string]any{"trip_id": p.TripID}, Timestamp: time.Now().UTC(),
		})
	}
	return nil
}

func (g *Gateway) replayPassenger(ctx context.Context, s *session, passengerID string) error {
	if raw, err := g.kv.Get(ctx, passengerActiveKey(passengerID)); err == nil {
		var ref struct {
			TripID   string `json:"trip_id"`
			DriverID string `json:"driver_id"`
		}
		if decodeJSON(raw, &ref) == nil && ref.TripID != "" {
			return s.writeJSON(ports.WireEvent{
				Type: "trip:driver_assigned", TripID: ref.TripID,
				Payload: map[string]any{"trip_id": ref.TripID, "driver_id": ref.DriverID}, Timestamp: time.Now().UTC(),
			})
		}
	}

	return nil
}

func decodeJSON(raw string, v any) error {
	return json.Unmarshal([]byte(raw), v)
}
