package eventbus

import (
	"context"
	"encoding/json"

	"ride-hail/internal/general/contracts"
	"ride-hail/internal/general/logger"
	"ride-hail/internal/general/rabbitmq"
	"ride-hail/internal/ports"

	amqp "github.com/rabbitmq/amqp091-go"
)

// roomEnvelope is the wire format put on ExchangeEventsFanout: a
// WireEvent plus the room it is addressed to, since AMQP routing on a
// fanout exchange carries no routing key.
type roomEnvelope struct {
	Room  string          `json:"room"`
	Event ports.WireEvent `json:"event"`
}

// bus bridges WireEvents published on this instance to every other
// dispatch_service instance over RabbitMQ, grounded on
// internal/general/rabbitmq's fanout usage for location_fanout
// (internal/general/websocket/location_update_handler.go) applied to the
// gateway's own event traffic instead of raw location pings.
type bus struct {
	mq  *rabbitmq.Client
	pub *rabbitmq.MQPublisher
	log *logger.Logger
	hub *hub
}

func newBus(mq *rabbitmq.Client, log *logger.Logger, h *hub) *bus {
	return &bus{mq: mq, pub: rabbitmq.NewMQPublisher(mq), log: log, hub: h}
}

// publish fans a locally-raised event out over the fanout exchange to every
// instance, this one included: local room members receive it when it loops
// back through this instance's own subscription (run).
func (b *bus) publish(room string, ev ports.WireEvent) error {
	body, err := json.Marshal(roomEnvelope{Room: room, Event: ev})
	if err != nil {
		return err
	}
	return b.pub.Publish(contracts.ExchangeEventsFanout, "", body)
}

// run subscribes to the fanout exchange and rebroadcasts every received
// event to this instance's local room members. Events this instance itself
// published also come back over the exchange; broadcastLocal is harmless to
// call on a room with no local members here, so no self-filtering is
// needed.
func (b *bus) run(ctx context.Context) {
	for {
		err := b.mq.SubscribeFanout(ctx, contracts.ExchangeEventsFanout, func(_ context.Context, d amqp.Delivery) {
			var env roomEnvelope
			if err := json.Unmarshal(d.Body, &env); err != nil {
				b.log.Error(ctx, "eventbus_bad_envelope", "Failed to decode fanout envelope", err, nil)
				return
			}
			b.hub.broadcastLocal(env.Room, env.Event)
		})
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			b.log.Error(ctx, "eventbus_fanout_subscribe_failed", "Fanout subscription dropped, retrying", err, nil)
		}
	}
}
