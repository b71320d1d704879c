// Package eventbus implements the Event Bus / Socket Gateway (C6, §4.4): the
// authenticated WebSocket front door, the in-process room fan-out, and the
// RabbitMQ bridge that lets a room be broadcast to regardless of which
// dispatch_service instance holds the socket.
//
// Like internal/dispatch and internal/tripstate, this package keeps its own
// copies of the key-value key builders for records it only reads (offers,
// active-trip refs, the ephemeral trip) rather than importing the packages
// that own them — every trip service agrees with the others on the wire
// format of §6.2, never on Go symbols.
package eventbus

import (
	"fmt"
	"time"
)

func socketKey(userID string) string          { return fmt.Sprintf("user:socket:%s", userID) }
func tripKey(id string) string                { return fmt.Sprintf("trip:%s", id) }
func pendingOffersKey(driverID string) string { return fmt.Sprintf("driver:pending_offers:%s", driverID) }
func driverActiveKey(id string) string        { return fmt.Sprintf("driver:active_trip:%s", id) }
func passengerActiveKey(id string) string     { return fmt.Sprintf("passenger:active_trip:%s", id) }

const socketTTL = 3600 * time.Second
