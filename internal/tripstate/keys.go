// Package tripstate implements the Trip State Machine (C5, §4.3): validated
// status transitions and the durable-row, ephemeral-record, and TripEvent
// updates that accompany every one of them.
//
// Trip services in this system are deployed as independent processes
// sharing only the external stores (§5), so tripstate keeps its own copies
// of the key-value key builders rather than importing internal/dispatch —
// the two packages agree on the wire format of §6.2, not on Go symbols.
package tripstate

import (
	"fmt"
	"time"
)

func tripKey(id string) string           { return fmt.Sprintf("trip:%s", id) }
func passengerActiveKey(id string) string { return fmt.Sprintf("passenger:active_trip:%s", id) }
func driverActiveKey(id string) string    { return fmt.Sprintf("driver:active_trip:%s", id) }

const matchedTTL = 7200 * time.Second
