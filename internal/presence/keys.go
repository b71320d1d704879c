// Package presence implements the Presence Service (C3, §4.1): driver
// online/offline/location state and nearby-driver lookups, backed by the
// ephemeral key-value store (C1), with online-period summaries kept in the
// driver_sessions table (C2).
package presence

import "fmt"

const (
	geoIndexKey     = "drivers:geo:locations"
	onlineSetKey    = "drivers:online"
	availableSetKey = "drivers:available"
)

func metadataKey(driverID string) string { return fmt.Sprintf("driver:%s:metadata", driverID) }
func locationKey(driverID string) string { return fmt.Sprintf("driver:location:%s", driverID) }
func onlineFlagKey(driverID string) string { return fmt.Sprintf("driver:online:%s", driverID) }
func activeTripKey(driverID string) string { return fmt.Sprintf("driver:active_trip:%s", driverID) }

const (
	locationTTLSeconds = 300
	metadataTTLSeconds = 3600
	onlineFlagTTLSeconds = 3600
)
