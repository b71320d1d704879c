// Package dispatch implements the Dispatcher (C4, §4.2): the offer loop and
// the SET-NX-EX acceptance race that assigns exactly one driver to a
// SEARCHING trip.
package dispatch

import (
	"fmt"
	"time"
)

func tripKey(id string) string            { return fmt.Sprintf("trip:%s", id) }
func lockKey(id string) string             { return fmt.Sprintf("trip:lock:%s", id) }
func timeoutKey(id string) string          { return fmt.Sprintf("trip:timeout:%s", id) }
func acceptingKey(id string) string        { return fmt.Sprintf("trip:accepting:%s", id) }
func noExpireKey(id string) string         { return fmt.Sprintf("trip:no_expire:%s", id) }
func offersKey(id string) string           { return fmt.Sprintf("trip:offers:%s", id) }
func declinedSetKey(id string) string      { return fmt.Sprintf("trip:declined:%s", id) }
func passengerActiveKey(id string) string  { return fmt.Sprintf("passenger:active_trip:%s", id) }
func driverActiveKey(id string) string     { return fmt.Sprintf("driver:active_trip:%s", id) }
func pendingOffersKey(id string) string    { return fmt.Sprintf("driver:pending_offers:%s", id) }

const (
	searchingTTL     = 600 * time.Second
	matchedTTL       = 7200 * time.Second
	lockTTL          = 10 * time.Second
	acceptingTTL     = 120 * time.Second
	declinedTTL      = 300 * time.Second
	pendingOffersTTL = 3600 * time.Second
)
