// Package driversession models the per-online-period driver session (§4.1,
// §4.7): started the moment a driver goes online, closed with a rides/
// earnings summary the moment they go offline.
package driversession

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrDriverIDRequired    = errors.New("driver id is required")
	ErrSessionAlreadyEnded = errors.New("session already ended")
	ErrNegativeTotals      = errors.New("session totals cannot go negative")
)

// Session is the domain entity backing the `driver_sessions` table.
type Session struct {
	ID            string
	DriverID      string
	StartedAt     time.Time
	EndedAt       *time.Time
	TotalRides    int
	TotalEarnings int // XAF
}

// New starts a session for driverID at the current time.
func New(driverID string) (*Session, error) {
	if driverID = strings.TrimSpace(driverID); driverID == "" {
		return nil, ErrDriverIDRequired
	}
	now := time.Now().UTC()
	return &Session{DriverID: driverID, StartedAt: now}, nil
}

// AddRide folds one completed trip's net earnings into the running totals.
func (s *Session) AddRide(earnings int) error {
	if s.EndedAt != nil {
		return ErrSessionAlreadyEnded
	}
	if earnings < 0 {
		return ErrNegativeTotals
	}
	s.TotalRides++
	s.TotalEarnings += earnings
	return nil
}

// End closes the session at the current time.
func (s *Session) End() error {
	if s.EndedAt != nil {
		return ErrSessionAlreadyEnded
	}
	now := time.Now().UTC()
	s.EndedAt = &now
	return nil
}

// Duration returns how long the session ran; if still open, it measures up
// to now.
func (s *Session) Duration() time.Duration {
	end := time.Now().UTC()
	if s.EndedAt != nil {
		end = *s.EndedAt
	}
	return end.Sub(s.StartedAt)
}
