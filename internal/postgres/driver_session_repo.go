package postgres

import (
	"context"

	"ride-hail/internal/apperr"
	"ride-hail/internal/domain/driversession"
	"ride-hail/internal/ports"
)

// DriverSessionRepo persists driver session records using pgx and plain SQL.
type DriverSessionRepo struct{}

// NewDriverSessionRepo constructs a new DriverSessionRepo.
func NewDriverSessionRepo() ports.DriverSessionRepository {
	return &DriverSessionRepo{}
}

// Start creates a new driver session row and returns its generated ID.
func (r *DriverSessionRepo) Start(ctx context.Context, driverID string) (string, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return "", err
	}

	session, err := driversession.New(driverID)
	if err != nil {
		return "", apperr.Internal("build driver session", err)
	}

	var sessionID string
	err = tx.QueryRow(ctx, `
		INSERT INTO driver_sessions (driver_id, started_at, total_rides, total_earnings)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, session.DriverID, session.StartedAt, session.TotalRides, session.TotalEarnings).Scan(&sessionID)
	if err != nil {
		return "", apperr.Internal("start driver session", err)
	}
	return sessionID, nil
}

// GetActiveForDriver fetches the driver's most recent still-open session.
func (r *DriverSessionRepo) GetActiveForDriver(ctx context.Context, driverID string) (*driversession.Session, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}
	var s driversession.Session
	err = tx.QueryRow(ctx, `
		SELECT id, driver_id, started_at, ended_at, total_rides, total_earnings
		FROM driver_sessions
		WHERE driver_id = $1 AND ended_at IS NULL
		ORDER BY started_at DESC
		LIMIT 1
	`, driverID).Scan(&s.ID, &s.DriverID, &s.StartedAt, &s.EndedAt, &s.TotalRides, &s.TotalEarnings)
	if err != nil {
		return nil, notFoundOrWrap(err, "DRIVER_SESSION_NOT_FOUND", "no active session for this driver")
	}
	return &s, nil
}

// IncrementCounters folds one completed trip's net earnings into the
// driver's currently-open session, a no-op if none is open (the driver went
// offline through the stale-presence sweep rather than an explicit
// goOffline call).
func (r *DriverSessionRepo) IncrementCounters(ctx context.Context, sessionID string, earnings int) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		UPDATE driver_sessions
		SET total_rides = total_rides + 1, total_earnings = total_earnings + $1
		WHERE id = $2 AND ended_at IS NULL
	`, earnings, sessionID)
	if err != nil {
		return apperr.Internal("increment driver session counters", err)
	}
	return nil
}

// End closes a session and returns its final summary.
func (r *DriverSessionRepo) End(ctx context.Context, sessionID string) (*driversession.Session, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}
	var s driversession.Session
	err = tx.QueryRow(ctx, `
		UPDATE driver_sessions
		SET ended_at = now()
		WHERE id = $1
		RETURNING id, driver_id, started_at, ended_at, total_rides, total_earnings
	`, sessionID).Scan(&s.ID, &s.DriverID, &s.StartedAt, &s.EndedAt, &s.TotalRides, &s.TotalEarnings)
	if err != nil {
		return nil, apperr.Internal("end driver session", err)
	}
	return &s, nil
}
