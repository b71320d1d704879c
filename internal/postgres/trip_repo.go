package postgres

import (
	"context"
	"time"

	"ride-hail/internal/apperr"
	"ride-hail/internal/domain/trip"
	"ride-hail/internal/ports"
)

// TripRepo persists the durable Trip row (§3) using pgx and plain SQL. A
// Trip is only ever created at MATCHED (invariant 2); see trip.NewAtMatch.
type TripRepo struct{}

// NewTripRepo constructs a new TripRepo.
func NewTripRepo() ports.TripRepository {
	return &TripRepo{}
}

func (r *TripRepo) Create(ctx context.Context, t *trip.Trip) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO trips (
			id, passenger_id, driver_id, status,
			pickup_lat, pickup_lng, pickup_address,
			dropoff_lat, dropoff_lng, dropoff_address,
			route_polyline, distance_m, duration_s,
			fare_estimate, payment_method,
			driver_lat_at_match, driver_lng_at_match,
			matched_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
		RETURNING created_at, updated_at
	`,
		t.ID, t.PassengerID, t.DriverID, string(t.Status),
		t.Pickup.Lat, t.Pickup.Lng, t.Pickup.Address,
		t.Dropoff.Lat, t.Dropoff.Lng, t.Dropoff.Address,
		t.RoutePolyline, t.DistanceM, t.DurationS,
		t.FareEstimate, string(t.PaymentMethod),
		matchLat(t), matchLng(t),
		t.MatchedAt,
	).Scan(&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return apperr.Internal("create trip", err)
	}
	return nil
}

func matchLat(t *trip.Trip) *float64 {
	if t.DriverLocationAtMatch == nil {
		return nil
	}
	v := t.DriverLocationAtMatch.Lat
	return &v
}

func matchLng(t *trip.Trip) *float64 {
	if t.DriverLocationAtMatch == nil {
		return nil
	}
	v := t.DriverLocationAtMatch.Lng
	return &v
}

const tripColumns = `
	id, passenger_id, driver_id, status,
	pickup_lat, pickup_lng, pickup_address,
	dropoff_lat, dropoff_lng, dropoff_address,
	route_polyline, distance_m, duration_s,
	fare_estimate, fare_final, payment_method,
	driver_lat_at_match, driver_lng_at_match,
	matched_at, driver_en_route_at, driver_arrived_at,
	trip_started_at, trip_completed_at, canceled_at,
	cancel_reason, canceled_by,
	created_at, updated_at
`

func scanTrip(row rowScanner) (*trip.Trip, error) {
	var (
		t                        trip.Trip
		status, payment          string
		canceledBy               *string
		driverLat, driverLng     *float64
	)
	err := row.Scan(
		&t.ID, &t.PassengerID, &t.DriverID, &status,
		&t.Pickup.Lat, &t.Pickup.Lng, &t.Pickup.Address,
		&t.Dropoff.Lat, &t.Dropoff.Lng, &t.Dropoff.Address,
		&t.RoutePolyline, &t.DistanceM, &t.DurationS,
		&t.FareEstimate, &t.FareFinal, &payment,
		&driverLat, &driverLng,
		&t.MatchedAt, &t.DriverEnRouteAt, &t.DriverArrivedAt,
		&t.TripStartedAt, &t.TripCompletedAt, &t.CanceledAt,
		&t.CancelReason, &canceledBy,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, notFoundOrWrap(err, "TRIP_NOT_FOUND", "trip not found")
	}
	t.Status = trip.Status(status)
	t.PaymentMethod = trip.PaymentMethod(payment)
	if canceledBy != nil {
		cb := trip.CanceledBy(*canceledBy)
		t.CanceledBy = &cb
	}
	if driverLat != nil && driverLng != nil {
		t.DriverLocationAtMatch = &trip.Point{Lat: *driverLat, Lng: *driverLng}
	}
	return &t, nil
}

func (r *TripRepo) GetByID(ctx context.Context, id string) (*trip.Trip, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}
	return scanTrip(tx.QueryRow(ctx, `SELECT `+tripColumns+` FROM trips WHERE id = $1`, id))
}

func (r *TripRepo) GetActiveForDriver(ctx context.Context, driverID string) (*trip.Trip, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}
	t, err := scanTrip(tx.QueryRow(ctx, `
		SELECT `+tripColumns+` FROM trips
		WHERE driver_id = $1
		  AND status IN ('MATCHED','DRIVER_ASSIGNED','DRIVER_EN_ROUTE','DRIVER_ARRIVED','IN_PROGRESS')
		ORDER BY created_at DESC
		LIMIT 1
	`, driverID))
	if err != nil {
		if e, ok := apperr.As(err); ok && e.Kind == apperr.KindNotFound {
			return nil, nil
		}
		return nil, err
	}
	return t, nil
}

func (r *TripRepo) UpdateStatus(ctx context.Context, id string, status trip.Status, now time.Time) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `
		UPDATE trips SET status = $1, updated_at = $2 WHERE id = $3
	`, string(status), now, id)
	if err != nil {
		return apperr.Internal("update trip status", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("TRIP_NOT_FOUND", "trip not found")
	}
	return nil
}

func (r *TripRepo) MarkEnRoute(ctx context.Context, id string, now time.Time) error {
	return r.stamp(ctx, id, trip.StatusDriverEnRoute, "driver_en_route_at", now)
}

func (r *TripRepo) MarkArrived(ctx context.Context, id string, now time.Time) error {
	return r.stamp(ctx, id, trip.StatusDriverArrived, "driver_arrived_at", now)
}

func (r *TripRepo) MarkStarted(ctx context.Context, id string, now time.Time) error {
	return r.stamp(ctx, id, trip.StatusInProgress, "trip_started_at", now)
}

func (r *TripRepo) stamp(ctx context.Context, id string, status trip.Status, column string, now time.Time) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `
		UPDATE trips SET status = $1, `+column+` = $2, updated_at = $2
		WHERE id = $3
	`, string(status), now, id)
	if err != nil {
		return apperr.Internal("stamp trip "+column, err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("TRIP_NOT_FOUND", "trip not found")
	}
	return nil
}

func (r *TripRepo) MarkCompleted(ctx context.Context, id string, fareFinal int, now time.Time) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `
		UPDATE trips
		SET status = $1, fare_final = $2, trip_completed_at = $3, updated_at = $3
		WHERE id = $4
	`, string(trip.StatusCompleted), fareFinal, now, id)
	if err != nil {
		return apperr.Internal("mark trip completed", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("TRIP_NOT_FOUND", "trip not found")
	}
	return nil
}

func (r *TripRepo) MarkCanceled(ctx context.Context, id string, reason string, by trip.CanceledBy, now time.Time) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `
		UPDATE trips
		SET status = $1, cancel_reason = $2, canceled_by = $3, canceled_at = $4, updated_at = $4
		WHERE id = $5
	`, string(trip.StatusCanceled), reason, string(by), now, id)
	if err != nil {
		return apperr.Internal("mark trip canceled", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("TRIP_NOT_FOUND", "trip not found")
	}
	return nil
}

func (r *TripRepo) MarkNoShow(ctx context.Context, id string, now time.Time) error {
	return r.stamp(ctx, id, trip.StatusNoShow, "canceled_at", now)
}

func (r *TripRepo) CountCreatedBetween(ctx context.Context, start, end time.Time) (int, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return 0, err
	}
	var n int
	err = tx.QueryRow(ctx, `
		SELECT count(*) FROM trips WHERE created_at >= $1 AND created_at < $2
	`, start, end).Scan(&n)
	if err != nil {
		return 0, apperr.Internal("count trips created", err)
	}
	return n, nil
}

func (r *TripRepo) CountActive(ctx context.Context) (int, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return 0, err
	}
	var n int
	err = tx.QueryRow(ctx, `
		SELECT count(*) FROM trips
		WHERE status IN ('MATCHED','DRIVER_ASSIGNED','DRIVER_EN_ROUTE','DRIVER_ARRIVED','IN_PROGRESS')
	`).Scan(&n)
	if err != nil {
		return 0, apperr.Internal("count active trips", err)
	}
	return n, nil
}

func (r *TripRepo) CancellationRateBetween(ctx context.Context, start, end time.Time) (float64, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return 0, err
	}
	var total, canceled int
	err = tx.QueryRow(ctx, `
		SELECT count(*), count(*) FILTER (WHERE status = 'CANCELED')
		FROM trips
		WHERE created_at >= $1 AND created_at < $2
	`, start, end).Scan(&total, &canceled)
	if err != nil {
		return 0, apperr.Internal("compute cancellation rate", err)
	}
	if total == 0 {
		return 0, nil
	}
	return float64(canceled) / float64(total), nil
}

func (r *TripRepo) SumFareCompletedBetween(ctx context.Context, start, end time.Time) (int, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return 0, err
	}
	var sum *int
	err = tx.QueryRow(ctx, `
		SELECT coalesce(sum(coalesce(fare_final, fare_estimate)), 0)
		FROM trips
		WHERE status = 'COMPLETED' AND trip_completed_at >= $1 AND trip_completed_at < $2
	`, start, end).Scan(&sum)
	if err != nil {
		return 0, apperr.Internal("sum completed fares", err)
	}
	if sum == nil {
		return 0, nil
	}
	return *sum, nil
}
