package postgres

import (
	"context"

	"ride-hail/internal/apperr"
	"ride-hail/internal/domain/driverprofile"
	"ride-hail/internal/ports"
)

// DriverProfileRepo persists DriverProfile rows using pgx and plain SQL.
type DriverProfileRepo struct{}

// NewDriverProfileRepo constructs a new DriverProfileRepo.
func NewDriverProfileRepo() ports.DriverProfileRepository {
	return &DriverProfileRepo{}
}

func (r *DriverProfileRepo) Create(ctx context.Context, d *driverprofile.DriverProfile) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO driver_profiles (
			account_id, license_number, verification_status,
			vehicle_type, vehicle_plate, vehicle_make, vehicle_model,
			vehicle_color, vehicle_year, vehicle_photo_url,
			rating_average, rating_count, operational_status, tier
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		RETURNING created_at, updated_at
	`,
		d.AccountID, d.LicenseNumber, string(d.Verification),
		string(d.Vehicle.Type), d.Vehicle.Plate, d.Vehicle.Make, d.Vehicle.Model,
		d.Vehicle.Color, d.Vehicle.Year, d.Vehicle.PhotoURL,
		d.RatingAverage, d.RatingCount, string(d.OperationalStatus), d.Tier,
	).Scan(&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, "driver_profiles_vehicle_plate_key") {
			return apperr.Conflict("PLATE_TAKEN", "vehicle plate is already registered")
		}
		return apperr.Internal("create driver profile", err)
	}
	return nil
}

func (r *DriverProfileRepo) GetByAccountID(ctx context.Context, accountID string) (*driverprofile.DriverProfile, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var (
		d                                 driverprofile.DriverProfile
		verification, operational, vtype  string
	)
	err = tx.QueryRow(ctx, `
		SELECT account_id, license_number, verification_status,
		       vehicle_type, vehicle_plate, vehicle_make, vehicle_model,
		       vehicle_color, vehicle_year, vehicle_photo_url,
		       rating_average, rating_count, operational_status, tier,
		       created_at, updated_at
		FROM driver_profiles
		WHERE account_id = $1
	`, accountID).Scan(
		&d.AccountID, &d.LicenseNumber, &verification,
		&vtype, &d.Vehicle.Plate, &d.Vehicle.Make, &d.Vehicle.Model,
		&d.Vehicle.Color, &d.Vehicle.Year, &d.Vehicle.PhotoURL,
		&d.RatingAverage, &d.RatingCount, &operational, &d.Tier,
		&d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, notFoundOrWrap(err, "DRIVER_PROFILE_NOT_FOUND", "driver profile not found")
	}
	d.Verification = driverprofile.VerificationStatus(verification)
	d.OperationalStatus = driverprofile.OperationalStatus(operational)
	d.Vehicle.Type = driverprofile.VehicleType(vtype)
	return &d, nil
}

func (r *DriverProfileRepo) UpdateOperationalStatus(ctx context.Context, accountID string, status driverprofile.OperationalStatus) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `
		UPDATE driver_profiles SET operational_status = $1, updated_at = now()
		WHERE account_id = $2
	`, string(status), accountID)
	if err != nil {
		return apperr.Internal("update operational status", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("DRIVER_PROFILE_NOT_FOUND", "driver profile not found")
	}
	return nil
}

// ApplyRating folds a new 1..5 star rating into the running average inside
// the same row-locked update, mirroring driverprofile.ApplyRating's formula
// server-side so concurrent ratings for the same driver serialize on the row.
func (r *DriverProfileRepo) ApplyRating(ctx context.Context, accountID string, stars int) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	var avg float64
	var count int
	err = tx.QueryRow(ctx, `
		SELECT rating_average, rating_count FROM driver_profiles
		WHERE account_id = $1
		FOR UPDATE
	`, accountID).Scan(&avg, &count)
	if err != nil {
		return notFoundOrWrap(err, "DRIVER_PROFILE_NOT_FOUND", "driver profile not found")
	}

	newCount := count + 1
	newAvg := (avg*float64(count) + float64(stars)) / float64(newCount)

	_, err = tx.Exec(ctx, `
		UPDATE driver_profiles
		SET rating_average = $1, rating_count = $2, updated_at = now()
		WHERE account_id = $3
	`, newAvg, newCount, accountID)
	if err != nil {
		return apperr.Internal("apply rating", err)
	}
	return nil
}
