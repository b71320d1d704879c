package postgres

import (
	"errors"

	"ride-hail/internal/apperr"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// uniqueViolation is the Postgres SQLSTATE for a UNIQUE constraint breach
// (§5: accounts.email, accounts.phone_e164, driver_profiles.vehicle_plate,
// trip_receipts.trip_id, bonus_awards(driver_id,program_id,period_key)).
const uniqueViolation = "23505"

// isUniqueViolation reports whether err is a UNIQUE constraint breach,
// optionally narrowed to a specific constraint name.
func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	if pgErr.Code != uniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

// notFoundOrWrap maps pgx.ErrNoRows to an apperr.NotFound carrying code and
// message, and anything else to an apperr.Internal, so repositories never leak raw pgx
// errors across the ports boundary.
func notFoundOrWrap(err error, code, message string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound(code, message)
	}
	return apperr.Internal(message, err)
}
