package postgres

import (
	"context"

	"ride-hail/internal/apperr"
	"ride-hail/internal/domain/rating"
	"ride-hail/internal/ports"
)

// RatingRepo persists Rating rows (§3, invariant 6: one per tripId+ratedBy).
type RatingRepo struct{}

// NewRatingRepo constructs a new RatingRepo.
func NewRatingRepo() ports.RatingRepository {
	return &RatingRepo{}
}

func (r *RatingRepo) Insert(ctx context.Context, rt *rating.Rating) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO ratings (trip_id, rated_by, rated_user, rating_type, stars, comment)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`, rt.TripID, rt.RatedBy, rt.RatedUser, string(rt.RatingType), rt.Stars, rt.Comment).
		Scan(&rt.ID, &rt.CreatedAt)
	if err != nil {
		if isUniqueViolation(err, "ratings_trip_id_rated_by_key") {
			return apperr.Conflict("ALREADY_RATED", "this trip has already been rated by this user")
		}
		return apperr.Internal("insert rating", err)
	}
	return nil
}

func (r *RatingRepo) Exists(ctx context.Context, tripID, ratedBy string) (bool, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return false, err
	}
	var exists bool
	err = tx.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM ratings WHERE trip_id = $1 AND rated_by = $2)
	`, tripID, ratedBy).Scan(&exists)
	if err != nil {
		return false, apperr.Internal("check rating exists", err)
	}
	return exists, nil
}
