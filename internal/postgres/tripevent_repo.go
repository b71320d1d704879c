package postgres

import (
	"context"
	"encoding/json"

	"ride-hail/internal/apperr"
	"ride-hail/internal/domain/trip"
	"ride-hail/internal/ports"
)

// TripEventRepo appends the audit trail rows backing TripEvent (§3).
type TripEventRepo struct{}

// NewTripEventRepo constructs a new TripEventRepo.
func NewTripEventRepo() ports.TripEventRepository {
	return &TripEventRepo{}
}

func (r *TripEventRepo) Append(ctx context.Context, e *trip.Event) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	body, err := json.Marshal(e.Metadata)
	if err != nil {
		return apperr.Internal("marshal trip event metadata", err)
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO trip_events (trip_id, event_type, performed_by, metadata, occurred_at)
		VALUES ($1, $2, $3, $4::jsonb, $5)
		RETURNING id
	`, e.TripID, string(e.Type), e.PerformedBy, string(body), e.Timestamp).Scan(&e.ID)
	if err != nil {
		return apperr.Internal("append trip event", err)
	}
	return nil
}

func (r *TripEventRepo) ListByTrip(ctx context.Context, tripID string) ([]trip.Event, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
		SELECT id, trip_id, event_type, performed_by, metadata, occurred_at
		FROM trip_events
		WHERE trip_id = $1
		ORDER BY occurred_at ASC
	`, tripID)
	if err != nil {
		return nil, apperr.Internal("list trip events", err)
	}
	defer rows.Close()

	var out []trip.Event
	for rows.Next() {
		var (
			e        trip.Event
			typ      string
			rawMeta  []byte
		)
		if err := rows.Scan(&e.ID, &e.TripID, &typ, &e.PerformedBy, &rawMeta, &e.Timestamp); err != nil {
			return nil, apperr.Internal("scan trip event", err)
		}
		e.Type = trip.EventType(typ)
		if len(rawMeta) > 0 {
			meta := make(map[string]any)
			if err := json.Unmarshal(rawMeta, &meta); err != nil {
				return nil, apperr.Internal("decode trip event metadata", err)
			}
			e.Metadata = meta
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internal("iterate trip events", err)
	}
	return out, nil
}
