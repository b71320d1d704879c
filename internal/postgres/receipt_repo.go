package postgres

import (
	"context"
	"encoding/json"
	"time"

	"ride-hail/internal/apperr"
	"ride-hail/internal/domain/earning"
	"ride-hail/internal/ports"
)

// ReceiptRepo is the UNIQUE(tripId) idempotency anchor for C7 settlement
// (§4.5 step 1, invariant 4).
type ReceiptRepo struct{}

// NewReceiptRepo constructs a new ReceiptRepo.
func NewReceiptRepo() ports.ReceiptRepository {
	return &ReceiptRepo{}
}

const receiptColumns = `
	id, trip_id, driver_id, passenger_id, gross_fare, commission_rate,
	commission_amount, bonus_total, driver_net, payment_method,
	commission_rule_id, applied_rules, status, processed_at, created_at
`

func scanReceipt(row rowScanner) (*earning.Receipt, error) {
	var (
		rc        earning.Receipt
		status    string
		rawRules  []byte
	)
	err := row.Scan(
		&rc.ID, &rc.TripID, &rc.DriverID, &rc.PassengerID, &rc.GrossFare, &rc.CommissionRate,
		&rc.CommissionAmount, &rc.BonusTotal, &rc.DriverNet, &rc.PaymentMethod,
		&rc.CommissionRuleID, &rawRules, &status, &rc.ProcessedAt, &rc.CreatedAt,
	)
	if err != nil {
		return nil, notFoundOrWrap(err, "RECEIPT_NOT_FOUND", "trip receipt not found")
	}
	rc.Status = earning.ReceiptStatus(status)
	if len(rawRules) > 0 {
		if err := json.Unmarshal(rawRules, &rc.AppliedRules); err != nil {
			return nil, apperr.Internal("decode applied rules", err)
		}
	}
	return &rc, nil
}

// InsertPending inserts a PENDING receipt row keyed by tripId. On a
// UNIQUE(trip_id) conflict (a retry or crash replay, §4.5 step 1), it loads
// and returns the existing row instead, with isFresh=false so the caller
// can branch on already-settled vs. crash-recovery.
func (r *ReceiptRepo) InsertPending(ctx context.Context, rc *earning.Receipt) (*earning.Receipt, bool, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, false, err
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO trip_receipts (id, trip_id, driver_id, passenger_id, gross_fare, payment_method, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at
	`, rc.ID, rc.TripID, rc.DriverID, rc.PassengerID, rc.GrossFare, rc.PaymentMethod, string(earning.ReceiptPending)).
		Scan(&rc.CreatedAt)
	if err == nil {
		rc.Status = earning.ReceiptPending
		return rc, true, nil
	}
	if !isUniqueViolation(err, "trip_receipts_trip_id_key") {
		return nil, false, apperr.Internal("insert pending receipt", err)
	}

	existing, err := r.GetByTripID(ctx, rc.TripID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *ReceiptRepo) GetByTripID(ctx context.Context, tripID string) (*earning.Receipt, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}
	return scanReceipt(tx.QueryRow(ctx, `SELECT `+receiptColumns+` FROM trip_receipts WHERE trip_id = $1`, tripID))
}

// Settle finalizes a PENDING receipt with the computed settlement outcome
// (§4.5 step 10): status=SETTLED, processedAt=now, appliedRules snapshot.
func (r *ReceiptRepo) Settle(ctx context.Context, tripID string, commissionRate float64, commissionAmount, bonusTotal, driverNet int, commissionRuleID *string, appliedRules []earning.AppliedRule, now time.Time) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	body, err := json.Marshal(appliedRules)
	if err != nil {
		return apperr.Internal("marshal applied rules", err)
	}

	tag, err := tx.Exec(ctx, `
		UPDATE trip_receipts
		SET commission_rate = $1, commission_amount = $2, bonus_total = $3,
		    driver_net = $4, commission_rule_id = $5, applied_rules = $6::jsonb,
		    status = $7, processed_at = $8
		WHERE trip_id = $9
	`, commissionRate, commissionAmount, bonusTotal, driverNet, commissionRuleID,
		string(body), string(earning.ReceiptSettled), now, tripID)
	if err != nil {
		return apperr.Internal("settle receipt", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("RECEIPT_NOT_FOUND", "trip receipt not found")
	}
	return nil
}
