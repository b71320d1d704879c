package postgres

import (
	"context"
	"fmt"
	"time"

	"ride-hail/internal/apperr"
	"ride-hail/internal/domain/earning"
	"ride-hail/internal/ports"
)

// BonusRepo evaluates and records BonusProgram/BonusAward rows (§3, §4.5
// step 9). Idempotency rides on UNIQUE(driver_id, program_id, period_key).
type BonusRepo struct{}

// NewBonusRepo constructs a new BonusRepo.
func NewBonusRepo() ports.BonusRepository {
	return &BonusRepo{}
}

func (r *BonusRepo) ListActivePrograms(ctx context.Context) ([]earning.Program, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, `
		SELECT id, name, period, metric, target_value, bonus_amount, is_active
		FROM bonus_programs
		WHERE is_active = true
	`)
	if err != nil {
		return nil, apperr.Internal("list active bonus programs", err)
	}
	defer rows.Close()

	var out []earning.Program
	for rows.Next() {
		var (
			p            earning.Program
			period, metr string
		)
		if err := rows.Scan(&p.ID, &p.Name, &period, &metr, &p.TargetValue, &p.BonusAmount, &p.IsActive); err != nil {
			return nil, apperr.Internal("scan bonus program", err)
		}
		p.Period = earning.PeriodType(period)
		p.Metric = earning.MetricType(metr)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internal("iterate bonus programs", err)
	}
	return out, nil
}

func (r *BonusRepo) HasAward(ctx context.Context, driverID, programID, periodKey string) (bool, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return false, err
	}
	var exists bool
	err = tx.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM bonus_awards
			WHERE driver_id = $1 AND program_id = $2 AND period_key = $3
		)
	`, driverID, programID, periodKey).Scan(&exists)
	if err != nil {
		return false, apperr.Internal("check bonus award exists", err)
	}
	return exists, nil
}

func (r *BonusRepo) InsertAward(ctx context.Context, a *earning.Award) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO bonus_awards (driver_id, program_id, period_key, metric)
		VALUES ($1, $2, $3, $4)
		RETURNING id, awarded_at
	`, a.DriverID, a.ProgramID, a.PeriodKey, a.Metric).Scan(&a.ID, &a.AwardedAt)
	if err != nil {
		if isUniqueViolation(err, "bonus_awards_driver_id_program_id_period_key_key") {
			return apperr.Conflict("BONUS_ALREADY_AWARDED", "bonus already awarded for this period")
		}
		return apperr.Internal("insert bonus award", err)
	}
	return nil
}

// MetricForPeriod measures the driver's trip-count or earnings metric
// within the period identified by periodKey (§4.5 step 9). periodKey is
// reparsed back into a [start, end) UTC window using the same format
// earning.PeriodKey produces, so the query stays a plain date-range scan
// instead of depending on a bespoke SQL function.
func (r *BonusRepo) MetricForPeriod(ctx context.Context, driverID, programID string, period earning.PeriodType, periodKey string, metric earning.MetricType) (int, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return 0, err
	}

	start, end, err := periodWindow(period, periodKey)
	if err != nil {
		return 0, apperr.Internal("resolve bonus period window", err)
	}

	var query string
	switch metric {
	case earning.MetricTripCount:
		query = `SELECT count(*) FROM trips WHERE driver_id = $1 AND status = 'COMPLETED'`
	case earning.MetricEarnings:
		query = `SELECT coalesce(sum(coalesce(fare_final, fare_estimate)), 0) FROM trips WHERE driver_id = $1 AND status = 'COMPLETED'`
	default:
		return 0, apperr.Internal("metric for period", fmt.Errorf("unknown bonus metric type %q", metric))
	}
	if start != nil {
		query += ` AND trip_completed_at >= $2 AND trip_completed_at < $3`
	}

	var n int
	var scanErr error
	if start != nil {
		scanErr = tx.QueryRow(ctx, query, driverID, *start, *end).Scan(&n)
	} else {
		scanErr = tx.QueryRow(ctx, query, driverID).Scan(&n)
	}
	if scanErr != nil {
		return 0, apperr.Internal("measure bonus metric", scanErr)
	}
	return n, nil
}

// periodWindow reparses a periodKey (as produced by earning.PeriodKey) back
// into a [start, end) UTC window. Returns (nil, nil, nil) for LIFETIME,
// which has no window to filter on.
func periodWindow(period earning.PeriodType, periodKey string) (*time.Time, *time.Time, error) {
	switch period {
	case earning.PeriodDaily:
		d, err := time.Parse("2006-01-02", periodKey)
		if err != nil {
			return nil, nil, err
		}
		end := d.AddDate(0, 0, 1)
		return &d, &end, nil
	case earning.PeriodWeekly:
		var year, week int
		if _, err := fmt.Sscanf(periodKey, "%04d-W%02d", &year, &week); err != nil {
			return nil, nil, err
		}
		start := isoWeekStart(year, week)
		end := start.AddDate(0, 0, 7)
		return &start, &end, nil
	case earning.PeriodMonthly:
		m, err := time.Parse("2006-01", periodKey)
		if err != nil {
			return nil, nil, err
		}
		end := m.AddDate(0, 1, 0)
		return &m, &end, nil
	case earning.PeriodLifetime:
		return nil, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown period type %q", period)
	}
}

// isoWeekStart returns the UTC midnight of the Monday starting ISO week
// `week` of `year`.
func isoWeekStart(year, week int) time.Time {
	jan4 := time.Date(year, 1, 4, 0, 0, 0, 0, time.UTC)
	jan4Weekday := int(jan4.Weekday())
	if jan4Weekday == 0 {
		jan4Weekday = 7
	}
	week1Monday := jan4.AddDate(0, 0, -(jan4Weekday - 1))
	return week1Monday.AddDate(0, 0, (week-1)*7)
}
