package postgres

import (
	"context"
	"encoding/json"
	"time"

	"ride-hail/internal/apperr"
	"ride-hail/internal/domain/earning"
	"ride-hail/internal/ports"
)

// EarningRuleRepo reads priority-ordered commission/bonus rules (§3, §4.5
// step 3).
type EarningRuleRepo struct{}

// NewEarningRuleRepo constructs a new EarningRuleRepo.
func NewEarningRuleRepo() ports.EarningRuleRepository {
	return &EarningRuleRepo{}
}

func (r *EarningRuleRepo) ListActive(ctx context.Context, now time.Time) ([]earning.Rule, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
		SELECT id, priority, type, condition, applies_to, valid_from, valid_to,
		       is_active, commission_rate, bonus_amount, bonus_multiplier
		FROM earning_rules
		WHERE is_active = true
		  AND valid_from <= $1
		  AND (valid_to IS NULL OR valid_to >= $1)
		ORDER BY priority DESC
	`, now)
	if err != nil {
		return nil, apperr.Internal("list active earning rules", err)
	}
	defer rows.Close()

	var out []earning.Rule
	for rows.Next() {
		var (
			rule        earning.Rule
			typ, apply  string
			rawCond     []byte
		)
		if err := rows.Scan(
			&rule.ID, &rule.Priority, &typ, &rawCond, &apply, &rule.ValidFrom, &rule.ValidTo,
			&rule.IsActive, &rule.CommissionRate, &rule.BonusAmount, &rule.BonusMultiplier,
		); err != nil {
			return nil, apperr.Internal("scan earning rule", err)
		}
		rule.Type = earning.RuleType(typ)
		rule.AppliesTo = earning.AppliesTo(apply)
		if len(rawCond) > 0 {
			if err := json.Unmarshal(rawCond, &rule.Condition); err != nil {
				return nil, apperr.Internal("decode earning rule condition", err)
			}
		}
		out = append(out, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internal("iterate earning rules", err)
	}
	return out, nil
}
