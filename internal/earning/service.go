// Package earning implements the Earnings Engine (§4.5): the idempotent,
// transactional settlement of commission, bonuses and quest awards that
// the trip state machine triggers synchronously on COMPLETED.
package earning

import (
	"context"
	"fmt"
	"math"
	"time"

	"ride-hail/internal/apperr"
	"ride-hail/internal/domain/earning"
	"ride-hail/internal/domain/trip"
	"ride-hail/internal/domain/wallet"
	"ride-hail/internal/general/logger"
	"ride-hail/internal/ports"

	"github.com/google/uuid"
)

// Service implements ports.EarningsService, grounded on the same
// uow.WithinTx + repository-call shape as internal/tripstate.Service. When
// invoked from inside tripstate's own transaction (§4.5 "Trigger"),
// SettleTrip joins that transaction through WithinTx's already-open-tx
// passthrough (internal/postgres/uow.go); called directly, as
// RetrySettlement does, it opens its own.
type Service struct {
	uow           ports.UnitOfWork
	receipts      ports.ReceiptRepository
	wallets       ports.WalletRepository
	rules         ports.EarningRuleRepository
	bonuses       ports.BonusRepository
	driverProfile ports.DriverProfileRepository
	trips         ports.TripRepository
	log           *logger.Logger
}

// New constructs an earnings Service.
func New(
	uow ports.UnitOfWork,
	receipts ports.ReceiptRepository,
	wallets ports.WalletRepository,
	rules ports.EarningRuleRepository,
	bonuses ports.BonusRepository,
	driverProfile ports.DriverProfileRepository,
	trips ports.TripRepository,
	log *logger.Logger,
) *Service {
	return &Service{
		uow: uow, receipts: receipts, wallets: wallets, rules: rules,
		bonuses: bonuses, driverProfile: driverProfile, trips: trips, log: log,
	}
}

var _ ports.EarningsService = (*Service)(nil)

// SettleTrip runs §4.5's ten-step settlement. Idempotency is anchored at
// step 1: a UNIQUE(trip_id) violation on trip_receipts means this trip has
// already been through settlement (or a crash left it PENDING mid-flight),
// so a duplicate invocation never double-posts ledger entries.
func (s *Service) SettleTrip(ctx context.Context, in ports.SettleTripInput) (*ports.SettleTripResult, error) {
	var result *ports.SettleTripResult

	err := s.uow.WithinTx(ctx, func(txCtx context.Context) error {
		pending, err := earning.NewPendingReceipt(uuid.NewString(), in.TripID, in.DriverID, in.PassengerID, in.GrossFare, in.PaymentMethod)
		if err != nil {
			return apperr.Internal("build pending receipt", err)
		}

		receipt, fresh, err := s.receipts.InsertPending(txCtx, pending)
		if err != nil {
			return err
		}
		if !fresh && receipt.Status == earning.ReceiptSettled {
			result = &ports.SettleTripResult{Receipt: receipt, AlreadyProcessed: true}
			return nil
		}
		// fresh==true, or fresh==false with status PENDING (crash recovery):
		// continue the settlement using the just-inserted/loaded receipt id.

		driverTier := in.DriverTier
		if driverTier == "" {
			if profile, perr := s.driverProfile.GetByAccountID(txCtx, in.DriverID); perr == nil && profile != nil {
				driverTier = profile.Tier
			}
		}

		tripTime := in.TripTime
		if tripTime.IsZero() {
			tripTime = time.Now().UTC()
		}
		evalCtx := earning.Context{
			Fare:          in.GrossFare,
			City:          in.City,
			TripHour:      tripTime.Local().Hour(),
			TripDayOfWeek: int(tripTime.Local().Weekday()),
			DistanceM:     in.DistanceM,
			PaymentMethod: in.PaymentMethod,
			DriverTier:    driverTier,
			PickupZone:    in.PickupZone,
		}

		rules, err := s.rules.ListActive(txCtx, tripTime)
		if err != nil {
			return err
		}

		commissionRate := earning.DefaultCommissionRate
		var commissionRuleID *string
		bonusTotal := 0
		var applied []earning.AppliedRule

		commissionChosen := false
		for _, rule := range rules {
			matched := rule.Matches(evalCtx, tripTime)
			record := earning.AppliedRule{RuleID: rule.ID, Type: rule.Type, Matched: matched}

			switch rule.Type {
			case earning.RuleCommissionPercent:
				if matched && !commissionChosen {
					commissionRate = rule.CommissionRate
					id := rule.ID
					commissionRuleID = &id
					commissionChosen = true
					record.Rate = rule.CommissionRate
				}
			case earning.RuleBonusFlat:
				if matched {
					bonusTotal += rule.BonusAmount
					record.Amount = rule.BonusAmount
				}
			case earning.RuleBonusMultiplier:
				if matched {
					amt := int(math.Round(float64(in.GrossFare) * rule.BonusMultiplier))
					bonusTotal += amt
					record.Amount = amt
					record.Rate = rule.BonusMultiplier
				}
			case earning.RulePenalty:
				// Penalty rules are evaluated and recorded for audit but §4.5
				// does not define a disbursement path for them; no ledger
				// entry is written.
			}
			applied = append(applied, record)
		}

		commissionAmount := int(math.Round(float64(in.GrossFare) * commissionRate))
		driverNet := in.GrossFare - commissionAmount + bonusTotal

		if _, err := s.wallets.EnsureExists(txCtx, in.DriverID); err != nil {
			return err
		}
		w, err := s.wallets.GetForUpdate(txCtx, in.DriverID)
		if err != nil {
			return err
		}

		balance := w.Balance
		if err := s.postLedgerEntry(txCtx, in.DriverID, wallet.TxTripFare, in.GrossFare, &balance, in.TripID, receipt.ID, "trip fare"); err != nil {
			return err
		}
		if err := s.postLedgerEntry(txCtx, in.DriverID, wallet.TxCommission, -commissionAmount, &balance, in.TripID, receipt.ID, "platform commission"); err != nil {
			return err
		}
		if bonusTotal > 0 {
			if err := s.postLedgerEntry(txCtx, in.DriverID, wallet.TxBonusTrip, bonusTotal, &balance, in.TripID, receipt.ID, "trip bonus"); err != nil {
				return err
			}
		}

		if _, err := s.wallets.ApplyDelta(txCtx, in.DriverID, driverNet, in.GrossFare, commissionAmount, bonusTotal); err != nil {
			return err
		}

		questBonus, err := s.evaluateQuests(txCtx, in.DriverID, tripTime, &balance, in.TripID, receipt.ID)
		if err != nil {
			return err
		}

		if err := s.receipts.Settle(txCtx, in.TripID, commissionRate, commissionAmount, bonusTotal, driverNet, commissionRuleID, applied, time.Now().UTC()); err != nil {
			return err
		}

		settled, err := s.receipts.GetByTripID(txCtx, in.TripID)
		if err != nil {
			return err
		}
		_ = questBonus
		result = &ports.SettleTripResult{Receipt: settled, AlreadyProcessed: false}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RetrySettlement re-runs settlement for an already-COMPLETED trip,
// rebuilding the SettleTripInput from the durable trip row rather than
// requiring the caller to resupply it. It exists because the normal
// settlement call inside tripstate.CompleteTrip happens exactly once, guarded
// by the trip's own state transition — if that single call failed to post a
// receipt (e.g. the process crashed between InsertPending and Settle), there
// would otherwise be no way to make a second attempt without re-completing
// the trip. Hits the same UNIQUE(trip_id) idempotency anchor as SettleTrip,
// so calling it against an already-settled trip is always safe and reports
// AlreadyProcessed.
func (s *Service) RetrySettlement(ctx context.Context, tripID string) (*ports.SettleTripResult, error) {
	var t *trip.Trip
	err := s.uow.WithinTx(ctx, func(txCtx context.Context) error {
		var err error
		t, err = s.trips.GetByID(txCtx, tripID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if t.Status != trip.StatusCompleted {
		return nil, apperr.Precondition("TRIP_NOT_COMPLETED", "settlement can only be retried for a completed trip")
	}
	if t.DriverID == nil {
		return nil, apperr.Internal("retry settlement", fmt.Errorf("completed trip %s has no driver", t.ID))
	}

	gross := t.FareEstimate
	if t.FareFinal != nil && *t.FareFinal > 0 {
		gross = *t.FareFinal
	}
	return s.SettleTrip(ctx, ports.SettleTripInput{
		TripID:        t.ID,
		DriverID:      *t.DriverID,
		PassengerID:   t.PassengerID,
		GrossFare:     gross,
		City:          t.Pickup.Address,
		TripTime:      t.UpdatedAt,
		DistanceM:     t.DistanceM,
		PaymentMethod: string(t.PaymentMethod),
		PickupZone:    t.Pickup.Address,
	})
}

// postLedgerEntry appends one ledger row, advancing *runningBalance so
// consecutive entries within the same settlement each carry the correct
// balanceAfter snapshot (§4.5 step 7: "each with balanceAfter computed from
// wallet.balance snapshot").
func (s *Service) postLedgerEntry(ctx context.Context, driverID string, typ wallet.TransactionType, amount int, runningBalance *int, tripID, receiptID, description string) error {
	*runningBalance += amount
	tID, rID := tripID, receiptID
	tx := &wallet.Transaction{
		DriverID:     driverID,
		Type:         typ,
		Amount:       amount,
		BalanceAfter: *runningBalance,
		Description:  description,
		TripID:       &tID,
		ReceiptID:    &rID,
	}
	return s.wallets.InsertTransaction(ctx, tx)
}

// evaluateQuests implements §4.5 step 9: for every active BonusProgram,
// check whether this driver has already been awarded this period (the
// UNIQUE(driverId, programId, periodKey) idempotency anchor), and if not,
// measure the period metric including this trip and award if it clears the
// target.
func (s *Service) evaluateQuests(ctx context.Context, driverID string, at time.Time, runningBalance *int, tripID, receiptID string) (int, error) {
	programs, err := s.bonuses.ListActivePrograms(ctx)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, program := range programs {
		periodKey := earning.PeriodKey(program.Period, at)

		has, err := s.bonuses.HasAward(ctx, driverID, program.ID, periodKey)
		if err != nil {
			return 0, err
		}
		if has {
			continue
		}

		metric, err := s.bonuses.MetricForPeriod(ctx, driverID, program.ID, program.Period, periodKey, program.Metric)
		if err != nil {
			return 0, err
		}
		if metric < program.TargetValue {
			continue
		}

		award := &earning.Award{DriverID: driverID, ProgramID: program.ID, PeriodKey: periodKey, Metric: metric}
		if err := s.bonuses.InsertAward(ctx, award); err != nil {
			if ae, ok := apperr.As(err); ok && ae.Code == "BONUS_ALREADY_AWARDED" {
				// Lost a race with another settlement for the same
				// period (e.g. two trips completing back to back);
				// the other one already posted the award.
				continue
			}
			return 0, err
		}

		if err := s.postLedgerEntry(ctx, driverID, wallet.TxBonusQuest, program.BonusAmount, runningBalance, tripID, receiptID, fmt.Sprintf("quest award: %s", program.Name)); err != nil {
			return 0, err
		}
		if _, err := s.wallets.ApplyDelta(ctx, driverID, program.BonusAmount, 0, 0, program.BonusAmount); err != nil {
			return 0, err
		}

		total += program.BonusAmount
		s.log.Info(ctx, "bonus_quest_awarded", "Driver cleared a bonus program threshold", map[string]any{
			"driver_id": driverID, "program_id": program.ID, "period_key": periodKey, "amount": program.BonusAmount,
		})
	}
	return total, nil
}

// GetWalletSummary is the supplemented driver earnings summary read path
// (§6.1 driver_wallets / driver_wallet_transactions); not part of the §4.5
// transactional write path, so it runs its own short read-only transaction.
func (s *Service) GetWalletSummary(ctx context.Context, driverID string) (*ports.WalletSummary, error) {
	var out *ports.WalletSummary
	err := s.uow.WithinTx(ctx, func(txCtx context.Context) error {
		w, err := s.wallets.EnsureExists(txCtx, driverID)
		if err != nil {
			return err
		}
		out = &ports.WalletSummary{
			DriverID:        w.DriverID,
			Balance:         w.Balance,
			TotalEarned:     w.TotalEarned,
			TotalCommission: w.TotalCommission,
			TotalBonuses:    w.TotalBonuses,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
