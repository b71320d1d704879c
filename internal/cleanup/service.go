// Package cleanup implements the periodic hygiene sweeps (C9, §4.7): pending
// signups that never verified, presence state a dead client left behind, and
// dispatch offers that outlived the trip they were offering.
package cleanup

import (
	"context"
	"time"

	"ride-hail/internal/apperr"
	"ride-hail/internal/general/logger"
	"ride-hail/internal/ports"
)

const (
	pendingSignupMaxAge  = 24 * time.Hour
	stalePresenceMaxAge  = time.Hour
)

// Service implements ports.CleanupService by delegating each sweep to the
// component that owns the state being cleaned, the same way tripstate.Service
// delegates settlement to the earnings engine rather than reaching into its
// tables directly.
type Service struct {
	uow      ports.UnitOfWork
	accounts ports.AccountRepository
	presence ports.PresenceService
	dispatch ports.DispatchService
	log      *logger.Logger
}

// New constructs a cleanup Service.
func New(uow ports.UnitOfWork, accounts ports.AccountRepository, presence ports.PresenceService, dispatch ports.DispatchService, log *logger.Logger) *Service {
	return &Service{uow: uow, accounts: accounts, presence: presence, dispatch: dispatch, log: log}
}

var _ ports.CleanupService = (*Service)(nil)

// RunPendingSignupSweep deletes accounts that have sat in PENDING for longer
// than pendingSignupMaxAge without completing verification.
func (s *Service) RunPendingSignupSweep(ctx context.Context, now time.Time) (int, error) {
	var n int
	err := s.uow.WithinTx(ctx, func(txCtx context.Context) error {
		var err error
		n, err = s.accounts.DeleteStalePending(txCtx, now.Add(-pendingSignupMaxAge))
		return err
	})
	if err != nil {
		return 0, apperr.Internal("pending signup sweep", err)
	}
	if n > 0 {
		s.log.Info(ctx, "cleanup_pending_signups_swept", "Removed stale pending accounts", map[string]any{"count": n})
	}
	return n, nil
}

// RunStalePresenceSweep offlines drivers whose presence state was never torn
// down cleanly (app crash, lost connection without a goOffline call).
func (s *Service) RunStalePresenceSweep(ctx context.Context, now time.Time) (int, error) {
	n, err := s.presence.SweepStalePresence(ctx, stalePresenceMaxAge)
	if err != nil {
		return 0, apperr.Internal("stale presence sweep", err)
	}
	return n, nil
}

// RunExpiredOfferSweep prunes dispatch offers that outlived their trip.
func (s *Service) RunExpiredOfferSweep(ctx context.Context, now time.Time) (int, error) {
	n, err := s.dispatch.PruneOrphanedOffers(ctx)
	if err != nil {
		return 0, apperr.Internal("expired offer sweep", err)
	}
	return n, nil
}
