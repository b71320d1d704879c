package ports

import (
	"context"
	"time"

	"ride-hail/internal/domain/account"
	"ride-hail/internal/domain/chat"
	"ride-hail/internal/domain/driverprofile"
	"ride-hail/internal/domain/driversession"
	"ride-hail/internal/domain/earning"
	"ride-hail/internal/domain/rating"
	"ride-hail/internal/domain/trip"
	"ride-hail/internal/domain/wallet"
)

// UnitOfWork interface is used to manage transactions across multiple repository operations.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// AccountRepository defines the methods for managing account data.
type AccountRepository interface {
	Create(ctx context.Context, a *account.Account) error
	GetByID(ctx context.Context, id string) (*account.Account, error)
	GetByEmail(ctx context.Context, email string) (*account.Account, error)
	GetByPhone(ctx context.Context, phone string) (*account.Account, error)
	UpdateStatus(ctx context.Context, id string, status account.Status) error
	// DeleteStalePending removes accounts that never completed signup
	// verification (§4.7 pending-signup sweep): still PENDING, created
	// before cutoff. Returns the number of rows removed.
	DeleteStalePending(ctx context.Context, cutoff time.Time) (int, error)
}

// DriverProfileRepository defines the methods for managing driver profile data.
type DriverProfileRepository interface {
	Create(ctx context.Context, d *driverprofile.DriverProfile) error
	GetByAccountID(ctx context.Context, accountID string) (*driverprofile.DriverProfile, error)
	UpdateOperationalStatus(ctx context.Context, accountID string, status driverprofile.OperationalStatus) error
	ApplyRating(ctx context.Context, accountID string, stars int) error
}

// TripRepository defines the methods for managing the durable Trip row
// (§3), created only at MATCHED (invariant 2).
type TripRepository interface {
	Create(ctx context.Context, t *trip.Trip) error
	GetByID(ctx context.Context, id string) (*trip.Trip, error)
	GetActiveForDriver(ctx context.Context, driverID string) (*trip.Trip, error)
	UpdateStatus(ctx context.Context, id string, status trip.Status, now time.Time) error
	MarkEnRoute(ctx context.Context, id string, now time.Time) error
	MarkArrived(ctx context.Context, id string, now time.Time) error
	MarkStarted(ctx context.Context, id string, now time.Time) error
	MarkCompleted(ctx context.Context, id string, fareFinal int, now time.Time) error
	MarkCanceled(ctx context.Context, id string, reason string, by trip.CanceledBy, now time.Time) error
	MarkNoShow(ctx context.Context, id string, now time.Time) error
	CountCreatedBetween(ctx context.Context, start, end time.Time) (int, error)
	CancellationRateBetween(ctx context.Context, start, end time.Time) (float64, error)
	SumFareCompletedBetween(ctx context.Context, start, end time.Time) (int, error)
	// CountActive counts trips in any non-terminal status, for the admin
	// overview's live load metric.
	CountActive(ctx context.Context) (int, error)
}

// TripEventRepository defines the methods for appending trip lifecycle events.
type TripEventRepository interface {
	Append(ctx context.Context, e *trip.Event) error
	ListByTrip(ctx context.Context, tripID string) ([]trip.Event, error)
}

// ChatRepository defines the methods for managing durable chat messages.
type ChatRepository interface {
	Insert(ctx context.Context, m *chat.Message) error
	ListByTrip(ctx context.Context, tripID string) ([]*chat.Message, error)
	MarkReadForRecipient(ctx context.Context, tripID, recipientID string) (int, error)
}

// RatingRepository defines the methods for managing trip ratings.
type RatingRepository interface {
	Insert(ctx context.Context, r *rating.Rating) error
	Exists(ctx context.Context, tripID, ratedBy string) (bool, error)
}

// DriverSessionRepository persists the online-period summaries behind
// GoOnline/GoOffline (§4.1, §4.7).
type DriverSessionRepository interface {
	Start(ctx context.Context, driverID string) (string, error)
	GetActiveForDriver(ctx context.Context, driverID string) (*driversession.Session, error)
	IncrementCounters(ctx context.Context, sessionID string, earnings int) error
	End(ctx context.Context, sessionID string) (*driversession.Session, error)
}

// WalletRepository is the ledger + materialised-balance store underpinning
// C7's transactional settlement (§4.5).
type WalletRepository interface {
	GetForUpdate(ctx context.Context, driverID string) (*wallet.Wallet, error)
	EnsureExists(ctx context.Context, driverID string) (*wallet.Wallet, error)
	ApplyDelta(ctx context.Context, driverID string, balanceDelta, earnedDelta, commissionDelta, bonusDelta int) (*wallet.Wallet, error)
	InsertTransaction(ctx context.Context, tx *wallet.Transaction) error
}

// ReceiptRepository defines the methods for managing earnings receipts.
type ReceiptRepository interface {
	// InsertPending inserts a PENDING receipt. Returns (receipt, true, nil)
	// when freshly inserted, or (existing, false, nil) when UNIQUE(tripId)
	// already holds a row (§4.5 step 1 idempotency anchor).
	InsertPending(ctx context.Context, r *earning.Receipt) (*earning.Receipt, bool, error)
	GetByTripID(ctx context.Context, tripID string) (*earning.Receipt, error)
	Settle(ctx context.Context, tripID string, commissionRate float64, commissionAmount, bonusTotal, driverNet int, commissionRuleID *string, appliedRules []earning.AppliedRule, now time.Time) error
}

// EarningRuleRepository defines the methods for reading earning rules.
type EarningRuleRepository interface {
	ListActive(ctx context.Context, now time.Time) ([]earning.Rule, error)
}

// BonusRepository defines the methods for evaluating and recording bonus awards.
type BonusRepository interface {
	ListActivePrograms(ctx context.Context) ([]earning.Program, error)
	HasAward(ctx context.Context, driverID, programID, periodKey string) (bool, error)
	InsertAward(ctx context.Context, a *earning.Award) error
	MetricForPeriod(ctx context.Context, driverID, programID string, period earning.PeriodType, periodKey string, metric earning.MetricType) (int, error)
}
