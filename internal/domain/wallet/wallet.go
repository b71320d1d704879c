// Package wallet models DriverWallet and its append-only ledger (§3).
// Balance is a materialised sum of the ledger (invariant 5); every mutation
// goes through internal/earning inside a single database transaction.
package wallet

import (
	"errors"
	"time"
)

type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusFrozen    Status = "FROZEN"
	StatusSuspended Status = "SUSPENDED"
)

// Wallet is the per-driver cached-balance row.
type Wallet struct {
	DriverID        string
	Balance         int // XAF
	TotalEarned     int
	TotalCommission int
	TotalBonuses    int
	TotalPayouts    int
	LastPayoutAt    *time.Time
	Status          Status
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func NewWallet(driverID string) (*Wallet, error) {
	if driverID == "" {
		return nil, errors.New("driver id is required")
	}
	now := time.Now().UTC()
	return &Wallet{
		DriverID:  driverID,
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// TransactionType enumerates ledger entry kinds (§3 DriverWalletTransaction).
type TransactionType string

const (
	TxTripFare    TransactionType = "TRIP_FARE"
	TxCommission  TransactionType = "COMMISSION"
	TxBonusTrip   TransactionType = "BONUS_TRIP"
	TxBonusQuest  TransactionType = "BONUS_QUEST"
	TxAdjustment  TransactionType = "ADJUSTMENT"
	TxRefund      TransactionType = "REFUND"
	TxPayout      TransactionType = "PAYOUT"
)

// Transaction is one append-only ledger row. Amount is signed (credit +,
// debit -); BalanceAfter is the wallet balance snapshot once this entry is
// applied. Never updated, never deleted.
type Transaction struct {
	ID           string
	DriverID     string
	Type         TransactionType
	Amount       int
	BalanceAfter int
	Description  string
	TripID       *string
	ReceiptID    *string
	Metadata     map[string]any
	CreatedAt    time.Time
}
