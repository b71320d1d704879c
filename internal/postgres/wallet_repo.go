package postgres

import (
	"context"
	"encoding/json"

	"ride-hail/internal/apperr"
	"ride-hail/internal/domain/wallet"
	"ride-hail/internal/ports"
)

// WalletRepo is the ledger + materialised-balance store underpinning C7's
// transactional settlement (§4.5). Every mutation runs inside the caller's
// UnitOfWork transaction; concurrent settlements for the same driver
// serialize on the wallet row via GetForUpdate's FOR UPDATE lock (§5).
type WalletRepo struct{}

// NewWalletRepo constructs a new WalletRepo.
func NewWalletRepo() ports.WalletRepository {
	return &WalletRepo{}
}

func scanWallet(row rowScanner) (*wallet.Wallet, error) {
	var (
		w      wallet.Wallet
		status string
	)
	err := row.Scan(
		&w.DriverID, &w.Balance, &w.TotalEarned, &w.TotalCommission,
		&w.TotalBonuses, &w.TotalPayouts, &w.LastPayoutAt, &status,
		&w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		return nil, notFoundOrWrap(err, "WALLET_NOT_FOUND", "wallet not found")
	}
	w.Status = wallet.Status(status)
	return &w, nil
}

const walletColumns = `
	driver_id, balance, total_earned, total_commission,
	total_bonuses, total_payouts, last_payout_at, status,
	created_at, updated_at
`

// GetForUpdate row-locks the wallet for the duration of the caller's
// transaction (§5: "concurrent attempts on the same driver serialize on the
// wallet row").
func (r *WalletRepo) GetForUpdate(ctx context.Context, driverID string) (*wallet.Wallet, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}
	return scanWallet(tx.QueryRow(ctx, `
		SELECT `+walletColumns+` FROM driver_wallets WHERE driver_id = $1 FOR UPDATE
	`, driverID))
}

// EnsureExists creates a zero-balance wallet row if one does not already
// exist, then returns it row-locked.
func (r *WalletRepo) EnsureExists(ctx context.Context, driverID string) (*wallet.Wallet, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO driver_wallets (driver_id, status)
		VALUES ($1, $2)
		ON CONFLICT (driver_id) DO NOTHING
	`, driverID, string(wallet.StatusActive))
	if err != nil {
		return nil, apperr.Internal("ensure wallet exists", err)
	}
	return r.GetForUpdate(ctx, driverID)
}

// ApplyDelta adjusts the wallet's cached totals by the given deltas and
// returns the resulting row (§4.5 step 8).
func (r *WalletRepo) ApplyDelta(ctx context.Context, driverID string, balanceDelta, earnedDelta, commissionDelta, bonusDelta int) (*wallet.Wallet, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}
	return scanWallet(tx.QueryRow(ctx, `
		UPDATE driver_wallets
		SET balance = balance + $1,
		    total_earned = total_earned + $2,
		    total_commission = total_commission + $3,
		    total_bonuses = total_bonuses + $4,
		    updated_at = now()
		WHERE driver_id = $5
		RETURNING `+walletColumns, balanceDelta, earnedDelta, commissionDelta, bonusDelta, driverID))
}

// InsertTransaction appends one ledger row (§3 DriverWalletTransaction,
// never updated or deleted once written).
func (r *WalletRepo) InsertTransaction(ctx context.Context, t *wallet.Transaction) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	meta, err := json.Marshal(t.Metadata)
	if err != nil {
		return apperr.Internal("marshal transaction metadata", err)
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO driver_wallet_transactions (
			driver_id, type, amount, balance_after, description, trip_id, receipt_id, metadata
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8::jsonb)
		RETURNING id, created_at
	`,
		t.DriverID, string(t.Type), t.Amount, t.BalanceAfter, t.Description,
		t.TripID, t.ReceiptID, string(meta),
	).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return apperr.Internal("insert wallet transaction", err)
	}
	return nil
}
