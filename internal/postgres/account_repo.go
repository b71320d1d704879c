package postgres

import (
	"context"
	"time"

	"ride-hail/internal/apperr"
	"ride-hail/internal/domain/account"
	"ride-hail/internal/ports"
)

// AccountRepo persists Account rows using pgx and plain SQL.
type AccountRepo struct{}

// NewAccountRepo constructs a new AccountRepo.
func NewAccountRepo() ports.AccountRepository {
	return &AccountRepo{}
}

func (r *AccountRepo) Create(ctx context.Context, a *account.Account) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO accounts (
			id, type, email, phone_e164, password_hash,
			email_verified, phone_verified, status
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`,
		a.ID, a.Type.String(), a.Email, a.Phone, a.PasswordHash,
		a.EmailVerified, a.PhoneVerified, a.Status.String(),
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, "accounts_email_key") {
			return apperr.Conflict("EMAIL_TAKEN", "email is already registered")
		}
		if isUniqueViolation(err, "accounts_phone_e164_key") {
			return apperr.Conflict("PHONE_TAKEN", "phone number is already registered")
		}
		return apperr.Internal("create account", err)
	}
	return nil
}

func (r *AccountRepo) GetByID(ctx context.Context, id string) (*account.Account, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}
	return scanAccount(tx.QueryRow(ctx, `
		SELECT id, type, email, phone_e164, password_hash, email_verified,
		       phone_verified, status, created_at, updated_at
		FROM accounts
		WHERE id = $1
	`, id))
}

func (r *AccountRepo) GetByEmail(ctx context.Context, email string) (*account.Account, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}
	return scanAccount(tx.QueryRow(ctx, `
		SELECT id, type, email, phone_e164, password_hash, email_verified,
		       phone_verified, status, created_at, updated_at
		FROM accounts
		WHERE email = $1
	`, email))
}

func (r *AccountRepo) GetByPhone(ctx context.Context, phone string) (*account.Account, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}
	return scanAccount(tx.QueryRow(ctx, `
		SELECT id, type, email, phone_e164, password_hash, email_verified,
		       phone_verified, status, created_at, updated_at
		FROM accounts
		WHERE phone_e164 = $1
	`, phone))
}

func (r *AccountRepo) UpdateStatus(ctx context.Context, id string, status account.Status) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `
		UPDATE accounts SET status = $1, updated_at = now() WHERE id = $2
	`, status.String(), id)
	if err != nil {
		return apperr.Internal("update account status", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("ACCOUNT_NOT_FOUND", "account not found")
	}
	return nil
}

func (r *AccountRepo) DeleteStalePending(ctx context.Context, cutoff time.Time) (int, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return 0, err
	}
	tag, err := tx.Exec(ctx, `
		DELETE FROM accounts WHERE status = $1 AND created_at < $2
	`, account.StatusPending.String(), cutoff)
	if err != nil {
		return 0, apperr.Internal("delete stale pending accounts", err)
	}
	return int(tag.RowsAffected()), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*account.Account, error) {
	var (
		a          account.Account
		typ, stat  string
	)
	err := row.Scan(
		&a.ID, &typ, &a.Email, &a.Phone, &a.PasswordHash,
		&a.EmailVerified, &a.PhoneVerified, &stat, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, notFoundOrWrap(err, "ACCOUNT_NOT_FOUND", "account not found")
	}
	a.Type = account.Type(typ)
	a.Status = account.Status(stat)
	return &a, nil
}
