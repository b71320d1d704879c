// Package account models the Account entity (§3): the identity shared by
// passengers, drivers, partners and admins, discriminated by Type rather
// than by separate tables or inheritance (see SPEC_FULL.md / DESIGN.md on
// polymorphism over user type).
package account

import (
	"errors"
	"strings"
	"time"
)

type Type string

const (
	TypePassenger Type = "PASSENGER"
	TypeDriver    Type = "DRIVER"
	TypePartner   Type = "PARTNER"
	TypeAdmin     Type = "ADMIN"
)

func (t Type) Valid() bool {
	switch t {
	case TypePassenger, TypeDriver, TypePartner, TypeAdmin:
		return true
	default:
		return false
	}
}

func (t Type) String() string { return string(t) }

type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusPending   Status = "PENDING"
	StatusSuspended Status = "SUSPENDED"
	StatusDeleted   Status = "DELETED"
)

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusPending, StatusSuspended, StatusDeleted:
		return true
	default:
		return false
	}
}

func (s Status) String() string { return string(s) }

var (
	ErrEmailRequired   = errors.New("email is required")
	ErrPhoneRequired   = errors.New("phone is required")
	ErrInvalidType     = errors.New("invalid account type")
	ErrInvalidStatus   = errors.New("invalid account status")
	ErrPasswordHash    = errors.New("password hash cannot be empty")
	ErrAlreadyDeleted  = errors.New("account already deleted")
)

// Account is the identity row shared by every user type (§3, §9 polymorphism).
type Account struct {
	ID                string
	Type              Type
	Email             string
	Phone             string // E.164
	PasswordHash      string
	EmailVerified     bool
	PhoneVerified     bool
	Status            Status
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// New constructs a PENDING account; it becomes ACTIVE once verified.
func New(id string, typ Type, email, phoneE164, passwordHash string) (*Account, error) {
	email = strings.TrimSpace(email)
	phoneE164 = strings.TrimSpace(phoneE164)
	if email == "" {
		return nil, ErrEmailRequired
	}
	if phoneE164 == "" {
		return nil, ErrPhoneRequired
	}
	if !typ.Valid() {
		return nil, ErrInvalidType
	}
	if strings.TrimSpace(passwordHash) == "" {
		return nil, ErrPasswordHash
	}

	now := time.Now().UTC()
	return &Account{
		ID:           id,
		Type:         typ,
		Email:        email,
		Phone:        phoneE164,
		PasswordHash: passwordHash,
		Status:       StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// Activate moves PENDING -> ACTIVE once verification completes.
func (a *Account) Activate() error {
	if a.Status == StatusDeleted {
		return ErrAlreadyDeleted
	}
	a.Status = StatusActive
	a.touch()
	return nil
}

// Suspend moves the account to SUSPENDED (back office action).
func (a *Account) Suspend() error {
	if a.Status == StatusDeleted {
		return ErrAlreadyDeleted
	}
	a.Status = StatusSuspended
	a.touch()
	return nil
}

// SoftDelete marks the account DELETED; terminal.
func (a *Account) SoftDelete() error {
	if a.Status == StatusDeleted {
		return ErrAlreadyDeleted
	}
	a.Status = StatusDeleted
	a.touch()
	return nil
}

func (a *Account) IsActive() bool { return a.Status == StatusActive }

func (a *Account) touch() { a.UpdatedAt = time.Now().UTC() }
