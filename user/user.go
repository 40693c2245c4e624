package user

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
	Role  Role      `json:"role"`
	// LedgerID is the tenant the user belongs to, nil for global roles.
	LedgerID     *uuid.UUID `json:"ledger_id,omitempty"`
	IsActive     bool       `json:"is_active"`
	PasswordHash string     `json:"-"`
	CreatedAt    time.Time  `json:"created_at"`
}

// CanAccess reports whether the user may read (or, with manage, modify) the given ledger.
func (u *User) CanAccess(ledgerID uuid.UUID, manage bool) bool {
	if u == nil || !u.IsActive {
		return false
	}
	if !u.Role.Global() && (u.LedgerID == nil || *u.LedgerID != ledgerID) {
		return false
	}
	if manage {
		return u.Role.CanManage()
	}
	return u.Role.CanView()
}

type NewUser struct {
	Email    string
	Name     string
	Password string
	Role     Role
	LedgerID *uuid.UUID
}

type Repository interface {
	Create(ctx context.Context, in NewUser) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	VerifyPassword(hashedPassword, password string) error
}
