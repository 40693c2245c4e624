package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrEmailExists     = errors.New("email already exists")
	ErrInvalidEmail    = errors.New("invalid email format")
	ErrBlankPassword   = errors.New("password can't be blank")
	ErrLedgerRequired  = errors.New("role requires a ledger")
	ErrGlobalWithScope = errors.New("global role can't be bound to a ledger")
)

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, in NewUser) (*User, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, ErrInvalidEmail
	}
	if in.Password == "" {
		return nil, ErrBlankPassword
	}
	if _, err := ParseRole(in.Role.String()); err != nil {
		return nil, err
	}
	if in.Role.Global() && in.LedgerID != nil {
		return nil, ErrGlobalWithScope
	}
	if !in.Role.Global() && in.LedgerID == nil {
		return nil, ErrLedgerRequired
	}

	existing, err := r.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailExists
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	user := &User{
		ID:           uuid.New(),
		Name:         strings.TrimSpace(in.Name),
		Email:        email,
		Role:         in.Role,
		LedgerID:     in.LedgerID,
		IsActive:     true,
		PasswordHash: string(hashedPassword),
		CreatedAt:    time.Now().UTC(),
	}

	var ledgerID uuid.NullUUID
	if user.LedgerID != nil {
		ledgerID = uuid.NullUUID{UUID: *user.LedgerID, Valid: true}
	}

	query := `INSERT INTO users (id, email, name, password_hash, role, ledger_id, is_active, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err = r.db.ExecContext(ctx, query,
		user.ID,
		user.Email,
		user.Name,
		user.PasswordHash,
		user.Role,
		ledgerID,
		user.IsActive,
		user.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting user: %w", err)
	}

	return user, nil
}

const userColumns = `id, name, email, role, ledger_id, is_active, password_hash, created_at`

func (r *repository) scanUser(row *sql.Row) (*User, error) {
	var (
		user     User
		ledgerID uuid.NullUUID
	)
	err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.Role,
		&ledgerID,
		&user.IsActive,
		&user.PasswordHash,
		&user.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}
	if ledgerID.Valid {
		id := ledgerID.UUID
		user.LedgerID = &id
	}

	return &user, nil
}

func (r *repository) GetByEmail(ctx context.Context, email string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return r.scanUser(r.db.QueryRowContext(ctx, query, strings.ToLower(strings.TrimSpace(email))))
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.scanUser(r.db.QueryRowContext(ctx, query, id))
}

func (r *repository) VerifyPassword(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}
