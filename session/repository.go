package session

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const tokenBytes = 32

type repository struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

// NewRepository stores sessions that expire ttl after creation. A non-positive ttl falls back
// to DefaultTTL.
func NewRepository(db *sql.DB, ttl time.Duration) *repository {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &repository{db: db, ttl: ttl, now: time.Now}
}

func (r *repository) Create(ctx context.Context, userID uuid.UUID) (*Session, error) {
	token, err := newToken()
	if err != nil {
		return nil, fmt.Errorf("generating session token: %w", err)
	}

	now := r.now().UTC()
	s := &Session{
		ID:        uuid.New(),
		UserID:    userID,
		Token:     token,
		ExpiresAt: now.Add(r.ttl),
		CreatedAt: now,
	}

	statement := `INSERT INTO sessions (id, user_id, token_hash, expires_at, created_at) VALUES ($1, $2, $3, $4, $5)`
	if _, err := r.db.ExecContext(ctx, statement, s.ID, s.UserID, digest(token), s.ExpiresAt, s.CreatedAt); err != nil {
		return nil, err
	}
	return s, nil
}

// GetByToken returns the live session for token. Unknown tokens give ErrInvalidSession and
// stale ones ErrExpiredSession.
func (r *repository) GetByToken(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, ErrInvalidSession
	}

	s := Session{Token: token}
	query := `SELECT id, user_id, expires_at, created_at FROM sessions WHERE token_hash = $1`
	err := r.db.QueryRowContext(ctx, query, digest(token)).Scan(&s.ID, &s.UserID, &s.ExpiresAt, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvalidSession
	}
	if err != nil {
		return nil, err
	}

	if s.Expired(r.now()) {
		return nil, ErrExpiredSession
	}
	return &s, nil
}

func (r *repository) Delete(ctx context.Context, token string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE token_hash = $1`, digest(token))
	return err
}

// DeleteByUserID ends every session of the user.
func (r *repository) DeleteByUserID(ctx context.Context, userID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID)
	return err
}

// DeleteExpired purges sessions that expired before now and returns how many were removed.
func (r *repository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at < $1`, now.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func newToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func digest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
