package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/udisondev/bnetgo/internal/model"
)

// AccountRepository manages player accounts.
type AccountRepository struct {
	db *pgxpool.Pool
}

// NewAccountRepository creates an AccountRepository over the pool.
func NewAccountRepository(db *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{db: db}
}

// Find loads an account by username. Returns nil, nil when absent.
func (r *AccountRepository) Find(ctx context.Context, username string) (*model.Account, error) {
	var acc model.Account
	err := r.db.QueryRow(ctx,
		`SELECT username, password_hash, created_at, last_login_at, COALESCE(last_ip, '')
		 FROM accounts WHERE username = $1`, strings.ToLower(username),
	).Scan(&acc.Username, &acc.PasswordHash, &acc.CreatedAt, &acc.LastLoginAt, &acc.LastIP)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying account %q: %w", username, err)
	}
	return &acc, nil
}

// Create inserts a new account with its 20-byte password hash. Returns
// false when the username is already taken.
func (r *AccountRepository) Create(ctx context.Context, username string, passwordHash []byte) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`INSERT INTO accounts (username, password_hash, created_at, last_login_at)
		 VALUES ($1, $2, now(), now())
		 ON CONFLICT (username) DO NOTHING`,
		strings.ToLower(username), passwordHash,
	)
	if err != nil {
		return false, fmt.Errorf("creating account %q: %w", username, err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}
	slog.Info("created account", "username", strings.ToLower(username))
	return true, nil
}

// UpdateLastLogin records a successful logon.
func (r *AccountRepository) UpdateLastLogin(ctx context.Context, username, ip string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE accounts SET last_login_at = $1, last_ip = $2 WHERE username = $3`,
		time.Now(), ip, strings.ToLower(username),
	)
	if err != nil {
		return fmt.Errorf("updating last login for %q: %w", username, err)
	}
	return nil
}
