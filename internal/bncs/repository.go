package bncs

import (
	"context"

	"github.com/udisondev/bnetgo/internal/model"
)

// AccountRepository is the account persistence the chat handlers need.
// db.AccountRepository satisfies it; tests substitute an in-memory fake.
type AccountRepository interface {
	// Find returns nil, nil when the account does not exist.
	Find(ctx context.Context, username string) (*model.Account, error)

	// Create returns false when the username is already taken.
	Create(ctx context.Context, username string, passwordHash []byte) (bool, error)

	UpdateLastLogin(ctx context.Context, username, ip string) error
}
