package realm

import (
	"context"

	"github.com/udisondev/bnetgo/internal/model"
)

// CharacterRepository is the character persistence the realm handlers need.
// db.CharacterRepository satisfies it; tests substitute an in-memory fake.
type CharacterRepository interface {
	// FindByAccount returns the account's characters, most recently played
	// first.
	FindByAccount(ctx context.Context, accountName string) ([]*model.Character, error)

	// FindByAccountAndName returns nil, nil when the character does not exist.
	FindByAccountAndName(ctx context.Context, accountName, name string) (*model.Character, error)

	// IsNameAvailable reports whether no character uses the name, realm-wide.
	IsNameAvailable(ctx context.Context, name string) (bool, error)

	// Create returns false when the name collides.
	Create(ctx context.Context, c *model.Character) (bool, error)

	// Delete returns false when no character matched.
	Delete(ctx context.Context, accountName, name string) (bool, error)

	UpdateLastPlayed(ctx context.Context, accountName, name string) error
}
