package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/udisondev/bnetgo/internal/model"
)

// CharacterRepository manages realm characters.
type CharacterRepository struct {
	db *pgxpool.Pool
}

// NewCharacterRepository creates a CharacterRepository over the pool.
func NewCharacterRepository(db *pgxpool.Pool) *CharacterRepository {
	return &CharacterRepository{db: db}
}

const characterColumns = `account_name, name, class, level,
	expansion, hardcore, dead, ladder, created_at, last_played_at`

func scanCharacter(row pgx.Row) (*model.Character, error) {
	var c model.Character
	var class int32
	err := row.Scan(&c.AccountName, &c.Name, &class, &c.Level,
		&c.Expansion, &c.Hardcore, &c.Dead, &c.Ladder, &c.CreatedAt, &c.LastPlayedAt)
	if err != nil {
		return nil, err
	}
	c.Class = model.Class(class)
	return &c, nil
}

// FindByAccount returns the account's characters, most recently played first.
func (r *CharacterRepository) FindByAccount(ctx context.Context, accountName string) ([]*model.Character, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+characterColumns+`
		 FROM characters WHERE account_name = $1
		 ORDER BY last_played_at DESC`,
		strings.ToLower(accountName),
	)
	if err != nil {
		return nil, fmt.Errorf("querying characters for %q: %w", accountName, err)
	}
	defer rows.Close()

	var chars []*model.Character
	for rows.Next() {
		c, err := scanCharacter(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning character row: %w", err)
		}
		chars = append(chars, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating character rows: %w", err)
	}
	return chars, nil
}

// FindByAccountAndName loads one character. Returns nil, nil when absent.
func (r *CharacterRepository) FindByAccountAndName(ctx context.Context, accountName, name string) (*model.Character, error) {
	c, err := scanCharacter(r.db.QueryRow(ctx,
		`SELECT `+characterColumns+`
		 FROM characters WHERE account_name = $1 AND lower(name) = lower($2)`,
		strings.ToLower(accountName), name,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying character %q/%q: %w", accountName, name, err)
	}
	return c, nil
}

// IsNameAvailable reports whether no character uses the name, realm-wide.
func (r *CharacterRepository) IsNameAvailable(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM characters WHERE lower(name) = lower($1))`, name,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking character name %q: %w", name, err)
	}
	return !exists, nil
}

// Create inserts a new character. Returns false when the name collides.
func (r *CharacterRepository) Create(ctx context.Context, c *model.Character) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`INSERT INTO characters (account_name, name, class, level,
		        expansion, hardcore, dead, ladder, created_at, last_played_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
		 ON CONFLICT (lower(name)) DO NOTHING`,
		strings.ToLower(c.AccountName), c.Name, int32(c.Class), c.Level,
		c.Expansion, c.Hardcore, c.Dead, c.Ladder,
	)
	if err != nil {
		return false, fmt.Errorf("creating character %q: %w", c.Name, err)
	}
	return tag.RowsAffected() > 0, nil
}

// Delete removes a character by name. Returns false when no row matched.
func (r *CharacterRepository) Delete(ctx context.Context, accountName, name string) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM characters WHERE account_name = $1 AND lower(name) = lower($2)`,
		strings.ToLower(accountName), name,
	)
	if err != nil {
		return false, fmt.Errorf("deleting character %q/%q: %w", accountName, name, err)
	}
	return tag.RowsAffected() > 0, nil
}

// UpdateLastPlayed bumps the character's last played timestamp.
func (r *CharacterRepository) UpdateLastPlayed(ctx context.Context, accountName, name string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE characters SET last_played_at = $1
		 WHERE account_name = $2 AND lower(name) = lower($3)`,
		time.Now(), strings.ToLower(accountName), name,
	)
	if err != nil {
		return fmt.Errorf("updating last played for %q/%q: %w", accountName, name, err)
	}
	return nil
}
