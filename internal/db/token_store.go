package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/udisondev/bnetgo/internal/model"
)

// TokenStore persists realm hand-off tokens. Expiry is enforced in the
// queries themselves: the consume statement only matches rows younger than
// the TTL and stale rows are purged opportunistically on insert, so no
// application timer exists.
type TokenStore struct {
	db  *pgxpool.Pool
	ttl time.Duration
}

// NewTokenStore creates a TokenStore with the given token lifetime.
func NewTokenStore(db *pgxpool.Pool, ttl time.Duration) *TokenStore {
	return &TokenStore{db: db, ttl: ttl}
}

// Insert persists a freshly issued token and sweeps out expired rows.
func (s *TokenStore) Insert(ctx context.Context, token model.RealmToken) error {
	if _, err := s.db.Exec(ctx,
		`DELETE FROM realm_tokens WHERE created_at <= now() - $1::interval`,
		s.ttl.String(),
	); err != nil {
		return fmt.Errorf("purging expired realm tokens: %w", err)
	}

	_, err := s.db.Exec(ctx,
		`INSERT INTO realm_tokens (cookie, account_name, client_token, server_token, created_at)
		 VALUES ($1, $2, $3, $4, now())
		 ON CONFLICT (cookie) DO UPDATE
		 SET account_name = EXCLUDED.account_name,
		     client_token = EXCLUDED.client_token,
		     server_token = EXCLUDED.server_token,
		     created_at   = EXCLUDED.created_at`,
		int64(token.Cookie), token.AccountName, int64(token.ClientToken), int64(token.ServerToken),
	)
	if err != nil {
		return fmt.Errorf("inserting realm token %d: %w", token.Cookie, err)
	}
	return nil
}

// ConsumeValid atomically deletes and returns the unexpired token for the
// cookie. The single DELETE ... RETURNING guarantees that of two concurrent
// redemptions exactly one wins. Returns nil, nil when the cookie is absent,
// already consumed or expired.
func (s *TokenStore) ConsumeValid(ctx context.Context, cookie uint32) (*model.RealmToken, error) {
	var (
		tok              model.RealmToken
		cookieDB         int64
		clientT, serverT int64
	)
	err := s.db.QueryRow(ctx,
		`DELETE FROM realm_tokens
		 WHERE cookie = $1 AND created_at > now() - $2::interval
		 RETURNING cookie, account_name, client_token, server_token, created_at`,
		int64(cookie), s.ttl.String(),
	).Scan(&cookieDB, &tok.AccountName, &clientT, &serverT, &tok.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("consuming realm token %d: %w", cookie, err)
	}
	tok.Cookie = uint32(cookieDB)
	tok.ClientToken = uint32(clientT)
	tok.ServerToken = uint32(serverT)
	return &tok, nil
}

// Peek reads a token without consuming it. Diagnostics only.
func (s *TokenStore) Peek(ctx context.Context, cookie uint32) (*model.RealmToken, error) {
	var (
		tok              model.RealmToken
		cookieDB         int64
		clientT, serverT int64
	)
	err := s.db.QueryRow(ctx,
		`SELECT cookie, account_name, client_token, server_token, created_at
		 FROM realm_tokens WHERE cookie = $1`,
		int64(cookie),
	).Scan(&cookieDB, &tok.AccountName, &clientT, &serverT, &tok.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("peeking realm token %d: %w", cookie, err)
	}
	tok.Cookie = uint32(cookieDB)
	tok.ClientToken = uint32(clientT)
	tok.ServerToken = uint32(serverT)
	return &tok, nil
}
