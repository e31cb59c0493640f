// Package realmauth issues and redeems the single-use tokens that carry an
// authenticated identity from the chat server to the realm server.
package realmauth

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"log/slog"

	"github.com/udisondev/bnetgo/internal/model"
)

// TokenStore is the persistence contract the broker runs on. ConsumeValid
// must be atomic: of two concurrent calls for the same cookie exactly one
// may return the token.
type TokenStore interface {
	Insert(ctx context.Context, token model.RealmToken) error
	ConsumeValid(ctx context.Context, cookie uint32) (*model.RealmToken, error)
	Peek(ctx context.Context, cookie uint32) (*model.RealmToken, error)
}

// Broker mints and redeems realm hand-off cookies. It holds no timers; the
// store enforces the token TTL.
type Broker struct {
	log   *slog.Logger
	store TokenStore
}

// NewBroker creates a Broker over the store.
func NewBroker(log *slog.Logger, store TokenStore) *Broker {
	return &Broker{log: log, store: store}
}

// Issue persists a token for the account and returns the cookie the client
// relays to the realm server. The cookie's top bit is cleared so it prints
// as a non-negative 32-bit value everywhere.
func (b *Broker) Issue(ctx context.Context, accountName string, clientToken, serverToken uint32) (uint32, error) {
	cookie, err := randomCookie()
	if err != nil {
		return 0, err
	}

	tok := model.RealmToken{
		Cookie:      cookie,
		AccountName: accountName,
		ClientToken: clientToken,
		ServerToken: serverToken,
	}
	if err := b.store.Insert(ctx, tok); err != nil {
		return 0, fmt.Errorf("issuing realm token for %q: %w", accountName, err)
	}

	b.log.Debug("issued realm token", "account", accountName, "cookie", cookie)
	return cookie, nil
}

// ValidateAndConsume redeems a cookie. Returns nil, nil for an unknown,
// already consumed or expired cookie; a token is handed out at most once.
func (b *Broker) ValidateAndConsume(ctx context.Context, cookie uint32) (*model.RealmToken, error) {
	tok, err := b.store.ConsumeValid(ctx, cookie)
	if err != nil {
		return nil, fmt.Errorf("consuming realm token %d: %w", cookie, err)
	}
	if tok == nil {
		b.log.Debug("realm token rejected", "cookie", cookie)
		return nil, nil
	}
	b.log.Debug("realm token consumed", "account", tok.AccountName, "cookie", cookie)
	return tok, nil
}

// Peek reads a token without consuming it. Diagnostics only.
func (b *Broker) Peek(ctx context.Context, cookie uint32) (*model.RealmToken, error) {
	return b.store.Peek(ctx, cookie)
}

func randomCookie() (uint32, error) {
	var buf [4]byte
	for {
		if _, err := rand.Read(buf[:]); err != nil {
			return 0, fmt.Errorf("generating realm cookie: %w", err)
		}
		cookie := binary.LittleEndian.Uint32(buf[:]) & 0x7FFFFFFF
		if cookie != 0 {
			return cookie, nil
		}
	}
}
