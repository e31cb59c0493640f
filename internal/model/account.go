package model

import "time"

// Account represents a player account stored in the database.
// PasswordHash is the raw 20-byte XSha1 hash supplied by the client at
// account creation; the server never sees the plaintext password.
type Account struct {
	Username     string
	PasswordHash []byte
	CreatedAt    time.Time
	LastLoginAt  time.Time
	LastIP       string
}
