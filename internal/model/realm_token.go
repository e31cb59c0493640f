package model

import "time"

// RealmToken is the short-lived single-use credential minted by the chat
// server on a realm hand-off and redeemed by the realm server through the
// shared store. The cookie is the primary key; the token pair must match
// what the client echoes in MCP_STARTUP.
type RealmToken struct {
	Cookie      uint32
	AccountName string
	ClientToken uint32
	ServerToken uint32
	CreatedAt   time.Time
}
