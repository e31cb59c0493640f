package realm

import (
	"fmt"
	"net"
	"sync"
	"time"
)

// Client is one realm server connection with the identity established by the
// startup handshake.
type Client struct {
	conn net.Conn
	ip   string

	writeMu sync.Mutex

	mu            sync.Mutex
	accountName   string
	characterName string
}

// NewClient wraps an accepted connection.
func NewClient(conn net.Conn) (*Client, error) {
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return nil, fmt.Errorf("splitting host port: %w", err)
	}
	return &Client{conn: conn, ip: host}, nil
}

// IP returns the client's remote IP address.
func (c *Client) IP() string {
	return c.ip
}

// SendFrame encodes and writes one framed message.
func (c *Client) SendFrame(msgType byte, payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
		return fmt.Errorf("setting write deadline: %w", err)
	}
	return WriteFrame(c.conn, msgType, payload)
}

// SetAccount records the account the startup handshake authenticated.
func (c *Client) SetAccount(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accountName = name
}

// Account returns the authenticated account name, empty before startup.
func (c *Client) Account() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accountName
}

// SetCharacter records the selected character.
func (c *Client) SetCharacter(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.characterName = name
}

// Character returns the selected character name, empty before logon.
func (c *Client) Character() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.characterName
}
