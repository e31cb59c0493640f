package bncs

import (
	"fmt"
	"math/rand/v2"
	"net"
	"sync"
	"time"

	"github.com/udisondev/bnetgo/internal/constants"
	"github.com/udisondev/bnetgo/internal/protocol"
	"github.com/udisondev/bnetgo/internal/session"
)

// Client is one chat server connection: the socket, its session state and
// the keep-alive bookkeeping.
type Client struct {
	conn     net.Conn
	ip       string
	sendPool *BytePool
	sess     *session.Session

	writeMu sync.Mutex

	mu         sync.Mutex
	pingCookie uint32
	pingSentAt time.Time
}

// NewClient wraps an accepted connection.
func NewClient(conn net.Conn, sendPool *BytePool) (*Client, error) {
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return nil, fmt.Errorf("splitting host port: %w", err)
	}

	c := &Client{
		conn:     conn,
		ip:       host,
		sendPool: sendPool,
	}
	c.sess = session.New(c)
	c.sess.SetRemoteIP(ipToWire(host))
	return c, nil
}

// IP returns the client's remote IP address.
func (c *Client) IP() string {
	return c.ip
}

// Session returns the session state for this connection.
func (c *Client) Session() *session.Session {
	return c.sess
}

// SendFrame encodes and writes one framed message. Safe for concurrent use;
// chat broadcasts write to peers from other connection goroutines.
func (c *Client) SendFrame(msgType byte, payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	buf := c.sendPool.Get(constants.FrameHeaderSize + len(payload))
	defer c.sendPool.Put(buf)

	n, err := protocol.EncodeFrame(buf, msgType, payload)
	if err != nil {
		return err
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
		return fmt.Errorf("setting write deadline: %w", err)
	}
	if _, err := c.conn.Write(buf[:n]); err != nil {
		return fmt.Errorf("writing frame 0x%02X: %w", msgType, err)
	}
	return nil
}

// SendKeepalive sends a ping with a fresh cookie and records when it left,
// so the echo can be turned into a round-trip measurement.
func (c *Client) SendKeepalive() error {
	cookie := rand.Uint32()

	c.mu.Lock()
	c.pingCookie = cookie
	c.pingSentAt = time.Now()
	c.mu.Unlock()

	return c.SendFrame(constants.SidPing, protocol.NewWriter().Uint32(cookie).Payload())
}

// RecordPingEcho matches a ping reply against the last sent cookie and
// updates the session's measured round trip.
func (c *Client) RecordPingEcho(cookie uint32) {
	c.mu.Lock()
	match := cookie == c.pingCookie && !c.pingSentAt.IsZero()
	sentAt := c.pingSentAt
	c.mu.Unlock()

	if match {
		c.sess.SetPing(uint32(time.Since(sentAt).Milliseconds()))
	}
}

// ipToWire packs a dotted-quad address so that, written little-endian, the
// octets appear in network order.
func ipToWire(host string) uint32 {
	ip := net.ParseIP(host)
	if ip == nil {
		return 0
	}
	v4 := ip.To4()
	if v4 == nil {
		return 0
	}
	return uint32(v4[0]) | uint32(v4[1])<<8 | uint32(v4[2])<<16 | uint32(v4[3])<<24
}
