package bncs

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/bnetgo/internal/chat"
	"github.com/udisondev/bnetgo/internal/config"
	"github.com/udisondev/bnetgo/internal/constants"
	"github.com/udisondev/bnetgo/internal/crypto"
	"github.com/udisondev/bnetgo/internal/model"
	"github.com/udisondev/bnetgo/internal/protocol"
	"github.com/udisondev/bnetgo/internal/realmauth"
	"github.com/udisondev/bnetgo/internal/session"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testConn is a net.Conn that records everything written to it.
type testConn struct {
	mu  sync.Mutex
	out bytes.Buffer
}

func (c *testConn) Read([]byte) (int, error) { return 0, io.EOF }

func (c *testConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.out.Write(p)
}

func (c *testConn) Close() error                     { return nil }
func (c *testConn) LocalAddr() net.Addr              { return testAddr("127.0.0.1:6112") }
func (c *testConn) RemoteAddr() net.Addr             { return testAddr("203.0.113.7:40001") }
func (c *testConn) SetDeadline(time.Time) error      { return nil }
func (c *testConn) SetReadDeadline(time.Time) error  { return nil }
func (c *testConn) SetWriteDeadline(time.Time) error { return nil }

type testAddr string

func (a testAddr) Network() string { return "tcp" }
func (a testAddr) String() string  { return string(a) }

// takeFrames drains and decodes every frame written so far.
func (c *testConn) takeFrames(t *testing.T) []protocol.Frame {
	t.Helper()
	c.mu.Lock()
	raw := c.out.Bytes()
	c.out.Reset()
	c.mu.Unlock()

	var frames []protocol.Frame
	for len(raw) > 0 {
		require.GreaterOrEqual(t, len(raw), constants.FrameHeaderSize)
		require.Equal(t, byte(constants.FrameMarker), raw[0])
		totalLen := int(binary.LittleEndian.Uint16(raw[2:4]))
		require.LessOrEqual(t, totalLen, len(raw))
		frames = append(frames, protocol.Frame{
			Type:    raw[1],
			Payload: raw[constants.FrameHeaderSize:totalLen],
		})
		raw = raw[totalLen:]
	}
	return frames
}

func (c *testConn) takeFrame(t *testing.T, msgType byte) protocol.Frame {
	t.Helper()
	frames := c.takeFrames(t)
	for _, f := range frames {
		if f.Type == msgType {
			return f
		}
	}
	t.Fatalf("no frame of type 0x%02X among %d frames", msgType, len(frames))
	return protocol.Frame{}
}

// memAccounts is an in-memory AccountRepository.
type memAccounts struct {
	mu       sync.Mutex
	accounts map[string]*model.Account
}

func newMemAccounts() *memAccounts {
	return &memAccounts{accounts: make(map[string]*model.Account)}
}

func (m *memAccounts) Find(_ context.Context, username string) (*model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.accounts[strings.ToLower(username)]
	if !ok {
		return nil, nil
	}
	cp := *acc
	return &cp, nil
}

func (m *memAccounts) Create(_ context.Context, username string, passwordHash []byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := strings.ToLower(username)
	if _, ok := m.accounts[key]; ok {
		return false, nil
	}
	m.accounts[key] = &model.Account{Username: key, PasswordHash: passwordHash}
	return true, nil
}

func (m *memAccounts) UpdateLastLogin(_ context.Context, username, ip string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if acc, ok := m.accounts[strings.ToLower(username)]; ok {
		acc.LastIP = ip
		acc.LastLoginAt = time.Now()
	}
	return nil
}

// memTokens is an in-memory realmauth.TokenStore.
type memTokens struct {
	mu     sync.Mutex
	tokens map[uint32]model.RealmToken
}

func newMemTokens() *memTokens {
	return &memTokens{tokens: make(map[uint32]model.RealmToken)}
}

func (m *memTokens) Insert(_ context.Context, tok model.RealmToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[tok.Cookie] = tok
	return nil
}

func (m *memTokens) ConsumeValid(_ context.Context, cookie uint32) (*model.RealmToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tok, ok := m.tokens[cookie]
	if !ok {
		return nil, nil
	}
	delete(m.tokens, cookie)
	return &tok, nil
}

func (m *memTokens) Peek(_ context.Context, cookie uint32) (*model.RealmToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tok, ok := m.tokens[cookie]
	if !ok {
		return nil, nil
	}
	return &tok, nil
}

type fixture struct {
	handler  *Handler
	accounts *memAccounts
	tokens   *memTokens
	sessions *session.Registry
	channels *chat.Registry
	cfg      config.ChatServer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := discardLogger()
	cfg := config.DefaultChatServer()
	cfg.Realm.Host = "198.51.100.9"
	accounts := newMemAccounts()
	tokens := newMemTokens()
	sessions := session.NewRegistry()
	channels := chat.NewRegistry()
	whispers := chat.NewWhisperRouter(sessions)
	commands := chat.NewInterpreter(log, sessions, channels, whispers, cfg.ServerName)
	broker := realmauth.NewBroker(log, tokens)
	return &fixture{
		handler:  NewHandler(log, cfg, accounts, broker, sessions, channels, commands),
		accounts: accounts,
		tokens:   tokens,
		sessions: sessions,
		channels: channels,
		cfg:      cfg,
	}
}

func (f *fixture) newClient(t *testing.T) (*Client, *testConn) {
	t.Helper()
	conn := &testConn{}
	client, err := NewClient(conn, NewBytePool(constants.DefaultSendBufSize))
	require.NoError(t, err)
	f.sessions.Add(client.Session())
	return client, conn
}

// logon drives a client through the full logon conversation.
func (f *fixture) logon(t *testing.T, client *Client, conn *testConn, username, password string) {
	t.Helper()
	ctx := context.Background()

	authInfo := protocol.NewWriter().
		Uint32(0).
		Uint32(0x49583836). // IX86
		Uint32(0x44325850). // D2XP, reversed on the wire as PX2D
		Payload()
	require.NoError(t, f.handler.handleAuthInfo(ctx, client, authInfo))
	_, serverToken := client.Session().Tokens()
	conn.takeFrames(t)

	hash := crypto.Hash([]byte(password))
	created, err := f.accounts.Create(ctx, username, hash)
	require.NoError(t, err)
	require.True(t, created)

	clientToken := uint32(0x1234)
	check := protocol.NewWriter().Uint32(0).Uint32(clientToken).Payload()
	require.NoError(t, f.handler.handleAuthCheck(ctx, client, check))
	conn.takeFrames(t)

	logon := protocol.NewWriter().
		Uint32(clientToken).
		Uint32(serverToken).
		Bytes(crypto.Proof(clientToken, serverToken, hash)).
		String(username).
		Payload()
	require.NoError(t, f.handler.handleLogonResponse2(ctx, client, logon))
	status, err := protocol.NewReader(conn.takeFrame(t, constants.SidLogonResponse2).Payload).Uint32()
	require.NoError(t, err)
	require.Equal(t, uint32(constants.LogonStatusSuccess), status)
}

func TestAuthInfo_ChallengeAndKeepalive(t *testing.T) {
	f := newFixture(t)
	client, conn := f.newClient(t)

	payload := protocol.NewWriter().Uint32(0).Uint32(0).Uint32(0x44325850).Payload()
	require.NoError(t, f.handler.handleAuthInfo(context.Background(), client, payload))

	frames := conn.takeFrames(t)
	var resp, keepalive *protocol.Frame
	for i := range frames {
		switch frames[i].Type {
		case constants.SidAuthInfo:
			resp = &frames[i]
		case constants.SidPing:
			keepalive = &frames[i]
		}
	}
	require.NotNil(t, resp)
	require.NotNil(t, keepalive, "the challenge kicks off the first ping")

	r := protocol.NewReader(resp.Payload)
	logonType, _ := r.Uint32()
	serverToken, _ := r.Uint32()
	udpCode, _ := r.Uint32()
	_, _ = r.Uint32()
	_, _ = r.Uint32()
	mpq, err := r.String()
	require.NoError(t, err)
	formula, err := r.String()
	require.NoError(t, err)

	assert.Equal(t, uint32(0), logonType, "broken SHA-1 logon")
	assert.NotZero(t, serverToken)
	assert.Zero(t, serverToken&0x80000000)
	assert.Equal(t, uint32(0x02C9), udpCode)
	assert.Equal(t, "ver-IX86-0.mpq", mpq)
	assert.Contains(t, formula, "A=")

	_, st := client.Session().Tokens()
	assert.Equal(t, serverToken, st, "session remembers the issued token")
}

func TestAuthInfo_RecordsProduct(t *testing.T) {
	f := newFixture(t)
	client, _ := f.newClient(t)

	payload := protocol.NewWriter().Uint32(0).Uint32(0).Uint32(0x44325850).Payload()
	require.NoError(t, f.handler.handleAuthInfo(context.Background(), client, payload))

	assert.Equal(t, "PX2D", client.Session().Product())
}

func TestPing_UpdatesSessionLatency(t *testing.T) {
	f := newFixture(t)
	client, conn := f.newClient(t)

	require.NoError(t, client.SendKeepalive())
	ping := conn.takeFrame(t, constants.SidPing)

	time.Sleep(2 * time.Millisecond)
	require.NoError(t, f.handler.handlePing(context.Background(), client, ping.Payload))
	assert.GreaterOrEqual(t, client.Session().Ping(), uint32(1))
}

func TestAuthCheck_AlwaysPasses(t *testing.T) {
	f := newFixture(t)
	client, conn := f.newClient(t)

	payload := protocol.NewWriter().Uint32(0).Uint32(0xBEEF).Payload()
	require.NoError(t, f.handler.handleAuthCheck(context.Background(), client, payload))

	resp := conn.takeFrame(t, constants.SidAuthCheck)
	r := protocol.NewReader(resp.Payload)
	result, err := r.Uint32()
	require.NoError(t, err)
	assert.Equal(t, uint32(0), result)

	ct, _ := client.Session().Tokens()
	assert.Equal(t, uint32(0xBEEF), ct)
}

func TestLogonResponse2_UnknownAccount(t *testing.T) {
	f := newFixture(t)
	client, conn := f.newClient(t)

	payload := protocol.NewWriter().
		Uint32(1).
		Uint32(2).
		Bytes(make([]byte, crypto.DigestSize)).
		String("nobody").
		Payload()
	require.NoError(t, f.handler.handleLogonResponse2(context.Background(), client, payload))

	status, err := protocol.NewReader(conn.takeFrame(t, constants.SidLogonResponse2).Payload).Uint32()
	require.NoError(t, err)
	assert.Equal(t, uint32(constants.LogonStatusAccountUnknown), status)
	assert.False(t, client.Session().Authenticated())
}

func TestLogonResponse2_BadProof(t *testing.T) {
	f := newFixture(t)
	client, conn := f.newClient(t)

	hash := crypto.Hash([]byte("secret"))
	_, err := f.accounts.Create(context.Background(), "alice", hash)
	require.NoError(t, err)

	wrong := crypto.Proof(1, 2, crypto.Hash([]byte("not-secret")))
	payload := protocol.NewWriter().
		Uint32(1).
		Uint32(2).
		Bytes(wrong).
		String("alice").
		Payload()
	require.NoError(t, f.handler.handleLogonResponse2(context.Background(), client, payload))

	status, err := protocol.NewReader(conn.takeFrame(t, constants.SidLogonResponse2).Payload).Uint32()
	require.NoError(t, err)
	assert.Equal(t, uint32(constants.LogonStatusBadPassword), status)
	assert.False(t, client.Session().Authenticated())
}

func TestLogonResponse2_Success(t *testing.T) {
	f := newFixture(t)
	client, conn := f.newClient(t)

	f.logon(t, client, conn, "Bob", "hunter2")

	assert.True(t, client.Session().Authenticated())
	assert.Equal(t, "bob", client.Session().AccountName())
	_, ok := f.sessions.Lookup("bob")
	assert.True(t, ok, "logon binds the account name")
}

func TestCreateAccount2(t *testing.T) {
	f := newFixture(t)
	client, conn := f.newClient(t)
	ctx := context.Background()

	hash := crypto.Hash([]byte("pw"))
	payload := protocol.NewWriter().Bytes(hash).String("newuser").Payload()
	require.NoError(t, f.handler.handleCreateAccount2(ctx, client, payload))
	status, err := protocol.NewReader(conn.takeFrame(t, constants.SidCreateAccount2).Payload).Uint32()
	require.NoError(t, err)
	assert.Equal(t, uint32(constants.CreateStatusSuccess), status)

	// Same name again fails.
	require.NoError(t, f.handler.handleCreateAccount2(ctx, client, payload))
	status, err = protocol.NewReader(conn.takeFrame(t, constants.SidCreateAccount2).Payload).Uint32()
	require.NoError(t, err)
	assert.Equal(t, uint32(constants.CreateStatusAccountExists), status)
}

func TestCreateAccount2_RejectsBadNames(t *testing.T) {
	f := newFixture(t)
	client, conn := f.newClient(t)
	ctx := context.Background()
	hash := crypto.Hash([]byte("pw"))

	for _, name := range []string{"ab", "way-too-long-account", "bad name", "_leading"} {
		payload := protocol.NewWriter().Bytes(hash).String(name).Payload()
		require.NoError(t, f.handler.handleCreateAccount2(ctx, client, payload))
		status, err := protocol.NewReader(conn.takeFrame(t, constants.SidCreateAccount2).Payload).Uint32()
		require.NoError(t, err)
		assert.Equal(t, uint32(constants.CreateStatusAccountExists), status, "name %q", name)
	}
}

func TestEnterChat_DeferredUntilStatstring(t *testing.T) {
	f := newFixture(t)
	client, conn := f.newClient(t)
	ctx := context.Background()

	f.logon(t, client, conn, "Carol", "pw")

	require.NoError(t, f.handler.handleEnterChat(ctx, client,
		protocol.NewWriter().String("").Payload()))
	assert.Empty(t, conn.takeFrames(t), "no reply until the statstring arrives")

	statstring := "PX2D"
	require.NoError(t, f.handler.handleGetChannelList(ctx, client,
		protocol.NewWriter().String(statstring).Payload()))

	resp := conn.takeFrame(t, constants.SidEnterChat)
	r := protocol.NewReader(resp.Payload)
	unique, err := r.String()
	require.NoError(t, err)
	stats, err := r.String()
	require.NoError(t, err)
	account, err := r.String()
	require.NoError(t, err)
	assert.Equal(t, "carol", unique, "empty name falls back to the account")
	assert.Equal(t, statstring, stats)
	assert.Equal(t, "carol", account)
}

func TestEnterChat_IgnoredBeforeLogon(t *testing.T) {
	f := newFixture(t)
	client, conn := f.newClient(t)

	require.NoError(t, f.handler.handleEnterChat(context.Background(), client,
		protocol.NewWriter().String("ghost").Payload()))
	assert.Empty(t, conn.takeFrames(t))
	_, ok := f.sessions.Lookup("ghost")
	assert.False(t, ok)
}

func TestJoinChannel_EmptyNameUsesDefault(t *testing.T) {
	f := newFixture(t)
	client, conn := f.newClient(t)
	ctx := context.Background()

	f.logon(t, client, conn, "Dave", "pw")
	require.NoError(t, f.handler.handleEnterChat(ctx, client, protocol.NewWriter().String("").Payload()))
	require.NoError(t, f.handler.handleGetChannelList(ctx, client, protocol.NewWriter().String("PX2D").Payload()))
	conn.takeFrames(t)

	require.NoError(t, f.handler.handleJoinChannel(ctx, client,
		protocol.NewWriter().Uint32(0).String("").Payload()))

	assert.Equal(t, f.cfg.DefaultChannel, client.Session().Channel())
	frames := conn.takeFrames(t)
	require.NotEmpty(t, frames)
	assert.Equal(t, byte(constants.SidChatEvent), frames[0].Type)
}

func TestLeaveChat_RemovesFromChannel(t *testing.T) {
	f := newFixture(t)
	client, conn := f.newClient(t)
	ctx := context.Background()

	f.logon(t, client, conn, "Erin", "pw")
	require.NoError(t, f.handler.handleEnterChat(ctx, client, protocol.NewWriter().String("").Payload()))
	require.NoError(t, f.handler.handleGetChannelList(ctx, client, protocol.NewWriter().String("PX2D").Payload()))
	require.NoError(t, f.handler.handleJoinChannel(ctx, client,
		protocol.NewWriter().Uint32(0).String("Ops Lounge").Payload()))
	conn.takeFrames(t)

	require.NoError(t, f.handler.handleLeaveChat(ctx, client, nil))
	assert.Empty(t, client.Session().Channel())
	assert.Empty(t, conn.takeFrames(t), "leave chat sends no reply")
}

func TestQueryRealms2_AdvertisesRealm(t *testing.T) {
	f := newFixture(t)
	client, conn := f.newClient(t)

	require.NoError(t, f.handler.handleQueryRealms2(context.Background(), client, nil))

	r := protocol.NewReader(conn.takeFrame(t, constants.SidQueryRealms2).Payload)
	unknown, _ := r.Uint32()
	count, _ := r.Uint32()
	_, _ = r.Uint32()
	name, err := r.String()
	require.NoError(t, err)
	desc, err := r.String()
	require.NoError(t, err)

	assert.Equal(t, uint32(0), unknown)
	assert.Equal(t, uint32(1), count)
	assert.Equal(t, f.cfg.Realm.Name, name)
	assert.Equal(t, f.cfg.Realm.Description, desc)
}

func TestLogonRealmEx_IssuesToken(t *testing.T) {
	f := newFixture(t)
	client, conn := f.newClient(t)
	ctx := context.Background()

	f.logon(t, client, conn, "Frank", "pw")
	clientToken, serverToken := client.Session().Tokens()

	payload := protocol.NewWriter().
		Uint32(clientToken).
		Bytes(make([]byte, crypto.DigestSize)).
		String(f.cfg.Realm.Name).
		Payload()
	require.NoError(t, f.handler.handleLogonRealmEx(ctx, client, payload))

	r := protocol.NewReader(conn.takeFrame(t, constants.SidLogonRealmEx).Payload)
	cookie, _ := r.Uint32()
	status, _ := r.Uint32()
	ct, _ := r.Uint32()
	st, _ := r.Uint32()
	ip, _ := r.Uint32()
	port, _ := r.Uint32()
	for i := 0; i < 12; i++ {
		_, _ = r.Uint32()
	}
	account, err := r.String()
	require.NoError(t, err)

	assert.NotZero(t, cookie)
	assert.Equal(t, uint32(0), status)
	assert.Equal(t, clientToken, ct)
	assert.Equal(t, serverToken, st)
	assert.Equal(t, uint32(198)|uint32(51)<<8|uint32(100)<<16|uint32(9)<<24, ip)
	assert.Equal(t, uint32(f.cfg.Realm.Port&0xFF)<<8|uint32(f.cfg.Realm.Port>>8&0xFF), port)
	assert.Equal(t, "frank", account)

	tok, err := f.tokens.Peek(ctx, cookie)
	require.NoError(t, err)
	require.NotNil(t, tok, "the cookie is backed by a stored token")
	assert.Equal(t, "frank", tok.AccountName)
	assert.Equal(t, clientToken, tok.ClientToken)
	assert.Equal(t, serverToken, tok.ServerToken)
}

func TestLogonRealmEx_RequiresLogon(t *testing.T) {
	f := newFixture(t)
	client, conn := f.newClient(t)

	payload := protocol.NewWriter().
		Uint32(1).
		Bytes(make([]byte, crypto.DigestSize)).
		String("Sanctuary").
		Payload()
	require.NoError(t, f.handler.handleLogonRealmEx(context.Background(), client, payload))

	r := protocol.NewReader(conn.takeFrame(t, constants.SidLogonRealmEx).Payload)
	cookie, _ := r.Uint32()
	status, err := r.Uint32()
	require.NoError(t, err)
	assert.Zero(t, cookie)
	assert.Equal(t, uint32(1), status)
	assert.Empty(t, f.tokens.tokens)
}

func TestDispatcher_DropsUnknownTypes(t *testing.T) {
	f := newFixture(t)
	client, conn := f.newClient(t)

	d := NewDispatcher(discardLogger())
	f.handler.RegisterAll(d)

	err := d.Dispatch(context.Background(), client, protocol.Frame{Type: 0x7F, Payload: nil})
	require.NoError(t, err)
	assert.Empty(t, conn.takeFrames(t))
}
