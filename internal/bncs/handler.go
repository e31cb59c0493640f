package bncs

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"

	"github.com/udisondev/bnetgo/internal/chat"
	"github.com/udisondev/bnetgo/internal/config"
	"github.com/udisondev/bnetgo/internal/constants"
	"github.com/udisondev/bnetgo/internal/crypto"
	"github.com/udisondev/bnetgo/internal/protocol"
	"github.com/udisondev/bnetgo/internal/realmauth"
	"github.com/udisondev/bnetgo/internal/session"
)

const (
	logonTypeBrokenSha1    = 0
	versionCheckMpq        = "ver-IX86-0.mpq"
	versionCheckFormula    = "A=125933019 B=665814511 C=736475113 4 A=A+S B=B^C C=C^A A=A^B"
	udpCodeNoUDP           = 0x02C9
	realmTrailingDwords    = 12
	realmStatusSuccess     = 0
	realmStatusUnavailable = 1
)

// Handler implements the chat server's message handlers.
type Handler struct {
	log      *slog.Logger
	cfg      config.ChatServer
	accounts AccountRepository
	broker   *realmauth.Broker
	sessions *session.Registry
	channels *chat.Registry
	commands *chat.Interpreter
}

// NewHandler wires the handler set over its collaborators.
func NewHandler(
	log *slog.Logger,
	cfg config.ChatServer,
	accounts AccountRepository,
	broker *realmauth.Broker,
	sessions *session.Registry,
	channels *chat.Registry,
	commands *chat.Interpreter,
) *Handler {
	return &Handler{
		log:      log,
		cfg:      cfg,
		accounts: accounts,
		broker:   broker,
		sessions: sessions,
		channels: channels,
		commands: commands,
	}
}

// RegisterAll fills the dispatch table.
func (h *Handler) RegisterAll(d *Dispatcher) {
	d.Register(constants.SidNull, h.handleNull)
	d.Register(constants.SidPing, h.handlePing)
	d.Register(constants.SidAuthInfo, h.handleAuthInfo)
	d.Register(constants.SidAuthCheck, h.handleAuthCheck)
	d.Register(constants.SidLogonResponse2, h.handleLogonResponse2)
	d.Register(constants.SidCreateAccount2, h.handleCreateAccount2)
	d.Register(constants.SidEnterChat, h.handleEnterChat)
	d.Register(constants.SidGetChannelList, h.handleGetChannelList)
	d.Register(constants.SidJoinChannel, h.handleJoinChannel)
	d.Register(constants.SidChatCommand, h.handleChatCommand)
	d.Register(constants.SidLeaveChat, h.handleLeaveChat)
	d.Register(constants.SidQueryRealms2, h.handleQueryRealms2)
	d.Register(constants.SidLogonRealmEx, h.handleLogonRealmEx)
}

func (h *Handler) handleNull(context.Context, *Client, []byte) error {
	return nil
}

// handlePing turns the client's echo of a keep-alive into a round-trip
// measurement.
func (h *Handler) handlePing(_ context.Context, c *Client, payload []byte) error {
	cookie, err := protocol.NewReader(payload).Uint32()
	if err != nil {
		return fmt.Errorf("reading ping cookie: %w", err)
	}
	c.RecordPingEcho(cookie)
	return nil
}

// handleAuthInfo opens the logon conversation: remember the client product,
// hand out the server token and the version check challenge, and start the
// first ping measurement.
func (h *Handler) handleAuthInfo(_ context.Context, c *Client, payload []byte) error {
	r := protocol.NewReader(payload)
	if _, err := r.Uint32(); err != nil { // protocol id
		return fmt.Errorf("reading auth info: %w", err)
	}
	if err := r.Skip(4); err != nil { // platform
		return fmt.Errorf("reading auth info: %w", err)
	}
	product, err := r.Bytes(4)
	if err != nil {
		return fmt.Errorf("reading auth info: %w", err)
	}
	c.Session().SetProduct(string(product))

	serverToken := rand.Uint32() & 0x7FFFFFFF
	c.Session().SetTokens(0, serverToken)

	resp := protocol.NewWriter().
		Uint32(logonTypeBrokenSha1).
		Uint32(serverToken).
		Uint32(udpCodeNoUDP).
		Uint32(0). // MPQ filetime
		Uint32(0).
		String(versionCheckMpq).
		String(versionCheckFormula).
		Payload()
	if err := c.SendFrame(constants.SidAuthInfo, resp); err != nil {
		return err
	}
	return c.SendKeepalive()
}

// handleAuthCheck records the client token. Version and key checks always
// pass; this server does not gate on client binaries.
func (h *Handler) handleAuthCheck(_ context.Context, c *Client, payload []byte) error {
	r := protocol.NewReader(payload)
	if err := r.Skip(4); err != nil {
		return fmt.Errorf("reading auth check: %w", err)
	}
	clientToken, err := r.Uint32()
	if err != nil {
		return fmt.Errorf("reading auth check client token: %w", err)
	}

	_, serverToken := c.Session().Tokens()
	c.Session().SetTokens(clientToken, serverToken)

	resp := protocol.NewWriter().
		Uint32(0). // passed
		String("").
		Payload()
	return c.SendFrame(constants.SidAuthCheck, resp)
}

// handleLogonResponse2 verifies the token/hash password proof.
func (h *Handler) handleLogonResponse2(ctx context.Context, c *Client, payload []byte) error {
	r := protocol.NewReader(payload)
	clientToken, err := r.Uint32()
	if err != nil {
		return fmt.Errorf("reading logon request: %w", err)
	}
	serverToken, err := r.Uint32()
	if err != nil {
		return fmt.Errorf("reading logon request: %w", err)
	}
	proof, err := r.Bytes(crypto.DigestSize)
	if err != nil {
		return fmt.Errorf("reading logon proof: %w", err)
	}
	username, err := r.String()
	if err != nil {
		return fmt.Errorf("reading logon username: %w", err)
	}
	username = strings.ToLower(username)

	status := uint32(constants.LogonStatusAccountUnknown)
	account, err := h.accounts.Find(ctx, username)
	if err != nil {
		return fmt.Errorf("looking up account %q: %w", username, err)
	}
	if account != nil {
		if crypto.CheckProof(clientToken, serverToken, account.PasswordHash, proof) {
			status = constants.LogonStatusSuccess
			c.Session().MarkAuthenticated(username)
			h.sessions.BindUsername(c.Session(), username)
			if err := h.accounts.UpdateLastLogin(ctx, username, c.IP()); err != nil {
				h.log.Error("failed to record logon", "username", username, "err", err)
			}
			h.log.Info("user logged on", "username", username, "remote", c.IP())
		} else {
			status = constants.LogonStatusBadPassword
			h.log.Info("logon rejected", "username", username, "remote", c.IP())
		}
	}

	return c.SendFrame(constants.SidLogonResponse2,
		protocol.NewWriter().Uint32(status).Payload())
}

// handleCreateAccount2 registers a new account from its 20-byte password
// hash. The server never sees the plaintext password.
func (h *Handler) handleCreateAccount2(ctx context.Context, c *Client, payload []byte) error {
	r := protocol.NewReader(payload)
	passwordHash, err := r.Bytes(crypto.DigestSize)
	if err != nil {
		return fmt.Errorf("reading account password hash: %w", err)
	}
	username, err := r.String()
	if err != nil {
		return fmt.Errorf("reading account username: %w", err)
	}

	status := uint32(constants.CreateStatusAccountExists)
	if h.cfg.AutoCreateAccounts && validAccountName(username) {
		created, err := h.accounts.Create(ctx, username, passwordHash)
		if err != nil {
			return fmt.Errorf("creating account %q: %w", username, err)
		}
		if created {
			status = constants.CreateStatusSuccess
		}
	}

	resp := protocol.NewWriter().Uint32(status).String("").Payload()
	return c.SendFrame(constants.SidCreateAccount2, resp)
}

// handleEnterChat stores the chat username. The enter-chat reply is sent
// once the statstring arrives with the channel list request.
func (h *Handler) handleEnterChat(_ context.Context, c *Client, payload []byte) error {
	if !c.Session().Authenticated() {
		return nil
	}
	r := protocol.NewReader(payload)
	username, err := r.String()
	if err != nil {
		return fmt.Errorf("reading enter chat username: %w", err)
	}
	if username == "" {
		username = c.Session().AccountName()
	}
	h.sessions.BindUsername(c.Session(), username)
	return nil
}

// handleGetChannelList receives the statstring and completes the enter-chat
// exchange with the unique name, statstring and account name.
func (h *Handler) handleGetChannelList(_ context.Context, c *Client, payload []byte) error {
	if !c.Session().Authenticated() {
		return nil
	}
	r := protocol.NewReader(payload)
	statstring, err := r.String()
	if err != nil {
		return fmt.Errorf("reading statstring: %w", err)
	}
	c.Session().SetStatString(statstring)

	username := c.Session().DisplayName()
	if username == "" {
		return nil
	}

	resp := protocol.NewWriter().
		String(username).
		String(statstring).
		String(c.Session().AccountName()).
		Payload()
	return c.SendFrame(constants.SidEnterChat, resp)
}

// handleJoinChannel moves the client into the requested channel, or the
// default one when the request names none.
func (h *Handler) handleJoinChannel(_ context.Context, c *Client, payload []byte) error {
	s := c.Session()
	if !s.Authenticated() || s.DisplayName() == "" {
		return nil
	}

	r := protocol.NewReader(payload)
	if _, err := r.Uint32(); err != nil { // join flags
		return fmt.Errorf("reading join flags: %w", err)
	}
	channelName, err := r.String()
	if err != nil {
		return fmt.Errorf("reading channel name: %w", err)
	}
	if channelName == "" {
		channelName = h.cfg.DefaultChannel
	}

	if !h.channels.JoinChannel(s, channelName, s.DisplayName()) {
		chat.SendErrorMessage(s, "You are banned from that channel.")
	}
	return nil
}

// handleChatCommand feeds a chat line to the command interpreter.
func (h *Handler) handleChatCommand(_ context.Context, c *Client, payload []byte) error {
	if !c.Session().Authenticated() {
		return nil
	}
	text, err := protocol.NewReader(payload).String()
	if err != nil {
		return fmt.Errorf("reading chat text: %w", err)
	}
	h.commands.Handle(c.Session(), text)
	return nil
}

// handleLeaveChat removes the client from its channel. No reply is sent.
func (h *Handler) handleLeaveChat(_ context.Context, c *Client, _ []byte) error {
	h.channels.LeaveChannel(c.Session())
	return nil
}

// handleQueryRealms2 advertises the configured realm.
func (h *Handler) handleQueryRealms2(_ context.Context, c *Client, _ []byte) error {
	resp := protocol.NewWriter().
		Uint32(0).
		Uint32(1). // realm count
		Uint32(1).
		String(h.cfg.Realm.Name).
		String(h.cfg.Realm.Description).
		Payload()
	return c.SendFrame(constants.SidQueryRealms2, resp)
}

// handleLogonRealmEx mints a realm hand-off token and points the client at
// the realm server.
func (h *Handler) handleLogonRealmEx(ctx context.Context, c *Client, payload []byte) error {
	s := c.Session()
	if !s.Authenticated() {
		return h.sendRealmUnavailable(c)
	}

	r := protocol.NewReader(payload)
	clientToken, err := r.Uint32()
	if err != nil {
		return fmt.Errorf("reading realm logon: %w", err)
	}
	if err := r.Skip(crypto.DigestSize); err != nil { // hashed realm password
		return fmt.Errorf("reading realm logon: %w", err)
	}
	if _, err := r.String(); err != nil { // realm title
		return fmt.Errorf("reading realm title: %w", err)
	}

	_, serverToken := s.Tokens()
	cookie, err := h.broker.Issue(ctx, s.AccountName(), clientToken, serverToken)
	if err != nil {
		h.log.Error("failed to issue realm token", "account", s.AccountName(), "err", err)
		return h.sendRealmUnavailable(c)
	}

	w := protocol.NewWriter().
		Uint32(cookie).
		Uint32(realmStatusSuccess).
		Uint32(clientToken).
		Uint32(serverToken).
		Uint32(ipToWire(h.cfg.Realm.Host)).
		Uint32(portToWire(h.cfg.Realm.Port))
	for i := 0; i < realmTrailingDwords; i++ {
		w.Uint32(0)
	}
	w.String(s.AccountName())

	return c.SendFrame(constants.SidLogonRealmEx, w.Payload())
}

func (h *Handler) sendRealmUnavailable(c *Client) error {
	resp := protocol.NewWriter().
		Uint32(0).
		Uint32(realmStatusUnavailable).
		Payload()
	return c.SendFrame(constants.SidLogonRealmEx, resp)
}

// portToWire byte-swaps a port so it reads correctly when written as a
// little-endian dword.
func portToWire(port int) uint32 {
	return uint32(port&0xFF)<<8 | uint32(port>>8&0xFF)
}

// validAccountName applies the account naming rules: 3 to 15 characters,
// starting with a letter or digit, limited to letters, digits and a few
// separators.
func validAccountName(name string) bool {
	if len(name) < 3 || len(name) > 15 {
		return false
	}
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case (r == '_' || r == '-' || r == '.') && i > 0:
		default:
			return false
		}
	}
	return true
}
