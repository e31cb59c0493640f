// Package session tracks per-connection state for the chat server and the
// case-insensitive username index used to route whispers and commands.
package session

import (
	"strings"
	"sync"
)

// Sender delivers a framed message to the client behind a session. The chat
// layer only ever talks to peers through this interface.
type Sender interface {
	SendFrame(msgType byte, payload []byte) error
}

// Session holds the mutable state of one authenticated connection. All
// accessors are safe for concurrent use; chat broadcasts read peer sessions
// from other connection goroutines.
type Session struct {
	sender Sender

	mu            sync.RWMutex
	authenticated bool
	accountName   string
	displayName   string
	product       string
	statString    string
	clientToken   uint32
	serverToken   uint32
	pingMs        uint32
	remoteIP      uint32
	channel       string
	awayMessage   string
	awaySet       bool
	dndMessage    string
	dndSet        bool
	squelched     map[string]struct{}
}

// New creates a session bound to a sender.
func New(sender Sender) *Session {
	return &Session{
		sender:    sender,
		squelched: make(map[string]struct{}),
	}
}

// SendFrame forwards a framed message to the client.
func (s *Session) SendFrame(msgType byte, payload []byte) error {
	return s.sender.SendFrame(msgType, payload)
}

// MarkAuthenticated records a successful logon.
func (s *Session) MarkAuthenticated(accountName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authenticated = true
	s.accountName = accountName
}

// Authenticated reports whether the session passed logon.
func (s *Session) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authenticated
}

// AccountName returns the canonical account name set at logon.
func (s *Session) AccountName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accountName
}

// SetDisplayName sets the name shown in chat. For realm clients this is the
// "Character*Account" composite sent in SID_ENTERCHAT.
func (s *Session) SetDisplayName(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.displayName = name
}

// DisplayName returns the chat-visible username.
func (s *Session) DisplayName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.displayName
}

// SetProduct records the 4-character product tag from SID_AUTH_INFO.
func (s *Session) SetProduct(product string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.product = product
}

// Product returns the client product tag.
func (s *Session) Product() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.product
}

// SetStatString records the statstring echoed in chat events.
func (s *Session) SetStatString(stat string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statString = stat
}

// StatString returns the statstring shown to channel peers.
func (s *Session) StatString() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.statString
}

// SetTokens stores the logon token pair.
func (s *Session) SetTokens(clientToken, serverToken uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clientToken = clientToken
	s.serverToken = serverToken
}

// Tokens returns the client and server logon tokens.
func (s *Session) Tokens() (clientToken, serverToken uint32) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clientToken, s.serverToken
}

// SetPing records the measured round-trip time in milliseconds.
func (s *Session) SetPing(ms uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pingMs = ms
}

// Ping returns the last measured round-trip time.
func (s *Session) Ping() uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pingMs
}

// SetRemoteIP records the client address for chat events.
func (s *Session) SetRemoteIP(ip uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remoteIP = ip
}

// RemoteIP returns the client address as a wire dword.
func (s *Session) RemoteIP() uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.remoteIP
}

// SetChannel records the channel the session currently occupies. An empty
// name means not in any channel.
func (s *Session) SetChannel(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channel = name
}

// Channel returns the current channel name, or "" when not in a channel.
func (s *Session) Channel() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.channel
}

// SetAway enables away mode with the given message.
func (s *Session) SetAway(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.awaySet = true
	s.awayMessage = message
}

// ClearAway disables away mode.
func (s *Session) ClearAway() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.awaySet = false
	s.awayMessage = ""
}

// Away returns the away message and whether away mode is active.
func (s *Session) Away() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.awayMessage, s.awaySet
}

// SetDND enables do-not-disturb mode with the given message.
func (s *Session) SetDND(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dndSet = true
	s.dndMessage = message
}

// ClearDND disables do-not-disturb mode.
func (s *Session) ClearDND() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dndSet = false
	s.dndMessage = ""
}

// DND returns the do-not-disturb message and whether the mode is active.
func (s *Session) DND() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dndMessage, s.dndSet
}

// Squelch suppresses chat from the given username. Idempotent.
func (s *Session) Squelch(username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.squelched[strings.ToLower(username)] = struct{}{}
}

// Unsquelch lifts a squelch. Idempotent; no effect if not squelched.
func (s *Session) Unsquelch(username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.squelched, strings.ToLower(username))
}

// HasSquelched reports whether chat from username is suppressed.
func (s *Session) HasSquelched(username string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.squelched[strings.ToLower(username)]
	return ok
}
