package chat

import (
	"strings"
	"sync"

	"github.com/udisondev/bnetgo/internal/constants"
	"github.com/udisondev/bnetgo/internal/session"
)

// Channel is one chat room: a member set, at most one operator, a ban list
// and an optional topic. All state transitions happen under the channel
// mutex so join ordering and operator succession stay consistent even under
// concurrent joins and leaves.
type Channel struct {
	name   string
	silent bool // the Void: no roster, no broadcasts

	mu        sync.Mutex
	members   []*session.Session
	operator  *session.Session
	successor string // designated heir, lowercased display name
	banned    map[string]struct{}
	topic     string
}

func newChannel(name string, silent bool) *Channel {
	return &Channel{
		name:   name,
		silent: silent,
		banned: make(map[string]struct{}),
	}
}

// pendingEvent is a chat event prepared under the channel lock and delivered
// only after the lock is released. A recipient with a stalled connection can
// block its own write, but never the channel.
type pendingEvent struct {
	to       *session.Session
	eid      uint32
	flags    uint32
	ping     uint32
	ip       uint32
	username string
	text     string
}

func queueEvent(out *[]pendingEvent, to *session.Session, eid, flags, ping, ip uint32, username, text string) {
	*out = append(*out, pendingEvent{
		to: to, eid: eid, flags: flags, ping: ping, ip: ip, username: username, text: text,
	})
}

func deliver(events []pendingEvent) {
	for _, e := range events {
		sendEvent(e.to, e.eid, e.flags, e.ping, e.ip, e.username, e.text)
	}
}

// Name returns the channel's display name.
func (c *Channel) Name() string {
	return c.name
}

// Join admits a session. Returns false without any side effect when the
// display name (or either half of a Character*Account composite) is banned.
//
// The join conversation has a fixed order: the joiner first learns the
// channel, then every existing member, then themselves; only after the
// member set is updated do the others hear about the join. Clients render
// the roster from exactly this sequence.
func (c *Channel) Join(s *session.Session, displayName string) bool {
	var events []pendingEvent

	c.mu.Lock()
	if c.isBannedLocked(displayName) {
		c.mu.Unlock()
		return false
	}

	if len(c.members) == 0 && !c.silent {
		c.operator = s
	}

	queueEvent(&events, s, constants.EidChannel, 0, 0, 0, displayName, c.name)

	if !c.silent {
		for _, m := range c.members {
			queueEvent(&events, s, constants.EidShowUser, c.flagsLocked(m), m.Ping(), m.RemoteIP(),
				m.DisplayName(), m.StatString())
		}
	}
	queueEvent(&events, s, constants.EidShowUser, c.flagsLocked(s), s.Ping(), s.RemoteIP(),
		displayName, s.StatString())

	c.members = append(c.members, s)

	if !c.silent {
		for _, m := range c.members {
			if m == s {
				continue
			}
			queueEvent(&events, m, constants.EidJoin, c.flagsLocked(s), s.Ping(), s.RemoteIP(),
				displayName, s.StatString())
		}
		if c.topic != "" {
			queueEvent(&events, s, constants.EidInfo, 0, 0, 0, "", "Topic: "+c.topic)
		}
	}
	c.mu.Unlock()

	deliver(events)
	return true
}

// Leave removes a session, runs operator succession if needed and notifies
// the remaining members. Returns true when the channel is now empty.
func (c *Channel) Leave(s *session.Session) bool {
	var events []pendingEvent

	c.mu.Lock()
	idx := -1
	for i, m := range c.members {
		if m == s {
			idx = i
			break
		}
	}
	if idx < 0 {
		empty := len(c.members) == 0
		c.mu.Unlock()
		return empty
	}

	leaverFlags := c.flagsLocked(s)
	c.members = append(c.members[:idx], c.members[idx+1:]...)

	if strings.EqualFold(c.successor, s.DisplayName()) {
		c.successor = ""
	}

	if c.operator == s {
		c.operator = nil
		if next := c.pickSuccessorLocked(); next != nil {
			c.promoteLocked(next, &events)
		}
	}

	if !c.silent {
		for _, m := range c.members {
			queueEvent(&events, m, constants.EidLeave, leaverFlags, s.Ping(), s.RemoteIP(),
				s.DisplayName(), "")
		}
	}
	empty := len(c.members) == 0
	c.mu.Unlock()

	deliver(events)
	return empty
}

// KickMember removes the member matching targetName and clears their channel
// attribute so they cannot keep talking. Returns the removed session, or nil
// when no member matches. The caller routes the target onward.
func (c *Channel) KickMember(targetName string) *session.Session {
	target := c.FindMember(targetName)
	if target == nil {
		return nil
	}
	target.SetChannel("")
	c.Leave(target)
	return target
}

// FindMember returns the member whose display name matches, or nil.
func (c *Channel) FindMember(name string) *session.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range c.members {
		if strings.EqualFold(m.DisplayName(), name) {
			return m
		}
	}
	return nil
}

// IsOperator reports whether s currently holds the channel operator flag.
func (c *Channel) IsOperator(s *session.Session) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.operator == s
}

// Ban adds a username to the ban list. It does not remove a present member.
func (c *Channel) Ban(username string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.banned[strings.ToLower(username)] = struct{}{}
}

// Unban removes a username from the ban list.
func (c *Channel) Unban(username string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.banned, strings.ToLower(username))
}

// IsBanned reports whether a username is on the ban list.
func (c *Channel) IsBanned(username string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isBannedLocked(username)
}

// SetSuccessor designates the heir for operator succession.
func (c *Channel) SetSuccessor(username string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.successor = strings.ToLower(username)
}

// PromoteOperator demotes the current operator and promotes target,
// broadcasting the flag change for both.
func (c *Channel) PromoteOperator(target *session.Session) {
	var events []pendingEvent
	c.mu.Lock()
	c.promoteLocked(target, &events)
	c.mu.Unlock()
	deliver(events)
}

// Broadcast sends a chat event from sender to the members. The sender is
// excluded only for plain talk (clients echo their own chat locally); any
// member who squelched the sender is excluded always. Payload fields carry
// the sender's flags and ping.
func (c *Channel) Broadcast(eid uint32, sender *session.Session, text string) {
	var events []pendingEvent

	c.mu.Lock()
	if c.silent {
		c.mu.Unlock()
		return
	}

	flags := c.flagsLocked(sender)
	senderName := sender.DisplayName()
	ping := sender.Ping()
	ip := sender.RemoteIP()
	for _, m := range c.members {
		if m == sender && eid == constants.EidTalk {
			continue
		}
		if m.HasSquelched(senderName) {
			continue
		}
		queueEvent(&events, m, eid, flags, ping, ip, senderName, text)
	}
	c.mu.Unlock()

	deliver(events)
}

// Topic returns the current topic, "" when unset.
func (c *Channel) Topic() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.topic
}

// SetTopic replaces the topic and announces it to every member.
func (c *Channel) SetTopic(topic string) {
	c.mu.Lock()
	members := append([]*session.Session(nil), c.members...)
	c.topic = topic
	c.mu.Unlock()

	for _, m := range members {
		SendInfoMessage(m, "Topic: "+topic)
	}
}

// MemberCount returns the number of members.
func (c *Channel) MemberCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.members)
}

// Usernames returns the display names of the members in join order.
func (c *Channel) Usernames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.members))
	for _, m := range c.members {
		names = append(names, m.DisplayName())
	}
	return names
}

func (c *Channel) isBannedLocked(displayName string) bool {
	lower := strings.ToLower(displayName)
	if _, ok := c.banned[lower]; ok {
		return true
	}
	if star := strings.IndexByte(lower, '*'); star >= 0 {
		if _, ok := c.banned[lower[:star]]; ok {
			return true
		}
		if _, ok := c.banned[lower[star+1:]]; ok {
			return true
		}
	}
	return false
}

// pickSuccessorLocked implements the two-tier succession rule: the
// designated heir if still present, otherwise any remaining member.
func (c *Channel) pickSuccessorLocked() *session.Session {
	if c.successor != "" {
		for _, m := range c.members {
			if strings.EqualFold(m.DisplayName(), c.successor) {
				c.successor = ""
				return m
			}
		}
		c.successor = ""
	}
	if len(c.members) > 0 {
		return c.members[0]
	}
	return nil
}

func (c *Channel) promoteLocked(target *session.Session, out *[]pendingEvent) {
	if prev := c.operator; prev != nil && prev != target {
		c.operator = nil
		c.broadcastFlagsLocked(prev, out)
	}
	c.operator = target
	c.broadcastFlagsLocked(target, out)
}

func (c *Channel) broadcastFlagsLocked(subject *session.Session, out *[]pendingEvent) {
	if c.silent {
		return
	}
	flags := c.flagsLocked(subject)
	for _, m := range c.members {
		queueEvent(out, m, constants.EidUserFlags, flags, subject.Ping(), subject.RemoteIP(),
			subject.DisplayName(), "")
	}
}

func (c *Channel) flagsLocked(s *session.Session) uint32 {
	if c.operator == s {
		return constants.FlagOperator
	}
	return 0
}
