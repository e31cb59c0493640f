package chat

import (
	"strings"
	"sync"

	"github.com/udisondev/bnetgo/internal/session"
)

// VoidChannel is the sentinel room kicked and banned users land in. Its
// members have no chat privileges and never see each other.
const VoidChannel = "The Void"

// Registry tracks live channels by case-insensitive name. Channels are
// created lazily on first join and destroyed exactly when their member
// count reaches zero; ban lists and topics do not survive destruction.
type Registry struct {
	mu       sync.Mutex
	channels map[string]*Channel
}

// NewRegistry creates an empty channel registry.
func NewRegistry() *Registry {
	return &Registry{channels: make(map[string]*Channel)}
}

// GetOrCreate returns the channel with the given name, creating it when
// absent. The first joiner's spelling becomes the display name.
func (r *Registry) GetOrCreate(name string) *Channel {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getOrCreateLocked(name)
}

// Get returns the channel with the given name if it exists.
func (r *Registry) Get(name string) (*Channel, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.channels[strings.ToLower(name)]
	return ch, ok
}

// Names returns the display names of all live channels.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.channels))
	for _, ch := range r.channels {
		names = append(names, ch.name)
	}
	return names
}

// JoinChannel moves a session into the named channel. A session already in
// a different channel leaves it first (destroying it if emptied); the
// session's channel attribute is updated only after the join succeeds.
// Returns false when the ban list rejects the joiner, with no other side
// effect.
func (r *Registry) JoinChannel(s *session.Session, name, displayName string) bool {
	return r.join(s, name, displayName)
}

// LeaveChannel removes the session from its current channel, destroying the
// channel if it is now empty. Used by the disconnect and idle paths as well
// as explicit leave requests.
func (r *Registry) LeaveChannel(s *session.Session) {
	current := s.Channel()
	if current == "" {
		return
	}
	s.SetChannel("")

	ch, ok := r.Get(current)
	if !ok {
		return
	}
	if ch.Leave(s) {
		r.destroyIfEmpty(ch)
	}
}

// SendToVoid routes a kicked or banned session into the Void: the void's
// channel notice, their own self notice and a privileges warning.
func (r *Registry) SendToVoid(s *session.Session) {
	if r.join(s, VoidChannel, s.DisplayName()) {
		SendInfoMessage(s, "This channel does not have chat privileges.")
	}
}

func (r *Registry) join(s *session.Session, name, displayName string) bool {
	for {
		ch := r.GetOrCreate(name)

		// Check the ban list before leaving the old channel so a rejected
		// join leaves the session exactly where it was.
		if ch.IsBanned(displayName) {
			r.destroyIfEmpty(ch)
			return false
		}

		if current := s.Channel(); current != "" && !strings.EqualFold(current, ch.Name()) {
			r.LeaveChannel(s)
		} else if current != "" {
			// Rejoining the same channel replays the join conversation. The
			// channel is deliberately kept alive even when the rejoiner was
			// its sole member.
			s.SetChannel("")
			ch.Leave(s)
		}

		if !ch.Join(s, displayName) {
			r.destroyIfEmpty(ch)
			return false
		}

		// A concurrent leave may have emptied this instance and dropped it
		// from the map between GetOrCreate and Join, which would strand the
		// joiner in a channel nothing can look up. Re-anchor the instance;
		// if the name was recreated meanwhile, back out and join the live one.
		if r.reanchor(ch) {
			s.SetChannel(ch.Name())
			return true
		}
		ch.Leave(s)
	}
}

// reanchor makes sure ch is the instance the registry maps its name to.
// Re-inserts it when a concurrent destroy removed the entry; reports false
// when a different instance took the name.
func (r *Registry) reanchor(ch *Channel) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := strings.ToLower(ch.name)
	cur, ok := r.channels[key]
	if !ok {
		r.channels[key] = ch
		return true
	}
	return cur == ch
}

func (r *Registry) getOrCreateLocked(name string) *Channel {
	key := strings.ToLower(name)
	if ch, ok := r.channels[key]; ok {
		return ch
	}
	ch := newChannel(name, strings.EqualFold(name, VoidChannel))
	r.channels[key] = ch
	return ch
}

func (r *Registry) destroyIfEmpty(ch *Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := strings.ToLower(ch.name)
	if cur, ok := r.channels[key]; ok && cur == ch && ch.MemberCount() == 0 {
		delete(r.channels, key)
	}
}
