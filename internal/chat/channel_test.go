package chat

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/bnetgo/internal/constants"
	"github.com/udisondev/bnetgo/internal/protocol"
	"github.com/udisondev/bnetgo/internal/session"
)

type capturedFrame struct {
	msgType byte
	payload []byte
}

type captureSender struct {
	mu     sync.Mutex
	frames []capturedFrame
}

func (c *captureSender) SendFrame(msgType byte, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := make([]byte, len(payload))
	copy(p, payload)
	c.frames = append(c.frames, capturedFrame{msgType: msgType, payload: p})
	return nil
}

func (c *captureSender) take() []capturedFrame {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.frames
	c.frames = nil
	return out
}

type chatEvent struct {
	eid      uint32
	flags    uint32
	username string
	text     string
}

func decodeEvent(t *testing.T, f capturedFrame) chatEvent {
	t.Helper()
	require.Equal(t, byte(constants.SidChatEvent), f.msgType)
	r := protocol.NewReader(f.payload)
	eid, err := r.Uint32()
	require.NoError(t, err)
	flags, err := r.Uint32()
	require.NoError(t, err)
	for i := 0; i < 4; i++ { // ping, ip, account, regauth
		_, err = r.Uint32()
		require.NoError(t, err)
	}
	username, err := r.String()
	require.NoError(t, err)
	text, err := r.String()
	require.NoError(t, err)
	return chatEvent{eid: eid, flags: flags, username: username, text: text}
}

func decodeAll(t *testing.T, frames []capturedFrame) []chatEvent {
	t.Helper()
	events := make([]chatEvent, 0, len(frames))
	for _, f := range frames {
		events = append(events, decodeEvent(t, f))
	}
	return events
}

func newUser(name string) (*session.Session, *captureSender) {
	cs := &captureSender{}
	s := session.New(cs)
	s.MarkAuthenticated(name)
	s.SetDisplayName(name)
	return s, cs
}

func TestChannel_FirstJoinerBecomesOperator(t *testing.T) {
	ch := newChannel("Trade", false)
	alice, out := newUser("Alice")

	require.True(t, ch.Join(alice, "Alice"))
	assert.True(t, ch.IsOperator(alice))

	events := decodeAll(t, out.take())
	require.Len(t, events, 2)
	assert.Equal(t, uint32(constants.EidChannel), events[0].eid)
	assert.Equal(t, "Trade", events[0].text)
	assert.Equal(t, uint32(constants.EidShowUser), events[1].eid)
	assert.Equal(t, "Alice", events[1].username)
	assert.Equal(t, uint32(constants.FlagOperator), events[1].flags)
}

func TestChannel_JoinOrdering(t *testing.T) {
	ch := newChannel("Trade", false)
	alice, aliceOut := newUser("Alice")
	bob, bobOut := newUser("Bob")

	require.True(t, ch.Join(alice, "Alice"))
	aliceOut.take()

	require.True(t, ch.Join(bob, "Bob"))

	// The joiner sees: channel notice, each existing member, then self.
	bobEvents := decodeAll(t, bobOut.take())
	require.Len(t, bobEvents, 3)
	assert.Equal(t, uint32(constants.EidChannel), bobEvents[0].eid)
	assert.Equal(t, uint32(constants.EidShowUser), bobEvents[1].eid)
	assert.Equal(t, "Alice", bobEvents[1].username)
	assert.Equal(t, uint32(constants.FlagOperator), bobEvents[1].flags)
	assert.Equal(t, uint32(constants.EidShowUser), bobEvents[2].eid)
	assert.Equal(t, "Bob", bobEvents[2].username)
	assert.Equal(t, uint32(0), bobEvents[2].flags)

	// Existing members see exactly one join notice, after the fact.
	aliceEvents := decodeAll(t, aliceOut.take())
	require.Len(t, aliceEvents, 1)
	assert.Equal(t, uint32(constants.EidJoin), aliceEvents[0].eid)
	assert.Equal(t, "Bob", aliceEvents[0].username)

	// Second joiner did not steal the operator flag.
	assert.True(t, ch.IsOperator(alice))
	assert.False(t, ch.IsOperator(bob))
}

func TestChannel_BanBlocksJoinSilently(t *testing.T) {
	ch := newChannel("Trade", false)
	alice, _ := newUser("Alice")
	require.True(t, ch.Join(alice, "Alice"))

	ch.Ban("Mallory")
	mallory, out := newUser("Mallory")
	assert.False(t, ch.Join(mallory, "Mallory"))
	assert.Empty(t, out.take())
	assert.Equal(t, 1, ch.MemberCount())
}

func TestChannel_BanMatchesCompositeHalves(t *testing.T) {
	ch := newChannel("Trade", false)
	ch.Ban("badaccount")

	u, out := newUser("Hero*BadAccount")
	assert.False(t, ch.Join(u, "Hero*BadAccount"))
	assert.Empty(t, out.take())
}

func TestChannel_SuccessionPrefersDesignatedHeir(t *testing.T) {
	ch := newChannel("Trade", false)
	alice, _ := newUser("Alice")
	bob, _ := newUser("Bob")
	carol, carolOut := newUser("Carol")

	require.True(t, ch.Join(alice, "Alice"))
	require.True(t, ch.Join(bob, "Bob"))
	require.True(t, ch.Join(carol, "Carol"))

	ch.SetSuccessor("Carol")
	carolOut.take()

	ch.Leave(alice)

	assert.True(t, ch.IsOperator(carol))
	assert.False(t, ch.IsOperator(bob))

	// The promotion is announced as a flag change.
	var sawFlags bool
	for _, ev := range decodeAll(t, carolOut.take()) {
		if ev.eid == constants.EidUserFlags && ev.username == "Carol" {
			sawFlags = true
			assert.Equal(t, uint32(constants.FlagOperator), ev.flags)
		}
	}
	assert.True(t, sawFlags)
}

func TestChannel_SuccessionFallsBackToAnyMember(t *testing.T) {
	ch := newChannel("Trade", false)
	alice, _ := newUser("Alice")
	bob, _ := newUser("Bob")

	require.True(t, ch.Join(alice, "Alice"))
	require.True(t, ch.Join(bob, "Bob"))

	ch.Leave(alice)
	assert.True(t, ch.IsOperator(bob))
}

func TestChannel_TalkExcludesSenderEmoteIncludes(t *testing.T) {
	ch := newChannel("Trade", false)
	alice, aliceOut := newUser("Alice")
	bob, bobOut := newUser("Bob")
	require.True(t, ch.Join(alice, "Alice"))
	require.True(t, ch.Join(bob, "Bob"))
	aliceOut.take()
	bobOut.take()

	ch.Broadcast(constants.EidTalk, bob, "hello")
	assert.Empty(t, bobOut.take(), "talk must not echo to the sender")
	aliceEvents := decodeAll(t, aliceOut.take())
	require.Len(t, aliceEvents, 1)
	assert.Equal(t, uint32(constants.EidTalk), aliceEvents[0].eid)
	assert.Equal(t, "Bob", aliceEvents[0].username)
	assert.Equal(t, "hello", aliceEvents[0].text)

	ch.Broadcast(constants.EidEmote, bob, "waves")
	bobEvents := decodeAll(t, bobOut.take())
	require.Len(t, bobEvents, 1, "emote echoes to the sender too")
	assert.Equal(t, uint32(constants.EidEmote), bobEvents[0].eid)
	require.Len(t, decodeAll(t, aliceOut.take()), 1)
}

func TestChannel_SquelchFiltersBroadcast(t *testing.T) {
	ch := newChannel("Trade", false)
	alice, aliceOut := newUser("Alice")
	bob, _ := newUser("Bob")
	require.True(t, ch.Join(alice, "Alice"))
	require.True(t, ch.Join(bob, "Bob"))
	aliceOut.take()

	alice.Squelch("bob")
	ch.Broadcast(constants.EidTalk, bob, "spam")
	assert.Empty(t, aliceOut.take())

	alice.Unsquelch("BOB")
	ch.Broadcast(constants.EidTalk, bob, "ok now")
	assert.Len(t, aliceOut.take(), 1)
}

func TestChannel_BroadcastCarriesSenderFlags(t *testing.T) {
	ch := newChannel("Trade", false)
	alice, _ := newUser("Alice")
	bob, bobOut := newUser("Bob")
	require.True(t, ch.Join(alice, "Alice"))
	require.True(t, ch.Join(bob, "Bob"))
	bobOut.take()

	ch.Broadcast(constants.EidTalk, alice, "op speaking")
	events := decodeAll(t, bobOut.take())
	require.Len(t, events, 1)
	assert.Equal(t, uint32(constants.FlagOperator), events[0].flags)
}

func TestChannel_LeaveNotifiesWithLastFlags(t *testing.T) {
	ch := newChannel("Trade", false)
	alice, _ := newUser("Alice")
	bob, bobOut := newUser("Bob")
	require.True(t, ch.Join(alice, "Alice"))
	require.True(t, ch.Join(bob, "Bob"))
	bobOut.take()

	empty := ch.Leave(alice)
	assert.False(t, empty)

	events := decodeAll(t, bobOut.take())
	var sawLeave bool
	for _, ev := range events {
		if ev.eid == constants.EidLeave {
			sawLeave = true
			assert.Equal(t, "Alice", ev.username)
			assert.Equal(t, uint32(constants.FlagOperator), ev.flags)
		}
	}
	assert.True(t, sawLeave)
}

// blockingSender parks every SendFrame call after stall() until release is
// closed, signalling entered when a write is parked.
type blockingSender struct {
	mu      sync.Mutex
	stalled bool
	entered chan struct{}
	release chan struct{}
}

func (b *blockingSender) SendFrame(byte, []byte) error {
	b.mu.Lock()
	stalled := b.stalled
	b.mu.Unlock()
	if stalled {
		b.entered <- struct{}{}
		<-b.release
	}
	return nil
}

func (b *blockingSender) stall() {
	b.mu.Lock()
	b.stalled = true
	b.mu.Unlock()
}

func TestChannel_StalledRecipientDoesNotFreezeChannel(t *testing.T) {
	ch := newChannel("Trade", false)
	alice, _ := newUser("Alice")
	require.True(t, ch.Join(alice, "Alice"))

	bs := &blockingSender{entered: make(chan struct{}, 1), release: make(chan struct{})}
	stuck := session.New(bs)
	stuck.MarkAuthenticated("Stuck")
	stuck.SetDisplayName("Stuck")
	require.True(t, ch.Join(stuck, "Stuck"))
	bs.stall()

	done := make(chan struct{})
	go func() {
		defer close(done)
		ch.Broadcast(constants.EidTalk, alice, "hello")
	}()
	<-bs.entered // the broadcast is now parked inside the stalled write

	counted := make(chan int, 1)
	go func() { counted <- ch.MemberCount() }()
	select {
	case n := <-counted:
		assert.Equal(t, 2, n)
	case <-time.After(2 * time.Second):
		t.Fatal("channel state is locked behind a stalled recipient write")
	}

	close(bs.release)
	<-done
}

func TestChannel_VoidJoinGrantsNoOperator(t *testing.T) {
	ch := newChannel(VoidChannel, true)
	alice, out := newUser("Alice")

	require.True(t, ch.Join(alice, "Alice"))
	assert.False(t, ch.IsOperator(alice))

	events := decodeAll(t, out.take())
	require.Len(t, events, 2)
	assert.Equal(t, uint32(constants.EidChannel), events[0].eid)
	assert.Equal(t, uint32(0), events[1].flags, "the void has no operators")
}

func TestChannel_OperatorSurvivesConcurrentChurn(t *testing.T) {
	ch := newChannel("Trade", false)

	anchor, _ := newUser("Anchor")
	require.True(t, ch.Join(anchor, "Anchor"))

	const workers = 8
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		name := fmt.Sprintf("Churn%d", i)
		s, _ := newUser(name)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if !assert.True(t, ch.Join(s, name)) {
					return
				}
				ch.Leave(s)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, ch.MemberCount())
	assert.True(t, ch.IsOperator(anchor))
}

func TestChannel_KickClearsChannelAttribute(t *testing.T) {
	ch := newChannel("Trade", false)
	alice, _ := newUser("Alice")
	bob, _ := newUser("Bob")
	require.True(t, ch.Join(alice, "Alice"))
	require.True(t, ch.Join(bob, "Bob"))
	bob.SetChannel("Trade")

	kicked := ch.KickMember("bob")
	require.NotNil(t, kicked)
	assert.Same(t, bob, kicked)
	assert.Equal(t, "", bob.Channel())
	assert.Equal(t, 1, ch.MemberCount())

	assert.Nil(t, ch.KickMember("nobody"))
}
