package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/bnetgo/internal/constants"
	"github.com/udisondev/bnetgo/internal/session"
)

func newRegisteredUser(t *testing.T, reg *session.Registry, name string) (*session.Session, *captureSender) {
	t.Helper()
	s, out := newUser(name)
	reg.Add(s)
	reg.BindUsername(s, name)
	return s, out
}

func TestWhisper_TargetNotLoggedOn(t *testing.T) {
	reg := session.NewRegistry()
	w := NewWhisperRouter(reg)
	alice, out := newRegisteredUser(t, reg, "Alice")

	w.SendWhisper(alice, "Alice", "Ghost", "hello?")

	events := decodeAll(t, out.take())
	require.Len(t, events, 1)
	assert.Equal(t, uint32(constants.EidError), events[0].eid)
	assert.Equal(t, "That user is not logged on.", events[0].text)
}

func TestWhisper_Delivered(t *testing.T) {
	reg := session.NewRegistry()
	w := NewWhisperRouter(reg)
	alice, aliceOut := newRegisteredUser(t, reg, "Alice")
	_, bobOut := newRegisteredUser(t, reg, "Bob")

	w.SendWhisper(alice, "Alice", "bob", "hi")

	bobEvents := decodeAll(t, bobOut.take())
	require.Len(t, bobEvents, 1)
	assert.Equal(t, uint32(constants.EidWhisper), bobEvents[0].eid)
	assert.Equal(t, "Alice", bobEvents[0].username)
	assert.Equal(t, "hi", bobEvents[0].text)

	aliceEvents := decodeAll(t, aliceOut.take())
	require.Len(t, aliceEvents, 1)
	assert.Equal(t, uint32(constants.EidWhisperSent), aliceEvents[0].eid)
	assert.Equal(t, "Bob", aliceEvents[0].username)
}

func TestWhisper_DNDBlocksDelivery(t *testing.T) {
	reg := session.NewRegistry()
	w := NewWhisperRouter(reg)
	alice, aliceOut := newRegisteredUser(t, reg, "Alice")
	bob, bobOut := newRegisteredUser(t, reg, "Bob")
	bob.SetDND("raiding")

	w.SendWhisper(alice, "Alice", "Bob", "hi")

	assert.Empty(t, bobOut.take(), "DND must block delivery")
	events := decodeAll(t, aliceOut.take())
	require.Len(t, events, 1)
	assert.Equal(t, uint32(constants.EidInfo), events[0].eid)
	assert.Contains(t, events[0].text, "raiding")
}

func TestWhisper_AwayDeliversAndInforms(t *testing.T) {
	reg := session.NewRegistry()
	w := NewWhisperRouter(reg)
	alice, aliceOut := newRegisteredUser(t, reg, "Alice")
	bob, bobOut := newRegisteredUser(t, reg, "Bob")
	bob.SetAway("brb food")

	w.SendWhisper(alice, "Alice", "Bob", "hi")

	bobEvents := decodeAll(t, bobOut.take())
	require.Len(t, bobEvents, 1, "away still delivers")
	assert.Equal(t, uint32(constants.EidWhisper), bobEvents[0].eid)

	aliceEvents := decodeAll(t, aliceOut.take())
	require.Len(t, aliceEvents, 2)
	assert.Equal(t, uint32(constants.EidWhisperSent), aliceEvents[0].eid)
	assert.Equal(t, uint32(constants.EidInfo), aliceEvents[1].eid)
	assert.Contains(t, aliceEvents[1].text, "brb food")
}

func TestWhisper_ResolvesCompositeTarget(t *testing.T) {
	reg := session.NewRegistry()
	w := NewWhisperRouter(reg)
	alice, _ := newRegisteredUser(t, reg, "Alice")
	_, bobOut := newRegisteredUser(t, reg, "Conan*BobAccount")

	w.SendWhisper(alice, "Alice", "*bobaccount", "realm whisper")

	events := decodeAll(t, bobOut.take())
	require.Len(t, events, 1)
	assert.Equal(t, "realm whisper", events[0].text)
}
