// Package chat implements channels, whisper routing and the slash-command
// surface of the chat server.
package chat

import (
	"github.com/udisondev/bnetgo/internal/constants"
	"github.com/udisondev/bnetgo/internal/protocol"
	"github.com/udisondev/bnetgo/internal/session"
)

// SystemSender is the username shown on server broadcast notices.
const SystemSender = "Battle.net"

// eventPayload builds a SID_CHATEVENT payload. The account number and
// registration authority dwords are fixed legacy fillers the client ignores.
func eventPayload(eid, flags, ping, ip uint32, username, text string) []byte {
	return protocol.NewWriter().
		Uint32(eid).
		Uint32(flags).
		Uint32(ping).
		Uint32(ip).
		Uint32(constants.LegacyAccountNumber).
		Uint32(constants.LegacyRegAuthority).
		String(username).
		String(text).
		Payload()
}

func sendEvent(s *session.Session, eid, flags, ping, ip uint32, username, text string) {
	// Fire and forget; a dead peer is cleaned up by its own connection loop.
	_ = s.SendFrame(constants.SidChatEvent, eventPayload(eid, flags, ping, ip, username, text))
}

// SendSystemMessage delivers a server notice shown with the Battle.net
// sender identity.
func SendSystemMessage(s *session.Session, message string) {
	sendEvent(s, constants.EidBroadcast, 0, 0, 0, SystemSender, message)
}

// SendInfoMessage delivers an informational notice with no sender identity.
func SendInfoMessage(s *session.Session, message string) {
	sendEvent(s, constants.EidInfo, 0, 0, 0, "", message)
}

// SendErrorMessage delivers an error notice with no sender identity.
func SendErrorMessage(s *session.Session, message string) {
	sendEvent(s, constants.EidError, 0, 0, 0, "", message)
}
