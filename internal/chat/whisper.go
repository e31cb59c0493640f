package chat

import (
	"github.com/udisondev/bnetgo/internal/constants"
	"github.com/udisondev/bnetgo/internal/session"
)

// WhisperRouter delivers private messages between online users, honoring
// away and do-not-disturb state.
type WhisperRouter struct {
	sessions *session.Registry
}

// NewWhisperRouter creates a router over the session registry.
func NewWhisperRouter(sessions *session.Registry) *WhisperRouter {
	return &WhisperRouter{sessions: sessions}
}

// SendWhisper routes a whisper from sender to targetName.
//
// An unresolvable target yields a single "not logged on" error to the
// sender. A target in do-not-disturb mode blocks delivery; the sender gets
// the DND message instead. An away target still receives the whisper, the
// sender is additionally shown the away message.
func (w *WhisperRouter) SendWhisper(sender *session.Session, senderName, targetName, message string) {
	target, ok := w.sessions.Lookup(targetName)
	if !ok {
		SendErrorMessage(sender, "That user is not logged on.")
		return
	}

	if dndMsg, dnd := target.DND(); dnd {
		SendInfoMessage(sender, target.DisplayName()+" is unavailable ("+dndMsg+")")
		return
	}

	sendEvent(target, constants.EidWhisper, 0, sender.Ping(), sender.RemoteIP(), senderName, message)
	sendEvent(sender, constants.EidWhisperSent, 0, target.Ping(), target.RemoteIP(), target.DisplayName(), message)

	if awayMsg, away := target.Away(); away {
		SendInfoMessage(sender, target.DisplayName()+" is away ("+awayMsg+")")
	}
}
