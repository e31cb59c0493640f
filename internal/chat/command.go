package chat

import (
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/udisondev/bnetgo/internal/constants"
	"github.com/udisondev/bnetgo/internal/session"
)

// productNames maps wire product tags (byte-reversed on the wire) to the
// names shown by /whois and /whoami.
var productNames = map[string]string{
	"RATS": "Starcraft",
	"PXES": "Starcraft: Brood War",
	"VD2D": "Diablo II",
	"PX2D": "Diablo II: Lord of Destruction",
	"3RAW": "Warcraft III: Reign of Chaos",
	"PX3W": "Warcraft III: The Frozen Throne",
	"NB2W": "Warcraft II: Battle.net Edition",
	"RHSD": "Diablo",
}

// Interpreter executes chat text: plain lines broadcast to the current
// channel, slash commands dispatch against a fixed table. Unknown commands
// are silently ignored, matching the legacy servers.
type Interpreter struct {
	log      *slog.Logger
	sessions *session.Registry
	channels *Registry
	whispers *WhisperRouter
	server   string
}

// NewInterpreter wires the command surface over the chat state.
func NewInterpreter(log *slog.Logger, sessions *session.Registry, channels *Registry, whispers *WhisperRouter, serverName string) *Interpreter {
	return &Interpreter{
		log:      log,
		sessions: sessions,
		channels: channels,
		whispers: whispers,
		server:   serverName,
	}
}

// Handle processes one chat-command line from an authenticated session.
func (in *Interpreter) Handle(s *session.Session, text string) {
	username := s.DisplayName()
	if username == "" {
		return
	}

	if !strings.HasPrefix(text, "/") {
		if ch, ok := in.channels.Get(s.Channel()); ok {
			ch.Broadcast(constants.EidTalk, s, text)
		}
		return
	}

	in.log.Debug("chat command", "user", username, "text", text)
	in.dispatch(s, username, text)
}

func (in *Interpreter) dispatch(s *session.Session, username, text string) {
	cmd, arg := splitCommand(text)

	switch cmd {
	case "join", "channel", "j":
		if arg != "" {
			if !in.channels.JoinChannel(s, arg, username) {
				SendErrorMessage(s, "You are banned from that channel.")
			}
		}
	case "rejoin":
		if cur := s.Channel(); cur != "" {
			in.channels.JoinChannel(s, cur, username)
		}
	case "whisper", "w", "msg", "m":
		target, msg, ok := splitArg(arg)
		if ok {
			in.whispers.SendWhisper(s, username, target, msg)
		}
	case "emote", "me":
		if arg != "" {
			if ch, ok := in.channels.Get(s.Channel()); ok {
				ch.Broadcast(constants.EidEmote, s, arg)
			}
		}
	case "kick":
		in.kick(s, username, arg)
	case "ban":
		in.ban(s, username, arg)
	case "unban":
		in.unban(s, username, arg)
	case "designate":
		in.designate(s, username, arg)
	case "resign":
		in.resign(s, username)
	case "away":
		in.away(s, arg)
	case "dnd":
		in.dnd(s, arg)
	case "squelch", "ignore":
		in.squelch(s, arg)
	case "unsquelch", "unignore":
		in.unsquelch(s, arg)
	case "who":
		name := arg
		if name == "" {
			name = s.Channel()
		}
		in.who(s, name)
	case "whois", "where", "whereis":
		if arg != "" {
			in.whois(s, arg)
		}
	case "whoami":
		in.whoami(s, username)
	case "time":
		SendInfoMessage(s, "Server time: "+time.Now().Format("Mon Jan 02 15:04:05 2006 MST"))
	case "users":
		in.users(s)
	case "topic":
		in.topic(s, arg)
	default:
		// Unknown commands get no reply.
	}
}

// operatorChannel resolves the actor's current channel and checks the
// operator requirement shared by every moderation command.
func (in *Interpreter) operatorChannel(s *session.Session) (*Channel, bool) {
	ch, ok := in.channels.Get(s.Channel())
	if !ok {
		return nil, false
	}
	if !ch.IsOperator(s) {
		SendErrorMessage(s, "You are not a channel operator.")
		return nil, false
	}
	return ch, true
}

func (in *Interpreter) kick(s *session.Session, username, target string) {
	ch, ok := in.operatorChannel(s)
	if !ok {
		return
	}
	if strings.EqualFold(target, username) {
		SendErrorMessage(s, "You can't kick yourself.")
		return
	}
	kicked := ch.KickMember(target)
	if kicked == nil {
		SendErrorMessage(s, "That user is not in the channel.")
		return
	}
	SendInfoMessage(kicked, "You were kicked out of the channel by "+username+".")
	in.channels.SendToVoid(kicked)
	SendInfoMessage(s, target+" was kicked out of the channel by "+username+".")
}

func (in *Interpreter) ban(s *session.Session, username, target string) {
	ch, ok := in.operatorChannel(s)
	if !ok {
		return
	}
	if strings.EqualFold(target, username) {
		SendErrorMessage(s, "You can't ban yourself.")
		return
	}
	ch.Ban(target)
	if banned := ch.KickMember(target); banned != nil {
		SendInfoMessage(banned, "You were banned from the channel by "+username+".")
		in.channels.SendToVoid(banned)
	}
	SendInfoMessage(s, target+" was banned from the channel by "+username+".")
}

func (in *Interpreter) unban(s *session.Session, username, target string) {
	ch, ok := in.operatorChannel(s)
	if !ok {
		return
	}
	if !ch.IsBanned(target) {
		SendErrorMessage(s, "That user is not banned.")
		return
	}
	ch.Unban(target)
	SendInfoMessage(s, target+" is no longer banned from this channel.")
}

func (in *Interpreter) designate(s *session.Session, username, target string) {
	ch, ok := in.operatorChannel(s)
	if !ok {
		return
	}
	if ch.FindMember(target) == nil {
		SendErrorMessage(s, "That user is not in the channel.")
		return
	}
	ch.SetSuccessor(target)
	SendInfoMessage(s, target+" is the designated heir.")
}

func (in *Interpreter) resign(s *session.Session, username string) {
	ch, ok := in.operatorChannel(s)
	if !ok {
		return
	}
	// Hand over to the designated heir, or to any other member. A sole
	// member has nobody to resign to and keeps the flag.
	var events []pendingEvent
	ch.mu.Lock()
	next := (*session.Session)(nil)
	if heir := ch.pickSuccessorLocked(); heir != nil && heir != s {
		next = heir
	} else {
		for _, m := range ch.members {
			if m != s {
				next = m
				break
			}
		}
	}
	if next != nil {
		ch.promoteLocked(next, &events)
	}
	ch.mu.Unlock()
	deliver(events)
}

func (in *Interpreter) away(s *session.Session, message string) {
	_, active := s.Away()
	if message == "" && !active {
		SendInfoMessage(s, "You are no longer marked as away.")
		return
	}
	if message == "" {
		s.ClearAway()
		SendInfoMessage(s, "You are no longer marked as away.")
		return
	}
	s.SetAway(message)
	SendInfoMessage(s, "You are now marked as being away.")
}

func (in *Interpreter) dnd(s *session.Session, message string) {
	_, active := s.DND()
	if message == "" && !active {
		SendInfoMessage(s, "Do Not Disturb mode cancelled.")
		return
	}
	if message == "" {
		s.ClearDND()
		SendInfoMessage(s, "Do Not Disturb mode cancelled.")
		return
	}
	s.SetDND(message)
	SendInfoMessage(s, "Do Not Disturb mode engaged.")
}

func (in *Interpreter) squelch(s *session.Session, target string) {
	if target == "" {
		return
	}
	if s.HasSquelched(target) {
		SendErrorMessage(s, target+" is already being ignored.")
		return
	}
	s.Squelch(target)
	SendInfoMessage(s, "Ignoring "+target+".")
}

// unsquelch is silently idempotent: some clients poll /unignore as
// maintenance and must never see an error for a name not on the list.
func (in *Interpreter) unsquelch(s *session.Session, target string) {
	if target == "" || !s.HasSquelched(target) {
		return
	}
	s.Unsquelch(target)
	SendInfoMessage(s, target+" is no longer being ignored.")
}

func (in *Interpreter) who(s *session.Session, channelName string) {
	if channelName == "" {
		SendErrorMessage(s, "You are not in a channel.")
		return
	}
	ch, ok := in.channels.Get(channelName)
	if !ok || ch.MemberCount() == 0 {
		SendErrorMessage(s, "That channel does not exist.")
		return
	}
	names := ch.Usernames()
	SendInfoMessage(s, "Users in channel "+ch.Name()+":")
	for _, name := range names {
		SendInfoMessage(s, name)
	}
	SendInfoMessage(s, "Total of "+strconv.Itoa(len(names))+" user(s).")
}

func (in *Interpreter) whois(s *session.Session, target string) {
	t, ok := in.sessions.Lookup(target)
	if !ok {
		SendErrorMessage(s, "That user is not logged on.")
		return
	}
	SendInfoMessage(s, t.DisplayName()+" is using "+productName(t.Product())+channelSuffix(t.Channel()))
	if in.server != "" {
		SendInfoMessage(s, "On server @"+in.server+".")
	}
}

func (in *Interpreter) whoami(s *session.Session, username string) {
	SendInfoMessage(s, "You are "+username+", using "+productName(s.Product())+channelSuffix(s.Channel()))
	if in.server != "" {
		SendInfoMessage(s, "On server @"+in.server+".")
	}
}

func (in *Interpreter) users(s *session.Session) {
	ch, ok := in.channels.Get(s.Channel())
	if !ok {
		SendErrorMessage(s, "You are not in a channel.")
		return
	}
	SendInfoMessage(s, "Users in channel: "+strings.Join(ch.Usernames(), ", "))
}

func (in *Interpreter) topic(s *session.Session, text string) {
	ch, ok := in.operatorChannel(s)
	if !ok {
		return
	}
	if text == "" {
		if cur := ch.Topic(); cur != "" {
			SendInfoMessage(s, "Topic: "+cur)
		} else {
			SendInfoMessage(s, "No topic is set.")
		}
		return
	}
	ch.SetTopic(text)
}

// splitCommand strips the leading slash and separates the command word from
// its argument. The command is lowered for the case-insensitive match.
func splitCommand(text string) (cmd, arg string) {
	text = strings.TrimPrefix(text, "/")
	if i := strings.IndexByte(text, ' '); i >= 0 {
		return strings.ToLower(text[:i]), strings.TrimSpace(text[i+1:])
	}
	return strings.ToLower(text), ""
}

// splitArg separates the first word of an argument from the remainder.
func splitArg(arg string) (first, rest string, ok bool) {
	i := strings.IndexByte(arg, ' ')
	if i < 0 {
		return "", "", false
	}
	first = arg[:i]
	rest = arg[i+1:]
	return first, rest, first != "" && rest != ""
}

func productName(tag string) string {
	if name, ok := productNames[tag]; ok {
		return name
	}
	if tag != "" {
		return tag
	}
	return "Unknown"
}

func channelSuffix(channel string) string {
	if channel != "" {
		return " in the channel " + channel + "."
	}
	return "."
}
