package realm

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/udisondev/bnetgo/internal/config"
	"github.com/udisondev/bnetgo/internal/constants"
	"github.com/udisondev/bnetgo/internal/model"
	"github.com/udisondev/bnetgo/internal/protocol"
	"github.com/udisondev/bnetgo/internal/realmauth"
)

// Character operation result codes.
const (
	charCreateNameExists  = 0x14
	charCreateInvalidName = 0x15

	charLogonNotFound = 0x46
	charLogonFailed   = 0x7A

	charDeleteFailed = 0x01
)

// Game operation result codes.
const (
	gameCreateAlreadyExists = 0x1E
	gameCreateServerDown    = 0x1F

	gameJoinWrongPassword = 0x29
	gameJoinNotFound      = 0x2A
	gameJoinFull          = 0x2B

	gameDeadHardcore = 0x6E
)

// charListExpiry is how far in the future the character list reports
// expiration. Characters here never actually expire.
const charListExpiry = 90 * 24 * time.Hour

// Handler implements the realm server's message handlers. Identity comes
// from the startup handshake; every later message is refused until it has
// succeeded.
type Handler struct {
	log    *slog.Logger
	cfg    config.RealmServer
	broker *realmauth.Broker
	chars  CharacterRepository
	games  *GameRegistry
}

// NewHandler wires the handler set over its collaborators.
func NewHandler(log *slog.Logger, cfg config.RealmServer, broker *realmauth.Broker, chars CharacterRepository, games *GameRegistry) *Handler {
	return &Handler{
		log:    log,
		cfg:    cfg,
		broker: broker,
		chars:  chars,
		games:  games,
	}
}

// Handle routes one frame to its handler. Unknown message types are dropped.
func (h *Handler) Handle(ctx context.Context, c *Client, frame Frame) error {
	switch frame.Type {
	case constants.McpStartup:
		return h.handleStartup(ctx, c, frame.Payload)
	case constants.McpMotd:
		return h.handleMotd(c)
	case constants.McpCharList2:
		return h.handleCharList2(ctx, c, frame.Payload)
	case constants.McpCharCreate:
		return h.handleCharCreate(ctx, c, frame.Payload)
	case constants.McpCharLogon:
		return h.handleCharLogon(ctx, c, frame.Payload)
	case constants.McpCharDelete:
		return h.handleCharDelete(ctx, c, frame.Payload)
	case constants.McpCreateGame:
		return h.handleCreateGame(ctx, c, frame.Payload)
	case constants.McpJoinGame:
		return h.handleJoinGame(ctx, c, frame.Payload)
	case constants.McpGameList:
		return h.handleGameList(c, frame.Payload)
	case constants.McpGameInfo:
		return h.handleGameInfo(c, frame.Payload)
	default:
		h.log.Debug("dropping unhandled message", "type", frame.Type, "remote", c.IP())
		return nil
	}
}

// handleStartup redeems the hand-off cookie minted by the chat server. The
// token is single use; its client and server tokens must match what the
// client echoes back.
func (h *Handler) handleStartup(ctx context.Context, c *Client, payload []byte) error {
	r := protocol.NewReader(payload)
	cookie, err := r.Uint32()
	if err != nil {
		return fmt.Errorf("reading startup cookie: %w", err)
	}
	if _, err := r.Uint32(); err != nil { // status
		return fmt.Errorf("reading startup: %w", err)
	}
	clientToken, err := r.Uint32()
	if err != nil {
		return fmt.Errorf("reading startup: %w", err)
	}
	serverToken, err := r.Uint32()
	if err != nil {
		return fmt.Errorf("reading startup: %w", err)
	}
	if err := r.Skip(48); err != nil {
		return fmt.Errorf("reading startup: %w", err)
	}
	uniqueName, err := r.String()
	if err != nil {
		return fmt.Errorf("reading startup name: %w", err)
	}

	tok, err := h.broker.ValidateAndConsume(ctx, cookie)
	if err != nil {
		return err
	}
	if tok == nil {
		h.log.Info("startup rejected", "cookie", cookie, "remote", c.IP())
		return h.sendResult(c, constants.McpStartup, constants.McpResultInvalidToken)
	}
	if tok.ClientToken != clientToken || tok.ServerToken != serverToken {
		h.log.Info("startup token mismatch", "account", tok.AccountName, "name", uniqueName)
		return h.sendResult(c, constants.McpStartup, constants.McpResultInvalidToken)
	}

	c.SetAccount(tok.AccountName)
	h.log.Info("realm logon", "account", tok.AccountName, "remote", c.IP())
	return h.sendResult(c, constants.McpStartup, constants.McpResultSuccess)
}

func (h *Handler) handleMotd(c *Client) error {
	resp := protocol.NewWriter().
		Byte(1).
		String(h.cfg.MOTD).
		Payload()
	return c.SendFrame(constants.McpMotd, resp)
}

func (h *Handler) handleCharList2(ctx context.Context, c *Client, payload []byte) error {
	requested, err := protocol.NewReader(payload).Uint32()
	if err != nil {
		return fmt.Errorf("reading character list request: %w", err)
	}

	var chars []*model.Character
	if account := c.Account(); account != "" {
		chars, err = h.chars.FindByAccount(ctx, account)
		if err != nil {
			return err
		}
	}

	limit := int(requested)
	if limit > h.cfg.MaxCharactersPerAccount {
		limit = h.cfg.MaxCharactersPerAccount
	}
	returned := len(chars)
	if returned > limit {
		returned = limit
	}

	expiry := uint32(time.Now().Add(charListExpiry).Unix())

	w := protocol.NewWriter().
		Uint16(uint16(requested)).
		Uint32(uint32(len(chars))).
		Uint16(uint16(returned))
	for _, ch := range chars[:returned] {
		w.Uint32(expiry)
		w.String(ch.Name)
		w.Bytes(ch.Statstring())
		w.Byte(0)
	}

	return c.SendFrame(constants.McpCharList2, w.Payload())
}

func (h *Handler) handleCharCreate(ctx context.Context, c *Client, payload []byte) error {
	r := protocol.NewReader(payload)
	classCode, err := r.Uint32()
	if err != nil {
		return fmt.Errorf("reading character class: %w", err)
	}
	flags, err := r.Uint16()
	if err != nil {
		return fmt.Errorf("reading character flags: %w", err)
	}
	name, err := r.String()
	if err != nil {
		return fmt.Errorf("reading character name: %w", err)
	}

	account := c.Account()
	if account == "" {
		return h.sendResult(c, constants.McpCharCreate, charCreateInvalidName)
	}

	class, ok := model.ClassFromCode(classCode)
	if !ok || !validCharacterName(name) {
		h.log.Info("character rejected", "account", account, "name", name, "class", classCode)
		return h.sendResult(c, constants.McpCharCreate, charCreateInvalidName)
	}

	available, err := h.chars.IsNameAvailable(ctx, name)
	if err != nil {
		return err
	}
	if !available {
		return h.sendResult(c, constants.McpCharCreate, charCreateNameExists)
	}

	ch := &model.Character{
		AccountName: account,
		Name:        name,
		Class:       class,
		Level:       1,
	}
	ch.SetFlags(flags)

	created, err := h.chars.Create(ctx, ch)
	if err != nil {
		return err
	}
	if !created {
		return h.sendResult(c, constants.McpCharCreate, charCreateNameExists)
	}

	// The client may enter a game straight after creation without an
	// explicit character logon.
	c.SetCharacter(name)

	h.log.Info("character created", "account", account, "name", name, "class", class.String())
	return h.sendResult(c, constants.McpCharCreate, constants.McpResultSuccess)
}

func (h *Handler) handleCharLogon(ctx context.Context, c *Client, payload []byte) error {
	name, err := protocol.NewReader(payload).String()
	if err != nil {
		return fmt.Errorf("reading character name: %w", err)
	}

	account := c.Account()
	if account == "" {
		return h.sendResult(c, constants.McpCharLogon, charLogonFailed)
	}

	ch, err := h.chars.FindByAccountAndName(ctx, account, name)
	if err != nil {
		return err
	}
	if ch == nil {
		return h.sendResult(c, constants.McpCharLogon, charLogonNotFound)
	}

	c.SetCharacter(ch.Name)
	if err := h.chars.UpdateLastPlayed(ctx, account, ch.Name); err != nil {
		h.log.Error("failed to record character logon", "account", account, "name", ch.Name, "err", err)
	}

	h.log.Info("character selected", "account", account, "name", ch.Name,
		"class", ch.Class.String(), "level", ch.Level)
	return h.sendResult(c, constants.McpCharLogon, constants.McpResultSuccess)
}

func (h *Handler) handleCharDelete(ctx context.Context, c *Client, payload []byte) error {
	r := protocol.NewReader(payload)
	if err := r.Skip(2); err != nil {
		return fmt.Errorf("reading character delete: %w", err)
	}
	name, err := r.String()
	if err != nil {
		return fmt.Errorf("reading character name: %w", err)
	}

	result := uint16(charDeleteFailed)
	if account := c.Account(); account != "" {
		deleted, err := h.chars.Delete(ctx, account, name)
		if err != nil {
			return err
		}
		if deleted {
			result = constants.McpResultSuccess
			h.log.Info("character deleted", "account", account, "name", name)
		}
	}

	resp := protocol.NewWriter().
		Uint16(result).
		String(name).
		Payload()
	return c.SendFrame(constants.McpCharDelete, resp)
}

func (h *Handler) handleCreateGame(ctx context.Context, c *Client, payload []byte) error {
	r := protocol.NewReader(payload)
	requestID, err := r.Uint16()
	if err != nil {
		return fmt.Errorf("reading game request: %w", err)
	}
	difficulty, err := r.Uint32()
	if err != nil {
		return fmt.Errorf("reading game difficulty: %w", err)
	}
	if err := r.Skip(2); err != nil { // unknown, player difference
		return fmt.Errorf("reading game request: %w", err)
	}
	maxPlayers, err := r.Byte()
	if err != nil {
		return fmt.Errorf("reading max players: %w", err)
	}
	name, err := r.String()
	if err != nil {
		return fmt.Errorf("reading game name: %w", err)
	}
	password, err := r.String()
	if err != nil {
		return fmt.Errorf("reading game password: %w", err)
	}
	description, err := r.String()
	if err != nil {
		return fmt.Errorf("reading game description: %w", err)
	}

	account, charName := c.Account(), c.Character()
	if account == "" || charName == "" {
		return h.sendGameCreateResult(c, requestID, 0, gameCreateServerDown)
	}

	if h.games.Exists(name) {
		return h.sendGameCreateResult(c, requestID, 0, gameCreateAlreadyExists)
	}

	ch, err := h.chars.FindByAccountAndName(ctx, account, charName)
	if err != nil {
		return err
	}
	if ch != nil && ch.Hardcore && ch.Dead {
		return h.sendGameCreateResult(c, requestID, 0, gameDeadHardcore)
	}

	game, ok := h.games.Create(name, password, description, difficulty, int(maxPlayers), account)
	if !ok {
		return h.sendGameCreateResult(c, requestID, 0, gameCreateAlreadyExists)
	}
	if ch != nil {
		h.games.AddCharacter(name, charName, byte(ch.Class), byte(ch.Level))
	}

	return h.sendGameCreateResult(c, requestID, game.Token, constants.McpResultSuccess)
}

func (h *Handler) sendGameCreateResult(c *Client, requestID uint16, token uint32, result uint32) error {
	resp := protocol.NewWriter().
		Uint16(requestID).
		Uint32(token).
		Uint16(0).
		Uint32(result).
		Payload()
	return c.SendFrame(constants.McpCreateGame, resp)
}

func (h *Handler) handleJoinGame(ctx context.Context, c *Client, payload []byte) error {
	r := protocol.NewReader(payload)
	requestID, err := r.Uint16()
	if err != nil {
		return fmt.Errorf("reading game request: %w", err)
	}
	name, err := r.String()
	if err != nil {
		return fmt.Errorf("reading game name: %w", err)
	}
	password, err := r.String()
	if err != nil {
		return fmt.Errorf("reading game password: %w", err)
	}

	account, charName := c.Account(), c.Character()
	if account == "" || charName == "" {
		return h.sendGameJoinResult(c, requestID, 0, 0, 0, gameJoinNotFound)
	}

	game := h.games.Find(name)
	if game == nil {
		return h.sendGameJoinResult(c, requestID, 0, 0, 0, gameJoinNotFound)
	}
	if game.Password != "" && game.Password != password {
		return h.sendGameJoinResult(c, requestID, 0, 0, 0, gameJoinWrongPassword)
	}
	if game.PlayerCount() >= game.MaxPlayers {
		return h.sendGameJoinResult(c, requestID, 0, 0, 0, gameJoinFull)
	}

	ch, err := h.chars.FindByAccountAndName(ctx, account, charName)
	if err != nil {
		return err
	}
	if ch != nil && ch.Hardcore && ch.Dead {
		return h.sendGameJoinResult(c, requestID, 0, 0, 0, gameDeadHardcore)
	}

	var class, level byte = 0, 1
	if ch != nil {
		class, level = byte(ch.Class), byte(ch.Level)
	}
	if !h.games.AddCharacter(name, charName, class, level) {
		return h.sendGameJoinResult(c, requestID, 0, 0, 0, gameJoinFull)
	}

	h.log.Info("character joined game", "account", account, "character", charName, "game", game.Name)
	return h.sendGameJoinResult(c, requestID, game.Token, ipToWire(h.cfg.GameServerHost), game.Hash, constants.McpResultSuccess)
}

func (h *Handler) sendGameJoinResult(c *Client, requestID uint16, token, addr, hash uint32, result uint32) error {
	resp := protocol.NewWriter().
		Uint16(requestID).
		Uint32(token).
		Uint16(0).
		Uint32(addr).
		Uint32(hash).
		Uint32(result).
		Payload()
	return c.SendFrame(constants.McpJoinGame, resp)
}

// handleGameList sends one frame per matching game followed by an empty-name
// terminator frame.
func (h *Handler) handleGameList(c *Client, payload []byte) error {
	r := protocol.NewReader(payload)
	requestID, err := r.Uint16()
	if err != nil {
		return fmt.Errorf("reading game list request: %w", err)
	}
	if _, err := r.Uint32(); err != nil { // unknown
		return fmt.Errorf("reading game list request: %w", err)
	}
	filter, err := r.String()
	if err != nil {
		return fmt.Errorf("reading game list filter: %w", err)
	}

	for _, game := range h.games.List(filter) {
		entry := protocol.NewWriter().
			Uint16(requestID).
			Uint32(game.ID).
			Byte(byte(game.PlayerCount())).
			Uint32(game.Difficulty & 0x0F).
			String(game.Name).
			String(game.Description).
			Payload()
		if err := c.SendFrame(constants.McpGameList, entry); err != nil {
			return err
		}
	}

	terminator := protocol.NewWriter().
		Uint16(requestID).
		Uint32(0).
		Byte(0).
		Uint32(0).
		String("").
		String("").
		Payload()
	return c.SendFrame(constants.McpGameList, terminator)
}

func (h *Handler) handleGameInfo(c *Client, payload []byte) error {
	r := protocol.NewReader(payload)
	requestID, err := r.Uint16()
	if err != nil {
		return fmt.Errorf("reading game info request: %w", err)
	}
	name, err := r.String()
	if err != nil {
		return fmt.Errorf("reading game name: %w", err)
	}

	game := h.games.Find(name)
	if game == nil {
		resp := protocol.NewWriter().
			Uint16(requestID).
			Uint32(0xFFFFFFFF).
			Uint32(0).
			Uint16(0).
			Byte(0).
			Byte(0).
			String("").
			Payload()
		return c.SendFrame(constants.McpGameInfo, resp)
	}

	characters := game.Characters()
	uptime := uint32(time.Since(game.CreatedAt).Seconds())

	w := protocol.NewWriter().
		Uint16(requestID).
		Uint32(game.Difficulty & 0x0F).
		Uint32(uptime).
		Uint16(0).
		Byte(byte(game.MaxPlayers)).
		Byte(byte(len(characters)))
	for _, ch := range characters {
		w.Byte(ch.Class).Byte(ch.Level)
	}
	w.String(game.Description)
	for _, ch := range characters {
		w.String(ch.Name)
	}

	return c.SendFrame(constants.McpGameInfo, w.Payload())
}

func (h *Handler) sendResult(c *Client, msgType byte, result uint32) error {
	return c.SendFrame(msgType, protocol.NewWriter().Uint32(result).Payload())
}

// validCharacterName applies the character naming rules: 2 to 15 characters,
// starting with a letter, limited to letters, digits, underscores and at
// most one inner hyphen.
func validCharacterName(name string) bool {
	if len(name) < 2 || len(name) > 15 {
		return false
	}
	first := name[0]
	if !(first >= 'a' && first <= 'z' || first >= 'A' && first <= 'Z') {
		return false
	}
	hyphen := false
	for i := 0; i < len(name); i++ {
		ch := name[i]
		switch {
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9', ch == '_':
		case ch == '-':
			if hyphen || i == 0 || i == len(name)-1 {
				return false
			}
			hyphen = true
		default:
			return false
		}
	}
	return true
}

// ipToWire packs a dotted-quad address so that, written little-endian, the
// octets appear in network order.
func ipToWire(host string) uint32 {
	ip := net.ParseIP(host)
	if ip == nil {
		return 0
	}
	v4 := ip.To4()
	if v4 == nil {
		return 0
	}
	return uint32(v4[0]) | uint32(v4[1])<<8 | uint32(v4[2])<<16 | uint32(v4[3])<<24
}
