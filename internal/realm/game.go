package realm

import (
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"
)

const defaultMaxPlayers = 8

// GameCharacter is a character present in a running game.
type GameCharacter struct {
	Name  string
	Class byte
	Level byte
}

// Game is one running game. Games are transient; nothing here is persisted.
type Game struct {
	ID             uint32
	Name           string
	Password       string
	Description    string
	Difficulty     uint32
	MaxPlayers     int
	Token          uint32
	Hash           uint32
	CreatorAccount string
	CreatedAt      time.Time

	mu         sync.Mutex
	characters []GameCharacter
}

// Characters returns a snapshot of the game's current characters.
func (g *Game) Characters() []GameCharacter {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]GameCharacter, len(g.characters))
	copy(out, g.characters)
	return out
}

// PlayerCount returns the number of characters currently in the game.
func (g *Game) PlayerCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.characters)
}

// GameRegistry tracks running games by name, case-insensitively.
type GameRegistry struct {
	mu     sync.Mutex
	games  map[string]*Game
	nextID uint32
}

// NewGameRegistry creates an empty registry.
func NewGameRegistry() *GameRegistry {
	return &GameRegistry{
		games:  make(map[string]*Game),
		nextID: 1,
	}
}

// Create registers a new game. Returns nil, false when a game with the name
// already exists.
func (r *GameRegistry) Create(name, password, description string, difficulty uint32, maxPlayers int, creatorAccount string) (*Game, bool) {
	if maxPlayers <= 0 {
		maxPlayers = defaultMaxPlayers
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := strings.ToLower(name)
	if _, ok := r.games[key]; ok {
		return nil, false
	}

	g := &Game{
		ID:             r.nextID,
		Name:           name,
		Password:       password,
		Description:    description,
		Difficulty:     difficulty,
		MaxPlayers:     maxPlayers,
		Token:          rand.Uint32(),
		Hash:           rand.Uint32(),
		CreatorAccount: creatorAccount,
		CreatedAt:      time.Now(),
	}
	r.nextID++
	r.games[key] = g

	slog.Info("game created", "name", name, "creator", creatorAccount,
		"difficulty", difficulty, "maxPlayers", maxPlayers)
	return g, true
}

// Find returns the game with the name, or nil.
func (r *GameRegistry) Find(name string) *Game {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.games[strings.ToLower(name)]
}

// Exists reports whether a game with the name is running.
func (r *GameRegistry) Exists(name string) bool {
	return r.Find(name) != nil
}

// List returns games whose name contains the filter, all games when the
// filter is empty.
func (r *GameRegistry) List(filter string) []*Game {
	r.mu.Lock()
	defer r.mu.Unlock()

	filter = strings.ToLower(filter)
	var out []*Game
	for _, g := range r.games {
		if filter == "" || strings.Contains(strings.ToLower(g.Name), filter) {
			out = append(out, g)
		}
	}
	return out
}

// AddCharacter places a character into the game. Returns false when the game
// does not exist or is full.
func (r *GameRegistry) AddCharacter(gameName, charName string, class, level byte) bool {
	g := r.Find(gameName)
	if g == nil {
		return false
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.characters) >= g.MaxPlayers {
		return false
	}
	g.characters = append(g.characters, GameCharacter{Name: charName, Class: class, Level: level})
	return true
}

// RemoveCharacter takes a character out of the game. A game with no
// characters left is dropped from the registry.
func (r *GameRegistry) RemoveCharacter(gameName, charName string) {
	g := r.Find(gameName)
	if g == nil {
		return
	}

	g.mu.Lock()
	for i, c := range g.characters {
		if strings.EqualFold(c.Name, charName) {
			g.characters = append(g.characters[:i], g.characters[i+1:]...)
			break
		}
	}
	empty := len(g.characters) == 0
	g.mu.Unlock()

	if empty {
		r.mu.Lock()
		delete(r.games, strings.ToLower(gameName))
		r.mu.Unlock()
		slog.Info("game removed", "name", gameName)
	}
}
