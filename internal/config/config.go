package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ChatServer holds all configuration for the chat server.
type ChatServer struct {
	// Network
	BindAddress string `yaml:"bind_address"`
	Port        int    `yaml:"port"`

	// Identity
	ServerName     string `yaml:"server_name"`
	DefaultChannel string `yaml:"default_channel"`

	// Database
	Database DatabaseConfig `yaml:"database"`

	// Accounts
	AutoCreateAccounts bool `yaml:"auto_create_accounts"`

	// Idle policy (seconds)
	WriteIdleSeconds int `yaml:"write_idle_seconds"`
	ReadIdleSeconds  int `yaml:"read_idle_seconds"`

	// Realm hand-off
	Realm RealmEntry `yaml:"realm"`

	// Realm token lifetime (seconds)
	TokenTTLSeconds int `yaml:"token_ttl_seconds"`

	// File transfer
	FileRoot string `yaml:"file_root"`
}

// RealmEntry describes the realm server advertised to clients.
type RealmEntry struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
}

// RealmServer holds all configuration for the realm server.
type RealmServer struct {
	// Network
	BindAddress string `yaml:"bind_address"`
	Port        int    `yaml:"port"`

	// Identity
	RealmName string `yaml:"realm_name"`
	MOTD      string `yaml:"motd"`

	// Database
	Database DatabaseConfig `yaml:"database"`

	// Character limits
	MaxCharactersPerAccount int `yaml:"max_characters_per_account"`

	// Game server address handed to clients joining a game
	GameServerHost string `yaml:"game_server_host"`

	// Realm token lifetime (seconds)
	TokenTTLSeconds int `yaml:"token_ttl_seconds"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

// WriteIdle returns the keep-alive quiet period.
func (c ChatServer) WriteIdle() time.Duration {
	return time.Duration(c.WriteIdleSeconds) * time.Second
}

// ReadIdle returns the forced-disconnect quiet period.
func (c ChatServer) ReadIdle() time.Duration {
	return time.Duration(c.ReadIdleSeconds) * time.Second
}

// TokenTTL returns the realm token lifetime.
func (c ChatServer) TokenTTL() time.Duration {
	return time.Duration(c.TokenTTLSeconds) * time.Second
}

// TokenTTL returns the realm token lifetime.
func (c RealmServer) TokenTTL() time.Duration {
	return time.Duration(c.TokenTTLSeconds) * time.Second
}

func defaultDatabase() DatabaseConfig {
	return DatabaseConfig{
		Host:     "127.0.0.1",
		Port:     5432,
		User:     "bnetgo",
		Password: "bnetgo",
		DBName:   "bnetgo",
		SSLMode:  "disable",
	}
}

// DefaultChatServer returns ChatServer config with sensible defaults.
func DefaultChatServer() ChatServer {
	return ChatServer{
		BindAddress:        "0.0.0.0",
		Port:               6112,
		ServerName:         "bnetgo",
		DefaultChannel:     "Chat",
		AutoCreateAccounts: true,
		WriteIdleSeconds:   30,
		ReadIdleSeconds:    120,
		TokenTTLSeconds:    300,
		FileRoot:           "files",
		Database:           defaultDatabase(),
		Realm: RealmEntry{
			Name:        "Sanctuary",
			Description: "bnetgo realm",
			Host:        "127.0.0.1",
			Port:        6113,
		},
	}
}

// DefaultRealmServer returns RealmServer config with sensible defaults.
func DefaultRealmServer() RealmServer {
	return RealmServer{
		BindAddress:             "0.0.0.0",
		Port:                    6113,
		RealmName:               "Sanctuary",
		MOTD:                    "Welcome to the realm.",
		MaxCharactersPerAccount: 8,
		GameServerHost:          "127.0.0.1",
		TokenTTLSeconds:         300,
		Database:                defaultDatabase(),
	}
}

// LoadChatServer loads chat server config from a YAML file.
// If the file doesn't exist, returns defaults.
func LoadChatServer(path string) (ChatServer, error) {
	cfg := DefaultChatServer()
	if err := load(path, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadRealmServer loads realm server config from a YAML file.
// If the file doesn't exist, returns defaults.
func LoadRealmServer(path string) (RealmServer, error) {
	cfg := DefaultRealmServer()
	if err := load(path, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func load(path string, cfg any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}
	return nil
}
