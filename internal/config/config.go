// Package config loads and exposes application configuration (TOML).
package config

import (
	"os"

	"github.com/BurntSushi/toml"
)

// Default configuration values used when a field is missing in TOML.
const (
	DefaultConfigPath   = "config.toml"
	DefaultHTTPAddr     = ":8080"
	DefaultPGHost       = "127.0.0.1"
	DefaultPGPort       = 5432
	DefaultPGUser       = "postgres"
	DefaultPGDatabase   = "crewdeck"
	DefaultPGSSLMode    = "disable"
	DefaultSessionTTL   = "168h"
	DefaultFlowTTL      = "10m"
	DefaultInvitePurge  = "@hourly"
	DefaultDiscordAPI   = "https://discord.com/api"
	DefaultDiscordAuth  = "https://discord.com/oauth2/authorize"
	DefaultDiscordToken = "https://discord.com/api/oauth2/token"
)

// Config is the root application configuration loaded from TOML.
type Config struct {
	Log       LogConfig       `toml:"log"`
	Server    ServerConfig    `toml:"server"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Discord   DiscordConfig   `toml:"discord"`
	Session   SessionConfig   `toml:"session"`
	Workspace WorkspaceConfig `toml:"workspace"`
}

// LogConfig holds logging level and format (e.g. level=info, format=text).
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// ServerConfig holds the HTTP server listen address and the public base URL
// used to build redirect targets.
type ServerConfig struct {
	Addr    string `toml:"addr"`
	BaseURL string `toml:"base_url"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	SSLMode  string `toml:"sslmode"`
}

// DiscordConfig holds the OAuth application credentials, the bot token used
// for join notifications, and overridable endpoint URLs for tests.
type DiscordConfig struct {
	ClientID        string `toml:"client_id"`
	ClientSecret    string `toml:"client_secret"`
	RedirectURL     string `toml:"redirect_url"`
	BotToken        string `toml:"bot_token"`
	NotifyChannelID string `toml:"notify_channel_id"`
	AuthURL         string `toml:"auth_url"`
	TokenURL        string `toml:"token_url"`
	APIBaseURL      string `toml:"api_base_url"`
}

// SessionConfig holds the cookie signing secret and cookie lifetimes.
// TTL values are Go durations (e.g. 168h, 10m).
type SessionConfig struct {
	Secret        string `toml:"secret"`
	SessionTTL    string `toml:"session_ttl"`
	FlowTTL       string `toml:"flow_ttl"`
	SecureCookies bool   `toml:"secure_cookies"`
}

// WorkspaceConfig holds workspace policy flags and the invite purge schedule
// (cron expression).
type WorkspaceConfig struct {
	AllowGlobalAdminDelete bool   `toml:"allow_global_admin_delete"`
	InvitePurgeSchedule    string `toml:"invite_purge_schedule"`
}

// Load reads and parses the TOML config file at path and applies default
// values for missing fields. A missing file is not an error; defaults apply.
func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr:    DefaultHTTPAddr,
			BaseURL: "http://localhost:8080",
		},
		Postgres: PostgresConfig{
			Host:     DefaultPGHost,
			Port:     DefaultPGPort,
			User:     DefaultPGUser,
			Database: DefaultPGDatabase,
			SSLMode:  DefaultPGSSLMode,
		},
		Discord: DiscordConfig{
			AuthURL:    DefaultDiscordAuth,
			TokenURL:   DefaultDiscordToken,
			APIBaseURL: DefaultDiscordAPI,
		},
		Session: SessionConfig{
			SessionTTL: DefaultSessionTTL,
			FlowTTL:    DefaultFlowTTL,
		},
		Workspace: WorkspaceConfig{
			InvitePurgeSchedule: DefaultInvitePurge,
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}
