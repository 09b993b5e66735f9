// Package config loads environment variables into the typed Config used across
// the service. Defaults let the bot run locally with a bbolt quote file and no
// database; use ValidateChatReady before connecting to chat.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Quote storage backends.
const (
	QuotesBolt     = "bolt"
	QuotesPostgres = "postgres"
)

type Config struct {
	// Twitch
	TwitchChannel     string `env:"TWITCH_CHANNEL"`
	TwitchBotUsername string `env:"TWITCH_BOT_USERNAME"`
	// Static bot token; when empty the token linked through /auth/twitch/bot is used.
	TwitchOAuthToken   string `env:"TWITCH_OAUTH_TOKEN"`
	TwitchRefreshToken string `env:"TWITCH_REFRESH_TOKEN"`
	// Broadcaster token for category changes, follower polling and the moderator list.
	TwitchChannelToken        string `env:"TWITCH_CHANNEL_OAUTH_TOKEN"`
	TwitchChannelRefreshToken string `env:"TWITCH_CHANNEL_REFRESH_TOKEN"`
	TwitchClientID            string `env:"TWITCH_CLIENT_ID"`
	TwitchClientSecret        string `env:"TWITCH_CLIENT_SECRET"`
	TwitchRedirectURI         string `env:"TWITCH_REDIRECT_URI"`

	// Commands
	CommandsFile string `env:"COMMANDS_FILE" envDefault:"commands.yaml"`

	// Quotes
	QuotesBackend string `env:"QUOTES_BACKEND" envDefault:"bolt"`
	QuotesPath    string `env:"QUOTES_PATH" envDefault:"quotes.db"`

	// Database
	DBDsn         string `env:"DB_DSN"`
	EncryptionKey string `env:"ENCRYPTION_KEY"`

	// Redis; empty address keeps the moderation sets in memory
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// Bot timings
	AllowDuration        time.Duration `env:"ALLOW_DURATION" envDefault:"5m"`
	WarnDuration         time.Duration `env:"WARN_DURATION" envDefault:"5m"`
	ActiveInterval       time.Duration `env:"ACTIVE_INTERVAL" envDefault:"30m"`
	ChatterRefresh       time.Duration `env:"CHATTER_REFRESH" envDefault:"1m"`
	FollowerPollInterval time.Duration `env:"FOLLOWER_POLL_INTERVAL" envDefault:"1m"`
	TokenRefreshInterval time.Duration `env:"TOKEN_REFRESH_INTERVAL" envDefault:"5m"`

	// HTTP
	HTTPAddr           string        `env:"HTTP_ADDR" envDefault:":8080"`
	AdminUsername      string        `env:"ADMIN_USERNAME"`
	AdminPassword      string        `env:"ADMIN_PASSWORD"`
	AdminToken         string        `env:"ADMIN_TOKEN"`
	RateLimitEnabled   bool          `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	RateLimitRequests  int           `env:"RATE_LIMIT_REQUESTS_PER_IP" envDefault:"10"`
	RateLimitWindow    time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1m"`
	Env                string        `env:"ENV"`
	CORSPermissive     string        `env:"CORS_PERMISSIVE"`
	CORSAllowedOrigins []string      `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`

	// Logging and tracing
	LogLevel     string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat    string `env:"LOG_FORMAT" envDefault:"text"`
	OtelEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

// Load reads an optional .env file, then the environment, and validates the
// result. Missing Twitch credentials are not an error here.
func Load() (*Config, error) {
	if err := godotenv.Load(); err == nil {
		slog.Debug("loaded environment variables from .env file")
	}
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config from environment: %w", err)
	}
	cfg.TwitchChannel = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(cfg.TwitchChannel)), "#")
	cfg.TwitchBotUsername = strings.ToLower(strings.TrimSpace(cfg.TwitchBotUsername))
	cfg.QuotesBackend = strings.ToLower(cfg.QuotesBackend)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges and cross-field constraints.
func (c *Config) Validate() error {
	switch c.QuotesBackend {
	case QuotesBolt:
		if c.QuotesPath == "" {
			return errors.New("QUOTES_PATH is required for the bolt quote store")
		}
	case QuotesPostgres:
		if c.DBDsn == "" {
			return errors.New("QUOTES_BACKEND=postgres requires DB_DSN")
		}
	default:
		return fmt.Errorf("invalid QUOTES_BACKEND %q (bolt or postgres)", c.QuotesBackend)
	}
	durations := map[string]time.Duration{
		"ALLOW_DURATION":         c.AllowDuration,
		"WARN_DURATION":          c.WarnDuration,
		"ACTIVE_INTERVAL":        c.ActiveInterval,
		"CHATTER_REFRESH":        c.ChatterRefresh,
		"FOLLOWER_POLL_INTERVAL": c.FollowerPollInterval,
		"TOKEN_REFRESH_INTERVAL": c.TokenRefreshInterval,
		"RATE_LIMIT_WINDOW":      c.RateLimitWindow,
	}
	for name, d := range durations {
		if d <= 0 {
			return fmt.Errorf("invalid %s: %s (must be positive)", name, d)
		}
	}
	if c.RateLimitRequests < 1 {
		return fmt.Errorf("invalid RATE_LIMIT_REQUESTS_PER_IP: %d", c.RateLimitRequests)
	}
	return nil
}

// ValidateChatReady checks the fields required to join chat: the channel, the
// bot account, and a bot token either from the environment or from the token
// store (which needs the database and app credentials to refresh it).
func (c *Config) ValidateChatReady() error {
	if c.TwitchChannel == "" || c.TwitchBotUsername == "" {
		return errors.New("missing twitch env: require TWITCH_CHANNEL, TWITCH_BOT_USERNAME")
	}
	if c.TwitchOAuthToken == "" && (c.DBDsn == "" || c.TwitchClientID == "") {
		return errors.New("missing bot token: set TWITCH_OAUTH_TOKEN, or DB_DSN and TWITCH_CLIENT_ID to use a linked token")
	}
	return nil
}

// HelixReady reports whether app credentials for Helix are configured.
func (c *Config) HelixReady() bool {
	return c.TwitchClientID != "" && c.TwitchClientSecret != ""
}

// CORSIsPermissive reports whether every origin is allowed: by default in
// development, or when CORS_PERMISSIVE says so.
func (c *Config) CORSIsPermissive() bool {
	if c.CORSPermissive != "" {
		return c.CORSPermissive == "1" || strings.EqualFold(c.CORSPermissive, "true")
	}
	mode := strings.ToLower(c.Env)
	return mode == "" || mode == "dev" || mode == "development"
}
