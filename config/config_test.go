package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.CommandsFile != "commands.yaml" {
		t.Errorf("CommandsFile = %q", cfg.CommandsFile)
	}
	if cfg.QuotesBackend != QuotesBolt || cfg.QuotesPath != "quotes.db" {
		t.Errorf("quotes = %s %s", cfg.QuotesBackend, cfg.QuotesPath)
	}
	if cfg.AllowDuration != 5*time.Minute || cfg.ActiveInterval != 30*time.Minute || cfg.ChatterRefresh != time.Minute {
		t.Errorf("durations = %v %v %v", cfg.AllowDuration, cfg.ActiveInterval, cfg.ChatterRefresh)
	}
	if cfg.HTTPAddr != ":8080" || !cfg.RateLimitEnabled || cfg.RateLimitRequests != 10 {
		t.Errorf("http = %s %v %d", cfg.HTTPAddr, cfg.RateLimitEnabled, cfg.RateLimitRequests)
	}
}

func TestLoadNormalizesNames(t *testing.T) {
	t.Setenv("TWITCH_CHANNEL", " #SomeStreamer ")
	t.Setenv("TWITCH_BOT_USERNAME", "TheBot")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example,https://b.example")
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.TwitchChannel != "somestreamer" || cfg.TwitchBotUsername != "thebot" {
		t.Errorf("names = %q %q", cfg.TwitchChannel, cfg.TwitchBotUsername)
	}
	if len(cfg.CORSAllowedOrigins) != 2 {
		t.Errorf("origins = %v", cfg.CORSAllowedOrigins)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"unknown quotes backend", map[string]string{"QUOTES_BACKEND": "csv"}, "QUOTES_BACKEND"},
		{"postgres quotes without dsn", map[string]string{"QUOTES_BACKEND": "postgres", "DB_DSN": ""}, "DB_DSN"},
		{"bad duration", map[string]string{"ALLOW_DURATION": "soon"}, "ALLOW_DURATION"},
		{"zero duration", map[string]string{"WARN_DURATION": "0s"}, "WARN_DURATION"},
		{"zero rate limit", map[string]string{"RATE_LIMIT_REQUESTS_PER_IP": "0"}, "RATE_LIMIT_REQUESTS_PER_IP"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want mention of %s", err, tt.wantErr)
			}
		})
	}
}

func TestValidateChatReady(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"static token", Config{TwitchChannel: "chan", TwitchBotUsername: "bot", TwitchOAuthToken: "oauth:token"}, false},
		{"linked token", Config{TwitchChannel: "chan", TwitchBotUsername: "bot", DBDsn: "postgres://x", TwitchClientID: "cid"}, false},
		{"missing channel", Config{TwitchBotUsername: "bot", TwitchOAuthToken: "oauth:token"}, true},
		{"missing bot", Config{TwitchChannel: "chan", TwitchOAuthToken: "oauth:token"}, true},
		{"no token source", Config{TwitchChannel: "chan", TwitchBotUsername: "bot", DBDsn: "postgres://x"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.ValidateChatReady()
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateChatReady() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCORSIsPermissive(t *testing.T) {
	tests := []struct {
		env, override string
		want          bool
	}{
		{"", "", true},
		{"dev", "", true},
		{"production", "", false},
		{"production", "1", true},
		{"dev", "false", false},
	}
	for _, tt := range tests {
		c := Config{Env: tt.env, CORSPermissive: tt.override}
		if got := c.CORSIsPermissive(); got != tt.want {
			t.Errorf("env=%q override=%q: got %v, want %v", tt.env, tt.override, got, tt.want)
		}
	}
}

func TestHelixReady(t *testing.T) {
	if (&Config{TwitchClientID: "cid"}).HelixReady() {
		t.Error("ready without secret")
	}
	if !(&Config{TwitchClientID: "cid", TwitchClientSecret: "s"}).HelixReady() {
		t.Error("not ready with id and secret")
	}
}
