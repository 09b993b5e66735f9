// Command twitchbot is a configurable Twitch channel bot.
// It:
//   - Loads configuration and initializes structured logging.
//   - Optionally connects to Postgres (linked OAuth tokens, quotes) and runs
//     migrations, and to Redis (allow and warning lists).
//   - Loads the command file and starts the timed announcements.
//   - Joins chat, polls for new followers, and keeps user tokens refreshed.
//   - Exposes an HTTP server with /healthz, /readyz, /status, /metrics, the
//     admin reload and test-event endpoints, and the OAuth linking flow.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/oauth2"

	"github.com/onnwee/twitchbot/bot"
	"github.com/onnwee/twitchbot/chat"
	"github.com/onnwee/twitchbot/commands"
	"github.com/onnwee/twitchbot/condition"
	"github.com/onnwee/twitchbot/config"
	"github.com/onnwee/twitchbot/db"
	"github.com/onnwee/twitchbot/oauth"
	"github.com/onnwee/twitchbot/quotes"
	"github.com/onnwee/twitchbot/server"
	"github.com/onnwee/twitchbot/telemetry"
	"github.com/onnwee/twitchbot/timedlist"
	"github.com/onnwee/twitchbot/twitchapi"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	setupLogging(cfg.LogLevel, cfg.LogFormat)

	telemetry.Init()
	shutdown, err := telemetry.InitTracing("twitchbot", version)
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("twitchbot exited with error", slog.Any("err", err))
		stop()
		shutdown()
		os.Exit(1)
	}
	slog.Info("shutdown complete")
}

// setupLogging configures the default logger. Defaults: level=info, format=text.
func setupLogging(level, format string) {
	lvl := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
	default:
		slog.Warn("unknown LOG_LEVEL, using info", slog.String("value", level))
	}
	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", strings.ToLower(format)))
}

func run(ctx context.Context, cfg *config.Config) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var database *sql.DB
	if cfg.DBDsn != "" {
		var err error
		if database, err = db.Connect(ctx, cfg.DBDsn); err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer func() {
			if err := database.Close(); err != nil {
				slog.Error("failed to close database", slog.Any("err", err))
			}
		}()
		slog.Info("running database migrations", slog.String("component", "db_migrate"))
		if err := db.Migrate(database); err != nil {
			return fmt.Errorf("migrate db: %w", err)
		}
	}

	var tokenStore oauth.Store
	if database != nil {
		ts, err := db.NewTokenStore(database, cfg.EncryptionKey)
		if err != nil {
			return err
		}
		tokenStore = ts
	}

	quoteStore, err := openQuotes(cfg, database)
	if err != nil {
		return err
	}
	defer func() {
		if err := quoteStore.Close(); err != nil {
			slog.Error("failed to close quote store", slog.Any("err", err))
		}
	}()

	allowed, warned, err := moderationSets(ctx, cfg)
	if err != nil {
		return err
	}

	// Twitch identities
	botTS, botAcct := userToken(ctx, cfg, "twitch_bot", cfg.TwitchOAuthToken, cfg.TwitchRefreshToken, twitchapi.BotScopes, tokenStore)
	chanTS, chanAcct := userToken(ctx, cfg, "twitch_channel", cfg.TwitchChannelToken, cfg.TwitchChannelRefreshToken, twitchapi.ChannelScopes, tokenStore)
	accounts := map[string]server.Account{}
	for name, acct := range map[string]*server.Account{"bot": botAcct, "channel": chanAcct} {
		if acct != nil {
			accounts[name] = *acct
			oauth.StartRefresher(ctx, acct.Source, cfg.TokenRefreshInterval, 15*time.Minute)
		}
	}

	var appHelix, botHelix, chanHelix *twitchapi.HelixClient
	if cfg.HelixReady() {
		appHelix = newHelix(ctx, cfg.TwitchClientID, twitchapi.AppTokenSource(ctx, cfg.TwitchClientID, cfg.TwitchClientSecret, ""))
	}
	if cfg.TwitchClientID != "" {
		if botTS != nil {
			botHelix = newHelix(ctx, cfg.TwitchClientID, botTS)
		}
		if chanTS != nil {
			chanHelix = newHelix(ctx, cfg.TwitchClientID, chanTS)
		}
	}

	var broadcasterID, botID string
	if lookup := firstHelix(appHelix, botHelix, chanHelix); lookup != nil && cfg.TwitchChannel != "" {
		lctx, cancel := context.WithTimeout(ctx, 15*time.Second)
		broadcasterID, botID, err = chat.LookupIDs(lctx, lookup, cfg.TwitchChannel, cfg.TwitchBotUsername)
		cancel()
		if err != nil {
			slog.Warn("twitch id lookup failed; helix features disabled", slog.Any("err", err))
			botHelix, chanHelix = nil, nil
		}
	}

	client := chat.New(chat.Options{
		Channel:       cfg.TwitchChannel,
		BotLogin:      cfg.TwitchBotUsername,
		Token:         botTS,
		Helix:         botHelix,
		BroadcasterID: broadcasterID,
		BotID:         botID,
	})

	engine := condition.NewEngine()
	opts := bot.Options{
		Channel:        cfg.TwitchChannel,
		BotLogin:       cfg.TwitchBotUsername,
		Engine:         engine,
		Actions:        client,
		Quotes:         quoteStore,
		Allowed:        allowed,
		Warned:         warned,
		ActiveInterval: cfg.ActiveInterval,
		ChatterRefresh: cfg.ChatterRefresh,
	}
	if botHelix != nil {
		opts.Chatters = &chat.Chatters{Helix: botHelix, Mods: chanHelix, BroadcasterID: broadcasterID, ModeratorID: botID}
	}
	if chanHelix != nil {
		opts.Editor = &chat.Editor{Helix: chanHelix, BroadcasterID: broadcasterID}
	}
	b := bot.New(opts)

	reload := func(ctx context.Context) error {
		c, err := commands.Load(cfg.CommandsFile, engine)
		if err != nil {
			return err
		}
		b.Reload(c)
		st := b.Status()
		telemetry.LoggerWithCorr(ctx).Info("commands loaded",
			slog.String("file", cfg.CommandsFile),
			slog.Int("handlers", st.Handlers),
			slog.Int("timed_messages", st.TimedMessages))
		return nil
	}
	if err := reload(ctx); err != nil {
		return fmt.Errorf("load commands: %w", err)
	}
	b.Start(ctx)
	defer b.Stop()

	var wg sync.WaitGroup
	if err := cfg.ValidateChatReady(); err != nil || botTS == nil {
		slog.Warn("chat disabled", slog.Any("reason", errors.Join(err, errIfNil(botTS))))
	} else {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := client.Run(ctx, b); err != nil {
				slog.Error("chat client exited", slog.Any("err", err))
			}
		}()
	}

	if chanHelix != nil && broadcasterID != "" {
		f := &chat.Followers{Helix: chanHelix, BroadcasterID: broadcasterID, Interval: cfg.FollowerPollInterval}
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.Run(ctx, b.HandleFollow)
		}()
	} else {
		slog.Info("follower poller disabled (needs TWITCH_CLIENT_ID and a channel token)")
	}

	srvErr := make(chan error, 1)
	go func() {
		srvErr <- server.Start(ctx, server.Options{
			Bot:                b,
			Reload:             reload,
			DB:                 database,
			Accounts:           accounts,
			AdminUsername:      cfg.AdminUsername,
			AdminPassword:      cfg.AdminPassword,
			AdminToken:         cfg.AdminToken,
			RateLimitEnabled:   cfg.RateLimitEnabled,
			RateLimitRequests:  cfg.RateLimitRequests,
			RateLimitWindow:    cfg.RateLimitWindow,
			CORSPermissive:     cfg.CORSIsPermissive(),
			CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		}, cfg.HTTPAddr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		slog.Info("shutting down")
		runErr = <-srvErr
	case runErr = <-srvErr:
	}
	cancel()
	wg.Wait()
	return runErr
}

func openQuotes(cfg *config.Config, database *sql.DB) (quotes.Store, error) {
	if cfg.QuotesBackend == config.QuotesPostgres {
		if database == nil {
			return nil, errors.New("postgres quotes need DB_DSN")
		}
		return quotes.NewPostgresStore(database), nil
	}
	s, err := quotes.OpenBolt(cfg.QuotesPath)
	if err != nil {
		return nil, fmt.Errorf("open quotes: %w", err)
	}
	return s, nil
}

// moderationSets returns the allow and warning lists, in Redis when
// configured so they survive restarts.
func moderationSets(ctx context.Context, cfg *config.Config) (allowed, warned timedlist.Set, err error) {
	if cfg.RedisAddr == "" {
		return timedlist.Local(timedlist.New[string](cfg.AllowDuration)),
			timedlist.Local(timedlist.New[string](cfg.WarnDuration)), nil
	}
	client, err := timedlist.DialRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, 5)
	if err != nil {
		return nil, nil, fmt.Errorf("redis: %w", err)
	}
	prefix := "twitchbot:" + cfg.TwitchChannel + ":"
	return timedlist.NewRedisSet(client, prefix+"allowed", cfg.AllowDuration),
		timedlist.NewRedisSet(client, prefix+"warned", cfg.WarnDuration), nil
}

// userToken resolves a user token source for one identity. With a token
// store the token is linked through OAuth and refreshed in the background;
// an environment token seeds the store when it is empty. Without a store the
// environment token is used directly. Both results are nil when no token can
// be obtained.
func userToken(ctx context.Context, cfg *config.Config, provider, access, refresh string, scopes []string, store oauth.Store) (oauth2.TokenSource, *server.Account) {
	access = strings.TrimPrefix(access, "oauth:")
	ocfg := twitchapi.UserConfig(cfg.TwitchClientID, cfg.TwitchClientSecret, cfg.TwitchRedirectURI, scopes)

	if store != nil && cfg.TwitchClientID != "" {
		src := oauth.NewSource(provider, ocfg, store)
		if access != "" {
			existing, _, err := store.LoadToken(ctx, provider)
			if err != nil {
				slog.Warn("token load failed", slog.String("provider", provider), slog.Any("err", err))
			} else if existing == nil {
				if err := src.Set(ctx, &oauth2.Token{AccessToken: access, RefreshToken: refresh, TokenType: "bearer"}, ""); err != nil {
					slog.Warn("token seed failed", slog.String("provider", provider), slog.Any("err", err))
				}
			}
		}
		return src, &server.Account{Config: ocfg, Source: src}
	}

	if access == "" {
		return nil, nil
	}
	tok := &oauth2.Token{AccessToken: access, RefreshToken: refresh, TokenType: "bearer"}
	if refresh != "" && cfg.HelixReady() {
		return ocfg.TokenSource(ctx, tok), nil
	}
	return oauth2.StaticTokenSource(tok), nil
}

func newHelix(ctx context.Context, clientID string, ts oauth2.TokenSource) *twitchapi.HelixClient {
	return &twitchapi.HelixClient{ClientID: clientID, HTTPClient: twitchapi.NewHTTPClient(ctx, ts)}
}

func firstHelix(clients ...*twitchapi.HelixClient) *twitchapi.HelixClient {
	for _, c := range clients {
		if c != nil {
			return c
		}
	}
	return nil
}

func errIfNil(ts oauth2.TokenSource) error {
	if ts == nil {
		return errors.New("no bot token")
	}
	return nil
}
