// Package server exposes the bot's HTTP surface: liveness and readiness,
// Prometheus metrics, a status summary, the admin endpoints that reload the
// command configuration or synthesize channel events, and the OAuth flow that
// links the bot and broadcaster accounts. Every request carries a correlation
// id; admin routes sit behind authentication and a per-IP rate limit.
package server

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/onnwee/twitchbot/bot"
	"github.com/onnwee/twitchbot/telemetry"
)

// Bot is the part of *bot.Bot the HTTP surface drives.
type Bot interface {
	Status() bot.Status
	HandleSubscriber(ctx context.Context, e bot.SubscriberEvent)
	HandleGift(ctx context.Context, e bot.GiftEvent)
	HandleFollow(ctx context.Context, e bot.FollowEvent)
	HandleRaid(ctx context.Context, e bot.RaidEvent)
}

// Options wires the server to the running bot.
type Options struct {
	Bot Bot
	// Reload re-reads the command configuration. A failure leaves the running
	// configuration in place.
	Reload func(ctx context.Context) error
	// DB is optional; when set, health checks ping it.
	DB *sql.DB
	// Accounts are the OAuth-linkable accounts by name ("bot", "channel").
	Accounts map[string]Account

	AdminUsername string
	AdminPassword string
	AdminToken    string

	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration

	CORSPermissive     bool
	CORSAllowedOrigins []string
}

// NewMux returns the HTTP handler with all routes. ctx bounds the rate
// limiter's cleanup goroutine.
func NewMux(ctx context.Context, opts Options) http.Handler {
	authCfg := newAuthConfig(opts.AdminUsername, opts.AdminPassword, opts.AdminToken)
	limiter := newIPRateLimiter(ctx, &rateLimiterConfig{
		enabled:       opts.RateLimitEnabled,
		requestsPerIP: opts.RateLimitRequests,
		window:        opts.RateLimitWindow,
	})
	corsCfg := newCORSConfig(opts.CORSPermissive, opts.CORSAllowedOrigins)

	h := NewHandlers(opts)
	mux := http.NewServeMux()

	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", h.HandleHealthz)
	mux.HandleFunc("GET /readyz", h.HandleReadyz)
	mux.HandleFunc("GET /status", h.HandleStatus)

	mux.HandleFunc("GET /auth/twitch/{account}/start", h.HandleTwitchOAuthStart)
	mux.HandleFunc("GET /auth/twitch/callback", h.HandleTwitchOAuthCallback)

	mux.HandleFunc("POST /admin/reload", h.HandleAdminReload)
	mux.HandleFunc("POST /admin/test/{event}", h.HandleAdminTestEvent)

	admin := adminAuth(rateLimitMiddleware(mux, limiter), authCfg)
	routed := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/admin/") {
			admin.ServeHTTP(w, r)
			return
		}
		mux.ServeHTTP(w, r)
	})

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		corr := r.Header.Get("X-Correlation-ID")
		if corr == "" {
			corr = uuid.New().String()
		}
		ctx := telemetry.WithCorrelation(r.Context(), corr)
		w.Header().Set("X-Correlation-ID", corr)

		ctx, span := telemetry.StartSpan(ctx, "http-server", r.Method+" "+r.URL.Path,
			telemetry.HTTPMethodAttr(r.Method),
			telemetry.HTTPRouteAttr(r.URL.Path),
		)
		defer span.End()

		telemetry.LoggerWithCorr(ctx).Debug("request start", slog.String("method", r.Method), slog.String("path", r.URL.Path), slog.String("component", "http"))

		rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		routed.ServeHTTP(rec, r.WithContext(ctx))
		telemetry.SetSpanHTTPStatus(span, rec.statusCode)
	})
	return withCORSConfig(handler, corsCfg)
}

// statusRecorder wraps ResponseWriter to capture status code
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

// Start runs the HTTP server and shuts down gracefully on context cancellation.
func Start(ctx context.Context, opts Options, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      NewMux(ctx, opts),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		// WithoutCancel keeps context values while letting shutdown finish
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("http server shutdown error", slog.Any("err", err))
		}
	}()

	slog.Info("http server listening", slog.String("addr", addr), slog.String("component", "http"))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("http server error", slog.Any("err", err))
		return err
	}
	return nil
}
