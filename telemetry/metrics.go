// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	ChatEvents          *prometheus.CounterVec // by kind
	CommandsExecuted    *prometheus.CounterVec // by command
	CommandsSuppressed  *prometheus.CounterVec // by command, cooldown active
	ModerationActions   *prometheus.CounterVec // by outcome: warned, timedout
	MessagesSent        prometheus.Counter
	ActionFailures      *prometheus.CounterVec // by op
	TimedAnnouncements  prometheus.Counter
	ConfigReloads       *prometheus.CounterVec // by result

	// Histograms (seconds)
	DispatchDuration prometheus.Observer

	// Gauges
	ConditionCacheSize prometheus.Gauge
	HandlersLoaded     prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		ChatEvents = promauto.NewCounterVec(prometheus.CounterOpts{Name: "twitchbot_chat_events_total", Help: "Chat events received by kind"}, []string{"kind"})
		CommandsExecuted = promauto.NewCounterVec(prometheus.CounterOpts{Name: "twitchbot_commands_executed_total", Help: "Commands that ran and reported success"}, []string{"command"})
		CommandsSuppressed = promauto.NewCounterVec(prometheus.CounterOpts{Name: "twitchbot_commands_suppressed_total", Help: "Commands ignored because their cooldown was active"}, []string{"command"})
		ModerationActions = promauto.NewCounterVec(prometheus.CounterOpts{Name: "twitchbot_moderation_actions_total", Help: "Moderation outcomes for flagged messages"}, []string{"outcome"})
		MessagesSent = promauto.NewCounter(prometheus.CounterOpts{Name: "twitchbot_messages_sent_total", Help: "Chat messages sent by the bot"})
		ActionFailures = promauto.NewCounterVec(prometheus.CounterOpts{Name: "twitchbot_action_failures_total", Help: "Failed outbound chat or API actions"}, []string{"op"})
		TimedAnnouncements = promauto.NewCounter(prometheus.CounterOpts{Name: "twitchbot_timed_announcements_total", Help: "Timed announcements sent"})
		ConfigReloads = promauto.NewCounterVec(prometheus.CounterOpts{Name: "twitchbot_config_reloads_total", Help: "Command configuration reloads by result"}, []string{"result"})
		DispatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "twitchbot_dispatch_duration_seconds", Help: "Time spent dispatching one chat event", Buckets: prometheus.DefBuckets})
		ConditionCacheSize = promauto.NewGauge(prometheus.GaugeOpts{Name: "twitchbot_condition_cache_size", Help: "Compiled conditions held in the cache"})
		HandlersLoaded = promauto.NewGauge(prometheus.GaugeOpts{Name: "twitchbot_handlers_loaded", Help: "Command and moderation handlers in the active configuration"})
	})
}

// IncVec increments the labelled counter if metrics are initialized.
func IncVec(v *prometheus.CounterVec, label string) {
	if v != nil {
		v.WithLabelValues(label).Inc()
	}
}

// Inc increments c if metrics are initialized.
func Inc(c prometheus.Counter) {
	if c != nil {
		c.Inc()
	}
}

// SetGauge sets g to n if metrics are initialized.
func SetGauge(g prometheus.Gauge, n int) {
	if g != nil {
		g.Set(float64(n))
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// WithNewCorrelation embeds a freshly generated correlation id.
func WithNewCorrelation(ctx context.Context) context.Context {
	return WithCorrelation(ctx, uuid.New().String())
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
