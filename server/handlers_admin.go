package server

import (
	"context"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel/trace"

	"github.com/onnwee/twitchbot/bot"
	"github.com/onnwee/twitchbot/telemetry"
)

// testUser is the user name synthetic events are attributed to.
const testUser = "Tester"

// HandleAdminReload re-reads the command configuration. A failed load keeps
// the running configuration and reports the error.
func (h *Handlers) HandleAdminReload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "admin"))
	if h.opts.Reload == nil {
		http.Error(w, "reload not configured", http.StatusServiceUnavailable)
		return
	}
	span := trace.SpanFromContext(ctx)
	if err := h.opts.Reload(ctx); err != nil {
		telemetry.RecordError(span, err)
		telemetry.IncVec(telemetry.ConfigReloads, "failed")
		logger.Warn("config reload failed", slog.Any("err", err))
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "error": err.Error()})
		return
	}
	telemetry.SetSpanSuccess(span)
	telemetry.IncVec(telemetry.ConfigReloads, "ok")
	logger.Info("config reloaded")

	resp := map[string]any{"status": "ok"}
	if h.opts.Bot != nil {
		resp["config"] = h.opts.Bot.Status()
	}
	writeJSON(w, http.StatusOK, resp)
}

// testEvents synthesize the channel events the bot reacts to.
var testEvents = map[string]func(ctx context.Context, b Bot){
	"raid": func(ctx context.Context, b Bot) {
		b.HandleRaid(ctx, bot.RaidEvent{User: testUser, Viewers: 1})
	},
	"newsubscriber": func(ctx context.Context, b Bot) {
		b.HandleSubscriber(ctx, bot.SubscriberEvent{User: testUser, Months: 1, Plan: "Prime"})
	},
	"giftedsubscriber": func(ctx context.Context, b Bot) {
		b.HandleGift(ctx, bot.GiftEvent{User: testUser, Recipient: testUser, Months: 1, Plan: "Prime"})
	},
	"follower": func(ctx context.Context, b Bot) {
		b.HandleFollow(ctx, bot.FollowEvent{User: testUser})
	},
}

// HandleAdminTestEvent fires a synthetic raid, subscription, gift or follow.
func (h *Handlers) HandleAdminTestEvent(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("event")
	fire, ok := testEvents[name]
	if !ok {
		http.Error(w, "unknown event "+name, http.StatusNotFound)
		return
	}
	if h.opts.Bot == nil {
		http.Error(w, "bot not running", http.StatusServiceUnavailable)
		return
	}
	fire(r.Context(), h.opts.Bot)
	telemetry.LoggerWithCorr(r.Context()).Info("test event fired", slog.String("event", name), slog.String("component", "admin"))
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "event": name})
}
