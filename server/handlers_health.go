package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/onnwee/twitchbot/bot"
)

// HandleHealthz responds to liveness probes. With a database configured it
// must answer a ping.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	if h.opts.DB != nil {
		if err := h.opts.DB.PingContext(r.Context()); err != nil {
			http.Error(w, "unhealthy", http.StatusServiceUnavailable)
			return
		}
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleReadyz reports ready once the database answers and a command
// configuration with at least one handler is active.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := []struct {
		name string
		fn   func() error
	}{
		{"database", func() error {
			if h.opts.DB == nil {
				return nil
			}
			return h.opts.DB.PingContext(r.Context())
		}},
		{"commands", func() error {
			if h.opts.Bot == nil || h.opts.Bot.Status().Handlers == 0 {
				return errors.New("no handlers loaded")
			}
			return nil
		}},
	}

	for _, check := range checks {
		if err := check.fn(); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":       "not_ready",
				"failed_check": check.name,
				"error":        err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type statusResponse struct {
	bot.Status
	UptimeSeconds int64 `json:"uptime_seconds"`
}

// HandleStatus returns counters describing the active configuration.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	var st bot.Status
	if h.opts.Bot != nil {
		st = h.opts.Bot.Status()
	}
	writeJSON(w, http.StatusOK, statusResponse{
		Status:        st,
		UptimeSeconds: int64(time.Since(h.started) / time.Second),
	})
}
