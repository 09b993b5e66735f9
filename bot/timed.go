package bot

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/onnwee/twitchbot/response"
	"github.com/onnwee/twitchbot/telemetry"
)

// announcer sends the timed messages of the active configuration on its own
// goroutine. The zero value is stopped.
type announcer struct {
	mu     sync.Mutex
	parent context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func (a *announcer) setContext(ctx context.Context) {
	a.mu.Lock()
	a.parent = ctx
	a.mu.Unlock()
}

// start launches the loop for the current configuration. It does nothing
// before Start, when the loop already runs, or when there is nothing to send.
func (a *announcer) start(b *Bot) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.parent == nil || a.done != nil || a.parent.Err() != nil {
		return
	}
	timed := b.Config().Timed
	if timed.Interval <= 0 || len(timed.Messages) == 0 {
		return
	}
	ctx, cancel := context.WithCancel(a.parent)
	done := make(chan struct{})
	a.cancel = cancel
	a.done = done
	go func() {
		defer close(done)
		b.runTimed(ctx, timed)
	}()
}

// stop cancels the loop and waits for it to return.
func (a *announcer) stop() {
	a.mu.Lock()
	cancel, done := a.cancel, a.done
	a.cancel, a.done = nil, nil
	a.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (a *announcer) running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.done == nil {
		return false
	}
	select {
	case <-a.done:
		return false
	default:
		return true
	}
}

func (b *Bot) runTimed(ctx context.Context, timed TimedMessages) {
	log := slog.Default().With(slog.String("component", "timed"))
	next := b.opts.IntN(len(timed.Messages))
	log.Info("timed announcements started", slog.Int("messages", len(timed.Messages)), slog.Duration("interval", timed.Interval))

	ticker := time.NewTicker(timed.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("timed announcements stopped")
			return
		case <-ticker.C:
			b.sendTimed(ctx, timed.Messages[next])
			next = (next + 1) % len(timed.Messages)
		}
	}
}

func (b *Bot) sendTimed(ctx context.Context, logic response.Logic) {
	b.dispatchMu.Lock()
	defer b.dispatchMu.Unlock()
	if ctx.Err() != nil {
		return
	}
	ctx = telemetry.WithNewCorrelation(ctx)
	ctx, span := telemetry.StartSpan(ctx, "bot", "timed message")
	defer span.End()

	text, ok := logic.Evaluate(b.hostResolver(ctx, ""))
	if !ok {
		return
	}
	b.say(ctx, text)
	telemetry.Inc(telemetry.TimedAnnouncements)
}
