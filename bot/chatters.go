package bot

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/onnwee/twitchbot/telemetry"
)

// chatterCache holds the last fetched chatter list and refetches it at most
// once per refresh interval. A failed fetch keeps the previous list.
type chatterCache struct {
	src     ChatterSource
	refresh time.Duration
	now     func() time.Time

	mu      sync.Mutex
	list    []Chatter
	fetched time.Time
	loaded  bool
}

func newChatterCache(src ChatterSource, refresh time.Duration, now func() time.Time) *chatterCache {
	return &chatterCache{src: src, refresh: refresh, now: now}
}

func (c *chatterCache) get(ctx context.Context) []Chatter {
	if c.src == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if c.loaded && now.Before(c.fetched.Add(c.refresh)) {
		return c.list
	}
	list, err := c.src.Chatters(ctx)
	if err != nil {
		telemetry.LoggerWithCorr(ctx).Warn("fetch chatters failed", slog.Any("err", err), slog.Int("kept", len(c.list)), slog.String("component", "bot"))
		telemetry.IncVec(telemetry.ActionFailures, "chatters")
		return c.list
	}
	c.list = list
	c.fetched = now
	c.loaded = true
	return c.list
}
