package chat

import (
	"context"
	"log/slog"
	"time"

	"github.com/onnwee/twitchbot/bot"
	"github.com/onnwee/twitchbot/telemetry"
	"github.com/onnwee/twitchbot/twitchapi"
)

// DefaultFollowerPoll is the follower poll interval when none is configured.
const DefaultFollowerPoll = time.Minute

// Followers reports new follows by polling the most recent followers. The
// first successful poll only records who already follows.
type Followers struct {
	Helix         *twitchapi.HelixClient
	BroadcasterID string
	Interval      time.Duration

	known  map[string]bool
	seeded bool
}

// Run polls until ctx ends, calling onFollow for each new follower, oldest
// first.
func (f *Followers) Run(ctx context.Context, onFollow func(context.Context, bot.FollowEvent)) {
	every := f.Interval
	if every <= 0 {
		every = DefaultFollowerPoll
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	slog.Info("follower poller started", slog.Duration("interval", every), slog.String("component", "chat"))
	for {
		f.poll(ctx, onFollow)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (f *Followers) poll(ctx context.Context, onFollow func(context.Context, bot.FollowEvent)) {
	list, err := f.Helix.GetFollowers(ctx, f.BroadcasterID, 100)
	if err != nil {
		if ctx.Err() == nil {
			telemetry.IncVec(telemetry.ActionFailures, "followers")
			slog.Debug("follower poll failed", slog.Any("err", err), slog.String("component", "chat"))
		}
		return
	}
	if f.known == nil {
		f.known = map[string]bool{}
	}
	if !f.seeded {
		for _, fl := range list {
			f.known[fl.UserID] = true
		}
		f.seeded = true
		slog.Debug("follower list seeded", slog.Int("count", len(list)), slog.String("component", "chat"))
		return
	}
	// listed newest first
	for i := len(list) - 1; i >= 0; i-- {
		fl := list[i]
		if f.known[fl.UserID] {
			continue
		}
		f.known[fl.UserID] = true
		name := firstNonEmpty(fl.UserName, fl.UserLogin)
		slog.Info("new follower", slog.String("user", name), slog.String("component", "chat"))
		onFollow(telemetry.WithNewCorrelation(ctx), bot.FollowEvent{User: name})
	}
}
