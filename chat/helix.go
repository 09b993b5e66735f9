package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/onnwee/twitchbot/bot"
	"github.com/onnwee/twitchbot/twitchapi"
)

// LookupIDs resolves the broadcaster and bot account ids.
func LookupIDs(ctx context.Context, hc *twitchapi.HelixClient, channel, botLogin string) (broadcasterID, botID string, err error) {
	b, err := hc.GetUser(ctx, channel)
	if err != nil {
		return "", "", fmt.Errorf("lookup channel %s: %w", channel, err)
	}
	u, err := hc.GetUser(ctx, botLogin)
	if err != nil {
		return "", "", fmt.Errorf("lookup bot %s: %w", botLogin, err)
	}
	return b.ID, u.ID, nil
}

// Chatters lists the channel's chatters through Helix. Moderator flags come
// from the moderators endpoint, which needs the broadcaster's token; when Mods
// is nil or fails, chatters are reported without them.
type Chatters struct {
	Helix         *twitchapi.HelixClient
	Mods          *twitchapi.HelixClient
	BroadcasterID string
	ModeratorID   string
}

// Chatters implements bot.ChatterSource.
func (c *Chatters) Chatters(ctx context.Context) ([]bot.Chatter, error) {
	list, err := c.Helix.GetChatters(ctx, c.BroadcasterID, c.ModeratorID)
	if err != nil {
		return nil, err
	}
	var mods map[string]bool
	if c.Mods != nil {
		if mods, err = c.Mods.GetModerators(ctx, c.BroadcasterID); err != nil {
			slog.Warn("moderator list unavailable", slog.Any("err", err), slog.String("component", "chat"))
		}
	}
	out := make([]bot.Chatter, 0, len(list))
	for _, ch := range list {
		out = append(out, bot.Chatter{Login: ch.UserLogin, Moderator: mods[ch.UserLogin]})
	}
	return out, nil
}

// Editor changes the channel category with the broadcaster's token.
type Editor struct {
	Helix         *twitchapi.HelixClient
	BroadcasterID string
}

// FindGame implements bot.Channel.
func (e *Editor) FindGame(ctx context.Context, name string) (bot.Game, error) {
	g, err := e.Helix.GetGame(ctx, name)
	if err != nil {
		if errors.Is(err, twitchapi.ErrNotFound) {
			return bot.Game{}, fmt.Errorf("no category named %q: %w", name, err)
		}
		return bot.Game{}, err
	}
	return bot.Game{ID: g.ID, Name: g.Name}, nil
}

// SetGame implements bot.Channel.
func (e *Editor) SetGame(ctx context.Context, gameID string) error {
	return e.Helix.SetChannelGame(ctx, e.BroadcasterID, gameID)
}
