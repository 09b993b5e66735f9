package bot

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/onnwee/twitchbot/params"
	"github.com/onnwee/twitchbot/quotes"
	"github.com/onnwee/twitchbot/response"
	"github.com/onnwee/twitchbot/telemetry"
)

// Action is what a Command does once it is allowed to run. It reports success;
// only a successful run starts the cooldown. Implementations are Reply,
// AllowUser, ChangeGame and QuoteBook.
type Action interface {
	run(ctx context.Context, b *Bot, msg ChatMessage, argument string) bool
}

// Reply sends the rendered message. It fails when nothing is rendered.
type Reply struct {
	Message response.Logic
}

func (a Reply) run(ctx context.Context, b *Bot, msg ChatMessage, argument string) bool {
	text, ok := a.Message.Evaluate(b.eventResolver(ctx, msg, argument))
	if !ok || text == "" {
		return false
	}
	b.say(ctx, text)
	return true
}

// AllowUser lets a moderator exempt the named user from moderation for the
// allow interval. {username} in Success is the exempted user.
type AllowUser struct {
	Success response.Logic
}

func (a AllowUser) run(ctx context.Context, b *Bot, msg ChatMessage, argument string) bool {
	if argument == "" || !(msg.User.Broadcaster || msg.User.Moderator) {
		return false
	}
	target := strings.ToLower(strings.TrimPrefix(argument, "@"))

	r := params.Values{"username": target}.Over(b.eventResolver(ctx, msg, argument))
	if text, ok := a.Success.Evaluate(r); ok {
		b.say(ctx, text)
	}
	if err := b.opts.Allowed.Add(ctx, target); err != nil {
		telemetry.LoggerWithCorr(ctx).Warn("allow user failed", slog.String("user", target), slog.Any("err", err), slog.String("component", "bot"))
		telemetry.IncVec(telemetry.ActionFailures, "allow")
	}
	return true
}

// ChangeGame sets the stream category. {game} in Success is the category
// name as the platform knows it.
type ChangeGame struct {
	Success    response.Logic
	NotAllowed response.Logic
}

func (a ChangeGame) run(ctx context.Context, b *Bot, msg ChatMessage, argument string) bool {
	if argument == "" {
		return false
	}
	r := b.eventResolver(ctx, msg, argument)
	if !(msg.User.Broadcaster || msg.User.Moderator) {
		if text, ok := a.NotAllowed.Evaluate(r); ok {
			b.say(ctx, text)
		}
		return true
	}

	log := telemetry.LoggerWithCorr(ctx).With(slog.String("game", argument), slog.String("component", "bot"))
	if b.opts.Editor == nil {
		log.Warn("game change requested but no channel editor is configured")
		return false
	}
	game, err := b.opts.Editor.FindGame(ctx, argument)
	if err != nil {
		log.Warn("find game failed", slog.Any("err", err))
		telemetry.IncVec(telemetry.ActionFailures, "find_game")
		return false
	}
	if err := b.opts.Editor.SetGame(ctx, game.ID); err != nil {
		log.Warn("set game failed", slog.Any("err", err))
		telemetry.IncVec(telemetry.ActionFailures, "set_game")
		return false
	}
	log.Info("game changed", slog.String("game_id", game.ID))
	if text, ok := a.Success.Evaluate(params.Values{"game": game.Name}.Over(r)); ok {
		b.say(ctx, text)
	}
	return true
}

// QuoteBook posts a random quote, or adds one when given an argument. It
// always succeeds.
type QuoteBook struct {
	AllUsersCanAdd bool
	Success        response.Logic
	NotAllowed     response.Logic
}

func (a QuoteBook) run(ctx context.Context, b *Bot, msg ChatMessage, argument string) bool {
	log := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "bot"))
	if b.opts.Quotes == nil {
		log.Warn("quote requested but no quote store is configured")
		return true
	}

	if argument == "" {
		q, err := b.opts.Quotes.Random(ctx)
		switch {
		case errors.Is(err, quotes.ErrNoQuotes):
		case err != nil:
			log.Warn("random quote failed", slog.Any("err", err))
			telemetry.IncVec(telemetry.ActionFailures, "quote")
		default:
			b.say(ctx, q.String())
		}
		return true
	}

	r := b.eventResolver(ctx, msg, argument)
	if !(a.AllUsersCanAdd || msg.User.Broadcaster || msg.User.Moderator) {
		if text, ok := a.NotAllowed.Evaluate(r); ok {
			b.say(ctx, text)
		}
		return true
	}

	by := msg.User.DisplayName
	if by == "" {
		by = msg.User.Name
	}
	q := quotes.Parse(argument, b.opts.Channel, by, b.opts.Now())
	if err := b.opts.Quotes.Add(ctx, &q); err != nil {
		log.Warn("add quote failed", slog.Any("err", err))
		telemetry.IncVec(telemetry.ActionFailures, "quote")
		return true
	}
	log.Info("quote added", slog.Int64("id", q.ID), slog.String("by", by))
	if text, ok := a.Success.Evaluate(params.Values{"quote": q.String()}.Over(r)); ok {
		b.say(ctx, text)
	}
	return true
}
