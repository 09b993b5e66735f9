package bot

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/onnwee/twitchbot/condition"
	"github.com/onnwee/twitchbot/telemetry"
)

// Prefix starts every command line.
const Prefix = "!"

// Handler is an entry in the dispatch list. Implementations are *Command and
// *Moderator.
type Handler interface {
	Name() string
	handle(ctx context.Context, b *Bot, msg ChatMessage) bool
}

// Command reacts to "!keyword [argument]" lines. A successful run starts the
// cooldown; while it is active the command is suppressed unless the escape
// condition evaluates false for the message.
type Command struct {
	Keywords []string
	Cooldown time.Duration
	Escape   string
	Action   Action

	escape *condition.Predicate

	mu       sync.Mutex
	lastUsed time.Time
}

// NewCommand compiles the escape condition and returns the command.
func NewCommand(e *condition.Engine, keywords []string, cooldown time.Duration, escape string, action Action) (*Command, error) {
	pred, err := e.Compile(escape)
	if err != nil {
		return nil, err
	}
	return &Command{
		Keywords: keywords,
		Cooldown: cooldown,
		Escape:   escape,
		Action:   action,
		escape:   pred,
	}, nil
}

// Name returns the primary keyword with its prefix.
func (c *Command) Name() string {
	if len(c.Keywords) == 0 {
		return Prefix
	}
	return Prefix + c.Keywords[0]
}

// LastUsed returns the time of the last successful run.
func (c *Command) LastUsed() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastUsed
}

func (c *Command) matches(keyword string) bool {
	for _, k := range c.Keywords {
		if strings.EqualFold(k, keyword) {
			return true
		}
	}
	return false
}

// splitCommand returns the keyword after the prefix and the trimmed text after
// the first space.
func splitCommand(text string) (keyword, argument string, ok bool) {
	if !strings.HasPrefix(text, Prefix) {
		return "", "", false
	}
	rest := text[len(Prefix):]
	keyword, argument, _ = strings.Cut(rest, " ")
	return keyword, strings.TrimSpace(argument), true
}

func (c *Command) handle(ctx context.Context, b *Bot, msg ChatMessage) bool {
	keyword, argument, ok := splitCommand(msg.Text)
	if !ok || !c.matches(keyword) {
		return false
	}
	log := telemetry.LoggerWithCorr(ctx).With(slog.String("command", c.Name()), slog.String("user", msg.User.Login()), slog.String("component", "bot"))

	now := b.opts.Now()
	if c.LastUsed().Add(c.Cooldown).After(now) {
		if c.escape == nil || c.escape.Eval(b.eventResolver(ctx, msg, "")) {
			log.Debug("command ignored during cooldown")
			telemetry.IncVec(telemetry.CommandsSuppressed, c.Name())
			return false
		}
		log.Debug("cooldown escaped")
	}

	log.Info("handle command")
	if !c.Action.run(ctx, b, msg, argument) {
		return false
	}
	c.mu.Lock()
	c.lastUsed = now
	c.mu.Unlock()
	telemetry.IncVec(telemetry.CommandsExecuted, c.Name())
	return true
}
