// Package bot dispatches chat events to the configured handlers.
//
// Messages are offered to each handler in configuration order until one
// consumes them. Keyword commands enforce a cooldown that an escape condition
// may bypass; moderators scan messages and run a warn-then-timeout sequence
// backed by expiring user sets. Special channel events (subscriptions, gifts,
// follows, raids) and timed announcements render their configured replies
// through the same response path.
package bot

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/onnwee/twitchbot/condition"
	"github.com/onnwee/twitchbot/params"
	"github.com/onnwee/twitchbot/quotes"
	"github.com/onnwee/twitchbot/response"
	"github.com/onnwee/twitchbot/telemetry"
	"github.com/onnwee/twitchbot/timedlist"
)

const (
	// DefaultCooldown applies to commands that do not configure one.
	DefaultCooldown = 30 * time.Second
	// DefaultModerationTimeout applies to moderators that do not configure one.
	DefaultModerationTimeout = 10 * time.Minute
	// DefaultActiveInterval is how long a chatter counts as active after writing.
	DefaultActiveInterval = 30 * time.Minute
	// DefaultChatterRefresh bounds how often the chatter list is fetched.
	DefaultChatterRefresh = time.Minute
)

// Config is the loaded command configuration. It is replaced as a whole on
// reload.
type Config struct {
	Handlers         []Handler
	NewSubscriber    response.Logic
	GiftedSubscriber response.Logic
	NewFollower      response.Logic
	Raid             response.Logic
	Timed            TimedMessages
}

// TimedMessages are announcements sent one per Interval in rotation.
type TimedMessages struct {
	Interval time.Duration
	Messages []response.Logic
}

// Options wires a Bot to its collaborators. Actions is required; the others
// disable the features that need them when nil.
type Options struct {
	Channel  string // broadcaster login
	BotLogin string // messages from this account are ignored

	Engine   *condition.Engine
	Actions  Actions
	Chatters ChatterSource
	Editor   Channel
	Quotes   quotes.Store

	Allowed timedlist.Set
	Warned  timedlist.Set

	ActiveInterval time.Duration
	ChatterRefresh time.Duration

	Now  func() time.Time
	IntN func(n int) int
}

// Bot holds the active configuration and per-channel state.
type Bot struct {
	opts Options

	cfgMu sync.RWMutex
	cfg   Config

	dispatchMu sync.Mutex

	active   *timedlist.List[string]
	chatters *chatterCache
	timer    announcer
}

// New returns a Bot with an empty configuration.
func New(opts Options) *Bot {
	if opts.Engine == nil {
		opts.Engine = condition.NewEngine()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.IntN == nil {
		opts.IntN = rand.IntN
	}
	if opts.ActiveInterval <= 0 {
		opts.ActiveInterval = DefaultActiveInterval
	}
	if opts.ChatterRefresh <= 0 {
		opts.ChatterRefresh = DefaultChatterRefresh
	}
	if opts.Allowed == nil {
		opts.Allowed = timedlist.Local(timedlist.NewWithClock[string](5*time.Minute, opts.Now))
	}
	if opts.Warned == nil {
		opts.Warned = timedlist.Local(timedlist.NewWithClock[string](5*time.Minute, opts.Now))
	}
	opts.Channel = strings.ToLower(opts.Channel)
	return &Bot{
		opts:     opts,
		active:   timedlist.NewWithClock[string](opts.ActiveInterval, opts.Now),
		chatters: newChatterCache(opts.Chatters, opts.ChatterRefresh, opts.Now),
	}
}

// Engine returns the condition engine used to compile configuration.
func (b *Bot) Engine() *condition.Engine { return b.opts.Engine }

// Config returns the active configuration.
func (b *Bot) Config() Config {
	b.cfgMu.RLock()
	defer b.cfgMu.RUnlock()
	return b.cfg
}

// Start begins timed announcements. They run until ctx ends or Stop is called
// and restart after every Reload.
func (b *Bot) Start(ctx context.Context) {
	b.timer.setContext(ctx)
	b.timer.start(b)
}

// Stop halts timed announcements and waits for an in-flight one to finish.
func (b *Bot) Stop() { b.timer.stop() }

// Reload swaps in cfg. Timed announcements are drained before the swap and
// restarted afterwards. Command cooldowns start fresh.
func (b *Bot) Reload(cfg Config) {
	b.timer.stop()
	b.cfgMu.Lock()
	b.cfg = cfg
	b.cfgMu.Unlock()

	telemetry.SetGauge(telemetry.HandlersLoaded, len(cfg.Handlers))
	telemetry.SetGauge(telemetry.ConditionCacheSize, b.opts.Engine.Len())
	slog.Info("bot configuration loaded",
		slog.Int("handlers", len(cfg.Handlers)),
		slog.Int("timed_messages", len(cfg.Timed.Messages)),
		slog.Duration("timed_interval", cfg.Timed.Interval),
		slog.String("component", "bot"))

	b.timer.start(b)
}

// HandleMessage dispatches one chat message. It reports whether a handler
// consumed it.
func (b *Bot) HandleMessage(ctx context.Context, msg ChatMessage) bool {
	if b.opts.BotLogin != "" && strings.EqualFold(msg.User.Name, b.opts.BotLogin) {
		return false
	}

	b.dispatchMu.Lock()
	defer b.dispatchMu.Unlock()

	if telemetry.GetCorrelation(ctx) == "" {
		ctx = telemetry.WithNewCorrelation(ctx)
	}
	ctx, span := telemetry.StartSpan(ctx, "bot", "dispatch message",
		telemetry.ChatUserAttr(msg.User.Login()),
		telemetry.ChatChannelAttr(msg.Channel))
	defer span.End()
	telemetry.IncVec(telemetry.ChatEvents, "message")

	b.active.Add(msg.User.Login())

	handlers := b.Config().Handlers
	var handled bool
	telemetry.TimeFunc(telemetry.DispatchDuration, func() {
		for _, h := range handlers {
			if h.handle(ctx, b, msg) {
				span.SetAttributes(telemetry.HandlerAttr(h.Name()))
				handled = true
				return
			}
		}
	})
	return handled
}

// HandleSubscriber sends the new subscriber message.
func (b *Bot) HandleSubscriber(ctx context.Context, e SubscriberEvent) {
	b.announce(ctx, "subscriber", b.Config().NewSubscriber, e.values())
}

// HandleGift sends the gifted subscription message.
func (b *Bot) HandleGift(ctx context.Context, e GiftEvent) {
	b.announce(ctx, "gift", b.Config().GiftedSubscriber, e.values())
}

// HandleFollow sends the new follower message.
func (b *Bot) HandleFollow(ctx context.Context, e FollowEvent) {
	b.announce(ctx, "follow", b.Config().NewFollower, e.values())
}

// HandleRaid sends the raid message.
func (b *Bot) HandleRaid(ctx context.Context, e RaidEvent) {
	b.announce(ctx, "raid", b.Config().Raid, e.values())
}

func (b *Bot) announce(ctx context.Context, kind string, logic response.Logic, values params.Values) {
	b.dispatchMu.Lock()
	defer b.dispatchMu.Unlock()

	if telemetry.GetCorrelation(ctx) == "" {
		ctx = telemetry.WithNewCorrelation(ctx)
	}
	ctx, span := telemetry.StartSpan(ctx, "bot", "event "+kind)
	defer span.End()
	telemetry.IncVec(telemetry.ChatEvents, kind)

	text, ok := logic.Evaluate(values.Over(b.hostResolver(ctx, "")))
	if !ok {
		telemetry.LoggerWithCorr(ctx).Debug("no message for event", slog.String("event", kind), slog.String("component", "bot"))
		return
	}
	b.say(ctx, text)
}

// Status summarizes the running bot for the status endpoint.
type Status struct {
	Handlers       int  `json:"handlers"`
	TimedMessages  int  `json:"timed_messages"`
	Conditions     int  `json:"conditions"`
	ActiveChatters int  `json:"active_chatters"`
	TimerRunning   bool `json:"timer_running"`
}

// Status returns counters describing the active configuration.
func (b *Bot) Status() Status {
	cfg := b.Config()
	return Status{
		Handlers:       len(cfg.Handlers),
		TimedMessages:  len(cfg.Timed.Messages),
		Conditions:     b.opts.Engine.Len(),
		ActiveChatters: b.active.Len(),
		TimerRunning:   b.timer.running(),
	}
}

func (b *Bot) say(ctx context.Context, text string) {
	if err := b.opts.Actions.Say(ctx, text); err != nil {
		telemetry.LoggerWithCorr(ctx).Warn("send message failed", slog.Any("err", err), slog.String("component", "bot"))
		telemetry.IncVec(telemetry.ActionFailures, "say")
		return
	}
	telemetry.Inc(telemetry.MessagesSent)
}

func (b *Bot) deleteMessage(ctx context.Context, msg ChatMessage) {
	if err := b.opts.Actions.DeleteMessage(ctx, msg); err != nil {
		telemetry.LoggerWithCorr(ctx).Warn("delete message failed", slog.String("user", msg.User.Login()), slog.Any("err", err), slog.String("component", "bot"))
		telemetry.IncVec(telemetry.ActionFailures, "delete")
	}
}

func (b *Bot) timeoutUser(ctx context.Context, login string, d time.Duration, reason string) {
	if err := b.opts.Actions.Timeout(ctx, login, d, reason); err != nil {
		telemetry.LoggerWithCorr(ctx).Warn("timeout user failed", slog.String("user", login), slog.Any("err", err), slog.String("component", "bot"))
		telemetry.IncVec(telemetry.ActionFailures, "timeout")
	}
}
