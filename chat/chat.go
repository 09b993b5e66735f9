package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	twitch "github.com/gempir/go-twitch-irc/v4"
	"golang.org/x/oauth2"

	"github.com/onnwee/twitchbot/bot"
	"github.com/onnwee/twitchbot/telemetry"
	"github.com/onnwee/twitchbot/twitchapi"
)

// Handler receives chat traffic. *bot.Bot implements it.
type Handler interface {
	HandleMessage(ctx context.Context, msg bot.ChatMessage) bool
	HandleSubscriber(ctx context.Context, e bot.SubscriberEvent)
	HandleGift(ctx context.Context, e bot.GiftEvent)
	HandleRaid(ctx context.Context, e bot.RaidEvent)
}

// Options configures a Client.
type Options struct {
	Channel  string
	BotLogin string
	// Token supplies the bot account's user token for the IRC login.
	Token oauth2.TokenSource
	// Helix is authorized as the bot account; nil disables moderation calls.
	Helix         *twitchapi.HelixClient
	BroadcasterID string
	BotID         string
}

// Client is the IRC connection and the bot's outbound actions.
type Client struct {
	opts Options
	irc  *twitch.Client
	say  func(channel, text string)

	mu      sync.Mutex
	handler Handler
	userIDs map[string]string
}

// maxCachedIDs bounds the login to user id cache.
const maxCachedIDs = 5000

// New returns a Client for opts. Call Run to connect.
func New(opts Options) *Client {
	opts.Channel = strings.ToLower(opts.Channel)
	opts.BotLogin = strings.ToLower(opts.BotLogin)
	irc := twitch.NewClient(opts.BotLogin, "")
	c := &Client{opts: opts, irc: irc, say: irc.Say, userIDs: map[string]string{}}
	irc.OnPrivateMessage(c.onPrivateMessage)
	irc.OnUserNoticeMessage(c.onUserNotice)
	irc.Join(opts.Channel)
	return c
}

// Run connects and dispatches to h until ctx ends, reconnecting with backoff.
func (c *Client) Run(ctx context.Context, h Handler) error {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 2 * time.Second
	bo.MaxInterval = 2 * time.Minute
	bo.MaxElapsedTime = 0
	c.irc.OnConnect(func() {
		bo.Reset()
		slog.Info("twitch chat connected", slog.String("channel", c.opts.Channel), slog.String("component", "chat"))
	})

	op := func() error {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		if c.opts.Token != nil {
			tok, err := c.opts.Token.Token()
			if err != nil {
				return fmt.Errorf("bot token: %w", err)
			}
			c.irc.SetIRCToken("oauth:" + strings.TrimPrefix(tok.AccessToken, "oauth:"))
		}
		stop := context.AfterFunc(ctx, func() { _ = c.irc.Disconnect() })
		err := c.irc.Connect()
		stop()
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return err
	}
	notify := func(err error, next time.Duration) {
		telemetry.IncVec(telemetry.ActionFailures, "irc_connect")
		slog.Warn("twitch chat disconnected", slog.Any("err", err), slog.Duration("retry_in", next), slog.String("component", "chat"))
	}
	err := backoff.RetryNotify(op, backoff.WithContext(bo, ctx), notify)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

func (c *Client) currentHandler() Handler {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handler
}

func (c *Client) onPrivateMessage(m twitch.PrivateMessage) {
	h := c.currentHandler()
	if h == nil || !strings.EqualFold(m.Channel, c.opts.Channel) {
		return
	}
	msg := toChatMessage(m)
	c.rememberUser(msg.User.Login(), msg.User.ID)
	ctx := telemetry.WithNewCorrelation(context.Background())
	h.HandleMessage(ctx, msg)
}

func (c *Client) onUserNotice(m twitch.UserNoticeMessage) {
	h := c.currentHandler()
	if h == nil || !strings.EqualFold(m.Channel, c.opts.Channel) {
		return
	}
	ctx := telemetry.WithNewCorrelation(context.Background())
	dispatchNotice(ctx, h, m)
}

func dispatchNotice(ctx context.Context, h Handler, m twitch.UserNoticeMessage) {
	p := m.MsgParams
	switch m.MsgID {
	case "sub", "resub":
		h.HandleSubscriber(ctx, bot.SubscriberEvent{
			User:   displayName(m.User),
			Months: atoi(p["msg-param-cumulative-months"]),
			Streak: atoi(p["msg-param-streak-months"]),
			Plan:   p["msg-param-sub-plan"],
		})
	case "subgift":
		h.HandleGift(ctx, bot.GiftEvent{
			User:      displayName(m.User),
			Recipient: firstNonEmpty(p["msg-param-recipient-display-name"], p["msg-param-recipient-user-name"]),
			Months:    atoi(p["msg-param-months"]),
			Streak:    atoi(p["msg-param-streak-months"]),
			Plan:      p["msg-param-sub-plan"],
		})
	case "raid":
		h.HandleRaid(ctx, bot.RaidEvent{
			User:    firstNonEmpty(p["msg-param-displayName"], displayName(m.User)),
			Viewers: atoi(p["msg-param-viewerCount"]),
		})
	default:
		slog.Debug("ignoring user notice", slog.String("msg_id", m.MsgID), slog.String("component", "chat"))
	}
}

func toChatMessage(m twitch.PrivateMessage) bot.ChatMessage {
	b := m.User.Badges
	return bot.ChatMessage{
		ID:      m.ID,
		Channel: strings.ToLower(m.Channel),
		Text:    m.Message,
		Bits:    m.Bits,
		User: bot.User{
			ID:               m.User.ID,
			Name:             m.User.Name,
			DisplayName:      m.User.DisplayName,
			Broadcaster:      b["broadcaster"] > 0,
			Moderator:        b["moderator"] > 0,
			Subscriber:       b["subscriber"] > 0 || b["founder"] > 0,
			Partner:          b["partner"] > 0,
			Staff:            b["staff"] > 0,
			VIP:              b["vip"] > 0,
			SubscribedMonths: subscribedMonths(m.Tags["badge-info"]),
		},
	}
}

// subscribedMonths reads the month count from a badge-info tag such as
// "subscriber/14" or "founder/3".
func subscribedMonths(badgeInfo string) int {
	for _, part := range strings.Split(badgeInfo, ",") {
		name, n, ok := strings.Cut(part, "/")
		if ok && (name == "subscriber" || name == "founder") {
			return atoi(n)
		}
	}
	return 0
}

func displayName(u twitch.User) string {
	return firstNonEmpty(u.DisplayName, u.Name)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func (c *Client) rememberUser(login, id string) {
	if id == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.userIDs) >= maxCachedIDs {
		c.userIDs = map[string]string{}
	}
	c.userIDs[login] = id
}

func (c *Client) userID(ctx context.Context, login string) (string, error) {
	c.mu.Lock()
	id, ok := c.userIDs[login]
	c.mu.Unlock()
	if ok {
		return id, nil
	}
	u, err := c.opts.Helix.GetUser(ctx, login)
	if err != nil {
		return "", err
	}
	c.rememberUser(login, u.ID)
	return u.ID, nil
}

var errNoHelix = errors.New("chat: helix client not configured")

// Say sends text to the channel.
func (c *Client) Say(_ context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return errors.New("chat: empty message")
	}
	c.say(c.opts.Channel, text)
	return nil
}

// DeleteMessage removes msg from the channel.
func (c *Client) DeleteMessage(ctx context.Context, msg bot.ChatMessage) error {
	if c.opts.Helix == nil {
		return errNoHelix
	}
	if msg.ID == "" {
		return errors.New("chat: message has no id")
	}
	return c.opts.Helix.DeleteChatMessage(ctx, c.opts.BroadcasterID, c.opts.BotID, msg.ID)
}

// Timeout bans user from chat for d.
func (c *Client) Timeout(ctx context.Context, user string, d time.Duration, reason string) error {
	if c.opts.Helix == nil {
		return errNoHelix
	}
	id, err := c.userID(ctx, strings.ToLower(user))
	if err != nil {
		return fmt.Errorf("resolve %s: %w", user, err)
	}
	return c.opts.Helix.TimeoutUser(ctx, c.opts.BroadcasterID, c.opts.BotID, id, d, reason)
}
