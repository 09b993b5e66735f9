package bot

import (
	"context"
	"log/slog"
	"regexp"
	"time"

	"github.com/onnwee/twitchbot/response"
	"github.com/onnwee/twitchbot/telemetry"
)

// Detector flags messages a Moderator acts on. LinkDetector is the only
// implementation.
type Detector interface {
	Name() string
	detect(text string) bool
}

var (
	linkPattern = regexp.MustCompile(`[a-zA-Z0-9\-]+\.(de|com|net|ru|org|ch|nl|jp|tv)`)
	ipPattern   = regexp.MustCompile(`(25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\.(25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\.(25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\.(25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)`)
)

// LinkDetector flags domain names under common top-level domains and dotted
// IPv4 addresses.
type LinkDetector struct{}

func (LinkDetector) Name() string { return "link" }

func (LinkDetector) detect(text string) bool {
	return linkPattern.MatchString(text) || ipPattern.MatchString(text)
}

// Moderator warns a user on their first flagged message and times them out
// on the next one while the warning is remembered. Broadcaster, moderators
// and allowed users are exempt.
type Moderator struct {
	Detector           Detector
	Warn               bool
	WarnRemovesMessage bool
	WarningMessage     response.Logic
	TimeoutMessage     response.Logic
	Timeout            time.Duration
}

// NewModerator returns a moderator with warnings on and the default timeout.
func NewModerator(d Detector) *Moderator {
	return &Moderator{Detector: d, Warn: true, Timeout: DefaultModerationTimeout}
}

// Name identifies the moderator in logs and metrics.
func (m *Moderator) Name() string { return "moderator:" + m.Detector.Name() }

func (m *Moderator) handle(ctx context.Context, b *Bot, msg ChatMessage) bool {
	if !m.Detector.detect(msg.Text) {
		return false
	}
	login := msg.User.Login()
	log := telemetry.LoggerWithCorr(ctx).With(slog.String("moderator", m.Detector.Name()), slog.String("user", login), slog.String("component", "bot"))

	if msg.User.Broadcaster || msg.User.Moderator {
		return false
	}
	allowed, err := b.opts.Allowed.Contains(ctx, login)
	if err != nil {
		log.Warn("allow list lookup failed", slog.Any("err", err))
		telemetry.IncVec(telemetry.ActionFailures, "allow_lookup")
	}
	if allowed {
		log.Debug("flagged message from allowed user")
		return false
	}

	r := b.eventResolver(ctx, msg, "")
	if m.Warn {
		warned, err := b.opts.Warned.Contains(ctx, login)
		if err != nil {
			log.Warn("warn list lookup failed", slog.Any("err", err))
			telemetry.IncVec(telemetry.ActionFailures, "warn_lookup")
		}
		if !warned {
			if err := b.opts.Warned.Add(ctx, login); err != nil {
				log.Warn("remember warning failed", slog.Any("err", err))
				telemetry.IncVec(telemetry.ActionFailures, "warn_add")
			}
			if m.WarnRemovesMessage {
				b.deleteMessage(ctx, msg)
			}
			if text, ok := m.WarningMessage.Evaluate(r); ok {
				b.say(ctx, text)
			}
			log.Info("user warned")
			telemetry.IncVec(telemetry.ModerationActions, "warned")
			return true
		}
	}

	reason, _ := m.TimeoutMessage.Evaluate(r)
	b.deleteMessage(ctx, msg)
	b.timeoutUser(ctx, login, m.Timeout, reason)
	log.Info("user timed out", slog.Duration("duration", m.Timeout))
	telemetry.IncVec(telemetry.ModerationActions, "timedout")
	return true
}
