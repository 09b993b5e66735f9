// Package commands loads the bot's command configuration from YAML.
//
// The file lists handlers in dispatch order, the replies for special channel
// events and the timed announcements. Every condition is compiled while the
// file loads, so a malformed condition or duration rejects the whole file and
// the running configuration stays in place.
package commands

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/onnwee/twitchbot/bot"
	"github.com/onnwee/twitchbot/condition"
	"github.com/onnwee/twitchbot/response"
)

// ConfigError locates a rejected configuration element.
type ConfigError struct {
	Path string // e.g. handlers[2].escape
	Err  error
}

func (e *ConfigError) Error() string { return e.Path + ": " + e.Err.Error() }

func (e *ConfigError) Unwrap() error { return e.Err }

// Load reads and builds the configuration at path. ${VAR} and ${VAR:default}
// are expanded from the environment before parsing.
func Load(path string, e *condition.Engine) (bot.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return bot.Config{}, fmt.Errorf("read commands file %s: %w", path, err)
	}
	return Parse(data, e)
}

// Parse builds the configuration from YAML bytes.
func Parse(data []byte, e *condition.Engine) (bot.Config, error) {
	var f File
	if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), &f); err != nil {
		return bot.Config{}, fmt.Errorf("parse commands: %w", err)
	}
	return Build(f, e)
}

// Build compiles f. The first invalid element aborts the build.
func Build(f File, e *condition.Engine) (bot.Config, error) {
	if e == nil {
		e = condition.NewEngine()
	}
	b := builder{engine: e}
	var cfg bot.Config

	for i, h := range f.Handlers {
		handler, err := b.handler(fmt.Sprintf("handlers[%d]", i), h)
		if err != nil {
			return bot.Config{}, err
		}
		if handler != nil {
			cfg.Handlers = append(cfg.Handlers, handler)
		}
	}

	var err error
	if cfg.NewSubscriber, err = b.logic("new_subscriber", f.NewSubscriber); err != nil {
		return bot.Config{}, err
	}
	if cfg.GiftedSubscriber, err = b.logic("gifted_subscriber", f.GiftedSubscriber); err != nil {
		return bot.Config{}, err
	}
	if cfg.NewFollower, err = b.logic("new_follower", f.NewFollower); err != nil {
		return bot.Config{}, err
	}
	if cfg.Raid, err = b.logic("raid", f.Raid); err != nil {
		return bot.Config{}, err
	}

	cfg.Timed.Interval = time.Duration(f.TimedMessages.Interval)
	for i, m := range f.TimedMessages.Messages {
		l, err := b.logic(fmt.Sprintf("timed_messages.messages[%d]", i), m)
		if err != nil {
			return bot.Config{}, err
		}
		if !l.Empty() {
			cfg.Timed.Messages = append(cfg.Timed.Messages, l)
		}
	}
	return cfg, nil
}

type builder struct {
	engine *condition.Engine
}

func (b builder) handler(path string, h HandlerConfig) (bot.Handler, error) {
	kind := strings.ToLower(strings.TrimSpace(h.Type))
	if kind == "link" {
		return b.moderator(path, h)
	}

	var (
		action bot.Action
		err    error
	)
	switch kind {
	case "command", "":
		var l response.Logic
		l, err = b.logic(path+".message", h.Message)
		action = bot.Reply{Message: l}
	case "quote":
		var a bot.QuoteBook
		a.AllUsersCanAdd = h.AllUsers
		if a.Success, err = b.logic(path+".success", h.Success); err == nil {
			a.NotAllowed, err = b.logic(path+".not_allowed", h.NotAllowed)
		}
		action = a
	case "game":
		var a bot.ChangeGame
		if a.Success, err = b.logic(path+".success", h.Success); err == nil {
			a.NotAllowed, err = b.logic(path+".not_allowed", h.NotAllowed)
		}
		action = a
	case "allow":
		var a bot.AllowUser
		a.Success, err = b.logic(path+".success", h.Success)
		action = a
	default:
		return nil, &ConfigError{Path: path + ".type", Err: fmt.Errorf("unknown handler type %q", h.Type)}
	}
	if err != nil {
		return nil, err
	}

	// Commands without keywords can never match.
	if len(h.Keywords) == 0 {
		return nil, nil
	}
	cooldown := bot.DefaultCooldown
	if h.Cooldown != nil {
		cooldown = time.Duration(*h.Cooldown)
	}
	c, err := bot.NewCommand(b.engine, h.Keywords, cooldown, h.Escape, action)
	if err != nil {
		return nil, &ConfigError{Path: path + ".escape", Err: err}
	}
	return c, nil
}

func (b builder) moderator(path string, h HandlerConfig) (bot.Handler, error) {
	m := bot.NewModerator(bot.LinkDetector{})
	if h.Warning != nil {
		m.Warn = *h.Warning
	}
	m.WarnRemovesMessage = h.WarnRemovesMessage
	if h.Timeout != nil {
		m.Timeout = time.Duration(*h.Timeout)
	}
	var err error
	if m.WarningMessage, err = b.logic(path+".warning_message", h.WarningMessage); err != nil {
		return nil, err
	}
	if m.TimeoutMessage, err = b.logic(path+".timeout_message", h.TimeoutMessage); err != nil {
		return nil, err
	}
	return m, nil
}

func (b builder) logic(path string, m MessageBlock) (response.Logic, error) {
	var l response.Logic
	for i, br := range m.Branches {
		el, err := response.NewElement(b.engine, br.If, response.NewMessage(br.Text...))
		if err != nil {
			if len(m.Branches) > 1 {
				path = fmt.Sprintf("%s[%d]", path, i)
			}
			return response.Logic{}, &ConfigError{Path: path + ".if", Err: err}
		}
		l.Elements = append(l.Elements, el)
	}
	return l, nil
}

var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::([^}]*))?\}`)

// expandEnvVars expands ${VAR} and ${VAR:default}. A bare $ is left alone.
func expandEnvVars(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(m string) string {
		sub := envPattern.FindStringSubmatch(m)
		if v := os.Getenv(sub[1]); v != "" {
			return v
		}
		return sub[2]
	})
}
