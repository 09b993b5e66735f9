package commands

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// File is the YAML document.
type File struct {
	Handlers         []HandlerConfig `yaml:"handlers"`
	NewSubscriber    MessageBlock    `yaml:"new_subscriber,omitempty"`
	GiftedSubscriber MessageBlock    `yaml:"gifted_subscriber,omitempty"`
	NewFollower      MessageBlock    `yaml:"new_follower,omitempty"`
	Raid             MessageBlock    `yaml:"raid,omitempty"`
	TimedMessages    TimedConfig     `yaml:"timed_messages,omitempty"`
}

// HandlerConfig is one entry of the ordered handler list. Which fields apply
// depends on Type.
type HandlerConfig struct {
	Type string `yaml:"type"` // command, quote, game, allow, link

	// keyword commands
	Keywords Keywords  `yaml:"keywords,omitempty"`
	Cooldown *Duration `yaml:"cooldown,omitempty"`
	Escape   string    `yaml:"escape,omitempty"`

	Message    MessageBlock `yaml:"message,omitempty"`
	Success    MessageBlock `yaml:"success,omitempty"`
	NotAllowed MessageBlock `yaml:"not_allowed,omitempty"`
	AllUsers   bool         `yaml:"all_users,omitempty"`

	// moderators
	Warning            *bool        `yaml:"warning,omitempty"`
	WarnRemovesMessage bool         `yaml:"warning_removes_message,omitempty"`
	WarningMessage     MessageBlock `yaml:"warning_message,omitempty"`
	TimeoutMessage     MessageBlock `yaml:"timeout_message,omitempty"`
	Timeout            *Duration    `yaml:"timeout,omitempty"`
}

// TimedConfig lists the rotating announcements.
type TimedConfig struct {
	Interval Duration       `yaml:"interval"`
	Messages []MessageBlock `yaml:"messages"`
}

// Keywords accepts a list or a comma separated string.
type Keywords []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (k *Keywords) UnmarshalYAML(n *yaml.Node) error {
	var raw []string
	switch n.Kind {
	case yaml.ScalarNode:
		raw = strings.Split(n.Value, ",")
	case yaml.SequenceNode:
		if err := n.Decode(&raw); err != nil {
			return err
		}
	default:
		return fmt.Errorf("line %d: keywords must be a string or a list", n.Line)
	}
	out := make(Keywords, 0, len(raw))
	for _, w := range raw {
		w = strings.TrimPrefix(strings.TrimSpace(w), "!")
		if w != "" {
			out = append(out, w)
		}
	}
	*k = out
	return nil
}

// Duration is written as whole seconds or as minutes and seconds ("m:ss").
type Duration time.Duration

// ParseDuration parses "90" or "1:30".
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("negative duration %q", s)
		}
		return time.Duration(n) * time.Second, nil
	}
	m, sec, ok := strings.Cut(s, ":")
	if !ok || len(sec) != 2 {
		return 0, fmt.Errorf("invalid duration %q, want seconds or m:ss", s)
	}
	mins, err := strconv.Atoi(m)
	if err != nil || mins < 0 {
		return 0, fmt.Errorf("invalid duration %q, want seconds or m:ss", s)
	}
	secs, err := strconv.Atoi(sec)
	if err != nil || secs < 0 || secs > 59 {
		return 0, fmt.Errorf("invalid duration %q, want seconds or m:ss", s)
	}
	return time.Duration(mins)*time.Minute + time.Duration(secs)*time.Second, nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", n.Line)
	}
	v, err := ParseDuration(n.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", n.Line, err)
	}
	*d = Duration(v)
	return nil
}

// MessageBlock is a reply definition. It is written as a single text, a list
// of texts picked at random, or a list of branches:
//
//	message:
//	  - if: "{ismoderator}"
//	    text: Hello boss
//	  - text: [Hi {username}, Hey {username}]
//
// Plain texts mixed into a branch list form one unconditional branch placed
// after the others.
type MessageBlock struct {
	Branches []Branch
}

// Branch is one guarded reply.
type Branch struct {
	If   string   `yaml:"if,omitempty"`
	Text []string `yaml:"text"`
}

// IsZero reports whether the block is absent.
func (m MessageBlock) IsZero() bool { return len(m.Branches) == 0 }

// UnmarshalYAML implements yaml.Unmarshaler.
func (m *MessageBlock) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		if t := strings.TrimSpace(n.Value); t != "" {
			m.Branches = []Branch{{Text: []string{t}}}
		}
		return nil
	case yaml.SequenceNode:
	default:
		return fmt.Errorf("line %d: message must be a text or a list", n.Line)
	}

	var plain []string
	for _, item := range n.Content {
		switch item.Kind {
		case yaml.ScalarNode:
			if t := strings.TrimSpace(item.Value); t != "" {
				plain = append(plain, t)
			}
		case yaml.MappingNode:
			b, err := decodeBranch(item)
			if err != nil {
				return err
			}
			m.Branches = append(m.Branches, b)
		default:
			return fmt.Errorf("line %d: message entries must be texts or branches", item.Line)
		}
	}
	if len(plain) > 0 {
		m.Branches = append(m.Branches, Branch{Text: plain})
	}
	return nil
}

func decodeBranch(n *yaml.Node) (Branch, error) {
	var raw struct {
		If   string    `yaml:"if"`
		Text yaml.Node `yaml:"text"`
	}
	if err := n.Decode(&raw); err != nil {
		return Branch{}, err
	}
	b := Branch{If: raw.If}
	switch raw.Text.Kind {
	case 0:
	case yaml.ScalarNode:
		b.Text = []string{strings.TrimSpace(raw.Text.Value)}
	case yaml.SequenceNode:
		if err := raw.Text.Decode(&b.Text); err != nil {
			return Branch{}, err
		}
		for i := range b.Text {
			b.Text[i] = strings.TrimSpace(b.Text[i])
		}
	default:
		return Branch{}, fmt.Errorf("line %d: text must be a string or a list", raw.Text.Line)
	}
	return b, nil
}
