package bot

import (
	"context"
	"strconv"
	"strings"

	"github.com/onnwee/twitchbot/params"
)

// DefaultRandomMax is the upper bound of {random} without an argument.
const DefaultRandomMax = 6

// NoChatter is what {randomuser} renders when no chatter passes the filter.
const NoChatter = "???"

// ChatterFilter selects the candidates for {randomuser:flags}.
type ChatterFilter int

const (
	AllChatters       ChatterFilter = 0
	ExcludeMe         ChatterFilter = 1
	ExcludeStreamer   ChatterFilter = 2
	OnlyActive        ChatterFilter = 4
	ExcludeActive     ChatterFilter = 8
	OnlyModerators    ChatterFilter = 16
	ExcludeModerators ChatterFilter = 32
)

var chatterFilterNames = map[string]ChatterFilter{
	"all":               AllChatters,
	"excludeme":         ExcludeMe,
	"excludestreamer":   ExcludeStreamer,
	"onlyactive":        OnlyActive,
	"excludeactive":     ExcludeActive,
	"onlymoderators":    OnlyModerators,
	"excludemoderators": ExcludeModerators,
}

// ParseChatterFilter accepts flag names separated by ',' or '|', in any case,
// or a number. Anything it cannot read selects all chatters.
func ParseChatterFilter(s string) ChatterFilter {
	s = strings.TrimSpace(s)
	if s == "" {
		return AllChatters
	}
	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 {
			return AllChatters
		}
		return ChatterFilter(n)
	}
	var f ChatterFilter
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == '|' }) {
		flag, ok := chatterFilterNames[strings.ToLower(strings.TrimSpace(part))]
		if !ok {
			return AllChatters
		}
		f |= flag
	}
	return f
}

// Has reports whether every bit of flag is set.
func (f ChatterFilter) Has(flag ChatterFilter) bool { return f&flag == flag }

// filterChatters applies f. me is the requesting user and may be empty.
func (b *Bot) filterChatters(list []Chatter, f ChatterFilter, me string) []Chatter {
	out := make([]Chatter, 0, len(list))
	for _, c := range list {
		login := strings.ToLower(c.Login)
		switch {
		case f.Has(ExcludeMe) && login == me:
		case f.Has(ExcludeStreamer) && login == b.opts.Channel:
		case f.Has(OnlyActive) && !b.active.Contains(login):
		case f.Has(ExcludeActive) && b.active.Contains(login):
		case f.Has(OnlyModerators) && !c.Moderator:
		case f.Has(ExcludeModerators) && c.Moderator:
		default:
			out = append(out, c)
		}
	}
	return out
}

func (b *Bot) randomChatter(ctx context.Context, f ChatterFilter, me string) string {
	list := b.filterChatters(b.chatters.get(ctx), f, me)
	if len(list) == 0 {
		return NoChatter
	}
	return list[b.opts.IntN(len(list))].Login
}

func (b *Bot) randomNumber(argument string) string {
	max := DefaultRandomMax
	if n, err := strconv.Atoi(strings.TrimSpace(argument)); err == nil && n > 0 {
		max = n
	}
	return strconv.Itoa(b.opts.IntN(max) + 1)
}

// hostResolver answers the parameters available outside a chat message.
// me is the requesting user for the ExcludeMe filter.
func (b *Bot) hostResolver(ctx context.Context, me string) params.Resolver {
	return func(name, argument string) (string, bool) {
		switch name {
		case "random":
			return b.randomNumber(argument), true
		case "randomuser":
			return b.randomChatter(ctx, ParseChatterFilter(argument), me), true
		}
		return "", false
	}
}

// eventResolver answers the parameters of a chat message, falling back to the
// host parameters.
func (b *Bot) eventResolver(ctx context.Context, msg ChatMessage, argument string) params.Resolver {
	u := msg.User
	return params.Values{
		"username":         u.Name,
		"isbroadcaster":    params.Bool(u.Broadcaster),
		"issubscriber":     params.Bool(u.Subscriber),
		"ispartner":        params.Bool(u.Partner),
		"isstaff":          params.Bool(u.Staff),
		"isvip":            params.Bool(u.VIP),
		"ismoderator":      params.Bool(u.Moderator),
		"bits":             params.Int(msg.Bits),
		"subscribedmonths": params.Int(u.SubscribedMonths),
		"argument":         argument,
	}.Over(b.hostResolver(ctx, u.Login()))
}
