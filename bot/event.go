package bot

import (
	"strings"

	"github.com/onnwee/twitchbot/params"
)

// User is the author of a chat message.
type User struct {
	ID               string
	Name             string
	DisplayName      string
	Broadcaster      bool
	Moderator        bool
	Subscriber       bool
	Partner          bool
	Staff            bool
	VIP              bool
	SubscribedMonths int
}

// Login returns the lower-cased name used as a key in the moderation and
// chatter sets.
func (u User) Login() string { return strings.ToLower(u.Name) }

// ChatMessage is a channel message delivered to the dispatcher.
type ChatMessage struct {
	ID      string
	Channel string
	User    User
	Text    string
	Bits    int
}

// SubscriberEvent announces a new or renewed subscription.
type SubscriberEvent struct {
	User   string
	Months int
	Streak int
	Plan   string
}

// GiftEvent announces a gifted subscription.
type GiftEvent struct {
	User      string
	Recipient string
	Months    int
	Streak    int
	Plan      string
}

// FollowEvent announces a new follower.
type FollowEvent struct {
	User string
}

// RaidEvent announces an incoming raid.
type RaidEvent struct {
	User    string
	Viewers int
}

func (e SubscriberEvent) values() params.Values {
	return params.Values{
		"username": e.User,
		"months":   params.Int(e.Months),
		"streak":   params.Int(e.Streak),
		"plan":     e.Plan,
	}
}

func (e GiftEvent) values() params.Values {
	return params.Values{
		"username":  e.User,
		"recipient": e.Recipient,
		"months":    params.Int(e.Months),
		"streak":    params.Int(e.Streak),
		"plan":      e.Plan,
	}
}

func (e FollowEvent) values() params.Values {
	return params.Values{"username": e.User}
}

func (e RaidEvent) values() params.Values {
	return params.Values{"username": e.User, "viewers": params.Int(e.Viewers)}
}
