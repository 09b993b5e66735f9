package bot

import (
	"context"
	"time"
)

// Actions are the outbound requests the bot makes of its chat connection.
// Failures are logged and counted; they never undo dispatch state.
type Actions interface {
	Say(ctx context.Context, text string) error
	DeleteMessage(ctx context.Context, msg ChatMessage) error
	Timeout(ctx context.Context, user string, d time.Duration, reason string) error
}

// Chatter is a user currently present in the channel.
type Chatter struct {
	Login     string
	Moderator bool
}

// ChatterSource lists the users present in the channel.
type ChatterSource interface {
	Chatters(ctx context.Context) ([]Chatter, error)
}

// Game is a stream category.
type Game struct {
	ID   string
	Name string
}

// Channel changes the stream category.
type Channel interface {
	FindGame(ctx context.Context, name string) (Game, error)
	SetGame(ctx context.Context, gameID string) error
}
