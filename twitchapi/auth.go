package twitchapi

import (
	"context"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/oauth2/twitch"
)

// Scopes the bot account needs for chat and moderation.
var BotScopes = []string{
	"chat:read",
	"chat:edit",
	"moderator:manage:chat_messages",
	"moderator:manage:banned_users",
	"moderator:read:chatters",
}

// Scopes the broadcaster account needs for channel edits and follower polling.
var ChannelScopes = []string{
	"channel:manage:broadcast",
	"moderator:read:followers",
}

// AppTokenSource returns a cached client credentials token source. The app
// token serves public reads (users, games); it cannot be used for chat.
// An empty tokenURL uses the Twitch endpoint.
func AppTokenSource(ctx context.Context, clientID, clientSecret, tokenURL string) oauth2.TokenSource {
	if tokenURL == "" {
		tokenURL = twitch.Endpoint.TokenURL
	}
	cc := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	return cc.TokenSource(ctx)
}

// UserConfig returns the authorization code configuration for a user token.
func UserConfig(clientID, clientSecret, redirectURL string, scopes []string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     twitch.Endpoint,
		RedirectURL:  redirectURL,
		Scopes:       scopes,
	}
}

// AuthorizeURL builds the consent URL. force_verify makes Twitch show the
// account picker so the bot and broadcaster accounts can be linked from one
// browser.
func AuthorizeURL(cfg *oauth2.Config, state string) string {
	return cfg.AuthCodeURL(state, oauth2.SetAuthURLParam("force_verify", "true"))
}

// NewHTTPClient returns a client that authorizes every request with ts.
func NewHTTPClient(ctx context.Context, ts oauth2.TokenSource) *http.Client {
	return oauth2.NewClient(ctx, ts)
}
