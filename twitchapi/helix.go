// Package twitchapi contains the Twitch Helix calls the bot needs: user and
// category lookup, channel category changes, chatter and follower listings,
// and the moderation endpoints behind message deletion and timeouts.
package twitchapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// DefaultBaseURL is the Helix API root.
const DefaultBaseURL = "https://api.twitch.tv/helix"

// ErrNotFound is returned when a lookup yields no result.
var ErrNotFound = errors.New("twitchapi: not found")

// APIError is a non-2xx Helix response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("helix request failed: %d: %s", e.Status, e.Message)
}

// HelixClient calls Helix with the token carried by HTTPClient. Different
// endpoints need different tokens, so callers keep one client per identity.
type HelixClient struct {
	ClientID   string
	BaseURL    string
	HTTPClient *http.Client
}

func (hc *HelixClient) http() *http.Client {
	if hc.HTTPClient != nil {
		return hc.HTTPClient
	}
	return http.DefaultClient
}

func (hc *HelixClient) base() string {
	if hc.BaseURL != "" {
		return hc.BaseURL
	}
	return DefaultBaseURL
}

// do sends the request and decodes a JSON response into out when non-nil.
func (hc *HelixClient) do(ctx context.Context, method, path string, q url.Values, body, out any) error {
	u := hc.base() + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s body: %w", path, err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Client-Id", hc.ClientID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := hc.http().Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Message string `json:"message"`
		}
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(b, &e) != nil || e.Message == "" {
			e.Message = string(b)
		}
		return &APIError{Status: resp.StatusCode, Message: e.Message}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type page struct {
	Cursor string `json:"cursor"`
}

// User is a Twitch account.
type User struct {
	ID          string `json:"id"`
	Login       string `json:"login"`
	DisplayName string `json:"display_name"`
}

// GetUser resolves a login name.
func (hc *HelixClient) GetUser(ctx context.Context, login string) (User, error) {
	if login == "" {
		return User{}, fmt.Errorf("login empty")
	}
	var body struct {
		Data []User `json:"data"`
	}
	if err := hc.do(ctx, http.MethodGet, "/users", url.Values{"login": {login}}, nil, &body); err != nil {
		return User{}, err
	}
	if len(body.Data) == 0 {
		return User{}, fmt.Errorf("user %s: %w", login, ErrNotFound)
	}
	return body.Data[0], nil
}

// Category is a game or stream category.
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// GetGame looks a category up by its exact name.
func (hc *HelixClient) GetGame(ctx context.Context, name string) (Category, error) {
	var body struct {
		Data []Category `json:"data"`
	}
	if err := hc.do(ctx, http.MethodGet, "/games", url.Values{"name": {name}}, nil, &body); err != nil {
		return Category{}, err
	}
	if len(body.Data) == 0 {
		return Category{}, fmt.Errorf("game %q: %w", name, ErrNotFound)
	}
	return body.Data[0], nil
}

// SetChannelGame changes the broadcaster's category. Needs the broadcaster's
// channel:manage:broadcast token.
func (hc *HelixClient) SetChannelGame(ctx context.Context, broadcasterID, gameID string) error {
	q := url.Values{"broadcaster_id": {broadcasterID}}
	return hc.do(ctx, http.MethodPatch, "/channels", q, map[string]string{"game_id": gameID}, nil)
}

// Chatter is a user connected to the chat.
type Chatter struct {
	UserID    string `json:"user_id"`
	UserLogin string `json:"user_login"`
	UserName  string `json:"user_name"`
}

// GetChatters lists everyone in the broadcaster's chat, following pagination.
// moderatorID is the account whose token is used.
func (hc *HelixClient) GetChatters(ctx context.Context, broadcasterID, moderatorID string) ([]Chatter, error) {
	var out []Chatter
	q := url.Values{"broadcaster_id": {broadcasterID}, "moderator_id": {moderatorID}, "first": {"1000"}}
	for {
		var body struct {
			Data       []Chatter `json:"data"`
			Pagination page      `json:"pagination"`
		}
		if err := hc.do(ctx, http.MethodGet, "/chat/chatters", q, nil, &body); err != nil {
			return nil, err
		}
		out = append(out, body.Data...)
		if body.Pagination.Cursor == "" {
			return out, nil
		}
		q.Set("after", body.Pagination.Cursor)
	}
}

// GetModerators returns the logins of the channel's moderators. Needs a
// broadcaster token with moderation:read.
func (hc *HelixClient) GetModerators(ctx context.Context, broadcasterID string) (map[string]bool, error) {
	out := map[string]bool{}
	q := url.Values{"broadcaster_id": {broadcasterID}, "first": {"100"}}
	for {
		var body struct {
			Data       []Chatter `json:"data"`
			Pagination page      `json:"pagination"`
		}
		if err := hc.do(ctx, http.MethodGet, "/moderation/moderators", q, nil, &body); err != nil {
			return nil, err
		}
		for _, m := range body.Data {
			out[m.UserLogin] = true
		}
		if body.Pagination.Cursor == "" {
			return out, nil
		}
		q.Set("after", body.Pagination.Cursor)
	}
}

// Follower is a follow relationship, newest first in listings.
type Follower struct {
	UserID     string    `json:"user_id"`
	UserLogin  string    `json:"user_login"`
	UserName   string    `json:"user_name"`
	FollowedAt time.Time `json:"followed_at"`
}

// GetFollowers returns up to first of the most recent followers.
func (hc *HelixClient) GetFollowers(ctx context.Context, broadcasterID string, first int) ([]Follower, error) {
	if first <= 0 || first > 100 {
		first = 100
	}
	var body struct {
		Data []Follower `json:"data"`
	}
	q := url.Values{"broadcaster_id": {broadcasterID}, "first": {strconv.Itoa(first)}}
	if err := hc.do(ctx, http.MethodGet, "/channels/followers", q, nil, &body); err != nil {
		return nil, err
	}
	return body.Data, nil
}

// DeleteChatMessage removes one message.
func (hc *HelixClient) DeleteChatMessage(ctx context.Context, broadcasterID, moderatorID, messageID string) error {
	q := url.Values{"broadcaster_id": {broadcasterID}, "moderator_id": {moderatorID}, "message_id": {messageID}}
	return hc.do(ctx, http.MethodDelete, "/moderation/chat", q, nil, nil)
}

// TimeoutUser bans userID for d, rounded up to whole seconds.
func (hc *HelixClient) TimeoutUser(ctx context.Context, broadcasterID, moderatorID, userID string, d time.Duration, reason string) error {
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	q := url.Values{"broadcaster_id": {broadcasterID}, "moderator_id": {moderatorID}}
	body := map[string]any{"data": map[string]any{"user_id": userID, "duration": secs, "reason": reason}}
	return hc.do(ctx, http.MethodPost, "/moderation/bans", q, body, nil)
}
